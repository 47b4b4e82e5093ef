// Package metrics holds the value types produced by one poll cycle.
package metrics

import (
	"errors"
	"time"
)

// Category names one independently collected group of metrics.
type Category string

const (
	CategoryCPU     Category = "cpu"
	CategoryMemory  Category = "memory"
	CategoryDisks   Category = "disks"
	CategoryNetwork Category = "network"
	CategoryPorts   Category = "ports"
	CategoryPing    Category = "ping"
	CategorySystem  Category = "system"
)

// ErrNoData marks a category whose command ran but produced nothing usable.
var ErrNoData = errors.New("no usable data")

// Categories returns every category in collection order.
func Categories() []Category {
	return []Category{
		CategoryCPU,
		CategoryMemory,
		CategoryDisks,
		CategoryNetwork,
		CategoryPorts,
		CategoryPing,
		CategorySystem,
	}
}

// ParseCategory maps a name such as "disks" to its Category.
func ParseCategory(name string) (Category, bool) {
	for _, c := range Categories() {
		if string(c) == name {
			return c, true
		}
	}
	return "", false
}

// CPU contains processor usage information.
type CPU struct {
	UsagePercent float64 `json:"usage_percent"`
	Load1        float64 `json:"load_1"`
	Load5        float64 `json:"load_5"`
	Load15       float64 `json:"load_15"`
	Cores        int     `json:"cores"`
	Model        string  `json:"model,omitempty"`
}

// Memory contains RAM and swap usage in bytes.
type Memory struct {
	Total     uint64 `json:"total"`
	Used      uint64 `json:"used"`
	Free      uint64 `json:"free"`
	Available uint64 `json:"available"`
	SwapTotal uint64 `json:"swap_total"`
	SwapUsed  uint64 `json:"swap_used"`
}

// UsedPercent returns Used as a share of Total.
func (m Memory) UsedPercent() float64 {
	if m.Total == 0 {
		return 0
	}
	return float64(m.Used) / float64(m.Total) * 100
}

// Disk is one mounted filesystem.
type Disk struct {
	Device     string `json:"device"`
	MountPoint string `json:"mount_point"`
	FSType     string `json:"fs_type,omitempty"`
	Used       uint64 `json:"used"`
	Total      uint64 `json:"total"`
}

// UsedPercent returns Used as a share of Total.
func (d Disk) UsedPercent() float64 {
	if d.Total == 0 {
		return 0
	}
	return float64(d.Used) / float64(d.Total) * 100
}

// NetworkInterface contains cumulative I/O counters for one interface.
type NetworkInterface struct {
	Name      string `json:"name"`
	RxBytes   uint64 `json:"rx_bytes"`
	TxBytes   uint64 `json:"tx_bytes"`
	RxPackets uint64 `json:"rx_packets"`
	TxPackets uint64 `json:"tx_packets"`
}

// Port is one listening socket.
type Port struct {
	Port     int    `json:"port"`
	Protocol string `json:"protocol"`
	State    string `json:"state"`
}

// PingResult is the outcome of pinging one target from the server.
type PingResult struct {
	Target    string  `json:"target"`
	Success   bool    `json:"success"`
	LatencyMs float64 `json:"latency_ms,omitempty"`
	Error     string  `json:"error,omitempty"`
}

// System contains general host information.
type System struct {
	Hostname      string `json:"hostname"`
	OS            string `json:"os"`
	Kernel        string `json:"kernel"`
	Arch          string `json:"arch"`
	UptimeSeconds uint64 `json:"uptime_seconds"`
}

// Snapshot is the immutable result of one poll cycle. A category is either
// set or has an entry in Errors, never both.
type Snapshot struct {
	Timestamp time.Time           `json:"timestamp"`
	CPU       *CPU                `json:"cpu,omitempty"`
	Memory    *Memory             `json:"memory,omitempty"`
	Disks     []Disk              `json:"disks,omitempty"`
	Network   []NetworkInterface  `json:"network,omitempty"`
	Ports     []Port              `json:"ports,omitempty"`
	Ping      []PingResult        `json:"ping,omitempty"`
	System    *System             `json:"system,omitempty"`
	Errors    map[Category]string `json:"errors,omitempty"`
}

// Value returns the collected value for c, or false when it is unavailable.
func (s *Snapshot) Value(c Category) (any, bool) {
	if s == nil {
		return nil, false
	}
	switch c {
	case CategoryCPU:
		return s.CPU, s.CPU != nil
	case CategoryMemory:
		return s.Memory, s.Memory != nil
	case CategoryDisks:
		return s.Disks, len(s.Disks) > 0
	case CategoryNetwork:
		return s.Network, len(s.Network) > 0
	case CategoryPorts:
		return s.Ports, len(s.Ports) > 0
	case CategoryPing:
		return s.Ping, len(s.Ping) > 0
	case CategorySystem:
		return s.System, s.System != nil
	}
	return nil, false
}

// Available reports whether c was collected.
func (s *Snapshot) Available(c Category) bool {
	_, ok := s.Value(c)
	return ok
}

// Collected lists the categories that hold a value, in collection order.
func (s *Snapshot) Collected() []Category {
	var out []Category
	for _, c := range Categories() {
		if s.Available(c) {
			out = append(out, c)
		}
	}
	return out
}

// SetError records why c is unavailable.
func (s *Snapshot) SetError(c Category, err error) {
	if s.Errors == nil {
		s.Errors = make(map[Category]string)
	}
	s.Errors[c] = err.Error()
}

// Empty reports whether no category was collected.
func (s *Snapshot) Empty() bool {
	return len(s.Collected()) == 0
}
