package monitor

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/fleetmon/fleetmon/internal/monitor/metrics"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/net"
)

// HostSource reads this machine's metrics through gopsutil.
type HostSource struct {
	// CPUSample is how long CPU usage is measured over.
	CPUSample time.Duration
}

var _ LocalSource = (*HostSource)(nil)

// NewHostSource returns a HostSource with a 500ms CPU sample.
func NewHostSource() *HostSource {
	return &HostSource{CPUSample: 500 * time.Millisecond}
}

// Collect implements LocalSource.
func (h *HostSource) Collect(ctx context.Context, c metrics.Category) (any, error) {
	switch c {
	case metrics.CategoryCPU:
		return h.cpu(ctx)
	case metrics.CategoryMemory:
		return h.memory(ctx)
	case metrics.CategoryDisks:
		return h.disks(ctx)
	case metrics.CategoryNetwork:
		return h.network(ctx)
	case metrics.CategoryPorts:
		return h.ports(ctx)
	case metrics.CategorySystem:
		return h.system(ctx)
	}
	return nil, fmt.Errorf("%s is not collected locally", c)
}

func (h *HostSource) cpu(ctx context.Context) (*metrics.CPU, error) {
	cores, err := cpu.CountsWithContext(ctx, true)
	if err != nil {
		return nil, err
	}
	out := &metrics.CPU{Cores: cores}

	percents, err := cpu.PercentWithContext(ctx, h.CPUSample, false)
	if err != nil {
		return nil, err
	}
	if len(percents) > 0 {
		out.UsagePercent = percents[0]
	}

	if avg, err := load.AvgWithContext(ctx); err == nil {
		out.Load1, out.Load5, out.Load15 = avg.Load1, avg.Load5, avg.Load15
	}
	if infos, err := cpu.InfoWithContext(ctx); err == nil && len(infos) > 0 {
		out.Model = strings.TrimSpace(infos[0].ModelName)
	}
	return out, nil
}

func (h *HostSource) memory(ctx context.Context) (*metrics.Memory, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, err
	}
	out := &metrics.Memory{
		Total:     vm.Total,
		Used:      vm.Used,
		Free:      vm.Free,
		Available: vm.Available,
	}
	if swap, err := mem.SwapMemoryWithContext(ctx); err == nil {
		out.SwapTotal, out.SwapUsed = swap.Total, swap.Used
	}
	return out, nil
}

func (h *HostSource) disks(ctx context.Context) ([]metrics.Disk, error) {
	partitions, err := disk.PartitionsWithContext(ctx, false)
	if err != nil {
		return nil, err
	}

	var out []metrics.Disk
	seen := make(map[string]bool)
	for _, p := range partitions {
		if seen[p.Mountpoint] {
			continue
		}
		usage, err := disk.UsageWithContext(ctx, p.Mountpoint)
		if err != nil || usage.Total == 0 {
			continue
		}
		seen[p.Mountpoint] = true
		out = append(out, metrics.Disk{
			Device:     p.Device,
			MountPoint: p.Mountpoint,
			FSType:     p.Fstype,
			Used:       usage.Used,
			Total:      usage.Total,
		})
	}
	return out, nil
}

func (h *HostSource) network(ctx context.Context) ([]metrics.NetworkInterface, error) {
	counters, err := net.IOCountersWithContext(ctx, true)
	if err != nil {
		return nil, err
	}
	out := make([]metrics.NetworkInterface, 0, len(counters))
	for _, c := range counters {
		out = append(out, metrics.NetworkInterface{
			Name:      c.Name,
			RxBytes:   c.BytesRecv,
			TxBytes:   c.BytesSent,
			RxPackets: c.PacketsRecv,
			TxPackets: c.PacketsSent,
		})
	}
	return out, nil
}

func (h *HostSource) ports(ctx context.Context) ([]metrics.Port, error) {
	conns, err := net.ConnectionsWithContext(ctx, "inet")
	if err != nil {
		return nil, err
	}

	type key struct {
		port  int
		proto string
	}
	found := make(map[key]metrics.Port)
	for _, c := range conns {
		var proto, state string
		switch c.Type {
		case syscall.SOCK_STREAM:
			if c.Status != "LISTEN" {
				continue
			}
			proto, state = "tcp", "LISTEN"
		case syscall.SOCK_DGRAM:
			proto, state = "udp", "UNCONN"
		default:
			continue
		}
		port := int(c.Laddr.Port)
		if port == 0 {
			continue
		}
		found[key{port, proto}] = metrics.Port{Port: port, Protocol: proto, State: state}
	}

	out := make([]metrics.Port, 0, len(found))
	for _, p := range found {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Port != out[j].Port {
			return out[i].Port < out[j].Port
		}
		return out[i].Protocol < out[j].Protocol
	})
	return out, nil
}

func (h *HostSource) system(ctx context.Context) (*metrics.System, error) {
	info, err := host.InfoWithContext(ctx)
	if err != nil {
		return nil, err
	}
	osName := strings.TrimSpace(info.Platform + " " + info.PlatformVersion)
	if osName == "" {
		osName = info.OS
	}
	return &metrics.System{
		Hostname:      info.Hostname,
		OS:            osName,
		Kernel:        info.KernelVersion,
		Arch:          info.KernelArch,
		UptimeSeconds: info.Uptime,
	}, nil
}
