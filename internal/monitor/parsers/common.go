package parsers

import (
	"bufio"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/fleetmon/fleetmon/internal/monitor/metrics"
)

// pseudoFilesystems never hold user data and are left out of disk reports.
var pseudoFilesystems = map[string]bool{
	"tmpfs":    true,
	"devtmpfs": true,
	"squashfs": true,
	"devfs":    true,
	"proc":     true,
	"sysfs":    true,
	"efivarfs": true,
	"overlay":  true,
	"autofs":   true,
}

// ParseDF parses POSIX df output in 1K blocks, with or without a Type
// column (df -kPT on Linux, df -kP elsewhere).
func ParseDF(output string) ([]metrics.Disk, error) {
	var disks []metrics.Disk
	scanner := bufio.NewScanner(strings.NewReader(output))

	withType := false
	headerSeen := false
	seen := make(map[string]bool)

	for scanner.Scan() {
		line := scanner.Text()
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if !headerSeen && fields[0] == "Filesystem" {
			headerSeen = true
			withType = len(fields) > 1 && fields[1] == "Type"
			continue
		}

		// Filesystem [Type] 1024-blocks Used Available Capacity Mounted-on...
		minFields := 6
		if withType {
			minFields = 7
		}
		if len(fields) < minFields {
			continue
		}

		disk := metrics.Disk{Device: fields[0]}
		i := 1
		if withType {
			disk.FSType = fields[1]
			i = 2
		}
		if pseudoFilesystems[disk.FSType] || pseudoFilesystems[disk.Device] {
			continue
		}

		total, err := parseUint(fields[i])
		if err != nil {
			continue
		}
		used, err := parseUint(fields[i+1])
		if err != nil {
			continue
		}
		if total == 0 {
			continue
		}

		// Mount points may contain spaces.
		disk.MountPoint = strings.Join(fields[i+4:], " ")
		if seen[disk.MountPoint] {
			continue
		}
		seen[disk.MountPoint] = true

		disk.Total = total * 1024
		disk.Used = used * 1024
		disks = append(disks, disk)
	}

	if len(disks) == 0 {
		return nil, noData("no mounted filesystems in df output")
	}
	return disks, nil
}

// ParsePorts parses listening sockets from ss -tuln, netstat -tuln (Linux)
// or netstat -an (macOS). Established TCP connections are ignored and each
// port/protocol pair is reported once, sorted by port.
func ParsePorts(output string) ([]metrics.Port, error) {
	type key struct {
		port  int
		proto string
	}
	found := make(map[key]metrics.Port)

	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 5 {
			continue
		}

		proto := normalizeProto(fields[0])
		if proto == "" {
			continue
		}

		var local, state string
		if _, err := strconv.Atoi(fields[1]); err == nil {
			// netstat: Proto Recv-Q Send-Q Local Foreign [State]
			local = fields[3]
			if len(fields) > 5 {
				state = fields[5]
			}
		} else {
			// ss: Netid State Recv-Q Send-Q Local Peer
			if len(fields) < 6 {
				continue
			}
			state = fields[1]
			local = fields[4]
		}

		if state == "" {
			state = "UNCONN"
		}
		if proto == "tcp" && state != "LISTEN" {
			continue
		}

		port, ok := portOf(local)
		if !ok {
			continue
		}
		found[key{port, proto}] = metrics.Port{Port: port, Protocol: proto, State: state}
	}

	if len(found) == 0 {
		return nil, noData("no listening ports")
	}

	ports := make([]metrics.Port, 0, len(found))
	for _, p := range found {
		ports = append(ports, p)
	}
	sort.Slice(ports, func(i, j int) bool {
		if ports[i].Port != ports[j].Port {
			return ports[i].Port < ports[j].Port
		}
		return ports[i].Protocol < ports[j].Protocol
	})
	return ports, nil
}

func normalizeProto(s string) string {
	s = strings.ToLower(s)
	switch {
	case strings.HasPrefix(s, "tcp"):
		return "tcp"
	case strings.HasPrefix(s, "udp"):
		return "udp"
	}
	return ""
}

// portOf returns the port of a local address such as 0.0.0.0:22, [::]:80,
// *:53 or the macOS form *.22 / 127.0.0.1.631.
func portOf(addr string) (int, bool) {
	i := strings.LastIndexAny(addr, ":.")
	if i < 0 || i == len(addr)-1 {
		return 0, false
	}
	port, err := strconv.Atoi(addr[i+1:])
	if err != nil || port <= 0 || port > 65535 {
		return 0, false
	}
	return port, true
}

var pingTimeRe = regexp.MustCompile(`time[=<](\d+\.?\d*)`)

// ParsePing matches one section of ping output per target, in order.
// A target without a reply gets Success false and the first line of output
// that explains why.
func ParsePing(targets []string, sections []string) ([]metrics.PingResult, error) {
	if len(targets) == 0 {
		return nil, noData("no ping targets configured")
	}

	results := make([]metrics.PingResult, 0, len(targets))
	for i, target := range targets {
		result := metrics.PingResult{Target: target}
		out := ""
		if i < len(sections) {
			out = sections[i]
		}

		if m := pingTimeRe.FindStringSubmatch(out); m != nil {
			latency, _ := strconv.ParseFloat(m[1], 64)
			result.Success = true
			result.LatencyMs = latency
		} else {
			result.Error = pingFailure(out)
		}
		results = append(results, result)
	}
	return results, nil
}

func pingFailure(out string) string {
	for _, line := range strings.Split(out, "\n") {
		lower := strings.ToLower(line)
		if strings.Contains(lower, "unknown host") ||
			strings.Contains(lower, "cannot resolve") ||
			strings.Contains(lower, "name or service not known") ||
			strings.Contains(lower, "unreachable") ||
			strings.Contains(lower, "not found") {
			return strings.TrimSpace(line)
		}
	}
	return "no response"
}
