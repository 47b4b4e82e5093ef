package parsers

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"

	"github.com/fleetmon/fleetmon/internal/monitor/metrics"
)

// cpuTimes is the aggregate "cpu" line of /proc/stat.
type cpuTimes struct {
	total uint64
	idle  uint64
}

// parseProcStat returns the aggregate cpu line and the number of cpuN lines.
func parseProcStat(procStat string) (cpuTimes, int, bool, error) {
	var times cpuTimes
	found := false
	cores := 0

	scanner := bufio.NewScanner(strings.NewReader(procStat))
	for scanner.Scan() {
		line := scanner.Text()

		// Individual cores: cpu0, cpu1, ...
		if strings.HasPrefix(line, "cpu") && len(line) > 3 && line[3] >= '0' && line[3] <= '9' {
			cores++
			continue
		}

		if strings.HasPrefix(line, "cpu ") {
			fields := strings.Fields(line)
			if len(fields) < 5 {
				return times, 0, false, fmt.Errorf("invalid /proc/stat cpu line: %s", line)
			}

			// cpu user nice system idle iowait irq softirq steal guest guest_nice.
			// guest time is already counted in user, so stop at steal.
			for i := 1; i < len(fields) && i <= 8; i++ {
				val, err := strconv.ParseUint(fields[i], 10, 64)
				if err != nil {
					return times, 0, false, fmt.Errorf("failed to parse cpu field %d: %w", i, err)
				}
				times.total += val
				if i == 4 || i == 5 {
					times.idle += val
				}
			}
			found = true
		}
	}
	if err := scanner.Err(); err != nil {
		return times, 0, false, fmt.Errorf("error scanning /proc/stat: %w", err)
	}
	return times, cores, found, nil
}

// ParseLinuxCPU parses two /proc/stat samples taken a moment apart, plus
// /proc/loadavg and the "model name" line of /proc/cpuinfo. Usage is the
// busy share between the samples; with a single sample it falls back to the
// average since boot.
func ParseLinuxCPU(statBefore, statAfter, loadavg, cpuinfo string) (*metrics.CPU, error) {
	after, cores, ok, err := parseProcStat(statAfter)
	if err != nil {
		return nil, err
	}
	before, beforeCores, beforeOK, err := parseProcStat(statBefore)
	if err != nil {
		return nil, err
	}
	if !ok {
		after, cores, ok = before, beforeCores, beforeOK
		beforeOK = false
	}
	if !ok || cores == 0 {
		return nil, noData("no cpu lines in /proc/stat")
	}

	cpu := &metrics.CPU{Cores: cores}

	if beforeOK && after.total > before.total {
		dTotal := after.total - before.total
		dIdle := after.idle - before.idle
		if dIdle > dTotal {
			dIdle = dTotal
		}
		cpu.UsagePercent = float64(dTotal-dIdle) / float64(dTotal) * 100
	} else if after.total > 0 {
		cpu.UsagePercent = float64(after.total-after.idle) / float64(after.total) * 100
	}

	if fields := strings.Fields(strings.TrimSpace(loadavg)); len(fields) >= 3 {
		var loads [3]float64
		for i := 0; i < 3; i++ {
			val, err := strconv.ParseFloat(fields[i], 64)
			if err != nil {
				return nil, fmt.Errorf("failed to parse loadavg field %d: %w", i, err)
			}
			loads[i] = val
		}
		cpu.Load1, cpu.Load5, cpu.Load15 = loads[0], loads[1], loads[2]
	}

	for _, line := range strings.Split(cpuinfo, "\n") {
		if key, value, ok := strings.Cut(line, ":"); ok && strings.TrimSpace(key) == "model name" {
			cpu.Model = strings.TrimSpace(value)
			break
		}
	}

	return cpu, nil
}

// ParseLinuxMemory parses memory metrics from /proc/meminfo output.
func ParseLinuxMemory(procMeminfo string) (*metrics.Memory, error) {
	values := make(map[string]uint64)
	scanner := bufio.NewScanner(strings.NewReader(procMeminfo))

	for scanner.Scan() {
		parts := strings.Fields(scanner.Text())
		if len(parts) < 2 {
			continue
		}
		val, err := strconv.ParseUint(parts[1], 10, 64)
		if err != nil {
			continue
		}
		// Values in /proc/meminfo are in kB
		values[strings.TrimSuffix(parts[0], ":")] = val * 1024
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error scanning /proc/meminfo: %w", err)
	}

	total := values["MemTotal"]
	if total == 0 {
		return nil, noData("MemTotal missing from /proc/meminfo")
	}

	mem := &metrics.Memory{
		Total:     total,
		Free:      values["MemFree"],
		SwapTotal: values["SwapTotal"],
	}

	if avail, ok := values["MemAvailable"]; ok {
		mem.Available = avail
	} else {
		// Kernels before 3.14 have no MemAvailable.
		mem.Available = mem.Free + values["Buffers"] + values["Cached"]
	}
	if mem.Available < total {
		mem.Used = total - mem.Available
	}
	if swapFree := values["SwapFree"]; swapFree < mem.SwapTotal {
		mem.SwapUsed = mem.SwapTotal - swapFree
	}

	return mem, nil
}

// ParseLinuxNetwork parses network interface metrics from /proc/net/dev output.
func ParseLinuxNetwork(procNetDev string) ([]metrics.NetworkInterface, error) {
	var interfaces []metrics.NetworkInterface
	scanner := bufio.NewScanner(strings.NewReader(procNetDev))

	for scanner.Scan() {
		line := scanner.Text()

		// Format: "  iface: bytes packets errs drop fifo frame compressed multicast | bytes packets..."
		name, rest, ok := strings.Cut(line, ":")
		if !ok || strings.Contains(name, "|") {
			continue
		}
		name = strings.TrimSpace(name)
		fields := strings.Fields(rest)

		// Need at least 16 fields (8 receive + 8 transmit)
		if len(fields) < 16 {
			continue
		}

		var counters [4]uint64
		for i, idx := range []int{0, 1, 8, 9} {
			val, err := strconv.ParseUint(fields[idx], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("failed to parse /proc/net/dev field %d for %s: %w", idx, name, err)
			}
			counters[i] = val
		}

		interfaces = append(interfaces, metrics.NetworkInterface{
			Name:      name,
			RxBytes:   counters[0],
			RxPackets: counters[1],
			TxBytes:   counters[2],
			TxPackets: counters[3],
		})
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error scanning /proc/net/dev: %w", err)
	}
	if len(interfaces) == 0 {
		return nil, noData("no interfaces in /proc/net/dev")
	}
	return interfaces, nil
}

// ParseLinuxSystem builds host info from hostname, uname -s, uname -r,
// uname -m, /proc/uptime and /etc/os-release output.
func ParseLinuxSystem(hostname, kernelName, kernelRelease, arch, procUptime, osRelease string) (*metrics.System, error) {
	sys := &metrics.System{
		Hostname: firstLine(hostname),
		OS:       firstLine(kernelName),
		Kernel:   firstLine(kernelRelease),
		Arch:     firstLine(arch),
	}
	if sys.Hostname == "" {
		return nil, noData("hostname is empty")
	}

	if pretty := osReleaseValue(osRelease, "PRETTY_NAME"); pretty != "" {
		sys.OS = pretty
	}

	if fields := strings.Fields(procUptime); len(fields) > 0 {
		if secs, err := strconv.ParseFloat(fields[0], 64); err == nil && secs > 0 {
			sys.UptimeSeconds = uint64(secs)
		}
	}

	return sys, nil
}

func osReleaseValue(osRelease, key string) string {
	for _, line := range strings.Split(osRelease, "\n") {
		k, v, ok := strings.Cut(strings.TrimSpace(line), "=")
		if ok && k == key {
			return strings.Trim(v, `"'`)
		}
	}
	return ""
}
