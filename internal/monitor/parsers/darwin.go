package parsers

import (
	"bufio"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/fleetmon/fleetmon/internal/monitor/metrics"
)

// ParseDarwinCPU parses macOS top output (top -l 2 -n 0; the last sample
// wins), sysctl -n hw.ncpu and sysctl -n machdep.cpu.brand_string.
func ParseDarwinCPU(topOutput, ncpu, brand string) (*metrics.CPU, error) {
	cpu := &metrics.CPU{}
	scanner := bufio.NewScanner(strings.NewReader(topOutput))

	for scanner.Scan() {
		line := scanner.Text()

		// "CPU usage: 5.26% user, 10.52% sys, 84.21% idle"
		if strings.HasPrefix(line, "CPU usage:") {
			cpu.UsagePercent = parseDarwinCPUUsage(line)
		}

		// "Load Avg: 1.23, 2.34, 3.45"
		if strings.HasPrefix(line, "Load Avg:") {
			load := parseDarwinLoadAvg(line)
			cpu.Load1, cpu.Load5, cpu.Load15 = load[0], load[1], load[2]
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error scanning top output: %w", err)
	}

	cores, err := strconv.Atoi(firstLine(ncpu))
	if err != nil || cores <= 0 {
		return nil, noData("hw.ncpu unavailable")
	}
	cpu.Cores = cores
	cpu.Model = firstLine(brand)

	return cpu, nil
}

// parseDarwinCPUUsage returns 100 - idle from top's CPU usage line.
func parseDarwinCPUUsage(line string) float64 {
	for _, part := range strings.Split(line, ",") {
		part = strings.TrimSpace(part)
		if !strings.Contains(part, "idle") {
			continue
		}
		fields := strings.Fields(part)
		if len(fields) >= 1 {
			idle, err := strconv.ParseFloat(strings.TrimSuffix(fields[0], "%"), 64)
			if err == nil {
				return 100 - idle
			}
		}
	}
	return 0
}

// parseDarwinLoadAvg extracts load averages from top's Load Avg line.
func parseDarwinLoadAvg(line string) [3]float64 {
	var loadAvg [3]float64

	_, values, ok := strings.Cut(line, ":")
	if !ok {
		return loadAvg
	}

	parts := strings.Split(strings.TrimSpace(values), ",")
	for i := 0; i < 3 && i < len(parts); i++ {
		val, err := strconv.ParseFloat(strings.TrimSpace(parts[i]), 64)
		if err == nil {
			loadAvg[i] = val
		}
	}
	return loadAvg
}

var swapUsageRe = regexp.MustCompile(`(total|used)\s*=\s*([\d.]+)([KMG])`)

// ParseDarwinMemory parses vm_stat output together with sysctl -n
// hw.memsize and sysctl -n vm.swapusage.
func ParseDarwinMemory(vmStatOutput, memsize, swapUsage string) (*metrics.Memory, error) {
	total, err := parseUint(firstLine(memsize))
	if err != nil || total == 0 {
		return nil, noData("hw.memsize unavailable")
	}

	// Apple Silicon uses 16K pages, Intel 4K; vm_stat states which.
	pageSize := uint64(4096)
	pages := make(map[string]uint64)

	scanner := bufio.NewScanner(strings.NewReader(vmStatOutput))
	for scanner.Scan() {
		line := scanner.Text()

		// "Mach Virtual Memory Statistics: (page size of 16384 bytes)"
		if _, rest, ok := strings.Cut(line, "page size of"); ok {
			if fields := strings.Fields(rest); len(fields) > 0 {
				if size, err := parseUint(fields[0]); err == nil {
					pageSize = size
				}
			}
			continue
		}

		// "Pages active:    123456."
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		val, err := parseUint(strings.TrimSuffix(strings.TrimSpace(value), "."))
		if err != nil {
			continue
		}
		pages[strings.TrimSpace(key)] = val
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error scanning vm_stat output: %w", err)
	}

	used := (pages["Pages active"] + pages["Pages wired down"] + pages["Pages occupied by compressor"]) * pageSize
	if used > total {
		used = total
	}

	mem := &metrics.Memory{
		Total:     total,
		Used:      used,
		Free:      (pages["Pages free"] + pages["Pages speculative"]) * pageSize,
		Available: total - used,
	}

	for _, m := range swapUsageRe.FindAllStringSubmatch(swapUsage, -1) {
		val, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			continue
		}
		bytes := uint64(val * float64(unitMultiplier(m[3])))
		if m[1] == "total" {
			mem.SwapTotal = bytes
		} else {
			mem.SwapUsed = bytes
		}
	}

	return mem, nil
}

func unitMultiplier(unit string) uint64 {
	switch unit {
	case "K":
		return 1 << 10
	case "M":
		return 1 << 20
	case "G":
		return 1 << 30
	}
	return 1
}

// ParseDarwinNetwork parses network interface metrics from netstat -ib output.
func ParseDarwinNetwork(netstatOutput string) ([]metrics.NetworkInterface, error) {
	var interfaces []metrics.NetworkInterface
	scanner := bufio.NewScanner(strings.NewReader(netstatOutput))

	headerSkipped := false
	seen := make(map[string]bool)

	for scanner.Scan() {
		line := scanner.Text()

		if !headerSkipped {
			if strings.HasPrefix(line, "Name") {
				headerSkipped = true
			}
			continue
		}

		// Name  Mtu   Network       Address            Ipkts Ierrs     Ibytes    Opkts Oerrs     Obytes  Coll
		// en0   1500  <Link#4>      xx:xx:xx:xx:xx:xx  12345     0   12345678    67890     0    9876543     0
		fields := strings.Fields(line)
		if len(fields) < 8 {
			continue
		}

		name := fields[0]
		if seen[name] || !strings.HasPrefix(fields[2], "<Link#") {
			continue
		}

		// Interfaces without an address (lo0) have one column fewer, so
		// count numeric columns from the right: ipkts ierrs ibytes opkts oerrs obytes coll.
		var numeric []uint64
		for _, f := range fields[3:] {
			if val, err := parseUint(f); err == nil {
				numeric = append(numeric, val)
			}
		}
		if len(numeric) < 7 {
			continue
		}
		n := numeric[len(numeric)-7:]
		seen[name] = true

		interfaces = append(interfaces, metrics.NetworkInterface{
			Name:      name,
			RxPackets: n[0],
			RxBytes:   n[2],
			TxPackets: n[3],
			TxBytes:   n[5],
		})
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error scanning netstat output: %w", err)
	}
	if len(interfaces) == 0 {
		return nil, noData("no link rows in netstat -ib output")
	}
	return interfaces, nil
}

var bootTimeRe = regexp.MustCompile(`sec\s*=\s*(\d+)`)

// ParseDarwinSystem builds host info from hostname, sw_vers -productName,
// sw_vers -productVersion, uname -r, uname -m, sysctl -n kern.boottime and
// the host's current unix time (date +%s).
func ParseDarwinSystem(hostname, productName, productVersion, kernelRelease, arch, bootTime, now string) (*metrics.System, error) {
	sys := &metrics.System{
		Hostname: firstLine(hostname),
		Kernel:   firstLine(kernelRelease),
		Arch:     firstLine(arch),
	}
	if sys.Hostname == "" {
		return nil, noData("hostname is empty")
	}

	sys.OS = strings.TrimSpace(firstLine(productName) + " " + firstLine(productVersion))
	if sys.OS == "" {
		sys.OS = "Darwin"
	}

	// "{ sec = 1704700000, usec = 0 } Mon Jan  8 10:00:00 2024"
	if m := bootTimeRe.FindStringSubmatch(bootTime); m != nil {
		boot, err1 := parseUint(m[1])
		current, err2 := parseUint(firstLine(now))
		if err1 == nil && err2 == nil && current > boot {
			sys.UptimeSeconds = current - boot
		}
	}

	return sys, nil
}
