package monitor

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/fleetmon/fleetmon/internal/monitor/metrics"
	"github.com/fleetmon/fleetmon/internal/monitor/parsers"
	"github.com/fleetmon/fleetmon/internal/util"
)

// Platform represents the operating system type of a remote host.
type Platform string

const (
	// PlatformLinux indicates a Linux host.
	PlatformLinux Platform = "linux"
	// PlatformDarwin indicates a macOS host.
	PlatformDarwin Platform = "darwin"
	// PlatformUnknown indicates an unknown platform.
	PlatformUnknown Platform = "unknown"
)

// PlatformDetectCommand returns the command to detect the platform type.
func PlatformDetectCommand() string {
	return "uname -s"
}

// ParsePlatform converts uname output to a Platform value.
func ParsePlatform(unameOutput string) Platform {
	switch strings.TrimSpace(unameOutput) {
	case "Linux":
		return PlatformLinux
	case "Darwin":
		return PlatformDarwin
	default:
		return PlatformUnknown
	}
}

const sep = `; echo "` + parsers.Separator + `"; `

// CommandSet builds the shell command for each category on one platform.
// Unknown platforms get the Linux commands, which fail per category.
type CommandSet struct {
	Platform    Platform
	PingTargets []string
	PingTimeout time.Duration
}

// Command returns the command that collects category c.
func (cs CommandSet) Command(c metrics.Category) string {
	darwin := cs.Platform == PlatformDarwin
	switch c {
	case metrics.CategoryCPU:
		if darwin {
			return `top -l 2 -n 0 -s 1 2>/dev/null | grep -E '^(CPU usage|Load Avg)'` + sep +
				`sysctl -n hw.ncpu` + sep +
				`sysctl -n machdep.cpu.brand_string 2>/dev/null || true`
		}
		return `cat /proc/stat` + sep +
			`sleep 0.5; cat /proc/stat` + sep +
			`cat /proc/loadavg` + sep +
			`grep -m1 'model name' /proc/cpuinfo 2>/dev/null || true`
	case metrics.CategoryMemory:
		if darwin {
			return `vm_stat` + sep + `sysctl -n hw.memsize` + sep + `sysctl -n vm.swapusage 2>/dev/null || true`
		}
		return `cat /proc/meminfo`
	case metrics.CategoryDisks:
		if darwin {
			return `df -kP`
		}
		return `df -kPT 2>/dev/null || df -kP`
	case metrics.CategoryNetwork:
		if darwin {
			return `netstat -ib`
		}
		return `cat /proc/net/dev`
	case metrics.CategoryPorts:
		if darwin {
			return `netstat -an`
		}
		return `ss -tulnH 2>/dev/null || netstat -tuln 2>/dev/null`
	case metrics.CategoryPing:
		return cs.pingCommand(darwin)
	case metrics.CategorySystem:
		if darwin {
			return `hostname` + sep +
				`sw_vers -productName 2>/dev/null` + sep +
				`sw_vers -productVersion 2>/dev/null` + sep +
				`uname -r` + sep +
				`uname -m` + sep +
				`sysctl -n kern.boottime` + sep +
				`date +%s`
		}
		return `hostname` + sep +
			`uname -s` + sep +
			`uname -r` + sep +
			`uname -m` + sep +
			`cat /proc/uptime` + sep +
			`cat /etc/os-release 2>/dev/null || true`
	}
	return ""
}

func (cs CommandSet) pingCommand(darwin bool) string {
	// Linux -W takes seconds, macOS uses -t for the overall deadline.
	secs := int(math.Ceil(cs.PingTimeout.Seconds()))
	if secs < 1 {
		secs = 1
	}
	flag := "-W"
	if darwin {
		flag = "-t"
	}

	parts := make([]string, 0, len(cs.PingTargets))
	for _, target := range cs.PingTargets {
		parts = append(parts, fmt.Sprintf("ping -c 1 %s %d %s 2>&1", flag, secs, util.ShellQuote(target)))
	}
	return strings.Join(parts, sep)
}

// Timeout is how long category c may run given the base command timeout.
func (cs CommandSet) Timeout(c metrics.Category, base time.Duration) time.Duration {
	if c == metrics.CategoryPing {
		return base + time.Duration(len(cs.PingTargets))*cs.PingTimeout
	}
	return base
}

// Parse turns the output of Command(c) into a value for c.
func (cs CommandSet) Parse(c metrics.Category, output string) (any, error) {
	darwin := cs.Platform == PlatformDarwin
	switch c {
	case metrics.CategoryCPU:
		if darwin {
			s := parsers.Sections(output, 3)
			return parsers.ParseDarwinCPU(s[0], s[1], s[2])
		}
		s := parsers.Sections(output, 4)
		return parsers.ParseLinuxCPU(s[0], s[1], s[2], s[3])
	case metrics.CategoryMemory:
		if darwin {
			s := parsers.Sections(output, 3)
			return parsers.ParseDarwinMemory(s[0], s[1], s[2])
		}
		return parsers.ParseLinuxMemory(output)
	case metrics.CategoryDisks:
		return parsers.ParseDF(output)
	case metrics.CategoryNetwork:
		if darwin {
			return parsers.ParseDarwinNetwork(output)
		}
		return parsers.ParseLinuxNetwork(output)
	case metrics.CategoryPorts:
		return parsers.ParsePorts(output)
	case metrics.CategoryPing:
		return parsers.ParsePing(cs.PingTargets, parsers.Sections(output, len(cs.PingTargets)))
	case metrics.CategorySystem:
		if darwin {
			s := parsers.Sections(output, 7)
			return parsers.ParseDarwinSystem(s[0], s[1], s[2], s[3], s[4], s[5], s[6])
		}
		s := parsers.Sections(output, 6)
		return parsers.ParseLinuxSystem(s[0], s[1], s[2], s[3], s[4], s[5])
	}
	return nil, fmt.Errorf("unknown category %q", c)
}
