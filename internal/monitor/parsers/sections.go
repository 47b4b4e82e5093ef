// Package parsers turns raw command output from Linux and macOS hosts into
// metric values. Every function here is pure: no I/O, no clocks.
package parsers

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fleetmon/fleetmon/internal/monitor/metrics"
)

// Separator is echoed on its own line between the parts of a batched command.
const Separator = "---"

// Sections splits batched output on Separator lines and always returns n
// parts, padding with empty strings when the output was cut short.
func Sections(output string, n int) []string {
	parts := make([]string, 0, n)
	var current []string
	for _, line := range strings.Split(output, "\n") {
		if strings.TrimSpace(line) == Separator {
			parts = append(parts, strings.Join(current, "\n"))
			current = nil
			continue
		}
		current = append(current, line)
	}
	parts = append(parts, strings.Join(current, "\n"))

	for len(parts) < n {
		parts = append(parts, "")
	}
	return parts[:n]
}

// noData wraps metrics.ErrNoData with what was missing.
func noData(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), metrics.ErrNoData)
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}

func parseUint(s string) (uint64, error) {
	return strconv.ParseUint(strings.TrimSpace(s), 10, 64)
}
