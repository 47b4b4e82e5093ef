package exec

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/fleetmon/fleetmon/internal/errors"
)

// commandNotFoundPatterns are regex patterns to detect "command not found" errors
// from various shells. These require exit code 127.
var commandNotFoundPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)bash: (\S+): command not found`),
	regexp.MustCompile(`(?i)zsh: command not found: (\S+)`),
	regexp.MustCompile(`(?i)sh: \d+: (\S+): not found`),
	regexp.MustCompile(`(?i)-bash: (\S+): No such file or directory`),
	regexp.MustCompile(`(?i)(\S+): not found`),
	regexp.MustCompile(`(?i)(\S+): command not found`),
}

// IsCommandNotFound checks if the error output indicates a missing command.
// Returns the command name (if extractable) and whether it's a command-not-found error.
func IsCommandNotFound(stderr string, exitCode int) (string, bool) {
	if exitCode != 127 {
		return "", false
	}
	for _, pattern := range commandNotFoundPatterns {
		if matches := pattern.FindStringSubmatch(stderr); len(matches) > 1 {
			return matches[1], true
		}
	}
	return "", true
}

// CommandError describes a metric command that produced no usable output.
// host names the server in the message.
func CommandError(host, cmd, stderr string, exitCode int) error {
	if name, notFound := IsCommandNotFound(stderr, exitCode); notFound {
		if name == "" {
			name = firstWord(cmd)
		}
		return errors.New(errors.ErrCollect,
			fmt.Sprintf("'%s' not found in PATH on %s", name, host),
			fmt.Sprintf("Install '%s' on the host, or ignore this category for it", name))
	}

	detail := strings.TrimSpace(stderr)
	if i := strings.IndexByte(detail, '\n'); i >= 0 {
		detail = detail[:i]
	}
	if detail == "" {
		detail = "no output"
	}
	return errors.New(errors.ErrCollect,
		fmt.Sprintf("'%s' exited with code %d on %s: %s", firstWord(cmd), exitCode, host, detail),
		"Run the command by hand over SSH to see the full error")
}

func firstWord(cmd string) string {
	if fields := strings.Fields(cmd); len(fields) > 0 {
		return strings.TrimRight(fields[0], ";")
	}
	return "command"
}
