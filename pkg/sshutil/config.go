package sshutil

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/kevinburke/ssh_config"
)

// matchWarningOnce ensures the Match directive warning is only shown once per process.
var matchWarningOnce sync.Once

// SSHHostEntry represents a parsed host entry from SSH config.
type SSHHostEntry struct {
	Alias        string // The Host pattern (alias)
	Hostname     string // The HostName value (actual host to connect to)
	User         string // The User value
	Port         string // The Port value
	IdentityFile string // The IdentityFile value
	ProxyJump    string // The ProxyJump value, first hop only
}

// Description returns a user-friendly description of the host.
func (h SSHHostEntry) Description() string {
	parts := []string{}

	if h.Hostname != "" && h.Hostname != h.Alias {
		parts = append(parts, h.Hostname)
	}
	if h.User != "" {
		parts = append(parts, "user: "+h.User)
	}
	if h.Port != "" && h.Port != "22" {
		parts = append(parts, "port: "+h.Port)
	}
	if h.ProxyJump != "" {
		parts = append(parts, "via: "+h.ProxyJump)
	}

	if len(parts) == 0 {
		return h.Alias
	}
	return strings.Join(parts, ", ")
}

// PortNumber returns the configured port, or 22.
func (h SSHHostEntry) PortNumber() int {
	if p, err := strconv.Atoi(h.Port); err == nil && p > 0 {
		return p
	}
	return 22
}

// ParseSSHConfigFile parses the specified SSH config file and returns the
// concrete host entries (wildcard patterns are skipped), in file order.
// A missing file yields no entries and no error.
func ParseSSHConfigFile(configPath string) ([]SSHHostEntry, error) {
	content, matchLine, err := preprocessSSHConfig(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	if matchLine > 0 {
		matchWarningOnce.Do(func() {
			emitWarning(fmt.Sprintf(
				"%s has a Match block at line %d; hosts defined after it are ignored. "+
					"Move them above the Match block to monitor them.",
				configPath, matchLine))
		})
	}

	cfg, err := ssh_config.Decode(bytes.NewReader(content))
	if err != nil {
		return nil, err
	}

	var hosts []SSHHostEntry
	seen := make(map[string]bool)

	for _, host := range cfg.Hosts {
		for _, pattern := range host.Patterns {
			alias := pattern.String()

			if strings.ContainsAny(alias, "*?!") {
				continue
			}
			if seen[alias] {
				continue
			}
			seen[alias] = true

			entry := SSHHostEntry{Alias: alias}

			if hostname, _ := cfg.Get(alias, "HostName"); hostname != "" {
				entry.Hostname = hostname
			}
			if user, _ := cfg.Get(alias, "User"); user != "" {
				entry.User = user
			}
			if port, _ := cfg.Get(alias, "Port"); port != "" {
				entry.Port = port
			}
			if identity, _ := cfg.Get(alias, "IdentityFile"); identity != "" {
				entry.IdentityFile = expandPath(identity)
			}
			if jump, _ := cfg.Get(alias, "ProxyJump"); jump != "" && !strings.EqualFold(jump, "none") {
				// Multi-hop chains are not supported; take the first hop.
				entry.ProxyJump = strings.TrimSpace(strings.Split(jump, ",")[0])
			}

			hosts = append(hosts, entry)
		}
	}

	return hosts, nil
}

// HasIdentityFile returns true if the host has an existing IdentityFile
// or if a default key exists in ~/.ssh/
func (h SSHHostEntry) HasIdentityFile() bool {
	if h.IdentityFile != "" {
		if _, err := os.Stat(h.IdentityFile); err == nil {
			return true
		}
	}

	for _, key := range DefaultKeyPaths() {
		if _, err := os.Stat(key); err == nil {
			return true
		}
	}

	return false
}

// ParseJumpSpec splits a ProxyJump value of the form [user@]host[:port].
func ParseJumpSpec(spec string) (user, host string, port int) {
	port = 22
	host = spec
	if at := strings.LastIndex(host, "@"); at != -1 {
		user = host[:at]
		host = host[at+1:]
	}
	if colon := strings.LastIndex(host, ":"); colon != -1 && !strings.Contains(host[:colon], ":") {
		if p, err := strconv.Atoi(host[colon+1:]); err == nil {
			port = p
			host = host[:colon]
		}
	}
	return user, host, port
}

// preprocessSSHConfig reads the SSH config and returns content up to the first Match directive.
// The ssh_config library doesn't support Match, so later content is dropped.
// Also returns the line number where Match was found (0 if not found).
func preprocessSSHConfig(configPath string) ([]byte, int, error) {
	content, err := os.ReadFile(configPath)
	if err != nil {
		return nil, 0, err
	}

	lines := strings.Split(string(content), "\n")
	var result []string
	matchLine := 0

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(strings.ToLower(trimmed), "match ") {
			matchLine = i + 1
			break
		}
		result = append(result, line)
	}

	return []byte(strings.Join(result, "\n")), matchLine, nil
}
