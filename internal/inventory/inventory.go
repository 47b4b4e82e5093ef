// Package inventory builds the list of monitored servers from the OpenSSH
// client config, the servers declared in fleetmon.yaml, and this machine.
package inventory

import (
	"fmt"
	"os"
	"time"

	"github.com/fleetmon/fleetmon/internal/config"
	"github.com/fleetmon/fleetmon/internal/errors"
	"github.com/fleetmon/fleetmon/internal/monitor"
	"github.com/fleetmon/fleetmon/pkg/sshutil"
)

// LocalID is the id of the built-in server for the machine fleetmon runs on.
const LocalID = "local"

// Source says where a server definition came from.
type Source string

const (
	SourceSSHConfig Source = "ssh_config"
	SourceConfig    Source = "config"
	SourceLocal     Source = "local"
)

// Entry is one discovered server plus where it was found.
type Entry struct {
	Server monitor.Server
	Source Source
}

// Inventory is the resolved server list, in discovery order.
type Inventory struct {
	Entries []Entry

	// Warnings are non-fatal problems found while loading, such as a config
	// server shadowing an ssh_config host.
	Warnings []string
}

// Servers returns the server definitions in order.
func (inv *Inventory) Servers() []monitor.Server {
	out := make([]monitor.Server, 0, len(inv.Entries))
	for _, e := range inv.Entries {
		out = append(out, e.Server)
	}
	return out
}

// Load resolves every server cfg describes. Hosts come from the SSH config
// first, then the config file (which replaces an ssh_config host of the
// same id), then the local server.
func Load(cfg *config.Config) (*Inventory, error) {
	hosts, err := sshutil.ParseSSHConfigFile(cfg.SSH.ConfigPath)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			fmt.Sprintf("Couldn't parse SSH config %s", cfg.SSH.ConfigPath),
			"Fix the file, or point ssh.config_path (FLEETMON_SSH_CONFIG) at another one")
	}

	inv := &Inventory{}
	index := make(map[string]int)
	add := func(e Entry) {
		if i, ok := index[e.Server.ID]; ok {
			inv.Warnings = append(inv.Warnings, fmt.Sprintf(
				"server %q from %s replaces the one from %s", e.Server.ID, e.Source, inv.Entries[i].Source))
			inv.Entries[i] = e
			return
		}
		index[e.Server.ID] = len(inv.Entries)
		inv.Entries = append(inv.Entries, e)
	}

	for _, h := range hosts {
		add(Entry{Server: FromSSHHost(h, cfg.Monitor.Interval), Source: SourceSSHConfig})
	}
	for _, se := range cfg.Servers {
		add(Entry{Server: FromConfig(se, cfg.Monitor.Interval), Source: SourceConfig})
	}

	if cfg.Monitor.IncludeLocal {
		if _, taken := index[LocalID]; taken {
			inv.Warnings = append(inv.Warnings,
				fmt.Sprintf("a server named %q already exists, the built-in local server is skipped", LocalID))
		} else {
			add(Entry{Server: Local(cfg.Monitor.Interval), Source: SourceLocal})
		}
	}

	return inv, nil
}

// FromSSHHost converts one ssh_config Host block. Unset fields default to
// the alias as hostname, port 22 and the current user. Hosts with a usable
// key authenticate with keys, the rest with a password.
func FromSSHHost(h sshutil.SSHHostEntry, interval time.Duration) monitor.Server {
	s := monitor.Server{
		ID:       h.Alias,
		Name:     h.Alias,
		Host:     h.Hostname,
		Port:     h.PortNumber(),
		User:     h.User,
		KeyPath:  h.IdentityFile,
		Auth:     monitor.AuthPassword,
		Interval: interval,
	}
	if s.Host == "" {
		s.Host = h.Alias
	}
	if s.User == "" {
		s.User = config.CurrentUser()
	}
	if h.HasIdentityFile() {
		s.Auth = monitor.AuthKey
	}
	if h.ProxyJump != "" {
		s.Jump = jumpHost(h.ProxyJump)
	}
	return s
}

// FromConfig converts a servers: entry from fleetmon.yaml.
func FromConfig(e config.ServerEntry, interval time.Duration) monitor.Server {
	s := monitor.Server{
		ID:       e.ID,
		Name:     e.Name,
		Host:     e.Host,
		Port:     e.Port,
		User:     e.User,
		KeyPath:  e.KeyPath,
		Auth:     monitor.AuthMode(e.Auth),
		Interval: e.Interval,
	}
	if s.Name == "" {
		s.Name = s.ID
	}
	if s.Port == 0 {
		s.Port = 22
	}
	if s.User == "" {
		s.User = config.CurrentUser()
	}
	if s.Auth == "" {
		s.Auth = monitor.AuthKey
		if s.KeyPath == "" && !hasDefaultKey() {
			s.Auth = monitor.AuthPassword
		}
	}
	if s.Interval <= 0 {
		s.Interval = interval
	}
	if e.ProxyJump != "" {
		s.Jump = jumpHost(e.ProxyJump)
	}
	return s
}

// Local returns the built-in server for this machine.
func Local(interval time.Duration) monitor.Server {
	name, err := os.Hostname()
	if err != nil || name == "" {
		name = LocalID
	}
	return monitor.Server{
		ID:       LocalID,
		Name:     name,
		Host:     "localhost",
		User:     config.CurrentUser(),
		Auth:     monitor.AuthKey,
		Interval: interval,
		Local:    true,
	}
}

func jumpHost(spec string) *monitor.JumpHost {
	user, host, port := sshutil.ParseJumpSpec(spec)
	return &monitor.JumpHost{Host: host, Port: port, User: user}
}

func hasDefaultKey() bool {
	for _, p := range sshutil.DefaultKeyPaths() {
		if _, err := os.Stat(p); err == nil {
			return true
		}
	}
	return false
}
