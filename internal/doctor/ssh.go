package doctor

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fleetmon/fleetmon/internal/util"
	"github.com/fleetmon/fleetmon/pkg/sshutil"
)

// SSHKeyCheck verifies a default SSH key exists.
type SSHKeyCheck struct {
	// KeyPaths overrides the default private key locations.
	KeyPaths []string
}

func (c *SSHKeyCheck) Name() string     { return "ssh_key" }
func (c *SSHKeyCheck) Category() string { return "SSH" }

func (c *SSHKeyCheck) paths() []string {
	if c.KeyPaths != nil {
		return c.KeyPaths
	}
	return sshutil.DefaultKeyPaths()
}

func (c *SSHKeyCheck) Run() CheckResult {
	for _, keyPath := range c.paths() {
		if _, err := os.Stat(keyPath); err == nil {
			return result(c, StatusPass, "SSH key found: "+keyPath, "")
		}
	}
	return result(c, StatusWarn, "No default SSH key found",
		"Key-auth servers need one: ssh-keygen -t ed25519, or set key_path per server")
}

// SSHKeyPermissionsCheck flags private keys readable by group or others.
type SSHKeyPermissionsCheck struct {
	KeyPaths []string
}

func (c *SSHKeyPermissionsCheck) Name() string     { return "ssh_key_permissions" }
func (c *SSHKeyPermissionsCheck) Category() string { return "SSH" }

func (c *SSHKeyPermissionsCheck) Run() CheckResult {
	paths := c.KeyPaths
	if paths == nil {
		paths = sshutil.DefaultKeyPaths()
	}

	var badPerms []string
	found := false
	for _, keyPath := range paths {
		info, err := os.Stat(keyPath)
		if err != nil {
			continue
		}
		found = true
		if info.Mode().Perm()&0o077 != 0 {
			badPerms = append(badPerms, filepath.Base(keyPath))
		}
	}

	switch {
	case !found:
		return result(c, StatusPass, "No private keys to check", "")
	case len(badPerms) > 0:
		return result(c, StatusWarn,
			"Insecure permissions on: "+strings.Join(badPerms, ", "),
			"Fix: chmod 600 ~/.ssh/<keyfile>")
	}
	return result(c, StatusPass, "SSH key permissions OK", "")
}

// SSHAgentCheck verifies an SSH agent is reachable and holds keys.
type SSHAgentCheck struct {
	// Socket overrides SSH_AUTH_SOCK.
	Socket string
}

func (c *SSHAgentCheck) Name() string     { return "ssh_agent" }
func (c *SSHAgentCheck) Category() string { return "SSH" }

func (c *SSHAgentCheck) Run() CheckResult {
	socket := c.Socket
	if socket == "" {
		socket = os.Getenv("SSH_AUTH_SOCK")
	}
	if socket == "" {
		return result(c, StatusWarn, "SSH agent not running",
			"Optional, but passphrase-protected keys need it: eval $(ssh-agent) && ssh-add")
	}

	n, err := sshutil.AgentKeyCount(socket)
	if err != nil {
		return result(c, StatusWarn, fmt.Sprintf("SSH agent not reachable: %v", err),
			"Check SSH_AUTH_SOCK points at a running agent")
	}
	if n == 0 {
		return result(c, StatusWarn, "SSH agent running but no keys loaded", "Add a key with: ssh-add")
	}
	return result(c, StatusPass, "SSH agent running with "+util.Count(n, "key", "keys")+" loaded", "")
}

// KnownHostsCheck matters only with strict host key checking, when every
// server must already be in known_hosts.
type KnownHostsCheck struct {
	Strict bool
	Path   string
}

func (c *KnownHostsCheck) Name() string     { return "known_hosts" }
func (c *KnownHostsCheck) Category() string { return "SSH" }

func (c *KnownHostsCheck) Run() CheckResult {
	if !c.Strict {
		return result(c, StatusPass, "Host key checking is off", "")
	}
	info, err := os.Stat(c.Path)
	if err != nil {
		return result(c, StatusFail, "known_hosts not found: "+c.Path,
			"Connect to each server once with ssh, or turn off ssh.strict_host_key_checking")
	}
	if info.Size() == 0 {
		return result(c, StatusWarn, "known_hosts is empty: "+c.Path,
			"Every server will be rejected until its key is added")
	}
	return result(c, StatusPass, "known_hosts: "+c.Path, "")
}
