package sshutil

import (
	stderrors "errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// hostKeyCallbackFor verifies against known_hosts when strict checking is on
// and accepts any key otherwise.
func hostKeyCallbackFor(opts DialOptions) (ssh.HostKeyCallback, error) {
	if !opts.StrictHostKeyChecking {
		return ssh.InsecureIgnoreHostKey(), nil //nolint:gosec // disabled in config
	}
	path := opts.KnownHostsPath
	if path == "" {
		path = filepath.Join(homeDir(), ".ssh", "known_hosts")
	}
	return knownHostsCallback(expandPath(path))
}

// HostKeyError is a host key rejected under strict checking, either because
// the host is not in known_hosts or because its key changed.
type HostKeyError struct {
	Host       string
	Received   string
	KnownHosts string
	// Want lists the key types on file. Empty means the host is unknown.
	Want []string
}

func (e *HostKeyError) Error() string {
	if len(e.Want) == 0 {
		return fmt.Sprintf("%s is not in %s", e.Host, e.KnownHosts)
	}
	return fmt.Sprintf("host key for %s changed: known %s, server sent %s",
		e.Host, strings.Join(e.Want, ", "), e.Received)
}

// Suggestion names the command that resolves the rejection.
func (e *HostKeyError) Suggestion() string {
	host := e.Host
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if len(e.Want) == 0 {
		return fmt.Sprintf("Add it with: ssh-keyscan %s >> %s", host, e.KnownHosts)
	}
	return fmt.Sprintf("If the server was rebuilt, drop the old key with: ssh-keygen -R %s\n"+
		"Otherwise treat this as a possible man-in-the-middle and investigate first", host)
}

// knownHostsCallback requires the file to exist: with strict checking an
// empty file would reject every server.
func knownHostsCallback(path string) (ssh.HostKeyCallback, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("strict host key checking needs %s: %w", path, err)
	}
	callback, err := knownhosts.New(path)
	if err != nil {
		return nil, err
	}

	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		err := callback(hostname, remote, key)
		var keyErr *knownhosts.KeyError
		if err == nil || !stderrors.As(err, &keyErr) {
			return err
		}
		hkErr := &HostKeyError{Host: hostname, Received: key.Type(), KnownHosts: path}
		for _, k := range keyErr.Want {
			hkErr.Want = append(hkErr.Want, k.Key.Type())
		}
		return hkErr
	}, nil
}
