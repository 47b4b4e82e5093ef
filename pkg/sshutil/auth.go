package sshutil

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/fleetmon/fleetmon/internal/errors"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
)

// DefaultKeyPaths returns the private keys tried when no IdentityFile is set.
func DefaultKeyPaths() []string {
	return []string{
		filepath.Join(homeDir(), ".ssh", "id_ed25519"),
		filepath.Join(homeDir(), ".ssh", "id_rsa"),
		filepath.Join(homeDir(), ".ssh", "id_ecdsa"),
	}
}

// authMethods builds the ordered auth methods for target. Keys come first so
// a password is only sent when key auth is unavailable or rejected.
// Also returns any keys that exist but are passphrase protected.
func authMethods(target Target) ([]ssh.AuthMethod, []string, error) {
	var methods []ssh.AuthMethod
	var encryptedKeys []string

	tryKeyFile := func(keyPath string) {
		keyAuth, err := keyFileAuth(keyPath)
		if err != nil {
			var encErr *EncryptedKeyError
			if stderrors.As(err, &encErr) {
				encryptedKeys = append(encryptedKeys, keyPath)
			}
			return
		}
		methods = append(methods, keyAuth)
	}

	if target.UseKeys {
		if agentAuth := sshAgentAuth(); agentAuth != nil {
			methods = append(methods, agentAuth)
		}
		if target.IdentityFile != "" {
			tryKeyFile(expandPath(target.IdentityFile))
		}
		for _, keyPath := range DefaultKeyPaths() {
			if keyPath == target.IdentityFile {
				continue
			}
			tryKeyFile(keyPath)
		}
	}

	if target.Password != "" {
		password := target.Password
		methods = append(methods,
			ssh.Password(password),
			ssh.KeyboardInteractive(func(user, instruction string, questions []string, echos []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = password
				}
				return answers, nil
			}),
		)
	}

	if len(methods) > 0 {
		return methods, encryptedKeys, nil
	}

	name := target.name()
	switch {
	case !target.UseKeys:
		return nil, nil, errors.New(errors.ErrAuth,
			fmt.Sprintf("Password required for '%s'", name),
			"Supply one with 'fleetmon connect "+name+"' or set FLEETMON_FALLBACK_PASSWORD")
	case len(encryptedKeys) > 0:
		return nil, encryptedKeys, errors.New(errors.ErrAuth,
			fmt.Sprintf("Found SSH key(s) for '%s' but they're encrypted: %s", name, strings.Join(encryptedKeys, ", ")),
			encryptedKeySuggestion(encryptedKeys))
	default:
		return nil, nil, errors.New(errors.ErrAuth,
			fmt.Sprintf("No SSH authentication methods available for '%s'", name),
			"Load a key into the agent (ssh-add) or supply a password with 'fleetmon connect "+name+"'")
	}
}

func encryptedKeySuggestion(keys []string) string {
	var sb strings.Builder
	sb.WriteString("Add your key(s) to the agent:\n")
	for _, key := range keys {
		if runtime.GOOS == "darwin" {
			sb.WriteString(fmt.Sprintf("  ssh-add --apple-use-keychain %s\n", key))
		} else {
			sb.WriteString(fmt.Sprintf("  ssh-add %s\n", key))
		}
	}
	sb.WriteString("\nNot sure which key? Check with: ssh -v <host>")
	return sb.String()
}

// agentConn holds the reusable SSH agent connection.
var (
	agentConn     net.Conn
	agentClient   agent.ExtendedAgent
	agentConnOnce sync.Once
)

// sshAgentAuth returns an auth method using the SSH agent if available.
// The agent connection is reused across connections.
// Returns nil if the agent has no keys loaded.
func sshAgentAuth() ssh.AuthMethod {
	socket := os.Getenv("SSH_AUTH_SOCK")
	if socket == "" {
		return nil
	}

	agentConnOnce.Do(func() {
		conn, err := net.Dial("unix", socket)
		if err != nil {
			return
		}
		agentConn = conn
		agentClient = agent.NewClient(conn)
	})

	if agentClient == nil {
		return nil
	}

	// An empty agent causes auth failures when placed before other methods.
	signers, err := agentClient.Signers()
	if err != nil || len(signers) == 0 {
		return nil
	}

	return ssh.PublicKeysCallback(agentClient.Signers)
}

// CloseAgent closes the SSH agent connection if one is open.
func CloseAgent() {
	if agentConn != nil {
		agentConn.Close()
	}
}

// keyFileAuth returns an auth method using a private key file.
// Returns EncryptedKeyError if the key requires a passphrase.
func keyFileAuth(keyPath string) (ssh.AuthMethod, error) {
	key, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, err
	}

	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		var missing *ssh.PassphraseMissingError
		if stderrors.As(err, &missing) ||
			strings.Contains(err.Error(), "encrypted") ||
			isEncryptedPEM(key) {
			return nil, &EncryptedKeyError{Path: keyPath}
		}
		return nil, err
	}

	return ssh.PublicKeys(signer), nil
}

// EncryptedKeyError is returned when an SSH key requires a passphrase.
type EncryptedKeyError struct {
	Path string
}

func (e *EncryptedKeyError) Error() string {
	return fmt.Sprintf("SSH key at %s is encrypted (passphrase protected)", e.Path)
}

// isEncryptedPEM checks if PEM data contains encryption markers.
func isEncryptedPEM(data []byte) bool {
	return bytes.Contains(data, []byte("ENCRYPTED"))
}

// AgentKeyCount dials the agent at socket and counts the keys it holds.
func AgentKeyCount(socket string) (int, error) {
	conn, err := net.Dial("unix", socket)
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	keys, err := agent.NewClient(conn).List()
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}
