package cli

import (
	"bytes"
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/fleetmon/fleetmon/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsUnknownCommandError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "unknown command error",
			err:  stderrors.New(`unknown command "foo" for "fleetmon"`),
			want: true,
		},
		{
			name: "unknown flag error",
			err:  stderrors.New(`unknown flag: --foo`),
			want: true,
		},
		{
			name: "unknown shorthand flag",
			err:  stderrors.New(`unknown shorthand flag: 'x' in -x`),
			want: true,
		},
		{
			name: "other error",
			err:  stderrors.New("connection failed"),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isUnknownCommandError(tt.err))
		})
	}
}

func TestExtractUnknownCommand(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "standard cobra format",
			err:  stderrors.New(`unknown command "stauts" for "fleetmon"`),
			want: "stauts",
		},
		{
			name: "command with hyphen",
			err:  stderrors.New(`unknown command "cancel-secrt" for "fleetmon"`),
			want: "cancel-secrt",
		},
		{
			name: "no quotes returns empty",
			err:  stderrors.New("unknown command foo"),
			want: "",
		},
		{
			name: "single quote returns empty",
			err:  stderrors.New(`unknown command "foo`),
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractUnknownCommand(tt.err))
		})
	}
}

func TestReportError(t *testing.T) {
	t.Run("structured error goes to stderr", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		code := reportError(&stdout, &stderr, errors.New(errors.ErrNotFound, "Server \"x\" not found", "Run 'fleetmon hosts'"))

		assert.Equal(t, 1, code)
		assert.Empty(t, stdout.String())
		assert.Contains(t, stderr.String(), `Server "x" not found`)
		assert.Contains(t, stderr.String(), "fleetmon hosts")
	})

	t.Run("unknown command suggests a match", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		code := reportError(&stdout, &stderr, stderrors.New(`unknown command "stauts" for "fleetmon"`))

		assert.Equal(t, 2, code)
		assert.Contains(t, stderr.String(), `Did you mean "status"?`)
		assert.Contains(t, stderr.String(), "fleetmon --help")
	})

	t.Run("json mode writes an envelope to stdout", func(t *testing.T) {
		withMachineMode(t)
		var stdout, stderr bytes.Buffer
		code := reportError(&stdout, &stderr, errors.New(errors.ErrAuth, "bad password", "try again"))

		assert.Equal(t, 1, code)
		assert.Empty(t, stderr.String())
		env := decodeEnvelope(t, stdout.Bytes(), nil)
		assert.False(t, env.Success)
		require.NotNil(t, env.Error)
		assert.Equal(t, errors.ErrAuth, env.Error.Code)
	})
}

func TestListenToDialAddr(t *testing.T) {
	tests := []struct {
		host string
		port int
		want string
	}{
		{"0.0.0.0", 8080, "127.0.0.1:8080"},
		{"", 9000, "127.0.0.1:9000"},
		{"::", 8080, "127.0.0.1:8080"},
		{"10.0.0.5", 8080, "10.0.0.5:8080"},
		{"fe80::1", 8080, "[fe80::1]:8080"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, listenToDialAddr(tt.host, tt.port))
		})
	}
}

func TestResolveServerAddr(t *testing.T) {
	t.Run("environment wins", func(t *testing.T) {
		t.Setenv("FLEETMON_SERVER", "http://monitor.lan:9000")
		addr, err := resolveServerAddr()
		require.NoError(t, err)
		assert.Equal(t, "http://monitor.lan:9000", addr)
	})

	t.Run("falls back to the config listen address", func(t *testing.T) {
		t.Setenv("FLEETMON_SERVER", "")
		path := filepath.Join(t.TempDir(), "fleetmon.yaml")
		require.NoError(t, os.WriteFile(path, []byte("server:\n  host: 0.0.0.0\n  port: 9191\n"), 0o600))

		prev := cfgFile
		cfgFile = path
		t.Cleanup(func() { cfgFile = prev })

		addr, err := resolveServerAddr()
		require.NoError(t, err)
		assert.Equal(t, "127.0.0.1:9191", addr)
	})
}

func TestRootRegistersCommands(t *testing.T) {
	want := []string{"serve", "status", "connect", "cancel-secret", "pause", "resume", "jobs", "pool", "watch", "hosts", "init", "config", "doctor", "version", "completion"}
	for _, name := range want {
		cmd, _, err := rootCmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}
}
