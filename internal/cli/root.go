package cli

import (
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/fleetmon/fleetmon/internal/client"
	"github.com/fleetmon/fleetmon/internal/config"
	"github.com/fleetmon/fleetmon/internal/ui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

// Global flags
var (
	cfgFile    string
	serverAddr string
	noColor    bool
)

// settings resolves flag values that can also come from the environment.
var settings = viper.New()

var rootCmd = &cobra.Command{
	Use:   "fleetmon",
	Short: "Agentless SSH fleet monitoring",
	Long: `fleetmon polls your servers over SSH and serves their health over HTTP.

Servers come from ~/.ssh/config and the servers: list in fleetmon.yaml.
Nothing is installed on the monitored hosts.

Run 'fleetmon serve' to start the monitor, then use 'fleetmon status',
'fleetmon watch' or the HTTP API to look at the fleet.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noColor || os.Getenv("NO_COLOR") != "" {
			ui.DisableColors()
		}
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default: ./fleetmon.yaml, then ~/.config/fleetmon/config.yaml)")
	pf.StringVar(&serverAddr, "server", "", "address of a running fleetmon server (env FLEETMON_SERVER)")
	pf.BoolVar(&machineMode, "json", false, "machine-readable JSON output")
	pf.BoolVar(&noColor, "no-color", false, "disable colored output")

	settings.SetEnvPrefix(config.EnvPrefix)
	_ = settings.BindEnv("server")
	_ = settings.BindPFlag("server", pf.Lookup("server"))
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(reportError(os.Stdout, os.Stderr, err))
	}
}

// reportError prints err for a human or, in --json mode, as an envelope on
// stdout. It returns the process exit code.
func reportError(stdout, stderr io.Writer, err error) int {
	if machineMode {
		_ = WriteJSONFromError(stdout, err)
		return 1
	}

	if isUnknownCommandError(err) {
		fmt.Fprintln(stderr, err.Error())
		if name := extractUnknownCommand(err); name != "" {
			if suggestions := rootCmd.SuggestionsFor(name); len(suggestions) > 0 {
				fmt.Fprintf(stderr, "\nDid you mean %q?\n", suggestions[0])
			}
		}
		fmt.Fprintln(stderr, "Run 'fleetmon --help' for usage.")
		return 2
	}

	fmt.Fprintln(stderr, strings.TrimRight(err.Error(), "\n"))
	return 1
}

func isUnknownCommandError(err error) bool {
	msg := err.Error()
	return strings.HasPrefix(msg, "unknown command") || strings.HasPrefix(msg, "unknown flag") ||
		strings.HasPrefix(msg, "unknown shorthand flag")
}

// extractUnknownCommand pulls foo out of `unknown command "foo" for "fleetmon"`.
func extractUnknownCommand(err error) string {
	msg := err.Error()
	start := strings.Index(msg, `"`)
	if start == -1 {
		return ""
	}
	end := strings.Index(msg[start+1:], `"`)
	if end == -1 {
		return ""
	}
	return msg[start+1 : start+1+end]
}

// resolveServerAddr picks the API address client commands talk to: --server,
// then FLEETMON_SERVER, then the listen address in the config file. A
// wildcard listen host is reached through loopback.
func resolveServerAddr() (string, error) {
	if addr := settings.GetString("server"); addr != "" {
		return addr, nil
	}

	cfg, _, err := config.LoadOrDefault(cfgFile)
	if err != nil {
		return "", err
	}
	return listenToDialAddr(cfg.Server.Host, cfg.Server.Port), nil
}

func listenToDialAddr(host string, port int) string {
	switch host {
	case "", "0.0.0.0", "::", "[::]":
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

func newClient() (*client.Client, error) {
	addr, err := resolveServerAddr()
	if err != nil {
		return nil, err
	}
	return client.New(addr)
}

func isInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}
