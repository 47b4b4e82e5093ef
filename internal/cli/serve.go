package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fleetmon/fleetmon/internal/api"
	"github.com/fleetmon/fleetmon/internal/config"
	"github.com/fleetmon/fleetmon/internal/errors"
	"github.com/fleetmon/fleetmon/internal/inventory"
	"github.com/fleetmon/fleetmon/internal/logger"
	"github.com/fleetmon/fleetmon/internal/monitor"
	"github.com/fleetmon/fleetmon/internal/ui"
	"github.com/fleetmon/fleetmon/internal/util"
	"github.com/fleetmon/fleetmon/pkg/sshutil"
	"github.com/spf13/cobra"
)

var (
	serveHost string
	servePort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the monitor and its HTTP API",
	Long: `Start polling every configured server and serve the results over HTTP.

The server runs until interrupted. On SIGINT or SIGTERM in-flight polls get
server.shutdown_grace to finish, then every SSH connection is closed.

Examples:
  fleetmon serve
  fleetmon serve --port 9090
  FLEETMON_SSH_CONFIG=~/work/ssh_config fleetmon serve`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serveCommand(ctx, cmd.OutOrStdout(), serveFlags{
			ConfigPath: cfgFile,
			Host:       serveHost,
			Port:       servePort,
		})
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveHost, "host", "", "listen host (overrides server.host)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "listen port (overrides server.port)")
}

type serveFlags struct {
	ConfigPath string
	Host       string
	Port       int
}

// fleet is everything serve wires together before it starts running.
type fleet struct {
	cfg     *config.Config
	path    string
	inv     *inventory.Inventory
	monitor *monitor.Monitor
	api     *api.Server
	log     logger.Logger
}

// buildFleet loads the configuration and inventory and constructs the
// monitor and API server without starting either.
func buildFleet(flags serveFlags, dialer sshutil.Dialer) (*fleet, error) {
	cfg, path, err := config.LoadOrDefault(flags.ConfigPath)
	if err != nil {
		return nil, err
	}
	if flags.Host != "" {
		cfg.Server.Host = flags.Host
	}
	if flags.Port > 0 {
		cfg.Server.Port = flags.Port
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	log := logger.New("fleetmon", logger.ParseLevel(cfg.Log.Level))
	logger.SetDefault(log)

	inv, err := inventory.Load(cfg)
	if err != nil {
		return nil, err
	}
	for _, w := range inv.Warnings {
		log.Warn("%s", w)
	}
	if len(inv.Entries) == 0 {
		return nil, errors.New(errors.ErrConfig,
			"No servers to monitor",
			"Add hosts to "+cfg.SSH.ConfigPath+", list them under servers: in the config, or set monitor.include_local")
	}

	if dialer == nil {
		dialer = sshutil.NewNetDialer(sshutil.DialOptions{
			Timeout:               cfg.SSH.ConnectTimeout,
			StrictHostKeyChecking: cfg.SSH.StrictHostKeyChecking,
			KnownHostsPath:        cfg.SSH.KnownHostsPath,
		})
	}

	mon, err := monitor.New(inv.Servers(), dialer, monitorOptions(cfg), logger.Named(log, "monitor"))
	if err != nil {
		return nil, err
	}

	srv := api.New(mon, cfg, api.Options{Version: version, ConfigPath: path}, logger.Named(log, "api"))
	return &fleet{cfg: cfg, path: path, inv: inv, monitor: mon, api: srv, log: log}, nil
}

// monitorOptions maps the config file onto the monitor's knobs.
func monitorOptions(cfg *config.Config) monitor.Options {
	return monitor.Options{
		Tick:           cfg.Monitor.Tick,
		InitialStagger: cfg.Monitor.InitialStagger,
		IdleTimeout:    cfg.SSH.IdleTimeout,
		ShutdownGrace:  cfg.Server.ShutdownGrace,
		HistorySize:    cfg.Monitor.HistorySize,
		JobHistory:     cfg.Monitor.JobHistory,
		Policy: monitor.Policy{
			RetryThreshold: cfg.Monitor.RetryThreshold,
			MaxAutoRetries: cfg.Monitor.MaxAutoRetries,
		},
		Pool: monitor.PoolOptions{
			LivenessTimeout:  cfg.SSH.LivenessTimeout,
			CommandTimeout:   cfg.SSH.CommandTimeout,
			FallbackPassword: cfg.SSH.FallbackPassword,
		},
		Collector: monitor.CollectorOptions{
			CommandTimeout: cfg.SSH.CommandTimeout,
			PingTargets:    cfg.Monitor.PingTargets,
			PingTimeout:    cfg.Monitor.PingTimeout,
			Parallel:       cfg.Monitor.ParallelCollection,
		},
	}
}

func serveCommand(ctx context.Context, w io.Writer, flags serveFlags) error {
	f, err := buildFleet(flags, nil)
	if err != nil {
		return err
	}
	defer sshutil.CloseAgent()

	if !machineMode {
		ui.PrintHeader(w, serveBanner(f))
	}
	return f.run(ctx)
}

func serveBanner(f *fleet) ui.HeaderInfo {
	configPath := f.path
	if configPath == "" {
		configPath = "(defaults)"
	}
	return ui.HeaderInfo{
		Version: formatVersion(version),
		Tagline: "agentless fleet monitoring over SSH",
		Details: [][2]string{
			{"listen", "http://" + f.api.Addr()},
			{"servers", util.Count(len(f.inv.Entries), "server", "servers")},
			{"interval", f.cfg.Monitor.Interval.String()},
			{"config", configPath},
		},
	}
}

// run drives the monitor and the API until ctx ends or either one fails,
// then stops both.
func (f *fleet) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	monErr := make(chan error, 1)
	go func() {
		monErr <- f.monitor.Run(ctx)
	}()

	apiErr := f.api.ListenAndServe(ctx)
	cancel()
	err := <-monErr

	if apiErr != nil {
		return apiErr
	}
	if err != nil {
		return fmt.Errorf("monitor stopped: %w", err)
	}
	f.log.Info("shutdown complete")
	return nil
}
