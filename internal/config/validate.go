package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/fleetmon/fleetmon/internal/errors"
)

// Validate checks the config for errors and returns structured error messages.
func Validate(cfg *Config) error {
	if cfg.Version > CurrentConfigVersion {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("This config is from the future (version %d, but fleetmon only knows up to %d)", cfg.Version, CurrentConfigVersion),
			"Upgrade fleetmon or lower the version field")
	}

	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("server.port %d is out of range", cfg.Server.Port),
			"Pick a port between 1 and 65535, e.g. 8080")
	}
	if cfg.Server.ConnectRateLimit <= 0 || cfg.Server.ConnectBurst < 1 {
		return errors.New(errors.ErrConfig,
			"server.connect_rate_limit and server.connect_burst must be positive",
			"Try connect_rate_limit: 1 and connect_burst: 5")
	}

	durations := []struct {
		key string
		val time.Duration
	}{
		{"ssh.connect_timeout", cfg.SSH.ConnectTimeout},
		{"ssh.command_timeout", cfg.SSH.CommandTimeout},
		{"ssh.liveness_timeout", cfg.SSH.LivenessTimeout},
		{"monitor.interval", cfg.Monitor.Interval},
		{"monitor.tick", cfg.Monitor.Tick},
		{"monitor.ping_timeout", cfg.Monitor.PingTimeout},
	}
	for _, d := range durations {
		if d.val <= 0 {
			return errors.New(errors.ErrConfig,
				fmt.Sprintf("%s must be a positive duration (got %s)", d.key, d.val),
				"Use Go duration syntax, e.g. 10s or 1m")
		}
	}
	if cfg.SSH.IdleTimeout < 0 || cfg.Monitor.InitialStagger < 0 || cfg.Server.ShutdownGrace < 0 {
		return errors.New(errors.ErrConfig,
			"ssh.idle_timeout, monitor.initial_stagger and server.shutdown_grace cannot be negative",
			"Use 0 to disable")
	}

	if cfg.Monitor.HistorySize < 1 {
		return errors.New(errors.ErrConfig,
			"monitor.history_size must be at least 1",
			"The default keeps 1000 snapshots per server")
	}
	if cfg.Monitor.JobHistory < 1 {
		return errors.New(errors.ErrConfig,
			"monitor.job_history must be at least 1",
			"The default keeps the last 200 poll jobs")
	}
	if cfg.Monitor.RetryThreshold < 1 {
		return errors.New(errors.ErrConfig,
			"monitor.retry_threshold must be at least 1",
			"The default flags a server for manual retry after 3 failures")
	}
	if cfg.Monitor.MaxAutoRetries < 0 {
		return errors.New(errors.ErrConfig,
			"monitor.max_auto_retries cannot be negative",
			"Use 0 to keep polling failed servers forever")
	}

	switch strings.ToLower(cfg.Log.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("Unknown log.level %q", cfg.Log.Level),
			"Use one of: debug, info, warn, error")
	}

	return validateServers(cfg.Servers)
}

func validateServers(entries []ServerEntry) error {
	seen := make(map[string]bool, len(entries))
	for i, e := range entries {
		if strings.TrimSpace(e.ID) == "" {
			return errors.New(errors.ErrConfig,
				fmt.Sprintf("servers[%d] has no id", i),
				"Give every server a unique id, e.g. id: web-1")
		}
		if seen[e.ID] {
			return errors.New(errors.ErrConfig,
				fmt.Sprintf("Duplicate server id %q", e.ID),
				"Server ids must be unique across the config file and the SSH config")
		}
		seen[e.ID] = true

		if strings.TrimSpace(e.Host) == "" {
			return errors.New(errors.ErrConfig,
				fmt.Sprintf("Server %q has no host", e.ID),
				"Set host to a hostname or IP address")
		}
		if e.Port < 0 || e.Port > 65535 {
			return errors.New(errors.ErrConfig,
				fmt.Sprintf("Server %q port %d is out of range", e.ID, e.Port),
				"Leave port empty for 22")
		}
		switch e.Auth {
		case "", AuthKey, AuthPassword:
		default:
			return errors.New(errors.ErrConfig,
				fmt.Sprintf("Server %q has unknown auth %q", e.ID, e.Auth),
				"Use auth: key or auth: password")
		}
		if e.Interval < 0 {
			return errors.New(errors.ErrConfig,
				fmt.Sprintf("Server %q interval cannot be negative", e.ID),
				"Leave interval empty to use monitor.interval")
		}
	}
	return nil
}
