package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/fleetmon/fleetmon/internal/errors"
	"github.com/spf13/viper"
)

const (
	// ConfigFileName is the config file looked up in the working directory.
	ConfigFileName = "fleetmon.yaml"
	// GlobalConfigDir is the directory for the per-user config.
	GlobalConfigDir = ".config/fleetmon"
	// GlobalConfigFile is the per-user config file name.
	GlobalConfigFile = "config.yaml"

	// EnvPrefix prefixes every environment override (FLEETMON_MONITOR_INTERVAL, ...).
	EnvPrefix = "FLEETMON"
)

// Short environment aliases that do not follow the SECTION_KEY pattern.
const (
	EnvSSHConfig        = "FLEETMON_SSH_CONFIG"
	EnvPort             = "FLEETMON_PORT"
	EnvFallbackPassword = "FLEETMON_FALLBACK_PASSWORD"
)

// Load reads config from path, layering defaults and environment overrides.
// An empty path loads defaults plus environment only.
func Load(path string) (*Config, error) {
	v := newViper()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if os.IsNotExist(err) {
				return nil, errors.WrapWithCode(err, errors.ErrConfig,
					"Config file not found",
					"Run 'fleetmon init' to create a config file, or specify one with --config")
			}
			return nil, errors.WrapWithCode(err, errors.ErrConfig,
				"Failed to read config file",
				"Check the file exists and is valid YAML")
		}
	}

	return parseConfig(v, path)
}

// Find locates the config file using the search order:
// 1. Explicit path (from --config flag)
// 2. fleetmon.yaml in the current directory
// 3. ~/.config/fleetmon/config.yaml
//
// Returns the path to the config file, or empty string if not found.
func Find(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			if os.IsNotExist(err) {
				return "", errors.WrapWithCode(err, errors.ErrConfig,
					"Specified config file not found: "+explicit,
					"Check the path is correct")
			}
			return "", errors.WrapWithCode(err, errors.ErrConfig,
				"Cannot access config file: "+explicit,
				"Check file permissions")
		}
		return explicit, nil
	}

	if cwd, err := os.Getwd(); err == nil {
		local := filepath.Join(cwd, ConfigFileName)
		if _, err := os.Stat(local); err == nil {
			return local, nil
		}
	}

	if home, err := os.UserHomeDir(); err == nil {
		global := filepath.Join(home, GlobalConfigDir, GlobalConfigFile)
		if _, err := os.Stat(global); err == nil {
			return global, nil
		}
	}

	return "", nil
}

// LoadOrDefault finds and loads the config file, falling back to defaults
// (plus environment) when none exists. It returns the path that was used.
func LoadOrDefault(explicit string) (*Config, string, error) {
	path, err := Find(explicit)
	if err != nil {
		return nil, "", err
	}
	cfg, err := Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// BindEnv with multiple names checks them in order.
	_ = v.BindEnv("ssh.config_path", EnvSSHConfig, "FLEETMON_SSH_CONFIG_PATH")
	_ = v.BindEnv("server.port", EnvPort, "FLEETMON_SERVER_PORT")
	_ = v.BindEnv("ssh.fallback_password", EnvFallbackPassword, "FLEETMON_SSH_FALLBACK_PASSWORD")
	return v
}

// parseConfig converts viper config to our Config struct.
func parseConfig(v *viper.Viper, path string) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		source := "the environment"
		if path != "" {
			source = path
		}
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			"Invalid config format",
			"Check the values in "+source)
	}

	cfg.SSH.ConfigPath = ExpandTilde(Expand(cfg.SSH.ConfigPath))
	cfg.SSH.KnownHostsPath = ExpandTilde(Expand(cfg.SSH.KnownHostsPath))
	for i := range cfg.Servers {
		cfg.Servers[i].KeyPath = ExpandTilde(Expand(cfg.Servers[i].KeyPath))
	}

	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("version", d.Version)

	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.shutdown_grace", d.Server.ShutdownGrace)
	v.SetDefault("server.connect_rate_limit", d.Server.ConnectRateLimit)
	v.SetDefault("server.connect_burst", d.Server.ConnectBurst)

	v.SetDefault("ssh.config_path", d.SSH.ConfigPath)
	v.SetDefault("ssh.connect_timeout", d.SSH.ConnectTimeout)
	v.SetDefault("ssh.command_timeout", d.SSH.CommandTimeout)
	v.SetDefault("ssh.liveness_timeout", d.SSH.LivenessTimeout)
	v.SetDefault("ssh.idle_timeout", d.SSH.IdleTimeout)
	v.SetDefault("ssh.strict_host_key_checking", d.SSH.StrictHostKeyChecking)
	v.SetDefault("ssh.known_hosts_path", d.SSH.KnownHostsPath)
	v.SetDefault("ssh.fallback_password", d.SSH.FallbackPassword)

	v.SetDefault("monitor.interval", d.Monitor.Interval)
	v.SetDefault("monitor.tick", d.Monitor.Tick)
	v.SetDefault("monitor.initial_stagger", d.Monitor.InitialStagger)
	v.SetDefault("monitor.history_size", d.Monitor.HistorySize)
	v.SetDefault("monitor.job_history", d.Monitor.JobHistory)
	v.SetDefault("monitor.retry_threshold", d.Monitor.RetryThreshold)
	v.SetDefault("monitor.max_auto_retries", d.Monitor.MaxAutoRetries)
	v.SetDefault("monitor.parallel_collection", d.Monitor.ParallelCollection)
	v.SetDefault("monitor.ping_targets", d.Monitor.PingTargets)
	v.SetDefault("monitor.ping_timeout", d.Monitor.PingTimeout)
	v.SetDefault("monitor.include_local", d.Monitor.IncludeLocal)

	v.SetDefault("log.level", d.Log.Level)
}
