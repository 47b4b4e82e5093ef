package config

import "time"

// CurrentConfigVersion is the schema version for the config file.
// Increment when making breaking changes to the config structure.
const CurrentConfigVersion = 1

// Auth modes accepted in ServerEntry.Auth.
const (
	AuthKey      = "key"
	AuthPassword = "password"
)

// Config represents the complete fleetmon.yaml configuration file.
type Config struct {
	Version int           `yaml:"version" mapstructure:"version"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	SSH     SSHConfig     `yaml:"ssh" mapstructure:"ssh"`
	Monitor MonitorConfig `yaml:"monitor" mapstructure:"monitor"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`

	// Servers are monitored in addition to the hosts found in the SSH config.
	Servers []ServerEntry `yaml:"servers,omitempty" mapstructure:"servers"`
}

// ServerConfig controls the HTTP API listener.
type ServerConfig struct {
	Host string `yaml:"host" mapstructure:"host"`
	Port int    `yaml:"port" mapstructure:"port"`

	// ShutdownGrace bounds how long in-flight poll cycles may run after shutdown starts.
	ShutdownGrace time.Duration `yaml:"shutdown_grace" mapstructure:"shutdown_grace"`

	// ConnectRateLimit is the per-client request rate for the connect endpoint (req/s).
	ConnectRateLimit float64 `yaml:"connect_rate_limit" mapstructure:"connect_rate_limit"`
	ConnectBurst     int     `yaml:"connect_burst" mapstructure:"connect_burst"`
}

// SSHConfig controls how connections are discovered, opened, and kept.
type SSHConfig struct {
	// ConfigPath is the OpenSSH client config used as the server list source.
	ConfigPath string `yaml:"config_path" mapstructure:"config_path"`

	ConnectTimeout  time.Duration `yaml:"connect_timeout" mapstructure:"connect_timeout"`
	CommandTimeout  time.Duration `yaml:"command_timeout" mapstructure:"command_timeout"`
	LivenessTimeout time.Duration `yaml:"liveness_timeout" mapstructure:"liveness_timeout"`

	// IdleTimeout evicts pooled connections unused for longer than this. Zero disables reaping.
	IdleTimeout time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`

	StrictHostKeyChecking bool   `yaml:"strict_host_key_checking" mapstructure:"strict_host_key_checking"`
	KnownHostsPath        string `yaml:"known_hosts_path" mapstructure:"known_hosts_path"`

	// FallbackPassword is tried when a server has no usable key and no prompted secret.
	FallbackPassword string `yaml:"fallback_password,omitempty" mapstructure:"fallback_password"`
}

// MonitorConfig controls scheduling, retention, and collection.
type MonitorConfig struct {
	Interval       time.Duration `yaml:"interval" mapstructure:"interval"`
	Tick           time.Duration `yaml:"tick" mapstructure:"tick"`
	InitialStagger time.Duration `yaml:"initial_stagger" mapstructure:"initial_stagger"`
	HistorySize    int           `yaml:"history_size" mapstructure:"history_size"`
	JobHistory     int           `yaml:"job_history" mapstructure:"job_history"`

	// RetryThreshold is the failure count at which a server is flagged for manual
	// retry. Must be at least 1.
	RetryThreshold int `yaml:"retry_threshold" mapstructure:"retry_threshold"`

	// MaxAutoRetries stops automatic polling after this many consecutive failures.
	// Zero keeps polling forever.
	MaxAutoRetries int `yaml:"max_auto_retries" mapstructure:"max_auto_retries"`

	ParallelCollection bool          `yaml:"parallel_collection" mapstructure:"parallel_collection"`
	PingTargets        []string      `yaml:"ping_targets" mapstructure:"ping_targets"`
	PingTimeout        time.Duration `yaml:"ping_timeout" mapstructure:"ping_timeout"`

	// IncludeLocal adds the machine fleetmon runs on as a server named "local".
	IncludeLocal bool `yaml:"include_local" mapstructure:"include_local"`
}

// LogConfig controls log verbosity.
type LogConfig struct {
	Level string `yaml:"level" mapstructure:"level"`
}

// ServerEntry is a server declared directly in the config file.
type ServerEntry struct {
	ID        string        `yaml:"id" mapstructure:"id"`
	Name      string        `yaml:"name,omitempty" mapstructure:"name"`
	Host      string        `yaml:"host" mapstructure:"host"`
	Port      int           `yaml:"port,omitempty" mapstructure:"port"`
	User      string        `yaml:"user,omitempty" mapstructure:"user"`
	Auth      string        `yaml:"auth,omitempty" mapstructure:"auth"`
	KeyPath   string        `yaml:"key_path,omitempty" mapstructure:"key_path"`
	ProxyJump string        `yaml:"proxy_jump,omitempty" mapstructure:"proxy_jump"`
	Interval  time.Duration `yaml:"interval,omitempty" mapstructure:"interval"`
}

// DefaultPingTargets are pinged from every server when none are configured.
var DefaultPingTargets = []string{"8.8.8.8", "1.1.1.1", "google.com", "github.com"}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Version: CurrentConfigVersion,
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8080,
			ShutdownGrace:    10 * time.Second,
			ConnectRateLimit: 1,
			ConnectBurst:     5,
		},
		SSH: SSHConfig{
			ConfigPath:            "~/.ssh/config",
			ConnectTimeout:        10 * time.Second,
			CommandTimeout:        15 * time.Second,
			LivenessTimeout:       3 * time.Second,
			IdleTimeout:           10 * time.Minute,
			StrictHostKeyChecking: false,
			KnownHostsPath:        "~/.ssh/known_hosts",
		},
		Monitor: MonitorConfig{
			Interval:           30 * time.Second,
			Tick:               time.Second,
			InitialStagger:     2 * time.Second,
			HistorySize:        1000,
			JobHistory:         200,
			RetryThreshold:     3,
			MaxAutoRetries:     0,
			ParallelCollection: true,
			PingTargets:        append([]string(nil), DefaultPingTargets...),
			PingTimeout:        5 * time.Second,
			IncludeLocal:       true,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}
