package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fleetmon/fleetmon/internal/errors"
	"gopkg.in/yaml.v3"
)

// WriteDefault writes the default config to path. An existing file is only
// replaced when overwrite is set.
func WriteDefault(path string, overwrite bool) error {
	if _, err := os.Stat(path); err == nil && !overwrite {
		return errors.New(errors.ErrConfig,
			"Config file already exists: "+path,
			"Pass --force to overwrite it")
	}

	data, err := Render(DefaultConfig())
	if err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.WrapWithCode(err, errors.ErrConfig,
				"Cannot create config directory "+dir,
				"Check directory permissions")
		}
	}

	// 0600: the file may later hold a fallback password.
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			"Failed to write config file",
			"Check directory permissions")
	}
	return nil
}

// Render encodes cfg as commented YAML with human-readable durations.
func Render(cfg *Config) ([]byte, error) {
	doc := mapping(
		pair("version", intNode(cfg.Version), ""),
		pair("server", mapping(
			pair("host", strNode(cfg.Server.Host), "Address the HTTP API listens on"),
			pair("port", intNode(cfg.Server.Port), "Overridden by FLEETMON_PORT"),
			pair("shutdown_grace", durNode(cfg.Server.ShutdownGrace), ""),
			pair("connect_rate_limit", floatNode(cfg.Server.ConnectRateLimit), "Per-client requests/second on the connect endpoint"),
			pair("connect_burst", intNode(cfg.Server.ConnectBurst), ""),
		), ""),
		pair("ssh", mapping(
			pair("config_path", strNode(cfg.SSH.ConfigPath), "Server list source. Overridden by FLEETMON_SSH_CONFIG"),
			pair("connect_timeout", durNode(cfg.SSH.ConnectTimeout), ""),
			pair("command_timeout", durNode(cfg.SSH.CommandTimeout), ""),
			pair("liveness_timeout", durNode(cfg.SSH.LivenessTimeout), ""),
			pair("idle_timeout", durNode(cfg.SSH.IdleTimeout), "0 keeps idle connections open"),
			pair("strict_host_key_checking", boolNode(cfg.SSH.StrictHostKeyChecking), ""),
			pair("known_hosts_path", strNode(cfg.SSH.KnownHostsPath), ""),
		), "fallback_password is read from FLEETMON_FALLBACK_PASSWORD when not set here"),
		pair("monitor", mapping(
			pair("interval", durNode(cfg.Monitor.Interval), ""),
			pair("tick", durNode(cfg.Monitor.Tick), ""),
			pair("initial_stagger", durNode(cfg.Monitor.InitialStagger), ""),
			pair("history_size", intNode(cfg.Monitor.HistorySize), "Snapshots kept per server"),
			pair("job_history", intNode(cfg.Monitor.JobHistory), ""),
			pair("retry_threshold", intNode(cfg.Monitor.RetryThreshold), ""),
			pair("max_auto_retries", intNode(cfg.Monitor.MaxAutoRetries), "0 keeps polling failed servers forever"),
			pair("parallel_collection", boolNode(cfg.Monitor.ParallelCollection), ""),
			pair("ping_targets", seqNode(cfg.Monitor.PingTargets), ""),
			pair("ping_timeout", durNode(cfg.Monitor.PingTimeout), ""),
			pair("include_local", boolNode(cfg.Monitor.IncludeLocal), ""),
		), ""),
		pair("log", mapping(
			pair("level", strNode(cfg.Log.Level), "debug, info, warn or error"),
		), ""),
	)

	var buf strings.Builder
	buf.WriteString("# fleetmon configuration\n")
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(&yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{doc}}); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	encoder.Close()

	return []byte(buf.String()), nil
}

type kvPair struct {
	key   *yaml.Node
	value *yaml.Node
}

func pair(key string, value *yaml.Node, comment string) kvPair {
	k := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}
	if comment != "" {
		k.HeadComment = comment
	}
	return kvPair{key: k, value: value}
}

func mapping(pairs ...kvPair) *yaml.Node {
	n := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, p := range pairs {
		n.Content = append(n.Content, p.key, p.value)
	}
	return n
}

func scalar(tag, value string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: value}
}

func strNode(s string) *yaml.Node { return scalar("!!str", s) }
func intNode(i int) *yaml.Node { return scalar("!!int", strconv.Itoa(i)) }
func boolNode(b bool) *yaml.Node { return scalar("!!bool", strconv.FormatBool(b)) }
func durNode(d time.Duration) *yaml.Node { return scalar("!!str", d.String()) }

func floatNode(f float64) *yaml.Node {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return scalar("!!float", s)
}

func seqNode(items []string) *yaml.Node {
	n := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
	for _, s := range items {
		n.Content = append(n.Content, strNode(s))
	}
	return n
}
