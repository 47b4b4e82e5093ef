package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fleetmon/fleetmon/internal/config"
	"github.com/fleetmon/fleetmon/internal/errors"
	"github.com/fleetmon/fleetmon/internal/ui"
	"github.com/spf13/cobra"
)

var (
	initForce  bool
	initGlobal bool
)

var initCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a default config file",
	Long: `Write a commented config file with every setting at its default.

Without a path the file goes to ./fleetmon.yaml, or with --global to
~/.config/fleetmon/config.yaml.

Examples:
  fleetmon init
  fleetmon init --global
  fleetmon init /etc/fleetmon.yaml --force`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := ""
		if len(args) == 1 {
			path = args[0]
		}
		target, err := initTarget(path, initGlobal)
		if err != nil {
			return err
		}
		return initCommand(cmd.OutOrStdout(), target, initForce)
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long: `Print the configuration fleetmon would run with: the config file merged
with defaults and FLEETMON_* environment overrides. Secrets are masked.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, path, err := config.LoadOrDefault(cfgFile)
		if err != nil {
			return err
		}
		return configCommand(cmd.OutOrStdout(), cfg, path)
	},
}

func init() {
	rootCmd.AddCommand(initCmd, configCmd)
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "overwrite an existing config")
	initCmd.Flags().BoolVar(&initGlobal, "global", false, "write the per-user config instead")
}

func initTarget(path string, global bool) (string, error) {
	if path != "" {
		return path, nil
	}
	if !global {
		return config.ConfigFileName, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.WrapWithCode(err, errors.ErrConfig,
			"Can't find your home directory", "Pass the config path explicitly")
	}
	return filepath.Join(home, config.GlobalConfigDir, config.GlobalConfigFile), nil
}

func initCommand(w io.Writer, path string, force bool) error {
	if err := config.WriteDefault(path, force); err != nil {
		return err
	}
	if machineMode {
		return WriteJSONSuccess(w, map[string]string{"path": path})
	}
	fmt.Fprintf(w, "%s wrote %s\n", ui.SymbolSuccess, path)
	fmt.Fprintln(w, "  Add servers to ~/.ssh/config or under servers:, then run 'fleetmon serve'.")
	return nil
}

const maskedSecret = "********"

func configCommand(w io.Writer, cfg *config.Config, path string) error {
	masked := *cfg
	if masked.SSH.FallbackPassword != "" {
		masked.SSH.FallbackPassword = maskedSecret
	}

	if machineMode {
		return WriteJSONSuccess(w, map[string]any{"path": path, "config": masked})
	}

	data, err := config.Render(&masked)
	if err != nil {
		return err
	}
	if path == "" {
		path = "(no file, defaults and environment only)"
	}
	fmt.Fprintf(w, "# %s\n", path)
	if _, err := w.Write(data); err != nil {
		return err
	}
	if masked.SSH.FallbackPassword != "" {
		fmt.Fprintln(w, "# ssh.fallback_password is set")
	}
	for _, s := range masked.Servers {
		fmt.Fprintf(w, "# server %s: %s\n", s.ID, s.Host)
	}
	return nil
}
