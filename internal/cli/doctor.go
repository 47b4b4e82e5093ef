package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/fleetmon/fleetmon/internal/config"
	"github.com/fleetmon/fleetmon/internal/doctor"
	"github.com/fleetmon/fleetmon/internal/errors"
	"github.com/fleetmon/fleetmon/internal/inventory"
	"github.com/fleetmon/fleetmon/internal/ui"
	"github.com/spf13/cobra"
)

var (
	doctorOffline bool
	doctorTimeout time.Duration
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check the setup serve depends on",
	Long: `Run diagnostics on the config file, SSH keys and agent, the server
inventory and the API port, then probe every server's SSH port.

Exits non-zero when any check fails.

Examples:
  fleetmon doctor
  fleetmon doctor --offline
  fleetmon doctor --json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return doctorCommand(cmd.OutOrStdout(), doctorOptions{
			ConfigPath: cfgFile,
			Probe:      !doctorOffline,
			Timeout:    doctorTimeout,
		})
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.Flags().BoolVar(&doctorOffline, "offline", false, "skip probing servers")
	doctorCmd.Flags().DurationVar(&doctorTimeout, "timeout", 3*time.Second, "per-server probe timeout")
}

type doctorOptions struct {
	ConfigPath string
	Probe      bool
	Timeout    time.Duration
}

// DoctorOutput is the --json shape of the doctor report.
type DoctorOutput struct {
	Categories []DoctorCategory `json:"categories"`
	Pass       int              `json:"pass"`
	Warn       int              `json:"warn"`
	Fail       int              `json:"fail"`
	AllClear   bool             `json:"all_clear"`
}

// DoctorCategory groups results under one heading.
type DoctorCategory struct {
	Name    string               `json:"name"`
	Results []doctor.CheckResult `json:"results"`
}

var doctorCategoryOrder = []string{"CONFIG", "SSH", "SERVERS"}

func doctorCommand(w io.Writer, opts doctorOptions) error {
	results := doctor.RunAll(collectChecks(opts))

	if machineMode {
		return WriteJSONSuccess(w, doctorOutput(results))
	}
	renderDoctor(w, results)

	if doctor.HasFailures(results) {
		return errors.New(errors.ErrConfig, doctor.Summary(results), "Fix the failing checks above and run 'fleetmon doctor' again")
	}
	return nil
}

// collectChecks builds the check list. A config that won't load still gets
// the SSH checks; the config check reports the load error.
func collectChecks(opts doctorOptions) []doctor.Check {
	checks := []doctor.Check{&doctor.ConfigCheck{ConfigPath: opts.ConfigPath}}

	cfg, _, err := config.LoadOrDefault(opts.ConfigPath)
	if err != nil || config.Validate(cfg) != nil {
		return append(checks, &doctor.SSHKeyCheck{}, &doctor.SSHKeyPermissionsCheck{}, &doctor.SSHAgentCheck{})
	}

	checks = append(checks,
		&doctor.PortCheck{Host: cfg.Server.Host, Port: cfg.Server.Port},
		&doctor.SSHKeyCheck{},
		&doctor.SSHKeyPermissionsCheck{},
		&doctor.SSHAgentCheck{},
		&doctor.KnownHostsCheck{Strict: cfg.SSH.StrictHostKeyChecking, Path: cfg.SSH.KnownHostsPath},
	)

	inv, err := inventory.Load(cfg)
	if err != nil {
		return append(checks, loadFailure{err: err})
	}
	checks = append(checks, &doctor.InventoryCheck{Inventory: inv})
	if opts.Probe {
		checks = append(checks, &doctor.ReachabilityCheck{Inventory: inv, Timeout: opts.Timeout})
	}
	return checks
}

// loadFailure reports an inventory that could not be built at all.
type loadFailure struct{ err error }

func (loadFailure) Name() string     { return "inventory" }
func (loadFailure) Category() string { return "SERVERS" }
func (l loadFailure) Run() doctor.CheckResult {
	return doctor.CheckResult{
		Name:     l.Name(),
		Category: l.Category(),
		Status:   doctor.StatusFail,
		Message:  errors.Summary(l.err),
	}
}

func groupResults(results []doctor.CheckResult) []DoctorCategory {
	grouped := make(map[string][]doctor.CheckResult)
	for _, r := range results {
		grouped[r.Category] = append(grouped[r.Category], r)
	}
	var out []DoctorCategory
	for _, cat := range doctorCategoryOrder {
		if len(grouped[cat]) > 0 {
			out = append(out, DoctorCategory{Name: cat, Results: grouped[cat]})
		}
	}
	return out
}

func doctorOutput(results []doctor.CheckResult) DoctorOutput {
	counts := doctor.CountByStatus(results)
	return DoctorOutput{
		Categories: groupResults(results),
		Pass:       counts[doctor.StatusPass],
		Warn:       counts[doctor.StatusWarn],
		Fail:       counts[doctor.StatusFail],
		AllClear:   counts[doctor.StatusWarn]+counts[doctor.StatusFail] == 0,
	}
}

func renderDoctor(w io.Writer, results []doctor.CheckResult) {
	successStyle := lipgloss.NewStyle().Foreground(ui.ColorSuccess)
	errorStyle := lipgloss.NewStyle().Foreground(ui.ColorError)
	warnStyle := lipgloss.NewStyle().Foreground(ui.ColorWarning)
	mutedStyle := lipgloss.NewStyle().Foreground(ui.ColorMuted)
	headerStyle := lipgloss.NewStyle().Bold(true)

	fmt.Fprintln(w)
	for _, cat := range groupResults(results) {
		fmt.Fprintln(w, headerStyle.Render(cat.Name))
		for _, r := range cat.Results {
			symbol, style := ui.SymbolSuccess, successStyle
			switch r.Status {
			case doctor.StatusWarn:
				symbol, style = ui.SymbolPending, warnStyle
			case doctor.StatusFail:
				symbol, style = ui.SymbolFail, errorStyle
			}
			fmt.Fprintf(w, "  %s %s\n", style.Render(symbol), r.Message)
			if r.Suggestion != "" && r.Status != doctor.StatusPass {
				for _, line := range strings.Split(r.Suggestion, "\n") {
					fmt.Fprintf(w, "    %s\n", mutedStyle.Render(line))
				}
			}
		}
		fmt.Fprintln(w)
	}

	verdict := doctor.Summary(results)
	if doctor.CountByStatus(results)[doctor.StatusPass] == len(results) {
		fmt.Fprintf(w, "%s %s\n", successStyle.Render(ui.SymbolSuccess), verdict)
	} else {
		fmt.Fprintf(w, "%s %s\n", errorStyle.Render(ui.SymbolFail), verdict)
	}
}
