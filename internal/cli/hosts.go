package cli

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/fleetmon/fleetmon/internal/config"
	"github.com/fleetmon/fleetmon/internal/inventory"
	"github.com/fleetmon/fleetmon/internal/monitor"
	"github.com/fleetmon/fleetmon/internal/ui"
	"github.com/spf13/cobra"
)

var (
	hostsProbe        bool
	hostsProbeTimeout time.Duration
)

var hostsCmd = &cobra.Command{
	Use:   "hosts",
	Short: "List the servers fleetmon would monitor",
	Long: `List every server found in the SSH config and the config file, with
where each one came from. Does not need a running server.

With --probe, each server's SSH port is checked for TCP reachability.

Examples:
  fleetmon hosts
  fleetmon hosts --probe
  fleetmon hosts --probe --timeout 5s --json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := config.LoadOrDefault(cfgFile)
		if err != nil {
			return err
		}
		inv, err := inventory.Load(cfg)
		if err != nil {
			return err
		}
		return hostsCommand(cmd.Context(), cmd.OutOrStdout(), inv, hostsProbe, hostsProbeTimeout)
	},
}

func init() {
	rootCmd.AddCommand(hostsCmd)
	hostsCmd.Flags().BoolVar(&hostsProbe, "probe", false, "check each server's SSH port")
	hostsCmd.Flags().DurationVar(&hostsProbeTimeout, "timeout", 3*time.Second, "per-server probe timeout")
}

// HostInfo is one inventory entry in --json output.
type HostInfo struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Address   string `json:"address"`
	User      string `json:"user,omitempty"`
	Auth      string `json:"auth"`
	Jump      string `json:"jump,omitempty"`
	Interval  string `json:"interval"`
	Source    string `json:"source"`
	Reachable *bool  `json:"reachable,omitempty"`
	Latency   string `json:"latency,omitempty"`
	Error     string `json:"error,omitempty"`
}

func hostsCommand(ctx context.Context, w io.Writer, inv *inventory.Inventory, probe bool, timeout time.Duration) error {
	var results []inventory.ProbeResult
	if probe {
		results = inventory.ProbeAll(ctx, inv.Servers(), timeout, 0)
	}

	infos := make([]HostInfo, len(inv.Entries))
	for i, e := range inv.Entries {
		infos[i] = hostInfo(e)
		if results != nil {
			r := results[i]
			ok := r.OK()
			infos[i].Reachable = &ok
			if ok {
				infos[i].Latency = ui.FormatDuration(r.Latency)
			} else {
				infos[i].Error = r.Reason.String()
			}
		}
	}

	if machineMode {
		return WriteJSONSuccess(w, infos)
	}

	for _, warning := range inv.Warnings {
		fmt.Fprintf(w, "%s %s\n", ui.SymbolPending, warning)
	}

	if probe {
		rows := make([]ui.ProbeRow, len(infos))
		for i, info := range infos {
			rows[i] = ui.ProbeRow{ID: info.ID, Address: info.Address, Source: info.Source, OK: *info.Reachable}
			if rows[i].OK {
				rows[i].Result = info.Latency
			} else {
				rows[i].Result = info.Error
			}
		}
		fmt.Fprint(w, ui.RenderProbeTable(rows))
		return nil
	}

	if len(infos) == 0 {
		fmt.Fprintln(w, "No servers configured")
		return nil
	}
	rows := make([][]string, len(infos))
	for i, info := range infos {
		via := info.Jump
		if via == "" {
			via = "-"
		}
		rows[i] = []string{info.ID, info.Address, info.User, info.Auth, via, info.Interval, info.Source}
	}
	fmt.Fprintln(w, ui.RenderSimpleTable([]ui.TableColumn{
		{Title: "SERVER", Width: 16},
		{Title: "ADDRESS", Width: 26},
		{Title: "USER", Width: 12},
		{Title: "AUTH", Width: 9},
		{Title: "VIA", Width: 16},
		{Title: "EVERY", Width: 7},
		{Title: "SOURCE", Width: 10},
	}, rows))
	return nil
}

func hostInfo(e inventory.Entry) HostInfo {
	s := e.Server
	info := HostInfo{
		ID:       s.ID,
		Name:     s.Name,
		Address:  serverAddress(s),
		User:     s.User,
		Auth:     string(s.Auth),
		Interval: s.Interval.String(),
		Source:   string(e.Source),
	}
	if s.Jump != nil {
		info.Jump = s.Jump.Host
		if s.Jump.User != "" {
			info.Jump = s.Jump.User + "@" + info.Jump
		}
	}
	return info
}

// serverAddress renders host:port, or "localhost" for the built-in server.
func serverAddress(s monitor.Server) string {
	if s.Local {
		return "localhost"
	}
	port := s.Port
	if port == 0 {
		port = 22
	}
	return net.JoinHostPort(s.Host, strconv.Itoa(port))
}
