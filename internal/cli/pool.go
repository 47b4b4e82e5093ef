package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/fleetmon/fleetmon/internal/api"
	"github.com/fleetmon/fleetmon/internal/client"
	"github.com/fleetmon/fleetmon/internal/monitor"
	"github.com/fleetmon/fleetmon/internal/ui"
	"github.com/spf13/cobra"
)

var poolCmd = &cobra.Command{
	Use:   "pool",
	Short: "Show the server's pooled SSH connections",
	Long: `List every server with its pooled SSH connection, if one is open, and
aggregate connection numbers.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		return poolCommand(cmd.Context(), cmd.OutOrStdout(), c, time.Now())
	},
}

func init() {
	rootCmd.AddCommand(poolCmd)
}

// PoolOutput is the --json form of the pool command.
type PoolOutput struct {
	api.PoolResponse
	Stats monitor.PoolStats `json:"stats"`
}

func poolCommand(ctx context.Context, w io.Writer, c *client.Client, now time.Time) error {
	pool, err := c.ConnectionPool(ctx)
	if err != nil {
		return err
	}
	stats, err := c.ConnectionStats(ctx)
	if err != nil {
		return err
	}
	if machineMode {
		return WriteJSONSuccess(w, PoolOutput{PoolResponse: pool, Stats: stats})
	}

	rows := make([][]string, 0, len(pool.Connections))
	for _, cs := range pool.Connections {
		platform, age, used := "-", "-", "-"
		if cs.Conn != nil {
			platform = string(cs.Conn.Platform)
			age = ui.FormatDuration(now.Sub(cs.Conn.CreatedAt).Truncate(time.Second))
			lastUsed := cs.Conn.LastUsed
			used = sinceText(&lastUsed, now)
		}
		next := "due"
		if cs.NextMonitoringAge > 0 {
			next = "in " + ui.FormatDuration(cs.NextMonitoringAge.Truncate(time.Second))
		}
		target := cs.Host
		if cs.User != "" {
			target = cs.User + "@" + cs.Host
		}
		rows = append(rows, []string{cs.ServerID, cs.Status.String(), target, platform, age, used, next})
	}
	if len(rows) == 0 {
		fmt.Fprintln(w, "No servers configured")
		return nil
	}
	fmt.Fprintln(w, ui.RenderSimpleTable([]ui.TableColumn{
		{Title: "SERVER", Width: 16},
		{Title: "STATUS", Width: 22},
		{Title: "TARGET", Width: 30},
		{Title: "PLATFORM", Width: 9},
		{Title: "AGE", Width: 8},
		{Title: "LAST USED", Width: 12},
		{Title: "NEXT POLL", Width: 10},
	}, rows))
	fmt.Fprintf(w, "\n%d of %d connected, %d opened since start\n", pool.Connected, pool.Total, stats.Total)
	return nil
}
