package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/fleetmon/fleetmon/internal/client"
	"github.com/fleetmon/fleetmon/internal/monitor"
	"github.com/fleetmon/fleetmon/internal/ui"
	"github.com/spf13/cobra"
)

var pauseCmd = &cobra.Command{
	Use:   "pause <server>...",
	Short: "Stop scheduled polling of servers",
	Long: `Stop scheduled polling of one or more servers. Their last known
metrics stay available and 'fleetmon connect' still polls on demand.

Examples:
  fleetmon pause web-1
  fleetmon pause web-1 web-2`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		return setMonitoring(cmd.Context(), cmd.OutOrStdout(), c, args, false)
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume <server>...",
	Short: "Resume scheduled polling of servers",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		return setMonitoring(cmd.Context(), cmd.OutOrStdout(), c, args, true)
	},
}

func init() {
	rootCmd.AddCommand(pauseCmd, resumeCmd)
}

// setMonitoring pauses or resumes every id, stopping at the first failure.
func setMonitoring(ctx context.Context, w io.Writer, c *client.Client, ids []string, enabled bool) error {
	views := make([]monitor.ServerView, 0, len(ids))
	for _, id := range ids {
		var (
			view monitor.ServerView
			err  error
		)
		if enabled {
			view, err = c.StartMonitoring(ctx, id)
		} else {
			view, err = c.StopMonitoring(ctx, id)
		}
		if err != nil {
			return err
		}
		views = append(views, view)

		if !machineMode {
			if enabled {
				fmt.Fprintf(w, "%s %s: monitoring resumed\n", ui.SymbolSuccess, id)
			} else {
				fmt.Fprintf(w, "%s %s: monitoring paused\n", ui.SymbolPaused, id)
			}
		}
	}

	if machineMode {
		return WriteJSONSuccess(w, views)
	}
	return nil
}
