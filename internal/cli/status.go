package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fleetmon/fleetmon/internal/client"
	"github.com/fleetmon/fleetmon/internal/monitor"
	"github.com/fleetmon/fleetmon/internal/ui"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status [server]",
	Short: "Show the state of every monitored server",
	Long: `Ask a running fleetmon server for the connection state of the fleet,
or of one server when an id is given.

Examples:
  fleetmon status
  fleetmon status web-1
  fleetmon status --server 10.0.0.5:8080 --json`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		id := ""
		if len(args) == 1 {
			id = args[0]
		}
		return statusCommand(cmd.Context(), cmd.OutOrStdout(), c, id, time.Now())
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func statusCommand(ctx context.Context, w io.Writer, c *client.Client, id string, now time.Time) error {
	var views []monitor.ServerView
	if id == "" {
		all, err := c.Servers(ctx)
		if err != nil {
			return err
		}
		views = all
	} else {
		v, err := c.Server(ctx, id)
		if err != nil {
			return err
		}
		views = []monitor.ServerView{v}
	}

	if machineMode {
		return WriteJSONSuccess(w, views)
	}

	rows := make([]ui.ServerRow, len(views))
	online := 0
	for i, v := range views {
		rows[i] = serverRow(v, now)
		if v.Status.Kind == monitor.StatusOnline {
			online++
		}
	}
	fmt.Fprint(w, ui.RenderServerTable(rows))
	if id == "" && len(views) > 0 {
		fmt.Fprintf(w, "\n%d of %d online\n", online, len(views))
	}
	return nil
}

func serverRow(v monitor.ServerView, now time.Time) ui.ServerRow {
	row := ui.ServerRow{
		ID:        v.ID,
		Address:   serverAddress(v.Server),
		Status:    string(v.Status.Kind),
		LastSeen:  sinceText(v.LastSeen, now),
		Locked:    v.NeedsCredentials,
		Paused:    v.Paused || v.Suspended,
		Attention: v.NeedsCredentials || v.NeedsManualRetry,
	}

	var notes []string
	if v.Status.Message != "" {
		notes = append(notes, v.Status.Message)
	}
	switch {
	case v.NeedsCredentials:
		notes = append(notes, "password required: fleetmon connect "+v.ID+" --ask")
	case v.Suspended:
		notes = append(notes, "polling suspended after repeated failures: fleetmon connect "+v.ID)
	case v.Paused:
		notes = append(notes, "paused")
	case v.NeedsManualRetry:
		notes = append(notes, fmt.Sprintf("%d failed attempts", v.RetryCount))
	}
	row.Detail = strings.Join(notes, "; ")
	return row
}

// sinceText renders a past instant as "12s ago", or "never".
func sinceText(t *time.Time, now time.Time) string {
	if t == nil || t.IsZero() {
		return "never"
	}
	d := now.Sub(*t)
	if d < time.Second {
		return "just now"
	}
	return ui.FormatDuration(d.Truncate(time.Second)) + " ago"
}
