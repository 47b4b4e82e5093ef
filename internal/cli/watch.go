package cli

import (
	"context"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fleetmon/fleetmon/internal/client"
	"github.com/fleetmon/fleetmon/internal/errors"
	"github.com/fleetmon/fleetmon/internal/ui/dashboard"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	watchInterval time.Duration
	watchNoStream bool
)

var watchCmd = &cobra.Command{
	Use:     "watch",
	Aliases: []string{"dashboard", "top"},
	Short:   "Live dashboard of the fleet",
	Long: `Open a full-screen dashboard of every server: CPU and memory graphs,
disks, network rates and ping, updated live from the server's event stream.

Keys: arrows/hjkl move, enter opens a server, c connects, p enters a
password, s changes the sort order, ? shows help, q quits.

Examples:
  fleetmon watch
  fleetmon watch --server 10.0.0.5:8080 --interval 10s`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			return errors.New(errors.ErrConfig, "watch needs a terminal",
				"Use 'fleetmon status' or 'fleetmon status --json' in scripts")
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		return watchCommand(cmd.Context(), c)
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().DurationVar(&watchInterval, "interval", dashboard.DefaultInterval, "full refresh interval")
	watchCmd.Flags().BoolVar(&watchNoStream, "no-stream", false, "poll only, without the live event stream")
}

func watchCommand(ctx context.Context, c *client.Client) error {
	if _, err := c.Health(ctx); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	opts := dashboard.Options{Interval: watchInterval, Server: c.BaseURL()}
	if !watchNoStream {
		// The dashboard still refreshes on its interval without the stream.
		if events, err := c.Subscribe(ctx, ""); err == nil {
			opts.Events = events
		}
	}

	p := tea.NewProgram(dashboard.NewModel(c, opts), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return errors.WrapWithCode(err, errors.ErrInternal, "Dashboard failed", "")
	}
	return nil
}
