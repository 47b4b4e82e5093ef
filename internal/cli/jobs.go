package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/fleetmon/fleetmon/internal/client"
	"github.com/fleetmon/fleetmon/internal/monitor"
	"github.com/fleetmon/fleetmon/internal/ui"
	"github.com/fleetmon/fleetmon/internal/util"
	"github.com/spf13/cobra"
)

var (
	jobsServer string
	jobsStatus string
	jobsLimit  int
	jobsClear  bool
	jobsYes    bool
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List recent poll cycles",
	Long: `List the most recent poll cycles, newest first, with success rate and
average duration.

Examples:
  fleetmon jobs
  fleetmon jobs --server-id web-1 --status failed
  fleetmon jobs --clear`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		if jobsClear {
			if !jobsYes && !machineMode && isInteractive() && !confirmClear() {
				return nil
			}
			return clearJobs(cmd.Context(), w, c)
		}
		filter := monitor.JobFilter{
			ServerID: jobsServer,
			Status:   monitor.JobStatus(jobsStatus),
			Limit:    jobsLimit,
		}
		return jobsCommand(cmd.Context(), w, c, filter, time.Now())
	},
}

func init() {
	rootCmd.AddCommand(jobsCmd)
	jobsCmd.Flags().StringVar(&jobsServer, "server-id", "", "only jobs for this server")
	jobsCmd.Flags().StringVar(&jobsStatus, "status", "", "only jobs with this status (running, completed, failed, cancelled)")
	jobsCmd.Flags().IntVar(&jobsLimit, "limit", 20, "maximum jobs to show")
	jobsCmd.Flags().BoolVar(&jobsClear, "clear", false, "delete the job log")
	jobsCmd.Flags().BoolVarP(&jobsYes, "yes", "y", false, "don't ask before clearing")
}

func jobsCommand(ctx context.Context, w io.Writer, c *client.Client, filter monitor.JobFilter, now time.Time) error {
	resp, err := c.Jobs(ctx, filter)
	if err != nil {
		return err
	}
	if machineMode {
		return WriteJSONSuccess(w, resp)
	}

	if len(resp.Jobs) == 0 {
		fmt.Fprintln(w, "No jobs recorded")
		return nil
	}

	rows := make([][]string, len(resp.Jobs))
	for i, j := range resp.Jobs {
		took := "-"
		if j.Duration > 0 {
			took = ui.FormatDuration(j.Duration)
		}
		started := j.StartedAt
		rows[i] = []string{
			j.ServerID,
			string(j.Status),
			string(j.Trigger),
			sinceText(&started, now),
			took,
			truncate(j.Error, 40),
		}
	}
	fmt.Fprintln(w, ui.RenderSimpleTable([]ui.TableColumn{
		{Title: "SERVER", Width: 16},
		{Title: "STATUS", Width: 10},
		{Title: "TRIGGER", Width: 10},
		{Title: "STARTED", Width: 12},
		{Title: "TOOK", Width: 8},
		{Title: "ERROR", Width: 40},
	}, rows))

	s := resp.Stats
	fmt.Fprintf(w, "\n%s, %.0f%% succeeded, average %s\n",
		util.Count(s.Total, "job", "jobs"), s.SuccessRate*100, ui.FormatDuration(s.AverageDuration))
	return nil
}

func clearJobs(ctx context.Context, w io.Writer, c *client.Client) error {
	removed, err := c.ClearJobs(ctx)
	if err != nil {
		return err
	}
	if machineMode {
		return WriteJSONSuccess(w, map[string]int{"removed": removed})
	}
	fmt.Fprintf(w, "%s removed %s\n", ui.SymbolSuccess, util.Count(removed, "job", "jobs"))
	return nil
}

func confirmClear() bool {
	var ok bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Delete the whole job log?").
				Value(&ok),
		),
	)
	if form.Run() != nil {
		return false
	}
	return ok
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
