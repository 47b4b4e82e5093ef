package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/fleetmon/fleetmon/internal/client"
	"github.com/fleetmon/fleetmon/internal/errors"
	"github.com/fleetmon/fleetmon/internal/monitor"
	"github.com/fleetmon/fleetmon/internal/ui"
	"github.com/spf13/cobra"
)

var (
	connectAsk           bool
	connectPasswordStdin bool
)

var connectCmd = &cobra.Command{
	Use:   "connect [server]",
	Short: "Poll a server now, optionally supplying its password",
	Long: `Run a poll cycle for one server immediately and report the outcome.

Connecting clears a suspended or failed server's retry counter. When the
server is waiting for a password you are prompted for it; --ask prompts
even when it is not. With no server id you pick one from a list.

Examples:
  fleetmon connect web-1
  fleetmon connect db-1 --ask
  echo "$DB_PASSWORD" | fleetmon connect db-1 --password-stdin`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		opts := connectOptions{
			Ask:           connectAsk,
			PasswordStdin: connectPasswordStdin,
			Interactive:   isInteractive(),
			In:            cmd.InOrStdin(),
			Out:           cmd.OutOrStdout(),
			ErrOut:        cmd.ErrOrStderr(),
			Prompt:        promptPassword,
		}
		if len(args) == 1 {
			opts.ID = args[0]
		}
		return connectCommand(cmd.Context(), c, opts)
	},
}

var cancelSecretCmd = &cobra.Command{
	Use:   "cancel-secret <server>",
	Short: "Withdraw a server's pending password request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		cancelled, err := c.CancelSecret(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		if machineMode {
			return WriteJSONSuccess(w, map[string]bool{"cancelled": cancelled})
		}
		if cancelled {
			fmt.Fprintf(w, "%s %s: password request withdrawn\n", ui.SymbolSuccess, args[0])
		} else {
			fmt.Fprintf(w, "%s %s had no pending password request\n", ui.SymbolSkipped, args[0])
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(connectCmd, cancelSecretCmd)
	connectCmd.Flags().BoolVar(&connectAsk, "ask", false, "prompt for a password before connecting")
	connectCmd.Flags().BoolVar(&connectPasswordStdin, "password-stdin", false, "read the password from stdin")
}

// passwordPrompt asks for a server's password. reason explains why it is
// needed and may be empty.
type passwordPrompt func(id, reason string) (string, error)

type connectOptions struct {
	ID            string
	Ask           bool
	PasswordStdin bool
	Interactive   bool
	In            io.Reader
	Out           io.Writer
	ErrOut        io.Writer
	Prompt        passwordPrompt
}

func connectCommand(ctx context.Context, c *client.Client, opts connectOptions) error {
	id := opts.ID
	if id == "" {
		picked, err := pickServer(ctx, c, opts)
		if err != nil || picked == "" {
			return err
		}
		id = picked
	}

	password, err := initialPassword(ctx, c, id, opts)
	if err != nil {
		return err
	}

	view, err := connectWithSpinner(ctx, c, id, password, opts)
	if err != nil {
		return err
	}

	// One more try when the server turned out to want a password we did
	// not have.
	if view.NeedsCredentials && password == "" && opts.Interactive && !opts.PasswordStdin && !machineMode {
		password, err = opts.Prompt(id, pendingReason(view))
		if err != nil {
			return err
		}
		if password != "" {
			if view, err = connectWithSpinner(ctx, c, id, password, opts); err != nil {
				return err
			}
		}
	}

	if machineMode {
		return WriteJSONSuccess(opts.Out, view)
	}
	return connectOutcome(view)
}

func pickServer(ctx context.Context, c *client.Client, opts connectOptions) (string, error) {
	if !opts.Interactive || machineMode {
		return "", errors.New(errors.ErrConfig, "No server given",
			"Pass the server id: fleetmon connect <server>")
	}
	servers, err := c.Servers(ctx)
	if err != nil {
		return "", err
	}
	picked, err := ui.PickServer(servers, opts.ErrOut, opts.In)
	if err != nil {
		return "", err
	}
	if picked == nil {
		fmt.Fprintln(opts.ErrOut, "Cancelled")
		return "", nil
	}
	return picked.ID, nil
}

// initialPassword decides what to send with the first attempt: stdin when
// asked, a prompt with --ask or when the server already waits for one,
// otherwise nothing so the server's cached secret is used.
func initialPassword(ctx context.Context, c *client.Client, id string, opts connectOptions) (string, error) {
	if opts.PasswordStdin {
		line, err := bufio.NewReader(opts.In).ReadString('\n')
		if err != nil && err != io.EOF {
			return "", errors.WrapWithCode(err, errors.ErrConfig, "Couldn't read the password from stdin", "")
		}
		return strings.TrimRight(line, "\r\n"), nil
	}

	if !opts.Interactive || machineMode {
		return "", nil
	}
	if opts.Ask {
		return opts.Prompt(id, "")
	}

	view, err := c.Server(ctx, id)
	if err != nil {
		return "", err
	}
	if view.NeedsCredentials {
		return opts.Prompt(id, pendingReason(view))
	}
	return "", nil
}

func connectWithSpinner(ctx context.Context, c *client.Client, id, password string, opts connectOptions) (monitor.ServerView, error) {
	if machineMode {
		return c.Connect(ctx, id, password)
	}

	spinner := ui.NewSpinner("Connecting to " + id)
	spinner.SetOutput(opts.ErrOut)
	spinner.Start()

	view, err := c.Connect(ctx, id, password)
	switch {
	case err != nil:
		spinner.Fail(errors.Summary(err))
	case view.Status.Kind == monitor.StatusOnline:
		spinner.Success(string(view.Status.Kind))
	default:
		spinner.Fail(view.Status.String())
	}
	return view, err
}

// connectOutcome turns a finished attempt into the command's exit status.
func connectOutcome(view monitor.ServerView) error {
	switch {
	case view.Status.Kind == monitor.StatusOnline:
		return nil
	case view.NeedsCredentials:
		return errors.New(errors.ErrAuth,
			fmt.Sprintf("%s rejected the credentials", view.ID),
			fmt.Sprintf("Run 'fleetmon connect %s --ask' to enter a password", view.ID))
	default:
		return errors.New(errors.ErrTransient,
			fmt.Sprintf("%s is %s", view.ID, view.Status),
			"Check the server is reachable, then run 'fleetmon connect "+view.ID+"' again")
	}
}

func pendingReason(view monitor.ServerView) string {
	if view.PendingSecret != nil {
		return view.PendingSecret.Reason
	}
	return ""
}

// promptPassword reads a password on the terminal without echo.
func promptPassword(id, reason string) (string, error) {
	var password string
	input := huh.NewInput().
		Title("Password for " + id).
		EchoMode(huh.EchoModePassword).
		Value(&password)
	if reason != "" {
		input = input.Description(reason)
	}
	if err := huh.NewForm(huh.NewGroup(input)).Run(); err != nil {
		return "", errors.WrapWithCode(err, errors.ErrConfig, "Password prompt cancelled", "")
	}
	return password, nil
}
