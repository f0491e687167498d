package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"jobfetch/internal/api"
	"jobfetch/internal/lifecycle"
	"jobfetch/internal/model"
	"jobfetch/internal/progress"
	"jobfetch/internal/ui"
	"jobfetch/internal/util"
	"jobfetch/internal/util/format"
)

type fetchMode struct {
	ForceTUI      bool
	ForceHeadless bool
}

func newFetchCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "fetch <url>",
		Short:         "Submit a URL, wait for the file and save it (no interactive view)",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetch(cmd, a, args, fetchMode{ForceHeadless: true})
		},
	}
	bindFetchFlags(cmd.Flags())
	if f := cmd.Flags().Lookup("no-ui"); f != nil {
		f.Hidden = true
	}
	return cmd
}

func runFetch(cmd *cobra.Command, a *app, args []string, mode fetchMode) error {
	noUI, _ := cmd.Flags().GetBool("no-ui")
	if mode.ForceTUI || (!mode.ForceHeadless && !noUI && isTerminal()) {
		return runTUI(cmd, a, args)
	}

	if len(args) == 0 {
		return &ExitError{Code: ExitCLIError, Err: errors.New("a URL is required when running without the interactive view")}
	}
	raw := args[0]
	if err := util.ValidateInput(raw); err != nil {
		return &ExitError{Code: ExitInvalidURL, Err: fmt.Errorf("%w: %q", err, raw)}
	}
	if err := util.EnsureDir(a.settings.OutDir); err != nil {
		return &ExitError{Code: ExitSaveError, Err: fmt.Errorf("failed to create output dir: %v", err)}
	}
	keepRemote, _ := cmd.Flags().GetBool("keep-remote")

	sess, err := a.openSession(false)
	if err != nil {
		return &ExitError{Code: ExitCLIError, Err: err}
	}
	defer sess.Close()

	return fetchOne(cmd, sess.ctrl, raw, a.settings.OutDir, keepRemote)
}

// fetchOne drives a single URL to a saved file, printing progress to stderr.
func fetchOne(cmd *cobra.Command, ctrl *lifecycle.Controller, raw, outDir string, keepRemote bool) error {
	ctx := cmd.Context()
	errOut := cmd.ErrOrStderr()

	wake := make(chan struct{}, 1)
	poke := func() {
		select {
		case wake <- struct{}{}:
		default:
		}
	}
	printer := &progressPrinter{w: errOut, last: -1}
	ctrl.Subscribe(progress.Funcs{
		OnState:  func(s model.UIState) { printer.state(s); poke() },
		OnNotice: func(n progress.Notice) { printer.notice(n); poke() },
	})

	if _, err := ctrl.Submit(ctx, raw); err != nil {
		return submitExit(ctx.Err(), err)
	}

	for {
		select {
		case <-ctx.Done():
			return &ExitError{Code: ExitCancelled, Err: ctx.Err()}
		case <-wake:
		}
		if ctrl.Snapshot().HasDownload() {
			break
		}
		if ctrl.Stage() == progress.StageStalled {
			return &ExitError{Code: ExitStalled, Err: errors.New("job did not finish in time")}
		}
	}

	save := ctrl.Download
	if keepRemote {
		save = ctrl.Save
	}
	path, err := save(outDir)
	if err != nil {
		return &ExitError{Code: ExitSaveError, Err: err}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Saved: %s (%s)\n", path, format.HumanizeBytes(ctrl.Snapshot().Download.Size))
	return nil
}

func submitExit(ctxErr, err error) error {
	if ctxErr != nil {
		return &ExitError{Code: ExitCancelled, Err: ctxErr}
	}
	var se *api.SubmissionError
	if errors.As(err, &se) && se.Status == 0 {
		return &ExitError{Code: ExitServerUnreachable, Err: fmt.Errorf("server unreachable: %w", err)}
	}
	return &ExitError{Code: ExitSubmitError, Err: fmt.Errorf("submission failed: %w", err)}
}

// progressPrinter writes one line per progress change and per notice.
// It only touches its own state so it is safe to call from reporters.
type progressPrinter struct {
	w    io.Writer
	last int
}

func (p *progressPrinter) state(s model.UIState) {
	if s.Idle() || s.Progress == p.last {
		return
	}
	p.last = s.Progress
	fmt.Fprintf(p.w, "%s %s\n", s.TaskID, format.Percent(s.Progress))
}

func (p *progressPrinter) notice(n progress.Notice) {
	fmt.Fprintf(p.w, "[%s] %s\n", n.Level, n.Message)
}

func isTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

func runTUI(cmd *cobra.Command, a *app, args []string) error {
	if !isTerminal() {
		return &ExitError{Code: ExitCLIError, Err: errors.New("the interactive view needs a terminal; use 'jobfetch fetch' instead")}
	}
	sess, err := a.openSession(true)
	if err != nil {
		return &ExitError{Code: ExitCLIError, Err: err}
	}
	defer sess.Close()

	opts := ui.Options{Server: a.settings.Server, OutDir: a.settings.OutDir}
	if len(args) > 0 {
		opts.InitialURL = args[0]
	}
	if err := ui.Run(cmd.Context(), sess.ctrl, opts); err != nil {
		if cmd.Context().Err() != nil {
			return &ExitError{Code: ExitCancelled, Err: err}
		}
		return &ExitError{Code: ExitCLIError, Err: err}
	}
	return nil
}
