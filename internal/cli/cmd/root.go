package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"jobfetch/internal/config"
)

const (
	ExitOK                = 0
	ExitCLIError          = 1
	ExitInvalidURL        = 2
	ExitSubmitError       = 3
	ExitServerUnreachable = 4
	ExitStalled           = 5
	ExitSaveError         = 6
	ExitCancelled         = 130
)

// ExitError wraps an error with a process exit code.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// app carries state resolved once per invocation.
type app struct {
	v        *viper.Viper
	settings config.Settings
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	a.v = viper.New()
	if err := config.Init(a.v, cmd.Flags()); err != nil {
		return &ExitError{Code: ExitCLIError, Err: err}
	}
	s, err := config.Load(a.v)
	if err != nil {
		return &ExitError{Code: ExitCLIError, Err: err}
	}
	a.settings = s
	return nil
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "jobfetch [url]",
		Short: "Hand a media URL to a download server and collect the file",
		Long: "jobfetch submits a media URL to a remote download service, follows the job's progress, " +
			"fetches the finished file and tells the server when it may clean up. " +
			"With a terminal it opens an interactive view; otherwise it runs headless.",
		SilenceUsage:      true,
		SilenceErrors:     true,
		Args:              cobra.MaximumNArgs(1),
		PersistentPreRunE: a.setup,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetch(cmd, a, args, fetchMode{})
		},
	}

	pf := root.PersistentFlags()
	pf.String("server", config.DefaultServer, "Download server base URL")
	pf.StringP("out-dir", "o", ".", "Directory downloaded files are saved to")
	pf.Duration("poll-interval", time.Second, "Delay between progress queries")
	pf.Duration("retry-delay", time.Second, "Delay between attempts to fetch a finished file")
	pf.Duration("request-timeout", 30*time.Second, "Timeout for a single HTTP request (0 disables)")
	pf.Duration("max-wait", 0, "Give up on a job after this long (0 waits forever)")
	pf.String("log-level", "info", "Log level: debug, info, warn, error")
	pf.String("log-format", "console", "Log format: console, json")
	pf.BoolP("verbose", "v", false, "Debug logging")
	pf.String("config", "", "Config file (default <config dir>/config.yaml)")
	pf.String("env-file", config.DefaultEnvFile, "dotenv file with JOBFETCH_* variables")

	bindFetchFlags(root.Flags())

	root.AddCommand(newFetchCmd(a))
	root.AddCommand(newTuiCmd(a))
	root.AddCommand(newCheckCmd())
	root.AddCommand(newDoctorCmd(a))
	root.AddCommand(newConfigCmd(a))
	root.AddCommand(newCompletionCmd())

	return root
}

func bindFetchFlags(fs *pflag.FlagSet) {
	fs.Bool("no-ui", false, "Disable the interactive view; print plain progress")
	fs.Bool("keep-remote", false, "Do not ask the server to clean up after saving")
}

// Execute runs the CLI with the provided context.
func Execute(ctx context.Context) error {
	root := newRootCmd()
	return root.ExecuteContext(ctx)
}
