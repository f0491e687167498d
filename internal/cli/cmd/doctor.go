package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"jobfetch/internal/api"
	"jobfetch/internal/util"
)

const doctorTimeout = 5 * time.Second

func newDoctorCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:           "doctor",
		Short:         "Check the server is reachable and the output dir is writable",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			s := a.settings

			client, err := api.New(s.Server, api.WithTimeout(doctorTimeout))
			if err != nil {
				return &ExitError{Code: ExitCLIError, Err: err}
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), doctorTimeout)
			defer cancel()
			if err := client.Ping(ctx); err != nil {
				fmt.Fprintf(out, "Server:  %s (unreachable)\n", s.Server)
				return &ExitError{Code: ExitServerUnreachable, Err: err}
			}
			fmt.Fprintf(out, "Server:  %s (reachable)\n", s.Server)

			if err := checkWritable(s.OutDir); err != nil {
				fmt.Fprintf(out, "Out dir: %s (not writable)\n", s.OutDir)
				return &ExitError{Code: ExitSaveError, Err: err}
			}
			fmt.Fprintf(out, "Out dir: %s (writable)\n", s.OutDir)
			if used := a.v.ConfigFileUsed(); used != "" {
				fmt.Fprintf(out, "Config:  %s\n", used)
			}
			return nil
		},
	}
}

func checkWritable(dir string) error {
	if err := util.EnsureDir(dir); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".jobfetch-probe-*")
	if err != nil {
		return err
	}
	name := f.Name()
	_ = f.Close()
	return util.RemoveIfExists(name)
}
