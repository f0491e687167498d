package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newConfigCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:           "config",
		Short:         "Print the effective configuration as YAML",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out, err := a.settings.YAML()
			if err != nil {
				return &ExitError{Code: ExitCLIError, Err: err}
			}
			if used := a.v.ConfigFileUsed(); used != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "# from %s\n", used)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}
