package cmd

import (
	"github.com/spf13/cobra"
)

func newTuiCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "tui [url]",
		Short:         "Open the interactive view",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetch(cmd, a, args, fetchMode{ForceTUI: true})
		},
	}
	bindFetchFlags(cmd.Flags())
	// Neither flag applies interactively; keep them for symmetry with the root command.
	for _, name := range []string{"no-ui", "keep-remote"} {
		if f := cmd.Flags().Lookup(name); f != nil {
			f.Hidden = true
		}
	}
	return cmd
}
