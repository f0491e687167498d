package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"jobfetch/internal/util"
)

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:           "check <url>...",
		Short:         "Validate URLs locally without contacting the server",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.MinimumNArgs(1),
		// Validation needs no settings; skip config loading.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			bad := 0
			for _, raw := range args {
				if err := util.ValidateInput(raw); err != nil {
					bad++
					fmt.Fprintf(cmd.OutOrStdout(), "invalid  %q: %v\n", raw, err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "ok       %s (%s)\n", raw, util.HostLabel(raw))
			}
			if bad > 0 {
				return &ExitError{Code: ExitInvalidURL, Err: fmt.Errorf("%d of %d URL(s) invalid", bad, len(args))}
			}
			return nil
		},
	}
}
