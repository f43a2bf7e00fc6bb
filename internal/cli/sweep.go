package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewSweepCommand creates the sweep command
func NewSweepCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Remove failed and abandoned allocation records",
		Long: `Remove failed records, records without a chain id and creating
placeholders older than sweep.staleAfter. Run it while serve is stopped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := rootOpts.environment(contextOf(cmd))
			if err != nil {
				return err
			}
			defer env.Close()
			removed := env.service.Runtime().Sweep(contextOf(cmd))
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "removed %d record(s)\n", removed)
			return err
		},
	}
}
