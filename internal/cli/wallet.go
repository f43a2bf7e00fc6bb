package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewWalletCommand creates the wallet command group
func NewWalletCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wallet",
		Short: "Inspect the node wallet",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "default",
		Short: "Print the default chain id, waiting for the wallet to appear",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := rootOpts.environment(contextOf(cmd))
			if err != nil {
				return err
			}
			defer env.Close()
			chainID, err := env.service.Runtime().DefaultChain(contextOf(cmd))
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), chainID)
			return err
		},
	})
	return cmd
}
