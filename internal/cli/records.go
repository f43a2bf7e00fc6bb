package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// NewRecordsCommand creates the records command group
func NewRecordsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "records",
		Short: "Inspect allocation records",
	}
	var statuses []string
	list := &cobra.Command{
		Use:   "list",
		Short: "Print allocation records as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := rootOpts.environment(contextOf(cmd))
			if err != nil {
				return err
			}
			defer env.Close()
			records, err := env.service.Runtime().Records(contextOf(cmd), statuses...)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), records)
		},
	}
	list.Flags().StringSliceVar(&statuses, "status", nil, "only records with these statuses")

	get := &cobra.Command{
		Use:   "get <chainId>",
		Short: "Print one allocation record as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := rootOpts.environment(contextOf(cmd))
			if err != nil {
				return err
			}
			defer env.Close()
			record, err := env.service.Runtime().GetRecord(contextOf(cmd), args[0])
			if err != nil {
				return err
			}
			if record == nil {
				return fmt.Errorf("no record for chain %v", args[0])
			}
			return printJSON(cmd.OutOrStdout(), record)
		},
	}
	deadLetters := &cobra.Command{
		Use:   "dead-letters",
		Short: "Print submissions the overflow queue gave up on",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := rootOpts.environment(contextOf(cmd))
			if err != nil {
				return err
			}
			defer env.Close()
			return printJSON(cmd.OutOrStdout(), env.service.Runtime().DeadLetters())
		},
	}
	cmd.AddCommand(list, get, deadLetters)
	return cmd
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
