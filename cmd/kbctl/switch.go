package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSwitchCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "switch NAME",
		Short: "Make NAME the backend's active knowledge base",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.client().SwitchVectorDB(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "switched to %s\n", args[0])
			return nil
		},
	}
}

func newHealthCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the backend is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := opts.client()
			if err := c.Health(cmd.Context()); err != nil {
				return fmt.Errorf("backend %s unreachable: %w", c.BaseURL(), err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "backend %s ok\n", c.BaseURL())
			return nil
		},
	}
}
