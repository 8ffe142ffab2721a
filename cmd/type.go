package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/liuxd6825/cdptab/api"
	"github.com/liuxd6825/cdptab/cmd/state"
)

func getCmdType(gs *state.GlobalState) *cobra.Command {
	var url string

	cmd := &cobra.Command{
		Use:   "type SELECTOR TEXT",
		Short: "Set the value of an input element",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return newSession(gs, cmd.Flags()).runTab("type", func(ctx context.Context, tab api.Tab) error {
				if url != "" {
					if err := tab.Navigate(ctx, url); err != nil {
						return err
					}
				}
				return tab.Type(ctx, args[0], args[1])
			})
		},
	}
	cmd.Flags().AddFlagSet(browserFlagSet())
	cmd.Flags().StringVar(&url, "url", "", "navigate to this URL first")
	return cmd
}
