package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/liuxd6825/cdptab/api"
	"github.com/liuxd6825/cdptab/cmd/state"
)

func getCmdClick(gs *state.GlobalState) *cobra.Command {
	var url string

	cmd := &cobra.Command{
		Use:   "click SELECTOR",
		Short: "Click the first element matching a CSS selector",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return newSession(gs, cmd.Flags()).run(func(ctx context.Context, b api.Browser) error {
				if url != "" {
					if err := b.Navigate(ctx, url); err != nil {
						return err
					}
				}
				return b.Click(ctx, args[0])
			})
		},
	}
	cmd.Flags().AddFlagSet(browserFlagSet())
	cmd.Flags().StringVar(&url, "url", "", "navigate to this URL first")
	return cmd
}
