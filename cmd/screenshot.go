package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/liuxd6825/cdptab/api"
	"github.com/liuxd6825/cdptab/cmd/state"
)

func getCmdScreenshot(gs *state.GlobalState) *cobra.Command {
	var url string

	cmd := &cobra.Command{
		Use:   "screenshot PATH",
		Short: "Save a PNG of the visible part of the tab",
		Long: `Save a PNG of the visible part of the tab to PATH. Missing parent
directories are created.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return newSession(gs, cmd.Flags()).runTab("screenshot", func(ctx context.Context, tab api.Tab) error {
				if url != "" {
					if err := tab.Navigate(ctx, url); err != nil {
						return err
					}
				}
				if err := tab.Screenshot(ctx, args[0]); err != nil {
					return err
				}
				gs.Logger.Infof("screenshot saved to %s", args[0])
				return nil
			})
		},
	}
	cmd.Flags().AddFlagSet(browserFlagSet())
	cmd.Flags().StringVar(&url, "url", "", "navigate to this URL first")
	return cmd
}
