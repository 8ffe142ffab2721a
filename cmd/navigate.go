package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/liuxd6825/cdptab/api"
	"github.com/liuxd6825/cdptab/cmd/state"
)

type cmdNavigate struct {
	gs      *state.GlobalState
	waitFor string
	timeout time.Duration
}

func (c *cmdNavigate) run(cmd *cobra.Command, args []string) error {
	url := args[0]
	s := newSession(c.gs, cmd.Flags())
	if c.waitFor == "" {
		return s.run(func(ctx context.Context, b api.Browser) error {
			return b.Navigate(ctx, url)
		})
	}
	return s.runTab("navigate --wait-for", func(ctx context.Context, tab api.Tab) error {
		if err := tab.Navigate(ctx, url); err != nil {
			return err
		}
		return tab.WaitForSelector(ctx, c.waitFor, c.timeout)
	})
}

func getCmdNavigate(gs *state.GlobalState) *cobra.Command {
	c := &cmdNavigate{gs: gs}

	cmd := &cobra.Command{
		Use:   "navigate URL",
		Short: "Load a URL in the tab",
		Example: `  cdptab navigate https://example.com/
  cdptab navigate --wait-for '#login' --timeout 10s https://example.com/login`,
		Args: cobra.ExactArgs(1),
		RunE: c.run,
	}
	cmd.Flags().AddFlagSet(browserFlagSet())
	cmd.Flags().StringVar(&c.waitFor, "wait-for", "", "wait for a CSS selector to match after loading")
	cmd.Flags().DurationVar(&c.timeout, "timeout", 30*time.Second, "how long --wait-for waits")
	return cmd
}
