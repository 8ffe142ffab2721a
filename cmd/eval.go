package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/liuxd6825/cdptab/api"
	"github.com/liuxd6825/cdptab/cmd/state"
	"github.com/liuxd6825/cdptab/errext"
	"github.com/liuxd6825/cdptab/errext/exitcodes"
)

type cmdEval struct {
	gs   *state.GlobalState
	args []string
}

// parseArgs decodes each --arg value as JSON, falling back to the raw
// string when it is not valid JSON.
func parseArgs(raw []string) []any {
	args := make([]any, 0, len(raw))
	for _, r := range raw {
		var v any
		if err := json.Unmarshal([]byte(r), &v); err != nil {
			v = r
		}
		args = append(args, v)
	}
	return args
}

func (c *cmdEval) run(cmd *cobra.Command, args []string) error {
	script := args[0]
	return newSession(c.gs, cmd.Flags()).run(func(ctx context.Context, b api.Browser) error {
		v, err := b.Evaluate(ctx, script, parseArgs(c.args)...)
		if err != nil {
			return err
		}
		out, err := json.Marshal(v)
		if err != nil {
			return errext.WithExitCodeIfNone(fmt.Errorf("encoding the result: %w", err), exitcodes.GenericError)
		}
		fprintf(cmd.OutOrStdout(), "%s\n", out)
		return nil
	})
}

func getCmdEval(gs *state.GlobalState) *cobra.Command {
	c := &cmdEval{gs: gs}

	cmd := &cobra.Command{
		Use:   "eval SCRIPT",
		Short: "Evaluate JavaScript in the tab and print the result as JSON",
		Example: `  cdptab eval 'document.title'
  cdptab eval --param 2 --param 3 '(a, b) => a * b'`,
		Args: cobra.ExactArgs(1),
		RunE: c.run,
	}
	cmd.Flags().AddFlagSet(browserFlagSet())
	cmd.Flags().StringArrayVar(&c.args, "param", nil,
		"argument passed to a function SCRIPT, decoded as JSON when possible; can be repeated")
	return cmd
}
