package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/liuxd6825/cdptab/cmd/state"
	"github.com/liuxd6825/cdptab/common"
	"github.com/liuxd6825/cdptab/errext"
	"github.com/liuxd6825/cdptab/errext/exitcodes"
	"github.com/liuxd6825/cdptab/log"
)

// tabRow is how a tab is printed by the tabs command.
type tabRow struct {
	ID           string `json:"id" yaml:"id"`
	Type         string `json:"type" yaml:"type"`
	Title        string `json:"title" yaml:"title"`
	URL          string `json:"url" yaml:"url"`
	WebSocketURL string `json:"webSocketDebuggerUrl" yaml:"webSocketDebuggerUrl"`
}

type tabsOutput struct {
	Browser string   `json:"browser" yaml:"browser"`
	Tabs    []tabRow `json:"tabs" yaml:"tabs"`
}

type cmdTabs struct {
	gs     *state.GlobalState
	output string
}

func (c *cmdTabs) run(cmd *cobra.Command, _ []string) error {
	opts, err := getBrowserOptions(c.gs, cmd.Flags())
	if err != nil {
		return err
	}

	dt := common.NewDevTools(common.BaseURL(opts.DebugPort), nil, log.New(c.gs.Logger, false, nil))
	v, err := dt.Version(c.gs.Ctx)
	if err != nil {
		return errext.WithHint(
			errext.WithExitCodeIfNone(err, exitcodes.ConnectionFailed),
			"start a browser with --remote-debugging-port or pass the right --port",
		)
	}

	out := tabsOutput{Browser: v.Browser, Tabs: []tabRow{}}
	for _, t := range dt.ListTabs(c.gs.Ctx) {
		out.Tabs = append(out.Tabs, tabRow{
			ID: t.ID, Type: t.Type, Title: t.Title, URL: t.URL, WebSocketURL: t.WebSocketDebuggerURL,
		})
	}

	w := cmd.OutOrStdout()
	switch c.output {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	case "yaml":
		data, err := yaml.Marshal(out)
		if err != nil {
			return fmt.Errorf("could not marshal YAML: %w", err)
		}
		_, err = w.Write(data)
		return err
	}

	maxCol := c.gs.TermWidth() / 3
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fprintf(tw, "%s\n\nID\tTYPE\tURL\tTITLE\n", out.Browser)
	for _, t := range out.Tabs {
		fprintf(tw, "%s\t%s\t%s\t%s\n", t.ID, t.Type, truncate(t.URL, maxCol), truncate(t.Title, maxCol))
	}
	return tw.Flush()
}

// truncate shortens s to at most n runes, marking the cut with an ellipsis.
func truncate(s string, n int) string {
	r := []rune(s)
	if n < 2 || len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func getCmdTabs(gs *state.GlobalState) *cobra.Command {
	c := &cmdTabs{gs: gs}

	cmd := &cobra.Command{
		Use:   "tabs",
		Short: "List the tabs of a running browser",
		Long: `List the targets of the browser listening on --port. Nothing is launched
and no tab is created.`,
		Args: cobra.NoArgs,
		PreRunE: func(*cobra.Command, []string) error {
			switch c.output {
			case "text", "json", "yaml":
				return nil
			}
			return errext.WithExitCodeIfNone(
				fmt.Errorf("unknown output format %q, expected text, json or yaml", c.output),
				exitcodes.InvalidConfig,
			)
		},
		RunE: c.run,
	}
	cmd.Flags().AddFlagSet(browserFlagSet())
	cmd.Flags().StringVarP(&c.output, "output", "o", "text", "output format: text, json or yaml")
	return cmd
}
