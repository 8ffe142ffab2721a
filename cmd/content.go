package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/spf13/cobra"

	"github.com/liuxd6825/cdptab/api"
	"github.com/liuxd6825/cdptab/cmd/state"
	"github.com/liuxd6825/cdptab/errext"
	"github.com/liuxd6825/cdptab/errext/exitcodes"
)

type cmdContent struct {
	gs       *state.GlobalState
	url      string
	selector string
	text     bool
}

// extract returns the outer HTML, or the text, of every element of html
// matching selector.
func extract(html, selector string, text bool) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parsing the document: %w", err)
	}
	var out []string
	doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if text {
			out = append(out, strings.TrimSpace(s.Text()))
			return true
		}
		h, herr := goquery.OuterHtml(s)
		if herr != nil {
			err = herr
			return false
		}
		out = append(out, h)
		return true
	})
	return out, err
}

func (c *cmdContent) run(cmd *cobra.Command, _ []string) error {
	return newSession(c.gs, cmd.Flags()).runTab("content", func(ctx context.Context, tab api.Tab) error {
		if c.url != "" {
			if err := tab.Navigate(ctx, c.url); err != nil {
				return err
			}
		}
		html, err := tab.Content(ctx)
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		if c.selector == "" {
			fprintf(w, "%s\n", html)
			return nil
		}

		parts, err := extract(html, c.selector, c.text)
		if err != nil {
			return errext.WithExitCodeIfNone(err, exitcodes.GenericError)
		}
		for _, p := range parts {
			fprintf(w, "%s\n", p)
		}
		return nil
	})
}

func getCmdContent(gs *state.GlobalState) *cobra.Command {
	c := &cmdContent{gs: gs}

	cmd := &cobra.Command{
		Use:   "content",
		Short: "Print the HTML of the tab",
		Example: `  cdptab content
  cdptab content --selector 'h1' --text`,
		Args: cobra.NoArgs,
		RunE: c.run,
	}
	cmd.Flags().AddFlagSet(browserFlagSet())
	cmd.Flags().StringVar(&c.url, "url", "", "navigate to this URL first")
	cmd.Flags().StringVar(&c.selector, "selector", "", "only print the elements matching this CSS selector")
	cmd.Flags().BoolVar(&c.text, "text", false, "print the text of the matched elements instead of their HTML")
	return cmd
}
