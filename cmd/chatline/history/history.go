// Package historycmder provides the history command for browsing recorded
// exchanges.
package historycmder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/chatline/cmd/chatline/backends"
	"github.com/papercomputeco/chatline/pkg/cliui"
	"github.com/papercomputeco/chatline/pkg/config"
	"github.com/papercomputeco/chatline/pkg/console"
	"github.com/papercomputeco/chatline/pkg/storage"
	"github.com/papercomputeco/chatline/pkg/utils"
)

const previewLen = 72

type historyCommander struct {
	sqlitePath  string
	postgresDSN string
	sessionID   string
	id          string
	limit       int
	jsonOut     bool

	out io.Writer
}

var historyFlags = []string{
	config.FlagSQLite,
	config.FlagPostgres,
}

const historyLongDesc string = `Show recorded exchanges.

Lists exchanges newest first, one per line, or shows a single exchange in
full with --id. Answers are rendered as markdown.

Transcripts are read from the configured PostgreSQL or SQLite store. When
neither is configured, a chatline.db in ./, ./.chatline/ or ~/.chatline/
is used.

Examples:
  chatline history
  chatline history --session kiosk-1 --limit 5
  chatline history --id 5f1c9a5e-7d0b-4c53-9e56-0b8f0d1e2a3b
  chatline history --json`

const historyShortDesc string = "Show recorded exchanges"

func NewHistoryCmd() *cobra.Command {
	cmder := &historyCommander{}

	cmd := &cobra.Command{
		Use:   "history",
		Short: historyShortDesc,
		Long:  historyLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")

			v, err := config.InitViper(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			config.BindRegisteredFlags(v, cmd, config.Flags, historyFlags)

			cmder.sqlitePath = v.GetString("storage.sqlite_path")
			cmder.postgresDSN = v.GetString("storage.postgres_dsn")

			if cmder.limit < 0 {
				return errors.New("--limit must not be negative")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmder.out = cmd.OutOrStdout()
			return cmder.run(cmd.Context())
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagSQLite, &cmder.sqlitePath)
	config.AddStringFlag(cmd, config.Flags, config.FlagPostgres, &cmder.postgresDSN)
	cmd.Flags().StringVar(&cmder.sessionID, "session", "", "Only show exchanges from this session")
	cmd.Flags().StringVar(&cmder.id, "id", "", "Show a single exchange in full")
	cmd.Flags().IntVarP(&cmder.limit, "limit", "n", 20, "Maximum number of exchanges to list (0 for all)")
	cmd.Flags().BoolVar(&cmder.jsonOut, "json", false, "Print exchanges as JSON")

	return cmd
}

func (c *historyCommander) run(ctx context.Context) error {
	opts := backends.Options{PostgresDSN: c.postgresDSN, SQLitePath: c.sqlitePath}
	if opts.PostgresDSN == "" {
		path, err := backends.ResolveSQLitePath(c.sqlitePath)
		if err != nil {
			return err
		}
		opts.SQLitePath = path
	}

	driver, err := backends.NewStorageDriver(ctx, opts)
	if err != nil {
		return err
	}
	defer driver.Close()

	if c.id != "" {
		ex, err := driver.Get(ctx, c.id)
		if err != nil {
			return err
		}
		if c.jsonOut {
			return c.writeJSON(ex)
		}
		return c.show(ex)
	}

	exchanges, err := driver.List(ctx, storage.ListOptions{
		SessionID: c.sessionID,
		Limit:     c.limit,
	})
	if err != nil {
		return fmt.Errorf("listing exchanges: %w", err)
	}

	if c.jsonOut {
		if exchanges == nil {
			exchanges = []*storage.Exchange{}
		}
		return c.writeJSON(exchanges)
	}

	if len(exchanges) == 0 {
		fmt.Fprintf(c.out, "  %s\n", cliui.DimStyle.Render("No exchanges recorded yet."))
		return nil
	}

	for _, ex := range exchanges {
		fmt.Fprintf(c.out, "%s %s %s %s\n",
			cliui.Mark(exchangeError(ex)),
			cliui.MutedStyle.Render(ex.StartedAt.Local().Format("2006-01-02 15:04:05")),
			cliui.MutedStyle.Render(ex.ID),
			cliui.KeyStyle.Render(utils.Truncate(oneLine(ex.Message), previewLen)),
		)
		if answer := oneLine(ex.Answer); answer != "" {
			fmt.Fprintf(c.out, "    %s\n", cliui.ValueStyle.Render(utils.Truncate(answer, previewLen)))
		}
	}

	return nil
}

// show prints one exchange with its answer rendered as markdown.
func (c *historyCommander) show(ex *storage.Exchange) error {
	fields := []struct{ key, value string }{
		{"ID:", ex.ID},
		{"Session:", ex.SessionID},
		{"Endpoint:", ex.Endpoint},
		{"Started:", ex.StartedAt.Local().Format("2006-01-02 15:04:05")},
		{"Duration:", cliui.FormatDuration(ex.Duration())},
		{"Status:", fmt.Sprint(ex.HTTPStatus)},
	}

	fmt.Fprintln(c.out)
	for _, f := range fields {
		fmt.Fprintf(c.out, "  %s %s\n", cliui.KeyStyle.Render(fmt.Sprintf("%-9s", f.key)), cliui.ValueStyle.Render(f.value))
	}
	if ex.Thought != "" {
		fmt.Fprintf(c.out, "  %s %s\n", cliui.KeyStyle.Render(fmt.Sprintf("%-9s", "Thought:")), cliui.ThinkingStyle.Render(ex.Thought))
	}

	fmt.Fprintf(c.out, "\n  %s %s\n", cliui.PromptStyle.Render("you>"), ex.Message)

	width := 0
	if f, ok := c.out.(*os.File); ok {
		width = console.Width(f)
	}
	rendered, err := cliui.RenderMarkdown(ex.Answer, width)
	if err != nil {
		rendered = ex.Answer + "\n"
	}
	fmt.Fprint(c.out, rendered)

	for _, msg := range ex.Errors {
		fmt.Fprintf(c.out, "  %s\n", cliui.ErrorStyle.Render("❌ "+msg))
	}
	return nil
}

func (c *historyCommander) writeJSON(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// exchangeError returns a non-nil error for exchanges that did not end well.
func exchangeError(ex *storage.Exchange) error {
	switch {
	case len(ex.Errors) > 0:
		return errors.New(ex.Errors[0])
	case ex.HTTPStatus < 200 || ex.HTTPStatus > 299:
		return fmt.Errorf("status %d", ex.HTTPStatus)
	}
	return nil
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
