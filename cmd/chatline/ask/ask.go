// Package askcmder provides the ask command, a one-shot question through
// the widget chat endpoint.
package askcmder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/chatline/pkg/cliui"
	"github.com/papercomputeco/chatline/pkg/config"
	"github.com/papercomputeco/chatline/pkg/console"
	"github.com/papercomputeco/chatline/pkg/logger"
	"github.com/papercomputeco/chatline/pkg/orchestrator"
	"github.com/papercomputeco/chatline/pkg/session"
	"github.com/papercomputeco/chatline/pkg/stream"
)

type askCommander struct {
	chatURL          string
	sessionID        string
	maxContentLength int
	timeout          time.Duration
	markdown         bool
	debug            bool

	out io.Writer
}

var askFlags = []string{
	config.FlagChatURL,
	config.FlagSession,
	config.FlagMaxContentLength,
}

const askLongDesc string = `Ask a single question and print the answer.

The question is posted to the widget chat endpoint, which answers with a
single JSON document instead of a stream. Words are joined with spaces, so
quoting is optional.

Examples:
  chatline ask What services do you offer?
  chatline ask --session kiosk-1 "How do I book a consultation?"
  chatline ask --markdown --chat-url https://example.com/chat Tell me more`

const askShortDesc string = "Ask a single question"

func NewAskCmd() *cobra.Command {
	cmder := &askCommander{}

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: askShortDesc,
		Long:  askLongDesc,
		Args:  cobra.MinimumNArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")

			v, err := config.InitViper(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			config.BindRegisteredFlags(v, cmd, config.Flags, askFlags)

			cmder.chatURL = v.GetString("client.chat_url")
			cmder.sessionID = v.GetString("client.session_id")
			cmder.maxContentLength = v.GetInt("widget.max_content_length")
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			cmder.out = cmd.OutOrStdout()
			return cmder.run(cmd.Context(), strings.Join(args, " "))
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagChatURL, &cmder.chatURL)
	config.AddStringFlag(cmd, config.Flags, config.FlagSession, &cmder.sessionID)
	config.AddIntFlag(cmd, config.Flags, config.FlagMaxContentLength, &cmder.maxContentLength)
	cmd.Flags().DurationVarP(&cmder.timeout, "timeout", "t", 2*time.Minute, "Give up after this long")
	cmd.Flags().BoolVarP(&cmder.markdown, "markdown", "m", false, "Render the answer as markdown")

	return cmd
}

func (c *askCommander) run(ctx context.Context, question string) error {
	log := logger.New(
		logger.WithDebug(c.debug),
		logger.WithPretty(true),
		logger.WithWriter(os.Stderr),
		logger.WithPrefix("chatline"),
	)

	// The question count is the server's to keep; only the length is
	// checked before sending.
	guard := session.NewGuard(session.Limits{MaxContentLength: c.maxContentLength})
	release, err := guard.Begin(question)
	if err != nil {
		return err
	}
	defer release()

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	client := orchestrator.NewClient(orchestrator.ClientConfig{
		ChatURL: c.chatURL,
		Logger:  log,
	})

	answer, err := client.Ask(ctx, strings.TrimSpace(question), c.sessionID)
	if err != nil {
		var transportErr *stream.TransportError
		if errors.As(err, &transportErr) {
			log.Debug("chat request failed", "error", err)
			return errors.New(console.NetworkErrorMessage)
		}
		return err
	}

	if c.markdown {
		width := 0
		if f, ok := c.out.(*os.File); ok {
			width = console.Width(f)
		}
		if rendered, err := cliui.RenderMarkdown(answer, width); err == nil {
			_, err = fmt.Fprint(c.out, rendered)
			return err
		}
	}

	_, err = fmt.Fprintln(c.out, answer)
	return err
}
