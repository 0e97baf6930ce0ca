// Package consolecmder provides the interactive console command.
package consolecmder

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/papercomputeco/chatline/cmd/chatline/backends"
	"github.com/papercomputeco/chatline/pkg/config"
	"github.com/papercomputeco/chatline/pkg/console"
	"github.com/papercomputeco/chatline/pkg/dotdir"
	"github.com/papercomputeco/chatline/pkg/logger"
	"github.com/papercomputeco/chatline/pkg/orchestrator"
	"github.com/papercomputeco/chatline/pkg/session"
)

type consoleCommander struct {
	orchestrator     string
	sessionID        string
	sqlitePath       string
	postgresDSN      string
	kafkaBrokers     string
	kafkaTopic       string
	maxQuestions     int
	maxContentLength int
	markdown         bool
	debug            bool
	configDir        string

	in      io.Reader
	out     io.Writer
	signals chan os.Signal

	viper  *viper.Viper
	logger *slog.Logger
}

var consoleFlags = []string{
	config.FlagOrchestrator,
	config.FlagSession,
	config.FlagSQLite,
	config.FlagPostgres,
	config.FlagKafkaBrokers,
	config.FlagKafkaTopic,
	config.FlagMaxQuestions,
	config.FlagMaxContentLength,
}

const consoleLongDesc string = `Chat interactively with the streaming orchestrator.

Each message is posted to the orchestrator and its answer is streamed into
the terminal as it is generated. While the orchestrator is working, a dim
status line shows what it is thinking about.

Messages are limited in length and in number per day. The daily count is
kept in the .chatline/ directory so it survives restarts.

Exchanges are recorded to the configured transcript store (see
"chatline history") and published to Kafka when brokers are configured.

Press Ctrl+C to stop an answer, and /exit or Ctrl+D to quit. Ctrl+C at
the prompt quits as well.

Examples:
  chatline console
  chatline console --orchestrator https://example.com/api/orchestrator
  chatline console --markdown --sqlite ./chatline.db`

const consoleShortDesc string = "Chat interactively with the orchestrator"

func NewConsoleCmd() *cobra.Command {
	cmder := &consoleCommander{}

	cmd := &cobra.Command{
		Use:   "console",
		Short: consoleShortDesc,
		Long:  consoleLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")

			v, err := config.InitViper(cmder.configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			config.BindRegisteredFlags(v, cmd, config.Flags, consoleFlags)

			cmder.viper = v
			cmder.orchestrator = v.GetString("client.orchestrator_url")
			cmder.sessionID = v.GetString("client.session_id")
			cmder.sqlitePath = v.GetString("storage.sqlite_path")
			cmder.postgresDSN = v.GetString("storage.postgres_dsn")
			cmder.kafkaTopic = v.GetString("eventstream.kafka_topic")
			cmder.maxQuestions = v.GetInt("widget.max_questions")
			cmder.maxContentLength = v.GetInt("widget.max_content_length")
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			cmder.in = cmd.InOrStdin()
			cmder.out = cmd.OutOrStdout()

			cmder.signals = make(chan os.Signal, 1)
			signal.Notify(cmder.signals, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(cmder.signals)

			return cmder.run(cmd.Context())
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagOrchestrator, &cmder.orchestrator)
	config.AddStringFlag(cmd, config.Flags, config.FlagSession, &cmder.sessionID)
	config.AddStringFlag(cmd, config.Flags, config.FlagSQLite, &cmder.sqlitePath)
	config.AddStringFlag(cmd, config.Flags, config.FlagPostgres, &cmder.postgresDSN)
	config.AddStringFlag(cmd, config.Flags, config.FlagKafkaBrokers, &cmder.kafkaBrokers)
	config.AddStringFlag(cmd, config.Flags, config.FlagKafkaTopic, &cmder.kafkaTopic)
	config.AddIntFlag(cmd, config.Flags, config.FlagMaxQuestions, &cmder.maxQuestions)
	config.AddIntFlag(cmd, config.Flags, config.FlagMaxContentLength, &cmder.maxContentLength)
	cmd.Flags().BoolVarP(&cmder.markdown, "markdown", "m", false, "Re-render each completed answer as markdown")

	return cmd
}

func (c *consoleCommander) run(ctx context.Context) error {
	c.logger = logger.New(
		logger.WithDebug(c.debug),
		logger.WithPretty(true),
		logger.WithWriter(os.Stderr),
		logger.WithPrefix("chatline"),
	)

	// Backend selection is only interesting when debugging.
	backendLogger := logger.Nop()
	if c.debug {
		backendLogger = c.logger
	}
	opts := backends.OptionsFromViper(c.viper, backendLogger)

	driver, err := backends.NewStorageDriver(ctx, opts)
	if err != nil {
		return err
	}
	defer driver.Close()

	publisher, err := backends.NewPublisher(opts)
	if err != nil {
		return err
	}
	defer publisher.Close()

	guard := session.NewGuard(session.Limits{
		MaxQuestions:     c.maxQuestions,
		MaxContentLength: c.maxContentLength,
	})

	ddm := dotdir.NewManager()
	usage, err := ddm.LoadUsageState(c.configDir)
	if err != nil {
		c.logger.Warn("could not load question count", "error", err)
	}
	guard.Restore(usage.AskedOn(c.sessionID, time.Now()))

	client := orchestrator.NewClient(orchestrator.ClientConfig{
		StreamURL: c.orchestrator,
		Logger:    c.logger,
	})

	width := 0
	if f, ok := c.out.(*os.File); ok {
		width = console.Width(f)
	}

	con := console.New(console.Config{
		Client:    client,
		Guard:     guard,
		SessionID: c.sessionID,
		Endpoint:  c.orchestrator,
		In:        c.in,
		Out:       c.out,
		Width:     width,
		Markdown:  c.markdown,

		FrequentQuestions: config.FrequentQuestions(c.viper),

		Driver:    driver,
		Publisher: publisher,
		OnAdmitted: func(asked int) {
			state := dotdir.NewUsageState(c.sessionID, asked, time.Now())
			if err := ddm.SaveUsageState(state, c.configDir); err != nil {
				c.logger.Warn("could not save question count", "error", err)
			}
		},
		Logger: c.logger,
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go watchSignals(ctx, c.signals, con, func() {
		cancel()
		// Restore default handling so another interrupt kills the process
		// while the prompt waits for input.
		if c.signals != nil {
			signal.Stop(c.signals)
		}
	})

	c.logger.Debug("starting console",
		"orchestrator", c.orchestrator,
		"session_id", c.sessionID,
		"remaining", guard.Remaining(),
	)

	return con.Run(ctx)
}

// watchSignals stops the answer in flight on an interrupt and calls quit for
// an interrupt at the prompt or any other signal.
func watchSignals(ctx context.Context, signals <-chan os.Signal, con interrupter, quit func()) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-signals:
			if !ok {
				return
			}
			if sig == os.Interrupt && con.Interrupt() {
				continue
			}
			quit()
			return
		}
	}
}

type interrupter interface {
	Interrupt() bool
}
