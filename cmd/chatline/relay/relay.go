// Package relaycmder provides the relay server command.
package relaycmder

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/papercomputeco/chatline/cmd/chatline/backends"
	"github.com/papercomputeco/chatline/pkg/cliui"
	"github.com/papercomputeco/chatline/pkg/config"
	"github.com/papercomputeco/chatline/pkg/logger"
	"github.com/papercomputeco/chatline/pkg/session"
	"github.com/papercomputeco/chatline/pkg/storage"
	"github.com/papercomputeco/chatline/relay"
)

type relayCommander struct {
	listen           string
	upstream         string
	sqlitePath       string
	postgresDSN      string
	kafkaBrokers     string
	kafkaTopic       string
	maxQuestions     int
	maxContentLength int
	logFile          string
	debug            bool

	viper  *viper.Viper
	logger *slog.Logger
	errOut io.Writer
}

var relayFlags = []string{
	config.FlagListen,
	config.FlagUpstream,
	config.FlagSQLite,
	config.FlagPostgres,
	config.FlagKafkaBrokers,
	config.FlagKafkaTopic,
	config.FlagMaxQuestions,
	config.FlagMaxContentLength,
}

const relayLongDesc string = `Run the relay server.

The relay sits in front of the orchestrator and forwards the streaming
endpoint (POST /api/orchestrator) and the widget endpoint (POST /chat)
unchanged, applying the per-session question limits first.

Every answer is read as it passes through and recorded as an exchange in
the configured transcript store, which is served back at GET /transcripts
and GET /transcripts/:id. Exchanges are also published to Kafka when
brokers are configured.

Sessions are identified by the session_id in the request body, the
X-Chatline-Session header, or the client address, in that order.

Examples:
  chatline relay --upstream http://localhost:8000
  chatline relay --listen :9090 --sqlite ./chatline.db
  chatline relay --postgres postgres://chatline@db/chatline --kafka-brokers kafka:9092`

const relayShortDesc string = "Run the recording relay server"

func NewRelayCmd() *cobra.Command {
	cmder := &relayCommander{}

	cmd := &cobra.Command{
		Use:   "relay",
		Short: relayShortDesc,
		Long:  relayLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")

			v, err := config.InitViper(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			config.BindRegisteredFlags(v, cmd, config.Flags, relayFlags)

			cmder.viper = v
			cmder.listen = v.GetString("relay.listen")
			cmder.upstream = v.GetString("relay.upstream")
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

			cmder.errOut = cmd.ErrOrStderr()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return cmder.run(ctx)
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagListen, &cmder.listen)
	config.AddStringFlag(cmd, config.Flags, config.FlagUpstream, &cmder.upstream)
	config.AddStringFlag(cmd, config.Flags, config.FlagSQLite, &cmder.sqlitePath)
	config.AddStringFlag(cmd, config.Flags, config.FlagPostgres, &cmder.postgresDSN)
	config.AddStringFlag(cmd, config.Flags, config.FlagKafkaBrokers, &cmder.kafkaBrokers)
	config.AddStringFlag(cmd, config.Flags, config.FlagKafkaTopic, &cmder.kafkaTopic)
	config.AddIntFlag(cmd, config.Flags, config.FlagMaxQuestions, &cmder.maxQuestions)
	config.AddIntFlag(cmd, config.Flags, config.FlagMaxContentLength, &cmder.maxContentLength)
	cmd.Flags().StringVar(&cmder.logFile, "log-file", "", "Also append JSON logs to this file")

	return cmd
}

func (c *relayCommander) run(ctx context.Context) error {
	l, closeLog, err := c.newLogger()
	if err != nil {
		return err
	}
	defer closeLog()
	c.logger = l

	opts := backends.OptionsFromViper(c.viper, c.logger)

	var driver storage.Driver
	err = cliui.Step(c.errOut, "opening transcript store", func() error {
		var err error
		driver, err = backends.NewStorageDriver(ctx, opts)
		return err
	})
	if err != nil {
		return err
	}
	defer driver.Close()

	publisher, err := backends.NewPublisher(opts)
	if err != nil {
		return err
	}
	defer publisher.Close()

	r, err := relay.New(relay.Config{
		ListenAddr:  c.listen,
		UpstreamURL: c.upstream,
		Limits: session.Limits{
			MaxQuestions:     c.maxQuestions,
			MaxContentLength: c.maxContentLength,
		},
		Publisher: publisher,
	}, driver, c.logger)
	if err != nil {
		return fmt.Errorf("creating relay: %w", err)
	}

	c.logger.Debug("session limits",
		"max_questions", c.maxQuestions,
		"max_content_length", c.maxContentLength,
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- r.Run()
	}()

	select {
	case err = <-errCh:
	case <-ctx.Done():
		c.logger.Info("shutting down relay server")
	}

	if closeErr := r.Close(); closeErr != nil {
		c.logger.Warn("error during shutdown", "error", closeErr)
	}
	if err != nil {
		return fmt.Errorf("running relay: %w", err)
	}
	return nil
}

// newLogger prints pretty records to stderr and, with --log-file, appends
// JSON records to the file as well.
func (c *relayCommander) newLogger() (*slog.Logger, func(), error) {
	pretty := logger.New(
		logger.WithDebug(c.debug),
		logger.WithPretty(true),
		logger.WithWriter(os.Stderr),
		logger.WithPrefix("relay"),
	)
	if c.logFile == "" {
		return pretty, func() {}, nil
	}

	f, err := os.OpenFile(c.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}

	jsonLog := logger.New(
		logger.WithDebug(c.debug),
		logger.WithJSON(true),
		logger.WithWriter(f),
	)
	return logger.Multi(pretty, jsonLog), func() { _ = f.Close() }, nil
}
