// Package backends opens the transcript store and event publisher that the
// chatline commands are configured with.
package backends

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/papercomputeco/chatline/pkg/config"
	"github.com/papercomputeco/chatline/pkg/eventstream"
	"github.com/papercomputeco/chatline/pkg/eventstream/kafka"
	"github.com/papercomputeco/chatline/pkg/eventstream/nop"
	"github.com/papercomputeco/chatline/pkg/logger"
	"github.com/papercomputeco/chatline/pkg/storage"
	"github.com/papercomputeco/chatline/pkg/storage/inmemory"
	"github.com/papercomputeco/chatline/pkg/storage/postgres"
	"github.com/papercomputeco/chatline/pkg/storage/sqlite"
)

// Options selects the backends. PostgresDSN wins over SQLitePath; with
// neither set exchanges are kept in memory. Publishing is disabled without
// KafkaBrokers.
type Options struct {
	PostgresDSN  string
	SQLitePath   string
	KafkaBrokers []string
	KafkaTopic   string
	Logger       *slog.Logger
}

// OptionsFromViper reads Options from a viper instance returned by
// config.InitViper.
func OptionsFromViper(v *viper.Viper, l *slog.Logger) Options {
	return Options{
		PostgresDSN:  v.GetString("storage.postgres_dsn"),
		SQLitePath:   v.GetString("storage.sqlite_path"),
		KafkaBrokers: config.KafkaBrokers(v),
		KafkaTopic:   v.GetString("eventstream.kafka_topic"),
		Logger:       l,
	}
}

// NewStorageDriver opens the configured transcript store.
func NewStorageDriver(ctx context.Context, opts Options) (storage.Driver, error) {
	l := opts.Logger
	if l == nil {
		l = logger.Nop()
	}

	switch {
	case opts.PostgresDSN != "":
		driver, err := postgres.NewDriver(ctx, opts.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to create PostgreSQL storer: %w", err)
		}
		l.Info("using PostgreSQL storage")
		return driver, nil

	case opts.SQLitePath != "":
		driver, err := sqlite.NewDriver(ctx, opts.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite storer: %w", err)
		}
		l.Info("using SQLite storage", "path", opts.SQLitePath)
		return driver, nil
	}

	l.Info("using in-memory storage")
	return inmemory.NewDriver(), nil
}

// NewPublisher returns a Kafka publisher when brokers are configured and a
// no-op publisher otherwise.
func NewPublisher(opts Options) (eventstream.Publisher, error) {
	if len(opts.KafkaBrokers) == 0 {
		return nop.NewPublisher(), nil
	}

	p, err := kafka.NewPublisher(kafka.PublisherConfig{
		Brokers: opts.KafkaBrokers,
		Topic:   opts.KafkaTopic,
		Logger:  opts.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating kafka publisher: %w", err)
	}

	if opts.Logger != nil {
		opts.Logger.Info("publishing exchange events",
			"brokers", strings.Join(opts.KafkaBrokers, ","),
			"topic", opts.KafkaTopic,
		)
	}
	return p, nil
}

// ResolveSQLitePath finds an existing transcript database for read-only
// commands when none is configured: CHATLINE_SQLITE, then the first
// well-known location that exists.
func ResolveSQLitePath(override string) (string, error) {
	if override != "" {
		return override, nil
	}

	if envPath := strings.TrimSpace(os.Getenv("CHATLINE_SQLITE")); envPath != "" {
		return envPath, nil
	}

	for _, candidate := range sqliteCandidates() {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}

	return "", errors.New("could not find a chatline transcript database; pass --sqlite or --postgres")
}

func sqliteCandidates() []string {
	candidates := []string{
		"chatline.db",
		"chatline.sqlite",
		filepath.Join(".chatline", "chatline.db"),
		filepath.Join(".chatline", "chatline.sqlite"),
	}

	home, err := os.UserHomeDir()
	if err == nil {
		candidates = append(candidates,
			filepath.Join(home, ".chatline", "chatline.db"),
			filepath.Join(home, ".chatline", "chatline.sqlite"),
		)
	}

	return candidates
}
