package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/papercomputeco/chatline/pkg/dotdir"
)

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads the config.toml file
// (if found via dotdir resolution), and binds environment variables
// with the CHATLINE_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via BindRegisteredFlags)
//  2. Environment variables (CHATLINE_RELAY_LISTEN, CHATLINE_CLIENT_SESSION_ID, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	// 1. Register all defaults from NewDefaultConfig().
	setViperDefaults(v)

	// 2. Config file discovery via dotdir resolution.
	v.SetConfigName("config")
	v.SetConfigType("toml")

	ddm := dotdir.NewManager()
	target, err := ddm.Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	if target != "" {
		v.AddConfigPath(target)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	// 3. Environment variables: CHATLINE_RELAY_LISTEN, CHATLINE_STORAGE_SQLITE_PATH, etc.
	v.SetEnvPrefix("CHATLINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)

	// Client
	v.SetDefault("client.orchestrator_url", d.Client.OrchestratorURL)
	v.SetDefault("client.chat_url", d.Client.ChatURL)
	v.SetDefault("client.session_id", d.Client.SessionID)

	// Relay
	v.SetDefault("relay.listen", d.Relay.Listen)
	v.SetDefault("relay.upstream", d.Relay.Upstream)

	// Storage
	v.SetDefault("storage.sqlite_path", d.Storage.SQLitePath)
	v.SetDefault("storage.postgres_dsn", d.Storage.PostgresDSN)

	// Widget
	v.SetDefault("widget.max_questions", d.Widget.MaxQuestions)
	v.SetDefault("widget.max_content_length", d.Widget.MaxContentLength)
	v.SetDefault("widget.frequent_questions", d.Widget.FrequentQuestions)

	// Booking
	v.SetDefault("booking.base_url", d.Booking.BaseURL)

	// Event stream
	v.SetDefault("eventstream.kafka_brokers", "")
	v.SetDefault("eventstream.kafka_topic", d.EventStream.KafkaTopic)
}

// FrequentQuestions returns the suggested questions. The value may come from
// the TOML list or from a QuestionSeparator-separated environment variable.
func FrequentQuestions(v *viper.Viper) []string {
	raw := v.Get("widget.frequent_questions")
	switch val := raw.(type) {
	case []any:
		out := make([]string, 0, len(val))
		for _, q := range val {
			if s := strings.TrimSpace(fmt.Sprint(q)); s != "" {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return SplitQuestions(strings.Join(val, QuestionSeparator))
	default:
		return SplitQuestions(v.GetString("widget.frequent_questions"))
	}
}

// KafkaBrokers returns the configured brokers. The value may come from the
// TOML list or from a comma-separated flag or environment variable.
func KafkaBrokers(v *viper.Viper) []string {
	raw := v.Get("eventstream.kafka_brokers")
	switch val := raw.(type) {
	case []any:
		out := make([]string, 0, len(val))
		for _, b := range val {
			out = append(out, SplitList(fmt.Sprint(b))...)
		}
		return out
	case []string:
		return SplitList(strings.Join(val, ","))
	default:
		return SplitList(v.GetString("eventstream.kafka_brokers"))
	}
}
