package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Config represents the persistent chatline configuration stored as
// config.toml in the .chatline/ directory. The TOML layout uses sections for
// logical grouping.
type Config struct {
	Version     int               `toml:"version"`
	Client      ClientConfig      `toml:"client"`
	Relay       RelayConfig       `toml:"relay"`
	Storage     StorageConfig     `toml:"storage"`
	Widget      WidgetConfig      `toml:"widget"`
	Booking     BookingConfig     `toml:"booking"`
	EventStream EventStreamConfig `toml:"eventstream"`
}

// ClientConfig holds settings for commands that talk to an orchestrator
// (chatline console, chatline ask). Values are full URLs.
type ClientConfig struct {
	OrchestratorURL string `toml:"orchestrator_url,omitempty"`
	ChatURL         string `toml:"chat_url,omitempty"`
	SessionID       string `toml:"session_id,omitempty"`
}

// RelayConfig holds relay server settings.
type RelayConfig struct {
	Listen   string `toml:"listen,omitempty"`
	Upstream string `toml:"upstream,omitempty"`
}

// StorageConfig holds transcript storage settings shared by the console and
// the relay. PostgresDSN takes precedence over SQLitePath; with neither set
// exchanges are kept in memory.
type StorageConfig struct {
	SQLitePath  string `toml:"sqlite_path,omitempty"`
	PostgresDSN string `toml:"postgres_dsn,omitempty"`
}

// WidgetConfig holds the per-session question limits and the suggested
// questions offered by the console.
type WidgetConfig struct {
	MaxQuestions      int      `toml:"max_questions,omitempty"`
	MaxContentLength  int      `toml:"max_content_length,omitempty"`
	FrequentQuestions []string `toml:"frequent_questions,omitempty"`
}

// BookingConfig holds the consultation booking page settings.
type BookingConfig struct {
	BaseURL string `toml:"base_url,omitempty"`
}

// EventStreamConfig holds exchange event publishing settings. Publishing is
// disabled when no brokers are configured.
type EventStreamConfig struct {
	KafkaBrokers []string `toml:"kafka_brokers,omitempty"`
	KafkaTopic   string   `toml:"kafka_topic,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"client.orchestrator_url": {
		get: func(c *Config) string { return c.Client.OrchestratorURL },
		set: func(c *Config, v string) error { c.Client.OrchestratorURL = v; return nil },
	},
	"client.chat_url": {
		get: func(c *Config) string { return c.Client.ChatURL },
		set: func(c *Config, v string) error { c.Client.ChatURL = v; return nil },
	},
	"client.session_id": {
		get: func(c *Config) string { return c.Client.SessionID },
		set: func(c *Config, v string) error { c.Client.SessionID = v; return nil },
	},
	"relay.listen": {
		get: func(c *Config) string { return c.Relay.Listen },
		set: func(c *Config, v string) error { c.Relay.Listen = v; return nil },
	},
	"relay.upstream": {
		get: func(c *Config) string { return c.Relay.Upstream },
		set: func(c *Config, v string) error { c.Relay.Upstream = v; return nil },
	},
	"storage.sqlite_path": {
		get: func(c *Config) string { return c.Storage.SQLitePath },
		set: func(c *Config, v string) error { c.Storage.SQLitePath = v; return nil },
	},
	"storage.postgres_dsn": {
		get: func(c *Config) string { return c.Storage.PostgresDSN },
		set: func(c *Config, v string) error { c.Storage.PostgresDSN = v; return nil },
	},
	"widget.max_questions": {
		get: func(c *Config) string { return strconv.Itoa(c.Widget.MaxQuestions) },
		set: func(c *Config, v string) error {
			n, err := parseNonNegative(v)
			if err != nil {
				return fmt.Errorf("invalid value for widget.max_questions: %w", err)
			}
			c.Widget.MaxQuestions = n
			return nil
		},
	},
	"widget.max_content_length": {
		get: func(c *Config) string { return strconv.Itoa(c.Widget.MaxContentLength) },
		set: func(c *Config, v string) error {
			n, err := parseNonNegative(v)
			if err != nil {
				return fmt.Errorf("invalid value for widget.max_content_length: %w", err)
			}
			c.Widget.MaxContentLength = n
			return nil
		},
	},
	"widget.frequent_questions": {
		get: func(c *Config) string { return strings.Join(c.Widget.FrequentQuestions, QuestionSeparator) },
		set: func(c *Config, v string) error {
			c.Widget.FrequentQuestions = SplitQuestions(v)
			return nil
		},
	},
	"booking.base_url": {
		get: func(c *Config) string { return c.Booking.BaseURL },
		set: func(c *Config, v string) error { c.Booking.BaseURL = v; return nil },
	},
	"eventstream.kafka_brokers": {
		get: func(c *Config) string { return strings.Join(c.EventStream.KafkaBrokers, ",") },
		set: func(c *Config, v string) error { c.EventStream.KafkaBrokers = SplitList(v); return nil },
	},
	"eventstream.kafka_topic": {
		get: func(c *Config) string { return c.EventStream.KafkaTopic },
		set: func(c *Config, v string) error { c.EventStream.KafkaTopic = v; return nil },
	},
}

func parseNonNegative(v string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("must not be negative, got %d", n)
	}
	return n, nil
}

// QuestionSeparator separates questions in a flag, environment variable or
// "config set" value. Questions may contain commas.
const QuestionSeparator = "|"

// SplitQuestions splits a QuestionSeparator-separated value, dropping empty
// entries.
func SplitQuestions(v string) []string {
	var out []string
	for _, q := range strings.Split(v, QuestionSeparator) {
		if q = strings.TrimSpace(q); q != "" {
			out = append(out, q)
		}
	}
	return out
}

// SplitList splits a comma-separated value, dropping empty entries.
func SplitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
