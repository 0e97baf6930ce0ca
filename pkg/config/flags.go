package config

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flag is the single source of truth for a CLI flag.
// Commands reference flags by registry key rather than hard-coding names,
// shorthands, defaults, and descriptions inline. This prevents flag drift
// when the same logical flag appears on multiple commands (e.g., --session
// on "chatline ask", "chatline console" and "chatline history").
type Flag struct {
	// Name is the long flag name (e.g. "upstream").
	Name string

	// Shorthand is the one-letter short flag (e.g. "u"). Empty for no shorthand.
	Shorthand string

	// ViperKey is the dotted config key this flag maps to (e.g. "relay.upstream").
	ViperKey string

	// Description is the help text shown in --help output.
	Description string
}

// FlagSet is a mapping of flag names to Flag structs that hold their name,
// shorthand, viper key, etc.
type FlagSet map[string]Flag

// Flag registry keys.
// Use these constants when calling AddStringFlag, AddIntFlag,
// and BindRegisteredFlags to avoid typos or drift from one command to another.
const (
	FlagOrchestrator     = "orchestrator"
	FlagChatURL          = "chat-url"
	FlagSession          = "session"
	FlagListen           = "listen"
	FlagUpstream         = "upstream"
	FlagSQLite           = "sqlite"
	FlagPostgres         = "postgres"
	FlagMaxQuestions     = "max-questions"
	FlagMaxContentLength = "max-content-length"
	FlagBookingURL       = "booking-url"
	FlagKafkaBrokers     = "kafka-brokers"
	FlagKafkaTopic       = "kafka-topic"
)

// Flags is the registry shared by every chatline command.
var Flags = FlagSet{
	FlagOrchestrator:     {Name: "orchestrator", Shorthand: "o", ViperKey: "client.orchestrator_url", Description: "Streaming orchestrator endpoint URL"},
	FlagChatURL:          {Name: "chat-url", ViperKey: "client.chat_url", Description: "Widget chat endpoint URL"},
	FlagSession:          {Name: "session", ViperKey: "client.session_id", Description: "Session ID sent with each message"},
	FlagListen:           {Name: "listen", Shorthand: "l", ViperKey: "relay.listen", Description: "Address for the relay to listen on"},
	FlagUpstream:         {Name: "upstream", Shorthand: "u", ViperKey: "relay.upstream", Description: "Orchestrator base URL the relay forwards to"},
	FlagSQLite:           {Name: "sqlite", Shorthand: "s", ViperKey: "storage.sqlite_path", Description: "Path to SQLite transcript database (default: in-memory)"},
	FlagPostgres:         {Name: "postgres", ViperKey: "storage.postgres_dsn", Description: "PostgreSQL connection string for transcripts"},
	FlagMaxQuestions:     {Name: "max-questions", ViperKey: "widget.max_questions", Description: "Questions accepted per session"},
	FlagMaxContentLength: {Name: "max-content-length", ViperKey: "widget.max_content_length", Description: "Longest accepted message, in characters"},
	FlagBookingURL:       {Name: "booking-url", ViperKey: "booking.base_url", Description: "Consultation booking page URL"},
	FlagKafkaBrokers:     {Name: "kafka-brokers", ViperKey: "eventstream.kafka_brokers", Description: "Comma-separated Kafka brokers for exchange events (default: disabled)"},
	FlagKafkaTopic:       {Name: "kafka-topic", ViperKey: "eventstream.kafka_topic", Description: "Kafka topic for exchange events"},
}

// AddStringFlag registers a string flag on cmd from the given FlagSet.
// The flag's name, shorthand, default, and description all come from the
// FlagSet entry so they cannot drift across commands.
func AddStringFlag(cmd *cobra.Command, fs FlagSet, key string, target *string) {
	def, ok := fs[key]
	if !ok {
		return
	}

	defaultVal := defaultString(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().StringVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().StringVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddIntFlag registers an int flag on cmd from the given FlagSet.
func AddIntFlag(cmd *cobra.Command, fs FlagSet, registryKey string, target *int) {
	def, ok := fs[registryKey]
	if !ok {
		return
	}

	defaultVal := defaultInt(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().IntVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().IntVar(target, def.Name, defaultVal, def.Description)
	}
}

// BindRegisteredFlags binds already-registered flags to viper using definitions
// from the given FlagSet. Call this in PreRunE after InitViper to connect flags
// to the viper precedence chain (flag > env > config file > default).
func BindRegisteredFlags(v *viper.Viper, cmd *cobra.Command, fs FlagSet, registryKeys []string) {
	for _, registryKey := range registryKeys {
		def, ok := fs[registryKey]
		if !ok {
			continue
		}

		f := cmd.Flags().Lookup(def.Name)
		if f == nil {
			continue
		}

		_ = v.BindPFlag(def.ViperKey, f)
	}
}

// defaultString returns the default string value for a viper key from NewDefaultConfig.
func defaultString(viperKey string) string {
	v := viper.New()
	setViperDefaults(v)
	return v.GetString(viperKey)
}

// defaultInt returns the default int value for a viper key from NewDefaultConfig.
func defaultInt(viperKey string) int {
	v := viper.New()
	setViperDefaults(v)
	return v.GetInt(viperKey)
}
