// Package configcmder provides the config command for managing persistent
// chatline configuration stored in the .chatline/ directory.
package configcmder

import (
	"github.com/spf13/cobra"
)

const configLongDesc string = `Manage persistent chatline configuration.

Configuration is stored as config.toml in the .chatline/ directory and
provides default values for command flags. CLI flags and CHATLINE_*
environment variables take precedence over config file values.

Keys use dotted notation matching the TOML section structure:
  client.orchestrator_url, client.chat_url, client.session_id,
  relay.listen, relay.upstream,
  storage.sqlite_path, storage.postgres_dsn,
  widget.max_questions, widget.max_content_length,
  booking.base_url,
  eventstream.kafka_brokers, eventstream.kafka_topic

Use subcommands to get, set, or list configuration values:
  chatline config set <key> <value>    Set a configuration value
  chatline config get <key>            Get a configuration value
  chatline config list                 List all configuration values

Examples:
  chatline config set client.orchestrator_url https://example.com/api/orchestrator
  chatline config set widget.max_questions 50
  chatline config get relay.upstream
  chatline config list`

const configShortDesc string = "Manage persistent chatline configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}
