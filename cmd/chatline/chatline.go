// Package chatlinecmder
package chatlinecmder

import (
	"github.com/spf13/cobra"

	askcmder "github.com/papercomputeco/chatline/cmd/chatline/ask"
	bookcmder "github.com/papercomputeco/chatline/cmd/chatline/book"
	configcmder "github.com/papercomputeco/chatline/cmd/chatline/config"
	consolecmder "github.com/papercomputeco/chatline/cmd/chatline/console"
	historycmder "github.com/papercomputeco/chatline/cmd/chatline/history"
	initcmder "github.com/papercomputeco/chatline/cmd/chatline/init"
	relaycmder "github.com/papercomputeco/chatline/cmd/chatline/relay"
	versioncmder "github.com/papercomputeco/chatline/cmd/version"
)

const chatlineLongDesc string = `Chatline is a terminal client and relay for a streaming chat orchestrator.

Answers are streamed in as they are generated, with the orchestrator's
thinking status shown until the first token arrives.

Run it using:
  chatline console     Chat interactively with the orchestrator
  chatline ask         Ask a single question through the widget endpoint
  chatline relay       Run the recording relay in front of the orchestrator
  chatline history     Show recorded exchanges`

const chatlineShortDesc string = "Chatline - streaming chat console"

func NewChatlineCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "chatline",
		Short:        chatlineShortDesc,
		Long:         chatlineLongDesc,
		SilenceUsage: true,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override the .chatline/ directory")

	// Add subcommands
	cmd.AddCommand(consolecmder.NewConsoleCmd())
	cmd.AddCommand(askcmder.NewAskCmd())
	cmd.AddCommand(bookcmder.NewBookCmd())
	cmd.AddCommand(historycmder.NewHistoryCmd())
	cmd.AddCommand(relaycmder.NewRelayCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(initcmder.NewInitCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
