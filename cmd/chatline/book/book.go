// Package bookcmder provides the book command, which prints a link to the
// consultation booking page prefilled with the caller's details.
package bookcmder

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/chatline/pkg/booking"
	"github.com/papercomputeco/chatline/pkg/config"
)

type bookCommander struct {
	baseURL string
	request booking.Request

	out io.Writer
}

const bookLongDesc string = `Print a link to the consultation booking page.

The link carries the name, email and message as query parameters so the
booking form opens prefilled.

Examples:
  chatline book --name "Ada Lovelace" --email ada@example.com
  chatline book --message "Help with our data platform"`

const bookShortDesc string = "Print a prefilled booking link"

func NewBookCmd() *cobra.Command {
	cmder := &bookCommander{}

	cmd := &cobra.Command{
		Use:   "book",
		Short: bookShortDesc,
		Long:  bookLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")

			v, err := config.InitViper(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			config.BindRegisteredFlags(v, cmd, config.Flags, []string{config.FlagBookingURL})

			cmder.baseURL = v.GetString("booking.base_url")
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmder.out = cmd.OutOrStdout()
			return cmder.run()
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagBookingURL, &cmder.baseURL)
	cmd.Flags().StringVar(&cmder.request.Name, "name", "", "Name to prefill")
	cmd.Flags().StringVar(&cmder.request.Email, "email", "", "Email address to prefill")
	cmd.Flags().StringVar(&cmder.request.Message, "message", "", "Message to prefill")

	return cmd
}

func (c *bookCommander) run() error {
	link, err := booking.URL(c.baseURL, c.request)
	if err != nil {
		return fmt.Errorf("building booking link: %w", err)
	}

	_, err = fmt.Fprintln(c.out, link)
	return err
}
