// Package initcmder provides the init command for initializing a local
// .chatline directory in the current working directory.
package initcmder

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/chatline/pkg/cliui"
	"github.com/papercomputeco/chatline/pkg/config"
)

const (
	dirName    = ".chatline"
	configFile = "config.toml"
)

const initLongDesc string = `Initialize a new .chatline/ directory in the current working directory.

Creates a local .chatline/ directory holding a config.toml with the default
settings. A local directory takes precedence over ~/.chatline/ for
configuration and the console's daily question count.

Examples:
  chatline init`

const initShortDesc string = "Initialize a local .chatline/ directory"

func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: initShortDesc,
		Long:  initLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInit(cmd.OutOrStdout())
		},
	}

	return cmd
}

func runInit(out io.Writer) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}

	dir := filepath.Join(cwd, dirName)

	info, err := os.Stat(dir)
	if err == nil && info.IsDir() {
		fmt.Fprintf(out, "  %s Already initialized: %s\n", cliui.SuccessMark, cliui.DimStyle.Render(dir))
		return nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating .chatline directory: %w", err)
	}

	cfger, err := config.NewConfiger(dir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfger.SaveConfig(config.NewDefaultConfig()); err != nil {
		return fmt.Errorf("writing %s: %w", configFile, err)
	}

	fmt.Fprintf(out, "  %s Initialized .chatline directory: %s\n", cliui.SuccessMark, cliui.DimStyle.Render(dir))
	return nil
}
