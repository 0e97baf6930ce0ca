package configcmder_test

import (
	"bytes"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"

	configcmder "github.com/papercomputeco/chatline/cmd/chatline/config"
	"github.com/papercomputeco/chatline/pkg/config"
)

// withConfigDir mounts the config command under a parent carrying the
// persistent --config-dir flag, as the chatline root command does.
func withConfigDir() *cobra.Command {
	root := &cobra.Command{Use: "chatline"}
	root.PersistentFlags().String("config-dir", "", "")
	root.AddCommand(configcmder.NewConfigCmd())
	return root
}

var _ = Describe("NewConfigCmd", func() {
	It("creates a command with the correct use string", func() {
		cmd := configcmder.NewConfigCmd()
		Expect(cmd.Use).To(Equal("config"))
	})

	It("has set, get, and list subcommands", func() {
		cmd := configcmder.NewConfigCmd()
		cmds := cmd.Commands()
		subcommands := make([]string, 0, len(cmds))
		for _, sub := range cmds {
			subcommands = append(subcommands, sub.Name())
		}
		Expect(subcommands).To(ContainElements("set", "get", "list"))
	})
})

var _ = Describe("Config command execution", func() {
	var (
		tmpDir  string
		origDir string
	)

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "chatline-config-test-*")
		Expect(err).NotTo(HaveOccurred())

		origDir, err = os.Getwd()
		Expect(err).NotTo(HaveOccurred())

		// Create a local .chatline dir so the manager picks it up
		err = os.MkdirAll(filepath.Join(tmpDir, ".chatline"), 0o755)
		Expect(err).NotTo(HaveOccurred())

		err = os.Chdir(tmpDir)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		err := os.Chdir(origDir)
		Expect(err).NotTo(HaveOccurred())
		os.RemoveAll(tmpDir)
	})

	Describe("set subcommand", func() {
		It("writes the value to config.toml", func() {
			cmd := configcmder.NewConfigCmd()
			cmd.SetOut(&bytes.Buffer{})
			cmd.SetArgs([]string{"set", "relay.upstream", "http://orchestrator:8000"})
			Expect(cmd.Execute()).To(Succeed())

			data, err := os.ReadFile(filepath.Join(tmpDir, ".chatline", "config.toml"))
			Expect(err).NotTo(HaveOccurred())

			cfg, err := config.ParseConfigTOML(data)
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Relay.Upstream).To(Equal("http://orchestrator:8000"))
		})

		It("splits kafka brokers on commas", func() {
			cmd := configcmder.NewConfigCmd()
			cmd.SetOut(&bytes.Buffer{})
			cmd.SetArgs([]string{"set", "eventstream.kafka_brokers", "a:9092, b:9092"})
			Expect(cmd.Execute()).To(Succeed())

			cfger, err := config.NewConfiger("")
			Expect(err).NotTo(HaveOccurred())
			cfg, err := cfger.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.EventStream.KafkaBrokers).To(Equal([]string{"a:9092", "b:9092"}))
		})

		It("honors --config-dir", func() {
			dir := filepath.Join(tmpDir, "elsewhere")

			root := withConfigDir()
			root.SetOut(&bytes.Buffer{})
			root.SetArgs([]string{"config", "set", "--config-dir", dir, "client.session_id", "kiosk"})
			Expect(root.Execute()).To(Succeed())

			_, err := os.Stat(filepath.Join(dir, "config.toml"))
			Expect(err).NotTo(HaveOccurred())
		})

		It("rejects unknown keys", func() {
			cmd := configcmder.NewConfigCmd()
			cmd.SetArgs([]string{"set", "invalid_key", "value"})
			Expect(cmd.Execute()).NotTo(Succeed())
		})

		It("rejects negative limits", func() {
			cmd := configcmder.NewConfigCmd()
			cmd.SetOut(&bytes.Buffer{})
			cmd.SetArgs([]string{"set", "--", "widget.max_questions", "-1"})
			Expect(cmd.Execute()).NotTo(Succeed())
		})

		It("rejects non-numeric limits", func() {
			cmd := configcmder.NewConfigCmd()
			cmd.SetOut(&bytes.Buffer{})
			cmd.SetArgs([]string{"set", "widget.max_content_length", "lots"})
			Expect(cmd.Execute()).NotTo(Succeed())
		})

		It("requires exactly two arguments", func() {
			cmd := configcmder.NewConfigCmd()
			cmd.SetArgs([]string{"set", "relay.upstream"})
			Expect(cmd.Execute()).NotTo(Succeed())
		})
	})

	Describe("get subcommand", func() {
		It("prints a previously set value", func() {
			setCmd := configcmder.NewConfigCmd()
			setCmd.SetOut(&bytes.Buffer{})
			setCmd.SetArgs([]string{"set", "widget.max_questions", "5"})
			Expect(setCmd.Execute()).To(Succeed())

			var out bytes.Buffer
			getCmd := configcmder.NewConfigCmd()
			getCmd.SetOut(&out)
			getCmd.SetArgs([]string{"get", "widget.max_questions"})
			Expect(getCmd.Execute()).To(Succeed())
			Expect(out.String()).To(Equal("5\n"))
		})

		It("prints the default for an unset key", func() {
			var out bytes.Buffer
			cmd := configcmder.NewConfigCmd()
			cmd.SetOut(&out)
			cmd.SetArgs([]string{"get", "widget.max_content_length"})
			Expect(cmd.Execute()).To(Succeed())
			Expect(out.String()).To(Equal("1000\n"))
		})

		It("rejects unknown keys", func() {
			cmd := configcmder.NewConfigCmd()
			cmd.SetArgs([]string{"get", "invalid_key"})
			Expect(cmd.Execute()).NotTo(Succeed())
		})

		It("requires exactly one argument", func() {
			cmd := configcmder.NewConfigCmd()
			cmd.SetArgs([]string{"get"})
			Expect(cmd.Execute()).NotTo(Succeed())
		})
	})

	Describe("list subcommand", func() {
		It("lists every key", func() {
			var out bytes.Buffer
			cmd := configcmder.NewConfigCmd()
			cmd.SetOut(&out)
			cmd.SetArgs([]string{"list"})
			Expect(cmd.Execute()).To(Succeed())

			for _, key := range config.ValidConfigKeys() {
				Expect(out.String()).To(ContainSubstring(key))
			}
			Expect(out.String()).To(ContainSubstring(`"chatline"`))
			Expect(out.String()).To(MatchRegexp(`storage\.postgres_dsn\s+= <not set>`))
		})

		It("rejects any arguments", func() {
			cmd := configcmder.NewConfigCmd()
			cmd.SetArgs([]string{"list", "extra"})
			Expect(cmd.Execute()).NotTo(Succeed())
		})
	})
})
