package chatlinecmder_test

import (
	"bytes"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	chatlinecmder "github.com/papercomputeco/chatline/cmd/chatline"
)

var _ = Describe("NewChatlineCmd", func() {
	It("registers every subcommand", func() {
		cmd := chatlinecmder.NewChatlineCmd()

		names := []string{}
		for _, sub := range cmd.Commands() {
			names = append(names, sub.Name())
		}
		Expect(names).To(ContainElements("console", "ask", "book", "history", "relay", "config", "init", "version"))
	})

	It("has persistent debug and config-dir flags", func() {
		cmd := chatlinecmder.NewChatlineCmd()
		Expect(cmd.PersistentFlags().Lookup("debug")).NotTo(BeNil())
		Expect(cmd.PersistentFlags().ShorthandLookup("d")).NotTo(BeNil())
		Expect(cmd.PersistentFlags().Lookup("config-dir")).NotTo(BeNil())
	})

	It("passes --config-dir through to subcommands", func() {
		dir := GinkgoT().TempDir()

		var out bytes.Buffer
		cmd := chatlinecmder.NewChatlineCmd()
		cmd.SetOut(&out)
		cmd.SetArgs([]string{"--config-dir", dir, "config", "list"})
		Expect(cmd.Execute()).To(Succeed())
		Expect(out.String()).To(ContainSubstring("Using config file: "))
		Expect(out.String()).To(ContainSubstring(dir))
	})
})
