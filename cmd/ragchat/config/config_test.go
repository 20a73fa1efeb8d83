package configcmder_test

import (
	"bytes"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/x/ansi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"

	configcmder "github.com/papercomputeco/ragchat/cmd/ragchat/config"
)

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
		configDir string
		out       *bytes.Buffer
	)

	// run executes "config <args>" with --config-dir pointing at a temp dir.
	run := func(args ...string) error {
		root := &cobra.Command{Use: "ragchat", SilenceUsage: true, SilenceErrors: true}
		root.PersistentFlags().String("config-dir", configDir, "")
		root.AddCommand(configcmder.NewConfigCmd())
		root.SetOut(out)
		root.SetErr(io.Discard)
		root.SetArgs(append([]string{"config"}, args...))
		return root.Execute()
	}

	BeforeEach(func() {
		configDir = GinkgoT().TempDir()
		out = &bytes.Buffer{}
	})

	Describe("set subcommand", func() {
		It("sets a config value successfully", func() {
			Expect(run("set", "backend.target", "http://rag.internal:8000")).To(Succeed())

			data, err := os.ReadFile(filepath.Join(configDir, "config.toml"))
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(ContainSubstring(`target = "http://rag.internal:8000"`))
			Expect(ansi.Strip(out.String())).To(ContainSubstring("Set backend.target = http://rag.internal:8000"))
		})

		It("rejects unknown keys", func() {
			Expect(run("set", "invalid_key", "value")).To(MatchError(ContainSubstring("unknown config key")))
		})

		It("requires exactly two arguments", func() {
			Expect(run("set", "backend.target")).NotTo(Succeed())
			Expect(run("set")).NotTo(Succeed())
		})

		DescribeTable("rejects invalid values",
			func(key, value string) {
				Expect(run("set", key, value)).NotTo(Succeed())
			},
			Entry("top_k", "backend.top_k", "many"),
			Entry("idle_timeout", "backend.idle_timeout", "soon"),
			Entry("storage driver", "storage.driver", "mongo"),
			Entry("publisher", "publisher.provider", "nats"),
			Entry("busy policy", "chat.busy_policy", "queue"),
		)
	})

	Describe("get subcommand", func() {
		It("gets a previously set value", func() {
			Expect(run("set", "chat.busy_policy", "cancel")).To(Succeed())
			out.Reset()

			Expect(run("get", "chat.busy_policy")).To(Succeed())
			Expect(ansi.Strip(out.String())).To(ContainSubstring("chat.busy_policy  cancel"))
		})

		It("shows unset keys as not set", func() {
			Expect(run("get", "storage.postgres_dsn")).To(Succeed())
			Expect(ansi.Strip(out.String())).To(ContainSubstring("<not set>"))
		})

		It("rejects unknown keys", func() {
			Expect(run("get", "invalid_key")).NotTo(Succeed())
		})

		It("requires exactly one argument", func() {
			Expect(run("get")).NotTo(Succeed())
		})
	})

	Describe("list subcommand", func() {
		It("lists defaults when no config exists", func() {
			Expect(run("list")).To(Succeed())
			Expect(out.String()).To(MatchRegexp(`backend\.top_k\s+= "5"`))
		})

		It("shows set values", func() {
			Expect(run("set", "publisher.brokers", "a:9092, b:9092")).To(Succeed())
			out.Reset()

			Expect(run("list")).To(Succeed())
			Expect(out.String()).To(MatchRegexp(`publisher\.brokers\s+= "a:9092,b:9092"`))
		})

		It("rejects any arguments", func() {
			Expect(run("list", "extra")).NotTo(Succeed())
		})
	})
})
