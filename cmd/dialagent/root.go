package main

import (
	"github.com/m4xw311/dialagent/config"
	"github.com/spf13/cobra"
)

// globalFlags override configuration values for every subcommand.
type globalFlags struct {
	llm      string
	model    string
	endpoint string
	logLevel string
}

func newRootCmd() *cobra.Command {
	var flags globalFlags
	var cfg *config.Config

	cmd := &cobra.Command{
		Use:   "dialagent",
		Short: "User management agent for DIAL and OpenAI compatible chat models",
		Long: `dialagent connects a chat model to a user directory and other tools.
Run it interactively, as an Agent Client Protocol server, or start the user service.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.LoadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("llm") {
				loaded.LLMClient = flags.llm
			}
			if cmd.Flags().Changed("model") {
				loaded.Model = flags.model
			}
			if cmd.Flags().Changed("endpoint") {
				loaded.Endpoint = flags.endpoint
			}
			if cmd.Flags().Changed("log-level") {
				loaded.Log.Level = flags.logLevel
			}
			if err := loaded.Validate(); err != nil {
				return err
			}
			*cfg = *loaded
			return nil
		},
	}
	cfg = config.DefaultConfig()

	cmd.PersistentFlags().StringVar(&flags.llm, "llm", "", "Model backend: dial|openai|azure|anthropic|bedrock|mock")
	cmd.PersistentFlags().StringVar(&flags.model, "model", "", "Model or deployment name")
	cmd.PersistentFlags().StringVar(&flags.endpoint, "endpoint", "", "Backend endpoint URL")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level: debug|info|warn|error")

	chat := newChatCmd(cfg)
	cmd.AddCommand(
		chat,
		newACPCmd(cfg),
		newUserServiceCmd(cfg),
	)
	// Bare `dialagent` starts a chat.
	cmd.RunE = chat.RunE
	cmd.Args = cobra.ArbitraryArgs
	cmd.Flags().AddFlagSet(chat.Flags())
	return cmd
}
