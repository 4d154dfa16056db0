package main

import (
	"os"
	"os/signal"
	"strings"

	"github.com/m4xw311/dialagent/agent/terminal"
	"github.com/m4xw311/dialagent/config"
	"github.com/spf13/cobra"
)

func addSessionFlags(cmd *cobra.Command, flags *sessionFlags) {
	cmd.Flags().StringVarP(&flags.mode, "mode", "m", "auto", "Tool approval mode: auto|prompt")
	cmd.Flags().StringVarP(&flags.toolset, "toolset", "t", "default", "Toolset to expose to the model")
	cmd.Flags().StringVar(&flags.toolVerbosity, "tool-verbosity", "info", "Tool output to show: none|info|all")
	cmd.Flags().StringVar(&flags.delivery, "delivery", "stream", "Reply delivery: sync|stream|events")
}

func newChatCmd(cfg *config.Config) *cobra.Command {
	var flags sessionFlags

	cmd := &cobra.Command{
		Use:   "chat [prompt]",
		Short: "Start an interactive chat session",
		Long:  "Start an interactive chat session. Arguments, if any, are sent as the first message.",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := cfg.Log.NewLogger()
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			rt, err := buildRuntime(ctx, cfg, flags, logger)
			if err != nil {
				return err
			}
			defer rt.Close()

			term := terminal.New(rt.agent,
				terminal.WithIO(cmd.InOrStdin(), cmd.OutOrStdout()),
				terminal.WithLogger(logger))
			return term.Run(ctx, strings.Join(args, " "))
		},
	}
	addSessionFlags(cmd, &flags)
	return cmd
}
