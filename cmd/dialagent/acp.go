package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/m4xw311/dialagent/agent/acp"
	"github.com/m4xw311/dialagent/config"
	"github.com/spf13/cobra"
)

func newACPCmd(cfg *config.Config) *cobra.Command {
	var flags sessionFlags

	cmd := &cobra.Command{
		Use:   "acp",
		Short: "Serve the Agent Client Protocol over stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// stdout carries the protocol; logs stay on stderr.
			logger, err := cfg.Log.NewLogger()
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt, err := buildRuntime(ctx, cfg, flags, logger)
			if err != nil {
				return err
			}
			defer rt.Close()

			return acp.NewServer(rt.agent, cmd.InOrStdin(), cmd.OutOrStdout(), logger).Run(ctx)
		},
	}
	addSessionFlags(cmd, &flags)
	return cmd
}
