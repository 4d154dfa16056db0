package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/m4xw311/dialagent/config"
	"github.com/m4xw311/dialagent/userdir"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newUserServiceCmd(cfg *config.Config) *cobra.Command {
	var (
		addr   string
		dbPath string
	)

	cmd := &cobra.Command{
		Use:   "userservice",
		Short: "Run the user directory REST service",
		Long:  "Serve the local user database over REST so several agents can share it.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("addr") {
				cfg.UserService.Addr = addr
			}
			if cmd.Flags().Changed("db") {
				cfg.UserService.DBPath = dbPath
			}

			logger, err := cfg.Log.NewLogger()
			if err != nil {
				return err
			}
			defer logger.Sync()

			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			srv := userdir.NewServer(cfg.UserService.Addr, store, logger)

			out := cmd.OutOrStdout()
			color.New(color.FgCyan, color.Bold).Fprintln(out, "User Service")
			fmt.Fprintf(out, "   Listening: http://%s\n", cfg.UserService.Addr)
			fmt.Fprintf(out, "   Database:  %s\n\n", cfg.UserService.DBPath)

			errCh := make(chan error, 1)
			go func() {
				if err := srv.Start(); err != nil && err != http.ErrServerClosed {
					errCh <- err
				}
			}()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigCh)

			select {
			case sig := <-sigCh:
				logger.Info("received shutdown signal", zap.String("signal", sig.String()))
			case err := <-errCh:
				logger.Error("user service error", zap.Error(err))
				return err
			case <-cmd.Context().Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("user service shutdown error", zap.Error(err))
			}
			logger.Info("user service stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config)")
	cmd.Flags().StringVar(&dbPath, "db", "", "Database file (default ~/.dialagent/users.db)")
	return cmd
}
