package main

import (
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/noah-isme/kindrid-api/internal/launcher"
	"github.com/noah-isme/kindrid-api/pkg/config"
	"github.com/noah-isme/kindrid-api/pkg/logger"
)

func newStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Launch the server as a child process and verify it is healthy",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			logr, err := logger.New(cfg)
			if err != nil {
				return fmt.Errorf("failed to init logger: %w", err)
			}
			defer logr.Sync() //nolint:errcheck

			self, err := os.Executable()
			if err != nil {
				return fmt.Errorf("resolve executable: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			child := exec.CommandContext(ctx, self, "serve")
			child.Stdout = os.Stdout
			child.Stderr = os.Stderr
			child.Env = os.Environ()
			child.Cancel = func() error { return child.Process.Signal(os.Interrupt) }

			healthURL := cfg.Launch.HealthURL
			if healthURL == "" {
				healthURL = fmt.Sprintf("http://localhost:%d/health", cfg.Port)
			}
			return launcher.New(launcher.Config{
				HealthURL:  healthURL,
				RetryDelay: cfg.Launch.RetryDelay,
			}, logr).Run(ctx, child)
		},
	}
}
