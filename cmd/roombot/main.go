package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/roombot/internal/app"
	"github.com/vovakirdan/roombot/internal/config"
	"github.com/vovakirdan/roombot/internal/log"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "roombot",
		Short:         "Persistent chat-room agent",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to config file")
	return cmd
}

func run(configPath string) error {
	// A .env file, when present, feeds the ROOMBOT_* environment overrides.
	_ = godotenv.Load()

	bootLog := log.New(os.Getenv("ROOMBOT_LOG_LEVEL"))
	cfg, path, err := config.Load(bootLog, configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := log.New(cfg.LogLevel)
	logger.Info().Str("config", path).Str("room", cfg.Room).Msg("starting roombot")

	application, err := app.New(cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("startup failed")
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("agent exited with error")
		return err
	}
	logger.Info().Msg("roombot stopped")
	return nil
}
