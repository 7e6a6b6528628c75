package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/abelzeko/water-dashboard/internal/api"
	"github.com/abelzeko/water-dashboard/internal/charts"
	"github.com/abelzeko/water-dashboard/internal/config"
	"github.com/abelzeko/water-dashboard/internal/integration"
	"github.com/abelzeko/water-dashboard/internal/integration/openai"
	"github.com/abelzeko/water-dashboard/internal/logging"
	"github.com/abelzeko/water-dashboard/internal/usecases"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:          "bot",
	Short:        "Telegram bot answering water quality questions",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context())
	},
}

func init() {
	rootCmd.Flags().StringVar(&cfgFile, "config", "", "config file (default is ./waterdash.yaml)")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "✗ Error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer logger.Sync()
	logger.Info("Starting Water Bot...")

	if cfg.TelegramBotToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN environment variable is not set")
	}

	// Free-text requests need OpenAI; commands work without it
	var agent openai.OpenAIService
	if cfg.OpenAIAPIKey != "" {
		agent, err = openai.NewOpenAIService(cfg.OpenAIAPIKey, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize OpenAI service: %w", err)
		}
	} else {
		logger.Warn("OPENAI_API_KEY is not set, free-text messages are disabled")
	}

	source := integration.NewCSVSource(cfg.DataPath, logger)
	useCase := usecases.NewReportUseCase(source, cfg.MaxStations, logger)
	renderer := charts.NewRenderer(cfg.ChartWidth, cfg.ChartHeight)

	telegramBot, err := api.NewTelegramBot(cfg.TelegramBotToken, useCase, renderer, agent, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize Telegram bot: %w", err)
	}

	telegramBot.Start(ctx)
	logger.Info("Bot stopped", zap.Error(ctx.Err()))
	return nil
}
