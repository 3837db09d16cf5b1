package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"research-pipeline/internal/config"
	"research-pipeline/internal/infra/agent"
	"research-pipeline/internal/infra/fetcher"
	"research-pipeline/internal/infra/notifier"
	"research-pipeline/internal/infra/summarizer"
	"research-pipeline/internal/usecase/notify"
)

// buildProcessor selects the entry processor from PROCESSOR_TYPE. The worker
// defaults to "api": a headless deployment usually has no claude CLI.
func buildProcessor(logger *slog.Logger, cfg *config.Config) agent.Processor {
	vaultPath, err := cfg.VaultPath()
	if err != nil {
		logger.Error("vault path not configured", slog.Any("error", err))
		os.Exit(1)
	}

	processorType := os.Getenv("PROCESSOR_TYPE")
	if processorType == "" {
		processorType = "api"
	}

	switch processorType {
	case "cli":
		return agent.NewCLIProcessor(cfg, vaultPath, logger)

	case "api":
		fetchCfg, err := fetcher.LoadConfigFromEnv()
		if err != nil {
			logger.Warn("content fetch configuration invalid, fetching disabled",
				slog.Any("error", err))
			fetchCfg = fetcher.DefaultConfig()
			fetchCfg.Enabled = false
		}
		var contentFetcher agent.ContentFetcher
		if fetchCfg.Enabled {
			contentFetcher = fetcher.NewReadabilityFetcher(fetchCfg)
			logger.Info("content fetching enabled",
				slog.Int("threshold", fetchCfg.Threshold),
				slog.Duration("timeout", fetchCfg.Timeout))
		}
		return agent.NewAPIProcessor(cfg, vaultPath, contentFetcher, buildSummarizer(logger), fetchCfg, logger)

	default:
		logger.Error("invalid PROCESSOR_TYPE",
			slog.String("type", processorType),
			slog.String("expected", "cli or api"))
		os.Exit(1)
		return nil
	}
}

func buildSummarizer(logger *slog.Logger) summarizer.Summarizer {
	summarizerType := os.Getenv("SUMMARIZER_TYPE")
	if summarizerType == "" {
		summarizerType = "claude"
	}

	switch summarizerType {
	case "claude":
		apiKey := os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			logger.Error("ANTHROPIC_API_KEY is required when SUMMARIZER_TYPE=claude")
			os.Exit(1)
		}
		logger.Info("using claude for summarization")
		return summarizer.NewClaude(apiKey)

	case "openai":
		apiKey := os.Getenv("OPENAI_API_KEY")
		if apiKey == "" {
			logger.Error("OPENAI_API_KEY is required when SUMMARIZER_TYPE=openai")
			os.Exit(1)
		}
		sumCfg, err := summarizer.LoadOpenAIConfig()
		if err != nil {
			logger.Error("failed to load OpenAI configuration", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("using openai for summarization",
			slog.Int("character_limit", sumCfg.GetCharacterLimit()))
		return summarizer.NewOpenAI(apiKey, sumCfg)

	default:
		logger.Error("invalid SUMMARIZER_TYPE",
			slog.String("type", summarizerType),
			slog.String("expected", "claude or openai"))
		os.Exit(1)
		return nil
	}
}

func buildNotifyService(logger *slog.Logger, cfg *config.Config) (notify.Service, func()) {
	var channels []notifier.Notifier

	if url := cfg.Notify.SlackWebhookURL; url != "" {
		channels = append(channels, notifier.NewSlackNotifier(notifier.SlackConfig{
			WebhookURL: url,
			Timeout:    30 * time.Second,
		}))
		logger.Info("slack notifications enabled")
	}
	if url := cfg.Notify.DiscordWebhookURL; url != "" {
		channels = append(channels, notifier.NewDiscordNotifier(notifier.DiscordConfig{
			WebhookURL: url,
			Timeout:    30 * time.Second,
		}))
		logger.Info("discord notifications enabled")
	}
	if len(channels) == 0 {
		channels = append(channels, notifier.NewNoOpNotifier())
	}
	logger.Info("notification service initialized", slog.Int("channels", len(channels)))

	service := notify.NewService(channels, 4)
	cleanup := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := service.Shutdown(ctx); err != nil {
			logger.Warn("notification shutdown incomplete", slog.Any("error", err))
		}
	}
	return service, cleanup
}
