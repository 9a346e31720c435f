package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/chhongzh/askbot"
	"github.com/chhongzh/askbot/kandinsky"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(ctx context.Context, cfg config) error {
	if err := cfg.validate(); err != nil {
		return err
	}

	logger, err := newLogger(cfg.Debug)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := gorm.Open(sqlite.Open(cfg.DatabasePath), &gorm.Config{})
	if err != nil {
		logger.Error("打开数据库失败", zap.Error(err))
		return err
	}

	var chat *askbot.ChatModel
	if cfg.OpenAIAPIKey != "" {
		client := openai.NewClient(
			option.WithAPIKey(cfg.OpenAIAPIKey),
			option.WithBaseURL(cfg.OpenAIBaseURL),
			option.WithMaxRetries(0),
		)
		chat = askbot.NewChatModel(logger, &client, askbot.NewTokenCounter(logger), askbot.ChatModelConfig{
			Model:         cfg.Model,
			MaxTokens:     cfg.MaxTokens,
			ContextWindow: cfg.ContextWindow,
		})
	}

	var images askbot.ImageService
	if cfg.KandinskyAPIKey != "" {
		images = kandinsky.New(logger, kandinsky.Config{
			URL:          cfg.KandinskyURL,
			StylesURL:    cfg.KandinskyStylesURL,
			APIKey:       cfg.KandinskyAPIKey,
			SecretKey:    cfg.KandinskySecretKey,
			PollInterval: cfg.PollInterval,
			MaxAttempts:  cfg.MaxAttempts,
		})
	}

	bot := askbot.New(ctx, logger, db, chat, images, cfg.TelegramToken, askbot.Config{
		Model:          cfg.Model,
		MaxRounds:      cfg.Depth,
		SystemPrompt:   cfg.Prompt,
		Shortcuts:      cfg.Shortcuts,
		RateLimit:      cfg.RateLimit,
		ImagineTimeout: cfg.ImagineTimeout,
	})

	done, err := bot.Start()
	if err != nil {
		logger.Error("启动失败", zap.Error(err))
		return err
	}
	logger.Info("Bot已启动", zap.String("Model", cfg.Model), zap.Int("Depth", cfg.Depth))

	<-done
	logger.Info("Bot已停止")
	return nil
}
