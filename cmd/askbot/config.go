package main

import (
	"errors"
	"time"

	"github.com/spf13/viper"
)

type config struct {
	Debug         bool
	TelegramToken string
	DatabasePath  string

	OpenAIAPIKey  string
	OpenAIBaseURL string
	Model         string
	MaxTokens     int
	ContextWindow int
	Prompt        string
	Depth         int
	Shortcuts     map[string]string
	RateLimit     int

	KandinskyURL       string
	KandinskyStylesURL string
	KandinskyAPIKey    string
	KandinskySecretKey string
	PollInterval       time.Duration
	MaxAttempts        int
	ImagineTimeout     time.Duration
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("debug", false)
	v.SetDefault("database.path", "askbot.db")
	v.SetDefault("openai.base_url", "https://api.openai.com/v1/")
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("openai.max_tokens", 1000)
	v.SetDefault("openai.context_window", 4096)
	v.SetDefault("openai.prompt", "You are an AI assistant. Answer the questions concisely.")
	v.SetDefault("conversation.depth", 3)
	v.SetDefault("rate_limit", 0)
	v.SetDefault("kandinsky.url", "https://api-key.fusionbrain.ai/")
	v.SetDefault("kandinsky.styles_url", "https://cdn.fusionbrain.ai/static/styles/api")
	v.SetDefault("kandinsky.poll_interval", 10*time.Second)
	v.SetDefault("kandinsky.max_attempts", 10)
	v.SetDefault("kandinsky.timeout", 3*time.Minute)
}

func loadConfig(v *viper.Viper) config {
	return config{
		Debug:              v.GetBool("debug"),
		TelegramToken:      v.GetString("telegram.token"),
		DatabasePath:       v.GetString("database.path"),
		OpenAIAPIKey:       v.GetString("openai.api_key"),
		OpenAIBaseURL:      v.GetString("openai.base_url"),
		Model:              v.GetString("openai.model"),
		MaxTokens:          v.GetInt("openai.max_tokens"),
		ContextWindow:      v.GetInt("openai.context_window"),
		Prompt:             v.GetString("openai.prompt"),
		Depth:              v.GetInt("conversation.depth"),
		Shortcuts:          v.GetStringMapString("shortcuts"),
		RateLimit:          v.GetInt("rate_limit"),
		KandinskyURL:       v.GetString("kandinsky.url"),
		KandinskyStylesURL: v.GetString("kandinsky.styles_url"),
		KandinskyAPIKey:    v.GetString("kandinsky.api_key"),
		KandinskySecretKey: v.GetString("kandinsky.secret_key"),
		PollInterval:       v.GetDuration("kandinsky.poll_interval"),
		MaxAttempts:        v.GetInt("kandinsky.max_attempts"),
		ImagineTimeout:     v.GetDuration("kandinsky.timeout"),
	}
}

func (c config) validate() error {
	if c.TelegramToken == "" {
		return errors.New("telegram.token is required (ASKBOT_TELEGRAM_TOKEN)")
	}
	if c.OpenAIAPIKey == "" && c.KandinskyAPIKey == "" {
		return errors.New("at least one of openai.api_key or kandinsky.api_key is required")
	}
	if c.MaxTokens >= c.ContextWindow {
		return errors.New("openai.max_tokens must be less than openai.context_window")
	}
	return nil
}
