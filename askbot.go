// Package askbot 是一个把问题转发给AI(对话模型/画图服务)并把回答发回Telegram的Bot
package askbot

import (
	"context"
	"sync"
	"time"

	"github.com/go-telegram/bot"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Config 用于配置Askbot实例
type Config struct {
	// Model 仅用于展示, 真正请求时使用ChatModel自己的配置
	Model        string
	MaxRounds    int
	SystemPrompt string
	// Shortcuts 形如 "!name 问题" 的快捷指令, 值为拼接在问题前面的提示词
	Shortcuts map[string]string
	// RateLimit 每个用户每分钟允许的请求数, 0表示不限制
	RateLimit      int
	ImagineTimeout time.Duration
}

// Askbot 是Bot的实例
type Askbot struct {
	ctx             context.Context
	logger          *zap.Logger
	db              *gorm.DB
	chat            chatAsker
	images          ImageService
	styleCache      *cache.Cache
	bot             *bot.Bot
	botToken        string
	botUsername     string
	config          Config
	limiter         *userLimiter
	userSession     map[sessionKey]*userSession
	userSessionLock sync.Mutex
}

// New 创建一个新的Askbot实例, 所有外部服务都由调用方构造并注入
func New(ctx context.Context, logger *zap.Logger, db *gorm.DB, chat *ChatModel, images ImageService, botToken string, cfg Config) *Askbot {
	if cfg.ImagineTimeout <= 0 {
		cfg.ImagineTimeout = 3 * time.Minute
	}

	a := &Askbot{
		ctx:         ctx,
		logger:      logger.Named("Askbot"),
		db:          db,
		botToken:    botToken,
		config:      cfg,
		styleCache:  cache.New(time.Hour, 10*time.Minute),
		limiter:     newUserLimiter(cfg.RateLimit),
		userSession: make(map[sessionKey]*userSession),
	}
	// 避免把nil指针装进接口
	if chat != nil {
		a.chat = chat
	}
	a.images = images
	return a
}

// Start 启动Telegram Bot并返回一个在停止时关闭的通道
func (a *Askbot) Start() (<-chan struct{}, error) {
	if err := a.setupBot(); err != nil {
		return nil, err
	}

	if err := a.setupDB(); err != nil {
		return nil, err
	}

	closeCh := make(chan struct{})
	go func() {
		a.bot.Start(a.ctx)
		close(closeCh)
	}()

	return closeCh, nil
}
