package askbot

import (
	"context"
	"sync"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// Turn 是一轮问答
type Turn struct {
	Question string
	Answer   string
}

type userChatHistory = []Turn

// sessionKey 会话按 (聊天, 用户) 区分, 群里每个人有自己的上下文
type sessionKey struct {
	chatID int64
	userID int64
}

type userSession struct {
	// mu 在该用户的整个处理流程中持有
	mu        sync.Mutex
	loaded    bool
	histories userChatHistory
}

// question 是整理好的问题
type question struct {
	Text     string
	FollowUp bool
	// Photo 附带的图片 (仅对话模型使用)
	Photo []byte
}

type chatAsker interface {
	Ask(ctx context.Context, question string, history []Turn, prompt string, image []byte) (string, error)
}

// ImageService 是画图服务, 由 kandinsky.Client 实现
type ImageService interface {
	Imagine(ctx context.Context, prompt, style string, width, height int) (string, error)
	Styles(ctx context.Context) ([]string, error)
}

// telegramAPI 是回复时用到的 Telegram 接口, *bot.Bot 实现了它
type telegramAPI interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	SendDocument(ctx context.Context, params *bot.SendDocumentParams) (*models.Message, error)
	SendPhoto(ctx context.Context, params *bot.SendPhotoParams) (*models.Message, error)
	SendChatAction(ctx context.Context, params *bot.SendChatActionParams) (bool, error)
	GetFile(ctx context.Context, params *bot.GetFileParams) (*models.File, error)
	FileDownloadLink(f *models.File) string
}

type commandHandlerFunc = func(context.Context, telegramAPI, *models.Message, []string) error
