package askbot

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"

	"github.com/openai/openai-go/v3"
	"go.uber.org/zap"
)

// ErrEmptyAnswer 模型没有返回任何候选
var ErrEmptyAnswer = errors.New("askbot: received an empty answer")

// ChatModelConfig 配置对话模型
type ChatModelConfig struct {
	Model string
	// MaxTokens 为回答预留的token数
	MaxTokens int
	// ContextWindow 模型的上下文总长度
	ContextWindow int
}

// ChatModel 调用对话补全接口
type ChatModel struct {
	logger  *zap.Logger
	client  *openai.Client
	counter TokenCounter
	config  ChatModelConfig
}

// NewChatModel 创建对话模型, counter 为nil时使用估算
func NewChatModel(logger *zap.Logger, client *openai.Client, counter TokenCounter, cfg ChatModelConfig) *ChatModel {
	if cfg.ContextWindow <= 0 {
		cfg.ContextWindow = 4096
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1000
	}
	if counter == nil {
		counter = estimateCounter{}
	}
	return &ChatModel{
		logger:  logger.Named("ChatModel"),
		client:  client,
		counter: counter,
		config:  cfg,
	}
}

// Budget 是输入可用的最大token数
func (m *ChatModel) Budget() int {
	return m.config.ContextWindow - m.config.MaxTokens
}

// Ask 把问题连同历史发给模型并返回回答
func (m *ChatModel) Ask(ctx context.Context, question string, history []Turn, prompt string, image []byte) (string, error) {
	messages := buildMessages(question, history, prompt)
	messages, total := shorten(messages, m.Budget(), m.counter)
	if total > m.Budget() {
		m.logger.Warn("消息超出token预算, 仍然发送",
			zap.Int("Total", total),
			zap.Int("Budget", m.Budget()),
			zap.Int("Messages", len(messages)),
		)
	}
	m.logger.Debug("发送消息链", zap.Int("Messages", len(messages)), zap.Int("HistoryTurns", len(history)))

	params := openai.ChatCompletionNewParams{
		Messages:  toOpenAIMessages(messages, image),
		Model:     m.config.Model,
		MaxTokens: openai.Int(int64(m.config.MaxTokens)),
	}
	resp, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyAnswer
	}

	answer := resp.Choices[0].Message.Content
	m.logger.Debug("收到回答", zap.Int("Length", len(answer)))
	return answer, nil
}

// buildMessages 构建上下文: 系统提示词, 之前的问答, 新问题
func buildMessages(question string, history []Turn, prompt string) []chatMessage {
	messages := make([]chatMessage, 0, len(history)*2+2)
	messages = append(messages, chatMessage{Role: roleSystem, Content: prompt})
	for _, turn := range history {
		messages = append(messages,
			chatMessage{Role: roleUser, Content: turn.Question},
			chatMessage{Role: roleAssistant, Content: turn.Answer},
		)
	}
	messages = append(messages, chatMessage{Role: roleUser, Content: question})
	return messages
}

// toOpenAIMessages 转换为 openai 的消息, 图片附在最后一条用户消息上
func toOpenAIMessages(messages []chatMessage, image []byte) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for i, msg := range messages {
		switch msg.Role {
		case roleSystem:
			out = append(out, openai.SystemMessage(msg.Content))
		case roleAssistant:
			out = append(out, openai.AssistantMessage(msg.Content))
		default:
			if i == len(messages)-1 && len(image) > 0 {
				out = append(out, openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
					openai.TextContentPart(msg.Content),
					openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
						URL: imageDataURL(image),
					}),
				}))
				continue
			}
			out = append(out, openai.UserMessage(msg.Content))
		}
	}
	return out
}

func imageDataURL(image []byte) string {
	return "data:" + http.DetectContentType(image) + ";base64," + base64.StdEncoding.EncodeToString(image)
}
