package askbot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"
)

const (
	// messageLimit Telegram 单条消息的最大长度
	messageLimit = 4096
	// captionLimit 图片/文件说明的最大长度
	captionLimit = 1024
)

func (a *Askbot) sendMessageTo(ctx context.Context, api telegramAPI, chatID int64, msg string, isHTML bool) (*models.Message, error) {
	param := &bot.SendMessageParams{
		ChatID: chatID,
		Text:   msg,
	}
	if isHTML {
		param.ParseMode = models.ParseModeHTML
	}
	return api.SendMessage(ctx, param)
}

func (a *Askbot) sendChatAction(ctx context.Context, api telegramAPI, chatID int64, newAction models.ChatAction) error {
	_, err := api.SendChatAction(ctx, &bot.SendChatActionParams{
		ChatID: chatID,
		Action: newAction,
	})

	return err
}

func (a *Askbot) sendError(ctx context.Context, api telegramAPI, chatID int64, err error) {
	a.logger.Info("发送错误", zap.Error(err))

	format := `>_< 出错了!
%s`
	formatted := fmt.Sprintf(format, err)

	_, err = a.sendMessageTo(ctx, api, chatID, formatted, false)
	if err != nil {
		a.logger.Error("在发送错误时遇到错误! >_<", zap.Error(err))
		return
	}
}

// replyText 以HTML回复, 超长时改为发送附件
func (a *Askbot) replyText(ctx context.Context, api telegramAPI, target *models.Message, answer string) error {
	htmlAnswer := toHTML(answer)
	if utf16Len(htmlAnswer) <= messageLimit {
		params := &bot.SendMessageParams{
			ChatID:          target.Chat.ID,
			MessageThreadID: target.MessageThreadID,
			Text:            htmlAnswer,
			ParseMode:       models.ParseModeHTML,
			ReplyParameters: replyParameters(target),
		}
		_, err := api.SendMessage(ctx, params)
		if err == nil || !isParseEntitiesError(err) {
			return err
		}

		// HTML 被拒绝时改发原文, 原文太长就走附件
		a.logger.Warn("HTML解析失败, 改为发送纯文本", zap.Error(err))
		if utf16Len(answer) <= messageLimit {
			params.Text = answer
			params.ParseMode = ""
			_, err = api.SendMessage(ctx, params)
			return err
		}
	}

	a.logger.Info("回答过长, 以附件形式发送", zap.Int("Length", utf16Len(htmlAnswer)))
	caption := shortenText(answer, 40, "...") + " (完整内容见附件)"
	_, err := api.SendDocument(ctx, &bot.SendDocumentParams{
		ChatID:          target.Chat.ID,
		MessageThreadID: target.MessageThreadID,
		Document: &models.InputFileUpload{
			Filename: strconv.Itoa(target.ID) + ".md",
			Data:     strings.NewReader(answer),
		},
		Caption:         caption,
		ReplyParameters: replyParameters(target),
	})
	return err
}

// isParseEntitiesError Telegram 无法解析消息里的标记
func isParseEntitiesError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "can't parse entities") || strings.Contains(msg, "can't parse entity")
}

// replyParameters 私聊里直接回复, 群里引用原消息
func replyParameters(target *models.Message) *models.ReplyParameters {
	if target.Chat.Type == models.ChatTypePrivate {
		return nil
	}
	return &models.ReplyParameters{MessageID: target.ID}
}

// startTypingLoop 开启一个 goroutine 持续发送 Action 状态，返回一个停止函数
func (a *Askbot) startTypingLoop(ctx context.Context, api telegramAPI, chatID int64, action models.ChatAction) func() {
	done := make(chan struct{})
	ticker := time.NewTicker(time.Second * 5)

	go func() {
		fn := func() {
			err := a.sendChatAction(ctx, api, chatID, action)
			if err != nil {
				a.logger.Error("Action Routine Error", zap.Error(err))
			}
		}
		fn()
		for {
			select {
			case <-done:
				ticker.Stop()
				return
			case <-ctx.Done():
				ticker.Stop()
				return
			case <-ticker.C:
				fn()
			}
		}
	}()

	return func() {
		close(done)
	}
}
