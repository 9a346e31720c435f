package askbot

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"
)

// asker 把问题发给AI并把回答发回聊天
type asker interface {
	ask(ctx context.Context, q question, history []Turn) (string, error)
	reply(ctx context.Context, api telegramAPI, target *models.Message, answer string) error
	// keepsHistory 回答是否应该记入会话历史
	keepsHistory() bool
}

// newAsker 根据问题选择对应的asker
func (a *Askbot) newAsker(text string) asker {
	if strings.HasPrefix(text, "/imagine") {
		return &imagineAsker{bot: a}
	}
	return &textAsker{bot: a}
}

type textAsker struct {
	bot *Askbot
}

func (t *textAsker) ask(ctx context.Context, q question, history []Turn) (string, error) {
	if t.bot.chat == nil {
		return "", errors.New("没有配置对话模型")
	}
	return t.bot.chat.Ask(ctx, q.Text, history, t.bot.config.SystemPrompt, q.Photo)
}

func (t *textAsker) reply(ctx context.Context, api telegramAPI, target *models.Message, answer string) error {
	return t.bot.replyText(ctx, api, target, answer)
}

func (t *textAsker) keepsHistory() bool {
	return true
}

var (
	sizeRe  = regexp.MustCompile(`\b(256|512|1024)(?:x(?:256|512|1024))?\s?(?:px)?\b`)
	styleRe = regexp.MustCompile(`(?i)style:\s*(\S+)`)
)

type imagineAsker struct {
	bot     *Askbot
	caption string
}

func (im *imagineAsker) ask(ctx context.Context, q question, _ []Turn) (string, error) {
	if im.bot.images == nil {
		return "", errors.New("没有配置画图服务")
	}

	size := extractSize(q.Text)
	im.caption = extractCaption(q.Text)
	prompt, style := extractStyle(im.caption)
	if prompt == "" {
		return "", errors.New("请描述要画的内容, 例如 /imagine 一只猫 Style:ANIME")
	}

	ctx, cancel := context.WithTimeout(ctx, im.bot.config.ImagineTimeout)
	defer cancel()

	im.bot.logger.Info("开始画图", zap.String("Style", style), zap.Int("Size", size))
	return im.bot.images.Imagine(ctx, prompt, style, size, size)
}

func (im *imagineAsker) reply(ctx context.Context, api telegramAPI, target *models.Message, answer string) error {
	return im.bot.replyPhoto(ctx, api, target, answer, im.caption)
}

func (im *imagineAsker) keepsHistory() bool {
	return false
}

// extractSize 从问题中提取图片尺寸, 默认1024
func extractSize(text string) int {
	match := sizeRe.FindStringSubmatch(text)
	if match == nil {
		return 1024
	}
	size, err := strconv.Atoi(match[1])
	if err != nil {
		return 1024
	}
	return size
}

func extractCaption(text string) string {
	return strings.TrimSpace(sizeRe.ReplaceAllString(text, ""))
}

// extractStyle 提取 "Style:NAME", 找不到时使用默认风格
func extractStyle(caption string) (prompt, style string) {
	match := styleRe.FindStringSubmatchIndex(caption)
	if match == nil {
		return strings.TrimSpace(caption), defaultStyle
	}
	style = caption[match[2]:match[3]]
	prompt = strings.TrimSpace(caption[:match[0]] + " " + caption[match[1]:])
	return strings.Join(strings.Fields(prompt), " "), style
}

const defaultStyle = "DEFAULT"

// replyPhoto 解码base64图片并以照片的形式发送
func (a *Askbot) replyPhoto(ctx context.Context, api telegramAPI, target *models.Message, answer string, caption string) error {
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(answer))
	if err != nil {
		return err
	}
	if utf16Len(caption) > captionLimit {
		caption = shortenText(caption, captionLimit-24, "...")
	}

	params := &bot.SendPhotoParams{
		ChatID:          target.Chat.ID,
		MessageThreadID: target.MessageThreadID,
		Photo:           &models.InputFileUpload{Filename: "image.jpg", Data: bytes.NewReader(data)},
		Caption:         caption,
		ReplyParameters: &models.ReplyParameters{MessageID: target.ID},
	}
	_, err = api.SendPhoto(ctx, params)
	return err
}
