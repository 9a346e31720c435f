package askbot

import (
	"context"
	"fmt"
	"strings"

	"github.com/chhongzh/shlex"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

func (a *Askbot) handlerForMessage(ctx context.Context, bt *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	a.handleMessage(ctx, bt, update.Message)
}

func (a *Askbot) handleMessage(ctx context.Context, api telegramAPI, msg *models.Message) {
	if msg.From == nil {
		return
	}
	chatID := msg.Chat.ID
	userID := msg.From.ID
	username := msg.From.Username
	chatText := strings.TrimSpace(msg.Text)

	if cmd, ok := commandName(chatText, a.botUsername); ok && cmd == "start" {
		if !a.isUserInBuck(ctx, userID) {
			a.logger.Info("一名新的用户!",
				zap.Int64("Chat ID", chatID),
				zap.String("Username", username),
				zap.Int64("UserID", userID),
			)

			a.sendMessageTo(ctx, api, chatID, fmt.Sprintf("未在白名单内, 请联系管理员, UserID=%d.", userID), false)
			return
		}

		a.sendMessageTo(ctx, api, chatID, fmt.Sprintf("%s, 欢迎回来! 直接提问即可, /help 查看所有命令.", username), false)
		return
	}

	if !a.isUserInBuck(ctx, userID) {
		// Silent 处理
		return
	}

	text, target := a.extractQuestion(msg)
	if strings.TrimSpace(text) == "" {
		return
	}

	requestID := uuid.NewString()
	a.logger.Info("收到消息",
		zap.String("RequestID", requestID),
		zap.Int64("Chat ID", chatID),
		zap.String("Chat Type", string(msg.Chat.Type)),
		zap.String("Username", username),
		zap.Int64("UserID", userID),
		zap.String("Question", text),
	)

	if cmd, ok := commandName(text, a.botUsername); ok && !isQuestionCommand(cmd) {
		err := a.handleCommand(ctx, api, msg, strings.TrimSpace(text[1:]))
		if err != nil {
			a.sendError(ctx, api, chatID, err)
		}
		return
	}

	if !a.limiter.allow(userID) {
		a.logger.Info("请求过于频繁", zap.String("RequestID", requestID), zap.Int64("UserID", userID))
		a.sendMessageTo(ctx, api, chatID, "请求太频繁了, 请稍后再试.", false)
		return
	}

	err := a.answer(ctx, api, msg, target, text)
	if err != nil {
		a.logger.Error("回答失败", zap.String("RequestID", requestID), zap.Error(err))
		a.sendError(ctx, api, chatID, err)
		return
	}
	a.logger.Info("回答完成", zap.String("RequestID", requestID))
}

// extractQuestion 按聊天类型提取问题
func (a *Askbot) extractQuestion(msg *models.Message) (string, *models.Message) {
	// 命令不需要@Bot
	if _, ok := commandName(strings.TrimSpace(msg.Text), a.botUsername); ok {
		return strings.TrimSpace(msg.Text), msg
	}
	if msg.Chat.Type == models.ChatTypePrivate {
		return extractPrivate(msg), msg
	}
	return extractGroup(msg, a.botUsername)
}

// commandName 解析 "/cmd@botname args" 中的命令名, 发给其他Bot的命令不算
func commandName(text, botUsername string) (string, bool) {
	if !strings.HasPrefix(text, "/") {
		return "", false
	}
	token, _, _ := strings.Cut(text[1:], " ")
	token, _, _ = strings.Cut(token, "\n")
	name, target, addressed := strings.Cut(token, "@")
	if addressed && !strings.EqualFold(target, botUsername) {
		return "", false
	}
	if name == "" {
		return "", false
	}
	return strings.ToLower(name), true
}

// isQuestionCommand 这些命令后面跟的是问题, 交给asker处理
func isQuestionCommand(cmd string) bool {
	return cmd == "imagine" || cmd == "ask"
}

func (a *Askbot) handleCommand(ctx context.Context, api telegramAPI, msg *models.Message, commandLine string) error {
	parts, err := shlex.Split(commandLine)
	if err != nil {
		return err
	}
	if len(parts) == 0 {
		return nil
	}

	command, _, _ := strings.Cut(parts[0], "@")
	args := parts[1:]

	return a.executeCommand(ctx, api, strings.ToLower(command), msg, args)
}

// answer 提问并回复, 处理期间持有该用户的会话
func (a *Askbot) answer(ctx context.Context, api telegramAPI, msg *models.Message, target *models.Message, text string) error {
	ak := a.newAsker(text)
	q := prepareQuestion(text, a.config.Shortcuts)
	if q.Text == "" && q.FollowUp {
		// 只有追问标记没有内容, 和空消息一样忽略
		return nil
	}
	if q.Text == "" {
		_, err := a.sendMessageTo(ctx, api, msg.Chat.ID, "请在命令后面写上问题.", false)
		return err
	}

	if len(msg.Photo) > 0 && ak.keepsHistory() {
		photo, err := a.downloadPhoto(ctx, api, msg.Photo)
		if err != nil {
			return err
		}
		q.Photo = photo
	}

	key := sessionKey{chatID: msg.Chat.ID, userID: msg.From.ID}
	session := a.getSessionOrInit(ctx, key)
	defer session.mu.Unlock()

	if !q.FollowUp && ak.keepsHistory() && len(session.histories) > 0 {
		// 新问题, 丢掉之前的上下文
		session.histories = userChatHistory{}
		if err := a.clearHistoryInDB(ctx, key); err != nil {
			return err
		}
	}

	return a.askAndReply(ctx, api, session, key, target, ak, q)
}

// askAndReply 调用方必须持有 session.mu
func (a *Askbot) askAndReply(ctx context.Context, api telegramAPI, session *userSession, key sessionKey, target *models.Message, ak asker, q question) error {
	var history userChatHistory
	if q.FollowUp {
		history = session.histories
	}

	action := models.ChatActionTyping
	if !ak.keepsHistory() {
		action = models.ChatActionUploadPhoto
	}
	stopTyping := a.startTypingLoop(ctx, api, key.chatID, action)
	answer, err := ak.ask(ctx, q, history)
	stopTyping()
	if err != nil {
		return err
	}

	if err := ak.reply(ctx, api, target, answer); err != nil {
		return err
	}

	if !ak.keepsHistory() {
		return nil
	}

	turn := Turn{Question: q.Text, Answer: answer}
	session.histories = a.trimHistoryToMaxRounds(append(session.histories, turn))
	if err := a.writeTurnToDB(ctx, key, turn); err != nil {
		return err
	}

	a.logger.Info(
		"会话完成",
		zap.Int64("ChatID", key.chatID),
		zap.Int64("UserID", key.userID),
		zap.Bool("FollowUp", q.FollowUp),
		zap.Int("TurnsInMemory", len(session.histories)),
	)
	return nil
}
