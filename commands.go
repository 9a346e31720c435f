package askbot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-telegram/bot/models"
)

// executeCommand 执行命令
func (a *Askbot) executeCommand(ctx context.Context, api telegramAPI, command string, msg *models.Message, args []string) error {
	handlers := map[string]commandHandlerFunc{
		"help":   a.handleHelp,
		"info":   a.handleInfo,
		"retry":  a.handleRetry,
		"styles": a.handleStyles,
		"user":   a.handleUserCommand,
	}

	if handler, ok := handlers[command]; ok {
		return handler(ctx, api, msg, args)
	}

	// 群里的未知命令多半是发给别人的
	if msg.Chat.Type != models.ChatTypePrivate {
		return nil
	}
	_, err := a.sendMessageTo(ctx, api, msg.Chat.ID, ">_< 不认识这个命令, 试试 /help", false)
	return err
}

func (a *Askbot) handleHelp(ctx context.Context, api telegramAPI, msg *models.Message, _ []string) error {
	help := `直接发消息就是提问, 回复Bot的消息 (或以 + 开头) 就是追问.
群里需要@Bot或者回复Bot.

/help 显示这条命令
/ask <问题> 提问
/imagine <描述> [Style:风格] [256|512|1024] 画图
/styles 列出可用的画图风格
/retry 重新回答上一个问题
/info 查看对话信息
/user ls 列出所有用户
/user add <ID> [admin] 添加用户
/user rm <ID> 删除用户
/user setadmin <ID> <true|false> 设置管理员`

	if len(a.config.Shortcuts) > 0 {
		names := make([]string, 0, len(a.config.Shortcuts))
		for name := range a.config.Shortcuts {
			names = append(names, "!"+name)
		}
		help += "\n\n快捷指令: " + strings.Join(names, ", ")
	}

	_, err := a.sendMessageTo(ctx, api, msg.Chat.ID, help, false)
	return err
}

func (a *Askbot) handleInfo(ctx context.Context, api telegramAPI, msg *models.Message, _ []string) error {
	text := `信息

当前内存中的轮数:%d
配置的最大轮数:%s
数据库中的轮数:%d
输入token预算:%s
模型:%s
`
	key := sessionKey{chatID: msg.Chat.ID, userID: msg.From.ID}
	session := a.getSessionOrInit(ctx, key)
	turnsInMemory := len(session.histories)
	session.mu.Unlock()

	turnsInDB, err := a.countHistoryInDB(ctx, key)
	if err != nil {
		return err
	}

	maxRoundsStr := "无限制"
	if a.config.MaxRounds > 0 {
		maxRoundsStr = strconv.Itoa(a.config.MaxRounds)
	}

	budgetStr := "-"
	if m, ok := a.chat.(*ChatModel); ok {
		budgetStr = strconv.Itoa(m.Budget())
	}

	_, err = a.sendMessageTo(
		ctx,
		api,
		msg.Chat.ID,
		fmt.Sprintf(text, turnsInMemory, maxRoundsStr, turnsInDB, budgetStr, a.config.Model),
		false,
	)
	return err
}

// handleRetry 丢掉上一轮的回答, 用同样的问题和之前的上下文重新提问
func (a *Askbot) handleRetry(ctx context.Context, api telegramAPI, msg *models.Message, _ []string) error {
	key := sessionKey{chatID: msg.Chat.ID, userID: msg.From.ID}
	session := a.getSessionOrInit(ctx, key)
	defer session.mu.Unlock()

	if len(session.histories) == 0 {
		_, err := a.sendMessageTo(ctx, api, msg.Chat.ID, "没有可以重试的问题.", false)
		return err
	}

	last := session.histories[len(session.histories)-1]
	session.histories = session.histories[:len(session.histories)-1]
	if err := a.deleteLastTurnInDB(ctx, key); err != nil {
		return err
	}

	q := question{Text: last.Question, FollowUp: true}
	return a.askAndReply(ctx, api, session, key, msg, &textAsker{bot: a}, q)
}

func (a *Askbot) handleStyles(ctx context.Context, api telegramAPI, msg *models.Message, _ []string) error {
	styles, err := a.loadStyles(ctx)
	if err != nil {
		return err
	}

	text := "可用的画图风格: " + strings.Join(styles, ", ") + "\n\n用法: /imagine 一只猫 Style:" + defaultStyle
	_, err = a.sendMessageTo(ctx, api, msg.Chat.ID, text, false)
	return err
}

func (a *Askbot) handleUserCommand(ctx context.Context, api telegramAPI, msg *models.Message, args []string) error {
	if !a.isAdmin(ctx, msg.From.ID) {
		_, err := a.sendMessageTo(ctx, api, msg.Chat.ID, "只有管理员可以执行该命令.", false)
		return err
	}

	if len(args) == 0 {
		return a.handleUserList(ctx, api, msg, args)
	}

	switch strings.ToLower(args[0]) {
	case "ls", "list":
		return a.handleUserList(ctx, api, msg, args[1:])
	case "add":
		return a.handleUserAdd(ctx, api, msg, args[1:])
	case "rm", "remove":
		return a.handleUserRemove(ctx, api, msg, args[1:])
	case "setadmin":
		return a.handleUserSetAdmin(ctx, api, msg, args[1:])
	default:
		_, err := a.sendMessageTo(ctx, api, msg.Chat.ID, "未知子命令, 请使用 ls/add/rm/setadmin", false)
		return err
	}
}

func (a *Askbot) handleUserList(ctx context.Context, api telegramAPI, msg *models.Message, _ []string) error {
	users, err := a.loadUsers(ctx)
	if err != nil {
		return err
	}

	var sb strings.Builder
	for _, u := range users {
		role := "User"
		if u.IsAdmin {
			role = "Admin"
		}
		fmt.Fprintf(&sb, "ID: %d - %s\n", u.UserID, role)
	}

	if sb.Len() == 0 {
		sb.WriteString("没有任何用户")
	}

	text := `所有的用户

%s`

	_, err = a.sendMessageTo(ctx, api, msg.Chat.ID, fmt.Sprintf(text, sb.String()), false)
	return err
}

func (a *Askbot) handleUserAdd(ctx context.Context, api telegramAPI, msg *models.Message, args []string) error {
	if len(args) < 1 {
		_, err := a.sendMessageTo(ctx, api, msg.Chat.ID, "请输入要添加的用户ID", false)
		return err
	}

	targetID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		_, err := a.sendMessageTo(ctx, api, msg.Chat.ID, "用户ID必须是数字", false)
		return err
	}

	isAdmin := len(args) >= 2 && strings.ToLower(args[1]) == "admin"

	err = a.createUser(ctx, targetID, isAdmin)
	if err != nil {
		return err
	}

	_, err = a.sendMessageTo(ctx, api, msg.Chat.ID, "添加用户成功!", false)
	return err
}

func (a *Askbot) handleUserRemove(ctx context.Context, api telegramAPI, msg *models.Message, args []string) error {
	if len(args) < 1 {
		_, err := a.sendMessageTo(ctx, api, msg.Chat.ID, "请输入要删除的用户ID", false)
		return err
	}

	targetID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		_, err := a.sendMessageTo(ctx, api, msg.Chat.ID, "用户ID必须是数字", false)
		return err
	}

	err = a.deleteUser(ctx, targetID)
	if err != nil {
		return err
	}

	_, err = a.sendMessageTo(ctx, api, msg.Chat.ID, "删除用户成功!", false)
	return err
}

func (a *Askbot) handleUserSetAdmin(ctx context.Context, api telegramAPI, msg *models.Message, args []string) error {
	if len(args) < 2 {
		_, err := a.sendMessageTo(ctx, api, msg.Chat.ID, "用法: /user setadmin <ID> <true|false>", false)
		return err
	}

	targetID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		_, err := a.sendMessageTo(ctx, api, msg.Chat.ID, "用户ID必须是数字", false)
		return err
	}

	flagStr := strings.ToLower(args[1])
	isAdmin := flagStr == "true" || flagStr == "1" || flagStr == "yes"

	if targetID == msg.From.ID && !isAdmin {
		_, err := a.sendMessageTo(ctx, api, msg.Chat.ID, "不可以把自己从管理员降级为普通用户", false)
		return err
	}

	err = a.updateUserAdmin(ctx, targetID, isAdmin)
	if err != nil {
		return err
	}

	_, err = a.sendMessageTo(ctx, api, msg.Chat.ID, "更新管理员状态成功!", false)
	return err
}
