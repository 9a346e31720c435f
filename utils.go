package askbot

import (
	"context"
	"strings"
	"unicode/utf16"

	"go.uber.org/zap"
)

// getSessionOrInit 获取或初始化用户会话, 返回的会话已经上锁, 调用方负责解锁
func (a *Askbot) getSessionOrInit(ctx context.Context, key sessionKey) *userSession {
	a.userSessionLock.Lock()
	session, ok := a.userSession[key]
	if !ok {
		session = &userSession{}
		a.userSession[key] = session
	}
	a.userSessionLock.Unlock()

	session.mu.Lock()
	if !session.loaded {
		// 加载History
		err := a.fillSessionHistoryFromDB(ctx, session, key)
		if err != nil {
			a.logger.Error("填充History错误!", zap.Error(err))
		}
		session.loaded = true
	}

	return session
}

// trimHistoryToMaxRounds 只保留最近的 MaxRounds 轮
func (a *Askbot) trimHistoryToMaxRounds(histories userChatHistory) userChatHistory {
	max := a.config.MaxRounds
	if max <= 0 || len(histories) <= max {
		return histories
	}
	return histories[len(histories)-max:]
}

// utf16Len 返回 Telegram 计算长度时使用的 UTF-16 码元数
func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		n += utf16.RuneLen(r)
	}
	return n
}

// sliceUTF16 按 UTF-16 的偏移截取字符串, Telegram 实体的 offset/length 都以此为单位
func sliceUTF16(s string, offset, length int) (before, span, after string) {
	units := utf16.Encode([]rune(s))
	if offset < 0 {
		offset = 0
	}
	if offset > len(units) {
		offset = len(units)
	}
	end := offset + length
	if end > len(units) {
		end = len(units)
	}
	if end < offset {
		end = offset
	}
	before = string(utf16.Decode(units[:offset]))
	span = string(utf16.Decode(units[offset:end]))
	after = string(utf16.Decode(units[end:]))
	return before, span, after
}

// shortenText 合并空白后在单词边界截断, 结果 (含placeholder) 不超过 width 个字符
func shortenText(text string, width int, placeholder string) string {
	words := strings.Fields(text)
	collapsed := strings.Join(words, " ")
	if len([]rune(collapsed)) <= width {
		return collapsed
	}

	limit := width - len([]rune(placeholder))
	var sb strings.Builder
	n := 0
	for _, w := range words {
		wl := len([]rune(w))
		extra := wl
		if n > 0 {
			extra++
		}
		if n+extra > limit {
			break
		}
		if n > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(w)
		n += extra
	}
	if n == 0 {
		return placeholder
	}
	return sb.String() + placeholder
}
