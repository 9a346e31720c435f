package askbot

type chatRole string

const (
	roleSystem    chatRole = "system"
	roleUser      chatRole = "user"
	roleAssistant chatRole = "assistant"
)

type chatMessage struct {
	Role    chatRole
	Content string
}

// shorten 从最旧的消息开始丢弃, 使总token数不超过 budget.
// 第一条 (系统提示词) 永远保留, 最后一条也永远保留.
// 第二个返回值是结果的总token数, 超过 budget 时说明即使只剩最后一条也放不下.
func shorten(messages []chatMessage, budget int, counter TokenCounter) ([]chatMessage, int) {
	lengths := make([]int, len(messages))
	total := 0
	for i, m := range messages {
		lengths[i] = counter.CountTokens(m.Content)
		total += lengths[i]
	}
	if total <= budget || len(messages) <= 2 {
		return messages, total
	}

	promptMsg, rest := messages[0], messages[1:]
	lengths = lengths[1:]
	for len(rest) > 1 && total > budget {
		total -= lengths[0]
		rest, lengths = rest[1:], lengths[1:]
	}

	shortened := make([]chatMessage, 0, len(rest)+1)
	shortened = append(shortened, promptMsg)
	shortened = append(shortened, rest...)
	return shortened, total
}
