package askbot

import (
	"strings"

	"github.com/go-telegram/bot/models"
)

// defaultPhotoQuestion 图片没有说明时使用的问题
const defaultPhotoQuestion = "这张图片里有什么?"

// followUpMarker 问题以它开头时表示追问
const followUpMarker = "+"

// extractPrivate 从私聊消息中提取问题, 私聊里的任何消息都算
func extractPrivate(msg *models.Message) string {
	if len(msg.Photo) > 0 {
		return photoQuestion(msg)
	}

	question := msg.Text
	if strings.TrimSpace(question) == "" {
		// 贴纸之类没有文字的消息
		return ""
	}
	if msg.ReplyToMessage != nil {
		// 回复之前的消息就是追问
		question = followUpMarker + " " + question
	}
	return question
}

// extractGroup 从群消息中提取问题, 同时返回应当回复的消息.
// 既不是回复Bot也没有@Bot时返回空字符串.
func extractGroup(msg *models.Message, botUsername string) (string, *models.Message) {
	if reply := msg.ReplyToMessage; reply != nil && reply.From != nil &&
		strings.EqualFold(reply.From.Username, botUsername) {
		// 回复Bot当作追问
		if len(msg.Photo) > 0 {
			return photoQuestion(msg), msg
		}
		if strings.TrimSpace(msg.Text) == "" {
			return "", msg
		}
		return followUpMarker + " " + msg.Text, msg
	}

	text, entities := msg.Text, msg.Entities
	if len(msg.Photo) > 0 {
		text, entities = msg.Caption, msg.CaptionEntities
	}
	// 只看第一个实体
	if len(entities) == 0 || entities[0].Type != models.MessageEntityTypeMention {
		return "", msg
	}
	mention := entities[0]

	before, mentionText, after := sliceUTF16(text, mention.Offset, mention.Length)
	if !strings.EqualFold(mentionText, "@"+botUsername) {
		// @的是别人
		return "", msg
	}

	var question string
	if len(msg.Photo) > 0 {
		question = photoQuestion(msg)
	} else {
		question = strings.TrimSpace(before + after)
	}

	// 话题里的消息在技术上都是对"话题已创建"消息的回复, 要忽略
	if reply := msg.ReplyToMessage; reply != nil && reply.ForumTopicCreated == nil {
		if len(msg.Photo) > 0 {
			return question, reply
		}
		// 真正的问题在被回复的消息里
		if question != "" {
			question = question + ": " + reply.Text
		} else {
			question = reply.Text
		}
		return question, reply
	}

	return question, msg
}

func photoQuestion(msg *models.Message) string {
	if msg.Caption == "" {
		return defaultPhotoQuestion
	}
	return msg.Caption
}

// prepareQuestion 去掉特殊前缀, 并判断是否为追问
func prepareQuestion(text string, shortcuts map[string]string) question {
	q := question{Text: strings.TrimSpace(text)}
	if q.Text == "" {
		return q
	}

	if strings.HasPrefix(q.Text, followUpMarker) {
		q.Text = strings.Trim(q.Text, "+ ")
		q.FollowUp = true
	}

	switch {
	case strings.HasPrefix(q.Text, "!"):
		// 快捷指令, 先加工问题再提问
		name, rest, _ := strings.Cut(q.Text[1:], " ")
		rest = strings.TrimSpace(rest)
		if prompt, ok := shortcuts[name]; ok {
			q.Text = prompt + "\n\n" + rest
		} else {
			q.Text = rest
		}
	case strings.HasPrefix(q.Text, "/"):
		// 命令, 提问前去掉命令本身
		_, rest, _ := strings.Cut(q.Text, " ")
		q.Text = strings.TrimSpace(rest)
	}

	return q
}
