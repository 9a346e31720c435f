package askbot

import (
	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"
)

// TokenCounter 计算一段文本的token数
type TokenCounter interface {
	CountTokens(text string) int
}

type tiktokenCounter struct {
	encoding *tiktoken.Tiktoken
}

// NewTokenCounter 使用 cl100k_base 编码, 加载失败时退化为按字符估算
func NewTokenCounter(logger *zap.Logger) TokenCounter {
	tk, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		logger.Warn("加载tiktoken编码失败, 使用估算", zap.Error(err))
		return estimateCounter{}
	}
	return &tiktokenCounter{encoding: tk}
}

func (c *tiktokenCounter) CountTokens(text string) int {
	return len(c.encoding.Encode(text, nil, nil))
}

// estimateCounter ASCII 大约4个字符一个token, 其他字符 (中文等) 大约一个字符一个token
type estimateCounter struct{}

func (estimateCounter) CountTokens(text string) int {
	ascii, other := 0, 0
	for _, r := range text {
		if r <= 127 {
			ascii++
		} else {
			other++
		}
	}
	return (ascii+3)/4 + other
}
