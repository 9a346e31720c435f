package askbot

import "gorm.io/gorm"

type allowedUserRecord struct {
	gorm.Model

	UserID  int64
	IsAdmin bool
}

type historyRecord struct {
	gorm.Model

	ChatID   int64 `gorm:"index:idx_history_owner"`
	UserID   int64 `gorm:"index:idx_history_owner"`
	Question string
	Answer   string
}

func (h historyRecord) turn() Turn {
	return Turn{Question: h.Question, Answer: h.Answer}
}
