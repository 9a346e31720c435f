package askbot

import (
	"github.com/go-telegram/bot"
	"go.uber.org/zap"
)

func (a *Askbot) setupBot() error {
	opts := []bot.Option{
		bot.WithDefaultHandler(a.handlerForMessage),
	}

	bt, err := bot.New(a.botToken, opts...)
	if err != nil {
		return err
	}

	me, err := bt.GetMe(a.ctx)
	if err != nil {
		return err
	}

	a.bot = bt
	a.botUsername = me.Username
	a.logger.Info("初始化Bot成功", zap.String("Username", me.Username))

	return nil
}

func (a *Askbot) setupDB() error {
	return a.db.AutoMigrate(&allowedUserRecord{}, &historyRecord{})
}
