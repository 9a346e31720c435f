package askbot

import (
	"context"
	"slices"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

func (a *Askbot) isUserInBuck(ctx context.Context, userID int64) bool {
	hasAny, err := a.hasAnyUser(ctx)
	if err != nil {
		return false
	}
	if !hasAny {
		err := a.createUser(ctx, userID, true)
		if err != nil {
			a.logger.Error("创建首个管理员失败", zap.Error(err))
			return false
		}
		a.logger.Info("首个管理员已创建", zap.Int64("UserID", userID))
		return true
	}

	_, err = gorm.G[allowedUserRecord](a.db).Where("user_id = ?", userID).Last(ctx)
	if err != nil {
		return false
	}

	return true
}

func (a *Askbot) hasAnyUser(ctx context.Context) (bool, error) {
	records, err := gorm.G[allowedUserRecord](a.db).Limit(1).Find(ctx)
	if err != nil {
		return false, err
	}
	return len(records) > 0, nil
}

func (a *Askbot) createUser(ctx context.Context, userID int64, isAdmin bool) error {
	return gorm.G[allowedUserRecord](a.db).Create(ctx, &allowedUserRecord{
		UserID:  userID,
		IsAdmin: isAdmin,
	})
}

func (a *Askbot) deleteUser(ctx context.Context, userID int64) error {
	_, err := gorm.G[allowedUserRecord](a.db).Where("user_id = ?", userID).Delete(ctx)
	return err
}

func (a *Askbot) loadUsers(ctx context.Context) ([]allowedUserRecord, error) {
	return gorm.G[allowedUserRecord](a.db).Find(ctx)
}

func (a *Askbot) updateUserAdmin(ctx context.Context, userID int64, isAdmin bool) error {
	_, err := gorm.G[allowedUserRecord](a.db).Where("user_id = ?", userID).Update(ctx, "is_admin", isAdmin)
	return err
}

func (a *Askbot) isAdmin(ctx context.Context, userID int64) bool {
	record, err := gorm.G[allowedUserRecord](a.db).Where("user_id = ? AND is_admin = ?", userID, true).Last(ctx)
	if err != nil {
		return false
	}
	return record.IsAdmin
}

func (a *Askbot) countHistoryInDB(ctx context.Context, key sessionKey) (int64, error) {
	var count int64
	err := a.db.WithContext(ctx).Model(&historyRecord{}).
		Where("chat_id = ? AND user_id = ?", key.chatID, key.userID).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

// fillSessionHistoryFromDB 从数据库加载最近的 MaxRounds 轮问答（不会上锁）
func (a *Askbot) fillSessionHistoryFromDB(ctx context.Context, session *userSession, key sessionKey) error {
	query := gorm.G[historyRecord](a.db).
		Where("chat_id = ? AND user_id = ?", key.chatID, key.userID).
		Order("id DESC")
	if a.config.MaxRounds > 0 {
		query = query.Limit(a.config.MaxRounds)
	}

	records, err := query.Find(ctx)
	if err != nil {
		return err
	}

	histories := make(userChatHistory, 0, len(records))
	for _, record := range records {
		histories = append(histories, record.turn())
	}
	slices.Reverse(histories)
	session.histories = histories

	a.logger.Info(
		"加载会话历史完成",
		zap.Int64("ChatID", key.chatID),
		zap.Int64("UserID", key.userID),
		zap.Int("LoadedTurns", len(histories)),
		zap.Int("MaxRounds", a.config.MaxRounds),
	)

	return nil
}

// writeTurnToDB 将新的一轮问答写入数据库
func (a *Askbot) writeTurnToDB(ctx context.Context, key sessionKey, turn Turn) error {
	return gorm.G[historyRecord](a.db).Create(ctx, &historyRecord{
		ChatID:   key.chatID,
		UserID:   key.userID,
		Question: turn.Question,
		Answer:   turn.Answer,
	})
}

// deleteLastTurnInDB 删除最后一轮问答, 用于 /retry
func (a *Askbot) deleteLastTurnInDB(ctx context.Context, key sessionKey) error {
	last, err := gorm.G[historyRecord](a.db).
		Where("chat_id = ? AND user_id = ?", key.chatID, key.userID).
		Last(ctx)
	if err != nil {
		return err
	}
	_, err = gorm.G[historyRecord](a.db).Where("id = ?", last.ID).Delete(ctx)
	return err
}

// clearHistoryInDB 清空会话历史
func (a *Askbot) clearHistoryInDB(ctx context.Context, key sessionKey) error {
	_, err := gorm.G[historyRecord](a.db).
		Where("chat_id = ? AND user_id = ?", key.chatID, key.userID).
		Delete(ctx)
	if err != nil {
		return err
	}
	a.logger.Info("清空会话历史", zap.Int64("ChatID", key.chatID), zap.Int64("UserID", key.userID))
	return nil
}
