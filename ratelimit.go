package askbot

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// userLimiter 每个用户一个令牌桶
type userLimiter struct {
	mu       sync.Mutex
	perMin   int
	limiters map[int64]*rate.Limiter
}

func newUserLimiter(perMinute int) *userLimiter {
	return &userLimiter{
		perMin:   perMinute,
		limiters: make(map[int64]*rate.Limiter),
	}
}

// allow 返回该用户此刻能否再发起请求, perMin 为0时不限制
func (l *userLimiter) allow(userID int64) bool {
	if l.perMin <= 0 {
		return true
	}

	l.mu.Lock()
	limiter, ok := l.limiters[userID]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(l.perMin)), 3)
		l.limiters[userID] = limiter
	}
	l.mu.Unlock()

	return limiter.Allow()
}
