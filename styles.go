package askbot

import (
	"context"
	"errors"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

const stylesCacheKey = "styles"

// loadStyles 获取风格列表, 结果缓存一小时
func (a *Askbot) loadStyles(ctx context.Context) ([]string, error) {
	if cached, ok := a.styleCache.Get(stylesCacheKey); ok {
		return cached.([]string), nil
	}
	if a.images == nil {
		return nil, errors.New("没有配置画图服务")
	}

	styles, err := a.images.Styles(ctx)
	if err != nil {
		return nil, err
	}
	a.styleCache.Set(stylesCacheKey, styles, cache.DefaultExpiration)
	a.logger.Info("刷新风格列表", zap.Int("Count", len(styles)))

	return styles, nil
}
