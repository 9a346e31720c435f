package askbot

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"
)

// maxPhotoBytes 超过这个大小的图片不会发给模型
const maxPhotoBytes = 10 << 20

// downloadPhoto 下载消息里最大尺寸的图片
func (a *Askbot) downloadPhoto(ctx context.Context, api telegramAPI, sizes []models.PhotoSize) ([]byte, error) {
	largest := sizes[len(sizes)-1]
	file, err := api.GetFile(ctx, &bot.GetFileParams{FileID: largest.FileID})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, api.FileDownloadLink(file), nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("下载图片失败: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPhotoBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxPhotoBytes {
		return nil, fmt.Errorf("图片太大了, 最多 %d MB", maxPhotoBytes>>20)
	}

	a.logger.Debug("下载图片完成", zap.Int("Bytes", len(data)), zap.Int("Width", largest.Width), zap.Int("Height", largest.Height))
	return data, nil
}
