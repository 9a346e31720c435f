// Package kandinsky 是 FusionBrain 文生图接口的客户端
package kandinsky

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

var (
	// ErrEmptyImage 轮询结束后没有拿到图片
	ErrEmptyImage = errors.New("kandinsky: received an empty answer")
	// ErrGenerationFailed 服务端报告生成失败
	ErrGenerationFailed = errors.New("kandinsky: generation failed")
)

const (
	DefaultURL       = "https://api-key.fusionbrain.ai/"
	DefaultStylesURL = "https://cdn.fusionbrain.ai/static/styles/api"
	DefaultStyle     = "DEFAULT"
	DefaultSize      = 1024
)

// Config 配置客户端
type Config struct {
	URL          string
	StylesURL    string
	APIKey       string
	SecretKey    string
	PollInterval time.Duration
	MaxAttempts  int
	HTTPClient   *http.Client
}

// Client 是文生图服务的客户端
type Client struct {
	logger *zap.Logger
	http   *http.Client
	config Config
}

// GenerateParams 是一次生成任务的参数
type GenerateParams struct {
	Prompt string
	Style  string
	Images int
	Width  int
	Height int
}

// New 创建客户端
func New(logger *zap.Logger, cfg Config) *Client {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if !strings.HasSuffix(cfg.URL, "/") {
		cfg.URL += "/"
	}
	if cfg.StylesURL == "" {
		cfg.StylesURL = DefaultStylesURL
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 10
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &Client{
		logger: logger.Named("Kandinsky"),
		http:   httpClient,
		config: cfg,
	}
}

// Imagine 按提示词和风格生成一张图片, 返回base64编码的图片
func (c *Client) Imagine(ctx context.Context, prompt, style string, width, height int) (string, error) {
	modelID, err := c.Model(ctx)
	if err != nil {
		return "", err
	}

	uuid, err := c.Run(ctx, modelID, GenerateParams{
		Prompt: prompt,
		Style:  style,
		Images: 1,
		Width:  width,
		Height: height,
	})
	if err != nil {
		return "", err
	}

	image, err := c.CheckGeneration(ctx, uuid)
	if err != nil {
		return "", err
	}
	if len(image) == 0 {
		return "", ErrEmptyImage
	}
	return image, nil
}

// Model 获取可用的模型ID
func (c *Client) Model(ctx context.Context) (string, error) {
	c.logger.Info("获取模型")
	body, err := c.do(ctx, http.MethodGet, c.config.URL+"key/api/v1/models", nil, "")
	if err != nil {
		return "", err
	}

	id := gjson.GetBytes(body, "0.id")
	if !id.Exists() {
		return "", fmt.Errorf("kandinsky: no model in response: %s", body)
	}
	return id.String(), nil
}

// Run 提交生成任务, 返回任务的uuid
func (c *Client) Run(ctx context.Context, modelID string, p GenerateParams) (string, error) {
	c.logger.Info("提交生成任务", zap.String("Style", p.Style), zap.Int("Width", p.Width), zap.Int("Height", p.Height))

	if p.Images <= 0 {
		p.Images = 1
	}
	if p.Width <= 0 {
		p.Width = DefaultSize
	}
	if p.Height <= 0 {
		p.Height = DefaultSize
	}
	if p.Style == "" {
		p.Style = DefaultStyle
	}

	params, err := json.Marshal(map[string]any{
		"type":      "GENERATE",
		"numImages": p.Images,
		"width":     p.Width,
		"height":    p.Height,
		"generateParams": map[string]any{
			"query": p.Prompt,
		},
		"style": p.Style,
	})
	if err != nil {
		return "", err
	}

	var form bytes.Buffer
	w := multipart.NewWriter(&form)
	if err := w.WriteField("model_id", modelID); err != nil {
		return "", err
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="params"`)
	header.Set("Content-Type", "application/json")
	part, err := w.CreatePart(header)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(params); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}

	body, err := c.do(ctx, http.MethodPost, c.config.URL+"key/api/v1/text2image/run", &form, w.FormDataContentType())
	if err != nil {
		return "", err
	}

	uuid := gjson.GetBytes(body, "uuid")
	if !uuid.Exists() {
		return "", fmt.Errorf("kandinsky: no uuid in response: %s", body)
	}
	return uuid.String(), nil
}

// CheckGeneration 定时查询任务状态, 直到 DONE / FAIL 或者次数用完.
// 次数用完时返回空字符串, 由调用方当作失败处理.
func (c *Client) CheckGeneration(ctx context.Context, uuid string) (string, error) {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for attempt := 1; attempt <= c.config.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-timer.C:
		}

		c.logger.Info("查询生成状态", zap.String("UUID", uuid), zap.Int("Attempt", attempt))
		body, err := c.do(ctx, http.MethodGet, c.config.URL+"key/api/v1/text2image/status/"+uuid, nil, "")
		if err != nil {
			return "", err
		}

		status := gjson.GetBytes(body, "status").String()
		c.logger.Debug("生成状态", zap.String("Status", status))
		switch status {
		case "DONE":
			return gjson.GetBytes(body, "images.0").String(), nil
		case "FAIL":
			return "", fmt.Errorf("%w: %s", ErrGenerationFailed, gjson.GetBytes(body, "errorDescription").String())
		}

		timer.Reset(c.config.PollInterval)
	}

	c.logger.Warn("生成超时", zap.String("UUID", uuid), zap.Int("Attempts", c.config.MaxAttempts))
	return "", nil
}

// Styles 获取可用的风格名称, 风格列表在CDN上, 不需要带密钥
func (c *Client) Styles(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.StylesURL, nil)
	if err != nil {
		return nil, err
	}
	body, err := c.send(req)
	if err != nil {
		return nil, err
	}

	names := []string{}
	gjson.ParseBytes(body).ForEach(func(_, value gjson.Result) bool {
		if name := value.Get("name"); name.Exists() {
			names = append(names, name.String())
		}
		return true
	})
	return names, nil
}

func (c *Client) do(ctx context.Context, method, url string, body io.Reader, contentType string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Key", "Key "+c.config.APIKey)
	req.Header.Set("X-Secret", "Secret "+c.config.SecretKey)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return c.send(req)
}

func (c *Client) send(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("kandinsky: %s %s: status %d: %s", req.Method, req.URL, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return data, nil
}
