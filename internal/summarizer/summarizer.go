package summarizer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/LJTian/ThreatHub/internal/config"
)

// 发送给模型的正文上限，正文抓取本身已经截断，这里再兜底一次
const maxInputRunes = 6000

var (
	// ErrNotConfigured 未配置 API Key，直接降级，不发请求
	ErrNotConfigured = errors.New("summarizer not configured")
	// ErrEmptyInput 没有可供摘要的文本
	ErrEmptyInput = errors.New("empty input")
)

// Result 摘要结果：失败时 Err 说明原因，调用方按空摘要处理
type Result struct {
	Text string
	Err  error
}

func (r Result) OK() bool {
	return r.Err == nil && r.Text != ""
}

// Summarizer 为一段文本生成简短的安全分析摘要
type Summarizer interface {
	Summarize(ctx context.Context, text string) Result
}

// ChatClient 兼容 OpenAI chat/completions 协议的客户端
type ChatClient struct {
	endpoint     string
	model        string
	apiKey       string
	systemPrompt string
	httpClient   *http.Client
}

var _ Summarizer = (*ChatClient)(nil)

func NewChatClient(cfg config.AIConfig) *ChatClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ChatClient{
		endpoint:     cfg.Endpoint,
		model:        cfg.Model,
		apiKey:       cfg.APIKey,
		systemPrompt: cfg.SystemPrompt,
		httpClient:   &http.Client{Timeout: timeout},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (c *ChatClient) Summarize(ctx context.Context, text string) Result {
	if c == nil || c.apiKey == "" || c.endpoint == "" || c.model == "" {
		return Result{Err: ErrNotConfigured}
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return Result{Err: ErrEmptyInput}
	}

	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: c.systemPrompt},
			{Role: "user", Content: truncate(text, maxInputRunes)},
		},
	})
	if err != nil {
		return Result{Err: fmt.Errorf("marshal chat payload: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{Err: fmt.Errorf("new request: %w", err)}
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{Err: fmt.Errorf("send chat request: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return Result{Err: fmt.Errorf("chat error %s: %s", resp.Status, strings.TrimSpace(string(payload)))}
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Result{Err: fmt.Errorf("decode chat response: %w", err)}
	}
	if len(out.Choices) == 0 {
		return Result{Err: errors.New("chat response has no choices")}
	}
	summary := strings.TrimSpace(out.Choices[0].Message.Content)
	if summary == "" {
		return Result{Err: errors.New("chat response is empty")}
	}
	return Result{Text: summary}
}

func truncate(s string, limit int) string {
	rs := []rune(s)
	if len(rs) <= limit {
		return s
	}
	return string(rs[:limit])
}
