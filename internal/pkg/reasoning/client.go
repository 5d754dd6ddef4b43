package reasoning

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/qs3c/deal_anal_server/config"
	"github.com/qs3c/deal_anal_server/internal/pkg/upstream"
)

// 内容块类型
const (
	BlockText       = "text"
	BlockToolUse    = "tool_use"
	BlockToolResult = "tool_result"
)

// 消息角色
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ContentBlock 响应/请求中的单个内容块，按 Type 取对应字段
type ContentBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

type Message struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

// Tool 暴露给推理服务的能力定义
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// ToolChoice 限定本次调用只能使用某个能力
type ToolChoice struct {
	Type string `json:"type"`
	Name string `json:"name,omitempty"`
}

type Request struct {
	System     string
	Messages   []Message
	Tools      []Tool
	ToolChoice *ToolChoice
}

type Response struct {
	Content    []ContentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
}

// Client 推理服务接口，单次往返：完整历史进，内容块序列出
type Client interface {
	CreateMessage(ctx context.Context, req *Request) (*Response, error)
}

// HTTPClient messages API 风格的 HTTP 实现
type HTTPClient struct {
	cfg        *config.ReasoningConfig
	httpClient *http.Client
}

func NewClient(cfg *config.ReasoningConfig) *HTTPClient {
	return &HTTPClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
	}
}

type wireRequest struct {
	Model      string      `json:"model"`
	MaxTokens  int         `json:"max_tokens"`
	System     string      `json:"system,omitempty"`
	Messages   []Message   `json:"messages"`
	Tools      []Tool      `json:"tools,omitempty"`
	ToolChoice *ToolChoice `json:"tool_choice,omitempty"`
}

func (c *HTTPClient) CreateMessage(ctx context.Context, req *Request) (*Response, error) {
	body, err := json.Marshal(&wireRequest{
		Model:      c.cfg.Model,
		MaxTokens:  c.cfg.MaxTokens,
		System:     req.System,
		Messages:   req.Messages,
		Tools:      req.Tools,
		ToolChoice: req.ToolChoice,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal reasoning request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.cfg.APIKey)
	httpReq.Header.Set("anthropic-version", c.cfg.APIVersion)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("reasoning request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read reasoning response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &upstream.Error{
			Service:    "reasoning",
			StatusCode: resp.StatusCode,
			Message:    truncate(string(data), 500),
		}
	}

	var result Response
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to decode reasoning response: %w", err)
	}

	return &result, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
