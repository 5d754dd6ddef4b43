package search

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

// 搜索深度
const (
	DepthStandard = "standard"
	DepthDeep     = "deep"
)

type Result struct {
	Answer  string   `json:"answer"`
	Sources []string `json:"sources"`
}

// Client 网络搜索接口
type Client interface {
	Search(ctx context.Context, query, depth string) (*Result, error)
}

type HTTPClient struct {
	cfg        *config.SearchConfig
	httpClient *http.Client
}

func NewClient(cfg *config.SearchConfig) *HTTPClient {
	return &HTTPClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
	}
}

type wireRequest struct {
	Query string `json:"query"`
	Depth string `json:"depth"`
}

type wireResponse struct {
	Answer  string   `json:"answer"`
	Sources []string `json:"sources"`
	Error   string   `json:"error,omitempty"`
}

func (c *HTTPClient) Search(ctx context.Context, query, depth string) (*Result, error) {
	if depth != DepthStandard && depth != DepthDeep {
		depth = DepthStandard
	}

	body, err := json.Marshal(&wireRequest{Query: query, Depth: depth})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read search response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &upstream.Error{
			Service:    "search",
			StatusCode: resp.StatusCode,
			Message:    truncate(string(data), 300),
		}
	}

	var result wireResponse
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}
	if result.Error != "" {
		return nil, fmt.Errorf("search error: %s", result.Error)
	}

	return &Result{Answer: result.Answer, Sources: result.Sources}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
