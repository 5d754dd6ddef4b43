package ocr

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

type Result struct {
	Success bool   `json:"success"`
	Text    string `json:"extracted_text"`
	Error   string `json:"error,omitempty"`
}

// Client 文档文本提取接口
type Client interface {
	Extract(ctx context.Context, documentKey string) (*Result, error)
}

type HTTPClient struct {
	cfg        *config.OCRConfig
	httpClient *http.Client
}

func NewClient(cfg *config.OCRConfig) *HTTPClient {
	return &HTTPClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
	}
}

type wireRequest struct {
	DocumentKey string `json:"document_key"`
}

func (c *HTTPClient) Extract(ctx context.Context, documentKey string) (*Result, error) {
	body, err := json.Marshal(&wireRequest{DocumentKey: documentKey})
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
		return nil, fmt.Errorf("ocr request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read ocr response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &upstream.Error{
			Service:    "ocr",
			StatusCode: resp.StatusCode,
			Message:    truncate(string(data), 300),
		}
	}

	var result Result
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to decode ocr response: %w", err)
	}

	return &result, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
