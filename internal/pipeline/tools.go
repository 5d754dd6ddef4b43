package pipeline

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/qs3c/deal_anal_server/internal/pkg/reasoning"
	"github.com/qs3c/deal_anal_server/internal/pkg/search"
)

const (
	ToolSearch     = "search"
	ToolEmitResult = "emit_result"
)

func toolDefinitions() []reasoning.Tool {
	return []reasoning.Tool{
		{
			Name:        ToolSearch,
			Description: "检索与标的公司、行业或市场相关的补充信息。每轮对话最多调用有限次数。",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"query": {"type": "string", "description": "检索关键词"},
					"depth": {"type": "string", "enum": ["standard", "deep"], "description": "检索深度，默认 standard"}
				},
				"required": ["query"]
			}`),
		},
		{
			Name:        ToolEmitResult,
			Description: "提交最终的结构化分析结果。确认结论后必须调用且只调用一次。",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"summary": {"type": "string", "description": "分析摘要"},
					"company_name": {"type": "string"},
					"industry": {"type": "string"},
					"revenue_usd": {"type": ["number", "null"]},
					"valuation_usd": {"type": ["number", "null"]},
					"growth_rate_pct": {"type": ["number", "null"]},
					"confidence": {"type": ["number", "null"], "description": "0 到 1 之间"},
					"sources": {"type": "array", "items": {"type": "string"}}
				},
				"required": ["summary", "company_name"]
			}`),
		},
	}
}

// searchInput 规范化后的 search 入参
type searchInput struct {
	Query string
	Depth string
}

// parseSearchInput 容忍模型把 query 发成数组或对象，统一收敛成一个字符串。
// 数字、布尔等无法收敛的形态直接拒绝
func parseSearchInput(raw json.RawMessage) (*searchInput, error) {
	var loose struct {
		Query interface{} `json:"query"`
		Depth string      `json:"depth"`
	}
	if err := json.Unmarshal(raw, &loose); err != nil {
		return nil, fmt.Errorf("search input is not valid JSON: %w", err)
	}

	query, err := coerceQuery(loose.Query)
	if err != nil {
		return nil, err
	}
	if query == "" {
		return nil, fmt.Errorf("search query is empty")
	}

	depth := loose.Depth
	switch depth {
	case "":
		depth = search.DepthStandard
	case search.DepthStandard, search.DepthDeep:
	default:
		return nil, fmt.Errorf("unsupported search depth %q", depth)
	}

	return &searchInput{Query: query, Depth: depth}, nil
}

func coerceQuery(v interface{}) (string, error) {
	switch q := v.(type) {
	case string:
		return strings.TrimSpace(q), nil
	case []interface{}:
		parts := make([]string, 0, len(q))
		for _, item := range q {
			s, ok := item.(string)
			if !ok {
				return "", fmt.Errorf("search query array contains non-string element")
			}
			if s = strings.TrimSpace(s); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, " "), nil
	case map[string]interface{}:
		keys := make([]string, 0, len(q))
		for k := range q {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			s, ok := q[k].(string)
			if !ok {
				return "", fmt.Errorf("search query object contains non-string value")
			}
			if s = strings.TrimSpace(s); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, " "), nil
	case nil:
		return "", fmt.Errorf("search query is missing")
	default:
		return "", fmt.Errorf("search query has unsupported type %T", v)
	}
}
