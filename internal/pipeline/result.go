package pipeline

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/qs3c/deal_anal_server/internal/model"
)

// rawResult emit_result 的宽松载荷形态。数值字段允许数字、
// 数字字符串或 null，解析时统一收敛
type rawResult struct {
	Summary       string      `json:"summary"`
	CompanyName   string      `json:"company_name"`
	Industry      string      `json:"industry"`
	RevenueUSD    interface{} `json:"revenue_usd"`
	ValuationUSD  interface{} `json:"valuation_usd"`
	GrowthRatePct interface{} `json:"growth_rate_pct"`
	Confidence    interface{} `json:"confidence"`
	Sources       []string    `json:"sources"`
}

// parseEmitResult 校验并规范化 emit_result 载荷。任何校验失败
// 都是 ValidationError，调用方不应重试
func parseEmitResult(raw json.RawMessage, minSummaryLen int) (*model.AnalysisResult, error) {
	var r rawResult
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, &ValidationError{Reason: "payload is not valid JSON: " + err.Error()}
	}

	summary := strings.TrimSpace(r.Summary)
	if summary == "" {
		return nil, &ValidationError{Reason: "summary is empty"}
	}
	if len([]rune(summary)) < minSummaryLen {
		return nil, &ValidationError{Reason: fmt.Sprintf("summary shorter than %d characters", minSummaryLen)}
	}

	company := strings.TrimSpace(r.CompanyName)
	if company == "" {
		return nil, &ValidationError{Reason: "company_name is empty"}
	}

	revenue, err := coerceNumber(r.RevenueUSD, "revenue_usd")
	if err != nil {
		return nil, err
	}
	valuation, err := coerceNumber(r.ValuationUSD, "valuation_usd")
	if err != nil {
		return nil, err
	}
	growth, err := coerceNumber(r.GrowthRatePct, "growth_rate_pct")
	if err != nil {
		return nil, err
	}
	confidence, err := coerceNumber(r.Confidence, "confidence")
	if err != nil {
		return nil, err
	}
	if confidence != nil && (*confidence < 0 || *confidence > 1) {
		return nil, &ValidationError{Reason: "confidence out of range [0, 1]"}
	}

	sources := make(model.StringArray, 0, len(r.Sources))
	for _, s := range r.Sources {
		if s = strings.TrimSpace(s); s != "" {
			sources = append(sources, s)
		}
	}

	return &model.AnalysisResult{
		Summary:       summary,
		CompanyName:   company,
		Industry:      strings.TrimSpace(r.Industry),
		RevenueUSD:    revenue,
		ValuationUSD:  valuation,
		GrowthRatePct: growth,
		Confidence:    confidence,
		Sources:       sources,
	}, nil
}

// coerceNumber 把数值字段收敛成数字或 nil。字符串 "null" 是模型
// 常见的坏习惯，按缺失处理
func coerceNumber(v interface{}, field string) (*float64, error) {
	switch n := v.(type) {
	case nil:
		return nil, nil
	case float64:
		return &n, nil
	case string:
		s := strings.TrimSpace(n)
		if s == "" || strings.EqualFold(s, "null") {
			return nil, nil
		}
		f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
		if err != nil {
			return nil, &ValidationError{Reason: fmt.Sprintf("%s is not a number: %q", field, n)}
		}
		return &f, nil
	default:
		return nil, &ValidationError{Reason: fmt.Sprintf("%s has unsupported type %T", field, v)}
	}
}
