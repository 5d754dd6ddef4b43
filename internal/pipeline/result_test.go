package pipeline

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSearchInput(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantQuery string
		wantDepth string
		wantErr   bool
	}{
		{"字符串 query", `{"query": "Acme revenue", "depth": "deep"}`, "Acme revenue", "deep", false},
		{"默认深度", `{"query": "Acme"}`, "Acme", "standard", false},
		{"数组 query 拼接", `{"query": ["Acme", "revenue", "2025"]}`, "Acme revenue 2025", "standard", false},
		{"对象 query 按键序拼接", `{"query": {"b": "revenue", "a": "Acme"}}`, "Acme revenue", "standard", false},
		{"去掉数组里的空串", `{"query": ["Acme", "  ", "revenue"]}`, "Acme revenue", "standard", false},
		{"数字 query 拒绝", `{"query": 42}`, "", "", true},
		{"数组含非字符串拒绝", `{"query": ["Acme", 1]}`, "", "", true},
		{"query 缺失拒绝", `{"depth": "deep"}`, "", "", true},
		{"空白 query 拒绝", `{"query": "   "}`, "", "", true},
		{"非法深度拒绝", `{"query": "Acme", "depth": "ultra"}`, "", "", true},
		{"坏 JSON 拒绝", `{"query": `, "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, err := parseSearchInput(json.RawMessage(tt.input))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantQuery, in.Query)
			assert.Equal(t, tt.wantDepth, in.Depth)
		})
	}
}

func TestParseEmitResult(t *testing.T) {
	const minLen = 10

	t.Run("数值字段三种形态", func(t *testing.T) {
		result, err := parseEmitResult(json.RawMessage(`{
			"summary": "摘要内容足够长足够长足够长",
			"company_name": "Acme",
			"revenue_usd": 1200000.5,
			"valuation_usd": "3,500,000",
			"growth_rate_pct": "null",
			"confidence": null
		}`), minLen)
		require.NoError(t, err)
		assert.Equal(t, 1200000.5, *result.RevenueUSD)
		assert.Equal(t, float64(3500000), *result.ValuationUSD)
		assert.Nil(t, result.GrowthRatePct)
		assert.Nil(t, result.Confidence)
	})

	t.Run("摘要太短", func(t *testing.T) {
		_, err := parseEmitResult(json.RawMessage(`{"summary": "短", "company_name": "Acme"}`), minLen)
		var ve *ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Contains(t, ve.Reason, "summary")
	})

	t.Run("公司名缺失", func(t *testing.T) {
		_, err := parseEmitResult(json.RawMessage(`{"summary": "摘要内容足够长足够长足够长"}`), minLen)
		var ve *ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Contains(t, ve.Reason, "company_name")
	})

	t.Run("数值字段不是数字", func(t *testing.T) {
		_, err := parseEmitResult(json.RawMessage(`{
			"summary": "摘要内容足够长足够长足够长",
			"company_name": "Acme",
			"revenue_usd": "大概一千万美元"
		}`), minLen)
		var ve *ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Contains(t, ve.Reason, "revenue_usd")
	})

	t.Run("数值字段是对象", func(t *testing.T) {
		_, err := parseEmitResult(json.RawMessage(`{
			"summary": "摘要内容足够长足够长足够长",
			"company_name": "Acme",
			"confidence": {"value": 0.8}
		}`), minLen)
		var ve *ValidationError
		require.ErrorAs(t, err, &ve)
	})

	t.Run("置信度越界", func(t *testing.T) {
		_, err := parseEmitResult(json.RawMessage(`{
			"summary": "摘要内容足够长足够长足够长",
			"company_name": "Acme",
			"confidence": 1.5
		}`), minLen)
		var ve *ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Contains(t, ve.Reason, "confidence")
	})

	t.Run("载荷不是 JSON", func(t *testing.T) {
		_, err := parseEmitResult(json.RawMessage(`not json`), minLen)
		var ve *ValidationError
		require.ErrorAs(t, err, &ve)
	})
}
