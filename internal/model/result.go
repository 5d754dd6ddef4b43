package model

// AnalysisResult 结构化分析结果。数值字段统一为指针：缺失即 null，
// 绝不允许出现字符串 "null"（入库前由 pipeline 校验）
type AnalysisResult struct {
	Summary       string      `json:"summary"`
	CompanyName   string      `json:"company_name"`
	Industry      string      `json:"industry,omitempty"`
	RevenueUSD    *float64    `json:"revenue_usd"`
	ValuationUSD  *float64    `json:"valuation_usd"`
	GrowthRatePct *float64    `json:"growth_rate_pct"`
	Confidence    *float64    `json:"confidence"`
	Sources       StringArray `json:"sources,omitempty"`
	IsPartial     bool        `json:"is_partial"`
}
