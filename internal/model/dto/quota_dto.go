package dto

type QuotaInfo struct {
	DailyLimit  int    `json:"daily_limit"`
	DailyUsed   int    `json:"daily_used"`
	DailyRemain int    `json:"daily_remain"`
	ResetAt     string `json:"reset_at,omitempty"`
}
