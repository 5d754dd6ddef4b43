package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/qs3c/deal_anal_server/internal/pkg/response"
	"github.com/qs3c/deal_anal_server/internal/service"
)

// QuotaCheck 配额预检中间件，挂在触发分析的路由上。
// 只读检查，真正的扣减在 DealService.Analyze 里完成。
func QuotaCheck(quotaService *service.QuotaService) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := GetUserID(c)
		if !ok {
			response.AuthError(c, "")
			c.Abort()
			return
		}

		hasQuota, err := quotaService.CheckQuota(userID)
		if err != nil {
			response.ServerError(c, "配额检查失败")
			c.Abort()
			return
		}

		if !hasQuota {
			response.QuotaError(c, "今日分析配额已用完")
			c.Abort()
			return
		}

		c.Next()
	}
}
