package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/qs3c/deal_anal_server/internal/api/middleware"
	"github.com/qs3c/deal_anal_server/internal/pkg/response"
	"github.com/qs3c/deal_anal_server/internal/service"
)

// QuotaHandler 用户配额查询
type QuotaHandler struct {
	quotaService *service.QuotaService
}

func NewQuotaHandler(quotaService *service.QuotaService) *QuotaHandler {
	return &QuotaHandler{quotaService: quotaService}
}

// GetQuota 获取当前用户的每日配额用量
// GET /api/v1/user/quota
func (h *QuotaHandler) GetQuota(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	info, err := h.quotaService.GetQuotaInfo(userID)
	if err != nil {
		response.ServerError(c, "获取配额信息失败")
		return
	}

	response.Success(c, info)
}
