package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/deal_anal_server/internal/api/middleware"
	"github.com/qs3c/deal_anal_server/internal/model/dto"
	"github.com/qs3c/deal_anal_server/internal/pkg/response"
	"github.com/qs3c/deal_anal_server/internal/service"
)

type DealHandler struct {
	dealService *service.DealService
}

func NewDealHandler(dealService *service.DealService) *DealHandler {
	return &DealHandler{
		dealService: dealService,
	}
}

// Create 创建交易
// POST /api/v1/deals
func (h *DealHandler) Create(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	var req dto.CreateDealRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	resp, err := h.dealService.Create(userID, &req)
	if err != nil {
		response.ServerError(c, "")
		return
	}

	response.Success(c, resp)
}

// List 分页获取交易列表
// GET /api/v1/deals?page=1&page_size=20&status=completed
func (h *DealHandler) List(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	status := c.Query("status")

	items, total, err := h.dealService.List(userID, page, pageSize, status)
	if err != nil {
		response.ServerError(c, "")
		return
	}

	response.SuccessPage(c, total, page, pageSize, items)
}

// Get 获取交易详情
// GET /api/v1/deals/:id
func (h *DealHandler) Get(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	dealID, err := parseIDParam(c)
	if err != nil {
		response.ParamError(c, "无效的交易 ID")
		return
	}

	detail, err := h.dealService.GetByID(userID, dealID)
	if err != nil {
		h.handleDealError(c, err)
		return
	}

	response.Success(c, detail)
}

// Delete 删除交易
// DELETE /api/v1/deals/:id
func (h *DealHandler) Delete(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	dealID, err := parseIDParam(c)
	if err != nil {
		response.ParamError(c, "无效的交易 ID")
		return
	}

	if err := h.dealService.Delete(userID, dealID); err != nil {
		h.handleDealError(c, err)
		return
	}

	response.Success(c, nil)
}

// Analyze 发起分析
// POST /api/v1/deals/:id/analyze
func (h *DealHandler) Analyze(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	dealID, err := parseIDParam(c)
	if err != nil {
		response.ParamError(c, "无效的交易 ID")
		return
	}

	resp, err := h.dealService.Analyze(c.Request.Context(), userID, dealID)
	if err != nil {
		h.handleDealError(c, err)
		return
	}

	response.SuccessWithMessage(c, "分析任务已创建", resp)
}

// GetJobStatus 获取最近一次分析任务状态
// GET /api/v1/deals/:id/job-status
func (h *DealHandler) GetJobStatus(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	dealID, err := parseIDParam(c)
	if err != nil {
		response.ParamError(c, "无效的交易 ID")
		return
	}

	resp, err := h.dealService.GetJobStatus(userID, dealID)
	if err != nil {
		h.handleDealError(c, err)
		return
	}

	response.Success(c, resp)
}

func (h *DealHandler) handleDealError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrDealNotFound), errors.Is(err, service.ErrJobNotFound):
		response.NotFoundError(c, err.Error())
	case errors.Is(err, service.ErrDealPermission):
		response.PermissionError(c, err.Error())
	case errors.Is(err, service.ErrQuotaExceeded):
		response.QuotaError(c, err.Error())
	case errors.Is(err, service.ErrDealInProgress):
		response.DuplicateError(c, err.Error())
	case errors.Is(err, service.ErrDealNoDocument):
		response.ParamError(c, err.Error())
	default:
		response.ServerError(c, "")
	}
}

func parseIDParam(c *gin.Context) (int64, error) {
	return strconv.ParseInt(c.Param("id"), 10, 64)
}
