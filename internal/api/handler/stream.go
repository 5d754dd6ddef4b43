package handler

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/deal_anal_server/internal/model"
	"github.com/qs3c/deal_anal_server/internal/pkg/jwt"
	"github.com/qs3c/deal_anal_server/internal/pkg/pubsub"
	"github.com/qs3c/deal_anal_server/internal/pkg/response"
	"github.com/qs3c/deal_anal_server/internal/pkg/stream"
	"github.com/qs3c/deal_anal_server/internal/service"
)

const heartbeatInterval = 15 * time.Second

// StreamHandler 通过 SSE 向客户端推送分析进度。断开连接只影响
// 本连接，worker 侧的任务不受任何影响
type StreamHandler struct {
	dealService *service.DealService
	dispatcher  *pubsub.Dispatcher
	jwtSecret   string
}

func NewStreamHandler(dealService *service.DealService, dispatcher *pubsub.Dispatcher, jwtSecret string) *StreamHandler {
	return &StreamHandler{
		dealService: dealService,
		dispatcher:  dispatcher,
		jwtSecret:   jwtSecret,
	}
}

// Stream 订阅交易的分析事件流
// GET /api/v1/deals/:id/stream?token=xxx
//
// EventSource 不支持自定义请求头，token 走查询参数
func (h *StreamHandler) Stream(c *gin.Context) {
	userID, ok := h.authenticate(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	dealID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.ParamError(c, "无效的交易 ID")
		return
	}

	// 鉴权兼拿最近任务，交易不属于当前用户时不暴露任何信息
	status, err := h.dealService.GetJobStatus(userID, dealID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrDealNotFound), errors.Is(err, service.ErrJobNotFound):
			response.NotFoundError(c, err.Error())
		case errors.Is(err, service.ErrDealPermission):
			response.PermissionError(c, err.Error())
		default:
			response.ServerError(c, "")
		}
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	// 任务已到终态：补发一条快照事件，客户端断线重连时靠它收尾
	if status.Status == model.JobStatusCompleted || status.Status == model.JobStatusFailed {
		if status.Status == model.JobStatusCompleted {
			c.SSEvent(stream.EventDone, stream.DonePayload{Success: true})
		} else {
			c.SSEvent(stream.EventError, stream.ErrorPayload{Message: status.ErrorMessage})
		}
		c.Writer.Flush()
		return
	}

	ch := h.dispatcher.Subscribe(status.JobID)
	defer h.dispatcher.Unsubscribe(status.JobID, ch)

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.Request.Context().Done():
			return

		case msg, open := <-ch:
			if !open {
				return
			}
			c.SSEvent(msg.Event, msg.Payload)
			c.Writer.Flush()
			if msg.Event == stream.EventDone || msg.Event == stream.EventError {
				return
			}

		case <-ticker.C:
			// 心跳注释行，防止中间层掐掉空闲连接
			c.Writer.WriteString(": ping\n\n")
			c.Writer.Flush()
		}
	}
}

func (h *StreamHandler) authenticate(c *gin.Context) (int64, bool) {
	token := c.Query("token")
	if token == "" {
		authHeader := c.GetHeader("Authorization")
		token = strings.TrimPrefix(authHeader, "Bearer ")
		if token == authHeader {
			token = ""
		}
	}
	if token == "" {
		return 0, false
	}

	claims, err := jwt.ParseToken(token, h.jwtSecret)
	if err != nil {
		return 0, false
	}
	return claims.UserID, true
}
