package api

import (
	"github.com/gin-gonic/gin"

	"github.com/qs3c/deal_anal_server/config"
	"github.com/qs3c/deal_anal_server/internal/api/handler"
	"github.com/qs3c/deal_anal_server/internal/api/middleware"
	"github.com/qs3c/deal_anal_server/internal/service"
)

type Router struct {
	authHandler      *handler.AuthHandler
	dealHandler      *handler.DealHandler
	streamHandler    *handler.StreamHandler
	websocketHandler *handler.WebSocketHandler
	quotaHandler     *handler.QuotaHandler
	uploadHandler    *handler.UploadHandler
	quotaService     *service.QuotaService
	cfg              *config.Config
}

func NewRouter(
	authHandler *handler.AuthHandler,
	dealHandler *handler.DealHandler,
	streamHandler *handler.StreamHandler,
	websocketHandler *handler.WebSocketHandler,
	quotaHandler *handler.QuotaHandler,
	uploadHandler *handler.UploadHandler,
	quotaService *service.QuotaService,
	cfg *config.Config,
) *Router {
	return &Router{
		authHandler:      authHandler,
		dealHandler:      dealHandler,
		streamHandler:    streamHandler,
		websocketHandler: websocketHandler,
		quotaHandler:     quotaHandler,
		uploadHandler:    uploadHandler,
		quotaService:     quotaService,
		cfg:              cfg,
	}
}

func (r *Router) Setup() *gin.Engine {
	if r.cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.CORS(r.cfg.CORS))

	api := engine.Group("/api/v1")
	{
		// WebSocket
		api.GET("/ws", r.websocketHandler.Handle)

		// SSE 事件流（token 走查询参数，handler 内部鉴权）
		api.GET("/deals/:id/stream", r.streamHandler.Stream)

		// 公开接口 - 认证
		auth := api.Group("/auth")
		{
			auth.POST("/register", r.authHandler.Register)
			auth.POST("/login", r.authHandler.Login)
		}

		// 需要认证的接口
		authenticated := api.Group("")
		authenticated.Use(middleware.Auth(r.cfg.JWT.Secret))
		{
			// 用户
			authenticated.GET("/user/quota", r.quotaHandler.GetQuota)

			// 交易
			deals := authenticated.Group("/deals")
			{
				deals.POST("", r.dealHandler.Create)
				deals.GET("", r.dealHandler.List)
				deals.GET("/:id", r.dealHandler.Get)
				deals.DELETE("/:id", r.dealHandler.Delete)
				deals.POST("/:id/analyze", middleware.QuotaCheck(r.quotaService), r.dealHandler.Analyze)
				deals.GET("/:id/job-status", r.dealHandler.GetJobStatus)
			}

			// 文档上传
			authenticated.POST("/upload/document", r.uploadHandler.UploadDocument)
		}
	}

	return engine
}
