package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/qs3c/deal_anal_server/config"
	"github.com/qs3c/deal_anal_server/internal/api"
	"github.com/qs3c/deal_anal_server/internal/api/handler"
	"github.com/qs3c/deal_anal_server/internal/database"
	"github.com/qs3c/deal_anal_server/internal/pkg/cron"
	"github.com/qs3c/deal_anal_server/internal/pkg/oss"
	"github.com/qs3c/deal_anal_server/internal/pkg/pubsub"
	"github.com/qs3c/deal_anal_server/internal/pkg/queue"
	"github.com/qs3c/deal_anal_server/internal/pkg/ws"
	"github.com/qs3c/deal_anal_server/internal/repository"
	"github.com/qs3c/deal_anal_server/internal/service"
)

func main() {
	// 加载配置
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化数据库
	db, err := database.NewMySQL(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect database: %v", err)
	}
	log.Println("Database connected")

	// 初始化 Redis
	rdb, err := database.NewRedis(&cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to connect redis: %v", err)
	}
	log.Println("Redis connected")

	// 初始化 OSS（可选，未配置时文档和报告落本地盘）
	var ossClient *oss.Client
	if cfg.OSS.Endpoint != "" && cfg.OSS.AccessKeyID != "" {
		ossClient, err = oss.NewClient(&cfg.OSS)
		if err != nil {
			log.Printf("Warning: Failed to init OSS client: %v", err)
		} else {
			log.Println("OSS client initialized")
		}
	}

	// 初始化队列
	jobQueue := queue.NewQueue(rdb, cfg.Queue.AnalysisQueue)

	// 初始化 WebSocket Hub
	wsHub := ws.NewHub()
	log.Println("WebSocket hub started")

	// 初始化事件分发：Redis 订阅 -> SSE Dispatcher + WebSocket Hub
	dispatcher := pubsub.NewDispatcher()
	subscriber := pubsub.NewSubscriber(rdb)
	go func() {
		err := subscriber.Subscribe(context.Background(), func(msg *pubsub.EventMessage) {
			dispatcher.Dispatch(msg)

			var payload interface{}
			if len(msg.Payload) > 0 {
				if err := json.Unmarshal(msg.Payload, &payload); err != nil {
					payload = string(msg.Payload)
				}
			}
			if err := wsHub.SendToUser(msg.UserID, &ws.Message{Type: msg.Event, Data: payload}); err != nil {
				log.Printf("Failed to forward event to websocket: %v", err)
			}
		})
		if err != nil {
			log.Printf("Event subscriber stopped: %v", err)
		}
	}()
	log.Println("Event subscriber started")

	// 初始化 Repository
	userRepo := repository.NewUserRepository(db)
	dealRepo := repository.NewDealRepository(db)
	jobRepo := repository.NewJobRepository(db)

	// 初始化 Service
	authService := service.NewAuthService(userRepo, cfg)
	quotaService := service.NewQuotaService(userRepo, cfg)
	dealService := service.NewDealService(dealRepo, jobRepo, quotaService, jobQueue, cfg)
	uploadService := service.NewUploadService(ossClient, cfg)

	// 初始化 Handler
	authHandler := handler.NewAuthHandler(authService)
	dealHandler := handler.NewDealHandler(dealService)
	streamHandler := handler.NewStreamHandler(dealService, dispatcher, cfg.JWT.Secret)
	websocketHandler := handler.NewWebSocketHandler(wsHub, cfg.JWT.Secret)
	quotaHandler := handler.NewQuotaHandler(quotaService)
	uploadHandler := handler.NewUploadHandler(uploadService)

	// 启动定时任务（配额重置 + 僵死任务清理 + 过期上传清理）
	cronService := cron.NewService(quotaService, uploadService, jobRepo, dealRepo)
	cronService.Start()
	defer cronService.Stop()

	// 初始化 Router
	router := api.NewRouter(
		authHandler,
		dealHandler,
		streamHandler,
		websocketHandler,
		quotaHandler,
		uploadHandler,
		quotaService,
		cfg,
	)
	engine := router.Setup()

	// 启动服务器
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Printf("Server starting on %s", addr)
	if err := engine.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
