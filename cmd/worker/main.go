package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/qs3c/deal_anal_server/config"
	"github.com/qs3c/deal_anal_server/internal/database"
	"github.com/qs3c/deal_anal_server/internal/pipeline"
	"github.com/qs3c/deal_anal_server/internal/pkg/alert"
	"github.com/qs3c/deal_anal_server/internal/pkg/ocr"
	"github.com/qs3c/deal_anal_server/internal/pkg/oss"
	"github.com/qs3c/deal_anal_server/internal/pkg/pubsub"
	"github.com/qs3c/deal_anal_server/internal/pkg/queue"
	"github.com/qs3c/deal_anal_server/internal/pkg/reasoning"
	"github.com/qs3c/deal_anal_server/internal/pkg/search"
	"github.com/qs3c/deal_anal_server/internal/repository"
	"github.com/qs3c/deal_anal_server/internal/worker"
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

	// 初始化 OSS（可选，不可用时报告落本地盘等待重传）
	var ossClient *oss.Client
	if cfg.OSS.Endpoint != "" && cfg.OSS.AccessKeyID != "" {
		ossClient, err = oss.NewClient(&cfg.OSS)
		if err != nil {
			log.Printf("Warning: Failed to init OSS client: %v", err)
		} else {
			log.Println("OSS client initialized")
		}
	}

	// 初始化队列和发布者
	jobQueue := queue.NewQueue(rdb, cfg.Queue.AnalysisQueue)
	publisher := pubsub.NewPublisher(rdb)

	// 初始化 Repository
	dealRepo := repository.NewDealRepository(db)
	jobRepo := repository.NewJobRepository(db)

	// 初始化上游客户端
	ocrClient := ocr.NewClient(&cfg.OCR)
	reasoningClient := reasoning.NewClient(&cfg.Reasoning)
	searchClient := search.NewClient(&cfg.Search)

	// 初始化告警（可选）
	var notifier alert.Notifier
	if cfg.Alert.SMTPHost != "" && cfg.Alert.Recipient != "" {
		notifier = alert.NewService(&cfg.Alert)
		log.Println("Failure alert notifier enabled")
	}

	// 组装流水线
	engine := pipeline.NewEngine(reasoningClient, searchClient, &cfg.Pipeline)
	failureHandler := pipeline.NewFailureHandler(jobRepo, dealRepo, notifier)
	orchestrator := pipeline.NewOrchestrator(jobRepo, dealRepo, ocrClient, engine, ossClient, failureHandler, cfg)
	processor := worker.NewProcessor(orchestrator, publisher)

	// 创建 context 用于优雅关闭
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 监听退出信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Println("Received shutdown signal")
		cancel()
	}()

	// 启动本地报告重传
	reuploader := worker.NewReuploader(dealRepo, ossClient, cfg)
	go reuploader.Start(ctx)

	// 启动消费循环
	maxWorkers := cfg.Queue.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	log.Printf("Worker started, max workers: %d", maxWorkers)

	var wg sync.WaitGroup
	for i := 0; i < maxWorkers; i++ {
		wg.Add(1)
		consumer := worker.NewConsumer(jobQueue, processor)
		go func(id int) {
			defer wg.Done()
			consumer.Run(ctx)
			log.Printf("Worker %d shutting down", id)
		}(i)
	}

	wg.Wait()
	log.Println("Worker shutdown complete")
}
