package main

import (
	"fmt"
	"log"

	"github.com/qs3c/autolaku_server/config"
	"github.com/qs3c/autolaku_server/internal/api"
	"github.com/qs3c/autolaku_server/internal/api/handler"
	"github.com/qs3c/autolaku_server/internal/database"
	"github.com/qs3c/autolaku_server/internal/pkg/bus"
	"github.com/qs3c/autolaku_server/internal/pkg/email"
	"github.com/qs3c/autolaku_server/internal/pkg/gateway"
	"github.com/qs3c/autolaku_server/internal/pkg/oauth"
	"github.com/qs3c/autolaku_server/internal/pkg/oss"
	"github.com/qs3c/autolaku_server/internal/pkg/sign"
	"github.com/qs3c/autolaku_server/internal/pkg/ws"
	"github.com/qs3c/autolaku_server/internal/repository"
	"github.com/qs3c/autolaku_server/internal/service"
)

func main() {
	// 加载配置
	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化数据库
	db, err := database.NewMySQL(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect database: %v", err)
	}
	log.Println("Database connected")

	// 事件总线：配置了 Redis 用跨实例的 Redis 总线，否则退回进程内总线
	var eventBus bus.Bus
	if cfg.Redis.Host != "" {
		rdb, err := database.NewRedis(&cfg.Redis)
		if err != nil {
			log.Fatalf("Failed to connect redis: %v", err)
		}
		eventBus = bus.NewRedisBus(rdb)
		log.Println("Redis event bus started")
	} else {
		eventBus = bus.NewMemoryBus()
		log.Println("In-memory event bus started")
	}

	// 控制台 WebSocket Hub
	wsHub := ws.NewHub()

	// 支付网关
	signer := sign.NewSigner(cfg.Gateway.MerchantCode, cfg.Gateway.APIKey)
	gw := gateway.NewClient(&cfg.Gateway, signer)

	// 回调报文归档，未配置 OSS 时跳过
	var archiver *oss.Client
	if cfg.OSS.Endpoint != "" {
		archiver, err = oss.NewClient(&cfg.OSS)
		if err != nil {
			log.Fatalf("Failed to init OSS client: %v", err)
		}
		log.Println("OSS archiver ready")
	}

	emailSvc := email.NewService(&cfg.Email)
	githubOAuth := oauth.NewGithubOAuth(
		cfg.OAuth.Github.ClientID,
		cfg.OAuth.Github.ClientSecret,
		cfg.OAuth.Github.RedirectURI,
	)

	// 初始化 Repository
	userRepo := repository.NewUserRepository(db)
	subRepo := repository.NewSubscriptionRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	licenseRepo := repository.NewLicenseRepository(db)

	// 初始化 Service
	paymentService := service.NewPaymentService(db, subRepo, userRepo, paymentRepo, gw, eventBus, emailSvc, archiver, cfg)
	authService := service.NewAuthService(userRepo, subRepo, paymentService, githubOAuth, cfg)
	licenseService := service.NewLicenseService(db, licenseRepo, subRepo, eventBus)
	subscriptionService := service.NewSubscriptionService(subRepo, userRepo, paymentRepo, paymentService, cfg)

	// 初始化 Handler
	authHandler := handler.NewAuthHandler(authService)
	paymentHandler := handler.NewPaymentHandler(paymentService)
	licenseHandler := handler.NewLicenseHandler(licenseService)
	subscriptionHandler := handler.NewSubscriptionHandler(subscriptionService)
	streamHandler := handler.NewStreamHandler(licenseService, eventBus, &cfg.Stream)
	websocketHandler := handler.NewWebSocketHandler(wsHub, eventBus, cfg.JWT.Secret)

	// 初始化 Router
	router := api.NewRouter(
		authHandler,
		paymentHandler,
		licenseHandler,
		subscriptionHandler,
		streamHandler,
		websocketHandler,
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
