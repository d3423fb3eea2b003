package api

import (
	"github.com/gin-gonic/gin"

	"github.com/qs3c/autolaku_server/config"
	"github.com/qs3c/autolaku_server/internal/api/handler"
	"github.com/qs3c/autolaku_server/internal/api/middleware"
)

type Router struct {
	authHandler         *handler.AuthHandler
	paymentHandler      *handler.PaymentHandler
	licenseHandler      *handler.LicenseHandler
	subscriptionHandler *handler.SubscriptionHandler
	streamHandler       *handler.StreamHandler
	websocketHandler    *handler.WebSocketHandler
	cfg                 *config.Config
}

func NewRouter(
	authHandler *handler.AuthHandler,
	paymentHandler *handler.PaymentHandler,
	licenseHandler *handler.LicenseHandler,
	subscriptionHandler *handler.SubscriptionHandler,
	streamHandler *handler.StreamHandler,
	websocketHandler *handler.WebSocketHandler,
	cfg *config.Config,
) *Router {
	return &Router{
		authHandler:         authHandler,
		paymentHandler:      paymentHandler,
		licenseHandler:      licenseHandler,
		subscriptionHandler: subscriptionHandler,
		streamHandler:       streamHandler,
		websocketHandler:    websocketHandler,
		cfg:                 cfg,
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
		// 控制台 WebSocket
		api.GET("/ws", r.websocketHandler.Handle)

		// 公开接口 - 认证
		auth := api.Group("/auth")
		{
			auth.POST("/register", r.authHandler.Register)
			auth.POST("/login", r.authHandler.Login)
			auth.GET("/github", r.authHandler.GithubAuth)
			auth.GET("/github/callback", r.authHandler.GithubCallback)
		}

		// 公开接口 - 套餐目录
		api.GET("/plans", r.subscriptionHandler.ListPlans)

		// 公开接口 - 网关回调（验签代替认证）
		api.POST("/payment/notify", r.paymentHandler.Notify)
		api.GET("/payment/status/:transaction_id", r.paymentHandler.GetStatus)

		// 公开接口 - 桌面客户端（授权码即凭证）
		api.POST("/licenses/validate", r.licenseHandler.Validate)
		api.GET("/licenses/:key/events", r.streamHandler.Handle)

		// 需要认证的门户接口
		authenticated := api.Group("")
		authenticated.Use(middleware.Auth(r.cfg.JWT.Secret))
		{
			authenticated.GET("/user/profile", r.authHandler.GetProfile)
			authenticated.GET("/ws/status", r.websocketHandler.Status)

			subscription := authenticated.Group("/subscription")
			{
				subscription.GET("", r.subscriptionHandler.Get)
				subscription.POST("/cancel", r.subscriptionHandler.Cancel)
				subscription.POST("/checkout", r.subscriptionHandler.Checkout)
			}

			licenses := authenticated.Group("/licenses")
			{
				licenses.POST("", r.licenseHandler.Generate)
				licenses.GET("", r.licenseHandler.List)
				licenses.POST("/force-logout", r.licenseHandler.ForceLogout)
			}
		}
	}

	return engine
}
