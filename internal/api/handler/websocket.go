package handler

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/qs3c/autolaku_server/internal/api/middleware"
	"github.com/qs3c/autolaku_server/internal/pkg/bus"
	"github.com/qs3c/autolaku_server/internal/pkg/jwt"
	"github.com/qs3c/autolaku_server/internal/pkg/response"
	"github.com/qs3c/autolaku_server/internal/pkg/ws"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// TODO: 生产环境需要验证 Origin
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// WebSocketHandler 管理控制台实时通道：授权码上下线、订阅激活实时推送
type WebSocketHandler struct {
	hub       *ws.Hub
	eventBus  bus.Bus
	jwtSecret string
}

func NewWebSocketHandler(hub *ws.Hub, eventBus bus.Bus, jwtSecret string) *WebSocketHandler {
	return &WebSocketHandler{
		hub:       hub,
		eventBus:  eventBus,
		jwtSecret: jwtSecret,
	}
}

// Status 控制台实时通道状态，前端据此决定是否重建 WebSocket
// GET /api/v1/ws/status
func (h *WebSocketHandler) Status(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	response.Success(c, gin.H{
		"connected":   h.hub.IsOnline(userID),
		"connections": h.hub.ConnectionCount(),
	})
}

// Handle WebSocket 连接处理
// GET /api/v1/ws?token=xxx
func (h *WebSocketHandler) Handle(c *gin.Context) {
	// 浏览器 WebSocket 不能带自定义 Header，令牌走查询参数
	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}

	claims, err := jwt.ParseToken(token, h.jwtSecret)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("Failed to upgrade connection: %v", err)
		return
	}

	client := &ws.Client{
		AdminID: claims.UserID,
		Conn:    conn,
	}
	h.hub.Register(client)

	// 管理员主题上的事件直接转发到该连接
	sub, err := h.eventBus.Subscribe(bus.AdminTopic(claims.UserID), func(event *bus.Event) {
		if err := client.Send(event); err != nil {
			log.Printf("Failed to push event to admin %d: %v", claims.UserID, err)
		}
	})
	if err != nil {
		h.hub.Unregister(client)
		conn.Close()
		return
	}

	// 读循环只用于感知断开
	go func() {
		defer func() {
			if err := h.eventBus.Unsubscribe(sub); err != nil {
				log.Printf("Failed to unsubscribe admin %d: %v", claims.UserID, err)
			}
			h.hub.Unregister(client)
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}
