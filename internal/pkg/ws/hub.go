package ws

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/qs3c/autolaku_server/internal/pkg/bus"
)

// Hub 管理控制台 WebSocket 连接
type Hub struct {
	// 每个管理员可以有多个连接（多标签页、重连等场景）
	clients map[int64]map[*Client]struct{}
	mu      sync.RWMutex
}

type Client struct {
	AdminID int64
	Conn    *websocket.Conn
	mu      sync.Mutex // 写锁，防止并发写入
}

// Send 向单个连接推送总线事件
func (c *Client) Send(event *bus.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteMessage(websocket.TextMessage, data)
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[int64]map[*Client]struct{}),
	}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[client.AdminID] == nil {
		h.clients[client.AdminID] = make(map[*Client]struct{})
	}
	h.clients[client.AdminID][client] = struct{}{}

	log.Printf("Admin %d dashboard connected, conns: %d", client.AdminID, len(h.clients[client.AdminID]))
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if conns, ok := h.clients[client.AdminID]; ok {
		delete(conns, client)
		if len(conns) == 0 {
			delete(h.clients, client.AdminID)
		}
	}
	log.Printf("Admin %d dashboard disconnected", client.AdminID)
}

// IsOnline 检查管理员是否有在线控制台
func (h *Hub) IsOnline(adminID int64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	conns, ok := h.clients[adminID]
	return ok && len(conns) > 0
}

// ConnectionCount 获取在线连接数
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	total := 0
	for _, conns := range h.clients {
		total += len(conns)
	}
	return total
}
