package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/autolaku_server/config"
	"github.com/qs3c/autolaku_server/internal/pkg/bus"
	"github.com/qs3c/autolaku_server/internal/service"
)

// StreamHandler 客户端 SSE 事件流：在线状态的事实来源
// 连接建立即在线，断开即离线，强制下线指令也从这条流下发
type StreamHandler struct {
	licenseService *service.LicenseService
	eventBus       bus.Bus
	pingInterval   time.Duration
}

func NewStreamHandler(licenseService *service.LicenseService, eventBus bus.Bus, cfg *config.StreamConfig) *StreamHandler {
	pingSeconds := cfg.PingSeconds
	if pingSeconds <= 0 {
		pingSeconds = 30
	}
	return &StreamHandler{
		licenseService: licenseService,
		eventBus:       eventBus,
		pingInterval:   time.Duration(pingSeconds) * time.Second,
	}
}

// Handle 建立事件流
// GET /api/v1/licenses/:key/events?device_id=xxx
func (h *StreamHandler) Handle(c *gin.Context) {
	key := c.Param("key")

	license, err := h.licenseService.GetByKey(key)
	if err != nil {
		if errors.Is(err, service.ErrLicenseNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	if err := h.licenseService.CheckUsable(license); err != nil {
		switch {
		case errors.Is(err, service.ErrLicenseInactive),
			errors.Is(err, service.ErrLicenseExpired):
			c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		}
		return
	}

	// 另一台设备已接管时拒绝旧设备重连
	deviceID := c.Query("device_id")
	if deviceID != "" && license.DeviceID != nil && *license.DeviceID != deviceID {
		c.JSON(http.StatusForbidden, gin.H{"error": "授权码已绑定其他设备"})
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming unsupported"})
		return
	}

	// 先订阅再标记上线，避免错过同时刻的强制下线指令
	events := make(chan *bus.Event, 16)
	sub, err := h.eventBus.Subscribe(bus.LicenseTopic(key), func(e *bus.Event) {
		select {
		case events <- e:
		default:
			// 消费不过来时丢弃，客户端重连后全量拉取状态
		}
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	ctx := c.Request.Context()
	if err := h.licenseService.MarkOnline(ctx, license); err != nil {
		if uerr := h.eventBus.Unsubscribe(sub); uerr != nil {
			log.Printf("Failed to unsubscribe license %s: %v", key, uerr)
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	defer func() {
		if err := h.eventBus.Unsubscribe(sub); err != nil {
			log.Printf("Failed to unsubscribe license %s: %v", key, err)
		}
		// 断开时请求上下文已取消，落库和推送用独立上下文
		offCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.licenseService.MarkOffline(offCtx, license); err != nil {
			log.Printf("Failed to mark license %s offline: %v", key, err)
		}
	}()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	writeEvent(c, flusher, &bus.Event{
		Kind:      bus.KindConnected,
		Timestamp: time.Now(),
		Online:    true,
	})

	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-events:
			writeEvent(c, flusher, event)
			// 下线指令发出后服务端主动断流
			if event.Kind == bus.KindLogout {
				return
			}
		case <-ticker.C:
			writeEvent(c, flusher, &bus.Event{
				Kind:      bus.KindPing,
				Timestamp: time.Now(),
			})
		}
	}
}

func writeEvent(c *gin.Context, flusher http.Flusher, event *bus.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", event.Kind, data)
	flusher.Flush()
}
