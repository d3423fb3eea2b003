package bus

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

type EventKind string

const (
	KindConnected    EventKind = "connected"
	KindPing         EventKind = "ping"
	KindLogout       EventKind = "logout"
	KindStatusChange EventKind = "status_change"
)

// Event 总线事件，按 Kind 区分，不做缓冲也不保证投递
// 重连的客户端应当全量拉取当前状态，而不是指望事件回放
type Event struct {
	Kind       EventKind `json:"kind"`
	Timestamp  time.Time `json:"timestamp"`
	Message    string    `json:"message,omitempty"`
	LicenseKey string    `json:"license_key,omitempty"`
	DeviceID   string    `json:"device_id,omitempty"`
	Online     bool      `json:"online"`
}

// Handler 事件回调，同一主题允许注册多个（多个控制台标签页）
type Handler func(*Event)

// Subscription 订阅凭据，退订时使用（Go 函数不可比较，无法按 handler 退订）
type Subscription struct {
	topic   string
	handler Handler
	ps      *redis.PubSub // 仅 Redis 实现使用
	done    chan struct{}
}

func (s *Subscription) Topic() string {
	return s.topic
}

// Bus 进程内单例可用内存实现，水平扩容时换 Redis 实现，两者可互换
type Bus interface {
	Publish(ctx context.Context, topic string, event *Event) error
	Subscribe(topic string, handler Handler) (*Subscription, error)
	Unsubscribe(sub *Subscription) error
}

// AdminTopic 管理员主题，加前缀与授权码主题区分命名空间
func AdminTopic(adminID int64) string {
	return fmt.Sprintf("admin:%d", adminID)
}

// LicenseTopic 授权码自身即主题
func LicenseTopic(key string) string {
	return key
}
