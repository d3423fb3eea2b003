package bus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
)

const channelPrefix = "presence:"

// RedisBus 跨实例发布订阅，多实例部署时在线状态和事件对所有实例可见
type RedisBus struct {
	client *redis.Client
}

func NewRedisBus(client *redis.Client) *RedisBus {
	return &RedisBus{client: client}
}

func (b *RedisBus) Publish(ctx context.Context, topic string, event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return b.client.Publish(ctx, channelPrefix+topic, data).Err()
}

func (b *RedisBus) Subscribe(topic string, handler Handler) (*Subscription, error) {
	ps := b.client.Subscribe(context.Background(), channelPrefix+topic)

	// 确认订阅建立，避免订阅尚未生效就开始发布
	if _, err := ps.Receive(context.Background()); err != nil {
		ps.Close()
		return nil, fmt.Errorf("failed to subscribe topic %s: %w", topic, err)
	}

	sub := &Subscription{
		topic:   topic,
		handler: handler,
		ps:      ps,
		done:    make(chan struct{}),
	}

	go func() {
		defer close(sub.done)
		for msg := range ps.Channel() {
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				continue // 忽略解析错误
			}
			handler(&event)
		}
	}()

	return sub, nil
}

func (b *RedisBus) Unsubscribe(sub *Subscription) error {
	if sub.ps == nil {
		return nil
	}
	err := sub.ps.Close()
	<-sub.done
	return err
}
