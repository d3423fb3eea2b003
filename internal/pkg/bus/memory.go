package bus

import (
	"context"
	"sync"
)

// MemoryBus 进程内发布订阅，单实例部署下的默认实现
type MemoryBus struct {
	mu     sync.RWMutex
	topics map[string]map[*Subscription]struct{}
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		topics: make(map[string]map[*Subscription]struct{}),
	}
}

func (b *MemoryBus) Subscribe(topic string, handler Handler) (*Subscription, error) {
	sub := &Subscription{topic: topic, handler: handler}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.topics[topic] == nil {
		b.topics[topic] = make(map[*Subscription]struct{})
	}
	b.topics[topic][sub] = struct{}{}

	return sub, nil
}

func (b *MemoryBus) Unsubscribe(sub *Subscription) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if subs, ok := b.topics[sub.topic]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(b.topics, sub.topic)
		}
	}
	return nil
}

// Publish 同步调用当前注册的全部回调，不缓冲、不重放
func (b *MemoryBus) Publish(_ context.Context, topic string, event *Event) error {
	b.mu.RLock()
	subs := make([]*Subscription, 0, len(b.topics[topic]))
	for sub := range b.topics[topic] {
		subs = append(subs, sub)
	}
	b.mu.RUnlock()

	for _, sub := range subs {
		sub.handler(event)
	}
	return nil
}

// SubscriberCount 指定主题的当前订阅数
func (b *MemoryBus) SubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic])
}
