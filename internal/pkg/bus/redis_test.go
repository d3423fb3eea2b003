package bus

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedisBus(t *testing.T) *RedisBus {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewRedisBus(client)
}

func TestRedisBus_PublishSubscribe(t *testing.T) {
	b := setupRedisBus(t)

	received := make(chan *Event, 1)
	sub, err := b.Subscribe("AAAA-BBBB-CCCC-DDDD", func(e *Event) {
		received <- e
	})
	require.NoError(t, err)
	defer b.Unsubscribe(sub)

	err = b.Publish(context.Background(), "AAAA-BBBB-CCCC-DDDD", &Event{
		Kind:       KindLogout,
		Timestamp:  time.Now(),
		LicenseKey: "AAAA-BBBB-CCCC-DDDD",
		Message:    "管理员强制下线",
	})
	require.NoError(t, err)

	select {
	case e := <-received:
		assert.Equal(t, KindLogout, e.Kind)
		assert.Equal(t, "AAAA-BBBB-CCCC-DDDD", e.LicenseKey)
		assert.Equal(t, "管理员强制下线", e.Message)
	case <-time.After(3 * time.Second):
		t.Fatal("event not delivered")
	}
}

func TestRedisBus_UnsubscribeStopsDelivery(t *testing.T) {
	b := setupRedisBus(t)

	received := make(chan *Event, 4)
	sub, err := b.Subscribe("topic-x", func(e *Event) {
		received <- e
	})
	require.NoError(t, err)

	require.NoError(t, b.Unsubscribe(sub))

	require.NoError(t, b.Publish(context.Background(), "topic-x", &Event{Kind: KindPing}))

	select {
	case <-received:
		t.Fatal("unexpected delivery after unsubscribe")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestRedisBus_TopicIsolation(t *testing.T) {
	b := setupRedisBus(t)

	received := make(chan *Event, 4)
	sub, err := b.Subscribe(AdminTopic(7), func(e *Event) {
		received <- e
	})
	require.NoError(t, err)
	defer b.Unsubscribe(sub)

	require.NoError(t, b.Publish(context.Background(), AdminTopic(8), &Event{Kind: KindStatusChange}))

	select {
	case <-received:
		t.Fatal("received event for another admin")
	case <-time.After(200 * time.Millisecond):
	}
}
