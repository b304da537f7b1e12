package sse

import (
	"context"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redisclient "github.com/openclaw/session-gateway/internal/redis"
)

// unreachable redis keeps the bookkeeping testable without a server.
func newTestBroker(t *testing.T) *Broker {
	t.Helper()
	rdb := goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 50 * time.Millisecond})
	t.Cleanup(func() { rdb.Close() })

	b := NewBroker(&redisclient.Client{Client: rdb})
	t.Cleanup(b.Close)
	return b
}

func TestBroker_SubscribeUnsubscribe(t *testing.T) {
	b := newTestBroker(t)

	first := b.Subscribe("abc")
	second := b.Subscribe("abc")
	other := b.Subscribe("xyz")

	assert.Equal(t, 2, b.ClientCount("abc"))
	assert.Equal(t, 1, b.ClientCount("xyz"))
	assert.Len(t, b.subs, 2)

	b.Unsubscribe(first)
	assert.Equal(t, 1, b.ClientCount("abc"))
	assert.Contains(t, b.subs, "abc")

	select {
	case <-first.Done:
	default:
		t.Fatal("unsubscribed client should be done")
	}

	b.Unsubscribe(first)
	assert.Equal(t, 1, b.ClientCount("abc"))

	b.Unsubscribe(second)
	assert.Zero(t, b.ClientCount("abc"))
	assert.NotContains(t, b.subs, "abc")
	assert.Contains(t, b.subs, "xyz")

	b.Unsubscribe(other)
	assert.Empty(t, b.subs)
}

func TestBroker_broadcast(t *testing.T) {
	b := newTestBroker(t)

	mine := b.Subscribe("abc")
	theirs := b.Subscribe("xyz")

	b.broadcast("abc", Event{Type: "qr", SessionID: "abc"})

	select {
	case event := <-mine.Events:
		assert.Equal(t, "qr", event.Type)
	default:
		t.Fatal("subscriber of the session should receive the event")
	}
	assert.Empty(t, theirs.Events)
}

func TestBroker_broadcastDropsWhenBufferFull(t *testing.T) {
	b := newTestBroker(t)
	client := b.Subscribe("abc")

	for i := 0; i < clientBufferSize+5; i++ {
		b.broadcast("abc", Event{Type: "message", SessionID: "abc"})
	}

	assert.Len(t, client.Events, clientBufferSize)
}

func TestBroker_Close(t *testing.T) {
	b := newTestBroker(t)
	client := b.Subscribe("abc")

	b.Close()

	select {
	case <-client.Done:
	default:
		t.Fatal("close should end every subscriber")
	}
	assert.Zero(t, b.ClientCount("abc"))

	// late unsubscribe from a handler must not double close
	b.Unsubscribe(client)
}

func TestBroker_PublishFailsWithoutRedis(t *testing.T) {
	b := newTestBroker(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err := b.Publish(ctx, "abc", "qr", map[string]string{"qr": "2@x"})
	require.Error(t, err)
}
