package registry

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/session-gateway/internal/client"
	"github.com/openclaw/session-gateway/internal/model"
)

type stubHandle struct{}

func (stubHandle) Events() <-chan client.Event       { return nil }
func (stubHandle) Logout(ctx context.Context) error  { return nil }
func (stubHandle) Destroy(ctx context.Context) error { return nil }

func TestState(t *testing.T) {
	t.Run("starts not connected", func(t *testing.T) {
		before := time.Now()
		s := NewState(stubHandle{}, "token")
		assert.Equal(t, model.SessionStatusNotConnected, s.Status())
		assert.True(t, s.Live())
		assert.Empty(t, s.QR())
		assert.Equal(t, "token", s.AuthToken)
		assert.False(t, s.StartedAt().Before(before))
	})

	t.Run("ignores transitions once closed", func(t *testing.T) {
		s := NewState(stubHandle{}, "token")
		s.SetQR("2@code")
		require.True(t, s.SetStatus(model.SessionStatusQRPending))

		s.close()

		assert.False(t, s.SetStatus(model.SessionStatusConnected))
		assert.Equal(t, model.SessionStatusTerminated, s.Status())
		assert.Empty(t, s.QR())
		assert.False(t, s.Live())

		select {
		case <-s.Done():
		default:
			t.Fatal("done channel not closed")
		}
	})
}

func TestRegistry(t *testing.T) {
	t.Run("get returns registered state", func(t *testing.T) {
		r := New()
		s := NewState(stubHandle{}, "token")
		r.Register("abc", s)

		got, ok := r.Get("abc")
		require.True(t, ok)
		assert.Same(t, s, got)

		_, ok = r.Get("missing")
		assert.False(t, ok)
	})

	t.Run("unregister removes and closes", func(t *testing.T) {
		r := New()
		s := NewState(stubHandle{}, "token")
		r.Register("abc", s)

		got, ok := r.Unregister("abc")
		require.True(t, ok)
		assert.Same(t, s, got)
		assert.False(t, s.Live())
		assert.Equal(t, 0, r.Len())

		_, ok = r.Unregister("abc")
		assert.False(t, ok)
	})

	t.Run("register replaces and closes previous", func(t *testing.T) {
		r := New()
		first := NewState(stubHandle{}, "token")
		second := NewState(stubHandle{}, "token")

		r.Register("abc", first)
		r.Register("abc", second)

		got, _ := r.Get("abc")
		assert.Same(t, second, got)
		assert.False(t, first.Live())
		assert.True(t, second.Live())
		assert.Equal(t, 1, r.Len())
	})

	t.Run("list snapshots all entries", func(t *testing.T) {
		r := New()
		r.Register("a", NewState(stubHandle{}, "token"))
		r.Register("b", NewState(stubHandle{}, "token"))

		ids := []string{}
		for _, e := range r.List() {
			ids = append(ids, e.SessionID)
		}
		assert.ElementsMatch(t, []string{"a", "b"}, ids)
	})

	t.Run("concurrent access", func(t *testing.T) {
		r := New()
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				id := fmt.Sprintf("s-%d", i%10)
				r.Register(id, NewState(stubHandle{}, "token"))
				r.Get(id)
				r.List()
				if i%3 == 0 {
					r.Unregister(id)
				}
			}(i)
		}
		wg.Wait()
		assert.LessOrEqual(t, r.Len(), 10)
	})
}
