package waiter

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type page struct {
	Context *struct{ ID string }
}

type browser struct {
	mu   sync.Mutex
	page *page
	Meta map[string]any
	Page *page
}

func (b *browser) Current() *page {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.page
}

func (b *browser) open() {
	b.mu.Lock()
	b.page = &page{Context: &struct{ ID string }{ID: "ctx-1"}}
	b.mu.Unlock()
}

func TestResolve(t *testing.T) {
	ready := &browser{
		Page: &page{Context: &struct{ ID string }{ID: "ctx-1"}},
		Meta: map[string]any{"inner": map[string]any{"value": 1}},
	}

	tests := []struct {
		name   string
		root   any
		path   string
		wantOK bool
	}{
		{"nested struct pointer", ready, "Page.Context.ID", true},
		{"nested maps", ready, "Meta.inner.value", true},
		{"nil root", nil, "Page", false},
		{"nil intermediate pointer", &browser{}, "Page.Context", false},
		{"nil map", &browser{}, "Meta.inner", false},
		{"missing map key", ready, "Meta.missing", false},
		{"unknown field", ready, "Nope", false},
		{"unexported field", ready, "page", false},
		{"path through scalar", ready, "Page.Context.ID.More", false},
		{"accessor method nil", &browser{}, "Current.Context", false},
		{"empty path on value", ready, "", true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, ok := Resolve(tc.root, tc.path)
			assert.Equal(t, tc.wantOK, ok)
		})
	}

	t.Run("returns the resolved value", func(t *testing.T) {
		v, ok := Resolve(ready, "Page.Context.ID")
		require.True(t, ok)
		assert.Equal(t, "ctx-1", v)
	})
}

func TestForPath(t *testing.T) {
	t.Run("resolves immediately when field is present", func(t *testing.T) {
		b := &browser{}
		b.open()

		start := time.Now()
		err := ForPath(context.Background(), b, "Current.Context", time.Second, time.Hour)

		require.NoError(t, err)
		assert.Less(t, time.Since(start), 100*time.Millisecond)
	})

	t.Run("times out when field never appears", func(t *testing.T) {
		b := &browser{}

		err := ForPath(context.Background(), b, "Current.Context", 50*time.Millisecond, 10*time.Millisecond)

		assert.ErrorIs(t, err, ErrTimeout)
	})

	t.Run("resolves once the field is populated asynchronously", func(t *testing.T) {
		b := &browser{}
		go func() {
			time.Sleep(30 * time.Millisecond)
			b.open()
		}()

		err := ForPath(context.Background(), b, "Current.Context.ID", time.Second, 5*time.Millisecond)
		assert.NoError(t, err)
	})

	t.Run("stops on context cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(20 * time.Millisecond)
			cancel()
		}()

		err := ForPath(ctx, &browser{}, "Current", time.Second, 5*time.Millisecond)
		assert.True(t, errors.Is(err, context.Canceled))
	})
}

func TestForSignal(t *testing.T) {
	t.Run("returns when closed", func(t *testing.T) {
		ready := make(chan struct{})
		close(ready)
		assert.NoError(t, ForSignal(context.Background(), ready, time.Second))
	})

	t.Run("times out", func(t *testing.T) {
		ready := make(chan struct{})
		err := ForSignal(context.Background(), ready, 50*time.Millisecond)
		assert.ErrorIs(t, err, ErrTimeout)
	})

	t.Run("returns context error", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := ForSignal(ctx, make(chan struct{}), time.Second)
		assert.ErrorIs(t, err, context.Canceled)
	})
}
