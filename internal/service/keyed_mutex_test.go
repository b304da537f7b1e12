package service

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKeyedMutex(t *testing.T) {
	t.Run("serializes the same key", func(t *testing.T) {
		k := newKeyedMutex()
		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			current int
			peak    int
		)

		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				unlock := k.Lock("abc")
				defer unlock()

				mu.Lock()
				current++
				if current > peak {
					peak = current
				}
				mu.Unlock()

				time.Sleep(time.Millisecond)

				mu.Lock()
				current--
				mu.Unlock()
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, peak)
		assert.Equal(t, 0, k.size())
	})

	t.Run("different keys do not contend", func(t *testing.T) {
		k := newKeyedMutex()
		unlockA := k.Lock("a")
		defer unlockA()

		done := make(chan struct{})
		go func() {
			unlock := k.Lock("b")
			unlock()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("lock on b blocked behind a")
		}
	})

	t.Run("unlock is idempotent", func(t *testing.T) {
		k := newKeyedMutex()
		unlock := k.Lock("a")
		unlock()
		unlock()
		assert.Equal(t, 0, k.size())
	})
}
