package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/session-gateway/internal/audit"
	apperrors "github.com/openclaw/session-gateway/internal/errors"
	"github.com/openclaw/session-gateway/internal/util"
)

const (
	HeaderAPIKey = "x-api-key"

	authMaxFailures     = 5
	authFailureWindow   = time.Minute
	authCleanupInterval = 5 * time.Minute
)

type authFailure struct {
	count       int
	windowStart time.Time
}

// APIKeyMiddleware admits requests carrying the shared control-plane key. Clients that
// present a wrong key too often are locked out for the rest of the window.
type APIKeyMiddleware struct {
	apiKey string

	mu          sync.Mutex
	failures    map[string]*authFailure
	lastCleanup time.Time
}

func NewAPIKeyMiddleware(apiKey string) *APIKeyMiddleware {
	return &APIKeyMiddleware{
		apiKey:      apiKey,
		failures:    make(map[string]*authFailure),
		lastCleanup: time.Now(),
	}
}

func (m *APIKeyMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := audit.ClientIP(r)

		if m.lockedOut(ip) {
			w.Header().Set("Retry-After", "60")
			writeError(w, apperrors.RateLimitExceeded())
			return
		}

		key := r.Header.Get(HeaderAPIKey)
		if key == "" {
			m.recordFailure(ip)
			writeError(w, apperrors.Unauthorized("Missing API key"))
			return
		}

		if !util.ConstantTimeEqual(key, m.apiKey) {
			m.recordFailure(ip)
			log.Warn().Str("ip", ip).Msg("api key middleware: invalid key attempt")
			audit.LogFromRequest(r, audit.Event{Type: audit.EventAuthFailure})
			writeError(w, apperrors.Unauthorized("Invalid API key"))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (m *APIKeyMiddleware) lockedOut(ip string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.failures[ip]
	if !ok {
		return false
	}
	if time.Since(f.windowStart) > authFailureWindow {
		delete(m.failures, ip)
		return false
	}
	return f.count >= authMaxFailures
}

func (m *APIKeyMiddleware) recordFailure(ip string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cleanup()

	now := time.Now()
	f, ok := m.failures[ip]
	if !ok || now.Sub(f.windowStart) > authFailureWindow {
		m.failures[ip] = &authFailure{count: 1, windowStart: now}
		return
	}
	f.count++
}

func (m *APIKeyMiddleware) cleanup() {
	now := time.Now()
	if now.Sub(m.lastCleanup) < authCleanupInterval {
		return
	}
	m.lastCleanup = now

	for ip, f := range m.failures {
		if now.Sub(f.windowStart) > authFailureWindow {
			delete(m.failures, ip)
		}
	}
}
