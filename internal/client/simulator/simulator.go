// Package simulator is an in-process automation client driver. It walks sessions through
// boot, QR issue and (optionally) pairing without talking to any external service, which
// makes it usable for local development and for exercising the gateway end to end.
package simulator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/session-gateway/internal/client"
	"github.com/openclaw/session-gateway/internal/model"
)

const eventBufferSize = 32

type Config struct {
	// BootDelay is how long a handle takes before its runtime context is ready.
	BootDelay time.Duration
	// PairAfter pairs automatically this long after the QR is issued; 0 waits for Pair.
	PairAfter   time.Duration
	MaxSessions int
}

type Provider struct {
	cfg Config

	mu     sync.Mutex
	active map[string]*Handle
}

func New(cfg Config) *Provider {
	return &Provider{
		cfg:    cfg,
		active: make(map[string]*Handle),
	}
}

func (p *Provider) CreateSession(ctx context.Context, sessionID string, opts client.Options) (client.Result, error) {
	if err := ctx.Err(); err != nil {
		return client.Result{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if existing, ok := p.active[sessionID]; ok {
		existing.shutdown()
		delete(p.active, sessionID)
	}
	if p.cfg.MaxSessions > 0 && len(p.active) >= p.cfg.MaxSessions {
		return client.Result{
			Success: false,
			Message: fmt.Sprintf("max sessions reached (%d)", p.cfg.MaxSessions),
		}, nil
	}

	h := newHandle(p, sessionID, opts)
	p.active[sessionID] = h
	go h.run(p.cfg)

	log.Debug().Str("sessionId", sessionID).Msg("simulator session created")

	return client.Result{
		Success: true,
		Message: "Session initiation started",
		Handle:  h,
	}, nil
}

// Handle returns the running handle for sessionID, if any.
func (p *Provider) Handle(sessionID string) (*Handle, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	h, ok := p.active[sessionID]
	return h, ok
}

func (p *Provider) ActiveCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.active)
}

func (p *Provider) release(h *Handle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active[h.sessionID] == h {
		delete(p.active, h.sessionID)
	}
}

type Handle struct {
	provider  *Provider
	sessionID string
	opts      client.Options

	events    chan client.Event
	ready     chan struct{}
	readyOnce sync.Once
	pair      chan struct{}
	pairOnce  sync.Once
	done      chan struct{}
	doneOnce  sync.Once

	mu        sync.RWMutex
	closed    bool
	loggedOut bool
}

func newHandle(p *Provider, sessionID string, opts client.Options) *Handle {
	return &Handle{
		provider:  p,
		sessionID: sessionID,
		opts:      opts,
		events:    make(chan client.Event, eventBufferSize),
		ready:     make(chan struct{}),
		pair:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

func (h *Handle) Events() <-chan client.Event {
	return h.events
}

func (h *Handle) Ready() <-chan struct{} {
	return h.ready
}

func (h *Handle) Options() client.Options {
	return h.opts
}

// Pair completes pairing as if the QR code had been scanned.
func (h *Handle) Pair() {
	h.pairOnce.Do(func() { close(h.pair) })
}

// Emit pushes an event as if the remote side produced it. It returns false once the
// handle is destroyed.
func (h *Handle) Emit(evt client.Event) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return false
	}
	select {
	case h.events <- evt:
		return true
	case <-h.done:
		return false
	}
}

func (h *Handle) LoggedOut() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.loggedOut
}

func (h *Handle) Logout(ctx context.Context) error {
	h.mu.Lock()
	h.loggedOut = true
	h.mu.Unlock()
	return ctx.Err()
}

func (h *Handle) Destroy(ctx context.Context) error {
	h.shutdown()
	h.provider.release(h)
	return nil
}

func (h *Handle) shutdown() {
	h.doneOnce.Do(func() {
		close(h.done)
		h.mu.Lock()
		h.closed = true
		close(h.events)
		h.mu.Unlock()
	})
}

func (h *Handle) run(cfg Config) {
	select {
	case <-time.After(cfg.BootDelay):
	case <-h.done:
		return
	}
	h.readyOnce.Do(func() { close(h.ready) })

	h.Emit(client.Event{Type: model.EventLoadingScreen, Data: map[string]any{"percent": 100, "message": "WhatsApp"}})
	h.Emit(client.Event{Type: model.EventQR, Data: map[string]any{"qr": h.qrCode()}})

	var autoPair <-chan time.Time
	if cfg.PairAfter > 0 {
		timer := time.NewTimer(cfg.PairAfter)
		defer timer.Stop()
		autoPair = timer.C
	}

	select {
	case <-h.pair:
	case <-autoPair:
	case <-h.done:
		return
	}

	h.Emit(client.Event{Type: model.EventAuthenticated})
	h.Emit(client.Event{Type: model.EventReady, Data: client.ReadyInfo{
		WID:         h.sessionID + "@c.us",
		PhoneNumber: h.sessionID,
		Platform:    "simulator",
	}})
}

func (h *Handle) qrCode() string {
	return fmt.Sprintf("2@%s,%s", uuid.NewString(), h.sessionID)
}
