package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/session-gateway/internal/client"
	"github.com/openclaw/session-gateway/internal/database"
	"github.com/openclaw/session-gateway/internal/model"
	"github.com/openclaw/session-gateway/internal/registry"
	"github.com/openclaw/session-gateway/internal/repository"
)

type page struct {
	URL string
}

// fakeHandle has no Ready channel, so the manager polls its Page accessor.
type fakeHandle struct {
	events chan client.Event

	mu         sync.Mutex
	page       *page
	loggedOut  bool
	destroyed  bool
	destroyErr error
}

func newFakeHandle() *fakeHandle {
	return &fakeHandle{events: make(chan client.Event, 16)}
}

func (h *fakeHandle) Page() *page {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.page
}

func (h *fakeHandle) boot() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.page = &page{URL: "about:blank"}
}

func (h *fakeHandle) emit(evt client.Event) {
	h.events <- evt
}

func (h *fakeHandle) Events() <-chan client.Event {
	return h.events
}

func (h *fakeHandle) Logout(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.loggedOut = true
	return nil
}

func (h *fakeHandle) Destroy(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.destroyErr != nil {
		return h.destroyErr
	}
	if !h.destroyed {
		h.destroyed = true
		close(h.events)
	}
	return nil
}

func (h *fakeHandle) isDestroyed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.destroyed && h.loggedOut
}

// lifecycle reports destroy and logout separately.
func (h *fakeHandle) lifecycle() (destroyed, loggedOut bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.destroyed, h.loggedOut
}

type fakeProvider struct {
	mu      sync.Mutex
	handles map[string]*fakeHandle
	calls   int

	// boot makes new handles ready immediately.
	boot    bool
	decline string
	err     error
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{handles: make(map[string]*fakeHandle), boot: true}
}

func (p *fakeProvider) CreateSession(ctx context.Context, sessionID string, opts client.Options) (client.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++

	if p.err != nil {
		return client.Result{}, p.err
	}
	if p.decline != "" {
		return client.Result{Success: false, Message: p.decline}, nil
	}

	h := newFakeHandle()
	if p.boot {
		h.boot()
	}
	p.handles[sessionID] = h
	return client.Result{Success: true, Message: "Session initiation started", Handle: h}, nil
}

func (p *fakeProvider) handle(t *testing.T, sessionID string) *fakeHandle {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	h, ok := p.handles[sessionID]
	require.True(t, ok, "no handle for %s", sessionID)
	return h
}

func (p *fakeProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Dispatch(url, sessionID, authToken, eventType string, payload any) bool {
	args := m.Called(url, sessionID, authToken, eventType, payload)
	return args.Bool(0)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *recordingPublisher) Publish(ctx context.Context, sessionID string, eventType string, data any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, sessionID+":"+eventType)
	return nil
}

func (p *recordingPublisher) published() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

var errBoom = errors.New("boom")

// failingRepo fails every lookup while writes still reach the embedded repository.
type failingRepo struct {
	repository.SessionRepository
}

func (failingRepo) FindOrCreate(ctx context.Context, params model.CreateSessionParams) (*model.Session, bool, error) {
	return nil, false, errBoom
}

func (failingRepo) FindByID(ctx context.Context, sessionID string) (*model.Session, error) {
	return nil, errBoom
}

type testEnv struct {
	manager   *SessionManager
	repo      repository.SessionRepository
	registry  *registry.Registry
	provider  *fakeProvider
	notifier  *mockNotifier
	publisher *recordingPublisher
}

func newTestRepo(t *testing.T) repository.SessionRepository {
	t.Helper()

	db, err := database.Connect("sqlite://:memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.Migrate(context.Background()))
	return repository.NewSessionRepository(db.DB)
}

// newTestEnv wires a manager over sqlite. A nil notifier accepts every dispatch.
func newTestEnv(t *testing.T, provider client.Provider, notifier *mockNotifier) *testEnv {
	t.Helper()

	if notifier == nil {
		notifier = &mockNotifier{}
		notifier.On("Dispatch", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(true).Maybe()
	}

	env := &testEnv{
		repo:      newTestRepo(t),
		registry:  registry.New(),
		notifier:  notifier,
		publisher: &recordingPublisher{},
	}
	if fp, ok := provider.(*fakeProvider); ok {
		env.provider = fp
	}

	env.manager = NewSessionManager(env.repo, env.registry, provider, env.notifier, env.publisher, ManagerConfig{
		ReadyPath:         "Page",
		ReadyTimeout:      time.Second,
		ReadyPollInterval: 5 * time.Millisecond,
		TeardownTimeout:   time.Second,
	})
	t.Cleanup(func() { env.manager.Shutdown(context.Background()) })
	return env
}

func startParams() StartParams {
	return StartParams{WebhookURL: "https://hook.test"}
}

func (h *fakeHandle) failDestroy(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.destroyErr = err
}
