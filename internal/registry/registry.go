package registry

import (
	"context"
	"sync"
	"time"

	"github.com/openclaw/session-gateway/internal/client"
	"github.com/openclaw/session-gateway/internal/model"
)

// State is the in-memory view of a session running in this process.
type State struct {
	Handle client.Handle
	// AuthToken identifies the durable record this state was started for. A record that
	// was deleted and recreated under the same id carries a new token.
	AuthToken string

	startedAt time.Time

	mu     sync.RWMutex
	qr     string
	status model.SessionStatus
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
}

func NewState(handle client.Handle, authToken string) *State {
	ctx, cancel := context.WithCancel(context.Background())
	return &State{
		Handle:    handle,
		AuthToken: authToken,
		startedAt: time.Now(),
		status:    model.SessionStatusNotConnected,
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (s *State) StartedAt() time.Time {
	return s.startedAt
}

// Done is closed once the state has been unregistered.
func (s *State) Done() <-chan struct{} {
	return s.ctx.Done()
}

func (s *State) QR() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.qr
}

func (s *State) SetQR(qr string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.qr = qr
}

func (s *State) Status() model.SessionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// SetStatus records a transition. It returns false without changing anything once the
// state is closed, so late client events cannot revive a terminated session.
func (s *State) SetStatus(status model.SessionStatus) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.status = status
	return true
}

// Live reports whether the state is still registered.
func (s *State) Live() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.closed
}

func (s *State) close() {
	s.mu.Lock()
	s.closed = true
	s.status = model.SessionStatusTerminated
	s.qr = ""
	s.mu.Unlock()
	s.cancel()
}

// Entry pairs a session id with its state in List results.
type Entry struct {
	SessionID string
	State     *State
}

// Registry maps session ids to the sessions live in this process.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*State
}

func New() *Registry {
	return &Registry{
		sessions: make(map[string]*State),
	}
}

// Register stores state under id. An existing entry for id is closed and replaced.
func (r *Registry) Register(id string, state *State) {
	r.mu.Lock()
	previous := r.sessions[id]
	r.sessions[id] = state
	r.mu.Unlock()

	if previous != nil && previous != state {
		previous.close()
	}
}

func (r *Registry) Get(id string) (*State, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	state, ok := r.sessions[id]
	return state, ok
}

// Unregister removes id and closes its state before returning it.
func (r *Registry) Unregister(id string) (*State, bool) {
	r.mu.Lock()
	state, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	if ok {
		state.close()
	}
	return state, ok
}

// List returns a snapshot of all entries in no particular order.
func (r *Registry) List() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]Entry, 0, len(r.sessions))
	for id, state := range r.sessions {
		entries = append(entries, Entry{SessionID: id, State: state})
	}
	return entries
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
