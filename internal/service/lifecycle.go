package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/session-gateway/internal/client"
	"github.com/openclaw/session-gateway/internal/config"
	apperrors "github.com/openclaw/session-gateway/internal/errors"
	"github.com/openclaw/session-gateway/internal/model"
	"github.com/openclaw/session-gateway/internal/registry"
	"github.com/openclaw/session-gateway/internal/repository"
	"github.com/openclaw/session-gateway/internal/util"
	"github.com/openclaw/session-gateway/internal/waiter"
)

// Result messages shared with the HTTP layer.
const (
	MessageSessionNotFound = "session_not_found"
	MessageSessionNotLive  = "session_not_live"
	MessageAlreadyStarted  = "Session already started"
	MessageLoggedOut       = "Logged out successfully"
)

// Notifier forwards session events to the session's webhook.
type Notifier interface {
	Dispatch(url, sessionID, authToken, eventType string, payload any) bool
}

// Publisher fans session events out to stream subscribers.
type Publisher interface {
	Publish(ctx context.Context, sessionID string, eventType string, data any) error
}

type ManagerConfig struct {
	// ReadyPath is polled on handles that do not implement client.ReadyNotifier.
	ReadyPath         string
	ReadyTimeout      time.Duration
	ReadyPollInterval time.Duration
	TeardownTimeout   time.Duration
}

type StartParams struct {
	WebhookURL  string         `json:"webhookUrl"`
	Name        *string        `json:"name"`
	PhoneNumber *string        `json:"phoneNumber"`
	Settings    *SettingsInput `json:"settings"`
}

type StartResult struct {
	Message string
	Session *model.Session
}

// ValidateResult distinguishes absent, recorded-but-not-live and live sessions.
type ValidateResult struct {
	Success bool   `json:"success"`
	State   string `json:"state,omitempty"`
	Message string `json:"message"`
}

func (v *ValidateResult) NotFound() bool {
	return v.Message == MessageSessionNotFound
}

type StatusResult struct {
	ValidateResult
	Data *model.Session `json:"data,omitempty"`
}

type FlushResult struct {
	Total      int `json:"total"`
	Terminated int `json:"terminated"`
	Failed     int `json:"failed"`
}

// SessionView is a durable record annotated with its liveness in this process.
type SessionView struct {
	model.Session
	Live bool `json:"live"`
}

type SessionManager struct {
	repo      repository.SessionRepository
	registry  *registry.Registry
	provider  client.Provider
	notifier  Notifier
	publisher Publisher
	cfg       ManagerConfig

	locks *keyedMutex
	pumps sync.WaitGroup
}

func NewSessionManager(
	repo repository.SessionRepository,
	reg *registry.Registry,
	provider client.Provider,
	notifier Notifier,
	publisher Publisher,
	cfg ManagerConfig,
) *SessionManager {
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = config.SessionReadyTimeout
	}
	if cfg.ReadyPollInterval <= 0 {
		cfg.ReadyPollInterval = config.SessionReadyPollInterval
	}
	if cfg.TeardownTimeout <= 0 {
		cfg.TeardownTimeout = config.SessionTeardownTimeout
	}

	return &SessionManager{
		repo:      repo,
		registry:  reg,
		provider:  provider,
		notifier:  notifier,
		publisher: publisher,
		cfg:       cfg,
		locks:     newKeyedMutex(),
	}
}

// Start creates or reuses the record for sessionID, brings up a client session and waits
// for it to become ready. Readiness is best-effort: a timeout is logged and the call still
// succeeds. A session already live in this process is returned as is.
func (m *SessionManager) Start(ctx context.Context, sessionID string, params StartParams) (*StartResult, error) {
	if err := validateStart(sessionID, params); err != nil {
		return nil, err
	}

	state, created, result, err := m.setup(ctx, sessionID, params)
	if err != nil || state == nil {
		return result, err
	}

	err = m.awaitReady(ctx, state)
	if !state.Live() {
		return nil, apperrors.Conflict("session was terminated while starting")
	}
	switch {
	case err == nil:
	case errors.Is(err, waiter.ErrTimeout):
		log.Warn().
			Err(apperrors.Timeout("session readiness").WithCause(err)).
			Str("sessionId", sessionID).
			Dur("timeout", m.cfg.ReadyTimeout).
			Msg("session readiness not confirmed in time")
	default:
		m.abort(sessionID, state, created)
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, apperrors.Timeout("session readiness").WithCause(err)
		}
		return nil, err
	}

	session, err := m.repo.FindByID(ctx, sessionID)
	if err != nil {
		m.abort(sessionID, state, created)
		return nil, apperrors.Database(fmt.Errorf("find session: %w", err))
	}
	if session == nil {
		return nil, apperrors.Conflict("session was terminated while starting")
	}
	result.Session = session

	return result, nil
}

func validateStart(sessionID string, params StartParams) error {
	if !util.IsValidSessionID(sessionID) {
		return apperrors.InvalidInput("sessionId", "must be 1-64 letters, digits, '-' or '_'")
	}
	if params.WebhookURL == "" {
		return apperrors.MissingRequired("webhookUrl")
	}
	if !util.IsValidWebhookURL(params.WebhookURL) {
		return apperrors.InvalidInput("webhookUrl", "must be an absolute http or https URL")
	}
	return params.Settings.validate()
}

// setup runs under the per-session lock. It returns a nil state when the session was
// already live and result is final. created reports whether the record is new.
func (m *SessionManager) setup(ctx context.Context, sessionID string, params StartParams) (*registry.State, bool, *StartResult, error) {
	unlock := m.locks.Lock(sessionID)
	defer unlock()

	session, created, err := m.repo.FindOrCreate(ctx, model.CreateSessionParams{
		SessionID:   sessionID,
		WebhookURL:  params.WebhookURL,
		AuthToken:   uuid.NewString(),
		Name:        params.Name,
		PhoneNumber: params.PhoneNumber,
		Settings:    params.Settings.Merge(),
	})
	if err != nil {
		return nil, false, nil, apperrors.Database(fmt.Errorf("find or create session: %w", err))
	}

	if state, ok := m.registry.Get(sessionID); ok && state.Live() {
		return nil, false, &StartResult{Message: MessageAlreadyStarted, Session: session}, nil
	}

	res, err := m.provider.CreateSession(ctx, sessionID, client.Options{
		AlwaysOnline:    session.Settings.AlwaysOnline,
		MarkReadOnReply: session.Settings.MarkReadOnReply,
		SendingDelayMs:  session.Settings.SendingDelay,
	})
	if err != nil {
		m.rollback(sessionID, created)
		return nil, false, nil, fmt.Errorf("create client session: %w", err)
	}
	if !res.Success || res.Handle == nil {
		m.rollback(sessionID, created)
		msg := res.Message
		if msg == "" {
			msg = "client session could not be initialized"
		}
		return nil, false, nil, apperrors.SetupFailed(msg)
	}

	state := registry.NewState(res.Handle, session.AuthToken)
	m.registry.Register(sessionID, state)

	m.pumps.Add(1)
	go m.pump(sessionID, state, *session)

	log.Info().
		Str("sessionId", sessionID).
		Bool("created", created).
		Msg("session started")

	return state, created, &StartResult{Message: res.Message}, nil
}

// abort undoes a start that failed after its state was registered. Once the registry no
// longer holds state, a concurrent terminate or restart owns the session.
func (m *SessionManager) abort(sessionID string, state *registry.State, created bool) {
	unlock := m.locks.Lock(sessionID)
	defer unlock()

	if current, ok := m.registry.Get(sessionID); !ok || current != state {
		return
	}
	if err := m.teardown(context.Background(), sessionID); err != nil {
		log.Warn().Err(err).Str("sessionId", sessionID).Msg("failed to tear down aborted session")
	}
	m.rollback(sessionID, created)
}

// rollback removes a record created by a start that did not complete.
func (m *SessionManager) rollback(sessionID string, created bool) {
	if !created {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.TeardownTimeout)
	defer cancel()

	if _, err := m.repo.Delete(ctx, sessionID); err != nil {
		log.Error().Err(err).Str("sessionId", sessionID).Msg("failed to roll back session record")
		return
	}
	log.Info().Str("sessionId", sessionID).Msg("session record rolled back")
}

// awaitReady returns early once the state is closed.
func (m *SessionManager) awaitReady(ctx context.Context, state *registry.State) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-state.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	if n, ok := state.Handle.(client.ReadyNotifier); ok {
		return waiter.ForSignal(ctx, n.Ready(), m.cfg.ReadyTimeout)
	}
	return waiter.ForPath(ctx, state.Handle, m.cfg.ReadyPath, m.cfg.ReadyTimeout, m.cfg.ReadyPollInterval)
}

func (m *SessionManager) Validate(ctx context.Context, sessionID string) (*ValidateResult, error) {
	if state, ok := m.registry.Get(sessionID); ok && state.Live() {
		status := state.Status()
		return &ValidateResult{
			Success: true,
			State:   string(status),
			Message: "session_" + string(status),
		}, nil
	}

	session, err := m.repo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, apperrors.Database(fmt.Errorf("find session: %w", err))
	}
	if session == nil {
		return &ValidateResult{Success: false, Message: MessageSessionNotFound}, nil
	}
	return &ValidateResult{Success: false, State: string(session.Status), Message: MessageSessionNotLive}, nil
}

// Status merges the live state with the durable record.
func (m *SessionManager) Status(ctx context.Context, sessionID string) (*StatusResult, error) {
	v, err := m.Validate(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	session, err := m.repo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, apperrors.Database(fmt.Errorf("find session: %w", err))
	}
	if session == nil && v.NotFound() {
		return &StatusResult{ValidateResult: *v}, nil
	}
	return &StatusResult{ValidateResult: *v, Data: session}, nil
}

// QR returns the cached QR payload of a live session.
func (m *SessionManager) QR(sessionID string) (qr string, found bool) {
	state, ok := m.registry.Get(sessionID)
	if !ok || !state.Live() {
		return "", false
	}
	return state.QR(), true
}

// Terminate logs out and destroys a live session and deletes its record. Terminating an
// absent session reports session_not_found without error.
func (m *SessionManager) Terminate(ctx context.Context, sessionID string) (*ValidateResult, error) {
	unlock := m.locks.Lock(sessionID)
	defer unlock()

	v, err := m.Validate(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if v.NotFound() {
		return v, nil
	}

	if err := m.terminateLocked(ctx, sessionID); err != nil {
		return nil, err
	}
	return &ValidateResult{Success: true, Message: MessageLoggedOut}, nil
}

func (m *SessionManager) terminateLocked(ctx context.Context, sessionID string) error {
	if err := m.teardown(ctx, sessionID); err != nil {
		return err
	}
	if _, err := m.repo.Delete(ctx, sessionID); err != nil {
		return apperrors.Database(fmt.Errorf("delete session: %w", err))
	}

	log.Info().Str("sessionId", sessionID).Msg("session terminated")
	return nil
}

// teardown unregisters the session first so its event pump and any pending readiness
// wait stop before the client is shut down.
func (m *SessionManager) teardown(ctx context.Context, sessionID string) error {
	state, ok := m.registry.Unregister(sessionID)
	if !ok {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.TeardownTimeout)
	defer cancel()

	if err := state.Handle.Logout(ctx); err != nil {
		log.Warn().Err(err).Str("sessionId", sessionID).Msg("client logout failed")
	}
	if err := state.Handle.Destroy(ctx); err != nil {
		return fmt.Errorf("destroy client session: %w", err)
	}
	return nil
}

// Flush terminates every registered session, or only the non-operational ones when
// onlyInactive is set. A failing session is logged and counted without stopping the sweep.
func (m *SessionManager) Flush(ctx context.Context, onlyInactive bool) FlushResult {
	return m.flush(ctx, onlyInactive, func(registry.Entry) bool { return true })
}

// FlushInactive terminates non-operational sessions registered at least minAge ago, so a
// session still waiting for its QR scan is left alone.
func (m *SessionManager) FlushInactive(ctx context.Context, minAge time.Duration) FlushResult {
	cutoff := time.Now().Add(-minAge)
	return m.flush(ctx, true, func(entry registry.Entry) bool {
		return !entry.State.StartedAt().After(cutoff)
	})
}

func (m *SessionManager) flush(ctx context.Context, onlyInactive bool, eligible func(registry.Entry) bool) FlushResult {
	var result FlushResult

	for _, entry := range m.registry.List() {
		if onlyInactive && entry.State.Status().Operational() {
			continue
		}
		if !eligible(entry) {
			continue
		}
		result.Total++

		if err := m.flushOne(ctx, entry); err != nil {
			result.Failed++
			log.Error().
				Err(err).
				Str("sessionId", entry.SessionID).
				Msg("failed to flush session")
			continue
		}
		result.Terminated++
	}

	log.Info().
		Bool("onlyInactive", onlyInactive).
		Int("total", result.Total).
		Int("terminated", result.Terminated).
		Int("failed", result.Failed).
		Msg("session flush completed")

	return result
}

func (m *SessionManager) flushOne(ctx context.Context, entry registry.Entry) error {
	unlock := m.locks.Lock(entry.SessionID)
	defer unlock()

	// The entry may have been replaced or removed since the snapshot was taken.
	current, ok := m.registry.Get(entry.SessionID)
	if !ok || current != entry.State {
		return nil
	}
	return m.terminateLocked(ctx, entry.SessionID)
}

// List returns every durable record with its liveness in this process.
func (m *SessionManager) List(ctx context.Context) ([]SessionView, error) {
	sessions, err := m.repo.List(ctx)
	if err != nil {
		return nil, apperrors.Database(fmt.Errorf("list sessions: %w", err))
	}

	views := make([]SessionView, 0, len(sessions))
	for _, s := range sessions {
		state, ok := m.registry.Get(s.SessionID)
		views = append(views, SessionView{Session: s, Live: ok && state.Live()})
	}
	return views, nil
}

// Shutdown stops every live session in this process. Handles are destroyed without
// logging out and records are kept as disconnected, so a restarted gateway can start the
// sessions again with their stored configuration.
func (m *SessionManager) Shutdown(ctx context.Context) FlushResult {
	var result FlushResult
	var stopped []registry.Entry

	for _, entry := range m.registry.List() {
		ok, err := m.stop(ctx, entry)
		if !ok {
			continue
		}
		result.Total++
		stopped = append(stopped, entry)
		if err != nil {
			result.Failed++
			log.Error().
				Err(err).
				Str("sessionId", entry.SessionID).
				Msg("failed to stop session")
			continue
		}
		result.Terminated++
	}

	// Pumps have to be gone before the final status is written.
	m.pumps.Wait()

	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.TeardownTimeout)
	defer cancel()
	for _, entry := range stopped {
		if err := m.repo.UpdateStatus(persistCtx, entry.SessionID, entry.State.AuthToken, model.SessionStatusDisconnected); err != nil {
			log.Error().Err(err).Str("sessionId", entry.SessionID).Msg("failed to persist stopped session")
		}
	}

	log.Info().
		Int("total", result.Total).
		Int("stopped", result.Terminated).
		Int("failed", result.Failed).
		Msg("sessions stopped")

	return result
}

// stop unregisters entry and destroys its handle. ok reports whether entry was still
// registered and has been unregistered.
func (m *SessionManager) stop(ctx context.Context, entry registry.Entry) (ok bool, err error) {
	unlock := m.locks.Lock(entry.SessionID)
	defer unlock()

	if current, found := m.registry.Get(entry.SessionID); !found || current != entry.State {
		return false, nil
	}
	m.registry.Unregister(entry.SessionID)

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.TeardownTimeout)
	defer cancel()
	if err := entry.State.Handle.Destroy(ctx); err != nil {
		return true, fmt.Errorf("destroy client session: %w", err)
	}
	return true, nil
}
