package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/session-gateway/internal/client"
	"github.com/openclaw/session-gateway/internal/model"
	"github.com/openclaw/session-gateway/internal/registry"
)

const eventPersistTimeout = 5 * time.Second

// pump consumes events of one session until the handle closes its channel or the state is
// unregistered. session is the record as of start; its webhook settings are immutable.
func (m *SessionManager) pump(sessionID string, state *registry.State, session model.Session) {
	defer m.pumps.Done()

	events := state.Handle.Events()
	for {
		select {
		case <-state.Done():
			return
		case evt, ok := <-events:
			if !ok {
				log.Debug().Str("sessionId", sessionID).Msg("client event stream closed")
				return
			}
			m.handleEvent(sessionID, state, &session, evt)
		}
	}
}

func (m *SessionManager) handleEvent(sessionID string, state *registry.State, session *model.Session, evt client.Event) {
	if !state.Live() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), eventPersistTimeout)
	defer cancel()

	switch evt.Type {
	case model.EventQR:
		state.SetQR(qrFromEvent(evt.Data))
		m.transition(ctx, sessionID, state, model.SessionStatusQRPending)

	case model.EventAuthenticated:
		m.transition(ctx, sessionID, state, model.SessionStatusAuthenticated)

	case model.EventReady:
		state.SetQR("")
		if state.SetStatus(model.SessionStatusConnected) {
			wid, phone := readyFromEvent(evt.Data)
			if err := m.repo.MarkReady(ctx, sessionID, state.AuthToken, wid, phone); err != nil {
				log.Error().Err(err).Str("sessionId", sessionID).Msg("failed to persist ready session")
			}
		}

	case model.EventDisconnected, model.EventAuthFailure:
		m.transition(ctx, sessionID, state, model.SessionStatusDisconnected)
	}

	if session.Settings.CallbackEnabled(evt.Type) && m.notifier != nil {
		m.notifier.Dispatch(session.WebhookURL, sessionID, session.AuthToken, evt.Type, evt.Data)
	}

	if m.publisher != nil {
		if err := m.publisher.Publish(ctx, sessionID, evt.Type, evt.Data); err != nil {
			log.Warn().Err(err).
				Str("sessionId", sessionID).
				Str("eventType", evt.Type).
				Msg("failed to publish session event")
		}
	}
}

func (m *SessionManager) transition(ctx context.Context, sessionID string, state *registry.State, status model.SessionStatus) {
	if !state.SetStatus(status) {
		return
	}
	if err := m.repo.UpdateStatus(ctx, sessionID, state.AuthToken, status); err != nil {
		log.Error().Err(err).
			Str("sessionId", sessionID).
			Str("status", string(status)).
			Msg("failed to persist session status")
		return
	}
	log.Debug().Str("sessionId", sessionID).Str("status", string(status)).Msg("session status changed")
}

func qrFromEvent(data any) string {
	switch v := data.(type) {
	case string:
		return v
	case map[string]any:
		qr, _ := v["qr"].(string)
		return qr
	case map[string]string:
		return v["qr"]
	}
	return ""
}

func readyFromEvent(data any) (wid, phone *string) {
	var info client.ReadyInfo
	switch v := data.(type) {
	case client.ReadyInfo:
		info = v
	case *client.ReadyInfo:
		if v != nil {
			info = *v
		}
	case map[string]any:
		info.WID, _ = v["wid"].(string)
		info.PhoneNumber, _ = v["phoneNumber"].(string)
	}
	if info.WID != "" {
		wid = &info.WID
	}
	if info.PhoneNumber != "" {
		phone = &info.PhoneNumber
	}
	return wid, phone
}
