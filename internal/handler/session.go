package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/session-gateway/internal/audit"
	"github.com/openclaw/session-gateway/internal/config"
	apperrors "github.com/openclaw/session-gateway/internal/errors"
	"github.com/openclaw/session-gateway/internal/httputil"
	"github.com/openclaw/session-gateway/internal/qrcode"
	"github.com/openclaw/session-gateway/internal/service"
)

const (
	messageQRNotReady  = "qr code not ready or already scanned"
	messageFlushDone   = "Flush completed successfully"
	qrImageContentType = "image/png"
)

type SessionHandler struct {
	manager *service.SessionManager
	events  http.Handler
}

// NewSessionHandler serves the session control plane. events, when non-nil, is mounted at
// /events/{sessionId} outside the request timeout.
func NewSessionHandler(manager *service.SessionManager, events http.Handler) *SessionHandler {
	return &SessionHandler{
		manager: manager,
		events:  events,
	}
}

func (h *SessionHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))

		r.Post("/start/{sessionId}", h.Start)
		r.Get("/status/{sessionId}", h.Status)
		r.Get("/qr/{sessionId}", h.QR)
		r.Get("/qr/{sessionId}/image", h.QRImage)
		r.Delete("/terminate/{sessionId}", h.Terminate)
		r.Post("/terminateInactive", h.TerminateInactive)
		r.Post("/terminateAll", h.TerminateAll)
	})

	if h.events != nil {
		r.Get("/events/{sessionId}", h.events.ServeHTTP)
	}

	return r
}

// POST /session/start/{sessionId}
func (h *SessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")

	var params service.StartParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil && !errors.Is(err, io.EOF) {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			httputil.WriteErrorWithStatus(w, http.StatusRequestEntityTooLarge,
				apperrors.ValidationError("Request body too large"))
			return
		}
		writeError(w, r, apperrors.ValidationError("Invalid JSON body"))
		return
	}

	result, err := h.manager.Start(r.Context(), sessionID, params)
	if err != nil {
		writeError(w, r, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:      audit.EventSessionStart,
		SessionID: sessionID,
		Details:   map[string]any{"message": result.Message},
	})

	writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Message: result.Message,
		Data:    result.Session,
	})
}

// GET /session/status/{sessionId}
func (h *SessionHandler) Status(w http.ResponseWriter, r *http.Request) {
	result, err := h.manager.Status(r.Context(), chi.URLParam(r, "sessionId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type qrResponse struct {
	Success bool   `json:"success"`
	QR      string `json:"qr,omitempty"`
	Message string `json:"message,omitempty"`
}

// lookupQR returns the cached QR or the negative response to send instead.
func (h *SessionHandler) lookupQR(sessionID string) (string, *qrResponse) {
	qr, found := h.manager.QR(sessionID)
	if !found {
		return "", &qrResponse{Success: false, Message: service.MessageSessionNotFound}
	}
	if qr == "" {
		return "", &qrResponse{Success: false, Message: messageQRNotReady}
	}
	return qr, nil
}

// GET /session/qr/{sessionId}
func (h *SessionHandler) QR(w http.ResponseWriter, r *http.Request) {
	qr, negative := h.lookupQR(chi.URLParam(r, "sessionId"))
	if negative != nil {
		writeJSON(w, http.StatusOK, negative)
		return
	}
	writeJSON(w, http.StatusOK, qrResponse{Success: true, QR: qr})
}

// GET /session/qr/{sessionId}/image
func (h *SessionHandler) QRImage(w http.ResponseWriter, r *http.Request) {
	qr, negative := h.lookupQR(chi.URLParam(r, "sessionId"))
	if negative != nil {
		writeJSON(w, http.StatusOK, negative)
		return
	}

	png, err := qrcode.PNG(qr, qrcode.DefaultSize)
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", qrImageContentType)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(png); err != nil {
		log.Debug().Err(err).Msg("failed to write qr image")
	}
}

// DELETE /session/terminate/{sessionId}
func (h *SessionHandler) Terminate(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")

	result, err := h.manager.Terminate(r.Context(), sessionID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:      audit.EventSessionTerminate,
		SessionID: sessionID,
		Details:   map[string]any{"found": !result.NotFound()},
	})

	writeJSON(w, http.StatusOK, result)
}

// POST /session/terminateInactive
func (h *SessionHandler) TerminateInactive(w http.ResponseWriter, r *http.Request) {
	h.flush(w, r, true)
}

// POST /session/terminateAll
func (h *SessionHandler) TerminateAll(w http.ResponseWriter, r *http.Request) {
	h.flush(w, r, false)
}

func (h *SessionHandler) flush(w http.ResponseWriter, r *http.Request, onlyInactive bool) {
	result := h.manager.Flush(r.Context(), onlyInactive)

	audit.LogFromRequest(r, audit.Event{
		Type: audit.EventSessionFlush,
		Details: map[string]any{
			"onlyInactive": onlyInactive,
			"terminated":   result.Terminated,
			"failed":       result.Failed,
		},
	})

	writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Message: messageFlushDone,
		Data:    result,
	})
}

// GET /sessions
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.manager.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: sessions})
}
