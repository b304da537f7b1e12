package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/openclaw/session-gateway/internal/model"
)

type SessionRepository interface {
	// FindOrCreate returns the existing record for params.SessionID untouched, or inserts a
	// new one. created reports which of the two happened.
	FindOrCreate(ctx context.Context, params model.CreateSessionParams) (session *model.Session, created bool, err error)
	FindByID(ctx context.Context, sessionID string) (*model.Session, error)
	List(ctx context.Context) ([]model.Session, error)
	// UpdateStatus and MarkReady only touch the record carrying authToken, so writes from a
	// session that was terminated and started again under the same id are dropped.
	UpdateStatus(ctx context.Context, sessionID, authToken string, status model.SessionStatus) error
	MarkReady(ctx context.Context, sessionID, authToken string, wid, phoneNumber *string) error
	Delete(ctx context.Context, sessionID string) (bool, error)
}

const sessionColumns = `session_id, webhook_url, auth_token, name, wid, status, phone_number, settings, created_at, updated_at`

type sessionRepo struct {
	db *sqlx.DB
}

// NewSessionRepository works against postgres and sqlite; queries are written with ?
// placeholders and rebound for the connected driver.
func NewSessionRepository(db *sqlx.DB) SessionRepository {
	return &sessionRepo{db: db}
}

func (r *sessionRepo) FindOrCreate(ctx context.Context, params model.CreateSessionParams) (*model.Session, bool, error) {
	now := time.Now().UTC()
	result, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, NULL, ?, ?, ?, ?, ?)
		ON CONFLICT (session_id) DO NOTHING
	`), params.SessionID, params.WebhookURL, params.AuthToken, params.Name,
		model.SessionStatusNotConnected, params.PhoneNumber, params.Settings, now, now)
	if err != nil {
		return nil, false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, false, err
	}

	session, err := r.FindByID(ctx, params.SessionID)
	if err != nil {
		return nil, false, err
	}
	return session, affected == 1, nil
}

func (r *sessionRepo) FindByID(ctx context.Context, sessionID string) (*model.Session, error) {
	var session model.Session
	err := r.db.GetContext(ctx, &session, r.db.Rebind(`
		SELECT `+sessionColumns+` FROM sessions WHERE session_id = ?
	`), sessionID)
	return HandleNotFound(&session, err)
}

func (r *sessionRepo) List(ctx context.Context) ([]model.Session, error) {
	var sessions []model.Session
	err := r.db.SelectContext(ctx, &sessions, `
		SELECT `+sessionColumns+` FROM sessions ORDER BY created_at, session_id
	`)
	return sessions, err
}

func (r *sessionRepo) UpdateStatus(ctx context.Context, sessionID, authToken string, status model.SessionStatus) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE sessions SET
			status = ?,
			updated_at = ?
		WHERE session_id = ? AND auth_token = ?
	`), status, time.Now().UTC(), sessionID, authToken)
	return err
}

func (r *sessionRepo) MarkReady(ctx context.Context, sessionID, authToken string, wid, phoneNumber *string) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE sessions SET
			status = ?,
			wid = COALESCE(?, wid),
			phone_number = COALESCE(?, phone_number),
			updated_at = ?
		WHERE session_id = ? AND auth_token = ?
	`), model.SessionStatusConnected, wid, phoneNumber, time.Now().UTC(), sessionID, authToken)
	return err
}

func (r *sessionRepo) Delete(ctx context.Context, sessionID string) (bool, error) {
	result, err := r.db.ExecContext(ctx, r.db.Rebind(`
		DELETE FROM sessions WHERE session_id = ?
	`), sessionID)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}
