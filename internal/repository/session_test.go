package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/session-gateway/internal/database"
	"github.com/openclaw/session-gateway/internal/model"
)

func newTestRepo(t *testing.T) SessionRepository {
	t.Helper()

	db, err := database.Connect("sqlite://:memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.Migrate(context.Background()))
	return NewSessionRepository(db.DB)
}

func strPtr(s string) *string { return &s }

func createParams(id string) model.CreateSessionParams {
	return model.CreateSessionParams{
		SessionID:   id,
		WebhookURL:  "https://hook.test",
		AuthToken:   "token-" + id,
		Name:        strPtr("Support line"),
		PhoneNumber: strPtr("234567890123"),
		Settings: model.Settings{
			EnabledCallbacks: []string{model.EventQR, model.EventMessage},
			MarkReadOnReply:  true,
			SendingDelay:     1000,
		},
	}
}

func TestSessionRepo_FindOrCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("creates a new record", func(t *testing.T) {
		repo := newTestRepo(t)

		session, created, err := repo.FindOrCreate(ctx, createParams("abc"))
		require.NoError(t, err)
		require.NotNil(t, session)

		assert.True(t, created)
		assert.Equal(t, "abc", session.SessionID)
		assert.Equal(t, "https://hook.test", session.WebhookURL)
		assert.Equal(t, "token-abc", session.AuthToken)
		assert.Equal(t, model.SessionStatusNotConnected, session.Status)
		assert.Nil(t, session.WID)
		assert.Equal(t, []string{model.EventQR, model.EventMessage}, session.Settings.EnabledCallbacks)
		assert.False(t, session.CreatedAt.IsZero())
	})

	t.Run("returns existing record unchanged", func(t *testing.T) {
		repo := newTestRepo(t)

		first, created, err := repo.FindOrCreate(ctx, createParams("abc"))
		require.NoError(t, err)
		require.True(t, created)

		params := createParams("abc")
		params.WebhookURL = "https://other.test"
		params.AuthToken = "another-token"

		second, created, err := repo.FindOrCreate(ctx, params)
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, first.AuthToken, second.AuthToken)
		assert.Equal(t, "https://hook.test", second.WebhookURL)

		sessions, err := repo.List(ctx)
		require.NoError(t, err)
		assert.Len(t, sessions, 1)
	})
}

func TestSessionRepo_FindByID(t *testing.T) {
	repo := newTestRepo(t)

	session, err := repo.FindByID(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, session)
}

func TestSessionRepo_StatusTransitions(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	_, _, err := repo.FindOrCreate(ctx, createParams("abc"))
	require.NoError(t, err)

	require.NoError(t, repo.UpdateStatus(ctx, "abc", "token-abc", model.SessionStatusQRPending))
	session, err := repo.FindByID(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusQRPending, session.Status)

	require.NoError(t, repo.MarkReady(ctx, "abc", "token-abc", strPtr("5511999@c.us"), nil))
	session, err = repo.FindByID(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusConnected, session.Status)
	require.NotNil(t, session.WID)
	assert.Equal(t, "5511999@c.us", *session.WID)
	require.NotNil(t, session.PhoneNumber)
	assert.Equal(t, "234567890123", *session.PhoneNumber, "nil phone keeps the stored value")
}

func TestSessionRepo_StaleTokenWritesAreDropped(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	_, _, err := repo.FindOrCreate(ctx, createParams("abc"))
	require.NoError(t, err)
	_, err = repo.Delete(ctx, "abc")
	require.NoError(t, err)

	params := createParams("abc")
	params.AuthToken = "token-restarted"
	_, created, err := repo.FindOrCreate(ctx, params)
	require.NoError(t, err)
	require.True(t, created)

	require.NoError(t, repo.UpdateStatus(ctx, "abc", "token-abc", model.SessionStatusQRPending))
	require.NoError(t, repo.MarkReady(ctx, "abc", "token-abc", strPtr("5511999@c.us"), nil))

	session, err := repo.FindByID(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusNotConnected, session.Status)
	assert.Nil(t, session.WID)
	assert.Equal(t, "token-restarted", session.AuthToken)
}

func TestSessionRepo_Delete(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	_, _, err := repo.FindOrCreate(ctx, createParams("abc"))
	require.NoError(t, err)

	deleted, err := repo.Delete(ctx, "abc")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = repo.Delete(ctx, "abc")
	require.NoError(t, err)
	assert.False(t, deleted)

	session, err := repo.FindByID(ctx, "abc")
	require.NoError(t, err)
	assert.Nil(t, session)
}

func TestSessionRepo_List(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	for _, id := range []string{"a", "b", "c"} {
		_, _, err := repo.FindOrCreate(ctx, createParams(id))
		require.NoError(t, err)
	}

	sessions, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 3)

	ids := []string{}
	for _, s := range sessions {
		ids = append(ids, s.SessionID)
	}
	assert.ElementsMatch(t, []string{"a", "b", "c"}, ids)
}
