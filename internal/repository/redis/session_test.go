package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopbot/internal/domain/conversation"
	"shopbot/internal/testsupport"
	"shopbot/pkg/errors"
)

func newTestRepo(t *testing.T) (*SessionRepository, *miniredis.Miniredis) {
	t.Helper()
	mr, client := testsupport.NewRedis(t)
	return NewSessionRepository(client, "test:", time.Hour), mr
}

func TestSessionRepository_State(t *testing.T) {
	repo, mr := newTestRepo(t)
	ctx := context.Background()

	_, ok, err := repo.GetState(ctx, 42)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.SetState(ctx, 42, conversation.StateCart))

	state, ok, err := repo.GetState(ctx, 42)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, conversation.StateCart, state)

	stored, err := mr.Get("test:42")
	require.NoError(t, err)
	assert.Equal(t, "HANDLE_CART", stored)
	assert.Zero(t, mr.TTL("test:42"), "state never expires")
}

func TestSessionRepository_BareUserIDKey(t *testing.T) {
	mr, client := testsupport.NewRedis(t)
	repo := NewSessionRepository(client, "", time.Hour)
	ctx := context.Background()

	require.NoError(t, mr.Set("42", "HANDLE_MENU"))

	state, ok, err := repo.GetState(ctx, 42)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, conversation.StateMenu, state)

	require.NoError(t, repo.Save(ctx, 42, conversation.StateCart, conversation.TurnData{}))
	stored, err := mr.Get("42")
	require.NoError(t, err)
	assert.Equal(t, "HANDLE_CART", stored)
}

func TestSessionRepository_CorruptState(t *testing.T) {
	repo, mr := newTestRepo(t)
	require.NoError(t, mr.Set("test:7", "HANDLE_DESCRIPTION"))

	_, _, err := repo.GetState(context.Background(), 7)
	require.Error(t, err)
	assert.True(t, errors.Is(err, conversation.ErrUnknownState))
}

func TestSessionRepository_TurnData(t *testing.T) {
	repo, mr := newTestRepo(t)
	ctx := context.Background()

	data, err := repo.GetTurnData(ctx, 42)
	require.NoError(t, err)
	assert.True(t, data.IsEmpty())

	require.NoError(t, repo.SetTurnData(ctx, 42, conversation.TurnData{}.WithQuantity(15)))
	assert.True(t, mr.Exists("test:turn:42"))
	assert.Equal(t, time.Hour, mr.TTL("test:turn:42"))

	data, err = repo.GetTurnData(ctx, 42)
	require.NoError(t, err)
	require.NotNil(t, data.Quantity)
	assert.Equal(t, 15, *data.Quantity)

	require.NoError(t, repo.SetTurnData(ctx, 42, conversation.TurnData{}))
	assert.False(t, mr.Exists("test:turn:42"))
}

func TestSessionRepository_TurnDataExpires(t *testing.T) {
	repo, mr := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.SetTurnData(ctx, 1, conversation.TurnData{}.WithQuantity(5)))
	mr.FastForward(2 * time.Hour)

	data, err := repo.GetTurnData(ctx, 1)
	require.NoError(t, err)
	assert.True(t, data.IsEmpty())
}

func TestSessionRepository_UsersAreIsolated(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.SetState(ctx, 1, conversation.StateProduct))
	require.NoError(t, repo.SetState(ctx, 2, conversation.StateAwaitingEmail))

	s1, _, err := repo.GetState(ctx, 1)
	require.NoError(t, err)
	s2, _, err := repo.GetState(ctx, 2)
	require.NoError(t, err)

	assert.Equal(t, conversation.StateProduct, s1)
	assert.Equal(t, conversation.StateAwaitingEmail, s2)
}

func TestSessionRepository_RedisDown(t *testing.T) {
	repo, mr := newTestRepo(t)
	mr.Close()

	_, _, err := repo.GetState(context.Background(), 1)
	assert.Error(t, err)
	assert.Error(t, repo.SetState(context.Background(), 1, conversation.StateMenu))
}

func TestSessionRepository_Save(t *testing.T) {
	repo, mr := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, 42, conversation.StateProduct, conversation.TurnData{}.WithQuantity(10)))

	stored, err := mr.Get("test:42")
	require.NoError(t, err)
	assert.Equal(t, "HANDLE_PRODUCT", stored)
	assert.Equal(t, time.Hour, mr.TTL("test:turn:42"))

	require.NoError(t, repo.Save(ctx, 42, conversation.StateMenu, conversation.TurnData{}))

	state, _, err := repo.GetState(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, conversation.StateMenu, state)
	assert.False(t, mr.Exists("test:turn:42"), "empty turn data is removed")
}
