package redis

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"shopbot/internal/domain/conversation"
	"shopbot/pkg/errors"
)

// SessionRepository implements conversation.Repository using Redis.
// The state is a plain string under <prefix><id> without expiry, so an empty
// prefix reads sessions stored under the bare user id. Turn data is JSON under
// <prefix>turn:<id> and expires after turnTTL.
type SessionRepository struct {
	client  *redis.Client
	prefix  string
	turnTTL time.Duration
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(client *redis.Client, prefix string, turnTTL time.Duration) *SessionRepository {
	return &SessionRepository{
		client:  client,
		prefix:  prefix,
		turnTTL: turnTTL,
	}
}

// GetState returns the stored state, ok=false when the user has none yet
func (r *SessionRepository) GetState(ctx context.Context, userID int64) (conversation.State, bool, error) {
	name, err := r.client.Get(ctx, r.stateKey(userID)).Result()
	if err == redis.Nil {
		return conversation.StateStart, false, nil
	}
	if err != nil {
		return 0, false, errors.Wrapf(err, "failed to get state from redis: telegram_id=%d", userID)
	}

	state, err := conversation.ParseState(name)
	if err != nil {
		return 0, false, errors.Wrapf(err, "telegram_id=%d", userID)
	}

	return state, true, nil
}

// SetState overwrites the stored state
func (r *SessionRepository) SetState(ctx context.Context, userID int64, state conversation.State) error {
	if err := r.client.Set(ctx, r.stateKey(userID), state.String(), 0).Err(); err != nil {
		return errors.Wrapf(err, "failed to save state to redis: telegram_id=%d", userID)
	}
	return nil
}

// GetTurnData returns stored turn data or the zero value
func (r *SessionRepository) GetTurnData(ctx context.Context, userID int64) (conversation.TurnData, error) {
	var data conversation.TurnData

	raw, err := r.client.Get(ctx, r.turnKey(userID)).Bytes()
	if err == redis.Nil {
		return data, nil
	}
	if err != nil {
		return data, errors.Wrapf(err, "failed to get turn data from redis: telegram_id=%d", userID)
	}

	if err := json.Unmarshal(raw, &data); err != nil {
		return conversation.TurnData{}, errors.Wrapf(err, "failed to unmarshal turn data: telegram_id=%d", userID)
	}

	return data, nil
}

// SetTurnData stores turn data with TTL; empty data deletes the key
func (r *SessionRepository) SetTurnData(ctx context.Context, userID int64, data conversation.TurnData) error {
	key := r.turnKey(userID)

	if data.IsEmpty() {
		if err := r.client.Del(ctx, key).Err(); err != nil {
			return errors.Wrapf(err, "failed to delete turn data from redis: telegram_id=%d", userID)
		}
		return nil
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return errors.Wrapf(err, "failed to marshal turn data: telegram_id=%d", userID)
	}

	if err := r.client.Set(ctx, key, raw, r.turnTTL).Err(); err != nil {
		return errors.Wrapf(err, "failed to save turn data to redis: telegram_id=%d", userID)
	}

	return nil
}

// Save writes state and turn data in one MULTI/EXEC so a turn never leaves
// a new state with stale turn data behind
func (r *SessionRepository) Save(ctx context.Context, userID int64, state conversation.State, data conversation.TurnData) error {
	var raw []byte
	if !data.IsEmpty() {
		var err error
		if raw, err = json.Marshal(data); err != nil {
			return errors.Wrapf(err, "failed to marshal turn data: telegram_id=%d", userID)
		}
	}

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.stateKey(userID), state.String(), 0)
		if raw == nil {
			pipe.Del(ctx, r.turnKey(userID))
		} else {
			pipe.Set(ctx, r.turnKey(userID), raw, r.turnTTL)
		}
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "failed to save session to redis: telegram_id=%d", userID)
	}

	return nil
}

func (r *SessionRepository) stateKey(userID int64) string {
	return r.prefix + strconv.FormatInt(userID, 10)
}

func (r *SessionRepository) turnKey(userID int64) string {
	return r.prefix + "turn:" + strconv.FormatInt(userID, 10)
}

var _ conversation.Repository = (*SessionRepository)(nil)
