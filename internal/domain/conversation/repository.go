package conversation

import "context"

// Repository persists the conversation state and turn data per user
type Repository interface {
	// GetState returns the stored state; ok is false when none was stored yet
	GetState(ctx context.Context, userID int64) (state State, ok bool, err error)

	SetState(ctx context.Context, userID int64, state State) error

	// GetTurnData returns the zero value when nothing is stored
	GetTurnData(ctx context.Context, userID int64) (TurnData, error)

	// SetTurnData stores data; empty data removes the stored value
	SetTurnData(ctx context.Context, userID int64, data TurnData) error

	// Save writes state and turn data together at the end of a turn
	Save(ctx context.Context, userID int64, state State, data TurnData) error
}
