package conversation

import "github.com/google/uuid"

// TurnData is scratch data that lives across the turns of one product view.
// It is cleared on "back" and after a successful add.
type TurnData struct {
	Quantity *int `json:"quantity,omitempty"`
}

// IsEmpty reports whether there is nothing worth persisting
func (d TurnData) IsEmpty() bool {
	return d.Quantity == nil
}

// WithQuantity returns a copy holding n
func (d TurnData) WithQuantity(n int) TurnData {
	d.Quantity = &n
	return d
}

// EventKind distinguishes the inbound shapes the gateway normalizes
type EventKind string

const (
	EventReset    EventKind = "reset"
	EventText     EventKind = "text"
	EventCallback EventKind = "callback"
)

// Event is one inbound user action
type Event struct {
	TurnID  string
	UserID  int64
	ChatID  int64
	Kind    EventKind
	Payload string // message text or raw callback data
}

// NewEvent builds an event with a fresh turn id
func NewEvent(userID, chatID int64, kind EventKind, payload string) Event {
	return Event{
		TurnID:  uuid.NewString(),
		UserID:  userID,
		ChatID:  chatID,
		Kind:    kind,
		Payload: payload,
	}
}
