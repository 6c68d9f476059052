package conversation

import "shopbot/pkg/errors"

// ErrUnknownState is returned when a stored state name is not one of the defined states
var ErrUnknownState = errors.New("unknown conversation state")

// State is a step of the shop conversation
type State int

const (
	StateStart State = iota
	StateMenu
	StateProduct
	StateCart
	StateAwaitingEmail
)

// Stored names are kept compatible with sessions written by earlier releases
var stateNames = map[State]string{
	StateStart:         "START",
	StateMenu:          "HANDLE_MENU",
	StateProduct:       "HANDLE_PRODUCT",
	StateCart:          "HANDLE_CART",
	StateAwaitingEmail: "WAITING_EMAIL",
}

// String returns the stored name of the state
func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "UNKNOWN"
}

// ParseState converts a stored name back to a State
func ParseState(name string) (State, error) {
	for state, n := range stateNames {
		if n == name {
			return state, nil
		}
	}
	return 0, errors.Wrapf(ErrUnknownState, "%q", name)
}
