package conversation

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"shopbot/internal/adapters/catalog"
	"shopbot/internal/domain/callback"
	"shopbot/internal/domain/conversation"
	"shopbot/internal/metrics"
	"shopbot/internal/view"
	"shopbot/pkg/errors"
	"shopbot/pkg/logger"
)

// Catalog is the part of the catalog backend the conversation drives
type Catalog interface {
	ListProducts(ctx context.Context) ([]catalog.Product, error)
	GetProduct(ctx context.Context, id string) (*catalog.Product, error)
	FetchImage(ctx context.Context, url string) ([]byte, error)
	GetOrCreateCart(ctx context.Context, userID int64) (string, error)
	GetOrCreateUserProfile(ctx context.Context, userID int64) (string, error)
	ListCartLineItems(ctx context.Context, cartID string) ([]catalog.LineItem, error)
	AddLineItem(ctx context.Context, cartID, productID string, quantity int) error
	DeleteLineItem(ctx context.Context, lineItemID string) error
	SetProfileEmail(ctx context.Context, profileID, email string) error
}

// Outcome is the result of one turn: where the conversation goes and what to show
type Outcome struct {
	From     conversation.State
	Next     conversation.State
	TurnData conversation.TurnData
	Views    []view.View
	// Toast answers the pressed button; empty acknowledges silently
	Toast string
	// Ignored is set when the current state had nothing to do with the event
	Ignored bool
	// Loaded is false when the turn failed before the session was read
	Loaded bool
}

// StateLabel names the state the turn started from for metrics and error tags
func (o Outcome) StateLabel() string {
	if !o.Loaded {
		return metrics.StateUnknown
	}
	return o.From.String()
}

// Machine runs the shop conversation. It holds no per-user state: every turn
// loads the session from the repository and writes it back on success.
type Machine struct {
	repo    conversation.Repository
	catalog Catalog
	views   *view.Builder
	timeout time.Duration
	log     *logger.Logger
}

// NewMachine creates the conversation state machine. A zero timeout leaves
// the caller's deadline alone.
func NewMachine(repo conversation.Repository, cat Catalog, views *view.Builder, timeout time.Duration, log *logger.Logger) *Machine {
	return &Machine{
		repo:    repo,
		catalog: cat,
		views:   views,
		timeout: timeout,
		log:     log.With("service", "conversation"),
	}
}

// Dispatch runs one turn for ev. On error nothing is written, so the user
// stays in the state the turn started from.
func (m *Machine) Dispatch(ctx context.Context, ev conversation.Event) (Outcome, error) {
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	start := time.Now()
	log := m.log.With("turn_id", ev.TurnID, "telegram_id", ev.UserID, "event_kind", ev.Kind)

	state, data, err := m.load(ctx, ev)
	if err != nil {
		metrics.RecordTurn(metrics.StateUnknown, "", time.Since(start), err)
		log.Warnw("Session load failed", "error", err)
		return Outcome{}, err
	}

	out, err := m.handle(ctx, state, data, ev)
	if err != nil {
		metrics.RecordTurn(state.String(), "", time.Since(start), err)
		log.Warnw("Turn failed", "state", state.String(), "error", err)
		return Outcome{From: state, Next: state, TurnData: data, Loaded: true}, errors.Wrapf(err, "turn in state %s", state)
	}
	out.From = state
	out.Loaded = true

	if err := m.repo.Save(ctx, ev.UserID, out.Next, out.TurnData); err != nil {
		metrics.RecordTurn(state.String(), "", time.Since(start), err)
		return Outcome{From: state, Next: state, TurnData: data, Loaded: true}, err
	}

	if out.Ignored {
		metrics.RecordIgnoredTurn(state.String())
	} else {
		metrics.RecordTurn(state.String(), out.Next.String(), time.Since(start), nil)
	}

	log.Debugw("Turn completed",
		"from", state.String(),
		"to", out.Next.String(),
		"views", len(out.Views),
		"ignored", out.Ignored,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return out, nil
}

// load resolves the state a turn starts from. The reset command always
// starts over; a user without a stored state starts over too.
func (m *Machine) load(ctx context.Context, ev conversation.Event) (conversation.State, conversation.TurnData, error) {
	if ev.Kind == conversation.EventReset {
		return conversation.StateStart, conversation.TurnData{}, nil
	}

	state, ok, err := m.repo.GetState(ctx, ev.UserID)
	if err != nil {
		return 0, conversation.TurnData{}, err
	}
	if !ok {
		return conversation.StateStart, conversation.TurnData{}, nil
	}

	data, err := m.repo.GetTurnData(ctx, ev.UserID)
	if err != nil {
		return 0, conversation.TurnData{}, err
	}

	return state, data, nil
}

func (m *Machine) handle(ctx context.Context, state conversation.State, data conversation.TurnData, ev conversation.Event) (Outcome, error) {
	switch state {
	case conversation.StateStart:
		return m.toMenu(ctx)
	case conversation.StateMenu:
		return m.handleMenu(ctx, data, ev)
	case conversation.StateProduct:
		return m.handleProduct(ctx, data, ev)
	case conversation.StateCart:
		return m.handleCart(ctx, data, ev)
	case conversation.StateAwaitingEmail:
		return m.handleEmail(ctx, data, ev)
	default:
		return Outcome{}, errors.Wrapf(conversation.ErrUnknownState, "%d", int(state))
	}
}

func (m *Machine) handleMenu(ctx context.Context, data conversation.TurnData, ev conversation.Event) (Outcome, error) {
	p, ok := m.decode(ev)
	if !ok {
		return stay(conversation.StateMenu, data), nil
	}

	switch p.Kind {
	case callback.KindCart:
		return m.toCart(ctx, ev.UserID)
	case callback.KindProduct:
		return m.toProduct(ctx, p.ID)
	default:
		return stay(conversation.StateMenu, data), nil
	}
}

func (m *Machine) handleProduct(ctx context.Context, data conversation.TurnData, ev conversation.Event) (Outcome, error) {
	p, ok := m.decode(ev)
	if !ok {
		return stay(conversation.StateProduct, data), nil
	}

	switch p.Kind {
	case callback.KindBack:
		return m.toMenu(ctx)

	case callback.KindQuantity:
		return Outcome{
			Next:     conversation.StateProduct,
			TurnData: data.WithQuantity(p.Quantity),
			Toast:    m.views.QuantitySelected(p.Quantity),
		}, nil

	case callback.KindAdd:
		if data.Quantity == nil {
			return Outcome{
				Next:     conversation.StateProduct,
				TurnData: data,
				Toast:    m.views.PickQuantityFirst(),
			}, nil
		}

		cartID, err := m.catalog.GetOrCreateCart(ctx, ev.UserID)
		if err != nil {
			return Outcome{}, err
		}
		if err := m.catalog.AddLineItem(ctx, cartID, p.ID, *data.Quantity); err != nil {
			return Outcome{}, err
		}

		out, err := m.toMenu(ctx)
		if err != nil {
			return Outcome{}, err
		}
		out.Toast = m.views.ItemAdded(*data.Quantity)
		return out, nil

	default:
		return stay(conversation.StateProduct, data), nil
	}
}

func (m *Machine) handleCart(ctx context.Context, data conversation.TurnData, ev conversation.Event) (Outcome, error) {
	p, ok := m.decode(ev)
	if !ok {
		return stay(conversation.StateCart, data), nil
	}

	switch p.Kind {
	case callback.KindBack:
		return m.toMenu(ctx)

	case callback.KindDelete:
		if err := m.catalog.DeleteLineItem(ctx, p.ID); err != nil {
			return Outcome{}, err
		}
		return m.toCart(ctx, ev.UserID)

	case callback.KindBuy:
		return Outcome{
			Next:  conversation.StateAwaitingEmail,
			Views: []view.View{m.views.EmailPrompt()},
		}, nil

	default:
		return stay(conversation.StateCart, data), nil
	}
}

func (m *Machine) handleEmail(ctx context.Context, data conversation.TurnData, ev conversation.Event) (Outcome, error) {
	if ev.Kind != conversation.EventText {
		return stay(conversation.StateAwaitingEmail, data), nil
	}

	email, ok := parseEmail(ev.Payload)
	if !ok {
		return Outcome{
			Next:  conversation.StateAwaitingEmail,
			Views: []view.View{m.views.EmailInvalid(strings.TrimSpace(ev.Payload))},
		}, nil
	}

	profileID, err := m.catalog.GetOrCreateUserProfile(ctx, ev.UserID)
	if err != nil {
		return Outcome{}, err
	}
	if err := m.catalog.SetProfileEmail(ctx, profileID, email); err != nil {
		return Outcome{}, err
	}

	out, err := m.toMenu(ctx)
	if err != nil {
		return Outcome{}, err
	}
	out.Views = append([]view.View{m.views.EmailSaved(email)}, out.Views...)
	return out, nil
}

func (m *Machine) toMenu(ctx context.Context) (Outcome, error) {
	products, err := m.catalog.ListProducts(ctx)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{
		Next:  conversation.StateMenu,
		Views: []view.View{m.views.Menu(products)},
	}, nil
}

func (m *Machine) toCart(ctx context.Context, userID int64) (Outcome, error) {
	cartID, err := m.catalog.GetOrCreateCart(ctx, userID)
	if err != nil {
		return Outcome{}, err
	}
	items, err := m.catalog.ListCartLineItems(ctx, cartID)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{
		Next:  conversation.StateCart,
		Views: []view.View{m.views.Cart(items)},
	}, nil
}

func (m *Machine) toProduct(ctx context.Context, productID string) (Outcome, error) {
	product, err := m.catalog.GetProduct(ctx, productID)
	if err != nil {
		return Outcome{}, err
	}

	var image []byte
	if product.ThumbnailURL != "" {
		if image, err = m.catalog.FetchImage(ctx, product.ThumbnailURL); err != nil {
			return Outcome{}, err
		}
	}

	return Outcome{
		Next:  conversation.StateProduct,
		Views: []view.View{m.views.Product(*product, image)},
	}, nil
}

// decode returns the callback payload of ev. Text and malformed payloads
// report false and leave the conversation where it is.
func (m *Machine) decode(ev conversation.Event) (callback.Payload, bool) {
	if ev.Kind != conversation.EventCallback {
		return callback.Payload{}, false
	}
	p, err := callback.Decode(ev.Payload)
	if err != nil {
		m.log.Debugw("Ignoring callback", "turn_id", ev.TurnID, "telegram_id", ev.UserID, "error", err)
		return callback.Payload{}, false
	}
	return p, true
}

func stay(state conversation.State, data conversation.TurnData) Outcome {
	return Outcome{Next: state, TurnData: data, Ignored: true}
}

// parseEmail accepts a bare address ("a@b.c"), not "Name <a@b.c>"
func parseEmail(text string) (string, bool) {
	text = strings.TrimSpace(text)
	addr, err := mail.ParseAddress(text)
	if err != nil || addr.Address != text {
		return "", false
	}
	at := strings.LastIndexByte(text, '@')
	if !strings.Contains(text[at+1:], ".") {
		return "", false
	}
	return addr.Address, true
}
