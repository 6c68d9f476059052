package callback

import (
	"strconv"
	"strings"

	"shopbot/pkg/errors"
)

// ErrMalformedCallback is returned for button data that does not decode into a known payload
var ErrMalformedCallback = errors.New("malformed callback payload")

// Kind is the namespace of a button payload
type Kind string

const (
	KindProduct  Kind = "prod"
	KindQuantity Kind = "quantity"
	KindAdd      Kind = "add"
	KindDelete   Kind = "del"
	KindCart     Kind = "mycart"
	KindBack     Kind = "back"
	KindBuy      Kind = "buy"
)

// Payload is a decoded inline button callback.
// ID is set for prod/add/del, Quantity for quantity, neither for literals.
type Payload struct {
	Kind     Kind
	ID       string
	Quantity int
}

func Product(id string) Payload   { return Payload{Kind: KindProduct, ID: id} }
func Add(productID string) Payload { return Payload{Kind: KindAdd, ID: productID} }
func Delete(itemID string) Payload { return Payload{Kind: KindDelete, ID: itemID} }
func Quantity(n int) Payload       { return Payload{Kind: KindQuantity, Quantity: n} }
func Cart() Payload                { return Payload{Kind: KindCart} }
func Back() Payload                { return Payload{Kind: KindBack} }
func Buy() Payload                 { return Payload{Kind: KindBuy} }

// Encode renders the payload as button callback data ("prod-<id>", "back", ...)
func Encode(p Payload) string {
	switch p.Kind {
	case KindProduct, KindAdd, KindDelete:
		return string(p.Kind) + "-" + p.ID
	case KindQuantity:
		return string(p.Kind) + "-" + strconv.Itoa(p.Quantity)
	default:
		return string(p.Kind)
	}
}

// String implements fmt.Stringer
func (p Payload) String() string {
	return Encode(p)
}

// Decode parses button callback data. Ids may themselves contain dashes,
// only the first one separates the namespace.
func Decode(data string) (Payload, error) {
	switch Kind(data) {
	case KindCart, KindBack, KindBuy:
		return Payload{Kind: Kind(data)}, nil
	}

	namespace, value, ok := strings.Cut(data, "-")
	if !ok || value == "" {
		return Payload{}, errors.Wrapf(ErrMalformedCallback, "%q", data)
	}

	switch kind := Kind(namespace); kind {
	case KindProduct, KindAdd, KindDelete:
		return Payload{Kind: kind, ID: value}, nil
	case KindQuantity:
		n, err := strconv.Atoi(value)
		if err != nil || n <= 0 {
			return Payload{}, errors.Wrapf(ErrMalformedCallback, "quantity %q", value)
		}
		return Payload{Kind: kind, Quantity: n}, nil
	default:
		return Payload{}, errors.Wrapf(ErrMalformedCallback, "unknown namespace %q", namespace)
	}
}
