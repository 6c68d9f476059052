package catalog

import (
	"fmt"
	"net/http"

	"shopbot/pkg/errors"
)

// ErrConflictUnresolved means a create was rejected as a conflict but the
// follow-up query still found nothing
var ErrConflictUnresolved = errors.New("create conflict could not be reconciled")

// BackendError is any failed call to the catalog backend. Status is 0 for
// transport failures (including timeouts) and 503 when the circuit is open.
type BackendError struct {
	Status int
	Body   string
	Method string
	Path   string
	Err    error
}

func (e *BackendError) Error() string {
	msg := fmt.Sprintf("catalog %s %s", e.Method, e.Path)
	if e.Status != 0 {
		msg += fmt.Sprintf(": status %d", e.Status)
	}
	if body := truncate(e.Body, 256); body != "" {
		msg += ": " + body
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// IsConflict reports whether the status is how the backend rejects a
// duplicate. Strapi answers uniqueness violations with 400.
func (e *BackendError) IsConflict() bool {
	return e.Status == http.StatusBadRequest || e.Status == http.StatusConflict
}

// countsAsFailure decides what trips the circuit breaker: the backend being
// unreachable or broken, never the caller sending a bad request
func countsAsFailure(err error) bool {
	var be *BackendError
	if !errors.As(err, &be) {
		return err != nil
	}
	return be.Status == 0 || be.Status >= http.StatusInternalServerError
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
