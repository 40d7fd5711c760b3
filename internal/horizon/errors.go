package horizon

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/walletkit/stellar-kit/internal/entities"
)

// Error wraps a Horizon problem document.
type Error struct {
	Problem entities.Problem
}

func (e *Error) Error() string {
	return fmt.Sprintf("horizon error: %s (status %d)", e.Problem.Title, e.Problem.Status)
}

// IsNotFoundError reports whether err is a Horizon 404.
func IsNotFoundError(err error) bool {
	var horizonErr *Error
	if !errors.As(err, &horizonErr) {
		return false
	}
	return horizonErr.Problem.Status == http.StatusNotFound
}

// DestinationRequiresMemoError is returned when a payment destination has
// opted into requiring memos and the transaction carries none.
type DestinationRequiresMemoError struct {
	DestinationAccountID string
}

func (e *DestinationRequiresMemoError) Error() string {
	return fmt.Sprintf("destination account %s requires a memo", e.DestinationAccountID)
}
