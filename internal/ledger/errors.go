package ledger

import (
	"errors"
	"fmt"
)

// ErrProfileNotFound is returned when the learner has no profile document.
var ErrProfileNotFound = errors.New("profile not found")

// TxError reports a ledger transaction that could not commit, either
// because conflict retries ran out or the store failed.
type TxError struct {
	Op     string
	UserID string
	Err    error
}

func (e *TxError) Error() string {
	return fmt.Sprintf("ledger %s for user %s: %v", e.Op, e.UserID, e.Err)
}

func (e *TxError) Unwrap() error { return e.Err }
