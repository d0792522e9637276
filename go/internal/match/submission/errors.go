package submission

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrRetriesExhausted wraps the last error once every attempt failed.
var ErrRetriesExhausted = errors.New("submission retries exhausted")

// ReportError is returned by reporters to classify a failed delivery.
type ReportError struct {
	Op          string
	StatusCode  int
	Recoverable bool
	Err         error
}

func (e *ReportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ReportError) Unwrap() error { return e.Err }

// IsRecoverable reports whether err is worth retrying: a recoverable
// ReportError, a deadline, or a network timeout.
func IsRecoverable(err error) bool {
	if err == nil {
		return false
	}
	var re *ReportError
	if errors.As(err, &re) {
		return re.Recoverable
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return false
}
