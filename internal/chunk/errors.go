package chunk

import (
	"errors"
	"fmt"
)

var (
	// ErrNoDataAvailable is the normal idle condition, not a failure.
	ErrNoDataAvailable = errors.New("no data available")
	// ErrInvalidArgument covers zero-capacity buffers and bad configuration.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrAbortedByConsumer means a sink declined or stopped a session on purpose.
	ErrAbortedByConsumer = errors.New("aborted by consumer")
	// ErrIncompleteTransfer means the stream ended before the declared total size.
	ErrIncompleteTransfer = errors.New("incomplete transfer")
	// ErrSessionInProgress rejects a second session on a busy driver.
	ErrSessionInProgress = errors.New("session already in progress")
)

// TransportError is a network or storage I/O failure. Code carries the
// underlying status (HTTP status, errno-like value) when one is known.
type TransportError struct {
	Op   string
	Code int
	Err  error
}

func (e *TransportError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s: transport error (code %d): %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("%s: transport error: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// NewTransportError wraps err unless it already is a TransportError.
func NewTransportError(op string, code int, err error) error {
	var te *TransportError
	if errors.As(err, &te) {
		return err
	}
	return &TransportError{Op: op, Code: code, Err: err}
}

// TransportCode extracts the underlying code from err, or 0.
func TransportCode(err error) int {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Code
	}
	return 0
}
