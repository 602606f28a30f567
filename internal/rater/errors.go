package rater

import "errors"

var (
	// ErrNotFound maps the Rater's NOT_FOUND error strings.
	ErrNotFound = errors.New("rater: not found")
	// ErrRater covers every other error string the Rater returns.
	ErrRater = errors.New("rater: call failed")
	// ErrTransport covers connection-level failures.
	ErrTransport = errors.New("rater: transport")
	// ErrTimeout is returned after the single retry also times out.
	ErrTimeout = errors.New("rater: timeout")
	// ErrProtocolMismatch is returned when the response id does not match
	// the request's correlation id.
	ErrProtocolMismatch = errors.New("rater: protocol mismatch")
)

// IsNotFound reports whether err is the Rater's not-found mapping.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
