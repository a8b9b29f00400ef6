package radio

import (
	"fmt"
	"net/http"
)

// ConnectError reports that the device could not be reached or the push
// handshake failed. Reconfiguration surfaces every failure as a ConnectError.
type ConnectError struct {
	Address string
	Err     error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.Address, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// TransportError reports a failed request: network failure, non-2xx status,
// or a response body that could not be decoded.
type TransportError struct {
	Op     string // Operation name, e.g. "list stations".
	Status int    // HTTP status; zero when no response was received.
	Body   string // Response body, if any.
	Err    error
}

func (e *TransportError) Error() string {
	switch {
	case e.Status != 0 && e.Err != nil:
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.Status, e.Err)
	case e.Status != 0:
		return fmt.Sprintf("%s: unexpected status %d: %s", e.Op, e.Status, e.Body)
	default:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
}

func (e *TransportError) Unwrap() error { return e.Err }

// AuthError reports that the credential was missing or rejected. It always
// arrives wrapped in a TransportError or ConnectError.
type AuthError struct {
	Status int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("credential rejected (%d %s)", e.Status, http.StatusText(e.Status))
}

// StaleReferenceError reports that the server does not know the station a
// command referenced. The local catalog is never used to pre-validate ids, so
// this is only produced from a server rejection.
type StaleReferenceError struct {
	ID string
}

func (e *StaleReferenceError) Error() string {
	return fmt.Sprintf("unknown station %q", e.ID)
}

// IsAuthStatus reports whether an HTTP status means the credential was refused.
func IsAuthStatus(status int) bool {
	return status == http.StatusUnauthorized || status == http.StatusForbidden
}
