package sdk

import (
	"errors"
	"fmt"
)

// Kind classifies a failed call to the Autonomeal service.
type Kind int

const (
	// KindServer is a non-2xx response from a resource endpoint. Its message is shown verbatim.
	KindServer Kind = iota
	// KindValidation is rejected login/signup input, either client-side or by the server.
	KindValidation
	// KindAuthExpired is a 401 from a resource endpoint. The session has already been cleared
	// by the time the caller sees it.
	KindAuthExpired
	// KindNetworkUnavailable is a transport-level failure (DNS, refused connection, timeout).
	KindNetworkUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthExpired:
		return "auth_expired"
	case KindNetworkUnavailable:
		return "network_unavailable"
	default:
		return "server"
	}
}

// Sentinels for errors.Is. Every *Error matches exactly one of these.
var (
	ErrServer             = errors.New("server error")
	ErrValidation         = errors.New("validation failure")
	ErrAuthExpired        = errors.New("authentication expired")
	ErrNetworkUnavailable = errors.New("network unavailable")
)

func (k Kind) sentinel() error {
	switch k {
	case KindValidation:
		return ErrValidation
	case KindAuthExpired:
		return ErrAuthExpired
	case KindNetworkUnavailable:
		return ErrNetworkUnavailable
	default:
		return ErrServer
	}
}

// User-facing messages used when the server gives us nothing better.
const (
	DefaultErrorMessage = "Something went wrong"
	NetworkErrorMessage = "Unable to reach the server. Please check your connection and try again."
	AuthExpiredMessage  = "Authentication expired"
)

// Error is the typed failure returned by every Client call.
type Error struct {
	Kind       Kind
	StatusCode int    // 0 for failures that never reached the server
	Message    string // human-readable, safe to display
	Err        error  // underlying cause, if any
}

func (e *Error) Error() string {
	if e.Message == "" {
		return DefaultErrorMessage
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for this error's kind.
func (e *Error) Is(target error) bool {
	return target == e.Kind.sentinel()
}

// KindOf extracts the Kind from err. ok is false when err is not an *Error.
func KindOf(err error) (kind Kind, ok bool) {
	var sdkErr *Error
	if errors.As(err, &sdkErr) {
		return sdkErr.Kind, true
	}
	return KindServer, false
}

// IsAuthExpired reports whether err signals a rejected session credential.
func IsAuthExpired(err error) bool {
	return errors.Is(err, ErrAuthExpired)
}

func validationError(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}
