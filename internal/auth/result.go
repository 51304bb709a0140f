package auth

import "errors"

// State classifies an authentication attempt.
type State uint8

const (
	// StateNotApplicable means authentication is disabled; the call
	// proceeds without a principal.
	StateNotApplicable State = iota
	// StateAuthenticated means a valid token resolved to a principal.
	StateAuthenticated
	// StateRejected means credentials were missing, malformed, or unknown.
	StateRejected
)

// String returns the state name for logs.
func (s State) String() string {
	switch s {
	case StateNotApplicable:
		return "not_applicable"
	case StateAuthenticated:
		return "authenticated"
	case StateRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Rejection reasons reported in Result.Reason. These are logged
// server-side; callers only ever see a generic failure message.
const (
	ReasonHeaderUnavailable = "authentication unavailable on this transport"
	ReasonMissingHeader     = "missing authorization header"
	ReasonNotBearer         = "authorization header is not a bearer token"
	ReasonEmptyToken        = "empty bearer token"
	ReasonUnknownToken      = "unknown token"
)

// Result is the outcome of one authentication attempt.
type Result struct {
	State State
	// Principal is set only when State is StateAuthenticated.
	Principal Principal
	// Reason is set only when State is StateRejected.
	Reason string
	// TokenPrefix is the loggable prefix of the presented token, empty
	// when no token was presented.
	TokenPrefix string
}

// ErrUnauthenticated is returned by the transport layer when a strict
// method is invoked without valid credentials.
var ErrUnauthenticated = errors.New("authentication required")

// ErrForbidden is returned when an authenticated principal's role does
// not permit the requested operation.
var ErrForbidden = errors.New("operation not permitted")
