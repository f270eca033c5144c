package client

import "errors"

// Error codes for the engine's error taxonomy.
const (
	ErrCodeTransport     = "transport"
	ErrCodeDecode        = "decode"
	ErrCodeProtocol      = "protocol"
	ErrCodeIntentInvalid = "intent_invalid"
)

var (
	ErrNoIdentity    = errors.New("no identity configured")
	ErrEngineStopped = errors.New("engine stopped")
	ErrNotConnected  = errors.New("not connected")
	ErrNoRoom        = errors.New("not in a game room")
	ErrNotAdjacent   = errors.New("move must target an adjacent tile")
)

// Error wraps a taxonomy code and a human-readable message. All engine errors
// are terminal at the point of detection; recovery belongs to the caller.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func transportError(msg string) *Error {
	return &Error{Code: ErrCodeTransport, Message: msg}
}
