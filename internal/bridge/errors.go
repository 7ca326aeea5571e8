package bridge

import "errors"

// Bridge errors. Check with errors.Is.
var (
	// ErrInvalidPayload indicates a message payload could not be parsed
	// or is missing required fields.
	ErrInvalidPayload = errors.New("invalid payload")
)
