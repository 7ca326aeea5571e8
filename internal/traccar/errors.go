package traccar

import "errors"

// Gateway errors. Transport failures are wrapped with method and path
// context; check with errors.Is.
var (
	// ErrUnexpectedStatus indicates the backend returned a non-2xx response.
	ErrUnexpectedStatus = errors.New("unexpected backend status")

	// ErrUserNotFound indicates no user matched the requested email.
	ErrUserNotFound = errors.New("user not found")

	// ErrInvalidRequest indicates the request is missing required fields.
	ErrInvalidRequest = errors.New("invalid request")
)
