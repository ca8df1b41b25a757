package domain

import "errors"

// Domain errors for the chat core. The first three form the ChatError
// family: validation/authorization failures that a live channel reports
// inline to the offending client instead of tearing the session down.
var (
	ErrRoomNotFound     = errors.New("room not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrInvalidMessage   = errors.New("invalid message")

	ErrMessageNotFound = errors.New("message not found")

	// ErrInvalidToken is raised before a connection is accepted and never
	// reaches domain dispatch.
	ErrInvalidToken = errors.New("invalid token")
)

// IsChatError reports whether err belongs to the ChatError family.
func IsChatError(err error) bool {
	return errors.Is(err, ErrRoomNotFound) ||
		errors.Is(err, ErrPermissionDenied) ||
		errors.Is(err, ErrInvalidMessage)
}
