package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrConnectionNotReady is returned when the notification channel is
	// used before Start completed or after the connection dropped.
	ErrConnectionNotReady = errors.New("notification channel not connected")

	// ErrPermissionDenied reports that the platform refused device or
	// screen-capture access.
	ErrPermissionDenied = errors.New("capture permission denied")
)

// NetworkError wraps any HTTP/transport failure talking to the backend.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *NetworkError) Unwrap() error { return e.Err }

// ProviderConnectError reports that the media or chat provider rejected a
// connect/join attempt.
type ProviderConnectError struct {
	Room RoomName
	Err  error
}

func (e *ProviderConnectError) Error() string {
	return fmt.Sprintf("provider connect to room %q: %v", e.Room, e.Err)
}
func (e *ProviderConnectError) Unwrap() error { return e.Err }
