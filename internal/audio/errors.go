package audio

import (
	"errors"
	"fmt"

	"github.com/vibestore237/live-competition/internal/types"
)

var (
	ErrNoMediaSource = errors.New("no media source configured")
	ErrNotListening  = errors.New("not accepting inbound peers")
	ErrUnknownPeer   = errors.New("unknown peer")
)

// PermissionError is returned when the caller may not broadcast.
type PermissionError struct {
	UserID string
	Role   types.Role
	Reason string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("broadcast not permitted for %s (%s): %s", e.UserID, e.Role, e.Reason)
}

// MediaError is returned when the local stream cannot be acquired or used.
type MediaError struct {
	Op  string
	Err error
}

func (e *MediaError) Error() string {
	return fmt.Sprintf("media %s failed: %v", e.Op, e.Err)
}

func (e *MediaError) Unwrap() error {
	return e.Err
}
