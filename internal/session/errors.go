package session

import (
	"errors"
	"fmt"

	"github.com/vibestore237/live-competition/internal/types"
)

var (
	ErrAlreadyStarted     = errors.New("competition already started")
	ErrNotStarted         = errors.New("competition not started")
	ErrNoParticipants     = errors.New("no participants")
	ErrNoEligibleUser     = errors.New("no participant left to perform")
	ErrSessionFinished    = errors.New("competition already finished")
	ErrUnknownPerformer   = errors.New("unknown performer")
	ErrPerformerCompleted = errors.New("performer already completed")
)

// InvalidStateError は現在の状態では実行できない操作を表す。ネットワーク呼び出しは行わない。
type InvalidStateError struct {
	Op    string
	Phase Phase
	Err   error
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("%s rejected in phase %s: %v", e.Op, e.Phase, e.Err)
}

func (e *InvalidStateError) Unwrap() error {
	return e.Err
}

// NotAuthorizedError is returned when the caller lacks the capability for a
// command. No state is changed.
type NotAuthorizedError struct {
	Op     string
	UserID string
	Role   types.Role
}

func (e *NotAuthorizedError) Error() string {
	return fmt.Sprintf("%s not allowed for user %q with role %q", e.Op, e.UserID, e.Role)
}
