package chat

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyContent    = errors.New("message content is empty")
	ErrNoActiveSession = errors.New("no active session")
	ErrNoActiveModel   = errors.New("no active model")
	ErrBusy            = errors.New("a turn is already awaiting a response")
	ErrAnchorNotFound  = errors.New("anchor message not in the current view")
)

// GenerationError reports a failed call to the generation capability. The
// user turn that triggered it stays persisted; the assistant turn is not.
type GenerationError struct {
	ModelID string
	Err     error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed for model %s: %v", e.ModelID, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }
