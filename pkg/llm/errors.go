package llm

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRole is returned when a message carries a role outside the supported set.
	ErrInvalidRole = errors.New("invalid message role")

	// ErrInvalidFinishReason is returned when a completion ends for an unrecognized reason.
	ErrInvalidFinishReason = errors.New("invalid finish reason")

	// ErrNoChoices is returned when the backend response has no choices.
	ErrNoChoices = errors.New("no choices in completion response")
)

// RoleError reports the offending role. It matches ErrInvalidRole with errors.Is.
type RoleError struct {
	Role string
}

func (e *RoleError) Error() string {
	return fmt.Sprintf("%s: %q", ErrInvalidRole, e.Role)
}

func (e *RoleError) Unwrap() error { return ErrInvalidRole }

// FinishReasonError reports the offending finish reason. It matches ErrInvalidFinishReason.
type FinishReasonError struct {
	Reason string
}

func (e *FinishReasonError) Error() string {
	return fmt.Sprintf("%s: %q", ErrInvalidFinishReason, e.Reason)
}

func (e *FinishReasonError) Unwrap() error { return ErrInvalidFinishReason }
