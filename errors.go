package hush

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInvite       = errors.New("hush: invite is invalid")
	ErrUnsupportedChatType = errors.New("hush: chat type is not supported")
	ErrAlreadyMember       = errors.New("hush: you are already a member of this chat")
	ErrNoSuchChat          = errors.New("hush: no such chat")
	ErrSessionClosed       = errors.New("hush: session is closed")
	ErrChatInvalid         = errors.New("hush: chat is invalid")
)

// Malformed caller input, reported before anything remote happens.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("hush: invalid %s: %s", e.Field, e.Reason)
}

// An invite which could not be parsed or names a chat type this session does not know. Kind is
// ErrInvalidInvite or ErrUnsupportedChatType.
type InviteError struct {
	Kind error
	Err  error
}

func (e *InviteError) Error() string {
	if e.Err == nil {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Err)
}

func (e *InviteError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// The step of a workflow which failed. Steps before it have taken effect and are not undone.
type StepError struct {
	Workflow string
	Step     string
	Err      error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("hush: %s failed at %s: %s", e.Workflow, e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// A persisted conversation which was dropped while opening the session.
type RecoveryWarning struct {
	RecordID string
	Reason   string
	Err      error
}

func (w *RecoveryWarning) Error() string {
	return fmt.Sprintf("hush: dropped conversation %q (%s): %s", w.RecordID, w.Reason, w.Err)
}

func (w *RecoveryWarning) Unwrap() error {
	return w.Err
}
