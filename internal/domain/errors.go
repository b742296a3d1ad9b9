package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionNotFound is returned when no live session exists for the user and quiz.
	ErrSessionNotFound = errors.New("quiz session not found")
	// ErrSessionActive is returned when the user already holds a live session for the quiz.
	ErrSessionActive = errors.New("quiz session already active")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrInvalidQuiz indicates a quiz definition violates its invariants.
	ErrInvalidQuiz = errors.New("invalid quiz definition")
	// ErrAttemptNotFound indicates the ledger has no such attempt for the caller.
	ErrAttemptNotFound = errors.New("attempt not found")

	ErrIneligible       = errors.New("not eligible to start quiz")
	ErrInvalidState     = errors.New("operation not allowed in current session state")
	ErrInvalidQuestion  = errors.New("invalid question or option")
	ErrSubmissionFailed = errors.New("attempt submission failed")
)

// IneligibleError is returned by start when the eligibility policy rejects a new attempt.
// Status carries the policy outcome (blocked, already_passed).
type IneligibleError struct {
	QuizID string
	Status string
}

func (e *IneligibleError) Error() string {
	return fmt.Sprintf("quiz %s: %s: %s", e.QuizID, ErrIneligible, e.Status)
}

func (e *IneligibleError) Unwrap() error { return ErrIneligible }

// InvalidStateError reports an operation attempted in a state that forbids it.
type InvalidStateError struct {
	Op     string
	State  SessionState
	Reason string
}

func (e *InvalidStateError) Error() string {
	msg := fmt.Sprintf("%s: %s (state %s)", e.Op, ErrInvalidState, e.State)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *InvalidStateError) Unwrap() error { return ErrInvalidState }

// InvalidQuestionError reports a malformed question id, option or navigation index.
type InvalidQuestionError struct {
	QuestionID string
	Index      int
	Reason     string
}

func (e *InvalidQuestionError) Error() string {
	if e.QuestionID != "" {
		return fmt.Sprintf("%s: question %q index %d: %s", ErrInvalidQuestion, e.QuestionID, e.Index, e.Reason)
	}
	return fmt.Sprintf("%s: index %d: %s", ErrInvalidQuestion, e.Index, e.Reason)
}

func (e *InvalidQuestionError) Unwrap() error { return ErrInvalidQuestion }

// SubmissionFailedError wraps a ledger write failure. The session stays in progress.
type SubmissionFailedError struct {
	Err error
}

func (e *SubmissionFailedError) Error() string {
	return fmt.Sprintf("%s: %v", ErrSubmissionFailed, e.Err)
}

func (e *SubmissionFailedError) Unwrap() []error { return []error{ErrSubmissionFailed, e.Err} }
