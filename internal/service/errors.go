package service

import (
	"errors"
	"fmt"

	"github.com/stemsi/exprep-backend/internal/repository"
)

// Error categories. Every error returned by the session managers matches
// exactly one of these with errors.Is.
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
	ErrInvalidState = errors.New("invalid state")
)

var (
	ErrEmptyQuestionList   = fmt.Errorf("%w: question id list is empty", ErrInvalidInput)
	ErrMalformedQuestions  = fmt.Errorf("%w: question ids must be a list of ids", ErrInvalidInput)
	ErrUnknownStudyMode    = fmt.Errorf("%w: unknown study mode", ErrInvalidInput)
	ErrPositionOutOfRange  = fmt.Errorf("%w: question position out of range", ErrInvalidInput)
	ErrQuestionMismatch    = fmt.Errorf("%w: question id does not match position", ErrInvalidInput)
	ErrQuestionNotInOrder  = fmt.Errorf("%w: question is not part of this session", ErrInvalidInput)
	ErrSessionNotFound     = fmt.Errorf("%w: session not found", ErrNotFound)
	ErrQuestionNotFound    = fmt.Errorf("%w: question not found", ErrNotFound)
	ErrActiveSessionExists = fmt.Errorf("%w: an active session already exists for this exam", ErrInvalidState)
	ErrSessionNotActive    = fmt.Errorf("%w: session is not active", ErrInvalidState)
	ErrSessionNotPaused    = fmt.Errorf("%w: session is not paused", ErrInvalidState)
	ErrSessionStale        = fmt.Errorf("%w: session can no longer be resumed", ErrInvalidState)
	ErrAlreadyGraded       = fmt.Errorf("%w: session was already graded", ErrInvalidState)
	ErrResultsUnavailable  = fmt.Errorf("%w: results are not available until the session is graded", ErrInvalidState)
	ErrCorruptedSession    = fmt.Errorf("%w: stored session data is corrupted", ErrInvalidState)
)

// storeErr translates repository errors into service errors.
func storeErr(op string, err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return ErrSessionNotFound
	case errors.Is(err, repository.ErrActiveSessionExists):
		return ErrActiveSessionExists
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrNotFound), errors.Is(err, ErrInvalidState):
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}
