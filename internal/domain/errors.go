package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownLanguage is returned when a language name is not in the supported set.
	ErrUnknownLanguage = errors.New("unknown language")

	// ErrTicketNotFound is returned when a ticket cannot be found by ID.
	ErrTicketNotFound = errors.New("ticket not found")

	// ErrExerciseNotFound is returned when no test archive exists for an exercise.
	ErrExerciseNotFound = errors.New("exercise test archive not found")

	// ErrStorageUnavailable wraps transient failures reading test archives.
	ErrStorageUnavailable = errors.New("test archive storage unavailable")

	// ErrRuntimeUnavailable wraps container daemon failures.
	ErrRuntimeUnavailable = errors.New("container runtime unavailable")

	// ErrRunTimeout is returned when a container outlives the configured run timeout.
	ErrRunTimeout = errors.New("container run timed out")

	// ErrDatabaseUnavailable wraps transient ticket store failures.
	ErrDatabaseUnavailable = errors.New("database is currently unavailable")

	// ErrNoCapacity is returned by dispatch when no judge serves the ticket's language.
	ErrNoCapacity = errors.New("no judge registered for language")

	// ErrShuttingDown is returned by dispatch once shutdown has begun.
	ErrShuttingDown = errors.New("dispatcher is shutting down")

	// ErrInternal marks a broken invariant such as a panic or corrupt stored data.
	ErrInternal = errors.New("internal judge error")

	// ErrTicketIDExhausted is returned when no unused ticket id was found within the lookup budget.
	ErrTicketIDExhausted = errors.New("could not allocate a ticket id")

	// ErrEmptySource is returned when submitted source code is blank.
	ErrEmptySource = errors.New("source code cannot be empty")

	// ErrPayloadTooLarge is returned when the source code exceeds the size limit.
	ErrPayloadTooLarge = errors.New("source code payload exceeds maximum size (1MB)")

	// ErrInvalidExercise is returned when a submission names no exercise.
	ErrInvalidExercise = errors.New("exercise id must be positive")
)

// MismatchedLanguageError means a ticket reached a judge bound to another
// language. It is a routing bug and is never retried.
type MismatchedLanguageError struct {
	JudgeLang  Language
	TicketLang Language
}

func (e *MismatchedLanguageError) Error() string {
	return fmt.Sprintf("mismatched language: judge serves %s, ticket is %s", e.JudgeLang, e.TicketLang)
}
