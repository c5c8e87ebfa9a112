package model

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput         = errors.New("invalid input")
	ErrInvalidScope         = errors.New("invalid scope")
	ErrProvenInfeasible     = errors.New("proven infeasible")
	ErrSearchBudgetExceeded = errors.New("search budget exceeded")
	ErrPersistenceConflict  = errors.New("persistence conflict")
	ErrCancelled            = errors.New("cancelled")
	ErrNotFound             = errors.New("not found")

	// A same-scope generation is already running
	ErrGenerationInProgress = fmt.Errorf("generation already in progress: %w", ErrPersistenceConflict)
)

// ValidationError names the offending field of a malformed input
type ValidationError struct {
	Field  string
	Reason string
}

func (err *ValidationError) Error() string {
	return fmt.Sprintf("%v: %v", err.Field, err.Reason)
}

func (err *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// Outcome is the terminal kind of a generation run as stored alongside the schedule
type Outcome string

const (
	OutcomeNone                 Outcome = ""
	OutcomeInvalidScope         Outcome = "invalid_scope"
	OutcomeProvenInfeasible     Outcome = "proven_infeasible"
	OutcomeSearchBudgetExceeded Outcome = "search_budget_exceeded"
	OutcomePersistenceConflict  Outcome = "persistence_conflict"
	OutcomeCancelled            Outcome = "cancelled"
	OutcomeFailed               Outcome = "failed"
)

func OutcomeOf(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeNone
	case errors.Is(err, ErrInvalidScope), errors.Is(err, ErrInvalidInput):
		return OutcomeInvalidScope
	case errors.Is(err, ErrProvenInfeasible):
		return OutcomeProvenInfeasible
	case errors.Is(err, ErrSearchBudgetExceeded):
		return OutcomeSearchBudgetExceeded
	case errors.Is(err, ErrPersistenceConflict):
		return OutcomePersistenceConflict
	case errors.Is(err, ErrCancelled):
		return OutcomeCancelled
	default:
		return OutcomeFailed
	}
}
