package models

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

var (
	// ErrUnknownMethod is returned when no template is registered for a production method.
	ErrUnknownMethod = errors.New("unknown production method")
	// ErrCyclicDependency is returned when a template declares circular step dependencies.
	ErrCyclicDependency = errors.New("cyclic step dependency")
	// ErrIllegalTransition is returned when a status change is not allowed from the current status.
	ErrIllegalTransition = errors.New("illegal transition")
	// ErrConflictingUpdate is returned when an entity changed since the caller read it.
	ErrConflictingUpdate = errors.New("conflicting update")
	ErrNotFound          = errors.New("not found")
	ErrDuplicateScanCode = errors.New("duplicate scan code")
	ErrInvalidInput      = errors.New("invalid input")
)

// IllegalTransitionError names the rejected move and the moves that would have been accepted.
type IllegalTransitionError struct {
	Entity  string   // "step" or "work unit"
	ID      string   // identifier of the entity (scan code for work units)
	From    string   // current status
	To      string   // requested status
	Allowed []string // legal next statuses from From
}

func (e *IllegalTransitionError) Error() string {
	allowed := "none"
	if len(e.Allowed) > 0 {
		allowed = strings.Join(e.Allowed, ", ")
	}
	return fmt.Sprintf("illegal %s transition %s -> %s for %s (allowed: %s)", e.Entity, e.From, e.To, e.ID, allowed)
}

func (e *IllegalTransitionError) Unwrap() error { return ErrIllegalTransition }

// CyclicDependencyError reports the steps of a method that could not be ordered.
type CyclicDependencyError struct {
	Method ProductionMethod
	Steps  []string
}

func (e *CyclicDependencyError) Error() string {
	return fmt.Sprintf("cycle detected in %s template between steps [%s]", e.Method, strings.Join(e.Steps, ", "))
}

func (e *CyclicDependencyError) Unwrap() error { return ErrCyclicDependency }
