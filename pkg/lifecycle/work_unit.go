// Package lifecycle holds the transition tables for routing steps and work units.
package lifecycle

import (
	"time"

	"github.com/AshAI-Sys/Ash-AI-sub011/pkg/models"
	"github.com/pkg/errors"
)

var unitTransitions = map[models.WorkUnitStatus][]models.WorkUnitStatus{
	models.CreatedWorkUnitStatus:    {models.InProgressWorkUnitStatus, models.RejectedWorkUnitStatus},
	models.InProgressWorkUnitStatus: {models.DoneWorkUnitStatus, models.RejectedWorkUnitStatus},
}

// LegalUnitTargets lists the statuses a unit may move to from from.
func LegalUnitTargets(from models.WorkUnitStatus) []models.WorkUnitStatus {
	return append([]models.WorkUnitStatus(nil), unitTransitions[from]...)
}

// Transition moves unit to status to, recording one history entry. The input is not modified.
func Transition(unit models.WorkUnit, to models.WorkUnitStatus, actor, reason string, at time.Time) (models.WorkUnit, error) {
	if actor == "" {
		return unit, errors.Wrap(models.ErrInvalidInput, "actor cannot be empty")
	}
	allowed := unitTransitions[unit.Status]
	for _, s := range allowed {
		if s == to {
			return apply(unit, to, actor, reason, at), nil
		}
	}
	names := make([]string, len(allowed))
	for i, s := range allowed {
		names[i] = string(s)
	}
	return unit, &models.IllegalTransitionError{
		Entity:  "work unit",
		ID:      unit.ScanCode,
		From:    string(unit.Status),
		To:      string(to),
		Allowed: names,
	}
}

// stepGates lists the step statuses under which a unit bound to that step may enter a status.
var stepGates = map[models.WorkUnitStatus][]models.StepStatus{
	models.InProgressWorkUnitStatus: {models.ReadyStepStatus, models.InProgressStepStatus},
	models.DoneWorkUnitStatus:       {models.InProgressStepStatus, models.DoneStepStatus},
}

// StepAllows reports whether a unit bound to step may move to to.
func StepAllows(step models.Step, to models.WorkUnitStatus) bool {
	gate, ok := stepGates[to]
	if !ok {
		return true
	}
	for _, s := range gate {
		if s == step.Status {
			return true
		}
	}
	return false
}

// TransitionOnStep is Transition for a unit bound to step. A move the unit table accepts
// is still rejected when the step is not far enough along; Allowed then lists the
// targets the step does permit.
func TransitionOnStep(unit models.WorkUnit, step models.Step, to models.WorkUnitStatus, actor, reason string, at time.Time) (models.WorkUnit, error) {
	next, err := Transition(unit, to, actor, reason, at)
	if err != nil {
		return unit, err
	}
	if StepAllows(step, to) {
		return next, nil
	}
	var names []string
	for _, s := range unitTransitions[unit.Status] {
		if StepAllows(step, s) {
			names = append(names, string(s))
		}
	}
	return unit, &models.IllegalTransitionError{
		Entity:  "work unit",
		ID:      unit.ScanCode,
		From:    string(unit.Status),
		To:      string(to),
		Allowed: names,
	}
}

// Cancel moves a non-terminal unit to CANCELLED.
func Cancel(unit models.WorkUnit, actor, reason string, at time.Time) (models.WorkUnit, error) {
	if unit.Status.Terminal() {
		return unit, &models.IllegalTransitionError{
			Entity: "work unit",
			ID:     unit.ScanCode,
			From:   string(unit.Status),
			To:     string(models.CancelledWorkUnitStatus),
		}
	}
	return apply(unit, models.CancelledWorkUnitStatus, actor, reason, at), nil
}

func apply(unit models.WorkUnit, to models.WorkUnitStatus, actor, reason string, at time.Time) models.WorkUnit {
	history := make([]models.Transition, len(unit.History), len(unit.History)+1)
	copy(history, unit.History)
	history = append(history, models.Transition{
		UnitID: unit.ID,
		At:     at,
		Actor:  actor,
		From:   unit.Status,
		To:     to,
		Reason: reason,
	})
	unit.History = history
	unit.Status = to
	unit.UpdatedAt = at
	return unit
}
