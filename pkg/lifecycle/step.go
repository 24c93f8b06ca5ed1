package lifecycle

import (
	"time"

	"github.com/AshAI-Sys/Ash-AI-sub011/pkg/models"
)

var stepTransitions = map[models.StepStatus][]models.StepStatus{
	models.PlannedStepStatus:    {models.ReadyStepStatus, models.BlockedStepStatus, models.CancelledStepStatus},
	models.ReadyStepStatus:      {models.InProgressStepStatus, models.BlockedStepStatus, models.CancelledStepStatus},
	models.InProgressStepStatus: {models.DoneStepStatus, models.BlockedStepStatus, models.CancelledStepStatus},
	// A blocked step whose predecessors are not done yet goes back to PLANNED.
	models.BlockedStepStatus: {models.ReadyStepStatus, models.PlannedStepStatus, models.CancelledStepStatus},
}

// LegalStepTargets lists the statuses a step may move to from from.
func LegalStepTargets(from models.StepStatus) []models.StepStatus {
	return append([]models.StepStatus(nil), stepTransitions[from]...)
}

// AdvanceStep returns step moved to status to. Readiness of predecessors is the caller's check.
func AdvanceStep(step models.Step, to models.StepStatus, at time.Time) (models.Step, error) {
	allowed := stepTransitions[step.Status]
	legal := false
	for _, s := range allowed {
		if s == to {
			legal = true
			break
		}
	}
	if !legal {
		names := make([]string, len(allowed))
		for i, s := range allowed {
			names[i] = string(s)
		}
		return step, &models.IllegalTransitionError{
			Entity:  "step",
			ID:      step.ID,
			From:    string(step.Status),
			To:      string(to),
			Allowed: names,
		}
	}

	if step.Status == models.BlockedStepStatus {
		step.BlockReason = ""
	}
	switch to {
	case models.InProgressStepStatus:
		t := at
		step.StartedAt = &t
	case models.DoneStepStatus, models.CancelledStepStatus:
		t := at
		step.FinishedAt = &t
	}
	step.Predecessors = append([]string(nil), step.Predecessors...)
	step.Status = to
	return step, nil
}
