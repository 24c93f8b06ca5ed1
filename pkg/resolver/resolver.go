// Package resolver answers which routing steps may start given the steps already done.
package resolver

import (
	"sort"

	"github.com/AshAI-Sys/Ash-AI-sub011/pkg/models"
)

// CompletedSet returns the ids of the DONE steps.
func CompletedSet(steps []models.Step) map[string]bool {
	done := make(map[string]bool, len(steps))
	for _, s := range steps {
		if s.Status == models.DoneStepStatus {
			done[s.ID] = true
		}
	}
	return done
}

// CanStart evaluates the join condition of step against completed.
func CanStart(step models.Step, completed map[string]bool) bool {
	if len(step.Predecessors) == 0 {
		return true
	}
	if step.Join == models.JoinAny {
		for _, p := range step.Predecessors {
			if completed[p] {
				return true
			}
		}
		return false
	}
	for _, p := range step.Predecessors {
		if !completed[p] {
			return false
		}
	}
	return true
}

// NextAvailable returns, in sequence order, the PLANNED steps that list completedID as a
// predecessor and whose join condition now holds. completedID itself counts as done.
func NextAvailable(completedID string, steps []models.Step) []string {
	completed := CompletedSet(steps)
	completed[completedID] = true

	var ready []models.Step
	for _, s := range steps {
		if s.Status != models.PlannedStepStatus || !dependsOn(s, completedID) {
			continue
		}
		if CanStart(s, completed) {
			ready = append(ready, s)
		}
	}
	sort.Slice(ready, func(i, j int) bool { return ready[i].Sequence < ready[j].Sequence })

	ids := make([]string, len(ready))
	for i, s := range ready {
		ids[i] = s.ID
	}
	return ids
}

func dependsOn(s models.Step, id string) bool {
	for _, p := range s.Predecessors {
		if p == id {
			return true
		}
	}
	return false
}
