// Package scheduler instantiates routing steps for an order and schedules them backward from its target date.
package scheduler

import (
	"fmt"
	"time"

	"github.com/AshAI-Sys/Ash-AI-sub011/pkg/models"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/zoobzio/clockz"
)

// TemplateSource provides the ordered step templates of a production method.
type TemplateSource interface {
	Get(method models.ProductionMethod) ([]models.PipelineStepTemplate, error)
}

// Warning flags a step whose latest start already lies in the past.
type Warning struct {
	StepID      string    `json:"step_id"`
	StepName    string    `json:"step_name"`
	LatestStart time.Time `json:"latest_start"`
	Message     string    `json:"message"`
}

// Plan is the generated step set of one order.
type Plan struct {
	Steps    []models.Step `json:"steps"`
	AtRisk   bool          `json:"at_risk"`
	Warnings []Warning     `json:"warnings,omitempty"`
}

type Generator struct {
	templates TemplateSource
	clock     clockz.Clock
	newID     func() string
}

func NewGenerator(templates TemplateSource, clock clockz.Clock) *Generator {
	if clock == nil {
		clock = clockz.RealClock
	}
	return &Generator{
		templates: templates,
		clock:     clock,
		newID:     uuid.NewString,
	}
}

// GenerateSteps builds the steps of order from its method's template.
// An infeasible schedule is reported through Plan.AtRisk, never as an error.
func (g *Generator) GenerateSteps(order models.Order) (Plan, error) {
	if order.ID == "" {
		return Plan{}, errors.Wrap(models.ErrInvalidInput, "order id cannot be empty")
	}
	if order.Quantity <= 0 {
		return Plan{}, errors.Wrapf(models.ErrInvalidInput, "order quantity must be positive, got %d", order.Quantity)
	}
	if order.TargetDate.IsZero() {
		return Plan{}, errors.Wrap(models.ErrInvalidInput, "order target date cannot be empty")
	}

	tpls, err := g.templates.Get(order.Method)
	if err != nil {
		return Plan{}, err
	}

	steps := instantiate(order.ID, tpls, g.newID)
	backwardPass(steps, order.TargetDate)

	now := g.clock.Now()
	plan := Plan{Steps: steps, AtRisk: steps[0].DueBy.Before(now)}
	for _, s := range steps {
		latest := s.LatestStart()
		if latest.Before(now) {
			plan.Warnings = append(plan.Warnings, Warning{
				StepID:      s.ID,
				StepName:    s.Name,
				LatestStart: latest,
				Message:     fmt.Sprintf("step %d %q should have started by %s", s.Sequence, s.Name, latest.Format(time.RFC3339)),
			})
		}
	}
	return plan, nil
}

// instantiate creates one step per template and resolves predecessor names to the new step ids.
func instantiate(orderID string, tpls []models.PipelineStepTemplate, newID func() string) []models.Step {
	ids := make(map[string]string, len(tpls))
	steps := make([]models.Step, len(tpls))
	for i, t := range tpls {
		id := newID()
		ids[t.Name] = id
		status := models.PlannedStepStatus
		if len(t.Predecessors) == 0 {
			status = models.ReadyStepStatus
		}
		join := t.Join
		if join == "" {
			join = models.JoinAll
		}
		steps[i] = models.Step{
			ID:            id,
			OrderID:       orderID,
			Sequence:      i + 1,
			Name:          t.Name,
			Workcenter:    t.Workcenter,
			Join:          join,
			Duration:      t.StandardDuration(),
			Status:        status,
			Outsourceable: t.Outsourceable,
			Version:       1,
		}
	}
	for i, t := range tpls {
		if len(t.Predecessors) == 0 {
			continue
		}
		preds := make([]string, 0, len(t.Predecessors))
		for _, name := range t.Predecessors {
			preds = append(preds, ids[name])
		}
		steps[i].Predecessors = preds
	}
	return steps
}

// backwardPass sets DueBy walking from the last step to the first. A step that feeds
// others must finish before the earliest of its dependents has to start; a step that
// feeds nothing inherits the due-by of the next step in sequence, or target for the last one.
func backwardPass(steps []models.Step, target time.Time) {
	index := make(map[string]int, len(steps))
	for i, s := range steps {
		index[s.ID] = i
	}
	dependents := make([][]int, len(steps))
	for i, s := range steps {
		for _, p := range s.Predecessors {
			j := index[p]
			dependents[j] = append(dependents[j], i)
		}
	}

	for i := len(steps) - 1; i >= 0; i-- {
		switch {
		case len(dependents[i]) > 0:
			var due time.Time
			for k, d := range dependents[i] {
				start := steps[d].DueBy.Add(-steps[d].Duration)
				if k == 0 || start.Before(due) {
					due = start
				}
			}
			steps[i].DueBy = due
		case i == len(steps)-1:
			steps[i].DueBy = target
		default:
			steps[i].DueBy = steps[i+1].DueBy
		}
	}
}
