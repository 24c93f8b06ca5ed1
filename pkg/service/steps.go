package service

import (
	"context"

	"github.com/AshAI-Sys/Ash-AI-sub011/pkg/events"
	"github.com/AshAI-Sys/Ash-AI-sub011/pkg/lifecycle"
	"github.com/AshAI-Sys/Ash-AI-sub011/pkg/models"
	"github.com/AshAI-Sys/Ash-AI-sub011/pkg/resolver"
	"github.com/AshAI-Sys/Ash-AI-sub011/pkg/storage"
	"github.com/pkg/errors"
)

// moveStep persists one step transition with its audit entry and returns the stored value.
func (e *Engine) moveStep(tx storage.Store, step models.Step, to models.StepStatus, actor, message string) (models.Step, error) {
	next, err := lifecycle.AdvanceStep(step, to, e.clock.Now())
	if err != nil {
		return step, err
	}
	if to == models.BlockedStepStatus {
		next.BlockReason = message
	}
	if err := tx.UpdateStep(next); err != nil {
		return step, err
	}
	next.Version++
	if err := tx.SaveStepLog(models.StepLog{
		StepID:   step.ID,
		OrderID:  step.OrderID,
		From:     step.Status,
		To:       to,
		Actor:    actor,
		Message:  message,
		LoggedAt: e.clock.Now(),
	}); err != nil {
		return step, errors.Wrapf(err, "failed to log step %s", step.ID)
	}
	return next, nil
}

// touchOrder bumps the order version so concurrent mutations of one order's steps serialize.
func (e *Engine) touchOrder(tx storage.Store, order models.Order) (models.Order, error) {
	order.UpdatedAt = e.clock.Now()
	if err := tx.UpdateOrder(order); err != nil {
		return order, err
	}
	order.Version++
	return order, nil
}

// stepTx runs fn for one step of an OPEN order, serialized against other mutations of that order.
func (e *Engine) stepTx(op, stepID string, fn func(tx storage.Store, order models.Order, step models.Step) error) error {
	return e.retryOnConflict(op, func() error {
		return e.inTx(op, func(tx storage.Store) error {
			step, err := tx.GetStep(stepID)
			if err != nil {
				return err
			}
			order, err := openOrder(tx, step.OrderID)
			if err != nil {
				return err
			}
			order, err = e.touchOrder(tx, order)
			if err != nil {
				return err
			}
			return fn(tx, order, step)
		})
	})
}

func requireActor(actor string) error {
	if actor == "" {
		return errors.Wrap(models.ErrInvalidInput, "actor cannot be empty")
	}
	return nil
}

// StartStep moves a READY step to IN_PROGRESS.
func (e *Engine) StartStep(ctx context.Context, stepID, actor string) (models.Step, error) {
	if err := requireActor(actor); err != nil {
		return models.Step{}, err
	}
	var started models.Step
	var workspace string
	err := e.stepTx("StartStep", stepID, func(tx storage.Store, order models.Order, step models.Step) error {
		var err error
		started, err = e.moveStep(tx, step, models.InProgressStepStatus, actor, "")
		workspace = order.Workspace
		return err
	})
	if err != nil {
		return models.Step{}, err
	}
	e.logger.Infof("Step %s (%s) of order %s started by %s", started.ID, started.Name, started.OrderID, actor)
	e.publish(ctx, events.Event{Key: events.StepStarted, Workspace: workspace, OrderID: started.OrderID, StepIDs: []string{started.ID}, Actor: actor})
	return started, nil
}

// BlockStep parks a non-terminal step until an external precondition is restored.
func (e *Engine) BlockStep(ctx context.Context, stepID, actor, reason string) (models.Step, error) {
	if err := requireActor(actor); err != nil {
		return models.Step{}, err
	}
	if reason == "" {
		return models.Step{}, errors.Wrap(models.ErrInvalidInput, "block reason cannot be empty")
	}
	var blocked models.Step
	var workspace string
	err := e.stepTx("BlockStep", stepID, func(tx storage.Store, order models.Order, step models.Step) error {
		var err error
		blocked, err = e.moveStep(tx, step, models.BlockedStepStatus, actor, reason)
		workspace = order.Workspace
		return err
	})
	if err != nil {
		return models.Step{}, err
	}
	e.logger.Infof("Step %s of order %s blocked by %s: %s", blocked.ID, blocked.OrderID, actor, reason)
	e.publish(ctx, events.Event{
		Key:       events.StepBlocked,
		Workspace: workspace,
		OrderID:   blocked.OrderID,
		StepIDs:   []string{blocked.ID},
		Actor:     actor,
		Details:   map[string]string{"reason": reason},
	})
	return blocked, nil
}

// UnblockStep returns a BLOCKED step to READY, or to PLANNED while its predecessors are unfinished.
func (e *Engine) UnblockStep(ctx context.Context, stepID, actor string) (models.Step, error) {
	if err := requireActor(actor); err != nil {
		return models.Step{}, err
	}
	var unblocked models.Step
	var workspace string
	err := e.stepTx("UnblockStep", stepID, func(tx storage.Store, order models.Order, step models.Step) error {
		if step.Status != models.BlockedStepStatus {
			return &models.IllegalTransitionError{
				Entity: "step",
				ID:     step.ID,
				From:   string(step.Status),
				To:     string(models.ReadyStepStatus),
			}
		}
		siblings, err := tx.ListSteps(step.OrderID)
		if err != nil {
			return errors.Wrapf(err, "failed to list steps of order %s", step.OrderID)
		}
		to := models.PlannedStepStatus
		if resolver.CanStart(step, resolver.CompletedSet(siblings)) {
			to = models.ReadyStepStatus
		}
		unblocked, err = e.moveStep(tx, step, to, actor, "unblocked")
		workspace = order.Workspace
		return err
	})
	if err != nil {
		return models.Step{}, err
	}
	e.logger.Infof("Step %s of order %s unblocked to %s by %s", unblocked.ID, unblocked.OrderID, unblocked.Status, actor)
	if unblocked.Status == models.ReadyStepStatus {
		e.publish(ctx, events.Event{Key: events.StepReady, Workspace: workspace, OrderID: unblocked.OrderID, StepIDs: []string{unblocked.ID}, Actor: actor})
	}
	return unblocked, nil
}

// CompleteStep marks an IN_PROGRESS step DONE and activates every dependent whose join
// condition is now satisfied. It returns the newly READY steps in sequence order.
func (e *Engine) CompleteStep(ctx context.Context, stepID, actor string) ([]models.Step, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	var (
		done           models.Step
		activated      []models.Step
		order          models.Order
		orderCompleted bool
	)
	err := e.stepTx("CompleteStep", stepID, func(tx storage.Store, o models.Order, step models.Step) error {
		activated, orderCompleted = nil, false
		var err error
		done, err = e.moveStep(tx, step, models.DoneStepStatus, actor, "")
		if err != nil {
			return err
		}

		steps, err := tx.ListSteps(step.OrderID)
		if err != nil {
			return errors.Wrapf(err, "failed to list steps of order %s", step.OrderID)
		}
		byID := make(map[string]models.Step, len(steps))
		for _, s := range steps {
			byID[s.ID] = s
		}
		for _, id := range resolver.NextAvailable(done.ID, steps) {
			s := byID[id]
			if s.Status != models.PlannedStepStatus {
				continue
			}
			ready, err := e.moveStep(tx, s, models.ReadyStepStatus, actor, "predecessors complete")
			if err != nil {
				return err
			}
			activated = append(activated, ready)
		}

		order = o
		allDone := true
		for _, s := range steps {
			if s.Status != models.DoneStepStatus {
				allDone = false
				break
			}
		}
		if allDone {
			order.Status = models.CompletedOrderStatus
			if order, err = e.touchOrder(tx, order); err != nil {
				return err
			}
			orderCompleted = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.metrics.Counter(StepsCompletedTotal).Inc()
	for range activated {
		e.metrics.Counter(StepsActivatedTotal).Inc()
	}
	e.logger.Infof("Step %s (%s) of order %s completed by %s, %d steps now ready", done.ID, done.Name, done.OrderID, actor, len(activated))
	e.publish(ctx, events.Event{Key: events.StepCompleted, Workspace: order.Workspace, OrderID: done.OrderID, StepIDs: []string{done.ID}, Actor: actor})
	if len(activated) > 0 {
		ids := make([]string, len(activated))
		for i, s := range activated {
			ids[i] = s.ID
		}
		e.publish(ctx, events.Event{Key: events.StepReady, Workspace: order.Workspace, OrderID: done.OrderID, StepIDs: ids, Actor: actor})
	}
	if orderCompleted {
		e.metrics.Counter(OrdersCompletedTotal).Inc()
		e.logger.Infof("Order %s completed", order.ID)
		e.publish(ctx, events.Event{Key: events.OrderCompleted, Workspace: order.Workspace, OrderID: order.ID, Actor: actor})
	}
	if activated == nil {
		activated = []models.Step{}
	}
	return activated, nil
}
