package service

import (
	"context"

	"github.com/AshAI-Sys/Ash-AI-sub011/pkg/events"
	"github.com/AshAI-Sys/Ash-AI-sub011/pkg/lifecycle"
	"github.com/AshAI-Sys/Ash-AI-sub011/pkg/models"
	"github.com/AshAI-Sys/Ash-AI-sub011/pkg/storage"
	"github.com/pkg/errors"
)

// WorkUnitRequest records a new bundle cut for an order.
type WorkUnitRequest struct {
	OrderID  string `json:"order_id"`
	StepID   string `json:"step_id,omitempty"`
	ScanCode string `json:"scan_code"`
	Quantity int    `json:"quantity"`
	Actor    string `json:"actor"`
}

// WorkUnitUpdate asks for a status change of the unit with ScanCode. A non-zero
// ExpectedVersion must match the stored version.
type WorkUnitUpdate struct {
	ScanCode        string                `json:"scan_code"`
	To              models.WorkUnitStatus `json:"to"`
	Actor           string                `json:"actor"`
	Reason          string                `json:"reason,omitempty"`
	ExpectedVersion int                   `json:"expected_version,omitempty"`
}

// CreateWorkUnit registers a bundle in status CREATED.
func (e *Engine) CreateWorkUnit(ctx context.Context, req WorkUnitRequest) (models.WorkUnit, error) {
	if req.ScanCode == "" {
		return models.WorkUnit{}, errors.Wrap(models.ErrInvalidInput, "scan code cannot be empty")
	}
	if req.Quantity <= 0 {
		return models.WorkUnit{}, errors.Wrapf(models.ErrInvalidInput, "quantity must be positive, got %d", req.Quantity)
	}
	if err := requireActor(req.Actor); err != nil {
		return models.WorkUnit{}, err
	}

	now := e.clock.Now()
	unit := models.WorkUnit{
		ID:        e.newID(),
		OrderID:   req.OrderID,
		StepID:    req.StepID,
		ScanCode:  req.ScanCode,
		Quantity:  req.Quantity,
		Status:    models.CreatedWorkUnitStatus,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	var workspace string
	err := e.inTx("CreateWorkUnit", func(tx storage.Store) error {
		order, err := openOrder(tx, req.OrderID)
		if err != nil {
			return err
		}
		workspace = order.Workspace
		if req.StepID != "" {
			step, err := tx.GetStep(req.StepID)
			if err != nil {
				return err
			}
			if step.OrderID != req.OrderID {
				return errors.Wrapf(models.ErrInvalidInput, "step %s does not belong to order %s", req.StepID, req.OrderID)
			}
		}
		return tx.SaveWorkUnit(unit)
	})
	if err != nil {
		return models.WorkUnit{}, err
	}
	unit.History = []models.Transition{}

	e.logger.Infof("Work unit %s (%d pcs) created for order %s by %s", unit.ScanCode, unit.Quantity, unit.OrderID, req.Actor)
	e.publish(ctx, events.Event{
		Key:       events.WorkUnitChanged,
		Workspace: workspace,
		OrderID:   unit.OrderID,
		UnitID:    unit.ID,
		ScanCode:  unit.ScanCode,
		Actor:     req.Actor,
		Details:   map[string]string{"to": string(unit.Status)},
	})
	return unit, nil
}

// UpdateWorkUnitStatus applies a validated transition. A unit bound to a step may only
// start once the step is READY or running, and finish once the step is running or done.
// Concurrent updates of one unit surface as ErrConflictingUpdate for every writer but the first.
func (e *Engine) UpdateWorkUnitStatus(ctx context.Context, upd WorkUnitUpdate) (models.WorkUnit, error) {
	if err := requireActor(upd.Actor); err != nil {
		return models.WorkUnit{}, err
	}
	var (
		updated   models.WorkUnit
		workspace string
		finalStep bool
	)
	err := e.inTx("UpdateWorkUnitStatus", func(tx storage.Store) error {
		unit, err := tx.GetWorkUnitByScanCode(upd.ScanCode)
		if err != nil {
			return err
		}
		if upd.ExpectedVersion != 0 && upd.ExpectedVersion != unit.Version {
			return errors.Wrapf(models.ErrConflictingUpdate, "work unit %s is at version %d, not %d", unit.ScanCode, unit.Version, upd.ExpectedVersion)
		}
		var next models.WorkUnit
		if unit.StepID == "" {
			next, err = lifecycle.Transition(unit, upd.To, upd.Actor, upd.Reason, e.clock.Now())
		} else {
			step, serr := tx.GetStep(unit.StepID)
			if serr != nil {
				return serr
			}
			next, err = lifecycle.TransitionOnStep(unit, step, upd.To, upd.Actor, upd.Reason, e.clock.Now())
		}
		if err != nil {
			return err
		}
		if err := tx.UpdateWorkUnit(next); err != nil {
			return err
		}
		if err := tx.SaveTransition(next.History[len(next.History)-1]); err != nil {
			return errors.Wrapf(err, "failed to record transition of %s", unit.ScanCode)
		}
		next.Version++
		updated = next

		order, err := tx.GetOrder(unit.OrderID)
		if err != nil {
			return err
		}
		workspace = order.Workspace
		if next.Status == models.DoneWorkUnitStatus && next.StepID != "" {
			steps, err := tx.ListSteps(unit.OrderID)
			if err != nil {
				return errors.Wrapf(err, "failed to list steps of order %s", unit.OrderID)
			}
			finalStep = len(steps) > 0 && steps[len(steps)-1].ID == next.StepID
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, models.ErrConflictingUpdate) {
			e.metrics.Counter(ConflictsTotal).Inc()
		}
		e.logger.Debugf("Work unit %s update to %s rejected: %v", upd.ScanCode, upd.To, err)
		return models.WorkUnit{}, err
	}

	e.metrics.Counter(UnitTransitionsTotal).Inc()
	e.logger.Infof("Work unit %s moved to %s by %s", updated.ScanCode, updated.Status, upd.Actor)
	ev := events.Event{
		Workspace: workspace,
		OrderID:   updated.OrderID,
		UnitID:    updated.ID,
		ScanCode:  updated.ScanCode,
		Actor:     upd.Actor,
		Details:   map[string]string{"to": string(updated.Status)},
	}
	if updated.StepID != "" {
		ev.StepIDs = []string{updated.StepID}
	}
	ev.Key = events.WorkUnitChanged
	e.publish(ctx, ev)
	if finalStep {
		ev.Key = events.WorkUnitCompleted
		e.publish(ctx, ev)
	}
	return updated, nil
}
