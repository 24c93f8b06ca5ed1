package service

import (
	"context"
	"strconv"
	"time"

	"github.com/AshAI-Sys/Ash-AI-sub011/pkg/events"
	"github.com/AshAI-Sys/Ash-AI-sub011/pkg/lifecycle"
	"github.com/AshAI-Sys/Ash-AI-sub011/pkg/models"
	"github.com/AshAI-Sys/Ash-AI-sub011/pkg/scheduler"
	"github.com/AshAI-Sys/Ash-AI-sub011/pkg/storage"
	"github.com/pkg/errors"
)

// OrderRequest is the intake data needed to route an order.
type OrderRequest struct {
	Workspace  string                  `json:"workspace"`
	Reference  string                  `json:"reference"`
	Method     models.ProductionMethod `json:"method"`
	Quantity   int                     `json:"quantity"`
	TargetDate time.Time               `json:"target_date"`
	Actor      string                  `json:"actor"`
}

// OrderPlan is the result of CreateOrder.
type OrderPlan struct {
	Order    models.Order        `json:"order"`
	Steps    []models.Step       `json:"steps"`
	Warnings []scheduler.Warning `json:"warnings,omitempty"`
}

// OrderDetail is an order with everything it owns.
type OrderDetail struct {
	Order     models.Order      `json:"order"`
	Steps     []models.Step     `json:"steps"`
	WorkUnits []models.WorkUnit `json:"work_units"`
	StepLogs  []models.StepLog  `json:"step_logs"`
}

const defaultWorkspace = "default"

// CreateOrder generates the order's steps and persists order and steps together.
// A schedule that cannot be met is flagged on the order, it does not fail creation.
func (e *Engine) CreateOrder(ctx context.Context, req OrderRequest) (OrderPlan, error) {
	if req.Method == "" {
		return OrderPlan{}, errors.Wrap(models.ErrInvalidInput, "method cannot be empty")
	}
	if req.Workspace == "" {
		req.Workspace = defaultWorkspace
	}
	actor := req.Actor
	if actor == "" {
		actor = "system"
	}

	now := e.clock.Now()
	order := models.Order{
		ID:         e.newID(),
		Workspace:  req.Workspace,
		Reference:  req.Reference,
		Method:     req.Method,
		Quantity:   req.Quantity,
		TargetDate: req.TargetDate,
		Status:     models.OpenOrderStatus,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	plan, err := e.generator.GenerateSteps(order)
	if err != nil {
		e.logger.Errorf("Failed to generate steps for %s order: %v", req.Method, err)
		return OrderPlan{}, errors.WithMessage(err, "failed to generate steps")
	}
	order.ScheduleAtRisk = plan.AtRisk

	err = e.inTx("CreateOrder", func(tx storage.Store) error {
		if err := tx.SaveOrder(order); err != nil {
			return errors.Wrapf(err, "failed to save order %s", order.ID)
		}
		if err := tx.SaveSteps(plan.Steps); err != nil {
			return errors.Wrapf(err, "failed to save steps of order %s", order.ID)
		}
		for _, s := range plan.Steps {
			if err := tx.SaveStepLog(models.StepLog{
				StepID:   s.ID,
				OrderID:  order.ID,
				To:       s.Status,
				Actor:    actor,
				Message:  "generated",
				LoggedAt: now,
			}); err != nil {
				return errors.Wrapf(err, "failed to log step %s", s.ID)
			}
		}
		return nil
	})
	if err != nil {
		return OrderPlan{}, err
	}

	e.metrics.Counter(OrdersCreatedTotal).Inc()
	e.logger.Infof("Created order %s (%s x%d) with %d steps, due %s", order.ID, order.Method, order.Quantity, len(plan.Steps), order.TargetDate.Format(time.RFC3339))

	var ready []string
	for _, s := range plan.Steps {
		if s.Status == models.ReadyStepStatus {
			ready = append(ready, s.ID)
		}
	}
	e.publish(ctx, events.Event{Key: events.OrderCreated, Workspace: order.Workspace, OrderID: order.ID, StepIDs: ready, Actor: actor, At: now})
	if plan.AtRisk {
		e.metrics.Counter(OrdersAtRiskTotal).Inc()
		e.logger.Infof("Order %s is at risk: %d steps should already have started", order.ID, len(plan.Warnings))
		late := make([]string, len(plan.Warnings))
		for i, w := range plan.Warnings {
			late[i] = w.StepID
		}
		e.publish(ctx, events.Event{
			Key:       events.OrderScheduleAtRisk,
			Workspace: order.Workspace,
			OrderID:   order.ID,
			StepIDs:   late,
			Actor:     actor,
			At:        now,
			Details:   map[string]string{"late_steps": strconv.Itoa(len(plan.Warnings))},
		})
	}
	return OrderPlan{Order: order, Steps: plan.Steps, Warnings: plan.Warnings}, nil
}

// GetOrder returns the order with its steps, work units and step audit log.
func (e *Engine) GetOrder(ctx context.Context, id string) (OrderDetail, error) {
	order, err := e.store.GetOrder(id)
	if err != nil {
		return OrderDetail{}, err
	}
	steps, err := e.store.ListSteps(id)
	if err != nil {
		return OrderDetail{}, errors.Wrapf(err, "failed to list steps of order %s", id)
	}
	units, err := e.store.ListWorkUnits(id)
	if err != nil {
		return OrderDetail{}, errors.Wrapf(err, "failed to list work units of order %s", id)
	}
	logs, err := e.store.ListStepLogs(id)
	if err != nil {
		return OrderDetail{}, errors.Wrapf(err, "failed to list step logs of order %s", id)
	}
	return OrderDetail{Order: order, Steps: steps, WorkUnits: units, StepLogs: logs}, nil
}

// ListOrders returns the workspace's orders, optionally filtered by status.
func (e *Engine) ListOrders(ctx context.Context, workspace string, status models.OrderStatus) ([]models.Order, error) {
	return e.store.ListOrders(workspace, status)
}

// CancelOrder moves the order and every non-terminal step and work unit to a cancelled
// state. Nothing is deleted.
func (e *Engine) CancelOrder(ctx context.Context, orderID, actor, reason string) (models.Order, error) {
	if actor == "" {
		return models.Order{}, errors.Wrap(models.ErrInvalidInput, "actor cannot be empty")
	}
	var cancelled models.Order
	err := e.retryOnConflict("CancelOrder", func() error {
		return e.inTx("CancelOrder", func(tx storage.Store) error {
			order, err := openOrder(tx, orderID)
			if err != nil {
				return err
			}
			now := e.clock.Now()

			steps, err := tx.ListSteps(orderID)
			if err != nil {
				return errors.Wrapf(err, "failed to list steps of order %s", orderID)
			}
			for _, s := range steps {
				if s.Status.Terminal() {
					continue
				}
				if _, err := e.moveStep(tx, s, models.CancelledStepStatus, actor, reason); err != nil {
					return err
				}
			}

			units, err := tx.ListWorkUnits(orderID)
			if err != nil {
				return errors.Wrapf(err, "failed to list work units of order %s", orderID)
			}
			for _, u := range units {
				if u.Status.Terminal() {
					continue
				}
				next, err := lifecycle.Cancel(u, actor, reason, now)
				if err != nil {
					return err
				}
				if err := tx.UpdateWorkUnit(next); err != nil {
					return err
				}
				if err := tx.SaveTransition(next.History[len(next.History)-1]); err != nil {
					return errors.Wrapf(err, "failed to record transition of %s", u.ScanCode)
				}
			}

			order.Status = models.CancelledOrderStatus
			order.UpdatedAt = now
			if err := tx.UpdateOrder(order); err != nil {
				return err
			}
			order.Version++
			cancelled = order
			return nil
		})
	})
	if err != nil {
		return models.Order{}, err
	}

	e.metrics.Counter(OrdersCancelledTotal).Inc()
	e.logger.Infof("Order %s cancelled by %s: %s", orderID, actor, reason)
	e.publish(ctx, events.Event{
		Key:       events.OrderCancelled,
		Workspace: cancelled.Workspace,
		OrderID:   orderID,
		Actor:     actor,
		Details:   map[string]string{"reason": reason},
	})
	return cancelled, nil
}

// openOrder loads an order and rejects mutations of orders that are no longer OPEN.
func openOrder(tx storage.Store, id string) (models.Order, error) {
	order, err := tx.GetOrder(id)
	if err != nil {
		return models.Order{}, err
	}
	if order.Status != models.OpenOrderStatus {
		return models.Order{}, errors.Wrapf(models.ErrIllegalTransition, "order %s is %s", id, order.Status)
	}
	return order, nil
}
