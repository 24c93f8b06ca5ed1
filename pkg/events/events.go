// Package events carries domain events from the engine to in-process subscribers.
package events

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/zoobzio/hookz"
)

const (
	OrderCreated        = hookz.Key("order.created")
	OrderScheduleAtRisk = hookz.Key("order.schedule_at_risk")
	OrderCompleted      = hookz.Key("order.completed")
	OrderCancelled      = hookz.Key("order.cancelled")
	StepReady           = hookz.Key("step.ready")
	StepStarted         = hookz.Key("step.started")
	StepBlocked         = hookz.Key("step.blocked")
	StepCompleted       = hookz.Key("step.completed")
	WorkUnitChanged     = hookz.Key("work_unit.changed")
	WorkUnitCompleted   = hookz.Key("work_unit.completed")
	AlertRaised         = hookz.Key("alert.raised")
)

// Keys lists every event the engine emits.
var Keys = []hookz.Key{
	OrderCreated, OrderScheduleAtRisk, OrderCompleted, OrderCancelled,
	StepReady, StepStarted, StepBlocked, StepCompleted,
	WorkUnitChanged, WorkUnitCompleted, AlertRaised,
}

// Event is the payload of every domain event.
type Event struct {
	Key       hookz.Key         `json:"key"`
	Workspace string            `json:"workspace,omitempty"`
	OrderID   string            `json:"order_id,omitempty"`
	StepIDs   []string          `json:"step_ids,omitempty"`
	UnitID    string            `json:"unit_id,omitempty"`
	ScanCode  string            `json:"scan_code,omitempty"`
	Actor     string            `json:"actor,omitempty"`
	At        time.Time         `json:"at"`
	Details   map[string]string `json:"details,omitempty"`
}

// Bus fans events out to hooks. Handlers run asynchronously.
type Bus struct {
	hooks *hookz.Hooks[Event]
}

func NewBus() *Bus {
	return &Bus{hooks: hookz.New[Event]()}
}

// Subscribe registers fn for one event key.
func (b *Bus) Subscribe(key hookz.Key, fn func(context.Context, Event) error) error {
	if _, err := b.hooks.Hook(key, fn); err != nil {
		return errors.Wrapf(err, "failed to subscribe to %s", key)
	}
	return nil
}

// SubscribeAll registers fn for every key in Keys.
func (b *Bus) SubscribeAll(fn func(context.Context, Event) error) error {
	for _, key := range Keys {
		if err := b.Subscribe(key, fn); err != nil {
			return err
		}
	}
	return nil
}

// Publish emits ev under ev.Key.
func (b *Bus) Publish(ctx context.Context, ev Event) error {
	if ev.Key == "" {
		return errors.New("event key cannot be empty")
	}
	return b.hooks.Emit(ctx, ev.Key, ev)
}

func (b *Bus) Close() {
	b.hooks.Close()
}
