package storage

import (
	"context"
	"time"

	"github.com/AshAI-Sys/Ash-AI-sub011/pkg/models"
)

// Store defines the storage operations for the routing engine.
// Updates of orders, steps and work units are version-checked: the stored version must equal
// the version of the value passed in, and is incremented by one on success.
type Store interface {
	Begin() (Store, error)
	Commit() error
	Rollback() error
	Close() error

	// Order operations
	SaveOrder(o models.Order) error
	GetOrder(id string) (models.Order, error)
	ListOrders(workspace string, status models.OrderStatus) ([]models.Order, error)
	UpdateOrder(o models.Order) error

	// Step operations
	SaveSteps(steps []models.Step) error
	GetStep(id string) (models.Step, error)
	ListSteps(orderID string) ([]models.Step, error)
	UpdateStep(s models.Step) error
	SaveStepLog(l models.StepLog) error
	ListStepLogs(orderID string) ([]models.StepLog, error)

	// Work unit operations
	SaveWorkUnit(u models.WorkUnit) error
	GetWorkUnitByScanCode(scanCode string) (models.WorkUnit, error)
	ListWorkUnits(orderID string) ([]models.WorkUnit, error)
	UpdateWorkUnit(u models.WorkUnit) error
	SaveTransition(t models.Transition) error
}

// SampleStore keeps the append-only stream of shop-floor samples.
type SampleStore interface {
	AppendSamples(ctx context.Context, samples []models.MetricSample) error
	ListSamples(ctx context.Context, workspace string, since time.Time) ([]models.MetricSample, error)
}

// SamplePruner is implemented by sample stores that support retention.
type SamplePruner interface {
	PruneSamples(ctx context.Context, before time.Time) (int64, error)
}
