package service

import (
	"context"
	"sync"
	"time"

	"github.com/AshAI-Sys/Ash-AI-sub011/pkg/events"
	"github.com/AshAI-Sys/Ash-AI-sub011/pkg/models"
	"github.com/AshAI-Sys/Ash-AI-sub011/pkg/monitor"
	"github.com/AshAI-Sys/Ash-AI-sub011/pkg/scheduler"
	"github.com/AshAI-Sys/Ash-AI-sub011/pkg/storage"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/zoobzio/clockz"
	"github.com/zoobzio/metricz"
)

// Logger defines the logging interface for the engine
type Logger interface {
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
}

// Publisher receives domain events after the owning transaction commits.
type Publisher interface {
	Publish(ctx context.Context, ev events.Event) error
}

const (
	// DefaultAlertTTL is how long an evaluation's alerts and recommendations stay valid.
	DefaultAlertTTL = 15 * time.Minute
	// DefaultSampleLookback bounds how far back samples are loaded for one evaluation.
	DefaultSampleLookback = 2 * time.Hour
	// maxAttempts bounds retries of order-scoped mutations that lost a version race.
	maxAttempts = 3
)

var (
	OrdersCreatedTotal   = metricz.Key("orders.created.total")
	OrdersAtRiskTotal    = metricz.Key("orders.at_risk.total")
	OrdersCompletedTotal = metricz.Key("orders.completed.total")
	OrdersCancelledTotal = metricz.Key("orders.cancelled.total")
	StepsActivatedTotal  = metricz.Key("steps.activated.total")
	StepsCompletedTotal  = metricz.Key("steps.completed.total")
	UnitTransitionsTotal = metricz.Key("work_units.transitions.total")
	ConflictsTotal       = metricz.Key("conflicts.total")
	SamplesRecordedTotal = metricz.Key("samples.recorded.total")
	SamplesLateTotal     = metricz.Key("samples.late.total")
	EvaluationsTotal     = metricz.Key("evaluations.total")
	AlertsRaisedTotal    = metricz.Key("alerts.raised.total")
	ActiveAlerts         = metricz.Key("alerts.active")
	EvaluationDurationMs = metricz.Key("evaluation.duration.ms")
)

// MetricKeys lists the counters the engine maintains.
var MetricKeys = []metricz.Key{
	OrdersCreatedTotal, OrdersAtRiskTotal, OrdersCompletedTotal, OrdersCancelledTotal,
	StepsActivatedTotal, StepsCompletedTotal, UnitTransitionsTotal, ConflictsTotal,
	SamplesRecordedTotal, SamplesLateTotal, EvaluationsTotal, AlertsRaisedTotal,
}

// GaugeKeys lists the gauges the engine maintains.
var GaugeKeys = []metricz.Key{ActiveAlerts, EvaluationDurationMs}

// Engine orchestrates step generation, dependency resolution, work-unit tracking and
// monitoring over a Store. Every mutation runs in one storage transaction.
type Engine struct {
	store         storage.Store
	samples       storage.SampleStore
	generator     *scheduler.Generator
	monitor       *monitor.Monitor
	publisher     Publisher
	clock         clockz.Clock
	logger        Logger
	wsLogger      func(workspace string) Logger
	metrics       *metricz.Registry
	alertTTL      time.Duration
	lookback      time.Duration
	totalMachines int
	newID         func() string

	mu          sync.Mutex
	watermarks  map[string]time.Time
	evaluations map[string]Evaluation
}

// Option configures an Engine.
type Option func(*Engine)

func WithClock(clock clockz.Clock) Option {
	return func(e *Engine) { e.clock = clock }
}

func WithPublisher(p Publisher) Option {
	return func(e *Engine) { e.publisher = p }
}

func WithMonitor(m *monitor.Monitor) Option {
	return func(e *Engine) { e.monitor = m }
}

func WithAlertTTL(ttl time.Duration) Option {
	return func(e *Engine) {
		if ttl > 0 {
			e.alertTTL = ttl
		}
	}
}

func WithSampleLookback(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.lookback = d
		}
	}
}

// WithTotalMachines sets the machine count used by the capacity check.
func WithTotalMachines(n int) Option {
	return func(e *Engine) { e.totalMachines = n }
}

// WithWorkspaceLogger derives the logger used for monitoring a single workspace.
func WithWorkspaceLogger(fn func(workspace string) Logger) Option {
	return func(e *Engine) { e.wsLogger = fn }
}

func NewEngine(store storage.Store, samples storage.SampleStore, templates scheduler.TemplateSource, logger Logger, opts ...Option) *Engine {
	e := &Engine{
		store:       store,
		samples:     samples,
		clock:       clockz.RealClock,
		logger:      logger,
		metrics:     metricz.New(),
		alertTTL:    DefaultAlertTTL,
		lookback:    DefaultSampleLookback,
		newID:       uuid.NewString,
		watermarks:  make(map[string]time.Time),
		evaluations: make(map[string]Evaluation),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.monitor == nil {
		e.monitor = monitor.New()
	}
	e.generator = scheduler.NewGenerator(templates, e.clock)
	for _, key := range MetricKeys {
		e.metrics.Counter(key)
	}
	e.metrics.Gauge(ActiveAlerts)
	e.metrics.Gauge(EvaluationDurationMs)
	return e
}

// Metrics returns the engine's counters.
func (e *Engine) Metrics() *metricz.Registry {
	return e.metrics
}

func (e *Engine) logFor(workspace string) Logger {
	if e.wsLogger == nil {
		return e.logger
	}
	return e.wsLogger(workspace)
}

// inTx runs fn in a transaction, committing on success and rolling back on error.
func (e *Engine) inTx(op string, fn func(tx storage.Store) error) (err error) {
	txStore, err := e.store.Begin()
	if err != nil {
		e.logger.Errorf("Failed to begin transaction for %s: %v", op, err)
		return errors.Wrapf(err, "failed to begin transaction for %s", op)
	}
	defer func() {
		if err != nil {
			if rollbackErr := txStore.Rollback(); rollbackErr != nil {
				e.logger.Errorf("Failed to rollback after error: %v (original error: %v)", rollbackErr, err)
			}
			return
		}
		if commitErr := txStore.Commit(); commitErr != nil {
			e.logger.Errorf("Failed to commit %s: %v", op, commitErr)
			err = commitErr
		}
	}()
	return fn(txStore)
}

// retryOnConflict reruns an order-scoped transaction that lost a version race, so the
// retry observes the winner's state.
func (e *Engine) retryOnConflict(op string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = fn()
		if !errors.Is(err, models.ErrConflictingUpdate) {
			return err
		}
		e.metrics.Counter(ConflictsTotal).Inc()
		e.logger.Debugf("Retrying %s after conflict (attempt %d): %v", op, attempt, err)
	}
	return err
}

func (e *Engine) publish(ctx context.Context, ev events.Event) {
	if e.publisher == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = e.clock.Now()
	}
	if err := e.publisher.Publish(ctx, ev); err != nil {
		e.logger.Errorf("Failed to publish %s for order %s: %v", ev.Key, ev.OrderID, err)
	}
}
