package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/AshAI-Sys/Ash-AI-sub011/pkg/events"
	"github.com/AshAI-Sys/Ash-AI-sub011/pkg/models"
	"github.com/AshAI-Sys/Ash-AI-sub011/pkg/scheduler"
	"github.com/AshAI-Sys/Ash-AI-sub011/pkg/service"
	"github.com/AshAI-Sys/Ash-AI-sub011/pkg/storage"
	"github.com/AshAI-Sys/Ash-AI-sub011/pkg/templates"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/zoobzio/clockz"
	"github.com/zoobzio/hookz"
)

type logger struct{}

func (l logger) Infof(format string, args ...interface{}) {
	// no-op
}

func (l logger) Errorf(format string, args ...interface{}) {
	// no-op
}

func (l logger) Debugf(format string, args ...interface{}) {
	// no-op
}

// recorder is a synchronous Publisher.
type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(_ context.Context, ev events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) byKey(key hookz.Key) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Event
	for _, ev := range r.events {
		if ev.Key == key {
			out = append(out, ev)
		}
	}
	return out
}

type harness struct {
	engine  *service.Engine
	store   *storage.MemoryStore
	samples *storage.MemorySampleStore
	events  *recorder
	now     func() time.Time
	advance func(time.Duration)
}

func newHarness(t *testing.T, tpls scheduler.TemplateSource, opts ...service.Option) *harness {
	t.Helper()
	if tpls == nil {
		tpls = templates.Default()
	}
	clock := clockz.NewFakeClock()
	h := &harness{
		store:   storage.NewMemoryStore(),
		samples: storage.NewMemorySampleStore(),
		events:  &recorder{},
		now:     clock.Now,
		advance: clock.Advance,
	}
	opts = append([]service.Option{service.WithClock(clock), service.WithPublisher(h.events)}, opts...)
	h.engine = service.NewEngine(h.store, h.samples, tpls, logger{}, opts...)
	return h
}

func (h *harness) createOrder(t *testing.T, method models.ProductionMethod, target time.Duration) service.OrderPlan {
	t.Helper()
	plan, err := h.engine.CreateOrder(context.Background(), service.OrderRequest{
		Workspace:  "plant-a",
		Reference:  "PO-1001",
		Method:     method,
		Quantity:   100,
		TargetDate: h.now().Add(target),
		Actor:      "planner",
	})
	require.NoError(t, err)
	return plan
}

// run starts and completes a step, returning the steps it made ready.
func (h *harness) run(t *testing.T, stepID string) []models.Step {
	t.Helper()
	ctx := context.Background()
	_, err := h.engine.StartStep(ctx, stepID, "op-1")
	require.NoError(t, err)
	ready, err := h.engine.CompleteStep(ctx, stepID, "op-1")
	require.NoError(t, err)
	return ready
}

func (h *harness) step(t *testing.T, orderID, id string) models.Step {
	t.Helper()
	detail, err := h.engine.GetOrder(context.Background(), orderID)
	require.NoError(t, err)
	for _, s := range detail.Steps {
		if s.ID == id {
			return s
		}
	}
	t.Fatalf("step %s not found", id)
	return models.Step{}
}

func hours(n int64) decimal.Decimal { return decimal.NewFromInt(n) }

// forkJoin is a, b (independent) feeding c with the given join.
func forkJoin(t *testing.T, join models.JoinType) *templates.Registry {
	t.Helper()
	reg, err := templates.NewRegistry(templates.Catalog{"FORK": {
		{Name: "a", Workcenter: "A", StandardHours: hours(1)},
		{Name: "b", Workcenter: "B", StandardHours: hours(1)},
		{Name: "c", Workcenter: "C", StandardHours: hours(2), Predecessors: []string{"a", "b"}, Join: join},
	}})
	require.NoError(t, err)
	return reg
}
