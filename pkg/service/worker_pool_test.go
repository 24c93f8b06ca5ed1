package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/AshAI-Sys/Ash-AI-sub011/pkg/models"
	"github.com/AshAI-Sys/Ash-AI-sub011/pkg/service"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zoobzio/clockz"
)

type stubEvaluator struct {
	mu     sync.Mutex
	calls  map[string]int
	pruned int
}

func (s *stubEvaluator) EvaluateWorkspace(ctx context.Context, workspace string) (service.Evaluation, error) {
	s.mu.Lock()
	if s.calls == nil {
		s.calls = map[string]int{}
	}
	s.calls[workspace]++
	s.mu.Unlock()
	switch workspace {
	case "broken":
		return service.Evaluation{}, errors.New("sample store unavailable")
	case "panics":
		panic("nil machine map")
	}
	return service.Evaluation{Workspace: workspace}, nil
}

func (s *stubEvaluator) PruneSamples(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruned++
	return 0, nil
}

func (s *stubEvaluator) count(ws string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[ws]
}

func TestMonitorRunnerRunOnce(t *testing.T) {
	workspaces := []string{"plant-a", "broken", "panics", "plant-b"}

	t.Run("Inline", func(t *testing.T) {
		eval := &stubEvaluator{}
		runner := service.NewMonitorRunner(context.Background(), eval, workspaces, time.Minute, clockz.NewFakeClock(), logger{})
		failures := runner.RunOnce(context.Background())

		require.Len(t, failures, 2)
		assert.EqualError(t, failures["broken"], "sample store unavailable")
		assert.Contains(t, failures["panics"].Error(), "panic evaluating panics")
		for _, ws := range workspaces {
			assert.Equal(t, 1, eval.count(ws), ws)
		}
		assert.Equal(t, 1, eval.pruned)
	})

	t.Run("Workers", func(t *testing.T) {
		eval := &stubEvaluator{}
		runner := service.NewMonitorRunner(context.Background(), eval, workspaces, time.Hour, clockz.NewFakeClock(), logger{})
		runner.Start(2)
		defer runner.Stop()

		failures := runner.RunOnce(context.Background())
		require.Len(t, failures, 2)
		assert.Contains(t, failures, "broken")
		assert.Contains(t, failures, "panics")
		assert.Equal(t, 1, eval.count("plant-a"))
		assert.Equal(t, 1, eval.count("plant-b"))
	})
}

func TestMonitorRunnerRunOnceDuringStop(t *testing.T) {
	eval := &stubEvaluator{}
	runner := service.NewMonitorRunner(context.Background(), eval, []string{"plant-a", "plant-b", "plant-c"}, time.Hour, clockz.NewFakeClock(), logger{})
	runner.Start(1)

	const callers = 20
	var wg sync.WaitGroup
	failures := make([]map[string]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			failures[i] = runner.RunOnce(context.Background())
		}(i)
	}
	runner.Stop()
	wg.Wait()

	for i, f := range failures {
		assert.Empty(t, f, "caller %d", i)
	}
	assert.Equal(t, callers, eval.count("plant-a"))
	assert.Equal(t, callers, eval.count("plant-c"))
}

func TestMonitorRunnerLoop(t *testing.T) {
	clock := clockz.NewFakeClock()
	eval := &stubEvaluator{}
	runner := service.NewMonitorRunner(context.Background(), eval, []string{"plant-a"}, time.Minute, clock, logger{})
	runner.Start(1)

	// let the loop register its timer
	time.Sleep(10 * time.Millisecond)
	clock.Advance(time.Minute)
	clock.BlockUntilReady()
	require.Eventually(t, func() bool { return eval.count("plant-a") == 1 }, time.Second, 5*time.Millisecond)

	runner.Stop()
	runner.Stop()
	clock.Advance(time.Minute)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 1, eval.count("plant-a"))
}

func TestMonitorRunnerWithEngine(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	plan := h.createOrder(t, models.MethodSilkscreen, 10*24*time.Hour)
	_, err := h.engine.RecordMetricSample(ctx, h.sample(plan.Order.ID, plan.Steps[0].ID, 40, time.Minute))
	require.NoError(t, err)

	runner := service.NewMonitorRunner(ctx, h.engine, []string{"plant-a", ""}, time.Minute, clockz.NewFakeClock(), logger{})
	failures := runner.RunOnce(ctx)
	require.Len(t, failures, 1)
	assert.True(t, errors.Is(failures[""], models.ErrInvalidInput))

	active, err := h.engine.GetActiveAlerts(ctx, "plant-a")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, models.SeverityCritical, active[0].Severity)
}
