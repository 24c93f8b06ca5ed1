package service

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/zoobzio/clockz"
)

const (
	// DefaultMonitorInterval is how often the runner evaluates its workspaces.
	DefaultMonitorInterval = 5 * time.Minute
	// DefaultEvaluationTimeout bounds a single workspace evaluation.
	DefaultEvaluationTimeout = 30 * time.Second
)

// WorkspaceEvaluator evaluates the monitor for one workspace.
type WorkspaceEvaluator interface {
	EvaluateWorkspace(ctx context.Context, workspace string) (Evaluation, error)
}

type samplePruner interface {
	PruneSamples(ctx context.Context) (int64, error)
}

type evalJob struct {
	ctx       context.Context
	workspace string
	results   chan<- evalResult
}

type evalResult struct {
	workspace string
	err       error
}

// MonitorRunner evaluates a fixed set of workspaces on a cadence with a bounded pool of
// workers. A failing or panicking workspace never affects the others.
type MonitorRunner struct {
	evaluator  WorkspaceEvaluator
	workspaces []string
	interval   time.Duration
	timeout    time.Duration
	clock      clockz.Clock
	logger     Logger
	jobs       chan evalJob
	wg         sync.WaitGroup
	loopDone   chan struct{}
	ctx        context.Context
	cancel     context.CancelFunc
	mu         sync.RWMutex // read-held while RunOnce enqueues, so Stop cannot close jobs under it
	started    bool
}

func NewMonitorRunner(mainCtx context.Context, evaluator WorkspaceEvaluator, workspaces []string, interval time.Duration, clock clockz.Clock, logger Logger) *MonitorRunner {
	if interval <= 0 {
		interval = DefaultMonitorInterval
	}
	if clock == nil {
		clock = clockz.RealClock
	}
	ctx, cancel := context.WithCancel(mainCtx)
	return &MonitorRunner{
		evaluator:  evaluator,
		workspaces: append([]string(nil), workspaces...),
		interval:   interval,
		timeout:    DefaultEvaluationTimeout,
		clock:      clock,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start launches the workers and the evaluation loop. workers <= 0 uses one per CPU.
func (r *MonitorRunner) Start(workers int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started || r.ctx.Err() != nil {
		return
	}
	r.started = true
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	r.jobs = make(chan evalJob, workers)
	for i := 0; i < workers; i++ {
		r.wg.Add(1)
		go r.worker()
	}
	r.loopDone = make(chan struct{})
	go r.loop()
	r.logger.Infof("Monitor runner started: %d workspaces every %s with %d workers", len(r.workspaces), r.interval, workers)
}

// Stop ends the loop and waits for in-flight evaluations. A stopped runner cannot be restarted.
func (r *MonitorRunner) Stop() {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return
	}
	r.started = false
	r.mu.Unlock()

	r.cancel()
	<-r.loopDone
	close(r.jobs)
	r.wg.Wait()
}

func (r *MonitorRunner) loop() {
	defer close(r.loopDone)
	for {
		select {
		case <-r.ctx.Done():
			return
		case <-r.clock.After(r.interval):
			r.RunOnce(r.ctx)
		}
	}
}

// RunOnce evaluates every workspace once and returns the failures by workspace. Without
// running workers the workspaces are evaluated in turn on the caller's goroutine.
func (r *MonitorRunner) RunOnce(ctx context.Context) map[string]error {
	failures := make(map[string]error)
	r.mu.RLock()
	if !r.started {
		r.mu.RUnlock()
		for _, ws := range r.workspaces {
			if err := r.evaluate(evalJob{ctx: ctx, workspace: ws}); err != nil {
				failures[ws] = err
				r.logger.Errorf("Evaluation of workspace %s failed: %v", ws, err)
			}
		}
		r.prune(ctx)
		return failures
	}

	results := make(chan evalResult, len(r.workspaces))
	queued := 0
	for _, ws := range r.workspaces {
		select {
		case r.jobs <- evalJob{ctx: ctx, workspace: ws, results: results}:
			queued++
		case <-ctx.Done():
			failures[ws] = ctx.Err()
		}
	}
	r.mu.RUnlock()
	for i := 0; i < queued; i++ {
		res := <-results
		if res.err != nil {
			failures[res.workspace] = res.err
			r.logger.Errorf("Evaluation of workspace %s failed: %v", res.workspace, res.err)
		}
	}

	r.prune(ctx)
	return failures
}

func (r *MonitorRunner) prune(ctx context.Context) {
	p, ok := r.evaluator.(samplePruner)
	if !ok || ctx.Err() != nil {
		return
	}
	if n, err := p.PruneSamples(ctx); err != nil {
		r.logger.Errorf("Failed to prune samples: %v", err)
	} else if n > 0 {
		r.logger.Debugf("Pruned %d samples", n)
	}
}

func (r *MonitorRunner) worker() {
	defer r.wg.Done()
	for job := range r.jobs {
		job.results <- evalResult{workspace: job.workspace, err: r.evaluate(job)}
	}
}

func (r *MonitorRunner) evaluate(job evalJob) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = errors.Errorf("panic evaluating %s: %v", job.workspace, p)
		}
	}()
	ctx, cancel := context.WithTimeout(job.ctx, r.timeout)
	defer cancel()
	_, err = r.evaluator.EvaluateWorkspace(ctx, job.workspace)
	return err
}
