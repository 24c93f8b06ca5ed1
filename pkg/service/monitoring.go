package service

import (
	"context"
	"time"

	"github.com/AshAI-Sys/Ash-AI-sub011/pkg/events"
	"github.com/AshAI-Sys/Ash-AI-sub011/pkg/models"
	"github.com/AshAI-Sys/Ash-AI-sub011/pkg/monitor"
	"github.com/AshAI-Sys/Ash-AI-sub011/pkg/storage"
	"github.com/pkg/errors"
)

// Evaluation is the cached monitor output of one workspace.
type Evaluation struct {
	Workspace       string                  `json:"workspace"`
	EvaluatedAt     time.Time               `json:"evaluated_at"`
	ExpiresAt       time.Time               `json:"expires_at"`
	Alerts          []models.Alert          `json:"alerts"`
	Recommendations []models.Recommendation `json:"recommendations"`
}

// RecordMetricSample appends one sample; see RecordMetricSamples.
func (e *Engine) RecordMetricSample(ctx context.Context, sample models.MetricSample) (models.MetricSample, error) {
	recorded, err := e.RecordMetricSamples(ctx, []models.MetricSample{sample})
	if err != nil {
		return models.MetricSample{}, err
	}
	return recorded[0], nil
}

// RecordMetricSamples validates and appends samples. A sample older than its workspace's
// last evaluation is kept but flagged late and never evaluated.
func (e *Engine) RecordMetricSamples(ctx context.Context, samples []models.MetricSample) ([]models.MetricSample, error) {
	if len(samples) == 0 {
		return nil, errors.Wrap(models.ErrInvalidInput, "no samples")
	}
	now := e.clock.Now()
	out := make([]models.MetricSample, len(samples))

	e.mu.Lock()
	for i, s := range samples {
		if err := validateSample(s); err != nil {
			e.mu.Unlock()
			return nil, errors.WithMessagef(err, "sample %d", i)
		}
		if s.ID == "" {
			s.ID = e.newID()
		}
		if s.Timestamp.IsZero() {
			s.Timestamp = now
		}
		if mark, ok := e.watermarks[s.Workspace]; ok && s.Timestamp.Before(mark) {
			s.Late = true
		}
		out[i] = s
	}
	e.mu.Unlock()

	if err := e.samples.AppendSamples(ctx, out); err != nil {
		e.logger.Errorf("Failed to append %d samples: %v", len(out), err)
		return nil, errors.Wrap(err, "failed to append samples")
	}
	for _, s := range out {
		e.metrics.Counter(SamplesRecordedTotal).Inc()
		if s.Late {
			e.metrics.Counter(SamplesLateTotal).Inc()
			e.logFor(s.Workspace).Debugf("Sample %s for %s at %s arrived after evaluation, excluded", s.ID, s.Workspace, s.Timestamp)
		}
	}
	return out, nil
}

func validateSample(s models.MetricSample) error {
	switch {
	case s.Workspace == "":
		return errors.Wrap(models.ErrInvalidInput, "workspace cannot be empty")
	case s.OperatorID == "" && s.MachineID == "":
		return errors.Wrap(models.ErrInvalidInput, "operator or machine is required")
	case s.TargetQty < 0 || s.CompletedQty < 0 || s.DefectQty < 0:
		return errors.Wrap(models.ErrInvalidInput, "quantities cannot be negative")
	case s.DefectQty > s.CompletedQty:
		return errors.Wrap(models.ErrInvalidInput, "defects cannot exceed completed quantity")
	case s.CycleTime < 0 || s.StandardTime < 0:
		return errors.Wrap(models.ErrInvalidInput, "times cannot be negative")
	}
	return nil
}

// EvaluateWorkspace runs the monitor over the workspace's recent samples and open orders
// and caches the result until the alert TTL passes.
func (e *Engine) EvaluateWorkspace(ctx context.Context, workspace string) (Evaluation, error) {
	if workspace == "" {
		return Evaluation{}, errors.Wrap(models.ErrInvalidInput, "workspace cannot be empty")
	}
	start := e.clock.Now()
	now := start

	samples, err := e.samples.ListSamples(ctx, workspace, now.Add(-e.lookback))
	if err != nil {
		return Evaluation{}, errors.Wrapf(err, "failed to list samples of %s", workspace)
	}
	orders, err := e.store.ListOrders(workspace, "")
	if err != nil {
		return Evaluation{}, errors.Wrapf(err, "failed to list orders of %s", workspace)
	}
	var steps []models.Step
	for _, o := range orders {
		if o.Status != models.OpenOrderStatus {
			continue
		}
		s, err := e.store.ListSteps(o.ID)
		if err != nil {
			return Evaluation{}, errors.Wrapf(err, "failed to list steps of order %s", o.ID)
		}
		steps = append(steps, s...)
	}

	alerts, recs := e.monitor.Evaluate(now, monitor.Input{
		Workspace:     workspace,
		Samples:       samples,
		Orders:        orders,
		Steps:         steps,
		TotalMachines: e.totalMachines,
	})
	expires := now.Add(e.alertTTL)
	for i := range alerts {
		alerts[i].ExpiresAt = expires
	}
	for i := range recs {
		recs[i].ExpiresAt = expires
	}

	e.mu.Lock()
	previous, hadPrevious := e.evaluations[workspace]
	known := map[string]models.Alert{}
	if hadPrevious {
		for _, a := range previous.Alerts {
			known[alertKey(a)] = a
		}
	}
	var raised []models.Alert
	for i, a := range alerts {
		if prior, ok := known[alertKey(a)]; ok {
			alerts[i].Resolved = prior.Resolved
			continue
		}
		raised = append(raised, a)
	}
	eval := Evaluation{
		Workspace:       workspace,
		EvaluatedAt:     now,
		ExpiresAt:       expires,
		Alerts:          alerts,
		Recommendations: recs,
	}
	e.evaluations[workspace] = eval
	e.watermarks[workspace] = now
	e.mu.Unlock()

	e.metrics.Counter(EvaluationsTotal).Inc()
	for range raised {
		e.metrics.Counter(AlertsRaisedTotal).Inc()
	}
	e.metrics.Gauge(ActiveAlerts).Set(float64(countActive(alerts)))
	e.metrics.Gauge(EvaluationDurationMs).Set(float64(e.clock.Since(start).Milliseconds()))
	e.logFor(workspace).Debugf("Evaluated %s: %d samples, %d alerts (%d new), %d recommendations", workspace, len(samples), len(alerts), len(raised), len(recs))

	for _, a := range raised {
		e.publish(ctx, events.Event{
			Key:       events.AlertRaised,
			Workspace: workspace,
			OrderID:   firstOrEmpty(a.AffectedOrders),
			StepIDs:   a.AffectedSteps,
			At:        now,
			Details: map[string]string{
				"alert_id": a.ID,
				"type":     string(a.Type),
				"severity": string(a.Severity),
				"subject":  a.Subject,
			},
		})
	}
	return copyEvaluation(eval), nil
}

// current returns the cached evaluation, re-evaluating when it is missing or expired.
func (e *Engine) current(ctx context.Context, workspace string) (Evaluation, error) {
	e.mu.Lock()
	eval, ok := e.evaluations[workspace]
	e.mu.Unlock()
	if ok && e.clock.Now().Before(eval.ExpiresAt) {
		return copyEvaluation(eval), nil
	}
	return e.EvaluateWorkspace(ctx, workspace)
}

// GetActiveAlerts returns the unresolved alerts of the workspace, most severe first.
func (e *Engine) GetActiveAlerts(ctx context.Context, workspace string) ([]models.Alert, error) {
	eval, err := e.current(ctx, workspace)
	if err != nil {
		return nil, err
	}
	active := []models.Alert{}
	for _, a := range eval.Alerts {
		if !a.Resolved {
			active = append(active, a)
		}
	}
	return active, nil
}

// GetRecommendations returns the workspace's recommendations, most urgent first.
func (e *Engine) GetRecommendations(ctx context.Context, workspace string) ([]models.Recommendation, error) {
	eval, err := e.current(ctx, workspace)
	if err != nil {
		return nil, err
	}
	return eval.Recommendations, nil
}

// ResolveAlert marks an alert of the current evaluation resolved. Later evaluations keep
// it resolved for as long as the same finding keeps being detected.
func (e *Engine) ResolveAlert(ctx context.Context, workspace, alertID string) (models.Alert, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	eval, ok := e.evaluations[workspace]
	if ok {
		for i, a := range eval.Alerts {
			if a.ID == alertID {
				eval.Alerts[i].Resolved = true
				e.metrics.Gauge(ActiveAlerts).Set(float64(countActive(eval.Alerts)))
				e.logFor(workspace).Infof("Alert %s (%s %s) in %s resolved", a.ID, a.Type, a.Subject, workspace)
				return eval.Alerts[i], nil
			}
		}
	}
	return models.Alert{}, errors.Wrapf(models.ErrNotFound, "alert %s in %s", alertID, workspace)
}

// PruneSamples drops samples that no evaluation can reach any more, when the sample store supports it.
func (e *Engine) PruneSamples(ctx context.Context) (int64, error) {
	pruner, ok := e.samples.(storage.SamplePruner)
	if !ok {
		return 0, nil
	}
	return pruner.PruneSamples(ctx, e.clock.Now().Add(-e.lookback))
}

func alertKey(a models.Alert) string {
	return string(a.Type) + "|" + string(a.Severity) + "|" + a.Subject
}

func countActive(alerts []models.Alert) int {
	n := 0
	for _, a := range alerts {
		if !a.Resolved {
			n++
		}
	}
	return n
}

func firstOrEmpty(ids []string) string {
	if len(ids) == 0 {
		return ""
	}
	return ids[0]
}

func copyEvaluation(eval Evaluation) Evaluation {
	eval.Alerts = append([]models.Alert{}, eval.Alerts...)
	eval.Recommendations = append([]models.Recommendation{}, eval.Recommendations...)
	return eval
}
