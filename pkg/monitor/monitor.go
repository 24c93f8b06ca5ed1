// Package monitor evaluates windows of shop-floor samples into alerts and recommendations.
// Evaluation is pure: every call returns fresh slices and performs no I/O.
package monitor

import (
	"sort"
	"time"

	"github.com/AshAI-Sys/Ash-AI-sub011/pkg/models"
	"github.com/google/uuid"
)

// Input is everything one evaluation looks at.
type Input struct {
	Workspace     string
	Samples       []models.MetricSample
	Orders        []models.Order // workspace orders of any status; only OPEN ones are reported as affected
	Steps         []models.Step  // steps of the open orders, for delay detection
	TotalMachines int            // capacity denominator; capacity check is skipped when zero
}

// Findings is the output of a single check.
type Findings struct {
	Alerts          []models.Alert
	Recommendations []models.Recommendation
}

func (f *Findings) alert(a models.Alert) {
	f.Alerts = append(f.Alerts, a)
}

func (f *Findings) recommend(r models.Recommendation) {
	f.Recommendations = append(f.Recommendations, r)
}

// Check is one independent evaluation rule.
type Check interface {
	Name() string
	Evaluate(now time.Time, in Input) Findings
}

type Monitor struct {
	checks []Check
	newID  func() string
}

// New composes a monitor from checks, or from DefaultChecks when none are given.
func New(checks ...Check) *Monitor {
	if len(checks) == 0 {
		checks = DefaultChecks(DefaultThresholds())
	}
	return &Monitor{checks: checks, newID: uuid.NewString}
}

// DefaultChecks returns every built-in check configured with th.
func DefaultChecks(th Thresholds) []Check {
	return []Check{
		EfficiencyCheck{Thresholds: th},
		QualityCheck{Thresholds: th},
		CapacityCheck{Thresholds: th},
		MaintenanceCheck{Thresholds: th},
		OpportunityCheck{Thresholds: th},
		DelayCheck{Thresholds: th},
	}
}

// Evaluate runs every check and returns alerts by severity and recommendations by urgency.
func (m *Monitor) Evaluate(now time.Time, in Input) ([]models.Alert, []models.Recommendation) {
	alerts := []models.Alert{}
	recs := []models.Recommendation{}
	for _, c := range m.checks {
		f := c.Evaluate(now, in)
		alerts = append(alerts, f.Alerts...)
		recs = append(recs, f.Recommendations...)
	}

	for i := range alerts {
		alerts[i].ID = m.newID()
		alerts[i].Workspace = in.Workspace
		alerts[i].CreatedAt = now
		if alerts[i].AffectedOrders == nil {
			alerts[i].AffectedOrders = []string{}
		}
		if alerts[i].AffectedSteps == nil {
			alerts[i].AffectedSteps = []string{}
		}
	}
	for i := range recs {
		recs[i].ID = m.newID()
		recs[i].Workspace = in.Workspace
		recs[i].CreatedAt = now
	}

	SortAlerts(alerts)
	SortRecommendations(recs)
	return alerts, recs
}

// SortAlerts orders by severity weight descending, then subject and type.
func SortAlerts(alerts []models.Alert) {
	sort.SliceStable(alerts, func(i, j int) bool {
		a, b := alerts[i], alerts[j]
		if a.Severity.Weight() != b.Severity.Weight() {
			return a.Severity.Weight() > b.Severity.Weight()
		}
		if a.Subject != b.Subject {
			return a.Subject < b.Subject
		}
		return a.Type < b.Type
	})
}

// SortRecommendations orders by urgency weight descending, then subject and type.
func SortRecommendations(recs []models.Recommendation) {
	sort.SliceStable(recs, func(i, j int) bool {
		a, b := recs[i], recs[j]
		if a.Urgency.Weight() != b.Urgency.Weight() {
			return a.Urgency.Weight() > b.Urgency.Weight()
		}
		if a.Subject != b.Subject {
			return a.Subject < b.Subject
		}
		return a.Type < b.Type
	})
}

// window returns the on-time samples with timestamps in (now-d, now].
func window(samples []models.MetricSample, now time.Time, d time.Duration) []models.MetricSample {
	from := now.Add(-d)
	var out []models.MetricSample
	for _, s := range samples {
		if s.Late || !s.Timestamp.After(from) || s.Timestamp.After(now) {
			continue
		}
		out = append(out, s)
	}
	return out
}

// groupBy buckets samples by key, dropping samples with an empty key.
func groupBy(samples []models.MetricSample, key func(models.MetricSample) string) map[string][]models.MetricSample {
	groups := make(map[string][]models.MetricSample)
	for _, s := range samples {
		if k := key(s); k != "" {
			groups[k] = append(groups[k], s)
		}
	}
	return groups
}

// sortedKeys keeps check output deterministic.
func sortedKeys(groups map[string][]models.MetricSample) []string {
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// meanEfficiency averages per-sample efficiency over samples with a target.
func meanEfficiency(samples []models.MetricSample) (float64, bool) {
	var sum float64
	n := 0
	for _, s := range samples {
		if s.TargetQty <= 0 {
			continue
		}
		sum += s.Efficiency()
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

// affected lists the orders and steps referenced by samples. With order context,
// only OPEN orders and their steps are kept.
func (in Input) affected(samples []models.MetricSample) (orders, steps []string) {
	var active map[string]bool
	if len(in.Orders) > 0 {
		active = make(map[string]bool, len(in.Orders))
		for _, o := range in.Orders {
			if o.Status == models.OpenOrderStatus {
				active[o.ID] = true
			}
		}
	}
	seenOrder := map[string]bool{}
	seenStep := map[string]bool{}
	for _, s := range samples {
		if s.OrderID == "" || (active != nil && !active[s.OrderID]) {
			continue
		}
		if !seenOrder[s.OrderID] {
			seenOrder[s.OrderID] = true
			orders = append(orders, s.OrderID)
		}
		if s.StepID != "" && !seenStep[s.StepID] {
			seenStep[s.StepID] = true
			steps = append(steps, s.StepID)
		}
	}
	sort.Strings(orders)
	sort.Strings(steps)
	return orders, steps
}
