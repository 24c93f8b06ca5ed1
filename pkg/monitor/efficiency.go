package monitor

import (
	"fmt"
	"math"
	"time"

	"github.com/AshAI-Sys/Ash-AI-sub011/pkg/models"
)

// EfficiencyCheck flags slow operators and machines running off their standard time.
type EfficiencyCheck struct {
	Thresholds Thresholds
}

func (EfficiencyCheck) Name() string { return "efficiency" }

func (c EfficiencyCheck) Evaluate(now time.Time, in Input) Findings {
	var f Findings
	samples := window(in.Samples, now, c.Thresholds.EfficiencyWindow)

	byOperator := groupBy(samples, func(s models.MetricSample) string { return s.OperatorID })
	for _, op := range sortedKeys(byOperator) {
		group := byOperator[op]
		eff, ok := meanEfficiency(group)
		if !ok {
			continue
		}
		var sev models.Severity
		switch {
		case eff < c.Thresholds.EfficiencyCritical:
			sev = models.SeverityCritical
		case eff < c.Thresholds.EfficiencyLow:
			sev = models.SeverityMedium
		default:
			continue
		}
		orders, steps := in.affected(group)
		a := models.Alert{
			Type:           models.EfficiencyAlert,
			Severity:       sev,
			Subject:        op,
			AffectedOrders: orders,
			AffectedSteps:  steps,
			Description:    fmt.Sprintf("operator %s averaged %.1f%% efficiency over the last %s", op, eff, c.Thresholds.EfficiencyWindow),
			Recommendation: "Review workload and provide coaching or task reassignment",
		}
		if sev == models.SeverityCritical {
			a.AutoActions = []string{"notify_supervisor", "flag_affected_orders"}
		}
		f.alert(a)
	}

	byMachine := groupBy(samples, func(s models.MetricSample) string { return s.MachineID })
	for _, machine := range sortedKeys(byMachine) {
		group := byMachine[machine]
		var sum float64
		n := 0
		for _, s := range group {
			if s.StandardTime <= 0 {
				continue
			}
			sum += math.Abs(s.CycleTime-s.StandardTime) / s.StandardTime
			n++
		}
		if n == 0 {
			continue
		}
		variance := sum / float64(n)
		if variance <= c.Thresholds.MachineVariance {
			continue
		}
		orders, steps := in.affected(group)
		f.alert(models.Alert{
			Type:           models.EfficiencyAlert,
			Severity:       models.SeverityHigh,
			Subject:        machine,
			AffectedOrders: orders,
			AffectedSteps:  steps,
			Description:    fmt.Sprintf("machine %s cycle time deviates %.1f%% from standard", machine, variance*100),
			Recommendation: fmt.Sprintf("Schedule a maintenance inspection for machine %s", machine),
			AutoActions:    []string{"create_maintenance_ticket"},
		})
	}
	return f
}
