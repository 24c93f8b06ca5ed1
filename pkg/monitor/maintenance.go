package monitor

import (
	"fmt"
	"sort"
	"time"

	"github.com/AshAI-Sys/Ash-AI-sub011/pkg/models"
)

// MaintenanceCheck looks for machines whose efficiency is sliding or cycle time creeping up.
type MaintenanceCheck struct {
	Thresholds Thresholds
}

func (MaintenanceCheck) Name() string { return "maintenance" }

func (c MaintenanceCheck) Evaluate(now time.Time, in Input) Findings {
	var f Findings
	samples := window(in.Samples, now, c.Thresholds.MaintenanceWindow)
	byMachine := groupBy(samples, func(s models.MetricSample) string { return s.MachineID })
	for _, machine := range sortedKeys(byMachine) {
		group := byMachine[machine]
		if len(group) < c.Thresholds.MaintenanceMinSamples {
			continue
		}
		sort.SliceStable(group, func(i, j int) bool { return group[i].Timestamp.Before(group[j].Timestamp) })

		effs := make([]float64, 0, len(group))
		cycles := make([]float64, 0, len(group))
		for _, s := range group {
			if s.TargetQty > 0 {
				effs = append(effs, s.Efficiency())
			}
			cycles = append(cycles, s.CycleTime)
		}
		mean, ok := meanEfficiency(group)
		if !ok || mean >= c.Thresholds.MaintenanceEfficiency {
			continue
		}
		falling := Decreasing(effs, c.Thresholds.TrendShare)
		slowing := Increasing(cycles, c.Thresholds.TrendShare)
		if !falling && !slowing {
			continue
		}

		signal := "efficiency declining"
		if !falling {
			signal = "cycle time increasing"
		} else if slowing {
			signal = "efficiency declining and cycle time increasing"
		}
		orders, steps := in.affected(group)
		f.alert(models.Alert{
			Type:           models.MaintenanceAlert,
			Severity:       models.SeverityMedium,
			Subject:        machine,
			AffectedOrders: orders,
			AffectedSteps:  steps,
			Description:    fmt.Sprintf("machine %s: %s over %d samples, mean efficiency %.1f%%", machine, signal, len(group), mean),
			Recommendation: fmt.Sprintf("Plan preventive maintenance for machine %s before the next shift", machine),
		})
		f.recommend(models.Recommendation{
			Type:            models.MaintenanceAction,
			Subject:         machine,
			Description:     fmt.Sprintf("Schedule preventive maintenance for machine %s", machine),
			ExpectedBenefit: "avoid unplanned downtime",
			Confidence:      0.65,
			Urgency:         models.UrgencyMedium,
		})
	}
	return f
}
