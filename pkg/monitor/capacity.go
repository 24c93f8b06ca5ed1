package monitor

import (
	"fmt"
	"time"

	"github.com/AshAI-Sys/Ash-AI-sub011/pkg/models"
)

// CapacityCheck flags plants where too many machines are busy.
type CapacityCheck struct {
	Thresholds Thresholds
}

func (CapacityCheck) Name() string { return "capacity" }

func (c CapacityCheck) Evaluate(now time.Time, in Input) Findings {
	var f Findings
	if in.TotalMachines <= 0 {
		return f
	}
	samples := window(in.Samples, now, c.Thresholds.CapacityWindow)
	byMachine := groupBy(samples, func(s models.MetricSample) string { return s.MachineID })
	utilization := float64(len(byMachine)) / float64(in.TotalMachines) * 100

	var (
		sev     models.Severity
		urgency models.Urgency
	)
	switch {
	case utilization > c.Thresholds.UtilizationCritical:
		sev, urgency = models.SeverityCritical, models.UrgencyUrgent
	case utilization > c.Thresholds.UtilizationHigh:
		sev, urgency = models.SeverityHigh, models.UrgencyHigh
	default:
		return f
	}
	orders, steps := in.affected(samples)
	f.alert(models.Alert{
		Type:           models.CapacityAlert,
		Severity:       sev,
		Subject:        "machines",
		AffectedOrders: orders,
		AffectedSteps:  steps,
		Description:    fmt.Sprintf("%d of %d machines active (%.0f%% utilization)", len(byMachine), in.TotalMachines, utilization),
		Recommendation: "Defer non-urgent orders or add a shift",
	})
	f.recommend(models.Recommendation{
		Type:            models.ResourceReallocation,
		Subject:         "machines",
		Description:     "Move outsourceable steps to subcontractors and rebalance operators across stations",
		ExpectedBenefit: fmt.Sprintf("reduce utilization below %.0f%%", c.Thresholds.UtilizationHigh),
		Confidence:      0.7,
		Urgency:         urgency,
	})
	return f
}
