package monitor

import (
	"fmt"
	"time"

	"github.com/AshAI-Sys/Ash-AI-sub011/pkg/models"
)

// OpportunityCheck finds idle strong operators and operations worth batching.
type OpportunityCheck struct {
	Thresholds Thresholds
}

func (OpportunityCheck) Name() string { return "opportunity" }

func (c OpportunityCheck) Evaluate(now time.Time, in Input) Findings {
	var f Findings
	samples := window(in.Samples, now, c.Thresholds.OpportunityWindow)
	windowSeconds := c.Thresholds.OpportunityWindow.Seconds()

	byOperator := groupBy(samples, func(s models.MetricSample) string { return s.OperatorID })
	for _, op := range sortedKeys(byOperator) {
		group := byOperator[op]
		eff, ok := meanEfficiency(group)
		if !ok || eff <= c.Thresholds.HighPerformer || windowSeconds <= 0 {
			continue
		}
		var busy float64
		for _, s := range group {
			busy += s.CycleTime * float64(s.CompletedQty)
		}
		utilization := busy / windowSeconds * 100
		if utilization >= c.Thresholds.LowUtilization {
			continue
		}
		f.recommend(models.Recommendation{
			Type:            models.ResourceReallocation,
			Subject:         op,
			Description:     fmt.Sprintf("Operator %s runs at %.0f%% efficiency but only %.0f%% utilization; assign work from a bottleneck station", op, eff, utilization),
			ExpectedBenefit: "higher throughput without overtime",
			Confidence:      0.7,
			Urgency:         models.UrgencyLow,
		})
	}

	byOperation := groupBy(samples, func(s models.MetricSample) string { return s.OperationType })
	for _, op := range sortedKeys(byOperation) {
		group := byOperation[op]
		orders := map[string]bool{}
		for _, s := range group {
			if s.OrderID != "" {
				orders[s.OrderID] = true
			}
		}
		if len(orders) < c.Thresholds.BatchingDistinctOrders {
			continue
		}
		affectedOrders, affectedSteps := in.affected(group)
		f.alert(models.Alert{
			Type:           models.OpportunityAlert,
			Severity:       models.SeverityLow,
			Subject:        op,
			AffectedOrders: affectedOrders,
			AffectedSteps:  affectedSteps,
			Description:    fmt.Sprintf("%s was set up separately for %d orders", op, len(orders)),
			Recommendation: fmt.Sprintf("Batch %s across orders", op),
		})
		f.recommend(models.Recommendation{
			Type:            models.Batching,
			Subject:         op,
			Description:     fmt.Sprintf("Batch %s for %d orders into one setup", op, len(orders)),
			ExpectedBenefit: fmt.Sprintf("save %d setups", len(orders)-1),
			Confidence:      0.6,
			Urgency:         models.UrgencyMedium,
		})
	}
	return f
}
