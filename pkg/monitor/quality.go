package monitor

import (
	"fmt"
	"time"

	"github.com/AshAI-Sys/Ash-AI-sub011/pkg/models"
)

// QualityCheck flags operation types whose defect rate is above threshold.
type QualityCheck struct {
	Thresholds Thresholds
}

func (QualityCheck) Name() string { return "quality" }

func (c QualityCheck) Evaluate(now time.Time, in Input) Findings {
	var f Findings
	samples := window(in.Samples, now, c.Thresholds.QualityWindow)
	byOperation := groupBy(samples, func(s models.MetricSample) string { return s.OperationType })
	for _, op := range sortedKeys(byOperation) {
		group := byOperation[op]
		completed, defects := 0, 0
		for _, s := range group {
			completed += s.CompletedQty
			defects += s.DefectQty
		}
		if completed == 0 {
			continue
		}
		rate := float64(defects) / float64(completed) * 100

		var (
			sev     models.Severity
			urgency models.Urgency
		)
		switch {
		case rate > c.Thresholds.DefectCritical:
			sev, urgency = models.SeverityCritical, models.UrgencyUrgent
		case rate > c.Thresholds.DefectHigh:
			sev, urgency = models.SeverityHigh, models.UrgencyHigh
		default:
			continue
		}
		orders, steps := in.affected(group)
		f.alert(models.Alert{
			Type:           models.QualityAlert,
			Severity:       sev,
			Subject:        op,
			AffectedOrders: orders,
			AffectedSteps:  steps,
			Description:    fmt.Sprintf("%s defect rate is %.1f%% (%d of %d pieces)", op, rate, defects, completed),
			Recommendation: fmt.Sprintf("Run a root-cause review on %s and tighten in-process checks", op),
			AutoActions:    []string{"hold_output_for_inspection"},
		})
		f.recommend(models.Recommendation{
			Type:            models.ProcessImprovement,
			Subject:         op,
			Description:     fmt.Sprintf("Standardize setup and add a first-piece check for %s", op),
			ExpectedBenefit: fmt.Sprintf("bring defect rate from %.1f%% under %.0f%%", rate, c.Thresholds.DefectHigh),
			Confidence:      0.8,
			Urgency:         urgency,
		})
	}
	return f
}
