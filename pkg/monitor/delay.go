package monitor

import (
	"fmt"
	"time"

	"github.com/AshAI-Sys/Ash-AI-sub011/pkg/models"
)

// DelayCheck flags open steps past their due-by.
type DelayCheck struct {
	Thresholds Thresholds
}

func (DelayCheck) Name() string { return "delay" }

func (c DelayCheck) Evaluate(now time.Time, in Input) Findings {
	var f Findings
	open := map[string]bool{}
	for _, o := range in.Orders {
		if o.Status == models.OpenOrderStatus {
			open[o.ID] = true
		}
	}
	for _, s := range in.Steps {
		if s.Status.Terminal() || s.DueBy.IsZero() || !s.DueBy.Before(now) {
			continue
		}
		if len(in.Orders) > 0 && !open[s.OrderID] {
			continue
		}
		overdue := now.Sub(s.DueBy)
		sev := models.SeverityHigh
		if overdue > c.Thresholds.DelayCritical {
			sev = models.SeverityCritical
		}
		f.alert(models.Alert{
			Type:           models.DelayAlert,
			Severity:       sev,
			Subject:        s.ID,
			AffectedOrders: []string{s.OrderID},
			AffectedSteps:  []string{s.ID},
			Description:    fmt.Sprintf("step %d %q is %s past due (status %s)", s.Sequence, s.Name, overdue.Truncate(time.Minute), s.Status),
			Recommendation: "Expedite the step or renegotiate the order target date",
		})
	}
	return f
}
