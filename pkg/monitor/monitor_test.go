package monitor_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/AshAI-Sys/Ash-AI-sub011/pkg/models"
	"github.com/AshAI-Sys/Ash-AI-sub011/pkg/monitor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC)

type sampleOpt func(*models.MetricSample)

func sample(ago time.Duration, operator, machine, operation string, target, completed int, opts ...sampleOpt) models.MetricSample {
	s := models.MetricSample{
		Timestamp:     now.Add(-ago),
		OperatorID:    operator,
		MachineID:     machine,
		OperationType: operation,
		TargetQty:     target,
		CompletedQty:  completed,
		CycleTime:     30,
		StandardTime:  30,
	}
	for _, o := range opts {
		o(&s)
	}
	return s
}

func forOrder(id string) sampleOpt { return func(s *models.MetricSample) { s.OrderID = id } }
func defects(n int) sampleOpt      { return func(s *models.MetricSample) { s.DefectQty = n } }
func cycle(sec float64) sampleOpt  { return func(s *models.MetricSample) { s.CycleTime = sec } }

func TestEvaluate_LowEfficiencyOperator(t *testing.T) {
	in := monitor.Input{
		Workspace: "plant-a",
		Samples: []models.MetricSample{
			sample(10*time.Minute, "op-1", "M1", "SEWING", 100, 50, forOrder("o1")),
			sample(20*time.Minute, "op-1", "M1", "SEWING", 100, 60, forOrder("o2")),
			sample(30*time.Minute, "op-1", "M1", "PRINTING", 100, 55, forOrder("o3")),
			sample(10*time.Minute, "op-2", "M2", "PRINTING", 100, 88, forOrder("o2")),
		},
		Orders: []models.Order{
			{ID: "o1", Status: models.OpenOrderStatus},
			{ID: "o2", Status: models.OpenOrderStatus},
			{ID: "o3", Status: models.CancelledOrderStatus},
		},
	}

	alerts, recs := monitor.New().Evaluate(now, in)
	require.Len(t, alerts, 1)
	a := alerts[0]
	assert.Equal(t, models.EfficiencyAlert, a.Type)
	assert.Equal(t, models.SeverityCritical, a.Severity)
	assert.Equal(t, "op-1", a.Subject)
	assert.Equal(t, []string{"o1", "o2"}, a.AffectedOrders)
	assert.Equal(t, "plant-a", a.Workspace)
	assert.Equal(t, now, a.CreatedAt)
	assert.NotEmpty(t, a.ID)
	assert.Empty(t, recs)
}

func TestEvaluate_FreshSlicesPerCall(t *testing.T) {
	m := monitor.New()
	in := monitor.Input{Samples: []models.MetricSample{sample(time.Minute, "op-1", "M1", "SEWING", 100, 70)}}
	first, _ := m.Evaluate(now, in)
	second, _ := m.Evaluate(now, in)
	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, models.SeverityMedium, first[0].Severity)
	first[0].Subject = "changed"
	assert.Equal(t, "op-1", second[0].Subject)
	assert.NotEqual(t, first[0].ID, second[0].ID)
}

func TestEvaluate_ExcludesLateAndOldSamples(t *testing.T) {
	late := sample(5*time.Minute, "op-1", "M1", "SEWING", 100, 10)
	late.Late = true
	in := monitor.Input{Samples: []models.MetricSample{
		late,
		sample(3*time.Hour, "op-1", "M1", "SEWING", 100, 10),
	}}
	alerts, recs := monitor.New().Evaluate(now, in)
	assert.Empty(t, alerts)
	assert.Empty(t, recs)
}

func TestEfficiencyCheck_MachineVariance(t *testing.T) {
	check := monitor.EfficiencyCheck{Thresholds: monitor.DefaultThresholds()}
	f := check.Evaluate(now, monitor.Input{Samples: []models.MetricSample{
		sample(time.Minute, "op-1", "M9", "PRINTING", 100, 100, cycle(36)),
		sample(2*time.Minute, "op-1", "M9", "PRINTING", 100, 100, cycle(36)),
		sample(time.Minute, "op-2", "M3", "PRINTING", 100, 100, cycle(33)),
	}})
	require.Len(t, f.Alerts, 1)
	assert.Equal(t, "M9", f.Alerts[0].Subject)
	assert.Equal(t, models.SeverityHigh, f.Alerts[0].Severity)
	assert.Contains(t, f.Alerts[0].Recommendation, "maintenance inspection")
}

func TestQualityCheck(t *testing.T) {
	check := monitor.QualityCheck{Thresholds: monitor.DefaultThresholds()}

	f := check.Evaluate(now, monitor.Input{Samples: []models.MetricSample{
		sample(time.Minute, "op-1", "M1", "PRINTING", 100, 100, defects(7)),
		sample(time.Minute, "op-1", "M1", "SEWING", 100, 100, defects(12)),
		sample(time.Minute, "op-1", "M1", "QC", 100, 100, defects(5)),
	}})
	require.Len(t, f.Alerts, 2)
	require.Len(t, f.Recommendations, 2)
	assert.Equal(t, "PRINTING", f.Alerts[0].Subject)
	assert.Equal(t, models.SeverityHigh, f.Alerts[0].Severity)
	assert.Equal(t, models.SeverityCritical, f.Alerts[1].Severity)
	assert.Equal(t, models.ProcessImprovement, f.Recommendations[1].Type)
	assert.Equal(t, models.UrgencyUrgent, f.Recommendations[1].Urgency)
}

func TestCapacityCheck(t *testing.T) {
	check := monitor.CapacityCheck{Thresholds: monitor.DefaultThresholds()}
	var samples []models.MetricSample
	for i := 0; i < 9; i++ {
		samples = append(samples, sample(5*time.Minute, "op", fmt.Sprintf("M%d", i), "SEWING", 10, 10))
	}

	f := check.Evaluate(now, monitor.Input{Samples: samples, TotalMachines: 10})
	require.Len(t, f.Alerts, 1)
	assert.Equal(t, models.SeverityHigh, f.Alerts[0].Severity)
	require.Len(t, f.Recommendations, 1)
	assert.Equal(t, models.ResourceReallocation, f.Recommendations[0].Type)

	f = check.Evaluate(now, monitor.Input{Samples: samples, TotalMachines: 9})
	require.Len(t, f.Alerts, 1)
	assert.Equal(t, models.SeverityCritical, f.Alerts[0].Severity)

	f = check.Evaluate(now, monitor.Input{Samples: samples, TotalMachines: 20})
	assert.Empty(t, f.Alerts)

	f = check.Evaluate(now, monitor.Input{Samples: samples})
	assert.Empty(t, f.Alerts)
}

func TestMaintenanceCheck(t *testing.T) {
	check := monitor.MaintenanceCheck{Thresholds: monitor.DefaultThresholds()}

	t.Run("DecliningEfficiency", func(t *testing.T) {
		f := check.Evaluate(now, monitor.Input{Samples: []models.MetricSample{
			sample(90*time.Minute, "op-1", "M4", "PRINTING", 100, 78),
			sample(60*time.Minute, "op-1", "M4", "PRINTING", 100, 72),
			sample(30*time.Minute, "op-1", "M4", "PRINTING", 100, 65),
		}})
		require.Len(t, f.Alerts, 1)
		assert.Equal(t, models.MaintenanceAlert, f.Alerts[0].Type)
		assert.Equal(t, models.SeverityMedium, f.Alerts[0].Severity)
		require.Len(t, f.Recommendations, 1)
		assert.Equal(t, models.MaintenanceAction, f.Recommendations[0].Type)
	})

	t.Run("RisingCycleTime", func(t *testing.T) {
		f := check.Evaluate(now, monitor.Input{Samples: []models.MetricSample{
			sample(30*time.Minute, "op-1", "M5", "PRINTING", 100, 70, cycle(40)),
			sample(90*time.Minute, "op-1", "M5", "PRINTING", 100, 70, cycle(30)),
			sample(60*time.Minute, "op-1", "M5", "PRINTING", 100, 70, cycle(34)),
		}})
		require.Len(t, f.Alerts, 1)
		assert.Contains(t, f.Alerts[0].Description, "cycle time increasing")
	})

	t.Run("TooFewSamples", func(t *testing.T) {
		f := check.Evaluate(now, monitor.Input{Samples: []models.MetricSample{
			sample(60*time.Minute, "op-1", "M4", "PRINTING", 100, 78),
			sample(30*time.Minute, "op-1", "M4", "PRINTING", 100, 60),
		}})
		assert.Empty(t, f.Alerts)
	})

	t.Run("HealthyMean", func(t *testing.T) {
		f := check.Evaluate(now, monitor.Input{Samples: []models.MetricSample{
			sample(90*time.Minute, "op-1", "M4", "PRINTING", 100, 99),
			sample(60*time.Minute, "op-1", "M4", "PRINTING", 100, 95),
			sample(30*time.Minute, "op-1", "M4", "PRINTING", 100, 90),
		}})
		assert.Empty(t, f.Alerts)
	})
}

func TestOpportunityCheck(t *testing.T) {
	check := monitor.OpportunityCheck{Thresholds: monitor.DefaultThresholds()}
	f := check.Evaluate(now, monitor.Input{Samples: []models.MetricSample{
		// 20 pieces x 30s = 10 busy minutes of 60
		sample(10*time.Minute, "op-fast", "M1", "EMBROIDERY", 20, 20, forOrder("o1")),
		sample(10*time.Minute, "op-busy", "M2", "SEWING", 100, 100, forOrder("o1"), cycle(30)),
		sample(20*time.Minute, "op-busy", "M2", "SEWING", 40, 40, forOrder("o2")),
		sample(30*time.Minute, "op-busy", "M2", "SEWING", 10, 10, forOrder("o3")),
	}})

	require.Len(t, f.Recommendations, 2)
	byType := map[models.RecommendationType]models.Recommendation{}
	for _, r := range f.Recommendations {
		byType[r.Type] = r
	}
	assert.Equal(t, "op-fast", byType[models.ResourceReallocation].Subject)
	assert.Equal(t, "SEWING", byType[models.Batching].Subject)
	require.Len(t, f.Alerts, 1)
	assert.Equal(t, models.OpportunityAlert, f.Alerts[0].Type)
	assert.Equal(t, []string{"o1", "o2", "o3"}, f.Alerts[0].AffectedOrders)
}

func TestDelayCheck(t *testing.T) {
	check := monitor.DelayCheck{Thresholds: monitor.DefaultThresholds()}
	f := check.Evaluate(now, monitor.Input{
		Orders: []models.Order{{ID: "o1", Status: models.OpenOrderStatus}, {ID: "o2", Status: models.CancelledOrderStatus}},
		Steps: []models.Step{
			{ID: "s1", OrderID: "o1", Sequence: 1, Status: models.InProgressStepStatus, DueBy: now.Add(-2 * time.Hour)},
			{ID: "s2", OrderID: "o1", Sequence: 2, Status: models.PlannedStepStatus, DueBy: now.Add(-30 * time.Hour)},
			{ID: "s3", OrderID: "o1", Sequence: 3, Status: models.DoneStepStatus, DueBy: now.Add(-30 * time.Hour)},
			{ID: "s4", OrderID: "o1", Sequence: 4, Status: models.ReadyStepStatus, DueBy: now.Add(time.Hour)},
			{ID: "s5", OrderID: "o2", Sequence: 1, Status: models.ReadyStepStatus, DueBy: now.Add(-time.Hour)},
		},
	})
	require.Len(t, f.Alerts, 2)
	assert.Equal(t, "s1", f.Alerts[0].Subject)
	assert.Equal(t, models.SeverityHigh, f.Alerts[0].Severity)
	assert.Equal(t, models.SeverityCritical, f.Alerts[1].Severity)
	assert.Equal(t, []string{"o1"}, f.Alerts[1].AffectedOrders)
}

func TestEvaluate_Sorted(t *testing.T) {
	in := monitor.Input{
		Samples: []models.MetricSample{
			sample(time.Minute, "op-1", "M1", "PRINTING", 100, 70, defects(8)),
			sample(time.Minute, "op-2", "M2", "SEWING", 100, 40, defects(20)),
			sample(time.Minute, "op-3", "M3", "QC", 100, 100, cycle(45)),
		},
		TotalMachines: 3,
	}
	alerts, recs := monitor.New().Evaluate(now, in)
	require.NotEmpty(t, alerts)
	for i := 1; i < len(alerts); i++ {
		assert.GreaterOrEqual(t, alerts[i-1].Severity.Weight(), alerts[i].Severity.Weight())
	}
	for i := 1; i < len(recs); i++ {
		assert.GreaterOrEqual(t, recs[i-1].Urgency.Weight(), recs[i].Urgency.Weight())
	}
	assert.Equal(t, models.SeverityCritical, alerts[0].Severity)
}
