package monitor

import "time"

// Thresholds configures the built-in checks. Percentages are 0..100.
type Thresholds struct {
	EfficiencyWindow   time.Duration
	EfficiencyCritical float64 // operator mean efficiency below this is CRITICAL
	EfficiencyLow      float64 // below this is MEDIUM
	MachineVariance    float64 // mean |cycle-standard|/standard above this fraction is HIGH

	QualityWindow  time.Duration
	DefectHigh     float64
	DefectCritical float64

	CapacityWindow      time.Duration
	UtilizationHigh     float64
	UtilizationCritical float64

	MaintenanceWindow     time.Duration
	MaintenanceMinSamples int
	TrendShare            float64 // share of consecutive pairs that must move the same way
	MaintenanceEfficiency float64

	OpportunityWindow      time.Duration
	HighPerformer          float64
	LowUtilization         float64
	BatchingDistinctOrders int

	DelayCritical time.Duration // overdue by more than this is CRITICAL
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		EfficiencyWindow:   60 * time.Minute,
		EfficiencyCritical: 60,
		EfficiencyLow:      75,
		MachineVariance:    0.15,

		QualityWindow:  60 * time.Minute,
		DefectHigh:     5,
		DefectCritical: 10,

		CapacityWindow:      15 * time.Minute,
		UtilizationHigh:     85,
		UtilizationCritical: 95,

		MaintenanceWindow:     120 * time.Minute,
		MaintenanceMinSamples: 3,
		TrendShare:            0.6,
		MaintenanceEfficiency: 80,

		OpportunityWindow:      60 * time.Minute,
		HighPerformer:          90,
		LowUtilization:         70,
		BatchingDistinctOrders: 3,

		DelayCritical: 24 * time.Hour,
	}
}
