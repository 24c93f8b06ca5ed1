package models

import "time"

// MetricSample is one shop-floor observation for an operator at a machine.
type MetricSample struct {
	ID            string    `json:"id" db:"id"`                         // UUID, assigned at ingestion when empty
	Workspace     string    `json:"workspace" db:"workspace"`           // Plant / tenant
	Timestamp     time.Time `json:"timestamp" db:"ts"`                  // Observation time
	OperatorID    string    `json:"operator_id" db:"operator_id"`       // Operator performing the work
	MachineID     string    `json:"machine_id" db:"machine_id"`         // Machine or station used
	OperationType string    `json:"operation_type" db:"operation_type"` // e.g. PRINTING, SEWING
	OrderID       string    `json:"order_id,omitempty" db:"order_id"`   // Order being worked, if known
	StepID        string    `json:"step_id,omitempty" db:"step_id"`     // Routing step being worked, if known
	TargetQty     int       `json:"target_qty" db:"target_qty"`         // Planned pieces for the interval
	CompletedQty  int       `json:"completed_qty" db:"completed_qty"`   // Pieces produced
	DefectQty     int       `json:"defect_qty" db:"defect_qty"`         // Pieces found defective
	CycleTime     float64   `json:"cycle_time" db:"cycle_time"`         // Actual seconds per piece
	StandardTime  float64   `json:"standard_time" db:"standard_time"`   // Standard seconds per piece
	Temperature   *float64  `json:"temperature,omitempty" db:"temperature"`
	Humidity      *float64  `json:"humidity,omitempty" db:"humidity"`
	Late          bool      `json:"late" db:"late"` // Arrived after its window was evaluated
}

// Efficiency is completed over target as a percentage; zero when no target was set.
func (s MetricSample) Efficiency() float64 {
	if s.TargetQty <= 0 {
		return 0
	}
	return float64(s.CompletedQty) / float64(s.TargetQty) * 100
}

type AlertType string

const (
	EfficiencyAlert  AlertType = "efficiency"
	QualityAlert     AlertType = "quality"
	CapacityAlert    AlertType = "capacity"
	MaintenanceAlert AlertType = "maintenance"
	DelayAlert       AlertType = "delay"
	OpportunityAlert AlertType = "opportunity"
)

type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
)

// Weight ranks severities for sorting, CRITICAL highest.
func (s Severity) Weight() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	}
	return 0
}

// Alert is a detected operational problem.
type Alert struct {
	ID             string    `json:"id"`
	Workspace      string    `json:"workspace"`
	Type           AlertType `json:"type"`
	Severity       Severity  `json:"severity"`
	Subject        string    `json:"subject"` // Operator, machine, operation type or step the alert concerns
	AffectedOrders []string  `json:"affected_orders"`
	AffectedSteps  []string  `json:"affected_steps"`
	Description    string    `json:"description"`
	Recommendation string    `json:"recommendation"`
	AutoActions    []string  `json:"auto_actions"`
	Resolved       bool      `json:"resolved"`
	CreatedAt      time.Time `json:"created_at"`
	ExpiresAt      time.Time `json:"expires_at"`
}

type RecommendationType string

const (
	ProcessImprovement   RecommendationType = "process_improvement"
	ResourceReallocation RecommendationType = "resource_reallocation"
	MaintenanceAction    RecommendationType = "maintenance"
	Batching             RecommendationType = "batching"
)

type Urgency string

const (
	UrgencyUrgent Urgency = "URGENT"
	UrgencyHigh   Urgency = "HIGH"
	UrgencyMedium Urgency = "MEDIUM"
	UrgencyLow    Urgency = "LOW"
)

func (u Urgency) Weight() int {
	switch u {
	case UrgencyUrgent:
		return 4
	case UrgencyHigh:
		return 3
	case UrgencyMedium:
		return 2
	case UrgencyLow:
		return 1
	}
	return 0
}

// Recommendation is an optimization suggestion.
type Recommendation struct {
	ID              string             `json:"id"`
	Workspace       string             `json:"workspace"`
	Type            RecommendationType `json:"type"`
	Subject         string             `json:"subject"`
	Description     string             `json:"description"`
	ExpectedBenefit string             `json:"expected_benefit"`
	Confidence      float64            `json:"confidence"` // 0..1
	Urgency         Urgency            `json:"urgency"`
	CreatedAt       time.Time          `json:"created_at"`
	ExpiresAt       time.Time          `json:"expires_at"`
}
