package models

import "time"

type StepStatus string

const (
	PlannedStepStatus    StepStatus = "PLANNED"
	ReadyStepStatus      StepStatus = "READY"
	InProgressStepStatus StepStatus = "IN_PROGRESS"
	DoneStepStatus       StepStatus = "DONE"
	BlockedStepStatus    StepStatus = "BLOCKED"
	CancelledStepStatus  StepStatus = "CANCELLED"
)

// Terminal reports whether no further transitions leave s.
func (s StepStatus) Terminal() bool {
	return s == DoneStepStatus || s == CancelledStepStatus
}

// Step is a routing step of one order.
type Step struct {
	ID            string        `json:"id" db:"id"`                               // UUID
	OrderID       string        `json:"order_id" db:"order_id"`                   // Owning order
	Sequence      int           `json:"sequence" db:"sequence"`                   // 1-based, unique within the order
	Name          string        `json:"name" db:"name"`                           // Template step name
	Workcenter    string        `json:"workcenter" db:"workcenter"`               // Station or function
	Predecessors  []string      `json:"predecessors" db:"-"`                      // Step IDs of the same order
	Join          JoinType      `json:"join" db:"join_type"`                      // ALL or ANY
	Duration      time.Duration `json:"duration" db:"duration"`                   // Standard duration
	DueBy         time.Time     `json:"due_by" db:"due_by"`                       // Backward-scheduled deadline
	Status        StepStatus    `json:"status" db:"status"`                       // Current status
	BlockReason   string        `json:"block_reason,omitempty" db:"block_reason"` // Set while BLOCKED
	Outsourceable bool          `json:"outsourceable" db:"outsourceable"`         // Copied from the template
	StartedAt     *time.Time    `json:"started_at,omitempty" db:"started_at"`     // Nullable start time
	FinishedAt    *time.Time    `json:"finished_at,omitempty" db:"finished_at"`   // Nullable end time
	Version       int           `json:"version" db:"version"`                     // Optimistic concurrency counter
}

// LatestStart is the last moment the step can begin and still meet its due-by.
func (s Step) LatestStart() time.Time {
	return s.DueBy.Add(-s.Duration)
}

// StepDependency links a step to one of its predecessors.
type StepDependency struct {
	StepID    string `json:"step_id" db:"step_id"`       // Step that waits
	DependsOn string `json:"depends_on" db:"depends_on"` // Prerequisite step
	OrderID   string `json:"order_id" db:"order_id"`
}
