package models

import "time"

type WorkUnitStatus string

const (
	CreatedWorkUnitStatus    WorkUnitStatus = "CREATED"
	InProgressWorkUnitStatus WorkUnitStatus = "IN_PROGRESS"
	DoneWorkUnitStatus       WorkUnitStatus = "DONE"
	RejectedWorkUnitStatus   WorkUnitStatus = "REJECTED"
	CancelledWorkUnitStatus  WorkUnitStatus = "CANCELLED"
)

func (s WorkUnitStatus) Terminal() bool {
	return s == DoneWorkUnitStatus || s == RejectedWorkUnitStatus || s == CancelledWorkUnitStatus
}

// WorkUnit is a traceable bundle of pieces cut for an order.
type WorkUnit struct {
	ID        string         `json:"id" db:"id"`                     // UUID
	OrderID   string         `json:"order_id" db:"order_id"`         // Owning order
	StepID    string         `json:"step_id,omitempty" db:"step_id"` // Step the bundle is currently tied to
	ScanCode  string         `json:"scan_code" db:"scan_code"`       // Globally unique barcode / QR value
	Quantity  int            `json:"quantity" db:"quantity"`         // Pieces; immutable after creation
	Status    WorkUnitStatus `json:"status" db:"status"`
	Version   int            `json:"version" db:"version"` // Optimistic concurrency counter
	CreatedAt time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt time.Time      `json:"updated_at" db:"updated_at"`
	History   []Transition   `json:"history" db:"-"` // Append-only audit trail
}

// OutputQuantity is the quantity recorded in terminal states; zero while the unit is open.
func (u WorkUnit) OutputQuantity() (good, rejected int) {
	switch u.Status {
	case DoneWorkUnitStatus:
		return u.Quantity, 0
	case RejectedWorkUnitStatus:
		return 0, u.Quantity
	}
	return 0, 0
}

// Transition is one entry of a work unit's history.
type Transition struct {
	UnitID string         `json:"unit_id" db:"unit_id"`
	At     time.Time      `json:"at" db:"at"`
	Actor  string         `json:"actor" db:"actor"`
	From   WorkUnitStatus `json:"from" db:"from_status"`
	To     WorkUnitStatus `json:"to" db:"to_status"`
	Reason string         `json:"reason,omitempty" db:"reason"`
}
