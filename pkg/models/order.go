package models

import "time"

type OrderStatus string

const (
	OpenOrderStatus      OrderStatus = "OPEN"
	CompletedOrderStatus OrderStatus = "COMPLETED"
	CancelledOrderStatus OrderStatus = "CANCELLED"
)

// Order is a customer production request routed through a production method.
type Order struct {
	ID             string           `json:"id" db:"id"`                             // UUID
	Workspace      string           `json:"workspace" db:"workspace"`               // Tenant / plant the order belongs to
	Reference      string           `json:"reference,omitempty" db:"reference"`     // External PO or order number
	Method         ProductionMethod `json:"method" db:"method"`                     // Production method used for routing
	Quantity       int              `json:"quantity" db:"quantity"`                 // Pieces ordered
	TargetDate     time.Time        `json:"target_date" db:"target_date"`           // Target completion date
	Status         OrderStatus      `json:"status" db:"status"`                     // OPEN, COMPLETED, CANCELLED
	ScheduleAtRisk bool             `json:"schedule_at_risk" db:"schedule_at_risk"` // First step due before creation time
	Version        int              `json:"version" db:"version"`                   // Bumped by every step mutation of the order
	CreatedAt      time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at" db:"updated_at"`
}
