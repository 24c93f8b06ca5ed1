package models

import "time"

// StepLog tracks the history of step status changes for auditing.
type StepLog struct {
	ID       int64      `json:"id" db:"id"`                     // Auto-incremented log ID
	StepID   string     `json:"step_id" db:"step_id"`           // Step being logged
	OrderID  string     `json:"order_id" db:"order_id"`         // Parent order
	From     StepStatus `json:"from" db:"from_status"`          // Status before the change
	To       StepStatus `json:"to" db:"to_status"`              // Status after the change
	Actor    string     `json:"actor" db:"actor"`               // Who or what caused the change
	Message  string     `json:"message,omitempty" db:"message"` // Details (e.g., block reason)
	LoggedAt time.Time  `json:"logged_at" db:"logged_at"`       // Timestamp of log entry
}
