package models

import "time"

// EscalationAction is the audit row written for every action emitted by an
// escalation decision, with the delivery status recorded by the dispatcher.
type EscalationAction struct {
	ID        int64     `json:"id"`
	LoanID    int64     `json:"loan_id"`
	Level     int       `json:"level"`
	Action    string    `json:"action"`
	Status    string    `json:"status"`
	Recipient string    `json:"recipient,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
