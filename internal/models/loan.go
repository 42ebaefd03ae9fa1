package models

import "time"

// Loan represents a financed invoice and its collection state. The
// escalation level is persisted here between escalation calls and only ever
// moves upward.
type Loan struct {
	ID              int64     `json:"id"`
	UserID          int64     `json:"user_id"`
	InvoiceNumber   string    `json:"invoice_number"`
	Amount          float64   `json:"amount"`
	Currency        string    `json:"currency"`
	Tier            string    `json:"tier"`
	LTV             int       `json:"ltv"`
	InterestRate    float64   `json:"interest_rate"`
	DueDate         time.Time `json:"due_date"`
	EscalationLevel int       `json:"escalation_level"`
	BorrowerEmail   string    `json:"borrower_email"`
	BorrowerPhone   string    `json:"borrower_phone,omitempty"`
	Settled         bool      `json:"settled"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// DaysOverdue returns days past the due date at the given instant, negative
// while the due date is still ahead.
func (l *Loan) DaysOverdue(now time.Time) int {
	return int(now.Sub(l.DueDate).Hours() / 24)
}
