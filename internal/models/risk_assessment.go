package models

import "time"

// RiskAssessment is the persisted record of one scoring decision.
// The per-feature breakdown is stored as serialized JSON.
type RiskAssessment struct {
	ID             int64     `json:"id"`
	LoanID         int64     `json:"loan_id"`
	TotalScore     float64   `json:"total_score"`
	Tier           string    `json:"tier"`
	LTV            int       `json:"ltv"`
	InterestRate   float64   `json:"interest_rate"`
	IsApproved     bool      `json:"is_approved"`
	Recommendation string    `json:"recommendation"`
	BreakdownJSON  string    `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
}
