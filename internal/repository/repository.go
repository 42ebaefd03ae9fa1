package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/mantleflow/risk-service/internal/models"
)

// Repository provides database operations
type Repository struct {
	db *sql.DB
}

// NewRepository initializes a new repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// CreateUser creates a new user in the database
func (r *Repository) CreateUser(user *models.User) error {
	query := `
		INSERT INTO mantleflow.users (username, email, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		RETURNING id, created_at, updated_at`
	err := r.db.QueryRow(query, user.Username, user.Email, user.PasswordHash).
		Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// FindUserByEmail retrieves a user by email
func (r *Repository) FindUserByEmail(email string) (*models.User, error) {
	user := &models.User{}
	query := `
		SELECT id, username, email, password_hash, created_at, updated_at
		FROM mantleflow.users
		WHERE email = $1`
	err := r.db.QueryRow(query, email).
		Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return user, nil
}

// CreateLoan creates a new loan in the database
func (r *Repository) CreateLoan(loan *models.Loan) error {
	query := `
		INSERT INTO mantleflow.loans
			(user_id, invoice_number, amount, currency, tier, ltv, interest_rate,
			 due_date, escalation_level, borrower_email, borrower_phone, settled,
			 created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		RETURNING id, created_at, updated_at`
	err := r.db.QueryRow(query,
		loan.UserID, loan.InvoiceNumber, loan.Amount, loan.Currency, loan.Tier,
		loan.LTV, loan.InterestRate, loan.DueDate, loan.EscalationLevel,
		loan.BorrowerEmail, loan.BorrowerPhone, loan.Settled).
		Scan(&loan.ID, &loan.CreatedAt, &loan.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create loan: %w", err)
	}
	return nil
}

// FindLoanByID retrieves a loan by its ID
func (r *Repository) FindLoanByID(id int64) (*models.Loan, error) {
	loan := &models.Loan{}
	query := `
		SELECT id, user_id, invoice_number, amount, currency, tier, ltv,
		       interest_rate, due_date, escalation_level, borrower_email,
		       borrower_phone, settled, created_at, updated_at
		FROM mantleflow.loans
		WHERE id = $1`
	err := r.db.QueryRow(query, id).
		Scan(&loan.ID, &loan.UserID, &loan.InvoiceNumber, &loan.Amount,
			&loan.Currency, &loan.Tier, &loan.LTV, &loan.InterestRate,
			&loan.DueDate, &loan.EscalationLevel, &loan.BorrowerEmail,
			&loan.BorrowerPhone, &loan.Settled, &loan.CreatedAt, &loan.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("loan not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find loan: %w", err)
	}
	return loan, nil
}

// ListEscalatable returns unsettled loans whose due date is within the
// reminder window or already past, ordered by due date. The window matches
// the first ladder level (3 days before due).
func (r *Repository) ListEscalatable(now time.Time) ([]*models.Loan, error) {
	query := `
		SELECT id, user_id, invoice_number, amount, currency, tier, ltv,
		       interest_rate, due_date, escalation_level, borrower_email,
		       borrower_phone, settled, created_at, updated_at
		FROM mantleflow.loans
		WHERE settled = FALSE AND due_date <= $1
		ORDER BY due_date`
	rows, err := r.db.Query(query, now.AddDate(0, 0, 3))
	if err != nil {
		return nil, fmt.Errorf("failed to list escalatable loans: %w", err)
	}
	defer rows.Close()

	var loans []*models.Loan
	for rows.Next() {
		loan := &models.Loan{}
		if err := rows.Scan(&loan.ID, &loan.UserID, &loan.InvoiceNumber,
			&loan.Amount, &loan.Currency, &loan.Tier, &loan.LTV,
			&loan.InterestRate, &loan.DueDate, &loan.EscalationLevel,
			&loan.BorrowerEmail, &loan.BorrowerPhone, &loan.Settled,
			&loan.CreatedAt, &loan.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan loan: %w", err)
		}
		loans = append(loans, loan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate loans: %w", err)
	}
	return loans, nil
}

// SaveRiskAssessment persists one scoring decision
func (r *Repository) SaveRiskAssessment(a *models.RiskAssessment) error {
	query := `
		INSERT INTO mantleflow.risk_assessments
			(loan_id, total_score, tier, ltv, interest_rate, is_approved,
			 recommendation, breakdown, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, CURRENT_TIMESTAMP)
		RETURNING id, created_at`
	err := r.db.QueryRow(query, a.LoanID, a.TotalScore, a.Tier, a.LTV,
		a.InterestRate, a.IsApproved, a.Recommendation, a.BreakdownJSON).
		Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save risk assessment: %w", err)
	}
	return nil
}

// RaiseEscalationLevel moves a loan's escalation level upward. The guard in
// the WHERE clause keeps the level monotonic under concurrent escalations:
// a stale writer with a lower target level updates nothing. Returns whether
// a row was updated.
func (r *Repository) RaiseEscalationLevel(loanID int64, level int) (bool, error) {
	query := `
		UPDATE mantleflow.loans
		SET escalation_level = $2, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND escalation_level < $2`
	res, err := r.db.Exec(query, loanID, level)
	if err != nil {
		return false, fmt.Errorf("failed to raise escalation level: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n > 0, nil
}

// RecordEscalationAction appends one action audit row
func (r *Repository) RecordEscalationAction(a *models.EscalationAction) error {
	query := `
		INSERT INTO mantleflow.escalation_actions
			(loan_id, level, action, status, recipient, created_at)
		VALUES ($1, $2, $3, $4, $5, CURRENT_TIMESTAMP)
		RETURNING id, created_at`
	err := r.db.QueryRow(query, a.LoanID, a.Level, a.Action, a.Status, a.Recipient).
		Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record escalation action: %w", err)
	}
	return nil
}
