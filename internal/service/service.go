package service

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/mantleflow/risk-service/internal/config"
	"github.com/mantleflow/risk-service/internal/escalation"
	"github.com/mantleflow/risk-service/internal/integrations/registry"
	"github.com/mantleflow/risk-service/internal/models"
	"github.com/mantleflow/risk-service/internal/notify"
	"github.com/mantleflow/risk-service/internal/risk"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

// Store is the persistence surface the service needs
type Store interface {
	CreateUser(user *models.User) error
	FindUserByEmail(email string) (*models.User, error)
	CreateLoan(loan *models.Loan) error
	FindLoanByID(id int64) (*models.Loan, error)
	ListEscalatable(now time.Time) ([]*models.Loan, error)
	SaveRiskAssessment(a *models.RiskAssessment) error
	RaiseEscalationLevel(loanID int64, level int) (bool, error)
	RecordEscalationAction(a *models.EscalationAction) error
}

// Notifier delivers the actions an escalation decision emitted
type Notifier interface {
	Dispatch(decision *escalation.Decision, msg notify.Message) []escalation.ActionRecord
}

// CredibilityProvider looks up a debtor in the business registry
type CredibilityProvider interface {
	Lookup(taxID string) (*registry.Credibility, error)
}

// Service handles business logic
type Service struct {
	store    Store
	engine   *risk.Engine
	machine  *escalation.Machine
	notifier Notifier
	registry CredibilityProvider
	log      *logrus.Logger
	config   *config.Config
	now      func() time.Time
}

// NewService initializes a new service
func NewService(store Store, engine *risk.Engine, machine *escalation.Machine, notifier Notifier, reg CredibilityProvider, log *logrus.Logger, cfg *config.Config) *Service {
	return &Service{
		store:    store,
		engine:   engine,
		machine:  machine,
		notifier: notifier,
		registry: reg,
		log:      log,
		config:   cfg,
		now:      time.Now,
	}
}

// CheckCredibility looks up a debtor in the business registry. The returned
// score is NOT fed into scoring automatically; callers pass it to
// ScoreApplication explicitly.
func (s *Service) CheckCredibility(taxID string) (*registry.Credibility, error) {
	if taxID == "" {
		return nil, models.NewValidationError("debtor_tax_id", "must not be empty")
	}
	if s.registry == nil {
		return nil, fmt.Errorf("registry client not configured")
	}
	return s.registry.Lookup(taxID)
}

// Register creates a new user with hashed password
func (s *Service) Register(username, email, password string) (*models.User, error) {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Username:     username,
		Email:        email,
		PasswordHash: string(hashedPassword),
	}

	if err := s.store.CreateUser(user); err != nil {
		return nil, err
	}

	s.log.Infof("User registered: %s", user.Email)
	return user, nil
}

// Login authenticates a user and returns a JWT token
func (s *Service) Login(email, password string) (string, error) {
	user, err := s.store.FindUserByEmail(email)
	if err != nil {
		return "", fmt.Errorf("invalid credentials")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", fmt.Errorf("invalid credentials")
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   fmt.Sprintf("%d", user.ID),
		ExpiresAt: jwt.NewNumericDate(s.now().Add(24 * time.Hour)),
	})
	tokenString, err := token.SignedString([]byte(s.config.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	s.log.Infof("User logged in: %s", user.Email)
	return tokenString, nil
}

// ScoringConfig exposes the engine's scoring constants for the tiers API.
func (s *Service) ScoringConfig() risk.Config {
	return s.engine.Config()
}

// ScoreApplication runs the risk engine over one application. The engine
// rejects malformed inputs before any scoring; a Tier-D outcome is a normal
// result, not an error.
func (s *Service) ScoreApplication(in risk.Inputs) (*risk.Result, error) {
	return s.engine.Score(in)
}

// OriginateLoan scores an application and, when approved, creates the loan
// with the tier's terms and a due date derived from the payment term. The
// assessment is persisted either way.
func (s *Service) OriginateLoan(userID int64, invoiceNumber, currency, borrowerEmail, borrowerPhone string, in risk.Inputs) (*models.Loan, *risk.Result, error) {
	result, err := s.engine.Score(in)
	if err != nil {
		return nil, nil, err
	}

	var loan *models.Loan
	if result.IsApproved {
		loan = &models.Loan{
			UserID:        userID,
			InvoiceNumber: invoiceNumber,
			Amount:        in.InvoiceAmount,
			Currency:      currency,
			Tier:          string(result.Tier),
			LTV:           result.LTV,
			InterestRate:  result.InterestRate,
			DueDate:       s.now().AddDate(0, 0, in.PaymentTermDays),
			BorrowerEmail: borrowerEmail,
			BorrowerPhone: borrowerPhone,
		}
		if err := s.store.CreateLoan(loan); err != nil {
			return nil, nil, err
		}
	}

	assessment := &models.RiskAssessment{
		TotalScore:     result.TotalScore,
		Tier:           string(result.Tier),
		LTV:            result.LTV,
		InterestRate:   result.InterestRate,
		IsApproved:     result.IsApproved,
		Recommendation: result.Recommendation,
	}
	if loan != nil {
		assessment.LoanID = loan.ID
	}
	if breakdown, err := json.Marshal(result.BreakdownMap()); err == nil {
		assessment.BreakdownJSON = string(breakdown)
	}
	if err := s.store.SaveRiskAssessment(assessment); err != nil {
		s.log.Errorf("Failed to persist risk assessment: %v", err)
	}

	s.log.Infof("Application scored: tier %s, approved=%t", result.Tier, result.IsApproved)
	return loan, result, nil
}

// GetLoan retrieves a loan by its ID
func (s *Service) GetLoan(id int64) (*models.Loan, error) {
	if id <= 0 {
		return nil, models.NewValidationError("loan_id", "must be positive")
	}
	return s.store.FindLoanByID(id)
}

// EscalateParams is the caller-supplied escalation context
type EscalateParams struct {
	LoanID        int64
	CurrentLevel  int
	DaysOverdue   int
	BorrowerEmail string
	BorrowerPhone string
	BorrowerName  string
	CompanyName   string
	AmountOwed    float64
	Currency      string
}

// Escalate runs the ladder for one loan, dispatches the due actions, and
// persists the new level and the action audit trail. The decision stage is
// pure; everything with side effects happens here.
func (s *Service) Escalate(p EscalateParams) (*escalation.Decision, error) {
	decision, err := s.machine.Decide(escalation.Input{
		CurrentLevel: p.CurrentLevel,
		DaysOverdue:  p.DaysOverdue,
		Email:        p.BorrowerEmail,
		Phone:        p.BorrowerPhone,
	})
	if err != nil {
		return nil, err
	}

	msg := notify.Message{
		BorrowerName: p.BorrowerName,
		CompanyName:  p.CompanyName,
		Amount:       p.AmountOwed,
		Currency:     p.Currency,
		DueDate:      s.now().AddDate(0, 0, -p.DaysOverdue),
		DaysOverdue:  p.DaysOverdue,
	}
	decision.Actions = s.notifier.Dispatch(decision, msg)

	if p.LoanID != 0 {
		raised, err := s.store.RaiseEscalationLevel(p.LoanID, decision.NewLevel)
		if err != nil {
			return nil, err
		}
		if raised {
			s.log.Infof("Loan %d escalated to level %d (%s)", p.LoanID, decision.NewLevel, decision.Name)
		}
		for _, rec := range decision.Actions {
			audit := &models.EscalationAction{
				LoanID:    p.LoanID,
				Level:     decision.NewLevel,
				Action:    string(rec.Kind),
				Status:    string(rec.Status),
				Recipient: rec.Recipient,
			}
			if err := s.store.RecordEscalationAction(audit); err != nil {
				s.log.Errorf("Failed to record escalation action for loan %d: %v", p.LoanID, err)
			}
		}
	}

	return decision, nil
}

// SweepEscalations runs the ladder over every loan in or past the reminder
// window. Called by the scheduler; loans already at or above the level their
// timing implies are skipped so a sweep never re-sends notifications.
func (s *Service) SweepEscalations() error {
	now := s.now()
	loans, err := s.store.ListEscalatable(now)
	if err != nil {
		return fmt.Errorf("escalation sweep failed: %w", err)
	}

	for _, loan := range loans {
		daysOverdue := loan.DaysOverdue(now)
		implied := escalation.ImpliedLevel(daysOverdue)
		if implied <= loan.EscalationLevel {
			continue
		}

		_, err := s.Escalate(EscalateParams{
			LoanID:        loan.ID,
			CurrentLevel:  loan.EscalationLevel,
			DaysOverdue:   daysOverdue,
			BorrowerEmail: loan.BorrowerEmail,
			BorrowerPhone: loan.BorrowerPhone,
			AmountOwed:    loan.Amount,
			Currency:      loan.Currency,
		})
		if err != nil {
			s.log.Errorf("Failed to escalate loan %d: %v", loan.ID, err)
		}
	}

	s.log.Infof("Escalation sweep completed: %d loans checked", len(loans))
	return nil
}
