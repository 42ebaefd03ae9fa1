package service

import (
	"errors"
	"testing"
	"time"

	"github.com/mantleflow/risk-service/internal/config"
	"github.com/mantleflow/risk-service/internal/escalation"
	"github.com/mantleflow/risk-service/internal/models"
	"github.com/mantleflow/risk-service/internal/notify"
	"github.com/mantleflow/risk-service/internal/risk"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type mockStore struct {
	users        map[string]*models.User
	loans        map[int64]*models.Loan
	nextLoanID   int64
	assessments  []*models.RiskAssessment
	raisedLevels map[int64]int
	auditRows    []*models.EscalationAction
	escalatable  []*models.Loan
	forceError   bool
}

func newMockStore() *mockStore {
	return &mockStore{
		users:        map[string]*models.User{},
		loans:        map[int64]*models.Loan{},
		nextLoanID:   1,
		raisedLevels: map[int64]int{},
	}
}

func (m *mockStore) CreateUser(user *models.User) error {
	if m.forceError {
		return errors.New("store error")
	}
	user.ID = int64(len(m.users) + 1)
	m.users[user.Email] = user
	return nil
}

func (m *mockStore) FindUserByEmail(email string) (*models.User, error) {
	user, ok := m.users[email]
	if !ok {
		return nil, errors.New("user not found")
	}
	return user, nil
}

func (m *mockStore) CreateLoan(loan *models.Loan) error {
	if m.forceError {
		return errors.New("store error")
	}
	loan.ID = m.nextLoanID
	m.nextLoanID++
	m.loans[loan.ID] = loan
	return nil
}

func (m *mockStore) FindLoanByID(id int64) (*models.Loan, error) {
	loan, ok := m.loans[id]
	if !ok {
		return nil, errors.New("loan not found")
	}
	return loan, nil
}

func (m *mockStore) ListEscalatable(now time.Time) ([]*models.Loan, error) {
	if m.forceError {
		return nil, errors.New("store error")
	}
	return m.escalatable, nil
}

func (m *mockStore) SaveRiskAssessment(a *models.RiskAssessment) error {
	m.assessments = append(m.assessments, a)
	return nil
}

func (m *mockStore) RaiseEscalationLevel(loanID int64, level int) (bool, error) {
	prev := m.raisedLevels[loanID]
	if level <= prev {
		return false, nil
	}
	m.raisedLevels[loanID] = level
	return true, nil
}

func (m *mockStore) RecordEscalationAction(a *models.EscalationAction) error {
	m.auditRows = append(m.auditRows, a)
	return nil
}

// passthroughNotifier marks every notification sent without delivering
// anything.
type passthroughNotifier struct {
	dispatched int
}

func (n *passthroughNotifier) Dispatch(decision *escalation.Decision, msg notify.Message) []escalation.ActionRecord {
	n.dispatched++
	out := make([]escalation.ActionRecord, len(decision.Actions))
	copy(out, decision.Actions)
	for i := range out {
		if out[i].Kind == escalation.ActionEmail || out[i].Kind == escalation.ActionSMS {
			out[i].Status = escalation.StatusSent
		}
	}
	return out
}

func newTestService(t *testing.T, store Store, notifier Notifier) *Service {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	engine, err := risk.NewEngine(risk.DefaultConfig(), logger)
	require.NoError(t, err)
	cfg := &config.Config{JWTSecret: "test-secret"}
	return NewService(store, engine, escalation.NewMachine(), notifier, nil, logger, cfg)
}

func ptrF(v float64) *float64 { return &v }
func ptrI(v int) *int         { return &v }

func strongInputs() risk.Inputs {
	return risk.Inputs{
		InvoiceAmount:     40000,
		PaymentTermDays:   30,
		BusinessAgeMonths: 24,
		OSINTScore:        ptrF(90),
		WalletAgeDays:     ptrI(365),
		TxVolume30d:       ptrF(120000),
		PastDefaults:      ptrI(0),
	}
}

func TestRegisterHashesPassword(t *testing.T) {
	store := newMockStore()
	svc := newTestService(t, store, &passthroughNotifier{})

	user, err := svc.Register("alice", "alice@example.com", "s3cret")
	require.NoError(t, err)

	assert.NotEqual(t, "s3cret", user.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("s3cret")))
}

func TestLogin(t *testing.T) {
	store := newMockStore()
	svc := newTestService(t, store, &passthroughNotifier{})

	_, err := svc.Register("alice", "alice@example.com", "s3cret")
	require.NoError(t, err)

	token, err := svc.Login("alice@example.com", "s3cret")
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	_, err = svc.Login("alice@example.com", "wrong")
	assert.Error(t, err)

	_, err = svc.Login("nobody@example.com", "s3cret")
	assert.Error(t, err)
}

func TestOriginateLoanApproved(t *testing.T) {
	store := newMockStore()
	svc := newTestService(t, store, &passthroughNotifier{})
	svc.now = func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) }

	loan, result, err := svc.OriginateLoan(7, "INV-001", "USD", "debtor@example.com", "", strongInputs())
	require.NoError(t, err)
	require.NotNil(t, loan)

	assert.True(t, result.IsApproved)
	assert.Equal(t, "A", loan.Tier)
	assert.Equal(t, 80, loan.LTV)
	assert.Equal(t, 5.0, loan.InterestRate)
	assert.Equal(t, time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC), loan.DueDate)

	require.Len(t, store.assessments, 1)
	assert.Equal(t, loan.ID, store.assessments[0].LoanID)
	assert.True(t, store.assessments[0].IsApproved)
	assert.NotEmpty(t, store.assessments[0].BreakdownJSON)
}

func TestOriginateLoanRejected(t *testing.T) {
	store := newMockStore()
	svc := newTestService(t, store, &passthroughNotifier{})

	in := strongInputs()
	in.BusinessAgeMonths = 3

	loan, result, err := svc.OriginateLoan(7, "INV-002", "USD", "debtor@example.com", "", in)
	require.NoError(t, err)

	assert.Nil(t, loan)
	assert.False(t, result.IsApproved)
	assert.Empty(t, store.loans)

	// The rejected assessment is still recorded.
	require.Len(t, store.assessments, 1)
	assert.False(t, store.assessments[0].IsApproved)
}

func TestGetLoan(t *testing.T) {
	store := newMockStore()
	svc := newTestService(t, store, &passthroughNotifier{})

	created, _, err := svc.OriginateLoan(7, "INV-003", "USD", "debtor@example.com", "", strongInputs())
	require.NoError(t, err)

	loan, err := svc.GetLoan(created.ID)
	require.NoError(t, err)
	assert.Equal(t, "INV-003", loan.InvoiceNumber)

	_, err = svc.GetLoan(99)
	assert.Error(t, err)

	_, err = svc.GetLoan(0)
	var verr *models.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestEscalatePersistsLevelAndAudit(t *testing.T) {
	store := newMockStore()
	notifier := &passthroughNotifier{}
	svc := newTestService(t, store, notifier)

	decision, err := svc.Escalate(EscalateParams{
		LoanID:        42,
		CurrentLevel:  1,
		DaysOverdue:   8,
		BorrowerEmail: "debtor@example.com",
		AmountOwed:    50000,
		Currency:      "USD",
	})
	require.NoError(t, err)

	assert.Equal(t, 4, decision.NewLevel)
	assert.Equal(t, 4, store.raisedLevels[42])
	assert.Equal(t, 1, notifier.dispatched)

	require.Len(t, store.auditRows, len(decision.Actions))
	for _, row := range store.auditRows {
		assert.Equal(t, int64(42), row.LoanID)
		assert.Equal(t, 4, row.Level)
	}
}

func TestEscalateWithoutLoanSkipsPersistence(t *testing.T) {
	store := newMockStore()
	svc := newTestService(t, store, &passthroughNotifier{})

	decision, err := svc.Escalate(EscalateParams{
		CurrentLevel:  0,
		DaysOverdue:   -3,
		BorrowerEmail: "debtor@example.com",
	})
	require.NoError(t, err)

	assert.Equal(t, 1, decision.NewLevel)
	assert.Empty(t, store.raisedLevels)
	assert.Empty(t, store.auditRows)
}

func TestEscalateInvalidLevel(t *testing.T) {
	store := newMockStore()
	notifier := &passthroughNotifier{}
	svc := newTestService(t, store, notifier)

	decision, err := svc.Escalate(EscalateParams{
		LoanID:        42,
		CurrentLevel:  7,
		DaysOverdue:   0,
		BorrowerEmail: "debtor@example.com",
	})
	require.Error(t, err)
	assert.Nil(t, decision)

	var verr *models.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, 0, notifier.dispatched)
	assert.Empty(t, store.raisedLevels)
}

func TestSweepEscalations(t *testing.T) {
	store := newMockStore()
	notifier := &passthroughNotifier{}
	svc := newTestService(t, store, notifier)
	now := time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	store.escalatable = []*models.Loan{
		{
			ID:              1,
			EscalationLevel: 1,
			DueDate:         now.AddDate(0, 0, -8),
			BorrowerEmail:   "late@example.com",
			Amount:          10000,
			Currency:        "USD",
		},
		{
			// Already at a higher level than timing implies; skipped.
			ID:              2,
			EscalationLevel: 3,
			DueDate:         now.AddDate(0, 0, 5),
			BorrowerEmail:   "ontime@example.com",
			Amount:          20000,
			Currency:        "USD",
		},
	}
	store.raisedLevels[1] = 1
	store.raisedLevels[2] = 3

	require.NoError(t, svc.SweepEscalations())

	assert.Equal(t, 4, store.raisedLevels[1])
	assert.Equal(t, 3, store.raisedLevels[2])
	assert.Equal(t, 1, notifier.dispatched)
}
