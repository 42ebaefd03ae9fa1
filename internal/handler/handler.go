package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/mantleflow/risk-service/internal/escalation"
	"github.com/mantleflow/risk-service/internal/middleware"
	"github.com/mantleflow/risk-service/internal/models"
	"github.com/mantleflow/risk-service/internal/risk"
	"github.com/mantleflow/risk-service/internal/service"
	"github.com/sirupsen/logrus"
)

type Handler struct {
	svc *service.Service
	log *logrus.Logger
}

func NewHandler(svc *service.Service, log *logrus.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

// envelope is the response wrapper shared by every endpoint
type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (h *Handler) respond(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(envelope{Success: true, Data: data}); err != nil {
		h.log.Errorf("Failed to encode response: %v", err)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if encErr := json.NewEncoder(w).Encode(envelope{Success: false, Error: err.Error()}); encErr != nil {
		h.log.Errorf("Failed to encode error response: %v", encErr)
	}
}

// errStatus maps an error to an HTTP status. Validation failures are the
// caller's fault; everything else is internal.
func errStatus(err error) int {
	var verr *models.ValidationError
	if errors.As(err, &verr) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register handles user registration
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}
	if req.Username == "" || req.Email == "" || req.Password == "" {
		h.respondError(w, http.StatusBadRequest, errors.New("username, email and password are required"))
		return
	}

	user, err := h.svc.Register(req.Username, req.Email, req.Password)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, err)
		return
	}
	h.respond(w, http.StatusCreated, user)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login handles user authentication
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}

	token, err := h.svc.Login(req.Email, req.Password)
	if err != nil {
		h.respondError(w, http.StatusUnauthorized, err)
		return
	}
	h.respond(w, http.StatusOK, map[string]string{"token": token})
}

type riskScoreRequest struct {
	WalletAddress     string   `json:"wallet_address"`
	InvoiceAmount     float64  `json:"invoice_amount"`
	PaymentTermDays   int      `json:"payment_term_days"`
	BusinessAgeMonths int      `json:"debtor_business_age_months"`
	OSINTScore        *float64 `json:"osint_score,omitempty"`
	WalletAgeDays     *int     `json:"wallet_age_days,omitempty"`
	TxVolume30d       *float64 `json:"tx_volume_30d,omitempty"`
	PastDefaults      *int     `json:"past_defaults,omitempty"`
}

// RiskScore computes the risk score for a loan application
func (h *Handler) RiskScore(w http.ResponseWriter, r *http.Request) {
	var req riskScoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}
	if req.WalletAddress == "" {
		h.respondError(w, http.StatusBadRequest, models.NewValidationError("wallet_address", "must not be empty"))
		return
	}

	result, err := h.svc.ScoreApplication(risk.Inputs{
		InvoiceAmount:     req.InvoiceAmount,
		PaymentTermDays:   req.PaymentTermDays,
		BusinessAgeMonths: req.BusinessAgeMonths,
		OSINTScore:        req.OSINTScore,
		WalletAgeDays:     req.WalletAgeDays,
		TxVolume30d:       req.TxVolume30d,
		PastDefaults:      req.PastDefaults,
	})
	if err != nil {
		h.respondError(w, errStatus(err), err)
		return
	}

	h.respond(w, http.StatusOK, map[string]any{
		"total_score":    result.TotalScore,
		"tier":           result.Tier,
		"ltv":            result.LTV,
		"interest_rate":  result.InterestRate,
		"breakdown":      result.BreakdownMap(),
		"recommendation": result.Recommendation,
		"is_approved":    result.IsApproved,
	})
}

// RiskTiers returns the tier definitions and feature weights in use
func (h *Handler) RiskTiers(w http.ResponseWriter, r *http.Request) {
	cfg := h.svc.ScoringConfig()
	h.respond(w, http.StatusOK, map[string]any{
		"tiers": cfg.Bands,
		"features": []map[string]any{
			{"name": risk.FeatureWalletAge, "weight": cfg.Weights.WalletAge, "description": "Borrower wallet age in days"},
			{"name": risk.FeatureTxVolume30d, "weight": cfg.Weights.TxVolume30d, "description": "30-day transaction volume in USD"},
			{"name": risk.FeatureReputation, "weight": cfg.Weights.Reputation, "description": "Debtor historical reputation"},
			{"name": risk.FeatureBusinessAge, "weight": cfg.Weights.BusinessAge, "description": "Debtor business age in months"},
			{"name": risk.FeatureOSINTScore, "weight": cfg.Weights.OSINTScore, "description": "OSINT verification score"},
			{"name": risk.FeatureInvoiceAmount, "weight": cfg.Weights.InvoiceAmount, "description": "Invoice amount in USD"},
			{"name": risk.FeaturePaymentTerm, "weight": cfg.Weights.PaymentTerm, "description": "Payment term in days"},
			{"name": risk.FeatureLoanHistory, "weight": cfg.Weights.LoanHistory, "description": "Past default count"},
		},
		"auto_reject_rules": []string{
			"Business age < 6 months",
			"OSINT score < 30",
			"Total score < 30 (Tier D)",
		},
	})
}

type createLoanRequest struct {
	InvoiceNumber     string   `json:"invoice_number"`
	Currency          string   `json:"currency"`
	BorrowerEmail     string   `json:"borrower_email"`
	BorrowerPhone     string   `json:"borrower_phone,omitempty"`
	InvoiceAmount     float64  `json:"invoice_amount"`
	PaymentTermDays   int      `json:"payment_term_days"`
	BusinessAgeMonths int      `json:"debtor_business_age_months"`
	OSINTScore        *float64 `json:"osint_score,omitempty"`
	WalletAgeDays     *int     `json:"wallet_age_days,omitempty"`
	TxVolume30d       *float64 `json:"tx_volume_30d,omitempty"`
	PastDefaults      *int     `json:"past_defaults,omitempty"`
}

// CreateLoan scores an application and, when approved, originates a loan
// for the authenticated user
func (h *Handler) CreateLoan(w http.ResponseWriter, r *http.Request) {
	subject, ok := middleware.UserID(r.Context())
	if !ok {
		h.respondError(w, http.StatusUnauthorized, errors.New("missing authenticated user"))
		return
	}
	userID, err := strconv.ParseInt(subject, 10, 64)
	if err != nil {
		h.respondError(w, http.StatusUnauthorized, errors.New("invalid user id in token"))
		return
	}

	var req createLoanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}
	if req.InvoiceNumber == "" {
		h.respondError(w, http.StatusBadRequest, models.NewValidationError("invoice_number", "must not be empty"))
		return
	}
	if req.BorrowerEmail == "" {
		h.respondError(w, http.StatusBadRequest, models.NewValidationError("borrower_email", "must not be empty"))
		return
	}
	if req.Currency == "" {
		req.Currency = "USD"
	}

	loan, result, err := h.svc.OriginateLoan(userID, req.InvoiceNumber, req.Currency, req.BorrowerEmail, req.BorrowerPhone, risk.Inputs{
		InvoiceAmount:     req.InvoiceAmount,
		PaymentTermDays:   req.PaymentTermDays,
		BusinessAgeMonths: req.BusinessAgeMonths,
		OSINTScore:        req.OSINTScore,
		WalletAgeDays:     req.WalletAgeDays,
		TxVolume30d:       req.TxVolume30d,
		PastDefaults:      req.PastDefaults,
	})
	if err != nil {
		h.respondError(w, errStatus(err), err)
		return
	}

	payload := map[string]any{
		"is_approved":    result.IsApproved,
		"tier":           result.Tier,
		"total_score":    result.TotalScore,
		"recommendation": result.Recommendation,
	}
	status := http.StatusOK
	if loan != nil {
		payload["loan"] = loan
		status = http.StatusCreated
	}
	h.respond(w, status, payload)
}

// GetLoan returns a single loan by its ID
func (h *Handler) GetLoan(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, errors.New("invalid loan id"))
		return
	}

	loan, err := h.svc.GetLoan(id)
	if err != nil {
		var verr *models.ValidationError
		if errors.As(err, &verr) {
			h.respondError(w, http.StatusBadRequest, err)
			return
		}
		h.respondError(w, http.StatusNotFound, err)
		return
	}
	h.respond(w, http.StatusOK, loan)
}

type escalateRequest struct {
	LoanID        int64   `json:"loan_id"`
	CurrentLevel  int     `json:"current_level"`
	DaysOverdue   int     `json:"days_overdue"`
	BorrowerEmail string  `json:"borrower_email"`
	BorrowerPhone string  `json:"borrower_phone,omitempty"`
	BorrowerName  string  `json:"borrower_name,omitempty"`
	CompanyName   string  `json:"company_name,omitempty"`
	AmountOwed    float64 `json:"amount_owed"`
	Currency      string  `json:"currency"`
}

// Escalate advances a loan on the collection ladder
func (h *Handler) Escalate(w http.ResponseWriter, r *http.Request) {
	var req escalateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}
	if req.BorrowerEmail == "" {
		h.respondError(w, http.StatusBadRequest, errors.New("borrower_email is required"))
		return
	}
	if req.Currency == "" {
		req.Currency = "USD"
	}

	decision, err := h.svc.Escalate(service.EscalateParams{
		LoanID:        req.LoanID,
		CurrentLevel:  req.CurrentLevel,
		DaysOverdue:   req.DaysOverdue,
		BorrowerEmail: req.BorrowerEmail,
		BorrowerPhone: req.BorrowerPhone,
		BorrowerName:  req.BorrowerName,
		CompanyName:   req.CompanyName,
		AmountOwed:    req.AmountOwed,
		Currency:      req.Currency,
	})
	if err != nil {
		h.respondError(w, errStatus(err), err)
		return
	}

	h.respond(w, http.StatusOK, map[string]any{
		"level":           decision.NewLevel,
		"actions_taken":   decision.Actions,
		"next_escalation": decision.Next,
		"message":         decision.Message,
	})
}

type osintRequest struct {
	TaxID string `json:"debtor_tax_id"`
}

// OSINT looks up a debtor in the business registry and returns its
// credibility score
func (h *Handler) OSINT(w http.ResponseWriter, r *http.Request) {
	var req osintRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}

	cred, err := h.svc.CheckCredibility(req.TaxID)
	if err != nil {
		h.respondError(w, errStatus(err), err)
		return
	}
	h.respond(w, http.StatusOK, cred)
}

// EscalationRules returns the ladder definition
func (h *Handler) EscalationRules(w http.ResponseWriter, r *http.Request) {
	levels := make([]map[string]any, 0, escalation.MaxLevel)
	for level := 1; level <= escalation.MaxLevel; level++ {
		levels = append(levels, map[string]any{
			"level":   level,
			"name":    escalation.LevelName(level),
			"trigger": escalation.LevelTrigger(level),
			"actions": escalation.LevelActions(level),
		})
	}
	h.respond(w, http.StatusOK, map[string]any{"levels": levels})
}

// Health reports service liveness
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.respond(w, http.StatusOK, map[string]string{"status": "healthy"})
}
