package risk

import (
	"fmt"
	"math"

	"github.com/mantleflow/risk-service/internal/models"
	"github.com/sirupsen/logrus"
)

// Feature names used as breakdown keys, in evaluation order.
const (
	FeatureWalletAge     = "wallet_age"
	FeatureTxVolume30d   = "tx_volume_30d"
	FeatureReputation    = "debtor_reputation"
	FeatureBusinessAge   = "debtor_business_age"
	FeatureOSINTScore    = "debtor_osint_score"
	FeatureInvoiceAmount = "invoice_amount"
	FeaturePaymentTerm   = "payment_term_days"
	FeatureLoanHistory   = "past_loan_history"
)

// Defaults applied when an optional input is absent.
const (
	defaultWalletAgeDays = 365
	defaultTxVolume30d   = 10000
	defaultOSINTScore    = 70
	placeholderRepScore  = 70
)

// Inputs is an immutable snapshot of everything the engine scores on.
// Pointer fields are optional; nil resolves to a documented default so that
// an explicit zero is never confused with "not supplied".
type Inputs struct {
	InvoiceAmount     float64
	PaymentTermDays   int
	BusinessAgeMonths int

	OSINTScore    *float64
	WalletAgeDays *int
	TxVolume30d   *float64
	PastDefaults  *int
}

// FeatureScore is the per-feature result: a normalized 0-100 score, the
// feature's fixed weight, and the weighted contribution to the total.
type FeatureScore struct {
	Name        string  `json:"-"`
	Score       float64 `json:"score"`
	Weight      int     `json:"weight"`
	Weighted    float64 `json:"weighted"`
	RawValue    any     `json:"raw_value"`
	Description string  `json:"description"`
}

// Result is the outcome of one scoring call. A new instance is produced on
// every call and never mutated afterwards.
type Result struct {
	TotalScore     float64
	Tier           Tier
	LTV            int
	InterestRate   float64
	IsApproved     bool
	Breakdown      []FeatureScore
	Recommendation string
}

// BreakdownMap returns the per-feature breakdown keyed by feature name, the
// shape the API exposes.
func (r *Result) BreakdownMap() map[string]FeatureScore {
	m := make(map[string]FeatureScore, len(r.Breakdown))
	for _, fs := range r.Breakdown {
		m[fs.Name] = fs
	}
	return m
}

// Engine orchestrates feature evaluation, aggregation, tier classification
// and the auto-reject policy. It holds no mutable state; concurrent Score
// calls are safe.
type Engine struct {
	cfg Config
	log *logrus.Logger
}

// NewEngine builds a scoring engine from an immutable config. The feature
// weights must sum to exactly 100.
func NewEngine(cfg Config, log *logrus.Logger) (*Engine, error) {
	if total := cfg.Weights.Total(); total != 100 {
		return nil, fmt.Errorf("feature weights must sum to 100, got %d", total)
	}
	if len(cfg.Bands) == 0 {
		return nil, fmt.Errorf("at least one tier band is required")
	}
	return &Engine{cfg: cfg, log: log}, nil
}

// Config returns the engine's scoring constants.
func (e *Engine) Config() Config {
	return e.cfg
}

// Validate checks the structurally required inputs. Absent optional fields
// are never an error; supplied values must be in range.
func (in Inputs) Validate() error {
	if in.InvoiceAmount <= 0 {
		return models.NewValidationError("invoice_amount", "must be a positive amount, got %v", in.InvoiceAmount)
	}
	if in.PaymentTermDays <= 0 {
		return models.NewValidationError("payment_term_days", "must be a positive number of days, got %d", in.PaymentTermDays)
	}
	if in.BusinessAgeMonths < 0 {
		return models.NewValidationError("debtor_business_age_months", "must not be negative, got %d", in.BusinessAgeMonths)
	}
	if in.OSINTScore != nil && (*in.OSINTScore < 0 || *in.OSINTScore > 100) {
		return models.NewValidationError("osint_score", "must be within [0,100], got %v", *in.OSINTScore)
	}
	if in.WalletAgeDays != nil && *in.WalletAgeDays < 0 {
		return models.NewValidationError("wallet_age_days", "must not be negative, got %d", *in.WalletAgeDays)
	}
	if in.TxVolume30d != nil && *in.TxVolume30d < 0 {
		return models.NewValidationError("tx_volume_30d", "must not be negative, got %v", *in.TxVolume30d)
	}
	if in.PastDefaults != nil && *in.PastDefaults < 0 {
		return models.NewValidationError("past_defaults", "must not be negative, got %d", *in.PastDefaults)
	}
	return nil
}

// Score runs the full decision cycle: evaluate features, aggregate, classify,
// then apply the auto-reject policy. It never fails for well-formed inputs.
func (e *Engine) Score(in Inputs) (*Result, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	breakdown := e.Evaluate(in)
	total := Aggregate(breakdown)
	band := e.cfg.Classify(total)

	approved := band.Tier != e.cfg.rejectBand().Tier
	reasons := e.RejectReasons(in)
	if len(reasons) > 0 {
		approved = false
		band = e.cfg.rejectBand()
	}

	var recommendation string
	if approved {
		recommendation = fmt.Sprintf("APPROVE - Tier %s: LTV %d%%, Rate %.1f%%", band.Tier, band.LTV, band.InterestRate)
	} else {
		reason := "Score too low"
		if len(reasons) > 0 {
			reason = reasons[0]
		}
		recommendation = fmt.Sprintf("REJECT - %s", reason)
	}

	result := &Result{
		TotalScore:     total,
		Tier:           band.Tier,
		LTV:            band.LTV,
		InterestRate:   band.InterestRate,
		IsApproved:     approved,
		Breakdown:      breakdown,
		Recommendation: recommendation,
	}

	e.log.WithFields(logrus.Fields{
		"total_score": total,
		"tier":        band.Tier,
		"approved":    approved,
	}).Info("Risk score computed")

	return result, nil
}

// Evaluate normalizes every feature to a 0-100 score and attaches its
// weighted contribution. Exactly eight entries are returned, one per
// feature, in a fixed order.
func (e *Engine) Evaluate(in Inputs) []FeatureScore {
	w := e.cfg.Weights

	walletAge := defaultWalletAgeDays
	if in.WalletAgeDays != nil {
		walletAge = *in.WalletAgeDays
	}
	walletScore := math.Min(100, float64(walletAge)/365*100)

	txVol := float64(defaultTxVolume30d)
	if in.TxVolume30d != nil {
		txVol = *in.TxVolume30d
	}
	var txScore float64
	switch {
	case txVol >= 100000:
		txScore = 100
	case txVol >= 50000:
		txScore = 80
	case txVol >= 10000:
		txScore = 60
	default:
		txScore = 40
	}

	// No external reputation signal reaches this engine; a fixed neutral
	// placeholder keeps the weight accounted for.
	repScore := float64(placeholderRepScore)

	var ageScore float64
	switch {
	case in.BusinessAgeMonths < 6:
		ageScore = 0
	case in.BusinessAgeMonths < 12:
		ageScore = 40
	case in.BusinessAgeMonths < 24:
		ageScore = 70
	default:
		ageScore = 100
	}

	osint := float64(defaultOSINTScore)
	if in.OSINTScore != nil {
		osint = *in.OSINTScore
	}

	var invoiceScore float64
	switch {
	case in.InvoiceAmount < 50000:
		invoiceScore = 100
	case in.InvoiceAmount < 100000:
		invoiceScore = 70
	case in.InvoiceAmount < 500000:
		invoiceScore = 50
	default:
		invoiceScore = 30
	}

	var termScore float64
	switch {
	case in.PaymentTermDays <= 30:
		termScore = 100
	case in.PaymentTermDays <= 60:
		termScore = 80
	case in.PaymentTermDays <= 90:
		termScore = 60
	default:
		termScore = 40
	}

	defaults := 0
	if in.PastDefaults != nil {
		defaults = *in.PastDefaults
	}
	var historyScore float64
	switch {
	case defaults == 0:
		historyScore = 100
	case defaults == 1:
		historyScore = 50
	default:
		historyScore = 0
	}

	return []FeatureScore{
		feature(FeatureWalletAge, walletScore, w.WalletAge, walletAge, fmt.Sprintf("Wallet age: %d days", walletAge)),
		feature(FeatureTxVolume30d, txScore, w.TxVolume30d, txVol, fmt.Sprintf("30-day volume: $%.0f", txVol)),
		feature(FeatureReputation, repScore, w.Reputation, "Good", "Debtor reputation: Good"),
		feature(FeatureBusinessAge, ageScore, w.BusinessAge, in.BusinessAgeMonths, fmt.Sprintf("Business age: %d months", in.BusinessAgeMonths)),
		feature(FeatureOSINTScore, osint, w.OSINTScore, osint, fmt.Sprintf("OSINT score: %g", osint)),
		feature(FeatureInvoiceAmount, invoiceScore, w.InvoiceAmount, in.InvoiceAmount, fmt.Sprintf("Invoice: $%.0f", in.InvoiceAmount)),
		feature(FeaturePaymentTerm, termScore, w.PaymentTerm, in.PaymentTermDays, fmt.Sprintf("Payment term: %d days", in.PaymentTermDays)),
		feature(FeatureLoanHistory, historyScore, w.LoanHistory, defaults, fmt.Sprintf("Past defaults: %d", defaults)),
	}
}

func feature(name string, score float64, weight int, raw any, desc string) FeatureScore {
	return FeatureScore{
		Name:        name,
		Score:       score,
		Weight:      weight,
		Weighted:    score * float64(weight) / 100,
		RawValue:    raw,
		Description: desc,
	}
}

// Aggregate sums the weighted contributions and rounds to two decimals.
// With weights summing to 100 and scores within [0,100] the total is always
// within [0,100].
func Aggregate(breakdown []FeatureScore) float64 {
	var total float64
	for _, fs := range breakdown {
		total += fs.Weighted
	}
	return math.Round(total*100) / 100
}

// RejectReasons returns every auto-reject condition the inputs trip, in
// priority order. Rejection applies whenever the slice is non-empty; the
// first entry is the reason surfaced to the caller.
func (e *Engine) RejectReasons(in Inputs) []string {
	var reasons []string
	if in.BusinessAgeMonths < e.cfg.MinBusinessAgeMonths {
		reasons = append(reasons, fmt.Sprintf("Business age < %d months", e.cfg.MinBusinessAgeMonths))
	}
	if in.OSINTScore != nil && *in.OSINTScore < e.cfg.MinOSINTScore {
		reasons = append(reasons, fmt.Sprintf("OSINT score < %g", e.cfg.MinOSINTScore))
	}
	return reasons
}
