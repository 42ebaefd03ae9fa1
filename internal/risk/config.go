package risk

// Tier is a discrete risk class determining loan terms.
type Tier string

const (
	TierA Tier = "A"
	TierB Tier = "B"
	TierC Tier = "C"
	TierD Tier = "D"
)

// TierBand maps a score range to loan terms. Bands are evaluated
// highest-first; a score belongs to the first band whose MinScore it reaches.
type TierBand struct {
	Tier         Tier    `json:"tier"`
	MinScore     float64 `json:"min_score"`
	LTV          int     `json:"ltv"`
	InterestRate float64 `json:"interest_rate"`
	Description  string  `json:"description"`
}

// Weights holds the percentage weight of each scoring feature.
// The eight weights must sum to exactly 100.
type Weights struct {
	WalletAge     int
	TxVolume30d   int
	Reputation    int
	BusinessAge   int
	OSINTScore    int
	InvoiceAmount int
	PaymentTerm   int
	LoanHistory   int
}

// Total returns the sum of all feature weights.
func (w Weights) Total() int {
	return w.WalletAge + w.TxVolume30d + w.Reputation + w.BusinessAge +
		w.OSINTScore + w.InvoiceAmount + w.PaymentTerm + w.LoanHistory
}

// Config carries all scoring constants. It is passed to the engine at
// construction and never mutated afterwards, so alternate thresholds can be
// exercised in tests without touching shared state.
type Config struct {
	Weights Weights

	// Bands in descending MinScore order. The last band is the reject
	// tier and must have MinScore 0.
	Bands []TierBand

	// Auto-reject thresholds. A business younger than
	// MinBusinessAgeMonths, or an OSINT score (when supplied) below
	// MinOSINTScore, forces the reject tier regardless of total score.
	MinBusinessAgeMonths int
	MinOSINTScore        float64
}

// DefaultConfig returns the production scoring constants.
func DefaultConfig() Config {
	return Config{
		Weights: Weights{
			WalletAge:     10,
			TxVolume30d:   15,
			Reputation:    15,
			BusinessAge:   15,
			OSINTScore:    15,
			InvoiceAmount: 10,
			PaymentTerm:   5,
			LoanHistory:   10,
		},
		Bands: []TierBand{
			{Tier: TierA, MinScore: 80, LTV: 80, InterestRate: 5.0, Description: "Excellent credit - lowest risk"},
			{Tier: TierB, MinScore: 50, LTV: 60, InterestRate: 8.0, Description: "Good credit - moderate risk"},
			{Tier: TierC, MinScore: 30, LTV: 40, InterestRate: 12.0, Description: "Fair credit - elevated risk"},
			{Tier: TierD, MinScore: 0, LTV: 0, InterestRate: 0, Description: "Poor credit - rejected"},
		},
		MinBusinessAgeMonths: 6,
		MinOSINTScore:        30,
	}
}

// Classify resolves the tier band for a total score. Bands are
// left-inclusive: a score equal to MinScore falls into that band.
func (c Config) Classify(totalScore float64) TierBand {
	for _, band := range c.Bands {
		if totalScore >= band.MinScore {
			return band
		}
	}
	return c.rejectBand()
}

func (c Config) rejectBand() TierBand {
	return c.Bands[len(c.Bands)-1]
}
