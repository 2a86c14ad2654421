package gates

import (
	"fmt"

	"github.com/volgate/volgate/internal/domain"
)

// DeltaBand bounds an acceptable leg delta.
type DeltaBand struct {
	Min float64 `yaml:"min" json:"min"`
	Max float64 `yaml:"max" json:"max"`
}

func (b DeltaBand) contains(v float64) bool {
	return v >= b.Min && v <= b.Max
}

// Config contains the hard gates and confidence tiers of the classifier.
type Config struct {
	// Hard gates, evaluated before confidence is even consulted.
	VolAbortCeiling float64   `yaml:"vol_abort_ceiling" json:"vol_abort_ceiling"`
	DeltaLongBand   DeltaBand `yaml:"delta_long_band" json:"delta_long_band"`
	DeltaShortBand  DeltaBand `yaml:"delta_short_band" json:"delta_short_band"`

	// Confidence tier thresholds, strictly increasing.
	TierMin  float64 `yaml:"tier_min" json:"tier_min"`   // below: REJECT
	TierSoft float64 `yaml:"tier_soft" json:"tier_soft"` // [min,soft): LIMITED_OK
	TierFull float64 `yaml:"tier_full" json:"tier_full"` // [soft,full): EXPAND_BIN, >=full: FULL_OK
}

// DefaultConfig returns the production classifier thresholds.
func DefaultConfig() Config {
	return Config{
		VolAbortCeiling: 40.0,
		DeltaLongBand:   DeltaBand{Min: 0.55, Max: 0.85},
		DeltaShortBand:  DeltaBand{Min: 0.15, Max: 0.45},
		TierMin:         0.55,
		TierSoft:        0.75,
		TierFull:        0.92,
	}
}

// Validate checks tier ordering and band sanity.
func (c Config) Validate() error {
	if !(c.TierMin < c.TierSoft && c.TierSoft < c.TierFull) {
		return domain.NewInputError("classifier.tiers",
			"thresholds must satisfy min < soft < full, got %.4f/%.4f/%.4f", c.TierMin, c.TierSoft, c.TierFull)
	}
	if c.DeltaLongBand.Min >= c.DeltaLongBand.Max || c.DeltaShortBand.Min >= c.DeltaShortBand.Max {
		return domain.NewInputError("classifier.delta_bands", "band min must be below max")
	}
	if c.VolAbortCeiling <= 0 {
		return domain.NewInputError("classifier.vol_abort_ceiling", "ceiling must be > 0")
	}
	return nil
}

// Check is the result of a single gate evaluation.
type Check struct {
	Name        string      `json:"name"`
	Passed      bool        `json:"passed"`
	Value       interface{} `json:"value"`
	Threshold   interface{} `json:"threshold"`
	Description string      `json:"description"`
}

// Result carries the classified outcome with per-gate reasoning.
type Result struct {
	Outcome        domain.Outcome    `json:"outcome"`
	Confidence     float64           `json:"confidence"`
	Checks         map[string]*Check `json:"checks"`
	FailureReasons []string          `json:"failure_reasons"`
}

// Classifier applies hard abort/reject gates first, then buckets confidence
// into the four admission tiers.
type Classifier struct {
	cfg Config
}

// NewClassifier builds a classifier from a validated config.
func NewClassifier(cfg Config) (*Classifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Classifier{cfg: cfg}, nil
}

// Classify evaluates the hard gates and confidence tiers for one candidate.
func (cl *Classifier) Classify(cand domain.Candidate, volIndex, confidence float64) *Result {
	res := &Result{
		Confidence: confidence,
		Checks:     make(map[string]*Check),
	}

	volCheck := &Check{
		Name:        "volatility_ceiling",
		Value:       volIndex,
		Threshold:   cl.cfg.VolAbortCeiling,
		Passed:      volIndex < cl.cfg.VolAbortCeiling,
		Description: fmt.Sprintf("volatility index %.1f < abort ceiling %.1f", volIndex, cl.cfg.VolAbortCeiling),
	}
	res.Checks["volatility_ceiling"] = volCheck
	if !volCheck.Passed {
		res.Outcome = domain.OutcomeAbort
		res.FailureReasons = append(res.FailureReasons,
			fmt.Sprintf("volatility index %.1f at or above abort ceiling %.1f", volIndex, cl.cfg.VolAbortCeiling))
		return res
	}

	longCheck := &Check{
		Name:        "delta_long_band",
		Value:       cand.LongLeg.Delta,
		Threshold:   cl.cfg.DeltaLongBand,
		Passed:      cl.cfg.DeltaLongBand.contains(cand.LongLeg.Delta),
		Description: fmt.Sprintf("long delta %.2f within [%.2f, %.2f]", cand.LongLeg.Delta, cl.cfg.DeltaLongBand.Min, cl.cfg.DeltaLongBand.Max),
	}
	shortCheck := &Check{
		Name:        "delta_short_band",
		Value:       cand.ShortLeg.Delta,
		Threshold:   cl.cfg.DeltaShortBand,
		Passed:      cl.cfg.DeltaShortBand.contains(cand.ShortLeg.Delta),
		Description: fmt.Sprintf("short delta %.2f within [%.2f, %.2f]", cand.ShortLeg.Delta, cl.cfg.DeltaShortBand.Min, cl.cfg.DeltaShortBand.Max),
	}
	res.Checks["delta_long_band"] = longCheck
	res.Checks["delta_short_band"] = shortCheck
	for _, check := range []*Check{longCheck, shortCheck} {
		if !check.Passed {
			res.FailureReasons = append(res.FailureReasons, check.Description+" FAILED")
		}
	}
	if !longCheck.Passed || !shortCheck.Passed {
		res.Outcome = domain.OutcomeReject
		return res
	}

	tierCheck := &Check{
		Name:      "confidence_tier",
		Value:     confidence,
		Threshold: fmt.Sprintf("min=%.2f soft=%.2f full=%.2f", cl.cfg.TierMin, cl.cfg.TierSoft, cl.cfg.TierFull),
	}
	switch {
	case confidence < cl.cfg.TierMin:
		res.Outcome = domain.OutcomeReject
		res.FailureReasons = append(res.FailureReasons,
			fmt.Sprintf("confidence %.4f below minimum tier %.2f", confidence, cl.cfg.TierMin))
	case confidence < cl.cfg.TierSoft:
		res.Outcome = domain.OutcomeLimitedOK
		tierCheck.Passed = true
	case confidence < cl.cfg.TierFull:
		res.Outcome = domain.OutcomeExpandBin
		tierCheck.Passed = true
	default:
		res.Outcome = domain.OutcomeFullOK
		tierCheck.Passed = true
	}
	tierCheck.Description = fmt.Sprintf("confidence %.4f buckets to %s", confidence, res.Outcome)
	res.Checks["confidence_tier"] = tierCheck

	return res
}
