package score

import (
	"math"
	"sort"

	"github.com/volgate/volgate/internal/domain"
)

// Strategy selects how accumulated penalty maps to a bounded [0,1] score.
type Strategy string

const (
	// StrategyLinear maps penalty/threshold linearly onto [1,0].
	StrategyLinear Strategy = "linear"
	// StrategyLogarithmic is more sensitive near zero, flatter near threshold.
	StrategyLogarithmic Strategy = "logarithmic"
	// StrategySampledMean applies the linear map to the arithmetic mean of a penalty set.
	StrategySampledMean Strategy = "sampled_mean"
	// StrategyWeighted rank-weights a penalty set ascending before the linear
	// map, penalizing high outliers more than a plain mean.
	StrategyWeighted Strategy = "weighted_distribution"
)

// NormalizerConfig is the score-normalization section of the engine config.
type NormalizerConfig struct {
	Strategy  Strategy `yaml:"strategy" json:"strategy"`
	Threshold float64  `yaml:"threshold" json:"threshold"`
}

// DefaultNormalizerConfig returns the linear strategy with the production threshold.
func DefaultNormalizerConfig() NormalizerConfig {
	return NormalizerConfig{Strategy: StrategyLinear, Threshold: 100.0}
}

// Validate checks the normalizer configuration.
func (c NormalizerConfig) Validate() error {
	switch c.Strategy {
	case StrategyLinear, StrategyLogarithmic, StrategySampledMean, StrategyWeighted:
	default:
		return domain.NewInputError("normalizer.strategy", "unknown strategy %q", c.Strategy)
	}
	if c.Threshold <= 0 {
		return domain.NewInputError("normalizer.threshold", "threshold %.4f must be > 0", c.Threshold)
	}
	return nil
}

// DistributionBased reports whether the strategy consumes a penalty set
// rather than a single accumulated penalty.
func (c NormalizerConfig) DistributionBased() bool {
	return c.Strategy == StrategySampledMean || c.Strategy == StrategyWeighted
}

// Normalizer maps accumulated penalties to bounded scores. All strategies
// round to 4 decimals.
type Normalizer struct {
	cfg NormalizerConfig
}

// NewNormalizer builds a normalizer from a validated config.
func NewNormalizer(cfg NormalizerConfig) (*Normalizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Normalizer{cfg: cfg}, nil
}

// Score normalizes a single accumulated penalty. The distribution strategies
// degrade to their underlying map on a singleton set.
func (n *Normalizer) Score(penalty float64) float64 {
	switch n.cfg.Strategy {
	case StrategyLogarithmic:
		return n.logarithmic(penalty)
	default:
		return n.linear(penalty)
	}
}

// ScoreSet normalizes a distribution of penalties. An empty set scores zero:
// no admissible samples means no evidence of a cheap route.
func (n *Normalizer) ScoreSet(penalties []float64) float64 {
	if len(penalties) == 0 {
		return 0
	}
	switch n.cfg.Strategy {
	case StrategyLinear:
		return n.linear(penalties[0])
	case StrategyLogarithmic:
		return n.logarithmic(penalties[0])
	case StrategySampledMean:
		sum := 0.0
		for _, p := range penalties {
			sum += p
		}
		return n.linear(sum / float64(len(penalties)))
	case StrategyWeighted:
		sorted := make([]float64, len(penalties))
		copy(sorted, penalties)
		sort.Float64s(sorted)
		var weighted, weightSum float64
		for i, p := range sorted {
			w := float64(i + 1)
			weighted += w * p
			weightSum += w
		}
		return n.linear(weighted / weightSum)
	default:
		return n.linear(penalties[0])
	}
}

func (n *Normalizer) linear(penalty float64) float64 {
	return round4(1 - clampRatio(penalty, n.cfg.Threshold))
}

func (n *Normalizer) logarithmic(penalty float64) float64 {
	r := clampRatio(penalty, n.cfg.Threshold)
	return round4(1 - math.Log1p(9*r)/math.Log1p(10))
}

func clampRatio(penalty, threshold float64) float64 {
	r := penalty / threshold
	if r < 0 {
		return 0
	}
	if r > 1 {
		return 1
	}
	return r
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
