package score

import (
	"math"

	"github.com/volgate/volgate/internal/domain"
)

// Weights blend the four confidence components. They are configuration, not
// literals, and must sum to 1.
type Weights struct {
	DeltaAlignment float64 `yaml:"delta_alignment" json:"delta_alignment"`
	IVStability    float64 `yaml:"iv_stability" json:"iv_stability"`
	Surface        float64 `yaml:"surface" json:"surface"`
	History        float64 `yaml:"history" json:"history"`
}

// EstimatorConfig is the confidence section of the engine config.
type EstimatorConfig struct {
	Weights         Weights `yaml:"weights" json:"weights"`
	IdealDeltaLong  float64 `yaml:"ideal_delta_long" json:"ideal_delta_long"`
	IdealDeltaShort float64 `yaml:"ideal_delta_short" json:"ideal_delta_short"`
	DeltaSpread     float64 `yaml:"delta_spread" json:"delta_spread"`
}

// DefaultEstimatorConfig returns the production confidence weighting.
func DefaultEstimatorConfig() EstimatorConfig {
	return EstimatorConfig{
		Weights: Weights{
			DeltaAlignment: 0.25,
			IVStability:    0.25,
			Surface:        0.25,
			History:        0.25,
		},
		IdealDeltaLong:  0.70,
		IdealDeltaShort: 0.30,
		DeltaSpread:     0.04,
	}
}

// Validate checks the estimator configuration.
func (c EstimatorConfig) Validate() error {
	sum := c.Weights.DeltaAlignment + c.Weights.IVStability + c.Weights.Surface + c.Weights.History
	if math.Abs(sum-1.0) > 1e-9 {
		return domain.NewInputError("confidence.weights", "weights sum to %.4f, want 1.0", sum)
	}
	if c.DeltaSpread <= 0 {
		return domain.NewInputError("confidence.delta_spread", "spread %.4f must be > 0", c.DeltaSpread)
	}
	return nil
}

// Inputs are the pre-resolved signals feeding one confidence estimate.
type Inputs struct {
	DeltaLong        float64
	DeltaShort       float64
	IVStability      float64
	SurfaceScore     float64
	HistorySuccess   float64
	LiquidityPenalty float64
}

// Confidence is a [0,1] value plus its component breakdown for audit.
type Confidence struct {
	Value      float64            `json:"value"`
	Components map[string]float64 `json:"components"`
}

// Estimator combines surface score with delta-alignment, volatility-stability
// and historical-success signals into one confidence value.
type Estimator struct {
	cfg EstimatorConfig
}

// NewEstimator builds an estimator from a validated config.
func NewEstimator(cfg EstimatorConfig) (*Estimator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Estimator{cfg: cfg}, nil
}

// Estimate computes the weighted confidence, damped by the liquidity penalty
// and clamped to [0,1], rounded to 4 decimals.
func (e *Estimator) Estimate(in Inputs) Confidence {
	dl := in.DeltaLong - e.cfg.IdealDeltaLong
	ds := in.DeltaShort - e.cfg.IdealDeltaShort
	deltaScore := 1 - (dl*dl+ds*ds)/e.cfg.DeltaSpread
	if deltaScore < 0 {
		deltaScore = 0
	}

	raw := e.cfg.Weights.DeltaAlignment*deltaScore +
		e.cfg.Weights.IVStability*in.IVStability +
		e.cfg.Weights.Surface*in.SurfaceScore +
		e.cfg.Weights.History*in.HistorySuccess

	damping := 1 - clamp01(in.LiquidityPenalty)
	value := round4(clamp01(raw * damping))

	return Confidence{
		Value: value,
		Components: map[string]float64{
			"delta_alignment":   round4(deltaScore),
			"iv_stability":      round4(in.IVStability),
			"surface":           round4(in.SurfaceScore),
			"history":           round4(in.HistorySuccess),
			"liquidity_damping": round4(damping),
			"raw":               round4(raw),
		},
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
