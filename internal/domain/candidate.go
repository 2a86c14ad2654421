package domain

import "time"

// Coord addresses a tile in the delta×volatility grid of a surface layer.
type Coord struct {
	X int `json:"x" yaml:"x"`
	Y int `json:"y" yaml:"y"`
}

// Chebyshev returns the Chebyshev (king-move) distance between two coordinates.
func (c Coord) Chebyshev(o Coord) int {
	dx := c.X - o.X
	if dx < 0 {
		dx = -dx
	}
	dy := c.Y - o.Y
	if dy < 0 {
		dy = -dy
	}
	if dx > dy {
		return dx
	}
	return dy
}

// Less orders coordinates lexicographically (X then Y). Used wherever a fixed
// iteration order is required for deterministic reproducibility.
func (c Coord) Less(o Coord) bool {
	if c.X != o.X {
		return c.X < o.X
	}
	return c.Y < o.Y
}

// Leg describes one option leg of a structure: the longer-dated long leg or
// the nearer-dated short leg.
type Leg struct {
	Delta float64 `json:"delta" yaml:"delta"`
	IV    float64 `json:"iv" yaml:"iv"`
}

// Candidate is a proposed capital-constrained structure awaiting admission.
type Candidate struct {
	Symbol       string  `json:"symbol" yaml:"symbol"`
	Entry        Coord   `json:"entry" yaml:"entry"`
	Target       Coord   `json:"target" yaml:"target"`
	LongLeg      Leg     `json:"long_leg" yaml:"long_leg"`
	ShortLeg     Leg     `json:"short_leg" yaml:"short_leg"`
	CostEstimate float64 `json:"cost_estimate" yaml:"cost_estimate"` // net debit, USD
	EdgeEstimate float64 `json:"edge_estimate" yaml:"edge_estimate"` // modeled edge, USD
}

// MarketSnapshot carries the pre-resolved market inputs the engine consumes.
// All retrieval happens upstream; the engine never blocks on I/O.
type MarketSnapshot struct {
	Spot            float64 `json:"spot" yaml:"spot"`
	VolatilityIndex float64 `json:"volatility_index" yaml:"volatility_index"`
	IVStability     float64 `json:"iv_stability" yaml:"iv_stability"`       // [0,1]
	HistorySuccess  float64 `json:"history_success" yaml:"history_success"` // [0,1]
}

// AccountSnapshot carries the pre-resolved account inputs.
type AccountSnapshot struct {
	Equity float64 `json:"equity" yaml:"equity"`
	Margin float64 `json:"margin" yaml:"margin"`
}

// DisjunctionEvent is an externally detected abnormal volume or IV swing.
// The flag decay engine keys its severity ladder off the most recent one.
type DisjunctionEvent struct {
	Symbol    string    `json:"symbol" yaml:"symbol"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	Kind      string    `json:"kind,omitempty" yaml:"kind,omitempty"`
}
