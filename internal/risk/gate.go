package risk

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/volgate/volgate/internal/domain"
)

// TradeConfig bounds a single candidate numerically.
type TradeConfig struct {
	MinEdge           float64 `yaml:"min_edge" json:"min_edge"`                       // minimum modeled edge, USD
	DebitCeiling      float64 `yaml:"debit_ceiling" json:"debit_ceiling"`             // maximum net debit, USD
	MaxDebitEdgeRatio float64 `yaml:"max_debit_edge_ratio" json:"max_debit_edge_ratio"`
	VolCeiling        float64 `yaml:"vol_ceiling" json:"vol_ceiling"`
}

// EquityTier maps an account size band to its daily-loss tolerance. Smaller
// accounts get looser percentage limits: a fixed-dollar floor would otherwise
// shut them out after routine noise.
type EquityTier struct {
	MaxEquity       float64 `yaml:"max_equity" json:"max_equity"` // 0 = unbounded top tier
	MaxDailyLossPct float64 `yaml:"max_daily_loss_pct" json:"max_daily_loss_pct"`
}

// AggregateConfig bounds the session as a whole.
type AggregateConfig struct {
	Tiers              []EquityTier `yaml:"tiers" json:"tiers"`
	LossStreakCount    int          `yaml:"loss_streak_count" json:"loss_streak_count"`
	MaxTradeLossPct    float64      `yaml:"max_trade_loss_pct" json:"max_trade_loss_pct"`       // single fill loss that freezes the session
	ThrottleTriggerPct float64      `yaml:"throttle_trigger_pct" json:"throttle_trigger_pct"`   // soft day-loss trigger
	ThrottleScale      float64      `yaml:"throttle_scale" json:"throttle_scale"`               // sizing scale while throttled
	CarryoverPct       float64      `yaml:"carryover_pct" json:"carryover_pct"`                 // prior-day loss, as a share of the day limit, that carries a caution
}

// Config is the full risk gate configuration.
type Config struct {
	Trade     TradeConfig     `yaml:"trade" json:"trade"`
	Aggregate AggregateConfig `yaml:"aggregate" json:"aggregate"`
}

// DefaultConfig returns the production risk gate thresholds: five
// equity-size tiers, loosest at the bottom.
func DefaultConfig() Config {
	return Config{
		Trade: TradeConfig{
			MinEdge:           0.05,
			DebitCeiling:      7500,
			MaxDebitEdgeRatio: 40,
			VolCeiling:        40,
		},
		Aggregate: AggregateConfig{
			Tiers: []EquityTier{
				{MaxEquity: 2000, MaxDailyLossPct: 0.08},
				{MaxEquity: 25000, MaxDailyLossPct: 0.06},
				{MaxEquity: 100000, MaxDailyLossPct: 0.05},
				{MaxEquity: 250000, MaxDailyLossPct: 0.04},
				{MaxEquity: 0, MaxDailyLossPct: 0.03},
			},
			LossStreakCount:    3,
			MaxTradeLossPct:    0.015,
			ThrottleTriggerPct: 0.025,
			ThrottleScale:      0.5,
			CarryoverPct:       0.5,
		},
	}
}

// Validate checks tier ordering and numeric sanity.
func (c Config) Validate() error {
	if len(c.Aggregate.Tiers) == 0 {
		return domain.NewInputError("risk.tiers", "at least one equity tier required")
	}
	prev := 0.0
	for i, tier := range c.Aggregate.Tiers {
		last := i == len(c.Aggregate.Tiers)-1
		if !last && tier.MaxEquity <= prev {
			return domain.NewInputError("risk.tiers", "tier %d max_equity %.0f not increasing", i, tier.MaxEquity)
		}
		if last && tier.MaxEquity != 0 {
			return domain.NewInputError("risk.tiers", "top tier must be unbounded (max_equity 0)")
		}
		if tier.MaxDailyLossPct <= 0 {
			return domain.NewInputError("risk.tiers", "tier %d loss pct must be > 0", i)
		}
		prev = tier.MaxEquity
	}
	if c.Trade.MaxDebitEdgeRatio <= 0 || c.Trade.DebitCeiling <= 0 {
		return domain.NewInputError("risk.trade", "debit ceiling and ratio must be > 0")
	}
	if c.Aggregate.LossStreakCount < 2 {
		return domain.NewInputError("risk.loss_streak_count", "streak count %d must be >= 2", c.Aggregate.LossStreakCount)
	}
	return nil
}

// Verdict is the risk gate decision for one candidate with the precedence
// ladder already applied: shutdown > daily shutout > caution > allowed.
type Verdict struct {
	Allowed       bool     `json:"allowed"`
	Notice        bool     `json:"notice"`         // allowed, with caution flags
	Reasons       []string `json:"reasons"`        // block or caution reasons
	ThrottleScale float64  `json:"throttle_scale"` // 1.0 unless throttled
	DayLoss       float64  `json:"day_loss"`
	DayLimit      float64  `json:"day_limit"`
}

// Gate is the final per-trade and session-aggregate numeric guard.
type Gate struct {
	mu  sync.Mutex
	cfg Config

	equity         float64
	realizedLoss   float64 // positive number, accumulated losing PnL
	unrealizedLoss float64
	fills          []float64 // per-fill PnL for streak detection
	priorDayLoss   float64
	frozen         bool
	frozenReason   string
}

// NewGate builds a risk gate for the session's account equity.
func NewGate(cfg Config, equity float64) (*Gate, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if equity <= 0 {
		return nil, domain.NewInputError("risk.equity", "equity %.2f must be > 0", equity)
	}
	return &Gate{cfg: cfg, equity: equity}, nil
}

// dayLimit returns the equity-tiered daily loss limit in dollars.
func (g *Gate) dayLimit() float64 {
	for _, tier := range g.cfg.Aggregate.Tiers {
		if tier.MaxEquity == 0 || g.equity < tier.MaxEquity {
			return g.equity * tier.MaxDailyLossPct
		}
	}
	last := g.cfg.Aggregate.Tiers[len(g.cfg.Aggregate.Tiers)-1]
	return g.equity * last.MaxDailyLossPct
}

// Evaluate runs the per-trade guards then the session aggregate for one
// candidate. It never mutates state.
func (g *Gate) Evaluate(edge, debit, volIndex float64) Verdict {
	g.mu.Lock()
	defer g.mu.Unlock()

	v := Verdict{ThrottleScale: 1.0, DayLimit: g.dayLimit()}
	v.DayLoss = g.realizedLoss + g.unrealizedLoss

	// Per-trade guards. Any failure is a shutdown flag for this candidate.
	if edge < g.cfg.Trade.MinEdge {
		v.Reasons = append(v.Reasons, fmt.Sprintf("edge %.4f below minimum %.4f", edge, g.cfg.Trade.MinEdge))
	}
	if debit > g.cfg.Trade.DebitCeiling {
		v.Reasons = append(v.Reasons, fmt.Sprintf("debit %.2f above ceiling %.2f", debit, g.cfg.Trade.DebitCeiling))
	}
	if edge > 0 && debit/edge > g.cfg.Trade.MaxDebitEdgeRatio {
		v.Reasons = append(v.Reasons, fmt.Sprintf("debit/edge ratio %.1f above maximum %.1f", debit/edge, g.cfg.Trade.MaxDebitEdgeRatio))
	}
	if volIndex > g.cfg.Trade.VolCeiling {
		v.Reasons = append(v.Reasons, fmt.Sprintf("volatility index %.1f above ceiling %.1f", volIndex, g.cfg.Trade.VolCeiling))
	}
	if g.frozen {
		v.Reasons = append(v.Reasons, "session frozen: "+g.frozenReason)
	}
	if len(v.Reasons) > 0 {
		return v // blocked: shutdown flags take precedence
	}

	// Daily shutout.
	if v.DayLoss >= v.DayLimit {
		v.Reasons = append(v.Reasons,
			fmt.Sprintf("daily loss %.2f at or above tiered limit %.2f", v.DayLoss, v.DayLimit))
		return v
	}

	// Caution flags: allowed with notice.
	if streak := g.lossStreak(); streak >= g.cfg.Aggregate.LossStreakCount {
		v.Notice = true
		v.Reasons = append(v.Reasons, fmt.Sprintf("%d-trade loss streak", streak))
	}
	if g.priorDayLoss >= g.cfg.Aggregate.CarryoverPct*v.DayLimit {
		v.Notice = true
		v.Reasons = append(v.Reasons,
			fmt.Sprintf("prior-day loss %.2f carries over (>= %.0f%% of day limit)", g.priorDayLoss, g.cfg.Aggregate.CarryoverPct*100))
	}
	if v.DayLoss >= g.cfg.Aggregate.ThrottleTriggerPct*g.equity {
		v.Notice = true
		v.ThrottleScale = g.cfg.Aggregate.ThrottleScale
		v.Reasons = append(v.Reasons, fmt.Sprintf("throttled: day loss %.2f past soft trigger, sizing scaled to %.0f%%",
			v.DayLoss, v.ThrottleScale*100))
	}

	v.Allowed = true
	return v
}

func (g *Gate) lossStreak() int {
	streak := 0
	for i := len(g.fills) - 1; i >= 0; i-- {
		if g.fills[i] >= 0 {
			break
		}
		streak++
	}
	return streak
}

// RecordFill feeds a realized PnL into the day aggregates. The close path
// itself is external; only the number arrives here. A single fill losing more
// than the per-trade drawdown limit freezes the session.
func (g *Gate) RecordFill(pnl float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fills = append(g.fills, pnl)
	if pnl < 0 {
		g.realizedLoss += -pnl
		if -pnl > g.cfg.Aggregate.MaxTradeLossPct*g.equity && !g.frozen {
			g.frozen = true
			g.frozenReason = fmt.Sprintf("single-trade loss %.2f exceeded %.2f%% of equity", -pnl, g.cfg.Aggregate.MaxTradeLossPct*100)
			log.Warn().Float64("pnl", pnl).Msg("risk gate frozen on single-trade loss")
		}
	}
}

// SetUnrealizedLoss updates the open-position loss mark (positive number).
func (g *Gate) SetUnrealizedLoss(loss float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if loss < 0 {
		loss = 0
	}
	g.unrealizedLoss = loss
}

// ResetDay starts a new session: counters clear and yesterday's loss becomes
// the carryover input.
func (g *Gate) ResetDay(equity, priorDayLoss float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if equity > 0 {
		g.equity = equity
	}
	g.realizedLoss = 0
	g.unrealizedLoss = 0
	g.fills = nil
	g.priorDayLoss = priorDayLoss
	g.frozen = false
	g.frozenReason = ""
}
