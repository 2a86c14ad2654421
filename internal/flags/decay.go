package flags

import (
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/volgate/volgate/internal/domain"
)

// Severity is the decayed flag level for a symbol.
type Severity string

const (
	SeverityNone   Severity = "NONE"
	SeverityYellow Severity = "YELLOW"
	SeverityOrange Severity = "ORANGE"
	SeverityRed    Severity = "RED"
)

// Config holds the decay ladder and escalation parameters.
type Config struct {
	// Elapsed-minute boundaries of the severity ladder.
	RedWindowMinutes    float64 `yaml:"red_window_minutes" json:"red_window_minutes"`       // < this: RED
	OrangeWindowMinutes float64 `yaml:"orange_window_minutes" json:"orange_window_minutes"` // < this: ORANGE, >=: YELLOW

	// Consecutive RED evaluations beyond this ceiling revoke buy permission
	// until an explicit session reset.
	RedCeiling int `yaml:"red_ceiling" json:"red_ceiling"`

	// Diagnostic-only decay weight parameters, all over elapsed minutes.
	DecayK            float64 `yaml:"decay_k" json:"decay_k"`
	HalfLifeMinutes   float64 `yaml:"half_life_minutes" json:"half_life_minutes"`
	FadeWindowMinutes float64 `yaml:"fade_window_minutes" json:"fade_window_minutes"`
}

// DefaultConfig returns the production flag decay parameters.
func DefaultConfig() Config {
	return Config{
		RedWindowMinutes:    60,
		OrangeWindowMinutes: 120,
		RedCeiling:          5,
		DecayK:              6,
		HalfLifeMinutes:     15,
		FadeWindowMinutes:   20,
	}
}

// Validate checks the decay configuration.
func (c Config) Validate() error {
	if c.RedWindowMinutes <= 0 || c.OrangeWindowMinutes <= c.RedWindowMinutes {
		return domain.NewInputError("flags.windows",
			"windows must satisfy 0 < red < orange, got %.1f/%.1f", c.RedWindowMinutes, c.OrangeWindowMinutes)
	}
	if c.RedCeiling < 1 {
		return domain.NewInputError("flags.red_ceiling", "ceiling %d must be >= 1", c.RedCeiling)
	}
	if c.HalfLifeMinutes <= 0 || c.FadeWindowMinutes <= 0 {
		return domain.NewInputError("flags.decay", "half-life and fade window must be > 0")
	}
	return nil
}

// State is the serializable per-symbol flag state.
type State struct {
	Severity       Severity  `json:"severity"`
	ConsecutiveRed int       `json:"consecutive_red"`
	Revoked        bool      `json:"revoked"`
	LastEvent      time.Time `json:"last_event"`
}

// Assessment is the result of one flag evaluation. Idempotent per identical
// inputs except for the consecutive-RED counter mutation.
type Assessment struct {
	Symbol         string             `json:"symbol"`
	Severity       Severity           `json:"severity"`
	ConsecutiveRed int                `json:"consecutive_red"`
	BuyPermission  bool               `json:"buy_permission"`
	ElapsedMinutes float64            `json:"elapsed_minutes"`
	DecayWeights   map[string]float64 `json:"decay_weights,omitempty"`
}

type symbolState struct {
	mu             sync.Mutex
	consecutiveRed int
	revoked        bool
	lastEvent      time.Time
	severity       Severity
}

// Engine tracks elapsed time since the last market-disjunction event per
// symbol and escalates severity. State is session-scoped and explicitly
// owned: nothing here is a process-wide global.
type Engine struct {
	cfg   Config
	clock func() time.Time

	mu      sync.RWMutex
	symbols map[string]*symbolState
}

// NewEngine builds a flag decay engine.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{cfg: cfg, clock: time.Now, symbols: make(map[string]*symbolState)}, nil
}

// SetClock injects a deterministic clock. Tests only.
func (e *Engine) SetClock(clock func() time.Time) { e.clock = clock }

func (e *Engine) symbol(sym string) *symbolState {
	e.mu.RLock()
	st, ok := e.symbols[sym]
	e.mu.RUnlock()
	if ok {
		return st
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if st, ok = e.symbols[sym]; ok {
		return st
	}
	st = &symbolState{severity: SeverityNone}
	e.symbols[sym] = st
	return st
}

// Evaluate derives severity from the most recent disjunction event for the
// symbol, escalates the consecutive-RED counter, and revokes buy permission
// once the counter exceeds the configured ceiling.
func (e *Engine) Evaluate(sym string, history []domain.DisjunctionEvent) Assessment {
	st := e.symbol(sym)
	st.mu.Lock()
	defer st.mu.Unlock()

	var last time.Time
	for _, ev := range history {
		if ev.Symbol == sym && ev.Timestamp.After(last) {
			last = ev.Timestamp
		}
	}

	a := Assessment{Symbol: sym}
	if last.IsZero() {
		st.severity = SeverityNone
		st.consecutiveRed = 0
		a.Severity = SeverityNone
		a.BuyPermission = !st.revoked
		return a
	}

	st.lastEvent = last
	elapsed := e.clock().Sub(last).Minutes()
	if elapsed < 0 {
		elapsed = 0
	}
	a.ElapsedMinutes = elapsed

	switch {
	case elapsed < e.cfg.RedWindowMinutes:
		st.severity = SeverityRed
		st.consecutiveRed++
		if st.consecutiveRed > e.cfg.RedCeiling && !st.revoked {
			st.revoked = true
			log.Warn().Str("symbol", sym).Int("consecutive_red", st.consecutiveRed).
				Msg("buy permission revoked until session reset")
		}
		a.DecayWeights = e.decayWeights(elapsed)
	case elapsed < e.cfg.OrangeWindowMinutes:
		st.severity = SeverityOrange
		st.consecutiveRed = 0
	default:
		st.severity = SeverityYellow
		st.consecutiveRed = 0
	}

	a.Severity = st.severity
	a.ConsecutiveRed = st.consecutiveRed
	a.BuyPermission = !st.revoked
	return a
}

// decayWeights computes the three diagnostic-only RED decay weights. The
// exponential weight collapses within a minute at the default k; that is the
// authoritative behavior and is deliberately not reconciled with the other
// historical weighting.
func (e *Engine) decayWeights(elapsedMinutes float64) map[string]float64 {
	linear := 1 - elapsedMinutes/e.cfg.FadeWindowMinutes
	if linear < 0 {
		linear = 0
	}
	return map[string]float64{
		"exponential": math.Exp(-e.cfg.DecayK * elapsedMinutes),
		"half_life":   math.Pow(0.5, elapsedMinutes/e.cfg.HalfLifeMinutes),
		"linear_fade": linear,
	}
}

// Reset clears escalation counters and restores buy permission for every
// symbol: the explicit session boundary.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, st := range e.symbols {
		st.mu.Lock()
		st.consecutiveRed = 0
		st.revoked = false
		st.severity = SeverityNone
		st.mu.Unlock()
	}
}

// Snapshot returns the serializable per-symbol state.
func (e *Engine) Snapshot() map[string]State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]State, len(e.symbols))
	for sym, st := range e.symbols {
		st.mu.Lock()
		out[sym] = State{
			Severity:       st.severity,
			ConsecutiveRed: st.consecutiveRed,
			Revoked:        st.revoked,
			LastEvent:      st.lastEvent,
		}
		st.mu.Unlock()
	}
	return out
}

// Restore replaces the engine state with a previously captured snapshot.
func (e *Engine) Restore(snap map[string]State) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.symbols = make(map[string]*symbolState, len(snap))
	for sym, s := range snap {
		e.symbols[sym] = &symbolState{
			severity:       s.Severity,
			consecutiveRed: s.ConsecutiveRed,
			revoked:        s.Revoked,
			lastEvent:      s.LastEvent,
		}
	}
}
