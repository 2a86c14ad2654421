package bins

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/volgate/volgate/internal/domain"
)

// AdmissionGate selects which historical admission rule is authoritative.
type AdmissionGate string

const (
	// GateTiered applies the confidence-selected ceiling (working below the
	// confidence threshold, overflow at or above it).
	GateTiered AdmissionGate = "tiered"
	// GateStrict caps every admission at the working ceiling regardless of
	// confidence.
	GateStrict AdmissionGate = "strict"
)

// Config holds the account-relative ceiling percentages and admission policy.
type Config struct {
	MaxPct              float64       `yaml:"max_pct" json:"max_pct"`                           // hard cap, fraction of equity
	MarginPct           float64       `yaml:"margin_pct" json:"margin_pct"`                     // margin buffer carved out of the hard cap
	OverflowPct         float64       `yaml:"overflow_pct" json:"overflow_pct"`                 // overflow ceiling, must be >= max_pct
	ConfidenceThreshold float64       `yaml:"confidence_threshold" json:"confidence_threshold"` // tier boundary for ceiling selection
	OverflowEnabled     bool          `yaml:"overflow_enabled" json:"overflow_enabled"`         // allow commitments past the hard cap
	Gate                AdmissionGate `yaml:"gate" json:"gate"`
}

// DefaultConfig returns the production sleeve percentages.
func DefaultConfig() Config {
	return Config{
		MaxPct:              0.06,
		MarginPct:           0.0125,
		OverflowPct:         0.08,
		ConfidenceThreshold: 0.70,
		OverflowEnabled:     false,
		Gate:                GateTiered,
	}
}

// Validate checks the sleeve configuration.
func (c Config) Validate() error {
	if c.MaxPct <= 0 || c.MaxPct >= 1 {
		return domain.NewInputError("bins.max_pct", "fraction %.4f out of (0,1)", c.MaxPct)
	}
	if c.MarginPct < 0 || c.MarginPct >= c.MaxPct {
		return domain.NewInputError("bins.margin_pct", "margin buffer %.4f must be in [0, max_pct)", c.MarginPct)
	}
	if c.OverflowPct < c.MaxPct {
		return domain.NewInputError("bins.overflow_pct", "overflow %.4f below max %.4f", c.OverflowPct, c.MaxPct)
	}
	switch c.Gate {
	case GateTiered, GateStrict:
	default:
		return domain.NewInputError("bins.gate", "unknown admission gate %q", c.Gate)
	}
	return nil
}

// Caps are the four ceilings derived once per session from account equity.
type Caps struct {
	Hard         float64 `json:"hard"`
	MarginBuffer float64 `json:"margin_buffer"`
	Working      float64 `json:"working"`
	Overflow     float64 `json:"overflow"`
}

// DeriveCaps computes session ceilings from equity. A derived overflow below
// the hard cap is a programmer error, not a runtime outcome, and panics.
func DeriveCaps(equity float64, cfg Config) Caps {
	caps := Caps{
		Hard:         equity * cfg.MaxPct,
		MarginBuffer: equity * cfg.MarginPct,
		Overflow:     equity * cfg.OverflowPct,
	}
	caps.Working = caps.Hard - caps.MarginBuffer
	if caps.Overflow < caps.Hard {
		panic(fmt.Sprintf("bins: invariant violation: cap_overflow %.2f < cap_hard %.2f", caps.Overflow, caps.Hard))
	}
	return caps
}

// Entry is one admitted position in the sleeve. Created on admission,
// removed when the (external) close path reports the structure closed.
type Entry struct {
	ID                    string    `json:"id"`
	Symbol                string    `json:"symbol"`
	CostBasis             float64   `json:"cost_basis"`
	ConfidenceAtAdmission float64   `json:"confidence_at_admission"`
	AdmittedAt            time.Time `json:"admitted_at"`
}

// Snapshot is the serializable sleeve state for downstream audit/reporting.
type Snapshot struct {
	Entries       []Entry `json:"entries"`
	TotalExposure float64 `json:"total_exposure"`
	Caps          Caps    `json:"caps"`
	Equity        float64 `json:"equity"`
}

// Manager owns the capital ledger for one structure class. One lock per bin
// serializes admissions so concurrent requests cannot race past the ceiling.
type Manager struct {
	mu      sync.Mutex
	cfg     Config
	caps    Caps
	equity  float64
	entries []Entry
	total   float64
	clock   func() time.Time
}

// NewManager derives session ceilings from equity and opens an empty sleeve.
func NewManager(cfg Config, equity float64) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if equity <= 0 {
		return nil, domain.NewInputError("bins.equity", "equity %.2f must be > 0", equity)
	}
	return &Manager{cfg: cfg, caps: DeriveCaps(equity, cfg), equity: equity, clock: time.Now}, nil
}

// SetClock injects a deterministic clock. Tests only.
func (m *Manager) SetClock(clock func() time.Time) { m.clock = clock }

// Equity returns the account equity the session ceilings were derived from.
func (m *Manager) Equity() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.equity
}

// ceilingFor selects the admission ceiling for a confidence level under the
// configured gate and overflow policy.
func (m *Manager) ceilingFor(confidence float64) (float64, string) {
	if m.cfg.Gate == GateStrict {
		return m.caps.Working, string(GateStrict)
	}
	ceiling := m.caps.Working
	if confidence >= m.cfg.ConfidenceThreshold {
		ceiling = m.caps.Overflow
	}
	if !m.cfg.OverflowEnabled && ceiling > m.caps.Hard {
		ceiling = m.caps.Hard
	}
	return ceiling, string(GateTiered)
}

// CanAdmit checks capacity without mutating state. A failure is a typed
// CapacityError carrying the numeric overage.
func (m *Manager) CanAdmit(cost, confidence float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.capacityCheck(cost, confidence)
}

func (m *Manager) capacityCheck(cost, confidence float64) error {
	ceiling, gate := m.ceilingFor(confidence)
	if m.total+cost > ceiling {
		return &domain.CapacityError{
			Requested: cost,
			Committed: m.total,
			Ceiling:   ceiling,
			Gate:      gate,
		}
	}
	return nil
}

// Admit atomically re-checks capacity and appends the entry; the single lock
// closes the check-then-act window. Rejection never mutates state.
func (m *Manager) Admit(symbol string, cost, confidence float64) (*Entry, error) {
	if cost <= 0 {
		return nil, domain.NewInputError("bins.cost", "cost %.2f must be > 0", cost)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.capacityCheck(cost, confidence); err != nil {
		return nil, err
	}
	entry := Entry{
		ID:                    uuid.New().String(),
		Symbol:                symbol,
		CostBasis:             cost,
		ConfidenceAtAdmission: confidence,
		AdmittedAt:            m.clock(),
	}
	m.entries = append(m.entries, entry)
	m.total += cost
	log.Info().Str("symbol", symbol).Float64("cost", cost).
		Float64("confidence", confidence).Float64("total_exposure", m.total).
		Msg("sleeve admission")
	return &entry, nil
}

// Remove deletes an entry by id when the structure closes.
func (m *Manager) Remove(entryID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, e := range m.entries {
		if e.ID == entryID {
			m.total -= e.CostBasis
			m.entries = append(m.entries[:i], m.entries[i+1:]...)
			return nil
		}
	}
	return domain.NewInputError("bins.entry_id", "no entry %s in sleeve", entryID)
}

// Snapshot returns a copy of the sleeve state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := make([]Entry, len(m.entries))
	copy(entries, m.entries)
	return Snapshot{Entries: entries, TotalExposure: m.total, Caps: m.caps, Equity: m.equity}
}

// Restore replaces the ledger with a previously captured snapshot.
func (m *Manager) Restore(snap Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make([]Entry, len(snap.Entries))
	copy(m.entries, snap.Entries)
	m.total = snap.TotalExposure
	if snap.Equity > 0 {
		m.equity = snap.Equity
		m.caps = DeriveCaps(snap.Equity, m.cfg)
	}
}

// ResetSession re-derives ceilings from fresh equity; clear empties the
// ledger for a new session, otherwise open entries carry over.
func (m *Manager) ResetSession(equity float64, clear bool) error {
	if equity <= 0 {
		return domain.NewInputError("bins.equity", "equity %.2f must be > 0", equity)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.equity = equity
	m.caps = DeriveCaps(equity, m.cfg)
	if clear {
		m.entries = nil
		m.total = 0
	}
	return nil
}
