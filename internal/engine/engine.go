package engine

import (
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/volgate/volgate/internal/bins"
	"github.com/volgate/volgate/internal/config"
	"github.com/volgate/volgate/internal/domain"
	"github.com/volgate/volgate/internal/flags"
	"github.com/volgate/volgate/internal/gates"
	"github.com/volgate/volgate/internal/risk"
	"github.com/volgate/volgate/internal/score"
	"github.com/volgate/volgate/internal/surface"
	"github.com/volgate/volgate/internal/trajectory"
)

// Request carries everything one evaluation needs. All market and account
// retrieval happens upstream; the engine never blocks on I/O. The account
// snapshot cross-checks the session: equity drifting past the tolerance is an
// InputError, and a reported margin below the candidate cost rejects.
type Request struct {
	Candidate domain.Candidate          `json:"candidate"`
	Surfaces  []surface.Surface         `json:"-"`
	Market    domain.MarketSnapshot     `json:"market"`
	Account   domain.AccountSnapshot    `json:"account"`
	Events    []domain.DisjunctionEvent `json:"events,omitempty"`

	// Commit admits the candidate into the bin on a passing outcome. A dry
	// run leaves the ledger untouched.
	Commit bool `json:"commit"`
}

// Decision is the full audit trail of one evaluation.
type Decision struct {
	Symbol       string                 `json:"symbol"`
	Outcome      domain.Outcome         `json:"outcome"`
	Confidence   float64                `json:"confidence"`
	Components   map[string]float64     `json:"components,omitempty"`
	Flags        flags.Assessment       `json:"flags"`
	Path         *trajectory.PathResult `json:"path,omitempty"`
	SurfaceScore float64                `json:"surface_score"`
	Gates        *gates.Result          `json:"gates,omitempty"`
	Risk         *risk.Verdict          `json:"risk,omitempty"`
	Admission    *bins.Entry            `json:"admission,omitempty"`
	EvaluatedAt  time.Time              `json:"evaluated_at"`
	Reasons      []string               `json:"reasons,omitempty"`
}

// Engine chains the evaluation pipeline: flag decay, path search, score
// normalization, confidence, classification, capital admission, risk.
// Stages run strictly in order; the first blocking stage short-circuits.
type Engine struct {
	cfg config.Config

	normalizer *score.Normalizer
	estimator  *score.Estimator
	classifier *gates.Classifier
	evaluator  *trajectory.Evaluator
	flags      *flags.Engine
	bins       *bins.Manager
	risk       *risk.Gate

	mu         sync.Mutex
	sessionDay string
	clock      func() time.Time
}

// New wires an engine for the session's account equity.
func New(cfg config.Config, equity float64) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	normalizer, err := score.NewNormalizer(cfg.Normalizer)
	if err != nil {
		return nil, err
	}
	estimator, err := score.NewEstimator(cfg.Confidence)
	if err != nil {
		return nil, err
	}
	classifier, err := gates.NewClassifier(cfg.Classifier)
	if err != nil {
		return nil, err
	}
	flagEngine, err := flags.NewEngine(cfg.Flags)
	if err != nil {
		return nil, err
	}
	binManager, err := bins.NewManager(cfg.Bins, equity)
	if err != nil {
		return nil, err
	}
	riskGate, err := risk.NewGate(cfg.Risk, equity)
	if err != nil {
		return nil, err
	}
	e := &Engine{
		cfg:        cfg,
		normalizer: normalizer,
		estimator:  estimator,
		classifier: classifier,
		evaluator:  trajectory.NewEvaluator(cfg.Trajectory),
		flags:      flagEngine,
		bins:       binManager,
		risk:       riskGate,
		clock:      time.Now,
	}
	e.sessionDay = e.clock().UTC().Format("2006-01-02")
	return e, nil
}

// SetClock injects a deterministic clock into the engine and the flag decay
// state. Tests only.
func (e *Engine) SetClock(clock func() time.Time) {
	e.clock = clock
	e.flags.SetClock(clock)
	e.bins.SetClock(clock)
	e.sessionDay = clock().UTC().Format("2006-01-02")
}

// EvaluateCandidate runs the full pipeline for one candidate. Identical
// requests against identical state yield identical decisions.
func (e *Engine) EvaluateCandidate(req Request) (*Decision, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	if err := e.checkSession(); err != nil {
		return nil, err
	}
	if err := e.checkAccount(req.Account); err != nil {
		return nil, err
	}

	d := &Decision{Symbol: req.Candidate.Symbol, EvaluatedAt: e.clock()}

	// Flag decay runs first: a revoked symbol never reaches the scorer.
	d.Flags = e.flags.Evaluate(req.Candidate.Symbol, req.Events)
	if !d.Flags.BuyPermission {
		d.Outcome = domain.OutcomeReject
		d.Reasons = append(d.Reasons, "buy permission revoked pending session reset")
		e.logDecision(d)
		return d, nil
	}

	path, err := e.evaluator.FindPath(req.Surfaces, req.Candidate.Entry, req.Candidate.Target)
	if err != nil {
		return nil, err
	}
	d.Path = path

	if e.cfg.Normalizer.DistributionBased() {
		costs, err := e.evaluator.SampleCosts(req.Surfaces, req.Candidate.Entry, req.Candidate.Target)
		if err != nil {
			return nil, err
		}
		d.SurfaceScore = e.normalizer.ScoreSet(costs)
	} else if path.Found {
		d.SurfaceScore = e.normalizer.Score(path.Cost)
	}
	// An unreachable target leaves the surface score at zero and the decision
	// falls through to the confidence tiers rather than erroring.

	entryTile, err := req.Surfaces[0].TileAt(req.Candidate.Entry)
	if err != nil {
		return nil, err
	}
	conf := e.estimator.Estimate(score.Inputs{
		DeltaLong:        req.Candidate.LongLeg.Delta,
		DeltaShort:       req.Candidate.ShortLeg.Delta,
		IVStability:      req.Market.IVStability,
		SurfaceScore:     d.SurfaceScore,
		HistorySuccess:   req.Market.HistorySuccess,
		LiquidityPenalty: entryTile.LiquidityPenalty,
	})
	d.Confidence = conf.Value
	d.Components = conf.Components

	d.Gates = e.classifier.Classify(req.Candidate, req.Market.VolatilityIndex, conf.Value)
	d.Outcome = d.Gates.Outcome
	d.Reasons = append(d.Reasons, d.Gates.FailureReasons...)
	if !d.Outcome.Admissible() {
		e.logDecision(d)
		return d, nil
	}

	if req.Account.Margin > 0 && req.Candidate.CostEstimate > req.Account.Margin {
		d.Outcome = domain.OutcomeReject
		d.Reasons = append(d.Reasons, fmt.Sprintf("cost %.2f exceeds available margin %.2f",
			req.Candidate.CostEstimate, req.Account.Margin))
		e.logDecision(d)
		return d, nil
	}

	if err := e.bins.CanAdmit(req.Candidate.CostEstimate, conf.Value); err != nil {
		if !domain.IsCapacityExceeded(err) {
			return nil, err
		}
		d.Outcome = domain.OutcomeReject
		d.Reasons = append(d.Reasons, err.Error())
		e.logDecision(d)
		return d, nil
	}

	verdict := e.risk.Evaluate(req.Candidate.EdgeEstimate, req.Candidate.CostEstimate, req.Market.VolatilityIndex)
	d.Risk = &verdict
	if !verdict.Allowed {
		d.Outcome = domain.OutcomeReject
		d.Reasons = append(d.Reasons, verdict.Reasons...)
		e.logDecision(d)
		return d, nil
	}
	if verdict.Notice {
		d.Reasons = append(d.Reasons, verdict.Reasons...)
	}

	if req.Commit {
		entry, err := e.bins.Admit(req.Candidate.Symbol, req.Candidate.CostEstimate, conf.Value)
		if err != nil {
			// A concurrent admission can consume the headroom between the
			// check and the commit; report it as a rejection, not a fault.
			if !domain.IsCapacityExceeded(err) {
				return nil, err
			}
			d.Outcome = domain.OutcomeReject
			d.Reasons = append(d.Reasons, err.Error())
			e.logDecision(d)
			return d, nil
		}
		d.Admission = entry
	}

	e.logDecision(d)
	return d, nil
}

func (e *Engine) logDecision(d *Decision) {
	log.Info().
		Str("symbol", d.Symbol).
		Str("outcome", string(d.Outcome)).
		Float64("confidence", d.Confidence).
		Float64("surface_score", d.SurfaceScore).
		Strs("reasons", d.Reasons).
		Msg("candidate evaluated")
}

func validate(req Request) error {
	if req.Candidate.Symbol == "" {
		return domain.NewInputError("candidate.symbol", "symbol required")
	}
	if len(req.Surfaces) == 0 {
		return domain.NewInputError("surfaces", "at least one layer required")
	}
	if req.Candidate.CostEstimate <= 0 {
		return domain.NewInputError("candidate.cost_estimate", "cost %.2f must be > 0", req.Candidate.CostEstimate)
	}
	if !req.Surfaces[0].Contains(req.Candidate.Entry) {
		return domain.NewInputError("candidate.entry", "entry (%d,%d) outside the first layer",
			req.Candidate.Entry.X, req.Candidate.Entry.Y)
	}
	return nil
}

// equityDriftTolerance bounds how far a request's reported account equity may
// drift from the equity the session ceilings were derived from.
const equityDriftTolerance = 0.01

// checkAccount rejects a request whose account snapshot no longer matches the
// session. Bin ceilings and day-loss limits derive from session equity, so a
// caller reporting materially different equity must reset the session first.
// A zero snapshot means the caller did not re-resolve the account and the
// session values stand.
func (e *Engine) checkAccount(acct domain.AccountSnapshot) error {
	if acct.Equity <= 0 {
		return nil
	}
	session := e.bins.Equity()
	if math.Abs(acct.Equity-session) > session*equityDriftTolerance {
		return domain.NewInputError("account.equity",
			"equity %.2f diverges from session equity %.2f; reset the session", acct.Equity, session)
	}
	return nil
}

// checkSession rejects evaluations against state carried over a UTC day
// boundary without an explicit reset.
func (e *Engine) checkSession() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	today := e.clock().UTC().Format("2006-01-02")
	if today != e.sessionDay {
		return &domain.StaleStateError{SessionDay: e.sessionDay, Today: today}
	}
	return nil
}

// RecordFill forwards a realized PnL to the risk aggregates and releases the
// bin entry when the structure closed.
func (e *Engine) RecordFill(entryID string, pnl float64) error {
	e.risk.RecordFill(pnl)
	if entryID == "" {
		return nil
	}
	return e.bins.Remove(entryID)
}

// BinSnapshot exposes the current capital ledger.
func (e *Engine) BinSnapshot() bins.Snapshot {
	return e.bins.Snapshot()
}

// ResetSession starts a new session day: flag escalation clears, bin ceilings
// re-derive from fresh equity, and the risk day counters roll over.
func (e *Engine) ResetSession(equity, priorDayLoss float64, clearBins bool) error {
	if err := e.bins.ResetSession(equity, clearBins); err != nil {
		return err
	}
	e.flags.Reset()
	e.risk.ResetDay(equity, priorDayLoss)

	e.mu.Lock()
	e.sessionDay = e.clock().UTC().Format("2006-01-02")
	e.mu.Unlock()

	log.Info().Float64("equity", equity).Bool("clear_bins", clearBins).Msg("session reset")
	return nil
}

// Snapshot is the serializable engine state for audit and restart.
type Snapshot struct {
	SessionDay string                 `json:"session_day"`
	Flags      map[string]flags.State `json:"flags"`
	Bins       bins.Snapshot          `json:"bins"`
}

// Snapshot captures the current engine state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	day := e.sessionDay
	e.mu.Unlock()
	return Snapshot{
		SessionDay: day,
		Flags:      e.flags.Snapshot(),
		Bins:       e.bins.Snapshot(),
	}
}

// Restore replaces engine state with a previously captured snapshot.
func (e *Engine) Restore(snap Snapshot) {
	e.flags.Restore(snap.Flags)
	e.bins.Restore(snap.Bins)
	e.mu.Lock()
	if snap.SessionDay != "" {
		e.sessionDay = snap.SessionDay
	}
	e.mu.Unlock()
}

// MarshalSnapshot serializes a snapshot for persistence by the caller.
func MarshalSnapshot(snap Snapshot) ([]byte, error) {
	return json.Marshal(snap)
}

// UnmarshalSnapshot parses a snapshot previously produced by MarshalSnapshot.
func UnmarshalSnapshot(data []byte) (Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}
