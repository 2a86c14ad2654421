package engine

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/volgate/volgate/internal/config"
	"github.com/volgate/volgate/internal/domain"
	"github.com/volgate/volgate/internal/surface"
)

// flatLayers builds n all-zero grid layers covering [0,size) on both axes.
func flatLayers(t *testing.T, n, size int) []surface.Surface {
	t.Helper()
	rows := make([][]surface.Tile, size)
	for y := range rows {
		rows[y] = make([]surface.Tile, size)
	}
	layers := make([]surface.Surface, n)
	for i := range layers {
		g, err := surface.NewGrid(fmt.Sprintf("T+%dd", i), domain.Coord{}, rows)
		require.NoError(t, err)
		layers[i] = g
	}
	return layers
}

func idealCandidate() domain.Candidate {
	return domain.Candidate{
		Symbol:       "SPY",
		Entry:        domain.Coord{X: 0, Y: 0},
		Target:       domain.Coord{X: 1, Y: 1},
		LongLeg:      domain.Leg{Delta: 0.70, IV: 0.22},
		ShortLeg:     domain.Leg{Delta: 0.30, IV: 0.35},
		CostEstimate: 3000,
		EdgeEstimate: 100,
	}
}

func calmMarket() domain.MarketSnapshot {
	return domain.MarketSnapshot{
		Spot:            500,
		VolatilityIndex: 18,
		IVStability:     1.0,
		HistorySuccess:  0.75,
	}
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := New(config.Default(), 250000)
	require.NoError(t, err)
	return e
}

func TestEvaluateCandidate_FullOKAdmits(t *testing.T) {
	e := newTestEngine(t)
	req := Request{
		Candidate: idealCandidate(),
		Surfaces:  flatLayers(t, 3, 5),
		Market:    calmMarket(),
		Commit:    true,
	}

	d, err := e.EvaluateCandidate(req)
	require.NoError(t, err)

	// Zero-penalty route scores 1.0; ideal deltas, stable IV and 0.75 history
	// blend to 0.25·(1+1+1+0.75) = 0.9375, the FULL_OK tier.
	assert.Equal(t, domain.OutcomeFullOK, d.Outcome)
	assert.InDelta(t, 0.9375, d.Confidence, 1e-9)
	assert.InDelta(t, 1.0, d.SurfaceScore, 1e-9)
	require.NotNil(t, d.Path)
	assert.True(t, d.Path.Found)
	require.NotNil(t, d.Admission)
	assert.Equal(t, "SPY", d.Admission.Symbol)
	assert.InDelta(t, 3000, e.BinSnapshot().TotalExposure, 1e-9)
}

func TestEvaluateCandidate_DryRunLeavesLedgerUntouched(t *testing.T) {
	e := newTestEngine(t)
	req := Request{
		Candidate: idealCandidate(),
		Surfaces:  flatLayers(t, 3, 5),
		Market:    calmMarket(),
	}

	d, err := e.EvaluateCandidate(req)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeFullOK, d.Outcome)
	assert.Nil(t, d.Admission)
	assert.Zero(t, e.BinSnapshot().TotalExposure)
}

func TestEvaluateCandidate_VolatilityAbort(t *testing.T) {
	e := newTestEngine(t)
	market := calmMarket()
	market.VolatilityIndex = 45

	d, err := e.EvaluateCandidate(Request{
		Candidate: idealCandidate(),
		Surfaces:  flatLayers(t, 3, 5),
		Market:    market,
		Commit:    true,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeAbort, d.Outcome)
	assert.Nil(t, d.Admission)
	assert.NotEmpty(t, d.Reasons)
}

func TestEvaluateCandidate_RevokedPermissionShortCircuits(t *testing.T) {
	e := newTestEngine(t)
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	e.SetClock(func() time.Time { return base.Add(10 * time.Minute) })

	req := Request{
		Candidate: idealCandidate(),
		Surfaces:  flatLayers(t, 3, 5),
		Market:    calmMarket(),
		Events:    []domain.DisjunctionEvent{{Symbol: "SPY", Timestamp: base, Kind: "volume_spike"}},
		Commit:    true,
	}

	// Six consecutive RED evaluations exceed the ceiling of 5.
	var d *Decision
	var err error
	for i := 0; i < 6; i++ {
		d, err = e.EvaluateCandidate(req)
		require.NoError(t, err)
	}
	d, err = e.EvaluateCandidate(req)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeReject, d.Outcome)
	assert.False(t, d.Flags.BuyPermission)
	assert.Nil(t, d.Path, "scoring must not run for a revoked symbol")
	assert.Nil(t, d.Gates)
}

func TestEvaluateCandidate_NoPathScoresZeroSurface(t *testing.T) {
	e := newTestEngine(t)
	near := flatLayers(t, 1, 5)[0]
	rows := [][]surface.Tile{{{}, {}}, {{}, {}}}
	far, err := surface.NewGrid("T+30d", domain.Coord{X: 10, Y: 10}, rows)
	require.NoError(t, err)

	d, err := e.EvaluateCandidate(Request{
		Candidate: idealCandidate(),
		Surfaces:  []surface.Surface{near, far},
		Market:    calmMarket(),
	})
	require.NoError(t, err)
	require.NotNil(t, d.Path)
	assert.False(t, d.Path.Found)
	assert.Zero(t, d.SurfaceScore)
	// 0.25·(1+1+0+0.75) = 0.6875 lands in the LIMITED_OK tier.
	assert.Equal(t, domain.OutcomeLimitedOK, d.Outcome)
}

func TestEvaluateCandidate_CapacityRejection(t *testing.T) {
	e := newTestEngine(t)
	cand := idealCandidate()
	cand.CostEstimate = 7500 // two fill cap_hard 15,000 exactly, a third cannot
	cand.EdgeEstimate = 200

	req := Request{Candidate: cand, Surfaces: flatLayers(t, 3, 5), Market: calmMarket(), Commit: true}
	d, err := e.EvaluateCandidate(req)
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeFullOK, d.Outcome)

	d, err = e.EvaluateCandidate(req)
	require.NoError(t, err)
	d, err = e.EvaluateCandidate(req)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeReject, d.Outcome)
	assert.Nil(t, d.Admission)
	require.NotEmpty(t, d.Reasons)
	assert.Contains(t, d.Reasons[0], "capacity exceeded")
	assert.InDelta(t, 15000, e.BinSnapshot().TotalExposure, 1e-9)
}

func TestEvaluateCandidate_RiskBlock(t *testing.T) {
	e := newTestEngine(t)
	cand := idealCandidate()
	cand.EdgeEstimate = 0.01 // below the minimum edge

	d, err := e.EvaluateCandidate(Request{
		Candidate: cand,
		Surfaces:  flatLayers(t, 3, 5),
		Market:    calmMarket(),
		Commit:    true,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeReject, d.Outcome)
	require.NotNil(t, d.Risk)
	assert.False(t, d.Risk.Allowed)
	assert.Nil(t, d.Admission)
}

func TestEvaluateCandidate_StaleSessionRequiresReset(t *testing.T) {
	e := newTestEngine(t)
	now := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	e.SetClock(func() time.Time { return now })

	req := Request{Candidate: idealCandidate(), Surfaces: flatLayers(t, 3, 5), Market: calmMarket()}
	_, err := e.EvaluateCandidate(req)
	require.NoError(t, err)

	now = now.Add(24 * time.Hour)
	_, err = e.EvaluateCandidate(req)
	require.Error(t, err)
	assert.True(t, domain.IsStaleState(err))

	require.NoError(t, e.ResetSession(250000, 0, true))
	_, err = e.EvaluateCandidate(req)
	assert.NoError(t, err)
}

func TestEvaluateCandidate_AccountEquityDriftRequiresReset(t *testing.T) {
	e := newTestEngine(t)
	layers := flatLayers(t, 3, 5)

	// Matching, near-matching, and unset snapshots all pass the cross-check.
	for _, equity := range []float64{250000, 251000, 0} {
		_, err := e.EvaluateCandidate(Request{
			Candidate: idealCandidate(),
			Surfaces:  layers,
			Market:    calmMarket(),
			Account:   domain.AccountSnapshot{Equity: equity},
		})
		assert.NoError(t, err, "equity %.0f", equity)
	}

	// Ceilings were derived from 250,000; a caller reporting 1 is stale.
	_, err := e.EvaluateCandidate(Request{
		Candidate: idealCandidate(),
		Surfaces:  layers,
		Market:    calmMarket(),
		Account:   domain.AccountSnapshot{Equity: 1},
		Commit:    true,
	})
	require.Error(t, err)
	assert.True(t, domain.IsInputError(err))
	assert.Zero(t, e.BinSnapshot().TotalExposure)

	require.NoError(t, e.ResetSession(300000, 0, true))
	_, err = e.EvaluateCandidate(Request{
		Candidate: idealCandidate(),
		Surfaces:  layers,
		Market:    calmMarket(),
		Account:   domain.AccountSnapshot{Equity: 300000},
	})
	assert.NoError(t, err)
}

func TestEvaluateCandidate_MarginShortfallRejects(t *testing.T) {
	e := newTestEngine(t)
	layers := flatLayers(t, 3, 5)

	d, err := e.EvaluateCandidate(Request{
		Candidate: idealCandidate(),
		Surfaces:  layers,
		Market:    calmMarket(),
		Account:   domain.AccountSnapshot{Equity: 250000, Margin: 1000},
		Commit:    true,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeReject, d.Outcome)
	require.NotEmpty(t, d.Reasons)
	assert.Contains(t, d.Reasons[0], "margin")
	assert.Nil(t, d.Admission)
	assert.Zero(t, e.BinSnapshot().TotalExposure)

	// The 3,000 debit fits a 5,000 margin report.
	d, err = e.EvaluateCandidate(Request{
		Candidate: idealCandidate(),
		Surfaces:  layers,
		Market:    calmMarket(),
		Account:   domain.AccountSnapshot{Equity: 250000, Margin: 5000},
		Commit:    true,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeFullOK, d.Outcome)
	assert.NotNil(t, d.Admission)
}

func TestEvaluateCandidate_InputValidation(t *testing.T) {
	e := newTestEngine(t)
	layers := flatLayers(t, 3, 5)

	cand := idealCandidate()
	cand.Symbol = ""
	_, err := e.EvaluateCandidate(Request{Candidate: cand, Surfaces: layers, Market: calmMarket()})
	assert.True(t, domain.IsInputError(err))

	cand = idealCandidate()
	cand.Entry = domain.Coord{X: 99, Y: 99}
	_, err = e.EvaluateCandidate(Request{Candidate: cand, Surfaces: layers, Market: calmMarket()})
	assert.True(t, domain.IsInputError(err))

	_, err = e.EvaluateCandidate(Request{Candidate: idealCandidate(), Market: calmMarket()})
	assert.True(t, domain.IsInputError(err))
}

func TestSnapshotRestore_DecisionsStayIdentical(t *testing.T) {
	now := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	a := newTestEngine(t)
	a.SetClock(clock)
	req := Request{Candidate: idealCandidate(), Surfaces: flatLayers(t, 3, 5), Market: calmMarket(), Commit: true}
	_, err := a.EvaluateCandidate(req)
	require.NoError(t, err)

	data, err := MarshalSnapshot(a.Snapshot())
	require.NoError(t, err)
	snap, err := UnmarshalSnapshot(data)
	require.NoError(t, err)

	b := newTestEngine(t)
	b.SetClock(clock)
	b.Restore(snap)

	assert.Equal(t, a.BinSnapshot().TotalExposure, b.BinSnapshot().TotalExposure)

	da, err := a.EvaluateCandidate(req)
	require.NoError(t, err)
	db, err := b.EvaluateCandidate(req)
	require.NoError(t, err)
	assert.Equal(t, da.Outcome, db.Outcome)
	assert.Equal(t, da.Confidence, db.Confidence)
}

func TestRecordFill_ReleasesBinAndFeedsRisk(t *testing.T) {
	e := newTestEngine(t)
	req := Request{Candidate: idealCandidate(), Surfaces: flatLayers(t, 3, 5), Market: calmMarket(), Commit: true}
	d, err := e.EvaluateCandidate(req)
	require.NoError(t, err)
	require.NotNil(t, d.Admission)

	require.NoError(t, e.RecordFill(d.Admission.ID, -120))
	assert.Zero(t, e.BinSnapshot().TotalExposure)
}
