package bins

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/volgate/volgate/internal/domain"
)

func newTestManager(t *testing.T, equity float64) *Manager {
	t.Helper()
	m, err := NewManager(DefaultConfig(), equity)
	require.NoError(t, err)
	return m
}

func TestDeriveCaps_DefaultPercentages(t *testing.T) {
	caps := DeriveCaps(250000, DefaultConfig())
	assert.InDelta(t, 15000, caps.Hard, 1e-9)
	assert.InDelta(t, 3125, caps.MarginBuffer, 1e-9)
	assert.InDelta(t, 11875, caps.Working, 1e-9)
	assert.InDelta(t, 20000, caps.Overflow, 1e-9)
}

func TestDeriveCaps_InvariantViolationPanics(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OverflowPct = 0.03 // below max_pct, bypassing Validate on purpose
	assert.Panics(t, func() { DeriveCaps(100000, cfg) })
}

func TestAdmit_ConfidenceTieredCeilings(t *testing.T) {
	// Equity 250k, existing 10k, new cost 3k.
	m := newTestManager(t, 250000)
	_, err := m.Admit("SPY", 10000, 0.95)
	require.NoError(t, err)

	// confidence 0.5 gates against cap_working 11,875: 13,000 > 11,875.
	_, err = m.Admit("QQQ", 3000, 0.5)
	require.Error(t, err)
	assert.True(t, domain.IsCapacityExceeded(err))
	var ce *domain.CapacityError
	require.ErrorAs(t, err, &ce)
	assert.InDelta(t, 1125, ce.Overage(), 1e-9)

	// Same candidate at 0.85 gates against the overflow tier. With the
	// overflow policy off the hard cap 15,000 still applies; 13,000 fits.
	entry, err := m.Admit("QQQ", 3000, 0.85)
	require.NoError(t, err)
	assert.Equal(t, "QQQ", entry.Symbol)
	assert.InDelta(t, 13000, m.Snapshot().TotalExposure, 1e-9)
}

func TestAdmit_HardCapUnlessOverflowEnabled(t *testing.T) {
	m := newTestManager(t, 250000)
	_, err := m.Admit("SPY", 14000, 0.95)
	require.NoError(t, err)

	// 14k + 2k exceeds the 15k hard cap; overflow policy is off by default.
	_, err = m.Admit("IWM", 2000, 0.95)
	assert.True(t, domain.IsCapacityExceeded(err))

	cfg := DefaultConfig()
	cfg.OverflowEnabled = true
	over, err := NewManager(cfg, 250000)
	require.NoError(t, err)
	_, err = over.Admit("SPY", 14000, 0.95)
	require.NoError(t, err)
	_, err = over.Admit("IWM", 2000, 0.95)
	assert.NoError(t, err, "16k fits under the 20k overflow ceiling when enabled")
}

func TestAdmit_StrictGateIgnoresConfidence(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Gate = GateStrict
	m, err := NewManager(cfg, 250000)
	require.NoError(t, err)

	_, err = m.Admit("SPY", 11000, 0.99)
	require.NoError(t, err)
	_, err = m.Admit("QQQ", 1000, 0.99)
	assert.True(t, domain.IsCapacityExceeded(err), "strict gate holds at working 11,875")
}

func TestAdmit_SequentialAdmissionsCannotJointlyExceed(t *testing.T) {
	m := newTestManager(t, 250000)

	// Each fits cap_working individually, jointly they exceed it.
	_, err := m.Admit("SPY", 7000, 0.5)
	require.NoError(t, err)
	_, err = m.Admit("QQQ", 7000, 0.5)
	require.Error(t, err)
	assert.True(t, domain.IsCapacityExceeded(err))
	assert.InDelta(t, 7000, m.Snapshot().TotalExposure, 1e-9, "rejection must not mutate state")
	assert.Len(t, m.Snapshot().Entries, 1)
}

func TestAdmit_ConcurrentRequestsRespectCeiling(t *testing.T) {
	m := newTestManager(t, 250000)

	var wg sync.WaitGroup
	admitted := make(chan struct{}, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.Admit("SPY", 3000, 0.5); err == nil {
				admitted <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(admitted)

	count := 0
	for range admitted {
		count++
	}
	assert.Equal(t, 3, count, "only 3×3000 fits under working 11,875")
	assert.InDelta(t, 9000, m.Snapshot().TotalExposure, 1e-9)
}

func TestRemove_ReleasesCapacity(t *testing.T) {
	m := newTestManager(t, 250000)
	entry, err := m.Admit("SPY", 11000, 0.5)
	require.NoError(t, err)

	_, err = m.Admit("QQQ", 5000, 0.5)
	require.Error(t, err)

	require.NoError(t, m.Remove(entry.ID))
	_, err = m.Admit("QQQ", 5000, 0.5)
	assert.NoError(t, err)

	assert.Error(t, m.Remove("nope"))
}

func TestSnapshotRestore_RoundTrip(t *testing.T) {
	m := newTestManager(t, 250000)
	_, err := m.Admit("SPY", 8000, 0.8)
	require.NoError(t, err)
	snap := m.Snapshot()

	restored := newTestManager(t, 100) // equity overwritten by snapshot
	restored.Restore(snap)

	got := restored.Snapshot()
	assert.Equal(t, snap.TotalExposure, got.TotalExposure)
	assert.Equal(t, snap.Caps, got.Caps)
	assert.Equal(t, snap.Entries, got.Entries)

	// Identical subsequent admissions behave identically.
	_, errA := m.Admit("QQQ", 3000, 0.5)
	_, errB := restored.Admit("QQQ", 3000, 0.5)
	assert.Equal(t, errA == nil, errB == nil)
}

func TestResetSession(t *testing.T) {
	m := newTestManager(t, 250000)
	_, err := m.Admit("SPY", 8000, 0.8)
	require.NoError(t, err)

	require.NoError(t, m.ResetSession(500000, false))
	snap := m.Snapshot()
	assert.InDelta(t, 30000, snap.Caps.Hard, 1e-9)
	assert.Len(t, snap.Entries, 1, "carry-over keeps open entries")

	require.NoError(t, m.ResetSession(500000, true))
	snap = m.Snapshot()
	assert.Empty(t, snap.Entries)
	assert.Zero(t, snap.TotalExposure)
}
