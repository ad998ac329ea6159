package outcome

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solpulse/engine/internal/metadata"
	"github.com/solpulse/engine/internal/model"
	"github.com/solpulse/engine/internal/store"
	"github.com/solpulse/engine/pkg/logger"
)

type fakeProvider struct {
	meta map[string]*metadata.TokenMetadata
	err  error
}

func (f *fakeProvider) GetTokenMetadata(_ context.Context, address string) (*metadata.TokenMetadata, error) {
	if f.err != nil {
		return nil, f.err
	}
	if m, ok := f.meta[address]; ok {
		return m, nil
	}
	return &metadata.TokenMetadata{ContractAddress: address}, nil
}

func (f *fakeProvider) GetHolderDistribution(_ context.Context, _ string, topN int) (*metadata.HolderDistribution, error) {
	return &metadata.HolderDistribution{TopHolders: topN}, nil
}

func TestClassify(t *testing.T) {
	cases := []struct {
		returnPct float64
		want      model.OutcomeStatus
	}{
		{-95, model.OutcomeRugged},
		{-80, model.OutcomeRugged},
		{-79.9, model.OutcomeLoser},
		{-30, model.OutcomeLoser},
		{-29.9, model.OutcomePending},
		{0, model.OutcomePending},
		{19.9, model.OutcomePending},
		{20, model.OutcomeWinner},
		{350, model.OutcomeWinner},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Classify(tc.returnPct), "return %+.1f%%", tc.returnPct)
	}
}

func newTestTracker(t *testing.T, provider metadata.Provider) (*Tracker, *store.Store) {
	t.Helper()
	st := store.NewMemory()
	return NewTracker(st, provider, logger.NewNop()), st
}

// seedAlert inserts a token with known supply plus an alert and a
// trigger trade implying entry price mcapAtTrade/supply.
func seedAlert(t *testing.T, st *store.Store, token string, supply, mcapAtTrade float64, createdAt time.Time) *model.Alert {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, st.Tokens.Upsert(ctx, &model.Token{
		ContractAddress: token,
		TotalSupply:     supply,
	}))

	require.NoError(t, st.Trades.Insert(ctx, &model.Trade{
		WalletAddress: "WalletTrigger",
		TokenAddress:  token,
		TxSignature:   "sig-" + token,
		Type:          model.TradeBuy,
		SOLAmount:     1.5,
		McapAtTrade:   mcapAtTrade,
		BlockTime:     createdAt,
	}))

	alert := &model.Alert{
		TokenAddress: token,
		Type:         model.SignalHighConviction,
		CreatedAt:    createdAt,
	}
	require.NoError(t, st.Alerts.Insert(ctx, alert))
	return alert
}

func TestCheckAlertOutcome_YoungAlertStaysPending(t *testing.T) {
	tracker, st := newTestTracker(t, &fakeProvider{})
	ctx := context.Background()

	alert := seedAlert(t, st, "TokenYoung", 1e9, 100, time.Now().UTC().Add(-10*time.Minute))

	outcome, err := tracker.CheckAlertOutcome(ctx, alert)
	require.NoError(t, err)
	assert.Equal(t, model.OutcomePending, outcome.Status)

	// Nothing persisted: the batch selector still excludes it by age
	now := time.Now().UTC()
	due, err := st.Alerts.ListNeedingOutcomeCheck(ctx, now.Add(-MinAlertAge), now.Add(-RecheckInterval), 10)
	require.NoError(t, err)
	assert.Empty(t, due, "young alert must not be checked yet")

	pending, err := st.Alerts.CountPending(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, pending)
}

func TestCheckAlertOutcome_Winner(t *testing.T) {
	// Entry mcap 100 SOL on 1e9 supply, current price doubled
	provider := &fakeProvider{meta: map[string]*metadata.TokenMetadata{
		"TokenUp": {ContractAddress: "TokenUp", TotalSupply: 1e9, PriceSOL: 200.0 / 1e9},
	}}
	tracker, st := newTestTracker(t, provider)
	ctx := context.Background()

	alert := seedAlert(t, st, "TokenUp", 1e9, 100, time.Now().UTC().Add(-time.Hour))

	outcome, err := tracker.CheckAlertOutcome(ctx, alert)
	require.NoError(t, err)

	assert.Equal(t, model.OutcomeWinner, outcome.Status)
	assert.InDelta(t, 100, outcome.ReturnPct, 0.01)

	resolved, err := st.Alerts.ListWithOutcome(ctx, time.Now().UTC().Add(-24*time.Hour))
	require.NoError(t, err)
	require.Len(t, resolved, 1)
	assert.InDelta(t, 100, *resolved[0].OutcomePnL, 0.01)
}

func TestCheckAlertOutcome_RugFlagsToken(t *testing.T) {
	// Price collapsed 90%
	provider := &fakeProvider{meta: map[string]*metadata.TokenMetadata{
		"TokenRug": {ContractAddress: "TokenRug", TotalSupply: 1e9, PriceSOL: 10.0 / 1e9},
	}}
	tracker, st := newTestTracker(t, provider)
	ctx := context.Background()

	alert := seedAlert(t, st, "TokenRug", 1e9, 100, time.Now().UTC().Add(-2*time.Hour))

	outcome, err := tracker.CheckAlertOutcome(ctx, alert)
	require.NoError(t, err)

	assert.Equal(t, model.OutcomeRugged, outcome.Status)
	assert.InDelta(t, -90, outcome.ReturnPct, 0.01)

	token, err := st.Tokens.Get(ctx, "TokenRug")
	require.NoError(t, err)
	assert.True(t, token.IsRugged)
}

func TestCheckAlertOutcome_NoEntryPriceStaysPending(t *testing.T) {
	provider := &fakeProvider{meta: map[string]*metadata.TokenMetadata{
		"TokenBlind": {ContractAddress: "TokenBlind", TotalSupply: 1e9, PriceSOL: 50.0 / 1e9},
	}}
	tracker, st := newTestTracker(t, provider)
	ctx := context.Background()

	// Trigger trade has no recorded market cap, so the entry price is
	// unrecoverable and the return stays zero.
	alert := seedAlert(t, st, "TokenBlind", 1e9, 0, time.Now().UTC().Add(-time.Hour))

	outcome, err := tracker.CheckAlertOutcome(ctx, alert)
	require.NoError(t, err)

	assert.Equal(t, model.OutcomePending, outcome.Status)
	assert.Zero(t, outcome.ReturnPct)
}

func TestCheckPendingAlerts_SkipsFailures(t *testing.T) {
	provider := &fakeProvider{meta: map[string]*metadata.TokenMetadata{
		"TokenOK": {ContractAddress: "TokenOK", TotalSupply: 1e9, PriceSOL: 130.0 / 1e9},
	}}
	tracker, st := newTestTracker(t, provider)
	ctx := context.Background()

	old := time.Now().UTC().Add(-time.Hour)
	seedAlert(t, st, "TokenOK", 1e9, 100, old)

	// Alert for a token the store never saw; its check errors and is skipped
	require.NoError(t, st.Alerts.Insert(ctx, &model.Alert{
		TokenAddress: "TokenMissing",
		Type:         model.SignalClusterBuy,
		CreatedAt:    old,
	}))

	outcomes, err := tracker.CheckPendingAlerts(ctx)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, "TokenOK", outcomes[0].TokenAddress)
	assert.Equal(t, model.OutcomeWinner, outcomes[0].Status)
}

func TestGetPerformanceStats(t *testing.T) {
	tracker, st := newTestTracker(t, &fakeProvider{})
	ctx := context.Background()
	now := time.Now().UTC()

	outcomes := []struct {
		sigType model.SignalType
		pnl     float64
	}{
		{model.SignalHighConviction, 150},
		{model.SignalHighConviction, -40},
		{model.SignalClusterBuy, 60},
		{model.SignalClusterBuy, -90}, // rugged
	}
	for i, o := range outcomes {
		alert := &model.Alert{
			TokenAddress: "Token" + string(rune('A'+i)),
			Type:         o.sigType,
			CreatedAt:    now.Add(-2 * time.Hour),
		}
		require.NoError(t, st.Alerts.Insert(ctx, alert))
		require.NoError(t, st.Alerts.UpdateOutcome(ctx, alert.ID, o.pnl, now))
	}

	// One alert still awaiting its first check
	require.NoError(t, st.Alerts.Insert(ctx, &model.Alert{
		TokenAddress: "TokenPending",
		Type:         model.SignalVolumeSpike,
		CreatedAt:    now.Add(-5 * time.Minute),
	}))

	stats, err := tracker.GetPerformanceStats(ctx, 24*time.Hour)
	require.NoError(t, err)

	assert.Equal(t, 5, stats.TotalAlerts)
	assert.Equal(t, 2, stats.Winners)
	assert.Equal(t, 2, stats.Losers) // rugged counts as a loss
	assert.Equal(t, 1, stats.Rugged)
	assert.Equal(t, 1, stats.Pending)

	assert.InDelta(t, 50, stats.WinRate, 0.01)
	assert.InDelta(t, 105, stats.AvgReturnPct, 0.01)
	assert.InDelta(t, -65, stats.AvgLossPct, 0.01)
	assert.InDelta(t, 150, stats.BestReturnPct, 0.01)
	assert.InDelta(t, -90, stats.WorstLossPct, 0.01)

	assert.InDelta(t, 50, stats.WinRateByType[model.SignalHighConviction], 0.01)
	assert.InDelta(t, 50, stats.WinRateByType[model.SignalClusterBuy], 0.01)

	report := tracker.Report(stats, 24*time.Hour)
	assert.Contains(t, report, "Winners: 2")
	assert.Contains(t, report, "Rugged: 1")
}
