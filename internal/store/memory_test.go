package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solpulse/engine/internal/model"
)

func TestMemoryTrades_DuplicateSignature(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()

	trade := &model.Trade{
		WalletAddress: "WalletA",
		TokenAddress:  "TokenA",
		TxSignature:   "sig-1",
		Type:          model.TradeBuy,
		SOLAmount:     1.0,
		BlockTime:     time.Now().UTC(),
	}
	require.NoError(t, st.Trades.Insert(ctx, trade))
	assert.NotZero(t, trade.ID)
	assert.False(t, trade.ProcessedAt.IsZero())

	dup := *trade
	dup.ID = 0
	err := st.Trades.Insert(ctx, &dup)
	assert.ErrorIs(t, err, ErrDuplicate)

	got, err := st.Trades.GetBySignature(ctx, "sig-1")
	require.NoError(t, err)
	assert.Equal(t, trade.ID, got.ID)
}

func TestMemoryTrades_RecentBuysForToken(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()
	now := time.Now().UTC()

	insert := func(sig string, tradeType model.TradeType, at time.Time) {
		require.NoError(t, st.Trades.Insert(ctx, &model.Trade{
			WalletAddress: "WalletA",
			TokenAddress:  "TokenA",
			TxSignature:   sig,
			Type:          tradeType,
			SOLAmount:     0.5,
			BlockTime:     at,
		}))
	}
	insert("sig-old", model.TradeBuy, now.Add(-10*time.Minute))
	insert("sig-recent", model.TradeBuy, now.Add(-2*time.Minute))
	insert("sig-sell", model.TradeSell, now.Add(-time.Minute))

	buys, err := st.Trades.RecentBuysForToken(ctx, "TokenA", now.Add(-5*time.Minute))
	require.NoError(t, err)
	require.Len(t, buys, 1)
	assert.Equal(t, "sig-recent", buys[0].TxSignature)
}

func TestMemoryTokens_RugFlagIsOneWay(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()

	require.NoError(t, st.Tokens.Upsert(ctx, &model.Token{ContractAddress: "TokenA", Symbol: "TKA"}))
	require.NoError(t, st.Tokens.MarkRugged(ctx, "TokenA"))

	// Re-upserting with the flag unset must not clear it
	require.NoError(t, st.Tokens.Upsert(ctx, &model.Token{ContractAddress: "TokenA", Symbol: "TKA", IsRugged: false}))

	token, err := st.Tokens.Get(ctx, "TokenA")
	require.NoError(t, err)
	assert.True(t, token.IsRugged)
}

func TestMemoryTokens_UpsertPreservesDiscoveredAt(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()

	require.NoError(t, st.Tokens.Upsert(ctx, &model.Token{ContractAddress: "TokenA"}))
	first, err := st.Tokens.Get(ctx, "TokenA")
	require.NoError(t, err)

	require.NoError(t, st.Tokens.Upsert(ctx, &model.Token{ContractAddress: "TokenA", Symbol: "TKA"}))
	second, err := st.Tokens.Get(ctx, "TokenA")
	require.NoError(t, err)

	assert.Equal(t, first.DiscoveredAt, second.DiscoveredAt)
	assert.Equal(t, "TKA", second.Symbol)
}

func TestMemoryWallets_UpsertPreservesConvictionScore(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()

	require.NoError(t, st.Wallets.Upsert(ctx, &model.Wallet{
		Address:  "WalletA",
		Source:   "gmgn",
		WinRate:  68,
		Trades7d: 11,
		IsActive: true,
	}))
	require.NoError(t, st.Wallets.UpdateConvictionScore(ctx, "WalletA", 72.5))

	// A discovery refresh re-upserts the wallet with fresh leaderboard
	// stats and no score; the scorer-owned value must survive.
	require.NoError(t, st.Wallets.Upsert(ctx, &model.Wallet{
		Address:  "WalletA",
		Source:   "gmgn",
		WinRate:  70,
		Trades7d: 14,
		IsActive: true,
	}))

	w, err := st.Wallets.GetByAddress(ctx, "WalletA")
	require.NoError(t, err)
	assert.Equal(t, 72.5, w.ConvictionScore)
	assert.Equal(t, 70.0, w.WinRate, "refreshed stats still land")
}

func TestMemoryWallets_DeactivateExcludesFromActiveList(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()

	require.NoError(t, st.Wallets.Upsert(ctx, &model.Wallet{Address: "WalletA", IsActive: true}))
	require.NoError(t, st.Wallets.Upsert(ctx, &model.Wallet{Address: "WalletB", IsActive: true}))
	require.NoError(t, st.Wallets.Deactivate(ctx, "WalletB"))

	active, err := st.Wallets.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "WalletA", active[0].Address)

	// Deactivated wallets stay readable
	w, err := st.Wallets.GetByAddress(ctx, "WalletB")
	require.NoError(t, err)
	assert.False(t, w.IsActive)
}

func TestMemoryAlerts_OutcomeLifecycle(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()
	now := time.Now().UTC()

	alert := &model.Alert{
		TokenAddress: "TokenA",
		Type:         model.SignalHighConviction,
		CreatedAt:    now.Add(-time.Hour),
	}
	require.NoError(t, st.Alerts.Insert(ctx, alert))

	due, err := st.Alerts.ListNeedingOutcomeCheck(ctx, now.Add(-30*time.Minute), now.Add(-4*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)

	require.NoError(t, st.Alerts.UpdateOutcome(ctx, alert.ID, 45.0, now))

	// Freshly checked alerts drop off the due list until the recheck
	// deadline passes
	due, err = st.Alerts.ListNeedingOutcomeCheck(ctx, now.Add(-30*time.Minute), now.Add(-4*time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, due)

	resolved, err := st.Alerts.ListWithOutcome(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	require.Len(t, resolved, 1)
	assert.Equal(t, 45.0, *resolved[0].OutcomePnL)

	pending, err := st.Alerts.CountPending(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, pending)
}

func TestMemoryAlerts_ListByRangeFiltersTypes(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()
	base := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)

	for i, sigType := range model.AllSignalTypes() {
		require.NoError(t, st.Alerts.Insert(ctx, &model.Alert{
			TokenAddress: "TokenA",
			Type:         sigType,
			CreatedAt:    base.Add(time.Duration(i) * time.Minute),
		}))
	}

	all, err := st.Alerts.ListByRange(ctx, base.Add(-time.Hour), base.Add(time.Hour), nil)
	require.NoError(t, err)
	assert.Len(t, all, len(model.AllSignalTypes()))

	only, err := st.Alerts.ListByRange(ctx, base.Add(-time.Hour), base.Add(time.Hour),
		[]model.SignalType{model.SignalClusterBuy})
	require.NoError(t, err)
	require.Len(t, only, 1)
	assert.Equal(t, model.SignalClusterBuy, only[0].Type)
}

func TestMemoryClusters_ListNewestFirst(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()
	base := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		require.NoError(t, st.Clusters.Insert(ctx, &model.ClusterEvent{
			TokenAddress:    "TokenA",
			WalletAddresses: []string{"WalletA", "WalletB"},
			WalletCount:     2,
			TotalSOL:        1.3,
			CreatedAt:       base.Add(time.Duration(i) * time.Minute),
		}))
	}

	events, err := st.Clusters.ListForToken(ctx, "TokenA", 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.True(t, events[0].CreatedAt.After(events[1].CreatedAt))
}
