package signal

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solpulse/engine/internal/metadata"
	"github.com/solpulse/engine/internal/model"
	"github.com/solpulse/engine/internal/risk"
	"github.com/solpulse/engine/internal/store"
	"github.com/solpulse/engine/pkg/config"
	"github.com/solpulse/engine/pkg/logger"
)

type fakeMetadata struct {
	meta *metadata.TokenMetadata
	err  error
}

func (f *fakeMetadata) GetTokenMetadata(ctx context.Context, address string) (*metadata.TokenMetadata, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.meta, nil
}

func (f *fakeMetadata) GetHolderDistribution(ctx context.Context, address string, topN int) (*metadata.HolderDistribution, error) {
	return &metadata.HolderDistribution{}, nil
}

type fakeAssessor struct {
	result *risk.CheckResult
	err    error
}

func (f *fakeAssessor) CheckToken(ctx context.Context, address string) (*risk.CheckResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func defaultSignalConfig() config.SignalConfig {
	return config.SignalConfig{
		HighConvictionMinSOL:       1.0,
		HighConvictionMinSupplyPct: 0.5,
		ClusterMinWallets:          2,
		ClusterWindowMinutes:       5,
		ClusterMinSOL:              0.5,
		VolumeSpikeThreshold:       0.10,
		NewTokenMaxAgeMinutes:      60,
	}
}

func newTestProcessor(t *testing.T, st *store.Store) *Processor {
	t.Helper()
	meta := &fakeMetadata{meta: &metadata.TokenMetadata{Name: "Test", Symbol: "TST"}}
	assessor := &fakeAssessor{result: &risk.CheckResult{Passed: true, RiskLevel: model.RiskLow}}
	return NewProcessor(st, meta, assessor, defaultSignalConfig(), logger.NewNop())
}

func seedWallet(t *testing.T, st *store.Store, address string, winRate float64) *model.Wallet {
	t.Helper()
	w := &model.Wallet{
		Address:  address,
		Source:   "manual",
		WinRate:  winRate,
		Trades7d: 12,
		IsActive: true,
	}
	require.NoError(t, st.Wallets.Upsert(context.Background(), w))
	return w
}

func buyEvent(wallet, token, sig string, sol, amount float64) BuyEvent {
	return BuyEvent{
		WalletAddress: wallet,
		TokenAddress:  token,
		SOLAmount:     sol,
		TokenAmount:   amount,
		TxSignature:   sig,
		BlockTime:     time.Now().UTC(),
	}
}

func TestProcessBuyEvent_UnknownWalletIgnored(t *testing.T) {
	st := store.NewMemory()
	p := newTestProcessor(t, st)

	signals, err := p.ProcessBuyEvent(context.Background(), buyEvent("GhostWallet111", "TokenAAA", "sig-1", 5.0, 1000))
	require.NoError(t, err)
	assert.Empty(t, signals)

	// No trade recorded either
	_, err = st.Trades.GetBySignature(context.Background(), "sig-1")
	assert.True(t, store.IsNotFound(err))
}

func TestProcessBuyEvent_HighConviction(t *testing.T) {
	st := store.NewMemory()
	p := newTestProcessor(t, st)
	seedWallet(t, st, "WalletAlpha", 70)

	ev := buyEvent("WalletAlpha", "TokenAAA", "sig-hc", 1.5, 8_000_000)
	ev.TotalSupply = 1_000_000_000 // 0.8% of supply

	signals, err := p.ProcessBuyEvent(context.Background(), ev)
	require.NoError(t, err)
	require.Len(t, signals, 1)

	sig := signals[0]
	assert.Equal(t, model.SignalHighConviction, sig.Type)
	assert.Equal(t, 1.5, sig.TotalSOL)
	assert.InDelta(t, 0.8, sig.MaxSupplyPct, 1e-9)
	assert.Equal(t, 70.0, sig.Details["wallet_win_rate"])
}

func TestProcessBuyEvent_HighConvictionBelowThresholds(t *testing.T) {
	st := store.NewMemory()
	p := newTestProcessor(t, st)
	seedWallet(t, st, "WalletAlpha", 70)

	// Big SOL amount but negligible supply share
	ev := buyEvent("WalletAlpha", "TokenAAA", "sig-1", 2.0, 100)
	ev.TotalSupply = 1_000_000_000

	signals, err := p.ProcessBuyEvent(context.Background(), ev)
	require.NoError(t, err)
	assert.Empty(t, signals)

	// Large supply share but under the SOL floor
	ev2 := buyEvent("WalletAlpha", "TokenBBB", "sig-2", 0.9, 10_000_000)
	ev2.TotalSupply = 1_000_000_000

	signals, err = p.ProcessBuyEvent(context.Background(), ev2)
	require.NoError(t, err)
	assert.Empty(t, signals)
}

func TestProcessBuyEvent_DuplicateSignatureIdempotent(t *testing.T) {
	st := store.NewMemory()
	p := newTestProcessor(t, st)
	seedWallet(t, st, "WalletAlpha", 70)

	ev := buyEvent("WalletAlpha", "TokenAAA", "sig-dup", 1.5, 8_000_000)
	ev.TotalSupply = 1_000_000_000

	signals, err := p.ProcessBuyEvent(context.Background(), ev)
	require.NoError(t, err)
	require.Len(t, signals, 1)

	// Same event delivered again: no new trade, no re-fired trigger
	signals, err = p.ProcessBuyEvent(context.Background(), ev)
	require.NoError(t, err)
	assert.Empty(t, signals)

	trades, err := st.Trades.ListByWallet(context.Background(), "WalletAlpha")
	require.NoError(t, err)
	assert.Len(t, trades, 1)
}

func TestProcessBuyEvent_ClusterBuy(t *testing.T) {
	st := store.NewMemory()
	p := newTestProcessor(t, st)
	seedWallet(t, st, "WalletA", 70)
	seedWallet(t, st, "WalletB", 60)

	ctx := context.Background()

	signals, err := p.ProcessBuyEvent(ctx, buyEvent("WalletA", "TokenAAA", "sig-a", 0.7, 1000))
	require.NoError(t, err)
	assert.Empty(t, signals, "single wallet is not a cluster")

	signals, err = p.ProcessBuyEvent(ctx, buyEvent("WalletB", "TokenAAA", "sig-b", 0.6, 1000))
	require.NoError(t, err)
	require.Len(t, signals, 1)

	sig := signals[0]
	assert.Equal(t, model.SignalClusterBuy, sig.Type)
	assert.Equal(t, 2, sig.Details["wallet_count"])
	assert.InDelta(t, 1.3, sig.TotalSOL, 1e-9)
	assert.InDelta(t, 65.0, sig.Details["avg_win_rate"].(float64), 1e-9)

	events, err := st.Clusters.ListForToken(ctx, "TokenAAA", 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, 2, events[0].WalletCount)
}

func TestProcessBuyEvent_ClusterRequiresDistinctWallets(t *testing.T) {
	st := store.NewMemory()
	p := newTestProcessor(t, st)
	seedWallet(t, st, "WalletA", 70)

	ctx := context.Background()

	// Two qualifying buys from the same wallet never form a cluster
	_, err := p.ProcessBuyEvent(ctx, buyEvent("WalletA", "TokenAAA", "sig-1", 0.8, 1000))
	require.NoError(t, err)
	signals, err := p.ProcessBuyEvent(ctx, buyEvent("WalletA", "TokenAAA", "sig-2", 0.9, 1000))
	require.NoError(t, err)
	assert.Empty(t, signals)
}

func TestProcessBuyEvent_ClusterIgnoresSmallBuys(t *testing.T) {
	st := store.NewMemory()
	p := newTestProcessor(t, st)
	seedWallet(t, st, "WalletA", 70)
	seedWallet(t, st, "WalletB", 60)

	ctx := context.Background()

	_, err := p.ProcessBuyEvent(ctx, buyEvent("WalletA", "TokenAAA", "sig-1", 0.7, 1000))
	require.NoError(t, err)

	// Second wallet buys below the per-wallet floor
	signals, err := p.ProcessBuyEvent(ctx, buyEvent("WalletB", "TokenAAA", "sig-2", 0.3, 1000))
	require.NoError(t, err)
	assert.Empty(t, signals)
}

func TestProcessBuyEvent_VolumeSpike(t *testing.T) {
	st := store.NewMemory()
	p := newTestProcessor(t, st)
	seedWallet(t, st, "WalletA", 70)

	ctx := context.Background()

	// Several sub-cluster-threshold buys against a 100 SOL market cap
	for i, sol := range []float64{0.4, 0.4, 0.4, 0.4} {
		ev := buyEvent("WalletA", "TokenAAA", fmt.Sprintf("sig-%d", i), sol, 1000)
		ev.MarketCapSOL = 100
		signals, err := p.ProcessBuyEvent(ctx, ev)
		require.NoError(t, err)
		assert.Empty(t, signals)
	}

	// This buy pushes 5-minute volume to 12 SOL: ratio 0.12 >= 0.10
	ev := buyEvent("WalletA", "TokenAAA", "sig-spike", 10.4, 1000)
	ev.MarketCapSOL = 100
	signals, err := p.ProcessBuyEvent(ctx, ev)
	require.NoError(t, err)
	require.Len(t, signals, 1)

	sig := signals[0]
	assert.Equal(t, model.SignalVolumeSpike, sig.Type)
	assert.InDelta(t, 0.12, sig.Details["volume_ratio"].(float64), 1e-9)
}

func TestProcessBuyEvent_VolumeSpikeSkippedWithoutMarketCap(t *testing.T) {
	st := store.NewMemory()
	p := newTestProcessor(t, st)
	seedWallet(t, st, "WalletA", 70)

	// Huge volume but no market cap data: never divide by zero
	ev := buyEvent("WalletA", "TokenAAA", "sig-1", 50, 1000)
	signals, err := p.ProcessBuyEvent(context.Background(), ev)
	require.NoError(t, err)
	assert.Empty(t, signals)
}

func TestEnrichAndValidate_FailureReturnsUnchanged(t *testing.T) {
	st := store.NewMemory()
	meta := &fakeMetadata{err: errors.New("rpc down")}
	assessor := &fakeAssessor{result: &risk.CheckResult{Passed: true}}
	p := NewProcessor(st, meta, assessor, defaultSignalConfig(), logger.NewNop())

	token := &model.Token{ContractAddress: "TokenAAA"}
	sig := &Result{
		Type:    model.SignalHighConviction,
		Token:   token,
		Details: map[string]interface{}{},
	}

	enriched := p.EnrichAndValidate(context.Background(), sig)
	assert.Same(t, sig, enriched)
	assert.False(t, enriched.RugChecked)
}

func TestCreateAlert_SuppressedOnFailedRugCheck(t *testing.T) {
	st := store.NewMemory()
	p := newTestProcessor(t, st)

	sig := &Result{
		Type:       model.SignalClusterBuy,
		Token:      &model.Token{ContractAddress: "TokenAAA"},
		Details:    map[string]interface{}{},
		RugChecked: true,
		RugPassed:  false,
	}

	alert, err := p.CreateAlert(context.Background(), sig, true)
	require.NoError(t, err)
	assert.Nil(t, alert)

	// Suppression disabled: alert is created despite the failed check
	alert, err = p.CreateAlert(context.Background(), sig, false)
	require.NoError(t, err)
	require.NotNil(t, alert)
	assert.Equal(t, model.SignalClusterBuy, alert.Type)
}

func TestMarkAlertSent(t *testing.T) {
	st := store.NewMemory()
	p := newTestProcessor(t, st)
	seedWallet(t, st, "WalletAlpha", 70)

	ev := buyEvent("WalletAlpha", "TokenAAA", "sig-hc", 1.5, 8_000_000)
	ev.TotalSupply = 1_000_000_000

	signals, err := p.ProcessBuyEvent(context.Background(), ev)
	require.NoError(t, err)
	require.Len(t, signals, 1)

	alert, err := p.CreateAlert(context.Background(), signals[0], false)
	require.NoError(t, err)

	pending, err := p.PendingAlerts(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, p.MarkAlertSent(context.Background(), alert))
	assert.True(t, alert.Sent)
	require.NotNil(t, alert.SentAt)

	pending, err = p.PendingAlerts(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}
