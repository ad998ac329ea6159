package conviction

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solpulse/engine/internal/model"
	"github.com/solpulse/engine/internal/store"
	"github.com/solpulse/engine/pkg/logger"
)

func TestScore_PerfectMetrics(t *testing.T) {
	score := Score(Metrics{
		WinRate:          100,
		Trades7d:         20,
		PnLTotalSOL:      500,
		Consistency:      100,
		EarlyEntryRate:   80,
		RugAvoidanceRate: 100,
	})
	assert.Equal(t, 100.0, score)
}

func TestScore_ZeroMetrics(t *testing.T) {
	assert.Equal(t, 0.0, Score(Metrics{}))
}

func TestScore_WinRateAtFloorScoresNothing(t *testing.T) {
	// 50% wins is coin-flip territory and earns no credit
	base := Metrics{Consistency: 50}
	atFloor := base
	atFloor.WinRate = 50
	assert.Equal(t, Score(base), Score(atFloor))

	above := base
	above.WinRate = 75
	assert.InDelta(t, Score(base)+weightWinRate/2, Score(above), 1e-9)
}

func TestScore_RugAvoidanceAtFloorScoresNothing(t *testing.T) {
	base := Metrics{Consistency: 50}
	atFloor := base
	atFloor.RugAvoidanceRate = 50
	assert.Equal(t, Score(base), Score(atFloor))

	clean := base
	clean.RugAvoidanceRate = 100
	assert.InDelta(t, Score(base)+weightRugAvoidance, Score(clean), 1e-9)
}

func TestScore_FrequencyAndPnLSaturate(t *testing.T) {
	modest := Score(Metrics{Trades7d: 10, PnLTotalSOL: 100})
	extreme := Score(Metrics{Trades7d: 1000, PnLTotalSOL: 100000})
	assert.Equal(t, modest, extreme)
	assert.InDelta(t, weightFrequency+weightPnL, modest, 1e-9)
}

func TestScore_NegativePnLScoresNothing(t *testing.T) {
	assert.Equal(t, 0.0, Score(Metrics{PnLTotalSOL: -40}))
}

func newTestCalculator(t *testing.T) (*Calculator, *store.Store) {
	t.Helper()
	st := store.NewMemory()
	return NewCalculator(st, logger.NewNop()), st
}

func seedTrade(t *testing.T, st *store.Store, wallet, token string, tradeType model.TradeType, sol float64, at time.Time) {
	t.Helper()
	err := st.Trades.Insert(context.Background(), &model.Trade{
		WalletAddress: wallet,
		TokenAddress:  token,
		TxSignature:   fmt.Sprintf("sig-%s-%s-%d", wallet, token, at.UnixNano()),
		Type:          tradeType,
		SOLAmount:     sol,
		BlockTime:     at,
	})
	require.NoError(t, err)
}

func TestCalculateScore_NoTradeHistory(t *testing.T) {
	calc, st := newTestCalculator(t)
	ctx := context.Background()

	wallet := &model.Wallet{Address: "WalletNoHistory", WinRate: 80, Trades7d: 5, PnLTotalSOL: 20, IsActive: true}
	require.NoError(t, st.Wallets.Upsert(ctx, wallet))

	score, err := calc.CalculateScore(ctx, wallet)
	require.NoError(t, err)

	// Wallet-row stats still count; consistency falls back to half
	// credit and no traded tokens means perfect rug avoidance.
	want := Score(Metrics{
		WinRate:          80,
		Trades7d:         5,
		PnLTotalSOL:      20,
		Consistency:      defaultConsistency,
		EarlyEntryRate:   0,
		RugAvoidanceRate: 100,
	})
	assert.Equal(t, want, score)
}

func TestCalculateScore_RuggedTokenLowersScore(t *testing.T) {
	calc, st := newTestCalculator(t)
	ctx := context.Background()
	now := time.Now().UTC()

	wallet := &model.Wallet{Address: "WalletRugged", WinRate: 90, Trades7d: 10, PnLTotalSOL: 50, IsActive: true}
	require.NoError(t, st.Wallets.Upsert(ctx, wallet))

	require.NoError(t, st.Tokens.Upsert(ctx, &model.Token{ContractAddress: "TokenClean"}))
	require.NoError(t, st.Tokens.Upsert(ctx, &model.Token{ContractAddress: "TokenBad"}))
	require.NoError(t, st.Tokens.MarkRugged(ctx, "TokenBad"))

	seedTrade(t, st, wallet.Address, "TokenClean", model.TradeBuy, 1.0, now.Add(-2*time.Hour))
	baseline, err := calc.CalculateScore(ctx, wallet)
	require.NoError(t, err)

	seedTrade(t, st, wallet.Address, "TokenBad", model.TradeBuy, 1.0, now.Add(-time.Hour))
	withRug, err := calc.CalculateScore(ctx, wallet)
	require.NoError(t, err)

	assert.Less(t, withRug, baseline)
}

func TestCalculateScore_EarlyEntryCredit(t *testing.T) {
	calc, st := newTestCalculator(t)
	ctx := context.Background()
	now := time.Now().UTC()

	wallet := &model.Wallet{Address: "WalletSniper", WinRate: 50, IsActive: true}
	require.NoError(t, st.Wallets.Upsert(ctx, wallet))

	launch := now.Add(-3 * time.Hour)
	require.NoError(t, st.Tokens.Upsert(ctx, &model.Token{ContractAddress: "TokenFresh", LaunchedAt: &launch}))

	// Buy ten minutes after launch is inside the early window
	seedTrade(t, st, wallet.Address, "TokenFresh", model.TradeBuy, 1.0, launch.Add(10*time.Minute))

	score, err := calc.CalculateScore(ctx, wallet)
	require.NoError(t, err)

	// 100% early entries saturates the early-entry component
	want := Score(Metrics{Consistency: defaultConsistency, EarlyEntryRate: 100, RugAvoidanceRate: 100})
	assert.Equal(t, want, score)
}

func TestCalculateScore_LateEntryNoCredit(t *testing.T) {
	calc, st := newTestCalculator(t)
	ctx := context.Background()
	now := time.Now().UTC()

	wallet := &model.Wallet{Address: "WalletLate", IsActive: true}
	require.NoError(t, st.Wallets.Upsert(ctx, wallet))

	launch := now.Add(-6 * time.Hour)
	require.NoError(t, st.Tokens.Upsert(ctx, &model.Token{ContractAddress: "TokenOld", LaunchedAt: &launch}))

	seedTrade(t, st, wallet.Address, "TokenOld", model.TradeBuy, 1.0, launch.Add(2*time.Hour))

	score, err := calc.CalculateScore(ctx, wallet)
	require.NoError(t, err)

	want := Score(Metrics{Consistency: defaultConsistency, EarlyEntryRate: 0, RugAvoidanceRate: 100})
	assert.Equal(t, want, score)
}

func TestUpdateAllScores_SkipsNothingOnCleanRun(t *testing.T) {
	calc, st := newTestCalculator(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, st.Wallets.Upsert(ctx, &model.Wallet{
			Address:  fmt.Sprintf("Wallet%d", i),
			WinRate:  60 + float64(i)*10,
			Trades7d: i * 5,
			IsActive: true,
		}))
	}
	require.NoError(t, st.Wallets.Upsert(ctx, &model.Wallet{Address: "WalletDormant", IsActive: false}))

	updated, err := calc.UpdateAllScores(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, updated)

	w, err := st.Wallets.GetByAddress(ctx, "Wallet2")
	require.NoError(t, err)
	assert.Greater(t, w.ConvictionScore, 0.0)

	dormant, err := st.Wallets.GetByAddress(ctx, "WalletDormant")
	require.NoError(t, err)
	assert.Zero(t, dormant.ConvictionScore)
}

func TestTopWallets_OrderedAndFiltered(t *testing.T) {
	calc, st := newTestCalculator(t)
	ctx := context.Background()

	scores := map[string]float64{"WalletA": 85, "WalletB": 40, "WalletC": 92}
	for addr, score := range scores {
		require.NoError(t, st.Wallets.Upsert(ctx, &model.Wallet{Address: addr, IsActive: true}))
		require.NoError(t, st.Wallets.UpdateConvictionScore(ctx, addr, score))
	}

	top, err := calc.TopWallets(ctx, 10, 50)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "WalletC", top[0].Address)
	assert.Equal(t, "WalletA", top[1].Address)
}
