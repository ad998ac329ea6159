// Package conviction scores wallet reliability from historical trade
// statistics. The score is the only wallet field this package mutates.
package conviction

import (
	"context"
	"math"
	"time"

	"github.com/solpulse/engine/internal/model"
	"github.com/solpulse/engine/internal/store"
	"github.com/solpulse/engine/pkg/logger"
)

// Component weights; the six components sum to 100
const (
	weightWinRate      = 30.0
	weightConsistency  = 20.0
	weightFrequency    = 15.0
	weightPnL          = 15.0
	weightEarlyEntry   = 10.0
	weightRugAvoidance = 10.0

	// Scaling anchors
	fullFrequencyTrades7d = 10.0
	fullPnLSOL            = 100.0
	fullEarlyEntryRate    = 50.0
	earlyEntryWindowMins  = 30.0

	// Consistency falls back to half credit with too few samples
	minTokensForConsistency = 3
	defaultConsistency      = 50.0
)

// Metrics holds the inputs to a score calculation
type Metrics struct {
	WinRate          float64
	Trades7d         int
	PnLTotalSOL      float64
	Consistency      float64 // 0-100, higher is steadier
	EarlyEntryRate   float64 // % of buys within 30 min of launch
	RugAvoidanceRate float64 // % of traded tokens not flagged rugged
}

// Calculator computes conviction scores for tracked wallets
type Calculator struct {
	store  *store.Store
	logger *logger.Logger
}

// NewCalculator creates a conviction calculator
func NewCalculator(st *store.Store, log *logger.Logger) *Calculator {
	return &Calculator{
		store:  st,
		logger: log,
	}
}

// CalculateScore computes the 0-100 conviction score for a wallet
func (c *Calculator) CalculateScore(ctx context.Context, wallet *model.Wallet) (float64, error) {
	metrics, err := c.gatherMetrics(ctx, wallet)
	if err != nil {
		return 0, err
	}

	score := Score(metrics)

	c.logger.WithFields(map[string]interface{}{
		"wallet": model.ShortAddress(wallet.Address),
		"score":  score,
	}).Debug("Conviction score computed")

	return score, nil
}

// Score converts gathered metrics into the composite 0-100 score.
// Each component is clamped to its weight; the sum is clamped to [0,100].
func Score(m Metrics) float64 {
	total := scoreWinRate(m.WinRate) +
		scoreConsistency(m.Consistency) +
		scoreFrequency(m.Trades7d) +
		scorePnL(m.PnLTotalSOL) +
		scoreEarlyEntry(m.EarlyEntryRate) +
		scoreRugAvoidance(m.RugAvoidanceRate)

	return clamp(total, 0, 100)
}

// scoreWinRate: 50% wins scores zero, 100% scores full weight, linear
func scoreWinRate(winRate float64) float64 {
	if winRate <= 50 {
		return 0
	}
	return clamp((winRate-50)/50, 0, 1) * weightWinRate
}

func scoreConsistency(consistency float64) float64 {
	return clamp(consistency/100, 0, 1) * weightConsistency
}

func scoreFrequency(trades7d int) float64 {
	return math.Min(1, float64(trades7d)/fullFrequencyTrades7d) * weightFrequency
}

func scorePnL(pnlTotal float64) float64 {
	if pnlTotal <= 0 {
		return 0
	}
	return math.Min(1, pnlTotal/fullPnLSOL) * weightPnL
}

func scoreEarlyEntry(earlyRate float64) float64 {
	return math.Min(1, earlyRate/fullEarlyEntryRate) * weightEarlyEntry
}

// scoreRugAvoidance: 50% avoidance scores zero, 100% scores full weight
func scoreRugAvoidance(avoidanceRate float64) float64 {
	if avoidanceRate <= 50 {
		return 0
	}
	return clamp((avoidanceRate-50)/50, 0, 1) * weightRugAvoidance
}

// gatherMetrics derives score inputs from the wallet row and its trade
// history
func (c *Calculator) gatherMetrics(ctx context.Context, wallet *model.Wallet) (Metrics, error) {
	trades, err := c.store.Trades.ListByWallet(ctx, wallet.Address)
	if err != nil {
		return Metrics{}, err
	}

	metrics := Metrics{
		WinRate:          wallet.WinRate,
		Trades7d:         wallet.Trades7d,
		PnLTotalSOL:      wallet.PnLTotalSOL,
		RugAvoidanceRate: 100, // no tokens traded counts as perfect avoidance
	}

	var buys []*model.Trade
	for _, t := range trades {
		if t.Type == model.TradeBuy {
			buys = append(buys, t)
		}
	}

	metrics.EarlyEntryRate = c.earlyEntryRate(ctx, buys)
	metrics.RugAvoidanceRate = c.rugAvoidanceRate(ctx, buys)
	metrics.Consistency = consistency(trades)

	return metrics, nil
}

// earlyEntryRate is the percentage of buys placed within the early
// window after token launch
func (c *Calculator) earlyEntryRate(ctx context.Context, buys []*model.Trade) float64 {
	if len(buys) == 0 {
		return 0
	}

	launches := make(map[string]*time.Time)
	early := 0
	for _, t := range buys {
		launched, ok := launches[t.TokenAddress]
		if !ok {
			token, err := c.store.Tokens.Get(ctx, t.TokenAddress)
			if err != nil {
				launches[t.TokenAddress] = nil
				continue
			}
			launched = token.LaunchedAt
			launches[t.TokenAddress] = launched
		}
		if launched == nil {
			continue
		}
		if t.BlockTime.Sub(*launched).Minutes() <= earlyEntryWindowMins {
			early++
		}
	}

	return float64(early) / float64(len(buys)) * 100
}

// rugAvoidanceRate is the percentage of distinct traded tokens that
// were never flagged rugged
func (c *Calculator) rugAvoidanceRate(ctx context.Context, buys []*model.Trade) float64 {
	tokens := make(map[string]bool)
	for _, t := range buys {
		tokens[t.TokenAddress] = true
	}
	if len(tokens) == 0 {
		return 100
	}

	rugged := 0
	for addr := range tokens {
		token, err := c.store.Tokens.Get(ctx, addr)
		if err != nil {
			continue
		}
		if token.IsRugged {
			rugged++
		}
	}

	return float64(len(tokens)-rugged) / float64(len(tokens)) * 100
}

// consistency converts the coefficient of variation of per-token
// realized PnL into a 0-100 steadiness rating. Fewer than three
// distinct tokens yields the default half credit.
func consistency(trades []*model.Trade) float64 {
	perToken := make(map[string]float64)
	for _, t := range trades {
		if t.Type == model.TradeBuy {
			perToken[t.TokenAddress] -= t.SOLAmount
		} else {
			perToken[t.TokenAddress] += t.SOLAmount
		}
	}

	if len(perToken) < minTokensForConsistency {
		return defaultConsistency
	}

	var pnls []float64
	var sum float64
	for _, pnl := range perToken {
		pnls = append(pnls, pnl)
		sum += pnl
	}
	mean := sum / float64(len(pnls))
	if mean == 0 {
		return defaultConsistency
	}

	var variance float64
	for _, pnl := range pnls {
		diff := pnl - mean
		variance += diff * diff
	}
	variance /= float64(len(pnls))
	cv := math.Abs(math.Sqrt(variance) / mean)

	// CV of 0 is perfectly steady, CV of 2+ scores zero
	return math.Max(0, 100-cv*50)
}

// UpdateAllScores recomputes and persists the score for every active
// wallet. Per-wallet failures are logged and skipped; the batch always
// completes. Returns the number of wallets updated.
func (c *Calculator) UpdateAllScores(ctx context.Context) (int, error) {
	wallets, err := c.store.Wallets.ListActive(ctx)
	if err != nil {
		return 0, err
	}

	updated := 0
	for _, wallet := range wallets {
		score, err := c.CalculateScore(ctx, wallet)
		if err != nil {
			c.logger.WithError(err).WithField("wallet", model.ShortAddress(wallet.Address)).Warn("Score calculation failed, skipping")
			continue
		}
		if err := c.store.Wallets.UpdateConvictionScore(ctx, wallet.Address, score); err != nil {
			c.logger.WithError(err).WithField("wallet", model.ShortAddress(wallet.Address)).Warn("Score persist failed, skipping")
			continue
		}
		updated++
	}

	c.logger.WithField("updated", updated).Info("Conviction scores updated")
	return updated, nil
}

// TopWallets returns the conviction leaderboard
func (c *Calculator) TopWallets(ctx context.Context, limit int, minScore float64) ([]*model.Wallet, error) {
	return c.store.Wallets.TopByConviction(ctx, limit, minScore)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
