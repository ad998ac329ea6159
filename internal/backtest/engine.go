// Package backtest replays historical alerts against configurable
// entry/exit strategies and reports aggregate performance. Read-only:
// it never writes to the store.
package backtest

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/solpulse/engine/internal/model"
	"github.com/solpulse/engine/internal/store"
	"github.com/solpulse/engine/pkg/logger"
)

// ExitStrategy selects how a simulated position is closed
type ExitStrategy string

const (
	// ExitFixedTime closes after HoldDuration at the then-current price
	ExitFixedTime ExitStrategy = "fixed_time"

	// ExitTakeProfit closes at the target price when a recorded trade
	// touches it, otherwise assumes a decayed timeout exit at -10%
	ExitTakeProfit ExitStrategy = "take_profit"
)

// Window around the target exit time within which a recorded trade
// counts as the exit price
const exitPriceTolerance = 5 * time.Minute

// Config selects which alerts to replay and how to trade them
type Config struct {
	StartDate time.Time
	EndDate   time.Time

	// Empty means all signal types
	SignalTypes []model.SignalType

	// Alerts whose average trigger win rate is below this are skipped
	MinWalletWinRate float64

	PositionSizeSOL float64

	Strategy      ExitStrategy
	HoldDuration  time.Duration
	TakeProfitPct float64

	SkipRugged bool

	// Seed for the stochastic price fallback; same seed, same result
	Seed int64
}

// SimulatedTrade is one replayed alert
type SimulatedTrade struct {
	AlertID      int64
	TokenAddress string
	SignalType   model.SignalType
	EntryTime    time.Time
	ExitTime     time.Time
	EntryPrice   float64
	ExitPrice    float64
	PnLPct       float64
	PnLSOL       float64
	Simulated    bool // exit price came from the stochastic fallback
}

// Result aggregates a full backtest run
type Result struct {
	Config Config

	Trades  []SimulatedTrade
	Skipped int

	WinRate        float64
	TotalPnLPct    float64
	TotalPnLSOL    float64
	AvgPnLPct      float64
	BestPnLPct     float64
	WorstPnLPct    float64
	MaxDrawdownPct float64
	ProfitFactor   float64 // +Inf when there are no losing trades

	ByType map[model.SignalType]TypeStats
}

// TypeStats breaks performance down per signal type
type TypeStats struct {
	Trades    int
	Winners   int
	WinRate   float64
	AvgPnLPct float64
}

// Engine replays alerts from the store
type Engine struct {
	store  *store.Store
	logger *logger.Logger
}

// NewEngine creates a backtest engine
func NewEngine(st *store.Store, log *logger.Logger) *Engine {
	return &Engine{store: st, logger: log}
}

// Run replays all matching alerts and aggregates performance
func (e *Engine) Run(ctx context.Context, cfg Config) (*Result, error) {
	if cfg.PositionSizeSOL <= 0 {
		cfg.PositionSizeSOL = 1.0
	}
	if cfg.HoldDuration <= 0 {
		cfg.HoldDuration = time.Hour
	}
	if cfg.Strategy == "" {
		cfg.Strategy = ExitFixedTime
	}

	alerts, err := e.store.Alerts.ListByRange(ctx, cfg.StartDate, cfg.EndDate, cfg.SignalTypes)
	if err != nil {
		return nil, fmt.Errorf("load alerts: %w", err)
	}

	sort.Slice(alerts, func(i, j int) bool {
		return alerts[i].CreatedAt.Before(alerts[j].CreatedAt)
	})

	rng := rand.New(rand.NewSource(cfg.Seed))
	result := &Result{
		Config: cfg,
		ByType: make(map[model.SignalType]TypeStats),
	}

	for _, alert := range alerts {
		trade, skip, err := e.simulate(ctx, alert, cfg, rng)
		if err != nil {
			e.logger.WithError(err).WithField("alert_id", alert.ID).Debug("Alert simulation failed, skipping")
			result.Skipped++
			continue
		}
		if skip {
			result.Skipped++
			continue
		}
		result.Trades = append(result.Trades, *trade)
	}

	e.aggregate(result)

	e.logger.WithFields(map[string]interface{}{
		"trades":   len(result.Trades),
		"skipped":  result.Skipped,
		"win_rate": fmt.Sprintf("%.1f", result.WinRate),
	}).Info("Backtest completed")

	return result, nil
}

func (e *Engine) simulate(ctx context.Context, alert *model.Alert, cfg Config, rng *rand.Rand) (*SimulatedTrade, bool, error) {
	if cfg.MinWalletWinRate > 0 && alert.AvgWinRate < cfg.MinWalletWinRate {
		return nil, true, nil
	}

	token, err := e.store.Tokens.Get(ctx, alert.TokenAddress)
	if err != nil {
		return nil, false, fmt.Errorf("load token: %w", err)
	}
	if cfg.SkipRugged && token.IsRugged {
		return nil, true, nil
	}
	if token.TotalSupply <= 0 {
		return nil, true, nil
	}

	entryPrice := e.priceNear(ctx, alert.TokenAddress, alert.CreatedAt, token.TotalSupply)
	if entryPrice <= 0 && token.MarketCapSOL > 0 {
		entryPrice = token.MarketCapSOL / token.TotalSupply
	}
	if entryPrice <= 0 {
		return nil, true, nil
	}

	exitTime := alert.CreatedAt.Add(cfg.HoldDuration)
	var exitPrice float64
	simulated := false

	switch cfg.Strategy {
	case ExitTakeProfit:
		target := entryPrice * (1 + cfg.TakeProfitPct/100)
		if _, hitTime, ok := e.firstPriceAbove(ctx, alert.TokenAddress, alert.CreatedAt, exitTime, token.TotalSupply, target); ok {
			exitPrice = target
			exitTime = hitTime
			break
		}
		// Target never reached before the deadline
		exitPrice = entryPrice * 0.9
		simulated = true
	default:
		exitPrice = e.priceNear(ctx, alert.TokenAddress, exitTime, token.TotalSupply)
		if exitPrice <= 0 {
			exitPrice = e.stochasticExit(entryPrice, token.IsRugged, rng)
			simulated = true
		}
	}

	pnlPct := (exitPrice - entryPrice) / entryPrice * 100

	return &SimulatedTrade{
		AlertID:      alert.ID,
		TokenAddress: alert.TokenAddress,
		SignalType:   alert.Type,
		EntryTime:    alert.CreatedAt,
		ExitTime:     exitTime,
		EntryPrice:   entryPrice,
		ExitPrice:    exitPrice,
		PnLPct:       pnlPct,
		PnLSOL:       cfg.PositionSizeSOL * pnlPct / 100,
		Simulated:    simulated,
	}, false, nil
}

// priceNear reconstructs a price from the trade closest to the target
// time within the tolerance window
func (e *Engine) priceNear(ctx context.Context, tokenAddr string, at time.Time, supply float64) float64 {
	trades, err := e.store.Trades.ListByTokenBetween(ctx, tokenAddr,
		at.Add(-exitPriceTolerance), at.Add(exitPriceTolerance))
	if err != nil || len(trades) == 0 {
		return 0
	}

	best := trades[0]
	bestDist := absDuration(best.BlockTime.Sub(at))
	for _, trade := range trades[1:] {
		if d := absDuration(trade.BlockTime.Sub(at)); d < bestDist {
			best = trade
			bestDist = d
		}
	}
	if best.McapAtTrade <= 0 {
		return 0
	}
	return best.McapAtTrade / supply
}

// firstPriceAbove scans trades chronologically between entry and the
// deadline for the first one whose implied price clears the target
func (e *Engine) firstPriceAbove(ctx context.Context, tokenAddr string, from, to time.Time, supply, target float64) (float64, time.Time, bool) {
	trades, err := e.store.Trades.ListByTokenBetween(ctx, tokenAddr, from, to)
	if err != nil {
		return 0, time.Time{}, false
	}
	sort.Slice(trades, func(i, j int) bool {
		return trades[i].BlockTime.Before(trades[j].BlockTime)
	})
	for _, trade := range trades {
		if trade.McapAtTrade <= 0 {
			continue
		}
		if price := trade.McapAtTrade / supply; price >= target {
			return price, trade.BlockTime, true
		}
	}
	return 0, time.Time{}, false
}

// stochasticExit models an exit price when no trade data exists near
// the exit time. Rugged tokens land uniformly at 10% to 50% of entry;
// everything else draws from a gaussian centered slightly above entry,
// floored at 10% of entry.
func (e *Engine) stochasticExit(entryPrice float64, rugged bool, rng *rand.Rand) float64 {
	if rugged {
		return entryPrice * (0.1 + rng.Float64()*0.4)
	}
	mult := rng.NormFloat64()*0.5 + 1.2
	if mult < 0.1 {
		mult = 0.1
	}
	return entryPrice * mult
}

func (e *Engine) aggregate(r *Result) {
	if len(r.Trades) == 0 {
		return
	}

	type bucket struct {
		trades  int
		winners int
		pnlSum  float64
	}
	byType := make(map[model.SignalType]*bucket)

	var winners int
	var grossWin, grossLoss float64
	cumulative, peak, maxDD := 0.0, 0.0, 0.0

	r.BestPnLPct = r.Trades[0].PnLPct
	r.WorstPnLPct = r.Trades[0].PnLPct

	for _, trade := range r.Trades {
		r.TotalPnLPct += trade.PnLPct
		r.TotalPnLSOL += trade.PnLSOL
		if trade.PnLPct > 0 {
			winners++
			grossWin += trade.PnLPct
		} else {
			grossLoss += -trade.PnLPct
		}
		if trade.PnLPct > r.BestPnLPct {
			r.BestPnLPct = trade.PnLPct
		}
		if trade.PnLPct < r.WorstPnLPct {
			r.WorstPnLPct = trade.PnLPct
		}

		cumulative += trade.PnLPct
		if cumulative > peak {
			peak = cumulative
		}
		if dd := peak - cumulative; dd > maxDD {
			maxDD = dd
		}

		b := byType[trade.SignalType]
		if b == nil {
			b = &bucket{}
			byType[trade.SignalType] = b
		}
		b.trades++
		b.pnlSum += trade.PnLPct
		if trade.PnLPct > 0 {
			b.winners++
		}
	}

	n := float64(len(r.Trades))
	r.WinRate = float64(winners) / n * 100
	r.AvgPnLPct = r.TotalPnLPct / n
	r.MaxDrawdownPct = maxDD

	if grossLoss > 0 {
		r.ProfitFactor = grossWin / grossLoss
	} else if grossWin > 0 {
		r.ProfitFactor = math.Inf(1)
	}

	for sigType, b := range byType {
		stats := TypeStats{
			Trades:    b.trades,
			Winners:   b.winners,
			AvgPnLPct: b.pnlSum / float64(b.trades),
		}
		stats.WinRate = float64(b.winners) / float64(b.trades) * 100
		r.ByType[sigType] = stats
	}
}

// Report renders a plain-text summary of a backtest run
func (e *Engine) Report(r *Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Backtest %s to %s\n",
		r.Config.StartDate.Format("2006-01-02"), r.Config.EndDate.Format("2006-01-02"))
	fmt.Fprintf(&b, "Strategy: %s, hold %s, position %.2f SOL\n\n",
		r.Config.Strategy, r.Config.HoldDuration, r.Config.PositionSizeSOL)
	fmt.Fprintf(&b, "Trades: %d (skipped %d)\n", len(r.Trades), r.Skipped)
	fmt.Fprintf(&b, "Win Rate: %.1f%%\n", r.WinRate)
	fmt.Fprintf(&b, "Total PnL: %+.1f%% (%+.3f SOL)\n", r.TotalPnLPct, r.TotalPnLSOL)
	fmt.Fprintf(&b, "Avg PnL: %+.1f%%\n", r.AvgPnLPct)
	fmt.Fprintf(&b, "Best: %+.1f%%  Worst: %+.1f%%\n", r.BestPnLPct, r.WorstPnLPct)
	fmt.Fprintf(&b, "Max Drawdown: %.1f%%\n", r.MaxDrawdownPct)
	if math.IsInf(r.ProfitFactor, 1) {
		fmt.Fprintf(&b, "Profit Factor: inf\n")
	} else {
		fmt.Fprintf(&b, "Profit Factor: %.2f\n", r.ProfitFactor)
	}
	if len(r.ByType) > 0 {
		fmt.Fprintf(&b, "\nBy Signal Type:\n")
		for _, sigType := range model.AllSignalTypes() {
			if stats, ok := r.ByType[sigType]; ok {
				fmt.Fprintf(&b, "  %s: %d trades, %.1f%% WR, %+.1f%% avg\n",
					sigType, stats.Trades, stats.WinRate, stats.AvgPnLPct)
			}
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
