// Package outcome re-prices alerted tokens after the fact and
// classifies each alert as winner, loser or rugged. The only writer of
// alert outcome fields and the token rug flag.
package outcome

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/solpulse/engine/internal/metadata"
	"github.com/solpulse/engine/internal/model"
	"github.com/solpulse/engine/internal/store"
	"github.com/solpulse/engine/pkg/logger"
)

// Classification thresholds (return %)
const (
	WinThresholdPct  = 20.0
	LossThresholdPct = -30.0
	RugThresholdPct  = -80.0
)

const (
	// Alerts younger than this are never classified
	MinAlertAge = 30 * time.Minute

	// Already-checked alerts are re-priced after this long
	RecheckInterval = 4 * time.Hour

	// Bounded batch per cycle
	checkBatchSize = 50
)

// Outcome is the result of re-pricing one alert
type Outcome struct {
	AlertID      int64
	TokenAddress string
	Status       model.OutcomeStatus

	PriceAtAlert float64
	PriceCurrent float64
	ReturnPct    float64

	AlertAge  time.Duration
	CheckedAt time.Time
}

// Stats aggregates alert performance over a trailing window
type Stats struct {
	TotalAlerts int
	Winners     int
	Losers      int
	Rugged      int
	Pending     int

	WinRate       float64 // % of resolved (winner+loser) alerts that won
	AvgReturnPct  float64 // average return on winners
	AvgLossPct    float64 // average return on losers
	BestReturnPct float64
	WorstLossPct  float64

	WinRateByType map[model.SignalType]float64
}

// Tracker checks alert outcomes on a periodic cycle
type Tracker struct {
	store  *store.Store
	meta   metadata.Provider
	logger *logger.Logger
}

// NewTracker creates an outcome tracker
func NewTracker(st *store.Store, meta metadata.Provider, log *logger.Logger) *Tracker {
	return &Tracker{
		store:  st,
		meta:   meta,
		logger: log,
	}
}

// Classify maps a return percentage to an outcome status. The rug
// threshold wins over the loss threshold; anything between the loss
// and win thresholds stays pending.
func Classify(returnPct float64) model.OutcomeStatus {
	switch {
	case returnPct <= RugThresholdPct:
		return model.OutcomeRugged
	case returnPct >= WinThresholdPct:
		return model.OutcomeWinner
	case returnPct <= LossThresholdPct:
		return model.OutcomeLoser
	default:
		return model.OutcomePending
	}
}

// CheckAlertOutcome re-prices one alert and persists its outcome.
// Alerts younger than MinAlertAge are left untouched.
func (t *Tracker) CheckAlertOutcome(ctx context.Context, alert *model.Alert) (*Outcome, error) {
	now := time.Now().UTC()
	age := now.Sub(alert.CreatedAt)

	if age < MinAlertAge {
		return &Outcome{
			AlertID:      alert.ID,
			TokenAddress: alert.TokenAddress,
			Status:       model.OutcomePending,
			AlertAge:     age,
			CheckedAt:    now,
		}, nil
	}

	token, err := t.store.Tokens.Get(ctx, alert.TokenAddress)
	if err != nil {
		return nil, fmt.Errorf("load token: %w", err)
	}

	meta, err := t.meta.GetTokenMetadata(ctx, token.ContractAddress)
	if err != nil {
		return nil, fmt.Errorf("fetch current price: %w", err)
	}

	supply := meta.TotalSupply
	if supply <= 0 {
		supply = token.TotalSupply
	}

	currentPrice := meta.PriceSOL
	if currentPrice <= 0 && supply > 0 {
		currentPrice = meta.MarketCapSOL / supply
	}

	priceAtAlert := t.priceAtAlert(ctx, alert, supply)
	if priceAtAlert <= 0 {
		// No trade data near alert time; return stays zero → pending
		priceAtAlert = currentPrice
	}

	returnPct := 0.0
	if priceAtAlert > 0 {
		returnPct = (currentPrice - priceAtAlert) / priceAtAlert * 100
	}

	status := Classify(returnPct)

	if status == model.OutcomeRugged && !token.IsRugged {
		if err := t.store.Tokens.MarkRugged(ctx, token.ContractAddress); err != nil {
			t.logger.WithError(err).WithField("token", token.Label()).Warn("Failed to flag token rugged")
		}
	}

	if err := t.store.Alerts.UpdateOutcome(ctx, alert.ID, returnPct, now); err != nil {
		return nil, fmt.Errorf("persist outcome: %w", err)
	}

	t.logger.WithFields(map[string]interface{}{
		"alert_id":   alert.ID,
		"status":     status,
		"return_pct": fmt.Sprintf("%+.1f", returnPct),
		"age_mins":   int(age.Minutes()),
	}).Info("Alert outcome checked")

	return &Outcome{
		AlertID:      alert.ID,
		TokenAddress: alert.TokenAddress,
		Status:       status,
		PriceAtAlert: priceAtAlert,
		PriceCurrent: currentPrice,
		ReturnPct:    returnPct,
		AlertAge:     age,
		CheckedAt:    now,
	}, nil
}

// priceAtAlert reconstructs the entry price from trade market caps
// recorded within a minute of the alert
func (t *Tracker) priceAtAlert(ctx context.Context, alert *model.Alert, supply float64) float64 {
	if supply <= 0 {
		return 0
	}

	trades, err := t.store.Trades.ListByTokenBetween(ctx,
		alert.TokenAddress,
		alert.CreatedAt.Add(-time.Minute),
		alert.CreatedAt.Add(time.Minute),
	)
	if err != nil {
		t.logger.WithError(err).WithField("alert_id", alert.ID).Debug("Trigger trade lookup failed")
		return 0
	}

	for _, trade := range trades {
		if trade.McapAtTrade > 0 {
			return trade.McapAtTrade / supply
		}
	}
	return 0
}

// CheckPendingAlerts processes a bounded batch of alerts needing an
// outcome check: older than MinAlertAge, never checked or last checked
// more than RecheckInterval ago. Per-alert failures are logged and
// skipped.
func (t *Tracker) CheckPendingAlerts(ctx context.Context) ([]*Outcome, error) {
	now := time.Now().UTC()
	alerts, err := t.store.Alerts.ListNeedingOutcomeCheck(ctx,
		now.Add(-MinAlertAge),
		now.Add(-RecheckInterval),
		checkBatchSize,
	)
	if err != nil {
		return nil, fmt.Errorf("select alerts for outcome check: %w", err)
	}

	var outcomes []*Outcome
	for _, alert := range alerts {
		outcome, err := t.CheckAlertOutcome(ctx, alert)
		if err != nil {
			t.logger.WithError(err).WithField("alert_id", alert.ID).Warn("Outcome check failed, skipping")
			continue
		}
		outcomes = append(outcomes, outcome)
	}

	if len(outcomes) > 0 {
		t.logger.WithField("checked", len(outcomes)).Info("Outcome batch completed")
	}
	return outcomes, nil
}

// GetPerformanceStats aggregates win rates over the trailing window
func (t *Tracker) GetPerformanceStats(ctx context.Context, window time.Duration) (*Stats, error) {
	since := time.Now().UTC().Add(-window)

	alerts, err := t.store.Alerts.ListWithOutcome(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("load resolved alerts: %w", err)
	}

	pending, err := t.store.Alerts.CountPending(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("count pending alerts: %w", err)
	}

	stats := &Stats{
		Pending:       pending,
		WinRateByType: make(map[model.SignalType]float64),
	}

	type bucket struct{ winners, losers int }
	byType := make(map[model.SignalType]*bucket)

	var winnerSum, loserSum float64
	for i, a := range alerts {
		pnl := *a.OutcomePnL
		if i == 0 || pnl > stats.BestReturnPct {
			stats.BestReturnPct = pnl
		}
		if i == 0 || pnl < stats.WorstLossPct {
			stats.WorstLossPct = pnl
		}

		b := byType[a.Type]
		if b == nil {
			b = &bucket{}
			byType[a.Type] = b
		}

		switch Classify(pnl) {
		case model.OutcomeRugged:
			stats.Rugged++
			stats.Losers++
			loserSum += pnl
			b.losers++
		case model.OutcomeWinner:
			stats.Winners++
			winnerSum += pnl
			b.winners++
		case model.OutcomeLoser:
			stats.Losers++
			loserSum += pnl
			b.losers++
		default:
			stats.Pending++
		}
	}

	stats.TotalAlerts = len(alerts) + pending

	resolved := stats.Winners + stats.Losers
	if resolved > 0 {
		stats.WinRate = float64(stats.Winners) / float64(resolved) * 100
	}
	if stats.Winners > 0 {
		stats.AvgReturnPct = winnerSum / float64(stats.Winners)
	}
	if stats.Losers > 0 {
		stats.AvgLossPct = loserSum / float64(stats.Losers)
	}

	for sigType, b := range byType {
		typeResolved := b.winners + b.losers
		if typeResolved > 0 {
			stats.WinRateByType[sigType] = float64(b.winners) / float64(typeResolved) * 100
		}
	}

	return stats, nil
}

// Report renders a plain-text performance summary
func (t *Tracker) Report(stats *Stats, window time.Duration) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Performance Report (%s)\n\n", window)
	fmt.Fprintf(&b, "Total Alerts: %d\n", stats.TotalAlerts)
	fmt.Fprintf(&b, "Winners: %d (%.1f%%)\n", stats.Winners, stats.WinRate)
	fmt.Fprintf(&b, "Losers: %d\n", stats.Losers)
	fmt.Fprintf(&b, "Rugged: %d\n", stats.Rugged)
	fmt.Fprintf(&b, "Pending: %d\n\n", stats.Pending)
	fmt.Fprintf(&b, "Avg Winner: %+.1f%%\n", stats.AvgReturnPct)
	fmt.Fprintf(&b, "Avg Loser: %+.1f%%\n", stats.AvgLossPct)
	fmt.Fprintf(&b, "Best: %+.1f%%  Worst: %+.1f%%\n\n", stats.BestReturnPct, stats.WorstLossPct)
	fmt.Fprintf(&b, "By Signal Type:\n")
	for _, sigType := range model.AllSignalTypes() {
		if wr, ok := stats.WinRateByType[sigType]; ok {
			fmt.Fprintf(&b, "  %s: %.1f%% WR\n", sigType, wr)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
