// Package signal implements the core signal-detection state machine:
// it ingests buy events from tracked wallets, records them and
// evaluates the high-conviction, cluster-buy and volume-spike
// triggers.
package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/solpulse/engine/internal/metadata"
	"github.com/solpulse/engine/internal/model"
	"github.com/solpulse/engine/internal/risk"
	"github.com/solpulse/engine/internal/store"
	"github.com/solpulse/engine/pkg/config"
	"github.com/solpulse/engine/pkg/logger"
)

// BuyEvent is one parsed buy transaction from the ingress layer
type BuyEvent struct {
	WalletAddress string    `json:"wallet_address"`
	TokenAddress  string    `json:"token_address"`
	SOLAmount     float64   `json:"sol_amount"`
	TokenAmount   float64   `json:"token_amount"`
	TxSignature   string    `json:"tx_signature"`
	BlockTime     time.Time `json:"block_time"`

	// Optional market context; zero when the ingress could not resolve it
	MarketCapSOL float64 `json:"market_cap_sol,omitempty"`
	TotalSupply  float64 `json:"total_supply,omitempty"`
}

// Result carries one triggered signal and its context
type Result struct {
	Type    model.SignalType
	Token   *model.Token
	Trades  []*model.Trade
	Wallets []*model.Wallet

	TotalSOL     float64
	MaxSupplyPct float64
	Details      map[string]interface{}

	// Rug-check results, populated by EnrichAndValidate
	RugChecked   bool
	RugPassed    bool
	RugRiskScore int
	RugWarnings  []string
}

// Processor evaluates buy events against the three trigger conditions.
// Exclusively owns creation of Trade, Alert and ClusterEvent records.
type Processor struct {
	store    *store.Store
	meta     metadata.Provider
	assessor risk.Assessor
	cfg      config.SignalConfig
	logger   *logger.Logger
}

// NewProcessor creates a signal processor
func NewProcessor(st *store.Store, meta metadata.Provider, assessor risk.Assessor, cfg config.SignalConfig, log *logger.Logger) *Processor {
	return &Processor{
		store:    st,
		meta:     meta,
		assessor: assessor,
		cfg:      cfg,
		logger:   log,
	}
}

// ProcessBuyEvent records the trade and evaluates all trigger
// conditions. Unknown wallets produce no trade and no signals.
// Re-submission of an already-seen tx signature reuses the stored
// trade and cannot re-fire the single-trade trigger.
func (p *Processor) ProcessBuyEvent(ctx context.Context, ev BuyEvent) ([]*Result, error) {
	wallet, err := p.store.Wallets.GetByAddress(ctx, ev.WalletAddress)
	if err != nil {
		if store.IsNotFound(err) {
			p.logger.WithField("wallet", model.ShortAddress(ev.WalletAddress)).Debug("Unknown wallet, skipping")
			return nil, nil
		}
		return nil, fmt.Errorf("lookup wallet: %w", err)
	}

	token, err := p.getOrCreateToken(ctx, ev)
	if err != nil {
		return nil, fmt.Errorf("resolve token: %w", err)
	}

	supplyPct := 0.0
	if ev.TotalSupply > 0 {
		supplyPct = ev.TokenAmount / ev.TotalSupply * 100
	}

	trade, fresh, err := p.recordTrade(ctx, wallet, token, ev, supplyPct)
	if err != nil {
		return nil, fmt.Errorf("record trade: %w", err)
	}

	var signals []*Result

	// Single-trade trigger only fires for a trade we have not seen before
	if fresh {
		if res := p.checkHighConviction(wallet, trade, token); res != nil {
			signals = append(signals, res)
			p.logger.WithFields(map[string]interface{}{
				"wallet":     model.ShortAddress(wallet.Address),
				"token":      token.Label(),
				"supply_pct": fmt.Sprintf("%.2f", trade.SupplyPct),
			}).Info("HIGH CONVICTION signal")
		}
	}

	res, err := p.checkClusterBuy(ctx, token)
	if err != nil {
		return signals, fmt.Errorf("cluster check: %w", err)
	}
	if res != nil {
		signals = append(signals, res)
		p.logger.WithFields(map[string]interface{}{
			"token":   token.Label(),
			"wallets": res.Details["wallet_count"],
		}).Info("CLUSTER BUY signal")
	}

	if token.AgeMinutes(time.Now().UTC()) <= float64(p.cfg.NewTokenMaxAgeMinutes) {
		res, err := p.checkVolumeSpike(ctx, token)
		if err != nil {
			return signals, fmt.Errorf("volume spike check: %w", err)
		}
		if res != nil {
			signals = append(signals, res)
			p.logger.WithFields(map[string]interface{}{
				"token": token.Label(),
				"ratio": res.Details["volume_ratio"],
			}).Info("VOLUME SPIKE signal")
		}
	}

	return signals, nil
}

// getOrCreateToken lazily creates the token on first observed trade,
// defaulting the launch time to now, and refreshes market fields when
// the event supplied them
func (p *Processor) getOrCreateToken(ctx context.Context, ev BuyEvent) (*model.Token, error) {
	token, err := p.store.Tokens.Get(ctx, ev.TokenAddress)
	if err != nil {
		if !store.IsNotFound(err) {
			return nil, err
		}
		now := time.Now().UTC()
		token = &model.Token{
			ContractAddress: ev.TokenAddress,
			Decimals:        9,
			MarketCapSOL:    ev.MarketCapSOL,
			TotalSupply:     ev.TotalSupply,
			Platform:        "unknown",
			LaunchedAt:      &now, // approximate: first time we saw it
		}
		if err := p.store.Tokens.Upsert(ctx, token); err != nil {
			return nil, err
		}
		return token, nil
	}

	changed := false
	if ev.MarketCapSOL > 0 && ev.MarketCapSOL != token.MarketCapSOL {
		token.MarketCapSOL = ev.MarketCapSOL
		changed = true
	}
	if ev.TotalSupply > 0 && ev.TotalSupply != token.TotalSupply {
		token.TotalSupply = ev.TotalSupply
		changed = true
	}
	if changed {
		if err := p.store.Tokens.Upsert(ctx, token); err != nil {
			return nil, err
		}
	}
	return token, nil
}

// recordTrade persists the trade, deduplicating on tx signature.
// Returns the stored trade and whether it was newly created.
func (p *Processor) recordTrade(ctx context.Context, wallet *model.Wallet, token *model.Token, ev BuyEvent, supplyPct float64) (*model.Trade, bool, error) {
	existing, err := p.store.Trades.GetBySignature(ctx, ev.TxSignature)
	if err == nil {
		p.logger.WithField("tx", model.ShortAddress(ev.TxSignature)).Debug("Duplicate tx signature, reusing trade")
		return existing, false, nil
	}
	if !store.IsNotFound(err) {
		return nil, false, err
	}

	trade := &model.Trade{
		WalletAddress: wallet.Address,
		TokenAddress:  token.ContractAddress,
		TxSignature:   ev.TxSignature,
		Type:          model.TradeBuy,
		SOLAmount:     ev.SOLAmount,
		TokenAmount:   ev.TokenAmount,
		SupplyPct:     supplyPct,
		McapAtTrade:   ev.MarketCapSOL,
		BlockTime:     ev.BlockTime,
	}
	if err := p.store.Trades.Insert(ctx, trade); err != nil {
		// A concurrent delivery of the same event lost the race; reuse theirs
		if err == store.ErrDuplicate {
			existing, gerr := p.store.Trades.GetBySignature(ctx, ev.TxSignature)
			if gerr != nil {
				return nil, false, gerr
			}
			return existing, false, nil
		}
		return nil, false, err
	}

	if err := p.store.Wallets.UpdateLastActivity(ctx, wallet.Address, ev.BlockTime); err != nil {
		p.logger.WithError(err).WithField("wallet", model.ShortAddress(wallet.Address)).Warn("Failed to update wallet activity")
	}

	return trade, true, nil
}

// checkHighConviction fires when a single trade clears both the
// absolute SOL size and the supply-percentage thresholds
func (p *Processor) checkHighConviction(wallet *model.Wallet, trade *model.Trade, token *model.Token) *Result {
	if trade.SOLAmount < p.cfg.HighConvictionMinSOL || trade.SupplyPct < p.cfg.HighConvictionMinSupplyPct {
		return nil
	}

	return &Result{
		Type:         model.SignalHighConviction,
		Token:        token,
		Trades:       []*model.Trade{trade},
		Wallets:      []*model.Wallet{wallet},
		TotalSOL:     trade.SOLAmount,
		MaxSupplyPct: trade.SupplyPct,
		Details: map[string]interface{}{
			"wallet_address":   wallet.Address,
			"wallet_win_rate":  wallet.WinRate,
			"sol_amount":       trade.SOLAmount,
			"supply_pct":       trade.SupplyPct,
			"conviction_score": wallet.ConvictionScore,
		},
	}
}

// checkClusterBuy fires when enough distinct wallets have qualifying
// buys on the token inside the trailing window. On trigger it persists
// an immutable ClusterEvent snapshot.
func (p *Processor) checkClusterBuy(ctx context.Context, token *model.Token) (*Result, error) {
	since := time.Now().UTC().Add(-time.Duration(p.cfg.ClusterWindowMinutes) * time.Minute)
	trades, err := p.store.Trades.RecentBuysForToken(ctx, token.ContractAddress, since)
	if err != nil {
		return nil, err
	}

	var qualifying []*model.Trade
	for _, t := range trades {
		if t.SOLAmount >= p.cfg.ClusterMinSOL {
			qualifying = append(qualifying, t)
		}
	}

	seen := make(map[string]bool)
	var addresses []string
	for _, t := range qualifying {
		if !seen[t.WalletAddress] {
			seen[t.WalletAddress] = true
			addresses = append(addresses, t.WalletAddress)
		}
	}
	if len(addresses) < p.cfg.ClusterMinWallets {
		return nil, nil
	}

	var wallets []*model.Wallet
	var totalWinRate float64
	for _, addr := range addresses {
		w, err := p.store.Wallets.GetByAddress(ctx, addr)
		if err != nil {
			p.logger.WithError(err).WithField("wallet", model.ShortAddress(addr)).Warn("Cluster wallet lookup failed")
			continue
		}
		wallets = append(wallets, w)
		totalWinRate += w.WinRate
	}

	var totalSOL, maxSupply float64
	first, last := qualifying[0].BlockTime, qualifying[0].BlockTime
	for _, t := range qualifying {
		totalSOL += t.SOLAmount
		if t.SupplyPct > maxSupply {
			maxSupply = t.SupplyPct
		}
		if t.BlockTime.Before(first) {
			first = t.BlockTime
		}
		if t.BlockTime.After(last) {
			last = t.BlockTime
		}
	}

	event := &model.ClusterEvent{
		TokenAddress:    token.ContractAddress,
		WalletAddresses: addresses,
		WalletCount:     len(addresses),
		TotalSOL:        totalSOL,
		FirstBuyAt:      first,
		LastBuyAt:       last,
		WindowSeconds:   int(last.Sub(first).Seconds()),
	}
	if err := p.store.Clusters.Insert(ctx, event); err != nil {
		return nil, fmt.Errorf("record cluster event: %w", err)
	}

	avgWinRate := 0.0
	if len(wallets) > 0 {
		avgWinRate = totalWinRate / float64(len(wallets))
	}

	return &Result{
		Type:         model.SignalClusterBuy,
		Token:        token,
		Trades:       qualifying,
		Wallets:      wallets,
		TotalSOL:     totalSOL,
		MaxSupplyPct: maxSupply,
		Details: map[string]interface{}{
			"wallet_count":     len(addresses),
			"wallet_addresses": addresses,
			"avg_win_rate":     avgWinRate,
			"window_minutes":   p.cfg.ClusterWindowMinutes,
		},
	}, nil
}

// checkVolumeSpike fires when trailing-5-minute buy volume exceeds the
// configured fraction of market cap. Skipped when market cap is unknown.
func (p *Processor) checkVolumeSpike(ctx context.Context, token *model.Token) (*Result, error) {
	if token.MarketCapSOL <= 0 {
		return nil, nil
	}

	since := time.Now().UTC().Add(-5 * time.Minute)
	trades, err := p.store.Trades.RecentBuysForToken(ctx, token.ContractAddress, since)
	if err != nil {
		return nil, err
	}

	var volume float64
	for _, t := range trades {
		volume += t.SOLAmount
	}

	ratio := volume / token.MarketCapSOL
	if ratio < p.cfg.VolumeSpikeThreshold {
		return nil, nil
	}

	return &Result{
		Type:     model.SignalVolumeSpike,
		Token:    token,
		Trades:   trades,
		TotalSOL: volume,
		Details: map[string]interface{}{
			"volume_5m_sol":  volume,
			"market_cap_sol": token.MarketCapSOL,
			"volume_ratio":   ratio,
			"threshold":      p.cfg.VolumeSpikeThreshold,
			"token_age_mins": token.AgeMinutes(time.Now().UTC()),
		},
	}, nil
}

// EnrichAndValidate attaches fresh token metadata and a rug-risk
// assessment to a triggered signal. Best effort: any failure logs and
// returns the signal unchanged, never dropping it.
func (p *Processor) EnrichAndValidate(ctx context.Context, sig *Result) *Result {
	if sig == nil || sig.Token == nil {
		return sig
	}

	meta, err := p.meta.GetTokenMetadata(ctx, sig.Token.ContractAddress)
	if err != nil {
		p.logger.WithError(err).WithField("token", sig.Token.Label()).Error("Signal enrichment failed")
		return sig
	}

	if meta.Name != "" {
		sig.Token.Name = meta.Name
	}
	if meta.Symbol != "" {
		sig.Token.Symbol = meta.Symbol
	}
	if meta.MarketCapSOL > 0 {
		sig.Token.MarketCapSOL = meta.MarketCapSOL
	}
	if meta.LiquiditySOL > 0 {
		sig.Token.LiquiditySOL = meta.LiquiditySOL
	}
	if meta.TotalSupply > 0 {
		sig.Token.TotalSupply = meta.TotalSupply
	}

	if err := p.store.Tokens.Upsert(ctx, sig.Token); err != nil {
		p.logger.WithError(err).WithField("token", sig.Token.Label()).Error("Token refresh failed")
		return sig
	}

	check, err := p.assessor.CheckToken(ctx, sig.Token.ContractAddress)
	if err != nil {
		p.logger.WithError(err).WithField("token", sig.Token.Label()).Error("Rug check failed, passing signal through")
		return sig
	}

	sig.RugChecked = true
	sig.RugPassed = check.Passed
	sig.RugRiskScore = check.RiskScore
	sig.RugWarnings = check.Warnings

	topWarnings := check.Warnings
	if len(topWarnings) > 3 {
		topWarnings = topWarnings[:3]
	}
	sig.Details["rug_check"] = map[string]interface{}{
		"passed":     check.Passed,
		"risk_score": check.RiskScore,
		"risk_level": check.RiskLevel,
		"warnings":   topWarnings,
	}

	if !check.Passed {
		p.logger.WithFields(map[string]interface{}{
			"token": sig.Token.Label(),
			"score": check.RiskScore,
		}).Warn("Rug check failed for signal")
	}

	return sig
}

// triggerWallet is the wallet snapshot serialized into alert trigger data
type triggerWallet struct {
	Address         string  `json:"address"`
	WinRate         float64 `json:"win_rate"`
	ConvictionScore float64 `json:"conviction_score"`
}

// triggerData is the serialized trigger context stored on the alert
type triggerData struct {
	Wallets  []triggerWallet        `json:"wallets"`
	Details  map[string]interface{} `json:"details"`
	RugCheck map[string]interface{} `json:"rug_check,omitempty"`
}

// CreateAlert persists an alert snapshot of the signal. Returns nil
// (suppressing the alert) when the signal was rug-checked and failed
// and suppression is enabled. Trades and cluster events stay recorded
// either way; suppression happens at the alert layer only.
func (p *Processor) CreateAlert(ctx context.Context, sig *Result, skipRugFailed bool) (*model.Alert, error) {
	if skipRugFailed && sig.RugChecked && !sig.RugPassed {
		p.logger.WithFields(map[string]interface{}{
			"token": sig.Token.Label(),
			"score": sig.RugRiskScore,
		}).Info("Suppressing alert, rug check failed")
		return nil, nil
	}

	td := triggerData{Details: sig.Details}
	for _, w := range sig.Wallets {
		td.Wallets = append(td.Wallets, triggerWallet{
			Address:         w.Address,
			WinRate:         w.WinRate,
			ConvictionScore: w.ConvictionScore,
		})
	}
	if sig.RugChecked {
		td.RugCheck = map[string]interface{}{
			"passed":     sig.RugPassed,
			"risk_score": sig.RugRiskScore,
			"warnings":   sig.RugWarnings,
		}
	}

	payload, err := json.Marshal(td)
	if err != nil {
		return nil, fmt.Errorf("marshal trigger data: %w", err)
	}

	avgWinRate := 0.0
	if v, ok := sig.Details["avg_win_rate"].(float64); ok {
		avgWinRate = v
	} else if len(sig.Wallets) > 0 {
		avgWinRate = sig.Wallets[0].WinRate
	}

	alert := &model.Alert{
		TokenAddress:   sig.Token.ContractAddress,
		Type:           sig.Type,
		TriggerData:    string(payload),
		TotalSOLVolume: sig.TotalSOL,
		WalletCount:    len(sig.Wallets),
		AvgWinRate:     avgWinRate,
		MaxSupplyPct:   sig.MaxSupplyPct,
	}
	if err := p.store.Alerts.Insert(ctx, alert); err != nil {
		return nil, fmt.Errorf("insert alert: %w", err)
	}

	p.logger.WithFields(map[string]interface{}{
		"alert_type": alert.Type,
		"token":      sig.Token.Label(),
	}).Info("Alert created")

	return alert, nil
}

// PendingAlerts returns undelivered alerts, oldest first
func (p *Processor) PendingAlerts(ctx context.Context, limit int) ([]*model.Alert, error) {
	return p.store.Alerts.ListUnsent(ctx, limit)
}

// MarkAlertSent flips the one-way sent flag. Must be called exactly
// once per delivered alert so polling consumers never re-deliver.
func (p *Processor) MarkAlertSent(ctx context.Context, alert *model.Alert) error {
	now := time.Now().UTC()
	if err := p.store.Alerts.MarkSent(ctx, alert.ID, now); err != nil {
		return fmt.Errorf("mark alert sent: %w", err)
	}
	alert.Sent = true
	alert.SentAt = &now
	return nil
}
