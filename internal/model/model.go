package model

import "time"

// TradeType distinguishes buys from sells
type TradeType string

const (
	TradeBuy  TradeType = "BUY"
	TradeSell TradeType = "SELL"
)

// SignalType identifies which trigger condition fired
type SignalType string

const (
	SignalHighConviction SignalType = "high_conviction"
	SignalClusterBuy     SignalType = "cluster_buy"
	SignalVolumeSpike    SignalType = "volume_spike"
)

// AllSignalTypes lists every signal type in evaluation order
func AllSignalTypes() []SignalType {
	return []SignalType{SignalHighConviction, SignalClusterBuy, SignalVolumeSpike}
}

// OutcomeStatus classifies how an alert played out
type OutcomeStatus string

const (
	OutcomePending OutcomeStatus = "pending"
	OutcomeWinner  OutcomeStatus = "winner"
	OutcomeLoser   OutcomeStatus = "loser"
	OutcomeRugged  OutcomeStatus = "rugged"
)

// RiskLevel classifies rug-check severity
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Wallet is a tracked smart wallet with performance metrics.
// ConvictionScore is recomputed by the conviction calculator only.
type Wallet struct {
	Address string `json:"address"`
	Tag     string `json:"tag,omitempty"`
	Source  string `json:"source"` // gmgn, dexscreener, manual

	WinRate     float64 `json:"win_rate"` // 0-100
	TotalTrades int     `json:"total_trades"`
	Trades7d    int     `json:"trades_7d"`
	PnLTotalSOL float64 `json:"pnl_total_sol"`
	PnL7dSOL    float64 `json:"pnl_7d_sol"`

	ConvictionScore float64 `json:"conviction_score"` // 0-100, derived

	IsActive     bool       `json:"is_active"`
	LastActivity *time.Time `json:"last_activity,omitempty"`

	DiscoveredAt time.Time `json:"discovered_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// MeetsThreshold reports whether the wallet qualifies for tracking
func (w *Wallet) MeetsThreshold(minWinRate float64, minTrades7d int) bool {
	return w.WinRate >= minWinRate && w.Trades7d >= minTrades7d
}

// Token is a traded token, created lazily on first observed trade.
// IsRugged is a one-way flag set by the outcome tracker.
type Token struct {
	ContractAddress string `json:"contract_address"`

	Name     string `json:"name,omitempty"`   // empty until enriched
	Symbol   string `json:"symbol,omitempty"` // empty until enriched
	Decimals int    `json:"decimals"`

	MarketCapSOL float64 `json:"market_cap_sol"`
	LiquiditySOL float64 `json:"liquidity_sol"`
	TotalSupply  float64 `json:"total_supply"`

	Platform string `json:"platform"` // pump_fun, raydium, unknown

	LaunchedAt   *time.Time `json:"launched_at,omitempty"`
	DiscoveredAt time.Time  `json:"discovered_at"`
	IsRugged     bool       `json:"is_rugged"`
}

// AgeMinutes returns minutes since launch, 0 when launch time is unknown
func (t *Token) AgeMinutes(now time.Time) float64 {
	if t.LaunchedAt == nil {
		return 0
	}
	return now.Sub(*t.LaunchedAt).Minutes()
}

// Label returns the symbol when known, otherwise a shortened address
func (t *Token) Label() string {
	if t.Symbol != "" {
		return t.Symbol
	}
	return ShortAddress(t.ContractAddress)
}

// Trade is an immutable record of one buy/sell from a tracked wallet.
// TxSignature is the idempotency key: replayed events never duplicate.
type Trade struct {
	ID int64 `json:"id"`

	WalletAddress string `json:"wallet_address"`
	TokenAddress  string `json:"token_address"`

	TxSignature string    `json:"tx_signature"`
	Type        TradeType `json:"trade_type"`

	SOLAmount   float64 `json:"sol_amount"`
	TokenAmount float64 `json:"token_amount"`

	SupplyPct   float64 `json:"supply_percentage"` // % of total supply at trade time
	McapAtTrade float64 `json:"mcap_at_trade"`     // market cap in SOL, 0 if unknown

	BlockTime   time.Time `json:"block_time"`
	ProcessedAt time.Time `json:"processed_at"`
}

// Alert is a persisted snapshot of a triggered signal.
// Outcome fields stay nil until the alert is at least 30 minutes old.
type Alert struct {
	ID int64 `json:"id"`

	TokenAddress string     `json:"token_address"`
	Type         SignalType `json:"alert_type"`

	TriggerData string `json:"trigger_data"` // JSON: wallets, amounts, rug check

	TotalSOLVolume float64 `json:"total_sol_volume"`
	WalletCount    int     `json:"wallet_count"`
	AvgWinRate     float64 `json:"avg_win_rate"`
	MaxSupplyPct   float64 `json:"max_supply_pct"`

	Sent      bool       `json:"is_sent"`
	SentAt    *time.Time `json:"sent_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`

	OutcomePnL       *float64   `json:"outcome_pnl,omitempty"`
	OutcomeCheckedAt *time.Time `json:"outcome_checked_at,omitempty"`
}

// ClusterEvent records a detected multi-wallet buy cluster, immutable once written.
type ClusterEvent struct {
	ID int64 `json:"id"`

	TokenAddress    string   `json:"token_address"`
	WalletAddresses []string `json:"wallet_addresses"`
	WalletCount     int      `json:"wallet_count"`
	TotalSOL        float64  `json:"total_sol"`

	FirstBuyAt    time.Time `json:"first_buy_at"`
	LastBuyAt     time.Time `json:"last_buy_at"`
	WindowSeconds int       `json:"window_seconds"`

	CreatedAt time.Time `json:"created_at"`
}

// ShortAddress truncates a Solana address for log output
func ShortAddress(addr string) string {
	if len(addr) <= 8 {
		return addr
	}
	return addr[:8] + "..."
}
