package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/solpulse/engine/internal/model"
)

// NewPostgres returns a Store backed by PostgreSQL
func NewPostgres(pool *pgxpool.Pool) *Store {
	return &Store{
		Wallets:  &pgWallets{db: pool},
		Tokens:   &pgTokens{db: pool},
		Trades:   &pgTrades{db: pool},
		Alerts:   &pgAlerts{db: pool},
		Clusters: &pgClusters{db: pool},
	}
}

// Migrate creates the schema if it does not exist
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, schema)
	if err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS wallets (
	address          TEXT PRIMARY KEY,
	tag              TEXT NOT NULL DEFAULT '',
	source           TEXT NOT NULL DEFAULT 'manual',
	win_rate         DOUBLE PRECISION NOT NULL DEFAULT 0,
	total_trades     INTEGER NOT NULL DEFAULT 0,
	trades_7d        INTEGER NOT NULL DEFAULT 0,
	pnl_total_sol    DOUBLE PRECISION NOT NULL DEFAULT 0,
	pnl_7d_sol       DOUBLE PRECISION NOT NULL DEFAULT 0,
	conviction_score DOUBLE PRECISION NOT NULL DEFAULT 0,
	is_active        BOOLEAN NOT NULL DEFAULT TRUE,
	last_activity    TIMESTAMPTZ,
	discovered_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_wallets_conviction ON wallets (conviction_score DESC) WHERE is_active;

CREATE TABLE IF NOT EXISTS tokens (
	contract_address TEXT PRIMARY KEY,
	name             TEXT NOT NULL DEFAULT '',
	symbol           TEXT NOT NULL DEFAULT '',
	decimals         INTEGER NOT NULL DEFAULT 9,
	market_cap_sol   DOUBLE PRECISION NOT NULL DEFAULT 0,
	liquidity_sol    DOUBLE PRECISION NOT NULL DEFAULT 0,
	total_supply     DOUBLE PRECISION NOT NULL DEFAULT 0,
	platform         TEXT NOT NULL DEFAULT 'unknown',
	launched_at      TIMESTAMPTZ,
	discovered_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	is_rugged        BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS trades (
	id             BIGSERIAL PRIMARY KEY,
	wallet_address TEXT NOT NULL REFERENCES wallets (address),
	token_address  TEXT NOT NULL REFERENCES tokens (contract_address),
	tx_signature   TEXT NOT NULL UNIQUE,
	trade_type     TEXT NOT NULL,
	sol_amount     DOUBLE PRECISION NOT NULL,
	token_amount   DOUBLE PRECISION NOT NULL,
	supply_pct     DOUBLE PRECISION NOT NULL DEFAULT 0,
	mcap_at_trade  DOUBLE PRECISION NOT NULL DEFAULT 0,
	block_time     TIMESTAMPTZ NOT NULL,
	processed_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_trades_token_time ON trades (token_address, block_time);
CREATE INDEX IF NOT EXISTS idx_trades_wallet ON trades (wallet_address);

CREATE TABLE IF NOT EXISTS alerts (
	id                 BIGSERIAL PRIMARY KEY,
	token_address      TEXT NOT NULL REFERENCES tokens (contract_address),
	alert_type         TEXT NOT NULL,
	trigger_data       JSONB NOT NULL DEFAULT '{}',
	total_sol_volume   DOUBLE PRECISION NOT NULL DEFAULT 0,
	wallet_count       INTEGER NOT NULL DEFAULT 1,
	avg_win_rate       DOUBLE PRECISION NOT NULL DEFAULT 0,
	max_supply_pct     DOUBLE PRECISION NOT NULL DEFAULT 0,
	is_sent            BOOLEAN NOT NULL DEFAULT FALSE,
	sent_at            TIMESTAMPTZ,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	outcome_pnl        DOUBLE PRECISION,
	outcome_checked_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_alerts_unsent ON alerts (created_at) WHERE NOT is_sent;
CREATE INDEX IF NOT EXISTS idx_alerts_type_time ON alerts (alert_type, created_at);

CREATE TABLE IF NOT EXISTS cluster_events (
	id               BIGSERIAL PRIMARY KEY,
	token_address    TEXT NOT NULL REFERENCES tokens (contract_address),
	wallet_addresses JSONB NOT NULL,
	wallet_count     INTEGER NOT NULL,
	total_sol        DOUBLE PRECISION NOT NULL,
	first_buy_at     TIMESTAMPTZ NOT NULL,
	last_buy_at      TIMESTAMPTZ NOT NULL,
	window_seconds   INTEGER NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_cluster_token_time ON cluster_events (token_address, created_at);
`

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

type pgWallets struct {
	db *pgxpool.Pool
}

const walletColumns = `address, tag, source, win_rate, total_trades, trades_7d,
	pnl_total_sol, pnl_7d_sol, conviction_score, is_active, last_activity,
	discovered_at, updated_at`

func scanWallet(row pgx.Row) (*model.Wallet, error) {
	var w model.Wallet
	err := row.Scan(
		&w.Address, &w.Tag, &w.Source, &w.WinRate, &w.TotalTrades, &w.Trades7d,
		&w.PnLTotalSOL, &w.PnL7dSOL, &w.ConvictionScore, &w.IsActive, &w.LastActivity,
		&w.DiscoveredAt, &w.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &w, nil
}

func (r *pgWallets) GetByAddress(ctx context.Context, address string) (*model.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE address = $1`
	w, err := scanWallet(r.db.QueryRow(ctx, query, address))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("query wallet: %w", err)
	}
	return w, nil
}

func (r *pgWallets) Upsert(ctx context.Context, w *model.Wallet) error {
	query := `
		INSERT INTO wallets (
			address, tag, source, win_rate, total_trades, trades_7d,
			pnl_total_sol, pnl_7d_sol, conviction_score, is_active, last_activity
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (address) DO UPDATE SET
			tag           = EXCLUDED.tag,
			source        = EXCLUDED.source,
			win_rate      = EXCLUDED.win_rate,
			total_trades  = EXCLUDED.total_trades,
			trades_7d     = EXCLUDED.trades_7d,
			pnl_total_sol = EXCLUDED.pnl_total_sol,
			pnl_7d_sol    = EXCLUDED.pnl_7d_sol,
			is_active     = EXCLUDED.is_active,
			updated_at    = NOW()
	`
	_, err := r.db.Exec(ctx, query,
		w.Address, w.Tag, w.Source, w.WinRate, w.TotalTrades, w.Trades7d,
		w.PnLTotalSOL, w.PnL7dSOL, w.ConvictionScore, w.IsActive, w.LastActivity,
	)
	if err != nil {
		return fmt.Errorf("upsert wallet: %w", err)
	}
	return nil
}

func (r *pgWallets) ListActive(ctx context.Context) ([]*model.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE is_active ORDER BY address`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query active wallets: %w", err)
	}
	defer rows.Close()

	var wallets []*model.Wallet
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, fmt.Errorf("scan wallet: %w", err)
		}
		wallets = append(wallets, w)
	}
	return wallets, rows.Err()
}

func (r *pgWallets) UpdateConvictionScore(ctx context.Context, address string, score float64) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE wallets SET conviction_score = $2, updated_at = NOW() WHERE address = $1`,
		address, score,
	)
	if err != nil {
		return fmt.Errorf("update conviction score: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *pgWallets) UpdateLastActivity(ctx context.Context, address string, at time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE wallets SET last_activity = $2 WHERE address = $1`,
		address, at,
	)
	if err != nil {
		return fmt.Errorf("update last activity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *pgWallets) Deactivate(ctx context.Context, address string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE wallets SET is_active = FALSE, updated_at = NOW() WHERE address = $1`,
		address,
	)
	if err != nil {
		return fmt.Errorf("deactivate wallet: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *pgWallets) TopByConviction(ctx context.Context, limit int, minScore float64) ([]*model.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets
		WHERE is_active AND conviction_score >= $1
		ORDER BY conviction_score DESC
		LIMIT $2`
	rows, err := r.db.Query(ctx, query, minScore, limit)
	if err != nil {
		return nil, fmt.Errorf("query top wallets: %w", err)
	}
	defer rows.Close()

	var wallets []*model.Wallet
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, fmt.Errorf("scan wallet: %w", err)
		}
		wallets = append(wallets, w)
	}
	return wallets, rows.Err()
}

type pgTokens struct {
	db *pgxpool.Pool
}

const tokenColumns = `contract_address, name, symbol, decimals, market_cap_sol,
	liquidity_sol, total_supply, platform, launched_at, discovered_at, is_rugged`

func scanToken(row pgx.Row) (*model.Token, error) {
	var t model.Token
	err := row.Scan(
		&t.ContractAddress, &t.Name, &t.Symbol, &t.Decimals, &t.MarketCapSOL,
		&t.LiquiditySOL, &t.TotalSupply, &t.Platform, &t.LaunchedAt, &t.DiscoveredAt, &t.IsRugged,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (r *pgTokens) Get(ctx context.Context, address string) (*model.Token, error) {
	query := `SELECT ` + tokenColumns + ` FROM tokens WHERE contract_address = $1`
	t, err := scanToken(r.db.QueryRow(ctx, query, address))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("query token: %w", err)
	}
	return t, nil
}

func (r *pgTokens) Upsert(ctx context.Context, t *model.Token) error {
	query := `
		INSERT INTO tokens (
			contract_address, name, symbol, decimals, market_cap_sol,
			liquidity_sol, total_supply, platform, launched_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (contract_address) DO UPDATE SET
			name           = EXCLUDED.name,
			symbol         = EXCLUDED.symbol,
			decimals       = EXCLUDED.decimals,
			market_cap_sol = EXCLUDED.market_cap_sol,
			liquidity_sol  = EXCLUDED.liquidity_sol,
			total_supply   = EXCLUDED.total_supply,
			platform       = EXCLUDED.platform
	`
	_, err := r.db.Exec(ctx, query,
		t.ContractAddress, t.Name, t.Symbol, t.Decimals, t.MarketCapSOL,
		t.LiquiditySOL, t.TotalSupply, t.Platform, t.LaunchedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert token: %w", err)
	}
	return nil
}

func (r *pgTokens) MarkRugged(ctx context.Context, address string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE tokens SET is_rugged = TRUE WHERE contract_address = $1`,
		address,
	)
	if err != nil {
		return fmt.Errorf("mark token rugged: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

type pgTrades struct {
	db *pgxpool.Pool
}

const tradeColumns = `id, wallet_address, token_address, tx_signature, trade_type,
	sol_amount, token_amount, supply_pct, mcap_at_trade, block_time, processed_at`

func scanTrade(row pgx.Row) (*model.Trade, error) {
	var t model.Trade
	err := row.Scan(
		&t.ID, &t.WalletAddress, &t.TokenAddress, &t.TxSignature, &t.Type,
		&t.SOLAmount, &t.TokenAmount, &t.SupplyPct, &t.McapAtTrade, &t.BlockTime, &t.ProcessedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (r *pgTrades) GetBySignature(ctx context.Context, txSignature string) (*model.Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE tx_signature = $1`
	t, err := scanTrade(r.db.QueryRow(ctx, query, txSignature))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("query trade: %w", err)
	}
	return t, nil
}

func (r *pgTrades) Insert(ctx context.Context, t *model.Trade) error {
	query := `
		INSERT INTO trades (
			wallet_address, token_address, tx_signature, trade_type,
			sol_amount, token_amount, supply_pct, mcap_at_trade, block_time
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, processed_at
	`
	err := r.db.QueryRow(ctx, query,
		t.WalletAddress, t.TokenAddress, t.TxSignature, t.Type,
		t.SOLAmount, t.TokenAmount, t.SupplyPct, t.McapAtTrade, t.BlockTime,
	).Scan(&t.ID, &t.ProcessedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert trade: %w", err)
	}
	return nil
}

func (r *pgTrades) queryTrades(ctx context.Context, query string, args ...interface{}) ([]*model.Trade, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	var trades []*model.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

func (r *pgTrades) RecentBuysForToken(ctx context.Context, tokenAddress string, since time.Time) ([]*model.Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades
		WHERE token_address = $1 AND trade_type = 'BUY' AND block_time >= $2
		ORDER BY block_time`
	return r.queryTrades(ctx, query, tokenAddress, since)
}

func (r *pgTrades) ListByWallet(ctx context.Context, walletAddress string) ([]*model.Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades
		WHERE wallet_address = $1
		ORDER BY block_time`
	return r.queryTrades(ctx, query, walletAddress)
}

func (r *pgTrades) ListByTokenBetween(ctx context.Context, tokenAddress string, from, to time.Time) ([]*model.Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades
		WHERE token_address = $1 AND block_time BETWEEN $2 AND $3
		ORDER BY block_time`
	return r.queryTrades(ctx, query, tokenAddress, from, to)
}

type pgAlerts struct {
	db *pgxpool.Pool
}

const alertColumns = `id, token_address, alert_type, trigger_data, total_sol_volume,
	wallet_count, avg_win_rate, max_supply_pct, is_sent, sent_at, created_at,
	outcome_pnl, outcome_checked_at`

func scanAlert(row pgx.Row) (*model.Alert, error) {
	var a model.Alert
	err := row.Scan(
		&a.ID, &a.TokenAddress, &a.Type, &a.TriggerData, &a.TotalSOLVolume,
		&a.WalletCount, &a.AvgWinRate, &a.MaxSupplyPct, &a.Sent, &a.SentAt, &a.CreatedAt,
		&a.OutcomePnL, &a.OutcomeCheckedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (r *pgAlerts) queryAlerts(ctx context.Context, query string, args ...interface{}) ([]*model.Alert, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*model.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

func (r *pgAlerts) Insert(ctx context.Context, a *model.Alert) error {
	query := `
		INSERT INTO alerts (
			token_address, alert_type, trigger_data, total_sol_volume,
			wallet_count, avg_win_rate, max_supply_pct
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`
	err := r.db.QueryRow(ctx, query,
		a.TokenAddress, a.Type, a.TriggerData, a.TotalSOLVolume,
		a.WalletCount, a.AvgWinRate, a.MaxSupplyPct,
	).Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

func (r *pgAlerts) ListUnsent(ctx context.Context, limit int) ([]*model.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts
		WHERE NOT is_sent
		ORDER BY created_at
		LIMIT $1`
	return r.queryAlerts(ctx, query, limit)
}

func (r *pgAlerts) MarkSent(ctx context.Context, id int64, at time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE alerts SET is_sent = TRUE, sent_at = $2 WHERE id = $1`,
		id, at,
	)
	if err != nil {
		return fmt.Errorf("mark alert sent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *pgAlerts) ListNeedingOutcomeCheck(ctx context.Context, createdBefore, recheckBefore time.Time, limit int) ([]*model.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts
		WHERE created_at <= $1
		  AND (outcome_checked_at IS NULL OR outcome_checked_at <= $2)
		ORDER BY created_at
		LIMIT $3`
	return r.queryAlerts(ctx, query, createdBefore, recheckBefore, limit)
}

func (r *pgAlerts) UpdateOutcome(ctx context.Context, id int64, pnl float64, checkedAt time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE alerts SET outcome_pnl = $2, outcome_checked_at = $3 WHERE id = $1`,
		id, pnl, checkedAt,
	)
	if err != nil {
		return fmt.Errorf("update alert outcome: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *pgAlerts) ListByRange(ctx context.Context, from, to time.Time, types []model.SignalType) ([]*model.Alert, error) {
	if len(types) == 0 {
		types = model.AllSignalTypes()
	}
	typeStrs := make([]string, len(types))
	for i, t := range types {
		typeStrs[i] = string(t)
	}
	query := `SELECT ` + alertColumns + ` FROM alerts
		WHERE created_at BETWEEN $1 AND $2 AND alert_type = ANY($3)
		ORDER BY created_at`
	return r.queryAlerts(ctx, query, from, to, typeStrs)
}

func (r *pgAlerts) ListWithOutcome(ctx context.Context, since time.Time) ([]*model.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts
		WHERE created_at >= $1 AND outcome_pnl IS NOT NULL`
	return r.queryAlerts(ctx, query, since)
}

func (r *pgAlerts) CountPending(ctx context.Context, since time.Time) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM alerts WHERE created_at >= $1 AND outcome_pnl IS NULL`,
		since,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count pending alerts: %w", err)
	}
	return count, nil
}

type pgClusters struct {
	db *pgxpool.Pool
}

func (r *pgClusters) Insert(ctx context.Context, e *model.ClusterEvent) error {
	addresses, err := json.Marshal(e.WalletAddresses)
	if err != nil {
		return fmt.Errorf("marshal wallet addresses: %w", err)
	}

	query := `
		INSERT INTO cluster_events (
			token_address, wallet_addresses, wallet_count, total_sol,
			first_buy_at, last_buy_at, window_seconds
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`
	err = r.db.QueryRow(ctx, query,
		e.TokenAddress, addresses, e.WalletCount, e.TotalSOL,
		e.FirstBuyAt, e.LastBuyAt, e.WindowSeconds,
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert cluster event: %w", err)
	}
	return nil
}

func (r *pgClusters) ListForToken(ctx context.Context, tokenAddress string, limit int) ([]*model.ClusterEvent, error) {
	query := `SELECT id, token_address, wallet_addresses, wallet_count, total_sol,
			first_buy_at, last_buy_at, window_seconds, created_at
		FROM cluster_events
		WHERE token_address = $1
		ORDER BY created_at DESC
		LIMIT $2`
	rows, err := r.db.Query(ctx, query, tokenAddress, limit)
	if err != nil {
		return nil, fmt.Errorf("query cluster events: %w", err)
	}
	defer rows.Close()

	var events []*model.ClusterEvent
	for rows.Next() {
		var e model.ClusterEvent
		var addresses []byte
		err := rows.Scan(
			&e.ID, &e.TokenAddress, &addresses, &e.WalletCount, &e.TotalSOL,
			&e.FirstBuyAt, &e.LastBuyAt, &e.WindowSeconds, &e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan cluster event: %w", err)
		}
		if err := json.Unmarshal(addresses, &e.WalletAddresses); err != nil {
			return nil, fmt.Errorf("unmarshal wallet addresses: %w", err)
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}
