// Package store defines the persistence contracts consumed by the
// signal pipeline. The core never talks to a storage engine directly;
// it works against these interfaces. A Postgres implementation backs
// production and an in-memory implementation backs tests.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/solpulse/engine/internal/model"
)

// ErrNotFound is returned when a requested record does not exist
var ErrNotFound = errors.New("store: not found")

// ErrDuplicate is returned when a unique key already exists
var ErrDuplicate = errors.New("store: duplicate key")

// IsNotFound reports whether err means the record does not exist
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// WalletStore persists tracked wallets
type WalletStore interface {
	// GetByAddress returns the wallet or ErrNotFound
	GetByAddress(ctx context.Context, address string) (*model.Wallet, error)

	// Upsert inserts or updates a wallet keyed by address
	Upsert(ctx context.Context, wallet *model.Wallet) error

	// ListActive returns all active wallets
	ListActive(ctx context.Context) ([]*model.Wallet, error)

	// UpdateConvictionScore persists a recomputed score
	UpdateConvictionScore(ctx context.Context, address string, score float64) error

	// UpdateLastActivity records the most recent trade time
	UpdateLastActivity(ctx context.Context, address string, at time.Time) error

	// Deactivate marks a wallet inactive; wallets are never deleted
	Deactivate(ctx context.Context, address string) error

	// TopByConviction returns active wallets with score >= minScore,
	// best first, up to limit
	TopByConviction(ctx context.Context, limit int, minScore float64) ([]*model.Wallet, error)
}

// TokenStore persists tokens
type TokenStore interface {
	// Get returns the token or ErrNotFound
	Get(ctx context.Context, address string) (*model.Token, error)

	// Upsert inserts or updates a token keyed by contract address
	Upsert(ctx context.Context, token *model.Token) error

	// MarkRugged sets the one-way rug flag
	MarkRugged(ctx context.Context, address string) error
}

// TradeStore persists immutable trade records
type TradeStore interface {
	// GetBySignature returns the trade or ErrNotFound
	GetBySignature(ctx context.Context, txSignature string) (*model.Trade, error)

	// Insert stores a new trade and assigns its ID
	Insert(ctx context.Context, trade *model.Trade) error

	// RecentBuysForToken returns BUY trades for a token with
	// block_time >= since, the trailing-window query behind cluster
	// and volume-spike detection
	RecentBuysForToken(ctx context.Context, tokenAddress string, since time.Time) ([]*model.Trade, error)

	// ListByWallet returns all trades for a wallet
	ListByWallet(ctx context.Context, walletAddress string) ([]*model.Trade, error)

	// ListByTokenBetween returns trades for a token within [from, to]
	ListByTokenBetween(ctx context.Context, tokenAddress string, from, to time.Time) ([]*model.Trade, error)
}

// AlertStore persists alerts and their outcome fields
type AlertStore interface {
	// Insert stores a new alert and assigns its ID
	Insert(ctx context.Context, alert *model.Alert) error

	// ListUnsent returns alerts not yet delivered, oldest first
	ListUnsent(ctx context.Context, limit int) ([]*model.Alert, error)

	// MarkSent flips the one-way sent flag
	MarkSent(ctx context.Context, id int64, at time.Time) error

	// ListNeedingOutcomeCheck returns alerts created before createdBefore
	// whose outcome was never checked or was last checked before
	// recheckBefore, up to limit
	ListNeedingOutcomeCheck(ctx context.Context, createdBefore, recheckBefore time.Time, limit int) ([]*model.Alert, error)

	// UpdateOutcome persists outcome_pnl and outcome_checked_at
	UpdateOutcome(ctx context.Context, id int64, pnl float64, checkedAt time.Time) error

	// ListByRange returns alerts created within [from, to] matching the
	// given signal types (all types when empty), oldest first
	ListByRange(ctx context.Context, from, to time.Time, types []model.SignalType) ([]*model.Alert, error)

	// ListWithOutcome returns alerts created after since whose outcome
	// has been populated
	ListWithOutcome(ctx context.Context, since time.Time) ([]*model.Alert, error)

	// CountPending returns alerts created after since with no outcome yet
	CountPending(ctx context.Context, since time.Time) (int, error)
}

// ClusterStore persists detected cluster events
type ClusterStore interface {
	// Insert stores a new cluster event and assigns its ID
	Insert(ctx context.Context, event *model.ClusterEvent) error

	// ListForToken returns cluster events for a token, newest first
	ListForToken(ctx context.Context, tokenAddress string, limit int) ([]*model.ClusterEvent, error)
}

// Store bundles the per-entity repositories
type Store struct {
	Wallets  WalletStore
	Tokens   TokenStore
	Trades   TradeStore
	Alerts   AlertStore
	Clusters ClusterStore
}
