package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/solpulse/engine/internal/model"
)

// NewMemory returns a Store backed entirely by in-process maps.
// Safe for concurrent use. Intended for tests and local runs.
func NewMemory() *Store {
	m := &memory{
		wallets: make(map[string]*model.Wallet),
		tokens:  make(map[string]*model.Token),
		tradeBySig: make(map[string]*model.Trade),
	}
	return &Store{
		Wallets:  (*memoryWallets)(m),
		Tokens:   (*memoryTokens)(m),
		Trades:   (*memoryTrades)(m),
		Alerts:   (*memoryAlerts)(m),
		Clusters: (*memoryClusters)(m),
	}
}

type memory struct {
	mu sync.RWMutex

	wallets    map[string]*model.Wallet
	tokens     map[string]*model.Token
	trades     []*model.Trade
	tradeBySig map[string]*model.Trade
	alerts     []*model.Alert
	clusters   []*model.ClusterEvent

	nextTradeID   int64
	nextAlertID   int64
	nextClusterID int64
}

type memoryWallets memory

func (m *memoryWallets) GetByAddress(_ context.Context, address string) (*model.Wallet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.wallets[address]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *w
	return &cp, nil
}

func (m *memoryWallets) Upsert(_ context.Context, wallet *model.Wallet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *wallet
	cp.UpdatedAt = time.Now().UTC()
	if existing, ok := m.wallets[wallet.Address]; ok {
		cp.DiscoveredAt = existing.DiscoveredAt
		// conviction_score is owned by the scorer, never by upserts
		cp.ConvictionScore = existing.ConvictionScore
	} else if cp.DiscoveredAt.IsZero() {
		cp.DiscoveredAt = cp.UpdatedAt
	}
	m.wallets[wallet.Address] = &cp
	return nil
}

func (m *memoryWallets) ListActive(_ context.Context) ([]*model.Wallet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Wallet
	for _, w := range m.wallets {
		if w.IsActive {
			cp := *w
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out, nil
}

func (m *memoryWallets) UpdateConvictionScore(_ context.Context, address string, score float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.wallets[address]
	if !ok {
		return ErrNotFound
	}
	w.ConvictionScore = score
	w.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *memoryWallets) UpdateLastActivity(_ context.Context, address string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.wallets[address]
	if !ok {
		return ErrNotFound
	}
	t := at
	w.LastActivity = &t
	return nil
}

func (m *memoryWallets) Deactivate(_ context.Context, address string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.wallets[address]
	if !ok {
		return ErrNotFound
	}
	w.IsActive = false
	return nil
}

func (m *memoryWallets) TopByConviction(_ context.Context, limit int, minScore float64) ([]*model.Wallet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Wallet
	for _, w := range m.wallets {
		if w.IsActive && w.ConvictionScore >= minScore {
			cp := *w
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConvictionScore > out[j].ConvictionScore })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type memoryTokens memory

func (m *memoryTokens) Get(_ context.Context, address string) (*model.Token, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tokens[address]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *memoryTokens) Upsert(_ context.Context, token *model.Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *token
	if existing, ok := m.tokens[token.ContractAddress]; ok {
		cp.DiscoveredAt = existing.DiscoveredAt
		// rug flag is one-way
		if existing.IsRugged {
			cp.IsRugged = true
		}
	} else if cp.DiscoveredAt.IsZero() {
		cp.DiscoveredAt = time.Now().UTC()
	}
	m.tokens[token.ContractAddress] = &cp
	return nil
}

func (m *memoryTokens) MarkRugged(_ context.Context, address string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[address]
	if !ok {
		return ErrNotFound
	}
	t.IsRugged = true
	return nil
}

type memoryTrades memory

func (m *memoryTrades) GetBySignature(_ context.Context, txSignature string) (*model.Trade, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tradeBySig[txSignature]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *memoryTrades) Insert(_ context.Context, trade *model.Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tradeBySig[trade.TxSignature]; ok {
		return ErrDuplicate
	}
	m.nextTradeID++
	cp := *trade
	cp.ID = m.nextTradeID
	if cp.ProcessedAt.IsZero() {
		cp.ProcessedAt = time.Now().UTC()
	}
	m.trades = append(m.trades, &cp)
	m.tradeBySig[cp.TxSignature] = &cp
	trade.ID = cp.ID
	trade.ProcessedAt = cp.ProcessedAt
	return nil
}

func (m *memoryTrades) RecentBuysForToken(_ context.Context, tokenAddress string, since time.Time) ([]*model.Trade, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Trade
	for _, t := range m.trades {
		if t.TokenAddress == tokenAddress && t.Type == model.TradeBuy && !t.BlockTime.Before(since) {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BlockTime.Before(out[j].BlockTime) })
	return out, nil
}

func (m *memoryTrades) ListByWallet(_ context.Context, walletAddress string) ([]*model.Trade, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Trade
	for _, t := range m.trades {
		if t.WalletAddress == walletAddress {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BlockTime.Before(out[j].BlockTime) })
	return out, nil
}

func (m *memoryTrades) ListByTokenBetween(_ context.Context, tokenAddress string, from, to time.Time) ([]*model.Trade, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Trade
	for _, t := range m.trades {
		if t.TokenAddress == tokenAddress && !t.BlockTime.Before(from) && !t.BlockTime.After(to) {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BlockTime.Before(out[j].BlockTime) })
	return out, nil
}

type memoryAlerts memory

func (m *memoryAlerts) Insert(_ context.Context, alert *model.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextAlertID++
	cp := *alert
	cp.ID = m.nextAlertID
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	m.alerts = append(m.alerts, &cp)
	alert.ID = cp.ID
	alert.CreatedAt = cp.CreatedAt
	return nil
}

func (m *memoryAlerts) ListUnsent(_ context.Context, limit int) ([]*model.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Alert
	for _, a := range m.alerts {
		if !a.Sent {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memoryAlerts) MarkSent(_ context.Context, id int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.alerts {
		if a.ID == id {
			a.Sent = true
			t := at
			a.SentAt = &t
			return nil
		}
	}
	return ErrNotFound
}

func (m *memoryAlerts) ListNeedingOutcomeCheck(_ context.Context, createdBefore, recheckBefore time.Time, limit int) ([]*model.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Alert
	for _, a := range m.alerts {
		if a.CreatedAt.After(createdBefore) {
			continue
		}
		if a.OutcomeCheckedAt != nil && a.OutcomeCheckedAt.After(recheckBefore) {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memoryAlerts) UpdateOutcome(_ context.Context, id int64, pnl float64, checkedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.alerts {
		if a.ID == id {
			p := pnl
			t := checkedAt
			a.OutcomePnL = &p
			a.OutcomeCheckedAt = &t
			return nil
		}
	}
	return ErrNotFound
}

func (m *memoryAlerts) ListByRange(_ context.Context, from, to time.Time, types []model.SignalType) ([]*model.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	wanted := make(map[model.SignalType]bool, len(types))
	for _, t := range types {
		wanted[t] = true
	}
	var out []*model.Alert
	for _, a := range m.alerts {
		if a.CreatedAt.Before(from) || a.CreatedAt.After(to) {
			continue
		}
		if len(wanted) > 0 && !wanted[a.Type] {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *memoryAlerts) ListWithOutcome(_ context.Context, since time.Time) ([]*model.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Alert
	for _, a := range m.alerts {
		if a.OutcomePnL != nil && !a.CreatedAt.Before(since) {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memoryAlerts) CountPending(_ context.Context, since time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, a := range m.alerts {
		if a.OutcomePnL == nil && !a.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

type memoryClusters memory

func (m *memoryClusters) Insert(_ context.Context, event *model.ClusterEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextClusterID++
	cp := *event
	cp.ID = m.nextClusterID
	cp.WalletAddresses = append([]string(nil), event.WalletAddresses...)
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	m.clusters = append(m.clusters, &cp)
	event.ID = cp.ID
	return nil
}

func (m *memoryClusters) ListForToken(_ context.Context, tokenAddress string, limit int) ([]*model.ClusterEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.ClusterEvent
	for _, c := range m.clusters {
		if c.TokenAddress == tokenAddress {
			cp := *c
			cp.WalletAddresses = append([]string(nil), c.WalletAddresses...)
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
