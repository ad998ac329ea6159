package discovery

import (
	"context"
	"fmt"

	"github.com/solpulse/engine/internal/model"
	"github.com/solpulse/engine/internal/store"
	"github.com/solpulse/engine/pkg/config"
	"github.com/solpulse/engine/pkg/logger"
)

// Tokens scanned per discovery run
const defaultTokenLimit = 20

// Service runs a discovery pass: collect trending tokens, scrape
// their top traders, filter on the tracking thresholds, upsert the
// survivors
type Service struct {
	scraper  *Scraper
	screener *DexscreenerClient
	wallets  store.WalletStore
	cfg      config.WalletConfig
	logger   *logger.Logger
}

// NewService creates a discovery service
func NewService(scraper *Scraper, screener *DexscreenerClient, wallets store.WalletStore, cfg config.WalletConfig, log *logger.Logger) *Service {
	return &Service{
		scraper:  scraper,
		screener: screener,
		wallets:  wallets,
		cfg:      cfg,
		logger:   log,
	}
}

// Run executes one discovery pass and returns how many wallets were
// registered or refreshed. Per-token scrape failures are logged and
// skipped.
func (s *Service) Run(ctx context.Context) (int, error) {
	tokens := s.collectTokens(ctx)
	if len(tokens) == 0 {
		return 0, fmt.Errorf("no candidate tokens from any source")
	}

	seen := make(map[string]bool)
	registered := 0

	for _, tokenAddr := range tokens {
		candidates, err := s.scraper.TopTraders(ctx, tokenAddr)
		if err != nil {
			s.logger.WithError(err).WithField("token", model.ShortAddress(tokenAddr)).Warn("Top trader scrape failed, skipping token")
			continue
		}

		for _, c := range candidates {
			if seen[c.Address] {
				continue
			}
			seen[c.Address] = true

			wallet := &model.Wallet{
				Address:     c.Address,
				Source:      "gmgn",
				WinRate:     c.WinRate,
				TotalTrades: c.TotalTrades,
				Trades7d:    c.Trades7d,
				PnLTotalSOL: c.PnLTotalSOL,
				PnL7dSOL:    c.PnL7dSOL,
				IsActive:    true,
			}
			if !wallet.MeetsThreshold(s.cfg.MinWinRate, s.cfg.MinTrades7d) {
				continue
			}

			if err := s.wallets.Upsert(ctx, wallet); err != nil {
				s.logger.WithError(err).WithField("wallet", model.ShortAddress(c.Address)).Warn("Wallet upsert failed")
				continue
			}
			registered++
		}
	}

	s.logger.WithFields(map[string]interface{}{
		"tokens":  len(tokens),
		"wallets": registered,
	}).Info("Discovery pass completed")

	return registered, nil
}

// collectTokens merges the screener API and scraped trending page,
// deduplicated, screener first. Either source failing alone is fine.
func (s *Service) collectTokens(ctx context.Context) []string {
	seen := make(map[string]bool)
	var tokens []string

	add := func(addr string) {
		if addr != "" && !seen[addr] {
			seen[addr] = true
			tokens = append(tokens, addr)
		}
	}

	if pairs, err := s.screener.TrendingPairs(ctx, defaultTokenLimit); err != nil {
		s.logger.WithError(err).Warn("Screener API unavailable")
	} else {
		for _, p := range pairs {
			add(p.ContractAddress)
		}
	}

	if scraped, err := s.scraper.TrendingTokens(ctx, defaultTokenLimit); err != nil {
		s.logger.WithError(err).Warn("Trending page scrape failed")
	} else {
		for _, addr := range scraped {
			add(addr)
		}
	}

	if len(tokens) > defaultTokenLimit {
		tokens = tokens[:defaultTokenLimit]
	}
	return tokens
}
