package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/solpulse/engine/pkg/config"
	"github.com/solpulse/engine/pkg/httputil"
	"github.com/solpulse/engine/pkg/logger"
	"github.com/solpulse/engine/pkg/redis"
)

const (
	metadataCacheTTL = 2 * time.Minute
	holdersCacheTTL  = 5 * time.Minute

	// native SOL mint, used for the SOL/USD reference price
	wrappedSOLMint = "So11111111111111111111111111111111111111112"

	fallbackSOLPriceUSD = 150
)

// Service is the HTTP-backed Provider implementation
type Service struct {
	http   *httputil.Client
	cache  *redis.Cache
	cfg    config.RPCConfig
	logger *logger.Logger
}

// NewService creates a metadata service
func NewService(cfg config.RPCConfig, http *httputil.Client, cache *redis.Cache, log *logger.Logger) *Service {
	return &Service{
		http:   http,
		cache:  cache,
		cfg:    cfg,
		logger: log,
	}
}

// GetTokenMetadata fetches token metadata, serving from cache when fresh.
// Partial upstream failures degrade to zero-valued fields rather than
// failing the whole lookup.
func (s *Service) GetTokenMetadata(ctx context.Context, address string) (*TokenMetadata, error) {
	var cached TokenMetadata
	if hit, _ := s.cache.Get(ctx, "token:"+address, &cached); hit {
		return &cached, nil
	}

	meta := &TokenMetadata{ContractAddress: address, Decimals: 9}

	if err := s.fetchAsset(ctx, address, meta); err != nil {
		s.logger.WithError(err).WithField("token", address).Warn("Asset fetch failed")
	}

	if err := s.fetchPrice(ctx, address, meta); err != nil {
		s.logger.WithError(err).WithField("token", address).Warn("Price fetch failed")
	}

	if meta.PriceSOL > 0 && meta.TotalSupply > 0 {
		meta.MarketCapSOL = meta.PriceSOL * meta.TotalSupply
	}

	if err := s.cache.Set(ctx, "token:"+address, meta, metadataCacheTTL); err != nil {
		s.logger.WithError(err).Debug("Metadata cache write failed")
	}

	return meta, nil
}

// rpcRequest is the JSON-RPC envelope for asset lookups
type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      string      `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
}

type assetResponse struct {
	Result struct {
		Content struct {
			Metadata struct {
				Name   string `json:"name"`
				Symbol string `json:"symbol"`
			} `json:"metadata"`
		} `json:"content"`
		TokenInfo struct {
			Decimals        int     `json:"decimals"`
			Supply          float64 `json:"supply"`
			FreezeAuthority string  `json:"freeze_authority"`
			MintAuthority   string  `json:"mint_authority"`
		} `json:"token_info"`
	} `json:"result"`
}

func (s *Service) fetchAsset(ctx context.Context, address string, meta *TokenMetadata) error {
	resp, err := s.http.PostJSON(ctx, s.rpcURL(), rpcRequest{
		JSONRPC: "2.0",
		ID:      "solpulse",
		Method:  "getAsset",
		Params:  map[string]string{"id": address},
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var parsed assetResponse
	if err := decodeBody(resp.Body, &parsed); err != nil {
		return fmt.Errorf("decode asset response: %w", err)
	}

	info := parsed.Result.TokenInfo
	meta.Name = parsed.Result.Content.Metadata.Name
	meta.Symbol = parsed.Result.Content.Metadata.Symbol
	if info.Decimals > 0 {
		meta.Decimals = info.Decimals
	}
	if info.Supply > 0 {
		meta.TotalSupply = info.Supply / pow10(meta.Decimals)
	}
	meta.Mintable = info.MintAuthority != ""
	meta.Freezable = info.FreezeAuthority != ""
	return nil
}

type priceResponse struct {
	Data map[string]struct {
		Price float64 `json:"price"`
	} `json:"data"`
}

func (s *Service) fetchPrice(ctx context.Context, address string, meta *TokenMetadata) error {
	var parsed priceResponse
	reqURL := fmt.Sprintf("%s?ids=%s", s.cfg.PriceAPI, url.QueryEscape(address))
	if err := s.http.GetJSON(ctx, reqURL, &parsed); err != nil {
		return err
	}

	priceUSD := parsed.Data[address].Price
	if priceUSD <= 0 {
		return nil
	}

	solPrice := s.solPriceUSD(ctx)
	if solPrice > 0 {
		meta.PriceSOL = priceUSD / solPrice
	}
	return nil
}

// solPriceUSD returns the current SOL/USD price, cached aggressively
// and falling back to a constant when the price API is unreachable
func (s *Service) solPriceUSD(ctx context.Context) float64 {
	var cached float64
	if hit, _ := s.cache.Get(ctx, "solprice", &cached); hit && cached > 0 {
		return cached
	}

	var parsed priceResponse
	reqURL := fmt.Sprintf("%s?ids=%s", s.cfg.PriceAPI, wrappedSOLMint)
	if err := s.http.GetJSON(ctx, reqURL, &parsed); err != nil {
		s.logger.WithError(err).Debug("SOL price fetch failed")
		return fallbackSOLPriceUSD
	}

	price := parsed.Data[wrappedSOLMint].Price
	if price <= 0 {
		return fallbackSOLPriceUSD
	}

	_ = s.cache.Set(ctx, "solprice", price, time.Minute)
	return price
}

type largestAccountsResponse struct {
	Result struct {
		Value []struct {
			UIAmount float64 `json:"uiAmount"`
		} `json:"value"`
	} `json:"result"`
}

// GetHolderDistribution returns top-N holder concentration as a
// percentage of all inspected balances
func (s *Service) GetHolderDistribution(ctx context.Context, address string, topN int) (*HolderDistribution, error) {
	cacheKey := fmt.Sprintf("holders:%s:%d", address, topN)
	var cached HolderDistribution
	if hit, _ := s.cache.Get(ctx, cacheKey, &cached); hit {
		return &cached, nil
	}

	resp, err := s.http.PostJSON(ctx, s.rpcURL(), rpcRequest{
		JSONRPC: "2.0",
		ID:      "solpulse",
		Method:  "getTokenLargestAccounts",
		Params:  []string{address},
	})
	if err != nil {
		return nil, fmt.Errorf("largest accounts request: %w", err)
	}
	defer resp.Body.Close()

	var parsed largestAccountsResponse
	if err := decodeBody(resp.Body, &parsed); err != nil {
		return nil, fmt.Errorf("decode largest accounts: %w", err)
	}

	accounts := parsed.Result.Value
	var total, top float64
	for i, a := range accounts {
		total += a.UIAmount
		if i < topN {
			top += a.UIAmount
		}
	}

	dist := &HolderDistribution{
		TopHolders:    topN,
		TotalAccounts: len(accounts),
	}
	if total > 0 {
		dist.ConcentrationPct = top / total * 100
	}

	_ = s.cache.Set(ctx, cacheKey, dist, holdersCacheTTL)
	return dist, nil
}

func (s *Service) rpcURL() string {
	if s.cfg.APIKey == "" {
		return s.cfg.HTTPEndpoint
	}
	return fmt.Sprintf("%s/?api-key=%s", s.cfg.HTTPEndpoint, s.cfg.APIKey)
}

func decodeBody(r io.Reader, dest interface{}) error {
	return json.NewDecoder(r).Decode(dest)
}

func pow10(n int) float64 {
	result := 1.0
	for i := 0; i < n; i++ {
		result *= 10
	}
	return result
}
