package discovery

import (
	"context"
	"fmt"

	"github.com/solpulse/engine/pkg/httputil"
	"github.com/solpulse/engine/pkg/logger"
)

const dexscreenerAPIURL = "https://api.dexscreener.com"

// TrendingToken is a candidate token from the pair screener API
type TrendingToken struct {
	ContractAddress string
	Name            string
	Symbol          string
	PriceChange24h  float64
	MarketCapUSD    float64
	LiquidityUSD    float64
	Volume24hUSD    float64
}

// DexscreenerClient reads trending Solana pairs from the public
// screener API. Used as a second token source next to the scraper.
type DexscreenerClient struct {
	http    *httputil.Client
	baseURL string
	logger  *logger.Logger
}

// NewDexscreenerClient creates a screener API client
func NewDexscreenerClient(http *httputil.Client, log *logger.Logger) *DexscreenerClient {
	return &DexscreenerClient{
		http:    http,
		baseURL: dexscreenerAPIURL,
		logger:  log,
	}
}

type pairsResponse struct {
	Pairs []struct {
		PairAddress string `json:"pairAddress"`
		BaseToken   struct {
			Address string `json:"address"`
			Name    string `json:"name"`
			Symbol  string `json:"symbol"`
		} `json:"baseToken"`
		PriceChange struct {
			H24 float64 `json:"h24"`
		} `json:"priceChange"`
		Liquidity struct {
			USD float64 `json:"usd"`
		} `json:"liquidity"`
		Volume struct {
			H24 float64 `json:"h24"`
		} `json:"volume"`
		FDV float64 `json:"fdv"`
	} `json:"pairs"`
}

// TrendingPairs fetches trending Solana pairs, newest gainers first
func (c *DexscreenerClient) TrendingPairs(ctx context.Context, limit int) ([]TrendingToken, error) {
	url := c.baseURL + "/latest/dex/tokens/solana"

	var resp pairsResponse
	if err := c.http.GetJSON(ctx, url, &resp); err != nil {
		return nil, fmt.Errorf("fetch trending pairs: %w", err)
	}

	var tokens []TrendingToken
	for _, pair := range resp.Pairs {
		if pair.BaseToken.Address == "" {
			continue
		}
		tokens = append(tokens, TrendingToken{
			ContractAddress: pair.BaseToken.Address,
			Name:            pair.BaseToken.Name,
			Symbol:          pair.BaseToken.Symbol,
			PriceChange24h:  pair.PriceChange.H24,
			MarketCapUSD:    pair.FDV,
			LiquidityUSD:    pair.Liquidity.USD,
			Volume24hUSD:    pair.Volume.H24,
		})
		if limit > 0 && len(tokens) >= limit {
			break
		}
	}

	c.logger.WithField("pairs", len(tokens)).Debug("Fetched trending pairs")
	return tokens, nil
}
