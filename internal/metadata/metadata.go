// Package metadata fetches token metadata from external sources.
// Consumers depend on the Provider interface; the HTTP implementation
// aggregates an RPC asset endpoint, a price API and a security API,
// with a Redis cache in front so enrichment and outcome re-pricing do
// not hammer upstreams.
package metadata

import "context"

// TokenMetadata is a snapshot of on-chain and market data for a token
type TokenMetadata struct {
	ContractAddress string `json:"contract_address"`
	Name            string `json:"name,omitempty"`
	Symbol          string `json:"symbol,omitempty"`
	Decimals        int    `json:"decimals"`

	TotalSupply float64 `json:"total_supply"`

	PriceSOL     float64 `json:"price_sol"`
	MarketCapSOL float64 `json:"market_cap_sol"`
	LiquiditySOL float64 `json:"liquidity_sol"`

	HolderCount int `json:"holder_count"`

	// Risk indicators
	Mintable  bool `json:"mintable"`
	Freezable bool `json:"freezable"`
}

// HolderDistribution summarizes top-holder concentration
type HolderDistribution struct {
	TopHolders       int     `json:"top_holders"`        // how many accounts inspected
	ConcentrationPct float64 `json:"concentration_pct"`  // % of supply held by top N
	TotalAccounts    int     `json:"total_accounts"`
}

// Provider supplies token metadata to the enrichment, risk and
// outcome layers
type Provider interface {
	GetTokenMetadata(ctx context.Context, address string) (*TokenMetadata, error)
	GetHolderDistribution(ctx context.Context, address string, topN int) (*HolderDistribution, error)
}
