// Package risk assesses tokens for rug-pull risk before a signal is
// allowed to become an alert.
package risk

import (
	"context"
	"fmt"
	"strings"

	"github.com/solpulse/engine/internal/metadata"
	"github.com/solpulse/engine/internal/model"
	"github.com/solpulse/engine/pkg/config"
	"github.com/solpulse/engine/pkg/httputil"
	"github.com/solpulse/engine/pkg/logger"
)

// CheckResult is the outcome of a rug-risk assessment
type CheckResult struct {
	ContractAddress string          `json:"contract_address"`
	RiskLevel       model.RiskLevel `json:"risk_level"`
	RiskScore       int             `json:"risk_score"` // 0-100, higher is riskier
	Passed          bool            `json:"passed"`     // safe to alert on

	Mintable          bool `json:"mintable"`
	Freezable         bool `json:"freezable"`
	LPUnlocked        bool `json:"lp_unlocked"`
	LowLiquidity      bool `json:"low_liquidity"`
	HighConcentration bool `json:"high_concentration"`
	Honeypot          bool `json:"honeypot"`

	Warnings []string `json:"warnings"`
}

// Assessor is the risk-gate contract consumed by the signal processor
type Assessor interface {
	CheckToken(ctx context.Context, address string) (*CheckResult, error)
}

// Detector scores rug-pull risk from metadata and a token security API
type Detector struct {
	meta   metadata.Provider
	http   *httputil.Client
	cfg    config.RPCConfig
	logger *logger.Logger
}

// Risk scoring thresholds
const (
	minLiquiditySOL       = 30.0 // below this, exiting a position moves the pool
	maxTop10Concentration = 50.0
	topHolderCount        = 10

	scoreMintable      = 25
	scoreFreezable     = 30
	scoreLPUnlocked    = 20
	scoreLowLiquidity  = 10
	scoreConcentration = 15
	scoreHoneypot      = 40
	scoreCopycat       = 10
)

// copycatPatterns are symbols commonly impersonated by scam launches
var copycatPatterns = []string{
	"BONK", "WIF", "PEPE", "DOGE", "SHIB",
	"SOL", "ETH", "BTC",
	"USDC", "USDT",
}

// NewDetector creates a rug detector
func NewDetector(meta metadata.Provider, http *httputil.Client, cfg config.RPCConfig, log *logger.Logger) *Detector {
	return &Detector{
		meta:   meta,
		http:   http,
		cfg:    cfg,
		logger: log,
	}
}

// CheckToken runs the full risk analysis for a token. Individual probe
// failures degrade to "no finding" rather than failing the check.
func (d *Detector) CheckToken(ctx context.Context, address string) (*CheckResult, error) {
	meta, err := d.meta.GetTokenMetadata(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("fetch metadata for risk check: %w", err)
	}

	result := &CheckResult{ContractAddress: address}
	score := 0

	if meta.Mintable {
		result.Mintable = true
		score += scoreMintable
		result.Warnings = append(result.Warnings, "token is MINTABLE, supply can be inflated")
	}

	if meta.Freezable {
		result.Freezable = true
		score += scoreFreezable
		result.Warnings = append(result.Warnings, "token has FREEZE authority, honeypot risk")
	}

	security := d.fetchSecurity(ctx, address)
	if security.lpUnlocked {
		result.LPUnlocked = true
		score += scoreLPUnlocked
		result.Warnings = append(result.Warnings, "liquidity is NOT locked, rug pull risk")
	}
	if security.honeypot {
		result.Honeypot = true
		score += scoreHoneypot
		result.Warnings = append(result.Warnings, "HONEYPOT indicators, token may not be sellable")
	}

	if meta.LiquiditySOL > 0 && meta.LiquiditySOL < minLiquiditySOL {
		result.LowLiquidity = true
		score += scoreLowLiquidity
		result.Warnings = append(result.Warnings, fmt.Sprintf("low liquidity: %.1f SOL", meta.LiquiditySOL))
	}

	if dist, err := d.meta.GetHolderDistribution(ctx, address, topHolderCount); err != nil {
		d.logger.WithError(err).WithField("token", address).Debug("Holder distribution fetch failed")
	} else if dist.ConcentrationPct > maxTop10Concentration {
		result.HighConcentration = true
		score += scoreConcentration
		result.Warnings = append(result.Warnings, fmt.Sprintf("top %d holders own %.1f%% of supply", topHolderCount, dist.ConcentrationPct))
	}

	if copied := detectCopycat(meta.Symbol, meta.Name); copied != "" {
		score += scoreCopycat
		result.Warnings = append(result.Warnings, "possible copycat of "+copied)
	}

	result.RiskScore = score
	result.RiskLevel = classifyRisk(score)
	result.Passed = result.RiskLevel == model.RiskLow || result.RiskLevel == model.RiskMedium

	d.logger.WithFields(map[string]interface{}{
		"token":  model.ShortAddress(address),
		"score":  result.RiskScore,
		"level":  result.RiskLevel,
		"passed": result.Passed,
	}).Info("Rug check completed")

	return result, nil
}

func classifyRisk(score int) model.RiskLevel {
	switch {
	case score >= 70:
		return model.RiskCritical
	case score >= 50:
		return model.RiskHigh
	case score >= 25:
		return model.RiskMedium
	default:
		return model.RiskLow
	}
}

type securityFindings struct {
	lpUnlocked bool
	honeypot   bool
}

type securityResponse struct {
	Result map[string]struct {
		IsHoneypot       string `json:"is_honeypot"`
		CannotSellAll    string `json:"cannot_sell_all"`
		TransferPausable string `json:"transfer_pausable"`
		LPHolders        []struct {
			IsLocked int `json:"is_locked"`
		} `json:"lp_holders"`
	} `json:"result"`
}

// fetchSecurity queries the token security API. Failures return zero
// findings: an unreachable scanner must not block alerting on its own.
func (d *Detector) fetchSecurity(ctx context.Context, address string) securityFindings {
	var findings securityFindings

	reqURL := fmt.Sprintf("%s?contract_addresses=%s", d.cfg.SecurityAPI, address)
	var parsed securityResponse
	if err := d.http.GetJSON(ctx, reqURL, &parsed); err != nil {
		d.logger.WithError(err).WithField("token", address).Debug("Security API fetch failed")
		return findings
	}

	entry, ok := parsed.Result[strings.ToLower(address)]
	if !ok {
		return findings
	}

	if entry.IsHoneypot == "1" || entry.CannotSellAll == "1" || entry.TransferPausable == "1" {
		findings.honeypot = true
	}
	for _, h := range entry.LPHolders {
		if h.IsLocked == 0 {
			findings.lpUnlocked = true
			break
		}
	}
	return findings
}

// detectCopycat reports which well-known symbol a token appears to be
// impersonating, or "" when none match
func detectCopycat(symbol, name string) string {
	if symbol == "" && name == "" {
		return ""
	}

	symbolUpper := strings.ToUpper(symbol)
	nameUpper := strings.ToUpper(name)

	for _, known := range copycatPatterns {
		if symbolUpper == known {
			return known
		}
		if strings.Contains(nameUpper, known) && nameUpper != known {
			return known
		}
		variants := []string{
			known + "2", known + "2.0", "BABY" + known,
			"MINI" + known, known + "INU", known + "MOON",
		}
		for _, v := range variants {
			if symbolUpper == v {
				return known
			}
		}
	}
	return ""
}
