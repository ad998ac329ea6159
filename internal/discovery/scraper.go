// Package discovery finds high-performing wallets from public trader
// leaderboards and registers them for tracking.
package discovery

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/solpulse/engine/pkg/httputil"
	"github.com/solpulse/engine/pkg/logger"
)

const leaderboardBaseURL = "https://gmgn.ai"

// Candidate is a wallet scraped from a trader leaderboard
type Candidate struct {
	Address     string
	WinRate     float64
	TotalTrades int
	Trades7d    int
	PnLTotalSOL float64
	PnL7dSOL    float64
	SourceToken string
}

// Scraper extracts wallet candidates from leaderboard HTML
type Scraper struct {
	http    *httputil.Client
	baseURL string
	logger  *logger.Logger
}

// NewScraper creates a leaderboard scraper
func NewScraper(http *httputil.Client, log *logger.Logger) *Scraper {
	return &Scraper{
		http:    http,
		baseURL: leaderboardBaseURL,
		logger:  log,
	}
}

var (
	tokenHrefRe  = regexp.MustCompile(`/sol/token/([1-9A-HJ-NP-Za-km-z]{32,44})`)
	walletHrefRe = regexp.MustCompile(`/sol/address/([1-9A-HJ-NP-Za-km-z]{32,44})`)
	numericRe    = regexp.MustCompile(`[^\d.\-]`)
)

// TrendingTokens scrapes token contract addresses from the trending
// page, deduplicated in page order
func (s *Scraper) TrendingTokens(ctx context.Context, limit int) ([]string, error) {
	doc, err := s.fetchDocument(ctx, s.baseURL+"/sol/trending")
	if err != nil {
		return nil, fmt.Errorf("fetch trending page: %w", err)
	}

	seen := make(map[string]bool)
	var tokens []string

	doc.Find(`a[href*="/sol/token/"]`).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, _ := sel.Attr("href")
		m := tokenHrefRe.FindStringSubmatch(href)
		if m == nil || seen[m[1]] {
			return true
		}
		seen[m[1]] = true
		tokens = append(tokens, m[1])
		return limit <= 0 || len(tokens) < limit
	})

	s.logger.WithField("tokens", len(tokens)).Debug("Scraped trending tokens")
	return tokens, nil
}

// TopTraders scrapes the top trader table of one token page
func (s *Scraper) TopTraders(ctx context.Context, tokenAddress string) ([]Candidate, error) {
	doc, err := s.fetchDocument(ctx, s.baseURL+"/sol/token/"+tokenAddress)
	if err != nil {
		return nil, fmt.Errorf("fetch token page: %w", err)
	}

	var candidates []Candidate
	doc.Find("table tbody tr").Each(func(_ int, row *goquery.Selection) {
		if c := s.parseTraderRow(row, tokenAddress); c != nil {
			candidates = append(candidates, *c)
		}
	})

	s.logger.WithFields(map[string]interface{}{
		"token":   tokenAddress,
		"traders": len(candidates),
	}).Debug("Scraped top traders")
	return candidates, nil
}

func (s *Scraper) parseTraderRow(row *goquery.Selection, sourceToken string) *Candidate {
	var address string
	row.Find(`a[href*="/sol/address/"]`).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, _ := sel.Attr("href")
		if m := walletHrefRe.FindStringSubmatch(href); m != nil {
			address = m[1]
			return false
		}
		return true
	})
	if address == "" {
		return nil
	}

	winRate := parsePercent(firstText(row, `[class*="win"],[class*="rate"]`))
	trades := int(parseAmount(firstText(row, `[class*="trades"],[class*="txn"]`)))
	pnl := parseAmount(firstText(row, `[class*="pnl"],[class*="profit"]`))

	return &Candidate{
		Address:     address,
		WinRate:     winRate,
		TotalTrades: trades,
		Trades7d:    trades, // leaderboard shows trailing 7d figures
		PnLTotalSOL: pnl,
		PnL7dSOL:    pnl,
		SourceToken: sourceToken,
	}
}

func (s *Scraper) fetchDocument(ctx context.Context, url string) (*goquery.Document, error) {
	resp, err := s.http.Get(ctx, url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	return goquery.NewDocumentFromReader(resp.Body)
}

func firstText(row *goquery.Selection, selector string) string {
	return strings.TrimSpace(row.Find(selector).First().Text())
}

// parseAmount handles plain numbers plus K/M/B suffixes and currency
// decorations ("1.2K SOL", "$3.4M", "1,234")
func parseAmount(text string) float64 {
	text = strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(text), ",", ""))
	if text == "" {
		return 0
	}

	mult := 1.0
	switch {
	case strings.Contains(text, "K"):
		mult = 1e3
	case strings.Contains(text, "M"):
		mult = 1e6
	case strings.Contains(text, "B"):
		mult = 1e9
	}

	cleaned := numericRe.ReplaceAllString(text, "")
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0
	}
	return v * mult
}

func parsePercent(text string) float64 {
	cleaned := numericRe.ReplaceAllString(strings.ReplaceAll(text, "%", ""), "")
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0
	}
	return v
}
