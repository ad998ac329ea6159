package discovery

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solpulse/engine/pkg/httputil"
	"github.com/solpulse/engine/pkg/logger"
)

const (
	testTokenAddr   = "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU"
	testWalletAddr  = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"
	testWallet2Addr = "5Q544fKrFoe6tsEbD7S8EmxGTJYAKtTVhAW5Q5pge4j1"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in   string
		want float64
	}{
		{"1.5", 1.5},
		{"1,234", 1234},
		{"1.2K", 1200},
		{"$3.4M", 3.4e6},
		{"2B", 2e9},
		{"1.2K SOL", 1200},
		{"-4.5", -4.5},
		{"", 0},
		{"n/a", 0},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, parseAmount(tc.in), "input %q", tc.in)
	}
}

func TestParsePercent(t *testing.T) {
	assert.Equal(t, 68.5, parsePercent("68.5%"))
	assert.Equal(t, 100.0, parsePercent("100"))
	assert.Equal(t, 0.0, parsePercent("--"))
}

func newTestScraper(t *testing.T, handler http.Handler) *Scraper {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &Scraper{
		http:    httputil.New(logger.NewNop()).DisableRetry(),
		baseURL: srv.URL,
		logger:  logger.NewNop(),
	}
}

func TestTrendingTokens(t *testing.T) {
	page := fmt.Sprintf(`<html><body>
		<a href="/sol/token/%s">TOKEN</a>
		<a href="/sol/token/%s?tab=holders">same token again</a>
		<a href="/sol/address/%s">a wallet link</a>
		<a href="/about">unrelated</a>
	</body></html>`, testTokenAddr, testTokenAddr, testWalletAddr)

	s := newTestScraper(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sol/trending", r.URL.Path)
		fmt.Fprint(w, page)
	}))

	tokens, err := s.TrendingTokens(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, []string{testTokenAddr}, tokens)
}

func TestTrendingTokens_RespectsLimit(t *testing.T) {
	page := fmt.Sprintf(`<html><body>
		<a href="/sol/token/%s">one</a>
		<a href="/sol/token/%s">two</a>
	</body></html>`, testTokenAddr, testWalletAddr) // both valid base58 addresses

	s := newTestScraper(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, page)
	}))

	tokens, err := s.TrendingTokens(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, tokens, 1)
}

func TestTopTraders(t *testing.T) {
	page := fmt.Sprintf(`<html><body><table><tbody>
		<tr>
			<td><a href="/sol/address/%s">trader</a></td>
			<td class="win-rate">68.5%%</td>
			<td class="txns">42</td>
			<td class="pnl">1.2K</td>
		</tr>
		<tr>
			<td><a href="/sol/address/%s">trader2</a></td>
			<td class="win-rate">55%%</td>
			<td class="txns">7</td>
			<td class="pnl">-30</td>
		</tr>
		<tr><td>no wallet link here</td></tr>
	</tbody></table></body></html>`, testWalletAddr, testWallet2Addr)

	s := newTestScraper(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sol/token/"+testTokenAddr, r.URL.Path)
		fmt.Fprint(w, page)
	}))

	candidates, err := s.TopTraders(context.Background(), testTokenAddr)
	require.NoError(t, err)
	require.Len(t, candidates, 2)

	first := candidates[0]
	assert.Equal(t, testWalletAddr, first.Address)
	assert.Equal(t, 68.5, first.WinRate)
	assert.Equal(t, 42, first.TotalTrades)
	assert.Equal(t, 42, first.Trades7d)
	assert.Equal(t, 1200.0, first.PnLTotalSOL)
	assert.Equal(t, testTokenAddr, first.SourceToken)

	assert.Equal(t, -30.0, candidates[1].PnLTotalSOL)
}

func TestTopTraders_ErrorStatus(t *testing.T) {
	s := newTestScraper(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	_, err := s.TopTraders(context.Background(), testTokenAddr)
	assert.Error(t, err)
}
