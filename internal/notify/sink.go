// Package notify delivers triggered alerts to outbound channels and
// marks them sent exactly once.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/solpulse/engine/internal/model"
)

// Sink delivers one formatted alert message to a channel
type Sink interface {
	// Name identifies the sink in logs
	Name() string

	// Send delivers the message. A nil error marks the alert sent.
	Send(ctx context.Context, text string) error
}

var signalTitles = map[model.SignalType]string{
	model.SignalHighConviction: "🎯 HIGH CONVICTION BUY",
	model.SignalClusterBuy:     "🔥 CLUSTER BUY",
	model.SignalVolumeSpike:    "📈 VOLUME SPIKE",
}

// FormatAlert renders an alert into the outbound message text
func FormatAlert(alert *model.Alert, token *model.Token) string {
	title := signalTitles[alert.Type]
	if title == "" {
		title = strings.ToUpper(string(alert.Type))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", title)
	if token != nil {
		fmt.Fprintf(&b, "Token: %s\n", token.Label())
	}
	fmt.Fprintf(&b, "CA: %s\n", alert.TokenAddress)
	fmt.Fprintf(&b, "Volume: %.2f SOL\n", alert.TotalSOLVolume)
	fmt.Fprintf(&b, "Wallets: %d\n", alert.WalletCount)
	if alert.AvgWinRate > 0 {
		fmt.Fprintf(&b, "Avg Win Rate: %.1f%%\n", alert.AvgWinRate)
	}
	if alert.MaxSupplyPct > 0 {
		fmt.Fprintf(&b, "Max Supply: %.2f%%\n", alert.MaxSupplyPct)
	}
	if token != nil && token.MarketCapSOL > 0 {
		fmt.Fprintf(&b, "Market Cap: %.1f SOL\n", token.MarketCapSOL)
	}

	if detail := triggerDetail(alert); detail != "" {
		fmt.Fprintf(&b, "\n%s\n", detail)
	}
	return strings.TrimRight(b.String(), "\n")
}

// triggerDetail extracts human-readable detail lines from the stored
// trigger payload
func triggerDetail(alert *model.Alert) string {
	if alert.TriggerData == "" {
		return ""
	}
	var data map[string]interface{}
	if err := json.Unmarshal([]byte(alert.TriggerData), &data); err != nil {
		return ""
	}

	var lines []string
	if details, ok := data["details"].(map[string]interface{}); ok {
		if w, ok := details["wallet_address"].(string); ok && w != "" {
			lines = append(lines, "Wallet: "+model.ShortAddress(w))
		}
	}
	if rug, ok := data["rug_check"].(map[string]interface{}); ok {
		if passed, ok := rug["passed"].(bool); ok {
			if passed {
				lines = append(lines, "Safety: ✅ passed")
			} else {
				lines = append(lines, "Safety: ⚠️ failed")
			}
		}
		if warnings, ok := rug["warnings"].([]interface{}); ok && len(warnings) > 0 {
			for _, w := range warnings {
				if s, ok := w.(string); ok {
					lines = append(lines, "  • "+s)
				}
			}
		}
	}
	return strings.Join(lines, "\n")
}
