package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/solpulse/engine/internal/store"
	"github.com/solpulse/engine/pkg/logger"
)

// Bounded batch per dispatch cycle
const dispatchBatchSize = 100

// Dispatcher drains unsent alerts into the configured sinks. Each
// alert is marked sent once any sink accepts it, so a crashed cycle
// re-delivers at most the alerts it had not yet marked.
type Dispatcher struct {
	store  *store.Store
	sinks  []Sink
	logger *logger.Logger
}

// NewDispatcher creates a dispatcher over the given sinks
func NewDispatcher(st *store.Store, sinks []Sink, log *logger.Logger) *Dispatcher {
	return &Dispatcher{
		store:  st,
		sinks:  sinks,
		logger: log,
	}
}

// DispatchPending sends all unsent alerts and returns how many were
// delivered. Per-alert failures are logged and left unsent for the
// next cycle.
func (d *Dispatcher) DispatchPending(ctx context.Context) (int, error) {
	alerts, err := d.store.Alerts.ListUnsent(ctx, dispatchBatchSize)
	if err != nil {
		return 0, fmt.Errorf("list unsent alerts: %w", err)
	}
	if len(alerts) == 0 {
		return 0, nil
	}

	sent := 0
	for _, alert := range alerts {
		token, err := d.store.Tokens.Get(ctx, alert.TokenAddress)
		if err != nil && !store.IsNotFound(err) {
			d.logger.WithError(err).WithField("alert_id", alert.ID).Warn("Token lookup failed for alert")
			continue
		}

		text := FormatAlert(alert, token)

		delivered := false
		for _, sink := range d.sinks {
			if err := sink.Send(ctx, text); err != nil {
				d.logger.WithError(err).WithFields(map[string]interface{}{
					"alert_id": alert.ID,
					"sink":     sink.Name(),
				}).Warn("Alert delivery failed")
				continue
			}
			delivered = true
		}

		if !delivered {
			continue
		}

		if err := d.store.Alerts.MarkSent(ctx, alert.ID, time.Now().UTC()); err != nil {
			d.logger.WithError(err).WithField("alert_id", alert.ID).Error("Failed to mark alert sent")
			continue
		}
		sent++
	}

	if sent > 0 {
		d.logger.WithField("sent", sent).Info("Alerts dispatched")
	}
	return sent, nil
}
