package jobs

import (
	"context"

	"github.com/solpulse/engine/internal/outcome"
)

// OutcomeJob re-prices alerted tokens and classifies their outcomes
type OutcomeJob struct {
	tracker *outcome.Tracker
}

// NewOutcomeJob creates the outcome check job
func NewOutcomeJob(tracker *outcome.Tracker) *OutcomeJob {
	return &OutcomeJob{tracker: tracker}
}

func (j *OutcomeJob) Name() string { return "outcome-check" }

// Every 30 minutes, matching the minimum alert age before
// classification
func (j *OutcomeJob) Schedule() string { return "0 */30 * * * *" }

func (j *OutcomeJob) Run(ctx context.Context) error {
	_, err := j.tracker.CheckPendingAlerts(ctx)
	return err
}
