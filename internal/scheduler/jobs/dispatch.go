// Package jobs holds the scheduled job implementations wired into the
// scheduler by the start command.
package jobs

import (
	"context"

	"github.com/solpulse/engine/internal/notify"
)

// DispatchJob drains unsent alerts into the notification sinks
type DispatchJob struct {
	dispatcher *notify.Dispatcher
}

// NewDispatchJob creates the alert dispatch job
func NewDispatchJob(dispatcher *notify.Dispatcher) *DispatchJob {
	return &DispatchJob{dispatcher: dispatcher}
}

func (j *DispatchJob) Name() string { return "alert-dispatch" }

// Every 30 seconds; alerts are time-sensitive
func (j *DispatchJob) Schedule() string { return "*/30 * * * * *" }

func (j *DispatchJob) Run(ctx context.Context) error {
	_, err := j.dispatcher.DispatchPending(ctx)
	return err
}
