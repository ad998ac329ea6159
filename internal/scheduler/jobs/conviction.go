package jobs

import (
	"context"

	"github.com/solpulse/engine/internal/conviction"
)

// ConvictionJob rescans every active wallet and refreshes its
// conviction score
type ConvictionJob struct {
	calculator *conviction.Calculator
}

// NewConvictionJob creates the conviction rescoring job
func NewConvictionJob(calculator *conviction.Calculator) *ConvictionJob {
	return &ConvictionJob{calculator: calculator}
}

func (j *ConvictionJob) Name() string { return "conviction-rescore" }

// Every 6 hours
func (j *ConvictionJob) Schedule() string { return "0 0 */6 * * *" }

func (j *ConvictionJob) Run(ctx context.Context) error {
	_, err := j.calculator.UpdateAllScores(ctx)
	return err
}
