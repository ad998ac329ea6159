package jobs

import (
	"context"

	"github.com/solpulse/engine/internal/discovery"
)

// DiscoveryJob scans trader leaderboards for new wallets to track
type DiscoveryJob struct {
	service *discovery.Service
}

// NewDiscoveryJob creates the wallet discovery job
func NewDiscoveryJob(service *discovery.Service) *DiscoveryJob {
	return &DiscoveryJob{service: service}
}

func (j *DiscoveryJob) Name() string { return "wallet-discovery" }

// Daily at 03:00, off the usual trading peaks
func (j *DiscoveryJob) Schedule() string { return "0 0 3 * * *" }

func (j *DiscoveryJob) Run(ctx context.Context) error {
	_, err := j.service.Run(ctx)
	return err
}
