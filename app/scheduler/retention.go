package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/peymanslh/wanotifier/repository"
	"github.com/peymanslh/wanotifier/utils"
)

// RetentionPruner deletes delivery records older than the retention horizon.
// Records outside the claim window carry no idempotency weight, so pruning
// is safe for correctness and keeps the table small.
type RetentionPruner struct {
	deliveryRepo repository.DeliveryRecordRepository
	retention    time.Duration
	interval     time.Duration
	logger       *log.Logger
}

func NewRetentionPruner(deliveryRepo repository.DeliveryRecordRepository, retention, interval time.Duration, logger *log.Logger) *RetentionPruner {
	if retention <= 0 {
		retention = utils.DeliveryRecordRetention
	}
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	if logger == nil {
		logger = log.Default()
	}
	return &RetentionPruner{
		deliveryRepo: deliveryRepo,
		retention:    retention,
		interval:     interval,
		logger:       logger,
	}
}

// Start launches the pruning loop and returns a stop function
func (p *RetentionPruner) Start(parent context.Context) func() {
	ctx, cancel := context.WithCancel(parent)

	go func() {
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cutoff := utils.UTCNow().Add(-p.retention)
				pruned, err := p.deliveryRepo.PruneOlderThan(ctx, cutoff)
				if err != nil {
					p.logger.Printf("retention: prune failed: %v", err)
					continue
				}
				if pruned > 0 {
					p.logger.Printf("retention: pruned %d delivery records", pruned)
				}
			}
		}
	}()

	return cancel
}
