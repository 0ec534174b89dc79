// Package scheduler provides background workers: campaign dispatch and
// delivery record retention.
package scheduler

import (
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	businessflow "github.com/peymanslh/wanotifier/business_flow"
	"github.com/peymanslh/wanotifier/models"
	"github.com/peymanslh/wanotifier/repository"
)

// CampaignScheduler periodically picks up pending campaigns and dispatches
// them. Each campaign runs in its own goroutine so a long broadcast never
// blocks the polling loop.
type CampaignScheduler struct {
	campaignRepo repository.CampaignRepository
	campaignFlow businessflow.CampaignFlow
	logger       *log.Logger
	interval     time.Duration

	mu       sync.Mutex
	inFlight map[uint]bool
}

func NewCampaignScheduler(
	campaignRepo repository.CampaignRepository,
	campaignFlow businessflow.CampaignFlow,
	interval time.Duration,
) *CampaignScheduler {
	if interval <= 0 {
		interval = 30 * time.Second
	}

	s := &CampaignScheduler{
		campaignRepo: campaignRepo,
		campaignFlow: campaignFlow,
		interval:     interval,
		inFlight:     make(map[uint]bool),
	}
	s.logger = newSchedulerLogger()

	return s
}

// newSchedulerLogger writes to both stdout and a rotated file under data/
func newSchedulerLogger() *log.Logger {
	rotated := &lumberjack.Logger{
		Filename:   filepath.Join("data", "scheduler.log"),
		MaxSize:    50, // megabytes
		MaxBackups: 5,
		MaxAge:     30, // days
		Compress:   true,
	}
	mw := io.MultiWriter(os.Stdout, rotated)
	return log.New(mw, "scheduler ", log.LstdFlags|log.Lmicroseconds|log.LUTC)
}

// Start launches the scheduler loop in a background goroutine and returns a stop function
func (s *CampaignScheduler) Start(parent context.Context) func() {
	ctx, cancel := context.WithCancel(parent)

	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.runOnce(ctx)

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.runOnce(ctx)
			}
		}
	}()

	return cancel
}

func (s *CampaignScheduler) runOnce(ctx context.Context) {
	pending, err := s.campaignRepo.ListByStatus(ctx, models.CampaignStatusPending, 20)
	if err != nil {
		s.logger.Printf("scheduler: list pending campaigns failed: %v", err)
		return
	}
	if len(pending) == 0 {
		return
	}
	s.logger.Printf("scheduler: %d pending campaigns", len(pending))

	for _, campaign := range pending {
		id := campaign.ID
		if !s.markInFlight(id) {
			continue
		}
		go func() {
			defer s.clearInFlight(id)
			if err := s.campaignFlow.Run(ctx, id); err != nil {
				s.logger.Printf("scheduler: campaign id=%d failed: %v", id, err)
				return
			}
			s.logger.Printf("scheduler: campaign id=%d completed", id)
		}()
	}
}

// markInFlight guards against re-dispatching a campaign the previous tick
// already picked up but whose status flip has not landed yet.
func (s *CampaignScheduler) markInFlight(id uint) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight[id] {
		return false
	}
	s.inFlight[id] = true
	return true
}

func (s *CampaignScheduler) clearInFlight(id uint) {
	s.mu.Lock()
	delete(s.inFlight, id)
	s.mu.Unlock()
}
