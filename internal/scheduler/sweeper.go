// Package scheduler runs the periodic stale-sync sweeper. Jobs stuck in
// processing after a worker crash would otherwise stay invisible forever;
// the sweeper fails them so operators can retry from the dashboard.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jobins-devs/redmine-jira-integration/internal/database/synclogs"
)

// Sweeper periodically releases sync logs stuck in the processing state.
type Sweeper struct {
	logs       *synclogs.Repository
	schedule   string
	staleAfter time.Duration

	cron       *cron.Cron
	entryID    cron.EntryID
	mu         sync.RWMutex
	isRunning  bool
	cancelFunc context.CancelFunc
}

func NewSweeper(logs *synclogs.Repository, schedule string, staleAfter time.Duration) *Sweeper {
	return &Sweeper{
		logs:       logs,
		schedule:   schedule,
		staleAfter: staleAfter,
		cron:       cron.New(cron.WithParser(cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow))),
	}
}

// Start begins the sweeper schedule.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return nil
	}

	entryID, err := s.cron.AddFunc(s.schedule, func() {
		s.runSweep()
	})
	if err != nil {
		return fmt.Errorf("failed to schedule stale-sync sweep: %w", err)
	}
	s.entryID = entryID

	var cancelCtx context.Context
	cancelCtx, s.cancelFunc = context.WithCancel(ctx)

	s.cron.Start()
	s.isRunning = true

	log.Printf("Stale-sync sweeper: started with schedule '%s' (stale after %s)", s.schedule, s.staleAfter)

	go func() {
		<-cancelCtx.Done()
		s.Stop()
	}()

	return nil
}

// Stop gracefully stops the sweeper, waiting for a running sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return
	}

	ctx := s.cron.Stop()
	<-ctx.Done()

	s.isRunning = false
	s.cancelFunc = nil

	log.Printf("Stale-sync sweeper: stopped")
}

// IsRunning returns whether the sweeper is active.
func (s *Sweeper) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// GetNextRunTime returns when the next sweep will occur.
func (s *Sweeper) GetNextRunTime() *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.isRunning {
		return nil
	}

	for _, entry := range s.cron.Entries() {
		if entry.ID == s.entryID {
			t := entry.Next
			return &t
		}
	}
	return nil
}

// RunNow triggers an immediate sweep.
func (s *Sweeper) RunNow() {
	go s.runSweep()
}

func (s *Sweeper) runSweep() {
	released, err := s.logs.ReleaseStale(s.staleAfter)
	if err != nil {
		log.Printf("Stale-sync sweeper: sweep failed: %v", err)
		return
	}
	if released > 0 {
		log.Printf("Stale-sync sweeper: failed %d sync(s) stuck in processing", released)
	}
}
