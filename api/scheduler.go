/*
scheduler.go - Automated end-of-day snapshot scheduler

PURPOSE:
  Periodically checks for subjects whose previous day has elapsed without a
  persisted snapshot and builds it, freezing the day's scores and streaks.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - "Previous day" is evaluated per subject in the subject's timezone, so a
    subject in Chicago and one in Tokyo roll over at different wall times
  - Skips days that already have a snapshot (Build is idempotent anyway,
    the check just avoids recomputation)
  - Backfills up to BackfillDays of missed days after downtime

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 hour)
  - BackfillDays:  How far back to fill missing snapshots (default: 7)
  - Enabled:       Whether scheduler is active (default: true)

USAGE:
  scheduler := NewSnapshotScheduler(store, handler)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - snapshot/builder.go: Build semantics and freeze rules
  - handlers.go: RebuildSnapshot endpoint (manual override)
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/warp/adherence-engine/engine"
)

// SnapshotScheduler freezes elapsed days into daily snapshots.
type SnapshotScheduler struct {
	Store         Storage
	Handler       *Handler
	CheckInterval time.Duration
	BackfillDays  int
	Enabled       bool

	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewSnapshotScheduler creates a new scheduler.
func NewSnapshotScheduler(store Storage, handler *Handler) *SnapshotScheduler {
	return &SnapshotScheduler{
		Store:         store,
		Handler:       handler,
		CheckInterval: 1 * time.Hour,
		BackfillDays:  7,
		Enabled:       true,
		stop:          make(chan bool),
	}
}

// Start begins the scheduler.
func (ss *SnapshotScheduler) Start() {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if !ss.Enabled {
		log.Println("[Scheduler] Disabled, not starting")
		return
	}

	ss.ticker = time.NewTicker(ss.CheckInterval)
	ss.wg.Add(1)

	go ss.run()

	log.Printf("[Scheduler] Started with check interval: %v", ss.CheckInterval)
}

// Stop stops the scheduler.
func (ss *SnapshotScheduler) Stop() {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if ss.ticker != nil {
		ss.ticker.Stop()
		close(ss.stop)
		ss.wg.Wait()
		log.Println("[Scheduler] Stopped")
	}
}

func (ss *SnapshotScheduler) run() {
	defer ss.wg.Done()

	// Run immediately on start
	ss.checkAndProcess()

	for {
		select {
		case <-ss.ticker.C:
			ss.checkAndProcess()
		case <-ss.stop:
			return
		}
	}
}

func (ss *SnapshotScheduler) checkAndProcess() {
	ctx := context.Background()

	subjects, err := ss.Store.ListSubjects(ctx)
	if err != nil {
		log.Printf("[Scheduler] Error listing subjects: %v", err)
		return
	}

	builtCount := 0
	skippedCount := 0

	for _, subj := range subjects {
		today := engine.Today(subj.Location())

		// Walk backwards from yesterday, filling any gaps.
		for i := 1; i <= ss.BackfillDays; i++ {
			day := today.AddDays(-i)

			existing, err := ss.Store.Get(ctx, subj.ID, day)
			if err != nil {
				log.Printf("[Scheduler] Error checking snapshot for %s/%s: %v", subj.ID, day, err)
				break
			}
			if existing != nil {
				skippedCount++
				continue
			}

			if _, err := ss.Handler.Builder.Build(ctx, subj.ID, day); err != nil {
				log.Printf("[Scheduler] Error building snapshot for %s/%s: %v", subj.ID, day, err)
				continue
			}
			builtCount++
		}
	}

	if builtCount > 0 {
		log.Printf("[Scheduler] Completed: %d built, %d already frozen", builtCount, skippedCount)
	}
}

// RunNow triggers an immediate check (for testing/admin).
func (ss *SnapshotScheduler) RunNow() {
	ss.checkAndProcess()
}

// GetNextRunTime returns when the next scheduled check will occur.
func (ss *SnapshotScheduler) GetNextRunTime() time.Time {
	return time.Now().Add(ss.CheckInterval)
}
