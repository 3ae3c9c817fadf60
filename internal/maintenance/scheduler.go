package maintenance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/turnengine/engine/internal/history"
	"github.com/turnengine/engine/internal/observability"
)

// SchedulerConfig names the two jobs §4.21 defines and their cron
// expressions; an empty expression disables that job.
type SchedulerConfig struct {
	HistoryTrimCron   string
	HistoryMaxTurns   int
	WorldSnapshotCron string
	WorldStatePath    string
}

// Scheduler drives history-trim and world-state-snapshot jobs on independent
// cron schedules, grounded on the teacher's robfig/cron usage in its own
// task scheduler and cron-schedule parsing helper.
type Scheduler struct {
	cron    *cron.Cron
	history history.Store
	snap    *Snapshotter
	path    string
	logger  *observability.Logger

	mu       sync.Mutex
	lastSnap string
}

// NewScheduler builds a Scheduler. snap may be nil if no world-state
// snapshot job is configured.
func NewScheduler(cfg SchedulerConfig, hist history.Store, snap *Snapshotter, logger *observability.Logger) (*Scheduler, error) {
	c := cron.New(cron.WithParser(cron.NewParser(
		cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
	)))

	s := &Scheduler{cron: c, history: hist, snap: snap, path: cfg.WorldStatePath, logger: logger}

	if cfg.HistoryTrimCron != "" {
		if _, err := c.AddFunc(cfg.HistoryTrimCron, func() { s.runHistoryTrim(cfg.HistoryMaxTurns) }); err != nil {
			return nil, fmt.Errorf("maintenance: invalid history trim schedule: %w", err)
		}
	}
	if cfg.WorldSnapshotCron != "" {
		if snap == nil {
			return nil, fmt.Errorf("maintenance: world snapshot schedule set without a snapshotter")
		}
		if _, err := c.AddFunc(cfg.WorldSnapshotCron, s.runWorldSnapshot); err != nil {
			return nil, fmt.Errorf("maintenance: invalid world snapshot schedule: %w", err)
		}
	}
	return s, nil
}

// Start begins running scheduled jobs in the background. Stop cancels them.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop blocks until in-flight jobs finish, then stops the scheduler.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// runHistoryTrim re-applies the maxTurns bound even absent new appends, so a
// history store that grew under manual edits still converges (§4.21).
func (s *Scheduler) runHistoryTrim(maxTurns int) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.history.Trim(ctx, maxTurns); err != nil {
		s.logError(ctx, "history trim failed", err)
	}
}

// runWorldSnapshot uploads the current world-state file to S3. A failed
// upload logs and retries next cycle; it never blocks or fails a turn
// (§4.21).
func (s *Scheduler) runWorldSnapshot() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	uri, err := s.snap.Snapshot(ctx, s.path, time.Now())
	if err != nil {
		s.logError(ctx, "world snapshot: upload failed", err)
		return
	}

	s.mu.Lock()
	s.lastSnap = uri
	s.mu.Unlock()
}

// LastSnapshot returns the URI of the most recently uploaded snapshot, or
// "" if none has succeeded yet.
func (s *Scheduler) LastSnapshot() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSnap
}

func (s *Scheduler) logError(ctx context.Context, msg string, err error) {
	if s.logger == nil {
		return
	}
	s.logger.Error(ctx, msg, "error", err)
}
