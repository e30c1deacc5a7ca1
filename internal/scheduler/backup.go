// Package scheduler takes periodic backups of the patient store on a cron
// schedule and prunes old ones.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/germanygsg/taurimedrec/internal/monitoring"
)

var logf = monitoring.Prefixed("scheduler")

// Store is the part of the patient store the scheduler drives.
type Store interface {
	Backup(dir string) (string, error)
	PruneBackups(dir string, keep int) ([]string, error)
}

// Observer is told the outcome of every scheduled backup.
type Observer interface {
	ObserveBackup(trigger string, err error)
}

// TriggerScheduled is passed to Observer.ObserveBackup.
const TriggerScheduled = "scheduled"

// BackupScheduler runs Store.Backup followed by Store.PruneBackups.
type BackupScheduler struct {
	store    Store
	dir      string
	keep     int
	observer Observer

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

// NewBackupScheduler returns a stopped scheduler writing into dir and keeping
// the newest keep backups. observer may be nil.
func NewBackupScheduler(store Store, dir string, keep int, observer Observer) *BackupScheduler {
	return &BackupScheduler{
		store:    store,
		dir:      dir,
		keep:     keep,
		observer: observer,
		cron:     cron.New(),
	}
}

// Start schedules backups with a standard 5-field cron expression, for
// example "0 3 * * *" for daily at 03:00. An empty schedule does nothing.
// The scheduler stops when ctx is cancelled.
func (s *BackupScheduler) Start(ctx context.Context, schedule string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if schedule == "" {
		logf("backup schedule not configured, skipping scheduler")
		return nil
	}
	if s.running {
		return fmt.Errorf("backup scheduler already running")
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", schedule, err)
	}
	if _, err := s.cron.AddFunc(schedule, func() { _, _ = s.RunOnce() }); err != nil {
		return fmt.Errorf("failed to schedule backups: %w", err)
	}

	s.cron.Start()
	s.running = true
	logf("backup scheduler started: schedule=%q dir=%s keep=%d", schedule, s.dir, s.keep)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// RunOnce takes one backup and prunes, returning the new backup's path.
// A pruning failure is logged but does not fail the backup.
func (s *BackupScheduler) RunOnce() (string, error) {
	path, err := s.store.Backup(s.dir)
	if s.observer != nil {
		s.observer.ObserveBackup(TriggerScheduled, err)
	}
	if err != nil {
		logf("scheduled backup failed: %v", err)
		return "", err
	}

	removed, err := s.store.PruneBackups(s.dir, s.keep)
	if err != nil {
		logf("failed to prune backups: %v", err)
	} else if len(removed) > 0 {
		logf("pruned %d old backup(s)", len(removed))
	}
	return path, nil
}

// Stop halts the scheduler and waits for a running backup to finish.
func (s *BackupScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
	logf("backup scheduler stopped")
}

// IsRunning reports whether Start has scheduled backups.
func (s *BackupScheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun returns the next scheduled backup time, or nil when nothing is
// scheduled.
func (s *BackupScheduler) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.cron.Entries()
	if len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	return &next
}
