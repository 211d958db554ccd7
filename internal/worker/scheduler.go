package worker

import (
	"context"
	"log/slog"
	"time"
)

// Backuper is the slice of the storage backend the scheduler needs.
type Backuper interface {
	CreateFullBackup() (string, error)
}

// BackupScheduler creates a full backup on a fixed interval. The HTTP server
// also rotates backups on every save; this loop guarantees a recovery point
// even when the data sits untouched for days.
type BackupScheduler struct {
	store    Backuper
	interval time.Duration
}

func NewBackupScheduler(store Backuper, interval time.Duration) *BackupScheduler {
	return &BackupScheduler{store: store, interval: interval}
}

// RunOnce performs a single backup attempt.
func (s *BackupScheduler) RunOnce(ctx context.Context) error {
	name, err := s.store.CreateFullBackup()
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "Scheduled backup created", "backup_file", name)
	return nil
}

// Run backs up immediately and then on every tick until the context is
// canceled. Backup failures are logged and retried on the next tick.
func (s *BackupScheduler) Run(ctx context.Context) error {
	if err := s.RunOnce(ctx); err != nil {
		slog.ErrorContext(ctx, "Initial scheduled backup failed", "error", err)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				slog.ErrorContext(ctx, "Scheduled backup failed", "error", err)
			}
		}
	}
}
