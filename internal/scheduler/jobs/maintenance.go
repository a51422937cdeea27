package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/coinpulse/pkg/logger"
)

// SnapshotCleaner deletes persisted snapshots past their retention
type SnapshotCleaner interface {
	CleanupOldSnapshots(ctx context.Context, retention time.Duration) (int64, error)
}

// SnapshotRetention is how long persisted ranking history is kept
const SnapshotRetention = 72 * time.Hour

// MaintenanceJob prunes old snapshot rows so the history table stays bounded
type MaintenanceJob struct {
	cleaner SnapshotCleaner
	logger  *logger.Logger
}

// NewMaintenanceJob creates the maintenance job
func NewMaintenanceJob(cleaner SnapshotCleaner, log *logger.Logger) *MaintenanceJob {
	return &MaintenanceJob{
		cleaner: cleaner,
		logger:  log,
	}
}

// Name returns the job name
func (j *MaintenanceJob) Name() string {
	return "maintenance"
}

// Schedule runs daily at 03:00
func (j *MaintenanceJob) Schedule() string {
	return "0 0 3 * * *"
}

// Run deletes snapshot rows past retention
func (j *MaintenanceJob) Run(ctx context.Context) error {
	deleted, err := j.cleaner.CleanupOldSnapshots(ctx, SnapshotRetention)
	if err != nil {
		return fmt.Errorf("cleanup snapshots: %w", err)
	}

	j.logger.WithField("deleted", deleted).Info("Old snapshots pruned")
	return nil
}
