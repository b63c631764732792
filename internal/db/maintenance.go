package db

import (
	"context"
	"time"

	"github.com/banshee-data/carm/internal/monitoring"
)

// MaintenanceResult summarises one maintenance pass.
type MaintenanceResult struct {
	Purged int64
	Reaped []string
}

// Maintain purges deleting sessions and cancels sessions that have been
// queued or running for longer than sessionTimeout per sample. Cancelled
// sessions may be started again.
func (db *DB) Maintain(sessionTimeout time.Duration) (MaintenanceResult, error) {
	var res MaintenanceResult
	purged, err := db.PurgeDeletedSessions()
	if err != nil {
		return res, err
	}
	res.Purged = purged

	stuck, err := db.StuckSessions(sessionTimeout)
	if err != nil {
		return res, err
	}
	for _, s := range stuck {
		if err := db.CancelBatchRun(s.ID); err != nil {
			return res, err
		}
		res.Reaped = append(res.Reaped, s.ID)
	}
	return res, nil
}

// RunMaintenance calls Maintain every interval until ctx is cancelled.
func (db *DB) RunMaintenance(ctx context.Context, interval, sessionTimeout time.Duration) {
	logf := monitoring.Prefixed("maintenance")
	ticker := db.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			res, err := db.Maintain(sessionTimeout)
			if err != nil {
				logf("pass failed: %v", err)
				continue
			}
			if res.Purged > 0 {
				logf("purged %d deleted session(s)", res.Purged)
			}
			for _, id := range res.Reaped {
				logf("cancelled stuck session %s", id)
			}
		}
	}
}
