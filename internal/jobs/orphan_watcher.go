// orphan_watcher.go implements the OrphanWatcher background job, which
// periodically counts Created audit entries whose identity backfill was lost
// (contact_id still 0). The count is exported as the audit_orphan_entries
// gauge and logged when non-zero, so a drifting audit trail is noticed before
// anyone needs the maintenance relink endpoint. The job only reads; repair
// stays a deliberate, operator-driven action.
package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/contact-vault/contact-vault/internal/db/repositories"
	"github.com/contact-vault/contact-vault/internal/telemetry"
)

// OrphanWatcher periodically samples the number of unlinked audit entries.
type OrphanWatcher struct {
	auditRepo *repositories.AuditRepository
	interval  time.Duration
	stopChan  chan struct{}
}

// NewOrphanWatcher creates an OrphanWatcher over the given pool. A
// non-positive interval defaults to one hour; orphans are rare and the scan
// is not worth running more often unless an operator is actively debugging.
func NewOrphanWatcher(db *sqlx.DB, interval time.Duration) *OrphanWatcher {
	if interval <= 0 {
		interval = time.Hour
	}
	return &OrphanWatcher{
		auditRepo: repositories.NewAuditRepository(db),
		interval:  interval,
		stopChan:  make(chan struct{}),
	}
}

// Start begins the background scan loop. It runs an initial scan immediately,
// then repeats on the configured interval. The loop exits when ctx is
// cancelled or Stop is called.
func (w *OrphanWatcher) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	slog.Info("audit orphan watcher started", "interval", w.interval)

	w.scan(ctx)

	for {
		select {
		case <-ticker.C:
			w.scan(ctx)
		case <-w.stopChan:
			slog.Info("audit orphan watcher stopped")
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop signals the background loop to exit.
func (w *OrphanWatcher) Stop() {
	close(w.stopChan)
}

func (w *OrphanWatcher) scan(ctx context.Context) {
	// The page contents are discarded; only the total matters here.
	_, total, err := w.auditRepo.ListOrphans(ctx, 1, 0)
	if err != nil {
		slog.Warn("audit orphan watcher: scan failed", "error", err)
		return
	}

	telemetry.AuditOrphanEntries.Set(float64(total))
	if total > 0 {
		slog.Warn("audit trail has unlinked Created entries",
			"count", total,
			"hint", "repair via POST /api/v1/admin/audit/:id/relink")
	}
}
