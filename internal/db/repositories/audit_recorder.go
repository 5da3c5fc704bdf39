// audit_recorder.go persists the audit row for each staged mutation inside
// the same transaction as the business write, and patches the identity link
// of Created entries after the commit assigns the new row's identity.
package repositories

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/contact-vault/contact-vault/internal/db/models"
)

// AuditRecorder writes contact audit entries. The capture path runs inside
// the unit-of-work transaction; the backfill path runs against the pool after
// that transaction has committed, because the identity it patches in did not
// exist until the commit.
type AuditRecorder struct {
	db *sqlx.DB
}

// NewAuditRecorder creates a new AuditRecorder over the connection pool.
func NewAuditRecorder(db *sqlx.DB) *AuditRecorder {
	return &AuditRecorder{db: db}
}

// capture inserts one audit entry inside tx and returns the audit row id.
// For Created entries the entry's ContactID is still zero at this point; the
// unit of work schedules a post-commit backfill for it.
func (a *AuditRecorder) capture(ctx context.Context, tx *sqlx.Tx, entry *models.ContactAudit) (int64, error) {
	changes, err := json.Marshal(entry.Changes)
	if err != nil {
		return 0, fmt.Errorf("failed to serialize change set: %w", err)
	}

	query := `
		INSERT INTO contact_audits (contact_id, event_time, actor, action, changes)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	err = tx.QueryRowContext(ctx, query,
		entry.ContactID, entry.EventTime, entry.Actor, string(entry.Action), changes,
	).Scan(&entry.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to insert audit entry: %w", err)
	}

	return entry.ID, nil
}

// BackfillContactID patches the identity foreign key of an audit entry that
// was written before its contact's identity existed. It runs outside the
// original transaction and must never cascade into further auditing: a
// failure here leaves the committed business write intact and the entry
// merely unlinked.
func (a *AuditRecorder) BackfillContactID(ctx context.Context, auditID, contactID int64) error {
	_, err := a.db.ExecContext(ctx,
		`UPDATE contact_audits SET contact_id = $1 WHERE id = $2 AND contact_id = 0`,
		contactID, auditID)
	if err != nil {
		return fmt.Errorf("failed to backfill audit entry %d: %w", auditID, err)
	}
	return nil
}

// Relink is the manual repair counterpart of BackfillContactID, used by the
// audit maintenance endpoint when an automatic backfill was lost. It reports
// whether an unlinked entry was actually patched, so callers can distinguish
// a repair from a no-op on an already-linked or unknown entry.
func (a *AuditRecorder) Relink(ctx context.Context, auditID, contactID int64) (bool, error) {
	res, err := a.db.ExecContext(ctx,
		`UPDATE contact_audits SET contact_id = $1 WHERE id = $2 AND contact_id = 0`,
		contactID, auditID)
	if err != nil {
		return false, fmt.Errorf("failed to relink audit entry %d: %w", auditID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read relink result for audit entry %d: %w", auditID, err)
	}
	return affected == 1, nil
}
