// audit_repository.go implements AuditRepository, the read side of the audit
// trail: filtered queries over the append-only contact_audits table for
// inspection and debugging. Writing audit rows is the AuditRecorder's job.
package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/contact-vault/contact-vault/internal/db/models"
)

// AuditRepository handles audit trail queries.
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// AuditFilters narrows an audit trail query.
type AuditFilters struct {
	Action    *models.AuditAction
	Actor     *string
	StartDate *time.Time
	EndDate   *time.Time
}

// ListForContact retrieves the audit entries of one contact, newest first,
// with optional filters and pagination. The total count of matching entries
// is returned alongside the page.
func (r *AuditRepository) ListForContact(ctx context.Context, contactID int64, filters AuditFilters, limit, offset int) ([]*models.ContactAudit, int, error) {
	countQuery := `SELECT COUNT(*) FROM contact_audits WHERE contact_id = $1`
	query := `
		SELECT id, contact_id, event_time, actor, action, changes
		FROM contact_audits
		WHERE contact_id = $1
	`

	args := []interface{}{contactID}
	paramIndex := 2

	if filters.Action != nil {
		clause := fmt.Sprintf(` AND action = $%d`, paramIndex)
		countQuery += clause
		query += clause
		args = append(args, string(*filters.Action))
		paramIndex++
	}

	if filters.Actor != nil {
		clause := fmt.Sprintf(` AND actor = $%d`, paramIndex)
		countQuery += clause
		query += clause
		args = append(args, *filters.Actor)
		paramIndex++
	}

	if filters.StartDate != nil {
		clause := fmt.Sprintf(` AND event_time >= $%d`, paramIndex)
		countQuery += clause
		query += clause
		args = append(args, *filters.StartDate)
		paramIndex++
	}

	if filters.EndDate != nil {
		clause := fmt.Sprintf(` AND event_time <= $%d`, paramIndex)
		countQuery += clause
		query += clause
		args = append(args, *filters.EndDate)
		paramIndex++
	}

	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count audit entries: %w", err)
	}

	query += fmt.Sprintf(` ORDER BY event_time DESC, id DESC LIMIT $%d OFFSET $%d`, paramIndex, paramIndex+1)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	entries := make([]*models.ContactAudit, 0)
	for rows.Next() {
		entry := &models.ContactAudit{}
		var changes []byte

		err := rows.Scan(
			&entry.ID,
			&entry.ContactID,
			&entry.EventTime,
			&entry.Actor,
			&entry.Action,
			&changes,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan audit entry: %w", err)
		}

		if err := json.Unmarshal(changes, &entry.Changes); err != nil {
			return nil, 0, fmt.Errorf("failed to parse change set of audit entry %d: %w", entry.ID, err)
		}

		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate audit entries: %w", err)
	}

	return entries, total, nil
}

// ListOrphans retrieves Created entries whose identity backfill never landed
// (contact_id still 0). These usually point at a post-commit backfill failure
// and can be repaired with AuditRecorder.BackfillContactID.
func (r *AuditRepository) ListOrphans(ctx context.Context, limit, offset int) ([]*models.ContactAudit, int, error) {
	var total int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM contact_audits WHERE contact_id = 0 AND action = $1`,
		string(models.ActionCreated)).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count orphaned audit entries: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, contact_id, event_time, actor, action, changes
		FROM contact_audits
		WHERE contact_id = 0 AND action = $1
		ORDER BY event_time DESC, id DESC LIMIT $2 OFFSET $3`,
		string(models.ActionCreated), limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list orphaned audit entries: %w", err)
	}
	defer rows.Close()

	entries := make([]*models.ContactAudit, 0)
	for rows.Next() {
		entry := &models.ContactAudit{}
		var changes []byte
		if err := rows.Scan(&entry.ID, &entry.ContactID, &entry.EventTime, &entry.Actor, &entry.Action, &changes); err != nil {
			return nil, 0, fmt.Errorf("failed to scan orphaned audit entry: %w", err)
		}
		if err := json.Unmarshal(changes, &entry.Changes); err != nil {
			return nil, 0, fmt.Errorf("failed to parse change set of audit entry %d: %w", entry.ID, err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate orphaned audit entries: %w", err)
	}

	return entries, total, nil
}
