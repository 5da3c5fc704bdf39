// contact_audit.go defines the append-only audit row recorded for every
// committed contact mutation.
package models

import (
	"time"

	"github.com/contact-vault/contact-vault/internal/occ"
)

// AuditAction is the kind of committed mutation an audit row describes.
type AuditAction string

const (
	ActionCreated  AuditAction = "Created"
	ActionModified AuditAction = "Modified"
	ActionDeleted  AuditAction = "Deleted"
)

// AnonymousActor is recorded when a commit arrives without an authenticated
// identity.
const AnonymousActor = "Unknown"

// ContactAudit is one immutable record of one commit against one contact.
//
// ContactID is zero when the row was persisted before storage assigned the
// contact's identity (a Created entry written in the same transaction as the
// insert); a post-commit backfill patches it once the identity is known. A
// zero ContactID on an old Created row therefore means the backfill failed —
// the entry is still valid, just unlinked.
type ContactAudit struct {
	ID        int64         `json:"id" db:"id"`
	ContactID int64         `json:"contactId" db:"contact_id"`
	EventTime time.Time     `json:"eventTime" db:"event_time"`
	Actor     string        `json:"actor" db:"actor"`
	Action    AuditAction   `json:"action" db:"action"`
	Changes   occ.ChangeSet `json:"changes"`
}
