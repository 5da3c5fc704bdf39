// Package models defines the persistence structs shared by the repositories,
// the HTTP layer, and the remote client: the Contact business record, its
// version-token wrapper, and the audit row written for every commit.
package models

import (
	"time"

	"github.com/contact-vault/contact-vault/internal/occ"
)

// Contact is the audited business record. It deliberately carries no storage
// metadata — the row version and created/modified stamps live on
// VersionedContact and AuditMeta so the business type stays free of
// persistence concerns and the wrapper is explicit at every API boundary.
type Contact struct {
	ID        int64  `json:"id" db:"id"`
	FirstName string `json:"firstName" db:"first_name"`
	LastName  string `json:"lastName" db:"last_name"`
	Email     string `json:"email" db:"email"`
	Phone     string `json:"phone" db:"phone"`
	Street    string `json:"street" db:"street"`
	City      string `json:"city" db:"city"`
	State     string `json:"state" db:"state"`
	ZipCode   string `json:"zipCode" db:"zip_code"`
}

// AuditMeta carries the who/when stamps that storage maintains alongside a
// contact. The stamps are written as part of the committed row state, not
// just the audit log, so they survive independently of audit retention.
type AuditMeta struct {
	CreatedBy  string     `json:"createdBy" db:"created_by"`
	CreatedOn  time.Time  `json:"createdOn" db:"created_on"`
	ModifiedBy *string    `json:"modifiedBy,omitempty" db:"modified_by"`
	ModifiedOn *time.Time `json:"modifiedOn,omitempty" db:"modified_on"`
}

// VersionedContact pairs a contact with the storage generation it was read
// at. Update and conditional-delete attempts must present the version back;
// a mismatch at commit time is a conflict.
type VersionedContact struct {
	Contact Contact     `json:"contact"`
	Version occ.Version `json:"versionToken"`
	Meta    AuditMeta   `json:"meta"`
}
