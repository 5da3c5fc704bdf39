// contact_repository.go implements ContactRepository, the public store
// surface for contact records. Every mutating operation is scoped as one
// unit of work so the version check, the business write, and the audit entry
// commit atomically.
package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/contact-vault/contact-vault/internal/db/models"
	"github.com/contact-vault/contact-vault/internal/occ"
)

// ContactRepository handles contact database operations. The optional audit
// sink receives the audit entries of each successful commit after the
// transaction has completed, for shipping to external destinations.
type ContactRepository struct {
	db       *sqlx.DB
	recorder *AuditRecorder
	sink     func(entries []*models.ContactAudit)
}

// NewContactRepository creates a new ContactRepository.
func NewContactRepository(db *sqlx.DB) *ContactRepository {
	return &ContactRepository{
		db:       db,
		recorder: NewAuditRecorder(db),
	}
}

// WithAuditSink installs a post-commit receiver for committed audit entries.
// The sink runs on the caller's goroutine; implementations that do I/O
// should hand off internally.
func (r *ContactRepository) WithAuditSink(sink func(entries []*models.ContactAudit)) *ContactRepository {
	r.sink = sink
	return r
}

// CreateUnitOfWork opens a unit of work bound to its own transaction. The
// caller owns it exclusively and must Close it on every exit path.
func (r *ContactRepository) CreateUnitOfWork(ctx context.Context, actor string) (*UnitOfWork, error) {
	return newUnitOfWork(ctx, r.db, r.recorder, actor)
}

// Load retrieves a contact by identity. Returns nil when the identity does
// not exist.
func (r *ContactRepository) Load(ctx context.Context, id int64) (*models.Contact, error) {
	row, err := r.loadRow(ctx, id)
	if err != nil || row == nil {
		return nil, err
	}
	c := row.Contact
	return &c, nil
}

// LoadForUpdate retrieves a contact together with the version token and audit
// stamps needed before an update. Returns nil when the identity does not
// exist.
func (r *ContactRepository) LoadForUpdate(ctx context.Context, id int64) (*models.VersionedContact, error) {
	row, err := r.loadRow(ctx, id)
	if err != nil || row == nil {
		return nil, err
	}
	return row.versioned(), nil
}

func (r *ContactRepository) loadRow(ctx context.Context, id int64) (*contactRow, error) {
	var row contactRow
	err := r.db.GetContext(ctx, &row,
		`SELECT `+contactColumns+` FROM contacts WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to load contact: %w", err)
	}
	return &row, nil
}

// Add creates a new contact attributed to actor. Storage assigns the
// identity; the returned record carries it along with the first version
// token.
func (r *ContactRepository) Add(ctx context.Context, actor string, c *models.Contact) (*models.VersionedContact, error) {
	uow, err := r.CreateUnitOfWork(ctx, actor)
	if err != nil {
		return nil, err
	}
	defer uow.Close()

	if err := uow.RegisterNew(c); err != nil {
		return nil, err
	}
	if err := uow.Commit(ctx); err != nil {
		return nil, err
	}
	r.ship(uow.CommittedAudits())

	return &models.VersionedContact{Contact: *c, Version: uow.NewVersion(c.ID)}, nil
}

// Update applies the caller's copy of a contact, conditioned on the version
// token it was loaded with. On a mismatch the returned error is a
// *ConflictError carrying the stored record and its current token; a
// concurrently deleted identity surfaces as ErrNotFound.
func (r *ContactRepository) Update(ctx context.Context, actor string, c *models.Contact, expected occ.Version) (*models.VersionedContact, error) {
	uow, err := r.CreateUnitOfWork(ctx, actor)
	if err != nil {
		return nil, err
	}
	defer uow.Close()

	// The stored snapshot read inside the transaction is the diff baseline
	// for the audit entry. If another writer slipped in after this read, the
	// conditional write below misses and no audit entry is kept.
	original, err := r.snapshot(ctx, uow, c.ID)
	if err != nil {
		return nil, err
	}
	if err := uow.RegisterDirty(original, c, expected); err != nil {
		return nil, err
	}
	if err := uow.Commit(ctx); err != nil {
		return nil, err
	}
	r.ship(uow.CommittedAudits())

	return &models.VersionedContact{Contact: *c, Version: uow.NewVersion(c.ID)}, nil
}

// Delete removes a contact. With a nil expected version, deletes win over
// concurrent edits (they do not participate in the version protocol); passing
// an expected version makes the delete conditional, surfacing *ConflictError
// when someone else modified the row first. The audit entry always records
// the full pre-delete state. Returns false when the identity does not exist,
// in which case nothing is written.
func (r *ContactRepository) Delete(ctx context.Context, actor string, id int64, expected occ.Version) (bool, error) {
	uow, err := r.CreateUnitOfWork(ctx, actor)
	if err != nil {
		return false, err
	}
	defer uow.Close()

	prior, err := r.snapshot(ctx, uow, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if err := uow.RegisterDeleted(prior, expected); err != nil {
		return false, err
	}
	if err := uow.Commit(ctx); err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	r.ship(uow.CommittedAudits())

	return true, nil
}

// snapshot reads the stored contact inside the unit's transaction.
func (r *ContactRepository) snapshot(ctx context.Context, uow *UnitOfWork, id int64) (*models.Contact, error) {
	var row contactRow
	err := uow.tx.GetContext(ctx, &row,
		`SELECT `+contactColumns+` FROM contacts WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("contact %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load contact snapshot: %w", err)
	}
	c := row.Contact
	return &c, nil
}

func (r *ContactRepository) ship(entries []*models.ContactAudit) {
	if r.sink == nil || len(entries) == 0 {
		return
	}
	r.sink(entries)
}
