// unit_of_work.go scopes one logical edit: staged mutations, the version
// check, the business write, and the audit write commit together or not at
// all. A unit of work exclusively owns its transaction handle for its whole
// lifetime; it is never shared across callers.
package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/contact-vault/contact-vault/internal/db/models"
	"github.com/contact-vault/contact-vault/internal/occ"
	"github.com/contact-vault/contact-vault/internal/telemetry"
)

// State is the lifecycle position of a unit of work:
// Open → Committed | Faulted → Disposed.
type State int

const (
	StateOpen State = iota
	StateCommitted
	StateFaulted
	StateDisposed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateCommitted:
		return "committed"
	case StateFaulted:
		return "faulted"
	case StateDisposed:
		return "disposed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// mutation is one staged change: the action kind, the in-memory snapshot to
// write (nil for deletes), the prior snapshot to diff against (nil for
// creates), and the version token the write is conditioned on.
type mutation struct {
	action     models.AuditAction
	current    *models.Contact
	original   *models.Contact
	expected   occ.Version
	newVersion occ.Version
}

// identityBackfill is a post-commit patch for a Created audit entry whose
// contact identity was assigned by the commit itself.
type identityBackfill struct {
	auditID int64
	contact *models.Contact
	entry   *models.ContactAudit
}

// UnitOfWork binds one version check, one set of mutations, and their audit
// entries into a single atomic commit. At most one mutation may be staged
// per identity; staging a second copy of the same identity fails fast as a
// programmer error.
type UnitOfWork struct {
	tx       *sqlx.Tx
	recorder *AuditRecorder
	actor    string
	state    State
	staged   []*mutation
	byID     map[int64]*mutation
	shipped  []*models.ContactAudit
}

func newUnitOfWork(ctx context.Context, db *sqlx.DB, recorder *AuditRecorder, actor string) (*UnitOfWork, error) {
	if actor == "" {
		actor = models.AnonymousActor
	}
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin unit of work: %w", err)
	}
	return &UnitOfWork{
		tx:       tx,
		recorder: recorder,
		actor:    actor,
		state:    StateOpen,
		byID:     make(map[int64]*mutation),
	}, nil
}

// State returns the current lifecycle position.
func (u *UnitOfWork) State() State {
	return u.state
}

// RegisterNew stages a contact for creation. Storage assigns the identity at
// commit time, so the contact must not carry one yet.
func (u *UnitOfWork) RegisterNew(c *models.Contact) error {
	if u.state != StateOpen {
		return ErrUnitNotOpen
	}
	if c.ID != 0 {
		return ErrIdentityAssigned
	}
	u.staged = append(u.staged, &mutation{action: models.ActionCreated, current: c})
	return nil
}

// RegisterDirty stages an update of current, conditioned on expected — the
// token original was loaded with. The original snapshot is diffed against
// current for the audit entry.
func (u *UnitOfWork) RegisterDirty(original, current *models.Contact, expected occ.Version) error {
	if u.state != StateOpen {
		return ErrUnitNotOpen
	}
	if expected.IsZero() {
		return ErrVersionRequired
	}
	if current.ID == 0 || original.ID != current.ID {
		return fmt.Errorf("staged update for identity %d against snapshot %d: %w",
			current.ID, original.ID, ErrNotFound)
	}
	if _, dup := u.byID[current.ID]; dup {
		return fmt.Errorf("contact %d: %w", current.ID, ErrDuplicateIdentity)
	}
	m := &mutation{action: models.ActionModified, original: original, current: current, expected: expected}
	u.byID[current.ID] = m
	u.staged = append(u.staged, m)
	return nil
}

// RegisterDeleted stages removal of prior. A zero expected token deletes
// unconditionally (last write wins); a non-zero token makes the delete
// participate in the version protocol.
func (u *UnitOfWork) RegisterDeleted(prior *models.Contact, expected occ.Version) error {
	if u.state != StateOpen {
		return ErrUnitNotOpen
	}
	if prior.ID == 0 {
		return fmt.Errorf("staged delete without identity: %w", ErrNotFound)
	}
	if _, dup := u.byID[prior.ID]; dup {
		return fmt.Errorf("contact %d: %w", prior.ID, ErrDuplicateIdentity)
	}
	m := &mutation{action: models.ActionDeleted, original: prior, expected: expected}
	u.byID[prior.ID] = m
	u.staged = append(u.staged, m)
	return nil
}

// Commit applies every staged mutation in registration order, each as one
// conditional write followed by its audit entry, then commits the
// transaction. On a version mismatch the transaction is abandoned, the unit
// faults, and a *ConflictError carrying the stored record and its current
// token is returned; a concurrent delete surfaces as ErrNotFound. The
// identity backfill for Created audit entries runs after the commit and is
// best effort: its failure is logged, counted, and never unwinds the commit.
func (u *UnitOfWork) Commit(ctx context.Context) error {
	if u.state != StateOpen {
		return ErrUnitNotOpen
	}

	now := time.Now().UTC()
	resolver := concurrencyResolver{tx: u.tx}
	var backfills []identityBackfill
	var entries []*models.ContactAudit

	for _, m := range u.staged {
		switch m.action {
		case models.ActionCreated:
			// The audit entry is written first, while the identity is still
			// unassigned, and patched after commit. Stamping created-by/on
			// happens inside insert so the stamps are committed row state.
			entry := &models.ContactAudit{
				EventTime: now,
				Actor:     u.actor,
				Action:    models.ActionCreated,
				Changes:   models.Diff(nil, m.current),
			}
			auditID, err := u.recorder.capture(ctx, u.tx, entry)
			if err != nil {
				u.state = StateFaulted
				return err
			}
			version, err := resolver.insert(ctx, m.current, u.actor, now)
			if err != nil {
				u.state = StateFaulted
				return err
			}
			m.newVersion = version
			backfills = append(backfills, identityBackfill{auditID: auditID, contact: m.current, entry: entry})
			entries = append(entries, entry)

		case models.ActionModified:
			result, err := resolver.update(ctx, m.current, m.expected, u.actor, now)
			if err != nil {
				u.state = StateFaulted
				return err
			}
			if err := u.checkOutcome(m, result); err != nil {
				return err
			}
			m.newVersion = result.NewVersion
			entry := &models.ContactAudit{
				ContactID: m.current.ID,
				EventTime: now,
				Actor:     u.actor,
				Action:    models.ActionModified,
				Changes:   models.Diff(m.original, m.current),
			}
			if _, err := u.recorder.capture(ctx, u.tx, entry); err != nil {
				u.state = StateFaulted
				return err
			}
			entries = append(entries, entry)

		case models.ActionDeleted:
			result, err := resolver.delete(ctx, m.original.ID, m.expected)
			if err != nil {
				u.state = StateFaulted
				return err
			}
			if err := u.checkOutcome(m, result); err != nil {
				return err
			}
			entry := &models.ContactAudit{
				ContactID: m.original.ID,
				EventTime: now,
				Actor:     u.actor,
				Action:    models.ActionDeleted,
				Changes:   models.Diff(m.original, nil),
			}
			if _, err := u.recorder.capture(ctx, u.tx, entry); err != nil {
				u.state = StateFaulted
				return err
			}
			entries = append(entries, entry)
		}
	}

	if err := u.tx.Commit(); err != nil {
		u.state = StateFaulted
		return fmt.Errorf("failed to commit unit of work: %w", err)
	}
	u.state = StateCommitted
	u.shipped = entries

	for _, m := range u.staged {
		telemetry.ContactCommitsTotal.WithLabelValues(string(m.action)).Inc()
	}

	// Second, smaller write: link Created audit entries to the identities the
	// commit just assigned. The business write already stands, so failure
	// here is a warning, never a rollback — and it must not re-enter the
	// capture path.
	for _, b := range backfills {
		b.entry.ContactID = b.contact.ID
		if err := u.recorder.BackfillContactID(ctx, b.auditID, b.contact.ID); err != nil {
			telemetry.AuditBackfillFailuresTotal.Inc()
			slog.Warn("audit identity backfill failed, entry remains unlinked",
				"audit_id", b.auditID,
				"contact_id", b.contact.ID,
				"error", err)
		}
	}

	return nil
}

// checkOutcome translates a non-OK commit result into the typed error the
// caller branches on and faults the unit.
func (u *UnitOfWork) checkOutcome(m *mutation, result CommitResult) error {
	switch result.Status {
	case CommitConflict:
		u.state = StateFaulted
		telemetry.ContactConflictsTotal.Inc()
		attempted := m.current
		if attempted == nil {
			attempted = m.original
		}
		return &ConflictError{
			Attempted:      attempted,
			Current:        result.Current,
			CurrentVersion: result.CurrentVersion,
		}
	case CommitNotFound:
		u.state = StateFaulted
		id := int64(0)
		if m.current != nil {
			id = m.current.ID
		} else if m.original != nil {
			id = m.original.ID
		}
		return fmt.Errorf("contact %d: %w", id, ErrNotFound)
	}
	return nil
}

// NewVersion returns the token minted for the given identity by a committed
// unit of work, or a zero token if the identity was not written.
func (u *UnitOfWork) NewVersion(contactID int64) occ.Version {
	for _, m := range u.staged {
		if m.current != nil && m.current.ID == contactID {
			return m.newVersion
		}
	}
	return nil
}

// CommittedAudits returns the audit entries persisted by a committed unit of
// work, for post-commit shipping. Entries are in registration order.
func (u *UnitOfWork) CommittedAudits() []*models.ContactAudit {
	if u.state != StateCommitted && u.state != StateDisposed {
		return nil
	}
	return u.shipped
}

// Close releases the transaction handle. It is idempotent and safe on every
// exit path: an open or faulted unit rolls back, a committed unit has
// nothing left to release.
func (u *UnitOfWork) Close() error {
	switch u.state {
	case StateDisposed:
		return nil
	case StateCommitted:
		u.state = StateDisposed
		return nil
	default:
		u.state = StateDisposed
		if err := u.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			return fmt.Errorf("failed to release unit of work: %w", err)
		}
		return nil
	}
}
