// resolver.go implements the concurrency resolver: every mutation is a single
// conditional SQL statement keyed on identity plus version token, never a
// read followed by a write, so the version check and the update are one
// linearizable compare-and-swap. When the swap misses, the resolver fetches
// the stored row inside the same transaction to tell a conflict apart from a
// concurrent delete.
package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/contact-vault/contact-vault/internal/db/models"
	"github.com/contact-vault/contact-vault/internal/occ"
)

const contactColumns = `id, first_name, last_name, email, phone, street, city, state, zip_code,
	row_version, created_by, created_on, modified_by, modified_on`

// contactRow is the scan target for a full contacts row; it splits back into
// the business record, its version token, and the audit stamps.
type contactRow struct {
	models.Contact
	RowVersion []byte `db:"row_version"`
	models.AuditMeta
}

func (r contactRow) versioned() *models.VersionedContact {
	return &models.VersionedContact{
		Contact: r.Contact,
		Version: occ.Version(r.RowVersion),
		Meta:    r.AuditMeta,
	}
}

// concurrencyResolver runs the conditional writes for one transaction. It is
// created per commit by the unit of work and never shared.
type concurrencyResolver struct {
	tx *sqlx.Tx
}

// insert creates a new contact row, letting storage assign the identity. The
// identity is written back onto c and the minted version token is returned.
func (r concurrencyResolver) insert(ctx context.Context, c *models.Contact, actor string, now time.Time) (occ.Version, error) {
	version := occ.NewVersion()

	query := `
		INSERT INTO contacts (first_name, last_name, email, phone, street, city, state, zip_code,
			row_version, created_by, created_on)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`

	err := r.tx.QueryRowContext(ctx, query,
		c.FirstName, c.LastName, c.Email, c.Phone, c.Street, c.City, c.State, c.ZipCode,
		[]byte(version), actor, now,
	).Scan(&c.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to insert contact: %w", err)
	}

	return version, nil
}

// update applies the caller's copy of the contact if and only if the stored
// version still equals expected. The comparison and the write are one
// conditional UPDATE; a miss is resolved into Conflict or NotFound by
// re-reading the row.
func (r concurrencyResolver) update(ctx context.Context, c *models.Contact, expected occ.Version, actor string, now time.Time) (CommitResult, error) {
	version := occ.NewVersion()

	query := `
		UPDATE contacts
		SET first_name = $1, last_name = $2, email = $3, phone = $4,
			street = $5, city = $6, state = $7, zip_code = $8,
			row_version = $9, modified_by = $10, modified_on = $11
		WHERE id = $12 AND row_version = $13
	`

	res, err := r.tx.ExecContext(ctx, query,
		c.FirstName, c.LastName, c.Email, c.Phone, c.Street, c.City, c.State, c.ZipCode,
		[]byte(version), actor, now,
		c.ID, []byte(expected),
	)
	if err != nil {
		return CommitResult{}, fmt.Errorf("failed to update contact: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return CommitResult{}, fmt.Errorf("failed to read update result: %w", err)
	}
	if affected == 1 {
		return CommitResult{Status: CommitOK, NewVersion: version}, nil
	}

	return r.resolveMiss(ctx, c.ID)
}

// delete removes the row. A zero expected token makes the delete
// unconditional (last write wins); otherwise the removal participates in the
// version protocol like any other write. Deletion mints no new version.
func (r concurrencyResolver) delete(ctx context.Context, id int64, expected occ.Version) (CommitResult, error) {
	var (
		res sql.Result
		err error
	)
	if expected.IsZero() {
		res, err = r.tx.ExecContext(ctx, `DELETE FROM contacts WHERE id = $1`, id)
	} else {
		res, err = r.tx.ExecContext(ctx,
			`DELETE FROM contacts WHERE id = $1 AND row_version = $2`, id, []byte(expected))
	}
	if err != nil {
		return CommitResult{}, fmt.Errorf("failed to delete contact: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return CommitResult{}, fmt.Errorf("failed to read delete result: %w", err)
	}
	if affected == 1 {
		return CommitResult{Status: CommitOK}, nil
	}

	return r.resolveMiss(ctx, id)
}

// resolveMiss classifies a failed compare-and-swap: row gone means NotFound,
// row present means a concurrent writer won and its state is returned for
// the caller to retry against.
func (r concurrencyResolver) resolveMiss(ctx context.Context, id int64) (CommitResult, error) {
	var row contactRow
	err := r.tx.GetContext(ctx, &row,
		`SELECT `+contactColumns+` FROM contacts WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CommitResult{Status: CommitNotFound}, nil
		}
		return CommitResult{}, fmt.Errorf("failed to load conflicting contact: %w", err)
	}

	current := row.Contact
	return CommitResult{
		Status:         CommitConflict,
		Current:        &current,
		CurrentVersion: occ.Version(row.RowVersion),
	}, nil
}
