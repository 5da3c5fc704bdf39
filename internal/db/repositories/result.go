// result.go defines the tagged outcome of the conditional-write path and the
// typed error taxonomy surfaced to callers. Conflicts and missing rows are
// expected, recoverable outcomes and are distinguishable without parsing
// messages; plain errors are reserved for storage failures.
package repositories

import (
	"errors"
	"fmt"

	"github.com/contact-vault/contact-vault/internal/db/models"
	"github.com/contact-vault/contact-vault/internal/occ"
)

// CommitStatus tags the outcome of the conditional write that guards every
// mutation: the compare-and-swap either applied, lost to a concurrent writer,
// or found the row already gone.
type CommitStatus int

const (
	CommitOK CommitStatus = iota
	CommitConflict
	CommitNotFound
)

func (s CommitStatus) String() string {
	switch s {
	case CommitOK:
		return "ok"
	case CommitConflict:
		return "conflict"
	case CommitNotFound:
		return "not_found"
	}
	return fmt.Sprintf("CommitStatus(%d)", int(s))
}

// CommitResult is the tagged result of one conditional write.
//
// NewVersion is set only when Status is CommitOK and the write was not a
// delete — deletion is terminal for an identity and mints nothing. Current
// and CurrentVersion are set only on CommitConflict and carry the stored
// record the losing caller needs in order to retry or merge.
type CommitResult struct {
	Status         CommitStatus
	NewVersion     occ.Version
	Current        *models.Contact
	CurrentVersion occ.Version
}

var (
	// ErrNotFound reports that the target identity did not exist at write
	// time. A version mismatch that coincides with a concurrent delete is
	// deliberately surfaced as ErrNotFound rather than a conflict: there is
	// no stored record left to merge against.
	ErrNotFound = errors.New("contact not found")

	// ErrDuplicateIdentity reports a programmer error: two in-memory copies
	// of the same identity were staged in one unit of work.
	ErrDuplicateIdentity = errors.New("contact identity already staged in this unit of work")

	// ErrUnitNotOpen reports an operation on a unit of work that has already
	// committed, faulted, or been closed.
	ErrUnitNotOpen = errors.New("unit of work is not open")

	// ErrVersionRequired reports an update staged without the version token
	// the record was loaded with.
	ErrVersionRequired = errors.New("update requires the version token the record was loaded with")

	// ErrIdentityAssigned reports a create staged with an identity already
	// set; storage owns identity assignment.
	ErrIdentityAssigned = errors.New("new contact must not carry an identity")
)

// ConflictError reports that a conditional write observed a version other
// than the one the caller presented. Current and CurrentVersion carry the
// winning writer's stored state so the caller can re-present CurrentVersion,
// optionally after merging fields. The conflict is never retried internally.
type ConflictError struct {
	// Attempted is the caller's rejected copy of the record.
	Attempted *models.Contact
	// Current is the record as stored right now.
	Current *models.Contact
	// CurrentVersion is the token a retry must present.
	CurrentVersion occ.Version
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("optimistic concurrency conflict on contact %d", e.Attempted.ID)
}
