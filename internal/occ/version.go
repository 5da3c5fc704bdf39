// Package occ provides the optimistic concurrency primitives shared by the
// contact repository and its remote HTTP client: opaque version tokens and
// field-level change sets. The conditional-write machinery that consumes
// these types lives in internal/db/repositories.
package occ

import (
	"bytes"
	"encoding/hex"

	"github.com/google/uuid"
)

// Version is an opaque token identifying one stored generation of a record.
// Storage mints a fresh token on every successful write; callers read it
// alongside the record and present it back on update. Tokens compare for
// equality only — they are never ordered or interpreted.
//
// As a named []byte, Version marshals to a base64 string in JSON, which is
// the wire form used by the concurrency envelope.
type Version []byte

// NewVersion mints a fresh token. Tokens are random UUID bytes rather than
// counters so a token observed before a delete-and-recreate can never collide
// with one minted after it.
func NewVersion() Version {
	id := uuid.New()
	return Version(id[:])
}

// Equal reports whether two tokens identify the same stored generation.
func (v Version) Equal(other Version) bool {
	return bytes.Equal(v, other)
}

// IsZero reports whether the token is absent (record never loaded for update,
// or row deleted).
func (v Version) IsZero() bool {
	return len(v) == 0
}

// String renders the token as hex for log output. The rendering is for
// humans only; it is not the wire form.
func (v Version) String() string {
	return hex.EncodeToString(v)
}
