// envelope.go defines the wire format shared by the optimistic concurrency
// endpoints and the remote client.
package contacts

import (
	"github.com/contact-vault/contact-vault/internal/db/models"
	"github.com/contact-vault/contact-vault/internal/occ"
)

// ConcurrencyEnvelope pairs a contact with the version token that protects
// conditional writes.
//
// Three situations use it:
//   - GET ?forUpdate=true responses: Contact + VersionToken, the client's
//     edit baseline.
//   - PUT requests: the edited Contact + the VersionToken the edit was based
//     on. DatabaseContact is ignored on the way in.
//   - 409 responses: Contact echoes the rejected submission, DatabaseContact
//     carries what the store holds now, and VersionToken is the CURRENT
//     token — resubmitting with it targets the current row state.
type ConcurrencyEnvelope struct {
	Contact         *models.Contact `json:"contact"`
	DatabaseContact *models.Contact `json:"databaseContact,omitempty"`
	VersionToken    occ.Version     `json:"versionToken"`
}

// DeleteRequest optionally carries a version token to make a delete
// conditional. An absent or empty token deletes unconditionally.
type DeleteRequest struct {
	VersionToken occ.Version `json:"versionToken,omitempty"`
}
