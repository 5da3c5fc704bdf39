// changeset.go defines the serializable field-level diff written into every
// audit row. The diff itself is computed by models.Diff against two contact
// snapshots; this file only carries the shape and its invariants.
package occ

import "encoding/json"

// FieldChange records one audited property delta. Old and New hold the
// display-string canonicalization of the value; a nil Old means the property
// came into existence with this commit and a nil New means it went away
// with it.
type FieldChange struct {
	Property string  `json:"property"`
	Old      *string `json:"old,omitempty"`
	New      *string `json:"new,omitempty"`
}

// ChangeSet is the ordered field-level diff of one record between two points
// in time. Every property whose old and new values differ appears exactly
// once; unchanged properties are omitted. An all-New set marks a creation and
// an all-Old set marks a deletion.
type ChangeSet struct {
	Changes []FieldChange `json:"changes"`
}

// Empty reports whether the diff found no differing properties.
func (cs ChangeSet) Empty() bool {
	return len(cs.Changes) == 0
}

// Append adds one delta to the set. Callers are responsible for the
// exactly-once invariant; Diff upholds it by walking a fixed property list.
func (cs *ChangeSet) Append(property string, old, new *string) {
	cs.Changes = append(cs.Changes, FieldChange{Property: property, Old: old, New: new})
}

// MarshalJSON keeps an empty set round-trippable as {"changes":[]} rather
// than {"changes":null} so stored audit rows always parse back to a valid,
// iterable document.
func (cs ChangeSet) MarshalJSON() ([]byte, error) {
	type alias ChangeSet
	a := alias(cs)
	if a.Changes == nil {
		a.Changes = []FieldChange{}
	}
	return json.Marshal(a)
}
