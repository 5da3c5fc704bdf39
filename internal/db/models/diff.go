// diff.go computes the explicit two-snapshot diff used to build audit
// entries. The diff is invoked deliberately at commit time; there is no
// ambient change tracking anywhere in the system.
package models

import "github.com/contact-vault/contact-vault/internal/occ"

// contactProperties fixes the order properties are diffed in so serialized
// change sets are stable across commits and easy to compare in audit tooling.
// The identity is excluded: it never changes after assignment and creation is
// already expressed by the all-New shape of the set.
var contactProperties = []struct {
	name string
	get  func(c *Contact) string
}{
	{"FirstName", func(c *Contact) string { return c.FirstName }},
	{"LastName", func(c *Contact) string { return c.LastName }},
	{"Email", func(c *Contact) string { return c.Email }},
	{"Phone", func(c *Contact) string { return c.Phone }},
	{"Street", func(c *Contact) string { return c.Street }},
	{"City", func(c *Contact) string { return c.City }},
	{"State", func(c *Contact) string { return c.State }},
	{"ZipCode", func(c *Contact) string { return c.ZipCode }},
}

// Diff computes the field-level change set between two snapshots of a
// contact. A nil original marks a creation (every property appears as New),
// a nil current marks a deletion (every property appears as Old), and
// otherwise only properties whose canonical values differ are included, each
// exactly once.
func Diff(original, current *Contact) occ.ChangeSet {
	var cs occ.ChangeSet
	if original == nil && current == nil {
		return cs
	}
	for _, p := range contactProperties {
		switch {
		case original == nil:
			v := p.get(current)
			cs.Append(p.name, nil, &v)
		case current == nil:
			v := p.get(original)
			cs.Append(p.name, &v, nil)
		default:
			ov, nv := p.get(original), p.get(current)
			if ov != nv {
				cs.Append(p.name, &ov, &nv)
			}
		}
	}
	return cs
}
