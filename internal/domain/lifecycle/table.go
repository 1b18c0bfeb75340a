// Package lifecycle enforces entity status machines. Each owning package
// declares a closed transition table and registers it here together with a
// store that can compare-and-set the entity's status under optimistic
// versioning.
package lifecycle

import "sort"

// Table is a closed status machine for one entity type. A (from, to) pair
// absent from the map is forbidden; a status with no outgoing edges is
// terminal.
type Table struct {
	Entity      string
	Transitions map[string][]string
}

func NewTable(entity string, transitions map[string][]string) Table {
	return Table{Entity: entity, Transitions: transitions}
}

// Allowed reports whether from -> to is a legal edge.
func (t Table) Allowed(from, to string) bool {
	for _, next := range t.Transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status has no outgoing edges.
func (t Table) IsTerminal(status string) bool {
	return len(t.Transitions[status]) == 0
}

// Knows reports whether status appears in the table at all, as a source or
// as a target.
func (t Table) Knows(status string) bool {
	if _, ok := t.Transitions[status]; ok {
		return true
	}
	for _, targets := range t.Transitions {
		for _, next := range targets {
			if next == status {
				return true
			}
		}
	}
	return false
}

// Statuses lists every status the table mentions, sorted.
func (t Table) Statuses() []string {
	seen := make(map[string]bool)
	for from, targets := range t.Transitions {
		seen[from] = true
		for _, next := range targets {
			seen[next] = true
		}
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
