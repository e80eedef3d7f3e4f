package deal

import "sort"

// Transition is the outcome of reconciling one snapshot against the
// persisted state.
type Transition struct {
	// Activated keys became active this cycle, first-ever appearances included.
	Activated []IdentityKey
	// Inserted is the subset of Activated seen for the first time ever.
	Inserted []IdentityKey
	// Deactivated keys were active and are absent from the snapshot.
	Deactivated []IdentityKey
	// Retained counts keys that were active and still are.
	Retained int
}

// IsActivated reports whether k transitioned to active.
func (t Transition) IsActivated(k IdentityKey) bool {
	for _, a := range t.Activated {
		if a == k {
			return true
		}
	}
	return false
}

// Diff computes the transition from the set of currently active keys to the
// snapshot. Inserted is left empty: only the store knows which keys were
// never persisted before.
func Diff(active map[IdentityKey]struct{}, snapshot []IdentityKey) Transition {
	var t Transition
	present := make(map[IdentityKey]struct{}, len(snapshot))
	for _, k := range snapshot {
		if _, dup := present[k]; dup {
			continue
		}
		present[k] = struct{}{}
		if _, ok := active[k]; ok {
			t.Retained++
			continue
		}
		t.Activated = append(t.Activated, k)
	}
	for k := range active {
		if _, ok := present[k]; !ok {
			t.Deactivated = append(t.Deactivated, k)
		}
	}
	SortKeys(t.Activated)
	SortKeys(t.Deactivated)
	return t
}

// SortKeys sorts keys in place by price, then string form.
func SortKeys(keys []IdentityKey) {
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
}
