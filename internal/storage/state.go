package storage

import (
	"sort"
	"time"

	"dealwatch/internal/deal"
)

// state is the lifecycle table used by the map-backed drivers.
type state map[deal.IdentityKey]deal.Record

func (s state) active() map[deal.IdentityKey]struct{} {
	out := make(map[deal.IdentityKey]struct{}, len(s))
	for k, r := range s {
		if r.Active {
			out[k] = struct{}{}
		}
	}
	return out
}

// apply returns the state after reconciling snapshot, leaving s untouched so
// callers can swap it in only once it is durable.
func (s state) apply(snapshot []deal.Offer, at time.Time) (state, deal.Transition) {
	snapshot = deal.UniqueByKey(snapshot)
	keys := make([]deal.IdentityKey, len(snapshot))
	for i, o := range snapshot {
		keys[i] = o.Key()
	}
	tr := deal.Diff(s.active(), keys)

	next := make(state, len(s)+len(snapshot))
	for k, r := range s {
		next[k] = r
	}
	for i, o := range snapshot {
		k := keys[i]
		r, ok := next[k]
		if !ok {
			r = deal.Record{FirstSeen: at}
			tr.Inserted = append(tr.Inserted, k)
		}
		r.Offer = o
		r.Active = true
		r.LastSeen = at
		next[k] = r
	}
	for _, k := range tr.Deactivated {
		r := next[k]
		r.Active = false
		next[k] = r
	}
	deal.SortKeys(tr.Inserted)
	return next, tr
}

func (s state) list(f Filter) []deal.Record {
	out := make([]deal.Record, 0, len(s))
	for _, r := range s {
		if f.ActiveOnly && !r.Active {
			continue
		}
		if f.Provider != "" && r.Provider != f.Provider {
			continue
		}
		out = append(out, r)
	}
	sortRecords(out)
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

func sortRecords(rs []deal.Record) {
	sort.Slice(rs, func(i, j int) bool { return rs[i].Key().Less(rs[j].Key()) })
}
