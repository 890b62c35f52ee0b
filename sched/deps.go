package sched

import (
	"github.com/hupe1980/spargo/space"
)

type fieldKey struct {
	region space.Handle
	field  space.FieldID
}

type accessMode struct {
	priv  Privilege
	redop RedopID
}

func (m accessMode) writes() bool {
	return m.priv == ReadWrite || m.priv == WriteDiscard
}

// compatible reports whether two accesses may run concurrently.
func (m accessMode) compatible(o accessMode) bool {
	switch {
	case m.priv == ReadOnly && o.priv == ReadOnly:
		return true
	case m.priv == Reduce && o.priv == Reduce:
		return m.redop == o.redop
	default:
		return false
	}
}

// fieldState tracks the accesses to one field as a sequence of phases.
// Accesses within a phase are mutually compatible; each phase waits on the
// whole previous phase.
type fieldState struct {
	mode accessMode
	prev []*Event
	cur  []*Event
}

// access registers ev and returns the events it must wait for.
func (s *fieldState) access(m accessMode, ev *Event) []*Event {
	if len(s.cur) > 0 && s.mode.compatible(m) {
		s.cur = append(pruneDone(s.cur), ev)
		return s.prev
	}
	if len(s.cur) > 0 {
		s.prev = s.cur
	}
	s.cur = []*Event{ev}
	s.mode = m
	return s.prev
}

// pruneDone drops successfully completed events. Failed ones are kept so
// later accesses inherit the failure.
func pruneDone(evs []*Event) []*Event {
	out := evs[:0]
	for _, e := range evs {
		if e.Ready() && e.err == nil {
			continue
		}
		out = append(out, e)
	}
	return out
}

// tracker computes dependences between launches from their requirements.
// It is guarded by the runtime mutex.
type tracker struct {
	fields map[fieldKey]*fieldState
}

func newTracker() *tracker {
	return &tracker{fields: make(map[fieldKey]*fieldState)}
}

// collectModes merges the requirements of one launch per field. Conflicting
// privileges on the same field collapse to ReadWrite.
func collectModes(reqs []Requirement) (map[fieldKey]accessMode, []fieldKey) {
	modes := make(map[fieldKey]accessMode)
	var order []fieldKey
	for _, r := range reqs {
		m := accessMode{priv: r.Privilege, redop: r.Redop}
		for _, f := range r.Fields {
			k := fieldKey{region: r.Region.Handle(), field: f}
			prev, seen := modes[k]
			if !seen {
				modes[k] = m
				order = append(order, k)
				continue
			}
			if prev != m {
				modes[k] = accessMode{priv: ReadWrite}
			}
		}
	}
	return modes, order
}

// register records ev as accessing reqs and returns its distinct
// dependences.
func (t *tracker) register(reqs []Requirement, ev *Event) []*Event {
	modes, order := collectModes(reqs)
	seen := make(map[*Event]struct{})
	var deps []*Event
	for _, k := range order {
		st, ok := t.fields[k]
		if !ok {
			st = &fieldState{}
			t.fields[k] = st
		}
		for _, d := range st.access(modes[k], ev) {
			if _, dup := seen[d]; dup || d == ev {
				continue
			}
			seen[d] = struct{}{}
			deps = append(deps, d)
		}
	}
	return deps
}

// pending returns the events a reader of the given fields must wait for.
func (t *tracker) pending(region space.Handle, fids []space.FieldID) []*Event {
	var deps []*Event
	for _, f := range fids {
		st, ok := t.fields[fieldKey{region: region, field: f}]
		if !ok {
			continue
		}
		if st.mode.priv == ReadOnly {
			deps = append(deps, st.prev...)
		} else {
			deps = append(deps, st.cur...)
		}
	}
	return deps
}

// forget drops all state of a region.
func (t *tracker) forget(region space.Handle) {
	for k := range t.fields {
		if k.region == region {
			delete(t.fields, k)
		}
	}
}
