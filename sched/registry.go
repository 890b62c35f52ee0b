package sched

import (
	"fmt"
	"sort"
	"sync"

	"github.com/hupe1980/spargo/space"
)

// TaskID identifies a registered task variant. IDs are dense, start at 1,
// and follow the sorted order of variants, so they are identical across
// processes that preregister the same variants.
type TaskID uint32

// Variant is the identity of one specialization of a task.
type Variant struct {
	Op    string
	Entry space.EntryType
	Dim   int
}

// Name returns the canonical variant name, e.g. "coo_matvec_float64_1".
func (v Variant) Name() string {
	return fmt.Sprintf("%s_%s_%d", v.Op, v.Entry, v.Dim)
}

func (v Variant) less(o Variant) bool {
	if v.Op != o.Op {
		return v.Op < o.Op
	}
	if v.Entry != o.Entry {
		return v.Entry < o.Entry
	}
	return v.Dim < o.Dim
}

type registered struct {
	variant Variant
	fn      TaskFunc
}

// Registry maps task variants to bodies. Variants are preregistered, then
// the registry is sealed and IDs are assigned.
type Registry struct {
	mu      sync.RWMutex
	pending map[Variant]TaskFunc
	sealed  bool
	ids     map[Variant]TaskID
	byID    []registered
}

// NewRegistry returns an empty, unsealed registry.
func NewRegistry() *Registry {
	return &Registry{pending: make(map[Variant]TaskFunc)}
}

var defaultRegistry = NewRegistry()

// DefaultRegistry returns the process-wide registry populated by package
// init functions.
func DefaultRegistry() *Registry { return defaultRegistry }

// Preregister adds a variant to the process-wide registry.
func Preregister(v Variant, fn TaskFunc) { defaultRegistry.Preregister(v, fn) }

// PreregisterRanks adds op for every entry type and rank 1..space.MaxRank.
func PreregisterRanks(r *Registry, op string, entries []space.EntryType, fn func(space.EntryType) TaskFunc) {
	for _, e := range entries {
		body := fn(e)
		for d := 1; d <= space.MaxRank; d++ {
			r.Preregister(Variant{Op: op, Entry: e, Dim: d}, body)
		}
	}
}

// Preregister adds a variant. It panics after Seal or on duplicates.
func (r *Registry) Preregister(v Variant, fn TaskFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		panic(fmt.Sprintf("sched: preregister %s after registry was sealed", v.Name()))
	}
	if _, dup := r.pending[v]; dup {
		panic(fmt.Sprintf("sched: duplicate task variant %s", v.Name()))
	}
	r.pending[v] = fn
}

// Seal freezes the registry and assigns IDs. It is idempotent.
func (r *Registry) Seal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return
	}
	variants := make([]Variant, 0, len(r.pending))
	for v := range r.pending {
		variants = append(variants, v)
	}
	sort.Slice(variants, func(i, j int) bool { return variants[i].less(variants[j]) })

	r.ids = make(map[Variant]TaskID, len(variants))
	r.byID = make([]registered, len(variants)+1)
	for i, v := range variants {
		id := TaskID(i + 1)
		r.ids[v] = id
		r.byID[id] = registered{variant: v, fn: r.pending[v]}
	}
	r.pending = nil
	r.sealed = true
}

// Sealed reports whether Seal has been called.
func (r *Registry) Sealed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sealed
}

// Lookup returns the ID of v. It reports false for unknown variants or an
// unsealed registry.
func (r *Registry) Lookup(v Variant) (TaskID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.ids[v]
	return id, ok
}

// MustLookup is Lookup that panics when v is unknown.
func (r *Registry) MustLookup(v Variant) TaskID {
	id, ok := r.Lookup(v)
	if !ok {
		panic(fmt.Sprintf("sched: task variant %s is not registered", v.Name()))
	}
	return id
}

// Variant returns the variant registered under id.
func (r *Registry) Variant(id TaskID) (Variant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if id == 0 || int(id) >= len(r.byID) {
		return Variant{}, false
	}
	return r.byID[id].variant, true
}

func (r *Registry) body(id TaskID) (registered, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if id == 0 || int(id) >= len(r.byID) {
		return registered{}, false
	}
	return r.byID[id], true
}

// Len returns the number of registered variants.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.sealed {
		return len(r.ids)
	}
	return len(r.pending)
}
