package registry

import (
	"fmt"
	"sort"

	"github.com/powerflow-tools/gridreg/pkg/gridreg/store"
)

// Resolver translates stored member descriptors into the element ids that
// currently exist in the entity store. Resolution is a pure query: it never
// mutates the store or the group table, and existence is re-checked on every
// call rather than cached.
type Resolver struct {
	store store.Store
}

// NewResolver returns a resolver over the given store.
func NewResolver(st store.Store) *Resolver {
	return &Resolver{store: st}
}

// Resolve returns the element ids the descriptors currently address, in
// descriptor order. Descriptors that no longer resolve are dropped silently;
// attribute descriptors matching several rows resolve to the lowest element
// id and surface an ambiguity diagnostic. An element type the store does not
// know yields an empty result, not an error: groups may reference optional
// element types.
func (r *Resolver) Resolve(elementType string, members []any, mode RefMode) ([]int64, []Diagnostic) {
	if column, byColumn := mode.Column(); byColumn {
		return r.resolveByColumn(elementType, members, column)
	}
	return r.resolveByIndex(elementType, members), nil
}

func (r *Resolver) resolveByIndex(elementType string, members []any) []int64 {
	resolved := make([]int64, 0, len(members))
	for _, m := range members {
		eid, ok := asEID(m)
		if !ok {
			continue
		}
		if r.store.Exists(elementType, eid) {
			resolved = append(resolved, eid)
		}
	}
	return resolved
}

func (r *Resolver) resolveByColumn(elementType string, members []any, column string) ([]int64, []Diagnostic) {
	values := r.store.GetColumn(elementType, column)
	resolved := make([]int64, 0, len(members))
	var diags []Diagnostic
	for _, m := range members {
		matches := matchingEIDs(values, m)
		switch {
		case len(matches) == 0:
			// Dangling descriptor; the prune pass reports and removes these.
		case len(matches) == 1:
			resolved = append(resolved, matches[0])
		default:
			// Duplicate column values are a documented limitation. Pick the
			// lowest id so repeated resolutions agree with each other.
			resolved = append(resolved, matches[0])
			diags = append(diags, Diagnostic{
				Kind:        DiagAmbiguousReference,
				ElementType: elementType,
				Detail: fmt.Sprintf("value %v of column %q matches %d rows; using element %d",
					m, column, len(matches), matches[0]),
			})
		}
	}
	return resolved, diags
}

// ResolvesAny reports whether a single descriptor still addresses at least
// one element. The prune pass uses it to decide per descriptor.
func (r *Resolver) ResolvesAny(elementType string, member any, mode RefMode) bool {
	if column, byColumn := mode.Column(); byColumn {
		return len(matchingEIDs(r.store.GetColumn(elementType, column), member)) > 0
	}
	eid, ok := asEID(member)
	return ok && r.store.Exists(elementType, eid)
}

func matchingEIDs(values map[int64]any, member any) []int64 {
	var matches []int64
	for eid, v := range values {
		if valuesEqual(v, member) {
			matches = append(matches, eid)
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i] < matches[j] })
	return matches
}
