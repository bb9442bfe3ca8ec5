package registry

import (
	"fmt"

	"github.com/powerflow-tools/gridreg/pkg/gridreg/store"
)

// InServiceColumn is the boolean service-status column convention shared by
// all element tables that support switching.
const InServiceColumn = "in_service"

// SwitchTable is the element type holding bus-connecting switches. Its rows
// carry element_type/element attrs naming what they connect, and a closed
// flag.
const SwitchTable = "switch"

// DefaultSigns is the sign convention for net-consumption sums: load-like
// types count positive, generation-like types negative. Types absent from a
// convention count positive.
func DefaultSigns() map[string]float64 {
	return map[string]float64{
		"load":    1,
		"storage": 1,
		"sgen":    -1,
		"gen":     -1,
	}
}

// ResultClearer is implemented by stores that can mark an element's computed
// results undefined. The SQL store does; a read-only store need not.
type ResultClearer interface {
	ClearResults(elementType string, eid int64) error
}

// Aggregator computes summary statistics and bulk writes over a group's
// resolved membership.
type Aggregator struct {
	reg   *Registry
	store store.Store
}

// NewAggregator returns an aggregator over the registry's groups.
func NewAggregator(reg *Registry, st store.Store) *Aggregator {
	return &Aggregator{reg: reg, store: st}
}

// CountElements returns the resolved member count per element type, i.e. how
// many members currently exist in the store.
func (a *Aggregator) CountElements(groupID uint) (map[string]int, error) {
	return a.reg.CountMembers(groupID)
}

// SetValue writes value into column for every resolved member, per element
// type, best effort: a type whose table lacks the column is reported in its
// outcome and the broadcast continues with the other types. No rollback
// spans types; group membership itself is never modified.
func (a *Aggregator) SetValue(groupID uint, value any, column string, elementTypes ...string) ([]TypeOutcome, error) {
	entries, err := a.reg.Entries(groupID)
	if err != nil {
		return nil, err
	}
	addressed := filterEntries(entries, elementTypes)

	outcomes := make([]TypeOutcome, 0, len(addressed))
	for _, e := range addressed {
		outcome := TypeOutcome{ElementType: e.ElementType}
		if !a.store.HasColumn(e.ElementType, column) {
			outcome.Err = &store.ColumnNotFoundError{ElementType: e.ElementType, Column: column}
			outcomes = append(outcomes, outcome)
			continue
		}
		resolved, _ := a.reg.Resolver().Resolve(e.ElementType, e.Members, modeOf(&e))
		for _, eid := range resolved {
			if err := a.store.SetColumnValue(e.ElementType, eid, column, value); err != nil {
				outcome.Err = err
				break
			}
			outcome.Rows++
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes, nil
}

// SetInService toggles the in_service column across the group. Taking
// elements out of service additionally opens switches attached to them and
// clears their computed results, so stale values never read back as live;
// the next solver run fills in whatever is really energized.
func (a *Aggregator) SetInService(groupID uint, flag bool, elementTypes ...string) ([]TypeOutcome, error) {
	outcomes, err := a.SetValue(groupID, flag, InServiceColumn, elementTypes...)
	if err != nil {
		return nil, err
	}
	if flag {
		return outcomes, nil
	}

	entries, err := a.reg.Entries(groupID)
	if err != nil {
		return outcomes, err
	}
	for _, e := range filterEntries(entries, elementTypes) {
		if outcomeFailed(outcomes, e.ElementType) {
			continue
		}
		resolved, _ := a.reg.Resolver().Resolve(e.ElementType, e.Members, modeOf(&e))
		a.openAttachedSwitches(e.ElementType, resolved)
		if rc, ok := a.store.(ResultClearer); ok {
			for _, eid := range resolved {
				if err := rc.ClearResults(e.ElementType, eid); err != nil {
					return outcomes, err
				}
			}
		}
	}
	return outcomes, nil
}

// openAttachedSwitches opens every switch pointing at one of the given
// elements. Networks without a switch table, or with one lacking the
// connection columns, are simply left alone.
func (a *Aggregator) openAttachedSwitches(elementType string, eids []int64) {
	if !a.store.HasColumn(SwitchTable, "closed") ||
		!a.store.HasColumn(SwitchTable, "element_type") ||
		!a.store.HasColumn(SwitchTable, "element") {
		return
	}
	out := make(map[int64]bool, len(eids))
	for _, eid := range eids {
		out[eid] = true
	}
	targets := a.store.GetColumn(SwitchTable, "element")
	types := a.store.GetColumn(SwitchTable, "element_type")
	for sid, target := range targets {
		t, ok := types[sid]
		if !ok || t != elementType {
			continue
		}
		eid, ok := asEID(target)
		if !ok || !out[eid] {
			continue
		}
		// Best effort like the rest of the broadcast.
		_ = a.store.SetColumnValue(SwitchTable, sid, "closed", false)
	}
}

// SumResultField sums a computed result field across the whole group under a
// per-type sign convention (nil means DefaultSigns), yielding net
// consumption. Members with an undefined result contribute zero and surface
// a diagnostic instead of poisoning the sum.
func (a *Aggregator) SumResultField(groupID uint, field string, signs map[string]float64) (float64, []Diagnostic, error) {
	entries, err := a.reg.Entries(groupID)
	if err != nil {
		return 0, nil, err
	}
	if signs == nil {
		signs = DefaultSigns()
	}

	var sum float64
	var diags []Diagnostic
	for _, e := range entries {
		sign, ok := signs[e.ElementType]
		if !ok {
			sign = 1
		}
		resolved, rdiags := a.reg.Resolver().Resolve(e.ElementType, e.Members, modeOf(&e))
		diags = append(diags, rdiags...)
		for _, eid := range resolved {
			v, ok := a.store.GetResultField(e.ElementType, eid, field)
			if !ok {
				diags = append(diags, Diagnostic{
					Kind:        DiagMissingResult,
					GroupID:     groupID,
					ElementType: e.ElementType,
					Detail:      fmt.Sprintf("element %d has no %s result, counted as zero", eid, field),
				})
				continue
			}
			sum += sign * v
		}
	}
	return sum, diags, nil
}

func outcomeFailed(outcomes []TypeOutcome, elementType string) bool {
	for _, o := range outcomes {
		if o.ElementType == elementType {
			return o.Err != nil
		}
	}
	return true
}
