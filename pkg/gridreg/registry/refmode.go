// Package registry implements the group registry: named groups of references
// into the per-type element tables, with index- and attribute-addressed
// membership, consistency repair passes, and bulk aggregation.
package registry

import (
	"fmt"
	"strconv"

	"github.com/powerflow-tools/gridreg/pkg/gridreg/models"
)

// RefMode is the addressing mode of a group entry. The zero value addresses
// members by element id; ByColumn addresses them by the values of an
// attribute column. Carrying the mode as one value instead of an "is this a
// number or a string" check keeps every code path to the two legal cases.
type RefMode struct {
	column string
}

// ByIndex addresses members by element id.
var ByIndex = RefMode{}

// ByColumn addresses members by values of the named attribute column.
func ByColumn(column string) RefMode {
	return RefMode{column: column}
}

// Column returns the reference column and whether the mode is
// attribute-addressed.
func (m RefMode) Column() (string, bool) {
	return m.column, m.column != ""
}

func (m RefMode) String() string {
	if m.column == "" {
		return "by-index"
	}
	return "by-column(" + m.column + ")"
}

// modeOf reads an entry's persisted mode.
func modeOf(e *models.GroupEntry) RefMode {
	if e.ReferenceColumn == nil {
		return ByIndex
	}
	return RefMode{column: *e.ReferenceColumn}
}

// refColumn converts a mode to its persisted form.
func refColumn(m RefMode) *string {
	if m.column == "" {
		return nil
	}
	c := m.column
	return &c
}

// asEID coerces a descriptor to an element id. Descriptors arrive as int64
// from storage but may come in as other numeric kinds through the API.
func asEID(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case uint:
		return int64(x), true
	case float64:
		if x == float64(int64(x)) {
			return int64(x), true
		}
		return 0, false
	default:
		return 0, false
	}
}

// memberKey gives descriptors a comparable identity so drop and dedupe match
// 5, 5.0 and int64(5) as the same member.
func memberKey(v any) string {
	if eid, ok := asEID(v); ok {
		return "i:" + strconv.FormatInt(eid, 10)
	}
	switch x := v.(type) {
	case string:
		return "s:" + x
	case bool:
		return "b:" + strconv.FormatBool(x)
	case float64:
		return "f:" + strconv.FormatFloat(x, 'g', -1, 64)
	default:
		return fmt.Sprintf("v:%v", x)
	}
}

// valuesEqual compares a stored attribute value with a descriptor.
func valuesEqual(a, b any) bool {
	return memberKey(a) == memberKey(b)
}
