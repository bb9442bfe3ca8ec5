// Package store implements the entity store: one table of element rows per
// element type, scoped to a network. The registry consumes it only through
// the narrow Store interface; everything else here is the seeding and
// mutation surface used by the HTTP handlers and tests.
package store

import "fmt"

// Store is the read/write surface the group registry depends on. All lookups
// re-check live state; nothing is cached across calls.
type Store interface {
	// HasTable reports whether the element type has a declared table.
	HasTable(elementType string) bool
	// Exists reports whether the element id currently exists in the type's table.
	Exists(elementType string, eid int64) bool
	// HasColumn reports whether the column is declared on the type's table.
	HasColumn(elementType, column string) bool
	// GetColumn returns the column's value per element id. A missing table or
	// column yields an empty map, not an error: groups may reference element
	// types a given network simply does not have.
	GetColumn(elementType, column string) map[int64]any
	// GetAttr reads one attribute of one element.
	GetAttr(elementType string, eid int64, column string) (any, bool)
	// SetColumnValue writes one attribute of one element. The column must be
	// declared on the table.
	SetColumnValue(elementType string, eid int64, column string, value any) error
	// GetResultField reads a computed result field. ok is false when the
	// element is missing or the field is undefined (solver NaN).
	GetResultField(elementType string, eid int64, field string) (float64, bool)
}

// ColumnNotFoundError reports a reference to a column the element table does
// not declare.
type ColumnNotFoundError struct {
	ElementType string
	Column      string
}

func (e *ColumnNotFoundError) Error() string {
	return fmt.Sprintf("column %q does not exist on element table %q", e.Column, e.ElementType)
}

// TableNotFoundError reports a write against an undeclared element table.
// Reads never raise it; they return empty results instead.
type TableNotFoundError struct {
	ElementType string
}

func (e *TableNotFoundError) Error() string {
	return fmt.Sprintf("element table %q does not exist", e.ElementType)
}

// RowExistsError reports an insert with an element id already taken.
type RowExistsError struct {
	ElementType string
	EID         int64
}

func (e *RowExistsError) Error() string {
	return fmt.Sprintf("element %s/%d already exists", e.ElementType, e.EID)
}
