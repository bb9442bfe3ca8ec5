package registry

import (
	"errors"
	"fmt"

	"github.com/powerflow-tools/gridreg/pkg/gridreg/store"
)

// UnknownGroupError reports an operation against a group id with no rows in
// the group table.
type UnknownGroupError struct {
	GroupID uint
}

func (e *UnknownGroupError) Error() string {
	return fmt.Sprintf("group %d does not exist", e.GroupID)
}

// IsColumnNotFound reports whether err is the store's column-not-found
// condition, which broadcast operations record per type instead of aborting.
func IsColumnNotFound(err error) bool {
	var cnf *store.ColumnNotFoundError
	return errors.As(err, &cnf)
}

// DiagnosticKind classifies non-fatal findings surfaced alongside results.
type DiagnosticKind string

const (
	// DiagAmbiguousReference: attribute resolution matched multiple rows; the
	// lowest element id was used.
	DiagAmbiguousReference DiagnosticKind = "ambiguous_reference"
	// DiagDanglingEntry: an entry whose members all stopped resolving was
	// removed by the prune pass.
	DiagDanglingEntry DiagnosticKind = "dangling_entry"
	// DiagShrunkEntry: some members of an entry stopped resolving and the
	// member list was rewritten to the survivors.
	DiagShrunkEntry DiagnosticKind = "shrunk_entry"
	// DiagMissingResult: a result field was undefined for a member and
	// contributed zero to an aggregate.
	DiagMissingResult DiagnosticKind = "missing_result"
)

// Diagnostic is a non-fatal finding. Operations that can produce them return
// a slice next to their result rather than failing.
type Diagnostic struct {
	Kind        DiagnosticKind `json:"kind"`
	GroupID     uint           `json:"group_id,omitempty"`
	ElementType string         `json:"element_type,omitempty"`
	Detail      string         `json:"detail"`
}

func (d Diagnostic) String() string {
	if d.ElementType == "" {
		return fmt.Sprintf("%s: %s", d.Kind, d.Detail)
	}
	return fmt.Sprintf("%s [%s]: %s", d.Kind, d.ElementType, d.Detail)
}

// TypeOutcome is one element type's result within a best-effort broadcast.
type TypeOutcome struct {
	ElementType string `json:"element_type"`
	Rows        int    `json:"rows"`
	Err         error  `json:"-"`
}

// ErrString renders the outcome's error for transport.
func (o TypeOutcome) ErrString() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}
