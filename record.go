package rowguard

import (
	"github.com/rowguard/rowguard/dialect/sql"
)

// Record is the interface implemented by guarded record types. The
// descriptor methods are usually generated by cmd/rowguardgen; the
// unexported base method is provided by embedding Base, which also makes
// it impossible to implement Record without carrying a badge stamp.
type Record interface {
	// Table returns the table name backing the record type.
	Table() string

	// Fields returns the descriptor table for the record's public fields.
	// Internal fields must not appear here; the guard and the
	// introspection helpers only ever reveal descriptor entries.
	Fields() []Field

	// New returns a fresh, unstamped instance of the record type.
	New() Record

	base() *Base
}

// Field describes one public field of a record type. The accessor
// closures operate on the concrete type and perform no policy checks
// themselves; all checking happens in ReadField and WriteField.
type Field struct {
	// Name is the public field name used by the policy hooks and the
	// guard. Column is the backing column; it defaults to Name.
	Name   string
	Column string

	// Identifying marks fields that stay accessible under a Deny badge
	// (typically the primary key).
	Identifying bool

	// Auto marks database-assigned fields. They are skipped on insert
	// and back-filled from the driver's last-insert id when possible.
	Auto bool

	// Value returns the field's current in-memory value.
	Value func(Record) any

	// SetValue replaces the field's in-memory value.
	SetValue func(Record, any) error

	// ScanTo returns a destination pointer for row scanning.
	ScanTo func(Record) any
}

// column returns the backing column name.
func (f Field) column() string {
	if f.Column != "" {
		return f.Column
	}
	return f.Name
}

// Edge describes a relationship from a record type to a target type.
// Traversal loads target rows whose Column matches the parent's
// ParentField value, under the badge ambient at traversal time.
type Edge struct {
	Name        string
	Target      Record // Prototype of the target record type.
	Column      string // Column on the target table referencing the parent.
	ParentField string // Parent field whose value the Column references.
}

// Edger is implemented by record types that declare relationships.
type Edger interface {
	Edges() []Edge
}

// Filterer is the filter-contributor capability. Implementing types
// narrow every query that involves them to the rows the badge may see.
// The contributor is invoked once per execution, never for a sentinel
// badge, and its predicates are ANDed with caller-specified ones.
type Filterer interface {
	AddAuthFilters(q *Query, badge Badge) []*sql.Predicate
}

// InsertDefaulter is the insert-default capability. AddAuthInsertData is
// invoked on the instance right before its row is written, never for a
// sentinel badge, and mutates the receiver in place.
type InsertDefaulter interface {
	AddAuthInsertData(badge Badge) error
}

// ReadBlocker is the blocked-read-fields capability. The returned set is
// recomputed on every access and may depend on the instance's own
// mutable state.
type ReadBlocker interface {
	BlockedReadFields(badge Badge) []string
}

// WriteBlocker is the blocked-write-fields capability. Types that do not
// implement it delegate to their ReadBlocker, if any.
type WriteBlocker interface {
	BlockedWriteFields(badge Badge) []string
}

// fieldByName returns the descriptor for name, or nil.
func fieldByName(r Record, name string) *Field {
	fields := r.Fields()
	for i := range fields {
		if fields[i].Name == name {
			return &fields[i]
		}
	}
	return nil
}
