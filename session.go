package rowguard

import (
	"context"
	"fmt"

	"github.com/rowguard/rowguard/dialect"
	"github.com/rowguard/rowguard/dialect/sql"
)

// Session is a unit of work. It owns the current badge and constructs
// queries that freeze it. A Session is not safe for concurrent use; use
// one per request or transaction, the way the driver beneath it is used.
type Session struct {
	drv   dialect.Driver
	badge Badge
	log   func(...any)
}

// Option configures a Session.
type Option func(*Session)

// WithBadge sets the initial badge of the session.
func WithBadge(b Badge) Option {
	return func(s *Session) { s.badge = b }
}

// Log sets a logging sink that receives every statement the session
// executes, together with its bound arguments.
func Log(fn func(...any)) Option {
	return func(s *Session) { s.log = fn }
}

// NewSession returns a session over the given driver. The default badge
// is Allow.
func NewSession(drv dialect.Driver, opts ...Option) *Session {
	s := &Session{drv: drv, badge: Allow}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Badge returns the badge presently in effect.
func (s *Session) Badge() Badge { return s.badge }

// SetBadge persistently replaces the current badge.
func (s *Session) SetBadge(b Badge) { s.badge = b }

// SwitchBadge installs b as the current badge and returns a restore
// function that puts back the exact prior badge. Defer it so restoration
// happens on every exit path, including panics:
//
//	defer sess.SwitchBadge(admin)()
//
// Switches nest; each restore reinstates the badge that was current when
// its switch was installed, giving LIFO discipline when restores run as
// deferred calls.
func (s *Session) SwitchBadge(b Badge) (restore func()) {
	prev := s.badge
	s.badge = b
	return func() { s.badge = prev }
}

// Query constructs a query over the given record types. The session's
// current badge is captured at this instant and frozen on the query;
// later SetBadge or SwitchBadge calls do not affect it.
func (s *Session) Query(protos ...Record) *Query {
	return s.QueryAs(s.badge, protos...)
}

// QueryAs is like Query but freezes an explicit badge instead of the
// session's ambient one.
func (s *Session) QueryAs(b Badge, protos ...Record) *Query {
	return &Query{sess: s, badge: b, protos: protos}
}

// Attach stamps the session's current badge onto a directly-constructed
// record. Records loaded through a query are stamped automatically with
// the query's frozen badge; Attach covers the in-memory construction
// path. The first stamp on an instance wins.
func (s *Session) Attach(r Record) {
	r.base().stamp(s.badge)
}

// Detach clears a record's badge stamp. The next materialization or
// Attach re-stamps it with whatever badge is then in effect.
func (s *Session) Detach(r Record) {
	r.base().detach()
}

// Add inserts the record. The badge acting on the insert is the one
// stamped on the record, or the session's current badge for unstamped
// records. Under Deny the insert fails before the contributor runs and
// before anything is written; under a real badge the record's
// AddAuthInsertData contributor (if any) runs first and may assign
// required fields.
func (s *Session) Add(ctx context.Context, r Record) error {
	s.Attach(r)
	badge := r.base().StampedBadge()
	if badge == Deny {
		return &DeniedError{Label: r.Table(), Op: "insert"}
	}
	if badge != Allow {
		if d, ok := r.(InsertDefaulter); ok {
			if err := d.AddAuthInsertData(badge); err != nil {
				return err
			}
		}
	}
	ins := sql.Dialect(s.drv.Dialect()).Insert(r.Table())
	var auto *Field
	fields := r.Fields()
	for i := range fields {
		f := &fields[i]
		if f.Auto {
			auto = f
			continue
		}
		ins.Set(f.column(), f.Value(r))
	}
	query, args := ins.Query()
	if s.log != nil {
		s.log(query, args)
	}
	var res sql.Result
	if err := s.drv.Exec(ctx, query, args, &res); err != nil {
		return err
	}
	if auto != nil && auto.SetValue != nil {
		if id, err := res.LastInsertId(); err == nil {
			if err := setAutoValue(r, auto, id); err != nil {
				return err
			}
		}
	}
	return nil
}

// Traverse loads the named edge of parent under the badge ambient at
// this moment. The target type's filter contributors apply; the loaded
// records keep their own stamp and are never re-filtered when the
// parent's or the session's badge changes afterwards.
func (s *Session) Traverse(ctx context.Context, parent Record, edge string) ([]Record, error) {
	e, err := edgeByName(parent, edge)
	if err != nil {
		return nil, err
	}
	pf := fieldByName(parent, e.ParentField)
	if pf == nil {
		return nil, &UnknownFieldError{Label: parent.Table(), Field: e.ParentField}
	}
	// The foreign key is read through the raw accessor: traversal is
	// internal plumbing, not a guarded field access.
	return s.Query(e.Target).Where(sql.EQ(e.Column, pf.Value(parent))).All(ctx)
}

func edgeByName(r Record, name string) (*Edge, error) {
	er, ok := r.(Edger)
	if !ok {
		return nil, fmt.Errorf("rowguard: %s declares no edges", r.Table())
	}
	edges := er.Edges()
	for i := range edges {
		if edges[i].Name == name {
			return &edges[i], nil
		}
	}
	return nil, fmt.Errorf("rowguard: unknown edge %q on %s", name, r.Table())
}

// setAutoValue assigns a database-generated id to its field, converting
// from the driver's int64 where the descriptor expects a plain int.
func setAutoValue(r Record, f *Field, id int64) error {
	if err := f.SetValue(r, id); err == nil {
		return nil
	}
	return f.SetValue(r, int(id))
}
