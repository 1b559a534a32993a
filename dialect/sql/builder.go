// Package sql provides wrappers around the standard database/sql package
// and a minimal statement builder used by rowguard to compose filtered
// queries. Identifiers are quoted per dialect and values are always bound
// as placeholder arguments.
package sql

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rowguard/rowguard/dialect"
)

// Builder is the base query builder. It accumulates the statement text
// and its bound arguments, and renders placeholders per dialect.
type Builder struct {
	sb      strings.Builder
	dialect string
	args    []any
}

// WriteString appends raw text to the statement.
func (b *Builder) WriteString(s string) *Builder {
	b.sb.WriteString(s)
	return b
}

// Ident appends a quoted identifier. Qualified names (table.column) are
// quoted per part; "*" and expressions pass through unchanged.
func (b *Builder) Ident(s string) *Builder {
	if s == "*" || strings.ContainsAny(s, "() ") {
		b.sb.WriteString(s)
		return b
	}
	quote := "`"
	if b.dialect == dialect.Postgres {
		quote = `"`
	}
	parts := strings.Split(s, ".")
	for i, p := range parts {
		if i > 0 {
			b.sb.WriteByte('.')
		}
		b.sb.WriteString(quote + p + quote)
	}
	return b
}

// Arg appends a placeholder for v and records it as a bound argument.
func (b *Builder) Arg(v any) *Builder {
	b.args = append(b.args, v)
	if b.dialect == dialect.Postgres {
		b.sb.WriteString("$" + strconv.Itoa(len(b.args)))
		return b
	}
	b.sb.WriteByte('?')
	return b
}

// String returns the accumulated statement.
func (b *Builder) String() string { return b.sb.String() }

// Predicate is a composable WHERE clause element.
type Predicate struct {
	fns []func(*Builder)
}

// P creates a new predicate from the given render steps.
func P(fns ...func(*Builder)) *Predicate {
	return &Predicate{fns: fns}
}

// Append adds a render step to the predicate.
func (p *Predicate) Append(f func(*Builder)) *Predicate {
	p.fns = append(p.fns, f)
	return p
}

func (p *Predicate) render(b *Builder) {
	for _, f := range p.fns {
		f(b)
	}
}

// comparison renders "col op value".
func comparison(col, op string, v any) *Predicate {
	return P(func(b *Builder) {
		b.Ident(col).WriteString(" " + op + " ").Arg(v)
	})
}

// EQ returns a "=" predicate.
func EQ(col string, v any) *Predicate { return comparison(col, "=", v) }

// NEQ returns a "<>" predicate.
func NEQ(col string, v any) *Predicate { return comparison(col, "<>", v) }

// GT returns a ">" predicate.
func GT(col string, v any) *Predicate { return comparison(col, ">", v) }

// GTE returns a ">=" predicate.
func GTE(col string, v any) *Predicate { return comparison(col, ">=", v) }

// LT returns a "<" predicate.
func LT(col string, v any) *Predicate { return comparison(col, "<", v) }

// LTE returns a "<=" predicate.
func LTE(col string, v any) *Predicate { return comparison(col, "<=", v) }

// Like returns a "LIKE" predicate.
func Like(col, pattern string) *Predicate { return comparison(col, "LIKE", pattern) }

// IsNull returns an "IS NULL" predicate.
func IsNull(col string) *Predicate {
	return P(func(b *Builder) {
		b.Ident(col).WriteString(" IS NULL")
	})
}

// NotNull returns an "IS NOT NULL" predicate.
func NotNull(col string) *Predicate {
	return P(func(b *Builder) {
		b.Ident(col).WriteString(" IS NOT NULL")
	})
}

// In returns an "IN" predicate. An empty value list matches nothing.
func In(col string, vs ...any) *Predicate {
	if len(vs) == 0 {
		return False()
	}
	return P(func(b *Builder) {
		b.Ident(col).WriteString(" IN (")
		for i, v := range vs {
			if i > 0 {
				b.WriteString(", ")
			}
			b.Arg(v)
		}
		b.WriteString(")")
	})
}

// NotIn returns a "NOT IN" predicate.
func NotIn(col string, vs ...any) *Predicate {
	if len(vs) == 0 {
		return P(func(b *Builder) { b.WriteString("TRUE") })
	}
	return P(func(b *Builder) {
		b.Ident(col).WriteString(" NOT IN (")
		for i, v := range vs {
			if i > 0 {
				b.WriteString(", ")
			}
			b.Arg(v)
		}
		b.WriteString(")")
	})
}

// False returns a predicate that matches no rows.
func False() *Predicate {
	return P(func(b *Builder) { b.WriteString("FALSE") })
}

// And combines the given predicates with AND.
func And(preds ...*Predicate) *Predicate {
	if len(preds) == 1 {
		return preds[0]
	}
	return P(func(b *Builder) {
		for i, p := range preds {
			if i > 0 {
				b.WriteString(" AND ")
			}
			b.WriteString("(")
			p.render(b)
			b.WriteString(")")
		}
	})
}

// Or combines the given predicates with OR.
func Or(preds ...*Predicate) *Predicate {
	if len(preds) == 1 {
		return preds[0]
	}
	return P(func(b *Builder) {
		for i, p := range preds {
			if i > 0 {
				b.WriteString(" OR ")
			}
			b.WriteString("(")
			p.render(b)
			b.WriteString(")")
		}
	})
}

// Not negates the given predicate.
func Not(p *Predicate) *Predicate {
	return P(func(b *Builder) {
		b.WriteString("NOT (")
		p.render(b)
		b.WriteString(")")
	})
}

// Asc returns an ascending order term for the given column.
func Asc(col string) string { return col + " ASC" }

// Desc returns a descending order term for the given column.
func Desc(col string) string { return col + " DESC" }

// DialectBuilder seeds statement builders with a dialect.
type DialectBuilder struct {
	dialect string
}

// Dialect creates a builder factory for the given dialect.
func Dialect(name string) *DialectBuilder {
	return &DialectBuilder{dialect: name}
}

// Select returns a Selector for the given columns.
func (d *DialectBuilder) Select(cols ...string) *Selector {
	return &Selector{dialect: d.dialect, columns: cols}
}

// Insert returns an Inserter for the given table.
func (d *DialectBuilder) Insert(table string) *Inserter {
	return &Inserter{dialect: d.dialect, table: table}
}

// Update returns an Updater for the given table.
func (d *DialectBuilder) Update(table string) *Updater {
	return &Updater{dialect: d.dialect, table: table}
}

// Delete returns a Deleter for the given table.
func (d *DialectBuilder) Delete(table string) *Deleter {
	return &Deleter{dialect: d.dialect, table: table}
}

// Selector builds a SELECT statement.
type Selector struct {
	dialect  string
	columns  []string
	from     []string
	where    *Predicate
	orderBy  []string
	distinct bool
	limit    *int
	offset   *int
}

// From appends tables to select from. Multiple tables render as a
// comma join.
func (s *Selector) From(tables ...string) *Selector {
	s.from = append(s.from, tables...)
	return s
}

// Select replaces the selected columns.
func (s *Selector) Select(cols ...string) *Selector {
	s.columns = cols
	return s
}

// Where ANDs the given predicate into the selector.
func (s *Selector) Where(p *Predicate) *Selector {
	if p == nil {
		return s
	}
	if s.where == nil {
		s.where = p
	} else {
		s.where = And(s.where, p)
	}
	return s
}

// P returns the selector's accumulated predicate.
func (s *Selector) P() *Predicate { return s.where }

// Distinct marks the selection as DISTINCT.
func (s *Selector) Distinct() *Selector {
	s.distinct = true
	return s
}

// OrderBy appends order terms (see Asc and Desc).
func (s *Selector) OrderBy(terms ...string) *Selector {
	s.orderBy = append(s.orderBy, terms...)
	return s
}

// Limit sets the LIMIT clause.
func (s *Selector) Limit(n int) *Selector {
	s.limit = &n
	return s
}

// Offset sets the OFFSET clause.
func (s *Selector) Offset(n int) *Selector {
	s.offset = &n
	return s
}

// Count replaces the selected columns with COUNT(*).
func (s *Selector) Count() *Selector {
	s.columns = []string{"COUNT(*)"}
	return s
}

// Query renders the statement and its bound arguments.
func (s *Selector) Query() (string, []any) {
	b := &Builder{dialect: s.dialect}
	b.WriteString("SELECT ")
	if s.distinct {
		b.WriteString("DISTINCT ")
	}
	cols := s.columns
	if len(cols) == 0 {
		cols = []string{"*"}
	}
	for i, c := range cols {
		if i > 0 {
			b.WriteString(", ")
		}
		b.Ident(c)
	}
	b.WriteString(" FROM ")
	for i, t := range s.from {
		if i > 0 {
			b.WriteString(", ")
		}
		b.Ident(t)
	}
	if s.where != nil {
		b.WriteString(" WHERE ")
		s.where.render(b)
	}
	if len(s.orderBy) > 0 {
		b.WriteString(" ORDER BY ")
		for i, t := range s.orderBy {
			if i > 0 {
				b.WriteString(", ")
			}
			col, dir, ok := strings.Cut(t, " ")
			b.Ident(col)
			if ok {
				b.WriteString(" " + dir)
			}
		}
	}
	if s.limit != nil {
		b.WriteString(" LIMIT " + strconv.Itoa(*s.limit))
	}
	if s.offset != nil {
		b.WriteString(" OFFSET " + strconv.Itoa(*s.offset))
	}
	return b.String(), b.args
}

// Inserter builds an INSERT statement.
type Inserter struct {
	dialect string
	table   string
	columns []string
	values  []any
}

// Set adds a column/value pair.
func (i *Inserter) Set(col string, v any) *Inserter {
	i.columns = append(i.columns, col)
	i.values = append(i.values, v)
	return i
}

// Query renders the statement and its bound arguments.
func (i *Inserter) Query() (string, []any) {
	b := &Builder{dialect: i.dialect}
	b.WriteString("INSERT INTO ")
	b.Ident(i.table)
	b.WriteString(" (")
	for n, c := range i.columns {
		if n > 0 {
			b.WriteString(", ")
		}
		b.Ident(c)
	}
	b.WriteString(") VALUES (")
	for n, v := range i.values {
		if n > 0 {
			b.WriteString(", ")
		}
		b.Arg(v)
	}
	b.WriteString(")")
	return b.String(), b.args
}

// Updater builds an UPDATE statement.
type Updater struct {
	dialect string
	table   string
	columns []string
	values  []any
	where   *Predicate
}

// Set adds a column/value assignment.
func (u *Updater) Set(col string, v any) *Updater {
	u.columns = append(u.columns, col)
	u.values = append(u.values, v)
	return u
}

// Where ANDs the given predicate into the updater.
func (u *Updater) Where(p *Predicate) *Updater {
	if p == nil {
		return u
	}
	if u.where == nil {
		u.where = p
	} else {
		u.where = And(u.where, p)
	}
	return u
}

// Query renders the statement and its bound arguments.
func (u *Updater) Query() (string, []any) {
	b := &Builder{dialect: u.dialect}
	b.WriteString("UPDATE ")
	b.Ident(u.table)
	b.WriteString(" SET ")
	for n, c := range u.columns {
		if n > 0 {
			b.WriteString(", ")
		}
		b.Ident(c).WriteString(" = ").Arg(u.values[n])
	}
	if u.where != nil {
		b.WriteString(" WHERE ")
		u.where.render(b)
	}
	return b.String(), b.args
}

// Deleter builds a DELETE statement.
type Deleter struct {
	dialect string
	table   string
	where   *Predicate
}

// Where ANDs the given predicate into the deleter.
func (d *Deleter) Where(p *Predicate) *Deleter {
	if p == nil {
		return d
	}
	if d.where == nil {
		d.where = p
	} else {
		d.where = And(d.where, p)
	}
	return d
}

// Query renders the statement and its bound arguments.
func (d *Deleter) Query() (string, []any) {
	b := &Builder{dialect: d.dialect}
	b.WriteString("DELETE FROM ")
	b.Ident(d.table)
	if d.where != nil {
		b.WriteString(" WHERE ")
		d.where.render(b)
	}
	return b.String(), b.args
}

var _ fmt.Stringer = (*Builder)(nil)
