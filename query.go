package rowguard

import (
	"context"
	"fmt"
	"sort"

	"github.com/rowguard/rowguard/dialect/sql"
)

// Query is an intended read or bulk-write operation over one or more
// record types. The badge is captured when the query is constructed and
// is immutable afterwards: refining the query or changing the session
// badge never alters it. Filtering is decided from the frozen badge on
// every execution.
//
// The first record type is the primary one; only primary rows
// materialize into instances. Additional types participate in filtering
// and render as a comma join.
type Query struct {
	sess     *Session
	badge    Badge
	protos   []Record
	preds    []*sql.Predicate
	columns  []string
	orders   []string
	limit    *int
	offset   *int
	distinct bool
}

// Badge returns the query's frozen badge.
func (q *Query) Badge() Badge { return q.badge }

// Where adds caller predicates. They are intersected (ANDed) with
// whatever the filter contributors produce at execution time.
func (q *Query) Where(preds ...*sql.Predicate) *Query {
	q.preds = append(q.preds, preds...)
	return q
}

// Select restricts the query to a column projection, consumed by Scan.
// Projected values bypass instance materialization and therefore the
// field guard; row filters still apply. Field names are resolved to
// their backing columns.
func (q *Query) Select(columns ...string) *Query {
	q.columns = columns
	return q
}

// OrderBy appends order terms (sql.Asc, sql.Desc).
func (q *Query) OrderBy(terms ...string) *Query {
	q.orders = append(q.orders, terms...)
	return q
}

// Limit caps the number of returned rows.
func (q *Query) Limit(n int) *Query {
	q.limit = &n
	return q
}

// Offset skips the first n rows.
func (q *Query) Offset(n int) *Query {
	q.offset = &n
	return q
}

// Distinct marks the projection as DISTINCT.
func (q *Query) Distinct() *Query {
	q.distinct = true
	return q
}

// Clone returns a derived query that inherits the frozen badge and the
// refinements accumulated so far.
func (q *Query) Clone() *Query {
	c := *q
	c.preds = append([]*sql.Predicate(nil), q.preds...)
	c.columns = append([]string(nil), q.columns...)
	c.orders = append([]string(nil), q.orders...)
	return &c
}

// primary returns the record type whose rows materialize.
func (q *Query) primary() (Record, error) {
	if len(q.protos) == 0 {
		return nil, fmt.Errorf("rowguard: query has no record types")
	}
	return q.protos[0], nil
}

// authPredicate computes the badge-derived filter for one execution.
// Allow contributes nothing; Deny contributes an always-false predicate
// and skips the contributors; a real badge collects the contributors of
// every participating type. Types without a contributor are unrestricted.
func (q *Query) authPredicate() *sql.Predicate {
	switch q.badge {
	case Allow:
		return nil
	case Deny:
		return sql.False()
	}
	var preds []*sql.Predicate
	for _, proto := range q.protos {
		f, ok := proto.(Filterer)
		if !ok {
			continue
		}
		preds = append(preds, f.AddAuthFilters(q, q.badge)...)
	}
	if len(preds) == 0 {
		return nil
	}
	return sql.And(preds...)
}

// selector renders the query into a SELECT statement. Called once per
// execution so that the filtering decision is recomputed each time, and
// always from the frozen badge.
func (q *Query) selector(columns []string) (*sql.Selector, error) {
	if len(q.protos) == 0 {
		return nil, fmt.Errorf("rowguard: query has no record types")
	}
	s := sql.Dialect(q.sess.drv.Dialect()).Select(columns...)
	for _, proto := range q.protos {
		s.From(proto.Table())
	}
	s.Where(q.authPredicate())
	for _, p := range q.preds {
		s.Where(p)
	}
	if q.distinct {
		s.Distinct()
	}
	s.OrderBy(q.orders...)
	if q.limit != nil {
		s.Limit(*q.limit)
	}
	if q.offset != nil {
		s.Offset(*q.offset)
	}
	return s, nil
}

// All executes the query and materializes the matching rows. Every
// returned instance is stamped with the query's frozen badge.
func (q *Query) All(ctx context.Context) ([]Record, error) {
	proto, err := q.primary()
	if err != nil {
		return nil, err
	}
	if len(q.columns) > 0 {
		return nil, fmt.Errorf("rowguard: All materializes full records; use Scan with a column projection")
	}
	fields := proto.Fields()
	columns := make([]string, len(fields))
	for i, f := range fields {
		columns[i] = f.column()
	}
	s, err := q.selector(columns)
	if err != nil {
		return nil, err
	}
	query, args := s.Query()
	rows, err := q.query(ctx, query, args)
	if err != nil {
		return nil, &QueryError{Label: proto.Table(), Op: "all", Err: err}
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		r := proto.New()
		dests := make([]any, len(fields))
		rfields := r.Fields()
		for i := range rfields {
			dests[i] = rfields[i].ScanTo(r)
		}
		if err := rows.Scan(dests...); err != nil {
			return nil, &QueryError{Label: proto.Table(), Op: "all", Err: err}
		}
		r.base().stamp(q.badge)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, &QueryError{Label: proto.Table(), Op: "all", Err: err}
	}
	return out, nil
}

// First returns the first matching record, or a NotFoundError.
func (q *Query) First(ctx context.Context) (Record, error) {
	proto, err := q.primary()
	if err != nil {
		return nil, err
	}
	recs, err := q.Clone().Limit(1).All(ctx)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, NewNotFoundError(proto.Table())
	}
	return recs[0], nil
}

// Only returns the single matching record. It fails with a NotFoundError
// when no record matches and a NotSingularError when more than one does.
func (q *Query) Only(ctx context.Context) (Record, error) {
	proto, err := q.primary()
	if err != nil {
		return nil, err
	}
	recs, err := q.Clone().Limit(2).All(ctx)
	if err != nil {
		return nil, err
	}
	switch len(recs) {
	case 1:
		return recs[0], nil
	case 0:
		return nil, NewNotFoundError(proto.Table())
	default:
		return nil, NewNotSingularError(proto.Table())
	}
}

// Count returns the number of matching rows.
func (q *Query) Count(ctx context.Context) (int, error) {
	proto, err := q.primary()
	if err != nil {
		return 0, err
	}
	s, err := q.selector(nil)
	if err != nil {
		return 0, err
	}
	s.Count()
	query, args := s.Query()
	rows, err := q.query(ctx, query, args)
	if err != nil {
		return 0, &QueryError{Label: proto.Table(), Op: "count", Err: err}
	}
	defer rows.Close()
	var n int
	if rows.Next() {
		if err := rows.Scan(&n); err != nil {
			return 0, &QueryError{Label: proto.Table(), Op: "count", Err: err}
		}
	}
	if err := rows.Err(); err != nil {
		return 0, &QueryError{Label: proto.Table(), Op: "count", Err: err}
	}
	return n, nil
}

// Exist reports whether any row matches.
func (q *Query) Exist(ctx context.Context) (bool, error) {
	n, err := q.Clone().Limit(1).Count(ctx)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Strings executes a single-column projection of string values. The
// field guard does not apply to projections.
func (q *Query) Strings(ctx context.Context, column string) ([]string, error) {
	var out []string
	err := q.scanColumn(ctx, column, func(rows *sql.Rows) error {
		var v string
		if err := rows.Scan(&v); err != nil {
			return err
		}
		out = append(out, v)
		return nil
	})
	return out, err
}

// Ints executes a single-column projection of integer values. The field
// guard does not apply to projections.
func (q *Query) Ints(ctx context.Context, column string) ([]int, error) {
	var out []int
	err := q.scanColumn(ctx, column, func(rows *sql.Rows) error {
		var v int
		if err := rows.Scan(&v); err != nil {
			return err
		}
		out = append(out, v)
		return nil
	})
	return out, err
}

// Scan executes the projection set with Select and invokes fn once per
// row. Like Strings and Ints, scanned values do not pass the field guard.
func (q *Query) Scan(ctx context.Context, fn func(*sql.Rows) error) error {
	proto, err := q.primary()
	if err != nil {
		return err
	}
	if len(q.columns) == 0 {
		return fmt.Errorf("rowguard: Scan requires a column projection; call Select first")
	}
	columns := make([]string, len(q.columns))
	for i, c := range q.columns {
		columns[i] = q.resolveColumn(proto, c)
	}
	s, err := q.selector(columns)
	if err != nil {
		return err
	}
	query, args := s.Query()
	rows, err := q.query(ctx, query, args)
	if err != nil {
		return &QueryError{Label: proto.Table(), Op: "scan", Err: err}
	}
	defer rows.Close()
	for rows.Next() {
		if err := fn(rows); err != nil {
			return &QueryError{Label: proto.Table(), Op: "scan", Err: err}
		}
	}
	return rows.Err()
}

func (q *Query) scanColumn(ctx context.Context, column string, scan func(*sql.Rows) error) error {
	proto, err := q.primary()
	if err != nil {
		return err
	}
	s, err := q.selector([]string{q.resolveColumn(proto, column)})
	if err != nil {
		return err
	}
	query, args := s.Query()
	rows, err := q.query(ctx, query, args)
	if err != nil {
		return &QueryError{Label: proto.Table(), Op: "select", Err: err}
	}
	defer rows.Close()
	for rows.Next() {
		if err := scan(rows); err != nil {
			return &QueryError{Label: proto.Table(), Op: "select", Err: err}
		}
	}
	return rows.Err()
}

// Update performs a bulk update of the matching rows and returns the
// number of rows changed. Row filters apply; field blocking does not,
// because no instance is materialized. A query frozen under Deny fails
// closed before reaching the database.
func (q *Query) Update(ctx context.Context, values map[string]any) (int, error) {
	proto, err := q.primary()
	if err != nil {
		return 0, err
	}
	if len(q.protos) > 1 {
		return 0, fmt.Errorf("rowguard: bulk update is limited to a single record type")
	}
	if q.badge == Deny {
		return 0, &DeniedError{Label: proto.Table(), Op: "update"}
	}
	u := sql.Dialect(q.sess.drv.Dialect()).Update(proto.Table())
	for _, name := range sortedKeys(values) {
		u.Set(q.resolveColumn(proto, name), values[name])
	}
	u.Where(q.authPredicate())
	for _, p := range q.preds {
		u.Where(p)
	}
	query, args := u.Query()
	return q.exec(ctx, proto, "update", query, args)
}

// Delete performs a bulk delete of the matching rows and returns the
// number of rows removed. A query frozen under Deny fails closed.
func (q *Query) Delete(ctx context.Context) (int, error) {
	proto, err := q.primary()
	if err != nil {
		return 0, err
	}
	if len(q.protos) > 1 {
		return 0, fmt.Errorf("rowguard: bulk delete is limited to a single record type")
	}
	if q.badge == Deny {
		return 0, &DeniedError{Label: proto.Table(), Op: "delete"}
	}
	d := sql.Dialect(q.sess.drv.Dialect()).Delete(proto.Table())
	d.Where(q.authPredicate())
	for _, p := range q.preds {
		d.Where(p)
	}
	query, args := d.Query()
	return q.exec(ctx, proto, "delete", query, args)
}

// resolveColumn maps a public field name to its backing column, passing
// through names that are not in the descriptor table.
func (q *Query) resolveColumn(proto Record, name string) string {
	if f := fieldByName(proto, name); f != nil {
		return f.column()
	}
	return name
}

func (q *Query) query(ctx context.Context, query string, args []any) (*sql.Rows, error) {
	if q.sess.log != nil {
		q.sess.log(query, args)
	}
	rows := &sql.Rows{}
	if err := q.sess.drv.Query(ctx, query, args, rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (q *Query) exec(ctx context.Context, proto Record, op, query string, args []any) (int, error) {
	if q.sess.log != nil {
		q.sess.log(query, args)
	}
	var res sql.Result
	if err := q.sess.drv.Exec(ctx, query, args, &res); err != nil {
		return 0, &QueryError{Label: proto.Table(), Op: op, Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
