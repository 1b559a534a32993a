package rowguard_test

import (
	"fmt"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/rowguard/rowguard"
	"github.com/rowguard/rowguard/dialect"
	rsql "github.com/rowguard/rowguard/dialect/sql"
)

// account is the main guarded fixture. Badges are user ids (int); the
// filter contributor narrows rows to the badge's own accounts, the
// insert contributor assigns ownership, and the blockers hide the
// secret from everyone but the owner.
type account struct {
	rowguard.Base
	id     int
	owner  int
	secret string
	bio    string
}

func (*account) Table() string { return "accounts" }

func (*account) New() rowguard.Record { return &account{} }

func (*account) Fields() []rowguard.Field {
	return []rowguard.Field{
		{
			Name: "id", Identifying: true, Auto: true,
			Value:    func(r rowguard.Record) any { return r.(*account).id },
			SetValue: setInt(func(r rowguard.Record) *int { return &r.(*account).id }),
			ScanTo:   func(r rowguard.Record) any { return &r.(*account).id },
		},
		{
			Name: "owner",
			Value:    func(r rowguard.Record) any { return r.(*account).owner },
			SetValue: setInt(func(r rowguard.Record) *int { return &r.(*account).owner }),
			ScanTo:   func(r rowguard.Record) any { return &r.(*account).owner },
		},
		{
			Name: "secret",
			Value:    func(r rowguard.Record) any { return r.(*account).secret },
			SetValue: setString(func(r rowguard.Record) *string { return &r.(*account).secret }),
			ScanTo:   func(r rowguard.Record) any { return &r.(*account).secret },
		},
		{
			Name: "bio",
			Value:    func(r rowguard.Record) any { return r.(*account).bio },
			SetValue: setString(func(r rowguard.Record) *string { return &r.(*account).bio }),
			ScanTo:   func(r rowguard.Record) any { return &r.(*account).bio },
		},
	}
}

func (*account) Edges() []rowguard.Edge {
	return []rowguard.Edge{
		{Name: "notes", Target: &note{}, Column: "account_id", ParentField: "id"},
	}
}

func (*account) AddAuthFilters(_ *rowguard.Query, badge rowguard.Badge) []*rsql.Predicate {
	return []*rsql.Predicate{rsql.EQ("owner", badge)}
}

func (a *account) AddAuthInsertData(badge rowguard.Badge) error {
	uid, ok := badge.(int)
	if !ok {
		return fmt.Errorf("account: unexpected badge %T", badge)
	}
	if a.owner == 0 {
		a.owner = uid
	}
	return nil
}

// BlockedReadFields depends on mutable instance state: changing the
// owner changes the outcome of the next access.
func (a *account) BlockedReadFields(badge rowguard.Badge) []string {
	if uid, ok := badge.(int); ok && uid == a.owner {
		return nil
	}
	return []string{"secret"}
}

func (a *account) BlockedWriteFields(badge rowguard.Badge) []string {
	return append(a.BlockedReadFields(badge), "owner")
}

// note declares no capabilities; under any real badge its rows are
// unrestricted and all of its fields are accessible.
type note struct {
	rowguard.Base
	id        int
	accountID int
	body      string
}

func (*note) Table() string { return "notes" }

func (*note) New() rowguard.Record { return &note{} }

func (*note) Fields() []rowguard.Field {
	return []rowguard.Field{
		{
			Name: "id", Identifying: true, Auto: true,
			Value:    func(r rowguard.Record) any { return r.(*note).id },
			SetValue: setInt(func(r rowguard.Record) *int { return &r.(*note).id }),
			ScanTo:   func(r rowguard.Record) any { return &r.(*note).id },
		},
		{
			Name: "account_id",
			Value:    func(r rowguard.Record) any { return r.(*note).accountID },
			SetValue: setInt(func(r rowguard.Record) *int { return &r.(*note).accountID }),
			ScanTo:   func(r rowguard.Record) any { return &r.(*note).accountID },
		},
		{
			Name: "body",
			Value:    func(r rowguard.Record) any { return r.(*note).body },
			SetValue: setString(func(r rowguard.Record) *string { return &r.(*note).body }),
			ScanTo:   func(r rowguard.Record) any { return &r.(*note).body },
		},
	}
}

func setInt(ptr func(rowguard.Record) *int) func(rowguard.Record, any) error {
	return func(r rowguard.Record, v any) error {
		n, ok := v.(int)
		if !ok {
			return fmt.Errorf("expected int, got %T", v)
		}
		*ptr(r) = n
		return nil
	}
}

func setString(ptr func(rowguard.Record) *string) func(rowguard.Record, any) error {
	return func(r rowguard.Record, v any) error {
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("expected string, got %T", v)
		}
		*ptr(r) = s
		return nil
	}
}

// mockSession returns a session backed by sqlmock, using the MySQL
// dialect so statements render with "?" placeholders.
func mockSession(t *testing.T, opts ...rowguard.Option) (*rowguard.Session, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	drv := rsql.OpenDB(dialect.MySQL, db)
	return rowguard.NewSession(drv, opts...), mock
}

var (
	accountColumns = []string{"id", "owner", "secret", "bio"}
	noteColumns    = []string{"id", "account_id", "body"}
)
