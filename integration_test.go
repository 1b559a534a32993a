package rowguard_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/rowguard/rowguard"
	rsql "github.com/rowguard/rowguard/dialect/sql"
)

func sqliteSession(t *testing.T) *rowguard.Session {
	t.Helper()
	drv, err := rsql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	// In-memory sqlite databases are per connection.
	drv.DB().SetMaxOpenConns(1)
	t.Cleanup(func() { drv.Close() })

	ctx := context.Background()
	for _, stmt := range []string{
		"CREATE TABLE accounts (id INTEGER PRIMARY KEY AUTOINCREMENT, owner INTEGER NOT NULL, secret TEXT NOT NULL DEFAULT '', bio TEXT NOT NULL DEFAULT '')",
		"CREATE TABLE notes (id INTEGER PRIMARY KEY AUTOINCREMENT, account_id INTEGER NOT NULL, body TEXT NOT NULL DEFAULT '')",
	} {
		require.NoError(t, drv.Exec(ctx, stmt, []any{}, nil))
	}
	return rowguard.NewSession(drv)
}

func TestEndToEnd(t *testing.T) {
	ctx := context.Background()
	sess := sqliteSession(t)

	// Two accounts, inserted under different badges. Ownership comes from
	// the insert contributor, not from the caller.
	sess.SetBadge(7)
	alpha := &account{secret: "alpha-secret", bio: "alpha"}
	require.NoError(t, sess.Add(ctx, alpha))
	assert.Equal(t, 7, alpha.owner)
	assert.NotZero(t, alpha.id)

	func() {
		defer sess.SwitchBadge(8)()
		beta := &account{secret: "beta-secret", bio: "beta"}
		require.NoError(t, sess.Add(ctx, beta))
		assert.Equal(t, 8, beta.owner)
	}()
	assert.Equal(t, 7, sess.Badge())

	t.Run("filtered read", func(t *testing.T) {
		recs, err := sess.Query(&account{}).All(ctx)
		require.NoError(t, err)
		require.Len(t, recs, 1)
		a := recs[0].(*account)
		assert.Equal(t, "alpha", a.bio)
		assert.Equal(t, 7, a.StampedBadge())

		// The owner reads their own secret through the guard.
		v, err := rowguard.ReadField(a, "secret")
		require.NoError(t, err)
		assert.Equal(t, "alpha-secret", v)
	})

	t.Run("explicit badge", func(t *testing.T) {
		recs, err := sess.QueryAs(8, &account{}).All(ctx)
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, "beta", recs[0].(*account).bio)
	})

	t.Run("allow sees everything", func(t *testing.T) {
		n, err := sess.QueryAs(rowguard.Allow, &account{}).Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})

	t.Run("deny sees nothing", func(t *testing.T) {
		recs, err := sess.QueryAs(rowguard.Deny, &account{}).All(ctx)
		require.NoError(t, err)
		assert.Empty(t, recs)
		n, err := sess.QueryAs(rowguard.Deny, &account{}).Count(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("insert defaults persisted", func(t *testing.T) {
		owners, err := sess.QueryAs(rowguard.Allow, &account{}).
			OrderBy(rsql.Asc("owner")).
			Ints(ctx, "owner")
		require.NoError(t, err)
		assert.Equal(t, []int{7, 8}, owners)
	})

	t.Run("stranger sees redacted fields", func(t *testing.T) {
		recs, err := sess.QueryAs(rowguard.Allow, &account{}).
			Where(rsql.EQ("bio", "alpha")).
			All(ctx)
		require.NoError(t, err)
		require.Len(t, recs, 1)
		a := recs[0].(*account)

		// Re-stamp the instance as badge 8 and watch the owner's secret
		// disappear while public fields stay readable.
		sess.Detach(a)
		defer sess.SwitchBadge(8)()
		sess.Attach(a)
		_, err = rowguard.ReadField(a, "secret")
		assert.ErrorIs(t, err, rowguard.ErrAccessDenied)
		v, err := rowguard.ReadField(a, "bio")
		require.NoError(t, err)
		assert.Equal(t, "alpha", v)
		assert.Equal(t, []string{"secret"}, rowguard.BlockedReadFields(a))
	})

	t.Run("bulk update is filtered", func(t *testing.T) {
		n, err := sess.Query(&account{}).Update(ctx, map[string]any{"bio": "mine"})
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		bios, err := sess.QueryAs(rowguard.Allow, &account{}).
			OrderBy(rsql.Asc("owner")).
			Strings(ctx, "bio")
		require.NoError(t, err)
		assert.Equal(t, []string{"mine", "beta"}, bios)
	})

	t.Run("traversal", func(t *testing.T) {
		require.NoError(t, sess.Add(ctx, &note{accountID: alpha.id, body: "first"}))
		require.NoError(t, sess.Add(ctx, &note{accountID: alpha.id, body: "second"}))

		notes, err := sess.Traverse(ctx, alpha, "notes")
		require.NoError(t, err)
		require.Len(t, notes, 2)
		assert.Equal(t, 7, notes[0].(*note).StampedBadge())
	})

	t.Run("bulk delete", func(t *testing.T) {
		_, err := sess.QueryAs(rowguard.Deny, &account{}).Delete(ctx)
		assert.True(t, rowguard.IsDenied(err))

		n, err := sess.Query(&account{}).Delete(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		left, err := sess.QueryAs(rowguard.Allow, &account{}).Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, left)
	})
}
