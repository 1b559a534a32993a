package rowguard_test

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rowguard/rowguard"
)

func TestSessionDefaultBadge(t *testing.T) {
	sess, _ := mockSession(t)
	assert.Equal(t, rowguard.Allow, sess.Badge())
}

func TestSetBadge(t *testing.T) {
	sess, _ := mockSession(t)
	sess.SetBadge(7)
	assert.Equal(t, 7, sess.Badge())
	sess.SetBadge(rowguard.Deny)
	assert.Equal(t, rowguard.Deny, sess.Badge())
}

func TestSwitchBadgeNesting(t *testing.T) {
	sess, _ := mockSession(t, rowguard.WithBadge(7))

	restoreOuter := sess.SwitchBadge(8)
	assert.Equal(t, 8, sess.Badge())

	restoreInner := sess.SwitchBadge(rowguard.Allow)
	assert.Equal(t, rowguard.Allow, sess.Badge())

	restoreInner()
	assert.Equal(t, 8, sess.Badge())
	restoreOuter()
	assert.Equal(t, 7, sess.Badge())
}

func TestSwitchBadgeRestoresOnPanic(t *testing.T) {
	sess, _ := mockSession(t, rowguard.WithBadge(7))

	func() {
		defer func() { recover() }()
		defer sess.SwitchBadge(rowguard.Allow)()
		panic("boom")
	}()

	assert.Equal(t, 7, sess.Badge())
}

func TestAddStampsAndDefaults(t *testing.T) {
	sess, mock := mockSession(t, rowguard.WithBadge(7))
	mock.ExpectExec(regexp.QuoteMeta(
		"INSERT INTO `accounts` (`owner`, `secret`, `bio`) VALUES (?, ?, ?)",
	)).WithArgs(7, "s", "b").WillReturnResult(sqlmock.NewResult(5, 1))

	a := &account{secret: "s", bio: "b"}
	require.NoError(t, sess.Add(context.Background(), a))

	// The insert contributor assigned ownership from the badge, the
	// generated id was backfilled, and the instance carries its stamp.
	assert.Equal(t, 7, a.owner)
	assert.Equal(t, 5, a.id)
	assert.Equal(t, 7, a.StampedBadge())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddKeepsExplicitOwner(t *testing.T) {
	sess, mock := mockSession(t, rowguard.WithBadge(7))
	mock.ExpectExec(regexp.QuoteMeta(
		"INSERT INTO `accounts` (`owner`, `secret`, `bio`) VALUES (?, ?, ?)",
	)).WithArgs(3, "", "").WillReturnResult(sqlmock.NewResult(6, 1))

	a := &account{owner: 3}
	require.NoError(t, sess.Add(context.Background(), a))
	assert.Equal(t, 3, a.owner)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddUnderDenyFailsClosed(t *testing.T) {
	sess, mock := mockSession(t, rowguard.WithBadge(rowguard.Deny))

	err := sess.Add(context.Background(), &account{secret: "s"})
	assert.True(t, rowguard.IsDenied(err))
	assert.ErrorIs(t, err, rowguard.ErrAccessDenied)
	// Nothing reached the database.
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddUsesStampedBadge(t *testing.T) {
	sess, mock := mockSession(t, rowguard.WithBadge(3))

	// Stamp under badge 3, then switch the session; the insert still acts
	// under the instance's own stamp.
	a := &account{}
	sess.Attach(a)
	sess.SetBadge(rowguard.Deny)

	mock.ExpectExec(regexp.QuoteMeta(
		"INSERT INTO `accounts` (`owner`, `secret`, `bio`) VALUES (?, ?, ?)",
	)).WithArgs(3, "", "").WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, sess.Add(context.Background(), a))
	assert.Equal(t, 3, a.owner)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddContributorErrorPropagates(t *testing.T) {
	// The account contributor only understands int badges; a string
	// badge makes it fail. Its error must surface unchanged, with no
	// wrapping and no write attempted.
	sess, mock := mockSession(t, rowguard.WithBadge("stranger"))

	a := &account{secret: "s"}
	err := sess.Add(context.Background(), a)
	require.Error(t, err)
	assert.EqualError(t, err, "account: unexpected badge string")
	assert.False(t, rowguard.IsDenied(err))
	assert.False(t, rowguard.IsQueryError(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddUnrestrictedSkipsDefaults(t *testing.T) {
	sess, mock := mockSession(t) // Allow
	mock.ExpectExec(regexp.QuoteMeta(
		"INSERT INTO `accounts` (`owner`, `secret`, `bio`) VALUES (?, ?, ?)",
	)).WithArgs(0, "", "").WillReturnResult(sqlmock.NewResult(1, 1))

	a := &account{}
	require.NoError(t, sess.Add(context.Background(), a))
	// The contributor never ran; ownership stays zero.
	assert.Equal(t, 0, a.owner)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTraverse(t *testing.T) {
	sess, mock := mockSession(t, rowguard.WithBadge(7))
	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT `id`, `account_id`, `body` FROM `notes` WHERE `account_id` = ?",
	)).WithArgs(3).WillReturnRows(
		sqlmock.NewRows(noteColumns).AddRow(1, 3, "first").AddRow(2, 3, "second"),
	)

	parent := &account{id: 3, owner: 7}
	notes, err := sess.Traverse(context.Background(), parent, "notes")
	require.NoError(t, err)
	require.Len(t, notes, 2)

	// Loaded records carry the badge that was ambient at traversal time.
	n := notes[0].(*note)
	assert.Equal(t, "first", n.body)
	assert.Equal(t, 7, n.StampedBadge())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTraverseUnknownEdge(t *testing.T) {
	sess, _ := mockSession(t)
	_, err := sess.Traverse(context.Background(), &account{id: 3}, "followers")
	assert.ErrorContains(t, err, "unknown edge")

	// notes declare no edges at all.
	_, err = sess.Traverse(context.Background(), &note{id: 1}, "anything")
	assert.ErrorContains(t, err, "declares no edges")
}
