package rowguard

// Badge is an opaque authorization token attached to a unit of work.
// Any value can serve as a badge; policy hooks give it meaning. The two
// reserved sentinels, Allow and Deny, are recognized by identity and are
// never passed to hooks.
type Badge any

// sentinel is the private type of the reserved badges. Comparing an
// arbitrary Badge against a sentinel is always safe: interface equality
// short-circuits on the type before touching the value.
type sentinel string

// String returns the sentinel name.
func (s sentinel) String() string { return string(s) }

var (
	// Allow bypasses all enforcement. Queries are unfiltered, inserts are
	// not stamped, and every field read and write succeeds.
	Allow Badge = sentinel("ALLOW")

	// Deny refuses all access. Queries match no rows, inserts fail, and
	// only identifying fields remain accessible.
	Deny Badge = sentinel("DENY")
)

// IsSentinel reports whether b is one of the reserved badges.
func IsSentinel(b Badge) bool {
	return b == Allow || b == Deny
}
