// Package rowguard provides badge-scoped authorization for SQL data access.
//
// rowguard attaches an opaque authorization token (a "badge") to a unit of
// database work and enforces it in three places, so call sites never
// re-check permissions themselves:
//
//   - every read query is narrowed to the rows the badge may see,
//   - every inserted row is stamped with badge-derived default values,
//   - individual fields on loaded records are blocked for read or write.
//
// # Badges
//
// A badge can be any value; its meaning is entirely up to the policy hooks.
// Two reserved sentinels short-circuit all enforcement:
//
//   - rowguard.Allow bypasses every check. Hooks are never invoked.
//   - rowguard.Deny refuses all access. Hooks are never invoked.
//
// Hooks only ever see a real (non-sentinel) badge.
//
// # Sessions
//
// A Session owns the current badge for a unit of work:
//
//	sess := rowguard.NewSession(drv, rowguard.WithBadge(user))
//	sess.SetBadge(other)                 // persistent
//	defer sess.SwitchBadge(admin)()      // scoped, restored on any exit path
//
// Queries capture the session badge at construction time. Changing the
// session badge afterwards does not affect an already-constructed query:
//
//	q := sess.Query(&Post{})  // badge frozen here
//	sess.SetBadge(other)
//	posts, err := q.All(ctx)  // still filtered for the original badge
//
// # Policy hooks
//
// Record types opt into enforcement by implementing capability interfaces.
// A type that implements none of them is unrestricted:
//
//	func (p *Post) AddAuthFilters(q *rowguard.Query, badge rowguard.Badge) []*sql.Predicate {
//	    return []*sql.Predicate{sql.EQ("owner", badge.(*User).ID)}
//	}
//
//	func (p *Post) AddAuthInsertData(badge rowguard.Badge) error {
//	    p.owner = badge.(*User).ID
//	    return nil
//	}
//
//	func (p *Post) BlockedReadFields(badge rowguard.Badge) []string {
//	    if p.owner != badge.(*User).ID {
//	        return []string{"secret"}
//	    }
//	    return nil
//	}
//
// # Field guarding
//
// Record types embed rowguard.Base and describe their fields with a
// descriptor table (usually generated by cmd/rowguardgen). All guarded
// access goes through a single checked get/set pair:
//
//	v, err := rowguard.ReadField(post, "secret")
//	err = rowguard.WriteField(post, "title", "hello")
//
// Blocked sets are recomputed on every access, because blocking may depend
// on mutable instance state. Column projection and bulk Update/Delete do
// not pass through the field guard; row filters still apply to them.
//
// # Errors
//
// Denied field access returns an *AccessError, operations under Deny return
// a *DeniedError, and both match errors.Is(err, rowguard.ErrAccessDenied).
// Errors raised inside policy hooks propagate to the caller unchanged.
package rowguard
