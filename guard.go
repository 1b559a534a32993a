package rowguard

// Base carries the hidden, instance-scoped badge of a record. Record
// types embed it:
//
//	type Post struct {
//	    rowguard.Base
//	    id    int
//	    owner int
//	}
//
// The badge is stamped exactly once, at materialization time, and never
// implicitly refreshed. Detach a record from its session and re-fetch it
// to pick up a new badge.
type Base struct {
	badge   Badge
	stamped bool
}

func (b *Base) base() *Base { return b }

// stamp fixes the instance badge. The first stamp wins; later attempts
// are ignored until the instance is detached.
func (b *Base) stamp(badge Badge) {
	if b.stamped {
		return
	}
	b.badge = badge
	b.stamped = true
}

// detach clears the stamp so a later materialization can re-stamp.
func (b *Base) detach() {
	b.badge = nil
	b.stamped = false
}

// StampedBadge returns the badge fixed on the instance at materialization
// time. An instance that was never materialized through a session behaves
// as if stamped with Allow.
func (b *Base) StampedBadge() Badge {
	if !b.stamped {
		return Allow
	}
	return b.badge
}

// guardState is the per-access decision state, derived from the stamped
// badge on every evaluation.
type guardState int

const (
	unrestricted guardState = iota // badge is Allow
	restricted                     // badge is a real value
	sealed                         // badge is Deny
)

func stateOf(badge Badge) guardState {
	switch badge {
	case Allow:
		return unrestricted
	case Deny:
		return sealed
	default:
		return restricted
	}
}

// ReadField returns the named field's value after evaluating the guard
// for the record's stamped badge. The blocked set is recomputed on every
// call; mutating the instance can change the outcome of the next read.
func ReadField(r Record, name string) (any, error) {
	f := fieldByName(r, name)
	if f == nil {
		return nil, &UnknownFieldError{Label: r.Table(), Field: name}
	}
	badge := r.base().StampedBadge()
	switch stateOf(badge) {
	case unrestricted:
	case sealed:
		if !f.Identifying {
			return nil, &AccessError{Label: r.Table(), Field: name, Op: OpRead, Badge: badge}
		}
	case restricted:
		if contains(blockedRead(r, badge), name) {
			return nil, &AccessError{Label: r.Table(), Field: name, Op: OpRead, Badge: badge}
		}
	}
	return f.Value(r), nil
}

// WriteField sets the named field's value after evaluating the guard for
// the record's stamped badge. A permitted write takes effect in memory
// immediately; there is no staging.
func WriteField(r Record, name string, v any) error {
	f := fieldByName(r, name)
	if f == nil {
		return &UnknownFieldError{Label: r.Table(), Field: name}
	}
	badge := r.base().StampedBadge()
	switch stateOf(badge) {
	case unrestricted:
	case sealed:
		if !f.Identifying {
			return &AccessError{Label: r.Table(), Field: name, Op: OpWrite, Badge: badge}
		}
	case restricted:
		if contains(blockedWrite(r, badge), name) {
			return &AccessError{Label: r.Table(), Field: name, Op: OpWrite, Badge: badge}
		}
	}
	return f.SetValue(r, v)
}

// blockedRead invokes the read-blocker contributor. Only called for a
// real badge; sentinels never reach the contributors.
func blockedRead(r Record, badge Badge) []string {
	rb, ok := r.(ReadBlocker)
	if !ok {
		return nil
	}
	return rb.BlockedReadFields(badge)
}

// blockedWrite invokes the write-blocker contributor, delegating to the
// read-blocker when no write-specific contributor exists.
func blockedWrite(r Record, badge Badge) []string {
	if wb, ok := r.(WriteBlocker); ok {
		return wb.BlockedWriteFields(badge)
	}
	return blockedRead(r, badge)
}

// ReadableFields returns the public fields currently readable on r,
// recomputed from the live contributor results.
func ReadableFields(r Record) []string {
	return accessibleFields(r, blockedRead)
}

// BlockedReadFields returns the public fields currently blocked for read on r.
func BlockedReadFields(r Record) []string {
	return inaccessibleFields(r, blockedRead)
}

// WritableFields returns the public fields currently writable on r.
func WritableFields(r Record) []string {
	return accessibleFields(r, blockedWrite)
}

// BlockedWriteFields returns the public fields currently blocked for write on r.
func BlockedWriteFields(r Record) []string {
	return inaccessibleFields(r, blockedWrite)
}

func accessibleFields(r Record, blockedFn func(Record, Badge) []string) []string {
	badge := r.base().StampedBadge()
	out := make([]string, 0, len(r.Fields()))
	switch stateOf(badge) {
	case unrestricted:
		for _, f := range r.Fields() {
			out = append(out, f.Name)
		}
	case sealed:
		for _, f := range r.Fields() {
			if f.Identifying {
				out = append(out, f.Name)
			}
		}
	case restricted:
		blocked := blockedFn(r, badge)
		for _, f := range r.Fields() {
			if !contains(blocked, f.Name) {
				out = append(out, f.Name)
			}
		}
	}
	return out
}

func inaccessibleFields(r Record, blockedFn func(Record, Badge) []string) []string {
	badge := r.base().StampedBadge()
	out := make([]string, 0)
	switch stateOf(badge) {
	case unrestricted:
	case sealed:
		for _, f := range r.Fields() {
			if !f.Identifying {
				out = append(out, f.Name)
			}
		}
	case restricted:
		// Restrict to publicly-named fields; contributors may return
		// names that are not in the descriptor table.
		blocked := blockedFn(r, badge)
		for _, f := range r.Fields() {
			if contains(blocked, f.Name) {
				out = append(out, f.Name)
			}
		}
	}
	return out
}

func contains(set []string, name string) bool {
	for _, s := range set {
		if s == name {
			return true
		}
	}
	return false
}
