package rowguard

// Proxy fronts a session provider, typically a factory that hands out a
// goroutine- or request-scoped Session. Badge operations on a Proxy are
// refused until Instrument is called, so a provider that was wired up
// without authorization support fails loudly instead of silently
// ignoring badge changes.
type Proxy struct {
	provider     func() *Session
	instrumented bool
}

// NewProxy wraps a session provider. The returned proxy is not
// instrumented; call Instrument before using badge operations.
func NewProxy(provider func() *Session) *Proxy {
	return &Proxy{provider: provider}
}

// Instrument enables badge operations on the proxy.
func (p *Proxy) Instrument() *Proxy {
	p.instrumented = true
	return p
}

// Instrumented reports whether badge operations are enabled.
func (p *Proxy) Instrumented() bool { return p.instrumented }

// Session returns the provider's current session. Plain data access does
// not require instrumentation.
func (p *Proxy) Session() *Session { return p.provider() }

// Badge returns the current session's badge.
func (p *Proxy) Badge() (Badge, error) {
	if !p.instrumented {
		return nil, ErrNotInstrumented
	}
	return p.provider().Badge(), nil
}

// SetBadge persistently replaces the current session's badge.
func (p *Proxy) SetBadge(b Badge) error {
	if !p.instrumented {
		return ErrNotInstrumented
	}
	p.provider().SetBadge(b)
	return nil
}

// SwitchBadge installs b on the current session and returns a restore
// function, like Session.SwitchBadge.
func (p *Proxy) SwitchBadge(b Badge) (restore func(), err error) {
	if !p.instrumented {
		return nil, ErrNotInstrumented
	}
	return p.provider().SwitchBadge(b), nil
}
