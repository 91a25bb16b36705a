package events

import "strings"

// PrefixScope is one level of the registry's prefix stack, returned by
// PushPrefix. Pop it when the scope ends, typically with defer.
type PrefixScope struct {
	reg   *Registry
	level int
	done  bool
}

// PushPrefix appends p to the current prefix. Timers created until the
// returned scope is popped carry the combined prefix.
func (r *Registry) PushPrefix(p string) *PrefixScope {
	r.prefixes = append(r.prefixes, p)
	return &PrefixScope{reg: r, level: len(r.prefixes) - 1}
}

// Prefix returns the current combined prefix
func (r *Registry) Prefix() string {
	return strings.Join(r.prefixes, "")
}

// Pop removes this level and every level pushed after it. Popping twice is a
// no-op, so an early explicit Pop and a deferred one can coexist.
func (s *PrefixScope) Pop() {
	if s.done {
		return
	}
	s.done = true
	if len(s.reg.prefixes) > s.level {
		s.reg.prefixes = s.reg.prefixes[:s.level]
	}
}

// Scope is an immutable naming prefix. Unlike PushPrefix it does not touch
// the registry's prefix stack, so scopes can be handed to helpers freely.
type Scope struct {
	reg    *Registry
	prefix string
}

// Scope returns an explicit scope rooted at prefix. The registry's current
// prefix stack does not apply to it.
func (r *Registry) Scope(prefix string) Scope {
	return Scope{reg: r, prefix: prefix}
}

// Prefix returns the scope's full prefix
func (s Scope) Prefix() string {
	return s.prefix
}

// Sub returns a nested scope
func (s Scope) Sub(prefix string) Scope {
	return Scope{reg: s.reg, prefix: s.prefix + prefix}
}

// NewTimer creates a timer named by the scope prefix plus name
func (s Scope) NewTimer(name string, opts ...TimerOption) (*Timer, error) {
	return newTimer(s.reg, s.prefix+name, opts...)
}
