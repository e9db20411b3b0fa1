package hades

import (
	"github.com/facebook/hermes-sub002/pkg/value"
)

// Handle is a GC-visible strong root holding one value. Handles are the
// only way mutator code may keep a cell reference across an allocation or
// collection: the collector visits every live handle as a root and
// rewrites it when the referent moves. Naked cell addresses held across an
// allocation are undefined behavior.
type Handle struct {
	v value.HermesValue
}

// Get returns the handle's current value.
func (h *Handle) Get() value.HermesValue {
	return h.v
}

// Set replaces the handle's value. Handles live outside the heap, so no
// write barrier applies.
func (h *Handle) Set(v value.HermesValue) {
	h.v = v
}

// HandleScope owns a batch of handles with stack discipline: handles
// created in a scope die together when the scope is released. Scopes keep
// root sets bounded in code that allocates temporaries in loops.
type HandleScope struct {
	rt      *Runtime
	handles []*Handle
}

// NewHandleScope pushes a fresh scope. Scopes must be released in reverse
// creation order.
func (rt *Runtime) NewHandleScope() *HandleScope {
	s := &HandleScope{rt: rt}
	rt.scopes = append(rt.scopes, s)
	return s
}

// Make creates a handle holding v.
func (s *HandleScope) Make(v value.HermesValue) *Handle {
	h := &Handle{v: v}
	s.handles = append(s.handles, h)
	return h
}

// Release pops the scope and drops its handles from the root set.
func (s *HandleScope) Release() {
	scopes := s.rt.scopes
	if len(scopes) == 0 || scopes[len(scopes)-1] != s {
		panic("handle scopes must be released in stack order")
	}
	s.rt.scopes = scopes[:len(scopes)-1]
	s.handles = nil
}
