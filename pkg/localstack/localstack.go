// Package localstack implements component B: the LIFO of local-scope frames
// a RunInstance threads across function-call boundaries, driven by tree
// indentation depth (spec §4.B, §4.E step 4).
package localstack

import "github.com/ormasoftchile/stepengine/pkg/valuestore"

// Stack holds the saved local frames beneath the current top-of-scope.
type Stack struct {
	frames []*valuestore.Scope
}

// New returns an empty stack.
func New() *Stack {
	return &Stack{}
}

// Depth reports how many function-scope entries are currently open.
func (s *Stack) Depth() int {
	return len(s.frames)
}

// Push saves the current local frame and returns a fresh frame initialized
// from localsPassedIntoFunc (localsPassedIntoFunc is cleared by the caller,
// per spec §4.B: "push... then replace local with a fresh frame initialized
// from localsPassedIntoFunc; clear localsPassedIntoFunc").
func (s *Stack) Push(currentLocal *valuestore.Scope, passedIn *valuestore.Scope) *valuestore.Scope {
	s.frames = append(s.frames, currentLocal)
	fresh := valuestore.NewScope()
	fresh.Merge(passedIn)
	return fresh
}

// Pop removes and returns the top of the stack, which becomes the new
// `local` frame. Calling Pop on an empty stack is a programmer error (spec
// §4.B guarantees balanced use at the engine layer) and panics.
func (s *Stack) Pop() *valuestore.Scope {
	n := len(s.frames)
	if n == 0 {
		panic("localstack: pop without matching push")
	}
	top := s.frames[n-1]
	s.frames = s.frames[:n-1]
	return top
}
