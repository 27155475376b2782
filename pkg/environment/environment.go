// Package environment assembles the three ValueStore namespaces, the
// LocalStack, and the localsPassedIntoFunc staging area into the per
// RunInstance Environment described in spec §3.
package environment

import (
	"sync"

	"github.com/ormasoftchile/stepengine/pkg/localstack"
	"github.com/ormasoftchile/stepengine/pkg/valuestore"
)

// Environment is the complete variable state of one RunInstance.
// Persistent is shared by reference with the owning Runner and across every
// RunInstance it owns, so all access to it goes through persistentMu
// (spec §5: "writers take an exclusive lock, readers a shared one").
type Environment struct {
	persistent   *valuestore.Scope
	persistentMu *sync.RWMutex

	global *valuestore.Scope

	local      *valuestore.Scope
	stack      *localstack.Stack
	passedIn   *valuestore.Scope
	globalInit *valuestore.Scope
}

// New builds an Environment. persistent and persistentMu are shared with the
// owning Runner (and thus with sibling RunInstances); globalInit is copied
// into `global` at the start of every branch.
func New(persistent *valuestore.Scope, persistentMu *sync.RWMutex, globalInit *valuestore.Scope) *Environment {
	e := &Environment{
		persistent:   persistent,
		persistentMu: persistentMu,
		global:       valuestore.NewScope(),
		local:        valuestore.NewScope(),
		stack:        localstack.New(),
		passedIn:     valuestore.NewScope(),
		globalInit:   globalInit,
	}
	e.ResetBranchScope()
	return e
}

// ResetBranchScope reseeds `global` from globalInit and clears `local` and
// the local stack — run at the start of every branch (spec §4.F step 3).
func (e *Environment) ResetBranchScope() {
	e.global = valuestore.NewScope()
	e.global.Merge(e.globalInit)
	e.local = valuestore.NewScope()
	e.stack = localstack.New()
	e.passedIn = valuestore.NewScope()
}

// Get reads name from the given namespace. Local lookup falls through to
// localsPassedIntoFunc first, then to local (spec §4.A).
func (e *Environment) Get(ns valuestore.Namespace, name string) (any, bool) {
	switch ns {
	case valuestore.Persistent:
		e.persistentMu.RLock()
		defer e.persistentMu.RUnlock()
		return e.persistent.Get(name)
	case valuestore.Global:
		return e.global.Get(name)
	case valuestore.Local:
		if v, ok := e.passedIn.Get(name); ok {
			return v, true
		}
		return e.local.Get(name)
	default:
		return nil, false
	}
}

// Set writes name into the given namespace.
func (e *Environment) Set(ns valuestore.Namespace, name string, value any) {
	switch ns {
	case valuestore.Persistent:
		e.persistentMu.Lock()
		defer e.persistentMu.Unlock()
		e.persistent.Set(name, value)
	case valuestore.Global:
		e.global.Set(name, value)
	case valuestore.Local:
		e.local.Set(name, value)
	}
}

// StageLocalParam stages a binding into localsPassedIntoFunc ahead of a
// function call (spec §4.E step 5).
func (e *Environment) StageLocalParam(name string, value any) {
	e.passedIn.Set(name, value)
}

// ClearPassedIn empties localsPassedIntoFunc — invoked at every step
// boundary per spec §3's invariant and §4.E step 4.
func (e *Environment) ClearPassedIn() {
	e.passedIn = valuestore.NewScope()
}

// PushLocal saves the current local frame and installs a fresh one seeded
// from localsPassedIntoFunc, then clears localsPassedIntoFunc.
func (e *Environment) PushLocal() {
	fresh := e.stack.Push(e.local, e.passedIn)
	e.local = fresh
	e.passedIn = valuestore.NewScope()
}

// PopLocal restores the local frame beneath the current one.
func (e *Environment) PopLocal() {
	e.local = e.stack.Pop()
}

// LocalStackDepth reports the current LocalStack depth (spec §8 invariant 3).
func (e *Environment) LocalStackDepth() int {
	return e.stack.Depth()
}

// Header returns every (displayName, value) binding across all three
// namespaces, local taking precedence over global over persistent when
// names collide — the shape ExprEvaluator materializes as local aliases
// (spec §4.C).
func (e *Environment) Header() map[string]any {
	out := map[string]any{}
	e.persistentMu.RLock()
	for k, v := range e.persistent.Entries() {
		out[k] = v
	}
	e.persistentMu.RUnlock()
	for k, v := range e.global.Entries() {
		out[k] = v
	}
	for k, v := range e.local.Entries() {
		out[k] = v
	}
	for k, v := range e.passedIn.Entries() {
		out[k] = v
	}
	return out
}

// DisplayName returns the case-preserving form last used to set name in the
// given namespace.
func (e *Environment) DisplayName(ns valuestore.Namespace, name string) string {
	switch ns {
	case valuestore.Persistent:
		e.persistentMu.RLock()
		defer e.persistentMu.RUnlock()
		return e.persistent.DisplayName(name)
	case valuestore.Global:
		return e.global.DisplayName(name)
	case valuestore.Local:
		if e.passedIn.Has(name) {
			return e.passedIn.DisplayName(name)
		}
		return e.local.DisplayName(name)
	default:
		return name
	}
}

// PersistentEntries, GlobalEntries, and LocalEntries expose read-only
// display-name snapshots of each namespace, for debugger introspection
// (`print vars`) and snapshot manifests (SPEC_FULL.md §12). Local
// includes localsPassedIntoFunc, matching Get's fallthrough order.
func (e *Environment) PersistentEntries() map[string]any {
	e.persistentMu.RLock()
	defer e.persistentMu.RUnlock()
	return e.persistent.Entries()
}

func (e *Environment) GlobalEntries() map[string]any {
	return e.global.Entries()
}

func (e *Environment) LocalEntries() map[string]any {
	out := e.local.Entries()
	for k, v := range e.passedIn.Entries() {
		out[k] = v
	}
	return out
}
