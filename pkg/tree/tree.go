// Package tree defines the Step/Branch data model (spec §3) and the Tree
// interface the engine consumes (spec §6). Go is garbage collected, so the
// cyclic back-references spec §9 asks to model as an arena of stable indices
// are expressed here as ordinary pointers instead — there is no ownership
// cycle to break, only a reference cycle a GC already resolves safely.
package tree

import (
	"time"

	"github.com/ormasoftchile/stepengine/pkg/stepcore"
)

// VarBinding is one entry of a step's varsBeingSet list (spec §3).
type VarBinding struct {
	Name    string
	Value   string
	IsLocal bool
}

// Step is one unit of execution (spec §3).
type Step struct {
	// identity
	Filename      string
	LineNumber    int
	Line          string
	Text          string
	BranchIndents int

	// classification flags, immutable per run
	IsFunctionCall bool
	IsHook         bool
	IsPackaged     bool
	IsBeforeDebug  bool
	IsAfterDebug   bool
	IsExpectedFail bool

	// body
	CodeBlock               string
	HasCodeBlock            bool
	FunctionDeclarationText string
	OriginalStepInTree      *Step // non-owning; the declaration for function-call steps, Root() for Branchify-synthesized steps, else nil

	// inputs
	VarsBeingSet []VarBinding

	// results, filled by the engine
	IsPassed    bool
	IsFailed    bool
	IsSkipped   bool
	AsExpected  bool
	Error       *stepcore.Error
	Log         []string
	TimeStarted time.Time
	TimeEnded   time.Time
	Elapsed     float64 // seconds
}

// FunctionDeclarationInTree resolves the step's function declaration, via
// the non-owning OriginalStepInTree back-reference (spec §4.E "error
// filling").
func (s *Step) FunctionDeclarationInTree() *Step {
	if s.OriginalStepInTree == nil {
		return nil
	}
	return s.OriginalStepInTree
}

// ClearResult resets the writable result fields of the step, run at the
// start of every runStep call (spec §4.E step 2).
func (s *Step) ClearResult() {
	s.IsPassed, s.IsFailed, s.IsSkipped = false, false, false
	s.AsExpected = false
	s.Error = nil
}

// IsComplete reports whether the step's result invariant (exactly one of
// Passed/Failed/Skipped) currently holds.
func (s *Step) IsComplete() bool {
	n := 0
	if s.IsPassed {
		n++
	}
	if s.IsFailed {
		n++
	}
	if s.IsSkipped {
		n++
	}
	return n == 1
}

// Branch is an ordered sequence of Steps plus optional hook sequences
// (spec §3).
type Branch struct {
	// ID correlates console output and snapshots across the several
	// RunInstances one Runner may own concurrently (SPEC_FULL.md §11):
	// every document branch and every branch synthesized by Branchify
	// carries a UUID, assigned by the loader or by SliceTree.Branchify.
	ID string

	Steps []*Step

	BeforeEveryBranch []*Step
	AfterEveryBranch  []*Step
	BeforeEveryStep   []*Step
	AfterEveryStep    []*Step

	IsPassed       bool
	IsFailed       bool
	IsSkipped      bool
	PassedLastTime bool
	Error          *stepcore.Error
	Log            []string
	Elapsed        float64 // seconds; -1 when the branch was resumed after a pause
	TimeStarted    time.Time
	TimeEnded      time.Time

	cursor int // index into Steps of the next not-yet-complete step
}

// IsComplete reports the branch-completeness invariant of spec §3: exactly
// one of isPassed/isFailed/isSkipped/passedLastTime is set.
func (b *Branch) IsComplete() bool {
	n := 0
	if b.IsPassed {
		n++
	}
	if b.IsFailed {
		n++
	}
	if b.IsSkipped {
		n++
	}
	if b.PassedLastTime {
		n++
	}
	return n == 1
}

// MarkBranch sets the branch's terminal error exactly once (first setter
// wins, spec §7: "A branch's error is set at most once") and its
// isPassed/isFailed result. A passed call is a no-op once the branch is
// already failed, preserving the completeness invariant's exactly-one-flag
// guarantee (spec §3) against a later MarkBranch(true, nil) call.
func (b *Branch) MarkBranch(passed bool, err *stepcore.Error) {
	if err != nil && b.Error == nil {
		b.Error = err
	}
	if !passed {
		b.IsFailed = true
		return
	}
	if !b.IsFailed {
		b.IsPassed = true
	}
}

// Tree is the interface the engine consumes (spec §6). TreeBuilder /
// branchification live outside this package; this is only the surface the
// engine needs.
type Tree interface {
	// NextBranch returns the next runnable branch, or (nil, false) when the
	// tree is exhausted.
	NextBranch() (*Branch, bool)

	// NextStep returns the next step to execute in branch. If advance is
	// true the branch's internal cursor moves past the step returned.
	// markSkippedOnFinish controls whether exhausting the branch without a
	// further step marks anything; callers generally pass true.
	NextStep(branch *Branch, advance bool, markSkippedOnFinish bool) (*Step, bool)

	// MarkStep records a step's outcome and, if finishBranchNow is set,
	// marks the branch as well.
	MarkStep(step *Step, branch *Branch, isPassed bool, asExpected bool, err *stepcore.Error, finishBranchNow bool, continueOnFail bool)

	// MarkStepSkipped marks step as skipped within branch.
	MarkStepSkipped(step *Step, branch *Branch)

	// Branchify synthesizes one or more branches for an injected step,
	// resolved against contextBranch so already-defined function calls in
	// contextBranch's history remain callable.
	Branchify(step *Step, contextBranch *Branch) []*Branch

	// Root is the sentinel parent step synthesized steps attach beneath.
	Root() *Step
}
