package tree

import (
	"github.com/google/uuid"

	"github.com/ormasoftchile/stepengine/pkg/stepcore"
)

// SliceTree is a minimal in-memory Tree: an ordered slice of pre-branchified
// Branches. Real trees are produced by the out-of-scope TreeBuilder; this
// implementation is what the engine's own tests drive, and what
// cmd/stepengine's YAML loader builds after deserializing a tree document.
type SliceTree struct {
	branches []*Branch
	next     int
	root     *Step
}

// NewSliceTree wraps branches as a Tree, in the order they should run.
func NewSliceTree(branches []*Branch) *SliceTree {
	return &SliceTree{branches: branches, root: &Step{Text: "root"}}
}

func (t *SliceTree) NextBranch() (*Branch, bool) {
	if t.next >= len(t.branches) {
		return nil, false
	}
	b := t.branches[t.next]
	t.next++
	return b, true
}

func (t *SliceTree) NextStep(branch *Branch, advance bool, markSkippedOnFinish bool) (*Step, bool) {
	for branch.cursor < len(branch.Steps) {
		s := branch.Steps[branch.cursor]
		if s.IsComplete() {
			branch.cursor++
			continue
		}
		if advance {
			branch.cursor++
		}
		return s, true
	}
	return nil, false
}

func (t *SliceTree) MarkStep(step *Step, branch *Branch, isPassed bool, asExpected bool, err *stepcore.Error, finishBranchNow bool, continueOnFail bool) {
	step.IsPassed = isPassed
	step.IsFailed = !isPassed
	step.AsExpected = asExpected
	step.Error = err
	if finishBranchNow {
		branch.MarkBranch(isPassed, err)
	}
}

func (t *SliceTree) MarkStepSkipped(step *Step, branch *Branch) {
	step.IsPassed = false
	step.IsFailed = false
	step.IsSkipped = true
}

// Branchify produces a single synthesized branch containing only step, and
// sets step.OriginalStepInTree to Root(). contextBranch is not consulted:
// the synthesized branch holds none of its steps, so VarResolver's forward
// lookup sees only step, and a function-call step is not resolved against
// declarations in contextBranch's history.
func (t *SliceTree) Branchify(step *Step, contextBranch *Branch) []*Branch {
	step.OriginalStepInTree = t.root
	return []*Branch{{ID: uuid.NewString(), Steps: []*Step{step}}}
}

func (t *SliceTree) Root() *Step {
	return t.root
}

// Branches exposes the tree's full branch list, for callers (cmd/stepengine
// run) that need to inspect every branch's final outcome after the engine
// has driven the tree to exhaustion.
func (t *SliceTree) Branches() []*Branch {
	return t.branches
}
