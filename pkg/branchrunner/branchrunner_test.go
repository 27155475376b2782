package branchrunner

import (
	"bytes"
	"sync"
	"testing"

	"github.com/ormasoftchile/stepengine/pkg/console"
	"github.com/ormasoftchile/stepengine/pkg/control"
	"github.com/ormasoftchile/stepengine/pkg/environment"
	"github.com/ormasoftchile/stepengine/pkg/evaluator"
	"github.com/ormasoftchile/stepengine/pkg/stepcore"
	"github.com/ormasoftchile/stepengine/pkg/steprunner"
	"github.com/ormasoftchile/stepengine/pkg/tree"
	"github.com/ormasoftchile/stepengine/pkg/valuestore"
	"github.com/ormasoftchile/stepengine/pkg/varresolver"
)

func newTestRunner(branches []*tree.Branch) (*Runner, *tree.SliceTree) {
	env := environment.New(valuestore.NewScope(), &sync.RWMutex{}, valuestore.NewScope())
	eval := evaluator.New(nil)
	var stepsRan []*tree.Step
	tr := tree.NewSliceTree(branches)
	ctrl := control.New()
	cons := console.New(&bytes.Buffer{})

	sr := &steprunner.Runner{
		Env:      env,
		Eval:     eval,
		Tree:     tr,
		Control:  ctrl,
		Console:  cons,
		StepsRan: &stepsRan,
	}
	sr.Resolver = varresolver.New(env, func(step *tree.Step) (any, *stepcore.Error) {
		return sr.Eval.Evaluate(step.CodeBlock, evaluator.Options{
			FuncName:       step.Text,
			LineNumberBase: step.LineNumber,
			Header:         sr.Env.Header(),
		})
	})

	br := New(tr, sr, env, ctrl, cons)
	return br, tr
}

func TestRunDrivesBranchToCompletion(t *testing.T) {
	step1 := &tree.Step{
		Text:         "{x} = '1'",
		VarsBeingSet: []tree.VarBinding{{Name: "x", Value: "'1'", IsLocal: false}},
	}
	step2 := &tree.Step{Text: "read {x}"}
	branch := &tree.Branch{Steps: []*tree.Step{step1, step2}}

	br, _ := newTestRunner([]*tree.Branch{branch})
	br.Run()

	if !branch.IsComplete() {
		t.Fatal("branch should be complete after Run()")
	}
	if !step1.IsPassed || !step2.IsPassed {
		t.Fatalf("expected both steps to pass: %+v %+v", step1, step2)
	}
}

func TestRunStopsOnPauseBeforeDebugStep(t *testing.T) {
	step1 := &tree.Step{Text: "first"}
	step2 := &tree.Step{Text: "paused-here", IsBeforeDebug: true}
	branch := &tree.Branch{Steps: []*tree.Step{step1, step2}}

	br, _ := newTestRunner([]*tree.Branch{branch})
	br.Run()

	if !step1.IsPassed {
		t.Fatal("step1 should have run and passed")
	}
	if step2.IsPassed || step2.IsFailed || step2.IsSkipped {
		t.Fatal("step2 should not have executed yet; it is a before-debug gate")
	}
	if !br.Control.IsPaused() {
		t.Fatal("expected the run to be paused at the before-debug step")
	}
}

func TestRunProcessesMultipleBranches(t *testing.T) {
	b1 := &tree.Branch{Steps: []*tree.Step{{Text: "a"}}}
	b2 := &tree.Branch{Steps: []*tree.Step{{Text: "b"}}}

	br, tr := newTestRunner([]*tree.Branch{b1, b2})
	br.Run()

	if !b1.IsComplete() || !b2.IsComplete() {
		t.Fatalf("expected both branches complete: %+v %+v", b1, b2)
	}
	if _, ok := tr.NextBranch(); ok {
		t.Fatal("tree should be exhausted")
	}
}
