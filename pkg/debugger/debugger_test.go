package debugger

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

func newTestController(branch *tree.Branch) *Controller {
	env := environment.New(valuestore.NewScope(), &sync.RWMutex{}, valuestore.NewScope())
	eval := evaluator.New(nil)
	var stepsRan []*tree.Step
	tr := tree.NewSliceTree([]*tree.Branch{branch})
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

	tr.NextBranch()
	ctrl.Pause()
	return New(tr, branch, sr, ctrl, cons)
}

func TestRunOneStepAdvancesAndPausesAgain(t *testing.T) {
	step1 := &tree.Step{Text: "a"}
	step2 := &tree.Step{Text: "b"}
	branch := &tree.Branch{Steps: []*tree.Step{step1, step2}}
	c := newTestController(branch)

	complete := c.RunOneStep()
	if complete {
		t.Fatal("branch should not be complete after one step")
	}
	if !step1.IsPassed {
		t.Fatal("step1 should have run")
	}
	if !c.Control.IsPaused() {
		t.Fatal("RunOneStep should re-pause")
	}
}

func TestSkipOneStepMarksSkipped(t *testing.T) {
	step := &tree.Step{Text: "a"}
	branch := &tree.Branch{Steps: []*tree.Step{step}}
	c := newTestController(branch)

	c.SkipOneStep()
	if !step.IsSkipped {
		t.Fatal("step should be marked skipped")
	}
}

// TestInjectStep is scenario S6.
func TestInjectStep(t *testing.T) {
	done := &tree.Step{IsPassed: true}
	branch := &tree.Branch{Steps: []*tree.Step{done}}
	c := newTestController(branch)

	before := len(*c.Step.StepsRan)
	injected := &tree.Step{
		Text:         "{{z}} = 'abc'",
		VarsBeingSet: []tree.VarBinding{{Name: "z", Value: "'abc'", IsLocal: true}},
	}
	synth := c.InjectStep(injected)
	if synth == nil || len(synth.Steps) != 1 {
		t.Fatalf("expected a one-step synthesized branch, got %v", synth)
	}
	if !synth.Steps[0].IsPassed {
		t.Fatalf("injected step should have passed: %+v", synth.Steps[0].Error)
	}
	v, ok := c.Step.Env.Get(valuestore.Local, "z")
	if !ok || v != "abc" {
		t.Fatalf("local.z = %v, %v; want abc, true", v, ok)
	}
	if !c.Control.IsPaused() {
		t.Fatal("instance should remain paused after inject")
	}
	if len(*c.Step.StepsRan) != before+1 {
		t.Fatalf("stepsRan grew by %d, want 1", len(*c.Step.StepsRan)-before)
	}
}

func TestStopSetsStoppedFlag(t *testing.T) {
	branch := &tree.Branch{Steps: []*tree.Step{{Text: "a"}}}
	c := newTestController(branch)
	c.Stop()
	if !c.Control.IsStopped() {
		t.Fatal("Stop() should set the stopped flag")
	}
}
