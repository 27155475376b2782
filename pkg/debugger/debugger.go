// Package debugger implements component G, DebugController: the five
// operations (spec §4.G) valid only while a RunInstance is paused — single
// step, skip, rerun-last, inject an ad-hoc step, and stop. All operations
// mutate the shared environment and cursor of the instance they're attached
// to, matching the teacher's own debugger (pkg/debugger/debugger.go), which
// drove a single runtime.Engine the same way: one shared mutable state
// machine fronted by a small set of named operations.
package debugger

import (
	"github.com/ormasoftchile/stepengine/pkg/console"
	"github.com/ormasoftchile/stepengine/pkg/control"
	"github.com/ormasoftchile/stepengine/pkg/steprunner"
	"github.com/ormasoftchile/stepengine/pkg/tree"
)

// Controller is the DebugController for one paused RunInstance.
type Controller struct {
	Tree    tree.Tree
	Branch  *tree.Branch
	Step    *steprunner.Runner
	Control *control.Signal
	Console *console.Console
}

// New builds a Controller over the given branch. Operations are only valid
// while Control.IsPaused() is true; callers are expected to check that
// themselves, matching spec §4.G's "only valid when isPaused" framing.
func New(t tree.Tree, branch *tree.Branch, step *steprunner.Runner, ctrl *control.Signal, cons *console.Console) *Controller {
	return &Controller{Tree: t, Branch: branch, Step: step, Control: ctrl, Console: cons}
}

// RunOneStep advances to the next not-yet-complete step and runs it with
// overrideDebug=true, then pauses again. It returns true once the branch
// itself is complete (spec §4.G runOneStep).
func (c *Controller) RunOneStep() bool {
	step, ok := c.Tree.NextStep(c.Branch, true, true)
	if !ok {
		c.finishBranch()
		return true
	}
	c.Step.RunStep(step, c.Branch, true)
	c.Control.Pause()
	return false
}

// SkipOneStep advances to the next not-yet-complete step, marks it skipped,
// and pauses again (spec §4.G skipOneStep).
func (c *Controller) SkipOneStep() bool {
	step, ok := c.Tree.NextStep(c.Branch, true, true)
	if !ok {
		c.finishBranch()
		return true
	}
	c.Tree.MarkStepSkipped(step, c.Branch)
	c.Control.Pause()
	return false
}

// RunLastStep re-runs the most recently executed step with
// overrideDebug=true; it does not move the branch cursor (spec §4.G
// runLastStep).
func (c *Controller) RunLastStep() {
	stepsRan := *c.Step.StepsRan
	if len(stepsRan) == 0 {
		return
	}
	last := stepsRan[len(stepsRan)-1]
	c.Step.RunStep(last, c.Branch, true)
}

// InjectStep branchifies step against the paused instance's current
// branch, runs the synthesized branch step by step until one
// fails or all finish, pauses, and returns the synthesized branch (spec
// §4.G injectStep).
func (c *Controller) InjectStep(step *tree.Step) *tree.Branch {
	synthesized := c.Tree.Branchify(step, c.Branch)
	if len(synthesized) == 0 {
		return nil
	}
	branch := synthesized[0]
	for _, s := range branch.Steps {
		_, stopped := c.Step.RunStep(s, branch, true)
		if stopped || s.IsFailed {
			break
		}
	}
	c.Control.Pause()
	return branch
}

// Stop sets the shared stopped flag that the step and branch runners poll.
// No field of the current branch itself is changed.
func (c *Controller) Stop() {
	c.Control.Stop()
}

func (c *Controller) finishBranch() {
	if !c.Branch.IsComplete() {
		c.Branch.MarkBranch(true, nil)
	}
	c.Step.RunHookSequence(c.Branch.AfterEveryBranch, c.Branch)
	if c.Console != nil {
		c.Console.BranchComplete(c.Branch)
	}
}
