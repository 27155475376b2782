// Package branchrunner implements component F: the per-instance loop that
// pulls branches from the Tree and drives each one through its hooks and
// steps (spec §4.F).
package branchrunner

import (
	"time"

	"github.com/ormasoftchile/stepengine/pkg/console"
	"github.com/ormasoftchile/stepengine/pkg/control"
	"github.com/ormasoftchile/stepengine/pkg/environment"
	"github.com/ormasoftchile/stepengine/pkg/steprunner"
	"github.com/ormasoftchile/stepengine/pkg/tree"
)

// Runner drives branches to completion.
type Runner struct {
	Tree    tree.Tree
	Step    *steprunner.Runner
	Env     *environment.Environment
	Control *control.Signal
	Console *console.Console

	current       *tree.Branch
	resumedMidRun bool
}

// New builds a BranchRunner sharing the given collaborators.
func New(t tree.Tree, step *steprunner.Runner, env *environment.Environment, ctrl *control.Signal, cons *console.Console) *Runner {
	return &Runner{Tree: t, Step: step, Env: env, Control: ctrl, Console: cons}
}

// Current returns the branch this Runner is presently on, or nil before the
// first Run call. Used by callers (cmd/stepengine's debug command) to hand
// a DebugController the right branch once Run returns paused.
func (r *Runner) Current() *tree.Branch {
	return r.current
}

// PrimeAndPause fetches the first branch from the Tree and pauses
// immediately before running any of its steps, without requiring an
// isBeforeDebug-flagged step. cmd/stepengine's debug command uses this to
// hand a fresh Tree straight to the DebugController/REPL; a normal Run()
// resumes from exactly this point once the REPL hands control back. Returns
// false if the tree is already exhausted.
func (r *Runner) PrimeAndPause() bool {
	b, ok := r.Tree.NextBranch()
	if !ok {
		return false
	}
	r.current = b
	r.startBranch(b)
	r.Step.RunHookSequence(b.BeforeEveryBranch, b)
	r.Control.Pause()
	return true
}

// Run drives the overall loop of spec §4.F until the tree is exhausted, a
// stop is observed, or a pause is observed (only legal with a single-branch
// tree, per §8 invariant 6).
func (r *Runner) Run() {
	for {
		if r.Control.IsStopped() {
			return
		}

		overrideDebug := false
		if r.Control.IsPaused() {
			r.Control.Resume()
			overrideDebug = true
			r.resumedMidRun = true
		} else {
			b, ok := r.Tree.NextBranch()
			if !ok {
				return
			}
			r.current = b
			r.startBranch(b)
			r.resumedMidRun = false
		}

		branch := r.current
		if branch == nil {
			return
		}

		if !r.resumedMidRun && !branch.IsComplete() {
			if stop := r.Step.RunHookSequence(branch.BeforeEveryBranch, branch); stop {
				r.finishElapsed(branch, true)
				return
			}
		}

		if !branch.IsComplete() {
			first := true
			for {
				step, ok := r.Tree.NextStep(branch, true, true)
				if !ok {
					break
				}
				paused, stopped := r.Step.RunStep(step, branch, overrideDebug && first)
				first = false
				if stopped {
					r.finishElapsed(branch, true)
					return
				}
				if paused {
					return
				}
			}
		}

		// The step loop above only marks the branch itself on a failing
		// step (finishBranchNow); a branch whose steps all passed drains
		// the loop without ever calling MarkBranch, so it must be marked
		// passed here to satisfy the completeness invariant (spec §3).
		if !branch.IsComplete() {
			branch.MarkBranch(true, nil)
		}

		stop := r.Step.RunHookSequence(branch.AfterEveryBranch, branch)
		r.finishElapsed(branch, stop)
		if r.Console != nil {
			r.Console.BranchComplete(branch)
		}
		if stop {
			return
		}
	}
}

func (r *Runner) startBranch(b *tree.Branch) {
	b.TimeStarted = time.Now()
	r.Env.ResetBranchScope()
}

// finishElapsed stamps end time; elapsed is set to the -1 sentinel if the
// branch was ever paused mid-run (spec §4.F step 3: "elapsed only if never
// paused").
func (r *Runner) finishElapsed(b *tree.Branch, stopped bool) {
	b.TimeEnded = time.Now()
	if r.resumedMidRun {
		b.Elapsed = -1
		return
	}
	b.Elapsed = b.TimeEnded.Sub(b.TimeStarted).Seconds()
}
