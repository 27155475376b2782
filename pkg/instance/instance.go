// Package instance assembles components A-G into one RunInstance: the
// per-thread test execution state machine spec §1 calls "THE CORE of this
// specification". It owns the cursor (current branch, stepsRan) and wires
// ValueStore/LocalStack/ExprEvaluator/VarResolver/StepRunner/BranchRunner/
// DebugController against a shared Environment, matching how the teacher's
// own cmd/gert wires one runtime.Engine per invocation.
package instance

import (
	"sync"

	"github.com/google/uuid"

	"github.com/ormasoftchile/stepengine/pkg/branchrunner"
	"github.com/ormasoftchile/stepengine/pkg/console"
	"github.com/ormasoftchile/stepengine/pkg/control"
	"github.com/ormasoftchile/stepengine/pkg/debugger"
	"github.com/ormasoftchile/stepengine/pkg/environment"
	"github.com/ormasoftchile/stepengine/pkg/evaluator"
	"github.com/ormasoftchile/stepengine/pkg/governance"
	"github.com/ormasoftchile/stepengine/pkg/stepcore"
	"github.com/ormasoftchile/stepengine/pkg/steprunner"
	"github.com/ormasoftchile/stepengine/pkg/tree"
	"github.com/ormasoftchile/stepengine/pkg/valuestore"
	"github.com/ormasoftchile/stepengine/pkg/varresolver"
)

// Shared is the state a Runner (out of scope per spec §1, but consumed per
// §6) hands to every RunInstance it owns: the persistent namespace and its
// guarding mutex (spec §5: "writers take an exclusive lock, readers a
// shared one"), the seed values copied into `global` at the start of every
// branch, and the pauseOnFail flag. Console output is chosen per instance
// through Config.Console.
type Shared struct {
	Persistent   *valuestore.Scope
	PersistentMu *sync.RWMutex
	GlobalInit   *valuestore.Scope
	PauseOnFail  bool
}

// NewShared builds a fresh Shared with an empty persistent namespace,
// suitable for a single-instance CLI invocation (cmd/stepengine run/debug).
func NewShared(globalInit *valuestore.Scope, pauseOnFail bool) *Shared {
	if globalInit == nil {
		globalInit = valuestore.NewScope()
	}
	return &Shared{
		Persistent:   valuestore.NewScope(),
		PersistentMu: &sync.RWMutex{},
		GlobalInit:   globalInit,
		PauseOnFail:  pauseOnFail,
	}
}

// Instance is one RunInstance: a single-threaded, cooperatively concurrent
// walk of a Tree (spec §5).
type Instance struct {
	ID string

	Tree     tree.Tree
	Env      *environment.Environment
	Control  *control.Signal
	Console  *console.Console
	Eval     *evaluator.Evaluator
	Resolver *varresolver.Resolver
	Step     *steprunner.Runner
	Branch   *branchrunner.Runner

	stepsRan []*tree.Step
}

// Config collects everything New needs beyond what Shared already carries.
type Config struct {
	Tree        tree.Tree
	Shared      *Shared
	Loader      evaluator.PackageLoader // backs imp(); nil disables dynamic package loading
	Governance  *governance.Policy
	Console     *console.Console // nil disables console output (Runner.consoleOutput=false)
}

// New assembles one RunInstance over t, sharing Shared's persistent
// namespace with any sibling instance a Runner also owns.
func New(cfg Config) *Instance {
	env := environment.New(cfg.Shared.Persistent, cfg.Shared.PersistentMu, cfg.Shared.GlobalInit)
	ctrl := control.New()
	gov := governance.New(cfg.Governance)
	ev := evaluator.New(cfg.Loader).WithGovernance(gov)

	inst := &Instance{
		ID:      uuid.NewString(),
		Tree:    cfg.Tree,
		Env:     env,
		Control: ctrl,
		Console: cfg.Console,
		Eval:    ev,
	}

	step := &steprunner.Runner{
		Env:         env,
		Eval:        ev,
		Tree:        cfg.Tree,
		Control:     ctrl,
		Console:     cfg.Console,
		PauseOnFail: cfg.Shared.PauseOnFail,
		StepsRan:    &inst.stepsRan,
		Redact:      gov.Redact,
	}
	// VarResolver's forward-lookup (spec §4.D step 3) evaluates a setter
	// step's code block synchronously against the same header StepRunner
	// itself would build, so it shares Eval/Env rather than re-deriving
	// its own evaluation path.
	resolver := varresolver.New(env, func(s *tree.Step) (any, *stepcore.Error) {
		return ev.Evaluate(s.CodeBlock, evaluator.Options{
			FuncName:       s.Text,
			LineNumberBase: s.LineNumber,
			Header:         env.Header(),
		})
	})
	step.Resolver = resolver
	inst.Resolver = resolver
	inst.Step = step
	inst.Branch = branchrunner.New(cfg.Tree, step, env, ctrl, cfg.Console)
	return inst
}

// StepsRan returns every step the engine has actually executed so far, in
// order, including hooks and re-runs (spec §3 invariant).
func (i *Instance) StepsRan() []*tree.Step {
	return i.stepsRan
}

// Run drives the instance to completion or pause/stop, per spec §4.F.
func (i *Instance) Run() {
	i.Branch.Run()
}

// DebugController builds a fresh DebugController over the instance's
// current branch. Valid only while Control.IsPaused() is true, i.e. after
// Run has returned paused or after Branch.PrimeAndPause (spec §4.G).
func (i *Instance) DebugController() *debugger.Controller {
	return debugger.New(i.Tree, i.Branch.Current(), i.Step, i.Control, i.Console)
}
