// Package steprunner implements component E: runStep, the per-step
// execution sequence of spec §4.E — input binding, variable-setting, code
// block evaluation, result resolution, hook orchestration, and error
// filling with its two location corrections.
package steprunner

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ormasoftchile/stepengine/pkg/console"
	"github.com/ormasoftchile/stepengine/pkg/control"
	"github.com/ormasoftchile/stepengine/pkg/environment"
	"github.com/ormasoftchile/stepengine/pkg/evaluator"
	"github.com/ormasoftchile/stepengine/pkg/governance"
	"github.com/ormasoftchile/stepengine/pkg/stepcore"
	"github.com/ormasoftchile/stepengine/pkg/tree"
	"github.com/ormasoftchile/stepengine/pkg/valuestore"
	"github.com/ormasoftchile/stepengine/pkg/varresolver"
)

// Runner executes individual steps against a shared Environment. One Runner
// is owned by exactly one RunInstance/BranchRunner pair.
type Runner struct {
	Env      *environment.Environment
	Eval     *evaluator.Evaluator
	Resolver *varresolver.Resolver
	Tree     tree.Tree
	Control  *control.Signal
	Console  *console.Console

	// PauseOnFail mirrors runner.pauseOnFail (spec §4.E step 10).
	PauseOnFail bool

	// StepsRan accumulates every step actually executed, including hooks
	// and re-runs (spec §3 invariant).
	StepsRan *[]*tree.Step

	// Redact scrubs sensitive text out of log() output before it is
	// appended to step.Log, per a governance.Policy's RedactionRules.
	Redact []*governance.CompiledRedaction
}

// stackLineExp scrapes the last "<anonymous>:N" frame out of a stack string
// produced by the evaluator, per spec §4.E's error-filling correction #2.
var stackLineExp = regexp.MustCompile(`<anonymous>:(\d+)`)

// RunStep executes one step per spec §4.E's twelve-step sequence. It
// reports whether execution should pause or stop afterward; the caller
// (BranchRunner) is responsible for acting on those signals.
func (r *Runner) RunStep(step *tree.Step, branch *tree.Branch, overrideDebug bool) (paused bool, stopped bool) {
	// 1. Before-debug gate.
	if step.IsBeforeDebug && !overrideDebug {
		r.Control.Pause()
		return true, false
	}

	// 2. Stamp start, record, clear result.
	step.TimeStarted = time.Now()
	*r.StepsRan = append(*r.StepsRan, step)
	step.ClearResult()
	if r.Console != nil {
		r.Console.StepStart(step)
	}

	// 3. Before-every-step hooks.
	for _, hook := range branch.BeforeEveryStep {
		failed, stop := r.runHookStep(hook, step, nil)
		if stop {
			return false, true
		}
		if failed {
			break
		}
	}

	if !step.IsFailed {
		// 4. Scope transition.
		r.transitionScope(step, branch)

		// 5. Input binding for function calls.
		if step.IsFunctionCall {
			if err := r.bindFunctionCallInputs(step, branch); err != nil {
				step.Error = err
			}
		} else if len(step.VarsBeingSet) > 0 {
			// 6. Pure assignment steps.
			if err := r.runAssignments(step, branch); err != nil {
				step.Error = err
			}
		}

		// 7. Code block.
		if step.Error == nil && step.HasCodeBlock {
			if step.IsFunctionCall {
				r.Env.PushLocal()
			}
			value, err := r.evalCodeBlock(step)
			if r.Control.IsStopped() {
				return false, true
			}
			if err != nil {
				step.Error = err
			} else if len(step.VarsBeingSet) == 1 {
				b := step.VarsBeingSet[0]
				ns := valuestore.Global
				if b.IsLocal {
					ns = valuestore.Local
				}
				r.Env.Set(ns, b.Name, value)
			}
		}
	}

	// 8. Result resolution.
	isPassed := step.Error == nil
	asExpected := isPassed == !step.IsExpectedFail
	var finalErr *stepcore.Error
	if isPassed && step.IsExpectedFail {
		finalErr = stepcore.NewStepPassedButExpectedToFail(step.Filename, step.LineNumber)
	} else {
		finalErr = step.Error
	}
	finishBranchNow := !isPassed
	if finishBranchNow && finalErr != nil && (finalErr.Continue || r.PauseOnFail) {
		finishBranchNow = false
	}
	r.Tree.MarkStep(step, branch, isPassed, asExpected, finalErr, finishBranchNow, true)

	// 9. After-every-step hooks; a single failure doesn't abort the rest.
	for _, hook := range branch.AfterEveryStep {
		_, stop := r.runHookStep(hook, step, nil)
		if stop {
			return false, true
		}
	}

	// 10. PauseOnFail.
	if r.PauseOnFail && !(step.IsPassed && step.AsExpected) {
		r.Control.Pause()
	}

	// 11. Stamp end/elapsed; emit console line.
	step.TimeEnded = time.Now()
	step.Elapsed = step.TimeEnded.Sub(step.TimeStarted).Seconds()
	if r.Console != nil {
		r.Console.StepEnd(step)
	}

	// 12. After-debug gate.
	if step.IsAfterDebug && !overrideDebug {
		r.Control.Pause()
	}

	return r.Control.IsPaused(), r.Control.IsStopped()
}

// transitionScope implements spec §4.E step 4.
func (r *Runner) transitionScope(step *tree.Step, branch *tree.Branch) {
	idx := indexOf(branch, step)
	var prevStep *tree.Step
	if idx > 0 {
		prevStep = branch.Steps[idx-1]
	}
	if prevStep == nil {
		r.Env.ClearPassedIn()
		return
	}
	prevWasCodeBlockFn := prevStep.IsFunctionCall && prevStep.HasCodeBlock

	switch {
	case step.BranchIndents > prevStep.BranchIndents:
		if !prevWasCodeBlockFn {
			r.Env.PushLocal()
		}
	case step.BranchIndents < prevStep.BranchIndents:
		for i := 0; i < prevStep.BranchIndents-step.BranchIndents; i++ {
			r.Env.PopLocal()
		}
	default:
		if prevWasCodeBlockFn {
			r.Env.PopLocal()
		}
	}
	r.Env.ClearPassedIn()
}

func indexOf(branch *tree.Branch, step *tree.Step) int {
	for i, s := range branch.Steps {
		if s == step {
			return i
		}
	}
	return -1
}

// evalCodeBlock runs step's code block asynchronously and applies error
// filling with the two location corrections of spec §4.E.
func (r *Runner) evalCodeBlock(step *tree.Step) (any, *stepcore.Error) {
	funcName := step.FunctionDeclarationText
	if funcName == "" {
		funcName = step.Text
	}
	d, _ := r.Eval.Evaluate(step.CodeBlock, evaluator.Options{
		FuncName:       funcName,
		LineNumberBase: step.LineNumber,
		Header:         r.Env.Header(),
		Async:          true,
		Helpers:        r.helpersFor(step),
	})
	deferred := d.(*evaluator.Deferred)
	value, err := deferred.Await()
	if err != nil {
		return nil, r.fillErrorLocation(err, step, false)
	}
	return value, nil
}

func (r *Runner) helpersFor(step *tree.Step) evaluator.Helpers {
	return evaluator.Helpers{
		Log: func(text string) {
			if len(r.Redact) > 0 {
				text = governance.RedactOutput(text, r.Redact)
			}
			step.Log = append(step.Log, text)
		},
		GetPersistent: func(name string) (any, error) {
			v, _ := r.Env.Get(valuestore.Persistent, name)
			return v, nil
		},
		GetGlobal: func(name string) (any, error) {
			v, _ := r.Env.Get(valuestore.Global, name)
			return v, nil
		},
		GetLocal: func(name string) (any, error) {
			v, _ := r.Env.Get(valuestore.Local, name)
			return v, nil
		},
		SetPersistent: func(name string, value any) { r.Env.Set(valuestore.Persistent, name, value) },
		SetGlobal:     func(name string, value any) { r.Env.Set(valuestore.Global, name, value) },
		SetLocal:      func(name string, value any) { r.Env.Set(valuestore.Local, name, value) },
		GetStepText:   func() string { return step.Text },
	}
}

// fillErrorLocation attaches filename/lineNumber to err with the two
// corrections spec §4.E names, unless the error already carries a pre-set
// location (spec §7: "honored and not overwritten").
func (r *Runner) fillErrorLocation(err *stepcore.Error, step *tree.Step, isHookOrPackaged bool) *stepcore.Error {
	if err == nil {
		return nil
	}
	filename, line := step.Filename, step.LineNumber
	if step.IsFunctionCall && !isHookOrPackaged && !step.IsPackaged {
		if decl := step.FunctionDeclarationInTree(); decl != nil {
			filename, line = decl.Filename, decl.LineNumber
		}
	}
	corrected := err.WithLocation(filename, line)
	if corrected == err {
		// WithLocation returned err unchanged: its location was pre-set.
		return corrected
	}
	if m := stackLineExp.FindAllStringSubmatch(err.Stack, -1); len(m) > 0 {
		if n, convErr := strconv.Atoi(m[len(m)-1][1]); convErr == nil {
			cp := *corrected
			cp.Line = n
			corrected = &cp
		}
	}
	return corrected
}

// runHookStep evaluates a hook's code block (spec §4.E "Hook execution").
// It returns whether the hook failed and whether a stop was observed.
func (r *Runner) runHookStep(hook *tree.Step, targetStep *tree.Step, targetBranch *tree.Branch) (failed bool, stopped bool) {
	*r.StepsRan = append(*r.StepsRan, hook)
	hook.TimeStarted = time.Now()

	d, _ := r.Eval.Evaluate(hook.CodeBlock, evaluator.Options{
		FuncName:       hook.Text,
		LineNumberBase: hook.LineNumber,
		Header:         r.Env.Header(),
		Async:          true,
		Helpers:        r.helpersFor(hook),
	})
	deferred := d.(*evaluator.Deferred)
	_, err := deferred.Await()
	hook.TimeEnded = time.Now()
	hook.Elapsed = hook.TimeEnded.Sub(hook.TimeStarted).Seconds()

	if r.Control.IsStopped() {
		return false, true
	}
	if err == nil {
		hook.IsPassed = true
		return false, false
	}

	hookErr := r.fillErrorLocation(stepcore.NewHookError(err.Message, err.Stack), hook, true)
	hook.IsFailed = true
	hook.Error = hookErr
	if targetStep != nil && targetStep.Error == nil {
		targetStep.Error = hookErr
		targetStep.IsFailed = true
		targetStep.IsPassed = false
	}
	if targetBranch != nil {
		targetBranch.MarkBranch(false, hookErr)
	}
	return true, false
}

// RunHookSequence runs a sequence of hooks against a branch (used by
// BranchRunner for beforeEveryBranch/afterEveryBranch). It always runs every
// hook in the sequence — spec §5: "every after-hook runs even if a prior
// after-hook failed" — except when a stop is observed.
func (r *Runner) RunHookSequence(hooks []*tree.Step, branch *tree.Branch) (stopped bool) {
	for _, hook := range hooks {
		_, stop := r.runHookStep(hook, nil, branch)
		if stop {
			return true
		}
	}
	return false
}

// declParamPattern matches a {name}/{{name}} placeholder in a function
// declaration's text.
var declParamPattern = regexp.MustCompile(`\{\{([^{}]+)\}\}|\{([^{}]+)\}`)

// bindFunctionCallInputs implements spec §4.E step 5.
func (r *Runner) bindFunctionCallInputs(step *tree.Step, branch *tree.Branch) *stepcore.Error {
	paramNames := declParamPattern.FindAllStringSubmatch(step.FunctionDeclarationText, -1)
	declTokens := tokenizeDeclaration(step.FunctionDeclarationText)

	callTokens := tokenizeArgs(step.Text)
	if len(step.VarsBeingSet) > 0 && len(callTokens) > 0 {
		callTokens = callTokens[1:] // drop the assignment target token
	}

	params := make([]string, 0, len(paramNames))
	for _, m := range paramNames {
		if m[1] != "" {
			params = append(params, strings.TrimSpace(m[1]))
		} else {
			params = append(params, strings.TrimSpace(m[2]))
		}
	}

	args := alignArgs(declTokens, callTokens)
	n := len(params)
	if len(args) < n {
		n = len(args)
	}
	for i := 0; i < n; i++ {
		value, err := r.resolveCallArg(args[i], step, branch)
		if err != nil {
			return err
		}
		r.Env.StageLocalParam(params[i], value)
		step.Log = append(step.Log, fmt.Sprintf("Function parameter {{%s}} is %q", params[i], fmt.Sprint(value)))
	}
	return nil
}

// tokenizeDeclaration splits a function declaration into whitespace-
// separated tokens, keeping {name}/{{name}} placeholders intact.
func tokenizeDeclaration(text string) []string {
	return strings.Fields(text)
}

// tokenizeArgs splits call text into tokens, treating a quoted string or a
// {name}/{{name}} reference as a single token even if it contains spaces.
func tokenizeArgs(text string) []string {
	var tokens []string
	runes := []rune(text)
	i := 0
	for i < len(runes) {
		for i < len(runes) && runes[i] == ' ' {
			i++
		}
		if i >= len(runes) {
			break
		}
		start := i
		switch runes[i] {
		case '\'', '"':
			quote := runes[i]
			i++
			for i < len(runes) && runes[i] != quote {
				i++
			}
			if i < len(runes) {
				i++
			}
		case '[':
			i++
			for i < len(runes) && runes[i] != ']' {
				i++
			}
			if i < len(runes) {
				i++
			}
		case '{':
			depth := 0
			for i < len(runes) {
				if runes[i] == '{' {
					depth++
				} else if runes[i] == '}' {
					depth--
				}
				i++
				if depth == 0 {
					break
				}
			}
		default:
			for i < len(runes) && runes[i] != ' ' {
				i++
			}
		}
		tokens = append(tokens, string(runes[start:i]))
	}
	return tokens
}

// alignArgs walks declTokens and callTokens together, returning the call
// token aligned with each placeholder position in declTokens. Literal words
// in the declaration are assumed to align 1:1 with the same literal word in
// the call; this is a simplifying assumption documented as an interpretive
// choice (no grammar for multi-word literals is specified).
func alignArgs(declTokens, callTokens []string) []string {
	var args []string
	n := len(declTokens)
	if len(callTokens) < n {
		n = len(callTokens)
	}
	for i := 0; i < n; i++ {
		if isPlaceholder(declTokens[i]) {
			args = append(args, callTokens[i])
		}
	}
	return args
}

func isPlaceholder(tok string) bool {
	return declParamPattern.MatchString(tok) && declParamPattern.FindString(tok) == tok
}

// resolveCallArg implements the per-argument dispatch of spec §4.E step 5.
func (r *Runner) resolveCallArg(arg string, step *tree.Step, branch *tree.Branch) (any, *stepcore.Error) {
	if isWholeStringLiteral(arg) {
		inner := arg[1 : len(arg)-1]
		expanded, err := r.Resolver.ReplaceVars(inner, step, branch)
		if err != nil {
			return nil, err
		}
		return varresolver.UnquoteAndUnescape(expanded), nil
	}
	if name, isLocal, ok := wholeVarRef(arg); ok {
		return r.Resolver.FindVarValue(name, isLocal, step, branch)
	}
	return arg, nil
}

func isWholeStringLiteral(tok string) bool {
	if len(tok) < 2 {
		return false
	}
	first, last := tok[0], tok[len(tok)-1]
	return (first == '\'' && last == '\'') || (first == '"' && last == '"') || (first == '[' && last == ']')
}

func wholeVarRef(tok string) (name string, isLocal bool, ok bool) {
	if strings.HasPrefix(tok, "{{") && strings.HasSuffix(tok, "}}") && len(tok) >= 4 {
		return strings.TrimSpace(tok[2 : len(tok)-2]), true, true
	}
	if strings.HasPrefix(tok, "{") && strings.HasSuffix(tok, "}") && len(tok) >= 2 {
		return strings.TrimSpace(tok[1 : len(tok)-1]), false, true
	}
	return "", false, false
}

// runAssignments implements spec §4.E step 6.
func (r *Runner) runAssignments(step *tree.Step, branch *tree.Branch) *stepcore.Error {
	for _, binding := range step.VarsBeingSet {
		literal := varresolver.UnquoteAndUnescape(binding.Value)
		expanded, err := r.Resolver.ReplaceVars(literal, step, branch)
		if err != nil {
			return err
		}
		ns := valuestore.Global
		if binding.IsLocal {
			ns = valuestore.Local
		}
		r.Env.Set(ns, binding.Name, expanded)
		if binding.IsLocal {
			step.Log = append(step.Log, fmt.Sprintf("{{%s}} = %q", binding.Name, expanded))
		} else {
			step.Log = append(step.Log, fmt.Sprintf("{%s} = %q", binding.Name, expanded))
		}
	}
	return nil
}
