// Package evaluator implements component C, the ExprEvaluator: it runs a
// user-supplied code block with injected helpers and variable bindings. It
// embeds github.com/expr-lang/expr as its scripting engine — the strategy
// spec.md §9 calls "(a) embed a scripting engine and pass the header as
// prelude" — rather than hand-writing a second interpreter, grounded on the
// teacher's own use of expr-lang for condition evaluation
// (pkg/runtime/engine.go's evalCondition).
package evaluator

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/ormasoftchile/stepengine/pkg/governance"
	"github.com/ormasoftchile/stepengine/pkg/stepcore"
)

// identifierPattern is the whitelist spec §4.C names for header aliasing.
var identifierPattern = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

// blacklist is the target language's reserved words plus the extra set
// spec §4.C enumerates.
var blacklist = map[string]bool{}

func init() {
	for _, w := range strings.Fields(
		`do if in for let new try var case else enum eval null this true void ` +
			`with await break catch class const false super throw while yield ` +
			`delete export import public return static switch typeof default ` +
			`extends finally package private continue debugger function arguments ` +
			`interface protected implements instanceof`) {
		blacklist[w] = true
	}
}

// Helpers is the callback surface §4.C exposes to user code: log, the three
// getters/setters, getStepText, and imp. The caller (StepRunner) supplies
// these bound to the current step/environment.
type Helpers struct {
	Log           func(text string)
	GetPersistent func(name string) (any, error)
	GetGlobal     func(name string) (any, error)
	GetLocal      func(name string) (any, error)
	SetPersistent func(name string, value any)
	SetGlobal     func(name string, value any)
	SetLocal      func(name string, value any)
	GetStepText   func() string
	Imp           func(packageName, varName string) (any, error)
}

// PackageLoader resolves an external module by name, on behalf of imp.
type PackageLoader func(packageName string) (any, error)

// Evaluator compiles and runs code blocks. It caches compiled programs by
// source text plus the names and types of the bindings they were compiled
// against (see envSignature).
type Evaluator struct {
	loader     PackageLoader
	governance *governance.Engine

	mu    sync.Mutex
	cache map[string]*vm.Program
}

// New builds an Evaluator. loader resolves packages named by imp(); pass nil
// if the host does not support dynamic package loading.
func New(loader PackageLoader) *Evaluator {
	return &Evaluator{loader: loader, cache: make(map[string]*vm.Program)}
}

// WithGovernance attaches a governance.Engine that gates which packages
// imp() may load and which header identifiers are exposed to user code,
// beyond the static whitelist/blacklist. Returns e for chaining.
func (e *Evaluator) WithGovernance(g *governance.Engine) *Evaluator {
	e.governance = g
	return e
}

// Options configures one Evaluate call.
type Options struct {
	FuncName       string         // used to derive the CodeBlock_for_<name> label
	LineNumberBase int            // step.lineNumber; pads source so error lines match
	Header         map[string]any // displayName -> value, from Environment.Header()
	Helpers        Helpers
	Async          bool // if true, Evaluate returns a Deferred instead of resolving inline
}

// Deferred is the async-mode return value; Await resolves it identically to
// what sync mode would have returned directly (spec §4.C: "async mode
// returns a deferred value that resolves identically").
type Deferred struct {
	resolve func() (any, *stepcore.Error)
}

// Await blocks until the deferred value is available.
func (d *Deferred) Await() (any, *stepcore.Error) {
	return d.resolve()
}

// SanitizeFuncName strips whitespace (to underscore) and non-identifier
// characters from name, per §4.C's CodeBlock_for_<sanitizedFuncName> rule.
func SanitizeFuncName(name string) string {
	replaced := strings.Join(strings.Fields(name), "_")
	var b strings.Builder
	for i, r := range replaced {
		if r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (i > 0 && r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "anonymous"
	}
	return b.String()
}

// DeriveImpVarName implements imp's default varName derivation: each "-x" is
// replaced by the uppercase of x, remaining hyphens stripped.
func DeriveImpVarName(packageName string) string {
	var b strings.Builder
	upperNext := false
	for _, r := range packageName {
		if r == '-' {
			upperNext = true
			continue
		}
		if upperNext {
			b.WriteRune(toUpperRune(r))
			upperNext = false
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func toUpperRune(r rune) rune {
	if r >= 'a' && r <= 'z' {
		return r - ('a' - 'A')
	}
	return r
}

// headerEnv filters opts.Header down to the identifiers §4.C allows to be
// materialized as local aliases; everything else remains reachable only
// through the getLocal/getGlobal/getPersistent helpers.
func headerEnv(header map[string]any) map[string]any {
	env := make(map[string]any, len(header))
	for name, value := range header {
		if !identifierPattern.MatchString(name) {
			continue
		}
		if blacklist[name] {
			continue
		}
		env[name] = value
	}
	return env
}

func (e *Evaluator) buildEnv(opts Options) map[string]any {
	env := headerEnv(opts.Header)
	if e.governance != nil {
		env, _ = e.governance.FilterHeader(env)
	}
	env["log"] = func(text string) string {
		if opts.Helpers.Log != nil {
			opts.Helpers.Log(text)
		}
		return text
	}
	env["getPersistent"] = func(name string) any {
		return mustGet(opts.Helpers.GetPersistent, name)
	}
	env["getGlobal"] = func(name string) any {
		return mustGet(opts.Helpers.GetGlobal, name)
	}
	env["getLocal"] = func(name string) any {
		return mustGet(opts.Helpers.GetLocal, name)
	}
	env["setPersistent"] = func(name string, value any) any {
		if opts.Helpers.SetPersistent != nil {
			opts.Helpers.SetPersistent(name, value)
		}
		return value
	}
	env["setGlobal"] = func(name string, value any) any {
		if opts.Helpers.SetGlobal != nil {
			opts.Helpers.SetGlobal(name, value)
		}
		return value
	}
	env["setLocal"] = func(name string, value any) any {
		if opts.Helpers.SetLocal != nil {
			opts.Helpers.SetLocal(name, value)
		}
		return value
	}
	env["getStepText"] = func() string {
		if opts.Helpers.GetStepText != nil {
			return opts.Helpers.GetStepText()
		}
		return ""
	}
	env["imp"] = func(args ...string) any {
		packageName := ""
		varName := ""
		if len(args) > 0 {
			packageName = args[0]
		}
		if len(args) > 1 {
			varName = args[1]
		}
		return e.imp(opts, packageName, varName)
	}
	return env
}

func mustGet(fn func(string) (any, error), name string) any {
	if fn == nil {
		return nil
	}
	v, err := fn(name)
	if err != nil {
		panic(err)
	}
	return v
}

// imp implements §4.C's lazy-load-and-cache-in-persistent semantics.
func (e *Evaluator) imp(opts Options, packageName, varName string) any {
	if e.governance != nil {
		if err := e.governance.CheckPackage(packageName); err != nil {
			panic(err)
		}
	}
	if varName == "" {
		varName = DeriveImpVarName(packageName)
	}
	if opts.Helpers.GetPersistent != nil {
		if v, err := opts.Helpers.GetPersistent(varName); err == nil && v != nil {
			return v
		}
	}
	if e.loader == nil {
		panic(fmt.Errorf("imp(%q): no package loader configured", packageName))
	}
	v, err := e.loader(packageName)
	if err != nil {
		panic(fmt.Errorf("imp(%q): %w", packageName, err))
	}
	if opts.Helpers.SetPersistent != nil {
		opts.Helpers.SetPersistent(varName, v)
	}
	return v
}

// padding returns (lineNumberBase - 1) blank lines, so that expr-lang's
// reported line numbers for errors inside code line up with the user's
// source file (spec §4.C).
func padding(lineNumberBase int) string {
	n := lineNumberBase - 1
	if n <= 0 {
		return ""
	}
	return strings.Repeat("\n", n)
}

// label formats the synthetic callable name used in error messages, per
// §4.C's CodeBlock_for_<sanitizedFuncName> rule.
func label(funcName string) string {
	return "CodeBlock_for_" + SanitizeFuncName(funcName)
}

// Evaluate compiles and runs code. In sync mode it returns the code's final
// value directly; in async mode (opts.Async) it returns a *Deferred whose
// Await resolves identically.
func (e *Evaluator) Evaluate(code string, opts Options) (any, *stepcore.Error) {
	run := func() (any, *stepcore.Error) {
		return e.run(code, opts)
	}
	if !opts.Async {
		return run()
	}
	d := &Deferred{resolve: run}
	// Deferred is returned eagerly; callers that want true concurrency can
	// wrap Await in their own goroutine. The engine only ever awaits a
	// single code block at a time (spec §5: suspension points are
	// sequential), so no extra scheduling is needed here.
	return d, nil
}

func (e *Evaluator) run(code string, opts Options) (result any, evalErr *stepcore.Error) {
	defer func() {
		if r := recover(); r != nil {
			stack := fmt.Sprintf("at %s (%s:%d)", label(opts.FuncName), "", opts.LineNumberBase)
			if asErr, ok := r.(*stepcore.Error); ok {
				evalErr = asErr
				return
			}
			if asErr, ok := r.(error); ok {
				evalErr = stepcore.NewCodeBlockError(asErr.Error(), stack)
				return
			}
			evalErr = stepcore.NewCodeBlockError(fmt.Sprintf("%v", r), stack)
		}
	}()

	source := padding(opts.LineNumberBase) + code
	env := e.buildEnv(opts)

	program, err := e.compile(source, env)
	if err != nil {
		return nil, stepcore.NewCodeBlockError(err.Error(), extractStack(err, opts))
	}

	out, err := expr.Run(program, env)
	if err != nil {
		return nil, stepcore.NewCodeBlockError(err.Error(), extractStack(err, opts))
	}
	return out, nil
}

// envSignature summarizes the names and types expr.Env(env) type-checks a
// compile against, so that two calls with identical code text but different
// available header variables (e.g. a function declaration's code block run
// once before a variable is defined and again after) don't share a cached
// *vm.Program compiled against the wrong set of bindings.
func envSignature(env map[string]any) string {
	names := make([]string, 0, len(env))
	for name := range env {
		names = append(names, name)
	}
	sort.Strings(names)
	var b strings.Builder
	for _, name := range names {
		fmt.Fprintf(&b, "%s:%T|", name, env[name])
	}
	return b.String()
}

func (e *Evaluator) compile(source string, env map[string]any) (*vm.Program, error) {
	key := source + "\x00" + envSignature(env)

	e.mu.Lock()
	if p, ok := e.cache[key]; ok {
		e.mu.Unlock()
		return p, nil
	}
	e.mu.Unlock()

	program, err := expr.Compile(source, expr.Env(env))
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.cache[key] = program
	e.mu.Unlock()
	return program, nil
}

// lineInErr matches expr-lang's "(line:col)" position suffix so a reported
// failure can be attributed to a specific source line, mirroring §4.E's
// "at CodeBlock...<anonymous>:<N>" stack-frame scrape without depending on
// an unexported expr-lang error type.
var lineInErr = regexp.MustCompile(`\((\d+):\d+\)`)

func extractStack(err error, opts Options) string {
	line := opts.LineNumberBase
	if m := lineInErr.FindStringSubmatch(err.Error()); m != nil {
		fmt.Sscanf(m[1], "%d", &line)
	}
	return fmt.Sprintf("at %s (<anonymous>:%d)", label(opts.FuncName), line)
}
