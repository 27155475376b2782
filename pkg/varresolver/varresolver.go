// Package varresolver implements component D: substituting {name}/{{name}}
// references inside step text, either from the current environment or by
// scanning forward in the branch for a later assignment (spec §4.D). The
// forward-lookup behavior is a deliberate language feature, not a bug:
// an earlier step may read a variable a later step in the same branch sets.
package varresolver

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/ormasoftchile/stepengine/pkg/environment"
	"github.com/ormasoftchile/stepengine/pkg/stepcore"
	"github.com/ormasoftchile/stepengine/pkg/tree"
	"github.com/ormasoftchile/stepengine/pkg/valuestore"
)

// varRef matches {{name}} first (so it wins over the {name} pattern on the
// same text), then {name}.
var varRef = regexp.MustCompile(`\{\{([^{}]+)\}\}|\{([^{}]+)\}`)

const maxResolutionDepth = 64 // CallStackExceeded -> InfiniteVarLoop cutoff (spec §4.D)

// CodeBlockRunner evaluates a step's or setter's code block synchronously,
// returning its value. StepRunner supplies the concrete binding; VarResolver
// only needs the narrow "run this code block, give me the value" contract.
type CodeBlockRunner func(step *tree.Step) (any, *stepcore.Error)

// Resolver expands variable references in step text against an Environment.
type Resolver struct {
	Env     *environment.Environment
	RunCode CodeBlockRunner
}

// New builds a Resolver bound to env, using runCode to evaluate a setter
// step's code block when a forward-lookup match has one.
func New(env *environment.Environment, runCode CodeBlockRunner) *Resolver {
	return &Resolver{Env: env, RunCode: runCode}
}

// ReplaceVars substitutes every {name}/{{name}} in text, per spec §4.D.
func (r *Resolver) ReplaceVars(text string, step *tree.Step, branch *tree.Branch) (string, *stepcore.Error) {
	return r.replaceVarsDepth(text, step, branch, 0)
}

func (r *Resolver) replaceVarsDepth(text string, step *tree.Step, branch *tree.Branch, depth int) (string, *stepcore.Error) {
	if depth > maxResolutionDepth {
		return "", stepcore.NewInfiniteVarLoop(text)
	}

	var firstErr *stepcore.Error
	out := varRef.ReplaceAllStringFunc(text, func(m string) string {
		if firstErr != nil {
			return m
		}
		sub := varRef.FindStringSubmatch(m)
		name := sub[1]
		isLocalRef := false
		if name != "" {
			isLocalRef = true // {{name}} -> local
		} else {
			name = sub[2] // {name} -> global
		}
		name = strings.TrimSpace(name)

		value, err := r.findVarValueDepth(name, isLocalRef, step, branch, depth)
		if err != nil {
			firstErr = err
			return m
		}
		s, err2 := scalarToString(name, value)
		if err2 != nil {
			firstErr = err2
			return m
		}
		return s
	})
	if firstErr != nil {
		return "", firstErr
	}
	return out, nil
}

func scalarToString(name string, value any) (string, *stepcore.Error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case bool:
		return strconv.FormatBool(v), nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64), nil
	default:
		return "", stepcore.NewVarTypeError(name, value)
	}
}

// FindVarValue implements spec §4.D's findVarValue: look in the relevant
// namespace first, then scan branch forward for a later setter.
func (r *Resolver) FindVarValue(name string, isLocal bool, step *tree.Step, branch *tree.Branch) (any, *stepcore.Error) {
	return r.findVarValueDepth(name, isLocal, step, branch, 0)
}

func (r *Resolver) findVarValueDepth(name string, isLocal bool, step *tree.Step, branch *tree.Branch, depth int) (any, *stepcore.Error) {
	ns := valuestore.Global
	if isLocal {
		ns = valuestore.Local
	}

	// 1. Already assigned in the relevant namespace.
	if v, ok := r.Env.Get(ns, name); ok {
		return v, nil
	}

	// 2. Scan forward in the branch for the first later setter.
	startIdx := indexOf(branch, step)
	for i := startIdx + 1; i < len(branch.Steps); i++ {
		candidate := branch.Steps[i]
		if isLocal && candidate.BranchIndents < step.BranchIndents {
			break // local scope exit
		}
		binding, ok := findBinding(candidate, name, isLocal)
		if !ok {
			continue
		}

		var raw any
		if candidate.HasCodeBlock && r.RunCode != nil {
			v, err := r.RunCode(candidate)
			if err != nil {
				return nil, err
			}
			raw = v
		} else {
			raw = UnquoteAndUnescape(binding.Value)
		}

		// 4. Recurse replaceVars on string results against the original step.
		if s, ok := raw.(string); ok {
			resolved, err := r.replaceVarsDepth(s, step, branch, depth+1)
			if err != nil {
				return nil, err
			}
			return resolved, nil
		}
		return raw, nil
	}

	// 5. No setter found.
	return nil, stepcore.NewVarNotSet(name)
}

func indexOf(branch *tree.Branch, step *tree.Step) int {
	for i, s := range branch.Steps {
		if s == step {
			return i
		}
	}
	return -1
}

func findBinding(step *tree.Step, name string, isLocal bool) (tree.VarBinding, bool) {
	canon := valuestore.Canonicalize(name)
	for _, b := range step.VarsBeingSet {
		if b.IsLocal == isLocal && valuestore.Canonicalize(b.Name) == canon {
			return b, true
		}
	}
	return tree.VarBinding{}, false
}

// UnquoteAndUnescape strips a literal's surrounding quotes (if present) and
// applies standard escape sequences (spec §4.D step 3).
func UnquoteAndUnescape(literal string) string {
	trimmed := strings.TrimSpace(literal)
	if len(trimmed) >= 2 {
		first, last := trimmed[0], trimmed[len(trimmed)-1]
		if (first == '\'' && last == '\'') || (first == '"' && last == '"') {
			inner := trimmed[1 : len(trimmed)-1]
			if unescaped, err := strconv.Unquote(`"` + strings.ReplaceAll(inner, `"`, `\"`) + `"`); err == nil {
				return unescaped
			}
			return inner
		}
	}
	return trimmed
}
