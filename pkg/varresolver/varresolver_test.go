package varresolver

import (
	"sync"
	"testing"

	"github.com/ormasoftchile/stepengine/pkg/environment"
	"github.com/ormasoftchile/stepengine/pkg/stepcore"
	"github.com/ormasoftchile/stepengine/pkg/tree"
	"github.com/ormasoftchile/stepengine/pkg/valuestore"
)

func newEnv() *environment.Environment {
	return environment.New(valuestore.NewScope(), &sync.RWMutex{}, valuestore.NewScope())
}

// S1 — simple assignment and read: {x}='hi' already set in global, read it back.
func TestReplaceVarsSimpleRead(t *testing.T) {
	env := newEnv()
	env.Set(valuestore.Global, "x", "hi")
	r := New(env, nil)

	step := &tree.Step{Text: "say {x}"}
	branch := &tree.Branch{Steps: []*tree.Step{step}}

	got, err := r.ReplaceVars("say {x}", step, branch)
	if err != nil {
		t.Fatalf("ReplaceVars() error = %v", err)
	}
	if got != "say hi" {
		t.Fatalf("ReplaceVars() = %q, want %q", got, "say hi")
	}
}

// S2 — forward lookup: step A references {y}; step B (later, same indent) sets it.
func TestReplaceVarsForwardLookup(t *testing.T) {
	env := newEnv()
	r := New(env, nil)

	stepA := &tree.Step{Text: "use {y}"}
	stepB := &tree.Step{
		Text:         `{y}='world'`,
		VarsBeingSet: []tree.VarBinding{{Name: "y", Value: "'world'", IsLocal: false}},
	}
	branch := &tree.Branch{Steps: []*tree.Step{stepA, stepB}}

	got, err := r.ReplaceVars("use {y}", stepA, branch)
	if err != nil {
		t.Fatalf("ReplaceVars() error = %v", err)
	}
	if got != "use world" {
		t.Fatalf("ReplaceVars() = %q, want %q", got, "use world")
	}
}

func TestFindVarValueLocalScopeExit(t *testing.T) {
	env := newEnv()
	r := New(env, nil)

	outer := &tree.Step{Text: "use {{z}}", BranchIndents: 1}
	dedented := &tree.Step{BranchIndents: 0} // scope exit before reaching the setter
	setter := &tree.Step{
		BranchIndents: 1,
		VarsBeingSet:  []tree.VarBinding{{Name: "z", Value: "'late'", IsLocal: true}},
	}
	branch := &tree.Branch{Steps: []*tree.Step{outer, dedented, setter}}

	_, err := r.FindVarValue("z", true, outer, branch)
	if err == nil {
		t.Fatal("expected VarNotSet once local scope exits before the setter")
	}
	if err.Kind != "VarNotSet" {
		t.Errorf("Kind = %v, want VarNotSet", err.Kind)
	}
}

func TestFindVarValueNotSet(t *testing.T) {
	env := newEnv()
	r := New(env, nil)
	step := &tree.Step{Text: "use {missing}"}
	branch := &tree.Branch{Steps: []*tree.Step{step}}

	_, err := r.FindVarValue("missing", false, step, branch)
	if err == nil || err.Kind != "VarNotSet" {
		t.Fatalf("expected VarNotSet, got %v", err)
	}
}

func TestReplaceVarsIdempotence(t *testing.T) {
	env := newEnv()
	env.Set(valuestore.Global, "x", "hi")
	r := New(env, nil)
	step := &tree.Step{}
	branch := &tree.Branch{Steps: []*tree.Step{step}}

	once, err := r.ReplaceVars("say {x}", step, branch)
	if err != nil {
		t.Fatalf("first ReplaceVars() error = %v", err)
	}
	twice, err := r.ReplaceVars(once, step, branch)
	if err != nil {
		t.Fatalf("second ReplaceVars() error = %v", err)
	}
	if once != twice {
		t.Fatalf("ReplaceVars not idempotent: %q != %q", once, twice)
	}
}

func TestReplaceVarsRunsCodeBlockSetter(t *testing.T) {
	env := newEnv()
	ranWith := (*tree.Step)(nil)
	runCode := func(step *tree.Step) (any, *stepcore.Error) {
		ranWith = step
		return "computed", nil
	}
	r := New(env, runCode)

	reader := &tree.Step{Text: "use {w}"}
	setter := &tree.Step{
		HasCodeBlock: true,
		CodeBlock:    `"computed"`,
		VarsBeingSet: []tree.VarBinding{{Name: "w", IsLocal: false}},
	}
	branch := &tree.Branch{Steps: []*tree.Step{reader, setter}}

	got, err := r.ReplaceVars("use {w}", reader, branch)
	if err != nil {
		t.Fatalf("ReplaceVars() error = %v", err)
	}
	if got != "use computed" {
		t.Fatalf("ReplaceVars() = %q, want %q", got, "use computed")
	}
	if ranWith != setter {
		t.Fatal("code block was not run against the setter step")
	}
}
