package instance

import (
	"strings"
	"testing"

	"github.com/ormasoftchile/stepengine/pkg/governance"
	"github.com/ormasoftchile/stepengine/pkg/tree"
	"github.com/ormasoftchile/stepengine/pkg/treeschema"
	"github.com/ormasoftchile/stepengine/pkg/valuestore"
)

func oneStepTree(codeBlock string) *tree.SliceTree {
	step := &tree.Step{Text: "only step", CodeBlock: codeBlock, HasCodeBlock: codeBlock != ""}
	return tree.NewSliceTree([]*tree.Branch{{ID: "b1", Steps: []*tree.Step{step}}})
}

func TestNewAssemblesRunnableInstance(t *testing.T) {
	inst := New(Config{
		Tree:   oneStepTree("1 + 1"),
		Shared: NewShared(nil, false),
	})
	inst.Run()

	if inst.ID == "" {
		t.Error("expected New to assign an instance ID")
	}
	if len(inst.StepsRan()) != 1 {
		t.Fatalf("StepsRan() = %d, want 1", len(inst.StepsRan()))
	}
	if !inst.StepsRan()[0].IsPassed {
		t.Error("expected the single step to pass")
	}
}

func TestSharedPersistentNamespaceIsVisibleAcrossInstances(t *testing.T) {
	shared := NewShared(nil, false)

	setter := New(Config{
		Tree:   oneStepTree(`setPersistent("k", "v")`),
		Shared: shared,
	})
	setter.Run()

	reader := New(Config{
		Tree:   oneStepTree(`getPersistent("k")`),
		Shared: shared,
	})
	reader.Run()

	if got := reader.StepsRan()[0]; !got.IsPassed {
		t.Fatalf("reader step did not pass: %+v", got.Error)
	}
}

func TestGovernanceDenyPackageFailsImpStep(t *testing.T) {
	inst := New(Config{
		Tree:       oneStepTree(`imp("fs-raw")`),
		Shared:     NewShared(nil, false),
		Governance: &governance.Policy{DeniedPackages: []string{"fs-raw"}},
	})
	inst.Run()

	step := inst.StepsRan()[0]
	if !step.IsFailed {
		t.Fatal("expected the imp step to fail once governance denies fs-raw")
	}
}

func TestSnapshotReflectsStepsRanAndEnvironment(t *testing.T) {
	inst := New(Config{
		Tree:   oneStepTree(`setGlobal("count", 1)`),
		Shared: NewShared(valuestore.NewScope(), false),
	})
	inst.Run()

	m := inst.Snapshot()
	if m.InstanceID != inst.ID {
		t.Errorf("Snapshot().InstanceID = %q, want %q", m.InstanceID, inst.ID)
	}
	if len(m.StepsRan) != 1 || m.StepsRan[0].Outcome != "passed" {
		t.Fatalf("Snapshot().StepsRan = %+v", m.StepsRan)
	}
	if m.Global["count"] != 1 {
		t.Errorf("Snapshot().Global[count] = %v, want 1", m.Global["count"])
	}

	var buf strings.Builder
	if err := inst.WriteSnapshot(&buf); err != nil {
		t.Fatalf("WriteSnapshot() error = %v", err)
	}
	if !strings.Contains(buf.String(), "instanceId") {
		t.Errorf("WriteSnapshot() output missing instanceId: %s", buf.String())
	}
}

// TestDocumentLoadedFunctionCallRunsDeclarationCodeBlock is scenario S3,
// driven through the document loader end to end (treeschema.Build ->
// instance.Run), not hand-built tree.Step literals: the call site must run
// the declaration's code block, not skip it because the call step's own
// codeBlock field is empty.
func TestDocumentLoadedFunctionCallRunsDeclarationCodeBlock(t *testing.T) {
	doc, err := treeschema.Decode(strings.NewReader(`
functions:
  - name: "greet"
    codeBlock: "log(\"Ada\")"
branches:
  - steps:
      - text: "greet"
        branchIndents: 0
        functionCall: "greet"
`))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	st, err := treeschema.Build(doc)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	inst := New(Config{Tree: st, Shared: NewShared(nil, false)})
	inst.Run()

	step := inst.StepsRan()[0]
	if !step.IsPassed {
		t.Fatalf("call step did not pass: %+v", step.Error)
	}
	if len(step.Log) != 1 || step.Log[0] != "Ada" {
		t.Fatalf("expected the declaration's log(\"Ada\") to have run, got Log=%v", step.Log)
	}
}
