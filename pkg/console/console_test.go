package console

import (
	"bytes"
	"strings"
	"testing"

	"github.com/ormasoftchile/stepengine/pkg/stepcore"
	"github.com/ormasoftchile/stepengine/pkg/tree"
)

func TestStepStartPrintsText(t *testing.T) {
	var buf bytes.Buffer
	c := New(&buf)
	c.StepStart(&tree.Step{Text: "click the button", Filename: "t.yaml", LineNumber: 3})
	out := buf.String()
	if !strings.Contains(out, "Start:") || !strings.Contains(out, "click the button") {
		t.Fatalf("unexpected output: %q", out)
	}
	if !strings.Contains(out, "t.yaml:3") {
		t.Fatalf("expected location in output: %q", out)
	}
}

func TestStepEndLabelsEachOutcome(t *testing.T) {
	cases := []struct {
		isPassed, asExpected bool
		want                 string
	}{
		{true, true, "passed"},
		{true, false, "passed not as expected"},
		{false, true, "failed as expected"},
		{false, false, "failed"},
	}
	for _, tc := range cases {
		if got := statusLabel(tc.isPassed, tc.asExpected); got != tc.want {
			t.Errorf("statusLabel(%v, %v) = %q, want %q", tc.isPassed, tc.asExpected, got, tc.want)
		}
	}
}

func TestStepEndPrintsErrorDetail(t *testing.T) {
	var buf bytes.Buffer
	c := New(&buf)
	step := &tree.Step{
		Text:     "boom",
		IsFailed: true,
		Error:    stepcore.NewCodeBlockError("division by zero", "at CodeBlock_for_boom (<anonymous>:1)"),
	}
	c.StepEnd(step)
	out := buf.String()
	if !strings.Contains(out, "End:") || !strings.Contains(out, "failed") {
		t.Fatalf("unexpected output: %q", out)
	}
	if !strings.Contains(out, "CodeBlock_for_boom") {
		t.Fatalf("expected the error's stack in output: %q", out)
	}
}

func TestNopConsoleWritesNothing(t *testing.T) {
	c := NewNop()
	c.StepStart(&tree.Step{Text: "x"})
	c.StepEnd(&tree.Step{Text: "x", IsPassed: true, AsExpected: true})
	c.BranchComplete(&tree.Branch{})
}
