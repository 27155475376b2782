package debugger

import (
	"testing"

	"github.com/ormasoftchile/stepengine/pkg/tree"
)

func TestBuildInjectedStepParsesDoubleBraceAssignment(t *testing.T) {
	s := buildInjectedStep(`{{z}} = 'abc'`, nil)
	if len(s.VarsBeingSet) != 1 {
		t.Fatalf("expected one var binding, got %v", s.VarsBeingSet)
	}
	b := s.VarsBeingSet[0]
	if b.Name != "z" || b.Value != "abc" || !b.IsLocal {
		t.Fatalf("got binding %+v", b)
	}
}

func TestBuildInjectedStepParsesSingleBraceAssignment(t *testing.T) {
	s := buildInjectedStep(`{y} = "hi there"`, nil)
	if len(s.VarsBeingSet) != 1 || s.VarsBeingSet[0].Value != "hi there" {
		t.Fatalf("got %+v", s.VarsBeingSet)
	}
}

func TestBuildInjectedStepPlainTextHasNoBinding(t *testing.T) {
	s := buildInjectedStep("click the button", nil)
	if len(s.VarsBeingSet) != 0 {
		t.Fatalf("expected no var binding for plain text, got %v", s.VarsBeingSet)
	}
	if s.Text != "click the button" {
		t.Fatalf("Text = %q", s.Text)
	}
}

func TestBuildInjectedStepInheritsContextIndent(t *testing.T) {
	ctx := &tree.Branch{Steps: []*tree.Step{{BranchIndents: 2}}}
	s := buildInjectedStep("do a thing", ctx)
	if s.BranchIndents != 2 {
		t.Fatalf("BranchIndents = %d, want 2", s.BranchIndents)
	}
}
