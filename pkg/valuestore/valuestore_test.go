package valuestore

import "testing"

func TestCanonicalize(t *testing.T) {
	cases := map[string]string{
		"  My Var  ": "my var",
		"MYVAR":      "myvar",
		"a   b":      "a b",
	}
	for in, want := range cases {
		if got := Canonicalize(in); got != want {
			t.Errorf("Canonicalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestScopeSetGetCaseInsensitive(t *testing.T) {
	s := NewScope()
	s.Set("My Var", "hi")
	v, ok := s.Get("  my   var ")
	if !ok || v != "hi" {
		t.Fatalf("Get() = %v, %v; want hi, true", v, ok)
	}
	if got := s.DisplayName("MY VAR"); got != "My Var" {
		t.Errorf("DisplayName() = %q, want %q", got, "My Var")
	}
}

func TestScopeHasMissing(t *testing.T) {
	s := NewScope()
	if s.Has("nope") {
		t.Fatal("Has() true for unset name")
	}
	if _, ok := s.Get("nope"); ok {
		t.Fatal("Get() ok for unset name")
	}
}

func TestScopeMergeOverwrites(t *testing.T) {
	a := NewScope()
	a.Set("x", 1)
	b := NewScope()
	b.Set("x", 2)
	b.Set("y", 3)
	a.Merge(b)
	v, _ := a.Get("x")
	if v != 2 {
		t.Errorf("Merge did not overwrite: x = %v", v)
	}
	v, _ = a.Get("y")
	if v != 3 {
		t.Errorf("Merge did not add: y = %v", v)
	}
}

func TestScopeCloneIsIndependent(t *testing.T) {
	a := NewScope()
	a.Set("x", 1)
	b := a.Clone()
	b.Set("x", 2)
	v, _ := a.Get("x")
	if v != 1 {
		t.Errorf("Clone shares state with original: x = %v", v)
	}
}

func TestEntriesUsesDisplayName(t *testing.T) {
	s := NewScope()
	s.Set("Foo Bar", 42)
	entries := s.Entries()
	v, ok := entries["Foo Bar"]
	if !ok || v != 42 {
		t.Fatalf("Entries()[%q] = %v, %v; want 42, true", "Foo Bar", v, ok)
	}
}
