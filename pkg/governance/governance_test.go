package governance

import "testing"

func TestAllowlistAcceptsAllowedPackage(t *testing.T) {
	g := &Engine{AllowedPackages: []string{"http-client", "json-util"}}
	if err := g.CheckPackage("http-client"); err != nil {
		t.Errorf("expected allowed, got: %v", err)
	}
}

func TestAllowlistRejectsUnlistedPackage(t *testing.T) {
	g := &Engine{AllowedPackages: []string{"http-client"}}
	if err := g.CheckPackage("fs-raw"); err == nil {
		t.Error("expected rejection for unlisted package")
	}
}

func TestDenylistTakesPrecedenceOverAllowlist(t *testing.T) {
	g := &Engine{
		AllowedPackages: []string{"http-client", "fs-raw"},
		DeniedPackages:  []string{"fs-raw"},
	}
	if err := g.CheckPackage("http-client"); err != nil {
		t.Errorf("http-client should pass: %v", err)
	}
	if err := g.CheckPackage("fs-raw"); err == nil {
		t.Error("fs-raw should be denied (deny takes precedence)")
	}
}

func TestNoGovernanceAllowsAll(t *testing.T) {
	g := &Engine{}
	if err := g.CheckPackage("anything"); err != nil {
		t.Errorf("empty governance should allow all: %v", err)
	}
}

func TestCheckIdentifierPatternMatching(t *testing.T) {
	g := &Engine{DenyIdentifiers: []string{"SECRET_*", "TOKEN", "AWS_*"}}
	tests := []struct {
		name    string
		blocked bool
	}{
		{"SECRET_KEY", true},
		{"TOKEN", true},
		{"AWS_ACCESS_KEY", true},
		{"x", false},
		{"counter", false},
	}
	for _, tt := range tests {
		err := g.CheckIdentifier(tt.name)
		if tt.blocked && err == nil {
			t.Errorf("expected %q to be blocked", tt.name)
		}
		if !tt.blocked && err != nil {
			t.Errorf("expected %q to be allowed, got: %v", tt.name, err)
		}
	}
}

func TestFilterHeaderRemovesBlockedNames(t *testing.T) {
	g := &Engine{DenyIdentifiers: []string{"SECRET_*"}}
	header := map[string]any{"x": 1, "SECRET_KEY": "hunter2"}
	filtered, blocked := g.FilterHeader(header)
	if _, ok := filtered["SECRET_KEY"]; ok {
		t.Error("SECRET_KEY should have been filtered out")
	}
	if _, ok := filtered["x"]; !ok {
		t.Error("x should remain in the filtered header")
	}
	if len(blocked) != 1 || blocked[0] != "SECRET_KEY" {
		t.Errorf("blocked = %v, want [SECRET_KEY]", blocked)
	}
}

func TestNewCompilesRedactRulesFromPolicy(t *testing.T) {
	g := New(&Policy{Redact: []RedactionRule{{Pattern: `\btoken=\S+`, Replace: "token=REDACTED"}}})
	if len(g.Redact) != 1 {
		t.Fatalf("New() compiled %d redact rules, want 1", len(g.Redact))
	}
	got := RedactOutput("token=abc123 ok", g.Redact)
	if got != "token=REDACTED ok" {
		t.Errorf("RedactOutput() = %q", got)
	}
}

func TestRedactOutput(t *testing.T) {
	rules, err := CompileRedactionRules([]RedactionRule{
		{Pattern: `\btoken=\S+`, Replace: "token=REDACTED"},
	})
	if err != nil {
		t.Fatalf("CompileRedactionRules() error = %v", err)
	}
	got := RedactOutput("request sent with token=abc123", rules)
	want := "request sent with token=REDACTED"
	if got != want {
		t.Errorf("RedactOutput() = %q, want %q", got, want)
	}
}
