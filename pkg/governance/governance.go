// Package governance gates which external packages imp() may load and which
// additional identifier names are kept out of the ExprEvaluator header,
// beyond the static whitelist/blacklist in pkg/evaluator. This is the name
// filtering spec.md's Non-goals call out as the engine's only sandboxing
// layer ("no sandboxing of user expression blocks beyond name filtering").
// Adapted from the teacher's command/env-var allowlist engine
// (pkg/governance/allowlist.go), repointed from shelling out to commands
// toward gating imp() package names.
package governance

import (
	"fmt"
	"path/filepath"
)

// Policy configures an Engine. A nil Policy is permissive.
type Policy struct {
	AllowedPackages []string
	DeniedPackages  []string
	DenyIdentifiers []string       // glob patterns; matched names are hidden from the ExprEvaluator header
	Redact          []RedactionRule
}

// Engine evaluates a Policy's allow/deny rules.
type Engine struct {
	AllowedPackages []string
	DeniedPackages  []string
	DenyIdentifiers []string
	Redact          []*CompiledRedaction
}

// New builds an Engine from policy. A nil policy yields a permissive engine.
// A malformed Redact pattern is dropped rather than failing construction;
// callers that need to surface a compile error should call
// CompileRedactionRules themselves.
func New(policy *Policy) *Engine {
	if policy == nil {
		return &Engine{}
	}
	compiled, _ := CompileRedactionRules(policy.Redact)
	return &Engine{
		AllowedPackages: policy.AllowedPackages,
		DeniedPackages:  policy.DeniedPackages,
		DenyIdentifiers: policy.DenyIdentifiers,
		Redact:          compiled,
	}
}

// CheckPackage validates a package name against the allow/deny lists before
// imp() is permitted to load it. Deny takes precedence over allow.
func (e *Engine) CheckPackage(name string) error {
	for _, denied := range e.DeniedPackages {
		if name == denied {
			return fmt.Errorf("package %q is denied by governance policy", name)
		}
	}
	if len(e.AllowedPackages) > 0 {
		for _, allowed := range e.AllowedPackages {
			if name == allowed {
				return nil
			}
		}
		return fmt.Errorf("package %q is not in the governance allowlist", name)
	}
	return nil
}

// CheckIdentifier validates a variable display name against DenyIdentifiers
// glob patterns, used to keep sensitive-looking names (e.g. "SECRET_*") out
// of the ExprEvaluator header even when they otherwise pass the static
// whitelist regex.
func (e *Engine) CheckIdentifier(name string) error {
	for _, pattern := range e.DenyIdentifiers {
		matched, err := filepath.Match(pattern, name)
		if err != nil {
			return fmt.Errorf("invalid identifier deny pattern %q: %w", pattern, err)
		}
		if matched {
			return fmt.Errorf("identifier %q matches denied pattern %q", name, pattern)
		}
	}
	return nil
}

// FilterHeader removes header entries whose names match DenyIdentifiers,
// returning the filtered map and the names that were removed.
func (e *Engine) FilterHeader(header map[string]any) (filtered map[string]any, blocked []string) {
	if len(e.DenyIdentifiers) == 0 {
		return header, nil
	}
	filtered = make(map[string]any, len(header))
	for name, value := range header {
		if err := e.CheckIdentifier(name); err != nil {
			blocked = append(blocked, name)
			continue
		}
		filtered[name] = value
	}
	return filtered, blocked
}
