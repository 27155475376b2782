// Package treeschema loads and validates the YAML tree document format
// TreeBuilder (out of scope per spec §1) would emit, and converts it into
// the in-memory tree.SliceTree the engine consumes. Grounded on the
// teacher's own runbook YAML shape (pkg/schema/schema.go) and its
// load-then-validate pipeline (pkg/schema/validate.go), repointed from the
// incident-runbook domain onto the Step/Branch model of spec §3.
package treeschema

import (
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/ormasoftchile/stepengine/pkg/tree"
)

// Document is the top-level YAML tree document: zero or more function
// declarations, followed by the branches TreeBuilder would have produced
// by walking the indented source tree.
type Document struct {
	APIVersion string             `yaml:"apiVersion" json:"apiVersion"`
	Functions  []FunctionDecl     `yaml:"functions,omitempty" json:"functions,omitempty"`
	Branches   []BranchDoc        `yaml:"branches" json:"branches"`
}

// FunctionDecl is a function declaration a function-call step resolves
// against (spec §3's originalStepInTree/functionDeclarationText).
type FunctionDecl struct {
	Name       string `yaml:"name" json:"name"`
	Filename   string `yaml:"filename,omitempty" json:"filename,omitempty"`
	LineNumber int    `yaml:"lineNumber,omitempty" json:"lineNumber,omitempty"`
	CodeBlock  string `yaml:"codeBlock,omitempty" json:"codeBlock,omitempty"`
}

// BranchDoc is one linear branch plus its four optional hook sequences.
type BranchDoc struct {
	BeforeEveryBranch []StepDoc `yaml:"beforeEveryBranch,omitempty" json:"beforeEveryBranch,omitempty"`
	AfterEveryBranch  []StepDoc `yaml:"afterEveryBranch,omitempty" json:"afterEveryBranch,omitempty"`
	BeforeEveryStep   []StepDoc `yaml:"beforeEveryStep,omitempty" json:"beforeEveryStep,omitempty"`
	AfterEveryStep    []StepDoc `yaml:"afterEveryStep,omitempty" json:"afterEveryStep,omitempty"`
	Steps             []StepDoc `yaml:"steps" json:"steps"`
}

// StepDoc is one step in the document, mirroring spec §3's Step fields that
// a TreeBuilder would have populated ahead of engine execution.
type StepDoc struct {
	Filename       string        `yaml:"filename,omitempty" json:"filename,omitempty"`
	LineNumber     int           `yaml:"lineNumber,omitempty" json:"lineNumber,omitempty"`
	Text           string        `yaml:"text" json:"text"`
	BranchIndents  int           `yaml:"branchIndents" json:"branchIndents"`
	IsExpectedFail bool          `yaml:"isExpectedFail,omitempty" json:"isExpectedFail,omitempty"`
	IsBeforeDebug  bool          `yaml:"isBeforeDebug,omitempty" json:"isBeforeDebug,omitempty"`
	IsAfterDebug   bool          `yaml:"isAfterDebug,omitempty" json:"isAfterDebug,omitempty"`
	IsPackaged     bool          `yaml:"isPackaged,omitempty" json:"isPackaged,omitempty"`
	CodeBlock      string        `yaml:"codeBlock,omitempty" json:"codeBlock,omitempty"`
	FunctionCall   string        `yaml:"functionCall,omitempty" json:"functionCall,omitempty"`
	VarsBeingSet   []VarBindDoc  `yaml:"varsBeingSet,omitempty" json:"varsBeingSet,omitempty"`
}

// VarBindDoc mirrors tree.VarBinding.
type VarBindDoc struct {
	Name    string `yaml:"name" json:"name"`
	Value   string `yaml:"value" json:"value"`
	IsLocal bool   `yaml:"isLocal,omitempty" json:"isLocal,omitempty"`
}

// Load reads and strictly decodes a Document from path.
func Load(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open tree document: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// Decode strictly decodes a Document from r, rejecting unknown fields the
// way the teacher's LoadFile does for runbooks (pkg/schema/schema.go).
func Decode(r io.Reader) (*Document, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode tree document: %w", err)
	}
	return &doc, nil
}

// Build converts a validated Document into a tree.SliceTree, resolving
// function-call steps against decl-derived declaration steps and assigning
// each branch a correlation UUID (SPEC_FULL.md §11).
func Build(doc *Document) (*tree.SliceTree, error) {
	decls := make(map[string]*tree.Step, len(doc.Functions))
	for _, fn := range doc.Functions {
		decls[fn.Name] = &tree.Step{
			Filename:                fn.Filename,
			LineNumber:              fn.LineNumber,
			Text:                    fn.Name,
			FunctionDeclarationText: fn.Name,
			CodeBlock:               fn.CodeBlock,
			HasCodeBlock:            fn.CodeBlock != "",
		}
	}

	branches := make([]*tree.Branch, 0, len(doc.Branches))
	for _, bd := range doc.Branches {
		b := &tree.Branch{ID: uuid.NewString()}
		var err error
		if b.BeforeEveryBranch, err = buildSteps(bd.BeforeEveryBranch, decls); err != nil {
			return nil, err
		}
		if b.AfterEveryBranch, err = buildSteps(bd.AfterEveryBranch, decls); err != nil {
			return nil, err
		}
		if b.BeforeEveryStep, err = buildSteps(bd.BeforeEveryStep, decls); err != nil {
			return nil, err
		}
		if b.AfterEveryStep, err = buildSteps(bd.AfterEveryStep, decls); err != nil {
			return nil, err
		}
		if b.Steps, err = buildSteps(bd.Steps, decls); err != nil {
			return nil, err
		}
		branches = append(branches, b)
	}
	return tree.NewSliceTree(branches), nil
}

func buildSteps(docs []StepDoc, decls map[string]*tree.Step) ([]*tree.Step, error) {
	out := make([]*tree.Step, 0, len(docs))
	for _, sd := range docs {
		s := &tree.Step{
			Filename:       sd.Filename,
			LineNumber:     sd.LineNumber,
			Line:           sd.Text,
			Text:           sd.Text,
			BranchIndents:  sd.BranchIndents,
			IsExpectedFail: sd.IsExpectedFail,
			IsBeforeDebug:  sd.IsBeforeDebug,
			IsAfterDebug:   sd.IsAfterDebug,
			IsPackaged:     sd.IsPackaged,
			CodeBlock:      sd.CodeBlock,
			HasCodeBlock:   sd.CodeBlock != "",
		}
		for _, vb := range sd.VarsBeingSet {
			s.VarsBeingSet = append(s.VarsBeingSet, tree.VarBinding{
				Name: vb.Name, Value: vb.Value, IsLocal: vb.IsLocal,
			})
		}
		if sd.FunctionCall != "" {
			decl, ok := decls[sd.FunctionCall]
			if !ok {
				return nil, fmt.Errorf("step %q at %s:%d references undeclared function %q", sd.Text, sd.Filename, sd.LineNumber, sd.FunctionCall)
			}
			s.IsFunctionCall = true
			s.FunctionDeclarationText = decl.FunctionDeclarationText
			s.OriginalStepInTree = decl
			// The call site runs the declaration's code block; its own
			// codeBlock field is normally absent from the YAML document.
			s.CodeBlock = decl.CodeBlock
			s.HasCodeBlock = decl.HasCodeBlock
		}
		out = append(out, s)
	}
	return out, nil
}
