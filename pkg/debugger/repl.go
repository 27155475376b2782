package debugger

import (
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/chzyer/readline"
	"gopkg.in/yaml.v3"

	"github.com/ormasoftchile/stepengine/pkg/tree"
)

// injectAssignment matches the var-setting shape spec §6's scenario S6
// exercises: {{name}}='value' or {name}="value".
var injectAssignment = regexp.MustCompile(`^\{\{?\s*([^{}]+?)\s*\}?\}\s*=\s*(.+)$`)

// REPL is the interactive terminal front-end over a Controller, grounded on
// the teacher's own readline-based debugger loop (pkg/debugger/debugger.go).
// It supports the five DebugController operations plus the read-only
// introspection extras named in SPEC_FULL.md §12 (`dump`, `print vars`).
type REPL struct {
	ctrl *Controller
	out  io.Writer
}

// NewREPL wraps ctrl with a terminal command loop.
func NewREPL(ctrl *Controller, out io.Writer) *REPL {
	return &REPL{ctrl: ctrl, out: out}
}

var completer = readline.NewPrefixCompleter(
	readline.PcItem("next"),
	readline.PcItem("skip"),
	readline.PcItem("last"),
	readline.PcItem("inject"),
	readline.PcItem("dump"),
	readline.PcItem("print",
		readline.PcItem("vars"),
	),
	readline.PcItem("stop"),
	readline.PcItem("help"),
	readline.PcItem("quit"),
)

// Run drives the REPL until the branch completes, the instance stops, or the
// user quits.
func (d *REPL) Run() error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:       d.prompt(),
		AutoComplete: completer,
	})
	if err != nil {
		return fmt.Errorf("debugger: start readline: %w", err)
	}
	defer rl.Close()

	for {
		rl.SetPrompt(d.prompt())
		line, err := rl.Readline()
		if err != nil { // io.EOF or readline.ErrInterrupt
			return nil
		}
		done, err := d.dispatch(strings.TrimSpace(line))
		if err != nil {
			fmt.Fprintf(d.out, "error: %v\n", err)
			continue
		}
		if done {
			return nil
		}
	}
}

func (d *REPL) prompt() string {
	if d.ctrl.Control.IsStopped() {
		return "stepengine[stopped]> "
	}
	return "stepengine[paused]> "
}

func (d *REPL) dispatch(line string) (done bool, err error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}
	switch fields[0] {
	case "next":
		complete := d.ctrl.RunOneStep()
		if complete {
			fmt.Fprintln(d.out, "branch complete")
			return true, nil
		}
		return false, nil
	case "skip":
		complete := d.ctrl.SkipOneStep()
		if complete {
			fmt.Fprintln(d.out, "branch complete")
			return true, nil
		}
		return false, nil
	case "last":
		d.ctrl.RunLastStep()
		return false, nil
	case "inject":
		text := strings.TrimSpace(strings.TrimPrefix(line, fields[0]))
		if text == "" {
			return false, fmt.Errorf("usage: inject <step text>")
		}
		branch := d.ctrl.InjectStep(buildInjectedStep(text, d.ctrl.Branch))
		if branch == nil {
			fmt.Fprintln(d.out, "inject: branchify produced no steps")
			return false, nil
		}
		fmt.Fprintf(d.out, "injected %d step(s)\n", len(branch.Steps))
		return false, nil
	case "dump":
		d.dumpYAML()
		return false, nil
	case "print":
		if len(fields) >= 2 && fields[1] == "vars" {
			d.printVars()
		}
		return false, nil
	case "stop":
		d.ctrl.Stop()
		return true, nil
	case "help":
		fmt.Fprintln(d.out, "commands: next, skip, last, inject <text>, dump, print vars, stop, quit")
		return false, nil
	case "quit":
		return true, nil
	default:
		return false, fmt.Errorf("unknown command %q (try \"help\")", fields[0])
	}
}

// dumpYAML writes a YAML snapshot of stepsRan to the REPL's output — the
// read-only introspection extra SPEC_FULL.md §12 adds, grounded on the
// teacher's handleDump.
func (d *REPL) dumpYAML() {
	type stepDump struct {
		Text     string `yaml:"text"`
		Passed   bool   `yaml:"passed"`
		Failed   bool   `yaml:"failed"`
		Skipped  bool   `yaml:"skipped"`
	}
	var dump []stepDump
	for _, s := range *d.ctrl.Step.StepsRan {
		dump = append(dump, stepDump{Text: s.Text, Passed: s.IsPassed, Failed: s.IsFailed, Skipped: s.IsSkipped})
	}
	out, err := yaml.Marshal(dump)
	if err != nil {
		fmt.Fprintf(d.out, "error: %v\n", err)
		return
	}
	d.out.Write(out)
}

// buildInjectedStep parses the REPL's `inject <text>` argument into a Step
// at the context branch's current indentation, recognizing the
// {{name}}='value' assignment shape (spec §4.G injectStep, S6). Anything
// else is injected as a plain no-assignment step with no code block — the
// REPL is a debugging convenience, not a full TreeBuilder front-end.
func buildInjectedStep(text string, context *tree.Branch) *tree.Step {
	indent := 0
	if context != nil && len(context.Steps) > 0 {
		indent = context.Steps[len(context.Steps)-1].BranchIndents
	}
	s := &tree.Step{Text: text, Line: text, BranchIndents: indent}
	if m := injectAssignment.FindStringSubmatch(text); m != nil {
		// Injected steps run inside the paused instance's current local
		// scope (spec §4.G injectStep), so the assignment targets local —
		// there is no TreeBuilder here to have decided otherwise.
		value := strings.Trim(strings.TrimSpace(m[2]), `'"`)
		s.VarsBeingSet = append(s.VarsBeingSet, tree.VarBinding{
			Name: strings.TrimSpace(m[1]), Value: value, IsLocal: true,
		})
	}
	return s
}

// printVars prints every currently-set global and local variable.
func (d *REPL) printVars() {
	env := d.ctrl.Step.Env
	fmt.Fprintln(d.out, "global:")
	for name, value := range env.GlobalEntries() {
		fmt.Fprintf(d.out, "  %s = %v\n", name, value)
	}
	fmt.Fprintln(d.out, "local:")
	for name, value := range env.LocalEntries() {
		fmt.Fprintf(d.out, "  %s = %v\n", name, value)
	}
}
