// Package console implements the side-effecting output contract of spec §6:
// Start:/End: banners per step, colored pass/fail/unexpected, elapsed
// seconds, error location and stack, and a branch-complete summary. Colors
// follow the teacher's lipgloss usage (pkg/tui/styles.go,
// pkg/ecosystem/tui/model.go) rather than raw ANSI escapes.
package console

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/ormasoftchile/stepengine/pkg/stepcore"
	"github.com/ormasoftchile/stepengine/pkg/tree"
)

var (
	greenStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("40"))
	redStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	boldRedStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	locationStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
)

// Console writes the §6 output contract to w. A Console built by NewNop
// discards output entirely, matching the `consoleOutput=false` Runner mode;
// a nil *Console must not have its methods called.
type Console struct {
	w      io.Writer
	active bool
}

// New returns a Console that writes to w.
func New(w io.Writer) *Console {
	return &Console{w: w, active: true}
}

// NewNop returns a Console that discards all output, used when the Runner's
// consoleOutput flag is false.
func NewNop() *Console {
	return &Console{active: false}
}

// StepStart prints the "Start:" banner for step.
func (c *Console) StepStart(step *tree.Step) {
	if !c.active {
		return
	}
	loc := ""
	if step.Filename != "" {
		loc = locationStyle.Render(fmt.Sprintf(" [%s:%d]", step.Filename, step.LineNumber))
	}
	fmt.Fprintf(c.w, "Start: %s%s\n", strings.TrimSpace(step.Text), loc)
}

// statusLabel returns one of the four banner suffixes spec §6 names.
func statusLabel(isPassed, asExpected bool) string {
	switch {
	case isPassed && asExpected:
		return "passed"
	case isPassed && !asExpected:
		return "passed not as expected"
	case !isPassed && asExpected:
		return "failed as expected"
	default:
		return "failed"
	}
}

// StepEnd prints the "End:" banner for a completed step.
func (c *Console) StepEnd(step *tree.Step) {
	if !c.active {
		return
	}
	label := statusLabel(step.IsPassed, step.AsExpected)
	style := redStyle
	if step.AsExpected {
		style = greenStyle
	}
	text := style.Render(strings.TrimSpace(step.Text))
	fmt.Fprintf(c.w, "End: %s %s (%.3fs)\n", text, label, step.Elapsed)

	if step.Error != nil {
		c.printError(step.Text, step.Error)
	}
}

func (c *Console) printError(stepText string, err *stepcore.Error) {
	fmt.Fprintf(c.w, "%s\n", boldRedStyle.Render(strings.TrimSpace(stepText)))
	fmt.Fprintf(c.w, "%s\n", dimStyle.Render(fmt.Sprintf("  at %s:%d", err.Filename, err.Line)))
	if err.Stack != "" {
		fmt.Fprintf(c.w, "%s\n", dimStyle.Render("  "+err.Stack))
	}
}

// BranchComplete prints the branch-completion summary of spec §6.
func (c *Console) BranchComplete(branch *tree.Branch) {
	if !c.active {
		return
	}
	fmt.Fprintln(c.w, "Branch complete")
	if branch.Error != nil {
		fmt.Fprintln(c.w, boldRedStyle.Render("Errors occurred in branch"))
		fmt.Fprintf(c.w, "%s\n", dimStyle.Render(fmt.Sprintf("  at %s:%d", branch.Error.Filename, branch.Error.Line)))
		if branch.Error.Stack != "" {
			fmt.Fprintf(c.w, "%s\n", dimStyle.Render("  "+branch.Error.Stack))
		}
	}
}
