package instance

import (
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ormasoftchile/stepengine/pkg/tree"
)

// Manifest is a point-in-time dump of one Instance's Environment and
// stepsRan summary, grounded on the teacher's RunState/SaveSnapshot
// (pkg/runtime/snapshot.go) but narrowed to what SPEC_FULL.md §12 allows:
// a caller-owned inspection artifact, not a resumable checkpoint. Resuming
// execution from a Manifest is explicitly NOT implemented — spec.md's
// Non-goals forbid persistence of intermediate state for resumption.
type Manifest struct {
	InstanceID string         `yaml:"instanceId"`
	DumpedAt   time.Time      `yaml:"dumpedAt"`
	Persistent map[string]any `yaml:"persistent"`
	Global     map[string]any `yaml:"global"`
	Local      map[string]any `yaml:"local"`
	StepsRan   []StepSummary  `yaml:"stepsRan"`
}

// StepSummary is one stepsRan entry's externally-visible shape.
type StepSummary struct {
	Filename   string `yaml:"filename,omitempty"`
	LineNumber int    `yaml:"lineNumber,omitempty"`
	Text       string `yaml:"text"`
	Outcome    string `yaml:"outcome"`
	Elapsed    float64 `yaml:"elapsed"`
}

// Snapshot builds a Manifest of i's current state.
func (i *Instance) Snapshot() *Manifest {
	m := &Manifest{
		InstanceID: i.ID,
		DumpedAt:   time.Now(),
		Persistent: i.Env.PersistentEntries(),
		Global:     i.Env.GlobalEntries(),
		Local:      i.Env.LocalEntries(),
	}
	for _, s := range i.stepsRan {
		m.StepsRan = append(m.StepsRan, StepSummary{
			Filename:   s.Filename,
			LineNumber: s.LineNumber,
			Text:       s.Text,
			Outcome:    outcomeOf(s),
			Elapsed:    s.Elapsed,
		})
	}
	return m
}

func outcomeOf(s *tree.Step) string {
	switch {
	case s.IsPassed:
		return "passed"
	case s.IsFailed:
		return "failed"
	case s.IsSkipped:
		return "skipped"
	default:
		return "incomplete"
	}
}

// WriteSnapshot YAML-encodes i's current Manifest to w (SPEC_FULL.md §12).
func (i *Instance) WriteSnapshot(w io.Writer) error {
	data, err := yaml.Marshal(i.Snapshot())
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	_, err = w.Write(data)
	return err
}
