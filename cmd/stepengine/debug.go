package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ormasoftchile/stepengine/pkg/console"
	"github.com/ormasoftchile/stepengine/pkg/debugger"
	"github.com/ormasoftchile/stepengine/pkg/instance"
	"github.com/ormasoftchile/stepengine/pkg/treeschema"
	"github.com/ormasoftchile/stepengine/pkg/valuestore"
)

var debugPauseOnFail bool

var debugCmd = &cobra.Command{
	Use:   "debug [tree.yaml]",
	Short: "Drop into the interactive DebugController REPL for a single-branch tree",
	Args:  cobra.ExactArgs(1),
	RunE:  runDebug,
}

func init() {
	debugCmd.Flags().BoolVar(&debugPauseOnFail, "pause-on-fail", true, "pause on a not-as-expected failure instead of finishing the branch")
}

func runDebug(cmd *cobra.Command, args []string) error {
	doc, err := loadAndValidate(args[0])
	if err != nil {
		return err
	}
	st, err := treeschema.Build(doc)
	if err != nil {
		return fmt.Errorf("build tree: %w", err)
	}
	// Pause is only legal over a single-branch tree (spec §4.F / §8
	// invariant 6); the debug command exists precisely for that case.
	if len(st.Branches()) != 1 {
		return fmt.Errorf("debug requires a tree with exactly one branch, got %d", len(st.Branches()))
	}

	inst := instance.New(instance.Config{
		Tree:    st,
		Shared:  instance.NewShared(valuestore.NewScope(), debugPauseOnFail),
		Console: console.New(os.Stdout),
	})

	if !inst.Branch.PrimeAndPause() {
		return fmt.Errorf("tree has no runnable branch")
	}

	repl := debugger.NewREPL(inst.DebugController(), os.Stdout)
	if err := repl.Run(); err != nil {
		return err
	}

	branch := inst.Branch.Current()
	if branch != nil && branch.IsFailed {
		return fmt.Errorf("branch failed")
	}
	return nil
}
