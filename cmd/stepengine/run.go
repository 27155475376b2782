package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ormasoftchile/stepengine/pkg/console"
	"github.com/ormasoftchile/stepengine/pkg/instance"
	"github.com/ormasoftchile/stepengine/pkg/treeschema"
	"github.com/ormasoftchile/stepengine/pkg/valuestore"
)

var (
	runPauseOnFail bool
	runVars        []string
	runQuiet       bool
	runSnapshot    string
)

var runCmd = &cobra.Command{
	Use:   "run [tree.yaml]",
	Short: "Run a tree document to completion",
	Args:  cobra.ExactArgs(1),
	RunE:  runRun,
}

func init() {
	runCmd.Flags().BoolVar(&runPauseOnFail, "pause-on-fail", false, "pause instead of finishing the branch when a step fails not-as-expected")
	runCmd.Flags().StringArrayVar(&runVars, "var", nil, "seed a global variable as name=value (repeatable)")
	runCmd.Flags().BoolVar(&runQuiet, "quiet", false, "suppress the §6 console output contract")
	runCmd.Flags().StringVar(&runSnapshot, "snapshot", "", "write a YAML manifest of the final instance state to this path")
}

func runRun(cmd *cobra.Command, args []string) error {
	doc, err := loadAndValidate(args[0])
	if err != nil {
		return err
	}
	st, err := treeschema.Build(doc)
	if err != nil {
		return fmt.Errorf("build tree: %w", err)
	}

	globalInit := valuestore.NewScope()
	for _, v := range runVars {
		name, val, ok := strings.Cut(v, "=")
		if !ok {
			return fmt.Errorf("--var %q: expected name=value", v)
		}
		globalInit.Set(name, val)
	}

	var cons *console.Console
	if !runQuiet {
		cons = console.New(os.Stdout)
	}

	inst := instance.New(instance.Config{
		Tree:    st,
		Shared:  instance.NewShared(globalInit, runPauseOnFail),
		Console: cons,
	})
	inst.Run()

	if runSnapshot != "" {
		f, err := os.Create(runSnapshot)
		if err != nil {
			return fmt.Errorf("create snapshot file: %w", err)
		}
		defer f.Close()
		if err := inst.WriteSnapshot(f); err != nil {
			return fmt.Errorf("write snapshot: %w", err)
		}
	}

	if inst.Control.IsPaused() {
		return fmt.Errorf("instance paused mid-run (isBeforeDebug/isAfterDebug step or --pause-on-fail); use \"stepengine debug\" to continue interactively")
	}

	for _, b := range st.Branches() {
		if b.IsFailed {
			return fmt.Errorf("run failed")
		}
	}
	return nil
}

func loadAndValidate(path string) (*treeschema.Document, error) {
	doc, err := treeschema.Load(path)
	if err != nil {
		return nil, err
	}
	sch, err := treeschema.CompileSchema()
	if err != nil {
		return nil, err
	}
	if err := treeschema.Validate(sch, doc); err != nil {
		return nil, err
	}
	return doc, nil
}
