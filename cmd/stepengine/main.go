// Command stepengine is a thin CLI front-end over the execution engine in
// pkg/instance: load a tree document, validate it, and run it to
// completion or drop into the interactive DebugController REPL. The
// TreeBuilder that would normally produce a tree document, the
// multi-worker scheduler, and the HTML reporter remain out of scope per
// spec §1 — this binary only exercises the engine itself, the way the
// teacher's cmd/gert exercises runtime.Engine.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
