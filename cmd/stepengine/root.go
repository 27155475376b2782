package main

import "github.com/spf13/cobra"

var rootCmd = &cobra.Command{
	Use:   "stepengine",
	Short: "Execution engine for natural-language test trees",
	Long:  "stepengine runs a branchified test tree: one RunInstance per invocation, with pause/resume/step/skip/inject debugger support.",
}

func init() {
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(debugCmd)
}
