package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ormasoftchile/stepengine/pkg/treeschema"
)

var validateCmd = &cobra.Command{
	Use:   "validate [tree.yaml]",
	Short: "Validate a tree document against the schema",
	Args:  cobra.ExactArgs(1),
	RunE:  runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	doc, err := treeschema.Load(args[0])
	if err != nil {
		return err
	}
	sch, err := treeschema.CompileSchema()
	if err != nil {
		return err
	}
	if err := treeschema.Validate(sch, doc); err != nil {
		return err
	}
	total := 0
	for _, b := range doc.Branches {
		total += len(b.Steps)
	}
	fmt.Printf("%s is valid (%d branch(es), %d step(s))\n", args[0], len(doc.Branches), total)
	return nil
}
