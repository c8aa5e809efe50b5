package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Load a rule set and report how it compiled",
	Long: `Parses --rules against the §6 wire schema, compiles it into a
decision tree, and prints the resulting rule count and re-exported JSON
(useful for confirming defaults like priority=1.0 were applied).`,
	RunE: runLoad,
}

func runLoad(cmd *cobra.Command, args []string) error {
	if rulesPath == "" {
		return fmt.Errorf("--rules is required")
	}
	e, err := newEngine()
	if err != nil {
		return err
	}

	fmt.Printf("loaded %d rule(s)\n", e.RuleCount())

	data, err := e.ExportRulesJSON()
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
