package main

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ctxrules/engine/internal/rules"
)

var (
	evalCtxFlag    string
	evalEventsFlag string
	evalMaxResults int
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Evaluate a context snapshot against a loaded rule set",
	Long: `Loads --rules, optionally pushes a batch of events from
--events (a JSON array of {"context":{},"timestampMs":n,"eventType":s}
objects, pushed in order before evaluation — this is how to exercise a
"within"/"recent" temporal rule in one shot), then evaluates --ctx and
prints the ranked MatchResult JSON (§6).`,
	RunE: runEvaluate,
}

func init() {
	evaluateCmd.Flags().StringVar(&evalCtxFlag, "ctx", "{}", `context JSON, or "@file.json"`)
	evaluateCmd.Flags().StringVar(&evalEventsFlag, "events", "", `optional events JSON array, or "@file.json"`)
	evaluateCmd.Flags().IntVar(&evalMaxResults, "max-results", 0, "maximum results to return (0 uses the engine default)")
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	if rulesPath == "" {
		return fmt.Errorf("--rules is required")
	}
	e, err := newEngine()
	if err != nil {
		return err
	}

	if evalEventsFlag != "" {
		data, err := readInlineOrFile(evalEventsFlag)
		if err != nil {
			return err
		}
		var events []rules.ContextEvent
		if err := json.Unmarshal(data, &events); err != nil {
			return fmt.Errorf("parse events: %w", err)
		}
		for _, ev := range events {
			e.PushEvent(ev)
		}
	}

	ctx, err := readContext(evalCtxFlag)
	if err != nil {
		return err
	}

	results := e.Evaluate(ctx, evalMaxResults)
	data, err := rules.MarshalResults(results)
	if err != nil {
		return err
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, data, "", "  "); err != nil {
		return fmt.Errorf("indent output: %w", err)
	}
	fmt.Println(pretty.String())
	return nil
}
