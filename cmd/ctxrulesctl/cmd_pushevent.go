package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ctxrules/engine/internal/rules"
)

var pushEventFlag string

var pushEventCmd = &cobra.Command{
	Use:   "push-event",
	Short: "Push one or more events into a fresh event buffer",
	Long: `Pushes --event — a single {"context":{},"timestampMs":n,
"eventType":s} object, or a JSON array of them — into the engine's
event buffer. The core has no persistence layer, so this only
demonstrates push/expiry semantics within one process; to exercise a
"recent"/"within" rule against pushed events, use "evaluate --events"
instead, which pushes then evaluates in a single invocation.`,
	RunE: runPushEvent,
}

func init() {
	pushEventCmd.Flags().StringVar(&pushEventFlag, "event", "", `event JSON (object or array), or "@file.json" (required)`)
}

func runPushEvent(cmd *cobra.Command, args []string) error {
	if pushEventFlag == "" {
		return fmt.Errorf("--event is required")
	}
	e, err := newEngine()
	if err != nil {
		return err
	}

	data, err := readInlineOrFile(pushEventFlag)
	if err != nil {
		return err
	}

	events, err := parseEventOrEvents(data)
	if err != nil {
		return err
	}
	for _, ev := range events {
		e.PushEvent(ev)
		fmt.Printf("pushed event %q @ %d\n", ev.EventType, ev.TimestampMs)
	}
	return nil
}

func parseEventOrEvents(data []byte) ([]rules.ContextEvent, error) {
	var batch []rules.ContextEvent
	if err := json.Unmarshal(data, &batch); err == nil {
		return batch, nil
	}
	var single rules.ContextEvent
	if err := json.Unmarshal(data, &single); err != nil {
		return nil, fmt.Errorf("parse event: %w", err)
	}
	return []rules.ContextEvent{single}, nil
}
