// Command ctxrulesctl is a local, offline test bridge for the rule
// engine — it stands in for the host-language bridge the core itself
// stays agnostic to (spec §1's "explicitly out of scope" host bridge),
// giving a scriptable way to load a rule set, evaluate a context, push
// events, and drive the bandit layer without embedding the engine in a
// larger application.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ctxrules/engine/internal/clock"
	"github.com/ctxrules/engine/internal/config"
	"github.com/ctxrules/engine/internal/engine"
	"github.com/ctxrules/engine/internal/rules"
	"github.com/ctxrules/engine/internal/telemetry"
)

var (
	rulesPath  string
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "ctxrulesctl",
	Short: "Local test bridge for the context-aware rule engine",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rulesPath, "rules", "", "path to a rule-set JSON file (§6 schema)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config override file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(loadCmd)
	rootCmd.AddCommand(evaluateCmd)
	rootCmd.AddCommand(pushEventCmd)
	rootCmd.AddCommand(exportBanditCmd)
	rootCmd.AddCommand(importBanditCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger() zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()
}

func loadConfig() (config.Config, error) {
	if configPath == "" {
		return config.FromEnv(), nil
	}
	return config.FromYAML(configPath)
}

// newEngine builds an Engine wired with the rule set at --rules (if
// any), a system clock, the resolved config, and telemetry registered
// against a fresh, process-local Prometheus registry (the CLI is a
// one-shot process; nothing scrapes it, but wiring the same
// engine.WithMetrics path the host would use keeps this a faithful
// exercise of that option).
func newEngine() (*engine.Engine, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	reg := prometheusRegistryOrNil()
	var m *telemetry.Metrics
	if reg != nil {
		m = telemetry.New(reg)
	}

	e := engine.New(clock.NewSystemClock(), cfg, engine.WithLogger(newLogger()), engine.WithMetrics(m))

	if rulesPath != "" {
		rs, err := readRulesFile(rulesPath)
		if err != nil {
			return nil, err
		}
		e.LoadRules(rs)
	}

	return e, nil
}

func readRulesFile(path string) ([]*rules.Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file %s: %w", path, err)
	}
	rs, err := rules.ParseRules(data)
	if err != nil {
		return nil, err
	}
	assignDefaultIDs(rs)
	return rs, nil
}

// assignDefaultIDs fills in missing rule and action ids with random
// uuids. The core itself never does this — §3 requires an explicit,
// caller-supplied id — but hand-authored test fixtures fed to this CLI
// often omit ids, and the CLI is exactly the boundary where that
// convenience belongs.
func assignDefaultIDs(rs []*rules.Rule) {
	for _, r := range rs {
		if r.ID == "" {
			r.ID = newUUID()
		}
		if r.Action.ID == "" {
			r.Action.ID = newUUID()
		}
	}
}

func readContext(raw string) (rules.ContextMap, error) {
	data, err := readInlineOrFile(raw)
	if err != nil {
		return nil, err
	}
	ctx := rules.ContextMap{}
	if len(strings.TrimSpace(string(data))) == 0 {
		return ctx, nil
	}
	if err := json.Unmarshal(data, &ctx); err != nil {
		return nil, fmt.Errorf("parse context: %w", err)
	}
	return ctx, nil
}

// readInlineOrFile treats a leading '@' as a file reference (the same
// convention curl's --data uses), otherwise returns raw as-is.
func readInlineOrFile(raw string) ([]byte, error) {
	if strings.HasPrefix(raw, "@") {
		path := strings.TrimPrefix(raw, "@")
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		return data, nil
	}
	return []byte(raw), nil
}
