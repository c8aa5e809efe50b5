package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ctxrules/engine/internal/engine"
)

var (
	banditOutFlag        string
	banditInFlag         string
	banditCandidatesFlag string
	banditCtxFlag        string
	banditContextual     bool
)

var exportBanditCmd = &cobra.Command{
	Use:   "export-bandit",
	Short: "Select an action and print the resulting bandit state",
	Long: `Loads --rules if given (optional here; the bandit layer is
independent of the rule set), selects an action from
--candidates (comma-separated action ids) via epsilon-greedy, or via
LinUCB against --ctx when --contextual is set, then exports the
updated bandit snapshot as JSON to stdout or --out.`,
	RunE: runExportBandit,
}

var importBanditCmd = &cobra.Command{
	Use:   "import-bandit",
	Short: "Restore a bandit snapshot and select an action from it",
	Long: `Loads a snapshot previously produced by export-bandit from
--in, restores it into a fresh engine, then selects an action from
--candidates the same way export-bandit does — demonstrating that
arm statistics survive a save/restore round trip across process
invocations.`,
	RunE: runImportBandit,
}

func init() {
	exportBanditCmd.Flags().StringVar(&banditOutFlag, "out", "", "write the snapshot here instead of stdout")
	exportBanditCmd.Flags().StringVar(&banditCandidatesFlag, "candidates", "", "comma-separated candidate action ids (required)")
	exportBanditCmd.Flags().StringVar(&banditCtxFlag, "ctx", "{}", `context JSON, or "@file.json" (used only with --contextual)`)
	exportBanditCmd.Flags().BoolVar(&banditContextual, "contextual", false, "select via LinUCB instead of epsilon-greedy")

	importBanditCmd.Flags().StringVar(&banditInFlag, "in", "", "path to a snapshot produced by export-bandit (required)")
	importBanditCmd.Flags().StringVar(&banditCandidatesFlag, "candidates", "", "comma-separated candidate action ids (required)")
	importBanditCmd.Flags().StringVar(&banditCtxFlag, "ctx", "{}", `context JSON, or "@file.json" (used only with --contextual)`)
	importBanditCmd.Flags().BoolVar(&banditContextual, "contextual", false, "select via LinUCB instead of epsilon-greedy")
}

func runExportBandit(cmd *cobra.Command, args []string) error {
	candidates, err := splitCandidates(banditCandidatesFlag)
	if err != nil {
		return err
	}
	e, err := newEngine()
	if err != nil {
		return err
	}

	idx, err := selectCandidate(e, candidates)
	if err != nil {
		return err
	}
	fmt.Printf("selected %s\n", candidates[idx])

	data, err := e.ExportBandit()
	if err != nil {
		return err
	}
	return writeBanditSnapshot(data)
}

func runImportBandit(cmd *cobra.Command, args []string) error {
	if banditInFlag == "" {
		return fmt.Errorf("--in is required")
	}
	candidates, err := splitCandidates(banditCandidatesFlag)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(banditInFlag)
	if err != nil {
		return fmt.Errorf("read %s: %w", banditInFlag, err)
	}

	e, err := newEngine()
	if err != nil {
		return err
	}
	if err := e.ImportBandit(data); err != nil {
		return err
	}

	idx, err := selectCandidate(e, candidates)
	if err != nil {
		return err
	}
	fmt.Printf("selected %s (restored from %s)\n", candidates[idx], banditInFlag)
	return nil
}

func splitCandidates(raw string) ([]string, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("--candidates is required")
	}
	parts := strings.Split(raw, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts, nil
}

func selectCandidate(e *engine.Engine, candidates []string) (int, error) {
	if banditContextual {
		ctx, err := readContext(banditCtxFlag)
		if err != nil {
			return -1, err
		}
		idx := e.SelectActionContextual(candidates, ctx)
		if idx < 0 {
			return -1, fmt.Errorf("no candidate selected")
		}
		return idx, nil
	}
	idx := e.SelectAction(candidates)
	if idx < 0 {
		return -1, fmt.Errorf("no candidate selected")
	}
	return idx, nil
}

func writeBanditSnapshot(data []byte) error {
	if banditOutFlag == "" {
		fmt.Println(string(data))
		return nil
	}
	if err := os.WriteFile(banditOutFlag, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", banditOutFlag, err)
	}
	fmt.Printf("wrote bandit snapshot to %s\n", banditOutFlag)
	return nil
}
