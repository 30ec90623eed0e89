package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/restage-dev/restage/internal/engine"
	"github.com/restage-dev/restage/internal/model"
)

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import [files...]",
		Short: "Import OFX/QFX statement files into the staging area",
		Long: `Parse one or more OFX/QFX statement files, classify every transaction
against the ledger and the current staging area, suggest categories from
your match rules, and stage the result for review.

Examples:
  restage import --tenant personal ~/Downloads/chase_jan.qfx
  restage import --tenant personal ~/Downloads/*.qfx`,
		Args: cobra.MinimumNArgs(1),
		RunE: runImport,
	}

	cmd.Flags().StringP("tenant", "t", "", "workspace the batch belongs to (required)")
	cmd.Flags().Bool("json", false, "print the staged batch as JSON")
	_ = cmd.MarkFlagRequired("tenant")

	return cmd
}

func runImport(cmd *cobra.Command, args []string) error {
	tenantID, _ := cmd.Flags().GetString("tenant")
	asJSON, _ := cmd.Flags().GetBool("json")
	ctx := cmd.Context()

	var files []string
	for _, pattern := range args {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return fmt.Errorf("invalid pattern %s: %w", pattern, err)
		}
		if len(matches) == 0 {
			if _, err := os.Stat(pattern); err == nil {
				files = append(files, pattern)
			} else {
				slog.Warn("No files found matching pattern", "pattern", pattern)
			}
		} else {
			files = append(files, matches...)
		}
	}
	if len(files) == 0 {
		return fmt.Errorf("no files found to import")
	}

	store, err := openStorage(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	eng := engine.New(store)

	var results []*engine.ImportResult
	bar := progressbar.Default(int64(len(files)), "importing")

	for _, path := range files {
		f, err := os.Open(path)
		if err != nil {
			slog.Error("Failed to open file", "file", path, "error", err)
			_ = bar.Add(1)
			continue
		}

		result, err := eng.Import(ctx, f, filepath.Base(path), tenantID)
		_ = f.Close()
		_ = bar.Add(1)
		if err != nil {
			return fmt.Errorf("import of %s failed: %w", path, err)
		}

		results = append(results, result)
	}
	_ = bar.Finish()

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	for _, result := range results {
		printImportSummary(result)
	}
	return nil
}

func printImportSummary(result *engine.ImportResult) {
	if result.BatchID == "" {
		fmt.Println("\nNothing staged.")
	} else {
		fmt.Printf("\nBatch %s staged (%d candidates):\n", result.BatchID, len(result.Staged))
	}

	counts := map[model.DuplicateStatus]int{}
	for _, s := range result.Staged {
		counts[s.DuplicateStatus]++
	}
	fmt.Printf("  new: %d  exact duplicates: %d  potential duplicates: %d\n",
		counts[model.StatusNew],
		counts[model.StatusExactDuplicate],
		counts[model.StatusPotentialDuplicate])

	if result.Skipped > 0 {
		fmt.Printf("  skipped (no bank identifier): %d\n", result.Skipped)
	}
	if result.RuleTimeouts > 0 {
		fmt.Printf("  rule evaluations over budget: %d\n", result.RuleTimeouts)
	}
	for _, pe := range result.ParseErrors {
		fmt.Printf("  parse error: %s\n", pe.Error())
	}
}
