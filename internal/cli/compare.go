package cli

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/finquest-app/finquest/internal/app/executor"
)

func init() {
	rootCmd.AddCommand(compareCmd)
}

// ─── compare ────────────────────────────────────────────────────────────────

var compareCmd = &cobra.Command{
	Use:   "compare QUEST_ID PLAN_FILE...",
	Short: "Replay several plans of one quest side by side",
	Long: `Replay every plan file against QUEST_ID and print one row per plan.
The quest field inside the plan files is ignored. Plans that end in the
same position share a fingerprint.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runCompare,
}

func runCompare(cmd *cobra.Command, args []string) error {
	d, err := openDaemon(cmd)
	if err != nil {
		return err
	}
	defer d.Close()

	desc, err := d.Catalog.Lookup(args[0])
	if err != nil {
		return err
	}

	var plans []executor.Plan
	for _, path := range args[1:] {
		p, err := readPlan(cmd, path)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		batches, err := d.Catalog.ResolveBatches(p.Batches)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		plans = append(plans, executor.Plan{Name: name, Batches: batches})
	}

	results, err := d.Executor.Compare(cmd.Context(), desc, plans)
	if err != nil {
		return err
	}
	if jsonOutput(cmd) {
		return printJSON(cmd, results)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s (%s), %d plans\n\n", desc.Name, desc.ID, len(results))
	fmt.Fprintf(out, "%-16s %5s %14s %10s %7s %4s  %s\n", "PLAN", "STEPS", "BANK", "JOY", "PAYOUTS", "GOAL", "FINGERPRINT")
	for _, r := range results {
		if r.Error != "" {
			fmt.Fprintf(out, "%-16s ❌ %s\n", r.Name, r.Error)
			continue
		}
		goal := "-"
		if r.Completed {
			goal = "✅"
		}
		fmt.Fprintf(out, "%-16s %5d %14.2f %10.2f %7d %4s  %s\n",
			r.Name, r.Steps, r.Final.BankAccount, r.Final.Joy, r.Payouts, goal, short(r.Fingerprint))
	}
	return nil
}

func short(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}
