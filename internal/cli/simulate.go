package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/finquest-app/finquest/internal/app/quest"
	"github.com/finquest-app/finquest/internal/domain"
	"github.com/finquest-app/finquest/internal/infra/catalog"
)

func init() {
	rootCmd.AddCommand(simulateCmd)

	simulateCmd.Flags().StringP("plan", "p", "", "YAML plan file (- for stdin)")
}

// ─── simulate ───────────────────────────────────────────────────────────────

var simulateCmd = &cobra.Command{
	Use:   "simulate [QUEST_ID]",
	Short: "Replay a plan of action batches through a quest",
	Long: `Replay a YAML plan through a quest and print every step.

A plan lists one batch of new actions per step. Entries are template IDs,
templates with price overrides, or inline actions:

  quest: first-job
  batches:
    - [waiter-job]
    - []
    - - template: savings-deposit
        params: {initial_price: 1500}

QUEST_ID overrides the plan's quest.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSimulate,
}

type simulateResult struct {
	QuestID   string         `json:"quest_id"`
	Steps     []domain.Step  `json:"steps"`
	Payouts   []quest.Payout `json:"payouts"`
	Completed bool           `json:"completed"`
}

func runSimulate(cmd *cobra.Command, args []string) error {
	planPath, _ := cmd.Flags().GetString("plan")
	if planPath == "" {
		return fmt.Errorf("plan required: finquest simulate -p <plan.yaml>")
	}
	plan, err := readPlan(cmd, planPath)
	if err != nil {
		return err
	}
	if len(args) == 1 {
		plan.Quest = args[0]
	}
	if plan.Quest == "" {
		return fmt.Errorf("no quest given: pass QUEST_ID or set quest in the plan")
	}

	d, err := openDaemon(cmd)
	if err != nil {
		return err
	}
	defer d.Close()

	desc, err := d.Catalog.Lookup(plan.Quest)
	if err != nil {
		return err
	}
	if len(plan.Batches) > desc.MaxStepCount {
		return fmt.Errorf("%w: plan has %d steps, %s allows %d", domain.ErrQuestOver, len(plan.Batches), desc.ID, desc.MaxStepCount)
	}
	batches, err := d.Catalog.ResolveBatches(plan.Batches)
	if err != nil {
		return err
	}

	q, err := d.Simulator.Build(desc, batches)
	if err != nil {
		return err
	}
	completed, err := quest.IsCompleted(q)
	if err != nil {
		return err
	}

	res := simulateResult{
		QuestID:   desc.ID,
		Steps:     q.Steps,
		Payouts:   quest.Payouts(q),
		Completed: completed,
	}
	if res.Payouts == nil {
		res.Payouts = []quest.Payout{}
	}
	if jsonOutput(cmd) {
		return printJSON(cmd, res)
	}
	printSimulation(cmd.OutOrStdout(), desc, res)
	return nil
}

func readPlan(cmd *cobra.Command, path string) (catalog.Plan, error) {
	if path == "-" {
		return catalog.ReadPlan(cmd.InOrStdin())
	}
	f, err := os.Open(path)
	if err != nil {
		return catalog.Plan{}, fmt.Errorf("open plan: %w", err)
	}
	defer f.Close()
	return catalog.ReadPlan(f)
}

func printSimulation(out io.Writer, desc domain.QuestDescription, res simulateResult) {
	fmt.Fprintf(out, "%s (%s): %d of %d %s steps\n\n", desc.Name, desc.ID, len(res.Steps)-1, desc.MaxStepCount, desc.Granularity)
	fmt.Fprintf(out, "%5s %14s %10s %10s %5s %5s\n", "STEP", "BANK", "JOY", "FREE (h)", "NEW", "RUN")
	for _, s := range res.Steps {
		fmt.Fprintf(out, "%5d %14.2f %10.2f %10.2f %5d %5d\n",
			s.TimePoint, s.BankAccount, s.Joy, s.FreeTimeHours, len(s.NewActions), len(s.ContinuingActions))
	}

	if len(res.Payouts) > 0 {
		fmt.Fprintln(out)
		for _, p := range res.Payouts {
			fmt.Fprintf(out, "💰 step %d: %s paid out %.2f\n", p.TimePoint, p.Action.Name, p.Action.Capital)
		}
	}

	fmt.Fprintln(out)
	if res.Completed {
		fmt.Fprintln(out, "✅ Goal reached.")
	} else {
		fmt.Fprintln(out, "Goal not reached yet.")
	}
}
