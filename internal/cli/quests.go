package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(questsCmd)
	questsCmd.AddCommand(questsShowCmd)
	rootCmd.AddCommand(actionsCmd)
}

// ─── quests ─────────────────────────────────────────────────────────────────

var questsCmd = &cobra.Command{
	Use:   "quests",
	Short: "List playable quests",
	Args:  cobra.NoArgs,
	RunE:  runQuests,
}

func runQuests(cmd *cobra.Command, args []string) error {
	d, err := openDaemon(cmd)
	if err != nil {
		return err
	}
	defer d.Close()

	quests := d.Catalog.Quests()
	if jsonOutput(cmd) {
		return printJSON(cmd, quests)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Quests (%d):\n", len(quests))
	for _, q := range quests {
		fmt.Fprintf(out, "  • %-16s %-28s %3d %s steps\n", q.ID, q.Name, q.MaxStepCount, q.Granularity)
	}
	return nil
}

// ─── quests show ────────────────────────────────────────────────────────────

var questsShowCmd = &cobra.Command{
	Use:   "show QUEST_ID",
	Short: "Show a quest's starting position and goal",
	Args:  cobra.ExactArgs(1),
	RunE:  runQuestsShow,
}

func runQuestsShow(cmd *cobra.Command, args []string) error {
	d, err := openDaemon(cmd)
	if err != nil {
		return err
	}
	defer d.Close()

	q, err := d.Catalog.Lookup(args[0])
	if err != nil {
		return err
	}
	if jsonOutput(cmd) {
		return printJSON(cmd, q)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s (%s)\n", q.Name, q.ID)
	if q.Summary != "" {
		fmt.Fprintf(out, "  %s\n", q.Summary)
	}
	fmt.Fprintf(out, "  Steps:      %d × %s\n", q.MaxStepCount, q.Granularity)
	fmt.Fprintf(out, "  Goal:       %s\n", orDash(q.GoalExpr))
	s := q.InitialStep
	fmt.Fprintf(out, "  Start:      bank %.2f, joy %.2f, free time %.2f h\n", s.BankAccount, s.Joy, s.FreeTimeHours)

	names := make([]string, len(s.ContinuingActions))
	for i, a := range s.ContinuingActions {
		names[i] = a.Name
	}
	fmt.Fprintf(out, "  Running:    %s\n", orDash(strings.Join(names, ", ")))
	fmt.Fprintf(out, "  Actions:    %s\n", orDash(strings.Join(q.ActionNames, ", ")))
	return nil
}

// ─── actions ────────────────────────────────────────────────────────────────

var actionsCmd = &cobra.Command{
	Use:   "actions",
	Short: "List action templates",
	Args:  cobra.NoArgs,
	RunE:  runActions,
}

func runActions(cmd *cobra.Command, args []string) error {
	d, err := openDaemon(cmd)
	if err != nil {
		return err
	}
	defer d.Close()

	templates := d.Catalog.Actions()
	if jsonOutput(cmd) {
		return printJSON(cmd, templates)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Action templates (%d):\n", len(templates))
	for _, t := range templates {
		line := fmt.Sprintf("  • %-18s %-10s %-8s %s", t.ID, t.Action.Kind, t.Action.RemainingSteps, t.Action.Name)
		if u := t.UnlockExpr(); u != "" {
			line += fmt.Sprintf("  (unlock: %s)", u)
		}
		fmt.Fprintln(out, line)
	}
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
