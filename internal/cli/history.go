package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/finquest-app/finquest/internal/domain"
	"github.com/finquest-app/finquest/internal/infra/history"
)

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyImportCmd)

	historyShowCmd.Flags().StringP("granularity", "g", "", "Also show per-step returns (month or year)")
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect and import historical annual returns",
	Long: `Historical returns drive investments whose growth follows a market
category such as etf, btc or gold. Built-in series ship with finquest;
imported series replace them.`,
}

// ─── history list ───────────────────────────────────────────────────────────

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List known categories",
	Args:  cobra.NoArgs,
	RunE:  runHistoryList,
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	d, err := openDaemon(cmd)
	if err != nil {
		return err
	}
	defer d.Close()

	cats, err := d.History.Categories()
	if err != nil {
		return err
	}
	var series []history.Series
	for _, c := range cats {
		s, err := d.History.Prices(c)
		if err != nil {
			return err
		}
		series = append(series, s)
	}
	if jsonOutput(cmd) {
		return printJSON(cmd, series)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Return series (%d), time point 0 is %d:\n", len(series), d.History.BaseYear())
	for _, s := range series {
		fmt.Fprintf(out, "  • %-8s %d-%d\n", s.Category, s.StartYear, s.EndYear())
	}
	return nil
}

// ─── history show ───────────────────────────────────────────────────────────

var historyShowCmd = &cobra.Command{
	Use:   "show CATEGORY",
	Short: "Print a category's annual returns",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	var g domain.Granularity
	if v, _ := cmd.Flags().GetString("granularity"); v != "" {
		g = domain.Granularity(v)
		if !g.Valid() {
			return fmt.Errorf("%w: %q", domain.ErrInvalidGranularity, v)
		}
	}

	d, err := openDaemon(cmd)
	if err != nil {
		return err
	}
	defer d.Close()

	s, err := d.History.Prices(domain.Category(args[0]))
	if err != nil {
		return err
	}
	if jsonOutput(cmd) {
		return printJSON(cmd, s)
	}

	out := cmd.OutOrStdout()
	base := d.History.BaseYear()
	if g == "" {
		fmt.Fprintf(out, "%6s %10s\n", "YEAR", "RETURN %")
	} else {
		fmt.Fprintf(out, "%6s %10s %12s\n", "YEAR", "RETURN %", "PER "+string(g))
	}
	for i, r := range s.AnnualReturns {
		year := s.StartYear + i
		if g == "" {
			fmt.Fprintf(out, "%6d %10.2f\n", year, r)
			continue
		}
		per := "-"
		if year >= base {
			p, err := history.Percent((year-base)*g.PeriodsPerYear(), g, s, base)
			if err != nil {
				return err
			}
			per = fmt.Sprintf("%.4f", p)
		}
		fmt.Fprintf(out, "%6d %10.2f %12s\n", year, r, per)
	}
	return nil
}

// ─── history import ─────────────────────────────────────────────────────────

var historyImportCmd = &cobra.Command{
	Use:   "import CATEGORY FILE",
	Short: "Import annual returns from a CSV file",
	Long: `Import a "year,return" CSV file for CATEGORY. Years must be consecutive.
A header row is skipped and returns may carry a % suffix.`,
	Args: cobra.ExactArgs(2),
	RunE: runHistoryImport,
}

func runHistoryImport(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[1])
	if err != nil {
		return fmt.Errorf("open %s: %w", args[1], err)
	}
	defer f.Close()

	s, err := history.ReadCSV(f, domain.Category(args[0]))
	if err != nil {
		return err
	}

	d, err := openDaemon(cmd)
	if err != nil {
		return err
	}
	defer d.Close()

	if err := d.History.Import(s); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✅ Imported %d years of %s (%d-%d)\n", len(s.AnnualReturns), s.Category, s.StartYear, s.EndYear())
	return nil
}
