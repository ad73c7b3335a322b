package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kdgroup/jobledger/invoice"
	"github.com/kdgroup/jobledger/report"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print ledger reports",
}

var agingCmd = &cobra.Command{
	Use:   "aging",
	Short: "Receivables aging of sent invoices",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		rep, err := a.engine.AgingReport(cmd.Context())
		if err != nil {
			return err
		}
		return output(cmd, rep, report.AgingTable(rep))
	},
}

var monthlyCmd = &cobra.Command{
	Use:   "monthly",
	Short: "Paid revenue by month",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		rows, err := a.engine.MonthlySummary(cmd.Context())
		if err != nil {
			return err
		}
		return output(cmd, rows, report.MonthlyTable(rows))
	},
}

var pnlCmd = &cobra.Command{
	Use:   "pnl",
	Short: "Profit and loss per entity and consolidated",
	Example: `  # Consolidated P&L for Q1
  jobledger report pnl --from 2026-01-01 --to 2026-04-01

  # One entity
  jobledger report pnl --entity kts`,
	RunE: runPnL,
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Rebuild every report in the configured Google Sheet",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if cfg.Reports.SheetURL == "" {
			return fmt.Errorf("reports.sheet_url (JOBLEDGER_REPORT_SHEET_URL) is required")
		}
		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		start := time.Now()
		if err := a.engine.ExportReports(cmd.Context()); err != nil {
			return err
		}
		log.Info().Dur("elapsed", time.Since(start)).Msg("reports exported")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(reportCmd, exportCmd)
	reportCmd.AddCommand(agingCmd, monthlyCmd, pnlCmd)

	reportCmd.PersistentFlags().Bool("json", false, "print JSON instead of a table")
	pnlCmd.Flags().String("entity", "", "internal entity: kd, kts or kr (default: all)")
	pnlCmd.Flags().String("from", "", "period start, inclusive (YYYY-MM-DD)")
	pnlCmd.Flags().String("to", "", "period end, exclusive (YYYY-MM-DD)")
}

func runPnL(cmd *cobra.Command, _ []string) error {
	var period report.Period
	for name, dst := range map[string]*time.Time{"from": &period.From, "to": &period.To} {
		v, _ := cmd.Flags().GetString(name)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.DateOnly, v)
		if err != nil {
			return fmt.Errorf("invalid --%s date. Use YYYY-MM-DD: %w", name, err)
		}
		*dst = t
	}
	entity, _ := cmd.Flags().GetString("entity")

	a, err := newApp(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if entity != "" {
		p, err := a.engine.EntityPnL(cmd.Context(), invoice.EntityCode(strings.ToLower(entity)), period)
		if err != nil {
			return err
		}
		t := report.Table{
			Header: []string{"Entity", "Revenue", "Expenses", "Material Costs", "Net Income"},
			Rows: [][]string{{
				strings.ToUpper(string(p.Entity)),
				p.Revenue.FormatMajor(),
				p.Expenses.FormatMajor(),
				p.MaterialCosts.FormatMajor(),
				p.NetIncome.FormatMajor(),
			}},
		}
		return output(cmd, p, t)
	}

	c, err := a.engine.CombinedPnL(cmd.Context(), period)
	if err != nil {
		return err
	}
	return output(cmd, c, report.PnLTable(c))
}

func output(cmd *cobra.Command, v any, t report.Table) error {
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return printJSON(cmd.OutOrStdout(), v)
	}
	return printTable(cmd.OutOrStdout(), t)
}

func printTable(w io.Writer, t report.Table) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(t.Header, "\t"))
	for _, row := range t.Rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}
