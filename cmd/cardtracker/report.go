package main

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ArionMiles/cardtracker/pkg/api"
	"github.com/ArionMiles/cardtracker/pkg/export"
	"github.com/ArionMiles/cardtracker/pkg/issuer"
	"github.com/ArionMiles/cardtracker/pkg/store"
)

var (
	summaryMonth  string
	summaryIssuer string
	summaryAll    bool
)

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show monthly spending per issuer (verified transactions only)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		if summaryIssuer != "" {
			if _, ok := a.table.Profile(issuer.Name(summaryIssuer)); !ok {
				return fmt.Errorf("unknown issuer %q", summaryIssuer)
			}
		}
		st, err := a.openStore(cmd.Context())
		if err != nil {
			return fmt.Errorf("opening store: %w", err)
		}
		defer st.Close()

		var rows []store.Summary
		label := "All time"
		switch {
		case summaryAll:
			rows, err = st.AllTimeByIssuer(cmd.Context())
		default:
			p, perr := monthPeriod(summaryMonth, a.loc)
			if perr != nil {
				return perr
			}
			label = p.From.Format("2006-01")
			if summaryIssuer != "" {
				var s store.Summary
				s, err = st.Summary(cmd.Context(), p, summaryIssuer)
				s.Issuer = summaryIssuer
				rows = []store.Summary{s}
			} else {
				rows, err = st.SummaryByIssuer(cmd.Context(), p)
			}
		}
		if err != nil {
			return fmt.Errorf("computing summary: %w", err)
		}
		if summaryAll && summaryIssuer != "" {
			rows = filterIssuer(rows, summaryIssuer)
		}

		fmt.Printf("=== %s ===\n", label)
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', tabwriter.AlignRight)
		fmt.Fprintln(tw, "Issuer\tCount\tTotal\tAverage\t")
		for _, r := range rows {
			fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t\n", displayName(a.table, r.Issuer), r.Count, formatYen(r.Total), formatYen(r.Average))
		}
		if summaryIssuer == "" {
			g := store.GrandTotal(rows)
			fmt.Fprintf(tw, "Total\t%d\t%s\t%s\t\n", g.Count, formatYen(g.Total), formatYen(g.Average))
		}
		return tw.Flush()
	},
}

func monthPeriod(month string, loc *time.Location) (store.Period, error) {
	if month == "" {
		now := time.Now().In(loc)
		return store.MonthPeriod(now.Year(), now.Month(), loc), nil
	}
	return store.ParseMonth(month, loc)
}

func filterIssuer(rows []store.Summary, name string) []store.Summary {
	for _, r := range rows {
		if r.Issuer == name {
			return []store.Summary{r}
		}
	}
	return []store.Summary{{Issuer: name}}
}

func displayName(t *issuer.Table, name string) string {
	if p, ok := t.Profile(issuer.Name(name)); ok && p.DisplayName != "" {
		return p.DisplayName
	}
	return name
}

var (
	listMonth     string
	listIssuer    string
	listUntrusted bool
	listLimit     int
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored transactions, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		f, err := listFilter(a.loc)
		if err != nil {
			return err
		}
		st, err := a.openStore(cmd.Context())
		if err != nil {
			return fmt.Errorf("opening store: %w", err)
		}
		defer st.Close()

		recs, err := st.List(cmd.Context(), f)
		if err != nil {
			return fmt.Errorf("listing transactions: %w", err)
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tDate\tIssuer\tAmount\tMerchant\tVerified")
		for _, r := range recs {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
				r.ID,
				r.TransactionAt.In(a.loc).Format("2006-01-02 15:04"),
				r.Issuer,
				signedYen(r),
				r.Merchant,
				verifiedMark(r.Trusted),
			)
		}
		return tw.Flush()
	},
}

func listFilter(loc *time.Location) (store.Filter, error) {
	f := store.Filter{Issuer: listIssuer, Limit: listLimit}
	if listMonth != "" {
		p, err := store.ParseMonth(listMonth, loc)
		if err != nil {
			return store.Filter{}, err
		}
		f.Period = &p
	}
	if listUntrusted {
		trusted := false
		f.Trusted = &trusted
	}
	return f, nil
}

func signedYen(r api.Record) string {
	if r.Refund {
		return "-" + formatYen(r.Amount)
	}
	return formatYen(r.Amount)
}

func verifiedMark(trusted bool) string {
	if trusted {
		return "✓"
	}
	return "✗ unverified"
}

var verifyUntrust bool

var verifyCmd = &cobra.Command{
	Use:   "verify <id>",
	Short: "Mark a transaction as verified so it counts in summaries",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid id %q", args[0])
		}
		a, err := loadApp()
		if err != nil {
			return err
		}
		st, err := a.openStore(cmd.Context())
		if err != nil {
			return fmt.Errorf("opening store: %w", err)
		}
		defer st.Close()

		if err := st.SetTrusted(cmd.Context(), id, !verifyUntrust); err != nil {
			return fmt.Errorf("updating transaction %d: %w", id, err)
		}
		if verifyUntrust {
			fmt.Printf("Transaction %d marked unverified\n", id)
		} else {
			fmt.Printf("Transaction %d verified\n", id)
		}
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a stored transaction",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid id %q", args[0])
		}
		a, err := loadApp()
		if err != nil {
			return err
		}
		st, err := a.openStore(cmd.Context())
		if err != nil {
			return fmt.Errorf("opening store: %w", err)
		}
		defer st.Close()

		if err := st.Delete(cmd.Context(), id); err != nil {
			return fmt.Errorf("deleting transaction %d: %w", id, err)
		}
		fmt.Printf("Transaction %d deleted\n", id)
		return nil
	},
}

var (
	exportFormat string
	exportOutput string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export stored transactions to CSV or JSON",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		format, err := export.ParseFormat(exportFormat)
		if err != nil {
			return err
		}
		a, err := loadApp()
		if err != nil {
			return err
		}
		f, err := listFilter(a.loc)
		if err != nil {
			return err
		}
		st, err := a.openStore(cmd.Context())
		if err != nil {
			return fmt.Errorf("opening store: %w", err)
		}
		defer st.Close()

		recs, err := st.List(cmd.Context(), f)
		if err != nil {
			return fmt.Errorf("listing transactions: %w", err)
		}
		if exportOutput == "" || exportOutput == "-" {
			return export.Write(os.Stdout, format, recs, a.loc)
		}
		if err := export.WriteFile(exportOutput, format, recs, a.loc); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Exported %d transactions to %s\n", len(recs), exportOutput)
		return nil
	},
}

func init() {
	summaryCmd.Flags().StringVar(&summaryMonth, "month", "", "month as YYYY-MM (default: current month)")
	summaryCmd.Flags().StringVar(&summaryIssuer, "issuer", "", "limit to one issuer, e.g. SMBC")
	summaryCmd.Flags().BoolVar(&summaryAll, "all", false, "summarize all months")
	summaryCmd.MarkFlagsMutuallyExclusive("month", "all")

	for _, cmd := range []*cobra.Command{listCmd, exportCmd} {
		cmd.Flags().StringVar(&listMonth, "month", "", "only transactions in this month (YYYY-MM)")
		cmd.Flags().StringVar(&listIssuer, "issuer", "", "only transactions of this issuer")
		cmd.Flags().BoolVar(&listUntrusted, "unverified", false, "only unverified transactions")
	}
	listCmd.Flags().IntVar(&listLimit, "limit", 50, "maximum number of transactions (0 for all)")

	verifyCmd.Flags().BoolVar(&verifyUntrust, "untrust", false, "mark the transaction unverified instead")

	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "csv", "output format: csv or json")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "output file (default: stdout)")
}
