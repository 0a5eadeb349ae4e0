package main

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sjperalta/khata-api/internal/replica"
)

var stockCmd = &cobra.Command{
	Use:   "stock",
	Short: "Show projected stock (server stock minus pending sales)",
	RunE: func(cmd *cobra.Command, args []string) error {
		products, err := app.store.Products(cmd.Context())
		if err != nil {
			return err
		}
		w := table()
		fmt.Fprintln(w, "ID\tNAME\tSKU\tPRICE\tSTOCK\tSERVER")
		for _, p := range products {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%d\n", p.ID, p.Name, p.SKU, p.SellPrice.StringFixed(2), p.Stock, p.ServerStock)
		}
		return w.Flush()
	},
}

var khatasCmd = &cobra.Command{
	Use:   "khatas",
	Short: "Show khatas with projected balances",
	RunE: func(cmd *cobra.Command, args []string) error {
		khatas, err := app.store.Khatas(cmd.Context())
		if err != nil {
			return err
		}
		w := table()
		fmt.Fprintln(w, "ID\tCUSTOMER\tTITLE\tSTATUS\tREMAINING\tSERVER")
		for _, k := range khatas {
			fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%s\t%s\n", k.ID, k.CustomerID, k.Title, k.Status,
				k.RemainingAmount.StringFixed(2), k.ServerRemaining.StringFixed(2))
		}
		return w.Flush()
	},
}

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "Show sales waiting to be pushed",
	RunE: func(cmd *cobra.Command, args []string) error {
		sales, err := app.store.Sales(cmd.Context(), replica.SyncStatusPendingCreate, replica.SyncStatusPendingDelete)
		if err != nil {
			return err
		}
		w := table()
		fmt.Fprintln(w, "LOCAL\tINVOICE\tSTATUS\tMETHOD\tTOTAL\tATTEMPTS\tSOLD\tLAST ERROR")
		for _, s := range sales {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%d\t%s\t%s\n", s.ID, s.InvoiceLabel, s.SyncStatus, s.PaymentMethod,
				s.Total.StringFixed(2), s.Attempts, s.SoldAt.Local().Format(time.DateTime), s.LastError)
		}
		if err := w.Flush(); err != nil {
			return err
		}

		state, err := app.store.State(cmd.Context())
		if err != nil {
			return err
		}
		if !state.LastSyncAt.IsZero() {
			fmt.Printf("\nlast sync %s\n", state.LastSyncAt.Local().Format(time.DateTime))
		}
		if state.LastError != "" {
			fmt.Printf("last error: %s\n", state.LastError)
		}
		return nil
	},
}

var conflictsCmd = &cobra.Command{
	Use:   "conflicts",
	Short: "Show sales whose khata or products changed on the server since they were recorded",
	Example: `  khata-terminal conflicts
  khata-terminal conflicts --all
  khata-terminal conflicts --resolve 3`,
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")
		resolve, _ := cmd.Flags().GetString("resolve")

		if resolve != "" {
			id, err := strconv.ParseUint(resolve, 10, 32)
			if err != nil {
				return fmt.Errorf("invalid local sale id %q", resolve)
			}
			if err := app.store.ResolveConflicts(cmd.Context(), uint(id), time.Now()); err != nil {
				return err
			}
			fmt.Printf("conflicts of local sale %d marked resolved\n", id)
			return nil
		}

		conflicts, err := app.store.Conflicts(cmd.Context(), !all)
		if err != nil {
			return err
		}
		w := table()
		fmt.Fprintln(w, "LOCAL\tENTITY\tID\tBASE REV\tSERVER REV\tDETAIL\tRESOLVED")
		for _, c := range conflicts {
			resolved := ""
			if c.ResolvedAt != nil {
				resolved = c.ResolvedAt.Local().Format(time.DateTime)
			}
			fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%d\t%s\t%s\n", c.LocalSaleID, c.Entity, c.EntityID,
				c.BaseRevision, c.ServerRevision, c.Detail, resolved)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(stockCmd, khatasCmd, pendingCmd, conflictsCmd)

	conflictsCmd.Flags().Bool("all", false, "Include resolved conflicts")
	conflictsCmd.Flags().String("resolve", "", "Mark the conflicts of a local sale as resolved")
}

func table() *tabwriter.Writer {
	return tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
}
