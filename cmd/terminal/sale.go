package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/sjperalta/khata-api/internal/models"
	"github.com/sjperalta/khata-api/internal/replica"
	"github.com/sjperalta/khata-api/internal/services"
)

var saleCmd = &cobra.Command{
	Use:   "sale",
	Short: "Record a sale on the terminal",
	Long: `Record a sale against the locally projected stock and khata balance.
The sale is queued and pushed to the server by the next sync.`,
	Example: `  # Two bags of rice at catalog price, paid cash
  khata-terminal sale --item 12:2

  # On credit, overriding the price, 200 paid up front
  khata-terminal sale --item 12:1:450 --item 7:3 --method khata --khata 4 --paid 200`,
	RunE: runSale,
}

var deleteSaleCmd = &cobra.Command{
	Use:   "delete-sale <local-id>",
	Short: "Delete a local sale, or queue the deletion of a synced one",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseUint(args[0], 10, 32)
		if err != nil {
			return fmt.Errorf("invalid local sale id %q", args[0])
		}
		sale, err := app.reconciler.DeleteLocalSale(cmd.Context(), uint(id))
		if err != nil {
			return err
		}
		if sale.SyncStatus == replica.SyncStatusPendingDelete {
			fmt.Printf("deletion of %s queued for sync\n", sale.InvoiceLabel)
		} else {
			fmt.Printf("%s removed from the terminal\n", sale.InvoiceLabel)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(saleCmd, deleteSaleCmd)

	saleCmd.Flags().StringArray("item", nil, "Line as product_id:quantity[:price], repeatable")
	saleCmd.Flags().String("method", models.PaymentMethodCash, "Payment method: cash, card or khata")
	saleCmd.Flags().Uint("khata", 0, "Khata ID for credit sales")
	saleCmd.Flags().String("paid", "", "Amount paid now on a khata sale (default 0)")
	saleCmd.Flags().String("discount", "0", "Discount on the subtotal")
	_ = saleCmd.MarkFlagRequired("item")
}

func runSale(cmd *cobra.Command, args []string) error {
	specs, _ := cmd.Flags().GetStringArray("item")
	method, _ := cmd.Flags().GetString("method")
	khataID, _ := cmd.Flags().GetUint("khata")
	paid, _ := cmd.Flags().GetString("paid")
	discount, _ := cmd.Flags().GetString("discount")

	input := replica.LocalSaleInput{PaymentMethod: method}

	for _, spec := range specs {
		item, err := parseItem(spec)
		if err != nil {
			return err
		}
		input.Items = append(input.Items, item)
	}

	var err error
	if input.Discount, err = decimal.NewFromString(discount); err != nil {
		return fmt.Errorf("invalid discount %q", discount)
	}
	if khataID > 0 {
		id := uint(khataID)
		input.KhataID = &id
	}
	if paid != "" {
		amount, err := decimal.NewFromString(paid)
		if err != nil {
			return fmt.Errorf("invalid paid amount %q", paid)
		}
		input.PaidAmount = &amount
	}

	sale, err := app.reconciler.CreateLocalSale(cmd.Context(), input)
	if err != nil {
		return err
	}
	fmt.Printf("%s recorded (local id %d): total %s, paid %s, queued for sync\n",
		sale.InvoiceLabel, sale.ID, sale.Total.StringFixed(2), sale.PaidAmount.StringFixed(2))
	return nil
}

// parseItem reads product_id:quantity[:price]
func parseItem(spec string) (services.SaleItemInput, error) {
	var item services.SaleItemInput

	parts := strings.Split(strings.TrimSpace(spec), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return item, fmt.Errorf("item %q: expected product_id:quantity[:price]", spec)
	}

	productID, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil || productID == 0 {
		return item, fmt.Errorf("item %q: invalid product id", spec)
	}
	quantity, err := strconv.Atoi(parts[1])
	if err != nil || quantity <= 0 {
		return item, fmt.Errorf("item %q: quantity must be a positive integer", spec)
	}
	item.ProductID = uint(productID)
	item.Quantity = quantity

	if len(parts) == 3 {
		price, err := decimal.NewFromString(parts[2])
		if err != nil || price.IsNegative() {
			return item, fmt.Errorf("item %q: invalid price", spec)
		}
		item.SellPrice = &price
	}
	return item, nil
}
