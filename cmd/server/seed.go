package main

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/mastdeals10/sapj/internal/infrastructure/persistence/repository"
)

var seedStock string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create a demo customer, product, batch and delivery and print their IDs",
	RunE: func(cmd *cobra.Command, args []string) error {
		stock, err := decimal.NewFromString(seedStock)
		if err != nil {
			return fmt.Errorf("invalid --stock: %w", err)
		}

		ctx := cmd.Context()
		a, err := bootstrap(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		catalog := repository.NewCatalogRepository(a.store(), a.logger)
		suffix := time.Now().UTC().Format("20060102150405")

		partyID, err := catalog.CreateParty(ctx, "Demo Customer "+suffix, "customer")
		if err != nil {
			return err
		}
		productID, err := catalog.CreateProduct(ctx, "DEMO-"+suffix, "Demo Product", stock)
		if err != nil {
			return err
		}
		batchID, err := catalog.CreateBatch(ctx, productID, "B-"+suffix, stock)
		if err != nil {
			return err
		}
		lineIDs, err := catalog.CreateDelivery(ctx, "DO-"+suffix, partyID, time.Now().UTC(),
			[]repository.DeliveryLine{{ProductID: productID, BatchID: &batchID, Quantity: stock}})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "customer_or_supplier_id: %s\n", partyID)
		fmt.Fprintf(out, "product_id:              %s\n", productID)
		fmt.Fprintf(out, "batch_id:                %s\n", batchID)
		fmt.Fprintf(out, "delivery_line_id:        %s\n", lineIDs[0])
		return nil
	},
}

func init() {
	seedCmd.Flags().StringVar(&seedStock, "stock", "100", "opening stock of the demo product and batch")
}
