package cmd

import (
	"github.com/spf13/cobra"
)

var humbleOrderID string

var printHumblePurchasesCmd = &cobra.Command{
	Use:   "print-humble-purchases",
	Short: "Print details about all Humble Bundle purchases",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		r, err := reconciler(false, true)
		if err != nil {
			return err
		}
		defer r.DB.Close()
		return r.PrintHumblePurchases(formatter(), globalFlags.Verbose)
	},
}

var addHumblePurchasesCmd = &cobra.Command{
	Use:   "add-humble-purchases",
	Short: "Add missing Humble Bundle order IDs to the database",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		r, err := reconciler(false, true)
		if err != nil {
			return err
		}
		defer r.DB.Close()
		if humbleOrderID != "" {
			return r.PrintOrder(formatter(), humbleOrderID)
		}
		return r.FillHumbleOrders()
	},
}

var verifyHumblePurchasesCmd = &cobra.Command{
	Use:   "verify-humble-purchases",
	Short: "Verify if all Humble Bundle purchases are complete in the database",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		r, err := reconciler(false, true)
		if err != nil {
			return err
		}
		defer r.DB.Close()
		return r.VerifyHumblePurchases()
	},
}

func init() {
	addHumblePurchasesCmd.Flags().StringVar(&humbleOrderID, "humbleorder", "",
		"Limit the action to this order ID")
	rootCmd.AddCommand(printHumblePurchasesCmd)
	rootCmd.AddCommand(addHumblePurchasesCmd)
	rootCmd.AddCommand(verifyHumblePurchasesCmd)
}
