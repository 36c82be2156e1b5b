package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/RickyRick89/shopper/internal/app"
)

var showOpts app.ShowOptions

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show a product's current price and recent observations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Show(cmd.Context(), showOpts)
	},
}

func init() {
	showCmd.Flags().Int64Var(&showOpts.ProductID, "product", 0, "Product id to show")
	showCmd.Flags().DurationVar(&showOpts.Window, "window", 30*24*time.Hour, "History window to display")
	showCmd.Flags().IntVar(&showOpts.Limit, "limit", 50, "Maximum observations to print")
	_ = showCmd.MarkFlagRequired("product")
}
