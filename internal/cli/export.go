package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/RickyRick89/shopper/internal/app"
)

var exportOpts app.ExportOptions

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a product's price history as CSV and/or a PNG chart",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Export(cmd.Context(), exportOpts)
	},
}

func init() {
	exportCmd.Flags().Int64Var(&exportOpts.ProductID, "product", 0, "Product id to export")
	exportCmd.Flags().DurationVar(&exportOpts.Window, "window", 90*24*time.Hour, "History window to export")
	exportCmd.Flags().StringVar(&exportOpts.CSVPath, "csv", "", "Write history to this CSV file")
	exportCmd.Flags().StringVar(&exportOpts.PNGPath, "png", "", "Render history to this PNG file")
	exportCmd.Flags().IntVar(&exportOpts.MaxPoints, "max-points", 0, "Downsample to at most this many points (0 uses config)")
	_ = exportCmd.MarkFlagRequired("product")
}
