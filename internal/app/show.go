package app

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/RickyRick89/shopper/internal/store"
)

// ShowOptions configure the show command.
type ShowOptions struct {
	ProductID int64
	Window    time.Duration
	Limit     int
}

// Show prints a product's recent observations and its current price.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	if opts.ProductID <= 0 {
		return fmt.Errorf("a positive --product id is required")
	}
	if opts.Window <= 0 {
		opts.Window = 30 * 24 * time.Hour
	}

	st, err := a.openStores(ctx)
	if err != nil {
		return err
	}
	defer st.close()

	latest, found, err := st.obs.Latest(ctx, opts.ProductID)
	if err != nil {
		return err
	}
	if !found {
		fmt.Fprintln(os.Stdout, "no observations found")
		return nil
	}
	fmt.Fprintf(os.Stdout, "current: %s %s from %s at %s (in stock: %t)\n\n",
		latest.Price.StringFixed(2), latest.Currency, latest.SourceID,
		latest.ObservedAt.UTC().Format(time.RFC3339), latest.InStock)

	iter, err := st.obs.History(ctx, opts.ProductID, store.WindowSince(opts.Window))
	if err != nil {
		return err
	}
	defer iter.Close()

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Observed (UTC)\tSource\tPrice\tCurrency\tIn stock")

	printed := 0
	for iter.Next() {
		if opts.Limit > 0 && printed >= opts.Limit {
			break
		}
		obs := iter.Observation()
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%t\n",
			obs.ObservedAt.UTC().Format(time.RFC3339),
			obs.SourceID,
			obs.Price.StringFixed(2),
			obs.Currency,
			obs.InStock,
		)
		printed++
	}
	if err := iter.Err(); err != nil {
		return err
	}

	return writer.Flush()
}
