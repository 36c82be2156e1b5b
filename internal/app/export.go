package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"github.com/RickyRick89/shopper/internal/store"
)

// ExportOptions hold parameters for exporting a product's price history.
type ExportOptions struct {
	ProductID int64
	Window    time.Duration
	CSVPath   string
	PNGPath   string
	MaxPoints int
}

// Export renders a product's price history as CSV and/or a PNG chart.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.ProductID <= 0 {
		return fmt.Errorf("a positive --product id is required")
	}
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}
	if opts.Window <= 0 {
		opts.Window = 90 * 24 * time.Hour
	}
	if opts.MaxPoints <= 0 {
		opts.MaxPoints = a.Config.Export.MaxDataPoints
	}

	st, err := a.openStores(ctx)
	if err != nil {
		return err
	}
	defer st.close()

	iter, err := st.obs.History(ctx, opts.ProductID, store.WindowSince(opts.Window))
	if err != nil {
		return err
	}
	defer iter.Close()

	observations := make([]store.PriceObservation, 0)
	for iter.Next() {
		observations = append(observations, iter.Observation())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(observations) == 0 {
		a.Logger.Info().Int64("product_id", opts.ProductID).Msg("no observations found for export window")
		return nil
	}

	downsampled := downsample(observations, opts.MaxPoints)
	a.Logger.Info().Int("total", len(observations)).Int("exported", len(downsampled)).Msg("exporting observations")

	if opts.CSVPath != "" {
		if err := writeHistoryCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}
	if opts.PNGPath != "" {
		if err := writeHistoryPNG(opts.PNGPath, downsampled); err != nil {
			return err
		}
	}
	return nil
}

func downsample(observations []store.PriceObservation, max int) []store.PriceObservation {
	if max <= 0 || len(observations) <= max {
		return observations
	}

	result := make([]store.PriceObservation, 0, max)
	step := float64(len(observations)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(observations) {
			idx = len(observations) - 1
		}
		result = append(result, observations[idx])
	}
	return result
}

func writeHistoryCSV(path string, observations []store.PriceObservation) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"observed_at", "source_id", "price", "currency", "in_stock"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, obs := range observations {
		record := []string{
			obs.ObservedAt.UTC().Format(time.RFC3339),
			obs.SourceID,
			obs.Price.String(),
			obs.Currency,
			fmt.Sprintf("%t", obs.InStock),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	return writer.Error()
}

func writeHistoryPNG(path string, observations []store.PriceObservation) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	// One series per source so cross-retailer spreads are visible.
	type series struct {
		x []time.Time
		y []float64
	}
	bySource := make(map[string]*series)
	order := make([]string, 0)
	for _, obs := range observations {
		s, ok := bySource[obs.SourceID]
		if !ok {
			s = &series{}
			bySource[obs.SourceID] = s
			order = append(order, obs.SourceID)
		}
		s.x = append(s.x, obs.ObservedAt)
		s.y = append(s.y, obs.Price.InexactFloat64())
	}

	priceFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.2f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Price",
			ValueFormatter: priceFormatter,
		},
	}
	for _, sourceID := range order {
		s := bySource[sourceID]
		graph.Series = append(graph.Series, chart.TimeSeries{
			Name:    sourceID,
			XValues: s.x,
			YValues: s.y,
		})
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
