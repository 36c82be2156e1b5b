package store

import (
	"github.com/shopspring/decimal"
)

var dec100 = decimal.NewFromInt(100)

// statsFromIter folds a history pass into window statistics.
// Trend is (current - windowStart) / windowStart * 100, defined as zero
// when fewer than two observations exist.
func statsFromIter(productID int64, w Window, iter HistoryIter) (PriceStats, error) {
	stats := PriceStats{ProductID: productID, From: w.From, To: w.To}

	var (
		first decimal.Decimal
		last  decimal.Decimal
		sum   decimal.Decimal
	)
	for iter.Next() {
		obs := iter.Observation()
		price := obs.Price
		if stats.DataPoints == 0 {
			first = price
			stats.Min = price
			stats.Max = price
		} else {
			if price.LessThan(stats.Min) {
				stats.Min = price
			}
			if price.GreaterThan(stats.Max) {
				stats.Max = price
			}
		}
		sum = sum.Add(price)
		last = price
		stats.DataPoints++
	}
	if err := iter.Err(); err != nil {
		return PriceStats{}, err
	}
	if stats.DataPoints == 0 {
		return stats, nil
	}

	stats.Current = last
	stats.Avg = sum.Div(decimal.NewFromInt(int64(stats.DataPoints))).Round(4)
	if stats.DataPoints >= 2 && !first.IsZero() {
		stats.TrendPct = last.Sub(first).Div(first).Mul(dec100).Round(4)
	}
	return stats, nil
}
