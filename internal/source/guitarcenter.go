package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/RickyRick89/shopper/internal/store"
)

// SourceGuitarCenter identifies the Guitar Center adapter.
const SourceGuitarCenter = "guitar_center"

// GuitarCenterOptions parameterise the Guitar Center adapter.
type GuitarCenterOptions struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// GuitarCenter fetches product prices from the Guitar Center product API.
type GuitarCenter struct {
	opts    GuitarCenterOptions
	client  *http.Client
	logger  zerolog.Logger
	baseURL string
}

// NewGuitarCenter constructs a Guitar Center source adapter.
func NewGuitarCenter(opts GuitarCenterOptions, logger zerolog.Logger) *GuitarCenter {
	return &GuitarCenter{
		opts:    opts,
		client:  newHTTPClient(opts.Timeout),
		logger:  logger.With().Str("component", "source_guitar_center").Logger(),
		baseURL: trimBase(opts.BaseURL, "https://www.guitarcenter.com"),
	}
}

// ID returns the source identifier.
func (g *GuitarCenter) ID() string { return SourceGuitarCenter }

type gcProduct struct {
	SKU          string  `json:"sku"`
	Name         string  `json:"name"`
	Price        float64 `json:"price"`
	Currency     string  `json:"currencyCode"`
	Availability string  `json:"availability"`
	Discontinued bool    `json:"discontinued"`
}

// Fetch looks up one SKU and normalises it into an observation.
func (g *GuitarCenter) Fetch(ctx context.Context, ref store.SourceRef) (store.PriceObservation, error) {
	if ref.Locator == "" {
		return store.PriceObservation{}, Permanent(SourceGuitarCenter, errors.New("empty sku locator"))
	}

	url := fmt.Sprintf("%s/rest/products/%s", g.baseURL, ref.Locator)
	var product gcProduct
	if err := getJSON(ctx, g.client, SourceGuitarCenter, url, g.opts.UserAgent, &product); err != nil {
		return store.PriceObservation{}, err
	}

	if product.Discontinued {
		return store.PriceObservation{}, Permanent(SourceGuitarCenter, fmt.Errorf("sku %s discontinued", ref.Locator))
	}
	if product.Price <= 0 {
		return store.PriceObservation{}, Transient(SourceGuitarCenter, fmt.Errorf("missing price for sku %s", ref.Locator))
	}

	currency := product.Currency
	if currency == "" {
		currency = "USD"
	}

	obs := store.PriceObservation{
		SourceID:   SourceGuitarCenter,
		Price:      decimal.NewFromFloat(product.Price).Round(2),
		Currency:   currency,
		InStock:    product.Availability == "IN_STOCK",
		ObservedAt: time.Now().UTC(),
	}
	g.logger.Debug().Str("sku", ref.Locator).Str("price", obs.Price.String()).Bool("in_stock", obs.InStock).Msg("product fetched")
	return obs, nil
}

var _ Source = (*GuitarCenter)(nil)
