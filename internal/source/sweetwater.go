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

// SourceSweetwater identifies the Sweetwater adapter.
const SourceSweetwater = "sweetwater"

// SweetwaterOptions parameterise the Sweetwater adapter.
type SweetwaterOptions struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// Sweetwater fetches item prices from the Sweetwater catalog API.
type Sweetwater struct {
	opts    SweetwaterOptions
	client  *http.Client
	logger  zerolog.Logger
	baseURL string
}

// NewSweetwater constructs a Sweetwater source adapter.
func NewSweetwater(opts SweetwaterOptions, logger zerolog.Logger) *Sweetwater {
	return &Sweetwater{
		opts:    opts,
		client:  newHTTPClient(opts.Timeout),
		logger:  logger.With().Str("component", "source_sweetwater").Logger(),
		baseURL: trimBase(opts.BaseURL, "https://www.sweetwater.com"),
	}
}

// ID returns the source identifier.
func (s *Sweetwater) ID() string { return SourceSweetwater }

type swItem struct {
	ItemID  string `json:"itemId"`
	Name    string `json:"name"`
	Pricing struct {
		Price    string `json:"price"`
		Currency string `json:"currency"`
	} `json:"pricing"`
	Stock struct {
		Status   string `json:"status"`
		Quantity int    `json:"quantity"`
	} `json:"stock"`
}

// Fetch looks up one item and normalises it into an observation.
func (s *Sweetwater) Fetch(ctx context.Context, ref store.SourceRef) (store.PriceObservation, error) {
	if ref.Locator == "" {
		return store.PriceObservation{}, Permanent(SourceSweetwater, errors.New("empty item locator"))
	}

	url := fmt.Sprintf("%s/api/items/%s", s.baseURL, ref.Locator)
	var item swItem
	if err := getJSON(ctx, s.client, SourceSweetwater, url, s.opts.UserAgent, &item); err != nil {
		return store.PriceObservation{}, err
	}

	if item.Stock.Status == "discontinued" {
		return store.PriceObservation{}, Permanent(SourceSweetwater, fmt.Errorf("item %s discontinued", ref.Locator))
	}

	price, err := decimal.NewFromString(item.Pricing.Price)
	if err != nil {
		return store.PriceObservation{}, Transient(SourceSweetwater, fmt.Errorf("parse price %q: %w", item.Pricing.Price, err))
	}
	if price.Sign() <= 0 {
		return store.PriceObservation{}, Transient(SourceSweetwater, fmt.Errorf("non-positive price %s", price))
	}

	currency := item.Pricing.Currency
	if currency == "" {
		currency = "USD"
	}

	obs := store.PriceObservation{
		SourceID:   SourceSweetwater,
		Price:      price,
		Currency:   currency,
		InStock:    item.Stock.Status == "in_stock" && item.Stock.Quantity > 0,
		ObservedAt: time.Now().UTC(),
	}
	s.logger.Debug().Str("item", ref.Locator).Str("price", price.String()).Bool("in_stock", obs.InStock).Msg("item fetched")
	return obs, nil
}

var _ Source = (*Sweetwater)(nil)
