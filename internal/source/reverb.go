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

// SourceReverb identifies the Reverb marketplace adapter.
const SourceReverb = "reverb"

// ReverbOptions parameterise the Reverb adapter.
type ReverbOptions struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// Reverb fetches listing prices from the Reverb API.
type Reverb struct {
	opts    ReverbOptions
	client  *http.Client
	logger  zerolog.Logger
	baseURL string
}

// NewReverb constructs a Reverb source adapter.
func NewReverb(opts ReverbOptions, logger zerolog.Logger) *Reverb {
	return &Reverb{
		opts:    opts,
		client:  newHTTPClient(opts.Timeout),
		logger:  logger.With().Str("component", "source_reverb").Logger(),
		baseURL: trimBase(opts.BaseURL, "https://api.reverb.com"),
	}
}

// ID returns the source identifier.
func (r *Reverb) ID() string { return SourceReverb }

type reverbListing struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	State struct {
		Slug string `json:"slug"`
	} `json:"state"`
	BuyerPrice struct {
		Amount   string `json:"amount"`
		Currency string `json:"currency"`
	} `json:"buyer_price"`
	Inventory int `json:"inventory"`
}

// Fetch looks up one listing and normalises it into an observation.
func (r *Reverb) Fetch(ctx context.Context, ref store.SourceRef) (store.PriceObservation, error) {
	if ref.Locator == "" {
		return store.PriceObservation{}, Permanent(SourceReverb, errors.New("empty listing locator"))
	}

	url := fmt.Sprintf("%s/api/listings/%s", r.baseURL, ref.Locator)
	var listing reverbListing
	if err := getJSON(ctx, r.client, SourceReverb, url, r.opts.UserAgent, &listing); err != nil {
		return store.PriceObservation{}, err
	}

	if listing.State.Slug == "ended" || listing.State.Slug == "sold" {
		return store.PriceObservation{}, Permanent(SourceReverb, fmt.Errorf("listing %s is %s", ref.Locator, listing.State.Slug))
	}

	price, err := decimal.NewFromString(listing.BuyerPrice.Amount)
	if err != nil {
		return store.PriceObservation{}, Transient(SourceReverb, fmt.Errorf("parse price %q: %w", listing.BuyerPrice.Amount, err))
	}
	if price.Sign() <= 0 {
		return store.PriceObservation{}, Transient(SourceReverb, fmt.Errorf("non-positive price %s", price))
	}

	currency := listing.BuyerPrice.Currency
	if currency == "" {
		currency = "USD"
	}

	obs := store.PriceObservation{
		SourceID:   SourceReverb,
		Price:      price,
		Currency:   currency,
		InStock:    listing.Inventory > 0 && listing.State.Slug == "live",
		ObservedAt: time.Now().UTC(),
	}
	r.logger.Debug().Str("locator", ref.Locator).Str("price", price.String()).Bool("in_stock", obs.InStock).Msg("listing fetched")
	return obs, nil
}

var _ Source = (*Reverb)(nil)
