package source

import (
	"context"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/RickyRick89/shopper/internal/store"
)

func TestGuitarCenterFetch(t *testing.T) {
	g := NewGuitarCenter(GuitarCenterOptions{BaseURL: "https://gc.test"}, zerolog.Nop())
	httpmock.ActivateNonDefault(g.client)
	t.Cleanup(httpmock.DeactivateAndReset)

	httpmock.RegisterResponder("GET", "https://gc.test/rest/products/SKU123",
		httpmock.NewStringResponder(200, `{"sku":"SKU123","price":849.997,"currencyCode":"USD","availability":"IN_STOCK"}`))

	obs, err := g.Fetch(context.Background(), store.SourceRef{SourceID: SourceGuitarCenter, Locator: "SKU123"})
	require.NoError(t, err)
	require.Equal(t, "850", obs.Price.String())
	require.True(t, obs.InStock)
}

func TestGuitarCenterDiscontinuedIsPermanent(t *testing.T) {
	g := NewGuitarCenter(GuitarCenterOptions{BaseURL: "https://gc.test"}, zerolog.Nop())
	httpmock.ActivateNonDefault(g.client)
	t.Cleanup(httpmock.DeactivateAndReset)

	httpmock.RegisterResponder("GET", "https://gc.test/rest/products/SKU123",
		httpmock.NewStringResponder(200, `{"sku":"SKU123","price":849.99,"discontinued":true}`))

	_, err := g.Fetch(context.Background(), store.SourceRef{SourceID: SourceGuitarCenter, Locator: "SKU123"})
	require.Error(t, err)
	require.True(t, IsPermanent(err))
}

func TestGuitarCenterMissingPriceIsTransient(t *testing.T) {
	g := NewGuitarCenter(GuitarCenterOptions{BaseURL: "https://gc.test"}, zerolog.Nop())
	httpmock.ActivateNonDefault(g.client)
	t.Cleanup(httpmock.DeactivateAndReset)

	httpmock.RegisterResponder("GET", "https://gc.test/rest/products/SKU123",
		httpmock.NewStringResponder(200, `{"sku":"SKU123","availability":"IN_STOCK"}`))

	_, err := g.Fetch(context.Background(), store.SourceRef{SourceID: SourceGuitarCenter, Locator: "SKU123"})
	require.Error(t, err)
	require.False(t, IsPermanent(err))
}

func TestSweetwaterFetch(t *testing.T) {
	s := NewSweetwater(SweetwaterOptions{BaseURL: "https://sw.test"}, zerolog.Nop())
	httpmock.ActivateNonDefault(s.client)
	t.Cleanup(httpmock.DeactivateAndReset)

	httpmock.RegisterResponder("GET", "https://sw.test/api/items/StratMN",
		httpmock.NewStringResponder(200, `{"itemId":"StratMN","pricing":{"price":"1149.00","currency":"USD"},"stock":{"status":"in_stock","quantity":4}}`))

	obs, err := s.Fetch(context.Background(), store.SourceRef{SourceID: SourceSweetwater, Locator: "StratMN"})
	require.NoError(t, err)
	require.Equal(t, "1149", obs.Price.String())
	require.True(t, obs.InStock)
}

func TestSweetwaterBackorderedIsOutOfStock(t *testing.T) {
	s := NewSweetwater(SweetwaterOptions{BaseURL: "https://sw.test"}, zerolog.Nop())
	httpmock.ActivateNonDefault(s.client)
	t.Cleanup(httpmock.DeactivateAndReset)

	httpmock.RegisterResponder("GET", "https://sw.test/api/items/StratMN",
		httpmock.NewStringResponder(200, `{"itemId":"StratMN","pricing":{"price":"1149.00","currency":"USD"},"stock":{"status":"backordered","quantity":0}}`))

	obs, err := s.Fetch(context.Background(), store.SourceRef{SourceID: SourceSweetwater, Locator: "StratMN"})
	require.NoError(t, err)
	require.False(t, obs.InStock)
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&scriptedSource{id: "sweetwater"})
	reg.Register(&scriptedSource{id: "reverb"})

	_, ok := reg.Get("reverb")
	require.True(t, ok)
	_, ok = reg.Get("amazon")
	require.False(t, ok)
	require.Equal(t, []string{"reverb", "sweetwater"}, reg.IDs())
}
