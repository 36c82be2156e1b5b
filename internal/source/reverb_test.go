package source

import (
	"context"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/RickyRick89/shopper/internal/store"
)

const reverbListingBody = `{
	"id": "12345",
	"title": "Fender Stratocaster",
	"state": {"slug": "live"},
	"buyer_price": {"amount": "1299.99", "currency": "USD"},
	"inventory": 2
}`

func newTestReverb(t *testing.T) *Reverb {
	t.Helper()
	r := NewReverb(ReverbOptions{BaseURL: "https://api.reverb.test"}, zerolog.Nop())
	httpmock.ActivateNonDefault(r.client)
	t.Cleanup(httpmock.DeactivateAndReset)
	return r
}

func TestReverbFetch(t *testing.T) {
	r := newTestReverb(t)
	httpmock.RegisterResponder("GET", "https://api.reverb.test/api/listings/12345",
		httpmock.NewStringResponder(200, reverbListingBody))

	obs, err := r.Fetch(context.Background(), store.SourceRef{SourceID: SourceReverb, Locator: "12345"})
	require.NoError(t, err)
	require.Equal(t, SourceReverb, obs.SourceID)
	require.Equal(t, "1299.99", obs.Price.String())
	require.Equal(t, "USD", obs.Currency)
	require.True(t, obs.InStock)
	require.False(t, obs.ObservedAt.IsZero())
}

func TestReverbNotFoundIsPermanent(t *testing.T) {
	r := newTestReverb(t)
	httpmock.RegisterResponder("GET", "https://api.reverb.test/api/listings/gone",
		httpmock.NewStringResponder(404, `{"message":"not found"}`))

	_, err := r.Fetch(context.Background(), store.SourceRef{SourceID: SourceReverb, Locator: "gone"})
	require.Error(t, err)
	require.True(t, IsPermanent(err))
}

func TestReverbServerErrorIsTransient(t *testing.T) {
	r := newTestReverb(t)
	httpmock.RegisterResponder("GET", "https://api.reverb.test/api/listings/12345",
		httpmock.NewStringResponder(500, "upstream exploded"))

	_, err := r.Fetch(context.Background(), store.SourceRef{SourceID: SourceReverb, Locator: "12345"})
	require.Error(t, err)
	require.False(t, IsPermanent(err))
}

func TestReverbEndedListingIsPermanent(t *testing.T) {
	r := newTestReverb(t)
	httpmock.RegisterResponder("GET", "https://api.reverb.test/api/listings/12345",
		httpmock.NewStringResponder(200, `{"state":{"slug":"ended"},"buyer_price":{"amount":"100","currency":"USD"},"inventory":0}`))

	_, err := r.Fetch(context.Background(), store.SourceRef{SourceID: SourceReverb, Locator: "12345"})
	require.Error(t, err)
	require.True(t, IsPermanent(err))
}

func TestReverbOutOfStock(t *testing.T) {
	r := newTestReverb(t)
	httpmock.RegisterResponder("GET", "https://api.reverb.test/api/listings/12345",
		httpmock.NewStringResponder(200, `{"state":{"slug":"live"},"buyer_price":{"amount":"100","currency":"USD"},"inventory":0}`))

	obs, err := r.Fetch(context.Background(), store.SourceRef{SourceID: SourceReverb, Locator: "12345"})
	require.NoError(t, err)
	require.False(t, obs.InStock)
}

func TestReverbMalformedBodyIsTransient(t *testing.T) {
	r := newTestReverb(t)
	httpmock.RegisterResponder("GET", "https://api.reverb.test/api/listings/12345",
		httpmock.NewStringResponder(200, "<html>maintenance</html>"))

	_, err := r.Fetch(context.Background(), store.SourceRef{SourceID: SourceReverb, Locator: "12345"})
	require.Error(t, err)
	require.False(t, IsPermanent(err))
}

func TestReverbEmptyLocator(t *testing.T) {
	r := newTestReverb(t)

	_, err := r.Fetch(context.Background(), store.SourceRef{SourceID: SourceReverb})
	require.Error(t, err)
	require.True(t, IsPermanent(err))
}
