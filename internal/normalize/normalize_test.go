package normalize

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gmaps-engine/internal/domain"
)

var fixed = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func clock() time.Time { return fixed }

func rawPlace(id, addr string) domain.RawPlace {
	r := domain.RawPlace{ID: id, FormattedAddress: addr}
	r.DisplayName.Text = "Gülüş Diş Kliniği"
	return r
}

func TestNormalizeAddressHeuristic(t *testing.T) {
	n := New(NewScope(), clock)
	p := n.Normalize(rawPlace("places/abc", "Caferağa, Moda Cd. No:1, 34710 Kadıköy, İstanbul, Türkiye"), "dentist", "", "")
	require.NotNil(t, p)

	assert.Equal(t, "abc", p.ID)
	assert.Equal(t, "İstanbul", p.Location.City)
	assert.Equal(t, "34710 Kadıköy", p.Location.District)
	assert.Equal(t, "34710", p.Location.PostalCode)
	assert.Equal(t, "dentist", p.Metadata.SearchTerm)
	assert.Equal(t, fixed, p.Metadata.RetrievedAt)
}

func TestNormalizeKadikoyIstanbul(t *testing.T) {
	n := New(nil, clock)
	p := n.Normalize(rawPlace("x1", "Bahariye Cd., Kadıköy, İstanbul, Türkiye"), "dentist", "", "")
	require.NotNil(t, p)
	assert.Equal(t, "İstanbul", p.Location.City)
	assert.Equal(t, "Kadıköy", p.Location.District)
	assert.Empty(t, p.Location.PostalCode)
}

func TestNormalizeExplicitLocationWins(t *testing.T) {
	n := New(nil, clock)
	p := n.Normalize(rawPlace("x1", "A, B, C, D"), "t", "Ankara", "Çankaya")
	require.NotNil(t, p)
	assert.Equal(t, "Ankara", p.Location.City)
	assert.Equal(t, "Çankaya", p.Location.District)
}

func TestNormalizeShortAddress(t *testing.T) {
	n := New(nil, clock)
	p := n.Normalize(rawPlace("x1", "Türkiye"), "t", "", "")
	require.NotNil(t, p)
	assert.Empty(t, p.Location.City)
	assert.Empty(t, p.Location.District)
}

func TestNormalizeDeduplicates(t *testing.T) {
	n := New(NewScope(), clock)
	raw := rawPlace("places/dup", "X, Kadıköy, İstanbul, Türkiye")

	require.NotNil(t, n.Normalize(raw, "diş kliniği", "", ""))
	assert.Nil(t, n.Normalize(raw, "dentist", "", ""))

	var kept []string
	for _, r := range []domain.RawPlace{raw, rawPlace("other", ""), rawPlace("other", "")} {
		if p := n.Normalize(r, "t", "", ""); p != nil {
			kept = append(kept, p.ID)
		}
	}
	assert.Equal(t, []string{"other"}, kept)
}

func TestNormalizeEmptyIDDropped(t *testing.T) {
	n := New(nil, clock)
	assert.Nil(t, n.Normalize(rawPlace("", "addr"), "t", "", ""))
}

func TestNormalizeDetails(t *testing.T) {
	rating := 4.7
	count := 120
	raw := rawPlace("d1", "")
	raw.Rating = &rating
	raw.UserRatingCount = &count
	raw.PriceLevel = "PRICE_LEVEL_MODERATE"
	raw.Location = &domain.RawLatLng{Latitude: 40.99, Longitude: 29.02}
	raw.RegularOpeningHours = &domain.RawOpenHours{Periods: []domain.RawPeriod{
		{Open: &domain.RawTimePoint{Day: 1, Hour: 9}, Close: &domain.RawTimePoint{Day: 1, Hour: 13}},
		{Open: &domain.RawTimePoint{Day: 1, Hour: 14}, Close: &domain.RawTimePoint{Day: 1, Hour: 18, Minute: 30}},
		{Open: &domain.RawTimePoint{Day: 0, Hour: 0}},
	}}

	p := New(nil, clock).Normalize(raw, "t", "", "")
	require.NotNil(t, p)
	assert.Equal(t, &rating, p.Details.Rating)
	assert.Equal(t, &count, p.Details.UserRatingsTotal)
	require.NotNil(t, p.Details.PriceLevel)
	assert.Equal(t, 2, *p.Details.PriceLevel)
	assert.Equal(t, map[string][]string{"monday": {"09:00-13:00", "14:00-18:30"}}, p.Details.OpeningHours)
	require.NotNil(t, p.Location.Latitude)
	assert.InDelta(t, 40.99, *p.Location.Latitude, 1e-9)
}

func TestPriceLevelUnknown(t *testing.T) {
	assert.Nil(t, PriceLevel(""))
	assert.Nil(t, PriceLevel("PRICE_LEVEL_UNSPECIFIED"))
	assert.Equal(t, 4, *PriceLevel("price_level_very_expensive"))
}

func TestCanonicalWebsite(t *testing.T) {
	assert.Equal(t, "https://klinik.com.tr/?lang=tr",
		CanonicalWebsite(" HTTPS://Klinik.COM.tr/?utm_source=gmb&lang=tr&gclid=x#top "))
	assert.Equal(t, "", CanonicalWebsite("  "))
	assert.Equal(t, "not a url", CanonicalWebsite("not a url"))
}
