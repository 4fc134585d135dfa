// Package normalize turns provider place records into flat domain.Place values and
// drops ids already seen during the current run.
package normalize

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"gmaps-engine/internal/domain"
)

// Scope is the set of place ids emitted during one run.
type Scope struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewScope() *Scope {
	return &Scope{seen: make(map[string]struct{})}
}

// Mark records id and reports whether it was new.
func (s *Scope) Mark(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[id]; ok {
		return false
	}
	s.seen[id] = struct{}{}
	return true
}

type Normalizer struct {
	scope *Scope
	now   func() time.Time
}

// New returns a Normalizer bound to scope. A nil now uses time.Now.
func New(scope *Scope, now func() time.Time) *Normalizer {
	if scope == nil {
		scope = NewScope()
	}
	if now == nil {
		now = time.Now
	}
	return &Normalizer{scope: scope, now: now}
}

// Normalize returns nil when raw has no id or its id was already emitted in this
// scope. Empty city/district fall back to the address heuristics.
func (n *Normalizer) Normalize(raw domain.RawPlace, term, city, district string) *domain.Place {
	id := raw.PlaceID()
	if id == "" || !n.scope.Mark(id) {
		return nil
	}

	addr := cleanText(raw.FormattedAddress)
	if city == "" {
		city = CityFromAddress(addr)
	}
	if district == "" {
		district = DistrictFromAddress(addr)
	}

	p := &domain.Place{
		ID:    id,
		Name:  cleanText(raw.DisplayName.Text),
		Types: append([]string{}, raw.Types...),
		Contact: domain.Contact{
			Phone:   strings.TrimSpace(raw.NationalPhoneNumber),
			Website: CanonicalWebsite(raw.WebsiteURI),
		},
		Location: domain.PlaceLocation{
			Address:    addr,
			City:       city,
			District:   district,
			PostalCode: PostalCode(addr),
		},
		Details: domain.Details{
			Rating:           raw.Rating,
			UserRatingsTotal: raw.UserRatingCount,
			PriceLevel:       PriceLevel(raw.PriceLevel),
			OpeningHours:     OpeningHours(raw.RegularOpeningHours),
		},
		Metadata: domain.Metadata{
			RetrievedAt: n.now().UTC(),
			SearchTerm:  term,
		},
	}
	if raw.Location != nil {
		lat, lng := raw.Location.Latitude, raw.Location.Longitude
		p.Location.Latitude = &lat
		p.Location.Longitude = &lng
	}
	return p
}

// CityFromAddress takes the second-to-last comma segment ("..., Kadıköy, İstanbul, Türkiye").
func CityFromAddress(addr string) string {
	return segmentFromEnd(addr, 2)
}

// DistrictFromAddress takes the third-to-last comma segment.
func DistrictFromAddress(addr string) string {
	return segmentFromEnd(addr, 3)
}

func segmentFromEnd(addr string, n int) string {
	if addr == "" {
		return ""
	}
	parts := strings.Split(addr, ",")
	if len(parts) < n {
		return ""
	}
	return strings.TrimSpace(parts[len(parts)-n])
}

var postalRe = regexp.MustCompile(`\b\d{5}\b`)

func PostalCode(addr string) string {
	return postalRe.FindString(addr)
}

var priceLevels = map[string]int{
	"PRICE_LEVEL_FREE":           0,
	"PRICE_LEVEL_INEXPENSIVE":    1,
	"PRICE_LEVEL_MODERATE":       2,
	"PRICE_LEVEL_EXPENSIVE":      3,
	"PRICE_LEVEL_VERY_EXPENSIVE": 4,
}

// PriceLevel maps the provider enum to 0..4; unknown or unspecified is nil.
func PriceLevel(s string) *int {
	v, ok := priceLevels[strings.ToUpper(strings.TrimSpace(s))]
	if !ok {
		return nil
	}
	return &v
}

var dayNames = [7]string{"sunday", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday"}

// OpeningHours groups periods by opening day as "HH:MM-HH:MM". Periods without a
// close time (open around the clock) are skipped.
func OpeningHours(h *domain.RawOpenHours) map[string][]string {
	if h == nil || len(h.Periods) == 0 {
		return nil
	}
	out := map[string][]string{}
	for _, p := range h.Periods {
		if p.Open == nil || p.Close == nil {
			continue
		}
		if p.Open.Day < 0 || p.Open.Day > 6 {
			continue
		}
		day := dayNames[p.Open.Day]
		out[day] = append(out[day], fmt.Sprintf("%02d:%02d-%02d:%02d",
			p.Open.Hour, p.Open.Minute, p.Close.Hour, p.Close.Minute))
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func cleanText(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	return strings.Join(strings.Fields(s), " ")
}
