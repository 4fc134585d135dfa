// Package locations loads the city/district coordinate catalog and turns a user
// selection into an ordered list of search targets.
package locations

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gmaps-engine/internal/domain"
)

type Coord struct {
	Lat *float64 `json:"lat"`
	Lng *float64 `json:"lng"`
}

func (c Coord) Point() (domain.GeoPoint, bool) {
	if c.Lat == nil || c.Lng == nil {
		return domain.GeoPoint{}, false
	}
	p := domain.GeoPoint{Lat: *c.Lat, Lng: *c.Lng}
	return p, p.Valid()
}

type District struct {
	Coord
}

type City struct {
	Coord
	Districts map[string]District `json:"districts"`
}

type Metadata struct {
	TotalCities    int       `json:"total_cities"`
	TotalDistricts int       `json:"total_districts"`
	LastUpdated    time.Time `json:"last_updated"`
	SourceFile     string    `json:"source_file"`
}

type Catalog struct {
	Cities   map[string]City `json:"cities"`
	Metadata Metadata        `json:"metadata"`
}

// Load reads a catalog file of the form {"cities":{"İstanbul":{"lat":..,"lng":..,"districts":{...}}}}.
func Load(path string) (*Catalog, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Catalog
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if c.Cities == nil {
		c.Cities = map[string]City{}
	}

	if c.Metadata.TotalCities == 0 {
		c.Metadata.TotalCities = len(c.Cities)
		for _, city := range c.Cities {
			c.Metadata.TotalDistricts += len(city.Districts)
		}
		if st, err := os.Stat(path); err == nil {
			c.Metadata.LastUpdated = st.ModTime().UTC()
		}
		c.Metadata.SourceFile = path
	}
	return &c, nil
}

// Lookup returns the coordinates for a city (district == "") or a district.
func (c *Catalog) Lookup(city, district string) (domain.GeoPoint, bool) {
	if c == nil {
		return domain.GeoPoint{}, false
	}
	cd, ok := c.Cities[city]
	if !ok {
		return domain.GeoPoint{}, false
	}
	if district == "" {
		return cd.Point()
	}
	dd, ok := cd.Districts[district]
	if !ok {
		return domain.GeoPoint{}, false
	}
	return dd.Point()
}

type SearchResult struct {
	Cities    []string `json:"cities"`
	Districts []string `json:"districts"`
}

// Search matches city and district names case-insensitively. Districts are "City/District".
func (c *Catalog) Search(query string, includeDistricts bool) SearchResult {
	q := strings.ToLower(strings.TrimSpace(query))
	res := SearchResult{Cities: []string{}, Districts: []string{}}
	if c == nil {
		return res
	}
	for _, name := range sortedKeys(c.Cities) {
		if strings.Contains(strings.ToLower(name), q) {
			res.Cities = append(res.Cities, name)
		}
		if !includeDistricts {
			continue
		}
		for _, d := range sortedKeys(c.Cities[name].Districts) {
			if strings.Contains(strings.ToLower(d), q) {
				res.Districts = append(res.Districts, name+"/"+d)
			}
		}
	}
	return res
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
