package locations

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"gmaps-engine/internal/domain"
)

var ErrEmptySelection = errors.New("no locations selected")

type DistrictSelection struct {
	SearchMethod domain.SearchMethod `json:"search_method"`
}

type CitySelection struct {
	SearchMethod domain.SearchMethod          `json:"search_method"`
	Districts    map[string]DistrictSelection `json:"districts"`
}

// Selection is the user's choice of cities/districts and how to search each.
type Selection struct {
	Cities map[string]CitySelection `json:"cities"`
}

// LoadSelection reads a saved selection file, used by scheduled runs.
func LoadSelection(path string) (Selection, error) {
	var sel Selection
	b, err := os.ReadFile(path)
	if err != nil {
		return sel, err
	}
	if err := json.Unmarshal(b, &sel); err != nil {
		return sel, fmt.Errorf("parse %s: %w", path, err)
	}
	return sel, nil
}

func normMethod(m domain.SearchMethod) domain.SearchMethod {
	return domain.SearchMethod(strings.ToLower(strings.TrimSpace(string(m))))
}

// Targets expands sel into work units: every active district, plus the city itself
// when the city method is active and none of its districts are. Cities and
// districts are visited in name order. Coordinates come from cat when known.
func Targets(sel Selection, cat *Catalog) []domain.Target {
	var out []domain.Target
	for _, city := range sortedKeys(sel.Cities) {
		cs := sel.Cities[city]

		var districts []domain.Target
		for _, d := range sortedKeys(cs.Districts) {
			m := normMethod(cs.Districts[d].SearchMethod)
			if !m.Active() {
				continue
			}
			t := domain.Target{City: city, District: d, Method: m}
			t.Center, t.HasCenter = cat.Lookup(city, d)
			districts = append(districts, t)
		}

		if m := normMethod(cs.SearchMethod); m.Active() && len(districts) == 0 {
			t := domain.Target{City: city, Method: m}
			t.Center, t.HasCenter = cat.Lookup(city, "")
			out = append(out, t)
		}
		out = append(out, districts...)
	}
	return out
}

type Validation struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

func (v *Validation) addErr(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
	v.Valid = false
}

func (v *Validation) addWarn(format string, args ...any) {
	v.Warnings = append(v.Warnings, fmt.Sprintf(format, args...))
}

// Validate checks sel against cat. Unknown names and bad methods are errors;
// locations without coordinates are warnings because the run skips them.
func Validate(sel Selection, cat *Catalog) Validation {
	v := Validation{Valid: true, Errors: []string{}, Warnings: []string{}}

	for _, city := range sortedKeys(sel.Cities) {
		cs := sel.Cities[city]
		if !validMethod(cs.SearchMethod) {
			v.addErr("city %s: unknown search_method %q", city, cs.SearchMethod)
		}
		cd, known := City{}, false
		if cat != nil {
			cd, known = cat.Cities[city]
		}
		if cat != nil && !known {
			v.addErr("City not found: %s", city)
			continue
		}
		for _, d := range sortedKeys(cs.Districts) {
			if !validMethod(cs.Districts[d].SearchMethod) {
				v.addErr("district %s/%s: unknown search_method %q", city, d, cs.Districts[d].SearchMethod)
			}
			if cat != nil {
				if _, ok := cd.Districts[d]; !ok {
					v.addErr("District not found: %s/%s", city, d)
				}
			}
		}
	}

	targets := Targets(sel, cat)
	if len(targets) == 0 {
		v.addErr("%s", ErrEmptySelection.Error())
	}
	for _, t := range targets {
		if !t.HasCenter {
			v.addWarn("no coordinates for %s", t.Label())
		}
	}
	return v
}

func validMethod(m domain.SearchMethod) bool {
	switch normMethod(m) {
	case "", domain.MethodSkip, domain.MethodStandard, domain.MethodGrid:
		return true
	}
	return false
}
