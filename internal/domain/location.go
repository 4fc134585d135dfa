package domain

import "strings"

// SearchMethod selects how a location is covered.
type SearchMethod string

const (
	MethodSkip     SearchMethod = "skip"
	MethodStandard SearchMethod = "standard"
	MethodGrid     SearchMethod = "grid"
)

// Active reports whether the method schedules any search.
func (m SearchMethod) Active() bool {
	switch SearchMethod(strings.ToLower(string(m))) {
	case MethodStandard, MethodGrid:
		return true
	default:
		return false
	}
}

// Target is one unit of work for the coordinator: a city or a district.
type Target struct {
	City     string       `json:"city"`
	District string       `json:"district,omitempty"`
	Method   SearchMethod `json:"method"`
	Center   GeoPoint     `json:"center"`
	// HasCenter is false when the catalog has no coordinates for the location.
	HasCenter bool `json:"-"`
}

// Label renders "City/District" or "City/city" for city-level targets.
func (t Target) Label() string {
	if t.District == "" {
		return t.City + "/city"
	}
	return t.City + "/" + t.District
}
