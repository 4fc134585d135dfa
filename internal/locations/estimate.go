package locations

import (
	"fmt"
	"math"
	"time"

	"gmaps-engine/internal/domain"
	"gmaps-engine/internal/geo"
)

// perCallSeconds is the rough wall time of one text search round trip.
const perCallSeconds = 3.0

type EstimateSettings struct {
	SearchTerms   int
	RequestDelay  time.Duration
	DefaultRadius float64
	GridWidthKM   float64
	GridHeightKM  float64
	GridRadiusM   float64
}

type Estimate struct {
	TotalLocations    int            `json:"total_locations"`
	TotalSearches     int            `json:"total_searches"`
	EstimatedSeconds  float64        `json:"estimated_seconds"`
	EstimatedDuration string         `json:"estimated_duration"`
	MinResults        int            `json:"min_results"`
	MaxResults        int            `json:"max_results"`
	ResultsRange      string         `json:"estimated_results_range"`
	Breakdown         map[string]int `json:"breakdown"`
}

// EstimateRun sizes a run: every target costs one search per term, grid targets
// one per planned point per term. The lattice size does not depend on the
// center, so it is planned once.
func EstimateRun(sel Selection, cat *Catalog, s EstimateSettings) (Estimate, error) {
	if s.SearchTerms <= 0 {
		s.SearchTerms = 1
	}

	gridPoints := 0
	est := Estimate{Breakdown: map[string]int{}}
	for _, t := range Targets(sel, cat) {
		n := s.SearchTerms
		if t.Method == domain.MethodGrid {
			if gridPoints == 0 {
				pts, err := geo.EstimatePoints(geo.Area{
					Center:       t.Center,
					WidthKM:      s.GridWidthKM,
					HeightKM:     s.GridHeightKM,
					PointRadiusM: s.GridRadiusM,
				})
				if err != nil {
					return Estimate{}, err
				}
				gridPoints = pts
			}
			n *= gridPoints
		}
		est.TotalLocations++
		est.TotalSearches += n
		est.Breakdown[t.City] += n
	}

	est.EstimatedSeconds = float64(est.TotalSearches) * (perCallSeconds + s.RequestDelay.Seconds())
	est.EstimatedDuration = humanDuration(est.EstimatedSeconds)

	avg := resultsPerSearch(s.DefaultRadius)
	est.MinResults = int(float64(est.TotalSearches) * avg * 0.5)
	est.MaxResults = int(float64(est.TotalSearches) * avg * 1.5)
	est.ResultsRange = fmt.Sprintf("%d-%d places", est.MinResults, est.MaxResults)
	return est, nil
}

func resultsPerSearch(radius float64) float64 {
	switch {
	case radius <= 5000:
		return 8
	case radius <= 15000:
		return 15
	case radius <= 30000:
		return 25
	default:
		return 35
	}
}

func humanDuration(seconds float64) string {
	minutes := seconds / 60
	if minutes < 60 {
		return fmt.Sprintf("%.0f minutes", minutes)
	}
	h := math.Floor(minutes / 60)
	m := math.Mod(minutes, 60)
	return fmt.Sprintf("%.0fh %.0fm", h, m)
}
