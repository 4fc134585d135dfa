// Package geo plans grid searches over rectangular areas.
//
// The planner uses a flat spherical approximation around the area center: it is
// fine for city-sized areas and wrong near the poles or across the antimeridian.
package geo

import (
	"errors"
	"fmt"
	"math"

	"gmaps-engine/internal/domain"
)

const (
	EarthRadiusMeters = 6371000.0

	// spacingFactor keeps neighbouring circles overlapping so the lattice has no
	// gaps; sqrt(3) would be the tight hexagonal bound.
	spacingFactor = 1.5
)

var ErrInvalidArea = errors.New("invalid search area")

// Area is a rectangle around Center covered by circles of PointRadiusM.
type Area struct {
	Center       domain.GeoPoint `json:"center"`
	WidthKM      float64         `json:"width_km"`
	HeightKM     float64         `json:"height_km"`
	PointRadiusM float64         `json:"point_radius_m"`
}

func (a Area) validate() error {
	switch {
	case !a.Center.Valid():
		return fmt.Errorf("%w: center %v out of range", ErrInvalidArea, a.Center)
	case !(a.PointRadiusM > 0) || math.IsInf(a.PointRadiusM, 0):
		return fmt.Errorf("%w: point radius must be > 0, got %v", ErrInvalidArea, a.PointRadiusM)
	case !(a.WidthKM >= 0) || !(a.HeightKM >= 0) || math.IsInf(a.WidthKM, 0) || math.IsInf(a.HeightKM, 0):
		return fmt.Errorf("%w: width/height must be >= 0, got %vx%v", ErrInvalidArea, a.WidthKM, a.HeightKM)
	}
	return nil
}

// Bounds is the bounding box derived from an Area.
type Bounds struct {
	North, South, East, West float64
}

// Spacing returns the distance in meters between neighbouring grid points.
func (a Area) Spacing() float64 { return a.PointRadiusM * spacingFactor }

// Bounds projects the four edge midpoints from the center.
func (a Area) Bounds() Bounds {
	halfW := a.WidthKM * 1000 / 2
	halfH := a.HeightKM * 1000 / 2
	return Bounds{
		North: Offset(a.Center, halfH, North).Lat,
		South: Offset(a.Center, halfH, South).Lat,
		East:  Offset(a.Center, halfW, East).Lng,
		West:  Offset(a.Center, halfW, West).Lng,
	}
}

type Direction int

const (
	North Direction = iota
	South
	East
	West
)

// Offset moves p by meters along a cardinal direction.
func Offset(p domain.GeoPoint, meters float64, dir Direction) domain.GeoPoint {
	lat := radians(p.Lat)
	lng := radians(p.Lng)
	d := meters / EarthRadiusMeters

	switch dir {
	case North:
		lat += d
	case South:
		lat -= d
	case East:
		lng += d / math.Cos(lat)
	case West:
		lng -= d / math.Cos(lat)
	}
	return domain.GeoPoint{Lat: degrees(lat), Lng: degrees(lng)}
}

// Plan returns the search centers covering a, row-major from north to south and
// west to east inside each row. Odd rows are shifted east by half a column so the
// circles interlock.
func Plan(a Area) ([]domain.GeoPoint, error) {
	if err := a.validate(); err != nil {
		return nil, err
	}

	b := a.Bounds()
	spacing := a.Spacing()

	rows := int(math.Ceil(a.HeightKM*1000/spacing)) + 1
	cols := int(math.Ceil(a.WidthKM*1000/spacing)) + 1

	latStep := step(b.North-b.South, rows)
	lngStep := step(b.East-b.West, cols)

	latTol := latStep / 4
	lngTol := lngStep / 4

	out := make([]domain.GeoPoint, 0, rows*cols)
	for i := 0; i < rows; i++ {
		lat := b.North - float64(i)*latStep
		if lat < b.South-latTol || lat > b.North+latTol {
			continue
		}
		offset := 0.0
		if i%2 == 1 {
			offset = lngStep / 2
		}
		for j := 0; j < cols; j++ {
			lng := b.West + float64(j)*lngStep + offset
			if lng < b.West-lngTol || lng > b.East+lngTol {
				continue
			}
			out = append(out, domain.GeoPoint{Lat: lat, Lng: lng})
		}
	}
	return out, nil
}

// EstimatePoints returns the number of centers Plan would produce for a.
func EstimatePoints(a Area) (int, error) {
	pts, err := Plan(a)
	if err != nil {
		return 0, err
	}
	return len(pts), nil
}

func step(extent float64, n int) float64 {
	if n <= 1 {
		return 0
	}
	return extent / float64(n-1)
}

// Haversine returns the great-circle distance in meters.
func Haversine(a, b domain.GeoPoint) float64 {
	lat1, lng1 := radians(a.Lat), radians(a.Lng)
	lat2, lng2 := radians(b.Lat), radians(b.Lng)

	dlat := lat2 - lat1
	dlng := lng2 - lng1
	h := math.Sin(dlat/2)*math.Sin(dlat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dlng/2)*math.Sin(dlng/2)
	return 2 * EarthRadiusMeters * math.Asin(math.Sqrt(h))
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }
func degrees(rad float64) float64 { return rad * 180 / math.Pi }
