package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gmaps-engine/internal/domain"
)

var istanbul = domain.GeoPoint{Lat: 41.0, Lng: 29.0}

func TestPlanIsDeterministic(t *testing.T) {
	area := Area{Center: istanbul, WidthKM: 5, HeightKM: 5, PointRadiusM: 800}

	first, err := Plan(area)
	require.NoError(t, err)
	second, err := Plan(area)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	// 6x6 lattice, the last column of each staggered row falls outside the box.
	assert.Len(t, first, 33)
}

func TestPlanStaysInsideBounds(t *testing.T) {
	area := Area{Center: istanbul, WidthKM: 5, HeightKM: 5, PointRadiusM: 800}
	b := area.Bounds()
	pts, err := Plan(area)
	require.NoError(t, err)

	rows := int(math.Ceil(5000/area.Spacing())) + 1
	cols := int(math.Ceil(5000/area.Spacing())) + 1
	latTol := (b.North - b.South) / float64(rows-1) / 4
	lngTol := (b.East - b.West) / float64(cols-1) / 4

	for _, p := range pts {
		assert.GreaterOrEqual(t, p.Lat, b.South-latTol)
		assert.LessOrEqual(t, p.Lat, b.North+latTol)
		assert.GreaterOrEqual(t, p.Lng, b.West-lngTol)
		assert.LessOrEqual(t, p.Lng, b.East+lngTol)
	}
}

func TestPlanOrdering(t *testing.T) {
	pts, err := Plan(Area{Center: istanbul, WidthKM: 3, HeightKM: 3, PointRadiusM: 500})
	require.NoError(t, err)
	require.NotEmpty(t, pts)

	for i := 1; i < len(pts); i++ {
		prev, cur := pts[i-1], pts[i]
		if cur.Lat == prev.Lat {
			assert.Greater(t, cur.Lng, prev.Lng, "west to east inside a row")
		} else {
			assert.Less(t, cur.Lat, prev.Lat, "rows run north to south")
		}
	}
}

func TestPlanStaggersOddRows(t *testing.T) {
	pts, err := Plan(Area{Center: istanbul, WidthKM: 5, HeightKM: 5, PointRadiusM: 800})
	require.NoError(t, err)

	// row 0 has six points, row 1 starts half a column east of row 0.
	row0, row1 := pts[0], pts[6]
	step := pts[1].Lng - pts[0].Lng
	assert.InDelta(t, row0.Lng+step/2, row1.Lng, 1e-9)
	assert.Less(t, row1.Lat, row0.Lat)
}

func TestPlanRejectsInvalidArea(t *testing.T) {
	cases := map[string]Area{
		"zero radius":     {Center: istanbul, WidthKM: 5, HeightKM: 5, PointRadiusM: 0},
		"negative radius": {Center: istanbul, WidthKM: 5, HeightKM: 5, PointRadiusM: -10},
		"negative width":  {Center: istanbul, WidthKM: -1, HeightKM: 5, PointRadiusM: 800},
		"nan height":      {Center: istanbul, WidthKM: 5, HeightKM: math.NaN(), PointRadiusM: 800},
		"bad center":      {Center: domain.GeoPoint{Lat: 91, Lng: 0}, WidthKM: 5, HeightKM: 5, PointRadiusM: 800},
	}
	for name, area := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Plan(area)
			require.ErrorIs(t, err, ErrInvalidArea)
		})
	}
}

func TestPlanZeroExtentIsSinglePoint(t *testing.T) {
	pts, err := Plan(Area{Center: istanbul, WidthKM: 0, HeightKM: 0, PointRadiusM: 800})
	require.NoError(t, err)
	require.Len(t, pts, 1)
	assert.InDelta(t, istanbul.Lat, pts[0].Lat, 1e-9)
	assert.InDelta(t, istanbul.Lng, pts[0].Lng, 1e-9)
}

func TestHaversine(t *testing.T) {
	north := Offset(istanbul, 1000, North)
	assert.InDelta(t, 1000, Haversine(istanbul, north), 0.5)
	assert.Zero(t, Haversine(istanbul, istanbul))
}
