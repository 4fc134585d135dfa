package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gmaps-engine/internal/batch"
	"gmaps-engine/internal/domain"
	"gmaps-engine/internal/geo"
	"gmaps-engine/internal/normalize"
	"gmaps-engine/internal/places"
)

type fakeSearcher struct {
	mu      sync.Mutex
	calls   []places.Query
	respond func(n int, q places.Query) ([]domain.RawPlace, error)
}

func (f *fakeSearcher) Search(_ context.Context, q places.Query) ([]domain.RawPlace, error) {
	f.mu.Lock()
	f.calls = append(f.calls, q)
	n := len(f.calls)
	f.mu.Unlock()
	return f.respond(n, q)
}

type memSink struct {
	mu    sync.Mutex
	files map[string]int
	err   error
}

func (m *memSink) Save(_ context.Context, recs []domain.Place, name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	if m.files == nil {
		m.files = map[string]int{}
	}
	m.files[name] = len(recs)
	return name, nil
}

func raw(id string) domain.RawPlace {
	r := domain.RawPlace{ID: "places/" + id, FormattedAddress: "Moda, Kadıköy, İstanbul, Türkiye"}
	r.DisplayName.Text = id
	return r
}

var noWait = CheckpointFunc(func(context.Context) error { return nil })

func newPipeline(s Searcher, sink batch.Sink, threshold int) *Pipeline {
	w := batch.NewWriter(sink, batch.Options{Threshold: threshold})
	return New(s, normalize.New(normalize.NewScope(), nil), w, Settings{
		Language: "tr", Region: "tr", DefaultRadius: 15000,
		GridWidthKM: 5, GridHeightKM: 5, GridRadiusM: 800,
	}, WithSleep(func(ctx context.Context, _ time.Duration) error { return ctx.Err() }))
}

var center = domain.GeoPoint{Lat: 41, Lng: 29}

func TestGridDedupsAcrossPoints(t *testing.T) {
	fs := &fakeSearcher{respond: func(n int, _ places.Query) ([]domain.RawPlace, error) {
		// every point returns a shared place plus one of its own.
		return []domain.RawPlace{raw("shared"), raw(fmt.Sprintf("p%d", n))}, nil
	}}
	p := newPipeline(fs, &memSink{}, 20)

	res, err := p.Grid(context.Background(), noWait, Request{Term: "dentist", Center: center},
		geo.Area{Center: center, WidthKM: 5, HeightKM: 5, PointRadiusM: 800})
	require.NoError(t, err)

	assert.Equal(t, 33, res.Points)
	assert.Len(t, fs.calls, 33)
	assert.Len(t, res.Places, 34)
	assert.Equal(t, 66, res.RawResults)
	assert.Equal(t, 800.0, fs.calls[0].Radius)
	assert.Equal(t, "tr", fs.calls[0].Language)
}

func TestGridSkipsFailedPoints(t *testing.T) {
	fs := &fakeSearcher{respond: func(n int, _ places.Query) ([]domain.RawPlace, error) {
		if n%2 == 0 {
			return nil, &places.UpstreamFailure{Attempts: 3, Last: errors.New("503")}
		}
		return []domain.RawPlace{raw(fmt.Sprintf("p%d", n))}, nil
	}}
	p := newPipeline(fs, &memSink{}, 20)

	res, err := p.Grid(context.Background(), noWait, Request{Term: "dentist"},
		geo.Area{Center: center, WidthKM: 5, HeightKM: 5, PointRadiusM: 800})
	require.NoError(t, err)
	assert.Equal(t, 16, res.FailedPoints)
	assert.Len(t, res.Places, 17)
}

func TestGridStopsAtCheckpoint(t *testing.T) {
	fs := &fakeSearcher{respond: func(n int, _ places.Query) ([]domain.RawPlace, error) {
		return []domain.RawPlace{raw(fmt.Sprintf("p%d", n))}, nil
	}}
	p := newPipeline(fs, &memSink{}, 20)

	waits := 0
	cp := CheckpointFunc(func(context.Context) error {
		waits++
		if waits > 4 {
			return ErrStopped
		}
		return nil
	})
	res, err := p.Grid(context.Background(), cp, Request{Term: "dentist"},
		geo.Area{Center: center, WidthKM: 5, HeightKM: 5, PointRadiusM: 800})
	require.ErrorIs(t, err, ErrStopped)
	assert.Len(t, res.Places, 4)
	assert.Len(t, fs.calls, 4)
}

func TestGridInvalidArea(t *testing.T) {
	p := newPipeline(&fakeSearcher{}, &memSink{}, 20)
	_, err := p.Grid(context.Background(), noWait, Request{}, geo.Area{Center: center, PointRadiusM: 0})
	assert.ErrorIs(t, err, geo.ErrInvalidArea)
}

func TestSearchFlushesPerLocation(t *testing.T) {
	fs := &fakeSearcher{respond: func(int, places.Query) ([]domain.RawPlace, error) {
		return []domain.RawPlace{raw("a"), raw("b"), raw("c")}, nil
	}}
	sink := &memSink{}
	p := newPipeline(fs, sink, 20)

	target := domain.Target{City: "İstanbul", District: "Kadıköy", Method: domain.MethodStandard, Center: center, HasCenter: true}
	res, err := p.Search(context.Background(), noWait, target, "diş kliniği")
	require.NoError(t, err)
	assert.Len(t, res.Places, 3)
	assert.Equal(t, 15000.0, fs.calls[0].Radius)
	assert.Zero(t, p.Writer().Pending())
	require.Len(t, sink.files, 1)
	for name, n := range sink.files {
		assert.True(t, strings.HasPrefix(name, "dental_clinics_"+strings.ToLower("İstanbul")+"_kadıköy_diş_kliniği_"), name)
		assert.Equal(t, 3, n)
	}

	// the same places under another term are duplicates.
	res, err = p.Search(context.Background(), noWait, target, "dentist")
	require.NoError(t, err)
	assert.Empty(t, res.Places)
	assert.Len(t, sink.files, 1)
}

func TestRetainedRecordsKeepTheirLocation(t *testing.T) {
	fs := &fakeSearcher{respond: func(n int, _ places.Query) ([]domain.RawPlace, error) {
		return []domain.RawPlace{raw(fmt.Sprintf("p%d", n))}, nil
	}}
	sink := &memSink{err: errors.New("disk full")}
	p := newPipeline(fs, sink, 20)

	kadikoy := domain.Target{City: "İstanbul", District: "Kadıköy", Method: domain.MethodStandard, Center: center, HasCenter: true}
	_, err := p.Search(context.Background(), noWait, kadikoy, "dentist")
	var fe *batch.FlushError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, 1, p.Writer().Pending())

	sink.mu.Lock()
	sink.err = nil
	sink.mu.Unlock()

	ankara := domain.Target{City: "Ankara", Method: domain.MethodStandard, Center: center, HasCenter: true}
	_, err = p.Search(context.Background(), noWait, ankara, "dentist")
	require.NoError(t, err)
	assert.Zero(t, p.Writer().Pending())

	require.Len(t, sink.files, 2)
	var kadikoyFiles, ankaraFiles int
	for name, n := range sink.files {
		assert.Equal(t, 1, n, name)
		switch {
		case strings.Contains(name, "_kadıköy_dentist_"):
			kadikoyFiles++
		case strings.HasPrefix(name, "dental_clinics_ankara_dentist_"):
			ankaraFiles++
		}
	}
	assert.Equal(t, 1, kadikoyFiles)
	assert.Equal(t, 1, ankaraFiles)
}

func TestStandardFailureReturned(t *testing.T) {
	fs := &fakeSearcher{respond: func(int, places.Query) ([]domain.RawPlace, error) {
		return nil, &places.APIError{Status: 403, Message: "denied"}
	}}
	p := newPipeline(fs, &memSink{}, 20)
	res, err := p.Standard(context.Background(), noWait, Request{Term: "dentist"})
	var ae *places.APIError
	require.ErrorAs(t, err, &ae)
	assert.Empty(t, res.Places)
	assert.Zero(t, res.FailedPoints)
}

func TestSearchRejectsSkip(t *testing.T) {
	p := newPipeline(&fakeSearcher{}, &memSink{}, 20)
	_, err := p.Search(context.Background(), noWait, domain.Target{City: "x", Method: domain.MethodSkip}, "t")
	assert.Error(t, err)
}
