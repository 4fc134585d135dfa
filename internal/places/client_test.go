package places

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gmaps-engine/internal/domain"
	"gmaps-engine/internal/ratelimit"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := New(Config{
		BaseURL:     srv.URL,
		APIKey:      "test-key",
		Language:    "tr",
		Region:      "tr",
		MaxRetries:  3,
		BackoffBase: time.Millisecond,
		PageLimit:   3,
	})
	require.NoError(t, err)
	c.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	return c
}

func TestSearchFollowsPages(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/places:searchText", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Goog-Api-Key"))
		assert.NotEmpty(t, r.Header.Get("X-Goog-FieldMask"))

		var req searchRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "TR", req.RegionCode)
		assert.Equal(t, 20, req.MaxResultCount)
		if assert.NotNil(t, req.LocationBias) {
			assert.Equal(t, 800.0, req.LocationBias.Circle.Radius)
		}

		n := atomic.AddInt32(&calls, 1)
		resp := searchResponse{Places: []domain.RawPlace{{ID: "places/p" + string(rune('0'+n))}}}
		if n < 5 {
			resp.NextPageToken = "tok"
		}
		_ = json.NewEncoder(w).Encode(resp)
	})

	got, err := c.Search(context.Background(), Query{Text: "dentist", Center: domain.GeoPoint{Lat: 41, Lng: 29}, Radius: 800})
	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
	assert.Equal(t, "p1", got[0].PlaceID())
}

func TestSearchRetriesTransient(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"code":429,"message":"slow down","status":"RESOURCE_EXHAUSTED"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(searchResponse{Places: []domain.RawPlace{{ID: "a"}}})
	})

	got, err := c.Search(context.Background(), Query{Text: "dentist"})
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestThrottledRetryPausesSharedLimiter(t *testing.T) {
	var (
		calls int32
		mu    sync.Mutex
		seen  []time.Time
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, time.Now())
		mu.Unlock()
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"code":429,"message":"quota","status":"RESOURCE_EXHAUSTED"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(searchResponse{Places: []domain.RawPlace{{ID: "a"}}})
	}))
	t.Cleanup(srv.Close)

	c, err := New(Config{
		BaseURL:     srv.URL,
		APIKey:      "test-key",
		MaxRetries:  3,
		BackoffBase: 50 * time.Millisecond,
		Limiter:     ratelimit.NewHostLimiter(100, 1),
	})
	require.NoError(t, err)
	// plain sleeps are free here, so any gap comes from the limiter backoff.
	c.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }

	got, err := c.Search(context.Background(), Query{Text: "dentist"})
	require.NoError(t, err)
	assert.Len(t, got, 1)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 2)
	assert.GreaterOrEqual(t, seen[1].Sub(seen[0]), 40*time.Millisecond)
}

func TestServerErrorIsNotThrottled(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	_, err := c.Search(context.Background(), Query{Text: "dentist"})
	require.Error(t, err)
	assert.True(t, IsTransient(err))
	assert.False(t, IsThrottled(err))
}

func TestSearchGivesUp(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := c.Search(context.Background(), Query{Text: "dentist"})
	var uf *UpstreamFailure
	require.ErrorAs(t, err, &uf)
	assert.Equal(t, 3, uf.Attempts)
	assert.True(t, IsTransient(err))
}

func TestSearchRejectedNotRetried(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"code":403,"message":"API key not valid","status":"PERMISSION_DENIED"}}`))
	})

	_, err := c.Search(context.Background(), Query{Text: "dentist"})
	var ae *APIError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "PERMISSION_DENIED", ae.Code)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestSearchLaterPageFailureKeepsResults(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			_ = json.NewEncoder(w).Encode(searchResponse{Places: []domain.RawPlace{{ID: "a"}, {ID: "b"}}, NextPageToken: "t"})
			return
		}
		w.WriteHeader(http.StatusBadRequest)
	})

	got, err := c.Search(context.Background(), Query{Text: "dentist"})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestDetails(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/places/known":
			assert.Equal(t, "tr", r.Header.Get("Accept-Language"))
			_ = json.NewEncoder(w).Encode(domain.RawPlace{ID: "known", FormattedAddress: "x"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	p, err := c.Details(context.Background(), "places/known", "")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "x", p.FormattedAddress)

	p, err = c.Details(context.Background(), "missing", "")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestNewRequiresKey(t *testing.T) {
	_, err := New(Config{})
	assert.True(t, errors.Is(err, ErrNoAPIKey))
}
