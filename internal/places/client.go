// Package places talks to the Google Places API (New) text search and details endpoints.
package places

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/phuslu/log"

	"gmaps-engine/internal/domain"
	"gmaps-engine/internal/ratelimit"
)

const (
	DefaultBaseURL = "https://places.googleapis.com/v1"

	maxResultCount = 20

	searchFieldMask  = "places.id,places.displayName,places.types,places.formattedAddress,places.location,places.rating,places.userRatingCount,places.priceLevel,places.nationalPhoneNumber,places.websiteUri,places.regularOpeningHours,nextPageToken"
	detailsFieldMask = "id,displayName,types,formattedAddress,location,rating,userRatingCount,priceLevel,nationalPhoneNumber,websiteUri,regularOpeningHours"
)

type Config struct {
	BaseURL           string
	APIKey            string
	Language          string
	Region            string
	RequestsPerSecond float64
	Timeout           time.Duration
	// MaxRetries is the total number of attempts per request.
	MaxRetries  int
	BackoffBase time.Duration
	// PageLimit caps how many result pages one Search follows.
	PageLimit int
	PageDelay time.Duration

	HTTPClient *http.Client
	Limiter    *ratelimit.HostLimiter
}

type Client struct {
	cfg     Config
	hc      *http.Client
	limiter *ratelimit.HostLimiter
	sleep   func(ctx context.Context, d time.Duration) error
}

// Query is one text search biased to a circle.
type Query struct {
	Text     string
	Center   domain.GeoPoint
	Radius   float64
	Language string
	Region   string
}

func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrNoAPIKey
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("places: base url: %w", err)
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 2 * time.Second
	}
	if cfg.PageLimit <= 0 {
		cfg.PageLimit = 3
	}

	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	lim := cfg.Limiter
	if lim == nil {
		lim = ratelimit.NewHostLimiter(cfg.RequestsPerSecond, 1)
	}
	return &Client{cfg: cfg, hc: hc, limiter: lim, sleep: sleepCtx}, nil
}

type searchRequest struct {
	TextQuery      string        `json:"textQuery"`
	LocationBias   *locationBias `json:"locationBias,omitempty"`
	LanguageCode   string        `json:"languageCode,omitempty"`
	RegionCode     string        `json:"regionCode,omitempty"`
	MaxResultCount int           `json:"maxResultCount"`
	PageToken      string        `json:"pageToken,omitempty"`
}

type locationBias struct {
	Circle struct {
		Center struct {
			Latitude  float64 `json:"latitude"`
			Longitude float64 `json:"longitude"`
		} `json:"center"`
		Radius float64 `json:"radius"`
	} `json:"circle"`
}

type searchResponse struct {
	Places        []domain.RawPlace `json:"places"`
	NextPageToken string            `json:"nextPageToken"`
}

// Search runs a text search and follows nextPageToken up to the page limit. A
// failure on the first page is returned; later pages are best-effort and a failure
// there returns what was collected so far.
func (c *Client) Search(ctx context.Context, q Query) ([]domain.RawPlace, error) {
	body := searchRequest{
		TextQuery:      q.Text,
		LanguageCode:   firstNonEmpty(q.Language, c.cfg.Language),
		RegionCode:     strings.ToUpper(firstNonEmpty(q.Region, c.cfg.Region)),
		MaxResultCount: maxResultCount,
	}
	if q.Radius > 0 {
		lb := &locationBias{}
		lb.Circle.Center.Latitude = q.Center.Lat
		lb.Circle.Center.Longitude = q.Center.Lng
		lb.Circle.Radius = q.Radius
		body.LocationBias = lb
	}

	endpoint := c.cfg.BaseURL + "/places:searchText"
	var out []domain.RawPlace

	for page := 1; page <= c.cfg.PageLimit; page++ {
		if page > 1 {
			if err := c.sleep(ctx, c.cfg.PageDelay); err != nil {
				return out, nil
			}
		}

		var resp searchResponse
		err := c.withRetry(ctx, func() error {
			return c.do(ctx, http.MethodPost, endpoint, searchFieldMask, "", body, &resp)
		})
		if err != nil {
			if page == 1 {
				return nil, err
			}
			log.Warn().Str("component", "places").Str("query", q.Text).Int("page", page).Err(err).Msg("page fetch failed")
			break
		}

		out = append(out, resp.Places...)
		log.Debug().Str("component", "places").Str("query", q.Text).Int("page", page).Int("results", len(resp.Places)).Msg("page fetched")

		if resp.NextPageToken == "" {
			break
		}
		body.PageToken = resp.NextPageToken
	}
	return out, nil
}

// Details fetches a single place. A 404 returns (nil, nil).
func (c *Client) Details(ctx context.Context, id, language string) (*domain.RawPlace, error) {
	id = strings.TrimPrefix(strings.TrimSpace(id), "places/")
	if id == "" {
		return nil, errors.New("places: empty place id")
	}
	endpoint := c.cfg.BaseURL + "/places/" + url.PathEscape(id)

	var p domain.RawPlace
	err := c.withRetry(ctx, func() error {
		return c.do(ctx, http.MethodGet, endpoint, detailsFieldMask, firstNonEmpty(language, c.cfg.Language), nil, &p)
	})
	if err != nil {
		var ae *APIError
		if errors.As(err, &ae) && ae.Status == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// Probe issues one minimal search to check that the key is accepted.
func (c *Client) Probe(ctx context.Context) error {
	body := searchRequest{TextQuery: "dentist", MaxResultCount: 1, LanguageCode: c.cfg.Language}
	var resp searchResponse
	return c.do(ctx, http.MethodPost, c.cfg.BaseURL+"/places:searchText", "places.id", "", body, &resp)
}

func (c *Client) withRetry(ctx context.Context, fn func() error) error {
	delay := c.cfg.BackoffBase
	var last error
	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		last = fn()
		if last == nil {
			return nil
		}
		if !IsTransient(last) {
			return last
		}
		if attempt == c.cfg.MaxRetries {
			break
		}
		log.Warn().Str("component", "places").Int("attempt", attempt).Dur("backoff", delay).Err(last).Msg("retrying")
		wait := c.sleep
		if IsThrottled(last) {
			// holds every caller sharing the limiter for the backoff window
			wait = func(ctx context.Context, d time.Duration) error {
				return c.limiter.Backoff(ctx, c.cfg.BaseURL, d)
			}
		}
		if err := wait(ctx, delay); err != nil {
			return err
		}
		delay *= 2
	}
	return &UpstreamFailure{Attempts: c.cfg.MaxRetries, Last: last}
}

func (c *Client) do(ctx context.Context, method, endpoint, fieldMask, lang string, in, out any) error {
	if err := c.limiter.WaitURL(ctx, endpoint); err != nil {
		return err
	}

	var rdr io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, rdr)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Goog-Api-Key", c.cfg.APIKey)
	req.Header.Set("X-Goog-FieldMask", fieldMask)
	if lang != "" {
		req.Header.Set("Accept-Language", lang)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &TransientError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return &TransientError{Status: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return classify(resp.StatusCode, raw)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("places: decode response: %w", err)
	}
	return nil
}

func classify(status int, raw []byte) error {
	var eb errorBody
	_ = json.Unmarshal(raw, &eb)
	msg := eb.Error.Message
	if msg == "" {
		msg = strings.TrimSpace(string(raw))
		if len(msg) > 200 {
			msg = msg[:200]
		}
	}

	if status == http.StatusTooManyRequests || eb.Error.Status == "RESOURCE_EXHAUSTED" {
		return &TransientError{Status: status, Throttled: true, Err: errors.New(msg)}
	}
	if status >= 500 {
		return &TransientError{Status: status, Err: errors.New(msg)}
	}
	return &APIError{Status: status, Code: eb.Error.Status, Message: msg}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
