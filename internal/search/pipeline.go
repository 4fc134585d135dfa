// Package search runs standard and grid searches for one location and term,
// normalizing results into a run-scoped batch writer.
package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/phuslu/log"

	"gmaps-engine/internal/batch"
	"gmaps-engine/internal/domain"
	"gmaps-engine/internal/geo"
	"gmaps-engine/internal/normalize"
	"gmaps-engine/internal/places"
)

// ErrStopped is returned when a checkpoint reports the run is stopping.
var ErrStopped = errors.New("search stopped")

// Searcher is the place-search collaborator.
type Searcher interface {
	Search(ctx context.Context, q places.Query) ([]domain.RawPlace, error)
}

// Checkpoint blocks while the run is paused and returns ErrStopped once it is stopping.
type Checkpoint interface {
	Wait(ctx context.Context) error
}

// CheckpointFunc adapts a function to Checkpoint.
type CheckpointFunc func(ctx context.Context) error

func (f CheckpointFunc) Wait(ctx context.Context) error { return f(ctx) }

// Enricher fills in fields the search response does not carry.
type Enricher interface {
	Enrich(ctx context.Context, p *domain.Place) error
}

type Settings struct {
	Language      string
	Region        string
	DefaultRadius float64
	RequestDelay  time.Duration
	GridWidthKM   float64
	GridHeightKM  float64
	GridRadiusM   float64
}

// Request is one search term at one location.
type Request struct {
	Term     string
	City     string
	District string
	Center   domain.GeoPoint
}

type Result struct {
	Places []domain.Place
	Points int
	// FailedPoints counts grid points skipped after an upstream failure.
	FailedPoints int
	// RawResults counts provider records before dedup.
	RawResults int
}

type Pipeline struct {
	client   Searcher
	norm     *normalize.Normalizer
	writer   *batch.Writer
	enricher Enricher
	settings Settings
	sleep    func(ctx context.Context, d time.Duration) error
}

type Option func(*Pipeline)

func WithEnricher(e Enricher) Option { return func(p *Pipeline) { p.enricher = e } }

func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(p *Pipeline) { p.sleep = fn }
}

// New wires a pipeline for one run. norm and writer must not be shared across runs.
func New(client Searcher, norm *normalize.Normalizer, writer *batch.Writer, s Settings, opts ...Option) *Pipeline {
	p := &Pipeline{
		client:   client,
		norm:     norm,
		writer:   writer,
		settings: s,
		sleep:    sleepCtx,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Search runs the method the target asks for and flushes what the search buffered.
func (p *Pipeline) Search(ctx context.Context, cp Checkpoint, t domain.Target, term string) (Result, error) {
	req := Request{Term: term, City: t.City, District: t.District, Center: t.Center}
	p.writer.SetNaming(batch.Naming{City: t.City, District: t.District, Term: term})

	var (
		res Result
		err error
	)
	switch t.Method {
	case domain.MethodGrid:
		res, err = p.Grid(ctx, cp, req, geo.Area{
			Center:       t.Center,
			WidthKM:      p.settings.GridWidthKM,
			HeightKM:     p.settings.GridHeightKM,
			PointRadiusM: p.settings.GridRadiusM,
		})
	case domain.MethodStandard:
		res, err = p.Standard(ctx, cp, req)
	default:
		return Result{}, fmt.Errorf("unsupported search method %q", t.Method)
	}

	// Whatever made it into the buffer is persisted even on stop.
	if ferr := p.writer.Flush(ctx); ferr != nil && err == nil {
		err = ferr
	}
	return res, err
}

// Standard is a single search over DefaultRadius.
func (p *Pipeline) Standard(ctx context.Context, cp Checkpoint, req Request) (Result, error) {
	if err := cp.Wait(ctx); err != nil {
		return Result{}, err
	}
	res := Result{Points: 1}
	raws, err := p.client.Search(ctx, p.query(req.Term, req.Center, p.settings.DefaultRadius))
	if err != nil {
		return res, err
	}
	if err := p.collect(ctx, req, raws, &res); err != nil {
		return res, err
	}
	return res, nil
}

// Grid searches every planned point in order. A failing point is logged and
// skipped; a stop request returns the partial result with ErrStopped.
func (p *Pipeline) Grid(ctx context.Context, cp Checkpoint, req Request, area geo.Area) (Result, error) {
	pts, err := geo.Plan(area)
	if err != nil {
		return Result{}, err
	}

	log.Info().Str("component", "search").Str("term", req.Term).Str("city", req.City).Str("district", req.District).
		Int("points", len(pts)).Float64("radius_m", area.PointRadiusM).Msg("grid search")

	var res Result
	for i, pt := range pts {
		if err := cp.Wait(ctx); err != nil {
			return res, err
		}
		if i > 0 {
			if err := p.sleep(ctx, p.settings.RequestDelay); err != nil {
				return res, err
			}
		}

		res.Points++
		raws, err := p.client.Search(ctx, p.query(req.Term, pt, area.PointRadiusM))
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			res.FailedPoints++
			log.Warn().Str("component", "search").Str("term", req.Term).Int("point", i+1).Int("of", len(pts)).
				Float64("lat", pt.Lat).Float64("lng", pt.Lng).Err(err).Msg("grid point failed")
			continue
		}
		if err := p.collect(ctx, req, raws, &res); err != nil {
			return res, err
		}
	}
	return res, nil
}

// Close flushes anything still buffered at the end of a run.
func (p *Pipeline) Close(ctx context.Context) error {
	return p.writer.Flush(ctx)
}

func (p *Pipeline) Writer() *batch.Writer { return p.writer }

// Delay sleeps for the configured pause between searches.
func (p *Pipeline) Delay(ctx context.Context) error {
	return p.sleep(ctx, p.settings.RequestDelay)
}

func (p *Pipeline) collect(ctx context.Context, req Request, raws []domain.RawPlace, res *Result) error {
	res.RawResults += len(raws)
	for _, r := range raws {
		pl := p.norm.Normalize(r, req.Term, req.City, req.District)
		if pl == nil {
			continue
		}
		if p.enricher != nil && pl.Contact.Website != "" {
			if err := p.enricher.Enrich(ctx, pl); err != nil {
				log.Debug().Str("component", "search").Str("place", pl.ID).Err(err).Msg("enrich failed")
			}
		}
		if err := p.writer.Add(ctx, *pl); err != nil {
			return err
		}
		res.Places = append(res.Places, *pl)
	}
	return nil
}

func (p *Pipeline) query(term string, center domain.GeoPoint, radius float64) places.Query {
	return places.Query{
		Text:     term,
		Center:   center,
		Radius:   radius,
		Language: p.settings.Language,
		Region:   p.settings.Region,
	}
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
