// Package job owns the single scraping operation: its state machine, progress,
// and the observers that watch it.
package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/phuslu/log"

	"gmaps-engine/internal/batch"
	"gmaps-engine/internal/domain"
	"gmaps-engine/internal/locations"
	"gmaps-engine/internal/search"
	"gmaps-engine/internal/store"
)

const DefaultStopTimeout = 5 * time.Second

// History persists run summaries.
type History interface {
	SaveRun(ctx context.Context, r store.Run) error
	ListRuns(ctx context.Context, limit int) ([]store.Run, error)
	DeleteRun(ctx context.Context, id string) (bool, error)
}

type StartRequest struct {
	OperationID string              `json:"operation_id,omitempty"`
	Settings    Settings            `json:"settings"`
	Selection   locations.Selection `json:"locations"`
}

type Options struct {
	Factory     Factory
	Catalog     func() *locations.Catalog
	Defaults    func() Settings
	History     History
	StopTimeout time.Duration
	Now         func() time.Time
}

type Coordinator struct {
	factory     Factory
	catalog     func() *locations.Catalog
	defaults    func() Settings
	history     History
	stopTimeout time.Duration
	now         func() time.Time

	mu       sync.Mutex
	state    State
	progress Progress
	results  Results
	settings Settings
	ctl      *control
	done     chan struct{}
	cancel   context.CancelFunc

	obsMu     sync.Mutex
	observers []Observer
}

func NewCoordinator(opt Options) *Coordinator {
	if opt.Catalog == nil {
		opt.Catalog = func() *locations.Catalog { return nil }
	}
	if opt.Defaults == nil {
		opt.Defaults = func() Settings { return Settings{} }
	}
	if opt.StopTimeout <= 0 {
		opt.StopTimeout = DefaultStopTimeout
	}
	if opt.Now == nil {
		opt.Now = time.Now
	}
	return &Coordinator{
		factory:     opt.Factory,
		catalog:     opt.Catalog,
		defaults:    opt.Defaults,
		history:     opt.History,
		stopTimeout: opt.StopTimeout,
		now:         opt.Now,
		state:       StateIdle,
		progress:    Progress{Status: StateIdle},
	}
}

func (c *Coordinator) AddObserver(o Observer) {
	c.obsMu.Lock()
	c.observers = append(c.observers, o)
	c.obsMu.Unlock()
}

func (c *Coordinator) RemoveObserver(o Observer) {
	c.obsMu.Lock()
	defer c.obsMu.Unlock()
	for i, cur := range c.observers {
		if cur == o {
			c.observers = append(c.observers[:i], c.observers[i+1:]...)
			return
		}
	}
}

// Start validates req and launches the worker. It fails with ErrAlreadyRunning
// while another run is active.
func (c *Coordinator) Start(ctx context.Context, req StartRequest) (string, error) {
	settings := req.Settings.WithDefaults(c.defaults())
	if err := settings.Validate(); err != nil {
		return "", err
	}
	targets := locations.Targets(req.Selection, c.catalog())
	if len(targets) == 0 {
		return "", fmt.Errorf("%w: %v", ErrInvalidSettings, locations.ErrEmptySelection)
	}

	c.mu.Lock()
	if c.state.active() {
		c.mu.Unlock()
		return "", ErrAlreadyRunning
	}

	now := c.now()
	opID := req.OperationID
	if opID == "" {
		opID = now.Format("20060102_150405")
	}
	start := now
	ctl := newControl()
	done := make(chan struct{})
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	c.state = StateRunning
	c.ctl = ctl
	c.done = done
	c.cancel = cancel
	c.settings = settings
	c.progress = Progress{
		Status:         StateRunning,
		OperationID:    opID,
		TotalLocations: len(targets),
		StartTime:      &start,
	}
	c.results = Results{
		OperationID:       opID,
		Status:            StateRunning,
		ResultsByLocation: map[string]int{},
		ResultsByTerm:     map[string]int{},
		StartedAt:         &start,
	}
	snap := c.progress
	c.mu.Unlock()

	c.saveRun(ctx)
	c.emitProgress(snap)
	c.logf(opID, LevelInfo, "", "Started scraping %d locations with %d search terms", len(targets), len(settings.SearchTerms))

	go c.run(runCtx, opID, settings, targets, ctl, done)
	return opID, nil
}

func (c *Coordinator) Pause() error {
	c.mu.Lock()
	if c.state != StateRunning {
		st := c.state
		c.mu.Unlock()
		return &ControlError{Action: "pause", State: st}
	}
	c.ctl.pause()
	c.state = StatePaused
	c.progress.Status = StatePaused
	snap := c.progress
	c.mu.Unlock()

	c.emitProgress(snap)
	c.logf(snap.OperationID, LevelInfo, "", "Scraping operation paused")
	return nil
}

func (c *Coordinator) Resume() error {
	c.mu.Lock()
	if c.state != StatePaused {
		st := c.state
		c.mu.Unlock()
		return &ControlError{Action: "resume", State: st}
	}
	c.ctl.resume()
	c.state = StateRunning
	c.progress.Status = StateRunning
	snap := c.progress
	c.mu.Unlock()

	c.emitProgress(snap)
	c.logf(snap.OperationID, LevelInfo, "", "Scraping operation resumed")
	return nil
}

// Stop asks the worker to halt at its next checkpoint and waits up to the stop
// timeout for it to exit. If the worker is still busy the job stays stopping
// and moves to idle when it finishes.
func (c *Coordinator) Stop() error {
	c.mu.Lock()
	if c.state != StateRunning && c.state != StatePaused {
		st := c.state
		c.mu.Unlock()
		return &ControlError{Action: "stop", State: st}
	}
	c.ctl.stop()
	c.state = StateStopping
	c.progress.Status = StateStopping
	snap := c.progress
	done := c.done
	c.mu.Unlock()

	c.emitProgress(snap)
	c.logf(snap.OperationID, LevelInfo, "", "Stopping scraping operation...")

	t := time.NewTimer(c.stopTimeout)
	defer t.Stop()
	select {
	case <-done:
	case <-t.C:
		log.Warn().Str("component", "job").Str("operation", snap.OperationID).Dur("timeout", c.stopTimeout).Msg("worker still busy after stop timeout")
	}
	return nil
}

// Shutdown stops any active run and, if ctx expires first, cancels in-flight calls.
func (c *Coordinator) Shutdown(ctx context.Context) {
	c.mu.Lock()
	st, done, cancel := c.state, c.done, c.cancel
	c.mu.Unlock()

	if st == StateRunning || st == StatePaused {
		_ = c.Stop()
	}
	if !st.active() || done == nil {
		return
	}
	select {
	case <-done:
	case <-ctx.Done():
		cancel()
		<-done
	}
}

func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.progress
	if p.StartTime != nil && c.state.active() {
		p.recompute(c.now())
	}
	return Status{
		Status:      c.state,
		OperationID: p.OperationID,
		Progress:    p,
		CanStart:    !c.state.active(),
		CanPause:    c.state == StateRunning,
		CanResume:   c.state == StatePaused,
		CanStop:     c.state == StateRunning || c.state == StatePaused,
	}
}

func (c *Coordinator) Results() Results {
	c.mu.Lock()
	defer c.mu.Unlock()
	r := c.results.clone()
	if r.StartedAt != nil && r.FinishedAt == nil {
		r.DurationSeconds = c.now().Sub(*r.StartedAt).Seconds()
	}
	return r
}

func (c *Coordinator) History(ctx context.Context, limit int) ([]store.Run, error) {
	if c.history == nil {
		return []store.Run{}, nil
	}
	return c.history.ListRuns(ctx, limit)
}

// DeleteOperation stops the current run when id names it, otherwise removes id
// from history.
func (c *Coordinator) DeleteOperation(ctx context.Context, id string) error {
	c.mu.Lock()
	current := c.progress.OperationID == id && (c.state == StateRunning || c.state == StatePaused)
	c.mu.Unlock()
	if current {
		return c.Stop()
	}
	if c.history == nil {
		return ErrUnknownOperation
	}
	ok, err := c.history.DeleteRun(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUnknownOperation
	}
	return nil
}

// Wait blocks until the current worker exits or ctx is done.
func (c *Coordinator) Wait(ctx context.Context) error {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) run(ctx context.Context, opID string, s Settings, targets []domain.Target, ctl *control, done chan struct{}) {
	final := StateCompleted
	var failure error

	defer func() {
		if r := recover(); r != nil {
			final = StateError
			failure = fmt.Errorf("worker panic: %v", r)
		}
		c.finish(ctx, opID, final, failure, done)
	}()

	pl, err := c.factory.NewPipeline(ctx, Run{
		OperationID: opID,
		Settings:    s,
		Sleep:       ctl.Sleep,
		OnFlush:     c.onFlush,
	})
	if err != nil {
		final, failure = StateError, fmt.Errorf("build pipeline: %w", err)
		return
	}
	defer func() {
		if err := pl.Close(context.WithoutCancel(ctx)); err != nil {
			c.recordError(opID, "", fmt.Sprintf("final flush failed: %v", err))
		}
	}()

	stopped := false
	for ti, t := range targets {
		if err := ctl.Wait(ctx); err != nil {
			stopped = true
			break
		}
		c.setCurrent(t, "")

		if !t.HasCenter {
			c.logf(opID, LevelWarning, t.Label(), "Invalid coordinates for %s", t.Label())
			c.locationDone()
			continue
		}
		c.logf(opID, LevelInfo, t.Label(), "Searching %s (%s)", t.Label(), t.Method)

		for si, term := range s.SearchTerms {
			if err := ctl.Wait(ctx); err != nil {
				stopped = true
				break
			}
			c.setCurrent(t, term)

			res, err := pl.Search(ctx, ctl, t, term)
			c.addResults(t, term, res)
			if errors.Is(err, search.ErrStopped) || ctx.Err() != nil {
				stopped = true
				break
			}
			if err != nil {
				c.recordError(opID, t.Label(), fmt.Sprintf("Search failed for '%s' in %s: %v", term, t.Label(), err))
			} else {
				c.logf(opID, LevelSuccess, t.Label(), "Found %d results for '%s' in %s", len(res.Places), term, t.Label())
			}

			// no pause after the final search of the run
			if ti == len(targets)-1 && si == len(s.SearchTerms)-1 {
				continue
			}
			if err := pl.Delay(ctx); err != nil {
				stopped = true
				break
			}
		}
		if stopped {
			break
		}
		c.locationDone()
	}

	if stopped {
		final = StateIdle
	}
}

func (c *Coordinator) setCurrent(t domain.Target, term string) {
	c.mu.Lock()
	c.progress.CurrentCity = t.City
	c.progress.CurrentDistrict = t.District
	c.progress.CurrentMethod = string(t.Method)
	c.progress.CurrentTerm = term
	c.progress.recompute(c.now())
	snap := c.progress
	c.mu.Unlock()
	c.emitProgress(snap)
}

func (c *Coordinator) addResults(t domain.Target, term string, res search.Result) {
	c.mu.Lock()
	n := len(res.Places)
	c.progress.ResultsFound += n
	c.progress.ErrorsEncountered += res.FailedPoints
	c.results.TotalResults += n
	c.results.ResultsByLocation[t.Label()] += n
	c.results.ResultsByTerm[term] += n
	c.mu.Unlock()
}

func (c *Coordinator) recordError(opID, location, msg string) {
	c.mu.Lock()
	c.progress.ErrorsEncountered++
	c.results.ErrorMessages = append(c.results.ErrorMessages, msg)
	c.mu.Unlock()
	c.logf(opID, LevelError, location, "%s", msg)
}

func (c *Coordinator) locationDone() {
	c.mu.Lock()
	c.progress.CompletedLocations++
	c.progress.recompute(c.now())
	snap := c.progress
	c.mu.Unlock()
	c.emitProgress(snap)
}

func (c *Coordinator) onFlush(fi batch.FlushInfo) {
	c.mu.Lock()
	at := fi.At
	c.progress.LastSaveTime = &at
	c.results.FilesCreated = append(c.results.FilesCreated, fi.Ref)
	opID := c.progress.OperationID
	c.mu.Unlock()
	c.logf(opID, LevelInfo, "", "Saved batch of %d places to %s", fi.Count, fi.Ref)
}

func (c *Coordinator) finish(ctx context.Context, opID string, final State, failure error, done chan struct{}) {
	c.mu.Lock()
	now := c.now()
	c.state = final
	c.progress.Status = final
	c.progress.CurrentTerm = ""
	c.progress.recompute(now)
	c.progress.ETASeconds = nil
	c.progress.EstimatedCompletion = nil
	c.results.Status = final
	c.results.FinishedAt = &now
	if c.results.StartedAt != nil {
		c.results.DurationSeconds = now.Sub(*c.results.StartedAt).Seconds()
	}
	if failure != nil {
		c.results.ErrorMessages = append(c.results.ErrorMessages, failure.Error())
	}
	snap := c.progress
	cancel := c.cancel
	c.mu.Unlock()

	c.saveRun(context.WithoutCancel(ctx))
	c.emitProgress(snap)
	switch final {
	case StateCompleted:
		c.logf(opID, LevelSuccess, "", "Scraping operation completed successfully")
	case StateIdle:
		c.logf(opID, LevelInfo, "", "Scraping operation stopped by user")
	case StateError:
		c.logf(opID, LevelError, "", "Scraping error: %v", failure)
	}

	// observers have seen the final state before waiters wake
	close(done)
	if cancel != nil {
		cancel()
	}
}

func (c *Coordinator) saveRun(ctx context.Context) {
	if c.history == nil {
		return
	}
	c.mu.Lock()
	p := c.progress
	r := c.results.clone()
	settings, _ := json.Marshal(c.settings.Redacted())
	c.mu.Unlock()

	run := store.Run{
		ID:                 p.OperationID,
		Status:             string(p.Status),
		CompletedLocations: p.CompletedLocations,
		TotalLocations:     p.TotalLocations,
		ResultsFound:       p.ResultsFound,
		ErrorsEncountered:  p.ErrorsEncountered,
		Files:              r.FilesCreated,
		ErrorMessages:      r.ErrorMessages,
		FinishedAt:         r.FinishedAt,
		Settings:           settings,
	}
	if p.StartTime != nil {
		run.StartedAt = *p.StartTime
	}
	if err := c.history.SaveRun(ctx, run); err != nil {
		log.Error().Str("component", "job").Str("operation", run.ID).Err(err).Msg("save run history")
	}
}

func (c *Coordinator) logf(opID string, lvl Level, location, format string, args ...any) {
	e := LogEntry{
		Timestamp:   c.now().UTC(),
		Level:       lvl,
		Message:     fmt.Sprintf(format, args...),
		Location:    location,
		OperationID: opID,
	}

	var ev *log.Entry
	switch lvl {
	case LevelError:
		ev = log.Error()
	case LevelWarning:
		ev = log.Warn()
	default:
		ev = log.Info()
	}
	ev.Str("component", "job").Str("operation", opID).Str("location", location).Msg(e.Message)

	c.broadcast(func(o Observer) error { return o.OnLog(e) })
}

func (c *Coordinator) emitProgress(p Progress) {
	c.broadcast(func(o Observer) error { return o.OnProgress(p) })
}

// broadcast calls fn for each observer on the caller's goroutine and drops the
// ones that fail.
func (c *Coordinator) broadcast(fn func(Observer) error) {
	c.obsMu.Lock()
	list := append([]Observer(nil), c.observers...)
	c.obsMu.Unlock()

	var failed []Observer
	for _, o := range list {
		if err := safeCall(fn, o); err != nil {
			log.Warn().Str("component", "job").Err(err).Msg("dropping observer")
			failed = append(failed, o)
		}
	}
	for _, o := range failed {
		c.RemoveObserver(o)
	}
}

func safeCall(fn func(Observer) error, o Observer) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("observer panic: %v", r)
		}
	}()
	return fn(o)
}
