// Package batch buffers normalized places and hands them to a sink in fixed-size files.
package batch

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"

	"gmaps-engine/internal/domain"
)

const DefaultThreshold = 20

// Sink persists one batch under filename and returns a reference to where it went.
type Sink interface {
	Save(ctx context.Context, records []domain.Place, filename string) (string, error)
}

// Naming is the location/term context baked into batch filenames.
type Naming struct {
	City     string
	District string
	Term     string
}

// FlushError means the sink rejected a batch. The records stay buffered.
type FlushError struct {
	Filename string
	Count    int
	Err      error
}

func (e *FlushError) Error() string {
	return fmt.Sprintf("flush %d records to %s: %v", e.Count, e.Filename, e.Err)
}

func (e *FlushError) Unwrap() error { return e.Err }

type Stats struct {
	Flushes   int       `json:"flushes"`
	Records   int       `json:"records"`
	Files     []string  `json:"files"`
	LastFlush time.Time `json:"last_flush"`
}

// FlushInfo describes a successful flush.
type FlushInfo struct {
	Filename string
	Ref      string
	Count    int
	At       time.Time
}

type Options struct {
	Threshold int
	Now       func() time.Time
	OnFlush   func(FlushInfo)
}

type Writer struct {
	mu        sync.Mutex
	sink      Sink
	threshold int
	now       func() time.Time
	onFlush   func(FlushInfo)

	naming Naming
	buf    []domain.Place
	held   []segment
	used   map[string]int
	stats  Stats
}

// segment is a buffer left over from an earlier naming context.
type segment struct {
	naming  Naming
	records []domain.Place
}

func NewWriter(sink Sink, opt Options) *Writer {
	if opt.Threshold <= 0 {
		opt.Threshold = DefaultThreshold
	}
	if opt.Now == nil {
		opt.Now = time.Now
	}
	return &Writer{
		sink:      sink,
		threshold: opt.Threshold,
		now:       opt.Now,
		onFlush:   opt.OnFlush,
		used:      map[string]int{},
	}
}

// SetNaming applies to records added after the call. Records still buffered
// keep the naming they were added under.
func (w *Writer) SetNaming(n Naming) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if n == w.naming {
		return
	}
	if len(w.buf) > 0 {
		w.held = append(w.held, segment{naming: w.naming, records: w.buf})
		w.buf = nil
	}
	w.naming = n
}

// Add buffers p and flushes once the threshold is reached.
func (w *Writer) Add(ctx context.Context, p domain.Place) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf = append(w.buf, p)
	if len(w.buf) < w.threshold {
		return nil
	}
	return w.flushLocked(ctx)
}

// Flush writes whatever is buffered. Empty buffers are a no-op.
func (w *Writer) Flush(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushLocked(ctx)
}

func (w *Writer) flushLocked(ctx context.Context) error {
	for len(w.held) > 0 {
		if err := w.save(ctx, w.held[0].naming, w.held[0].records); err != nil {
			return err
		}
		w.held = w.held[1:]
	}
	if len(w.buf) == 0 {
		return nil
	}
	if err := w.save(ctx, w.naming, w.buf); err != nil {
		return err
	}
	w.buf = w.buf[:0]
	return nil
}

func (w *Writer) save(ctx context.Context, n Naming, buf []domain.Place) error {
	at := w.now()
	base := Filename(n, at, len(buf))
	name := base
	if seq := w.used[base]; seq > 0 {
		name = strings.TrimSuffix(base, ".json") + fmt.Sprintf("-%d.json", seq+1)
	}

	records := make([]domain.Place, len(buf))
	copy(records, buf)

	ref, err := w.sink.Save(ctx, records, name)
	if err != nil {
		return &FlushError{Filename: name, Count: len(records), Err: err}
	}
	w.used[base]++

	w.stats.Flushes++
	w.stats.Records += len(records)
	w.stats.Files = append(w.stats.Files, ref)
	w.stats.LastFlush = at

	if w.onFlush != nil {
		w.onFlush(FlushInfo{Filename: name, Ref: ref, Count: len(records), At: at})
	}
	return nil
}

func (w *Writer) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pendingLocked()
}

func (w *Writer) pendingLocked() int {
	n := len(w.buf)
	for _, h := range w.held {
		n += len(h.records)
	}
	return n
}

func (w *Writer) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := w.stats
	s.Files = append([]string(nil), w.stats.Files...)
	return s
}

// Filename builds dental_clinics_<city>_<district>_<term>_<ts>_batch_<n>.json.
// Writer adds a -<seq> suffix when the same name comes up twice in a run.
func Filename(n Naming, at time.Time, count int) string {
	parts := []string{"dental_clinics"}
	if n.City != "" {
		parts = append(parts, slug(strings.ToLower(n.City)))
	}
	if n.District != "" {
		parts = append(parts, slug(strings.ToLower(n.District)))
	}
	if n.Term != "" {
		parts = append(parts, slug(n.Term))
	}
	parts = append(parts, at.Format("20060102_150405"))
	return fmt.Sprintf("%s_batch_%d.json", strings.Join(parts, "_"), count)
}

// slug keeps letters, marks and digits of any script plus '-' and '.'; anything else becomes '_'.
func slug(s string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(s) {
		switch {
		case unicode.IsLetter(r), unicode.IsMark(r), unicode.IsDigit(r), r == '-', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	out := strings.Trim(b.String(), ".")
	if out == "" {
		return "_"
	}
	return out
}
