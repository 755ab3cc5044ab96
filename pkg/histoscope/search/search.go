// Package search dispatches keystroke-driven searches: it debounces input,
// runs the projection asynchronously, and discards results superseded by
// newer input before they completed.
package search

import (
	"context"
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// DefaultDebounce is the delay between the last keystroke and dispatch.
const DefaultDebounce = 500 * time.Millisecond

// Result is a completed, non-stale search.
type Result struct {
	Query string
	Keys  []string
}

// Options configures a Dispatcher.
type Options struct {
	// Debounce is the trailing-edge delay; DefaultDebounce when zero.
	Debounce time.Duration
	// Run executes the search (typically Projection.Project).
	Run func(ctx context.Context, query string) ([]string, error)
	// Apply receives results that were still current on completion.
	Apply func(Result)
	// Fail receives errors from current (non-stale) runs. Optional.
	Fail func(query string, err error)
	// Stale observes discarded, superseded completions. Optional.
	Stale func(query string)
}

// Dispatcher serializes search dispatch for one session. Every dispatch is
// tagged with a fresh ULID; a completion whose tag is no longer the latest
// issued one is dropped rather than applied.
type Dispatcher struct {
	opts    Options
	entropy *ulid.MonotonicEntropy

	mu     sync.Mutex
	timer  *time.Timer
	latest ulid.ULID

	wg sync.WaitGroup
}

// New creates a dispatcher.
func New(opts Options) *Dispatcher {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	return &Dispatcher{
		opts:    opts,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// Input records a keystroke. The search runs once input has been quiet for
// the debounce window; intermediate inputs reset the timer.
func (d *Dispatcher) Input(query string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.opts.Debounce, func() {
		d.Dispatch(query)
	})
}

// Dispatch runs the search immediately, bypassing the debounce. Used for
// explicit submission and by the debounce timer.
func (d *Dispatcher) Dispatch(query string) {
	d.mu.Lock()
	token := ulid.MustNew(ulid.Now(), d.entropy)
	d.latest = token
	d.mu.Unlock()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		keys, err := d.opts.Run(context.Background(), query)

		d.mu.Lock()
		current := d.latest == token
		d.mu.Unlock()

		if !current {
			if d.opts.Stale != nil {
				d.opts.Stale(query)
			}
			return
		}
		if err != nil {
			if d.opts.Fail != nil {
				d.opts.Fail(query, err)
			}
			return
		}
		d.opts.Apply(Result{Query: query, Keys: keys})
	}()
}

// Wait blocks until all in-flight searches have completed or been discarded.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Stop cancels any pending debounce timer.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.mu.Unlock()
}
