package pagination

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Outcome describes what a single Advance call did.
type Outcome string

const (
	// OutcomeSkipped means another fetch was in flight and nothing happened.
	OutcomeSkipped Outcome = "skipped"

	// OutcomeSucceeded means the fetch succeeded and the cursor moved.
	OutcomeSucceeded Outcome = "succeeded"

	// OutcomeFailed means the fetch failed and the cursor stayed put.
	OutcomeFailed Outcome = "failed"

	// OutcomeStale means Reset ran while the fetch was in flight and its
	// result was dropped.
	OutcomeStale Outcome = "stale"
)

// Callbacks receive the paginator's notifications. Nil fields are ignored.
type Callbacks[K, B any] struct {
	// OnLoadingChanged is called with true right before a fetch starts and
	// with false after the result callback for that fetch has returned.
	//
	// A fetch overtaken by Reset never reports false, and neither does one
	// whose result callback calls Reset. Owners clear their loading flag
	// themselves when they reset.
	OnLoadingChanged func(loading bool)

	// OnSuccess receives the fetched batch and the cursor of the next fetch.
	// It is not called for a fetch that started before the latest Reset. A
	// Reset racing with the call itself can still let it through; owners
	// that reset from another goroutine tag their batches to drop those.
	OnSuccess func(batch B, next K)

	// OnError receives the failure of a fetch, once per failed attempt. The
	// same Reset rules as for OnSuccess apply.
	OnError func(err error)
}

// Option configures a Paginator.
type Option func(*options)

type options struct {
	name   string
	logger zerolog.Logger
}

// WithName sets the paginator label used in logs and metrics.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithLogger overrides the component logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// Paginator drives sequential fetches of a paged Source.
type Paginator[K, B any] struct {
	source     Source[K, B]
	callbacks  Callbacks[K, B]
	initialKey K
	name       string
	logger     zerolog.Logger

	mu         sync.Mutex
	currentKey K
	loading    bool
	generation uint64
}

// New creates a paginator that starts fetching at initialKey.
func New[K, B any](initialKey K, source Source[K, B], callbacks Callbacks[K, B], opts ...Option) (*Paginator[K, B], error) {
	if source == nil {
		return nil, ErrNilSource
	}

	o := options{
		name:   "default",
		logger: log.With().Str("component", "paginator").Logger(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	return &Paginator[K, B]{
		source:     source,
		callbacks:  callbacks,
		initialKey: initialKey,
		currentKey: initialKey,
		name:       o.name,
		logger:     o.logger.With().Str("paginator", o.name).Logger(),
	}, nil
}

// Advance fetches the batch at the current cursor.
//
// If a fetch is already in flight the call returns OutcomeSkipped without
// side effects. Failures are reported through OnError and never returned.
func (p *Paginator[K, B]) Advance(ctx context.Context) Outcome {
	if p == nil {
		log.Error().Msg("Advance called on nil paginator")
		return OutcomeSkipped
	}

	p.mu.Lock()
	if p.loading {
		p.mu.Unlock()
		p.logger.Debug().Msg("Fetch already in flight, skipping advance")
		pagerAdvanceTotal.WithLabelValues(p.name, string(OutcomeSkipped)).Inc()
		return OutcomeSkipped
	}
	p.loading = true
	key := p.currentKey
	generation := p.generation
	p.mu.Unlock()

	p.notifyLoading(true)

	p.logger.Debug().
		Interface("key", key).
		Uint64("generation", generation).
		Msg("Fetching batch")

	start := time.Now()
	pagerInflight.WithLabelValues(p.name).Inc()
	batch, err := p.fetch(ctx, key)
	pagerInflight.WithLabelValues(p.name).Dec()
	duration := time.Since(start)
	pagerFetchDuration.WithLabelValues(p.name).Observe(duration.Seconds())

	var outcome Outcome
	if err != nil {
		outcome = p.completeFailure(key, generation, err, duration)
	} else {
		outcome = p.completeSuccess(key, generation, batch, duration)
	}

	pagerAdvanceTotal.WithLabelValues(p.name, string(outcome)).Inc()
	return outcome
}

func (p *Paginator[K, B]) completeFailure(key K, generation uint64, err error, duration time.Duration) Outcome {
	if !p.isCurrent(generation) {
		p.logStale(key, generation)
		return OutcomeStale
	}

	p.logger.Warn().
		Err(err).
		Interface("key", key).
		Dur("duration", duration).
		Msg("Fetch failed")

	if p.callbacks.OnError != nil {
		p.callbacks.OnError(err)
	}

	if !p.finish(generation, nil) {
		return OutcomeStale
	}
	p.notifyLoading(false)
	return OutcomeFailed
}

func (p *Paginator[K, B]) completeSuccess(key K, generation uint64, batch B, duration time.Duration) Outcome {
	next := p.source.NextKey(key)

	// NextKey is owner code and may itself call Reset.
	if !p.isCurrent(generation) {
		p.logStale(key, generation)
		return OutcomeStale
	}

	p.logger.Debug().
		Interface("key", key).
		Interface("next_key", next).
		Dur("duration", duration).
		Msg("Fetch complete")

	if p.callbacks.OnSuccess != nil {
		p.callbacks.OnSuccess(batch, next)
	}

	if !p.finish(generation, &next) {
		return OutcomeStale
	}
	p.notifyLoading(false)
	return OutcomeSucceeded
}

// finish clears the guard and, when next is set, moves the cursor. It
// reports false if a Reset happened since the fetch started.
func (p *Paginator[K, B]) finish(generation uint64, next *K) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if generation != p.generation {
		return false
	}
	if next != nil {
		p.currentKey = *next
	}
	p.loading = false
	return true
}

func (p *Paginator[K, B]) isCurrent(generation uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return generation == p.generation
}

// fetch calls the source and turns a panic into a FetchError.
func (p *Paginator[K, B]) fetch(ctx context.Context, key K) (batch B, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Warn().
				Interface("key", key).
				Interface("panic", r).
				Msg("Recovered panic in fetch")
			var zero B
			batch, err = zero, recoveredError(key, r)
		}
	}()
	return p.source.Fetch(ctx, key)
}

// Reset restores the initial cursor and clears the in-flight guard. A fetch
// still running is not cancelled, but its result will be discarded.
func (p *Paginator[K, B]) Reset() {
	p.mu.Lock()
	p.currentKey = p.initialKey
	p.loading = false
	p.generation++
	generation := p.generation
	p.mu.Unlock()

	pagerResetsTotal.WithLabelValues(p.name).Inc()
	p.logger.Debug().Uint64("generation", generation).Msg("Paginator reset")
}

// Key returns the cursor the next Advance will fetch.
func (p *Paginator[K, B]) Key() K {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.currentKey
}

// Loading reports whether a fetch is in flight.
func (p *Paginator[K, B]) Loading() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loading
}

func (p *Paginator[K, B]) notifyLoading(loading bool) {
	if p.callbacks.OnLoadingChanged != nil {
		p.callbacks.OnLoadingChanged(loading)
	}
}

func (p *Paginator[K, B]) logStale(key K, generation uint64) {
	p.logger.Debug().
		Interface("key", key).
		Uint64("generation", generation).
		Msg("Discarding result of fetch started before reset")
}
