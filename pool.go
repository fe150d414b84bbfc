package mysql

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

// PoolOptions tunes a Pool's sizing, recycling, and retry policy
// (spec.md §4.9, §6 "Pool options").
type PoolOptions struct {
	MinIdle           int
	MaxActive         int
	IdleTestThreshold time.Duration
	MaxLifetime       time.Duration
	MaxUsage          int
	MaxErrors         int
	AcquireTimeout    time.Duration
	RetryBaseDelay    time.Duration
	// MaxRetries is the total number of attempts WithConnection makes,
	// the first one included; 1 means no retry.
	MaxRetries int
	// RetryIf, when set, overrides the default transport-error/timeout
	// retry predicate (spec.md §4.9, "Retry policy").
	RetryIf func(error) bool
}

func (o PoolOptions) withDefaults() PoolOptions {
	if o.MaxActive <= 0 {
		o.MaxActive = 10
	}
	if o.IdleTestThreshold <= 0 {
		o.IdleTestThreshold = 60 * time.Second
	}
	if o.MaxLifetime <= 0 {
		o.MaxLifetime = 12 * time.Hour
	}
	if o.MaxErrors <= 0 {
		o.MaxErrors = 64
	}
	if o.AcquireTimeout <= 0 {
		o.AcquireTimeout = 5 * time.Second
	}
	if o.RetryBaseDelay <= 0 {
		o.RetryBaseDelay = 50 * time.Millisecond
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 1
	}
	return o
}

// PoolEntry wraps one pooled Session with the bookkeeping the
// recycling and validation policies need (spec.md §3).
type PoolEntry struct {
	id         string
	session    *Session
	openedAt   time.Time
	lastUsedAt time.Time
	totalUsage int
	errorCount int
	borrowedAt time.Time
}

// Session returns the entry's underlying Session, for callers that
// obtained an entry through Pool.AcquireEntry.
func (e *PoolEntry) Session() *Session { return e.session }

// Pool maintains a bounded set of sessions, validating idle ones and
// recycling aged or unhealthy ones (spec.md §4.9).
type Pool struct {
	template *Options
	opts     PoolOptions
	logger   Logger

	mu     sync.Mutex
	idle   []*PoolEntry
	active map[*PoolEntry]struct{}
	pending int
	closed bool

	dialSem *semaphore.Weighted
	metrics *poolMetrics
	stopch  chan struct{}
}

// NewPool constructs a Pool that dials new sessions with template
// and sizes/recycles them per opts. If opts.MinIdle is positive, a
// background goroutine keeps the idle list topped up to that floor
// so a burst of acquisitions doesn't all pay the dial cost at once.
func NewPool(template *Options, opts PoolOptions) *Pool {
	opts = opts.withDefaults()
	p := &Pool{
		template: template,
		opts:     opts,
		logger:   template.Logger,
		active:   make(map[*PoolEntry]struct{}),
		dialSem:  semaphore.NewWeighted(int64(opts.MaxActive)),
		metrics:  newPoolMetrics(),
		stopch:   make(chan struct{}),
	}
	if opts.MinIdle > 0 {
		go p.maintainMinIdle()
	}
	return p
}

// maintainMinIdle periodically dials new entries onto the idle list
// until it reaches opts.MinIdle, stopping once the pool is closed.
func (p *Pool) maintainMinIdle() {
	ticker := time.NewTicker(p.opts.IdleTestThreshold)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopch:
			return
		case <-ticker.C:
		}
		p.mu.Lock()
		short := p.opts.MinIdle - len(p.idle)
		closed := p.closed
		p.mu.Unlock()
		if closed {
			return
		}
		for i := 0; i < short; i++ {
			e, err := p.dial(context.Background())
			if err != nil {
				p.logger.Print("mysql: pool min-idle top-up dial failed", err)
				break
			}
			p.mu.Lock()
			if p.closed {
				p.mu.Unlock()
				_ = e.session.Close()
				return
			}
			p.idle = append(p.idle, e)
			p.mu.Unlock()
		}
	}
}

// Status is a point-in-time snapshot of pool occupancy (spec.md §6,
// "status").
type Status struct {
	Idle    int
	Active  int
	Pending int
}

// Status returns the pool's current occupancy.
func (p *Pool) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Status{Idle: len(p.idle), Active: len(p.active), Pending: p.pending}
}

// AcquireEntry runs the acquisition loop: reuse a validated idle
// entry, or open a new one if under capacity, or cooperatively wait
// (spec.md §4.9, "Acquisition loop").
func (p *Pool) AcquireEntry(ctx context.Context) (*PoolEntry, error) {
	deadline := time.Now().Add(p.opts.AcquireTimeout)
	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, newClientError(ErrConnectionClosed)
		}
		for len(p.idle) > 0 {
			e := p.idle[0]
			p.idle = p.idle[1:]
			if !p.validate(ctx, e) {
				p.metrics.retired.Inc()
				continue
			}
			e.borrowedAt = time.Now()
			p.active[e] = struct{}{}
			p.mu.Unlock()
			p.metrics.acquired.Inc()
			return e, nil
		}
		if len(p.idle)+len(p.active)+p.pending < p.opts.MaxActive {
			p.pending++
			p.mu.Unlock()
			e, err := p.dial(ctx)
			p.mu.Lock()
			p.pending--
			if err != nil {
				p.mu.Unlock()
				return nil, err
			}
			e.borrowedAt = time.Now()
			p.active[e] = struct{}{}
			p.mu.Unlock()
			p.metrics.acquired.Inc()
			return e, nil
		}
		p.mu.Unlock()

		if time.Now().After(deadline) {
			return nil, newClientError(ErrTimeout)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func (p *Pool) dial(ctx context.Context) (*PoolEntry, error) {
	if err := p.dialSem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer p.dialSem.Release(1)

	s, err := DialWithOptions(ctx, p.template)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	e := &PoolEntry{id: uuid.NewString(), session: s, openedAt: now, lastUsedAt: now}
	s.OnClose(func() { p.removeEntry(e) })
	return e, nil
}

// removeEntry drops e from whichever bookkeeping list still holds it.
// Registered as e's close observer, this is how the pool learns that
// a session died on its own (server-initiated disconnect, idle
// timeout, protocol error) rather than through retire/ReleaseEntry,
// without the session holding a pointer back to the pool (spec.md
// §9, "Back references from callbacks").
func (p *Pool) removeEntry(e *PoolEntry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.active, e)
	for i, idle := range p.idle {
		if idle == e {
			p.idle = append(p.idle[:i], p.idle[i+1:]...)
			break
		}
	}
}

// validate applies the recycling and idle-liveness policy to an
// entry pulled off the idle list. It is called with p.mu held.
func (p *Pool) validate(ctx context.Context, e *PoolEntry) bool {
	if p.shouldRecycle(e) {
		p.retire(e)
		return false
	}
	if time.Since(e.lastUsedAt) > p.opts.IdleTestThreshold {
		if err := e.session.Ping(ctx); err != nil {
			p.retire(e)
			return false
		}
	}
	return true
}

func (p *Pool) shouldRecycle(e *PoolEntry) bool {
	if time.Since(e.openedAt) >= p.opts.MaxLifetime {
		return true
	}
	if p.opts.MaxUsage > 0 && e.totalUsage >= p.opts.MaxUsage {
		return true
	}
	return e.errorCount >= p.opts.MaxErrors
}

func (p *Pool) retire(e *PoolEntry) {
	if p.logger != nil {
		p.logger.Print("mysql: retiring pool entry", e.id)
	}
	_ = e.session.Close()
}

// ReleaseEntry returns e to the idle list, or retires it if the
// recycling policy now applies or the pool is closed. hadError only
// counts toward MaxErrors (spec.md §4.9, "Release").
func (p *Pool) ReleaseEntry(e *PoolEntry, hadError bool) {
	p.mu.Lock()
	delete(p.active, e)
	if hadError {
		e.errorCount++
	}
	e.lastUsedAt = time.Now()
	e.totalUsage++
	recycle := p.shouldRecycle(e) || p.closed
	if !recycle {
		p.idle = append(p.idle, e)
	}
	p.mu.Unlock()

	if recycle {
		p.retire(e)
	}
}

// WithConnection acquires an entry, runs fn, releases the entry, and
// retries on an eligible error per opts.RetryIf/MaxRetries (spec.md
// §4.9, "Retry policy").
func (p *Pool) WithConnection(ctx context.Context, fn func(ctx context.Context, s *Session) error) error {
	bo := &linearBackOff{base: p.opts.RetryBaseDelay}
	wrapped := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(p.opts.MaxRetries-1)), ctx)
	_, err := backoff.RetryWithData(func() (struct{}, error) {
		e, err := p.AcquireEntry(ctx)
		if err != nil {
			return struct{}{}, backoff.Permanent(err)
		}

		err = fn(ctx, e.session)
		p.ReleaseEntry(e, err != nil)
		if err == nil {
			return struct{}{}, nil
		}
		if !p.retryable(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}, wrapped)
	return err
}

func (p *Pool) retryable(err error) bool {
	if p.opts.RetryIf != nil {
		return p.opts.RetryIf(err)
	}
	if _, ok := err.(*ClientError); ok {
		ce := err.(*ClientError)
		return ce.Kind == ErrTimeout || ce.Kind == ErrConnectionClosed
	}
	if se, ok := err.(*ServerError); ok {
		return se.ReadOnly
	}
	return false
}

// Transactional runs fn inside a transaction on a pool-acquired
// session, committing on success and rolling back (and releasing the
// entry with hadError) on failure (spec.md §4.9, "Transactional
// wrapper").
func (p *Pool) Transactional(ctx context.Context, fn func(ctx context.Context, s *Session) error) error {
	return p.WithConnection(ctx, func(ctx context.Context, s *Session) error {
		return s.Transactional(ctx, func(ctx context.Context) error {
			return fn(ctx, s)
		})
	})
}

// Close closes every known session and blocks new acquisitions
// (spec.md §4.9, "Pool close").
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.stopch)
	idle := p.idle
	p.idle = nil
	active := make([]*PoolEntry, 0, len(p.active))
	for e := range p.active {
		active = append(active, e)
	}
	p.active = make(map[*PoolEntry]struct{})
	p.mu.Unlock()

	for _, e := range idle {
		_ = e.session.Close()
	}
	for _, e := range active {
		_ = e.session.Close()
	}
	return nil
}

// linearBackOff mirrors backoff.BackOff's shape with the delay
// base_delay*attempt the pool's retry policy calls for (spec.md
// §4.9), rather than the package's usual exponential curve.
type linearBackOff struct {
	base    time.Duration
	attempt int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.attempt++
	return b.base * time.Duration(b.attempt)
}

func (b *linearBackOff) Reset() { b.attempt = 0 }
