package dedup

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/voicescreen/internal/client/apierr"
	"github.com/dmitrijs2005/voicescreen/internal/client/transport"
	"github.com/dmitrijs2005/voicescreen/internal/logging"
)

// DefaultTTL is how long an entry may stay registered before it is evicted
// regardless of settlement.
const DefaultTTL = 30 * time.Second

// call is one in-flight operation. val and err are written once, before
// done is closed.
type call struct {
	done    chan struct{}
	created time.Time
	val     any
	err     error
}

// DebugEntry is a snapshot of one pending entry.
type DebugEntry struct {
	Key       string
	CreatedAt time.Time
	Age       time.Duration
}

// Stats are cumulative counters since the cache was created.
type Stats struct {
	Started   uint64
	Coalesced uint64
	Evicted   uint64
	Cancelled uint64
}

type Option func(*Cache)

func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

func WithLogger(l logging.Logger) Option {
	return func(c *Cache) { c.log = l }
}

// Cache is the pending request registry. The zero value is not usable;
// construct with New. A Cache is safe for concurrent use.
type Cache struct {
	doer transport.Doer
	ttl  time.Duration
	now  func() time.Time
	log  logging.Logger

	mu      sync.Mutex
	pending map[string]*call

	started   atomic.Uint64
	coalesced atomic.Uint64
	evicted   atomic.Uint64
	cancelled atomic.Uint64
}

func New(doer transport.Doer, opts ...Option) *Cache {
	c := &Cache{
		doer:    doer,
		ttl:     DefaultTTL,
		now:     time.Now,
		log:     logging.Nop(),
		pending: make(map[string]*call),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Execute performs d through the registry. Unless forceNew is set, a caller
// whose fingerprint matches a live entry joins that entry instead of
// starting a new request. A forced request replaces the live entry for
// later callers; callers already waiting on the old one keep waiting on it.
func (c *Cache) Execute(ctx context.Context, d Descriptor, forceNew bool) (*Response, error) {
	v, err := c.Do(ctx, Fingerprint(d), forceNew, func(ctx context.Context) (any, error) {
		return c.roundTrip(ctx, d)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Response), nil
}

// Do runs fn under key with the same at-most-one-in-flight rule as Execute.
// fn runs with a context detached from ctx's cancellation: a caller that
// stops waiting does not fail the others.
func (c *Cache) Do(ctx context.Context, key string, forceNew bool, fn func(ctx context.Context) (any, error)) (any, error) {
	c.mu.Lock()
	now := c.now()
	c.sweepLocked(ctx, now)

	if !forceNew {
		if cl, ok := c.pending[key]; ok {
			c.mu.Unlock()
			c.coalesced.Add(1)
			c.log.Debug(ctx, "deduplicating request", "key", key)
			return c.wait(ctx, cl)
		}
	}

	cl := &call{done: make(chan struct{}), created: now}
	c.pending[key] = cl
	c.mu.Unlock()

	c.started.Add(1)
	c.log.Debug(ctx, "creating new request", "key", key)

	go c.run(context.WithoutCancel(ctx), key, cl, fn)

	return c.wait(ctx, cl)
}

func (c *Cache) run(ctx context.Context, key string, cl *call, fn func(ctx context.Context) (any, error)) {
	defer func() {
		if p := recover(); p != nil {
			cl.val, cl.err = nil, fmt.Errorf("request %s panicked: %v", key, p)
		}

		c.mu.Lock()
		if c.pending[key] == cl {
			delete(c.pending, key)
		}
		c.mu.Unlock()

		close(cl.done)
	}()

	cl.val, cl.err = fn(ctx)
}

func (c *Cache) wait(ctx context.Context, cl *call) (any, error) {
	select {
	case <-cl.done:
		return cl.val, cl.err
	case <-ctx.Done():
		return nil, apierr.Wrap(apierr.KindNetwork, "request abandoned", ctx.Err())
	}
}

func (c *Cache) roundTrip(ctx context.Context, d Descriptor) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, d.method(), d.URL, bytes.NewReader(d.Body))
	if err != nil {
		return nil, apierr.Wrap(apierr.KindValidation, "invalid request", err)
	}
	if len(d.Body) == 0 {
		req.Body = http.NoBody
		req.ContentLength = 0
	}
	for k, vs := range d.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.doer.Do(req)
	if err != nil {
		return nil, networkError(err)
	}
	return toResponse(resp)
}

// sweepLocked evicts entries older than the TTL. c.mu must be held.
func (c *Cache) sweepLocked(ctx context.Context, now time.Time) {
	for key, cl := range c.pending {
		if now.Sub(cl.created) > c.ttl {
			delete(c.pending, key)
			c.evicted.Add(1)
			c.log.Debug(ctx, "cleaned up expired request", "key", key)
		}
	}
}

// Cancel drops the entry for d, if any.
func (c *Cache) Cancel(d Descriptor) {
	c.CancelKey(Fingerprint(d))
}

// CancelKey drops the entry for key, if any.
func (c *Cache) CancelKey(key string) {
	c.mu.Lock()
	_, ok := c.pending[key]
	delete(c.pending, key)
	c.mu.Unlock()

	if ok {
		c.cancelled.Add(1)
		c.log.Debug(context.Background(), "cancelled request", "key", key)
	}
}

// CancelAll drops every entry and returns how many there were.
func (c *Cache) CancelAll() int {
	c.mu.Lock()
	n := len(c.pending)
	clear(c.pending)
	c.mu.Unlock()

	c.cancelled.Add(uint64(n))
	c.log.Debug(context.Background(), "cancelled pending requests", "count", n)
	return n
}

func (c *Cache) IsPending(d Descriptor) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sweepLocked(context.Background(), c.now())
	_, ok := c.pending[Fingerprint(d)]
	return ok
}

func (c *Cache) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sweepLocked(context.Background(), c.now())
	return len(c.pending)
}

// DebugInfo lists the live entries ordered by key.
func (c *Cache) DebugInfo() []DebugEntry {
	c.mu.Lock()
	now := c.now()
	c.sweepLocked(context.Background(), now)

	out := make([]DebugEntry, 0, len(c.pending))
	for key, cl := range c.pending {
		out = append(out, DebugEntry{Key: key, CreatedAt: cl.created, Age: now.Sub(cl.created)})
	}
	c.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func (c *Cache) Stats() Stats {
	return Stats{
		Started:   c.started.Load(),
		Coalesced: c.coalesced.Load(),
		Evicted:   c.evicted.Load(),
		Cancelled: c.cancelled.Load(),
	}
}

// TTL returns the configured eviction age.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}
