package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ARandomInvestor/amfeix-api/utils"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

const DefaultConcurrency = 8

var (
	ErrQueueClosed = errors.New("queue: closed")
	ErrNoOperation = errors.New("queue: request has no operation")
)

// Cache is the memory tier the queue reads and fills.
type Cache interface {
	Get(key string) (interface{}, bool)
	Set(key string, value interface{}, ttl time.Duration)
}

type Operation func(ctx context.Context) (interface{}, error)

// Request is one outbound call. A non-empty CacheKey short-circuits on a hit
// and stores a successful result for TTL.
type Request struct {
	CacheKey  string
	TTL       time.Duration
	Operation Operation
}

type Result struct {
	Value interface{}
	Err   error
}

type task struct {
	ctx  context.Context
	req  Request
	done chan Result
}

// Queue runs operations FIFO with at most a fixed number in flight. It never
// retries, retry policy belongs to the caller.
type Queue struct {
	cache  Cache
	sem    *semaphore.Weighted
	logger *logrus.Entry

	mu      sync.Mutex
	pending []*task
	closed  bool
	notify  chan struct{}
	quit    chan struct{}
	stop    context.CancelFunc
	stopCtx context.Context
	wg      sync.WaitGroup
}

func New(concurrency int, c Cache, logger *logrus.Entry) *Queue {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	stopCtx, stop := context.WithCancel(context.Background())
	q := &Queue{
		cache:   c,
		sem:     semaphore.NewWeighted(int64(concurrency)),
		logger:  utils.ComponentLogger(logger, "queue"),
		notify:  make(chan struct{}, 1),
		quit:    make(chan struct{}),
		stop:    stop,
		stopCtx: stopCtx,
	}
	q.wg.Add(1)
	go q.dispatch()
	return q
}

func (q *Queue) lookup(key string) (interface{}, bool) {
	if key == "" || q.cache == nil {
		return nil, false
	}
	return q.cache.Get(key)
}

// Enqueue returns a channel that receives exactly one Result.
func (q *Queue) Enqueue(ctx context.Context, req Request) <-chan Result {
	done := make(chan Result, 1)
	if req.Operation == nil {
		done <- Result{Err: ErrNoOperation}
		return done
	}
	if v, ok := q.lookup(req.CacheKey); ok {
		done <- Result{Value: v}
		return done
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		done <- Result{Err: ErrQueueClosed}
		return done
	}
	q.pending = append(q.pending, &task{ctx: ctx, req: req, done: done})
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return done
}

// Do enqueues req and waits for it. Abandoning ctx stops the wait only, a
// started operation still completes and fills the cache.
func (q *Queue) Do(ctx context.Context, req Request) (interface{}, error) {
	select {
	case r := <-q.Enqueue(ctx, req):
		return r.Value, r.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Pending is the number of tasks waiting for a slot.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func (q *Queue) next() (*task, bool) {
	for {
		q.mu.Lock()
		if len(q.pending) > 0 {
			t := q.pending[0]
			q.pending[0] = nil
			q.pending = q.pending[1:]
			q.mu.Unlock()
			return t, true
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return nil, false
		}
		select {
		case <-q.notify:
		case <-q.quit:
		}
	}
}

func (q *Queue) dispatch() {
	defer q.wg.Done()
	for {
		t, ok := q.next()
		if !ok {
			return
		}
		if err := q.sem.Acquire(q.stopCtx, 1); err != nil {
			t.done <- Result{Err: ErrQueueClosed}
			continue
		}
		q.wg.Add(1)
		go q.run(t)
	}
}

func (q *Queue) run(t *task) {
	defer q.wg.Done()
	defer q.sem.Release(1)

	// an earlier request for the same key may have landed while this one waited
	if v, ok := q.lookup(t.req.CacheKey); ok {
		t.done <- Result{Value: v}
		return
	}

	v, err := t.req.Operation(context.WithoutCancel(t.ctx))
	if err != nil {
		q.logger.WithError(err).WithField("key", t.req.CacheKey).Debug("operation failed")
		t.done <- Result{Err: err}
		return
	}
	if t.req.CacheKey != "" && q.cache != nil {
		q.cache.Set(t.req.CacheKey, v, t.req.TTL)
	}
	t.done <- Result{Value: v}
}

// Close rejects everything still pending and waits for running operations.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	pending := q.pending
	q.pending = nil
	q.mu.Unlock()

	close(q.quit)
	q.stop()
	for _, t := range pending {
		t.done <- Result{Err: ErrQueueClosed}
	}
	q.wg.Wait()
}

// Fetch is Do with a typed result.
func Fetch[T any](ctx context.Context, q *Queue, req Request) (T, error) {
	var zero T
	v, err := q.Do(ctx, req)
	if err != nil {
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("queue: unexpected result type %T for %q", v, req.CacheKey)
	}
	return typed, nil
}
