// Package admission implements the query admission and resource-cap layer
// (spec §4.9/§4.10, C10): concurrency semaphores, open-handle budgets,
// snapshot pinning, and the embed-slot limiter shared with ingest.
package admission

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	ggrepErrors "github.com/ggrep/ggrep/internal/errors"
)

// Limits carries the numeric caps of spec §4.9.
type Limits struct {
	MaxConcurrentQueries          int
	MaxQueryQueue                 int
	MaxConcurrentQueriesPerClient int
	MaxOpenSegmentsGlobal         int
	MaxOpenSegmentsPerQuery       int
}

// Admitter enforces the global/per-client concurrency caps and the
// global/per-query open-handle budgets for queries (spec §4.9).
type Admitter struct {
	limits Limits

	global *semaphore.Weighted
	queued atomic32

	mu      sync.Mutex
	clients map[string]*semaphore.Weighted

	segMu        sync.Mutex
	openSegments int
}

// NewAdmitter constructs an Admitter from Limits.
func NewAdmitter(limits Limits) *Admitter {
	return &Admitter{
		limits:  limits,
		global:  semaphore.NewWeighted(int64(limits.MaxConcurrentQueries)),
		clients: make(map[string]*semaphore.Weighted),
	}
}

// Ticket represents one admitted query's held resources; Release must be
// called exactly once, typically via defer, regardless of outcome.
type Ticket struct {
	a            *Admitter
	clientSem    *semaphore.Weighted
	heldSegments int
}

// Admit blocks (respecting ctx) for a free slot under both the global and
// per-client semaphores. If the wait queue is already at MaxQueryQueue, it
// fails immediately with kind busy rather than queueing further (spec
// §4.9: "Over-queue requests fail immediately").
func (a *Admitter) Admit(ctx context.Context, clientID string) (*Ticket, error) {
	if a.queued.inc() > int32(a.limits.MaxQueryQueue) {
		a.queued.dec()
		return nil, ggrepErrors.New(ggrepErrors.KindBusy, "query queue full").
			WithDetail("limit", "max_query_queue")
	}
	defer a.queued.dec()

	if err := a.global.Acquire(ctx, 1); err != nil {
		return nil, translateAcquireErr(err, "max_concurrent_queries")
	}

	clientSem := a.clientSemaphore(clientID)
	if err := clientSem.Acquire(ctx, 1); err != nil {
		a.global.Release(1)
		return nil, translateAcquireErr(err, "max_concurrent_queries_per_client")
	}

	return &Ticket{a: a, clientSem: clientSem}, nil
}

func (a *Admitter) clientSemaphore(clientID string) *semaphore.Weighted {
	a.mu.Lock()
	defer a.mu.Unlock()
	sem, ok := a.clients[clientID]
	if !ok {
		sem = semaphore.NewWeighted(int64(a.limits.MaxConcurrentQueriesPerClient))
		a.clients[clientID] = sem
	}
	return sem
}

// AcquireSegment consumes one unit from both the global and per-query open
// segment handle budgets (spec §4.9). It fails with kind busy, naming the
// exceeded budget in a limits_hit-style detail, without blocking: open
// segment handles are a hard cap, not a queue.
func (t *Ticket) AcquireSegment() error {
	if t.heldSegments >= t.a.limits.MaxOpenSegmentsPerQuery {
		return ggrepErrors.New(ggrepErrors.KindBusy, "per-query open segment budget exceeded").
			WithDetail("limit", "max_open_segments_per_query")
	}

	t.a.segMu.Lock()
	defer t.a.segMu.Unlock()
	if t.a.openSegments >= t.a.limits.MaxOpenSegmentsGlobal {
		return ggrepErrors.New(ggrepErrors.KindBusy, "global open segment budget exceeded").
			WithDetail("limit", "max_open_segments_global")
	}
	t.a.openSegments++
	t.heldSegments++
	return nil
}

// ReleaseSegment returns one previously acquired segment handle.
func (t *Ticket) ReleaseSegment() {
	if t.heldSegments == 0 {
		return
	}
	t.a.segMu.Lock()
	t.a.openSegments--
	t.a.segMu.Unlock()
	t.heldSegments--
}

// Release returns every resource this ticket holds: remaining segment
// handles, the per-client slot, then the global slot. Safe to call
// multiple times.
func (t *Ticket) Release() {
	if t.a == nil {
		return
	}
	for t.heldSegments > 0 {
		t.ReleaseSegment()
	}
	t.clientSem.Release(1)
	t.a.global.Release(1)
	t.a = nil
}

func translateAcquireErr(err error, limitName string) error {
	if err == context.DeadlineExceeded {
		return ggrepErrors.Wrap(ggrepErrors.KindTimeout, "admission wait deadline exceeded", err)
	}
	if err == context.Canceled {
		return ggrepErrors.Wrap(ggrepErrors.KindCancelled, "admission wait cancelled", err)
	}
	return ggrepErrors.Wrap(ggrepErrors.KindBusy, "admission limit: "+limitName, err)
}

// atomic32 is a tiny mutex-guarded counter; the wait-queue count is
// updated on every Admit call, which is not hot enough to need a lock-free
// primitive.
type atomic32 struct {
	mu sync.Mutex
	n  int32
}

func (a *atomic32) inc() int32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.n++
	return a.n
}

func (a *atomic32) dec() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.n--
}
