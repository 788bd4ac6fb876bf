package chainsync

import (
	"sync"
	"time"

	"github.com/cardano-dex/batcher-monitor/metrics"
)

// softLimit is the queue depth at which the producer starts sleeping to
// yield back-pressure. Not a hard cap: a push past the limit still
// succeeds, it just triggers a pause before the producer tries the next one.
const softLimit = 1000

// backpressureSleep is how long the producer yields once softLimit is
// reached; the exact duration isn't load-bearing, any bounded pause that
// lets the consumer drain works.
const backpressureSleep = 10 * time.Second

// popTimeout bounds how long Pop blocks before re-checking the exit flag.
const popTimeout = 10 * time.Second

// BlockQueue is the bounded, condition-variable-signalled FIFO connecting
// the chain client (producer) to the block parser (consumer). Ordering is
// strictly FIFO, matching the chain client's forward-only delivery.
type BlockQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []Block
	closed bool
}

// NewBlockQueue returns an empty, open queue.
func NewBlockQueue() *BlockQueue {
	q := &BlockQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push enqueues a block, signalling any blocked consumer. If the queue is
// at or past the soft limit, Push sleeps backpressureSleep before
// returning so the producer naturally throttles itself; it still enqueues
// the block either way — the sleep is the only back-pressure lever, not a
// rejection.
func (q *BlockQueue) Push(b Block) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, b)
	metrics.QueueDepth.Set(float64(len(q.items)))
	atLimit := len(q.items) >= softLimit
	q.cond.Signal()
	q.mu.Unlock()

	if atLimit {
		time.Sleep(backpressureSleep)
	}
}

// Pop blocks until a block is available, the queue is closed, or
// popTimeout elapses (returning ok=false in the timeout case so the caller
// can re-check its own exit condition). FIFO order is preserved.
func (q *BlockQueue) Pop() (block Block, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	deadline := time.Now().Add(popTimeout)
	for len(q.items) == 0 && !q.closed {
		if !q.waitUntil(deadline) {
			return Block{}, false
		}
	}
	if len(q.items) == 0 {
		return Block{}, false
	}
	block = q.items[0]
	q.items = q.items[1:]
	metrics.QueueDepth.Set(float64(len(q.items)))
	return block, true
}

// waitUntil blocks on the condition variable until signalled or the
// deadline passes, returning false once the deadline has passed. Must be
// called with q.mu held.
func (q *BlockQueue) waitUntil(deadline time.Time) bool {
	if time.Now().After(deadline) {
		return false
	}
	done := make(chan struct{})
	timer := time.AfterFunc(time.Until(deadline), func() {
		q.mu.Lock()
		close(done)
		q.cond.Broadcast()
		q.mu.Unlock()
	})
	defer timer.Stop()

	q.cond.Wait()

	select {
	case <-done:
		return false
	default:
		return true
	}
}

// Close marks the queue closed and wakes every waiter. Pop still returns
// any blocks already queued and returns ok=false once they are drained;
// Push on a closed queue drops the block.
func (q *BlockQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()
}

// Len reports the current queue depth (best-effort, for metrics/logging).
func (q *BlockQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
