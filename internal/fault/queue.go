package fault

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/efreitasn/marketsim/internal/domain"
)

// Key names an output stream whose batches must keep their order: a
// (portfolio, security) position or, with an empty portfolio, the input
// stream of a security.
type Key struct {
	Portfolio string
	Security  domain.SecurityID
}

// Batch is the output of one processed input message waiting to be emitted.
type Batch struct {
	Due      time.Time
	Keys     []Key
	Messages []domain.Message
}

// Sink receives batches in emission order.
type Sink func(msgs []domain.Message)

// DelayQueue holds batches sorted by due time. Batches sharing a key are
// never reordered: a batch is never due before any earlier batch pushed
// with one of its keys.
type DelayQueue struct {
	mu      sync.Mutex
	sink    Sink
	pending []*Batch // sorted by Due ASC, FIFO among equal dues
	lastDue map[Key]time.Time
}

// NewDelayQueue creates an empty queue delivering to sink.
func NewDelayQueue(sink Sink) *DelayQueue {
	return &DelayQueue{
		sink:    sink,
		lastDue: make(map[Key]time.Time),
	}
}

// Push schedules msgs for emission at now+delay, or later if a batch
// already pushed under one of keys is due after that.
func (q *DelayQueue) Push(keys []Key, now time.Time, delay time.Duration, msgs []domain.Message) {
	if len(msgs) == 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	due := now.Add(delay)
	for _, k := range keys {
		if last, ok := q.lastDue[k]; ok && last.After(due) {
			due = last
		}
	}
	for _, k := range keys {
		q.lastDue[k] = due
	}

	idx := sort.Search(len(q.pending), func(i int) bool {
		return q.pending[i].Due.After(due)
	})
	q.pending = append(q.pending, nil)
	copy(q.pending[idx+1:], q.pending[idx:])
	q.pending[idx] = &Batch{Due: due, Keys: keys, Messages: msgs}
}

// Flush emits every batch due at or before now and returns how many
// batches were emitted.
func (q *DelayQueue) Flush(now time.Time) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	cutoff := 0
	for cutoff < len(q.pending) && !q.pending[cutoff].Due.After(now) {
		cutoff++
	}
	q.emit(q.pending[:cutoff])
	q.pending = q.pending[cutoff:]
	return cutoff
}

// Drain emits every pending batch regardless of due time.
func (q *DelayQueue) Drain() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.pending)
	q.emit(q.pending)
	q.pending = nil
	return n
}

// Discard drops every pending batch without emitting it.
func (q *DelayQueue) Discard() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.pending)
	q.pending = nil
	q.lastDue = make(map[Key]time.Time)
	return n
}

// Len returns the number of pending batches.
func (q *DelayQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Start flushes due batches on every tick of interval, using clock for the
// current time, until ctx is cancelled.
func (q *DelayQueue) Start(ctx context.Context, interval time.Duration, clock func() time.Time) {
	if clock == nil {
		clock = time.Now
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				q.Flush(clock())
			}
		}
	}()
}

// emit runs under q.mu so concurrent flushes cannot interleave batches.
func (q *DelayQueue) emit(batches []*Batch) {
	if q.sink == nil {
		return
	}
	for _, b := range batches {
		q.sink(b.Messages)
	}
}
