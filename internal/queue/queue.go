// Package queue implements the hand-off buffer between the capture callback
// and the background worker.
package queue

import (
	"fmt"
	"sync"
	"sync/atomic"

	"firestige.xyz/tanalyzer/internal/core"
)

// DropPolicy selects which frame is discarded when a bounded queue is full.
type DropPolicy string

const (
	// DropTail discards the incoming frame.
	DropTail DropPolicy = "tail"
	// DropHead discards the oldest queued frame.
	DropHead DropPolicy = "head"
)

// ParseDropPolicy accepts "", "tail" and "head". Empty means tail.
func ParseDropPolicy(s string) (DropPolicy, error) {
	switch DropPolicy(s) {
	case "", DropTail:
		return DropTail, nil
	case DropHead:
		return DropHead, nil
	default:
		return "", fmt.Errorf("unknown drop policy %q (want tail or head)", s)
	}
}

// Options configures an IngestQueue. A zero MaxDepth means unbounded.
type Options struct {
	MaxDepth   int
	DropPolicy DropPolicy
}

// IngestQueue is a FIFO of captured frames. The producer appends under the
// lock and the consumer takes the whole buffer in one swap, so a frame is
// only ever reachable from one side.
type IngestQueue struct {
	mu      sync.Mutex
	buf     []core.RawFrame
	head    int
	opts    Options
	dropped atomic.Uint64
	wake    chan struct{}
}

func New(opts Options) *IngestQueue {
	if opts.DropPolicy == "" {
		opts.DropPolicy = DropTail
	}
	return &IngestQueue{
		opts: opts,
		wake: make(chan struct{}, 1),
	}
}

// Enqueue appends frame. It never blocks on the consumer.
func (q *IngestQueue) Enqueue(frame core.RawFrame) {
	q.mu.Lock()
	if q.opts.MaxDepth > 0 && len(q.buf)-q.head >= q.opts.MaxDepth {
		if q.opts.DropPolicy == DropTail {
			q.mu.Unlock()
			q.dropped.Add(1)
			return
		}
		q.buf[q.head] = core.RawFrame{}
		q.head++
		q.dropped.Add(1)
	}
	q.buf = append(q.buf, frame)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// DrainSwap hands the current buffer to the caller and installs an empty
// one. The returned slice is never touched by the queue again.
func (q *IngestQueue) DrainSwap() []core.RawFrame {
	q.mu.Lock()
	batch := q.buf[q.head:]
	q.buf = nil
	q.head = 0
	q.mu.Unlock()
	return batch
}

func (q *IngestQueue) Len() int {
	q.mu.Lock()
	n := len(q.buf) - q.head
	q.mu.Unlock()
	return n
}

// Dropped is the number of frames discarded by the depth limit.
func (q *IngestQueue) Dropped() uint64 {
	return q.dropped.Load()
}

// Wake is signalled after every Enqueue. The channel has capacity one, so
// several enqueues may collapse into a single signal.
func (q *IngestQueue) Wake() <-chan struct{} {
	return q.wake
}
