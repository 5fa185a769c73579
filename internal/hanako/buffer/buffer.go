// Package buffer coalesces bursts of incoming message fragments into a
// single downstream turn per conversation. Each (room, sender) key
// accumulates fragments until a quiet period elapses with no new arrivals,
// then dispatches the whole batch exactly once.
package buffer

import (
	"context"
	"sync"
	"time"

	"github.com/bdobrica/Hanako/internal/hanako/chat"
)

// DefaultQuietPeriod is the debounce interval used when none is configured.
const DefaultQuietPeriod = 4 * time.Second

// Key identifies one conversation buffer.
type Key struct {
	RoomID   string
	SenderID string
}

// Dispatch receives the swapped-out fragment batch for one turn. It runs on
// the timer goroutine; implementations own their error handling, the buffer
// never inspects the outcome.
type Dispatch func(ctx context.Context, key Key, fragments []chat.Message)

// entry is the per-key accumulation state. gen invalidates stale timer
// callbacks: every append re-arms the timer and bumps gen, so a callback
// holding an older gen returns without dispatching.
type entry struct {
	fragments   []chat.Message
	timer       *time.Timer
	gen         uint64
	dispatching bool
}

// Buffer is the process-wide key→accumulation map. Entries persist for the
// process lifetime; keys are low-cardinality relative to memory. Safe for
// concurrent use.
type Buffer struct {
	mu       sync.Mutex
	quiet    time.Duration
	dispatch Dispatch
	entries  map[Key]*entry
}

// New creates a Buffer that waits quiet between the last fragment and the
// dispatch. quiet ≤ 0 falls back to DefaultQuietPeriod.
func New(quiet time.Duration, dispatch Dispatch) *Buffer {
	if quiet <= 0 {
		quiet = DefaultQuietPeriod
	}
	return &Buffer{
		quiet:    quiet,
		dispatch: dispatch,
		entries:  make(map[Key]*entry),
	}
}

// Append adds a fragment to the key's buffer and re-arms the quiet-period
// timer. At most one timer is pending per key at any instant: arrival of a
// new fragment cancels and replaces the existing one.
func (b *Buffer) Append(key Key, fragment chat.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e := b.entries[key]
	if e == nil {
		e = &entry{}
		b.entries[key] = e
	}

	e.fragments = append(e.fragments, fragment)
	e.gen++
	gen := e.gen

	if e.timer != nil {
		e.timer.Stop()
	}
	e.timer = time.AfterFunc(b.quiet, func() { b.fire(key, gen) })
}

// Flush dispatches the key's buffered fragments immediately, bypassing the
// quiet period. A pending timer is cancelled. No-op when the buffer is empty
// or a dispatch for the key is already in flight.
func (b *Buffer) Flush(key Key) {
	b.mu.Lock()
	e := b.entries[key]
	if e == nil || len(e.fragments) == 0 || e.dispatching {
		b.mu.Unlock()
		return
	}
	e.gen++
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	fragments := e.fragments
	e.fragments = nil
	e.dispatching = true
	b.mu.Unlock()

	b.dispatch(context.Background(), key, fragments)

	b.mu.Lock()
	e.dispatching = false
	b.mu.Unlock()
}

// Pending returns the number of fragments currently buffered for key.
func (b *Buffer) Pending(key Key) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if e := b.entries[key]; e != nil {
		return len(e.fragments)
	}
	return 0
}

// fire runs when a quiet-period timer expires. The fragment list is swapped
// out atomically before the dispatch runs, so fragments arriving during the
// dispatch start a fresh accumulation cycle instead of being lost or sent
// twice. If a dispatch for the key is still in flight, the batch waits
// another quiet period; two dispatch cycles for one key never overlap.
func (b *Buffer) fire(key Key, gen uint64) {
	b.mu.Lock()
	e := b.entries[key]
	if e == nil || e.gen != gen || len(e.fragments) == 0 {
		b.mu.Unlock()
		return
	}
	if e.dispatching {
		e.timer = time.AfterFunc(b.quiet, func() { b.fire(key, gen) })
		b.mu.Unlock()
		return
	}
	fragments := e.fragments
	e.fragments = nil
	e.timer = nil
	e.dispatching = true
	b.mu.Unlock()

	b.dispatch(context.Background(), key, fragments)

	b.mu.Lock()
	e.dispatching = false
	b.mu.Unlock()
}
