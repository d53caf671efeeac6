package vm

import (
	"fmt"
	"sync"

	"github.com/standardbeagle/rholang-core/internal/types"
)

// channelEntry is one named channel's message queue plus the discipline it
// was first created under (§4.7: persistence × ordering, two independent
// axes).
type channelEntry struct {
	kind  types.RSpaceKind
	queue []types.Value
}

// RSpace is the channel store: a single mutex guards every enqueue,
// dequeue, and peek, so tell/ask/peek serialize atomically regardless of
// which of the four disciplines a given channel uses (§5 "held behind a
// single mutex; all access goes through it").
type RSpace struct {
	mu       sync.Mutex
	channels map[string]*channelEntry
}

// NewRSpace returns an empty channel store.
func NewRSpace() *RSpace {
	return &RSpace{channels: map[string]*channelEntry{}}
}

func (rs *RSpace) entry(kind types.RSpaceKind, name string) *channelEntry {
	e, ok := rs.channels[name]
	if !ok {
		e = &channelEntry{kind: kind}
		rs.channels[name] = e
	}
	return e
}

// Tell enqueues value on name, minting the channel's entry (and its
// discipline) on first use.
func (rs *RSpace) Tell(kind types.RSpaceKind, name string, value types.Value) error {
	if name == "" {
		return fmt.Errorf("tell: empty channel name")
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	e := rs.entry(kind, name)
	e.queue = append(e.queue, value)
	return nil
}

// dequeueIndex returns the index Ask/Peek would act on for e's discipline:
// sequential channels preserve FIFO arrival order (index 0); concurrent
// channels make no ordering guarantee (§5), so this store resolves ties by
// taking the most recently arrived message (the last index) — a valid
// choice within "unspecified" that keeps sequential and concurrent
// observably distinct in tests.
func dequeueIndex(e *channelEntry) int {
	if len(e.queue) == 0 {
		return -1
	}
	if e.kind.Sequential() {
		return 0
	}
	return len(e.queue) - 1
}

// Ask dequeues one message from name under kind's ordering rule, reporting
// ok=false (VM pushes Nil) if the channel is empty or never used.
func (rs *RSpace) Ask(kind types.RSpaceKind, name string) (types.Value, bool, error) {
	if name == "" {
		return types.Value{}, false, fmt.Errorf("ask: empty channel name")
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	e, ok := rs.channels[name]
	if !ok {
		return types.Value{}, false, nil
	}
	idx := dequeueIndex(e)
	if idx < 0 {
		return types.Value{}, false, nil
	}
	v := e.queue[idx]
	e.queue = append(e.queue[:idx], e.queue[idx+1:]...)
	return v, true, nil
}

// Peek non-destructively reads the message Ask would next return, leaving
// the queue unchanged.
func (rs *RSpace) Peek(kind types.RSpaceKind, name string) (types.Value, bool, error) {
	if name == "" {
		return types.Value{}, false, fmt.Errorf("peek: empty channel name")
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	e, ok := rs.channels[name]
	if !ok {
		return types.Value{}, false, nil
	}
	idx := dequeueIndex(e)
	if idx < 0 {
		return types.Value{}, false, nil
	}
	return e.queue[idx], true, nil
}

// Teardown drops every channel whose discipline is Memory-backed (§4.7:
// "Memory kinds are erased at VM teardown; Store kinds persist for the
// VM's lifetime"). Store-backed channels are left untouched.
func (rs *RSpace) Teardown() {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	for name, e := range rs.channels {
		if !e.kind.Persistent() {
			delete(rs.channels, name)
		}
	}
}

// Len reports how many messages are currently queued on name, for tests.
func (rs *RSpace) Len(name string) int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if e, ok := rs.channels[name]; ok {
		return len(e.queue)
	}
	return 0
}
