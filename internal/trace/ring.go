package trace

import (
	"fmt"
	"io"
	"sync"
)

// History is implemented by tracers that keep recent events for a crash
// dump.
type History interface {
	Ring() *RingTracer
}

// RingTracer keeps the most recent builtin calls, heap operations and the
// fatal point, so the lead-up to a runtime failure can be printed. Session
// spans and other process events are not kept.
type RingTracer struct {
	mu      sync.Mutex
	buf     []Event
	start   int // oldest event once buf is full
	dropped uint64
	level   Level
}

// NewRingTracer creates a ring holding up to capacity events.
func NewRingTracer(capacity int, level Level) *RingTracer {
	if capacity <= 0 {
		capacity = 4096
	}
	return &RingTracer{buf: make([]Event, 0, capacity), level: level}
}

// keepForDump selects the events worth replaying after a failure.
func keepForDump(ev *Event) bool {
	switch ev.Scope {
	case ScopeCall, ScopeHeap:
		return true
	case ScopeProcess:
		return ev.Kind == KindPoint && ev.Name == "fatal"
	}
	return false
}

// Emit stores ev, overwriting the oldest event when full.
func (t *RingTracer) Emit(ev *Event) {
	if !t.level.ShouldEmit(ev.Scope) || !keepForDump(ev) {
		return
	}
	stored := *ev
	if stored.Seq == 0 {
		stored.Seq = NextSeq()
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.buf) < cap(t.buf) {
		t.buf = append(t.buf, stored)
		return
	}
	t.buf[t.start] = stored
	t.start = (t.start + 1) % len(t.buf)
	t.dropped++
}

// Snapshot returns the kept events oldest first.
func (t *RingTracer) Snapshot() []Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Event, 0, len(t.buf))
	out = append(out, t.buf[t.start:]...)
	return append(out, t.buf[:t.start]...)
}

// Dropped returns how many events were overwritten.
func (t *RingTracer) Dropped() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dropped
}

// Dump writes the kept events. Text dumps start with a note when older
// events were overwritten.
func (t *RingTracer) Dump(w io.Writer, format Format) error {
	if n := t.Dropped(); n > 0 && format != FormatNDJSON {
		if _, err := fmt.Fprintf(w, "... %d earlier events dropped\n", n); err != nil {
			return err
		}
	}
	events := t.Snapshot()
	for i := range events {
		if _, err := w.Write(FormatEvent(&events[i], format)); err != nil {
			return err
		}
	}
	return nil
}

// Ring implements History.
func (t *RingTracer) Ring() *RingTracer {
	return t
}

func (t *RingTracer) Flush() error  { return nil }
func (t *RingTracer) Close() error  { return nil }
func (t *RingTracer) Level() Level  { return t.level }
func (t *RingTracer) Enabled() bool { return t.level > LevelOff }
