package trace

import "errors"

// TeeTracer streams every event and also keeps the crash ring.
type TeeTracer struct {
	stream Tracer
	ring   *RingTracer
	level  Level
}

// NewTeeTracer writes events to stream and ring.
func NewTeeTracer(level Level, stream Tracer, ring *RingTracer) *TeeTracer {
	return &TeeTracer{stream: stream, ring: ring, level: level}
}

// Emit numbers ev once so both copies share a sequence number.
func (t *TeeTracer) Emit(ev *Event) {
	if ev.Seq == 0 {
		ev.Seq = NextSeq()
	}
	t.stream.Emit(ev)
	t.ring.Emit(ev)
}

func (t *TeeTracer) Flush() error {
	return t.stream.Flush()
}

func (t *TeeTracer) Close() error {
	return errors.Join(t.stream.Close(), t.ring.Close())
}

func (t *TeeTracer) Level() Level  { return t.level }
func (t *TeeTracer) Enabled() bool { return t.level > LevelOff }

// Ring implements History.
func (t *TeeTracer) Ring() *RingTracer {
	return t.ring
}
