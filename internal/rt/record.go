package rt

import (
	"io"
	"sync"
)

// Recorder writes a record log of console traffic.
type Recorder struct {
	mu   sync.Mutex
	enc  eventEncoder
	err  error
	done bool
}

// NewRecorder writes the header to w and returns a recorder.
func NewRecorder(w io.Writer, format LogFormat, runtimeVersion string) *Recorder {
	r := &Recorder{enc: newEventEncoder(w, format)}
	r.record(NewLogHeader(runtimeVersion))
	return r
}

// Err returns the first encoding error.
func (r *Recorder) Err() error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Done reports whether a terminal event was written.
func (r *Recorder) Done() bool {
	if r == nil {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}

// Record appends ev. Events after a terminal event are dropped.
func (r *Recorder) Record(ev LogEvent) {
	if r == nil {
		return
	}
	r.record(ev)
}

func (r *Recorder) record(ev LogEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done || r.err != nil {
		return
	}
	if err := r.enc.Encode(ev); err != nil {
		r.err = err
		return
	}
	if ev.Kind == EventExit || ev.Kind == EventFatal {
		r.done = true
	}
}

// RecordingConsole passes console traffic through and logs it.
type RecordingConsole struct {
	con Console
	rec *Recorder
}

// NewRecordingConsole wraps con.
func NewRecordingConsole(con Console, rec *Recorder) *RecordingConsole {
	return &RecordingConsole{con: con, rec: rec}
}

func (c *RecordingConsole) ReadInt() (int32, error) {
	v, err := c.con.ReadInt()
	ev := LogEvent{Kind: EventReadInt, Err: errString(err)}
	if err == nil {
		ev.Int = &v
	}
	c.rec.Record(ev)
	return v, err
}

func (c *RecordingConsole) ReadLine() ([]byte, error) {
	line, err := c.con.ReadLine()
	c.rec.Record(LogEvent{Kind: EventReadString, Text: string(line), Err: errString(err)})
	return line, err
}

func (c *RecordingConsole) WriteLine(b []byte) error {
	err := c.con.WriteLine(b)
	c.rec.Record(LogEvent{Kind: EventWrite, Text: string(b), Err: errString(err)})
	return err
}

func (c *RecordingConsole) Flush() error {
	return c.con.Flush()
}

// Finish writes the terminal event and forwards to a wrapped Finisher.
func (c *RecordingConsole) Finish(code int, fe *FatalError) error {
	ev := LogEvent{Kind: EventExit, Code: code}
	if fe != nil {
		ev = LogEvent{Kind: EventFatal, Code: code, Fatal: fe.Code.String()}
	}
	c.rec.Record(ev)
	if fin, ok := c.con.(Finisher); ok {
		if err := fin.Finish(code, fe); err != nil {
			return err
		}
	}
	return c.rec.Err()
}
