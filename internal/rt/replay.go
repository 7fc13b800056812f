package rt

import (
	"fmt"
	"io"
)

// ReplayConsole serves reads from a record log and checks that writes
// match it. It never reads the process stdin; writes are echoed to out.
type ReplayConsole struct {
	log  *Log
	next int
	out  io.Writer
}

// NewReplayConsole replays log, echoing writes to out (may be nil).
func NewReplayConsole(log *Log, out io.Writer) *ReplayConsole {
	return &ReplayConsole{log: log, out: out}
}

// NewReplayConsoleFromReader decodes a record log from rd and replays it.
func NewReplayConsoleFromReader(rd io.Reader, out io.Writer) (*ReplayConsole, error) {
	log, err := DecodeLog(rd)
	if err != nil {
		return nil, err
	}
	return NewReplayConsole(log, out), nil
}

// Remaining returns the number of unconsumed events.
func (c *ReplayConsole) Remaining() int {
	if c.next >= len(c.log.Events) {
		return 0
	}
	return len(c.log.Events) - c.next
}

func (c *ReplayConsole) ReadInt() (int32, error) {
	ev, err := c.expect(EventReadInt, "read_int")
	if err != nil {
		return 0, err
	}
	if ev.Err != "" {
		return 0, errFromString(ev.Err)
	}
	return *ev.Int, nil
}

func (c *ReplayConsole) ReadLine() ([]byte, error) {
	ev, err := c.expect(EventReadString, "read_string")
	if err != nil {
		return nil, err
	}
	if ev.Err != "" {
		return nil, errFromString(ev.Err)
	}
	return []byte(ev.Text), nil
}

func (c *ReplayConsole) WriteLine(b []byte) error {
	if c.out != nil {
		if _, err := fmt.Fprintf(c.out, "%s\n", b); err != nil {
			return err
		}
	}
	ev, err := c.expect(EventWrite, "write")
	if err != nil {
		return err
	}
	if ev.Text != string(b) {
		return fatal(ReplayMismatch, "write", fmt.Sprintf("replay mismatch: expected write %q, got %q", ev.Text, b), nil)
	}
	return errFromString(ev.Err)
}

func (c *ReplayConsole) Flush() error {
	return nil
}

// Finish checks that the run terminated the way the recorded run did and
// that the log is fully consumed.
func (c *ReplayConsole) Finish(code int, fe *FatalError) error {
	kind := EventExit
	if fe != nil {
		kind = EventFatal
	}
	ev, err := c.expect(kind, "finish")
	if err != nil {
		return err
	}
	if ev.Code != code {
		return fatal(ReplayMismatch, "finish", fmt.Sprintf("replay mismatch: expected exit code %d, got %d", ev.Code, code), nil)
	}
	if fe != nil && ev.Fatal != fe.Code.String() {
		return fatal(ReplayMismatch, "finish", fmt.Sprintf("replay mismatch: expected fatal %s, got %s", ev.Fatal, fe.Code), nil)
	}
	if c.Remaining() != 0 {
		return fatal(ReplayMismatch, "finish", "replay mismatch: extra log events after termination", nil)
	}
	return nil
}

func (c *ReplayConsole) expect(kind, op string) (LogEvent, error) {
	if c.next >= len(c.log.Events) {
		return LogEvent{}, fatal(ReplayMismatch, op, "replay log exhausted", nil)
	}
	ev := c.log.Events[c.next]
	if ev.Kind != kind {
		return LogEvent{}, fatal(ReplayMismatch, op, fmt.Sprintf("replay mismatch: expected %s, got %s", kind, ev.Kind), nil)
	}
	c.next++
	return ev, nil
}
