package rt

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

// LogVersion is the record log format version.
const LogVersion = 1

// Event kinds in a record log.
const (
	EventHeader     = "header"
	EventReadInt    = "read_int"
	EventReadString = "read_string"
	EventWrite      = "write"
	EventExit       = "exit"
	EventFatal      = "fatal"
)

// eofMarker is the Err value recorded when a read hit end of input.
const eofMarker = "eof"

// LogFormat selects the record log encoding.
type LogFormat uint8

const (
	LogNDJSON  LogFormat = iota + 1 // one JSON object per line
	LogMsgpack                      // concatenated msgpack maps
)

func (f LogFormat) String() string {
	switch f {
	case LogNDJSON:
		return "ndjson"
	case LogMsgpack:
		return "msgpack"
	default:
		return "unknown"
	}
}

// ParseLogFormat converts a string to LogFormat.
func ParseLogFormat(s string) (LogFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "ndjson", "json":
		return LogNDJSON, nil
	case "msgpack", "mp":
		return LogMsgpack, nil
	default:
		return 0, fmt.Errorf("invalid record format: %q (expected: ndjson|msgpack)", s)
	}
}

// LogEvent is one record log entry. Unused fields stay empty.
type LogEvent struct {
	Kind    string `json:"kind" msgpack:"kind"`
	V       int    `json:"v,omitempty" msgpack:"v,omitempty"`
	Runtime string `json:"runtime,omitempty" msgpack:"runtime,omitempty"`
	Int     *int32 `json:"int,omitempty" msgpack:"int,omitempty"`
	Text    string `json:"text,omitempty" msgpack:"text,omitempty"`
	Err     string `json:"err,omitempty" msgpack:"err,omitempty"`
	Code    int    `json:"code,omitempty" msgpack:"code,omitempty"`
	Fatal   string `json:"fatal,omitempty" msgpack:"fatal,omitempty"`
}

// NewLogHeader creates the header event.
func NewLogHeader(runtimeVersion string) LogEvent {
	return LogEvent{Kind: EventHeader, V: LogVersion, Runtime: runtimeVersion}
}

// Log is a decoded record log.
type Log struct {
	Format LogFormat
	Header LogEvent
	Events []LogEvent
}

type eventEncoder interface {
	Encode(v any) error
}

type eventDecoder interface {
	Decode(v any) error
}

func newEventEncoder(w io.Writer, format LogFormat) eventEncoder {
	if format == LogMsgpack {
		enc := msgpack.NewEncoder(w)
		enc.SetOmitEmpty(true)
		return enc
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc
}

// DecodeLog reads a record log in either encoding. A log whose first
// non-blank byte is '{' is NDJSON; anything else is msgpack.
func DecodeLog(rd io.Reader) (*Log, error) {
	br := bufio.NewReader(rd)
	format := LogMsgpack
	for {
		b, err := br.Peek(1)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("empty record log")
			}
			return nil, err
		}
		if b[0] == ' ' || b[0] == '\n' || b[0] == '\r' || b[0] == '\t' {
			_, _ = br.ReadByte()
			continue
		}
		if b[0] == '{' {
			format = LogNDJSON
		}
		break
	}

	var dec eventDecoder
	if format == LogNDJSON {
		dec = json.NewDecoder(br)
	} else {
		dec = msgpack.NewDecoder(br)
	}

	log := &Log{Format: format}
	for i := 0; ; i++ {
		var ev LogEvent
		if err := dec.Decode(&ev); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("record log event %d: %w", i, err)
		}
		if i == 0 {
			log.Header = ev
			continue
		}
		log.Events = append(log.Events, ev)
	}
	if err := log.Validate(); err != nil {
		return nil, err
	}
	return log, nil
}

// Validate checks the header and event structure. A log may end without a
// terminal event (the recorded run crashed), but nothing may follow one.
func (l *Log) Validate() error {
	if l.Header.Kind != EventHeader {
		return fmt.Errorf("missing header")
	}
	if l.Header.V != LogVersion {
		return fmt.Errorf("unsupported log version %d", l.Header.V)
	}
	for i, ev := range l.Events {
		switch ev.Kind {
		case EventReadInt:
			if ev.Int == nil && ev.Err == "" {
				return fmt.Errorf("event %d: read_int without value or error", i+1)
			}
		case EventReadString, EventWrite:
		case EventExit, EventFatal:
			if i != len(l.Events)-1 {
				return fmt.Errorf("event %d: %s is followed by %d more events", i+1, ev.Kind, len(l.Events)-1-i)
			}
			if ev.Kind == EventFatal {
				if _, ok := ParseErrorCode(ev.Fatal); !ok {
					return fmt.Errorf("event %d: unknown fatal code %q", i+1, ev.Fatal)
				}
			}
		case EventHeader:
			return fmt.Errorf("event %d: duplicate header", i+1)
		default:
			return fmt.Errorf("event %d: unknown kind %q", i+1, ev.Kind)
		}
	}
	return nil
}

// Terminated reports whether the log ends with exit or fatal.
func (l *Log) Terminated() bool {
	if len(l.Events) == 0 {
		return false
	}
	k := l.Events[len(l.Events)-1].Kind
	return k == EventExit || k == EventFatal
}

// Summary counts events by kind.
func (l *Log) Summary() map[string]int {
	out := make(map[string]int, 6)
	for _, ev := range l.Events {
		out[ev.Kind]++
	}
	return out
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, io.EOF) {
		return eofMarker
	}
	return err.Error()
}

func errFromString(s string) error {
	switch s {
	case "":
		return nil
	case eofMarker:
		return io.EOF
	default:
		return errors.New(s)
	}
}
