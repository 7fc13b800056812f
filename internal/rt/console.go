package rt

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"fortio.org/safecast"
)

// ErrMalformedInt reports input that does not scan as a decimal int32.
var ErrMalformedInt = errors.New("malformed integer")

// Console is the runtime's view of the process standard streams.
type Console interface {
	// ReadInt scans one signed decimal integer. It returns io.EOF when
	// input ends before any digit.
	ReadInt() (int32, error)

	// ReadLine reads one line without its trailing newline. It returns
	// io.EOF when nothing is left to read.
	ReadLine() ([]byte, error)

	// WriteLine writes b followed by a newline.
	WriteLine(b []byte) error

	// Flush pushes buffered output to the underlying writer.
	Flush() error
}

// Finisher is implemented by consoles that observe program termination.
// fatal is nil for a normal exit.
type Finisher interface {
	Finish(code int, fatal *FatalError) error
}

// StdConsole implements Console over buffered reader and writer.
type StdConsole struct {
	r *bufio.Reader
	w *bufio.Writer
}

// NewConsole creates a console reading r and writing w.
func NewConsole(r io.Reader, w io.Writer) *StdConsole {
	return &StdConsole{r: bufio.NewReader(r), w: bufio.NewWriter(w)}
}

// NewStdConsole creates a console over os.Stdin and os.Stdout.
func NewStdConsole() *StdConsole {
	return NewConsole(os.Stdin, os.Stdout)
}

func (c *StdConsole) ReadInt() (int32, error) {
	if err := c.skipSpace(); err != nil {
		return 0, err
	}

	var buf []byte
	if b, err := c.r.ReadByte(); err == nil {
		if b == '+' || b == '-' {
			buf = append(buf, b)
		} else if err := c.r.UnreadByte(); err != nil {
			return 0, err
		}
	}

	digits := 0
	for {
		b, err := c.r.ReadByte()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, err
		}
		if b < '0' || b > '9' {
			if err := c.r.UnreadByte(); err != nil {
				return 0, err
			}
			break
		}
		buf = append(buf, b)
		digits++
	}
	if digits == 0 {
		return 0, fmt.Errorf("%w: no digits", ErrMalformedInt)
	}
	if err := c.skipTrailingSpace(); err != nil {
		return 0, err
	}

	v, err := strconv.ParseInt(string(buf), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %w", ErrMalformedInt, buf, err)
	}
	return safecast.Conv[int32](v)
}

func (c *StdConsole) ReadLine() ([]byte, error) {
	line, err := c.r.ReadBytes('\n')
	if err != nil && (!errors.Is(err, io.EOF) || len(line) == 0) {
		return nil, err
	}
	return bytes.TrimSuffix(line, []byte{'\n'}), nil
}

func (c *StdConsole) WriteLine(b []byte) error {
	if _, err := c.w.Write(b); err != nil {
		return err
	}
	return c.w.WriteByte('\n')
}

func (c *StdConsole) Flush() error {
	return c.w.Flush()
}

// skipSpace consumes leading whitespace, newlines included.
func (c *StdConsole) skipSpace() error {
	for {
		b, err := c.r.ReadByte()
		if err != nil {
			return err
		}
		if !isSpace(b) {
			return c.r.UnreadByte()
		}
	}
}

// skipTrailingSpace consumes every whitespace byte after a number, blank
// lines included, like a scanf "%d\n" conversion. A following ReadLine
// starts at the next non-space byte.
func (c *StdConsole) skipTrailingSpace() error {
	for {
		b, err := c.r.ReadByte()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if !isSpace(b) {
			return c.r.UnreadByte()
		}
	}
}

func isSpace(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	}
	return false
}

// TestConsole implements Console with controlled input and captured output.
type TestConsole struct {
	*StdConsole
	out *bytes.Buffer
}

// NewTestConsole creates a console reading stdin and capturing output.
func NewTestConsole(stdin string) *TestConsole {
	out := &bytes.Buffer{}
	return &TestConsole{
		StdConsole: NewConsole(bytes.NewBufferString(stdin), out),
		out:        out,
	}
}

// Output flushes and returns everything written so far.
func (c *TestConsole) Output() string {
	_ = c.Flush()
	return c.out.String()
}
