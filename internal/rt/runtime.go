package rt

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"fortio.org/safecast"

	"latte/internal/trace"
)

// Options configures a Runtime.
type Options struct {
	// HeapLimit caps live heap bytes; 0 means unlimited.
	HeapLimit int64
	// Tracer receives call, heap and fatal events. Nil disables tracing.
	Tracer trace.Tracer
}

// Runtime is the Latte runtime support library bound to one console and
// one heap. It is not safe for concurrent use.
type Runtime struct {
	heap   *Heap
	con    Console
	tracer trace.Tracer

	session *trace.Span
	call    *trace.Span

	exitCode int
	exited   bool
	failErr  error
}

// New creates a runtime over con.
func New(con Console, opts Options) *Runtime {
	t := opts.Tracer
	if t == nil {
		t = trace.Nop
	}
	r := &Runtime{
		heap:     NewHeap(opts.HeapLimit),
		con:      con,
		tracer:   t,
		exitCode: -1,
	}
	r.session = trace.Begin(t, trace.ScopeProcess, "runtime", 0)
	r.heap.SetTracer(t, r.currentSpan)
	return r
}

// Heap exposes the runtime heap.
func (r *Runtime) Heap() *Heap {
	return r.heap
}

// Console exposes the runtime console.
func (r *Runtime) Console() Console {
	return r.con
}

// AllocString returns a zero-filled string buffer of logical size size.
// The block holds size+1 bytes so it is always terminated.
func (r *Runtime) AllocString(size int32) (Handle, error) {
	defer r.begin("allocate_string").end()
	h, err := r.allocString(int64(size))
	return h, withOp(err, OutOfMemory, "allocate_string", "allocation failed")
}

// AllocArray returns a zero-filled buffer of exactly size bytes.
func (r *Runtime) AllocArray(size int32) (Handle, error) {
	defer r.begin("allocate_array").end()
	h, err := r.heap.Alloc(BlockArray, int(size))
	return h, withOp(err, OutOfMemory, "allocate_array", "allocation failed")
}

// Concat returns a new string holding left followed by right.
// Neither input is modified or released.
func (r *Runtime) Concat(left, right Handle) (Handle, error) {
	defer r.begin("concat").end()
	l, err := r.heap.Bytes(left)
	if err != nil {
		return 0, withOp(err, InvalidHandle, "concat", "bad left operand")
	}
	rb, err := r.heap.Bytes(right)
	if err != nil {
		return 0, withOp(err, InvalidHandle, "concat", "bad right operand")
	}
	l, rb = cstr(l), cstr(rb)

	total := int64(len(l)) + int64(len(rb))
	if total > MaxSize {
		return 0, fatal(OutOfMemory, "concat", fmt.Sprintf("combined length %d exceeds %d", total, int64(MaxSize)), nil)
	}
	h, err := r.allocString(total)
	if err != nil {
		return 0, withOp(err, OutOfMemory, "concat", "allocation failed")
	}
	// the heap map holds pointers, so the earlier slices are still valid
	dst, _ := r.heap.Bytes(h)
	n := copy(dst, l)
	copy(dst[n:], rb)
	return h, nil
}

// NewString allocates a string holding a copy of s. Bytes after a zero in s
// are stored but not part of the logical string.
func (r *Runtime) NewString(s []byte) (Handle, error) {
	h, err := r.allocString(int64(len(s)))
	if err != nil {
		return 0, withOp(err, OutOfMemory, "allocate_string", "allocation failed")
	}
	dst, _ := r.heap.Bytes(h)
	copy(dst, s)
	return h, nil
}

// Text returns a copy of the logical contents of a string buffer.
func (r *Runtime) Text(h Handle) ([]byte, error) {
	b, err := r.heap.Bytes(h)
	if err != nil {
		return nil, withOp(err, InvalidHandle, "text", "bad handle")
	}
	return append([]byte(nil), cstr(b)...), nil
}

// Free releases a buffer. Handles are single-owner: after Free, every use
// of h is a fatal error.
func (r *Runtime) Free(h Handle) error {
	return withOp(r.heap.Free(h), InvalidHandle, "free", "bad handle")
}

// PrintInt writes v in decimal followed by a newline.
func (r *Runtime) PrintInt(v int32) error {
	defer r.begin("print_int").end()
	if err := r.con.WriteLine(strconv.AppendInt(nil, int64(v), 10)); err != nil {
		return withOp(err, WriteError, "print_int", "stdout write failed")
	}
	return nil
}

// PrintString writes the text of h followed by a newline.
func (r *Runtime) PrintString(h Handle) error {
	defer r.begin("print_string").end()
	b, err := r.heap.Bytes(h)
	if err != nil {
		return withOp(err, InvalidHandle, "print_string", "bad handle")
	}
	if err := r.con.WriteLine(cstr(b)); err != nil {
		return withOp(err, WriteError, "print_string", "stdout write failed")
	}
	return nil
}

// ReadInt reads one whitespace-delimited decimal integer from stdin.
func (r *Runtime) ReadInt() (int32, error) {
	defer r.begin("read_int").end()
	if err := r.flushBeforeRead("read_int"); err != nil {
		return 0, err
	}
	v, err := r.con.ReadInt()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return 0, withOp(err, ReadError, "read_int", "end of input")
		}
		return 0, withOp(err, ReadError, "read_int", "scan failed")
	}
	return v, nil
}

// ReadString reads one line from stdin into a new string buffer, without
// the trailing newline.
func (r *Runtime) ReadString() (Handle, error) {
	defer r.begin("read_string").end()
	if err := r.flushBeforeRead("read_string"); err != nil {
		return 0, err
	}
	line, err := r.con.ReadLine()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return 0, withOp(err, ReadError, "read_string", "end of input")
		}
		return 0, withOp(err, ReadError, "read_string", "read failed")
	}
	h, err := r.NewString(line)
	if err != nil {
		return 0, withOp(err, OutOfMemory, "read_string", "allocation failed")
	}
	return h, nil
}

// Abort is the Latte error() builtin. The returned error must be passed to
// Fail by the top-level caller.
func (r *Runtime) Abort() error {
	return fatal(UserAbort, "error", "program called error()", nil)
}

// Fail reports err as the fixed diagnostic on stdout and records the
// failure exit status, which it returns. The process is left running;
// terminating it is the caller's decision.
func (r *Runtime) Fail(err error) int {
	fe, ok := AsFatal(err)
	if !ok {
		fe = fatal(UserAbort, "", "unclassified failure", err)
	}
	parent := r.session.ID()
	trace.Point(r.tracer, trace.ScopeProcess, "fatal", parent, fe.Error(), map[string]string{
		"code": fe.Code.String(),
		"name": fe.Code.Name(),
		"op":   fe.Op,
	})

	var errs []error
	if err := r.con.WriteLine([]byte(Diagnostic)); err != nil {
		errs = append(errs, err)
	}
	if err := r.con.Flush(); err != nil {
		errs = append(errs, err)
	}
	if fin, ok := r.con.(Finisher); ok {
		if err := fin.Finish(ExitFailure, fe); err != nil {
			errs = append(errs, err)
		}
	}
	if r.failErr = errors.Join(errs...); r.failErr != nil {
		extra := map[string]string{}
		if code, ok := CodeOf(r.failErr); ok {
			extra["code"] = code.String()
			extra["name"] = code.Name()
		}
		trace.Point(r.tracer, trace.ScopeProcess, "fail_report", parent, r.failErr.Error(), extra)
	}
	r.terminate(ExitFailure)
	return ExitFailure
}

// FailErr returns what went wrong while Fail reported a failure, such as a
// stdout write error or a replay log that recorded a different ending. It
// is nil when the report was complete.
func (r *Runtime) FailErr() error {
	return r.failErr
}

// Exit records a normal termination with code and flushes stdout.
func (r *Runtime) Exit(code int) error {
	flushErr := r.con.Flush()
	var finErr error
	if fin, ok := r.con.(Finisher); ok {
		finErr = fin.Finish(code, nil)
	}
	r.terminate(code)
	if flushErr != nil {
		return fatal(WriteError, "exit", "stdout flush failed", flushErr)
	}
	return finErr
}

// ExitCode returns the code set by Exit or Fail, or -1 if neither ran.
func (r *Runtime) ExitCode() int {
	return r.exitCode
}

// Exited reports whether Exit or Fail ran.
func (r *Runtime) Exited() bool {
	return r.exited
}

func (r *Runtime) terminate(code int) {
	if r.exited {
		return
	}
	r.exitCode = code
	r.exited = true
	stats := r.heap.Stats()
	r.session.
		WithExtra("exit", strconv.Itoa(code)).
		WithExtra("allocs", strconv.FormatUint(stats.Allocs, 10)).
		WithExtra("frees", strconv.FormatUint(stats.Frees, 10)).
		WithExtra("peak_bytes", strconv.FormatInt(stats.PeakBytes, 10)).
		End("")
}

func (r *Runtime) allocString(size int64) (Handle, error) {
	if size < 0 {
		return 0, fatal(OutOfMemory, "", fmt.Sprintf("negative string size %d", size), nil)
	}
	n, err := safecast.Conv[int](size + 1)
	if err != nil {
		return 0, fatal(OutOfMemory, "", "string size out of range", err)
	}
	return r.heap.Alloc(BlockString, n)
}

func (r *Runtime) flushBeforeRead(op string) error {
	if err := r.con.Flush(); err != nil {
		return fatal(WriteError, op, "stdout flush failed", err)
	}
	return nil
}

// callSpan closes a builtin call span.
type callSpan struct {
	r    *Runtime
	prev *trace.Span
}

func (r *Runtime) begin(op string) callSpan {
	cs := callSpan{r: r, prev: r.call}
	r.call = trace.Begin(r.tracer, trace.ScopeCall, op, r.currentSpan())
	return cs
}

func (cs callSpan) end() {
	cs.r.call.End("")
	cs.r.call = cs.prev
}

func (r *Runtime) currentSpan() uint64 {
	if r.call != nil && r.call.ID() != 0 {
		return r.call.ID()
	}
	return r.session.ID()
}
