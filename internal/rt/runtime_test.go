package rt

import (
	"bytes"
	"errors"
	"testing"
)

func newTestRuntime(stdin string) (*Runtime, *TestConsole) {
	con := NewTestConsole(stdin)
	return New(con, Options{}), con
}

func mustText(t *testing.T, r *Runtime, h Handle) string {
	t.Helper()
	b, err := r.Text(h)
	if err != nil {
		t.Fatalf("Text(%d): %v", h, err)
	}
	return string(b)
}

func mustString(t *testing.T, r *Runtime, s string) Handle {
	t.Helper()
	h, err := r.NewString([]byte(s))
	if err != nil {
		t.Fatalf("NewString(%q): %v", s, err)
	}
	return h
}

func wantCode(t *testing.T, err error, code ErrorCode) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s (%s), got nil", code, code.Name())
	}
	got, ok := CodeOf(err)
	if !ok {
		t.Fatalf("expected *FatalError, got %T: %v", err, err)
	}
	if got != code {
		t.Fatalf("code = %s (%s), want %s (%s): %v", got, got.Name(), code, code.Name(), err)
	}
}

func TestAllocString_ZeroFilledWithTerminator(t *testing.T) {
	r, _ := newTestRuntime("")
	for _, size := range []int32{0, 1, 7, 64, 4096} {
		h, err := r.AllocString(size)
		if err != nil {
			t.Fatalf("AllocString(%d): %v", size, err)
		}
		b, err := r.Heap().Bytes(h)
		if err != nil {
			t.Fatalf("Bytes: %v", err)
		}
		if len(b) != int(size)+1 {
			t.Fatalf("AllocString(%d) block len = %d, want %d", size, len(b), size+1)
		}
		if !bytes.Equal(b, make([]byte, size+1)) {
			t.Fatalf("AllocString(%d) not zero-filled", size)
		}
		if got := mustText(t, r, h); got != "" {
			t.Fatalf("fresh string text = %q, want empty", got)
		}
	}
}

func TestAllocString_ZeroSizeIsFreshEachTime(t *testing.T) {
	r, _ := newTestRuntime("")
	seen := make(map[Handle]bool)
	for i := 0; i < 100; i++ {
		h, err := r.AllocString(0)
		if err != nil {
			t.Fatalf("AllocString(0): %v", err)
		}
		if h == 0 || seen[h] {
			t.Fatalf("handle %d reused or zero", h)
		}
		seen[h] = true
		if got := mustText(t, r, h); got != "" {
			t.Fatalf("text = %q, want empty", got)
		}
	}
}

func TestAllocString_Negative(t *testing.T) {
	r, _ := newTestRuntime("")
	_, err := r.AllocString(-1)
	wantCode(t, err, OutOfMemory)
	if fe, _ := AsFatal(err); fe.Op != "allocate_string" {
		t.Fatalf("op = %q, want allocate_string", fe.Op)
	}
}

func TestAllocArray_ExactSize(t *testing.T) {
	r, _ := newTestRuntime("")
	h, err := r.AllocArray(16)
	if err != nil {
		t.Fatalf("AllocArray: %v", err)
	}
	b, _ := r.Heap().Bytes(h)
	if len(b) != 16 {
		t.Fatalf("array len = %d, want 16", len(b))
	}
	if !bytes.Equal(b, make([]byte, 16)) {
		t.Fatal("array not zero-filled")
	}
	if kind, _ := r.Heap().Kind(h); kind != BlockArray {
		t.Fatalf("kind = %s, want array", kind)
	}
}

func TestHeapLimit_OutOfMemory(t *testing.T) {
	r := New(NewTestConsole(""), Options{HeapLimit: 10})
	if _, err := r.AllocArray(8); err != nil {
		t.Fatalf("AllocArray(8): %v", err)
	}
	_, err := r.AllocString(2) // needs 3 bytes, 2 left
	wantCode(t, err, OutOfMemory)

	if _, err := r.AllocArray(2); err != nil {
		t.Fatalf("AllocArray(2) within limit: %v", err)
	}
}

func TestConcat(t *testing.T) {
	tests := []struct {
		left, right string
	}{
		{"", ""},
		{"abc", ""},
		{"", "xyz"},
		{"hello, ", "world"},
		{"a", "b"},
	}
	for _, tt := range tests {
		t.Run(tt.left+"+"+tt.right, func(t *testing.T) {
			r, _ := newTestRuntime("")
			l := mustString(t, r, tt.left)
			rh := mustString(t, r, tt.right)

			h, err := r.Concat(l, rh)
			if err != nil {
				t.Fatalf("Concat: %v", err)
			}
			b, _ := r.Heap().Bytes(h)
			want := tt.left + tt.right
			if len(b) != len(want)+1 || b[len(want)] != 0 {
				t.Fatalf("block = %q, want %q plus terminator", b, want)
			}
			if got := mustText(t, r, h); got != want {
				t.Fatalf("Concat = %q, want %q", got, want)
			}
			if mustText(t, r, l) != tt.left || mustText(t, r, rh) != tt.right {
				t.Fatal("inputs modified")
			}
			if h == l || h == rh {
				t.Fatal("result aliases an input")
			}
		})
	}
}

func TestConcat_StopsAtTerminator(t *testing.T) {
	r, _ := newTestRuntime("")
	l, _ := r.AllocString(10)
	b, _ := r.Heap().Bytes(l)
	copy(b, "ab")
	rh := mustString(t, r, "cd")

	h, err := r.Concat(l, rh)
	if err != nil {
		t.Fatalf("Concat: %v", err)
	}
	if got := mustText(t, r, h); got != "abcd" {
		t.Fatalf("Concat = %q, want %q", got, "abcd")
	}
}

func TestConcat_SameHandleTwice(t *testing.T) {
	r, _ := newTestRuntime("")
	s := mustString(t, r, "ab")
	h, err := r.Concat(s, s)
	if err != nil {
		t.Fatalf("Concat: %v", err)
	}
	if got := mustText(t, r, h); got != "abab" {
		t.Fatalf("Concat = %q", got)
	}
}

func TestConcat_FreedOperand(t *testing.T) {
	r, _ := newTestRuntime("")
	l := mustString(t, r, "a")
	rh := mustString(t, r, "b")
	if err := r.Free(rh); err != nil {
		t.Fatalf("Free: %v", err)
	}
	_, err := r.Concat(l, rh)
	wantCode(t, err, UseAfterFree)
	if fe, _ := AsFatal(err); fe.Op != "concat" {
		t.Fatalf("op = %q", fe.Op)
	}
}

func TestPrintInt(t *testing.T) {
	tests := []struct {
		v    int32
		want string
	}{
		{42, "42\n"},
		{-7, "-7\n"},
		{0, "0\n"},
		{2147483647, "2147483647\n"},
		{-2147483648, "-2147483648\n"},
	}
	for _, tt := range tests {
		r, con := newTestRuntime("")
		if err := r.PrintInt(tt.v); err != nil {
			t.Fatalf("PrintInt(%d): %v", tt.v, err)
		}
		if got := con.Output(); got != tt.want {
			t.Errorf("PrintInt(%d) = %q, want %q", tt.v, got, tt.want)
		}
	}
}

func TestPrintString(t *testing.T) {
	r, con := newTestRuntime("")
	h := mustString(t, r, "hello")
	if err := r.PrintString(h); err != nil {
		t.Fatalf("PrintString: %v", err)
	}
	empty, _ := r.AllocString(3)
	if err := r.PrintString(empty); err != nil {
		t.Fatalf("PrintString: %v", err)
	}
	if got := con.Output(); got != "hello\n\n" {
		t.Fatalf("output = %q", got)
	}
}

func TestReadString(t *testing.T) {
	r, _ := newTestRuntime("abc\n\nlast")
	for _, want := range []string{"abc", "", "last"} {
		h, err := r.ReadString()
		if err != nil {
			t.Fatalf("ReadString: %v", err)
		}
		if got := mustText(t, r, h); got != want {
			t.Fatalf("ReadString = %q, want %q", got, want)
		}
		b, _ := r.Heap().Bytes(h)
		if len(b) != len(want)+1 {
			t.Fatalf("block len = %d, want %d", len(b), len(want)+1)
		}
	}
	_, err := r.ReadString()
	wantCode(t, err, ReadError)
}

func TestReadString_EmptyInputFails(t *testing.T) {
	r, con := newTestRuntime("")
	_, err := r.ReadString()
	wantCode(t, err, ReadError)

	if code := r.Fail(err); code != 1 {
		t.Fatalf("Fail = %d, want 1", code)
	}
	if got := con.Output(); got != "runtime error\n" {
		t.Fatalf("output = %q", got)
	}
	if !r.Exited() || r.ExitCode() != 1 {
		t.Fatalf("exited=%v code=%d", r.Exited(), r.ExitCode())
	}
}

func TestReadInt(t *testing.T) {
	r, _ := newTestRuntime("  42\n-7 \n+3\n\n\t 1000000\n")
	for _, want := range []int32{42, -7, 3, 1000000} {
		v, err := r.ReadInt()
		if err != nil {
			t.Fatalf("ReadInt: %v", err)
		}
		if v != want {
			t.Fatalf("ReadInt = %d, want %d", v, want)
		}
	}
	_, err := r.ReadInt()
	wantCode(t, err, ReadError)
}

func TestReadInt_ThenReadString(t *testing.T) {
	r, _ := newTestRuntime("12\nname\n")
	v, err := r.ReadInt()
	if err != nil || v != 12 {
		t.Fatalf("ReadInt = %d, %v", v, err)
	}
	h, err := r.ReadString()
	if err != nil {
		t.Fatalf("ReadString: %v", err)
	}
	if got := mustText(t, r, h); got != "name" {
		t.Fatalf("ReadString = %q, want name", got)
	}
}

func TestReadInt_SkipsWhitespaceBeforeNextLine(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"5\n\nfoo\n", "foo"},
		{"5\n  foo\n", "foo"},
		{"5 \t\n\n\n  foo bar \n", "foo bar "},
	}
	for _, tt := range tests {
		r, _ := newTestRuntime(tt.in)
		if v, err := r.ReadInt(); err != nil || v != 5 {
			t.Fatalf("input %q: ReadInt = %d, %v", tt.in, v, err)
		}
		h, err := r.ReadString()
		if err != nil {
			t.Fatalf("input %q: ReadString: %v", tt.in, err)
		}
		if got := mustText(t, r, h); got != tt.want {
			t.Fatalf("input %q: ReadString = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestReadInt_ThenReadStringAtEOF(t *testing.T) {
	r, _ := newTestRuntime("5\n\n")
	if _, err := r.ReadInt(); err != nil {
		t.Fatalf("ReadInt: %v", err)
	}
	_, err := r.ReadString()
	wantCode(t, err, ReadError)
}

func TestReadInt_Malformed(t *testing.T) {
	for _, in := range []string{"abc\n", "-\n", "99999999999\n"} {
		r, _ := newTestRuntime(in)
		_, err := r.ReadInt()
		wantCode(t, err, ReadError)
		if in != "99999999999\n" && !errors.Is(err, ErrMalformedInt) {
			t.Errorf("input %q: expected ErrMalformedInt in chain, got %v", in, err)
		}
	}
}

func TestAbortAndFail(t *testing.T) {
	r, con := newTestRuntime("")
	if err := r.PrintInt(1); err != nil {
		t.Fatal(err)
	}
	err := r.Abort()
	wantCode(t, err, UserAbort)
	if code := r.Fail(err); code != ExitFailure {
		t.Fatalf("Fail = %d", code)
	}
	if got := con.Output(); got != "1\nruntime error\n" {
		t.Fatalf("output = %q", got)
	}
}

func TestFail_UnclassifiedError(t *testing.T) {
	r, con := newTestRuntime("")
	if code := r.Fail(errors.New("boom")); code != 1 {
		t.Fatalf("Fail = %d", code)
	}
	if got := con.Output(); got != "runtime error\n" {
		t.Fatalf("output = %q", got)
	}
}

func TestExit(t *testing.T) {
	r, con := newTestRuntime("")
	if r.Exited() || r.ExitCode() != -1 {
		t.Fatal("fresh runtime reports exit")
	}
	_ = r.PrintInt(5)
	if err := r.Exit(0); err != nil {
		t.Fatalf("Exit: %v", err)
	}
	if !r.Exited() || r.ExitCode() != 0 {
		t.Fatalf("exited=%v code=%d", r.Exited(), r.ExitCode())
	}
	if got := con.Output(); got != "5\n" {
		t.Fatalf("output = %q", got)
	}
}

func TestFree_DeterministicRelease(t *testing.T) {
	r, _ := newTestRuntime("")
	h := mustString(t, r, "x")
	if err := r.Free(h); err != nil {
		t.Fatalf("Free: %v", err)
	}
	wantCode(t, r.Free(h), DoubleFree)
	wantCode(t, r.PrintString(h), UseAfterFree)
	wantCode(t, r.Free(0), InvalidHandle)
	wantCode(t, r.Free(9999), InvalidHandle)

	next := mustString(t, r, "y")
	if next == h {
		t.Fatal("released handle reissued")
	}
}
