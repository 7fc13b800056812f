package builtins

import (
	"errors"
	"strings"
	"testing"

	"latte/internal/rt"
)

func TestDeclarations(t *testing.T) {
	want := []string{
		"declare void @__func__printInt(i32)",
		"declare void @__func__printString(i8*)",
		"declare i32 @__func__readInt()",
		"declare i8* @__func__readString()",
		"declare void @__func__error()",
		"declare i8* @__builtin_method__str__init__(i32)",
		"declare i8* @__builtin_method__str__concat__(i8*, i8*)",
		"declare i8* @__builtin_method__array__init__(i32)",
	}
	got := Declarations()
	if len(got) != len(want) {
		t.Fatalf("got %d declarations, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("decl %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestLookup_NameAndSymbol(t *testing.T) {
	byName, ok := Lookup("printInt")
	if !ok {
		t.Fatal("printInt not found")
	}
	bySym, ok := Lookup("__func__printInt")
	if !ok || bySym != byName {
		t.Fatal("symbol lookup mismatch")
	}
	if _, ok := Lookup("printFloat"); ok {
		t.Fatal("unexpected builtin")
	}
	if got := byName.Signature(); got != "printInt(int) void" {
		t.Fatalf("Signature = %q", got)
	}
}

func TestCall(t *testing.T) {
	con := rt.NewTestConsole("7\nline\n")
	r := rt.New(con, rt.Options{})

	v, err := Call(r, "readInt", nil)
	if err != nil || v.Kind != KindInt || v.Int != 7 {
		t.Fatalf("readInt = %v, %v", v, err)
	}
	s, err := Call(r, "readString", nil)
	if err != nil || s.Kind != KindString {
		t.Fatalf("readString = %v, %v", s, err)
	}
	sfx, err := r.NewString([]byte("!"))
	if err != nil {
		t.Fatal(err)
	}
	joined, err := Call(r, "__builtin_method__str__concat__", []Value{s, String(sfx)})
	if err != nil {
		t.Fatalf("concat: %v", err)
	}
	if _, err := Call(r, "printString", []Value{joined}); err != nil {
		t.Fatal(err)
	}
	if _, err := Call(r, "printInt", []Value{Int(v.Int * 6)}); err != nil {
		t.Fatal(err)
	}
	arr, err := Call(r, "newArray", []Value{Int(4)})
	if err != nil || arr.Kind != KindArray {
		t.Fatalf("newArray = %v, %v", arr, err)
	}
	if got := con.Output(); got != "line!\n42\n" {
		t.Fatalf("output = %q", got)
	}
}

func TestCall_ArgErrors(t *testing.T) {
	r := rt.New(rt.NewTestConsole(""), rt.Options{})
	tests := []struct {
		name string
		args []Value
	}{
		{"nope", nil},
		{"printInt", nil},
		{"printInt", []Value{String(1)}},
		{"concat", []Value{String(1)}},
	}
	for _, tt := range tests {
		_, err := Call(r, tt.name, tt.args)
		var ae *ArgError
		if !errors.As(err, &ae) {
			t.Errorf("Call(%s, %v) = %v, want *ArgError", tt.name, tt.args, err)
		}
	}
}

func TestCall_Error(t *testing.T) {
	r := rt.New(rt.NewTestConsole(""), rt.Options{})
	_, err := Call(r, "error", nil)
	if code, ok := rt.CodeOf(err); !ok || code != rt.UserAbort {
		t.Fatalf("error() = %v", err)
	}
}

func TestScript_Run(t *testing.T) {
	src := `
# greet the user n times
readInt
readString
concat "hello, " $4
printString $5
printInt $3
free $5
newString 3
printString $9
`
	s, err := ParseScript(strings.NewReader(src))
	if err != nil {
		t.Fatalf("ParseScript: %v", err)
	}
	con := rt.NewTestConsole("5\nann\n")
	r := rt.New(con, rt.Options{})
	if _, err := s.Run(r); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := con.Output(); got != "hello, ann\n5\n\n" {
		t.Fatalf("output = %q", got)
	}
	// readString and newString results stay owned by the script
	if st := r.Heap().Stats(); st.LiveBlocks != 2 {
		t.Fatalf("live blocks = %d, want 2 (%+v)", st.LiveBlocks, st)
	}
}

func TestScript_StopsAtFatal(t *testing.T) {
	s, err := ParseScript(strings.NewReader("printInt 1\nerror\nprintInt 2\n"))
	if err != nil {
		t.Fatal(err)
	}
	con := rt.NewTestConsole("")
	r := rt.New(con, rt.Options{})
	_, err = s.Run(r)
	if code, ok := rt.CodeOf(err); !ok || code != rt.UserAbort {
		t.Fatalf("Run = %v", err)
	}
	r.Fail(err)
	if got := con.Output(); got != "1\nruntime error\n" {
		t.Fatalf("output = %q", got)
	}
}

func TestScript_UseAfterFree(t *testing.T) {
	s, err := ParseScript(strings.NewReader("newString 1\nfree $1\nprintString $1\n"))
	if err != nil {
		t.Fatal(err)
	}
	r := rt.New(rt.NewTestConsole(""), rt.Options{})
	_, err = s.Run(r)
	if code, ok := rt.CodeOf(err); !ok || code != rt.UseAfterFree {
		t.Fatalf("Run = %v", err)
	}
}

func TestParseScript_Errors(t *testing.T) {
	tests := []string{
		"bogus 1",
		"printInt 99999999999",
		"printInt x",
		`printString "unterminated`,
		"printString $1",
		"printInt 1\nfree 1",
		"newString 1\nfree $1 $1",
		"printInt $0",
	}
	for _, src := range tests {
		_, err := ParseScript(strings.NewReader(src))
		var se *SyntaxError
		if !errors.As(err, &se) {
			t.Errorf("ParseScript(%q) = %v, want *SyntaxError", src, err)
		}
	}
}

func TestScript_KindMismatchIsSyntaxError(t *testing.T) {
	s, err := ParseScript(strings.NewReader("printInt 1\nprintString $1\n"))
	if err != nil {
		t.Fatal(err)
	}
	_, err = s.Run(rt.New(rt.NewTestConsole(""), rt.Options{}))
	var se *SyntaxError
	if !errors.As(err, &se) || se.Line != 2 {
		t.Fatalf("Run = %v", err)
	}
}
