package builtins

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"

	"fortio.org/safecast"

	"latte/internal/rt"
)

// ArgKind tells how a script argument is written.
type ArgKind uint8

const (
	ArgInt  ArgKind = iota + 1 // decimal int32 literal
	ArgText                    // double-quoted string literal
	ArgRef                     // $N, result of line N
)

// Arg is one parsed script argument.
type Arg struct {
	Kind ArgKind
	Int  int32
	Text string
	Ref  int
}

// Line is one call in a script.
type Line struct {
	No   int // 1-based source line
	Name string
	Args []Arg
}

// Script is a parsed call script: one builtin call per line, the way
// generated code would drive the runtime.
type Script struct {
	Lines []Line
}

// freeName releases the handle named by its single $N argument.
const freeName = "free"

// SyntaxError reports a malformed script line.
type SyntaxError struct {
	Line int
	Msg  string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
}

// ParseScript reads a call script. Blank lines and lines starting with '#'
// are skipped but still count for $N references.
func ParseScript(rd io.Reader) (*Script, error) {
	sc := bufio.NewScanner(rd)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	s := &Script{}
	lineNo := 0
	for sc.Scan() {
		lineNo++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		line, err := parseLine(lineNo, text)
		if err != nil {
			return nil, err
		}
		s.Lines = append(s.Lines, line)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return s, nil
}

func parseLine(no int, text string) (Line, error) {
	name, rest := cutField(text)
	if name != freeName {
		if _, ok := Lookup(name); !ok {
			return Line{}, &SyntaxError{Line: no, Msg: fmt.Sprintf("unknown builtin %q", name)}
		}
	}
	line := Line{No: no, Name: name}
	for rest != "" {
		var (
			arg Arg
			err error
		)
		arg, rest, err = parseArg(rest)
		if err != nil {
			return Line{}, &SyntaxError{Line: no, Msg: err.Error()}
		}
		if arg.Kind == ArgRef && arg.Ref >= no {
			return Line{}, &SyntaxError{Line: no, Msg: fmt.Sprintf("$%d refers forward", arg.Ref)}
		}
		line.Args = append(line.Args, arg)
	}
	if name == freeName && (len(line.Args) != 1 || line.Args[0].Kind != ArgRef) {
		return Line{}, &SyntaxError{Line: no, Msg: "free takes one $N argument"}
	}
	return line, nil
}

func parseArg(s string) (Arg, string, error) {
	switch {
	case strings.HasPrefix(s, `"`):
		quoted, err := strconv.QuotedPrefix(s)
		if err != nil {
			return Arg{}, "", fmt.Errorf("bad string literal: %w", err)
		}
		text, err := strconv.Unquote(quoted)
		if err != nil {
			return Arg{}, "", fmt.Errorf("bad string literal: %w", err)
		}
		return Arg{Kind: ArgText, Text: text}, strings.TrimLeftFunc(s[len(quoted):], unicode.IsSpace), nil

	case strings.HasPrefix(s, "$"):
		tok, rest := cutField(s)
		n, err := strconv.Atoi(tok[1:])
		if err != nil || n < 1 {
			return Arg{}, "", fmt.Errorf("bad reference %q", tok)
		}
		return Arg{Kind: ArgRef, Ref: n}, rest, nil

	default:
		tok, rest := cutField(s)
		v, err := strconv.ParseInt(tok, 10, 32)
		if err != nil {
			return Arg{}, "", fmt.Errorf("bad integer %q", tok)
		}
		n, err := safecast.Conv[int32](v)
		if err != nil {
			return Arg{}, "", fmt.Errorf("bad integer %q: %w", tok, err)
		}
		return Arg{Kind: ArgInt, Int: n}, rest, nil
	}
}

func cutField(s string) (string, string) {
	i := strings.IndexFunc(s, unicode.IsSpace)
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimLeftFunc(s[i:], unicode.IsSpace)
}

// Run executes the script against r and stops at the first error. Handles
// produced by calls stay owned by the script until freed; string literals
// are allocated before their call and released after it. The result of the
// last call is returned.
func (s *Script) Run(r *rt.Runtime) (Value, error) {
	last := Void
	results := make(map[int]Value, len(s.Lines))
	for _, line := range s.Lines {
		if line.Name == freeName {
			v, err := lookupRef(results, line, line.Args[0].Ref)
			if err != nil {
				return Void, err
			}
			if !v.IsRef() {
				return Void, &SyntaxError{Line: line.No, Msg: fmt.Sprintf("$%d is not a heap value", line.Args[0].Ref)}
			}
			if err := r.Free(v.Ref); err != nil {
				return Void, err
			}
			last = Void
			continue
		}

		args, temps, err := s.materialize(r, results, line)
		if err != nil {
			return Void, err
		}
		v, err := Call(r, line.Name, args)
		for _, h := range temps {
			if ferr := r.Free(h); ferr != nil && err == nil {
				err = ferr
			}
		}
		if err != nil {
			if ae, ok := err.(*ArgError); ok {
				return Void, &SyntaxError{Line: line.No, Msg: ae.Error()}
			}
			return Void, err
		}
		results[line.No] = v
		last = v
	}
	return last, nil
}

func (s *Script) materialize(r *rt.Runtime, results map[int]Value, line Line) (args []Value, temps []rt.Handle, err error) {
	defer func() {
		if err != nil {
			for _, h := range temps {
				_ = r.Free(h)
			}
			temps = nil
		}
	}()
	args = make([]Value, 0, len(line.Args))
	for _, a := range line.Args {
		switch a.Kind {
		case ArgInt:
			args = append(args, Int(a.Int))
		case ArgText:
			h, err := r.NewString([]byte(a.Text))
			if err != nil {
				return nil, temps, err
			}
			temps = append(temps, h)
			args = append(args, String(h))
		case ArgRef:
			v, err := lookupRef(results, line, a.Ref)
			if err != nil {
				return nil, temps, err
			}
			args = append(args, v)
		}
	}
	return args, temps, nil
}

func lookupRef(results map[int]Value, line Line, ref int) (Value, error) {
	v, ok := results[ref]
	if !ok {
		return Void, &SyntaxError{Line: line.No, Msg: fmt.Sprintf("$%d has no result", ref)}
	}
	return v, nil
}
