// Package builtins exposes the Latte runtime entry points by name: the
// symbol table the compiler links against and a dispatcher that calls them.
package builtins

import (
	"fmt"
	"strings"

	"latte/internal/rt"
)

// Builtin describes one runtime entry point.
type Builtin struct {
	Name     string // name used in Latte source or call scripts
	Symbol   string // native symbol emitted by the compiler
	Params   []Kind
	Ret      Kind
	Internal bool // emitted by the compiler, not callable from Latte source
	Doc      string

	call func(r *rt.Runtime, args []Value) (Value, error)
}

// LLVMDecl renders the declaration the compiler prepends to every module.
func (b *Builtin) LLVMDecl() string {
	params := make([]string, len(b.Params))
	for i, p := range b.Params {
		params[i] = p.LLVM()
	}
	return fmt.Sprintf("declare %s @%s(%s)", b.Ret.LLVM(), b.Symbol, strings.Join(params, ", "))
}

// Signature renders the Latte-level signature, e.g. "printInt(int) void".
func (b *Builtin) Signature() string {
	params := make([]string, len(b.Params))
	for i, p := range b.Params {
		params[i] = p.String()
	}
	return fmt.Sprintf("%s(%s) %s", b.Name, strings.Join(params, ", "), b.Ret)
}

var table = []*Builtin{
	{
		Name:   "printInt",
		Symbol: "__func__printInt",
		Params: []Kind{KindInt},
		Ret:    KindVoid,
		Doc:    "write an integer and a newline to stdout",
		call: func(r *rt.Runtime, args []Value) (Value, error) {
			return Void, r.PrintInt(args[0].Int)
		},
	},
	{
		Name:   "printString",
		Symbol: "__func__printString",
		Params: []Kind{KindString},
		Ret:    KindVoid,
		Doc:    "write a string and a newline to stdout",
		call: func(r *rt.Runtime, args []Value) (Value, error) {
			return Void, r.PrintString(args[0].Ref)
		},
	},
	{
		Name:   "readInt",
		Symbol: "__func__readInt",
		Ret:    KindInt,
		Doc:    "read one integer from stdin",
		call: func(r *rt.Runtime, _ []Value) (Value, error) {
			v, err := r.ReadInt()
			return Int(v), err
		},
	},
	{
		Name:   "readString",
		Symbol: "__func__readString",
		Ret:    KindString,
		Doc:    "read one line from stdin",
		call: func(r *rt.Runtime, _ []Value) (Value, error) {
			h, err := r.ReadString()
			return String(h), err
		},
	},
	{
		Name:   "error",
		Symbol: "__func__error",
		Ret:    KindVoid,
		Doc:    "print \"runtime error\" and exit with status 1",
		call: func(r *rt.Runtime, _ []Value) (Value, error) {
			return Void, r.Abort()
		},
	},
	{
		Name:     "newString",
		Symbol:   "__builtin_method__str__init__",
		Params:   []Kind{KindInt},
		Ret:      KindString,
		Internal: true,
		Doc:      "allocate a zero-filled string of the given size",
		call: func(r *rt.Runtime, args []Value) (Value, error) {
			h, err := r.AllocString(args[0].Int)
			return String(h), err
		},
	},
	{
		Name:     "concat",
		Symbol:   "__builtin_method__str__concat__",
		Params:   []Kind{KindString, KindString},
		Ret:      KindString,
		Internal: true,
		Doc:      "concatenate two strings into a new one",
		call: func(r *rt.Runtime, args []Value) (Value, error) {
			h, err := r.Concat(args[0].Ref, args[1].Ref)
			return String(h), err
		},
	},
	{
		Name:     "newArray",
		Symbol:   "__builtin_method__array__init__",
		Params:   []Kind{KindInt},
		Ret:      KindArray,
		Internal: true,
		Doc:      "allocate a zero-filled array of the given byte size",
		call: func(r *rt.Runtime, args []Value) (Value, error) {
			h, err := r.AllocArray(args[0].Int)
			return Array(h), err
		},
	},
}

var index = func() map[string]*Builtin {
	m := make(map[string]*Builtin, 2*len(table))
	for _, b := range table {
		m[b.Name] = b
		m[b.Symbol] = b
	}
	return m
}()

// All returns every builtin in declaration order.
func All() []*Builtin {
	return append([]*Builtin(nil), table...)
}

// Lookup finds a builtin by Latte name or native symbol.
func Lookup(name string) (*Builtin, bool) {
	b, ok := index[name]
	return b, ok
}

// Declarations returns the LLVM declare lines for every builtin.
func Declarations() []string {
	out := make([]string, len(table))
	for i, b := range table {
		out[i] = b.LLVMDecl()
	}
	return out
}

// ArgError reports a call that does not match the builtin signature. It is a
// usage error, not a runtime failure.
type ArgError struct {
	Builtin string
	Msg     string
}

func (e *ArgError) Error() string {
	return fmt.Sprintf("%s: %s", e.Builtin, e.Msg)
}

// Call invokes builtin name with args. Runtime failures come back as
// *rt.FatalError; bad names or arguments as *ArgError.
func Call(r *rt.Runtime, name string, args []Value) (Value, error) {
	b, ok := Lookup(name)
	if !ok {
		return Void, &ArgError{Builtin: name, Msg: "unknown builtin"}
	}
	if len(args) != len(b.Params) {
		return Void, &ArgError{Builtin: b.Name, Msg: fmt.Sprintf("expected %d arguments, got %d", len(b.Params), len(args))}
	}
	for i, p := range b.Params {
		if args[i].Kind != p {
			return Void, &ArgError{Builtin: b.Name, Msg: fmt.Sprintf("argument %d: expected %s, got %s", i+1, p, args[i].Kind)}
		}
	}
	return b.call(r, args)
}
