package builtins

import (
	"fmt"

	"latte/internal/rt"
)

// Kind is the Latte-level type of a builtin parameter or result.
type Kind uint8

const (
	KindVoid Kind = iota
	KindInt
	KindString
	KindArray
)

func (k Kind) String() string {
	switch k {
	case KindVoid:
		return "void"
	case KindInt:
		return "int"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	default:
		return "unknown"
	}
}

// LLVM returns the LLVM IR type the compiler uses for k.
func (k Kind) LLVM() string {
	switch k {
	case KindInt:
		return "i32"
	case KindString, KindArray:
		return "i8*"
	default:
		return "void"
	}
}

// Value is an argument to or result of a builtin call.
type Value struct {
	Kind Kind
	Int  int32
	Ref  rt.Handle
}

// Void is the result of builtins that return nothing.
var Void = Value{Kind: KindVoid}

// Int wraps an integer.
func Int(v int32) Value {
	return Value{Kind: KindInt, Int: v}
}

// String wraps a string handle.
func String(h rt.Handle) Value {
	return Value{Kind: KindString, Ref: h}
}

// Array wraps an array handle.
func Array(h rt.Handle) Value {
	return Value{Kind: KindArray, Ref: h}
}

// IsRef reports whether v holds a heap handle.
func (v Value) IsRef() bool {
	return v.Kind == KindString || v.Kind == KindArray
}

func (v Value) String() string {
	switch v.Kind {
	case KindVoid:
		return "void"
	case KindInt:
		return fmt.Sprintf("%d", v.Int)
	default:
		return fmt.Sprintf("%s#%d", v.Kind, v.Ref)
	}
}
