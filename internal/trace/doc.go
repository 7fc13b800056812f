// Package trace provides structured event tracing for the Latte runtime.
//
// The runtime reports builtin calls, heap traffic and fatal errors through a
// Tracer. Detail that never reaches the user (the fatal path only prints
// "runtime error") is available here.
//
// # Usage
//
//	latte-rt exec --trace=- --trace-level=call prog.lrt
//
// # Architecture
//
//   - Nop: zero-overhead tracer when disabled
//   - StreamTracer: immediate write to output (file/stderr)
//   - RingTracer: recent call, heap and fatal events, dumped after a failure
//   - TeeTracer: stream plus ring
//
// # Levels
//
//   - LevelOff: no tracing
//   - LevelError: process events only (start, exit, fatal)
//   - LevelCall: builtin call spans
//   - LevelDebug: everything including heap alloc/free
//
// # Context Propagation
//
//	ctx = trace.WithTracer(ctx, tracer)
//	t := trace.FromContext(ctx)
//
//	span := trace.Begin(t, trace.ScopeCall, "printInt", parentID)
//	defer span.End("")
package trace
