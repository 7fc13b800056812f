package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"latte/internal/config"
	"latte/internal/trace"
)

// setupTracing builds the tracer from latte.toml with flag overrides and
// attaches it to the command context. The returned cleanup flushes and
// closes it.
func setupTracing(cmd *cobra.Command, cfg config.Config) (trace.Tracer, func(), error) {
	f := cmd.Flags()
	if f.Changed("trace") {
		cfg.Trace.Output, _ = f.GetString("trace")
		// asking for an output without a level means "trace calls"
		if !f.Changed("trace-level") && cfg.Trace.Level == "off" {
			cfg.Trace.Level = "call"
		}
	}
	if f.Changed("trace-level") {
		cfg.Trace.Level, _ = f.GetString("trace-level")
	}
	if f.Changed("trace-mode") {
		cfg.Trace.Mode, _ = f.GetString("trace-mode")
	}
	if f.Changed("trace-format") {
		cfg.Trace.Format, _ = f.GetString("trace-format")
	}
	if f.Changed("trace-ring-size") {
		cfg.Trace.RingSize, _ = f.GetInt("trace-ring-size")
	}

	tcfg, err := cfg.TracerConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("invalid trace settings: %w", err)
	}
	if tcfg.Level == trace.LevelOff {
		cmd.SetContext(trace.WithTracer(cmd.Context(), trace.Nop))
		return trace.Nop, func() {}, nil
	}

	tracer, err := trace.New(tcfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create tracer: %w", err)
	}
	cmd.SetContext(trace.WithTracer(cmd.Context(), tracer))

	cleanup := func() {
		if err := tracer.Flush(); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "trace: flush error: %v\n", err)
		}
		if err := tracer.Close(); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "trace: close error: %v\n", err)
		}
	}
	return tracer, cleanup, nil
}
