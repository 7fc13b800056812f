package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"latte/internal/config"
	"latte/internal/prof"
	"latte/internal/rt"
	"latte/internal/trace"
	"latte/internal/version"
)

// session owns one runtime and everything wired around it.
type session struct {
	rt        *rt.Runtime
	tracer    trace.Tracer
	heapStats bool
	stderr    io.Writer

	closers []func() error
	cleanup func()
}

// loadConfig reads --config or discovers latte.toml.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, err := cmd.Root().PersistentFlags().GetString("config")
	if err != nil {
		return config.Config{}, fmt.Errorf("failed to get config flag: %w", err)
	}
	if path != "" {
		return config.Load(path)
	}
	cfg, _, err := config.Discover(".")
	return cfg, err
}

// openSession builds the console chain (process streams, replay, record),
// the tracer and the runtime from latte.toml and flags.
func openSession(cmd *cobra.Command) (*session, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	f := cmd.Flags()
	if f.Changed("heap-limit") {
		cfg.Runtime.HeapLimit, _ = f.GetInt64("heap-limit")
	}
	if f.Changed("heap-stats") {
		cfg.Runtime.HeapStats, _ = f.GetBool("heap-stats")
	}
	if f.Changed("record") {
		cfg.Record.Path, _ = f.GetString("record")
	}
	if f.Changed("record-format") {
		cfg.Record.Format, _ = f.GetString("record-format")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	replayPath, _ := f.GetString("replay")

	s := &session{heapStats: cfg.Runtime.HeapStats, stderr: cmd.ErrOrStderr()}

	profiling, err := setupProfiling(cmd)
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, profiling.Stop)

	var con rt.Console
	if replayPath != "" {
		fh, err := os.Open(replayPath)
		if err != nil {
			s.close()
			return nil, fmt.Errorf("failed to open replay log: %w", err)
		}
		rc, err := rt.NewReplayConsoleFromReader(fh, cmd.OutOrStdout())
		_ = fh.Close()
		if err != nil {
			s.close()
			return nil, fmt.Errorf("%s: %w", replayPath, err)
		}
		con = rc
	} else {
		con = rt.NewConsole(cmd.InOrStdin(), cmd.OutOrStdout())
	}

	if cfg.Record.Path != "" {
		format, err := rt.ParseLogFormat(cfg.Record.Format)
		if err != nil {
			s.close()
			return nil, err
		}
		fh, err := os.Create(cfg.Record.Path)
		if err != nil {
			s.close()
			return nil, fmt.Errorf("failed to create record log: %w", err)
		}
		w := bufio.NewWriter(fh)
		con = rt.NewRecordingConsole(con, rt.NewRecorder(w, format, version.Version))
		s.closers = append(s.closers, w.Flush, fh.Close)
	}

	tracer, cleanup, err := setupTracing(cmd, cfg)
	if err != nil {
		s.close()
		return nil, err
	}
	s.tracer = tracer
	s.cleanup = cleanup
	s.rt = rt.New(con, rt.Options{HeapLimit: cfg.Runtime.HeapLimit, Tracer: tracer})
	return s, nil
}

// finish terminates the runtime according to runErr and returns the exit
// status. Fatal runtime errors become the "runtime error" diagnostic; any
// other error is returned for the command to report.
func (s *session) finish(runErr error) (int, error) {
	defer s.close()

	code := 0
	var cmdErr error
	switch {
	case runErr == nil:
		if err := s.rt.Exit(0); err != nil {
			fmt.Fprintf(s.stderr, "%s %v\n", errorLabel(), err)
			code = rt.ExitFailure
		}
	case isFatal(runErr):
		code = s.rt.Fail(runErr)
		if err := s.rt.FailErr(); err != nil {
			fmt.Fprintf(s.stderr, "%s %v\n", errorLabel(), err)
		}
		s.dumpRing()
	default:
		_ = s.rt.Exit(rt.ExitFailure)
		cmdErr = runErr
	}

	if s.heapStats {
		s.printHeapStats()
	}
	return code, cmdErr
}

func (s *session) close() {
	if s.cleanup != nil {
		s.cleanup()
		s.cleanup = nil
	}
	for _, c := range s.closers {
		if err := c(); err != nil {
			fmt.Fprintf(s.stderr, "%s %v\n", errorLabel(), err)
		}
	}
	s.closers = nil
}

// dumpRing writes the recent event history after a fatal error.
func (s *session) dumpRing() {
	h, ok := s.tracer.(trace.History)
	if !ok || h.Ring() == nil {
		return
	}
	ring := h.Ring()
	fmt.Fprintln(s.stderr, dimColor.Sprint("--- recent runtime events ---"))
	if err := ring.Dump(s.stderr, trace.FormatText); err != nil {
		fmt.Fprintf(s.stderr, "trace: dump error: %v\n", err)
	}
}

const maxLeakLines = 10

func (s *session) printHeapStats() {
	st := s.rt.Heap().Stats()
	fmt.Fprintf(s.stderr, "heap: allocs=%d frees=%d live=%d (%d bytes) peak=%d bytes\n",
		st.Allocs, st.Frees, st.LiveBlocks, st.LiveBytes, st.PeakBytes)
	live := s.rt.Heap().Live()
	for i, b := range live {
		if i == maxLeakLines {
			fmt.Fprintf(s.stderr, "  ... %d more\n", len(live)-maxLeakLines)
			break
		}
		fmt.Fprintf(s.stderr, "  %s #%d %s, %d bytes (alloc %d)\n", warnColor.Sprint("unreleased"), b.Handle, b.Kind, b.Size, b.AllocID)
	}
}

// setupProfiling starts the profilers named by the persistent flags.
func setupProfiling(cmd *cobra.Command) (*prof.Session, error) {
	pf := cmd.Root().PersistentFlags()
	var opts prof.Options
	var err error
	if opts.CPUProfile, err = pf.GetString("cpu-profile"); err != nil {
		return nil, fmt.Errorf("failed to get cpu-profile flag: %w", err)
	}
	if opts.MemProfile, err = pf.GetString("mem-profile"); err != nil {
		return nil, fmt.Errorf("failed to get mem-profile flag: %w", err)
	}
	if opts.ExecTrace, err = pf.GetString("exec-trace"); err != nil {
		return nil, fmt.Errorf("failed to get exec-trace flag: %w", err)
	}
	if !opts.Enabled() {
		return nil, nil
	}
	return prof.Start(opts)
}

func isFatal(err error) bool {
	var fe *rt.FatalError
	return errors.As(err, &fe)
}
