package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"latte/internal/builtins"
	"latte/internal/observ"
	"latte/internal/trace"
)

var execCmd = &cobra.Command{
	Use:   "exec <script>",
	Short: "Run a call script against the runtime",
	Long: `Run a call script: one builtin call per line, "name arg...". Arguments are
int32 literals, double-quoted strings or $N for the result of line N.
"free $N" releases a heap value. Lines starting with # are comments.`,
	Args: cobra.ExactArgs(1),
	RunE: runExec,
}

func init() {
	addRuntimeFlags(execCmd)
	execCmd.Flags().String("timings", "", "print phase timings to stderr (text|json)")
}

func runExec(cmd *cobra.Command, args []string) error {
	path := args[0]
	timings, err := cmd.Flags().GetString("timings")
	if err != nil {
		return fmt.Errorf("failed to get timings flag: %w", err)
	}
	switch timings {
	case "", "text", "json":
	default:
		return fmt.Errorf("invalid --timings value %q (expected text|json)", timings)
	}
	timer := observ.NewTimer()

	idx := timer.Begin("parse")
	fh, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open script: %w", err)
	}
	script, err := builtins.ParseScript(fh)
	_ = fh.Close()
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	timer.End(idx, fmt.Sprintf("%d calls", len(script.Lines)))

	idx = timer.Begin("setup")
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	timer.End(idx, "")
	trace.Point(trace.FromContext(cmd.Context()), trace.ScopeProcess, "script", 0, path, map[string]string{
		"lines": strconv.Itoa(len(script.Lines)),
	})

	idx = timer.Begin("run")
	_, runErr := script.Run(s.rt)
	timer.End(idx, "")

	idx = timer.Begin("finish")
	code, err := s.finish(runErr)
	timer.End(idx, fmt.Sprintf("exit %d", code))

	switch timings {
	case "text":
		timer.WriteText(cmd.ErrOrStderr())
	case "json":
		_ = timer.WriteJSON(cmd.ErrOrStderr())
	}
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if code != 0 {
		os.Exit(code)
	}
	return nil
}
