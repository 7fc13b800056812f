package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"latte/internal/rt"
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Inspect record logs",
}

var logCheckCmd = &cobra.Command{
	Use:   "check <log>...",
	Short: "Validate record logs",
	Long: `Decode and validate record logs in parallel. A log that ends without an exit
or fatal event is reported as truncated; --strict turns that into a failure.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runLogCheck,
}

func init() {
	logCheckCmd.Flags().Int("jobs", 0, "max parallel decoders (0 = GOMAXPROCS)")
	logCheckCmd.Flags().Bool("strict", false, "fail on logs without a terminal event")
	logCmd.AddCommand(logCheckCmd)
}

// logResult is the outcome of checking one record log.
type logResult struct {
	Path string
	Log  *rt.Log
	Err  error
}

// checkLogs decodes every path with at most jobs decoders in flight.
// Results keep the order of paths. Per-file failures are stored in the
// result; only cancellation aborts the group.
func checkLogs(ctx context.Context, paths []string, jobs int) ([]logResult, error) {
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}
	results := make([]logResult, len(paths))
	if len(paths) == 0 {
		return results, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(jobs, len(paths)))
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			log, err := decodeLogFile(path)
			results[i] = logResult{Path: path, Log: log, Err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func decodeLogFile(path string) (*rt.Log, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	return rt.DecodeLog(fh)
}

func runLogCheck(cmd *cobra.Command, args []string) error {
	jobs, err := cmd.Flags().GetInt("jobs")
	if err != nil {
		return fmt.Errorf("failed to get jobs flag: %w", err)
	}
	strict, err := cmd.Flags().GetBool("strict")
	if err != nil {
		return fmt.Errorf("failed to get strict flag: %w", err)
	}

	results, err := checkLogs(cmd.Context(), args, jobs)
	if err != nil {
		return err
	}
	failed := reportLogs(cmd.OutOrStdout(), results, strict)
	if failed > 0 {
		return fmt.Errorf("%d of %d record logs failed", failed, len(results))
	}
	return nil
}

// reportLogs prints one line per result and returns the number of failures.
func reportLogs(out io.Writer, results []logResult, strict bool) int {
	failed := 0
	for _, res := range results {
		if res.Err != nil {
			failed++
			fmt.Fprintf(out, "%s %s: %v\n", errorColor.Sprint("FAIL"), res.Path, res.Err)
			continue
		}
		status := "ok"
		end := describeEnd(res.Log)
		if !res.Log.Terminated() {
			if strict {
				failed++
				status = errorColor.Sprint("FAIL")
			} else {
				status = warnColor.Sprint("warn")
			}
		}
		fmt.Fprintf(out, "%s %s: %s, %d events (%s), %s\n",
			status, res.Path, res.Log.Format, len(res.Log.Events), summarize(res.Log), end)
	}
	return failed
}

func describeEnd(log *rt.Log) string {
	if !log.Terminated() {
		return "truncated"
	}
	last := log.Events[len(log.Events)-1]
	if last.Kind == rt.EventFatal {
		return "fatal " + last.Fatal
	}
	return fmt.Sprintf("exit %d", last.Code)
}

func summarize(log *rt.Log) string {
	counts := log.Summary()
	kinds := make([]string, 0, len(counts))
	for k := range counts {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	parts := make([]string, len(kinds))
	for i, k := range kinds {
		parts[i] = fmt.Sprintf("%s=%d", k, counts[k])
	}
	if len(parts) == 0 {
		return "empty"
	}
	return strings.Join(parts, " ")
}
