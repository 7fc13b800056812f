package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"latte/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "latte-rt",
	Short: "Latte runtime support library driver",
	Long: `latte-rt runs Latte runtime builtins the way compiled programs call them:
one builtin at a time, or a call script. It can record console traffic and
replay it deterministically.`,
	SilenceErrors:     true,
	SilenceUsage:      true,
	PersistentPreRunE: setupColor,
}

func init() {
	rootCmd.Version = version.Version

	rootCmd.AddCommand(callCmd)
	rootCmd.AddCommand(execCmd)
	rootCmd.AddCommand(builtinsCmd)
	rootCmd.AddCommand(logCmd)
	rootCmd.AddCommand(versionCmd)

	rootCmd.PersistentFlags().String("config", "", "path to latte.toml (default: search upwards from the working directory)")
	rootCmd.PersistentFlags().String("color", "auto", "colorize diagnostics (auto|on|off)")
	rootCmd.PersistentFlags().String("cpu-profile", "", "write a CPU profile of the run to this file")
	rootCmd.PersistentFlags().String("mem-profile", "", "write a heap profile to this file on exit")
	rootCmd.PersistentFlags().String("exec-trace", "", "write a Go execution trace to this file")
}

// main executes the root command. Command errors exit with status 1; fatal
// runtime errors exit from the command itself.
func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", errorLabel(), err)
		os.Exit(1)
	}
}

// addRuntimeFlags registers the flags shared by commands that run builtins.
func addRuntimeFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.Int64("heap-limit", 0, "cap live heap bytes (0 = unlimited)")
	f.Bool("heap-stats", false, "print heap counters and unreleased blocks to stderr on exit")
	f.String("record", "", "record console traffic to this file")
	f.String("record-format", "ndjson", "record log encoding (ndjson|msgpack)")
	f.String("replay", "", "serve input from a record log and verify output against it")
	f.String("trace", "", "trace output file (\"-\" for stderr)")
	f.String("trace-level", "off", "trace level (off|error|call|debug)")
	f.String("trace-mode", "stream", "trace storage (stream|ring|both)")
	f.String("trace-format", "auto", "trace format (auto|text|ndjson)")
	f.Int("trace-ring-size", 4096, "events kept by the ring tracer")
}
