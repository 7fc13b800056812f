package main

import (
	"fmt"
	"os"
	"strconv"

	"fortio.org/safecast"
	"github.com/spf13/cobra"

	"latte/internal/builtins"
	"latte/internal/rt"
)

var callCmd = &cobra.Command{
	Use:   "call <builtin> [args...]",
	Short: "Call one runtime builtin",
	Long: `Call one builtin by Latte name or native symbol. Each argument is read
as the builtin's parameter type: int parameters take an int32 literal,
string parameters take the word as is.`,
	Example: `  latte-rt call printInt 42
  latte-rt call printString hello
  echo 7 | latte-rt call readInt --result`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCall,
}

func init() {
	addRuntimeFlags(callCmd)
	callCmd.Flags().Bool("result", false, "print the builtin result to stderr")
}

func runCall(cmd *cobra.Command, args []string) error {
	name := args[0]
	b, ok := builtins.Lookup(name)
	if !ok {
		return fmt.Errorf("unknown builtin %q (see latte-rt builtins)", name)
	}
	showResult, err := cmd.Flags().GetBool("result")
	if err != nil {
		return fmt.Errorf("failed to get result flag: %w", err)
	}

	callArgs, err := parseCallArgs(b, args[1:])
	if err != nil {
		return err
	}
	line := builtins.Line{No: 1, Name: name, Args: callArgs}
	script := &builtins.Script{Lines: []builtins.Line{line}}

	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	v, runErr := script.Run(s.rt)
	if runErr == nil && showResult {
		printResult(cmd, s.rt, v)
	}
	code, err := s.finish(runErr)
	if err != nil {
		return err
	}
	if code != 0 {
		os.Exit(code)
	}
	return nil
}

// parseCallArgs converts command-line words by the parameter kinds of b.
func parseCallArgs(b *builtins.Builtin, words []string) ([]builtins.Arg, error) {
	if len(words) != len(b.Params) {
		return nil, fmt.Errorf("%s takes %d arguments, got %d", b.Signature(), len(b.Params), len(words))
	}
	out := make([]builtins.Arg, len(words))
	for i, w := range words {
		switch b.Params[i] {
		case builtins.KindInt:
			v, err := strconv.ParseInt(w, 10, 32)
			if err != nil {
				return nil, fmt.Errorf("%s: argument %d: %q is not an int", b.Name, i+1, w)
			}
			n, err := safecast.Conv[int32](v)
			if err != nil {
				return nil, fmt.Errorf("%s: argument %d: %w", b.Name, i+1, err)
			}
			out[i] = builtins.Arg{Kind: builtins.ArgInt, Int: n}
		case builtins.KindString:
			out[i] = builtins.Arg{Kind: builtins.ArgText, Text: w}
		default:
			return nil, fmt.Errorf("%s: argument %d: %s values cannot be passed from the command line", b.Name, i+1, b.Params[i])
		}
	}
	return out, nil
}

func printResult(cmd *cobra.Command, r *rt.Runtime, v builtins.Value) {
	out := cmd.ErrOrStderr()
	switch v.Kind {
	case builtins.KindVoid:
		return
	case builtins.KindInt:
		fmt.Fprintf(out, "=> int %d\n", v.Int)
	case builtins.KindString:
		text, err := r.Text(v.Ref)
		if err != nil {
			fmt.Fprintf(out, "=> %s (%v)\n", v, err)
			return
		}
		fmt.Fprintf(out, "=> string %q\n", text)
	default:
		fmt.Fprintf(out, "=> %s\n", v)
	}
}
