package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/danmuck/binpipe/internal/config"
	"github.com/danmuck/binpipe/internal/frame"
	"github.com/danmuck/binpipe/internal/logging"
	"github.com/danmuck/binpipe/internal/multibin"
	"github.com/danmuck/binpipe/internal/pipeline"
	"github.com/danmuck/binpipe/internal/unit"
	"github.com/danmuck/binpipe/internal/units"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout))
}

func run(args []string, stdin io.Reader, stdout io.Writer) int {
	logging.ConfigureRuntime()

	if len(args) == 0 || args[0] == "--help" || args[0] == "-h" {
		usage(os.Stderr)
		if len(args) == 0 {
			return unit.ExitArgument
		}
		return unit.ExitOK
	}

	cfg, err := config.Load()
	if err != nil {
		logging.Errorf("%v", err)
		return unit.ExitArgument
	}
	driver := pipeline.NewDriver()
	driver.RecursionLimit = cfg.RecursionLimit
	driver.Limits = frame.Limits{
		MaxPayloadBytes: cfg.MaxPayloadBytes,
		MaxMetaBytes:    cfg.MaxMetaBytes,
		MaxDepth:        cfg.MaxDepth,
		MaxFrameChunks:  cfg.MaxFrameChunks,
	}

	if wantsHelp(args) {
		return unitHelp(args[0], os.Stderr)
	}

	err = dispatch(driver, args, stdin, stdout)
	if err == nil {
		return unit.ExitOK
	}
	if brokenPipe(err) {
		// Downstream hung up; everything written so far was flushed.
		return unit.ExitOK
	}
	logging.Errorf("%v", err)
	return unit.ExitCode(err)
}

// dispatch picks between a full in-process pipeline (any `|` token) and a
// single unit speaking framed pipes with its neighbors.
func dispatch(driver *pipeline.Driver, args []string, stdin io.Reader, stdout io.Writer) error {
	if hasPipeToken(args) {
		p, err := pipeline.Parse(args)
		if err != nil {
			return err
		}
		return driver.Run(p, stdin, stdout)
	}

	name := args[0]
	if !units.Known(name) {
		return unit.Argumentf("unknown unit %q", name)
	}
	rest, nesting, squeeze := pipeline.ExtractNesting(args[1:])
	return driver.RunSingle(name, rest, nesting, squeeze, stdin, stdout)
}

func hasPipeToken(args []string) bool {
	for _, arg := range args {
		if arg == "" || strings.Trim(arg, "[]|") != "" {
			continue
		}
		if strings.Contains(arg, "|") {
			return true
		}
	}
	return false
}

func wantsHelp(args []string) bool {
	for _, arg := range args[1:] {
		if arg == "--help" || arg == "-h" {
			return true
		}
	}
	return false
}

func unitHelp(name string, w io.Writer) int {
	u, err := units.New(name)
	if err != nil {
		logging.Errorf("%v", err)
		return unit.ExitArgument
	}
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.BoolP("reverse", "R", false, "run the unit in reverse")
	fs.BoolP("quiet", "Q", false, "suppress non-fatal warnings")
	fs.BoolP("lenient", "L", false, "drop chunks on per-chunk argument failures")
	u.Flags(fs)

	fmt.Fprintf(w, "usage: binpipe %s [switches] [multibin args...]\n\n%s\n\nswitches:\n%s\n", name, u.Help(), fs.FlagUsages())
	fmt.Fprintf(w, "multibin handlers: %s\n", strings.Join(multibin.DefaultRegistry().Names(), ", "))
	fmt.Fprintf(w, "the pbkdf2 shortcut derives keys with HMAC-SHA1 and %d iterations\n", multibin.PBKDF2Iterations)
	return unit.ExitOK
}

func usage(w io.Writer) {
	fmt.Fprintf(w, "usage: binpipe <unit> [switches] [multibin args...]\n")
	fmt.Fprintf(w, "       binpipe <unit> ... '|' <unit> ... [ '[' sub-pipeline ']' ]\n\n")
	fmt.Fprintf(w, "units: %s\n", strings.Join(units.Names(), ", "))
}

func brokenPipe(err error) bool {
	return errors.Is(err, syscall.EPIPE) || errors.Is(err, io.ErrClosedPipe)
}
