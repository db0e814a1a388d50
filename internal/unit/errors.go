package unit

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Exit codes per the CLI contract.
const (
	ExitOK       = 0
	ExitRuntime  = 1
	ExitArgument = 2
)

// ArgumentError is fatal: multibin parse failure, unknown handler or unit,
// bad switch. Exit code 2.
type ArgumentError struct {
	Err error
}

func (e *ArgumentError) Error() string { return e.Err.Error() }
func (e *ArgumentError) Unwrap() error { return e.Err }

func Argumentf(format string, args ...any) error {
	return &ArgumentError{Err: fmt.Errorf(format, args...)}
}

// FrameError is fatal: a corrupt framed stream. Exit code 1.
type FrameError struct {
	Err error
}

func (e *FrameError) Error() string { return e.Err.Error() }
func (e *FrameError) Unwrap() error { return e.Err }

// UnitError is a per-chunk processing failure. Non-fatal: the chunk is
// dropped and a warning emitted.
type UnitError struct {
	Unit string
	Path []int
	Err  error
}

func (e *UnitError) Error() string {
	if len(e.Path) == 0 {
		return fmt.Sprintf("failure in %s: %v", e.Unit, e.Err)
	}
	return fmt.Sprintf("failure in %s at %s: %v", e.Unit, PathString(e.Path), e.Err)
}

func (e *UnitError) Unwrap() error { return e.Err }

// PathString renders a chunk path for warnings.
func PathString(path []int) string {
	parts := make([]string, len(path))
	for i, p := range path {
		parts[i] = strconv.Itoa(p)
	}
	return strings.Join(parts, "/")
}

// Fatal reports whether an error must abort the pipeline rather than drop
// the offending chunk.
func Fatal(err error) bool {
	var ue *UnitError
	return !errors.As(err, &ue)
}

// ExitCode maps an error to the process exit status.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var ae *ArgumentError
	if errors.As(err, &ae) {
		return ExitArgument
	}
	return ExitRuntime
}
