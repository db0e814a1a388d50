// Package logging configures process-wide log output. Warnings about
// dropped chunks print as `(HH:MM:SS) failure in <unit>: <message>` on
// stderr.
package logging

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

const (
	EnvLogLevel   = "BINPIPE_LOG_LEVEL"
	EnvLogNoColor = "BINPIPE_LOG_NOCOLOR"
)

type Profile int

const (
	ProfileRuntime Profile = iota
	ProfileTest
)

var (
	configureOnce sync.Once
	mu            sync.RWMutex
	logger        zerolog.Logger
	quiet         bool
)

func ConfigureRuntime() {
	Configure(ProfileRuntime)
}

func ConfigureTests() {
	Configure(ProfileTest)
}

func Configure(profile Profile) {
	configureOnce.Do(func() {
		level := zerolog.WarnLevel
		if profile == ProfileTest {
			level = zerolog.Disabled
		}
		if lvl, ok := parseLevel(os.Getenv(EnvLogLevel)); ok {
			level = lvl
		}
		mu.Lock()
		logger = newLogger(os.Stderr, level)
		mu.Unlock()
	})
}

func newLogger(out io.Writer, level zerolog.Level) zerolog.Logger {
	noColor := true
	if f, ok := out.(*os.File); ok {
		noColor = !isatty.IsTerminal(f.Fd())
	}
	if v, err := strconv.ParseBool(os.Getenv(EnvLogNoColor)); err == nil && v {
		noColor = true
	}
	console := zerolog.ConsoleWriter{
		Out:        out,
		NoColor:    noColor,
		TimeFormat: "15:04:05",
		PartsOrder: []string{zerolog.TimestampFieldName, zerolog.MessageFieldName},
		FormatTimestamp: func(i any) string {
			if s, ok := i.(string); ok {
				if ts, err := time.Parse(zerolog.TimeFieldFormat, s); err == nil {
					return "(" + ts.Format("15:04:05") + ")"
				}
			}
			return fmt.Sprintf("(%v)", i)
		},
	}
	return zerolog.New(console).Level(level).With().Timestamp().Logger()
}

// SetQuiet suppresses non-fatal warnings (-Q).
func SetQuiet(v bool) {
	mu.Lock()
	quiet = v
	mu.Unlock()
}

// Failure reports a dropped chunk. The message carries the unit name and,
// when known, the chunk path.
func Failure(unitName string, path string, err error) {
	mu.RLock()
	defer mu.RUnlock()
	if quiet {
		return
	}
	if path != "" {
		logger.Warn().Msgf("failure in %s at %s: %v", unitName, path, err)
		return
	}
	logger.Warn().Msgf("failure in %s: %v", unitName, err)
}

// Errorf reports a fatal condition before the process exits.
func Errorf(format string, args ...any) {
	mu.RLock()
	defer mu.RUnlock()
	logger.Error().Msgf(format, args...)
}

// Debugf traces driver internals at debug level.
func Debugf(format string, args ...any) {
	mu.RLock()
	defer mu.RUnlock()
	logger.Debug().Msgf(format, args...)
}

func parseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return zerolog.WarnLevel, false
	case "trace":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "off", "none":
		return zerolog.Disabled, true
	default:
		return zerolog.WarnLevel, false
	}
}
