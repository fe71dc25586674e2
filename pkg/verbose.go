package hashledger

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

var globalVerboseLevel int
var debugFlags map[string]bool

var logger = newLogger(os.Stderr)

func init() {
	// Filtering is done per logger from the verbose level
	zerolog.SetGlobalLevel(zerolog.TraceLevel)
}

// newLogger builds the console logger, colouring only real terminals
func newLogger(out io.Writer) zerolog.Logger {
	noColor := true
	if f, ok := out.(*os.File); ok {
		noColor = !isatty.IsTerminal(f.Fd()) && !isatty.IsCygwinTerminal(f.Fd())
	}
	console := zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: time.Kitchen,
		NoColor:    noColor,
	}
	return zerolog.New(console).With().Timestamp().Logger().Level(levelFor(globalVerboseLevel))
}

// levelFor maps a verbose level onto a zerolog level
func levelFor(verbose int) zerolog.Level {
	switch {
	case verbose <= 0:
		return zerolog.WarnLevel
	case verbose == 1:
		return zerolog.InfoLevel
	case verbose == 2:
		return zerolog.DebugLevel
	default:
		return zerolog.TraceLevel
	}
}

// SetLogOutput redirects diagnostic logging (stderr by default)
func SetLogOutput(out io.Writer) {
	logger = newLogger(out)
}

// Logger returns the package logger
func Logger() *zerolog.Logger {
	return &logger
}

// SetVerboseLevel sets the global verbose level
func SetVerboseLevel(level int) {
	globalVerboseLevel = level
	logger = logger.Level(levelFor(level))
}

// GetVerboseLevel returns the current verbose level
func GetVerboseLevel() int {
	return globalVerboseLevel
}

// VerboseEnter logs function entry at level 3+ and returns a defer function for exit logging
func VerboseEnter() func() {
	if globalVerboseLevel < 3 {
		return func() {}
	}

	pc, _, _, ok := runtime.Caller(1)
	if !ok {
		return func() {}
	}

	funcName := runtime.FuncForPC(pc).Name()
	if idx := strings.LastIndex(funcName, "."); idx != -1 {
		funcName = funcName[idx+1:]
	}

	logger.Trace().Str("func", funcName).Msg("enter")
	return func() {
		logger.Trace().Str("func", funcName).Msg("exit")
	}
}

// VerboseLog logs a message at the specified verbose level
func VerboseLog(level int, format string, args ...interface{}) {
	if globalVerboseLevel < level {
		return
	}
	msg := strings.TrimSuffix(fmt.Sprintf(format, args...), "\n")
	switch level {
	case 0:
		logger.Warn().Msg(msg)
	case 1:
		logger.Info().Msg(msg)
	case 2:
		logger.Debug().Msg(msg)
	default:
		logger.Trace().Msg(msg)
	}
}

// Warnf logs a warning regardless of verbose level
func Warnf(format string, args ...interface{}) {
	logger.Warn().Msg(strings.TrimSuffix(fmt.Sprintf(format, args...), "\n"))
}

// SetDebugFlags sets the debug flags from a comma-separated string
// Supports both simple flags ("ledger,engine") and key:value format ("ledger:true,engine:false")
func SetDebugFlags(flagsStr string) {
	debugFlags = make(map[string]bool)
	if flagsStr == "" {
		return
	}

	for _, flag := range strings.Split(flagsStr, ",") {
		flag = strings.TrimSpace(flag)
		if flag == "" {
			continue
		}

		parts := strings.SplitN(flag, ":", 2)
		flagName := strings.ToLower(strings.TrimSpace(parts[0]))
		flagValue := true

		if len(parts) > 1 {
			switch strings.ToLower(strings.TrimSpace(parts[1])) {
			case "false", "0", "no", "off":
				flagValue = false
			}
		}

		debugFlags[flagName] = flagValue
	}
}

// IsDebugEnabled returns true if the specified debug flag is enabled
func IsDebugEnabled(flag string) bool {
	if debugFlags == nil {
		return false
	}
	return debugFlags[strings.ToLower(flag)]
}

// debugLog logs at trace level when the named debug flag is on, whatever the verbose level
func debugLog(flag string, format string, args ...interface{}) {
	if !IsDebugEnabled(flag) {
		return
	}
	msg := strings.TrimSuffix(fmt.Sprintf(format, args...), "\n")
	logger.WithLevel(zerolog.NoLevel).Str("debug", flag).Msg(msg)
}
