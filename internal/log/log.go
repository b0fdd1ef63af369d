// Package log holds the process-wide zerolog loggers of the settlement node.
package log

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Logger is the root logger. Component loggers below derive from it and are
// rebuilt by Init.
var Logger zerolog.Logger

var (
	Ledger     zerolog.Logger
	Engine     zerolog.Logger
	Settlement zerolog.Logger
	RPC        zerolog.Logger
)

const consoleTimeFormat = "15:04:05"

func init() {
	Logger = New(os.Stdout, "info", false)
	initComponentLoggers()
}

// Init reconfigures the root logger. With a non-empty file, JSON lines are
// appended to it in addition to stdout.
func Init(level string, jsonOutput bool, file string) error {
	var out io.Writer = consoleWriter(os.Stdout, jsonOutput)
	if file != "" {
		f, err := os.OpenFile(file, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		out = zerolog.MultiLevelWriter(out, f)
	}
	Logger = build(out, level)
	initComponentLoggers()
	return nil
}

// New returns a standalone logger writing to w.
func New(w io.Writer, level string, jsonOutput bool) zerolog.Logger {
	return build(consoleWriter(w, jsonOutput), level)
}

func consoleWriter(w io.Writer, jsonOutput bool) io.Writer {
	if jsonOutput {
		return w
	}
	return zerolog.ConsoleWriter{Out: w, TimeFormat: consoleTimeFormat}
}

func build(w io.Writer, level string) zerolog.Logger {
	return zerolog.New(w).Level(ParseLevel(level)).With().Timestamp().Logger()
}

// ParseLevel maps a config level to zerolog. Unknown or empty levels are
// treated as info.
func ParseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

func initComponentLoggers() {
	Ledger = WithComponent("ledger")
	Engine = WithComponent("engine")
	Settlement = WithComponent("settlement")
	RPC = WithComponent("rpc")
}

// WithComponent returns a child of the root logger tagged with name.
func WithComponent(name string) zerolog.Logger {
	return Logger.With().Str("component", name).Logger()
}

// WithAccount tags l with an account id.
func WithAccount(l zerolog.Logger, account string) zerolog.Logger {
	return l.With().Str("account", account).Logger()
}
