// Package logger builds the zerolog.Logger shared by every piradio component.
package logger

import (
	"io"
	stdlog "log"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Config controls logger construction.
type Config struct {
	Level             string `yaml:"level"`               // trace, debug, info, warn, error; default info.
	TimeFieldFormat   string `yaml:"time_field_format"`   // Go layout or "unix"; default RFC3339.
	PrettyPrint       bool   `yaml:"pretty_print"`        // Human-readable console output.
	ShowCaller        bool   `yaml:"show_caller"`         // Add file:line to every entry.
	RedirectStdLogger bool   `yaml:"redirect_std_logger"` // Route the standard library logger through zerolog.
}

// New returns a logger writing to w (os.Stderr when nil).
func New(cfg Config, w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	switch cfg.TimeFieldFormat {
	case "":
		zerolog.TimeFieldFormat = time.RFC3339
	case "unix":
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	default:
		zerolog.TimeFieldFormat = cfg.TimeFieldFormat
	}

	if cfg.PrettyPrint {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}

	ctx := zerolog.New(w).Level(level).With().Timestamp()
	if cfg.ShowCaller {
		ctx = ctx.Caller()
	}
	log := ctx.Logger()

	if cfg.RedirectStdLogger {
		stdlog.SetFlags(0)
		stdlog.SetOutput(log)
	}

	return log
}

// Nop returns a disabled logger.
func Nop() zerolog.Logger { return zerolog.Nop() }

// Component returns a child logger tagged with the component name.
func Component(log zerolog.Logger, name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}

// OrNop dereferences l, or returns a disabled logger when l is nil.
func OrNop(l *zerolog.Logger) zerolog.Logger {
	if l == nil {
		return zerolog.Nop()
	}
	return *l
}
