package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"
)

// Format selects the log encoding
type Format string

const (
	FormatAuto    Format = "auto"
	FormatConsole Format = "console"
	FormatJSON    Format = "json"
)

// Setup configures the global zerolog logger. Auto format uses the console
// writer when stderr is a terminal and JSON otherwise.
func Setup(level string, format Format) error {
	return SetupWriter(os.Stderr, level, format)
}

// SetupWriter is Setup with an explicit destination
func SetupWriter(w io.Writer, level string, format Format) error {
	lvl := zerolog.InfoLevel
	if level != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(level))
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", level, err)
		}
		lvl = parsed
	}

	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.SetGlobalLevel(lvl)

	switch format {
	case FormatJSON:
	case FormatConsole:
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	case FormatAuto, "":
		if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
			w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
		}
	default:
		return fmt.Errorf("invalid log format %q", format)
	}

	log.Logger = zerolog.New(w).With().Timestamp().Logger()
	return nil
}
