package logs

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// New otwiera plik logów (append) i opcjonalnie dubluje wpisy na konsolę.
func New(logFilePath string, withConsole bool) zerolog.Logger {
	_ = os.MkdirAll(filepath.Dir(logFilePath), 0o755)
	logFile, err := os.OpenFile(logFilePath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o666)
	if err != nil {
		log.Fatal().Err(err).Msg("Nie można otworzyć pliku log")
	}
	return build(logFile, withConsole)
}

// Console: logger dla komend jednorazowych CLI, bez pliku.
func Console() zerolog.Logger {
	return build(io.Discard, true)
}

func build(out io.Writer, withConsole bool) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	writer := out
	if withConsole {
		consoleWriter := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		writer = zerolog.MultiLevelWriter(out, consoleWriter)
	}

	logger := zerolog.New(writer).With().
		Timestamp().
		Caller().
		Logger()

	log.Logger = logger
	return logger
}

// GormWriter kieruje logi gorma (slow query, błędy) do zerologa.
func GormWriter(l zerolog.Logger) gormWriter {
	return gormWriter{log: l.With().Str("component", "gorm").Logger()}
}

type gormWriter struct {
	log zerolog.Logger
}

func (w gormWriter) Printf(format string, args ...any) {
	msg := strings.TrimSpace(fmt.Sprintf(format, args...))
	w.log.Warn().Msg(msg)
}
