package core

import (
	"os"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

var Logger zerolog.Logger

// InitLogger configures the global console logger. Level accepts any name
// zerolog understands ("trace", "debug", "info", ...); unknown names fall
// back to info.
func InitLogger(level string) zerolog.Logger {
	console := &zerolog.ConsoleWriter{Out: os.Stdout}
	console.NoColor = !isatty.IsTerminal(os.Stdout.Fd())
	console.TimeFormat = "15:04:05.000"

	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	Logger = zerolog.New(console).Level(lvl).With().Timestamp().Logger()

	return Logger
}
