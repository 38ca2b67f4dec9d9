package utils

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"
)

func InitLogger(debug bool) {
	GlobalDebugFlag = debug
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	SetLogOutput(os.Stderr)
}

func GetLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// consoleWriter drops colors unless w is a terminal, so redirected logs stay plain.
func consoleWriter(w io.Writer) zerolog.ConsoleWriter {
	noColor := true
	if f, ok := w.(*os.File); ok {
		noColor = !term.IsTerminal(int(f.Fd()))
	}
	return zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.DateTime,
		NoColor:    noColor,
	}
}

// SetLogOutput points the console logger at w.
func SetLogOutput(w io.Writer) {
	log.Logger = zerolog.New(consoleWriter(w)).With().Timestamp().Logger()
}

// SetLogFile keeps the console writer and mirrors every event as JSON into a
// size-rotated file. Close the returned writer on exit.
func SetLogFile(path string) io.Closer {
	file := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
	}
	log.Logger = zerolog.New(zerolog.MultiLevelWriter(consoleWriter(os.Stderr), file)).With().Timestamp().Logger()
	return file
}
