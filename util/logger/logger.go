package logger

import (
	"fmt"
	"io"
	stdlog "log"
	"os"
	"path"
	"path/filepath"

	"github.com/op/go-logging"
)

/*
InitLogger creates and returns a logger suitable for logging
human-readable message. Also returns the path to the log file.
*/
func InitLogger(logDir string, logLevel logging.Level) (*logging.Logger, string) {
	processName := path.Base(os.Args[0])
	filename := fmt.Sprintf("%s.log", processName)
	filename = filepath.Join(logDir, filename)
	writer, err := os.OpenFile(filename, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Cannot open log file '%s': %v\n", filename, err)
		os.Exit(1)
	}
	log := logging.MustGetLogger(processName)
	format := logging.MustStringFormatter("[%{level}] %{message}")
	logging.SetFormatter(format)
	logging.SetLevel(logLevel, processName)
	logBackend := logging.NewLogBackend(writer, "", stdlog.LstdFlags|stdlog.LUTC)
	logging.SetBackend(logBackend)
	return log, filename
}

// InitConsoleLogger returns a logger that writes to stderr. The CLI uses
// this when no log directory is configured.
func InitConsoleLogger(name string, logLevel logging.Level) *logging.Logger {
	return newLogger(name, os.Stderr, logLevel)
}

// DiscardLogger returns a logger whose output goes nowhere. Tests use
// this so components that require a logger stay quiet.
func DiscardLogger(name string) *logging.Logger {
	return newLogger(name, io.Discard, logging.CRITICAL)
}

func newLogger(name string, writer io.Writer, logLevel logging.Level) *logging.Logger {
	log := logging.MustGetLogger(name)
	format := logging.MustStringFormatter("[%{level}] %{module} %{message}")
	backend := logging.NewBackendFormatter(logging.NewLogBackend(writer, "", stdlog.LstdFlags|stdlog.LUTC), format)
	leveled := logging.AddModuleLevel(backend)
	leveled.SetLevel(logLevel, name)
	log.SetBackend(leveled)
	return log
}
