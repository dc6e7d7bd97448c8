package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"krait/config"
)

// Level controls which messages a Logger emits.
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

// ParseLevel maps a config string to a Level, defaulting to INFO.
func ParseLevel(s string) Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return DEBUG
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	}
	return INFO
}

// Logger is a leveled logger writing to stdout and, when configured, a
// size-rotated log file.
type Logger struct {
	logger *log.Logger
	level  Level
}

// New creates a Logger from the logging section of the configuration.
// With an empty file path it logs to stdout only.
func New(cfg config.LoggingConfig) *Logger {
	var w io.Writer = os.Stdout
	if cfg.File != "" {
		w = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		})
	}

	return &Logger{
		logger: log.New(w, "", log.LstdFlags|log.LUTC),
		level:  ParseLevel(cfg.Level),
	}
}

// NewWriter creates a Logger over an arbitrary writer, used by tests.
func NewWriter(w io.Writer, level Level) *Logger {
	return &Logger{
		logger: log.New(w, "", log.LstdFlags|log.LUTC),
		level:  level,
	}
}

// Discard returns a Logger that drops everything.
func Discard() *Logger {
	return &Logger{
		logger: log.New(io.Discard, "", 0),
		level:  ERROR + 1,
	}
}

func (l *Logger) Debugf(format string, v ...any) {
	if l.level <= DEBUG {
		l.logger.Output(2, fmt.Sprintf("[DEBUG] "+format, v...))
	}
}

func (l *Logger) Infof(format string, v ...any) {
	if l.level <= INFO {
		l.logger.Output(2, fmt.Sprintf("[INFO]  "+format, v...))
	}
}

func (l *Logger) Warnf(format string, v ...any) {
	if l.level <= WARN {
		l.logger.Output(2, fmt.Sprintf("[WARN]  "+format, v...))
	}
}

func (l *Logger) Errorf(format string, v ...any) {
	if l.level <= ERROR {
		l.logger.Output(2, fmt.Sprintf("[ERROR] "+format, v...))
	}
}
