// Package logger provides component-scoped structured logging on top of zerolog.
package logger

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	mu  sync.RWMutex
	log zerolog.Logger
)

func init() {
	zerolog.TimeFieldFormat = time.RFC3339
	log = zerolog.New(consoleWriter(os.Stderr)).With().Timestamp().Logger()
	if lvl := os.Getenv("SATIBOT_LOG_LEVEL"); lvl != "" {
		SetLevel(lvl)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

func consoleWriter(w io.Writer) io.Writer {
	return zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
}

// SetLevel adjusts the global minimum log level ("debug", "info", "warn", "error").
func SetLevel(level string) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

// SetOutput redirects all future log events to w, replacing the console writer.
// Used by the console front-end to keep the REPL's stdout free of log noise.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	log = zerolog.New(w).With().Timestamp().Logger()
}

func event(e *zerolog.Event, component, msg string, fields map[string]interface{}) {
	e = e.Str("component", component)
	for k, v := range fields {
		e = e.Interface(k, v)
	}
	e.Msg(msg)
}

func logger() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}

// DebugCF logs a debug-level event scoped to component with structured fields.
func DebugCF(component, msg string, fields map[string]interface{}) {
	l := logger()
	event(l.Debug(), component, msg, fields)
}

// InfoCF logs an info-level event scoped to component with structured fields.
func InfoCF(component, msg string, fields map[string]interface{}) {
	l := logger()
	event(l.Info(), component, msg, fields)
}

// WarnCF logs a warn-level event scoped to component with structured fields.
func WarnCF(component, msg string, fields map[string]interface{}) {
	l := logger()
	event(l.Warn(), component, msg, fields)
}

// ErrorCF logs an error-level event scoped to component with structured fields.
func ErrorCF(component, msg string, fields map[string]interface{}) {
	l := logger()
	event(l.Error(), component, msg, fields)
}
