// Package common provides shared utilities for dcim-mcp.
package common

import (
	"encoding/json"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/phuslu/log"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/arbor/models"
	"github.com/ternarybob/arbor/writers"

	"github.com/bobmcallan/dcim-mcp/internal/config"
)

const (
	outputConsole = "console"
	outputFile    = "file"

	logTimeFormat = "2006-01-02T15:04:05Z07:00"
)

// Logger is the diagnostics logger shared by every layer of dcim-mcp.
type Logger struct {
	arbor.ILogger
}

// NewLoggerFromConfig builds a logger with one writer per configured output.
// Unknown outputs are ignored; no outputs means console only.
//
// The console writer targets stderr. In stdio mode stdout carries the MCP
// JSON-RPC stream and any stray byte corrupts it.
func NewLoggerFromConfig(cfg config.LoggingConfig) *Logger {
	outputs := cfg.Outputs
	if len(outputs) == 0 {
		outputs = []string{outputConsole}
	}

	l := arbor.NewLogger()
	for _, out := range outputs {
		switch strings.ToLower(strings.TrimSpace(out)) {
		case outputConsole:
			l = l.WithConsoleWriter(consoleWriterConfig())
		case outputFile:
			l = l.WithFileWriter(fileWriterConfig(cfg))
		}
	}

	level := cfg.Level
	if level == "" {
		level = "info"
	}
	return &Logger{ILogger: l.WithLevelFromString(level)}
}

func consoleWriterConfig() models.WriterConfiguration {
	return models.WriterConfiguration{
		Type:       models.LogWriterTypeConsole,
		Writer:     os.Stderr,
		TimeFormat: logTimeFormat,
	}
}

// fileWriterConfig fills rotation limits from defaults when unset.
func fileWriterConfig(cfg config.LoggingConfig) models.WriterConfiguration {
	defaults := config.NewDefaultConfig().Logging

	path := cfg.FilePath
	if path == "" {
		path = defaults.FilePath
	}
	sizeMB := cfg.MaxSizeMB
	if sizeMB <= 0 {
		sizeMB = defaults.MaxSizeMB
	}
	backups := cfg.MaxBackups
	if backups <= 0 {
		backups = defaults.MaxBackups
	}

	return models.WriterConfiguration{
		Type:       models.LogWriterTypeFile,
		FileName:   path,
		MaxSize:    int64(sizeMB) << 20,
		MaxBackups: backups,
		TimeFormat: logTimeFormat,
	}
}

// NewLoggerWithOutput creates a logger that renders each event as one
// "message key=value ..." line on w, fields sorted by key. Tests use it to
// assert on diagnostic output.
func NewLoggerWithOutput(level string, w io.Writer) *Logger {
	arbor.RegisterWriter(arbor.WRITER_CONSOLE, &lineWriter{out: w, min: log.TraceLevel})

	l := arbor.NewLogger().
		WithMemoryWriter(models.WriterConfiguration{Type: models.LogWriterTypeMemory}).
		WithLevelFromString(level)
	return &Logger{ILogger: l}
}

// NewSilentLogger creates a logger that discards everything. It installs its
// own writer so nothing reaches globally registered writers either.
func NewSilentLogger() *Logger {
	return &Logger{ILogger: arbor.NewLogger().WithWriters([]writers.IWriter{nopWriter{}})}
}

// WithCorrelationId returns a copy of l that tags every event with id.
func (l *Logger) WithCorrelationId(id string) *Logger {
	return &Logger{ILogger: l.ILogger.WithCorrelationId(id)}
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error)           { return len(p), nil }
func (w nopWriter) WithLevel(_ log.Level) writers.IWriter { return w }
func (nopWriter) GetFilePath() string                   { return "" }
func (nopWriter) Close() error                          { return nil }

// lineWriter decodes arbor's JSON events into plain text lines.
type lineWriter struct {
	out io.Writer
	min log.Level
}

func (w *lineWriter) Write(p []byte) (int, error) {
	var evt models.LogEvent
	if err := json.Unmarshal(p, &evt); err != nil {
		return w.out.Write(p)
	}
	if evt.Level < w.min {
		return len(p), nil
	}

	keys := make([]string, 0, len(evt.Fields))
	for k := range evt.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(evt.Message)
	for _, k := range keys {
		b.WriteByte(' ')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(stringify(evt.Fields[k]))
	}
	if evt.Error != "" {
		b.WriteString(" error=")
		b.WriteString(evt.Error)
	}
	b.WriteByte('\n')
	return w.out.Write([]byte(b.String()))
}

func (w *lineWriter) WithLevel(level log.Level) writers.IWriter {
	w.min = level
	return w
}

func (w *lineWriter) GetFilePath() string { return "" }
func (w *lineWriter) Close() error        { return nil }

func stringify(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(raw)
}
