// Package logging provides the structured logger every AMP component
// pulls a scoped instance of via WithComponent — embeddings, cache,
// query, indexing, store, admin, and the HTTP API layer all log
// through the same JSON-lines shape so a trace id ties one request to
// every component it touched.
package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"
)

// Logger is the structured logging surface every AMP component logs
// through; component constructors obtain theirs from the package
// default via WithComponent.
type Logger interface {
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Debug(msg string, fields ...interface{})

	// WithTraceID scopes subsequent entries to a request or operation
	// id, so every component a single call touches logs under the
	// same identifier.
	WithTraceID(traceID string) Logger
	// WithComponent scopes subsequent entries to a subsystem name
	// (e.g. "embeddings", "query", "cache").
	WithComponent(component string) Logger
}

// entry is one structured log line.
type entry struct {
	Timestamp string                 `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	TraceID   string                 `json:"trace_id,omitempty"`
	Component string                 `json:"component,omitempty"`
	File      string                 `json:"file,omitempty"`
	Line      int                    `json:"line,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// Level is a logging severity.
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

// jsonLogger implements Logger with JSON-lines output to stdout,
// falling back to a human-readable line when AMP_LOG_JSON=0.
type jsonLogger struct {
	level     Level
	traceID   string
	component string
	asText    bool
}

// NewLogger creates a logger at the given level. Output format is
// controlled by AMP_LOG_JSON (default on); set it to "0" for a
// human-readable line, useful when running the indexer CLI at a
// terminal rather than under a log collector.
func NewLogger(level Level) Logger {
	return &jsonLogger{level: level, asText: !envBool("AMP_LOG_JSON", true)}
}

func envBool(key string, def bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	return val == "true" || val == "1"
}

func (l *jsonLogger) WithTraceID(traceID string) Logger {
	cp := *l
	cp.traceID = traceID
	return &cp
}

func (l *jsonLogger) WithComponent(component string) Logger {
	cp := *l
	cp.component = component
	return &cp
}

func (l *jsonLogger) Info(msg string, fields ...interface{}) {
	if l.level <= INFO {
		l.emit("INFO", msg, fields...)
	}
}

func (l *jsonLogger) Warn(msg string, fields ...interface{}) {
	if l.level <= WARN {
		l.emit("WARN", msg, fields...)
	}
}

func (l *jsonLogger) Error(msg string, fields ...interface{}) {
	if l.level <= ERROR {
		l.emit("ERROR", msg, fields...)
	}
}

func (l *jsonLogger) Debug(msg string, fields ...interface{}) {
	if l.level <= DEBUG {
		l.emit("DEBUG", msg, fields...)
	}
}

// emit builds and writes one entry. Fields are key, value, key, value...
func (l *jsonLogger) emit(level, msg string, fields ...interface{}) {
	_, file, line, ok := runtime.Caller(2)
	if !ok {
		file, line = "unknown", 0
	} else if idx := strings.LastIndexByte(file, '/'); idx >= 0 {
		file = file[idx+1:]
	}

	fieldMap := make(map[string]interface{}, len(fields)/2)
	for i := 0; i < len(fields); i += 2 {
		if i+1 < len(fields) {
			fieldMap[fmt.Sprintf("%v", fields[i])] = fields[i+1]
		} else {
			fieldMap[fmt.Sprintf("field_%d", i)] = fields[i]
		}
	}

	e := entry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     level,
		Message:   msg,
		TraceID:   l.traceID,
		Component: l.component,
		File:      file,
		Line:      line,
		Fields:    fieldMap,
	}

	if l.asText {
		l.writeText(e)
	} else {
		l.writeJSON(e)
	}
}

func (l *jsonLogger) writeJSON(e entry) {
	data, err := json.Marshal(e)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: failed to marshal entry: %v\n", err)
		return
	}
	fmt.Println(string(data))
}

func (l *jsonLogger) writeText(e entry) {
	parts := []string{e.Timestamp, fmt.Sprintf("[%s]", e.Level)}
	if e.TraceID != "" {
		tid := e.TraceID
		if len(tid) > 8 {
			tid = tid[:8]
		}
		parts = append(parts, fmt.Sprintf("trace:%s", tid))
	}
	if e.Component != "" {
		parts = append(parts, fmt.Sprintf("component:%s", e.Component))
	}
	parts = append(parts, e.Message)
	for k, v := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	if e.File != "" && e.Line > 0 {
		parts = append(parts, fmt.Sprintf("(%s:%d)", e.File, e.Line))
	}
	fmt.Println(strings.Join(parts, " "))
}

var defaultLogger = NewLogger(INFO)

// WithComponent scopes the default logger to a component name; this is
// the entry point every AMP constructor (NewAdapter, NewManager,
// NewEngine, NewPipeline, NewService...) uses to get its own logger.
func WithComponent(component string) Logger {
	return defaultLogger.WithComponent(component)
}

// ParseLevel parses a level name from configuration (AMP_LOG_LEVEL),
// defaulting to INFO for an empty or unrecognized value.
func ParseLevel(level string) Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return DEBUG
	case "INFO":
		return INFO
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}

// SetDefaultLevel rebuilds the package default logger at the given
// level; cmd/server and cmd/indexer call this once during startup with
// the loaded config's Logging.Level.
func SetDefaultLevel(level Level) {
	defaultLogger = NewLogger(level)
}
