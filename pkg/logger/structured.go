package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"
)

type contextKey string

// CycleIDKey is the context key under which the cycle driver stashes its
// per-invocation correlation id; WithContext picks it up automatically.
const CycleIDKey contextKey = "cycle_id"

// StructuredLogger is a production logger emitting either JSON or
// human-readable text, with level filtering and field inheritance via
// With/WithContext.
type StructuredLogger struct {
	level       LogLevel
	format      string // "json" or "text"
	serviceName string
	output      io.Writer
	fields      map[string]interface{}
}

// New creates a StructuredLogger writing to stdout.
func New(serviceName, level, format string) *StructuredLogger {
	return &StructuredLogger{
		level:       ParseLevel(level),
		format:      format,
		serviceName: serviceName,
		output:      os.Stdout,
		fields:      map[string]interface{}{},
	}
}

// NewDefaultLogger creates an info-level, text-format logger.
func NewDefaultLogger() Logger {
	return New("balrogagent", "info", "text")
}

func (l *StructuredLogger) Debug(msg string, fields map[string]interface{}) {
	if l.level <= DebugLevel {
		l.log("DEBUG", msg, fields)
	}
}

func (l *StructuredLogger) Info(msg string, fields map[string]interface{}) {
	if l.level <= InfoLevel {
		l.log("INFO", msg, fields)
	}
}

func (l *StructuredLogger) Warn(msg string, fields map[string]interface{}) {
	if l.level <= WarnLevel {
		l.log("WARN", msg, fields)
	}
}

func (l *StructuredLogger) Error(msg string, fields map[string]interface{}) {
	if l.level <= ErrorLevel {
		l.log("ERROR", msg, fields)
	}
}

func (l *StructuredLogger) SetLevel(level string) {
	l.level = ParseLevel(level)
}

func (l *StructuredLogger) With(fields map[string]interface{}) Logger {
	merged := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &StructuredLogger{
		level:       l.level,
		format:      l.format,
		serviceName: l.serviceName,
		output:      l.output,
		fields:      merged,
	}
}

// WithContext enriches the returned logger with the cycle id (if any) and
// the active OpenTelemetry trace/span id (if the context carries a
// recording span).
func (l *StructuredLogger) WithContext(ctx context.Context) Logger {
	extra := map[string]interface{}{}
	if id, ok := ctx.Value(CycleIDKey).(string); ok && id != "" {
		extra["cycle_id"] = id
	}
	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		sc := span.SpanContext()
		extra["trace_id"] = sc.TraceID().String()
		extra["span_id"] = sc.SpanID().String()
	}
	if len(extra) == 0 {
		return l
	}
	return l.With(extra)
}

func (l *StructuredLogger) log(level, msg string, fields map[string]interface{}) {
	merged := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}

	if l.format == "json" {
		entry := map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339Nano),
			"level":     level,
			"service":   l.serviceName,
			"message":   msg,
		}
		for k, v := range merged {
			entry[k] = v
		}
		if data, err := json.Marshal(entry); err == nil {
			fmt.Fprintln(l.output, string(data))
		}
		return
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, merged[k])
	}
	fmt.Fprintf(l.output, "%s [%s] [%s] %s%s\n",
		time.Now().Format(time.RFC3339), level, l.serviceName, msg, b.String())
}

// GetLogLevel reads the log level from the environment, defaulting to info.
func GetLogLevel() string {
	if v := os.Getenv("BALROGAGENT_LOG_LEVEL"); v != "" {
		return v
	}
	return "info"
}
