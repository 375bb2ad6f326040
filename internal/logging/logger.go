// Package logging provides leveled logging and iteration tracing for sfcsim.
// There are two outputs:
//   - a leveled slog.Logger on stderr for operational messages
//   - an IterationLogger appending one JSONL line per outer iteration
//     (<data dir>/iterations.jsonl) when running at debug or trace level
package logging

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/nvandessel/sfcsim/internal/driver"
)

// LevelTrace sits below Debug. At this level iteration records include the
// full rescaled solution.
const LevelTrace = slog.LevelDebug - 4

// TraceFile is the name of the iteration trace inside the data directory.
const TraceFile = "iterations.jsonl"

// ParseLevel maps "info", "debug", "warn", "error" or "trace" (any case) to a
// slog.Level. Anything else is info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return LevelTrace
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a leveled text logger writing to w.
func NewLogger(level string, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: ParseLevel(level),
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key != slog.LevelKey {
				return a
			}
			if l, ok := a.Value.Any().(slog.Level); ok && l == LevelTrace {
				a.Value = slog.StringValue("TRACE")
			}
			return a
		},
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// IterationLogger appends driver iteration records to a JSONL file. It is
// safe for concurrent use, and a nil *IterationLogger ignores every call.
type IterationLogger struct {
	mu         sync.Mutex
	file       *os.File
	withValues bool
}

// NewIterationLogger opens dir/iterations.jsonl for append. At info level or
// above it returns nil and creates nothing. Values are only written at trace
// level. Failure to open the file also yields nil.
func NewIterationLogger(dir, level string) *IterationLogger {
	lvl := ParseLevel(level)
	if lvl > slog.LevelDebug {
		return nil
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil
	}
	f, err := os.OpenFile(filepath.Join(dir, TraceFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil
	}
	return &IterationLogger{file: f, withValues: lvl <= LevelTrace}
}

type traceLine struct {
	Time      string             `json:"time"`
	RunID     string             `json:"run_id,omitempty"`
	Iteration int                `json:"iteration"`
	Close     bool               `json:"close"`
	Output    float64            `json:"output_scale"`
	Labor     float64            `json:"labor_scale"`
	Price     float64            `json:"price_scale"`
	ElapsedMS float64            `json:"elapsed_ms"`
	Values    map[string]float64 `json:"values,omitempty"`
}

// Record writes one iteration as a JSONL line.
func (l *IterationLogger) Record(runID string, rec driver.IterationRecord) {
	if l == nil {
		return
	}
	line := traceLine{
		Time:      time.Now().UTC().Format(time.RFC3339Nano),
		RunID:     runID,
		Iteration: rec.Iteration,
		Close:     rec.Close,
		Output:    rec.Factors.Output,
		Labor:     rec.Factors.Labor,
		Price:     rec.Factors.Price,
		ElapsedMS: float64(rec.Elapsed.Microseconds()) / 1000,
	}
	if l.withValues {
		line.Values = rec.Values
	}
	data, err := json.Marshal(line)
	if err != nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return
	}
	_, _ = l.file.Write(append(data, '\n'))
}

// Observer adapts the logger to a driver.Observer tagged with runID.
func (l *IterationLogger) Observer(runID string) driver.Observer {
	return func(rec driver.IterationRecord) {
		l.Record(runID, rec)
	}
}

// Close closes the file. Later calls to Record are ignored.
func (l *IterationLogger) Close() {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}
}
