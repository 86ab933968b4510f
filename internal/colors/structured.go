package colors

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Structured lines are JSON objects on stderr, written only in debug mode.
// They trace the process lifecycle next to the coloured console output.

var (
	structuredMu     sync.Mutex
	structuredPaused atomic.Bool
)

// StructuredLogLevel is the level of a structured line.
type StructuredLogLevel string

const (
	LevelInfo  StructuredLogLevel = "info"
	LevelWarn  StructuredLogLevel = "warn"
	LevelError StructuredLogLevel = "error"
)

// StructuredLogEntry is one structured line. ID holds the job id, if any.
type StructuredLogEntry struct {
	Time      string                 `json:"time"`
	Level     StructuredLogLevel     `json:"level"`
	Component string                 `json:"component"`
	Action    string                 `json:"action"`
	Status    string                 `json:"status"`
	Error     string                 `json:"error,omitempty"`
	ID        string                 `json:"job_id,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// DisableStructuredLogging pauses structured output. The watch command pauses
// it while the alt screen owns the terminal.
func DisableStructuredLogging() {
	structuredPaused.Store(true)
}

// EnableStructuredLogging resumes structured output.
func EnableStructuredLogging() {
	structuredPaused.Store(false)
}

// StructuredLog writes one entry to stderr.
func StructuredLog(level StructuredLogLevel, component, action, status string, err error, jobID string, fields map[string]interface{}) {
	if !debugEnabled || structuredPaused.Load() {
		return
	}

	entry := StructuredLogEntry{
		Time:      time.Now().UTC().Format(time.RFC3339Nano),
		Level:     level,
		Component: component,
		Action:    action,
		Status:    status,
		ID:        jobID,
		Fields:    fields,
	}
	if err != nil {
		entry.Error = err.Error()
	}
	data, err := json.Marshal(entry)
	if err != nil {
		errorFallback(fmt.Sprintf("structured log: %v", err))
		return
	}

	structuredMu.Lock()
	defer structuredMu.Unlock()
	_, errOut := writers()
	if _, err := fmt.Fprintln(errOut, string(data)); err != nil {
		errorFallback(fmt.Sprintf("structured log: %v", err))
	}
}

func StructuredInfo(component, action, status string, err error, jobID string, fields map[string]interface{}) {
	StructuredLog(LevelInfo, component, action, status, err, jobID, fields)
}

func StructuredWarn(component, action, status string, err error, jobID string, fields map[string]interface{}) {
	StructuredLog(LevelWarn, component, action, status, err, jobID, fields)
}

func StructuredError(component, action, status string, err error, jobID string, fields map[string]interface{}) {
	StructuredLog(LevelError, component, action, status, err, jobID, fields)
}
