// Package audit records tool invocations and file mutations as an
// append-only JSON Lines trail. Recording never fails the caller: encoding
// and write errors are logged at debug level and dropped.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/flemzord/toolcore/internal/security"
)

// Payload budgets, in characters.
const (
	DefaultMaxSummaryChars = 800
	DefaultMaxDiffChars    = 400
)

// TruncationMarker is appended to any shortened payload.
const TruncationMarker = "...<truncated>"

// EntryType distinguishes the two kinds of audit entries.
type EntryType string

// Entry types.
const (
	TypeToolCall   EntryType = "tool_call"
	TypeFileChange EntryType = "file_change"
)

// Entry is one line of the audit trail.
type Entry struct {
	Timestamp   string    `json:"ts"`
	Type        EntryType `json:"type"`
	ID          string    `json:"id"`
	Tool        string    `json:"tool,omitempty"`
	Parameters  string    `json:"parameters,omitempty"`
	Result      string    `json:"result,omitempty"`
	Error       string    `json:"error,omitempty"`
	Path        string    `json:"path,omitempty"`
	Action      string    `json:"action,omitempty"`
	Bytes       *int      `json:"bytes,omitempty"`
	DiffPreview string    `json:"diffPreview,omitempty"`
}

// ToolCall describes one tool invocation. Parameters and Result are
// summarized as JSON; json.RawMessage values are used as-is.
type ToolCall struct {
	Tool       string
	Parameters any
	Result     any
	Err        error
}

// FileChange describes one committed file mutation.
type FileChange struct {
	Path        string
	Action      string
	Bytes       int
	DiffPreview string
}

// Sink receives a copy of every entry, after redaction and truncation.
type Sink interface {
	Write(ctx context.Context, e Entry) error
	Close() error
}

// Config configures a Logger.
type Config struct {
	// Path is the JSONL file. Empty disables the file; entries still reach
	// Sink and OnEntry.
	Path string

	MaxSummaryChars int
	MaxDiffChars    int

	// Redactor, if non-nil, is applied to every string payload.
	Redactor *security.Redactor

	// Sink, if non-nil, mirrors every entry.
	Sink Sink

	Logger *slog.Logger

	// OnEntry, if non-nil, is called for every entry (used in tests).
	OnEntry func(Entry)

	// Now overrides time.Now for testing.
	Now func() time.Time
}

// Logger appends audit entries. A nil *Logger records nothing, so
// components can hold an optional logger without guarding every call.
type Logger struct {
	path       string
	maxSummary int
	maxDiff    int
	redactor   *security.Redactor
	sink       Sink
	logger     *slog.Logger
	onEntry    func(Entry)
	now        func() time.Time

	mu   sync.Mutex
	file *os.File
}

// New creates a Logger. The log file and its directory are created on the
// first write.
func New(cfg Config) *Logger {
	l := &Logger{
		path:       cfg.Path,
		maxSummary: cfg.MaxSummaryChars,
		maxDiff:    cfg.MaxDiffChars,
		redactor:   cfg.Redactor,
		sink:       cfg.Sink,
		logger:     cfg.Logger,
		onEntry:    cfg.OnEntry,
		now:        cfg.Now,
	}
	if l.maxSummary <= 0 {
		l.maxSummary = DefaultMaxSummaryChars
	}
	if l.maxDiff <= 0 {
		l.maxDiff = DefaultMaxDiffChars
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	l.logger = l.logger.With("component", "audit")
	if l.now == nil {
		l.now = time.Now
	}
	return l
}

// RecordToolCall appends a tool_call entry.
func (l *Logger) RecordToolCall(c ToolCall) {
	if l == nil {
		return
	}
	e := l.newEntry(TypeToolCall)
	e.Tool = c.Tool
	e.Parameters = l.summarize(c.Parameters, l.maxSummary)
	e.Result = l.summarize(c.Result, l.maxSummary)
	if c.Err != nil {
		e.Error = Truncate(l.redact(c.Err.Error()), l.maxSummary)
	}
	l.write(e)
}

// RecordFileChange appends a file_change entry.
func (l *Logger) RecordFileChange(c FileChange) {
	if l == nil {
		return
	}
	e := l.newEntry(TypeFileChange)
	e.Path = c.Path
	e.Action = c.Action
	n := c.Bytes
	e.Bytes = &n
	e.DiffPreview = Truncate(l.redact(c.DiffPreview), l.maxDiff)
	l.write(e)
}

// Close closes the log file and the sink.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	var errs []error
	if l.file != nil {
		if err := l.file.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing audit file: %w", err))
		}
		l.file = nil
	}
	if l.sink != nil {
		if err := l.sink.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing audit sink: %w", err))
		}
		l.sink = nil
	}
	return errors.Join(errs...)
}

func (l *Logger) newEntry(t EntryType) Entry {
	return Entry{
		Timestamp: l.now().UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		Type:      t,
		ID:        uuid.NewString(),
	}
}

// summarize encodes v as compact JSON, redacts it, and truncates it.
func (l *Logger) summarize(v any, limit int) string {
	if v == nil {
		return ""
	}

	var raw []byte
	switch val := v.(type) {
	case json.RawMessage:
		if len(bytes.TrimSpace(val)) == 0 {
			return ""
		}
		if !json.Valid(val) {
			return Truncate(l.redact(string(val)), limit)
		}
		raw = val
	case string:
		return Truncate(l.redact(val), limit)
	default:
		b, err := json.Marshal(val)
		if err != nil {
			l.logger.Debug("audit: encoding payload failed", "error", err)
			return ""
		}
		raw = b
	}

	if l.redactor != nil {
		var decoded any
		if err := json.Unmarshal(raw, &decoded); err == nil {
			if m, ok := decoded.(map[string]any); ok {
				l.redactor.RedactMap(m)
				if b, err := json.Marshal(m); err == nil {
					raw = b
				}
			}
		}
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err == nil {
		raw = buf.Bytes()
	}
	return Truncate(l.redact(string(raw)), limit)
}

func (l *Logger) redact(s string) string {
	if l.redactor == nil {
		return s
	}
	return l.redactor.Redact(s)
}

func (l *Logger) write(e Entry) {
	line, err := json.Marshal(e)
	if err != nil {
		l.logger.Debug("audit: encoding entry failed", "error", err)
		return
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.onEntry != nil {
		l.onEntry(e)
	}

	if l.path != "" {
		if err := l.openLocked(); err != nil {
			l.logger.Debug("audit: opening log failed", "path", l.path, "error", err)
		} else if _, err := l.file.Write(line); err != nil {
			l.logger.Debug("audit: write failed", "path", l.path, "error", err)
		}
	}

	if l.sink != nil {
		if err := l.sink.Write(context.Background(), e); err != nil {
			l.logger.Debug("audit: sink write failed", "error", err)
		}
	}
}

func (l *Logger) openLocked() error {
	if l.file != nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0o750); err != nil {
		return err
	}
	f, err := os.OpenFile(l.path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o640)
	if err != nil {
		return err
	}
	l.file = f
	return nil
}

// Truncate shortens s to at most limit characters followed by
// TruncationMarker. It never splits a UTF-8 sequence.
func Truncate(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i] + TruncationMarker
		}
		n++
	}
	return s
}
