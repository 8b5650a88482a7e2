package security

import (
	"context"
	"encoding/json"
	"log/slog"
	"unicode/utf8"
)

// DefaultMaxLogValueChars bounds one string attribute in log output.
// Guest code, file contents, and command output can be megabytes long.
const DefaultMaxLogValueChars = 2000

const logTruncationMarker = "...<truncated>"

// RedactingHandler wraps a slog.Handler. It redacts secrets from the
// message and every attribute, and shortens long string values, before
// passing the record on.
type RedactingHandler struct {
	inner    slog.Handler
	redactor *Redactor
	maxChars int
}

var _ slog.Handler = (*RedactingHandler)(nil)

// HandlerOption configures a RedactingHandler.
type HandlerOption func(*RedactingHandler)

// WithMaxValueChars overrides DefaultMaxLogValueChars. Zero or negative
// disables shortening.
func WithMaxValueChars(n int) HandlerOption {
	return func(h *RedactingHandler) { h.maxChars = n }
}

// NewRedactingHandler wraps inner so that redactor is applied to every
// record.
func NewRedactingHandler(inner slog.Handler, redactor *Redactor, opts ...HandlerOption) *RedactingHandler {
	h := &RedactingHandler{
		inner:    inner,
		redactor: redactor,
		maxChars: DefaultMaxLogValueChars,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Enabled delegates to the inner handler.
func (h *RedactingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle rebuilds the record with a cleaned message and attributes.
func (h *RedactingHandler) Handle(ctx context.Context, record slog.Record) error {
	clean := slog.NewRecord(record.Time, record.Level, h.redactor.Redact(record.Message), record.PC)
	record.Attrs(func(a slog.Attr) bool {
		clean.AddAttrs(h.clean(a))
		return true
	})
	return h.inner.Handle(ctx, clean)
}

// WithAttrs cleans attrs once and folds them into the inner handler.
func (h *RedactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	cleaned := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		cleaned[i] = h.clean(a)
	}
	return h.derive(h.inner.WithAttrs(cleaned))
}

// WithGroup returns a handler whose inner handler opens the group.
func (h *RedactingHandler) WithGroup(name string) slog.Handler {
	return h.derive(h.inner.WithGroup(name))
}

func (h *RedactingHandler) derive(inner slog.Handler) *RedactingHandler {
	return &RedactingHandler{inner: inner, redactor: h.redactor, maxChars: h.maxChars}
}

func (h *RedactingHandler) clean(a slog.Attr) slog.Attr {
	a.Value = a.Value.Resolve()

	switch a.Value.Kind() {
	case slog.KindString:
		a.Value = slog.StringValue(h.text(a.Value.String()))
	case slog.KindGroup:
		attrs := a.Value.Group()
		cleaned := make([]slog.Attr, len(attrs))
		for i, ga := range attrs {
			cleaned[i] = h.clean(ga)
		}
		a.Value = slog.GroupValue(cleaned...)
	case slog.KindAny:
		a.Value = h.any(a.Value)
	}
	return a
}

func (h *RedactingHandler) any(v slog.Value) slog.Value {
	switch x := v.Any().(type) {
	case []string:
		// argv
		out := make([]string, len(x))
		for i, s := range x {
			out[i] = h.text(s)
		}
		return slog.AnyValue(out)
	case map[string]string:
		// env overrides
		out := make(map[string]string, len(x))
		for k, s := range x {
			if secretKeyPattern.MatchString(k) {
				out[k] = RedactPlaceholder
				continue
			}
			out[k] = h.text(s)
		}
		return slog.AnyValue(out)
	case json.RawMessage:
		return slog.StringValue(h.text(h.redactJSON(x)))
	}

	s := v.String()
	if cleaned := h.text(s); cleaned != s {
		return slog.StringValue(cleaned)
	}
	return v
}

// redactJSON masks secret-named keys of a JSON object before the
// pattern pass. Non-objects are returned as text.
func (h *RedactingHandler) redactJSON(raw json.RawMessage) string {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return string(raw)
	}
	h.redactor.RedactMap(m)
	out, err := json.Marshal(m)
	if err != nil {
		return string(raw)
	}
	return string(out)
}

func (h *RedactingHandler) text(s string) string {
	s = h.redactor.Redact(s)
	if h.maxChars <= 0 || utf8.RuneCountInString(s) <= h.maxChars {
		return s
	}
	runes := []rune(s)
	return string(runes[:h.maxChars]) + logTruncationMarker
}
