package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// BaseConfig configures a Base.
type BaseConfig struct {
	ID          string
	Name        string
	Description string

	// Logger receives lifecycle messages. Defaults to slog.Default().
	Logger *slog.Logger

	// OnInitialize, if set, runs once the first time the service is
	// initialized. An error leaves the service unloaded.
	OnInitialize func(ctx context.Context) error
}

// Base implements the lifecycle and dispatch parts of Service. Tool
// families embed it and register their handlers at construction time.
type Base struct {
	id          string
	name        string
	description string
	logger      *slog.Logger
	onInit      func(ctx context.Context) error

	mu       sync.RWMutex
	enabled  bool
	loaded   bool
	defs     []Definition
	handlers map[string]Handler
}

// NewBase creates a disabled, unloaded service base.
func NewBase(cfg BaseConfig) *Base {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Base{
		id:          cfg.ID,
		name:        cfg.Name,
		description: cfg.Description,
		logger:      logger.With("component", cfg.ID),
		onInit:      cfg.OnInitialize,
		handlers:    make(map[string]Handler),
	}
}

// Handle binds a definition to its handler. It panics on a duplicate or
// empty name; handlers are wired once, at construction.
func (b *Base) Handle(def Definition, h Handler) {
	if def.Name == "" {
		panic(fmt.Sprintf("service %s: tool name must not be empty", b.id))
	}
	if h == nil {
		panic(fmt.Sprintf("service %s: tool %s has no handler", b.id, def.Name))
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.handlers[def.Name]; exists {
		panic(fmt.Sprintf("service %s: tool %s registered twice", b.id, def.Name))
	}
	b.handlers[def.Name] = h
	b.defs = append(b.defs, def)
}

// ID implements Service.
func (b *Base) ID() string { return b.id }

// Name implements Service.
func (b *Base) Name() string { return b.name }

// Description implements Service.
func (b *Base) Description() string { return b.description }

// Logger returns the service's component logger.
func (b *Base) Logger() *slog.Logger { return b.logger }

// Tools implements Service.
func (b *Base) Tools() []Definition {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.enabled {
		return nil
	}
	return append([]Definition(nil), b.defs...)
}

// Definitions returns every tool definition regardless of the enabled flag.
func (b *Base) Definitions() []Definition {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]Definition(nil), b.defs...)
}

// Initialize implements Service.
func (b *Base) Initialize(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.initializeLocked(ctx)
}

func (b *Base) initializeLocked(ctx context.Context) error {
	if b.loaded {
		return nil
	}
	if b.onInit != nil {
		if err := b.onInit(ctx); err != nil {
			return fmt.Errorf("initializing %s: %w", b.id, err)
		}
	}
	b.loaded = true
	b.logger.Info("service initialized", "service", b.name)
	return nil
}

// Enable implements Service. An unloaded service is initialized first.
func (b *Base) Enable(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.initializeLocked(ctx); err != nil {
		return err
	}
	b.enabled = true
	b.logger.Info("service enabled", "service", b.name)
	return nil
}

// Disable implements Service.
func (b *Base) Disable() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.enabled = false
	b.logger.Info("service disabled", "service", b.name)
}

// Enabled implements Service.
func (b *Base) Enabled() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.enabled
}

// Loaded implements Service.
func (b *Base) Loaded() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.loaded
}

// HealthCheck implements Service.
func (b *Base) HealthCheck() Health {
	b.mu.RLock()
	defer b.mu.RUnlock()
	status := StatusDisabled
	if b.enabled && b.loaded {
		status = StatusHealthy
	}
	return Health{ID: b.id, Name: b.name, Enabled: b.enabled, Loaded: b.loaded, Status: status}
}

// Execute implements Service.
func (b *Base) Execute(ctx context.Context, toolName string, params json.RawMessage) (any, error) {
	b.mu.RLock()
	h, ok := b.handlers[toolName]
	b.mu.RUnlock()
	if !ok {
		return nil, InvalidParametersf("unknown tool: %s", toolName)
	}
	b.logger.Debug("executing tool", "tool", toolName)
	return h(ctx, params)
}

// ValidateParameters checks that every required field is present and not
// null, returning InvalidParameters naming the first missing one.
func ValidateParameters(params map[string]json.RawMessage, required ...string) error {
	for _, field := range required {
		raw, ok := params[field]
		if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			return InvalidParametersf("missing required parameter: %s", field)
		}
	}
	return nil
}

// Decode validates required fields and unmarshals params into dst.
// Empty params are treated as an empty object.
func Decode(params json.RawMessage, dst any, required ...string) error {
	trimmed := bytes.TrimSpace(params)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		trimmed = []byte("{}")
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return InvalidParameters("parameters must be a JSON object").WithCause(err)
	}
	if err := ValidateParameters(fields, required...); err != nil {
		return err
	}

	if err := json.Unmarshal(trimmed, dst); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return InvalidParametersf("parameter %s must be of type %s", typeErr.Field, typeErr.Type).WithCause(err)
		}
		return InvalidParameters(err.Error()).WithCause(err)
	}
	return nil
}
