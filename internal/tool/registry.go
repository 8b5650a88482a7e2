package tool

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/flemzord/toolcore/internal/audit"
	"github.com/flemzord/toolcore/internal/security"
)

// Registration errors.
var (
	ErrEmptyServiceID   = errors.New("service id must not be empty")
	ErrDuplicateService = errors.New("service already registered")
	ErrDuplicateTool    = errors.New("tool already registered")
)

// Catalog is implemented by services that can list their definitions
// regardless of the enabled flag. Base implements it.
type Catalog interface {
	Definitions() []Definition
}

// Observer receives one observation per dispatched call. code is "ok"
// or the error kind.
type Observer interface {
	ObserveCall(toolName, code string, elapsed time.Duration)
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRateLimiter limits dispatched calls through the "tool_call" bucket.
func WithRateLimiter(rl *security.RateLimiter) RegistryOption {
	return func(r *Registry) { r.limiter = rl }
}

// WithParamLimits bounds the size and nesting of call parameters.
func WithParamLimits(maxBytes, maxDepth int) RegistryOption {
	return func(r *Registry) {
		r.limits = security.PayloadLimits{MaxBytes: maxBytes, MaxDepth: maxDepth}
	}
}

// WithObserver attaches a call observer (metrics).
func WithObserver(o Observer) RegistryOption {
	return func(r *Registry) { r.observer = o }
}

// WithTracer sets the tracer used for per-call spans.
func WithTracer(t trace.Tracer) RegistryOption {
	return func(r *Registry) { r.tracer = t }
}

// WithAudit records calls rejected before they reach a service.
func WithAudit(l *audit.Logger) RegistryOption {
	return func(r *Registry) { r.audit = l }
}

// WithAllowedScopes restricts dispatch to tools whose scope is listed.
// Calls to any other tool are rejected with SERVICE_DISABLED and the tool
// is left out of Definitions. No scopes, the default, allows every tool.
// A tool that declares no scope is treated as ScopeExec.
func WithAllowedScopes(scopes ...Scope) RegistryOption {
	return func(r *Registry) {
		if len(scopes) == 0 {
			r.allowed = nil
			return
		}
		r.allowed = make(map[Scope]bool, len(scopes))
		for _, s := range scopes {
			r.allowed[s] = true
		}
	}
}

// WithLogger sets the registry logger.
func WithLogger(l *slog.Logger) RegistryOption {
	return func(r *Registry) { r.logger = l }
}

// Registry holds the tool services and routes calls by tool name.
// It is instance-based (not global) for better testability.
type Registry struct {
	mu       sync.RWMutex
	services map[string]Service
	order    []string
	byTool   map[string]string
	scopes   map[string]Scope

	allowed  map[Scope]bool
	limiter  *security.RateLimiter
	limits   security.PayloadLimits
	observer Observer
	tracer   trace.Tracer
	audit    *audit.Logger
	logger   *slog.Logger
}

// NewRegistry creates an empty service registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		services: make(map[string]Service),
		byTool:   make(map[string]string),
		scopes:   make(map[string]Scope),
		tracer:   noop.NewTracerProvider().Tracer("toolcore"),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "registry")
	return r
}

// Register adds a service. Tool names must be unique across services.
func (r *Registry) Register(s Service) error {
	id := strings.TrimSpace(s.ID())
	if id == "" {
		return ErrEmptyServiceID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.services[id]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateService, id)
	}

	defs := catalogOf(s)
	for _, def := range defs {
		if owner, exists := r.byTool[def.Name]; exists {
			return fmt.Errorf("%w: %s (owned by %s)", ErrDuplicateTool, def.Name, owner)
		}
	}
	for _, def := range defs {
		r.byTool[def.Name] = id
		r.scopes[def.Name] = def.Scope
	}
	r.services[id] = s
	r.order = append(r.order, id)
	return nil
}

func catalogOf(s Service) []Definition {
	if c, ok := s.(Catalog); ok {
		return c.Definitions()
	}
	return s.Tools()
}

// Get returns the service with the given id, or ServiceNotFound.
func (r *Registry) Get(id string) (Service, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.services[id]
	if !ok {
		return nil, ServiceNotFound(id)
	}
	return s, nil
}

// Services returns the registered services in registration order.
func (r *Registry) Services() []Service {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Service, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.services[id])
	}
	return out
}

// Definitions returns the tools of every enabled service sorted by name,
// leaving out tools whose scope is not allowed.
func (r *Registry) Definitions() []Definition {
	var defs []Definition
	for _, s := range r.Services() {
		for _, def := range s.Tools() {
			if r.scopeAllowed(def.Scope) {
				defs = append(defs, def)
			}
		}
	}
	slices.SortFunc(defs, func(a, b Definition) int {
		return cmp.Compare(a.Name, b.Name)
	})
	return defs
}

// Health returns the health of every service in registration order.
func (r *Registry) Health() []Health {
	services := r.Services()
	out := make([]Health, 0, len(services))
	for _, s := range services {
		out = append(out, s.HealthCheck())
	}
	return out
}

// Execute routes a call: lookup → enabled check → scope check → rate
// limit → parameter bounds → service dispatch. Every returned error is an *Error.
func (r *Registry) Execute(ctx context.Context, toolName string, params json.RawMessage) (any, error) {
	start := time.Now()
	ctx, span := r.tracer.Start(ctx, "tool.execute", trace.WithAttributes(
		attribute.String("tool.name", toolName),
	))
	defer span.End()

	result, err := r.dispatch(ctx, toolName, params)

	code := "ok"
	if err != nil {
		code = string(err.Kind)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Message)
		span.SetAttributes(attribute.String("tool.error_code", code))
		r.logger.Debug("tool call failed", "tool", toolName, "code", code, "error", err)
	}
	if r.observer != nil {
		r.observer.ObserveCall(toolName, code, time.Since(start))
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *Registry) dispatch(ctx context.Context, toolName string, params json.RawMessage) (any, *Error) {
	r.mu.RLock()
	id, ok := r.byTool[toolName]
	s := r.services[id]
	scope := r.scopes[toolName]
	r.mu.RUnlock()

	if !ok {
		return nil, r.reject(toolName, params, ServiceNotFound(toolName))
	}
	if !s.Enabled() {
		return nil, r.reject(toolName, params, ServiceDisabled(s.Name()))
	}
	if !r.scopeAllowed(scope) {
		if scope == "" {
			scope = ScopeExec
		}
		return nil, r.reject(toolName, params, NewError(KindServiceDisabled, "tool scope not allowed",
			fmt.Sprintf("%s requires the %s scope", toolName, scope)))
	}
	if r.limiter != nil {
		if err := r.limiter.Allow(security.BucketToolCall); err != nil {
			return nil, r.reject(toolName, params, APIRateLimit(s.Name()).WithCause(err))
		}
	}
	if err := security.ValidatePayload(params, r.limits); err != nil {
		return nil, r.reject(toolName, params, InvalidParameters(err.Error()).WithCause(err))
	}

	result, err := s.Execute(ctx, toolName, params)
	if err != nil {
		return nil, MapError(err, s.Name())
	}
	return result, nil
}

func (r *Registry) scopeAllowed(s Scope) bool {
	if r.allowed == nil {
		return true
	}
	if s == "" {
		s = ScopeExec
	}
	return r.allowed[s]
}

// reject audits a call that never reached its service.
func (r *Registry) reject(toolName string, params json.RawMessage, err *Error) *Error {
	if r.audit != nil {
		r.audit.RecordToolCall(audit.ToolCall{
			Tool:       toolName,
			Parameters: params,
			Err:        err,
		})
	}
	return err
}
