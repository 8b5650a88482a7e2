// Package tool defines the contract shared by every tool family of the
// execution core: tool definitions surfaced to the model-calling layer,
// the service lifecycle, parameter validation, the error taxonomy, and the
// registry the orchestrator dispatches through.
package tool

import (
	"context"
	"encoding/json"
	"fmt"
)

// Scope declares what kind of access a tool requires.
type Scope string

// Scope values for tool access requirements.
const (
	ScopeReadOnly  Scope = "read_only"
	ScopeReadWrite Scope = "read_write"
	ScopeExec      Scope = "exec"
)

// ParseScope validates a scope name from configuration.
func ParseScope(name string) (Scope, error) {
	switch s := Scope(name); s {
	case ScopeReadOnly, ScopeReadWrite, ScopeExec:
		return s, nil
	}
	return "", fmt.Errorf("unknown scope %q (want %s, %s, or %s)", name, ScopeReadOnly, ScopeReadWrite, ScopeExec)
}

// Definition describes one operation exposed to the model-calling layer.
// It is immutable once registered.
type Definition struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Parameters  Schema `json:"parameters"`
	Scope       Scope  `json:"-"`
}

// Schema is the JSON Schema object describing a tool's parameters.
type Schema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required"`
}

// Property is a single named parameter.
type Property struct {
	Type        string    `json:"type"`
	Description string    `json:"description,omitempty"`
	Default     any       `json:"default,omitempty"`
	Enum        []string  `json:"enum,omitempty"`
	Items       *Property `json:"items,omitempty"`
}

// ObjectSchema builds an object schema. A nil required list is encoded as [].
func ObjectSchema(props map[string]Property, required ...string) Schema {
	if props == nil {
		props = map[string]Property{}
	}
	if required == nil {
		required = []string{}
	}
	return Schema{Type: "object", Properties: props, Required: required}
}

// Handler executes one tool with its raw JSON parameters.
type Handler func(ctx context.Context, params json.RawMessage) (any, error)

// Health is the result of a service health check.
type Health struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
	Loaded  bool   `json:"loaded"`
	Status  string `json:"status"`
}

// Health status values.
const (
	StatusHealthy  = "healthy"
	StatusDisabled = "disabled"
)

// Service is the uniform shape every tool family exposes upward.
type Service interface {
	ID() string
	Name() string
	Description() string

	// Tools returns the definitions visible to the model; empty while disabled.
	Tools() []Definition

	Initialize(ctx context.Context) error
	Enable(ctx context.Context) error
	Disable()
	Enabled() bool
	Loaded() bool
	HealthCheck() Health

	// Execute dispatches toolName to its handler. An unknown name is
	// an InvalidParameters error.
	Execute(ctx context.Context, toolName string, params json.RawMessage) (any, error)
}
