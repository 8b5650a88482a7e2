// Package tooltest provides test helpers and mocks for the tool package.
package tooltest

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/flemzord/toolcore/internal/tool"
)

// MockService is a configurable tool.Service built on tool.Base. Every
// tool it declares answers through ExecuteFunc.
type MockService struct {
	*tool.Base

	// ExecuteFunc handles every call. Nil returns {"ok":true}.
	ExecuteFunc func(ctx context.Context, toolName string, params json.RawMessage) (any, error)

	mu    sync.Mutex
	Calls []Call
}

// Call records one dispatched invocation.
type Call struct {
	Tool   string
	Params json.RawMessage
}

// NewMockService creates a disabled service with id and one read-only
// tool per name.
func NewMockService(id string, toolNames ...string) *MockService {
	return NewScopedMockService(id, tool.ScopeReadOnly, toolNames...)
}

// NewScopedMockService is NewMockService with every tool declaring scope.
func NewScopedMockService(id string, scope tool.Scope, toolNames ...string) *MockService {
	m := &MockService{Base: tool.NewBase(tool.BaseConfig{
		ID:          id,
		Name:        "Mock " + id,
		Description: "a mock service",
	})}
	for _, name := range toolNames {
		m.Handle(tool.Definition{
			Name:        name,
			Description: "mock tool " + name,
			Parameters:  tool.ObjectSchema(nil),
			Scope:       scope,
		}, func(ctx context.Context, params json.RawMessage) (any, error) {
			return m.execute(ctx, name, params)
		})
	}
	return m
}

// Enabled creates a mock service and enables it.
func Enabled(id string, toolNames ...string) *MockService {
	m := NewMockService(id, toolNames...)
	if err := m.Enable(context.Background()); err != nil {
		panic(err)
	}
	return m
}

func (m *MockService) execute(ctx context.Context, name string, params json.RawMessage) (any, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, Call{Tool: name, Params: params})
	m.mu.Unlock()

	if m.ExecuteFunc != nil {
		return m.ExecuteFunc(ctx, name, params)
	}
	return map[string]bool{"ok": true}, nil
}

// CallCount returns the number of dispatched calls.
func (m *MockService) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}
