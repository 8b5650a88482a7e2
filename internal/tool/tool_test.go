package tool

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScope_Constants(t *testing.T) {
	t.Parallel()

	scopes := []Scope{ScopeReadOnly, ScopeReadWrite, ScopeExec}
	want := []string{"read_only", "read_write", "exec"}

	for i, s := range scopes {
		assert.Equal(t, want[i], string(s))
	}
}

func TestParseScope(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"read_only", "read_write", "exec"} {
		s, err := ParseScope(name)
		require.NoError(t, err)
		assert.Equal(t, Scope(name), s)
	}

	_, err := ParseScope("admin")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"admin"`)
}

func TestDefinition_JSONShape(t *testing.T) {
	t.Parallel()

	def := Definition{
		Name:        "fs_read_file",
		Description: "Read a file",
		Parameters: ObjectSchema(map[string]Property{
			"path": {Type: "string", Description: "File path"},
		}, "path"),
		Scope: ScopeReadOnly,
	}
	raw, err := json.Marshal(def)
	require.NoError(t, err)
	assert.Equal(t,
		`{"name":"fs_read_file","description":"Read a file","parameters":{"type":"object","properties":{"path":{"type":"string","description":"File path"}},"required":["path"]}}`,
		string(raw))

	raw, err = json.Marshal(ObjectSchema(nil))
	require.NoError(t, err)
	assert.Equal(t, `{"type":"object","properties":{},"required":[]}`, string(raw))
}

func newTestBase(initErr error) *Base {
	b := NewBase(BaseConfig{
		ID:   "svc",
		Name: "Test Service",
		OnInitialize: func(context.Context) error {
			return initErr
		},
	})
	b.Handle(Definition{Name: "echo", Parameters: ObjectSchema(nil)}, func(_ context.Context, params json.RawMessage) (any, error) {
		return string(params), nil
	})
	return b
}

func TestBase_Lifecycle(t *testing.T) {
	t.Parallel()

	b := newTestBase(nil)
	require.False(t, b.Enabled(), "a new service must be disabled")
	require.False(t, b.Loaded(), "a new service must be unloaded")
	assert.Empty(t, b.Tools(), "a disabled service exposes no tools")
	assert.Len(t, b.Definitions(), 1, "Definitions lists tools regardless of the enabled flag")
	assert.Equal(t, StatusDisabled, b.HealthCheck().Status)

	require.NoError(t, b.Initialize(context.Background()))
	assert.True(t, b.Loaded())
	assert.False(t, b.Enabled(), "Initialize loads without enabling")

	require.NoError(t, b.Enable(context.Background()))
	h := b.HealthCheck()
	assert.Equal(t, StatusHealthy, h.Status)
	assert.True(t, h.Enabled)
	assert.True(t, h.Loaded)
	assert.Equal(t, "svc", h.ID)
	assert.Len(t, b.Tools(), 1, "an enabled service exposes its tools")

	b.Disable()
	assert.False(t, b.Enabled())
	assert.True(t, b.Loaded(), "Disable toggles visibility only")
}

func TestBase_EnableFailsWhenInitializeFails(t *testing.T) {
	t.Parallel()

	b := newTestBase(errors.New("no interpreter"))
	require.Error(t, b.Enable(context.Background()))
	assert.False(t, b.Enabled())
	assert.False(t, b.Loaded(), "a failed initialization leaves the service unloaded")
}

func TestBase_Execute(t *testing.T) {
	t.Parallel()

	b := newTestBase(nil)
	out, err := b.Execute(context.Background(), "echo", json.RawMessage(`{"a":1}`))
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, out)

	_, err = b.Execute(context.Background(), "nope", nil)
	assert.ErrorIs(t, err, ErrInvalidParameters)
}

func TestBase_HandlePanicsOnDuplicate(t *testing.T) {
	t.Parallel()

	b := newTestBase(nil)
	assert.Panics(t, func() {
		b.Handle(Definition{Name: "echo"}, func(context.Context, json.RawMessage) (any, error) { return nil, nil })
	})
}

func TestValidateParameters(t *testing.T) {
	t.Parallel()

	params := map[string]json.RawMessage{
		"path":    json.RawMessage(`"a.txt"`),
		"content": json.RawMessage(`null`),
	}
	require.NoError(t, ValidateParameters(params, "path"))

	err := ValidateParameters(params, "path", "content", "find")
	require.ErrorIs(t, err, ErrInvalidParameters)
	var te *Error
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "missing required parameter: content", te.Details, "details name the first missing field")
}

func TestDecode(t *testing.T) {
	t.Parallel()

	var dst struct {
		Path   string `json:"path"`
		DryRun bool   `json:"dryRun"`
	}
	require.NoError(t, Decode(json.RawMessage(`{"path":"a","dryRun":true}`), &dst, "path"))
	assert.Equal(t, "a", dst.Path)
	assert.True(t, dst.DryRun)

	tests := []struct {
		name   string
		params string
		want   string
	}{
		{"not an object", `[1,2]`, "parameters must be a JSON object"},
		{"missing", `{}`, "missing required parameter: path"},
		{"wrong type", `{"path":"a","dryRun":"yes"}`, "parameter dryRun must be of type bool"},
	}
	for _, tt := range tests {
		err := Decode(json.RawMessage(tt.params), &dst, "path")
		var te *Error
		require.ErrorAs(t, err, &te, tt.name)
		assert.Equal(t, KindInvalidParameters, te.Kind, tt.name)
		assert.Equal(t, tt.want, te.Details, tt.name)
	}

	assert.NoError(t, Decode(nil, &dst), "empty params are an empty object")
}
