package security

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidatePayload_Size(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		size    int
		max     int
		wantErr error
	}{
		{name: "within limit", size: 100, max: 1024},
		{name: "at limit", size: 1024, max: 1024},
		{name: "over limit", size: 1025, max: 1024, wantErr: ErrPayloadTooLarge},
		{name: "zero max uses default", size: 100, max: 0},
		{name: "empty data", size: 0, max: 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			data := []byte(`"` + strings.Repeat("a", max(tt.size-2, 0)) + `"`)
			if tt.size == 0 {
				data = nil
			}
			err := ValidatePayload(data, PayloadLimits{MaxBytes: tt.max})
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestValidatePayload_Depth(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		json    string
		max     int
		wantErr error
	}{
		{name: "flat object", json: `{"key": "value"}`, max: 2},
		{name: "nested within limit", json: `{"a": {"b": {"c": 1}}}`, max: 3},
		{name: "nested over limit", json: `{"a": {"b": {"c": {"d": 1}}}}`, max: 3, wantErr: ErrJSONTooDeep},
		{name: "array nesting", json: `[[[1]]]`, max: 3},
		{name: "array over limit", json: `[[[[1]]]]`, max: 3, wantErr: ErrJSONTooDeep},
		{name: "whitespace only", json: "  \n", max: 1},
		{name: "zero max uses default", json: `{"key": "value"}`, max: 0},
		{name: "malformed", json: `{"key": }`, max: 4, wantErr: ErrInvalidJSON},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := ValidatePayload([]byte(tt.json), PayloadLimits{MaxDepth: tt.max})
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestValidatePayload_DeepNesting(t *testing.T) {
	t.Parallel()

	depth := 50
	var sb strings.Builder
	for range depth {
		sb.WriteString(`{"a":`)
	}
	sb.WriteString("1")
	for range depth {
		sb.WriteString("}")
	}

	assert.ErrorIs(t, ValidatePayload([]byte(sb.String()), PayloadLimits{MaxDepth: 32}), ErrJSONTooDeep)
}

func BenchmarkValidatePayload(b *testing.B) {
	data := []byte(`{"path": "src/app.ts", "find": "foo", "replace": "bar", "options": {"isRegex": false}}`)
	b.ResetTimer()
	for range b.N {
		_ = ValidatePayload(data, PayloadLimits{})
	}
}
