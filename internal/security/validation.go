package security

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Payload limits applied to tool-call parameters.
const (
	DefaultMaxPayloadBytes = 1 << 20 // 1 MiB
	DefaultMaxJSONDepth    = 32
)

// Validation errors.
var (
	ErrPayloadTooLarge = errors.New("parameters exceed maximum size")
	ErrJSONTooDeep     = errors.New("JSON nesting exceeds maximum depth")
	ErrInvalidJSON     = errors.New("invalid JSON")
)

// PayloadLimits bounds an incoming JSON payload. Zero fields use defaults.
type PayloadLimits struct {
	MaxBytes int
	MaxDepth int
}

// ValidatePayload checks size first, then nesting depth, so oversized
// input is rejected without being tokenized. Empty data is valid.
func ValidatePayload(data []byte, limits PayloadLimits) error {
	maxBytes := limits.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxPayloadBytes
	}
	if len(data) > maxBytes {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrPayloadTooLarge, len(data), maxBytes)
	}
	return validateJSONDepth(data, limits.MaxDepth)
}

func validateJSONDepth(data []byte, limit int) error {
	if limit <= 0 {
		limit = DefaultMaxJSONDepth
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	depth := 0
	for {
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("%w: %w", ErrInvalidJSON, err)
		}

		switch tok {
		case json.Delim('{'), json.Delim('['):
			depth++
			if depth > limit {
				return fmt.Errorf("%w: depth %d (max %d)", ErrJSONTooDeep, depth, limit)
			}
		case json.Delim('}'), json.Delim(']'):
			depth--
		}
	}
}
