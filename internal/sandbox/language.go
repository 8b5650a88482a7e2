package sandbox

import (
	"fmt"
	"strings"
)

// Language selects an isolation strategy.
type Language string

// Supported guest languages.
const (
	JavaScript Language = "javascript"
	Python     Language = "python"
)

// Languages lists the canonical names in schema order.
var Languages = []Language{JavaScript, Python}

// ParseLanguage maps a language name or alias to its canonical value.
func ParseLanguage(name string) (Language, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "javascript", "js", "node":
		return JavaScript, nil
	case "python", "py":
		return Python, nil
	default:
		return "", fmt.Errorf("unsupported language: %s", name)
	}
}

func (l Language) String() string { return string(l) }
