// Package securitytest provides test doubles for the security package.
package securitytest

import (
	"github.com/flemzord/toolcore/internal/security"
)

// NewTestRedactor creates a Redactor with no patterns for testing.
// This avoids false positives in tests that use strings matching
// production secret patterns.
func NewTestRedactor(literals ...string) *security.Redactor {
	r := &security.Redactor{}
	for _, lit := range literals {
		r.AddLiteral(lit)
	}
	return r
}

// NewTestRateLimiter creates a limiter whose tool-call bucket holds
// exactly toolCalls tokens. The process bucket is disabled.
func NewTestRateLimiter(toolCalls int) *security.RateLimiter {
	return security.NewRateLimiter(security.RateLimitConfig{
		ToolCallsPerMin: toolCalls,
		ProcessesPerMin: -1,
	})
}
