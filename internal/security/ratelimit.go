package security

import (
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ErrRateLimited is returned when a request exceeds the rate limit.
var ErrRateLimited = errors.New("rate limit exceeded")

// Bucket names understood by RateLimiter.
const (
	BucketToolCall = "tool_call"
	BucketProcess  = "process"
)

// RateLimitConfig holds configurable rate limits. A zero value means the
// default; a negative value disables the bucket.
type RateLimitConfig struct {
	ToolCallsPerMin int `yaml:"tool_calls_per_min"`
	ProcessesPerMin int `yaml:"processes_per_min"`
}

func rateLimitConfigDefaults() RateLimitConfig {
	return RateLimitConfig{
		ToolCallsPerMin: 500,
		ProcessesPerMin: 120,
	}
}

// RateLimiter is a set of named token buckets refilled continuously over
// a one-minute window. Each bucket allows a full minute's budget as burst.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	now     func() time.Time
}

// NewRateLimiter creates a rate limiter with the given config.
// Zero-value fields in cfg are replaced with defaults.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	defaults := rateLimitConfigDefaults()
	if cfg.ToolCallsPerMin == 0 {
		cfg.ToolCallsPerMin = defaults.ToolCallsPerMin
	}
	if cfg.ProcessesPerMin == 0 {
		cfg.ProcessesPerMin = defaults.ProcessesPerMin
	}

	rl := &RateLimiter{
		buckets: make(map[string]*rate.Limiter),
		now:     time.Now,
	}
	rl.setBucket(BucketToolCall, cfg.ToolCallsPerMin)
	rl.setBucket(BucketProcess, cfg.ProcessesPerMin)
	return rl
}

func (rl *RateLimiter) setBucket(name string, perMin int) {
	if perMin < 0 {
		return
	}
	rl.buckets[name] = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMin)), perMin)
}

// Allow checks whether one event of the given kind is allowed.
// Unknown kinds are never limited.
func (rl *RateLimiter) Allow(kind string) error {
	return rl.AllowN(kind, 1)
}

// AllowN checks whether n events of the given kind are allowed. The
// events are consumed only when allowed.
func (rl *RateLimiter) AllowN(kind string, n int) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	lim, ok := rl.buckets[kind]
	if !ok {
		return nil
	}
	if !lim.AllowN(rl.now(), n) {
		return ErrRateLimited
	}
	return nil
}
