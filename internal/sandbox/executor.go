package sandbox

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/flemzord/toolcore/internal/audit"
	"github.com/flemzord/toolcore/internal/metrics"
	"github.com/flemzord/toolcore/internal/process"
	"github.com/flemzord/toolcore/internal/security"
	"github.com/flemzord/toolcore/internal/tool"
)

// Timeout bounds.
const (
	DefaultTimeout = 30 * time.Second
	MaxTimeout     = 5 * time.Minute
)

// Config configures an Executor.
type Config struct {
	DefaultTimeout time.Duration
	KillGrace      time.Duration
	MaxOutputBytes int

	MaxCallStack int
	Python       PythonConfig

	// Limiter, if non-nil, throttles strategies that spawn processes.
	Limiter *security.RateLimiter

	Audit   *audit.Logger
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Request is one execute_code call. Timeout is in milliseconds.
type Request struct {
	Language string `json:"language"`
	Code     string `json:"code"`
	Timeout  *int64 `json:"timeout,omitempty"`
}

// Result wraps an Outcome with the language and elapsed milliseconds.
type Result struct {
	Success       bool     `json:"success"`
	Language      Language `json:"language"`
	Output        string   `json:"output"`
	Error         string   `json:"error,omitempty"`
	Truncated     bool     `json:"truncated,omitempty"`
	ExecutionTime int64    `json:"executionTime"`
}

// Executor selects a strategy by language and runs it under a timeout.
type Executor struct {
	strategies     map[Language]Strategy
	defaultTimeout time.Duration
	limiter        *security.RateLimiter
	audit          *audit.Logger
	metrics        *metrics.Metrics
	logger         *slog.Logger
}

// New builds an Executor with the JavaScript and Python strategies.
func New(cfg Config) (*Executor, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	maxOutput := cfg.MaxOutputBytes
	if maxOutput <= 0 {
		maxOutput = process.DefaultMaxOutputBytes
	}
	py, err := newPythonStrategy(cfg.Python, cfg.KillGrace, maxOutput, cfg.Logger.With("component", "sandbox"))
	if err != nil {
		return nil, fmt.Errorf("sandbox: %w", err)
	}
	return NewWithStrategies(cfg, newJSStrategy(cfg.MaxCallStack, maxOutput), py), nil
}

// NewWithStrategies builds an Executor over explicit strategies.
func NewWithStrategies(cfg Config, strategies ...Strategy) *Executor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	e := &Executor{
		strategies:     make(map[Language]Strategy, len(strategies)),
		defaultTimeout: cfg.DefaultTimeout,
		limiter:        cfg.Limiter,
		audit:          cfg.Audit,
		metrics:        cfg.Metrics,
		logger:         logger.With("component", "sandbox"),
	}
	if e.defaultTimeout <= 0 {
		e.defaultTimeout = DefaultTimeout
	}
	for _, s := range strategies {
		e.strategies[s.Language()] = s
	}
	return e
}

// Execute validates req before touching any strategy, runs the code, and
// audits the call. A guest failure or timeout is a Result with Success
// false, not an error.
func (e *Executor) Execute(ctx context.Context, req Request) (*Result, error) {
	res, err := e.execute(ctx, req)
	call := audit.ToolCall{Tool: ToolName, Parameters: req}
	if err != nil {
		call.Err = err
	} else {
		call.Result = res
	}
	e.audit.RecordToolCall(call)
	return res, err
}

func (e *Executor) execute(ctx context.Context, req Request) (*Result, error) {
	if req.Language == "" {
		return nil, tool.InvalidParameters("missing required parameter: language")
	}
	if req.Code == "" {
		return nil, tool.InvalidParameters("missing required parameter: code")
	}
	lang, err := ParseLanguage(req.Language)
	if err != nil {
		return nil, tool.InvalidParameters(err.Error())
	}
	strategy, ok := e.strategies[lang]
	if !ok {
		return nil, tool.InvalidParametersf("unsupported language: %s", req.Language)
	}

	timeout := e.defaultTimeout
	if req.Timeout != nil {
		switch ms := *req.Timeout; {
		case ms < 0:
			return nil, tool.InvalidParameters("timeout must not be negative")
		case ms > MaxTimeout.Milliseconds():
			return nil, tool.InvalidParametersf("timeout must be at most %d ms", MaxTimeout.Milliseconds())
		case ms > 0:
			timeout = time.Duration(ms) * time.Millisecond
		}
	}

	if strategy.Spawns() && e.limiter != nil {
		if err := e.limiter.Allow(security.BucketProcess); err != nil {
			return nil, tool.APIRateLimit(ServiceID).WithCause(err)
		}
	}

	e.logger.Info("executing code", "language", lang, "timeout", timeout)
	start := time.Now()
	out, err := strategy.Run(ctx, req.Code, timeout)
	elapsed := time.Since(start)
	if err != nil {
		e.metrics.ObserveSandbox(lang.String(), metrics.OutcomeFailed)
		return nil, err
	}

	e.metrics.ObserveSandbox(lang.String(), sandboxOutcome(out, timeout))
	return &Result{
		Success:       out.Success,
		Language:      lang,
		Output:        out.Output,
		Error:         out.Error,
		Truncated:     out.Truncated,
		ExecutionTime: elapsed.Milliseconds(),
	}, nil
}

func sandboxOutcome(o Outcome, timeout time.Duration) string {
	switch {
	case o.Success:
		return metrics.OutcomeOK
	case o.Error == timeoutMessage(timeout):
		return metrics.OutcomeTimeout
	case o.Error == canceledMessage:
		return metrics.OutcomeCanceled
	default:
		return metrics.OutcomeFailed
	}
}
