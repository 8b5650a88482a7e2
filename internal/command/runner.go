// Package command runs allow-listed developer commands inside the
// workspace and exposes them as the run_command tool.
package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/flemzord/toolcore/internal/audit"
	"github.com/flemzord/toolcore/internal/metrics"
	"github.com/flemzord/toolcore/internal/process"
	"github.com/flemzord/toolcore/internal/security"
	"github.com/flemzord/toolcore/internal/tool"
	"github.com/flemzord/toolcore/internal/workspace"
)

// DefaultTimeout bounds a command when the call gives no timeout.
const DefaultTimeout = 5 * time.Minute

// DefaultAllow is the stock set of runnable executables.
var DefaultAllow = []string{
	"pnpm", "npm", "node", "vitest", "jest", "eslint", "prettier", "playwright", "git",
}

// Config configures a Runner.
type Config struct {
	Workspace *workspace.Workspace

	// Allow lists the executable names that may be run. Nil means
	// DefaultAllow.
	Allow []string

	DefaultTimeout time.Duration
	KillGrace      time.Duration
	MaxOutputBytes int

	// SanitizeEnv starts children from security.SanitizedEnv instead of
	// the full host environment.
	SanitizeEnv bool
	Secrets     []string

	// Limiter, if non-nil, throttles spawns through the process bucket.
	Limiter *security.RateLimiter

	Audit   *audit.Logger
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Invocation is one run_command request.
type Invocation struct {
	Cmd       string            `json:"cmd"`
	Args      []string          `json:"args,omitempty"`
	Cwd       string            `json:"cwd,omitempty"`
	TimeoutMs *int64            `json:"timeoutMs,omitempty"`
	Env       map[string]string `json:"env,omitempty"`
	DryRun    bool              `json:"dryRun,omitempty"`
}

// Preview is returned instead of running when DryRun is set.
type Preview struct {
	Preview   bool     `json:"preview"`
	Cmd       string   `json:"cmd"`
	Args      []string `json:"args"`
	Cwd       string   `json:"cwd"`
	TimeoutMs int64    `json:"timeoutMs"`
}

// Result is the outcome of a command that was started. A non-zero exit is
// a normal result with Success false.
type Result struct {
	Success    bool   `json:"success"`
	Code       int    `json:"code"`
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	TimedOut   bool   `json:"timedOut,omitempty"`
	Truncated  bool   `json:"truncated,omitempty"`
	DurationMs int64  `json:"durationMs"`
}

// auditParams is what the trail records for every call.
type auditParams struct {
	Cmd  string   `json:"cmd"`
	Args []string `json:"args"`
	Cwd  string   `json:"cwd"`
}

// Runner validates and runs commands.
type Runner struct {
	ws             *workspace.Workspace
	allow          []string
	defaultTimeout time.Duration
	killGrace      time.Duration
	maxOutput      int
	sanitizeEnv    bool
	secrets        []string
	limiter        *security.RateLimiter
	audit          *audit.Logger
	metrics        *metrics.Metrics
	logger         *slog.Logger
}

// NewRunner creates a Runner. A workspace is required.
func NewRunner(cfg Config) (*Runner, error) {
	if cfg.Workspace == nil {
		return nil, errors.New("command: workspace is required")
	}
	allow := cfg.Allow
	if allow == nil {
		allow = DefaultAllow
	}
	for _, name := range allow {
		if err := checkName(name); err != nil {
			return nil, fmt.Errorf("command: allow-list entry %q: %w", name, err)
		}
	}
	r := &Runner{
		ws:             cfg.Workspace,
		allow:          slices.Clone(allow),
		defaultTimeout: cfg.DefaultTimeout,
		killGrace:      cfg.KillGrace,
		maxOutput:      cfg.MaxOutputBytes,
		sanitizeEnv:    cfg.SanitizeEnv,
		secrets:        cfg.Secrets,
		limiter:        cfg.Limiter,
		audit:          cfg.Audit,
		metrics:        cfg.Metrics,
		logger:         cfg.Logger,
	}
	if r.defaultTimeout <= 0 {
		r.defaultTimeout = DefaultTimeout
	}
	if r.maxOutput <= 0 {
		r.maxOutput = process.DefaultMaxOutputBytes
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	r.logger = r.logger.With("component", "command")
	return r, nil
}

// Allowed returns a copy of the allow-list.
func (r *Runner) Allowed() []string {
	return slices.Clone(r.allow)
}

// plan is a validated invocation.
type plan struct {
	cmd     string
	args    []string
	dir     string
	timeout time.Duration
	env     []string
}

// Run validates inv, then either returns a Preview (dry run) or runs the
// command and returns a Result. Every outcome, including rejections, is
// audited under toolName.
func (r *Runner) Run(ctx context.Context, toolName string, inv Invocation) (any, error) {
	params := auditParams{Cmd: inv.Cmd, Args: inv.Args, Cwd: inv.Cwd}
	out, err := r.run(ctx, inv)
	if err != nil {
		r.audit.RecordToolCall(audit.ToolCall{Tool: toolName, Parameters: params, Err: err})
		return nil, err
	}
	r.audit.RecordToolCall(audit.ToolCall{Tool: toolName, Parameters: params, Result: out})
	return out, nil
}

func (r *Runner) run(ctx context.Context, inv Invocation) (any, error) {
	p, err := r.plan(inv)
	if err != nil {
		return nil, err
	}

	if inv.DryRun {
		r.metrics.ObserveProcess(p.cmd, metrics.OutcomePreview, 0)
		return &Preview{
			Preview:   true,
			Cmd:       p.cmd,
			Args:      p.args,
			Cwd:       p.dir,
			TimeoutMs: p.timeout.Milliseconds(),
		}, nil
	}

	if r.limiter != nil {
		if err := r.limiter.Allow(security.BucketProcess); err != nil {
			return nil, tool.APIRateLimit(ServiceID).WithCause(err)
		}
	}

	r.logger.Debug("running command", "cmd", p.cmd, "args", p.args, "cwd", p.dir)
	res, err := process.Run(ctx, process.Spec{
		Path:           p.cmd,
		Args:           p.args,
		Dir:            p.dir,
		Env:            p.env,
		Timeout:        p.timeout,
		KillGrace:      r.killGrace,
		MaxOutputBytes: r.maxOutput,
	})
	if err != nil {
		r.metrics.ObserveProcess(p.cmd, metrics.OutcomeFailed, 0)
		return nil, tool.InternalError("command execution failed: " + startMessage(err)).WithCause(err)
	}

	r.metrics.ObserveProcess(p.cmd, outcome(res), res.Duration)
	if res.TimedOut {
		r.logger.Warn("command timed out", "cmd", p.cmd, "timeout", p.timeout)
	}
	return &Result{
		Success:    res.Success(),
		Code:       res.ExitCode,
		Stdout:     res.Stdout,
		Stderr:     res.Stderr,
		TimedOut:   res.TimedOut,
		Truncated:  res.Truncated,
		DurationMs: res.Duration.Milliseconds(),
	}, nil
}

func (r *Runner) plan(inv Invocation) (plan, error) {
	if inv.Cmd == "" {
		return plan{}, tool.InvalidParameters("missing required parameter: cmd")
	}
	if err := checkName(inv.Cmd); err != nil || !slices.Contains(r.allow, inv.Cmd) {
		return plan{}, tool.InvalidParametersf("command not in allow-list: %s", inv.Cmd)
	}

	for i, arg := range inv.Args {
		if strings.ContainsRune(arg, 0) {
			return plan{}, tool.InvalidParametersf("argument %d contains a NUL byte", i)
		}
	}

	dir := r.ws.Root
	if inv.Cwd != "" {
		resolved, err := r.ws.Resolve(inv.Cwd)
		if err != nil {
			return plan{}, tool.InvalidParametersf("invalid cwd: %v", err).WithCause(err)
		}
		dir = resolved
	}

	timeout := r.defaultTimeout
	if inv.TimeoutMs != nil {
		if *inv.TimeoutMs < 0 {
			return plan{}, tool.InvalidParameters("timeoutMs must not be negative")
		}
		if *inv.TimeoutMs > 0 {
			timeout = time.Duration(*inv.TimeoutMs) * time.Millisecond
		}
	}

	base := os.Environ()
	if r.sanitizeEnv {
		base = security.SanitizedEnv(r.secrets)
	}
	env, err := security.MergeEnv(base, inv.Env)
	if err != nil {
		return plan{}, tool.InvalidParameters(err.Error()).WithCause(err)
	}

	args := inv.Args
	if args == nil {
		args = []string{}
	}
	return plan{cmd: inv.Cmd, args: args, dir: dir, timeout: timeout, env: env}, nil
}

// checkName rejects names that are not in NFKC normal form or that carry
// a path, so lookalike or qualified names never match an entry.
func checkName(name string) error {
	if name == "" {
		return errors.New("empty command name")
	}
	if !norm.NFKC.IsNormalString(name) {
		return errors.New("command name is not NFKC-normalized")
	}
	if strings.ContainsAny(name, `/\`) || filepath.Base(name) != name {
		return errors.New("command name must not contain a path")
	}
	return nil
}

func startMessage(err error) string {
	var se *process.StartError
	if errors.As(err, &se) {
		if se.NotFound() {
			return fmt.Sprintf("%s: executable not found in PATH", se.Path)
		}
		return se.Err.Error()
	}
	return err.Error()
}

func outcome(res process.Result) string {
	switch {
	case res.TimedOut:
		return metrics.OutcomeTimeout
	case res.Canceled:
		return metrics.OutcomeCanceled
	case res.Success():
		return metrics.OutcomeOK
	default:
		return metrics.OutcomeFailed
	}
}
