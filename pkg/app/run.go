// Package app builds the toolcore registry from configuration and provides
// the shared entry points of the toolcore binary.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/flemzord/toolcore/internal/audit"
	"github.com/flemzord/toolcore/internal/audit/sqlitesink"
	"github.com/flemzord/toolcore/internal/config"
	"github.com/flemzord/toolcore/internal/metrics"
	"github.com/flemzord/toolcore/internal/pathlock"
	"github.com/flemzord/toolcore/internal/security"
	"github.com/flemzord/toolcore/internal/telemetry"
	"github.com/flemzord/toolcore/internal/tool"
	"github.com/flemzord/toolcore/internal/workspace"
)

// Params configures New.
type Params struct {
	// ConfigPath is an explicit path to the YAML configuration file.
	// If empty, config.Find searches the standard locations and falls
	// back to config.Default().
	ConfigPath string

	// Version is injected at build time via ldflags.
	Version string

	// Workspace and DataDir override the configured values.
	Workspace string
	DataDir   string

	// LogLevel overrides log_level. Empty keeps the configured level.
	LogLevel string

	// LogOutput receives log lines. Defaults to os.Stderr.
	LogOutput io.Writer
}

// App holds the wired components of one toolcore process.
type App struct {
	Config     *config.Config
	ConfigPath string
	Logger     *slog.Logger
	Registry   *tool.Registry
	Metrics    *metrics.Metrics
	Audit      *audit.Logger
	Locks      *pathlock.Mutex
	Workspace  *workspace.Workspace

	telemetry *telemetry.Provider
}

// New loads and validates the configuration, then wires every enabled
// service into a registry. Call Close when done.
func New(ctx context.Context, p Params) (*App, error) {
	cfg, cfgPath, err := config.LoadOrDefault(p.ConfigPath)
	if err != nil {
		return nil, err
	}
	if p.Workspace != "" {
		cfg.Workspace = p.Workspace
	}
	if p.DataDir != "" {
		cfg.DataDir = p.DataDir
	}
	if p.LogLevel != "" {
		cfg.LogLevel = p.LogLevel
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	// Secrets named in the config never reach logs, audit entries, or
	// child environments.
	secrets := config.Secrets(cfg)
	redactor := security.NewRedactor()
	for _, s := range secrets {
		redactor.AddLiteral(s)
	}

	out := p.LogOutput
	if out == nil {
		out = os.Stderr
	}
	logger := slog.New(security.NewRedactingHandler(
		slog.NewTextHandler(out, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}),
		redactor,
	))

	a := &App{Config: cfg, ConfigPath: cfgPath, Logger: logger, Metrics: metrics.New()}
	a.Locks = pathlock.New(pathlock.WithWaitObserver(a.Metrics.ObserveLockWait))

	a.telemetry, err = telemetry.Setup(ctx, cfg.Telemetry.Tracing, p.Version)
	if err != nil {
		return nil, err
	}

	var sink audit.Sink
	if cfg.Audit.SQLite.Enabled {
		s, err := sqlitesink.Open(ctx, cfg.AuditDBPath())
		if err != nil {
			_ = a.telemetry.Shutdown(ctx)
			return nil, err
		}
		sink = s
	}
	a.Audit = audit.New(audit.Config{
		Path:            cfg.AuditPath(),
		MaxSummaryChars: cfg.Audit.MaxSummaryChars,
		MaxDiffChars:    cfg.Audit.MaxDiffChars,
		Redactor:        redactor,
		Sink:            sink,
		Logger:          logger,
	})

	root, err := cfg.WorkspaceRoot()
	if err != nil {
		_ = a.Close(ctx)
		return nil, fmt.Errorf("resolving workspace: %w", err)
	}
	a.Workspace, err = workspace.New(root, cfg.Editor.Protected)
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}

	limiter := security.NewRateLimiter(cfg.Security.RateLimitConfig)
	a.Registry = tool.NewRegistry(
		tool.WithRateLimiter(limiter),
		tool.WithParamLimits(cfg.Security.MaxParamsBytes, cfg.Security.MaxJSONDepth),
		tool.WithAllowedScopes(cfg.Security.Scopes()...),
		tool.WithObserver(a.Metrics),
		tool.WithTracer(a.telemetry.Tracer()),
		tool.WithAudit(a.Audit),
		tool.WithLogger(logger),
	)

	if err := wireServices(ctx, a, limiter, secrets); err != nil {
		_ = a.Close(ctx)
		return nil, err
	}

	logger.Debug("toolcore ready",
		"config", cfgPath,
		"workspace", a.Workspace.Root,
		"services", config.EnabledServices(cfg),
	)
	return a, nil
}

// Close flushes traces and closes the audit trail.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.telemetry != nil {
		if err := a.telemetry.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("telemetry shutdown: %w", err))
		}
	}
	if err := a.Audit.Close(); err != nil {
		errs = append(errs, fmt.Errorf("audit close: %w", err))
	}
	return errors.Join(errs...)
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return slog.LevelInfo
	}
	return level
}
