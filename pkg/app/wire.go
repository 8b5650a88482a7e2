package app

import (
	"context"
	"fmt"

	"github.com/flemzord/toolcore/internal/command"
	"github.com/flemzord/toolcore/internal/devtools"
	"github.com/flemzord/toolcore/internal/editor"
	"github.com/flemzord/toolcore/internal/sandbox"
	"github.com/flemzord/toolcore/internal/security"
	"github.com/flemzord/toolcore/internal/tool"
)

// wireServices builds every service, registers it, and enables the ones
// the configuration turns on. Disabled services stay registered so
// health reports them and their calls fail with SERVICE_DISABLED.
func wireServices(ctx context.Context, a *App, limiter *security.RateLimiter, secrets []string) error {
	cfg := a.Config
	logger := a.Logger

	ed, err := editor.New(editor.Config{
		Workspace:    a.Workspace,
		Locks:        a.Locks,
		DiffMaxChars: cfg.Editor.DiffMaxChars,
		MaxFileBytes: cfg.Editor.MaxFileBytes,
		Audit:        a.Audit,
		Metrics:      a.Metrics,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	runner, err := command.NewRunner(command.Config{
		Workspace:      a.Workspace,
		Allow:          cfg.Command.Allow,
		DefaultTimeout: cfg.Command.DefaultTimeout,
		KillGrace:      cfg.Command.KillGrace,
		MaxOutputBytes: cfg.Command.MaxOutputBytes,
		SanitizeEnv:    cfg.Command.SanitizeEnv,
		Secrets:        secrets,
		Limiter:        limiter,
		Audit:          a.Audit,
		Metrics:        a.Metrics,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	exec, err := sandbox.New(sandbox.Config{
		DefaultTimeout: cfg.Sandbox.DefaultTimeout,
		KillGrace:      cfg.Sandbox.KillGrace,
		MaxOutputBytes: cfg.Sandbox.MaxOutputBytes,
		MaxCallStack:   cfg.Sandbox.JavaScript.MaxCallStack,
		Python:         cfg.Sandbox.Python,
		Limiter:        limiter,
		Audit:          a.Audit,
		Metrics:        a.Metrics,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	services := []tool.Service{
		editor.NewService(ed, logger),
		command.NewService(runner, logger),
		sandbox.NewService(exec, logger),
		devtools.NewTestRunner(runner, a.Audit, logger),
		devtools.NewLinterFormatter(runner, a.Audit, logger),
	}
	for _, s := range services {
		if err := a.Registry.Register(s); err != nil {
			return fmt.Errorf("registering %s: %w", s.ID(), err)
		}
		if !cfg.Enabled(s.ID()) {
			if err := s.Initialize(ctx); err != nil {
				return fmt.Errorf("initializing %s: %w", s.ID(), err)
			}
			continue
		}
		if err := s.Enable(ctx); err != nil {
			return fmt.Errorf("enabling %s: %w", s.ID(), err)
		}
	}
	return nil
}
