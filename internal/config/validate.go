package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/flemzord/toolcore/internal/sandbox"
	"github.com/flemzord/toolcore/internal/tool"
)

var logLevels = []string{"debug", "info", "warn", "error"}

// Validate checks the structural validity of a Config and reports every
// problem at once.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Version == "" {
		errs = append(errs, errors.New("config: version field is required"))
	} else if cfg.Version != "1" {
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: \"1\")", cfg.Version))
	}

	if cfg.Workspace != "" && !filepath.IsAbs(cfg.Workspace) {
		errs = append(errs, fmt.Errorf("config: workspace must be an absolute path, got %q", cfg.Workspace))
	}
	if cfg.LogLevel != "" && !slices.Contains(logLevels, strings.ToLower(cfg.LogLevel)) {
		errs = append(errs, fmt.Errorf("config: log_level %q must be one of %s", cfg.LogLevel, strings.Join(logLevels, ", ")))
	}

	for id := range cfg.Services {
		if !slices.Contains(KnownServices, id) {
			errs = append(errs, fmt.Errorf("config: unknown service %q", id))
		}
	}

	errs = append(errs, validateAudit(cfg.Audit)...)
	errs = append(errs, validateCommand(cfg.Command)...)
	errs = append(errs, validateSandbox(cfg.Sandbox)...)
	errs = append(errs, validateEditor(cfg.Editor)...)
	errs = append(errs, validateSecurity(cfg.Security)...)

	if r := cfg.Telemetry.Tracing.SampleRatio; r < 0 || r > 1 {
		errs = append(errs, fmt.Errorf("config: telemetry.tracing.sample_ratio must be within [0, 1], got %v", r))
	}

	return errors.Join(errs...)
}

func validateAudit(a AuditConfig) []error {
	var errs []error
	if a.MaxSummaryChars < 0 {
		errs = append(errs, errors.New("config: audit.max_summary_chars must not be negative"))
	}
	if a.MaxDiffChars < 0 {
		errs = append(errs, errors.New("config: audit.max_diff_chars must not be negative"))
	}
	return errs
}

func validateCommand(c CommandConfig) []error {
	var errs []error
	for i, name := range c.Allow {
		if name == "" || strings.ContainsAny(name, `/\`) {
			errs = append(errs, fmt.Errorf("config: command.allow[%d]: %q must be a bare executable name", i, name))
		}
	}
	if c.DefaultTimeout < 0 {
		errs = append(errs, errors.New("config: command.default_timeout must not be negative"))
	}
	if c.KillGrace < 0 {
		errs = append(errs, errors.New("config: command.kill_grace must not be negative"))
	}
	if c.MaxOutputBytes < 0 {
		errs = append(errs, errors.New("config: command.max_output_bytes must not be negative"))
	}
	return errs
}

func validateSandbox(s SandboxConfig) []error {
	var errs []error
	if s.DefaultTimeout < 0 || s.DefaultTimeout > sandbox.MaxTimeout {
		errs = append(errs, fmt.Errorf("config: sandbox.default_timeout must be within [0, %s]", sandbox.MaxTimeout))
	}
	if s.KillGrace < 0 {
		errs = append(errs, errors.New("config: sandbox.kill_grace must not be negative"))
	}
	if s.MaxOutputBytes < 0 {
		errs = append(errs, errors.New("config: sandbox.max_output_bytes must not be negative"))
	}
	if s.JavaScript.MaxCallStack < 0 {
		errs = append(errs, errors.New("config: sandbox.javascript.max_call_stack must not be negative"))
	}
	switch s.Python.Isolation {
	case "", sandbox.IsolationProcess, sandbox.IsolationContainer, sandbox.IsolationAuto:
	default:
		errs = append(errs, fmt.Errorf("config: sandbox.python.isolation %q must be one of %s, %s, %s",
			s.Python.Isolation, sandbox.IsolationProcess, sandbox.IsolationContainer, sandbox.IsolationAuto))
	}
	if strings.ContainsAny(s.Python.Binary, " \t") {
		errs = append(errs, fmt.Errorf("config: sandbox.python.binary %q must not contain whitespace", s.Python.Binary))
	}
	return errs
}

func validateEditor(e EditorConfig) []error {
	var errs []error
	if e.DiffMaxChars < 0 {
		errs = append(errs, errors.New("config: editor.diff_max_chars must not be negative"))
	}
	if e.MaxFileBytes < 0 {
		errs = append(errs, errors.New("config: editor.max_file_bytes must not be negative"))
	}
	for i, p := range e.Protected {
		if p == "" || filepath.IsAbs(p) || strings.HasPrefix(filepath.Clean(p), "..") {
			errs = append(errs, fmt.Errorf("config: editor.protected[%d]: %q must be a relative path inside the workspace", i, p))
		}
	}
	return errs
}

func validateSecurity(s SecurityConfig) []error {
	var errs []error
	if s.MaxParamsBytes < 0 {
		errs = append(errs, errors.New("config: security.max_params_bytes must not be negative"))
	}
	if s.MaxJSONDepth < 0 {
		errs = append(errs, errors.New("config: security.max_json_depth must not be negative"))
	}
	for i, name := range s.SecretEnv {
		if name == "" || strings.ContainsAny(name, "= ") {
			errs = append(errs, fmt.Errorf("config: security.secret_env[%d]: %q is not a variable name", i, name))
		}
	}
	for i, name := range s.AllowedScopes {
		if _, err := tool.ParseScope(name); err != nil {
			errs = append(errs, fmt.Errorf("config: security.allowed_scopes[%d]: %w", i, err))
		}
	}
	return errs
}
