// Package config handles YAML configuration loading, environment variable
// expansion, and structural validation for toolcore.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/flemzord/toolcore/internal/sandbox"
	"github.com/flemzord/toolcore/internal/security"
	"github.com/flemzord/toolcore/internal/telemetry"
	"github.com/flemzord/toolcore/internal/tool"
)

// Config is the top-level configuration structure.
type Config struct {
	// Version is the config format version. Currently only "1" is supported.
	Version string `yaml:"version"`

	// Workspace is the root every file and command operation is confined
	// to. Empty means the current directory.
	Workspace string `yaml:"workspace"`

	// DataDir holds the audit trail and database. Empty means
	// $XDG_DATA_HOME/toolcore.
	DataDir string `yaml:"data_dir"`

	LogLevel string `yaml:"log_level"`

	Audit     AuditConfig       `yaml:"audit"`
	Command   CommandConfig     `yaml:"command"`
	Sandbox   SandboxConfig     `yaml:"sandbox"`
	Editor    EditorConfig      `yaml:"editor"`
	Security  SecurityConfig    `yaml:"security"`
	Telemetry TelemetryConfig   `yaml:"telemetry"`
	Services  map[string]Toggle `yaml:"services"`
}

// AuditConfig configures the audit trail.
type AuditConfig struct {
	// Path is the JSONL file. Empty means <data_dir>/audit/tool-audit.jsonl.
	Path            string       `yaml:"path"`
	MaxSummaryChars int          `yaml:"max_summary_chars"`
	MaxDiffChars    int          `yaml:"max_diff_chars"`
	SQLite          SQLiteConfig `yaml:"sqlite"`
}

// SQLiteConfig enables the SQLite mirror of the audit trail.
type SQLiteConfig struct {
	Enabled bool `yaml:"enabled"`
	// Path defaults to <data_dir>/audit.db.
	Path string `yaml:"path"`
}

// CommandConfig configures run_command.
type CommandConfig struct {
	Allow          []string      `yaml:"allow"`
	DefaultTimeout time.Duration `yaml:"default_timeout"`
	KillGrace      time.Duration `yaml:"kill_grace"`
	MaxOutputBytes int           `yaml:"max_output_bytes"`
	SanitizeEnv    bool          `yaml:"sanitize_env"`
}

// SandboxConfig configures execute_code.
type SandboxConfig struct {
	DefaultTimeout time.Duration        `yaml:"default_timeout"`
	KillGrace      time.Duration        `yaml:"kill_grace"`
	MaxOutputBytes int                  `yaml:"max_output_bytes"`
	JavaScript     JavaScriptConfig     `yaml:"javascript"`
	Python         sandbox.PythonConfig `yaml:"python"`
}

// JavaScriptConfig configures the in-process interpreter.
type JavaScriptConfig struct {
	MaxCallStack int `yaml:"max_call_stack"`
}

// EditorConfig configures the file tools.
type EditorConfig struct {
	DiffMaxChars int   `yaml:"diff_max_chars"`
	MaxFileBytes int64 `yaml:"max_file_bytes"`
	// Protected lists workspace-relative paths that cannot be written.
	// Nil means workspace.DefaultProtected.
	Protected []string `yaml:"protected"`
}

// SecurityConfig holds rate limits, payload limits, and secret handling.
type SecurityConfig struct {
	security.RateLimitConfig `yaml:",inline"`

	MaxParamsBytes int `yaml:"max_params_bytes"`
	MaxJSONDepth   int `yaml:"max_json_depth"`

	// SecretEnv names environment variables whose values are redacted
	// from logs, audit entries, and child environments.
	SecretEnv []string `yaml:"secret_env"`

	// AllowedScopes limits which tools may be called by the access they
	// need (read_only, read_write, exec). Empty allows all of them.
	AllowedScopes []string `yaml:"allowed_scopes"`
}

// Scopes returns AllowedScopes as tool scopes. Unknown names are
// skipped; Validate reports them.
func (s SecurityConfig) Scopes() []tool.Scope {
	var out []tool.Scope
	for _, name := range s.AllowedScopes {
		if scope, err := tool.ParseScope(name); err == nil {
			out = append(out, scope)
		}
	}
	return out
}

// TelemetryConfig configures tracing.
type TelemetryConfig struct {
	Tracing telemetry.Config `yaml:"tracing"`
}

// Toggle enables or disables one service.
type Toggle struct {
	Enabled bool `yaml:"enabled"`
}

// Service IDs known to the configuration.
const (
	ServiceEditor  = "code_editor"
	ServiceCommand = "command_runner"
	ServiceSandbox = "sandbox"
	ServiceTests   = "test_runner"
	ServiceLinter  = "linter_formatter"
)

// KnownServices lists every configurable service ID.
var KnownServices = []string{ServiceEditor, ServiceCommand, ServiceSandbox, ServiceTests, ServiceLinter}

// Default returns a configuration that works without a file.
func Default() *Config {
	return &Config{
		Version:  "1",
		LogLevel: "info",
		Audit: AuditConfig{
			MaxSummaryChars: 800,
			MaxDiffChars:    400,
		},
		Command: CommandConfig{
			DefaultTimeout: 5 * time.Minute,
			KillGrace:      time.Second,
			MaxOutputBytes: 1 << 20,
		},
		Sandbox: SandboxConfig{
			DefaultTimeout: 30 * time.Second,
			KillGrace:      time.Second,
			MaxOutputBytes: 1 << 20,
			JavaScript:     JavaScriptConfig{MaxCallStack: 512},
			Python: sandbox.PythonConfig{
				Binary:    sandbox.DefaultPythonBinary,
				Isolation: sandbox.IsolationContainer,
			},
		},
		Editor: EditorConfig{
			DiffMaxChars: 1200,
			MaxFileBytes: 10 << 20,
		},
		Security: SecurityConfig{
			RateLimitConfig: security.RateLimitConfig{ToolCallsPerMin: 500, ProcessesPerMin: 120},
			MaxParamsBytes:  security.DefaultMaxPayloadBytes,
			MaxJSONDepth:    security.DefaultMaxJSONDepth,
		},
		Telemetry: TelemetryConfig{Tracing: telemetry.Config{SampleRatio: 1}},
		Services: map[string]Toggle{
			ServiceEditor:  {Enabled: true},
			ServiceCommand: {Enabled: true},
			ServiceSandbox: {Enabled: true},
			ServiceTests:   {Enabled: false},
			ServiceLinter:  {Enabled: false},
		},
	}
}

// WorkspaceRoot returns the configured workspace, or the current
// directory when none is set.
func (c *Config) WorkspaceRoot() (string, error) {
	if c.Workspace != "" {
		return c.Workspace, nil
	}
	return os.Getwd()
}

// DataPath returns the data directory.
func (c *Config) DataPath() string {
	if c.DataDir != "" {
		return c.DataDir
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "toolcore")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "toolcore")
	}
	return filepath.Join(os.TempDir(), "toolcore")
}

// AuditPath returns the audit JSONL file.
func (c *Config) AuditPath() string {
	if c.Audit.Path != "" {
		return c.Audit.Path
	}
	return filepath.Join(c.DataPath(), "audit", "tool-audit.jsonl")
}

// AuditDBPath returns the SQLite audit database.
func (c *Config) AuditDBPath() string {
	if c.Audit.SQLite.Path != "" {
		return c.Audit.SQLite.Path
	}
	return filepath.Join(c.DataPath(), "audit.db")
}

// Enabled reports whether the service with the given ID is turned on.
func (c *Config) Enabled(id string) bool {
	return c.Services[id].Enabled
}
