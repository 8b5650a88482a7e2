package devtools

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/flemzord/toolcore/internal/audit"
	"github.com/flemzord/toolcore/internal/command"
	"github.com/flemzord/toolcore/internal/tool"
)

// Linter/formatter identity.
const (
	LinterID   = "linter_formatter"
	LinterName = "Linter & Formatter"

	ToolRunLint   = "run_lint"
	ToolRunFormat = "run_format"
)

// LintRequest is one run_lint call.
type LintRequest struct {
	Fix   bool     `json:"fix,omitempty"`
	Paths []string `json:"paths,omitempty"`
}

// FormatRequest is one run_format call.
type FormatRequest struct {
	Write bool     `json:"write,omitempty"`
	Paths []string `json:"paths,omitempty"`
}

// LinterFormatter runs ESLint and Prettier.
type LinterFormatter struct {
	*tool.Base
	runner Runner
	audit  *audit.Logger
}

var _ tool.Service = (*LinterFormatter)(nil)

// NewLinterFormatter creates the linter_formatter service.
func NewLinterFormatter(runner Runner, a *audit.Logger, logger *slog.Logger) *LinterFormatter {
	s := &LinterFormatter{
		Base: tool.NewBase(tool.BaseConfig{
			ID:          LinterID,
			Name:        LinterName,
			Description: "Runs ESLint and Prettier over the workspace",
			Logger:      logger,
		}),
		runner: runner,
		audit:  a,
	}
	pathsProp := tool.Property{
		Type:        "array",
		Description: "Paths to check (default: src, server)",
		Items:       &tool.Property{Type: "string"},
	}
	s.Handle(tool.Definition{
		Name:        ToolRunLint,
		Description: "Run ESLint (pnpm run lint), optionally with --fix.",
		Parameters: tool.ObjectSchema(map[string]tool.Property{
			"fix":   {Type: "boolean", Description: "Apply automatic fixes", Default: false},
			"paths": pathsProp,
		}),
		Scope: tool.ScopeExec,
	}, s.runLint)
	s.Handle(tool.Definition{
		Name:        ToolRunFormat,
		Description: "Run Prettier in check mode, or write mode when write is set.",
		Parameters: tool.ObjectSchema(map[string]tool.Property{
			"write": {Type: "boolean", Description: "Write formatted files back", Default: false},
			"paths": pathsProp,
		}),
		Scope: tool.ScopeExec,
	}, s.runFormat)
	return s
}

// LintArgs builds the pnpm arguments for run_lint.
func LintArgs(req LintRequest) ([]string, error) {
	paths, err := targetPaths(req.Paths)
	if err != nil {
		return nil, err
	}
	args := []string{"run", "lint", "--"}
	if req.Fix {
		args = append(args, "--fix")
	}
	return append(args, paths...), nil
}

// FormatArgs builds the pnpm arguments for run_format.
func FormatArgs(req FormatRequest) ([]string, error) {
	paths, err := targetPaths(req.Paths)
	if err != nil {
		return nil, err
	}
	mode := "--check"
	if req.Write {
		mode = "--write"
	}
	return append([]string{"exec", "prettier", mode}, paths...), nil
}

func (s *LinterFormatter) runLint(ctx context.Context, params json.RawMessage) (any, error) {
	var req LintRequest
	if err := decode(s.audit, ToolRunLint, params, &req); err != nil {
		return nil, err
	}
	args, err := LintArgs(req)
	if err != nil {
		s.audit.RecordToolCall(audit.ToolCall{Tool: ToolRunLint, Parameters: req, Err: err})
		return nil, err
	}
	return s.runner.Run(ctx, ToolRunLint, command.Invocation{Cmd: PackageManager, Args: args})
}

func (s *LinterFormatter) runFormat(ctx context.Context, params json.RawMessage) (any, error) {
	var req FormatRequest
	if err := decode(s.audit, ToolRunFormat, params, &req); err != nil {
		return nil, err
	}
	args, err := FormatArgs(req)
	if err != nil {
		s.audit.RecordToolCall(audit.ToolCall{Tool: ToolRunFormat, Parameters: req, Err: err})
		return nil, err
	}
	return s.runner.Run(ctx, ToolRunFormat, command.Invocation{Cmd: PackageManager, Args: args})
}
