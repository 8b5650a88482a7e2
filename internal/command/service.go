package command

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/flemzord/toolcore/internal/audit"
	"github.com/flemzord/toolcore/internal/tool"
)

// Service identity.
const (
	ServiceID   = "command_runner"
	ServiceName = "Command Runner"
	ToolName    = "run_command"
)

// Service exposes a Runner as the run_command tool.
type Service struct {
	*tool.Base
	runner *Runner
}

var _ tool.Service = (*Service)(nil)

// NewService wraps runner.
func NewService(runner *Runner, logger *slog.Logger) *Service {
	s := &Service{
		Base: tool.NewBase(tool.BaseConfig{
			ID:          ServiceID,
			Name:        ServiceName,
			Description: "Runs allow-listed developer commands inside the workspace",
			Logger:      logger,
		}),
		runner: runner,
	}
	s.Handle(tool.Definition{
		Name:        ToolName,
		Description: "Run an allow-listed command (" + strings.Join(runner.Allowed(), ", ") + ") without a shell. Set dryRun to preview.",
		Parameters: tool.ObjectSchema(map[string]tool.Property{
			"cmd":       {Type: "string", Description: "Executable name from the allow-list", Enum: runner.Allowed()},
			"args":      {Type: "array", Description: "Arguments passed verbatim", Items: &tool.Property{Type: "string"}},
			"cwd":       {Type: "string", Description: "Working directory, relative to the workspace root"},
			"timeoutMs": {Type: "integer", Description: "Timeout in milliseconds (default 300000)"},
			"env":       {Type: "object", Description: "Environment overrides"},
			"dryRun":    {Type: "boolean", Description: "Return the resolved invocation without running it"},
		}, "cmd"),
		Scope: tool.ScopeExec,
	}, s.runCommand)
	return s
}

func (s *Service) runCommand(ctx context.Context, params json.RawMessage) (any, error) {
	var inv Invocation
	if err := tool.Decode(params, &inv, "cmd"); err != nil {
		s.runner.audit.RecordToolCall(audit.ToolCall{Tool: ToolName, Parameters: params, Err: err})
		return nil, err
	}
	return s.runner.Run(ctx, ToolName, inv)
}
