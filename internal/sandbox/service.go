package sandbox

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/flemzord/toolcore/internal/audit"
	"github.com/flemzord/toolcore/internal/tool"
)

// Service identity.
const (
	ServiceID   = "sandbox"
	ServiceName = "Code Sandbox"
	ToolName    = "execute_code"
)

// Service exposes an Executor as the execute_code tool.
type Service struct {
	*tool.Base
	exec *Executor
}

var _ tool.Service = (*Service)(nil)

// NewService wraps exec.
func NewService(exec *Executor, logger *slog.Logger) *Service {
	s := &Service{
		Base: tool.NewBase(tool.BaseConfig{
			ID:          ServiceID,
			Name:        ServiceName,
			Description: "Evaluates JavaScript and Python snippets in isolation",
			Logger:      logger,
		}),
		exec: exec,
	}

	langs := make([]string, len(Languages))
	for i, l := range Languages {
		langs[i] = l.String()
	}
	s.Handle(tool.Definition{
		Name: ToolName,
		Description: "Execute a JavaScript or Python snippet in a sandbox and return its output. " +
			"JavaScript prints with console.log and may return a value; Python prints with print(). " +
			"The code cannot reach the filesystem or the network.",
		Parameters: tool.ObjectSchema(map[string]tool.Property{
			"language": {Type: "string", Description: "Guest language", Enum: langs},
			"code":     {Type: "string", Description: "Source code to run"},
			"timeout":  {Type: "number", Description: "Timeout in milliseconds", Default: DefaultTimeout.Milliseconds()},
		}, "language", "code"),
		Scope: tool.ScopeExec,
	}, s.executeCode)
	return s
}

func (s *Service) executeCode(ctx context.Context, params json.RawMessage) (any, error) {
	var req Request
	if err := tool.Decode(params, &req, "language", "code"); err != nil {
		s.exec.audit.RecordToolCall(audit.ToolCall{Tool: ToolName, Parameters: params, Err: err})
		return nil, err
	}
	res, err := s.exec.Execute(ctx, req)
	if err != nil {
		return nil, err
	}
	return res, nil
}
