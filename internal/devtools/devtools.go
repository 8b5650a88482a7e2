// Package devtools exposes the project's test, lint, and format scripts as
// tools. Every invocation goes through a command runner, so the allow-list,
// timeout, and audit trail of run_command apply unchanged.
package devtools

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/flemzord/toolcore/internal/audit"
	"github.com/flemzord/toolcore/internal/command"
	"github.com/flemzord/toolcore/internal/tool"
)

// PackageManager is the executable the scripts are run with.
const PackageManager = "pnpm"

// DefaultPaths is what run_lint and run_format check when no paths are given.
var DefaultPaths = []string{"src", "server"}

// Runner runs a validated command invocation on behalf of a tool.
type Runner interface {
	Run(ctx context.Context, toolName string, inv command.Invocation) (any, error)
}

var _ Runner = (*command.Runner)(nil)

// decode unmarshals params, auditing a rejection under toolName.
func decode(a *audit.Logger, toolName string, params json.RawMessage, dst any) error {
	if err := tool.Decode(params, dst); err != nil {
		a.RecordToolCall(audit.ToolCall{Tool: toolName, Parameters: params, Err: err})
		return err
	}
	return nil
}

// checkOperand rejects values that the script would parse as a flag.
func checkOperand(field, v string) error {
	switch {
	case strings.TrimSpace(v) == "":
		return tool.InvalidParametersf("%s must not be empty", field)
	case strings.HasPrefix(v, "-"):
		return tool.InvalidParametersf("%s must not start with '-': %s", field, v)
	case strings.ContainsRune(v, 0):
		return tool.InvalidParametersf("%s must not contain NUL", field)
	}
	return nil
}

func targetPaths(paths []string) ([]string, error) {
	if len(paths) == 0 {
		return DefaultPaths, nil
	}
	for _, p := range paths {
		if err := checkOperand("paths", p); err != nil {
			return nil, err
		}
	}
	return paths, nil
}
