package devtools

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/flemzord/toolcore/internal/audit"
	"github.com/flemzord/toolcore/internal/command"
	"github.com/flemzord/toolcore/internal/tool"
)

// Test runner identity.
const (
	TestRunnerID   = "test_runner"
	TestRunnerName = "Test Runner"

	ToolRunTests = "run_tests"
	ToolRunE2E   = "run_e2e"
)

// TestsRequest is one run_tests call.
type TestsRequest struct {
	Pattern         string `json:"pattern,omitempty"`
	UpdateSnapshots bool   `json:"updateSnapshots,omitempty"`
}

// E2ERequest is one run_e2e call.
type E2ERequest struct {
	Pattern string `json:"pattern,omitempty"`
	UI      bool   `json:"ui,omitempty"`
}

// TestRunner runs the unit and end-to-end test scripts.
type TestRunner struct {
	*tool.Base
	runner Runner
	audit  *audit.Logger
}

var _ tool.Service = (*TestRunner)(nil)

// NewTestRunner creates the test_runner service.
func NewTestRunner(runner Runner, a *audit.Logger, logger *slog.Logger) *TestRunner {
	s := &TestRunner{
		Base: tool.NewBase(tool.BaseConfig{
			ID:          TestRunnerID,
			Name:        TestRunnerName,
			Description: "Runs the Vitest/Jest and Playwright test scripts",
			Logger:      logger,
		}),
		runner: runner,
		audit:  a,
	}
	s.Handle(tool.Definition{
		Name:        ToolRunTests,
		Description: "Run unit tests (pnpm run test).",
		Parameters: tool.ObjectSchema(map[string]tool.Property{
			"pattern":         {Type: "string", Description: "Test file filter, e.g. src/**/*.test.ts"},
			"updateSnapshots": {Type: "boolean", Description: "Update snapshots", Default: false},
		}),
		Scope: tool.ScopeExec,
	}, s.runTests)
	s.Handle(tool.Definition{
		Name:        ToolRunE2E,
		Description: "Run end-to-end tests (pnpm run test:e2e).",
		Parameters: tool.ObjectSchema(map[string]tool.Property{
			"pattern": {Type: "string", Description: "E2E test filter"},
			"ui":      {Type: "boolean", Description: "Open the Playwright UI", Default: false},
		}),
		Scope: tool.ScopeExec,
	}, s.runE2E)
	return s
}

// TestsArgs builds the pnpm arguments for run_tests.
func TestsArgs(req TestsRequest) ([]string, error) {
	args := []string{"run", "test", "--"}
	if req.Pattern != "" {
		if err := checkOperand("pattern", req.Pattern); err != nil {
			return nil, err
		}
		args = append(args, req.Pattern)
	}
	if req.UpdateSnapshots {
		args = append(args, "--update")
	}
	return args, nil
}

// E2EArgs builds the pnpm arguments for run_e2e.
func E2EArgs(req E2ERequest) ([]string, error) {
	script := "test:e2e"
	if req.UI {
		script = "test:e2e:ui"
	}
	args := []string{"run", script}
	if req.Pattern != "" {
		if err := checkOperand("pattern", req.Pattern); err != nil {
			return nil, err
		}
		args = append(args, "--", req.Pattern)
	}
	return args, nil
}

func (s *TestRunner) runTests(ctx context.Context, params json.RawMessage) (any, error) {
	var req TestsRequest
	if err := decode(s.audit, ToolRunTests, params, &req); err != nil {
		return nil, err
	}
	args, err := TestsArgs(req)
	if err != nil {
		s.audit.RecordToolCall(audit.ToolCall{Tool: ToolRunTests, Parameters: req, Err: err})
		return nil, err
	}
	return s.runner.Run(ctx, ToolRunTests, command.Invocation{Cmd: PackageManager, Args: args})
}

func (s *TestRunner) runE2E(ctx context.Context, params json.RawMessage) (any, error) {
	var req E2ERequest
	if err := decode(s.audit, ToolRunE2E, params, &req); err != nil {
		return nil, err
	}
	args, err := E2EArgs(req)
	if err != nil {
		s.audit.RecordToolCall(audit.ToolCall{Tool: ToolRunE2E, Parameters: req, Err: err})
		return nil, err
	}
	return s.runner.Run(ctx, ToolRunE2E, command.Invocation{Cmd: PackageManager, Args: args})
}
