//go:build !windows

package command

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flemzord/toolcore/internal/audit"
	"github.com/flemzord/toolcore/internal/metrics"
	"github.com/flemzord/toolcore/internal/security"
	"github.com/flemzord/toolcore/internal/tool"
	"github.com/flemzord/toolcore/internal/workspace"
)

type recorder struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (r *recorder) add(e audit.Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
}

func (r *recorder) all() []audit.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]audit.Entry(nil), r.entries...)
}

type fixture struct {
	ws      *workspace.Workspace
	runner  *Runner
	audit   *recorder
	metrics *metrics.Metrics
}

func newFixture(t *testing.T, mutate func(*Config)) *fixture {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	ws, err := workspace.New(t.TempDir(), nil)
	require.NoError(t, err)

	rec := &recorder{}
	m := metrics.New()
	cfg := Config{
		Workspace: ws,
		Allow:     []string{"sh", "rm"},
		Audit:     audit.New(audit.Config{OnEntry: rec.add}),
		Metrics:   m,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	r, err := NewRunner(cfg)
	require.NoError(t, err)
	return &fixture{ws: ws, runner: r, audit: rec, metrics: m}
}

func ms(v int64) *int64 { return &v }

func TestRunner_RejectsCommandOutsideAllowList(t *testing.T) {
	t.Parallel()
	f := newFixture(t, func(c *Config) { c.Allow = []string{"sh"} })

	target := filepath.Join(f.ws.Root, "keep.txt")
	require.NoError(t, os.WriteFile(target, []byte("data"), 0o644))

	_, err := f.runner.Run(context.Background(), ToolName, Invocation{Cmd: "rm", Args: []string{target}})
	require.Error(t, err)
	assert.ErrorIs(t, err, tool.ErrInvalidParameters)
	assert.Contains(t, err.Error(), "command not in allow-list: rm")

	_, statErr := os.Stat(target)
	assert.NoError(t, statErr, "a rejected command must not run")

	entries := f.audit.all()
	require.Len(t, entries, 1)
	assert.Equal(t, ToolName, entries[0].Tool)
	assert.Contains(t, entries[0].Error, "command not in allow-list")
}

func TestRunner_RejectsQualifiedAndLookalikeNames(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	for _, cmd := range []string{"/bin/sh", "./sh", "..\\sh", "ｓｈ", ""} {
		_, err := f.runner.Run(context.Background(), ToolName, Invocation{Cmd: cmd})
		assert.ErrorIs(t, err, tool.ErrInvalidParameters, "cmd %q", cmd)
	}
}

func TestNewRunner_RejectsBadAllowList(t *testing.T) {
	t.Parallel()

	ws, err := workspace.New(t.TempDir(), nil)
	require.NoError(t, err)

	_, err = NewRunner(Config{Workspace: ws, Allow: []string{"/usr/bin/git"}})
	assert.Error(t, err)

	_, err = NewRunner(Config{})
	assert.Error(t, err)
}

func TestRunner_DryRunDoesNotSpawn(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	marker := filepath.Join(f.ws.Root, "marker")
	out, err := f.runner.Run(context.Background(), ToolName, Invocation{
		Cmd:    "sh",
		Args:   []string{"-c", "touch " + marker},
		DryRun: true,
	})
	require.NoError(t, err)

	preview, ok := out.(*Preview)
	require.True(t, ok, "got %T", out)
	assert.True(t, preview.Preview)
	assert.Equal(t, "sh", preview.Cmd)
	assert.Equal(t, f.ws.Root, preview.Cwd)
	assert.Equal(t, DefaultTimeout.Milliseconds(), preview.TimeoutMs)

	_, statErr := os.Stat(marker)
	assert.True(t, os.IsNotExist(statErr))

	entries := f.audit.all()
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Result, `"preview":true`)
	assert.Contains(t, entries[0].Parameters, `"cmd":"sh"`)
}

func TestRunner_NonZeroExitIsAResult(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	out, err := f.runner.Run(context.Background(), ToolName, Invocation{
		Cmd:  "sh",
		Args: []string{"-c", "echo hi; echo oops 1>&2; exit 2"},
	})
	require.NoError(t, err)

	res := out.(*Result)
	assert.False(t, res.Success)
	assert.Equal(t, 2, res.Code)
	assert.Equal(t, "hi\n", res.Stdout)
	assert.Equal(t, "oops\n", res.Stderr)

	entries := f.audit.all()
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Result, `"code":2`)
	assert.Empty(t, entries[0].Error)
}

func TestRunner_CwdAndEnv(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	require.NoError(t, os.Mkdir(filepath.Join(f.ws.Root, "sub"), 0o755))

	out, err := f.runner.Run(context.Background(), ToolName, Invocation{
		Cmd:  "sh",
		Args: []string{"-c", `pwd; printf "%s" "$TOOLCORE_TEST"`},
		Cwd:  "sub",
		Env:  map[string]string{"TOOLCORE_TEST": "value"},
	})
	require.NoError(t, err)

	res := out.(*Result)
	require.True(t, res.Success, "stderr: %s", res.Stderr)
	lines := strings.SplitN(res.Stdout, "\n", 2)
	got, err := filepath.EvalSymlinks(lines[0])
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(f.ws.Root, "sub"), got)
	assert.Equal(t, "value", lines[1])
}

func TestRunner_RejectsCwdOutsideWorkspace(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	_, err := f.runner.Run(context.Background(), ToolName, Invocation{Cmd: "sh", Cwd: "../"})
	assert.ErrorIs(t, err, tool.ErrInvalidParameters)
}

func TestRunner_RejectsBadParameters(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	tests := []struct {
		name string
		inv  Invocation
	}{
		{"negative timeout", Invocation{Cmd: "sh", TimeoutMs: ms(-1)}},
		{"env key with equals", Invocation{Cmd: "sh", Env: map[string]string{"A=B": "x"}}},
		{"nul in argument", Invocation{Cmd: "sh", Args: []string{"a\x00b"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.runner.Run(context.Background(), ToolName, tt.inv)
			assert.ErrorIs(t, err, tool.ErrInvalidParameters)
		})
	}
}

func TestRunner_Timeout(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	out, err := f.runner.Run(context.Background(), ToolName, Invocation{
		Cmd:       "sh",
		Args:      []string{"-c", "sleep 30"},
		TimeoutMs: ms(50),
	})
	require.NoError(t, err)

	res := out.(*Result)
	assert.False(t, res.Success)
	assert.True(t, res.TimedOut)
	assert.Less(t, res.DurationMs, int64(5000))
}

func TestRunner_StartFailureIsInternalError(t *testing.T) {
	t.Parallel()
	f := newFixture(t, func(c *Config) { c.Allow = []string{"toolcore-missing-binary"} })

	_, err := f.runner.Run(context.Background(), ToolName, Invocation{Cmd: "toolcore-missing-binary"})
	require.Error(t, err)
	assert.ErrorIs(t, err, tool.ErrInternalError)
	assert.Contains(t, err.Error(), "command execution failed")

	entries := f.audit.all()
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Error, "command execution failed")
}

func TestRunner_ProcessRateLimit(t *testing.T) {
	t.Parallel()
	f := newFixture(t, func(c *Config) {
		c.Limiter = security.NewRateLimiter(security.RateLimitConfig{ProcessesPerMin: 1})
	})

	_, err := f.runner.Run(context.Background(), ToolName, Invocation{Cmd: "sh", Args: []string{"-c", "true"}})
	require.NoError(t, err)

	_, err = f.runner.Run(context.Background(), ToolName, Invocation{Cmd: "sh", Args: []string{"-c", "true"}})
	assert.ErrorIs(t, err, tool.ErrAPIRateLimit)

	// Previews never spawn and are not throttled.
	_, err = f.runner.Run(context.Background(), ToolName, Invocation{Cmd: "sh", DryRun: true})
	assert.NoError(t, err)
}

func TestRunner_SanitizedEnv(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "ghp_should_not_leak")
	f := newFixture(t, func(c *Config) { c.SanitizeEnv = true })

	out, err := f.runner.Run(context.Background(), ToolName, Invocation{
		Cmd:  "sh",
		Args: []string{"-c", `printf "%s" "${GITHUB_TOKEN:-unset}"`},
	})
	require.NoError(t, err)
	assert.Equal(t, "unset", out.(*Result).Stdout)
}

func TestService_RunCommand(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	svc := NewService(f.runner, nil)
	require.NoError(t, svc.Enable(context.Background()))

	defs := svc.Tools()
	require.Len(t, defs, 1)
	assert.Equal(t, ToolName, defs[0].Name)
	assert.Equal(t, []string{"cmd"}, defs[0].Parameters.Required)

	out, err := svc.Execute(context.Background(), ToolName,
		json.RawMessage(`{"cmd":"sh","args":["-c","echo ok"],"timeoutMs":10000}`))
	require.NoError(t, err)
	assert.Equal(t, "ok\n", out.(*Result).Stdout)

	_, err = svc.Execute(context.Background(), ToolName, json.RawMessage(`{"args":["x"]}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, tool.ErrInvalidParameters)
	assert.Contains(t, err.Error(), "missing required parameter: cmd")

	_, err = svc.Execute(context.Background(), ToolName, json.RawMessage(`{"cmd":"sh","args":"not-a-list"}`))
	assert.ErrorIs(t, err, tool.ErrInvalidParameters)

	_, err = svc.Execute(context.Background(), "run_other", nil)
	assert.ErrorIs(t, err, tool.ErrInvalidParameters)
}
