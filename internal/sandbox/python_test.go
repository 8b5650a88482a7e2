//go:build !windows

package sandbox

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flemzord/toolcore/internal/tool"
)

func newPython(t *testing.T) *pythonStrategy {
	t.Helper()
	if _, err := exec.LookPath(DefaultPythonBinary); err != nil {
		t.Skip("python3 not available")
	}
	s, err := newPythonStrategy(PythonConfig{Isolation: IsolationProcess}, 200*time.Millisecond, 0, slog.Default())
	require.NoError(t, err)
	return s
}

func TestPython_PrintsOutput(t *testing.T) {
	t.Parallel()
	s := newPython(t)

	out, err := s.Run(context.Background(), `print("héllo", 6 * 7)`, 10*time.Second)
	require.NoError(t, err)
	assert.True(t, out.Success, out.Error)
	assert.Equal(t, "héllo 42\n", out.Output)
}

func TestPython_RunsInScratchDirectory(t *testing.T) {
	t.Parallel()
	s := newPython(t)

	out, err := s.Run(context.Background(), `import os; print(os.path.basename(os.getcwd()))`, 10*time.Second)
	require.NoError(t, err)
	require.True(t, out.Success, out.Error)
	assert.True(t, strings.HasPrefix(out.Output, "toolcore-sandbox-"), out.Output)
}

func TestPython_ExceptionIsAResult(t *testing.T) {
	t.Parallel()
	s := newPython(t)

	out, err := s.Run(context.Background(), "print('partial')\nraise ValueError('boom')", 10*time.Second)
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Equal(t, "partial\n", out.Output)
	assert.Contains(t, out.Error, "ValueError: boom")

	out, err = s.Run(context.Background(), "import sys; sys.exit(3)", 10*time.Second)
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Equal(t, "process exited with code 3", out.Error)
}

func TestPython_TimeoutKillsInterpreter(t *testing.T) {
	t.Parallel()
	s := newPython(t)

	start := time.Now()
	out, err := s.Run(context.Background(), "while True:\n    pass", 50*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Equal(t, "execution timed out (50ms)", out.Error)
	assert.Less(t, time.Since(start), 50*time.Millisecond+200*time.Millisecond+2*time.Second)
}

func TestPython_MissingInterpreter(t *testing.T) {
	t.Parallel()

	s, err := newPythonStrategy(PythonConfig{Binary: "toolcore-no-such-python", Isolation: IsolationProcess}, 0, 0, slog.Default())
	require.NoError(t, err)

	_, err = s.Run(context.Background(), "print(1)", time.Second)
	require.Error(t, err)
	assert.ErrorIs(t, err, tool.ErrInternalError)
	assert.Contains(t, err.Error(), "not found")
	assert.Contains(t, err.Error(), "sandbox.python.binary")
}

func TestPython_ContainerIsDefault(t *testing.T) {
	t.Parallel()

	for _, isolation := range []string{"", IsolationContainer, IsolationAuto} {
		s, err := newPythonStrategy(PythonConfig{Isolation: isolation}, 0, 0, slog.Default())
		require.NoError(t, err)
		assert.NotNil(t, s.container, "isolation %q", isolation)
	}

	s, err := newPythonStrategy(PythonConfig{Isolation: IsolationProcess}, 0, 0, slog.Default())
	require.NoError(t, err)
	assert.Nil(t, s.container)
}

func TestPython_MissingRuntimeFailsClosed(t *testing.T) {
	t.Parallel()

	for _, isolation := range []string{"", IsolationContainer, IsolationAuto} {
		s, err := newPythonStrategy(PythonConfig{
			Isolation: isolation,
			Container: ContainerConfig{Docker: "/nonexistent/toolcore-docker"},
		}, 0, 0, slog.Default())
		require.NoError(t, err)

		out, err := s.Run(context.Background(), "print(1)", time.Second)
		require.Error(t, err, "isolation %q", isolation)
		assert.ErrorIs(t, err, tool.ErrInternalError)
		assert.Contains(t, err.Error(), "container runtime")
		assert.Empty(t, out.Output)
	}
}

func TestExecutor_DefaultConfigCannotWriteHost(t *testing.T) {
	t.Parallel()

	e, err := New(Config{})
	require.NoError(t, err)

	target := filepath.Join(t.TempDir(), "escaped.txt")
	code := fmt.Sprintf("open(%q, 'w').write('x')", target)
	res, err := e.Execute(context.Background(), Request{Language: "python", Code: code, Timeout: ptr(5000)})
	if err == nil {
		assert.False(t, res.Success, "write to a host path succeeded")
	}
	assert.NoFileExists(t, target)
}

func TestPython_UnknownIsolation(t *testing.T) {
	t.Parallel()

	_, err := newPythonStrategy(PythonConfig{Isolation: "vm"}, 0, 0, slog.Default())
	assert.Error(t, err)
}

func TestContainerArgs(t *testing.T) {
	t.Parallel()

	c := newContainerRunner(ContainerConfig{Image: "python:3.12-slim", MemoryMB: 64}, slog.Default())
	args := c.args("toolcore-sandbox-x", "python3", "print(1)")

	assert.Equal(t, []string{"run", "--rm", "--name", "toolcore-sandbox-x"}, args[:4])
	assert.Contains(t, args, "--network=none")
	assert.Contains(t, args, "--read-only")
	assert.Contains(t, args, "64m")
	assert.Equal(t, []string{"python:3.12-slim", "python3", "-c", "print(1)"}, args[len(args)-4:])
	for _, a := range args {
		assert.NotContains(t, []string{"-v", "--volume", "--mount", "--privileged"}, a)
	}
}
