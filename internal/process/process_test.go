//go:build !windows

package process

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireShell(t *testing.T) string {
	t.Helper()
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	return sh
}

func TestRun_CapturesOutputAndExitCode(t *testing.T) {
	t.Parallel()
	sh := requireShell(t)

	res, err := Run(context.Background(), Spec{
		Path: sh,
		Args: []string{"-c", "echo out; echo err 1>&2; exit 3"},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.ExitCode)
	assert.Equal(t, "out\n", res.Stdout)
	assert.Equal(t, "err\n", res.Stderr)
	assert.False(t, res.TimedOut)
	assert.False(t, res.Success())
}

func TestRun_DirAndEnv(t *testing.T) {
	t.Parallel()
	sh := requireShell(t)
	dir := t.TempDir()

	res, err := Run(context.Background(), Spec{
		Path: sh,
		Args: []string{"-c", `pwd; printf "%s" "$TOOLCORE_X"`},
		Dir:  dir,
		Env:  []string{"TOOLCORE_X=42", "PATH=" + os.Getenv("PATH")},
	})
	require.NoError(t, err)
	require.True(t, res.Success(), "stderr: %s", res.Stderr)

	resolved, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	lines := strings.SplitN(res.Stdout, "\n", 2)
	got, err := filepath.EvalSymlinks(lines[0])
	require.NoError(t, err)
	assert.Equal(t, resolved, got)
	assert.Equal(t, "42", lines[1])
}

func TestRun_StartFailure(t *testing.T) {
	t.Parallel()

	_, err := Run(context.Background(), Spec{Path: "toolcore-definitely-missing-binary"})
	require.Error(t, err)

	var se *StartError
	require.ErrorAs(t, err, &se)
	assert.True(t, se.NotFound())

	_, err = Run(context.Background(), Spec{Path: filepath.Join(t.TempDir(), "nope")})
	require.ErrorAs(t, err, &se)
	assert.True(t, se.NotFound())
}

func TestRun_TimeoutTerminates(t *testing.T) {
	t.Parallel()
	sh := requireShell(t)

	start := time.Now()
	res, err := Run(context.Background(), Spec{
		Path:      sh,
		Args:      []string{"-c", "sleep 30"},
		Timeout:   50 * time.Millisecond,
		KillGrace: 200 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.True(t, res.TimedOut)
	assert.Equal(t, -1, res.ExitCode)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestRun_TimeoutEscalatesToKill(t *testing.T) {
	t.Parallel()
	sh := requireShell(t)
	pidFile := filepath.Join(t.TempDir(), "child.pid")

	// The shell ignores SIGTERM and spawns a grandchild in the same group.
	script := `trap "" TERM; sleep 30 & echo $! > ` + pidFile + `; while :; do sleep 0.05; done`
	start := time.Now()
	res, err := Run(context.Background(), Spec{
		Path:      sh,
		Args:      []string{"-c", script},
		Timeout:   100 * time.Millisecond,
		KillGrace: 200 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.True(t, res.TimedOut)
	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, 300*time.Millisecond, "kill must wait for the grace period")
	assert.Less(t, elapsed, 5*time.Second)

	raw, err := os.ReadFile(pidFile)
	require.NoError(t, err)
	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return processGone(pid) },
		2*time.Second, 20*time.Millisecond, "grandchild %d must not survive the run", pid)
}

// processGone treats an unreaped zombie as gone: containers without an
// init process may never reap orphans.
func processGone(pid int) bool {
	if errors.Is(syscall.Kill(pid, 0), syscall.ESRCH) {
		return true
	}
	stat, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/stat")
	if err != nil {
		return os.IsNotExist(err)
	}
	// The state field follows the parenthesized command name.
	if i := strings.LastIndexByte(string(stat), ')'); i >= 0 && i+2 < len(stat) {
		return stat[i+2] == 'Z'
	}
	return false
}

func TestRun_ContextCancel(t *testing.T) {
	t.Parallel()
	sh := requireShell(t)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	res, err := Run(ctx, Spec{Path: sh, Args: []string{"-c", "sleep 30"}})
	require.NoError(t, err)
	assert.True(t, res.Canceled)
	assert.False(t, res.TimedOut)
}

func TestRun_OutputCap(t *testing.T) {
	t.Parallel()
	sh := requireShell(t)

	res, err := Run(context.Background(), Spec{
		Path:           sh,
		Args:           []string{"-c", "i=0; while [ $i -lt 200 ]; do echo 0123456789; i=$((i+1)); done"},
		MaxOutputBytes: 100,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode, "a full buffer must not break the child's pipe")
	assert.Len(t, res.Stdout, 100)
	assert.True(t, res.Truncated)
}

func TestBoundedBuffer(t *testing.T) {
	t.Parallel()

	b := NewBoundedBuffer(5)
	n, err := b.Write([]byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.False(t, b.Truncated())

	n, err = b.WriteString("defg")
	require.NoError(t, err)
	assert.Equal(t, 4, n, "writes always report full length")
	assert.Equal(t, "abcde", b.String())
	assert.True(t, b.Truncated())

	_, _ = b.Write([]byte("more"))
	assert.Equal(t, 5, b.Len())
}
