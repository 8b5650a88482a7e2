package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := rootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(""))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func isolated(t *testing.T) []string {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	return []string{"--workspace", t.TempDir(), "--data-dir", t.TempDir(), "--log-level", "error"}
}

func TestVersion(t *testing.T) {
	out, _, err := run(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "toolcore dev"), out)
}

func TestTools(t *testing.T) {
	out, _, err := run(t, append([]string{"tools"}, isolated(t)...)...)
	require.NoError(t, err)

	var defs []struct {
		Name       string `json:"name"`
		Parameters struct {
			Type     string   `json:"type"`
			Required []string `json:"required"`
		} `json:"parameters"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &defs), out)
	require.Len(t, defs, 5)
	for _, d := range defs {
		assert.Equal(t, "object", d.Parameters.Type, d.Name)
	}
}

func TestExec(t *testing.T) {
	out, _, err := run(t, append([]string{"exec", "execute_code", "--params", `{"language":"js","code":"return 'ok'"}`}, isolated(t)...)...)
	require.NoError(t, err)
	assert.Contains(t, out, `"output": "ok"`)
}

func TestExec_ToolErrorPrintsPayload(t *testing.T) {
	out, _, err := run(t, append([]string{"exec", "run_command", "--params", `{"cmd":"rm","args":["-rf","/"]}`}, isolated(t)...)...)
	require.ErrorIs(t, err, errToolFailed)

	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &payload), out)
	assert.Equal(t, false, payload["success"])
	assert.Equal(t, "INVALID_PARAMETERS", payload["code"])
}

func TestExec_Metrics(t *testing.T) {
	_, stderr, err := run(t, append([]string{"exec", "fs_read_file", "--params", `{"path":"a.txt"}`, "--metrics"}, isolated(t)...)...)
	require.NoError(t, err)
	assert.Contains(t, stderr, `toolcore_tool_calls_total{code="ok",tool="fs_read_file"} 1`)
}

func TestHealth(t *testing.T) {
	out, _, err := run(t, append([]string{"health"}, isolated(t)...)...)
	require.NoError(t, err)
	assert.Contains(t, out, `"status": "healthy"`)
}

func TestConfigCheck(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.yaml")
	require.NoError(t, os.WriteFile(good, []byte("version: \"1\"\n"), 0o644))
	out, _, err := run(t, "config", "check", good)
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration OK (3 services enabled)")

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("version: \"1\"\nlog_level: loud\n"), 0o644))
	_, _, err = run(t, "config", "check", bad)
	assert.Error(t, err)
}
