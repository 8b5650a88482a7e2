package sandbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/flemzord/toolcore/internal/process"
	"github.com/flemzord/toolcore/internal/security"
	"github.com/flemzord/toolcore/internal/tool"
)

// Python isolation modes. The empty string means IsolationContainer.
const (
	// IsolationContainer runs the interpreter in a throwaway container
	// with no network and a read-only root. Execution fails when the
	// container runtime is missing.
	IsolationContainer = "container"
	// IsolationAuto is accepted for older configurations and behaves
	// like IsolationContainer: it never downgrades to a bare process.
	IsolationAuto = "auto"
	// IsolationProcess runs the host interpreter directly. It confines
	// the working directory and environment only; guest code can read
	// and write anything the server user can, and use the network.
	IsolationProcess = "process"
)

// DefaultPythonBinary is the interpreter looked up on PATH.
const DefaultPythonBinary = "python3"

// PythonConfig configures the Python strategy.
type PythonConfig struct {
	Binary    string          `yaml:"binary"`
	Isolation string          `yaml:"isolation"`
	Container ContainerConfig `yaml:",inline"`
}

type pythonStrategy struct {
	binary    string
	container *containerRunner
	killGrace time.Duration
	maxOutput int
	logger    *slog.Logger
}

func newPythonStrategy(cfg PythonConfig, killGrace time.Duration, maxOutput int, logger *slog.Logger) (*pythonStrategy, error) {
	s := &pythonStrategy{
		binary:    cfg.Binary,
		killGrace: killGrace,
		maxOutput: maxOutput,
		logger:    logger,
	}
	if s.binary == "" {
		s.binary = DefaultPythonBinary
	}

	switch cfg.Isolation {
	case "", IsolationContainer, IsolationAuto:
		s.container = newContainerRunner(cfg.Container, logger)
	case IsolationProcess:
		logger.Warn("python sandbox runs without filesystem or network isolation", "isolation", IsolationProcess)
	default:
		return nil, fmt.Errorf("unknown python isolation %q", cfg.Isolation)
	}
	return s, nil
}

func (s *pythonStrategy) Language() Language { return Python }

func (s *pythonStrategy) Spawns() bool { return true }

// Run passes code with -c, never through a file. Without a container it
// starts from a fresh temporary working directory that is removed
// afterwards.
func (s *pythonStrategy) Run(ctx context.Context, code string, timeout time.Duration) (Outcome, error) {
	if s.container != nil {
		if !DockerAvailable(s.container.cfg.Docker) {
			return Outcome{}, tool.InternalError(fmt.Sprintf(
				"python sandbox requires a container runtime: %q not found; install Docker or set sandbox.python.isolation to process",
				s.container.cfg.Docker))
		}
		return s.container.run(ctx, s.binary, code, timeout, s.killGrace, s.maxOutput)
	}

	dir, err := os.MkdirTemp("", "toolcore-sandbox-*")
	if err != nil {
		return Outcome{}, tool.InternalError("creating sandbox directory: " + err.Error()).WithCause(err)
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			s.logger.Debug("removing sandbox directory", "dir", dir, "error", err)
		}
	}()

	env, err := security.MergeEnv(security.SanitizedEnv(nil), map[string]string{
		"PYTHONIOENCODING":        "utf-8",
		"PYTHONDONTWRITEBYTECODE": "1",
		"HOME":                    dir,
	})
	if err != nil {
		return Outcome{}, tool.InternalError(err.Error()).WithCause(err)
	}

	res, err := process.Run(ctx, process.Spec{
		Path:           s.binary,
		Args:           []string{"-c", code},
		Dir:            dir,
		Env:            env,
		Timeout:        timeout,
		KillGrace:      s.killGrace,
		MaxOutputBytes: s.maxOutput,
	})
	if err != nil {
		return Outcome{}, interpreterError("python interpreter", s.binary, "install Python 3 or set sandbox.python.binary", err)
	}
	return processOutcome(res, timeout), nil
}

// interpreterError turns a spawn failure into an actionable error.
func interpreterError(what, binary, hint string, err error) *tool.Error {
	var se *process.StartError
	if errors.As(err, &se) && se.NotFound() {
		return tool.InternalError(fmt.Sprintf("%s %q not found: %s", what, binary, hint)).WithCause(err)
	}
	return tool.InternalError("sandbox execution failed: " + err.Error()).WithCause(err)
}

func processOutcome(res process.Result, timeout time.Duration) Outcome {
	o := Outcome{Output: res.Stdout, Truncated: res.Truncated}
	switch {
	case res.TimedOut:
		o.Error = timeoutMessage(timeout)
	case res.Canceled:
		o.Error = canceledMessage
	case res.ExitCode == 0:
		o.Success = true
		o.Error = res.Stderr
	case res.Stderr != "":
		o.Error = res.Stderr
	default:
		o.Error = fmt.Sprintf("process exited with code %d", res.ExitCode)
	}
	return o
}

// DockerAvailable reports whether the docker CLI is on PATH.
func DockerAvailable(docker string) bool {
	if docker == "" {
		docker = defaultDocker
	}
	_, err := exec.LookPath(docker)
	return err == nil
}
