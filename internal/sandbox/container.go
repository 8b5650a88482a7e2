package sandbox

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/flemzord/toolcore/internal/process"
)

const defaultDocker = "docker"

// ContainerConfig defines the container used for Python isolation.
type ContainerConfig struct {
	// Docker is the CLI binary. Defaults to "docker".
	Docker string `yaml:"docker"`
	Image  string `yaml:"image"`

	// CPUShares is the relative CPU weight (--cpu-shares).
	CPUShares int `yaml:"cpu_shares"`
	// MemoryMB is the memory limit in megabytes (--memory).
	MemoryMB int `yaml:"memory_mb"`
	// TmpfsMB sizes the only writable mount, /tmp.
	TmpfsMB   int `yaml:"tmpfs_mb"`
	PidsLimit int `yaml:"pids_limit"`
}

func containerConfigDefaults() ContainerConfig {
	return ContainerConfig{
		Docker:    defaultDocker,
		Image:     "python:3.12-alpine",
		CPUShares: 512,
		MemoryMB:  256,
		TmpfsMB:   100,
		PidsLimit: 256,
	}
}

type containerRunner struct {
	cfg    ContainerConfig
	logger *slog.Logger
}

// newContainerRunner fills zero-value fields with defaults.
func newContainerRunner(cfg ContainerConfig, logger *slog.Logger) *containerRunner {
	d := containerConfigDefaults()
	if cfg.Docker == "" {
		cfg.Docker = d.Docker
	}
	if cfg.Image == "" {
		cfg.Image = d.Image
	}
	if cfg.CPUShares <= 0 {
		cfg.CPUShares = d.CPUShares
	}
	if cfg.MemoryMB <= 0 {
		cfg.MemoryMB = d.MemoryMB
	}
	if cfg.TmpfsMB <= 0 {
		cfg.TmpfsMB = d.TmpfsMB
	}
	if cfg.PidsLimit <= 0 {
		cfg.PidsLimit = d.PidsLimit
	}
	return &containerRunner{cfg: cfg, logger: logger}
}

// args builds a docker run invocation with no network, a read-only root,
// all capabilities dropped, and an unprivileged user.
func (c *containerRunner) args(name, binary, code string) []string {
	return []string{
		"run", "--rm",
		"--name", name,
		"--read-only",
		"--network=none",
		"--cap-drop", "ALL",
		"--security-opt", "no-new-privileges:true",
		"--user", "65534:65534",
		"--pids-limit", strconv.Itoa(c.cfg.PidsLimit),
		"--cpu-shares", strconv.Itoa(c.cfg.CPUShares),
		"--memory", strconv.Itoa(c.cfg.MemoryMB) + "m",
		"--tmpfs", "/tmp:rw,noexec,nosuid,size=" + strconv.Itoa(c.cfg.TmpfsMB) + "m",
		"-w", "/tmp",
		"-e", "PYTHONIOENCODING=utf-8",
		"-e", "PYTHONDONTWRITEBYTECODE=1",
		"-e", "HOME=/tmp",
		c.cfg.Image,
		binary, "-c", code,
	}
}

func (c *containerRunner) run(ctx context.Context, binary, code string, timeout, killGrace time.Duration, maxOutput int) (Outcome, error) {
	name := "toolcore-sandbox-" + uuid.NewString()
	res, err := process.Run(ctx, process.Spec{
		Path:           c.cfg.Docker,
		Args:           c.args(name, binary, code),
		Timeout:        timeout,
		KillGrace:      killGrace,
		MaxOutputBytes: maxOutput,
	})
	if err != nil {
		return Outcome{}, interpreterError("container runtime", c.cfg.Docker, "install Docker or set sandbox.python.isolation to process", err)
	}
	if res.TimedOut || res.Canceled {
		// Killing the CLI does not stop the container it started.
		c.remove(name)
	}
	return processOutcome(res, timeout), nil
}

func (c *containerRunner) remove(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	res, err := process.Run(ctx, process.Spec{
		Path:           c.cfg.Docker,
		Args:           []string{"rm", "-f", name},
		MaxOutputBytes: 4096,
	})
	if err != nil || !res.Success() {
		c.logger.Warn("removing sandbox container", "name", name, "error", err, "stderr", res.Stderr)
	}
}
