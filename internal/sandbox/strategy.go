// Package sandbox evaluates untrusted code snippets under a time bound.
//
// JavaScript runs in a stripped-down in-process goja VM. Python runs as a
// subprocess, optionally inside a network-less, read-only container. A
// failing guest program is a normal result; only faults of the executor
// itself are returned as errors.
package sandbox

import (
	"context"
	"fmt"
	"time"
)

// Outcome is the uniform result of one evaluation.
type Outcome struct {
	Success   bool   `json:"success"`
	Output    string `json:"output"`
	Error     string `json:"error,omitempty"`
	Truncated bool   `json:"truncated,omitempty"`
}

// Strategy evaluates code for one language.
type Strategy interface {
	Language() Language
	// Spawns reports whether Run creates an OS process.
	Spawns() bool
	Run(ctx context.Context, code string, timeout time.Duration) (Outcome, error)
}

func timeoutMessage(timeout time.Duration) string {
	return fmt.Sprintf("execution timed out (%dms)", timeout.Milliseconds())
}

const canceledMessage = "execution canceled"
