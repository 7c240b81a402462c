package backends

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

// waitDelay bounds how long we wait for a killed process group to release
// its pipes before Wait gives up.
const waitDelay = 5 * time.Second

// runTool executes an external generator binary with the build deadline
// attached. The child runs in its own process group so that timeout or
// cancellation kills the whole tree, not just the direct child.
func runTool(ctx context.Context, bin string, args []string, dir string) *Failure {
	if _, err := exec.LookPath(bin); err != nil {
		return &Failure{Kind: FailureToolMissing, Message: bin + " not found in PATH"}
	}

	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Dir = dir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	slog.Debug("Invoking generator", "bin", bin, "args", args, "dir", dir)
	err := cmd.Run()

	if out := stdout.String(); out != "" {
		slog.Debug("generator stdout", "bin", bin, "output", tail(out))
	}
	if errOut := stderr.String(); errOut != "" {
		slog.Debug("generator stderr", "bin", bin, "output", tail(errOut))
	}

	if err == nil {
		return nil
	}

	if ctx.Err() != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return &Failure{Kind: FailureTimeout, Message: bin + " exceeded the build deadline"}
		}
		return &Failure{Kind: FailureInvocation, Message: bin + " terminated: build cancelled"}
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		msg := bin + " exited with status " + exitErr.ProcessState.String()
		if s := tail(stderr.String()); s != "" {
			msg += ": " + s
		}
		return &Failure{Kind: FailureNonZeroExit, Message: msg}
	}

	return &Failure{Kind: FailureInvocation, Message: bin + ": " + err.Error()}
}

// tail keeps error messages bounded: the last few lines of tool output carry
// the actionable diagnostic.
func tail(s string) string {
	const maxLines = 5
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > maxLines {
		lines = lines[len(lines)-maxLines:]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
