package tesswrap

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"syscall"
)

// Invocation is the captured outcome of an engine process.
type Invocation struct {
	Stdout []byte
	Stderr []byte
	// ExitCode is -1 if the process was terminated by a signal
	ExitCode int
	Signaled bool
}

// Diagnostic returns the lines of stdout, or of stderr if stdout is empty,
// each one preceded by a newline.
func (inv Invocation) Diagnostic() string {
	out := inv.Stdout
	if len(out) == 0 {
		out = inv.Stderr
	}
	var sb strings.Builder
	s := bufio.NewScanner(bytes.NewReader(out))
	for s.Scan() {
		sb.WriteByte('\n')
		sb.Write(s.Bytes())
	}
	return sb.String()
}

// Runner starts engine processes and waits for them.
type Runner struct {
	Log *slog.Logger
	// Dir is the working directory of the child. Empty means the current one.
	Dir string
}

// Run executes name with args, capturing both output streams. It blocks until the process
// exited or ctx is done. A non-zero exit code is not an error.
func (r *Runner) Run(ctx context.Context, name string, args ...string) (Invocation, error) {
	log := r.Log
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = r.Dir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	log.Debug("Starting tesseract", "cmd", name, "args", args)
	err := cmd.Run()
	inv := Invocation{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if err != nil {
		// a process killed because ctx is done must not look like a regular exit
		if ctxErr := ctx.Err(); ctxErr != nil {
			return inv, fmt.Errorf("running tesseract: %w", ctxErr)
		}
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return inv, fmt.Errorf("%w: %w", ErrEngineStart, err)
		}
	}
	state := cmd.ProcessState
	inv.ExitCode = state.ExitCode()
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		inv.Signaled = true
		log.Warn("Process terminated by signal", "signal", ws.Signal().String())
	} else {
		log.Debug("Exited with status code", "code", inv.ExitCode)
	}
	return inv, nil
}
