package toolrun

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"
)

var log = slog.Default()

// DefaultStderrTail caps how much trailing stderr is kept for error reports.
const DefaultStderrTail = 4 * 1024

// ExecRunner runs invocations as child processes. Cancelling the context
// kills the process; that is the only way a run is interrupted.
type ExecRunner struct {
	// StderrTail overrides DefaultStderrTail when positive.
	StderrTail int
}

func (r ExecRunner) Run(ctx context.Context, inv Invocation) error {
	limit := r.StderrTail
	if limit <= 0 {
		limit = DefaultStderrTail
	}

	cmd := exec.CommandContext(ctx, inv.Command, inv.Args...)
	cmd.Dir = inv.Dir
	if len(inv.Env) > 0 {
		cmd.Env = append(os.Environ(), inv.Env...)
	}
	tail := &tailBuffer{limit: limit}
	cmd.Stderr = tail
	if inv.Stdout != nil {
		cmd.Stdout = inv.Stdout
	}

	log.Debug("Running external tool",
		"kind", string(inv.Kind),
		"command", inv.Command,
		"args", strings.Join(inv.Args, " "))

	start := time.Now()
	err := cmd.Run()
	if err == nil {
		log.Debug("External tool finished",
			"kind", string(inv.Kind),
			"duration", time.Since(start).String())
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	code := -1
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code = exitErr.ExitCode()
	}
	toolErr := &ToolError{
		Tool:     inv.Kind,
		Command:  inv.Command,
		ExitCode: code,
		Stderr:   tail.String(),
	}
	log.Error("External tool failed",
		"kind", string(inv.Kind),
		"command", inv.Command,
		"exitCode", code)
	return toolErr
}

// tailBuffer keeps only the trailing limit bytes written to it.
type tailBuffer struct {
	limit     int
	buf       []byte
	truncated bool
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.buf = append(b.buf, p...)
	if len(b.buf) > b.limit {
		keep := make([]byte, b.limit)
		copy(keep, b.buf[len(b.buf)-b.limit:])
		b.buf = keep
		b.truncated = true
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	s := strings.TrimSpace(string(b.buf))
	if b.truncated && s != "" {
		s = "..." + s
	}
	return s
}
