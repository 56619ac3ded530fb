package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

const (
	// DefaultTimeout applies when a definition has no timeoutMs of its own.
	DefaultTimeout = 2000 * time.Millisecond
	// DefaultGracePeriod is how long a process gets between SIGTERM and SIGKILL.
	DefaultGracePeriod = 500 * time.Millisecond
	// MaxStdoutBytes caps captured standard output.
	MaxStdoutBytes = 1 << 20
	// MaxStderrBytes caps captured diagnostic output.
	MaxStderrBytes = 64 << 10
)

// Definition is the static configuration for one command resolver. It is
// stateless across calls; every invocation spawns a fresh process.
type Definition struct {
	Command   []string `json:"command"`
	TimeoutMs int      `json:"timeoutMs,omitempty"`
}

type request struct {
	Resolver string   `json:"resolver"`
	Args     []string `json:"args"`
}

type response struct {
	Value *string `json:"value"`
}

// Runner executes command resolvers. The zero limits fall back to the
// package defaults; tests lower them to exercise truncation.
type Runner struct {
	logger       zerolog.Logger
	GracePeriod  time.Duration
	StdoutLimit  int
	StderrLimit  int
}

func NewRunner(logger zerolog.Logger) *Runner {
	return &Runner{
		logger:      logger.With().Str("component", "command-resolver").Logger(),
		GracePeriod: DefaultGracePeriod,
		StdoutLimit: MaxStdoutBytes,
		StderrLimit: MaxStderrBytes,
	}
}

// Execute spawns the resolver program, writes the single request line, and
// returns the value from the first non-empty output line.
func (r *Runner) Execute(ctx context.Context, def Definition, resolverName string, args []string, projectRoot string) (string, error) {
	if len(def.Command) == 0 {
		return "", &Error{Resolver: resolverName, Detail: "empty command"}
	}
	if ctx == nil {
		ctx = context.Background()
	}

	cmd := exec.Command(def.Command[0], def.Command[1:]...)
	cmd.Dir = projectRoot
	cmd.Env = os.Environ()

	stdout := newCappedBuffer(r.stdoutLimit())
	stderr := newCappedBuffer(r.stderrLimit())
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return "", &Error{Resolver: resolverName, Detail: fmt.Sprintf("stdin pipe: %v", err)}
	}

	if err := cmd.Start(); err != nil {
		return "", &Error{Resolver: resolverName, Detail: fmt.Sprintf("spawn %q: %v", def.Command[0], err)}
	}

	line, err := json.Marshal(request{Resolver: resolverName, Args: args})
	if err == nil {
		_, err = stdin.Write(append(line, '\n'))
	}
	closeErr := stdin.Close()
	if err == nil {
		err = closeErr
	}
	// A write failure usually means the process exited early; the exit
	// status below carries the real diagnosis.
	if err != nil {
		r.logger.Debug().Str("resolver", resolverName).Err(err).Msg("stdin write failed")
	}

	timeout := DefaultTimeout
	if def.TimeoutMs > 0 {
		timeout = time.Duration(def.TimeoutMs) * time.Millisecond
	}

	waitErr, timedOut := r.wait(ctx, cmd, timeout)

	if ctx.Err() != nil {
		return "", &Error{Resolver: resolverName, Detail: ctx.Err().Error(), Cancelled: true}
	}

	if timedOut {
		return "", &Error{
			Resolver:  resolverName,
			Detail:    fmt.Sprintf("timed out after %dms", timeout.Milliseconds()),
			Stderr:    stderr.String(),
			Truncated: stdout.Truncated() || stderr.Truncated(),
		}
	}

	if waitErr != nil {
		detail := exitDetail(waitErr)
		return "", &Error{
			Resolver:  resolverName,
			Detail:    detail,
			Stderr:    stderr.String(),
			Truncated: stdout.Truncated() || stderr.Truncated(),
		}
	}

	return parseValue(resolverName, stdout)
}

// wait blocks for process exit, escalating SIGTERM then SIGKILL once the
// timeout fires. The grace timer is cancelled when exit wins the race.
func (r *Runner) wait(ctx context.Context, cmd *exec.Cmd, timeout time.Duration) (err error, timedOut bool) {
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err = <-done:
		return err, false
	case <-ctx.Done():
		r.terminate(cmd, done)
		return ctx.Err(), false
	case <-timer.C:
		r.terminate(cmd, done)
		return nil, true
	}
}

// terminate sends SIGTERM, waits out the grace period, and only then
// sends SIGKILL. A process that exits first is never force-killed.
func (r *Runner) terminate(cmd *exec.Cmd, done chan error) {
	if cmd.Process != nil {
		_ = cmd.Process.Signal(syscall.SIGTERM)
	}

	grace := time.NewTimer(r.gracePeriod())
	defer grace.Stop()

	select {
	case <-done:
	case <-grace.C:
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		<-done
	}
}

func parseValue(resolverName string, stdout *cappedBuffer) (string, error) {
	var firstLine string
	for _, line := range strings.Split(stdout.String(), "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) != "" {
			firstLine = line
			break
		}
	}

	if firstLine == "" {
		return "", &Error{
			Resolver:  resolverName,
			Detail:    "no output",
			Truncated: stdout.Truncated(),
		}
	}

	var resp response
	if err := json.Unmarshal([]byte(firstLine), &resp); err != nil {
		return "", &Error{
			Resolver:  resolverName,
			Detail:    fmt.Sprintf("invalid JSON output: %v", err),
			Truncated: stdout.Truncated(),
		}
	}
	if resp.Value == nil {
		return "", &Error{
			Resolver:  resolverName,
			Detail:    `output missing "value" field`,
			Truncated: stdout.Truncated(),
		}
	}

	return *resp.Value, nil
}

func exitDetail(err error) string {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			return fmt.Sprintf("killed by signal %s", status.Signal())
		}
		return fmt.Sprintf("exited with code %d", exitErr.ExitCode())
	}
	return err.Error()
}

func (r *Runner) gracePeriod() time.Duration {
	if r.GracePeriod > 0 {
		return r.GracePeriod
	}
	return DefaultGracePeriod
}

func (r *Runner) stdoutLimit() int {
	if r.StdoutLimit > 0 {
		return r.StdoutLimit
	}
	return MaxStdoutBytes
}

func (r *Runner) stderrLimit() int {
	if r.StderrLimit > 0 {
		return r.StderrLimit
	}
	return MaxStderrBytes
}

// ResolverFunc adapts a definition to the in-process resolver signature
// used by the interpolation table.
func (r *Runner) ResolverFunc(def Definition, resolverName, projectRoot string) func(context.Context, []string) (string, error) {
	return func(ctx context.Context, args []string) (string, error) {
		return r.Execute(ctx, def, resolverName, args, projectRoot)
	}
}

// cappedBuffer captures at most limit bytes and remembers whether any
// were discarded.
type cappedBuffer struct {
	mu        sync.Mutex
	buf       []byte
	limit     int
	truncated bool
}

func newCappedBuffer(limit int) *cappedBuffer {
	return &cappedBuffer{limit: limit}
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	remaining := b.limit - len(b.buf)
	if remaining <= 0 {
		b.truncated = true
		return len(p), nil
	}
	if len(p) > remaining {
		b.buf = append(b.buf, p[:remaining]...)
		b.truncated = true
		return len(p), nil
	}
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *cappedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}

func (b *cappedBuffer) Truncated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.truncated
}
