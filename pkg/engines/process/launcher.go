package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"
)

// Runner is a started runner process.
type Runner interface {
	// Stdin carries requests to the runner. Closing it asks the runner to exit.
	Stdin() io.WriteCloser

	// Stdout carries protocol messages from the runner.
	Stdout() io.Reader

	// Stderr returns the tail of the runner's diagnostic output.
	Stderr() string

	// Kill terminates the runner. Killing an exited runner is not an error.
	Kill() error

	// Wait blocks until the runner exits and reaps it. It may be called
	// more than once and concurrently; every call returns the same error.
	Wait() error
}

// Launcher starts runner processes.
type Launcher interface {
	Launch(ctx context.Context, argv []string) (Runner, error)
}

// StderrLimit bounds the captured diagnostic output of a runner.
const StderrLimit = 16 * 1024

// LocalLauncher starts runners as local subprocesses.
type LocalLauncher struct {
	// Dir is the working directory, the current one when empty.
	Dir string

	// Env is the environment, the current one when nil.
	Env []string
}

// Launch starts argv. The process is killed when ctx ends.
func (l *LocalLauncher) Launch(ctx context.Context, argv []string) (Runner, error) {
	if len(argv) == 0 {
		return nil, errors.New("empty command")
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = l.Dir
	cmd.Env = l.Env
	// bounds Wait when a grandchild keeps the output pipes open
	cmd.WaitDelay = time.Second

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr := NewTailBuffer(StderrLimit)
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", argv[0], err)
	}

	return &LocalRunner{
		cmd:    cmd,
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
		exited: make(chan struct{}),
	}, nil
}

// LocalRunner is a runner started by LocalLauncher.
type LocalRunner struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.Reader
	stderr *TailBuffer

	waitOnce sync.Once
	waitErr  error
	exited   chan struct{}
}

func (r *LocalRunner) Stdin() io.WriteCloser { return r.stdin }
func (r *LocalRunner) Stdout() io.Reader       { return r.stdout }
func (r *LocalRunner) Stderr() string          { return r.stderr.String() }

// PID returns the process ID.
func (r *LocalRunner) PID() int { return r.cmd.Process.Pid }

func (r *LocalRunner) Kill() error {
	if err := r.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("failed to kill runner %d: %w", r.cmd.Process.Pid, err)
	}
	return nil
}

func (r *LocalRunner) Wait() error {
	r.waitOnce.Do(func() {
		r.waitErr = r.cmd.Wait()
		close(r.exited)
	})
	return r.waitErr
}

// Exited reports whether the process has been reaped.
func (r *LocalRunner) Exited() bool {
	select {
	case <-r.exited:
		return true
	default:
		return false
	}
}

// TailBuffer is an io.Writer that keeps the last bytes written to it. It is
// safe for concurrent use.
type TailBuffer struct {
	mu    sync.Mutex
	buf   []byte
	limit int
}

// NewTailBuffer returns a buffer keeping at most limit bytes.
func NewTailBuffer(limit int) *TailBuffer {
	return &TailBuffer{limit: limit}
}

func (b *TailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.limit; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
	}
	return len(p), nil
}

func (b *TailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
