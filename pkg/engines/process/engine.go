// Package process implements engines that run in a separate process and
// speak the runner protocol over its standard streams. Each solve starts a
// fresh runner, which is killed and reaped before Solve returns.
package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openfroyo/planforge/pkg/engine"
	"github.com/openfroyo/planforge/pkg/model"
	"github.com/openfroyo/planforge/pkg/protocol"
	"github.com/openfroyo/planforge/pkg/runner"
	"github.com/openfroyo/planforge/pkg/telemetry"
)

// Defaults for Config.
const (
	DefaultStartupTimeout = 10 * time.Second
	DefaultExitGrace      = 2 * time.Second
)

// Config configures a process engine.
type Config struct {
	// Name is the registered engine name.
	Name string

	// Command is the runner command line.
	Command []string

	// Params are forwarded to the runner with every request.
	Params engine.Params

	// Launcher starts the runner, a LocalLauncher when nil.
	Launcher Launcher

	// StartupTimeout bounds the wait for READY.
	StartupTimeout time.Duration

	// ExitGrace is how long a runner may take to exit once its input is
	// closed before it is killed.
	ExitGrace time.Duration

	Logger *telemetry.Logger
	Events *telemetry.EventPublisher
}

// Engine is a oneshot planner backed by runner processes.
type Engine struct {
	cfg    Config
	logger *telemetry.Logger

	mu     sync.Mutex
	active map[Runner]struct{}
	closed bool
}

// New creates a process engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Name == "" {
		return nil, errors.New("engine name is required")
	}
	if len(cfg.Command) == 0 {
		return nil, fmt.Errorf("engine %s: command is required", cfg.Name)
	}
	if cfg.Launcher == nil {
		cfg.Launcher = &LocalLauncher{}
	}
	if cfg.StartupTimeout <= 0 {
		cfg.StartupTimeout = DefaultStartupTimeout
	}
	if cfg.ExitGrace <= 0 {
		cfg.ExitGrace = DefaultExitGrace
	}
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.NopLogger()
	}
	return &Engine{
		cfg:    cfg,
		logger: logger.NewComponentLogger("process").WithField("engine", cfg.Name),
		active: make(map[Runner]struct{}),
	}, nil
}

func (e *Engine) Name() string { return e.cfg.Name }

// Close kills every running runner. Solves in progress return promptly.
func (e *Engine) Close() error {
	e.mu.Lock()
	e.closed = true
	runners := make([]Runner, 0, len(e.active))
	for r := range e.active {
		runners = append(runners, r)
	}
	e.mu.Unlock()

	var errs []error
	for _, r := range runners {
		if err := r.Kill(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Active returns the number of runners not yet reaped.
func (e *Engine) Active() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.active)
}

func (e *Engine) launch(ctx context.Context) (Runner, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, engine.NewInternalError(e.cfg.Name, "engine is closed", nil)
	}
	r, err := e.cfg.Launcher.Launch(ctx, e.cfg.Command)
	if err != nil {
		return nil, engine.NewLaunchError(e.cfg.Name, err)
	}
	e.active[r] = struct{}{}
	return r, nil
}

// release closes the runner's input, gives it ExitGrace to exit, then
// kills and reaps it.
func (e *Engine) release(r Runner, out *output) {
	_ = r.Stdin().Close()
	if exited, _ := reap(r, out, e.cfg.ExitGrace); !exited {
		e.logger.Warn("runner did not exit, killing it")
		e.kill(r, out)
	}

	e.mu.Lock()
	delete(e.active, r)
	e.mu.Unlock()
}

// kill terminates r and reaps it once its output reader has finished.
func (e *Engine) kill(r Runner, out *output) {
	if err := r.Kill(); err != nil {
		e.logger.WithError(err).Warn("failed to kill runner")
	}
	timer := time.NewTimer(e.cfg.ExitGrace)
	defer timer.Stop()
	if !out.drain(timer.C) {
		// a leftover child may still hold the pipe open
		if c, ok := r.Stdout().(io.Closer); ok {
			_ = c.Close()
		}
		out.drain(nil)
	}
	_ = r.Wait()
}

// reap waits up to d for r to close its output and exit.
func reap(r Runner, out *output, d time.Duration) (bool, error) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	if !out.drain(timer.C) {
		return false, nil
	}

	done := make(chan error, 1)
	go func() { done <- r.Wait() }()
	select {
	case err := <-done:
		return true, err
	case <-timer.C:
		return false, nil
	}
}

// reading is one result of the output reader.
type reading struct {
	msg *protocol.Message
	err error
}

// output decodes a runner's stdout. Runner.Wait must not be called before
// done is closed.
type output struct {
	msgs chan reading
	stop chan struct{}
	done chan struct{}
}

func readOutput(r Runner) *output {
	o := &output{
		msgs: make(chan reading),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go func() {
		defer close(o.done)
		readMessages(protocol.NewDecoder(r.Stdout()), o.msgs, o.stop)
	}()
	return o
}

// drain discards messages until the reader has finished. It reports false
// if deadline fires first; a nil deadline never fires.
func (o *output) drain(deadline <-chan time.Time) bool {
	for {
		select {
		case <-o.done:
			return true
		case <-o.msgs:
		case <-deadline:
			return false
		}
	}
}

// readMessages forwards decoded messages until the first error or until
// stop is closed.
func readMessages(dec *protocol.Decoder, out chan<- reading, stop <-chan struct{}) {
	for {
		msg, err := dec.Decode()
		select {
		case out <- reading{msg: msg, err: err}:
		case <-stop:
			return
		}
		if err != nil {
			return
		}
	}
}

// Solve starts a runner, sends it p and waits for its answer.
func (e *Engine) Solve(ctx context.Context, p *model.Problem, opts engine.SolveOptions) (*engine.PlanResult, error) {
	problem, err := runner.EncodeProblem(p)
	if err != nil {
		return nil, engine.NewInternalError(e.cfg.Name, "failed to encode problem", err)
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}
	start := time.Now()

	r, err := e.launch(ctx)
	if err != nil {
		return nil, err
	}
	out := readOutput(r)
	defer e.release(r, out)
	defer close(out.stop)

	s := &solve{e: e, r: r, p: p, out: out, start: start}
	if err := s.awaitReady(ctx); err != nil {
		return s.interrupted(ctx, err)
	}

	s.req = &protocol.SolveMessage{
		ID:      uuid.New().String(),
		Problem: problem,
		Params:  e.cfg.Params,
		Timeout: opts.Timeout.Seconds(),
	}
	s.logger = e.logger.WithRunID(s.req.ID).WithProblem(p.Name())
	if err := protocol.NewEncoder(r.Stdin()).EncodeSolve(s.req); err != nil {
		// an early exit shows up as a broken pipe; the output tells why
		s.logger.WithError(err).Debug("failed to send request")
	}
	return s.await(ctx)
}

// solve is the state of one request.
type solve struct {
	e      *Engine
	r      Runner
	p      *model.Problem
	out    *output
	start  time.Time
	req    *protocol.SolveMessage
	logger *telemetry.Logger
}

func (s *solve) name() string { return s.e.cfg.Name }

func (s *solve) awaitReady(ctx context.Context) error {
	timer := time.NewTimer(s.e.cfg.StartupTimeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return engine.NewInternalError(s.name(), fmt.Sprintf("runner did not send READY within %s", s.e.cfg.StartupTimeout), nil).
			WithCode(engine.ErrCodeProtocol)
	case rd := <-s.out.msgs:
		var serr *protocol.SyntaxError
		if errors.As(rd.err, &serr) {
			return &engine.ResultParsingError{Engine: s.name(), Line: serr.Line, Output: serr.Text, Err: serr.Err}
		}
		if rd.err != nil {
			return s.crashed(fmt.Errorf("failed to receive READY: %w", rd.err))
		}
		if rd.msg.Type != protocol.MessageTypeReady {
			return s.parsingError(fmt.Errorf("expected READY, got %s", rd.msg.Type))
		}
		var ready protocol.ReadyMessage
		if err := protocol.ParseData(rd.msg.Data, &ready); err != nil {
			return s.parsingError(err)
		}
		if ready.Version != protocol.Version {
			return engine.NewInternalError(s.name(), fmt.Sprintf("runner speaks protocol %q, want %q", ready.Version, protocol.Version), nil).
				WithCode(engine.ErrCodeProtocol)
		}
		s.e.logger.WithField("pid", ready.PID).WithField("platform", ready.Platform+"/"+ready.Arch).Debug("runner ready")
		return nil
	}
}

func (s *solve) await(ctx context.Context) (*engine.PlanResult, error) {
	for {
		var rd reading
		select {
		case <-ctx.Done():
			return s.interrupted(ctx, ctx.Err())
		case rd = <-s.out.msgs:
		}

		var serr *protocol.SyntaxError
		switch {
		case rd.err == io.EOF:
			return s.ended(nil)
		case errors.As(rd.err, &serr):
			return nil, &engine.ResultParsingError{Engine: s.name(), Line: serr.Line, Output: serr.Text, Err: serr.Err}
		case rd.err != nil:
			return nil, s.crashed(fmt.Errorf("failed to read runner output: %w", rd.err))
		}

		msg := rd.msg
		switch msg.Type {
		case protocol.MessageTypeEvent:
			var evt protocol.EventMessage
			if err := protocol.ParseData(msg.Data, &evt); err != nil {
				return nil, s.parsingError(err)
			}
			s.progress(&evt)

		case protocol.MessageTypeDone:
			var done protocol.DoneMessage
			if err := protocol.ParseData(msg.Data, &done); err != nil {
				return nil, s.parsingError(err)
			}
			if done.RequestID != s.req.ID {
				return nil, s.parsingError(fmt.Errorf("request ID mismatch: expected %s, got %s", s.req.ID, done.RequestID))
			}
			res, err := runner.Result(s.name(), s.p, &done)
			if err != nil {
				return nil, err
			}
			res.Duration = time.Since(s.start)
			return res, nil

		case protocol.MessageTypeError:
			var em protocol.ErrorMessage
			if err := protocol.ParseData(msg.Data, &em); err != nil {
				return nil, s.parsingError(err)
			}
			if em.RequestID != "" && em.RequestID != s.req.ID {
				return nil, s.parsingError(fmt.Errorf("request ID mismatch: expected %s, got %s", s.req.ID, em.RequestID))
			}
			s.logger.WithField("code", em.Code).Warn(em.Message)
			return runner.ErrorResult(s.name(), &em), nil

		case protocol.MessageTypeExit:
			var exit protocol.ExitMessage
			if err := protocol.ParseData(msg.Data, &exit); err != nil {
				return nil, s.parsingError(err)
			}
			return s.ended(&exit)

		default:
			return nil, s.parsingError(fmt.Errorf("unexpected %s message", msg.Type))
		}
	}
}

func (s *solve) progress(evt *protocol.EventMessage) {
	logger := s.logger.WithField("runner_level", evt.Level)
	if evt.Progress != nil {
		logger = logger.WithField("current", evt.Progress.Current).WithField("total", evt.Progress.Total)
	}
	logger.Debug(evt.Message)

	data := make(map[string]interface{}, len(evt.Metadata)+1)
	for k, v := range evt.Metadata {
		data[k] = v
	}
	if evt.Progress != nil {
		data["progress"] = evt.Progress
	}
	_ = s.e.cfg.Events.PublishRunnerProgress(s.req.ID, s.name(), evt.Message, data)
}

// ended handles a runner that stopped before answering. A failing exit
// is a crash; a clean one is malformed output.
func (s *solve) ended(exit *protocol.ExitMessage) (*engine.PlanResult, error) {
	exited, err := reap(s.r, s.out, s.e.cfg.ExitGrace)
	switch {
	case exited && err != nil:
		return s.crashResult(fmt.Errorf("runner exited: %w", err)), nil
	case exit != nil && exit.ExitCode != 0:
		return s.crashResult(fmt.Errorf("runner exited with code %d: %s", exit.ExitCode, exit.Reason)), nil
	}
	return nil, s.parsingError(errors.New("runner exited without DONE"))
}

// interrupted kills the runner after ctx ended or startup failed. An
// expired deadline is a timeout; the caller's cancellation is returned.
func (s *solve) interrupted(ctx context.Context, cause error) (*engine.PlanResult, error) {
	s.e.kill(s.r, s.out)

	switch {
	case errors.Is(cause, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded:
		res := engine.NewPlanResult(s.name(), engine.StatusTimeout)
		res.Log = s.r.Stderr()
		res.Duration = time.Since(s.start)
		return res, nil
	case ctx.Err() != nil:
		return nil, ctx.Err()
	default:
		return nil, cause
	}
}

func (s *solve) crashed(err error) error {
	return engine.NewInternalError(s.name(), "runner failed", err).WithDetail("stderr", s.r.Stderr())
}

func (s *solve) crashResult(err error) *engine.PlanResult {
	res := engine.NewPlanResult(s.name(), engine.StatusInternalError)
	var b strings.Builder
	b.WriteString(err.Error())
	if tail := strings.TrimSpace(s.r.Stderr()); tail != "" {
		b.WriteString("\n")
		b.WriteString(tail)
	}
	res.Log = b.String()
	res.Duration = time.Since(s.start)
	return res
}

func (s *solve) parsingError(err error) error {
	return &engine.ResultParsingError{Engine: s.name(), Err: err}
}
