// Package wasm runs runner modules compiled to WASI. The module is compiled
// once per engine; every solve instantiates it with one SOLVE request on
// stdin and reads the protocol messages it wrote to stdout.
package wasm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/tetratelabs/wazero/sys"

	"github.com/openfroyo/planforge/pkg/engine"
	"github.com/openfroyo/planforge/pkg/engines/process"
	"github.com/openfroyo/planforge/pkg/model"
	"github.com/openfroyo/planforge/pkg/protocol"
	"github.com/openfroyo/planforge/pkg/runner"
	"github.com/openfroyo/planforge/pkg/telemetry"
)

// DefaultMemoryLimitPages is 4096 pages of 64KB each (256MB).
const DefaultMemoryLimitPages = 4096

// Config configures a wasm engine.
type Config struct {
	Name string

	// Module is the path of the .wasm file. Binary takes precedence when set.
	Module string
	Binary []byte

	Params engine.Params

	// Args are passed to the module after its name.
	Args []string

	// MemoryLimitPages bounds the module memory in 64KB pages.
	MemoryLimitPages uint32

	Logger *telemetry.Logger
	Events *telemetry.EventPublisher
}

// Engine is a oneshot planner backed by a WASI runner module.
type Engine struct {
	cfg      Config
	runtime  wazero.Runtime
	compiled wazero.CompiledModule
	logger   *telemetry.Logger
}

// New compiles the module. The returned engine must be closed.
func New(ctx context.Context, cfg Config) (*Engine, error) {
	if cfg.Name == "" {
		return nil, errors.New("engine name is required")
	}
	binary := cfg.Binary
	if binary == nil {
		if cfg.Module == "" {
			return nil, fmt.Errorf("engine %s: module is required", cfg.Name)
		}
		data, err := os.ReadFile(cfg.Module)
		if err != nil {
			return nil, fmt.Errorf("engine %s: failed to read module: %w", cfg.Name, err)
		}
		binary = data
	}
	if cfg.MemoryLimitPages == 0 {
		cfg.MemoryLimitPages = DefaultMemoryLimitPages
	}
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.NopLogger()
	}

	runtimeConfig := wazero.NewRuntimeConfig().
		WithMemoryLimitPages(cfg.MemoryLimitPages).
		WithCloseOnContextDone(true)
	rt := wazero.NewRuntimeWithConfig(ctx, runtimeConfig)

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("failed to instantiate WASI: %w", err)
	}

	compiled, err := rt.CompileModule(ctx, binary)
	if err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("engine %s: failed to compile module: %w", cfg.Name, err)
	}

	return &Engine{
		cfg:      cfg,
		runtime:  rt,
		compiled: compiled,
		logger:   logger.NewComponentLogger("wasm").WithField("engine", cfg.Name),
	}, nil
}

func (e *Engine) Name() string { return e.cfg.Name }

// Close releases the compiled module and the runtime.
func (e *Engine) Close() error {
	return e.runtime.Close(context.Background())
}

// Solve runs the module on p.
func (e *Engine) Solve(ctx context.Context, p *model.Problem, opts engine.SolveOptions) (*engine.PlanResult, error) {
	data, err := runner.EncodeProblem(p)
	if err != nil {
		return nil, engine.NewInternalError(e.cfg.Name, "failed to encode problem", err)
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	req := &protocol.SolveMessage{
		ID:      uuid.New().String(),
		Problem: data,
		Params:  e.cfg.Params,
		Timeout: opts.Timeout.Seconds(),
	}
	var stdin bytes.Buffer
	if err := protocol.NewEncoder(&stdin).EncodeSolve(req); err != nil {
		return nil, engine.NewInternalError(e.cfg.Name, "failed to encode request", err)
	}

	var stdout bytes.Buffer
	stderr := process.NewTailBuffer(process.StderrLimit)
	config := wazero.NewModuleConfig().
		WithName("").
		WithArgs(append([]string{e.cfg.Name}, e.cfg.Args...)...).
		WithStdin(&stdin).
		WithStdout(&stdout).
		WithStderr(stderr).
		WithSysWalltime().
		WithSysNanotime().
		WithSysNanosleep()

	start := time.Now()
	e.logger.WithField("request_id", req.ID).Debug("running module")
	mod, runErr := e.runtime.InstantiateModule(ctx, e.compiled, config)
	if mod != nil {
		_ = mod.Close(context.Background())
	}

	var exitErr *sys.ExitError
	exitCode := uint32(0)
	if errors.As(runErr, &exitErr) {
		exitCode = exitErr.ExitCode()
		runErr = nil
	}

	s := &solve{e: e, p: p, req: req, stderr: stderr, start: start}
	switch {
	case ctx.Err() == context.DeadlineExceeded:
		res := engine.NewPlanResult(e.cfg.Name, engine.StatusTimeout)
		res.Log = stderr.String()
		res.Duration = time.Since(start)
		return res, nil
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case runErr != nil:
		return s.crashResult(fmt.Errorf("module failed: %w", runErr)), nil
	}
	return s.read(&stdout, exitCode)
}

type solve struct {
	e      *Engine
	p      *model.Problem
	req    *protocol.SolveMessage
	stderr *process.TailBuffer
	start  time.Time
}

// read interprets the messages the module wrote.
func (s *solve) read(out io.Reader, exitCode uint32) (*engine.PlanResult, error) {
	name := s.e.cfg.Name
	dec := protocol.NewDecoder(out)

	for ready := false; ; {
		msg, err := dec.Decode()
		var serr *protocol.SyntaxError
		switch {
		case err == io.EOF:
			if exitCode != 0 {
				return s.crashResult(fmt.Errorf("module exited with code %d", exitCode)), nil
			}
			return nil, &engine.ResultParsingError{Engine: name, Err: errors.New("module exited without DONE")}
		case errors.As(err, &serr):
			return nil, &engine.ResultParsingError{Engine: name, Line: serr.Line, Output: serr.Text, Err: serr.Err}
		case err != nil:
			return nil, engine.NewInternalError(name, "failed to read module output", err)
		}

		if !ready {
			if msg.Type != protocol.MessageTypeReady {
				return nil, &engine.ResultParsingError{Engine: name, Line: dec.Line(), Err: fmt.Errorf("expected READY, got %s", msg.Type)}
			}
			var r protocol.ReadyMessage
			if err := protocol.ParseData(msg.Data, &r); err != nil {
				return nil, &engine.ResultParsingError{Engine: name, Line: dec.Line(), Err: err}
			}
			if r.Version != protocol.Version {
				return nil, engine.NewInternalError(name, fmt.Sprintf("module speaks protocol %q, want %q", r.Version, protocol.Version), nil).
					WithCode(engine.ErrCodeProtocol)
			}
			ready = true
			continue
		}

		switch msg.Type {
		case protocol.MessageTypeEvent:
			var evt protocol.EventMessage
			if err := protocol.ParseData(msg.Data, &evt); err == nil {
				s.e.logger.WithField("request_id", s.req.ID).Debug(evt.Message)
				_ = s.e.cfg.Events.PublishRunnerProgress(s.req.ID, name, evt.Message, nil)
			}
		case protocol.MessageTypeDone:
			var done protocol.DoneMessage
			if err := protocol.ParseData(msg.Data, &done); err != nil {
				return nil, &engine.ResultParsingError{Engine: name, Line: dec.Line(), Err: err}
			}
			if done.RequestID != s.req.ID {
				return nil, &engine.ResultParsingError{Engine: name, Line: dec.Line(), Err: fmt.Errorf("DONE for unknown request %q", done.RequestID)}
			}
			res, err := runner.Result(name, s.p, &done)
			if err != nil {
				return nil, err
			}
			res.Duration = time.Since(s.start)
			return res, nil
		case protocol.MessageTypeError:
			var em protocol.ErrorMessage
			if err := protocol.ParseData(msg.Data, &em); err != nil {
				return nil, &engine.ResultParsingError{Engine: name, Line: dec.Line(), Err: err}
			}
			res := runner.ErrorResult(name, &em)
			res.Duration = time.Since(s.start)
			return res, nil
		case protocol.MessageTypeExit:
			// EXIT before DONE; the EOF case reports it
		default:
			return nil, &engine.ResultParsingError{Engine: name, Line: dec.Line(), Err: fmt.Errorf("unexpected %s message", msg.Type)}
		}
	}
}

func (s *solve) crashResult(err error) *engine.PlanResult {
	res := engine.NewPlanResult(s.e.cfg.Name, engine.StatusInternalError)
	res.Log = err.Error()
	if tail := s.stderr.String(); tail != "" {
		res.Log += "\n" + tail
	}
	res.Duration = time.Since(s.start)
	return res
}
