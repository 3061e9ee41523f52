package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"time"

	"github.com/openfroyo/planforge/pkg/engine"
	"github.com/openfroyo/planforge/pkg/protocol"
	"github.com/openfroyo/planforge/pkg/telemetry"
)

// SolverFactory creates the solver for one request.
type SolverFactory func(params engine.Params) (engine.Solver, error)

// Server answers SOLVE requests read from a stream.
type Server struct {
	// Engine is the name announced in READY.
	Engine  string
	Factory SolverFactory

	// Metadata is announced in READY.
	Metadata map[string]string
	Logger   *telemetry.Logger
}

// Serve sends READY, then answers requests until r reaches EOF, and sends
// EXIT. Requests are handled one at a time. Malformed lines are answered
// with BAD_REQUEST and skipped. It returns the number of requests served.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) (int, error) {
	logger := s.Logger
	if logger == nil {
		logger = telemetry.NopLogger()
	}
	logger = logger.NewComponentLogger("runner").WithField("engine", s.Engine)

	enc := protocol.NewEncoder(w)
	dec := protocol.NewDecoder(r)

	ready := &protocol.ReadyMessage{
		Version:  protocol.Version,
		Engine:   s.Engine,
		Platform: runtime.GOOS,
		Arch:     runtime.GOARCH,
		PID:      os.Getpid(),
		Metadata: s.Metadata,
	}
	if err := enc.EncodeReady(ready); err != nil {
		return 0, fmt.Errorf("failed to send ready: %w", err)
	}
	logger.Debug("runner ready")

	requests := 0
	for {
		msg, err := dec.Decode()
		var serr *protocol.SyntaxError
		switch {
		case err == io.EOF:
			logger.WithField("requests", requests).Debug("input closed")
			if err := enc.EncodeExit(&protocol.ExitMessage{Reason: "input closed", Requests: requests}); err != nil {
				return requests, fmt.Errorf("failed to send exit: %w", err)
			}
			return requests, nil
		case errors.As(err, &serr):
			logger.WithError(err).Warn("malformed request")
			if err := enc.EncodeError(&protocol.ErrorMessage{Code: protocol.ErrCodeBadRequest, Message: serr.Error()}); err != nil {
				return requests, err
			}
			continue
		case err != nil:
			_ = enc.EncodeExit(&protocol.ExitMessage{Reason: err.Error(), ExitCode: 1, Requests: requests})
			return requests, err
		}

		if msg.Type != protocol.MessageTypeSolve {
			if err := enc.EncodeError(&protocol.ErrorMessage{
				Code:    protocol.ErrCodeBadRequest,
				Message: fmt.Sprintf("unexpected %s message", msg.Type),
			}); err != nil {
				return requests, err
			}
			continue
		}

		requests++
		if err := s.handle(ctx, enc, msg, logger); err != nil {
			return requests, err
		}
	}
}

// handle answers one SOLVE message. Only write failures are returned.
func (s *Server) handle(ctx context.Context, enc *protocol.Encoder, msg *protocol.Message, logger *telemetry.Logger) error {
	var req protocol.SolveMessage
	if err := protocol.ParseData(msg.Data, &req); err != nil {
		return enc.EncodeError(&protocol.ErrorMessage{Code: protocol.ErrCodeBadRequest, Message: err.Error()})
	}
	if err := req.Validate(); err != nil {
		return enc.EncodeError(&protocol.ErrorMessage{RequestID: req.ID, Code: protocol.ErrCodeBadRequest, Message: err.Error()})
	}
	logger = logger.WithRunID(req.ID)

	p, err := DecodeProblem(req.Problem)
	if err != nil {
		logger.WithError(err).Warn("rejected problem")
		return enc.EncodeError(&protocol.ErrorMessage{RequestID: req.ID, Code: protocol.ErrCodeBadProblem, Message: err.Error()})
	}

	solver, err := s.Factory(engine.Params(req.Params))
	if err != nil {
		return enc.EncodeError(&protocol.ErrorMessage{RequestID: req.ID, Code: protocol.ErrCodeBadRequest, Message: err.Error()})
	}
	defer solver.Close()

	timeout := time.Duration(req.Timeout * float64(time.Second))
	var (
		solveCtx context.Context
		cancel   context.CancelFunc
	)
	if timeout > 0 {
		solveCtx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		solveCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	if err := enc.EncodeEvent(&protocol.EventMessage{
		RequestID: req.ID,
		Message:   fmt.Sprintf("solving %s", p.Name()),
		Metadata:  map[string]string{"actions": fmt.Sprint(len(p.Actions())), "objects": fmt.Sprint(len(p.Objects()))},
	}); err != nil {
		return err
	}

	start := time.Now()
	res, err := solver.Solve(solveCtx, p, engine.SolveOptions{Timeout: timeout})
	elapsed := time.Since(start).Seconds()

	expired := ctx.Err() == nil && errors.Is(solveCtx.Err(), context.DeadlineExceeded)
	switch {
	case expired && (err != nil || res == nil || !res.Status.IsDefinitive()):
		logger.Debug("request timed out")
		return enc.EncodeDone(&protocol.DoneMessage{RequestID: req.ID, Status: string(engine.StatusTimeout), Duration: elapsed})
	case errors.Is(err, engine.ErrUnsupportedProblem):
		return enc.EncodeError(&protocol.ErrorMessage{RequestID: req.ID, Code: protocol.ErrCodeUnsupported, Message: err.Error()})
	case err != nil:
		logger.WithError(err).Warn("solve failed")
		return enc.EncodeError(&protocol.ErrorMessage{RequestID: req.ID, Code: protocol.ErrCodeInternal, Message: err.Error()})
	case res == nil:
		return enc.EncodeError(&protocol.ErrorMessage{RequestID: req.ID, Code: protocol.ErrCodeInternal, Message: "solver returned no result"})
	}

	logger.WithField("status", string(res.Status)).Debug("request solved")
	return enc.EncodeDone(&protocol.DoneMessage{
		RequestID: req.ID,
		Status:    string(res.Status),
		Plan:      Steps(res.Plan),
		Metrics:   res.Metrics,
		Log:       res.Log,
		Duration:  elapsed,
	})
}
