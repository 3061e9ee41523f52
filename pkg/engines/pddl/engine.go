// Package pddl drives external PDDL planners. A problem is written as a
// domain and problem file pair, the planner command is started with the
// file paths substituted into its template, and the plan is read back from
// the plan file or the planner's standard output.
package pddl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/openfroyo/planforge/pkg/engine"
	"github.com/openfroyo/planforge/pkg/engines/process"
	"github.com/openfroyo/planforge/pkg/model"
	"github.com/openfroyo/planforge/pkg/telemetry"
)

// Placeholders in command templates.
const (
	PlaceholderDomain  = "{domain}"
	PlaceholderProblem = "{problem}"
	PlaceholderPlan    = "{plan}"
)

// DefaultUnsolvableMarkers are output fragments, matched case-insensitively,
// by which common planners report that no plan exists.
var DefaultUnsolvableMarkers = []string{
	"no solution",
	"unsolvable",
	"problem proven unsolvable",
	"goal can be simplified to false",
}

// MaxOutput bounds the captured standard output of a planner.
const MaxOutput = 4 * 1024 * 1024

// Config configures a PDDL engine.
type Config struct {
	Name string

	// Command is the planner invocation. Arguments may contain {domain},
	// {problem}, {plan} and {KEY} for any engine parameter KEY.
	Command []string

	Params engine.Params

	// UnsolvableMarkers replace DefaultUnsolvableMarkers when set.
	UnsolvableMarkers []string

	// PlanFile is where the planner writes its plan, relative to the work
	// directory. The default is the path substituted for {plan}.
	PlanFile string

	// WorkDir holds the per-solve directories, the system temp dir when empty.
	WorkDir string

	// KeepFiles leaves the per-solve directory in place.
	KeepFiles bool

	// Env is the environment of the planner, the current one when nil.
	Env []string

	// Launcher starts the planner. The default runs it locally inside the
	// per-solve directory.
	Launcher process.Launcher

	Logger *telemetry.Logger
}

// Engine is a oneshot planner backed by an external PDDL planner.
type Engine struct {
	cfg     Config
	markers []string
	logger  *telemetry.Logger
}

// New creates an engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Name == "" {
		return nil, errors.New("engine name is required")
	}
	if len(cfg.Command) == 0 {
		return nil, fmt.Errorf("engine %s: command is required", cfg.Name)
	}
	markers := cfg.UnsolvableMarkers
	if len(markers) == 0 {
		markers = DefaultUnsolvableMarkers
	}
	lowered := make([]string, len(markers))
	for i, m := range markers {
		lowered[i] = strings.ToLower(m)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.NopLogger()
	}
	return &Engine{
		cfg:     cfg,
		markers: lowered,
		logger:  logger.NewComponentLogger("pddl").WithField("engine", cfg.Name),
	}, nil
}

func (e *Engine) Name() string { return e.cfg.Name }

func (e *Engine) Close() error { return nil }

// Solve writes p, runs the planner and reads its plan.
func (e *Engine) Solve(ctx context.Context, p *model.Problem, opts engine.SolveOptions) (*engine.PlanResult, error) {
	if missing := p.Kind().Missing(Kind()); len(missing) > 0 {
		return nil, &engine.UnsupportedProblemError{Engine: e.cfg.Name, Missing: missing}
	}
	files, err := Write(p)
	if errors.Is(err, ErrInexpressible) {
		e.logger.WithError(err).Debug("problem not expressible")
		return nil, &engine.UnsupportedProblemError{Engine: e.cfg.Name}
	}
	if err != nil {
		return nil, engine.NewInternalError(e.cfg.Name, "failed to write PDDL", err)
	}

	dir, err := os.MkdirTemp(e.cfg.WorkDir, "planforge-pddl-")
	if err != nil {
		return nil, engine.NewInternalError(e.cfg.Name, "failed to create work directory", err)
	}
	if e.cfg.KeepFiles {
		e.logger.WithField("dir", dir).Debug("keeping PDDL files")
	} else {
		defer os.RemoveAll(dir)
	}

	domainPath := filepath.Join(dir, "domain.pddl")
	problemPath := filepath.Join(dir, "problem.pddl")
	planPath := filepath.Join(dir, "plan.txt")
	if err := os.WriteFile(domainPath, []byte(files.Domain), 0o644); err != nil {
		return nil, engine.NewInternalError(e.cfg.Name, "failed to write domain", err)
	}
	if err := os.WriteFile(problemPath, []byte(files.Problem), 0o644); err != nil {
		return nil, engine.NewInternalError(e.cfg.Name, "failed to write problem", err)
	}
	if e.cfg.PlanFile != "" {
		planPath = e.cfg.PlanFile
		if !filepath.IsAbs(planPath) {
			planPath = filepath.Join(dir, planPath)
		}
	}

	argv := Expand(e.cfg.Command, e.cfg.Params, domainPath, problemPath, planPath)

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	launcher := e.cfg.Launcher
	if launcher == nil {
		launcher = &process.LocalLauncher{Dir: dir, Env: e.cfg.Env}
	}

	start := time.Now()
	e.logger.WithField("command", strings.Join(argv, " ")).Debug("starting planner")
	r, err := launcher.Launch(ctx, argv)
	if err != nil {
		return nil, engine.NewLaunchError(e.cfg.Name, err)
	}
	_ = r.Stdin().Close()

	var stdout strings.Builder
	_, copyErr := io.Copy(&stdout, io.LimitReader(r.Stdout(), MaxOutput))
	if copyErr == nil {
		_, copyErr = io.Copy(io.Discard, r.Stdout())
	}
	waitErr := r.Wait()

	run := &planRun{
		e:        e,
		names:    files.Names,
		stdout:   stdout.String(),
		stderr:   r.Stderr(),
		planPath: planPath,
		waitErr:  waitErr,
		start:    start,
	}

	switch {
	case ctx.Err() == context.DeadlineExceeded:
		return run.result(engine.StatusTimeout, nil), nil
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case copyErr != nil:
		return nil, engine.NewInternalError(e.cfg.Name, "failed to read planner output", copyErr)
	}
	return run.interpret()
}

type planRun struct {
	e        *Engine
	names    *Names
	stdout   string
	stderr   string
	planPath string
	waitErr  error
	start    time.Time
}

// interpret turns a finished planner run into a result. A plan file wins,
// then an unsolvable marker, then steps on standard output.
func (r *planRun) interpret() (*engine.PlanResult, error) {
	name := r.e.cfg.Name

	if data, err := os.ReadFile(r.planPath); err == nil {
		plan, _, err := ParsePlan(name, string(data), r.names, true)
		if err != nil {
			return nil, err
		}
		res := r.result(engine.StatusSolvedSatisficing, plan)
		res.Metrics["plan_source"] = "file"
		return res, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, engine.NewInternalError(name, "failed to read plan file", err)
	}

	if marker, ok := r.unsolvable(); ok {
		res := r.result(engine.StatusUnsolvableIncompletely, nil)
		res.Metrics["marker"] = marker
		return res, nil
	}

	plan, n, err := ParsePlan(name, r.stdout, r.names, false)
	if err != nil {
		return nil, err
	}
	if n > 0 {
		res := r.result(engine.StatusSolvedSatisficing, plan)
		res.Metrics["plan_source"] = "stdout"
		return res, nil
	}

	if r.waitErr != nil {
		res := r.result(engine.StatusInternalError, nil)
		res.Log = strings.TrimSpace(fmt.Sprintf("planner failed: %v\n%s", r.waitErr, r.stderr))
		return res, nil
	}
	return nil, &engine.ResultParsingError{Engine: name, Err: errors.New("planner produced no plan")}
}

func (r *planRun) unsolvable() (string, bool) {
	output := strings.ToLower(r.stdout + "\n" + r.stderr)
	for _, m := range r.e.markers {
		if strings.Contains(output, m) {
			return m, true
		}
	}
	return "", false
}

func (r *planRun) result(status engine.Status, plan *model.SequentialPlan) *engine.PlanResult {
	res := engine.NewPlanResult(r.e.cfg.Name, status)
	res.Plan = plan
	res.Metrics = map[string]string{}
	res.Log = strings.TrimSpace(r.stderr)
	res.Duration = time.Since(r.start)
	return res
}

// Expand substitutes the file placeholders and engine parameters into a
// command template.
func Expand(template []string, params engine.Params, domain, problem, plan string) []string {
	pairs := []string{PlaceholderDomain, domain, PlaceholderProblem, problem, PlaceholderPlan, plan}
	for k, v := range params {
		pairs = append(pairs, "{"+k+"}", v)
	}
	replacer := strings.NewReplacer(pairs...)

	out := make([]string, len(template))
	for i, arg := range template {
		out[i] = replacer.Replace(arg)
	}
	return out
}
