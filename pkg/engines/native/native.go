// Package native implements native-bfs, an in-process forward-search
// planner over the simulator. It is the planner of last resort: slow, but
// able to handle every feature the simulator understands.
package native

import (
	"container/heap"
	"context"
	"fmt"
	"strconv"

	"github.com/openfroyo/planforge/pkg/capability"
	"github.com/openfroyo/planforge/pkg/engine"
	"github.com/openfroyo/planforge/pkg/model"
	"github.com/openfroyo/planforge/pkg/simulator"
)

// Name is the registered name of the planner.
const Name = "native-bfs"

// Search heuristics.
const (
	HeuristicBlind     = "blind"
	HeuristicGoalCount = "goalcount"
)

// DefaultMaxStates bounds the number of generated states.
const DefaultMaxStates = 200000

// Options configures the planner.
type Options struct {
	// Heuristic is HeuristicBlind for breadth-first search or
	// HeuristicGoalCount for greedy best-first search.
	Heuristic string

	// MaxStates bounds the number of distinct generated states.
	MaxStates int
}

// OptionsFromParams reads the "heuristic" and "max_states" parameters.
func OptionsFromParams(params engine.Params) (Options, error) {
	opts := Options{Heuristic: params.Get("heuristic", HeuristicBlind)}
	switch opts.Heuristic {
	case HeuristicBlind, HeuristicGoalCount:
	default:
		return Options{}, fmt.Errorf("unknown heuristic %q (expected %s or %s)", opts.Heuristic, HeuristicBlind, HeuristicGoalCount)
	}
	n, err := params.Int("max_states", DefaultMaxStates)
	if err != nil {
		return Options{}, err
	}
	if n <= 0 {
		return Options{}, fmt.Errorf("parameter max_states must be positive, got %d", n)
	}
	opts.MaxStates = n
	return opts, nil
}

// Kind returns the features the planner accepts.
func Kind() capability.Kind {
	var features []capability.Feature
	for _, f := range capability.AllFeatures() {
		if f != capability.ContinuousTime {
			features = append(features, f)
		}
	}
	return capability.NewKind(features...)
}

// Registration describes the planner for an engine registry.
func Registration() engine.Registration {
	return engine.Registration{
		Name:        Name,
		Description: "In-process breadth-first and greedy best-first search",
		Priority:    10,
		Modes:       map[engine.OperationMode]capability.Kind{engine.ModeOneshotPlanner: Kind()},
		Params:      engine.Params{"heuristic": HeuristicBlind},
		Factory: func(params engine.Params) (engine.Engine, error) {
			opts, err := OptionsFromParams(params)
			if err != nil {
				return nil, err
			}
			return New(opts), nil
		},
		Source: "builtin",
	}
}

// Register adds the planner to reg.
func Register(reg *engine.Registry) error {
	return reg.Register(Registration())
}

// Planner is the native-bfs engine.
type Planner struct {
	opts Options
}

// New creates a planner. Zero options select breadth-first search with
// DefaultMaxStates.
func New(opts Options) *Planner {
	if opts.Heuristic == "" {
		opts.Heuristic = HeuristicBlind
	}
	if opts.MaxStates <= 0 {
		opts.MaxStates = DefaultMaxStates
	}
	return &Planner{opts: opts}
}

func (pl *Planner) Name() string { return Name }

func (pl *Planner) Close() error { return nil }

type node struct {
	state  *model.State
	parent *node
	action *model.ActionInstance
	depth  int
	h      int
	seq    int
}

// frontier orders nodes by heuristic value, then by generation order. With
// the blind heuristic every h is zero and it behaves as a FIFO queue.
type frontier []*node

func (f frontier) Len() int { return len(f) }
func (f frontier) Less(i, j int) bool {
	if f[i].h != f[j].h {
		return f[i].h < f[j].h
	}
	return f[i].seq < f[j].seq
}
func (f frontier) Swap(i, j int) { f[i], f[j] = f[j], f[i] }
func (f *frontier) Push(x any)   { *f = append(*f, x.(*node)) }
func (f *frontier) Pop() any {
	old := *f
	n := old[len(old)-1]
	*f = old[:len(old)-1]
	return n
}

// Solve searches for a plan. It returns ctx.Err() when ctx ends first.
func (pl *Planner) Solve(ctx context.Context, p *model.Problem, opts engine.SolveOptions) (*engine.PlanResult, error) {
	sim := simulator.New(p)
	initial, err := sim.InitialState()
	if err != nil {
		return nil, err
	}

	var instances []*model.ActionInstance
	for _, a := range p.Actions() {
		instances = append(instances, sim.Instances(a)...)
	}

	greedy := pl.opts.Heuristic == HeuristicGoalCount
	heuristic := func(st *model.State) (int, error) {
		if !greedy {
			return 0, nil
		}
		return sim.CountUnmetGoals(st)
	}

	h, err := heuristic(initial)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{initial.Fingerprint(): true}
	open := &frontier{{state: initial, h: h}}
	seq, expanded := 0, 0
	truncated := false

	for open.Len() > 0 {
		n := heap.Pop(open).(*node)
		if expanded%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		goal, err := sim.UnmetGoal(n.state)
		if err != nil {
			return nil, err
		}
		if goal == nil {
			status := engine.StatusSolvedOptimally
			if greedy {
				status = engine.StatusSolvedSatisficing
			}
			res := engine.NewPlanResult(Name, status)
			res.Plan = extract(n)
			res.Metrics = pl.metrics(expanded, len(seen))
			return res, nil
		}

		expanded++
		for _, ai := range instances {
			next, viol, err := sim.Step(n.state, ai)
			if err != nil {
				return nil, err
			}
			if viol != nil {
				continue
			}
			fp := next.Fingerprint()
			if seen[fp] {
				continue
			}
			if len(seen) >= pl.opts.MaxStates {
				truncated = true
				continue
			}
			seen[fp] = true
			h, err := heuristic(next)
			if err != nil {
				return nil, err
			}
			seq++
			heap.Push(open, &node{state: next, parent: n, action: ai, depth: n.depth + 1, h: h, seq: seq})
		}
	}

	status := engine.StatusUnsolvableProven
	if truncated {
		status = engine.StatusUnsolvableIncompletely
	}
	res := engine.NewPlanResult(Name, status)
	res.Metrics = pl.metrics(expanded, len(seen))
	if truncated {
		res.Log = fmt.Sprintf("search stopped at max_states=%d", pl.opts.MaxStates)
	}
	return res, nil
}

func (pl *Planner) metrics(expanded, generated int) map[string]string {
	return map[string]string{
		"expanded":  strconv.Itoa(expanded),
		"generated": strconv.Itoa(generated),
		"heuristic": pl.opts.Heuristic,
	}
}

func extract(n *node) *model.SequentialPlan {
	steps := make([]*model.ActionInstance, n.depth)
	for ; n.parent != nil; n = n.parent {
		steps[n.depth-1] = n.action
	}
	return model.NewSequentialPlan(steps...)
}
