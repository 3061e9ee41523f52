package grounding

import (
	"context"

	"github.com/openfroyo/planforge/pkg/capability"
	"github.com/openfroyo/planforge/pkg/engine"
	"github.com/openfroyo/planforge/pkg/model"
)

// Name is the registered name of the grounding compiler.
const Name = "grounder"

// Kind returns the features the grounder accepts.
func Kind() capability.Kind {
	var features []capability.Feature
	for _, f := range capability.AllFeatures() {
		if f != capability.ContinuousTime {
			features = append(features, f)
		}
	}
	return capability.NewKind(features...)
}

// Register adds the grounder to reg.
func Register(reg *engine.Registry) error {
	return reg.Register(engine.Registration{
		Name:             Name,
		Description:      "Grounds parametrized actions into zero-parameter actions",
		Priority:         100,
		Modes:            map[engine.OperationMode]capability.Kind{engine.ModeCompiler: Kind()},
		CompilationKinds: []engine.CompilationKind{engine.CompilationGrounding},
		Factory: func(params engine.Params) (engine.Engine, error) {
			opts, err := OptionsFromParams(params)
			if err != nil {
				return nil, err
			}
			return New(opts), nil
		},
		Source: "builtin",
	})
}

// Compiler is the grounding engine.
type Compiler struct {
	opts Options
}

// New creates a grounding compiler.
func New(opts Options) *Compiler {
	return &Compiler{opts: opts}
}

func (c *Compiler) Name() string { return Name }

func (c *Compiler) Close() error { return nil }

// Compile grounds p. Only engine.CompilationGrounding is implemented.
func (c *Compiler) Compile(ctx context.Context, p *model.Problem, kind engine.CompilationKind) (*engine.CompilerResult, error) {
	if kind != engine.CompilationGrounding {
		return nil, &engine.UnsupportedProblemError{Engine: Name}
	}
	res, err := Ground(ctx, p, c.opts)
	if err != nil {
		return nil, err
	}
	return &engine.CompilerResult{
		Problem: res.Problem,
		MapBack: res.MapBack,
		Engine:  Name,
		Kind:    kind,
	}, nil
}
