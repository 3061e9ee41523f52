// Package catalog assembles the engine registry from the built-in engines
// and the engine manifests of a directory.
package catalog

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	"github.com/openfroyo/planforge/pkg/config"
	"github.com/openfroyo/planforge/pkg/engine"
	"github.com/openfroyo/planforge/pkg/engines/native"
	"github.com/openfroyo/planforge/pkg/engines/pddl"
	"github.com/openfroyo/planforge/pkg/engines/process"
	"github.com/openfroyo/planforge/pkg/engines/wasm"
	"github.com/openfroyo/planforge/pkg/grounding"
	"github.com/openfroyo/planforge/pkg/telemetry"
	"github.com/openfroyo/planforge/pkg/transports/ssh"
	"github.com/openfroyo/planforge/pkg/validator"
)

// RemoteRunnerDir is where uploaded runner binaries are placed on remote hosts.
const RemoteRunnerDir = "/tmp"

// Options configures a catalog.
type Options struct {
	// Dir holds engine manifests. Only built-ins are registered when empty.
	Dir string

	Logger *telemetry.Logger
	Events *telemetry.EventPublisher
}

// Catalog owns a registry of built-in and manifest engines.
type Catalog struct {
	opts     Options
	registry *engine.Registry
	logger   *telemetry.Logger

	mu       sync.Mutex
	builtins map[string]bool
	loaded   map[string]bool
}

// RegisterBuiltins adds the in-process engines to reg.
func RegisterBuiltins(reg *engine.Registry) error {
	for _, register := range []func(*engine.Registry) error{
		native.Register,
		validator.Register,
		grounding.Register,
	} {
		if err := register(reg); err != nil {
			return err
		}
	}
	return nil
}

// New creates a catalog and loads the manifests of opts.Dir.
func New(opts Options) (*Catalog, error) {
	logger := opts.Logger
	if logger == nil {
		logger = telemetry.NopLogger()
	}
	c := &Catalog{
		opts:     opts,
		registry: engine.NewRegistry(),
		logger:   logger.NewComponentLogger("catalog"),
		builtins: make(map[string]bool),
		loaded:   make(map[string]bool),
	}
	if err := RegisterBuiltins(c.registry); err != nil {
		return nil, err
	}
	for _, name := range c.registry.Names() {
		c.builtins[name] = true
	}
	if opts.Dir != "" {
		if err := c.Reload(); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Registry returns the registry. It stays valid across reloads.
func (c *Catalog) Registry() *engine.Registry { return c.registry }

// Reload reads the manifest directory again. Engines of removed manifests
// are unregistered, others are replaced in place. On error the registry is
// left unchanged.
func (c *Catalog) Reload() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	manifests, err := config.LoadManifestDir(c.opts.Dir)
	if err != nil {
		return err
	}

	regs := make([]engine.Registration, 0, len(manifests))
	for _, m := range manifests {
		if c.builtins[m.Name] {
			return fmt.Errorf("%s: engine %q shadows a built-in engine", m.Source, m.Name)
		}
		reg, err := FromManifest(m, c.logger, c.opts.Events)
		if err != nil {
			return err
		}
		if err := reg.Validate(); err != nil {
			return fmt.Errorf("%s: %w", m.Source, err)
		}
		regs = append(regs, reg)
	}

	current := make(map[string]bool, len(regs))
	for _, reg := range regs {
		if err := c.registry.Upsert(reg); err != nil {
			return err
		}
		current[reg.Name] = true
	}
	var removed []string
	for name := range c.loaded {
		if !current[name] {
			c.registry.Unregister(name)
			removed = append(removed, name)
		}
	}
	c.loaded = current

	names := make([]string, 0, len(current))
	for name := range current {
		names = append(names, name)
	}
	sort.Strings(names)
	sort.Strings(removed)

	c.logger.WithField("dir", c.opts.Dir).
		WithField("engines", names).
		WithField("removed", removed).
		Info("engine manifests loaded")
	_ = c.opts.Events.PublishCatalogChanged(c.opts.Dir, names)
	return nil
}

// FromManifest turns a validated manifest into a registration. Paths in the
// manifest are relative to the manifest file.
func FromManifest(m config.EngineManifest, logger *telemetry.Logger, events *telemetry.EventPublisher) (engine.Registration, error) {
	modes, err := m.ModeKinds()
	if err != nil {
		return engine.Registration{}, fmt.Errorf("engine %q: %w", m.Name, err)
	}
	for mode := range modes {
		if mode != engine.ModeOneshotPlanner {
			return engine.Registration{}, fmt.Errorf("engine %q: %s driver does not provide mode %s", m.Name, m.Driver, mode)
		}
	}
	if logger == nil {
		logger = telemetry.NopLogger()
	}

	reg := engine.Registration{
		Name:        m.Name,
		Description: m.Description,
		Priority:    m.Priority,
		Modes:       modes,
		Params:      engine.Params(m.Params),
		Source:      m.Source,
	}
	base := filepath.Dir(m.Source)

	switch m.Driver {
	case config.DriverProcess:
		launcher := launcherFor(m, base, logger)
		reg.Factory = func(params engine.Params) (engine.Engine, error) {
			return process.New(process.Config{
				Name:     m.Name,
				Command:  m.Command,
				Params:   params,
				Launcher: launcher,
				Logger:   logger,
				Events:   events,
			})
		}
	case config.DriverPDDL:
		reg.Factory = func(params engine.Params) (engine.Engine, error) {
			return pddl.New(pddl.Config{
				Name:              m.Name,
				Command:           m.Command,
				Params:            params,
				UnsolvableMarkers: m.UnsolvableMarkers,
				PlanFile:          m.PlanFile,
				Logger:            logger,
			})
		}
	case config.DriverWasm:
		module := resolve(base, m.Module)
		reg.Factory = func(params engine.Params) (engine.Engine, error) {
			return wasm.New(context.Background(), wasm.Config{
				Name:   m.Name,
				Module: module,
				Params: params,
				Args:   m.Command,
				Logger: logger,
				Events: events,
			})
		}
	default:
		return engine.Registration{}, fmt.Errorf("engine %q: unknown driver %q", m.Name, m.Driver)
	}
	return reg, nil
}

// launcherFor returns the launcher of a process engine, nil for local ones.
// Remote engines share one launcher so the runner is uploaded once.
func launcherFor(m config.EngineManifest, base string, logger *telemetry.Logger) process.Launcher {
	if m.Remote == nil {
		return nil
	}
	l := &ssh.Launcher{
		Config: ssh.ConfigFor(ssh.RemoteConfig{
			Host:    m.Remote.Host,
			Port:    m.Remote.Port,
			User:    m.Remote.User,
			KeyFile: m.Remote.KeyFile,
		}),
		Logger: logger,
	}
	if m.Remote.Upload != "" {
		l.Upload = resolve(base, m.Remote.Upload)
		l.RemotePath = RemoteRunnerDir + "/planforge-" + m.Name
	}
	return l
}

func resolve(base, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}
