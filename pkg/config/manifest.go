package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/openfroyo/planforge/pkg/capability"
	"github.com/openfroyo/planforge/pkg/engine"
)

// Engine drivers.
const (
	DriverProcess = "process"
	DriverPDDL    = "pddl"
	DriverWasm    = "wasm"
)

// Manifest declares external engines.
type Manifest struct {
	Engines []EngineManifest `yaml:"engines" json:"engines" validate:"dive"`
}

// EngineManifest declares one external engine.
type EngineManifest struct {
	Name        string `yaml:"name" json:"name" validate:"required"`
	Driver      string `yaml:"driver" json:"driver" validate:"required,oneof=process pddl wasm"`
	Priority    int    `yaml:"priority,omitempty" json:"priority,omitempty"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// Modes maps an operation mode to the features supported in that mode.
	Modes map[string][]string `yaml:"modes" json:"modes" validate:"required,min=1"`

	// Command is the runner command line for process engines, or the
	// planner command template for pddl engines.
	Command []string `yaml:"command,omitempty" json:"command,omitempty"`

	// Module is the path of the WASI module for wasm engines.
	Module string `yaml:"module,omitempty" json:"module,omitempty"`

	Params            map[string]string `yaml:"params,omitempty" json:"params,omitempty"`
	Remote            *RemoteManifest   `yaml:"remote,omitempty" json:"remote,omitempty"`
	UnsolvableMarkers []string          `yaml:"unsolvable_markers,omitempty" json:"unsolvable_markers,omitempty"`
	PlanFile          string            `yaml:"plan_file,omitempty" json:"plan_file,omitempty"`

	// Source is the manifest file the engine was read from.
	Source string `yaml:"-" json:"-"`
}

// RemoteManifest launches a process engine over SSH.
type RemoteManifest struct {
	Host    string `yaml:"host" json:"host" validate:"required"`
	Port    int    `yaml:"port,omitempty" json:"port,omitempty" validate:"omitempty,min=1,max=65535"`
	User    string `yaml:"user" json:"user" validate:"required"`
	KeyFile string `yaml:"key_file,omitempty" json:"key_file,omitempty"`

	// Upload is a local runner binary copied to the host before launch.
	Upload string `yaml:"upload,omitempty" json:"upload,omitempty"`
}

// Validate checks the manifest fields and the driver-specific requirements.
func (m *EngineManifest) Validate() error {
	if err := validate.Struct(m); err != nil {
		return fmt.Errorf("engine %q: %w", m.Name, err)
	}
	if strings.ContainsAny(m.Name, " /\\") {
		return fmt.Errorf("engine %q: name must not contain spaces or slashes", m.Name)
	}
	switch m.Driver {
	case DriverProcess, DriverPDDL:
		if len(m.Command) == 0 {
			return fmt.Errorf("engine %q: %s driver requires a command", m.Name, m.Driver)
		}
	case DriverWasm:
		if m.Module == "" {
			return fmt.Errorf("engine %q: wasm driver requires a module", m.Name)
		}
	}
	if m.Remote != nil && m.Driver != DriverProcess {
		return fmt.Errorf("engine %q: remote launch is only supported by the process driver", m.Name)
	}
	if m.Driver == DriverPDDL {
		joined := strings.Join(m.Command, " ")
		if !strings.Contains(joined, "{domain}") || !strings.Contains(joined, "{problem}") {
			return fmt.Errorf("engine %q: pddl command must reference {domain} and {problem}", m.Name)
		}
	}
	if _, err := m.ModeKinds(); err != nil {
		return fmt.Errorf("engine %q: %w", m.Name, err)
	}
	return nil
}

// ModeKinds parses the declared modes and features.
func (m *EngineManifest) ModeKinds() (map[engine.OperationMode]capability.Kind, error) {
	out := make(map[engine.OperationMode]capability.Kind, len(m.Modes))
	for name, features := range m.Modes {
		mode, err := engine.ParseOperationMode(name)
		if err != nil {
			return nil, err
		}
		kind, err := capability.ParseKind(features)
		if err != nil {
			return nil, fmt.Errorf("mode %s: %w", name, err)
		}
		out[mode] = kind
	}
	return out, nil
}

// ParseManifest decodes and validates a YAML manifest.
func ParseManifest(data []byte, source string) (*Manifest, error) {
	var m Manifest
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("%s: failed to decode manifest: %w", source, err)
	}
	if err := validate.Struct(&m); err != nil {
		return nil, fmt.Errorf("%s: %w", source, err)
	}
	for i := range m.Engines {
		m.Engines[i].Source = source
		if err := m.Engines[i].Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", source, err)
		}
	}
	return &m, nil
}

// LoadManifest reads a manifest file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	return ParseManifest(data, path)
}

// LoadManifestDir reads every *.yaml and *.yml manifest in dir, in file name
// order. An engine name declared twice is an error.
func LoadManifestDir(dir string) ([]EngineManifest, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read engines directory: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yaml", ".yml":
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)

	var out []EngineManifest
	seen := make(map[string]string)
	for _, f := range files {
		m, err := LoadManifest(f)
		if err != nil {
			return nil, err
		}
		for _, em := range m.Engines {
			if prev, dup := seen[em.Name]; dup {
				return nil, fmt.Errorf("engine %q declared in both %s and %s", em.Name, prev, f)
			}
			seen[em.Name] = f
			out = append(out, em)
		}
	}
	return out, nil
}
