package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfroyo/planforge/pkg/config"
	"github.com/openfroyo/planforge/pkg/engine"
	"github.com/openfroyo/planforge/pkg/engines/native"
	"github.com/openfroyo/planforge/pkg/engines/pddl"
	"github.com/openfroyo/planforge/pkg/engines/process"
	"github.com/openfroyo/planforge/pkg/grounding"
	"github.com/openfroyo/planforge/pkg/telemetry"
	"github.com/openfroyo/planforge/pkg/transports/ssh"
	"github.com/openfroyo/planforge/pkg/validator"
)

const twoEngines = `
engines:
  - name: bfs-remote
    driver: process
    priority: 5
    command: [bfs-runner, --quiet]
    modes:
      oneshot_planner: [ACTION_BASED, FLAT_TYPING, ACTION_PARAMETERS]
  - name: fd
    driver: pddl
    priority: 20
    command: [fast-downward, "{domain}", "{problem}"]
    params:
      search: lama
    modes:
      oneshot_planner: [ACTION_BASED, FLAT_TYPING, HIERARCHICAL_TYPING, ACTION_PARAMETERS]
`

const oneEngine = `
engines:
  - name: fd
    driver: pddl
    command: [fast-downward, "{domain}", "{problem}"]
    modes:
      oneshot_planner: [ACTION_BASED]
`

func writeManifest(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func catalogEvents(t *testing.T) (*telemetry.EventPublisher, chan telemetry.Event) {
	t.Helper()
	pub, err := telemetry.NewEventPublisher(telemetry.EventsConfig{Enabled: true})
	require.NoError(t, err)
	ch := make(chan telemetry.Event, 16)
	pub.Subscribe(func(e telemetry.Event) { ch <- e }, telemetry.FilterByType(telemetry.EventTypeCatalogChanged))
	return pub, ch
}

func TestNewRegistersBuiltins(t *testing.T) {
	c, err := New(Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{native.Name, validator.Name, grounding.Name}, c.Registry().Names())
	for _, reg := range c.Registry().List() {
		assert.Equal(t, "builtin", reg.Source)
	}
}

func TestNewLoadsManifests(t *testing.T) {
	dir := t.TempDir()
	path := writeManifest(t, dir, "engines.yaml", twoEngines)
	pub, events := catalogEvents(t)

	c, err := New(Options{Dir: dir, Events: pub})
	require.NoError(t, err)

	reg := c.Registry()
	assert.Equal(t, 5, reg.Len())

	fd, err := reg.Get("fd")
	require.NoError(t, err)
	assert.Equal(t, path, fd.Source)
	assert.Equal(t, 20, fd.Priority)
	assert.Equal(t, "lama", fd.Params["search"])
	assert.True(t, fd.ProvidesMode(engine.ModeOneshotPlanner))
	var planners []string
	for _, cand := range reg.Candidates() {
		if cand.ProvidesMode(engine.ModeOneshotPlanner) {
			planners = append(planners, cand.Name)
		}
	}
	assert.Equal(t, []string{"fd", native.Name, "bfs-remote"}, planners, "highest priority first")

	inst, err := fd.Factory(fd.Params)
	require.NoError(t, err)
	assert.IsType(t, &pddl.Engine{}, inst)
	assert.Equal(t, "fd", inst.Name())

	bfs, err := reg.Get("bfs-remote")
	require.NoError(t, err)
	inst, err = bfs.Factory(nil)
	require.NoError(t, err)
	assert.IsType(t, &process.Engine{}, inst)
	require.NoError(t, inst.Close())

	select {
	case e := <-events:
		assert.Equal(t, []string{"bfs-remote", "fd"}, e.Data["engines"])
	default:
		t.Fatal("Expected a catalog event")
	}
}

func TestReloadRemovesEngines(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "engines.yaml", twoEngines)

	c, err := New(Options{Dir: dir})
	require.NoError(t, err)
	require.Equal(t, 5, c.Registry().Len())

	writeManifest(t, dir, "engines.yaml", oneEngine)
	require.NoError(t, c.Reload())

	_, err = c.Registry().Get("bfs-remote")
	assert.ErrorIs(t, err, engine.ErrEngineNotFound)
	fd, err := c.Registry().Get("fd")
	require.NoError(t, err)
	assert.Equal(t, 0, fd.Priority)
	assert.Equal(t, []string{native.Name, validator.Name, grounding.Name, "fd"}, c.Registry().Names(),
		"a replaced engine keeps its position")
}

func TestReloadKeepsEnginesOnError(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "engines.yaml", twoEngines)

	c, err := New(Options{Dir: dir})
	require.NoError(t, err)

	writeManifest(t, dir, "engines.yaml", "engines:\n  - name: broken\n    driver: teleport\n")
	assert.Error(t, c.Reload())
	assert.Equal(t, 5, c.Registry().Len())
}

func TestReloadRejectsShadowing(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "engines.yaml", `
engines:
  - name: native-bfs
    driver: process
    command: [bfs-runner]
    modes:
      oneshot_planner: [ACTION_BASED]
`)

	_, err := New(Options{Dir: dir})
	assert.ErrorContains(t, err, "shadows a built-in engine")
}

func TestFromManifestRejectsModes(t *testing.T) {
	m := config.EngineManifest{
		Name:    "bfs",
		Driver:  config.DriverProcess,
		Command: []string{"bfs-runner"},
		Modes:   map[string][]string{"plan_validator": {"ACTION_BASED"}},
	}

	_, err := FromManifest(m, nil, nil)
	assert.ErrorContains(t, err, "does not provide mode plan_validator")
}

func TestFromManifestWasm(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bfs.wasm"), []byte("not a module"), 0o644))
	m := config.EngineManifest{
		Name:   "bfs-wasm",
		Driver: config.DriverWasm,
		Module: "bfs.wasm",
		Modes:  map[string][]string{"oneshot_planner": {"ACTION_BASED"}},
		Source: filepath.Join(dir, "engines.yaml"),
	}

	reg, err := FromManifest(m, nil, nil)
	require.NoError(t, err)
	_, err = reg.Factory(nil)
	assert.ErrorContains(t, err, "failed to compile module")
}

func TestLauncherFor(t *testing.T) {
	local := config.EngineManifest{Name: "bfs"}
	assert.Nil(t, launcherFor(local, "/etc/planforge", nil))

	remote := config.EngineManifest{
		Name: "bfs",
		Remote: &config.RemoteManifest{
			Host:    "planner.internal",
			Port:    2222,
			User:    "planforge",
			KeyFile: "/keys/id_ed25519",
			Upload:  "bin/bfs-runner",
		},
	}
	l, ok := launcherFor(remote, "/etc/planforge", nil).(*ssh.Launcher)
	require.True(t, ok)
	assert.Equal(t, "planner.internal:2222", l.Config.Address())
	assert.Equal(t, "planforge", l.Config.User)
	assert.Equal(t, "/keys/id_ed25519", l.Config.PrivateKeyPath)
	assert.Equal(t, "/etc/planforge/bin/bfs-runner", l.Upload)
	assert.Equal(t, "/tmp/planforge-bfs", l.RemotePath)
}

func TestWatchReloads(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "engines.yaml", oneEngine)
	pub, events := catalogEvents(t)

	c, err := New(Options{Dir: dir, Events: pub})
	require.NoError(t, err)
	<-events

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, c.Watch(ctx))

	writeManifest(t, dir, "more.yaml", `
engines:
  - name: lama
    driver: pddl
    command: [lama, "{domain}", "{problem}"]
    modes:
      oneshot_planner: [ACTION_BASED]
`)

	select {
	case e := <-events:
		assert.Equal(t, []string{"fd", "lama"}, e.Data["engines"])
	case <-time.After(5 * time.Second):
		t.Fatal("Expected a reload after the manifest was added")
	}
	_, err = c.Registry().Get("lama")
	assert.NoError(t, err)
}

func TestWatchRequiresDir(t *testing.T) {
	c, err := New(Options{})
	require.NoError(t, err)
	assert.Error(t, c.Watch(context.Background()))
}
