package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/openfroyo/planforge/pkg/config"
	"github.com/openfroyo/planforge/pkg/engine"
	"github.com/openfroyo/planforge/pkg/engines/catalog"
	"github.com/openfroyo/planforge/pkg/model"
	"github.com/openfroyo/planforge/pkg/policy"
	"github.com/openfroyo/planforge/pkg/stores"
	"github.com/openfroyo/planforge/pkg/telemetry"
)

// app holds what a command needs: configuration, telemetry, the engine
// catalog and, when configured, the run history and selection policy.
type app struct {
	cfg      *config.AppConfig
	tel      *telemetry.Telemetry
	logger   *telemetry.Logger
	catalog  *catalog.Catalog
	store    *stores.SQLiteStore
	selector *engine.Selector
	loader   *config.Loader
	out      io.Writer
}

// newApp reads the environment, applies the global flags and wires the
// selector. The caller must Close the app.
func newApp(cmd *cobra.Command) (*app, error) {
	ctx := cmd.Context()

	cfg, err := config.LoadAppConfig()
	if err != nil {
		return nil, err
	}
	if enginesDir != "" {
		cfg.EnginesDir = enginesDir
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	if verbose {
		cfg.LogLevel = "debug"
	}

	telCfg := telemetry.DefaultConfig()
	telCfg.ServiceVersion = buildVersion
	telCfg.Logging.Level = cfg.LogLevel
	telCfg.Logging.Format = cfg.LogFormat
	telCfg.Events.EnableAsync = false
	telCfg.Metrics.ListenAddress = cfg.MetricsAddr
	if cfg.Tracing {
		telCfg.Tracing.Enabled = true
		telCfg.Tracing.Exporter = "stdout"
		if cfg.TracingEndpoint != "" {
			telCfg.Tracing.Exporter = "otlp"
			telCfg.Tracing.Endpoint = cfg.TracingEndpoint
		}
	}
	tel, err := telemetry.NewTelemetry(telCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	tel.Logger = telemetry.NewLoggerTo(cmd.ErrOrStderr(), telCfg.Logging)

	a := &app{
		cfg:    cfg,
		tel:    tel,
		logger: tel.Logger.NewComponentLogger("cli"),
		loader: config.NewLoader(cfg.StarlarkTimeout),
		out:    cmd.OutOrStdout(),
	}

	if err := tel.StartMetricsServer(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to start metrics server: %w", err)
	}

	a.catalog, err = catalog.New(catalog.Options{Dir: cfg.EnginesDir, Logger: tel.Logger, Events: tel.Events})
	if err != nil {
		a.Close()
		return nil, err
	}

	opts := engine.Options{Telemetry: tel}

	paths := policyPath
	if len(paths) == 0 && cfg.PolicyPath != "" {
		paths = filepath.SplitList(cfg.PolicyPath)
	}
	if len(paths) > 0 {
		sp, err := policy.Load(ctx, paths, tel.Logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		opts.Policy = sp
	}

	if cfg.DBPath != "" {
		a.store, err = stores.Open(ctx, stores.Config{Path: cfg.DBPath})
		if err != nil {
			a.Close()
			return nil, err
		}
		opts.Recorder = a.store
	}

	a.selector = engine.NewSelector(a.catalog.Registry(), opts)
	return a, nil
}

// Close releases the store and flushes telemetry.
func (a *app) Close() error {
	var errs []error
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	errs = append(errs, a.tel.Shutdown(context.Background()))
	return errors.Join(errs...)
}

func (a *app) loadProblem(ctx context.Context, path string) (*model.Problem, error) {
	p, err := a.loader.LoadProblem(ctx, path)
	if err != nil {
		return nil, err
	}
	a.logger.WithProblem(p.Name()).WithField("path", path).Debug("problem loaded")
	return p, nil
}

// runWithApp wraps a command body with app setup and teardown.
func runWithApp(fn func(cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer func() {
			err = errors.Join(err, a.Close())
		}()
		return fn(cmd, a, args)
	}
}

func (a *app) printJSON(v interface{}) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (a *app) printf(format string, args ...interface{}) {
	fmt.Fprintf(a.out, format, args...)
}
