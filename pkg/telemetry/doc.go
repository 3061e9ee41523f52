// Package telemetry provides observability for planforge: structured logging
// with zerolog, tracing with OpenTelemetry, Prometheus metrics and an
// in-process event stream of engine lifecycle events.
//
// # Usage
//
// Initialize telemetry at startup and hand it to the engine selector:
//
//	tel, err := telemetry.NewTelemetry(telemetry.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	ctx = tel.WithContext(ctx)
//
// # Logging
//
// Loggers carry engine, mode and problem fields:
//
//	logger := tel.Logger.NewComponentLogger("selector").WithEngine("native-bfs", "oneshot_planner")
//	logger.Info("engine acquired")
//
// Logs go to stderr by default so that plans printed on stdout can be piped.
//
// # Metrics
//
// Every engine invocation increments engine_invocations_total labelled by
// engine, mode and result status, and observes engine_duration_seconds.
// Failed invocations also increment engine_errors_total by error class.
// Parallel solves record the winner and each cancelled participant.
//
// # Events
//
// The EventPublisher delivers events to subscribers in publication order,
// either synchronously or from a single background goroutine:
//
//	tel.Events.Subscribe(func(e telemetry.Event) {
//	    fmt.Println(e.Type, e.Engine)
//	}, telemetry.FilterByType(telemetry.EventTypeRaceWon))
package telemetry
