package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"default", func(c *Config) {}, false},
		{"missing service name", func(c *Config) { c.ServiceName = "" }, true},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, true},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, true},
		{"bad exporter", func(c *Config) { c.Tracing.Enabled = true; c.Tracing.Exporter = "jaeger" }, true},
		{"bad sampling", func(c *Config) { c.Tracing.SamplingRate = 2 }, true},
		{"empty event buffer", func(c *Config) { c.Events.BufferSize = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Error("Expected validation error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Expected no error, got %v", err)
			}
		})
	}
}

func TestLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, LoggingConfig{Level: "debug", Format: "json"})

	logger.NewComponentLogger("selector").WithEngine("native-bfs", "oneshot_planner").WithProblem("robot").Info("acquired")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to decode log line %q: %v", buf.String(), err)
	}
	want := map[string]string{
		"component": "selector",
		"engine":    "native-bfs",
		"mode":      "oneshot_planner",
		"problem":   "robot",
		"message":   "acquired",
	}
	for k, v := range want {
		if entry[k] != v {
			t.Errorf("Expected %s=%q, got %v", k, v, entry[k])
		}
	}
}

func TestLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, LoggingConfig{Level: "warn", Format: "json"})

	logger.Info("dropped")
	if buf.Len() != 0 {
		t.Errorf("Expected info to be filtered at warn level, got %q", buf.String())
	}
	logger.Warn("kept")
	if !strings.Contains(buf.String(), "kept") {
		t.Errorf("Expected warn message, got %q", buf.String())
	}
}

func TestFromContextDefaultsToNop(t *testing.T) {
	if FromContext(context.Background()) == nil {
		t.Fatal("Expected a logger")
	}
	if FromTelemetryContext(context.Background()) != nil {
		t.Error("Expected no telemetry in empty context")
	}
}

func TestEngineMetrics(t *testing.T) {
	m, err := NewMetrics(DefaultConfig().Metrics)
	if err != nil {
		t.Fatalf("failed to create metrics: %v", err)
	}

	m.RecordEngineInvocation("native-bfs", "oneshot_planner", "SOLVED_OPTIMALLY", 10*time.Millisecond)
	m.RecordEngineInvocation("native-bfs", "oneshot_planner", "SOLVED_OPTIMALLY", 20*time.Millisecond)
	m.RecordEngineError("pddl", "oneshot_planner", "parse")
	m.RecordRaceWinner("native-bfs")
	m.RecordRaceCancellation("pddl")

	if got := testutil.ToFloat64(m.engineInvocations.WithLabelValues("native-bfs", "oneshot_planner", "SOLVED_OPTIMALLY")); got != 2 {
		t.Errorf("Expected 2 invocations, got %v", got)
	}
	if got := testutil.ToFloat64(m.engineErrors.WithLabelValues("pddl", "oneshot_planner", "parse")); got != 1 {
		t.Errorf("Expected 1 error, got %v", got)
	}
	if got := testutil.ToFloat64(m.raceCancellations.WithLabelValues("pddl")); got != 1 {
		t.Errorf("Expected 1 cancellation, got %v", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "planforge_engine_invocations_total") {
		t.Error("Expected engine_invocations_total in exposition")
	}
}

func TestDisabledMetricsAreNoop(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: false})
	if err != nil {
		t.Fatalf("failed to create metrics: %v", err)
	}
	m.RecordEngineInvocation("x", "oneshot_planner", "TIMEOUT", time.Second)
	m.EngineAcquired()

	var nilMetrics *Metrics
	nilMetrics.RecordRaceWinner("x")
}

func TestEventPublisherSync(t *testing.T) {
	ep, err := NewEventPublisher(EventsConfig{Enabled: true, BufferSize: 8})
	if err != nil {
		t.Fatalf("failed to create publisher: %v", err)
	}

	var got []string
	ep.Subscribe(func(e Event) { got = append(got, e.Type) }, FilterByEngine("native-bfs"))

	_ = ep.PublishEngineStarted("run-1", "native-bfs", "oneshot_planner", "robot")
	_ = ep.PublishEngineStarted("run-1", "pddl", "oneshot_planner", "robot")
	_ = ep.PublishRaceWon("run-1", "native-bfs", "SOLVED_OPTIMALLY")

	want := []string{EventTypeEngineStarted, EventTypeRaceWon}
	if len(got) != len(want) {
		t.Fatalf("Expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Expected event %d to be %s, got %s", i, want[i], got[i])
		}
	}
}

func TestEventPublisherAsyncDrainsOnShutdown(t *testing.T) {
	ep, err := NewEventPublisher(EventsConfig{Enabled: true, BufferSize: 16, EnableAsync: true})
	if err != nil {
		t.Fatalf("failed to create publisher: %v", err)
	}

	var mu sync.Mutex
	count := 0
	ep.Subscribe(func(e Event) {
		mu.Lock()
		count++
		mu.Unlock()
	}, nil)

	for i := 0; i < 5; i++ {
		if err := ep.PublishEngineCompleted("run", "e", "oneshot_planner", "TIMEOUT", time.Second); err != nil {
			t.Fatalf("failed to publish: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := ep.Shutdown(ctx); err != nil {
		t.Fatalf("failed to shut down: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if count != 5 {
		t.Errorf("Expected 5 delivered events, got %d", count)
	}
	if err := ep.PublishRaceWon("run", "e", "TIMEOUT"); err == nil {
		t.Error("Expected publish after shutdown to fail")
	}
}

func TestFilterByLevel(t *testing.T) {
	f := FilterByLevel(EventLevelWarning)
	if f(Event{Level: EventLevelInfo}) {
		t.Error("Expected info to be filtered")
	}
	if !f(Event{Level: EventLevelError}) {
		t.Error("Expected error to pass")
	}
}

func TestNopTelemetry(t *testing.T) {
	tel := Nop()
	ic := StartOperation(tel.WithContext(context.Background()), "solve")
	ic.End(nil)
	if err := tel.Shutdown(context.Background()); err != nil {
		t.Errorf("Expected clean shutdown, got %v", err)
	}
}
