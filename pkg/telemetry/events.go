package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event represents an engine lifecycle event.
type Event struct {
	// ID is the unique identifier for this event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type is the event type.
	Type string `json:"type"`

	// Source identifies where the event originated.
	Source string `json:"source"`

	// RunID is the associated run ID, if applicable.
	RunID string `json:"run_id,omitempty"`

	// Engine is the engine the event refers to.
	Engine string `json:"engine,omitempty"`

	// Mode is the operation mode of the engine invocation.
	Mode string `json:"mode,omitempty"`

	// Message is a human-readable event message.
	Message string `json:"message"`

	// Level is the event severity level (info, warning, error).
	Level string `json:"level"`

	// Data contains additional event-specific data.
	Data map[string]interface{} `json:"data,omitempty"`
}

// EventType constants for engine events.
const (
	EventTypeEngineStarted   = "engine.started"
	EventTypeEngineCompleted = "engine.completed"
	EventTypeEngineFailed    = "engine.failed"
	EventTypeEngineCancelled = "engine.cancelled"
	EventTypeRaceWon         = "race.won"
	EventTypeSelectionFailed = "selection.failed"
	EventTypeRunnerProgress  = "runner.progress"
	EventTypeCatalogChanged  = "catalog.changed"
)

// EventLevel constants for event severity.
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

// EventSubscriber is a function that handles events.
type EventSubscriber func(event Event)

// EventFilter determines if an event should be processed.
type EventFilter func(event Event) bool

// EventPublisher fans events out to subscribers. Subscribers see events in
// publication order.
type EventPublisher struct {
	config      EventsConfig
	buffer      chan Event
	subscribers []subscriberEntry
	filters     []EventFilter
	wg          sync.WaitGroup
	mu          sync.RWMutex
	closeOnce   sync.Once
	done        chan struct{}
}

type subscriberEntry struct {
	subscriber EventSubscriber
	filter     EventFilter
}

// NewEventPublisher creates a new event publisher with the given configuration.
func NewEventPublisher(cfg EventsConfig) (*EventPublisher, error) {
	if !cfg.Enabled {
		return &EventPublisher{config: cfg}, nil
	}

	ep := &EventPublisher{
		config: cfg,
		done:   make(chan struct{}),
	}

	if cfg.EnableAsync {
		ep.buffer = make(chan Event, cfg.BufferSize)
		ep.wg.Add(1)
		go ep.processEvents()
	}

	return ep, nil
}

// Publish publishes an event to all subscribers.
func (ep *EventPublisher) Publish(event Event) error {
	if ep == nil || !ep.config.Enabled {
		return nil
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	ep.mu.RLock()
	for _, filter := range ep.filters {
		if !filter(event) {
			ep.mu.RUnlock()
			return nil
		}
	}
	ep.mu.RUnlock()

	if ep.config.EnableAsync {
		select {
		case <-ep.done:
			return fmt.Errorf("event publisher stopped")
		default:
		}
		select {
		case ep.buffer <- event:
			return nil
		default:
			return fmt.Errorf("event buffer full, event dropped")
		}
	}

	ep.deliverEvent(event)
	return nil
}

// PublishEngineStarted publishes an engine invocation start.
func (ep *EventPublisher) PublishEngineStarted(runID, engine, mode, problem string) error {
	return ep.Publish(Event{
		Type:    EventTypeEngineStarted,
		Source:  "engine",
		RunID:   runID,
		Engine:  engine,
		Mode:    mode,
		Message: fmt.Sprintf("Engine %s started %s on %s", engine, mode, problem),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"problem": problem,
		},
	})
}

// PublishEngineCompleted publishes a finished engine invocation.
func (ep *EventPublisher) PublishEngineCompleted(runID, engine, mode, status string, duration time.Duration) error {
	return ep.Publish(Event{
		Type:    EventTypeEngineCompleted,
		Source:  "engine",
		RunID:   runID,
		Engine:  engine,
		Mode:    mode,
		Message: fmt.Sprintf("Engine %s finished with status %s", engine, status),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"status":   status,
			"duration": duration.Seconds(),
		},
	})
}

// PublishEngineFailed publishes an engine invocation that returned an error.
func (ep *EventPublisher) PublishEngineFailed(runID, engine, mode, reason string) error {
	return ep.Publish(Event{
		Type:    EventTypeEngineFailed,
		Source:  "engine",
		RunID:   runID,
		Engine:  engine,
		Mode:    mode,
		Message: fmt.Sprintf("Engine %s failed: %s", engine, reason),
		Level:   EventLevelError,
		Data: map[string]interface{}{
			"reason": reason,
		},
	})
}

// PublishEngineCancelled publishes a race participant cancelled by a winner.
func (ep *EventPublisher) PublishEngineCancelled(runID, engine, winner string) error {
	return ep.Publish(Event{
		Type:    EventTypeEngineCancelled,
		Source:  "race",
		RunID:   runID,
		Engine:  engine,
		Message: fmt.Sprintf("Engine %s cancelled after %s won", engine, winner),
		Level:   EventLevelWarning,
		Data: map[string]interface{}{
			"winner": winner,
		},
	})
}

// PublishRaceWon publishes the winner of a parallel solve.
func (ep *EventPublisher) PublishRaceWon(runID, engine, status string) error {
	return ep.Publish(Event{
		Type:    EventTypeRaceWon,
		Source:  "race",
		RunID:   runID,
		Engine:  engine,
		Message: fmt.Sprintf("Engine %s won the race with status %s", engine, status),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"status": status,
		},
	})
}

// PublishSelectionFailed publishes a selection that returned no engine.
func (ep *EventPublisher) PublishSelectionFailed(mode, reason string) error {
	return ep.Publish(Event{
		Type:    EventTypeSelectionFailed,
		Source:  "selector",
		Mode:    mode,
		Message: fmt.Sprintf("No engine selected for %s: %s", mode, reason),
		Level:   EventLevelWarning,
		Data: map[string]interface{}{
			"reason": reason,
		},
	})
}

// PublishRunnerProgress publishes a progress line reported by a remote runner.
func (ep *EventPublisher) PublishRunnerProgress(runID, engine, message string, data map[string]interface{}) error {
	return ep.Publish(Event{
		Type:    EventTypeRunnerProgress,
		Source:  "runner",
		RunID:   runID,
		Engine:  engine,
		Message: message,
		Level:   EventLevelInfo,
		Data:    data,
	})
}

// PublishCatalogChanged publishes a reload of engine manifests.
func (ep *EventPublisher) PublishCatalogChanged(path string, engines []string) error {
	return ep.Publish(Event{
		Type:    EventTypeCatalogChanged,
		Source:  "catalog",
		Message: fmt.Sprintf("Engine manifests reloaded from %s", path),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"engines": engines,
		},
	})
}

// Subscribe adds a new event subscriber.
func (ep *EventPublisher) Subscribe(subscriber EventSubscriber, filter EventFilter) {
	if ep == nil {
		return
	}
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.subscribers = append(ep.subscribers, subscriberEntry{
		subscriber: subscriber,
		filter:     filter,
	})
}

// AddFilter adds a global event filter.
func (ep *EventPublisher) AddFilter(filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.filters = append(ep.filters, filter)
}

// processEvents delivers buffered events until the publisher is shut down,
// then drains whatever is left.
func (ep *EventPublisher) processEvents() {
	defer ep.wg.Done()

	for {
		select {
		case event := <-ep.buffer:
			ep.deliverEvent(event)
		case <-ep.done:
			for {
				select {
				case event := <-ep.buffer:
					ep.deliverEvent(event)
				default:
					return
				}
			}
		}
	}
}

// deliverEvent delivers an event to all subscribers.
func (ep *EventPublisher) deliverEvent(event Event) {
	ep.mu.RLock()
	defer ep.mu.RUnlock()

	for _, entry := range ep.subscribers {
		if entry.filter != nil && !entry.filter(event) {
			continue
		}
		entry.subscriber(event)
	}
}

// Shutdown stops the publisher after delivering buffered events.
func (ep *EventPublisher) Shutdown(ctx context.Context) error {
	if ep == nil || !ep.config.Enabled {
		return nil
	}

	ep.closeOnce.Do(func() { close(ep.done) })

	finished := make(chan struct{})
	go func() {
		ep.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event publisher shutdown timeout")
	}
}

// Common event filters.

// FilterByLevel creates a filter that only allows events of a specific level or higher.
func FilterByLevel(minLevel string) EventFilter {
	levels := map[string]int{
		EventLevelInfo:    0,
		EventLevelWarning: 1,
		EventLevelError:   2,
	}

	minLevelValue := levels[minLevel]

	return func(event Event) bool {
		return levels[event.Level] >= minLevelValue
	}
}

// FilterByType creates a filter that only allows events of specific types.
func FilterByType(types ...string) EventFilter {
	typeSet := make(map[string]bool)
	for _, t := range types {
		typeSet[t] = true
	}

	return func(event Event) bool {
		return typeSet[event.Type]
	}
}

// FilterByEngine creates a filter that only allows events for one engine.
func FilterByEngine(engine string) EventFilter {
	return func(event Event) bool {
		return event.Engine == engine
	}
}
