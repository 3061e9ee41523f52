// Package protocol defines the JSON-lines protocol spoken between planforge
// and out-of-process engine runners.
//
// A runner announces itself with READY, then answers each SOLVE request
// with any number of EVENT messages followed by exactly one DONE or ERROR.
// It sends EXIT before terminating, which happens when its input closes.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// Version is the protocol version spoken by this package.
const Version = "1"

// MessageType represents the type of message in the protocol.
type MessageType string

const (
	// MessageTypeReady indicates the runner is ready to receive requests
	MessageTypeReady MessageType = "READY"
	// MessageTypeSolve carries a problem to solve
	MessageTypeSolve MessageType = "SOLVE"
	// MessageTypeEvent indicates progress reported by the runner
	MessageTypeEvent MessageType = "EVENT"
	// MessageTypeDone carries the outcome of a request
	MessageTypeDone MessageType = "DONE"
	// MessageTypeError indicates the runner could not process a request
	MessageTypeError MessageType = "ERROR"
	// MessageTypeExit indicates the runner is exiting
	MessageTypeExit MessageType = "EXIT"
)

// Message is the envelope of all protocol messages.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// ReadyMessage is sent when the runner is ready to receive requests.
type ReadyMessage struct {
	Version  string            `json:"version"`
	Engine   string            `json:"engine"`
	Platform string            `json:"platform"`
	Arch     string            `json:"arch"`
	PID      int               `json:"pid"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// SolveMessage asks the runner to solve a problem.
type SolveMessage struct {
	ID string `json:"id"`

	// Problem is a problem document in JSON form.
	Problem json.RawMessage `json:"problem"`

	Params map[string]string `json:"params,omitempty"`

	// Timeout is the wall-clock budget in seconds, 0 for none.
	Timeout float64 `json:"timeout,omitempty"`
}

// EventMessage reports progress during a request.
type EventMessage struct {
	RequestID string            `json:"request_id"`
	Level     string            `json:"level"` // info, warn, debug
	Message   string            `json:"message"`
	Progress  *ProgressInfo     `json:"progress,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// ProgressInfo contains progress tracking information.
type ProgressInfo struct {
	Current int    `json:"current"`
	Total   int    `json:"total,omitempty"`
	Unit    string `json:"unit"`
}

// PlanStep is one action instance of a plan, by name.
type PlanStep struct {
	Action string   `json:"action"`
	Params []string `json:"params,omitempty"`
}

// DoneMessage carries the outcome of a request. Plan is set, possibly empty,
// for solved statuses and null otherwise.
type DoneMessage struct {
	RequestID string            `json:"request_id"`
	Status    string            `json:"status"`
	Plan      []PlanStep        `json:"plan"`
	Metrics   map[string]string `json:"metrics,omitempty"`
	Log       string            `json:"log,omitempty"`
	Duration  float64           `json:"duration"` // seconds
}

// ErrorMessage indicates the runner failed to process a request.
type ErrorMessage struct {
	RequestID string            `json:"request_id,omitempty"`
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Details   map[string]string `json:"details,omitempty"`
}

// ExitMessage is sent before the runner terminates.
type ExitMessage struct {
	Reason   string `json:"reason"`
	ExitCode int    `json:"exit_code"`
	Requests int    `json:"requests"`
}

// Error codes sent by runners.
const (
	ErrCodeBadRequest  = "BAD_REQUEST"
	ErrCodeBadProblem  = "BAD_PROBLEM"
	ErrCodeUnsupported = "UNSUPPORTED"
	ErrCodeInternal    = "INTERNAL"
)

// Validate checks if the message type is valid.
func (mt MessageType) Validate() error {
	switch mt {
	case MessageTypeReady, MessageTypeSolve, MessageTypeEvent,
		MessageTypeDone, MessageTypeError, MessageTypeExit:
		return nil
	default:
		return fmt.Errorf("invalid message type: %s", mt)
	}
}

// Validate checks if the solve request is valid.
func (s *SolveMessage) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("request ID is required")
	}
	if len(s.Problem) == 0 {
		return fmt.Errorf("problem is required")
	}
	if s.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	return nil
}

// Validate checks if the event message is valid.
func (evt *EventMessage) Validate() error {
	if evt.RequestID == "" {
		return fmt.Errorf("request ID is required")
	}
	if evt.Level == "" {
		evt.Level = "info"
	}
	validLevels := map[string]bool{"info": true, "warn": true, "debug": true}
	if !validLevels[evt.Level] {
		return fmt.Errorf("invalid event level: %s", evt.Level)
	}
	return nil
}

// Validate checks if the done message is complete.
func (d *DoneMessage) Validate() error {
	if d.RequestID == "" {
		return fmt.Errorf("request ID is required")
	}
	if d.Status == "" {
		return fmt.Errorf("status is required")
	}
	for i, step := range d.Plan {
		if step.Action == "" {
			return fmt.Errorf("plan step %d has no action", i+1)
		}
	}
	return nil
}
