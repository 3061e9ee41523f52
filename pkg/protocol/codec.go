package protocol

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"
)

// MaxMessageSize bounds a single protocol line.
const MaxMessageSize = 16 * 1024 * 1024

// Encoder writes protocol messages to an io.Writer. It is safe for
// concurrent use.
type Encoder struct {
	mu sync.Mutex
	w  *bufio.Writer
}

// NewEncoder creates a new protocol encoder.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{
		w: bufio.NewWriter(w),
	}
}

// Encode writes a message to the output stream.
func (e *Encoder) Encode(msgType MessageType, data interface{}) error {
	if err := msgType.Validate(); err != nil {
		return fmt.Errorf("invalid message type: %w", err)
	}

	var dataBytes []byte
	if data != nil {
		var err error
		dataBytes, err = json.Marshal(data)
		if err != nil {
			return fmt.Errorf("failed to marshal data: %w", err)
		}
	}

	msgBytes, err := json.Marshal(Message{
		Type:      msgType,
		Timestamp: time.Now().UTC(),
		Data:      dataBytes,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.w.Write(msgBytes); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := e.w.WriteByte('\n'); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}
	if err := e.w.Flush(); err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}
	return nil
}

// EncodeReady sends a READY message.
func (e *Encoder) EncodeReady(ready *ReadyMessage) error {
	return e.Encode(MessageTypeReady, ready)
}

// EncodeSolve sends a SOLVE request.
func (e *Encoder) EncodeSolve(req *SolveMessage) error {
	if err := req.Validate(); err != nil {
		return fmt.Errorf("invalid solve request: %w", err)
	}
	return e.Encode(MessageTypeSolve, req)
}

// EncodeEvent sends an EVENT message.
func (e *Encoder) EncodeEvent(event *EventMessage) error {
	if err := event.Validate(); err != nil {
		return fmt.Errorf("invalid event: %w", err)
	}
	return e.Encode(MessageTypeEvent, event)
}

// EncodeDone sends a DONE message.
func (e *Encoder) EncodeDone(done *DoneMessage) error {
	if err := done.Validate(); err != nil {
		return fmt.Errorf("invalid done message: %w", err)
	}
	return e.Encode(MessageTypeDone, done)
}

// EncodeError sends an ERROR message.
func (e *Encoder) EncodeError(err *ErrorMessage) error {
	return e.Encode(MessageTypeError, err)
}

// EncodeExit sends an EXIT message.
func (e *Encoder) EncodeExit(exit *ExitMessage) error {
	return e.Encode(MessageTypeExit, exit)
}

// Decoder reads protocol messages from an io.Reader.
type Decoder struct {
	r    *bufio.Scanner
	line int
}

// NewDecoder creates a new protocol decoder.
func NewDecoder(r io.Reader) *Decoder {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), MaxMessageSize)
	return &Decoder{
		r: scanner,
	}
}

// Line returns the 1-based number of the last line read.
func (d *Decoder) Line() int { return d.line }

// Decode reads the next message from the input stream. It returns io.EOF
// when the stream ends cleanly.
func (d *Decoder) Decode() (*Message, error) {
	if !d.r.Scan() {
		if err := d.r.Err(); err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		return nil, io.EOF
	}
	d.line++

	line := d.r.Bytes()
	if len(line) == 0 {
		return nil, &SyntaxError{Line: d.line, Err: fmt.Errorf("empty line")}
	}

	var msg Message
	if err := json.Unmarshal(line, &msg); err != nil {
		return nil, &SyntaxError{Line: d.line, Text: truncate(line), Err: err}
	}

	if err := msg.Type.Validate(); err != nil {
		return nil, &SyntaxError{Line: d.line, Text: truncate(line), Err: err}
	}

	return &msg, nil
}

// SyntaxError reports a line that is not a valid message. The stream can
// still be read past it.
type SyntaxError struct {
	Line int
	Text string
	Err  error
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("line %d: malformed message: %v", e.Line, e.Err)
}

func (e *SyntaxError) Unwrap() error { return e.Err }

func truncate(line []byte) string {
	const limit = 200
	if len(line) > limit {
		return string(line[:limit]) + "..."
	}
	return string(line)
}

// DecodeSolve decodes a SOLVE request.
func (d *Decoder) DecodeSolve() (*SolveMessage, error) {
	msg, err := d.Decode()
	if err != nil {
		return nil, err
	}

	if msg.Type != MessageTypeSolve {
		return nil, fmt.Errorf("expected SOLVE message, got %s", msg.Type)
	}

	var req SolveMessage
	if err := ParseData(msg.Data, &req); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid solve request: %w", err)
	}
	return &req, nil
}

// ParseData parses the payload of a message into target.
func ParseData(data json.RawMessage, target interface{}) error {
	if len(data) == 0 {
		return fmt.Errorf("message has no data")
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("failed to parse data: %w", err)
	}
	return nil
}
