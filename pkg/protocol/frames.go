// Package protocol defines the server-sent event frames streamed by the
// auto-check endpoint. Each frame is one SSE event whose name is the frame
// type and whose data line is the JSON payload.
package protocol

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// FrameType identifies the type of an event frame.
type FrameType string

const (
	// Stream lifecycle
	FrameTypeSession FrameType = "session"
	FrameTypePing    FrameType = "ping"

	// Auto-check progress
	FrameTypeWaiting  FrameType = "waiting"
	FrameTypeReceived FrameType = "received"
	FrameTypeFailed   FrameType = "failed"
	FrameTypeStopped  FrameType = "stopped"

	// Errors
	FrameTypeError FrameType = "error"
)

// Terminal reports whether the stream ends after a frame of this type.
func (t FrameType) Terminal() bool {
	switch t {
	case FrameTypeReceived, FrameTypeFailed, FrameTypeStopped, FrameTypeError:
		return true
	default:
		return false
	}
}

// Frame is the base structure for all event frames.
type Frame struct {
	Type    FrameType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Session is sent first on every stream and describes the session being
// watched.
type Session struct {
	SessionID   string `json:"session_id"`
	PhoneNumber string `json:"phone_number"`
	Country     string `json:"country"`
	Service     string `json:"service"`
	Status      string `json:"status"`
	AutoCheck   bool   `json:"auto_check"`
	CreatedAt   int64  `json:"created_at"`
}

// Ping keeps idle connections open through proxies.
type Ping struct {
	Timestamp int64 `json:"timestamp"`
}

// Waiting is sent when a background check found no code yet.
type Waiting struct {
	Message string `json:"message"`
}

// Received carries the verification code. The stream ends after it.
type Received struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	ReceivedAt int64  `json:"received_at"`
}

// Failed reports that the auto-check stopped on a provider error. The stream
// ends after it.
type Failed struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Stopped reports that the auto-check was ended by something other than the
// stream: a manual check, a cleared or replaced session, another auto-check
// or a shutdown. The stream ends after it.
type Stopped struct {
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

// Error is sent by the server to report an error that ends the stream.
type Error struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// NewFrame creates a Frame with the given type and payload.
func NewFrame(frameType FrameType, payload interface{}) (*Frame, error) {
	var payloadBytes json.RawMessage
	if payload != nil {
		var err error
		payloadBytes, err = json.Marshal(payload)
		if err != nil {
			return nil, err
		}
	}
	return &Frame{
		Type:    frameType,
		Payload: payloadBytes,
	}, nil
}

// ParsePayload unmarshals the frame payload into the given struct.
func (f *Frame) ParsePayload(v interface{}) error {
	if f.Payload == nil {
		return nil
	}
	return json.Unmarshal(f.Payload, v)
}

// WriteTo encodes f as one SSE event.
func (f *Frame) WriteTo(w io.Writer) (int64, error) {
	var buf bytes.Buffer
	buf.WriteString("event: ")
	buf.WriteString(string(f.Type))
	buf.WriteString("\ndata: ")
	if len(f.Payload) == 0 {
		buf.WriteString("{}")
	} else {
		// json.Marshal output never contains raw newlines.
		buf.Write(f.Payload)
	}
	buf.WriteString("\n\n")
	return buf.WriteTo(w)
}

// ErrMalformedEvent is returned by Reader for events without a name.
var ErrMalformedEvent = errors.New("malformed event")

// Reader decodes frames from an SSE stream.
type Reader struct {
	r *bufio.Reader
}

// NewReader returns a Reader that decodes frames from r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

// Next returns the next frame. Comment lines and unknown fields are skipped.
// It returns io.EOF at the end of the stream.
func (r *Reader) Next() (*Frame, error) {
	var (
		event string
		data  []string
		seen  bool
	)
	for {
		line, err := r.r.ReadString('\n')
		if err != nil && (err != io.EOF || line == "") {
			if err == io.EOF && seen {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}
		line = strings.TrimRight(line, "\r\n")

		if line == "" {
			if !seen {
				continue
			}
			if event == "" {
				return nil, ErrMalformedEvent
			}
			f := &Frame{Type: FrameType(event)}
			if joined := strings.Join(data, "\n"); joined != "" && joined != "{}" {
				f.Payload = json.RawMessage(joined)
			}
			return f, nil
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			event = value
			seen = true
		case "data":
			data = append(data, value)
			seen = true
		default:
			// id, retry and unknown fields are not used
		}
		if err == io.EOF {
			return nil, fmt.Errorf("event %q: %w", event, io.ErrUnexpectedEOF)
		}
	}
}
