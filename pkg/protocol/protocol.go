// Package protocol defines the request/response envelope and its framing.
package protocol

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// MaxMessageSize is the maximum encoded envelope size (64KB).
const MaxMessageSize = 65536

// ErrFrameTooLarge is returned when a length prefix exceeds MaxMessageSize.
// The stream cannot be resynchronised after this, so it is a transport fault.
var ErrFrameTooLarge = errors.New("protocol: frame too large")

// DecodeError reports an envelope or payload that could not be interpreted.
// The stream itself is still aligned, so the connection can keep going.
type DecodeError struct {
	Opcode Opcode // empty when the envelope itself was unreadable
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Opcode == "" {
		return fmt.Sprintf("protocol: malformed message: %v", e.Err)
	}
	return fmt.Sprintf("protocol: malformed %s payload: %v", e.Opcode, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Message is the only unit ever transmitted.
// Requests leave Status at zero; responses always set it.
type Message struct {
	Opcode  Opcode          `json:"op"`
	Status  Status          `json:"status,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Text    string          `json:"text,omitempty"`
}

// NewRequest builds a request carrying payload (nil for none).
func NewRequest(op Opcode, payload any) (*Message, error) {
	raw, err := encodePayload(payload)
	if err != nil {
		return nil, err
	}
	return &Message{Opcode: op, Payload: raw}, nil
}

// NewResponse builds a response. Non-success responses without text get the
// status name so the client always has something to show.
func NewResponse(op Opcode, status Status, payload any, text string) (*Message, error) {
	raw, err := encodePayload(payload)
	if err != nil {
		return nil, err
	}
	if text == "" && !status.Success() {
		text = status.String()
	}
	return &Message{Opcode: op, Status: status, Payload: raw, Text: text}, nil
}

// Failure builds a payload-less non-success response. It cannot fail.
func Failure(op Opcode, status Status, text string) *Message {
	if text == "" {
		text = status.String()
	}
	return &Message{Opcode: op, Status: status, Text: text}
}

func encodePayload(payload any) (json.RawMessage, error) {
	if payload == nil {
		return nil, nil
	}
	if raw, ok := payload.(json.RawMessage); ok {
		return raw, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: marshal payload: %w", err)
	}
	return data, nil
}

// Decode strictly unmarshals the payload into v. Unknown fields and type
// mismatches yield a *DecodeError. An absent payload decodes as an empty object.
func (m *Message) Decode(v any) error {
	data := []byte(m.Payload)
	if len(bytes.TrimSpace(data)) == 0 || bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		data = []byte("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &DecodeError{Opcode: m.Opcode, Err: err}
	}
	if dec.More() {
		return &DecodeError{Opcode: m.Opcode, Err: errors.New("trailing data after payload")}
	}
	return nil
}

// Marshal encodes an envelope without framing (one WebSocket frame).
func Marshal(msg *Message) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("protocol: marshal: %w", err)
	}
	if len(data) > MaxMessageSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(data))
	}
	return data, nil
}

// Unmarshal decodes one envelope. The opcode is not checked against the
// known set here; dispatch decides what to do with unknown opcodes.
func Unmarshal(data []byte) (*Message, error) {
	msg := &Message{}
	if err := json.Unmarshal(data, msg); err != nil {
		return nil, &DecodeError{Err: err}
	}
	if msg.Opcode == "" {
		return nil, &DecodeError{Err: errors.New("missing opcode")}
	}
	return msg, nil
}

// WriteMessage writes a length-prefixed JSON envelope to a writer.
// Format: [4-byte big-endian length][JSON envelope]
func WriteMessage(w io.Writer, msg *Message) error {
	data, err := Marshal(msg)
	if err != nil {
		return err
	}

	buf := make([]byte, 4+len(data))
	binary.BigEndian.PutUint32(buf[:4], uint32(len(data))) //nolint:gosec // length already bounds-checked
	copy(buf[4:], data)
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("protocol: write: %w", err)
	}
	return nil
}

// ReadMessage reads one length-prefixed envelope. I/O failures and
// ErrFrameTooLarge are fatal to the stream; *DecodeError is not.
func ReadMessage(r io.Reader) (*Message, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, fmt.Errorf("protocol: read length: %w", err)
	}
	length := binary.BigEndian.Uint32(lenBuf[:])
	if length > MaxMessageSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, length)
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("protocol: read payload: %w", err)
	}
	return Unmarshal(data)
}
