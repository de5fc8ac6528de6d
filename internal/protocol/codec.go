package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrMalformedFrame = errors.New("malformed frame")
	ErrMissingTag     = errors.New("frame has no message tag")
	ErrEmptyPayload   = errors.New("frame has no payload")
)

// Envelope is a single decoded frame. Kind carries the value of the
// messageType field for client pushes and of the message field for commands.
type Envelope struct {
	Kind    string
	Payload json.RawMessage
}

type frame struct {
	MessageType string          `json:"messageType,omitempty"`
	Message     json.RawMessage `json:"message,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

type commandFrame struct {
	Message string `json:"message"`
	Payload any    `json:"payload,omitempty"`
}

type eventFrame struct {
	MessageType string `json:"messageType"`
	Payload     any    `json:"payload,omitempty"`
}

// Decode parses one raw frame. messageType wins over message when both are present.
func Decode(raw []byte) (Envelope, error) {
	var f frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	kind := f.MessageType
	if kind == "" && len(f.Message) > 0 {
		// a non-string message field is not a tag
		var tag string
		if err := json.Unmarshal(f.Message, &tag); err == nil {
			kind = tag
		}
	}
	if kind == "" {
		return Envelope{}, ErrMissingTag
	}

	payload := f.Payload
	if bytes.Equal(bytes.TrimSpace(payload), []byte("null")) {
		payload = nil
	}

	return Envelope{Kind: kind, Payload: payload}, nil
}

// Encode builds an outbound command frame. A nil payload is omitted.
func Encode(kind string, payload any) ([]byte, error) {
	if kind == "" {
		return nil, ErrMissingTag
	}
	data, err := json.Marshal(commandFrame{Message: kind, Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", kind, err)
	}
	return data, nil
}

// EncodeEvent builds a frame the way the game client pushes it.
func EncodeEvent(kind string, payload any) ([]byte, error) {
	if kind == "" {
		return nil, ErrMissingTag
	}
	data, err := json.Marshal(eventFrame{MessageType: kind, Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", kind, err)
	}
	return data, nil
}

// Unmarshal decodes the envelope payload into v.
func (e Envelope) Unmarshal(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%s: %w", e.Kind, ErrEmptyPayload)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", e.Kind, err)
	}
	return nil
}
