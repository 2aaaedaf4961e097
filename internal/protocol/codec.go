package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Envelope is the frame shape on the wire: a tag plus raw payload bytes.
// Payloads stay raw until the handler knows which struct to decode into.
type Envelope struct {
	T string          `json:"t"`
	P json.RawMessage `json:"p,omitempty"`
}

var (
	ErrUnknownEvent = errors.New("unknown event tag")
	ErrBadPayload   = errors.New("malformed payload")
)

// Encode marshals an event into a wire frame.
func Encode(tag string, payload any) ([]byte, error) {
	if !Known(tag) {
		return nil, fmt.Errorf("encode %q: %w", tag, ErrUnknownEvent)
	}
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %q payload: %w", tag, err)
		}
		raw = b
	}
	return json.Marshal(Envelope{T: tag, P: raw})
}

// DecodeEnvelope parses a frame and validates the tag against the closed
// event set.
func DecodeEnvelope(b []byte) (Envelope, error) {
	if len(b) == 0 {
		return Envelope{}, fmt.Errorf("decode: empty frame: %w", ErrBadPayload)
	}
	var e Envelope
	if err := json.Unmarshal(b, &e); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if !Known(e.T) {
		return Envelope{}, fmt.Errorf("decode %q: %w", e.T, ErrUnknownEvent)
	}
	return e, nil
}

// DecodePayload unmarshals the envelope payload into T.
func DecodePayload[T any](env Envelope) (T, error) {
	var out T
	if len(env.P) == 0 {
		return out, fmt.Errorf("%q: empty payload: %w", env.T, ErrBadPayload)
	}
	if err := json.Unmarshal(env.P, &out); err != nil {
		return out, fmt.Errorf("%q payload: %w", env.T, err)
	}
	return out, nil
}
