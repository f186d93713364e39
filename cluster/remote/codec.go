package remote

import (
	"bytes"
	"encoding/gob"
)

// Codec serializes user message payloads for the wire. Domain-state
// serialization is the embedder's concern; the default gob codec works for
// any type registered with encoding/gob and is what the bundled transport
// and the tests use.
type Codec interface {
	Marshal(msg interface{}) ([]byte, error)
	Unmarshal(data []byte) (interface{}, error)
}

// GobCodec serializes payloads with encoding/gob. Message types crossing
// nodes must be registered via gob.Register (or RegisterType).
type GobCodec struct{}

// RegisterType registers a message type for gob transport. Call once per
// concrete type, typically from an init function next to the type.
func RegisterType(v interface{}) { gob.Register(v) }

type gobPayload struct {
	Value interface{}
}

func (GobCodec) Marshal(msg interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(gobPayload{Value: msg}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (GobCodec) Unmarshal(data []byte) (interface{}, error) {
	var p gobPayload
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&p); err != nil {
		return nil, err
	}
	return p.Value, nil
}
