// Package codec provides the serializers and compressors applied to values
// before they reach a store.
package codec

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/LavishGent/keyv/internal/types"
)

// JSONSerializer implements Serializer using JSON encoding. It is the default
// and produces the {"value":...,"expires":...} wire format.
type JSONSerializer struct{}

func NewJSONSerializer() *JSONSerializer {
	return &JSONSerializer{}
}

func (s *JSONSerializer) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (s *JSONSerializer) Unmarshal(data []byte, dest any) error {
	return json.Unmarshal(data, dest)
}

// MsgpackSerializer trades readability for size.
type MsgpackSerializer struct{}

func NewMsgpackSerializer() *MsgpackSerializer {
	return &MsgpackSerializer{}
}

func (s *MsgpackSerializer) Marshal(v any) ([]byte, error) {
	return msgpack.Marshal(v)
}

func (s *MsgpackSerializer) Unmarshal(data []byte, dest any) error {
	return msgpack.Unmarshal(data, dest)
}

// CBORSerializer uses core deterministic encoding so equal values produce
// equal bytes.
type CBORSerializer struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

func NewCBORSerializer() (*CBORSerializer, error) {
	eo := cbor.CoreDetEncOptions()
	eo.Time = cbor.TimeRFC3339Nano

	em, err := eo.EncMode()
	if err != nil {
		return nil, err
	}
	dm, err := (cbor.DecOptions{}).DecMode()
	if err != nil {
		return nil, err
	}
	return &CBORSerializer{enc: em, dec: dm}, nil
}

func (s *CBORSerializer) Marshal(v any) ([]byte, error) {
	return s.enc.Marshal(v)
}

func (s *CBORSerializer) Unmarshal(data []byte, dest any) error {
	return s.dec.Unmarshal(data, dest)
}

// SerializerByName resolves a configured serializer tag. The empty name
// selects JSON.
func SerializerByName(name string) (types.Serializer, error) {
	switch strings.ToLower(name) {
	case "", "json":
		return NewJSONSerializer(), nil
	case "msgpack":
		return NewMsgpackSerializer(), nil
	case "cbor":
		return NewCBORSerializer()
	default:
		return nil, fmt.Errorf("codec: unknown serializer %q", name)
	}
}

var (
	_ types.Serializer = (*JSONSerializer)(nil)
	_ types.Serializer = (*MsgpackSerializer)(nil)
	_ types.Serializer = (*CBORSerializer)(nil)
)
