package codec

import "github.com/LavishGent/keyv/internal/types"

// CompressionAdapter pairs a compressor with the serializer used for the
// outer envelope.
type CompressionAdapter struct {
	types.Compressor
	serializer types.Serializer
}

// NewCompressionAdapter returns an adapter; a nil serializer selects JSON.
func NewCompressionAdapter(c types.Compressor, s types.Serializer) *CompressionAdapter {
	if s == nil {
		s = NewJSONSerializer()
	}
	return &CompressionAdapter{Compressor: c, serializer: s}
}

func (a *CompressionAdapter) Serialize(env types.RawEnvelope) ([]byte, error) {
	return a.serializer.Marshal(env)
}

func (a *CompressionAdapter) Deserialize(data []byte) (types.RawEnvelope, error) {
	var env types.RawEnvelope
	err := a.serializer.Unmarshal(data, &env)
	return env, err
}

// AdapterByName builds an adapter for a compression tag, or nil for none.
func AdapterByName(compression string, s types.Serializer) (types.CompressionAdapter, error) {
	c, err := CompressorByName(compression)
	if err != nil || c == nil {
		return nil, err
	}
	return NewCompressionAdapter(c, s), nil
}

var _ types.CompressionAdapter = (*CompressionAdapter)(nil)
