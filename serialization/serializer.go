// Package serialization provides the envelope codecs.
package serialization

import "fmt"

// Serializer encodes envelopes and values to bytes and back. Decoding into
// an interface value must keep numbers as json.Number so that integer
// widths survive until values are coerced to their declared types.
type Serializer interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error

	// Name identifies the codec in configuration.
	Name() string
}

// ByName returns the serializer registered under name ("json" or "structpb").
func ByName(name string) (Serializer, error) {
	switch name {
	case "", JSONName:
		return NewJSONSerializer(), nil
	case StructName:
		return NewStructSerializer(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSerializer, name)
	}
}
