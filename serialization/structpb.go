package serialization

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

const StructName = "structpb"

// StructSerializer carries values as binary protobuf google.protobuf.Value
// messages. Values are mapped through their JSON form, so any type the JSON
// serializer handles is supported. Protobuf numbers are doubles: integers
// beyond 2^53 lose precision.
type StructSerializer struct{}

func NewStructSerializer() *StructSerializer {
	return &StructSerializer{}
}

func (s *StructSerializer) Name() string {
	return StructName
}

func (s *StructSerializer) Marshal(v any) ([]byte, error) {
	if msg, ok := v.(proto.Message); ok {
		return proto.Marshal(msg)
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return nil, err
	}
	value, err := structpb.NewValue(generic)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	return proto.Marshal(value)
}

func (s *StructSerializer) Unmarshal(data []byte, v any) error {
	if msg, ok := v.(proto.Message); ok {
		return proto.Unmarshal(data, msg)
	}

	var value structpb.Value
	if err := proto.Unmarshal(data, &value); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	js, err := value.MarshalJSON()
	if err != nil {
		return err
	}
	return decodeJSON(js, v)
}
