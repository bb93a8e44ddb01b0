package codec

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

var (
	ProtoBuf Codec = &protoBufCodec{}
)

// protoBufCodec encodes proto messages natively. Generic JSON-shaped maps,
// such as a serialized statement, are carried as a google.protobuf.Struct.
type protoBufCodec struct{}

func (*protoBufCodec) Name() string {
	return "protobuf"
}

func (*protoBufCodec) Marshal(v any) ([]byte, error) {
	switch m := v.(type) {
	case proto.Message:
		return proto.Marshal(m)
	case map[string]any:
		s, err := toStruct(m)
		if err != nil {
			return nil, err
		}
		return proto.Marshal(s)
	}
	return nil, fmt.Errorf("%w: %T is not a proto.Message or map", proto.Error, v)
}

func (*protoBufCodec) Unmarshal(b []byte, v any) error {
	switch m := v.(type) {
	case proto.Message:
		return proto.Unmarshal(b, m)
	case *map[string]any:
		var s structpb.Struct
		if err := proto.Unmarshal(b, &s); err != nil {
			return err
		}
		*m = s.AsMap()
		return nil
	}
	return fmt.Errorf("%w: %T is not a proto.Message or *map", proto.Error, v)
}

// toStruct normalizes arbitrary values (ints, typed slices, structs nested
// in extensions) through JSON, the only shape structpb accepts.
func toStruct(m map[string]any) (*structpb.Struct, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	var norm map[string]any
	if err := json.Unmarshal(b, &norm); err != nil {
		return nil, err
	}
	return structpb.NewStruct(norm)
}
