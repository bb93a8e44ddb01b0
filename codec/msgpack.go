package codec

import (
	"bytes"
	"encoding/json"

	"github.com/vmihailenco/msgpack/v5"
)

var (
	// MsgPack encodes maps with sorted keys so equal statements produce
	// equal bytes. Structs use their json tags.
	MsgPack Codec = &msgpackCodec{}
)

type msgpackCodec struct{}

func (*msgpackCodec) Name() string {
	return "msgpack"
}

func (*msgpackCodec) Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(plainNumbers(v)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (*msgpackCodec) Unmarshal(b []byte, v any) error {
	dec := msgpack.NewDecoder(bytes.NewReader(b))
	dec.SetCustomStructTag("json")
	return dec.Decode(v)
}

// plainNumbers replaces json.Number values, which msgpack would write as
// strings, with native integers or floats.
func plainNumbers(v any) any {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, v := range x {
			out[k] = plainNumbers(v)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, v := range x {
			out[i] = plainNumbers(v)
		}
		return out
	}
	return v
}
