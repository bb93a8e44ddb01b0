package codec

import (
	"bytes"
	"encoding/json"
)

var (
	JSON Codec = &jsonCodec{}
)

type jsonCodec struct{}

func (*jsonCodec) Name() string {
	return "json"
}

// Marshal encodes without HTML escaping and without the trailing newline
// json.Encoder appends, so IRIs such as "http://a/b?x=1&y=2" go out as-is.
func (*jsonCodec) Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}), nil
}

func (*jsonCodec) Unmarshal(b []byte, v any) error {
	if len(b) == 0 {
		return nil
	}
	return json.Unmarshal(b, v)
}
