package codec

import (
	"encoding"
	"errors"
	"fmt"
)

var (
	ErrNotBytes = errors.New("xapi: binary codec takes raw bytes")

	// Binary stores attachment content as is.
	Binary Codec = binaryCodec{}
)

type binaryCodec struct{}

func (binaryCodec) Name() string {
	return "binary"
}

func (binaryCodec) Marshal(v any) ([]byte, error) {
	switch x := v.(type) {
	case []byte:
		return x, nil
	case encoding.BinaryMarshaler:
		return x.MarshalBinary()
	}
	return nil, fmt.Errorf("%w: got %T", ErrNotBytes, v)
}

// Unmarshal copies b into a *[]byte target, reusing its backing array.
func (binaryCodec) Unmarshal(b []byte, v any) error {
	switch x := v.(type) {
	case *[]byte:
		*x = append((*x)[:0], b...)
		return nil
	case encoding.BinaryUnmarshaler:
		return x.UnmarshalBinary(b)
	}
	return fmt.Errorf("%w: got %T", ErrNotBytes, v)
}
