// Package codec provides the payload encodings used when statements are
// persisted outside of the HTTP wire format. The wire format itself is
// always JSON.
package codec

import (
	"errors"
	"fmt"
	"sort"
)

var (
	ErrNotRegistered = errors.New("xapi: codec not registered")

	Default = JSON

	codecs = map[string]Codec{
		JSON.Name():     JSON,
		MsgPack.Name():  MsgPack,
		ProtoBuf.Name(): ProtoBuf,
		Binary.Name():   Binary,
	}
)

type Codec interface {
	Name() string
	Marshal(any) ([]byte, error)
	Unmarshal([]byte, any) error
}

// Get returns the codec registered under name.
func Get(name string) (Codec, error) {
	c, ok := codecs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotRegistered, name)
	}
	return c, nil
}

// Names returns the registered codec names in sorted order.
func Names() []string {
	names := make([]string, 0, len(codecs))
	for n := range codecs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
