package xapi

import (
	"bytes"
	"encoding/json"
	"maps"
	"math/big"
	"slices"
	"strconv"
	"strings"

	"github.com/google/go-cmp/cmp"
)

// Extensions maps IRI keys to arbitrary JSON values. Values are
// normalized to the shapes encoding/json decodes into, with numbers held
// as canonical json.Number literals, so a locally built map compares
// equal to one decoded from the wire and integers keep every digit.
// Extensions are immutable once built.
type Extensions struct {
	m map[string]any
}

// NewExtensions deep copies m into a new Extensions.
func NewExtensions(m map[string]any) Extensions {
	if len(m) == 0 {
		return Extensions{}
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = normalize(v)
	}
	return Extensions{m: out}
}

// Get returns a copy of the value stored for key.
func (e Extensions) Get(key string) (any, bool) {
	v, ok := e.m[key]
	if !ok {
		return nil, false
	}
	return normalize(v), true
}

func (e Extensions) Len() int {
	return len(e.m)
}

func (e Extensions) IsEmpty() bool {
	return len(e.m) == 0
}

// Keys returns the extension keys in sorted order.
func (e Extensions) Keys() []string {
	return slices.Sorted(maps.Keys(e.m))
}

// Map returns a deep copy of the underlying mapping.
func (e Extensions) Map() map[string]any {
	if e.m == nil {
		return nil
	}
	return normalize(e.m).(map[string]any)
}

func (e Extensions) Equal(o Extensions) bool {
	return cmp.Equal(e.m, o.m)
}

// AsVersion returns a deep copy of the entries, or nil when empty.
func (e Extensions) AsVersion(Version) map[string]any {
	if len(e.m) == 0 {
		return nil
	}
	return e.Map()
}

// CompareWithSignature checks the union of keys in sorted order. Every
// key must be present on both sides with deeply equal values.
func (e Extensions) CompareWithSignature(fromSig Extensions) Comparison {
	keys := make(map[string]struct{}, len(e.m)+len(fromSig.m))
	for k := range e.m {
		keys[k] = struct{}{}
	}
	for k := range fromSig.m {
		keys[k] = struct{}{}
	}

	for _, k := range slices.Sorted(maps.Keys(keys)) {
		a, inThis := e.m[k]
		b, inSig := fromSig.m[k]
		switch {
		case !inSig:
			return mismatch("%s not in signature", k)
		case !inThis:
			return mismatch("%s not in this", k)
		case !cmp.Equal(a, b):
			return mismatch("%s does not match", k)
		}
	}
	return matched
}

func (e Extensions) MarshalJSON() ([]byte, error) {
	if e.m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(e.m)
}

func (e *Extensions) UnmarshalJSON(b []byte) error {
	var m map[string]any
	if err := decodeNumbers(b, &m); err != nil {
		return err
	}
	*e = NewExtensions(m)
	return nil
}

// normalize deep copies v into JSON value shapes.
func normalize(v any) any {
	switch x := v.(type) {
	case nil, string, bool:
		return x
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, v := range x {
			out[k] = normalize(v)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, v := range x {
			out[i] = normalize(v)
		}
		return out
	case map[string]string:
		out := make(map[string]any, len(x))
		for k, v := range x {
			out[k] = v
		}
		return out
	case []string:
		out := make([]any, len(x))
		for i, v := range x {
			out[i] = v
		}
		return out
	case json.Number:
		return canonicalNumber(x)
	case int:
		return json.Number(strconv.FormatInt(int64(x), 10))
	case int8:
		return json.Number(strconv.FormatInt(int64(x), 10))
	case int16:
		return json.Number(strconv.FormatInt(int64(x), 10))
	case int32:
		return json.Number(strconv.FormatInt(int64(x), 10))
	case int64:
		return json.Number(strconv.FormatInt(x, 10))
	case uint:
		return json.Number(strconv.FormatUint(uint64(x), 10))
	case uint8:
		return json.Number(strconv.FormatUint(uint64(x), 10))
	case uint16:
		return json.Number(strconv.FormatUint(uint64(x), 10))
	case uint32:
		return json.Number(strconv.FormatUint(uint64(x), 10))
	case uint64:
		return json.Number(strconv.FormatUint(x, 10))
	case float32:
		return floatNumber(float64(x))
	case float64:
		return floatNumber(x)
	}

	// Anything else goes through a JSON round trip. Values that cannot be
	// encoded are kept as given.
	b, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := decodeNumbers(b, &out); err != nil {
		return v
	}
	return normalize(out)
}

func decodeNumbers(b []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	return dec.Decode(v)
}

// canonicalNumber gives every spelling of one number the same literal.
// Integer literals are kept digit for digit; anything with a fraction or
// exponent is a float64 and written the way encoding/json writes it.
func canonicalNumber(n json.Number) any {
	s := string(n)
	if isIntLiteral(s) {
		var i big.Int
		if _, ok := i.SetString(s, 10); ok {
			return json.Number(i.String())
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return n
	}
	return floatNumber(f)
}

func floatNumber(f float64) any {
	if f == 0 {
		f = 0 // drop the sign of -0
	}
	b, err := json.Marshal(f)
	if err != nil {
		return f
	}
	return json.Number(b)
}

func isIntLiteral(s string) bool {
	s = strings.TrimPrefix(s, "-")
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
