package xapi

import (
	"encoding/json"
	"maps"
	"slices"

	"golang.org/x/text/language"
)

// LanguageMap maps RFC 5646 language tags to localized strings. A
// LanguageMap is immutable once built; the zero value is empty.
type LanguageMap struct {
	m map[string]string
}

// NewLanguageMap copies m into a new LanguageMap.
func NewLanguageMap(m map[string]string) LanguageMap {
	if len(m) == 0 {
		return LanguageMap{}
	}
	return LanguageMap{m: maps.Clone(m)}
}

// Get returns the string for the exact tag.
func (l LanguageMap) Get(tag string) (string, bool) {
	v, ok := l.m[tag]
	return v, ok
}

func (l LanguageMap) Len() int {
	return len(l.m)
}

func (l LanguageMap) IsEmpty() bool {
	return len(l.m) == 0
}

// Languages returns the tags in sorted order.
func (l LanguageMap) Languages() []string {
	return slices.Sorted(maps.Keys(l.m))
}

// Map returns a copy of the underlying mapping.
func (l LanguageMap) Map() map[string]string {
	return maps.Clone(l.m)
}

// Negotiate returns the string best matching an Accept-Language value.
// When nothing matches, the "und" entry is used if present, otherwise
// the entry with the first tag in sorted order.
func (l LanguageMap) Negotiate(acceptLanguage string) string {
	if len(l.m) == 0 {
		return ""
	}
	keys := l.Languages()

	if prefs, _, err := language.ParseAcceptLanguage(acceptLanguage); err == nil && len(prefs) > 0 {
		var (
			tags []language.Tag
			idx  []int
		)
		for i, k := range keys {
			t, err := language.Parse(k)
			if err != nil || t == language.Und {
				continue
			}
			tags = append(tags, t)
			idx = append(idx, i)
		}
		if len(tags) > 0 {
			_, i, conf := language.NewMatcher(tags).Match(prefs...)
			if conf != language.No {
				return l.m[keys[idx[i]]]
			}
		}
	}

	if v, ok := l.m["und"]; ok {
		return v
	}
	return l.m[keys[0]]
}

// Equal reports whether both maps hold the same entries.
func (l LanguageMap) Equal(o LanguageMap) bool {
	return maps.Equal(l.m, o.m)
}

// AsVersion returns a copy of the entries, or nil when empty.
func (l LanguageMap) AsVersion(Version) map[string]any {
	if len(l.m) == 0 {
		return nil
	}
	out := make(map[string]any, len(l.m))
	for k, v := range l.m {
		out[k] = v
	}
	return out
}

func (l LanguageMap) MarshalJSON() ([]byte, error) {
	if l.m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(l.m)
}

func (l *LanguageMap) UnmarshalJSON(b []byte) error {
	var m map[string]string
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	*l = NewLanguageMap(m)
	return nil
}
