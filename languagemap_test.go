package xapi

import (
	"encoding/json"
	"testing"

	"github.com/bruth/xapi/testutil"
)

func TestLanguageMapNegotiate(t *testing.T) {
	lm := NewLanguageMap(map[string]string{
		"en-US": "attempted",
		"en-GB": "attempted (GB)",
		"de-DE": "versucht",
		"und":   "?",
	})

	tests := []struct {
		Accept string
		Want   string
	}{
		{"de", "versucht"},
		{"en-GB,en;q=0.8", "attempted (GB)"},
		{"fr-CH, fr;q=0.9, de;q=0.7", "versucht"},
		{"ja", "?"},
		{"", "?"},
	}

	for _, test := range tests {
		t.Run(test.Accept, func(t *testing.T) {
			is := testutil.NewIs(t)
			is.Equal(lm.Negotiate(test.Accept), test.Want)
		})
	}
}

func TestLanguageMapFallback(t *testing.T) {
	is := testutil.NewIs(t)

	lm := NewLanguageMap(map[string]string{"fr-FR": "essayé", "de-DE": "versucht"})
	is.Equal(lm.Negotiate("ja"), "versucht")
	is.Equal(LanguageMap{}.Negotiate("en"), "")
}

func TestLanguageMapJSON(t *testing.T) {
	is := testutil.NewIs(t)

	src := map[string]string{"en-US": "A"}
	lm := NewLanguageMap(src)
	src["en-US"] = "B"
	v, _ := lm.Get("en-US")
	is.Equal(v, "A")

	b, err := json.Marshal(LanguageMap{})
	is.NoErr(err)
	is.Equal(string(b), "{}")
	is.True(LanguageMap{}.AsVersion(LatestVersion) == nil)

	var out LanguageMap
	is.NoErr(json.Unmarshal([]byte(`{"de-DE": "versucht", "en-US": "attempted"}`), &out))
	is.Equal(out.Languages(), []string{"de-DE", "en-US"})
	is.True(out.Equal(NewLanguageMap(map[string]string{"en-US": "attempted", "de-DE": "versucht"})))
}

func TestVersions(t *testing.T) {
	is := testutil.NewIs(t)

	v, err := ParseVersion("1.0.1")
	is.NoErr(err)
	is.Equal(v, Version101)

	_, err = ParseVersion("1.0.9")
	is.Err(err, ErrUnsupportedVersion)

	v, err = NegotiateVersion([]string{"0.95", "1.0.0", "1.0.3", "2.0.0", "junk"})
	is.NoErr(err)
	is.Equal(v, Version103)

	_, err = NegotiateVersion([]string{"0.9", "0.95"})
	is.Err(err, ErrUnsupportedVersion)

	vs := SupportedVersions()
	is.Equal(vs[0], LatestVersion)
	vs[0] = "x"
	is.Equal(SupportedVersions()[0], LatestVersion)
}
