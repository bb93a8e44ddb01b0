package xapi

import (
	"encoding/json"
)

// Score is a measured outcome. All fields are optional.
type Score struct {
	Scaled *float64 `json:"scaled,omitempty"`
	Raw    *float64 `json:"raw,omitempty"`
	Min    *float64 `json:"min,omitempty"`
	Max    *float64 `json:"max,omitempty"`
}

func (s *Score) AsVersion(v Version) map[string]any {
	if s == nil {
		return nil
	}
	f := fields{}
	for _, p := range []struct {
		key string
		val *float64
	}{
		{"scaled", s.Scaled},
		{"raw", s.Raw},
		{"min", s.Min},
		{"max", s.Max},
	} {
		if p.val != nil {
			f[p.key] = *p.val
		}
	}
	return f
}

func (s *Score) CompareWithSignature(fromSig *Score) Comparison {
	return compareProperties(nil,
		ptrProp("scaled", s.Scaled, fromSig.Scaled),
		ptrProp("raw", s.Raw, fromSig.Raw),
		ptrProp("min", s.Min, fromSig.Min),
		ptrProp("max", s.Max, fromSig.Max),
	)
}

// Result is the measured outcome of a statement.
type Result struct {
	Score      *Score     `json:"score,omitempty"`
	Success    *bool      `json:"success,omitempty"`
	Completion *bool      `json:"completion,omitempty"`
	Duration   string     `json:"duration,omitempty"`
	Response   string     `json:"response,omitempty"`
	Extensions Extensions `json:"extensions"`
}

func (r *Result) AsVersion(v Version) map[string]any {
	if r == nil {
		return nil
	}
	f := fields{}
	f.sub("score", r.Score.AsVersion(v))
	if r.Success != nil {
		f["success"] = *r.Success
	}
	if r.Completion != nil {
		f["completion"] = *r.Completion
	}
	// An empty duration is not a valid ISO 8601 duration.
	f.str("duration", r.Duration)
	f.str("response", r.Response)
	f.sub("extensions", r.Extensions.AsVersion(v))
	return f
}

func (r *Result) CompareWithSignature(fromSig *Result) Comparison {
	return compareProperties(nil,
		objectProp("score", r.Score, fromSig.Score),
		ptrProp("success", r.Success, fromSig.Success),
		ptrProp("completion", r.Completion, fromSig.Completion),
		stringProp("duration", r.Duration, fromSig.Duration),
		stringProp("response", r.Response, fromSig.Response),
		extensionsProp(r.Extensions, fromSig.Extensions),
	)
}

func (r *Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.AsVersion(LatestVersion))
}

// extensionsProp always compares, empty or not, so a key present on
// only one side is reported by name.
func extensionsProp(this, sig Extensions) property {
	return customProp("extensions", true, true, func() Comparison {
		return this.CompareWithSignature(sig)
	})
}
