package xapi

import (
	"fmt"
	"slices"
	"time"
)

// Comparison is the outcome of comparing a statement, or one of its parts,
// with the copy carried in its signature. A failed comparison is a normal
// result, not an error; Reason describes the first difference found, with
// each level of nesting prefixing the name of the property it descended
// into.
type Comparison struct {
	Success bool
	Reason  string
}

var matched = Comparison{Success: true}

func mismatch(format string, args ...any) Comparison {
	return Comparison{Reason: fmt.Sprintf(format, args...)}
}

// Comparable is implemented by every entity that takes part in signature
// verification. The receiver is the live value, fromSig the value decoded
// from the signature payload.
type Comparable[T any] interface {
	CompareWithSignature(fromSig T) Comparison
}

// property is one entry of a type's ordered property list.
type property struct {
	name    string
	thisSet bool
	sigSet  bool
	// compare is only called when both sides are set.
	compare func() Comparison
	// nested results are prefixed with "Comparison of <name> failed: ";
	// scalar mismatches report "value is not the same".
	nested bool
}

// compareProperties walks props in order, skipping those named in skip,
// and returns the first failure.
func compareProperties(skip []string, props ...property) Comparison {
	for _, p := range props {
		if slices.Contains(skip, p.name) {
			continue
		}
		if !p.thisSet && !p.sigSet {
			continue
		}
		if p.thisSet && !p.sigSet {
			return mismatch("Comparison of %s failed: value not in signature", p.name)
		}
		if !p.thisSet && p.sigSet {
			return mismatch("Comparison of %s failed: value not in this", p.name)
		}

		res := p.compare()
		if res.Success {
			continue
		}
		if p.nested {
			return mismatch("Comparison of %s failed: %s", p.name, res.Reason)
		}
		return mismatch("Comparison of %s failed: value is not the same", p.name)
	}
	return matched
}

func equality(ok bool) Comparison {
	if ok {
		return matched
	}
	return Comparison{}
}

func stringProp(name, this, sig string) property {
	return property{
		name:    name,
		thisSet: this != "",
		sigSet:  sig != "",
		compare: func() Comparison { return equality(this == sig) },
	}
}

func ptrProp[T comparable](name string, this, sig *T) property {
	return property{
		name:    name,
		thisSet: this != nil,
		sigSet:  sig != nil,
		compare: func() Comparison { return equality(*this == *sig) },
	}
}

// objectProp compares two optional nested entities of the same type.
func objectProp[T any, PT interface {
	*T
	Comparable[PT]
}](name string, this, sig PT) property {
	return property{
		name:    name,
		thisSet: this != nil,
		sigSet:  sig != nil,
		nested:  true,
		compare: func() Comparison { return this.CompareWithSignature(sig) },
	}
}

// listProp compares two lists position by position.
func listProp[T any, PT interface {
	*T
	Comparable[PT]
}](name string, this, sig []PT) property {
	return property{
		name:    name,
		thisSet: len(this) > 0,
		sigSet:  len(sig) > 0,
		nested:  true,
		compare: func() Comparison { return compareList(this, sig, "index") },
	}
}

func compareList[T any, PT interface {
	*T
	Comparable[PT]
}](this, sig []PT, label string) Comparison {
	if len(this) != len(sig) {
		return mismatch("array lengths differ")
	}
	for i := range this {
		if res := compareElement[T, PT](this[i], sig[i]); !res.Success {
			return mismatch("Comparison of %s %d failed: %s", label, i, res.Reason)
		}
	}
	return matched
}

// compareElement compares one list element, where either side may be a
// nil pointer.
func compareElement[T any, PT interface {
	*T
	Comparable[PT]
}](this, sig PT) Comparison {
	switch {
	case this == nil && sig == nil:
		return matched
	case this == nil:
		return mismatch("value not in this")
	case sig == nil:
		return mismatch("value not in signature")
	}
	return this.CompareWithSignature(sig)
}

func customProp(name string, thisSet, sigSet bool, compare func() Comparison) property {
	return property{
		name:    name,
		thisSet: thisSet,
		sigSet:  sigSet,
		nested:  true,
		compare: compare,
	}
}

// timestampProp compares two RFC 3339 timestamps as instants, including
// any fractional seconds. Strings that do not parse never match.
func timestampProp(name, this, sig string) property {
	return property{
		name:    name,
		thisSet: this != "",
		sigSet:  sig != "",
		compare: func() Comparison {
			if this == sig {
				return matched
			}
			a, err := time.Parse(time.RFC3339Nano, this)
			if err != nil {
				return Comparison{}
			}
			b, err := time.Parse(time.RFC3339Nano, sig)
			if err != nil {
				return Comparison{}
			}
			return equality(a.Equal(b) && a.Nanosecond() == b.Nanosecond())
		},
	}
}
