package xapi

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ObjectType is the discriminator carried in the objectType property.
type ObjectType string

const (
	ObjectTypeActivity     ObjectType = "Activity"
	ObjectTypeAgent        ObjectType = "Agent"
	ObjectTypeGroup        ObjectType = "Group"
	ObjectTypeStatementRef ObjectType = "StatementRef"
	ObjectTypeSubStatement ObjectType = "SubStatement"
	ObjectTypePerson       ObjectType = "Person"
)

var (
	ErrUnknownObjectType = errors.New("xapi: unknown object type")
	ErrNullElement       = errors.New("xapi: null list element")
)

// Versionable is implemented by every entity that can be written in the
// wire form of a given version. The result holds only maps, []any and
// scalars so it can be handed to any of the payload codecs.
type Versionable interface {
	AsVersion(v Version) map[string]any
}

// Object is the target of a statement. It is implemented by *Activity,
// *Agent, *Group, *StatementRef and *SubStatement only.
type Object interface {
	Versionable
	ObjectType() ObjectType
	isObject()
}

// Actor is the performer of a statement, an *Agent or a *Group.
type Actor interface {
	Object
	isActor()
}

func (*Activity) isObject()     {}
func (*Agent) isObject()        {}
func (*StatementRef) isObject() {}
func (*SubStatement) isObject() {}
func (*Agent) isActor()         {}

// StatementRef points at another statement by id.
type StatementRef struct {
	ID string `json:"id"`
}

func (*StatementRef) ObjectType() ObjectType {
	return ObjectTypeStatementRef
}

func (r *StatementRef) AsVersion(v Version) map[string]any {
	if r == nil {
		return nil
	}
	f := fields{"objectType": string(ObjectTypeStatementRef)}
	f.str("id", r.ID)
	return f
}

func (r *StatementRef) CompareWithSignature(fromSig *StatementRef) Comparison {
	return compareProperties(nil,
		stringProp("id", r.ID, fromSig.ID),
	)
}

func (r *StatementRef) Validate() error {
	if err := validateUUID(r.ID); err != nil {
		return fmt.Errorf("statement ref: %w", err)
	}
	return nil
}

func (r *StatementRef) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.AsVersion(LatestVersion))
}

// serializeObject dispatches on the concrete variant. Any other
// implementation of Object is a programming error.
func serializeObject(o Object, v Version) map[string]any {
	switch x := o.(type) {
	case nil:
		return nil
	case *Activity:
		return x.AsVersion(v)
	case *Agent:
		return x.AsVersion(v)
	case *Group:
		return x.AsVersion(v)
	case *StatementRef:
		return x.AsVersion(v)
	case *SubStatement:
		return x.AsVersion(v)
	}
	panic(fmt.Errorf("%w: %T", ErrUnknownObjectType, o))
}

// isNil reports whether an interface holds nothing or a nil pointer.
func isNil(o Object) bool {
	switch x := o.(type) {
	case nil:
		return true
	case *Activity:
		return x == nil
	case *Agent:
		return x == nil
	case *Group:
		return x == nil
	case *StatementRef:
		return x == nil
	case *SubStatement:
		return x == nil
	}
	return false
}

// compareObjects compares two objects of the same variant. Differing
// variants fail on the discriminator.
func compareObjects(this, sig Object) Comparison {
	if this.ObjectType() != sig.ObjectType() {
		return mismatch("Comparison of objectType failed: value is not the same")
	}
	switch x := this.(type) {
	case *Activity:
		return compareAs(x, sig)
	case *Agent:
		return compareAs(x, sig)
	case *Group:
		return compareAs(x, sig)
	case *StatementRef:
		return compareAs(x, sig)
	case *SubStatement:
		return compareAs(x, sig)
	}
	return mismatch("Comparison of objectType failed: value is not the same")
}

func compareAs[T any, PT interface {
	*T
	Comparable[PT]
}](this PT, sig Object) Comparison {
	s, ok := sig.(PT)
	if !ok {
		return mismatch("Comparison of objectType failed: value is not the same")
	}
	return this.CompareWithSignature(s)
}

func objectPropOf(name string, this, sig Object) property {
	return customProp(name, !isNil(this), !isNil(sig), func() Comparison {
		return compareObjects(this, sig)
	})
}

func actorProp(name string, this, sig Actor) property {
	return customProp(name, !isNil(this), !isNil(sig), func() Comparison {
		return compareObjects(this, sig)
	})
}

type objectHeader struct {
	ObjectType ObjectType `json:"objectType"`
}

// decodeObject selects the variant from the objectType property. A
// missing discriminator means Activity.
func decodeObject(b []byte) (Object, error) {
	var h objectHeader
	if err := json.Unmarshal(b, &h); err != nil {
		return nil, err
	}

	var o Object
	switch h.ObjectType {
	case "", ObjectTypeActivity:
		o = &Activity{}
	case ObjectTypeAgent:
		o = &Agent{}
	case ObjectTypeGroup:
		o = &Group{}
	case ObjectTypeStatementRef:
		o = &StatementRef{}
	case ObjectTypeSubStatement:
		o = &SubStatement{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownObjectType, h.ObjectType)
	}

	if err := json.Unmarshal(b, o); err != nil {
		return nil, err
	}
	return o, nil
}

// decodeActor selects a Group when objectType is "Group" and an Agent
// otherwise.
func decodeActor(b []byte) (Actor, error) {
	var h objectHeader
	if err := json.Unmarshal(b, &h); err != nil {
		return nil, err
	}
	if h.ObjectType == ObjectTypeGroup {
		var g Group
		if err := json.Unmarshal(b, &g); err != nil {
			return nil, err
		}
		return &g, nil
	}
	var a Agent
	if err := json.Unmarshal(b, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// noNulls rejects decoded lists holding a JSON null.
func noNulls[T any](name string, items []*T) error {
	for i, item := range items {
		if item == nil {
			return fmt.Errorf("%w: %s %d", ErrNullElement, name, i)
		}
	}
	return nil
}

// fields is a wire-form map under construction. Unset values are never
// written.
type fields map[string]any

func (f fields) str(key, v string) {
	if v != "" {
		f[key] = v
	}
}

func (f fields) sub(key string, m map[string]any) {
	if len(m) > 0 {
		f[key] = m
	}
}

func (f fields) strs(key string, v []string) {
	if len(v) == 0 {
		return
	}
	out := make([]any, len(v))
	for i, s := range v {
		out[i] = s
	}
	f[key] = out
}

func putList[T Versionable](f fields, key string, items []T, v Version) {
	if len(items) == 0 {
		return
	}
	out := make([]any, 0, len(items))
	for _, item := range items {
		out = append(out, item.AsVersion(v))
	}
	f[key] = out
}
