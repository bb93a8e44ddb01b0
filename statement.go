package xapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/bruth/xapi/clock"
	"github.com/bruth/xapi/id"
)

var (
	ErrInvalidUUID         = errors.New("xapi: invalid uuid")
	ErrInvalidTimestamp    = errors.New("xapi: invalid timestamp")
	ErrNestedSubStatement  = errors.New("xapi: substatement may not contain a substatement")
	ErrIncompleteStatement = errors.New("xapi: statement requires actor, verb and object")
)

// Validator can be implemented by entities that check themselves before
// being saved.
type Validator interface {
	Validate() error
}

// StatementBase holds the properties shared by statements and
// substatements.
type StatementBase struct {
	Actor     Actor    `json:"actor"`
	Verb      *Verb    `json:"verb"`
	Object    Object   `json:"object"`
	Result    *Result  `json:"result,omitempty"`
	Context   *Context `json:"context,omitempty"`
	Timestamp string   `json:"timestamp,omitempty"`
}

func (b *StatementBase) writeTo(f fields, v Version) {
	if b.Actor != nil {
		f.sub("actor", serializeObject(b.Actor, v))
	}
	f.sub("verb", b.Verb.AsVersion(v))
	if b.Object != nil {
		f.sub("object", serializeObject(b.Object, v))
	}
	f.sub("result", b.Result.AsVersion(v))
	f.sub("context", b.Context.AsVersion(v))
	f.str("timestamp", b.Timestamp)
}

func (b *StatementBase) properties(fromSig *StatementBase) []property {
	return []property{
		actorProp("actor", b.Actor, fromSig.Actor),
		objectProp("verb", b.Verb, fromSig.Verb),
		objectPropOf("object", b.Object, fromSig.Object),
		objectProp("context", b.Context, fromSig.Context),
		objectProp("result", b.Result, fromSig.Result),
		timestampProp("timestamp", b.Timestamp, fromSig.Timestamp),
	}
}

func (b *StatementBase) validate() error {
	if isNil(b.Actor) || b.Verb == nil || isNil(b.Object) {
		return ErrIncompleteStatement
	}
	if b.Timestamp != "" {
		if _, err := time.Parse(time.RFC3339Nano, b.Timestamp); err != nil {
			return fmt.Errorf("%w: %q", ErrInvalidTimestamp, b.Timestamp)
		}
	}
	if v, ok := b.Object.(Validator); ok {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	if b.Context != nil {
		if err := b.Context.Validate(); err != nil {
			return err
		}
	}
	return nil
}

type statementBaseJSON struct {
	Actor     json.RawMessage `json:"actor"`
	Verb      *Verb           `json:"verb"`
	Object    json.RawMessage `json:"object"`
	Result    *Result         `json:"result"`
	Context   *Context        `json:"context"`
	Timestamp string          `json:"timestamp"`
}

func decodeStatementBase(b []byte) (StatementBase, error) {
	var raw statementBaseJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return StatementBase{}, err
	}

	base := StatementBase{
		Verb:      raw.Verb,
		Result:    raw.Result,
		Context:   raw.Context,
		Timestamp: raw.Timestamp,
	}
	if present(raw.Actor) {
		a, err := decodeActor(raw.Actor)
		if err != nil {
			return base, fmt.Errorf("actor: %w", err)
		}
		base.Actor = a
	}
	if present(raw.Object) {
		o, err := decodeObject(raw.Object)
		if err != nil {
			return base, fmt.Errorf("object: %w", err)
		}
		base.Object = o
	}
	return base, nil
}

func present(r json.RawMessage) bool {
	return len(r) > 0 && !bytes.Equal(r, []byte("null"))
}

// SubStatement is a statement used as the object of another statement,
// describing an action that has not necessarily happened.
type SubStatement struct {
	StatementBase
}

func (*SubStatement) ObjectType() ObjectType {
	return ObjectTypeSubStatement
}

func (s *SubStatement) AsVersion(v Version) map[string]any {
	if s == nil {
		return nil
	}
	f := fields{"objectType": string(ObjectTypeSubStatement)}
	s.writeTo(f, v)
	return f
}

func (s *SubStatement) CompareWithSignature(fromSig *SubStatement) Comparison {
	return compareProperties(nil, s.properties(&fromSig.StatementBase)...)
}

func (s *SubStatement) Validate() error {
	if _, ok := s.Object.(*SubStatement); ok {
		return ErrNestedSubStatement
	}
	if err := s.validate(); err != nil {
		return fmt.Errorf("substatement: %w", err)
	}
	return nil
}

func (s *SubStatement) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.AsVersion(LatestVersion))
}

func (s *SubStatement) UnmarshalJSON(b []byte) error {
	base, err := decodeStatementBase(b)
	if err != nil {
		return err
	}
	s.StatementBase = base
	return nil
}

// Statement is a record of an actor doing something to an object.
//
// Statements are values: build one, then serialize, sign, compare or
// send it. Mutating a statement while it is being serialized or compared
// elsewhere is not supported.
type Statement struct {
	StatementBase

	ID          string        `json:"id,omitempty"`
	Stored      string        `json:"stored,omitempty"`
	Authority   Actor         `json:"authority,omitempty"`
	Version     Version       `json:"version,omitempty"`
	Attachments []*Attachment `json:"attachments,omitempty"`
}

func (s *Statement) AsVersion(v Version) map[string]any {
	if s == nil {
		return nil
	}
	f := fields{}
	f.str("id", s.ID)
	s.writeTo(f, v)
	f.str("stored", s.Stored)
	if s.Authority != nil {
		f.sub("authority", serializeObject(s.Authority, v))
	}
	f.str("version", string(s.Version))
	putList(f, "attachments", s.Attachments, v)
	return f
}

var statementSkip = []string{"stored", "authority", "version"}

// CompareWithSignature checks that s still matches the copy decoded from
// its signature. The id is only compared when the signed copy has one,
// since a store assigns ids after signing. Signature attachments are
// left out on both sides.
func (s *Statement) CompareWithSignature(fromSig *Statement) Comparison {
	skip := statementSkip
	if fromSig.ID == "" {
		skip = slices.Concat(skip, []string{"id"})
	}

	props := []property{stringProp("id", s.ID, fromSig.ID)}
	props = append(props, s.properties(&fromSig.StatementBase)...)
	props = append(props,
		listProp("attachments", withoutSignatures(s.Attachments), withoutSignatures(fromSig.Attachments)),
	)
	return compareProperties(skip, props...)
}

func withoutSignatures(as []*Attachment) []*Attachment {
	var out []*Attachment
	for _, a := range as {
		if !a.isSignature() {
			out = append(out, a)
		}
	}
	return out
}

// Validate checks identifiers, timestamps and the version, and that a
// substatement object does not nest another.
func (s *Statement) Validate() error {
	if s.ID != "" {
		if err := validateUUID(s.ID); err != nil {
			return fmt.Errorf("statement id: %w", err)
		}
	}
	if s.Version != "" {
		if _, err := ParseVersion(string(s.Version)); err != nil {
			return err
		}
	}
	if s.Stored != "" {
		if _, err := time.Parse(time.RFC3339Nano, s.Stored); err != nil {
			return fmt.Errorf("%w: stored %q", ErrInvalidTimestamp, s.Stored)
		}
	}
	if err := noNulls("attachments", s.Attachments); err != nil {
		return err
	}
	return s.validate()
}

// Stamp assigns an id and a timestamp when they are not already set.
func (s *Statement) Stamp(ids id.ID, clk clock.Clock) {
	if s.ID == "" {
		s.ID = ids.New()
	}
	if s.Timestamp == "" {
		s.Timestamp = formatTime(clk.Now())
	}
}

// Signature returns the first signature attachment, or nil.
func (s *Statement) Signature() *Attachment {
	for _, a := range s.Attachments {
		if a.isSignature() {
			return a
		}
	}
	return nil
}

// Void returns a statement by actor voiding s.
func (s *Statement) Void(actor Actor) *Statement {
	return &Statement{
		StatementBase: StatementBase{
			Actor:  actor,
			Verb:   VoidedVerb(),
			Object: &StatementRef{ID: s.ID},
		},
	}
}

func (s *Statement) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.AsVersion(LatestVersion))
}

func (s *Statement) UnmarshalJSON(b []byte) error {
	var raw struct {
		ID          string          `json:"id"`
		Stored      string          `json:"stored"`
		Authority   json.RawMessage `json:"authority"`
		Version     Version         `json:"version"`
		Attachments []*Attachment   `json:"attachments"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if err := noNulls("attachments", raw.Attachments); err != nil {
		return err
	}
	base, err := decodeStatementBase(b)
	if err != nil {
		return err
	}

	*s = Statement{
		StatementBase: base,
		ID:            raw.ID,
		Stored:        raw.Stored,
		Version:       raw.Version,
		Attachments:   raw.Attachments,
	}
	if present(raw.Authority) {
		a, err := decodeActor(raw.Authority)
		if err != nil {
			return fmt.Errorf("authority: %w", err)
		}
		s.Authority = a
	}
	return nil
}

func validateUUID(s string) error {
	if !id.IsUUID(s) {
		return fmt.Errorf("%w: %q", ErrInvalidUUID, s)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
