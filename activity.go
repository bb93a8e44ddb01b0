package xapi

import (
	"encoding/json"
	"fmt"
)

// Activity is the most common statement object, identified by an IRI.
type Activity struct {
	ID         string              `json:"id"`
	Definition *ActivityDefinition `json:"definition,omitempty"`
}

func (*Activity) ObjectType() ObjectType {
	return ObjectTypeActivity
}

func (a *Activity) AsVersion(v Version) map[string]any {
	if a == nil {
		return nil
	}
	f := fields{"objectType": string(ObjectTypeActivity)}
	f.str("id", a.ID)
	f.sub("definition", a.Definition.AsVersion(v))
	return f
}

var activitySkip = []string{"definition"}

// CompareWithSignature compares ids. Definitions are descriptive and
// may be enriched by the store, so they are not compared.
func (a *Activity) CompareWithSignature(fromSig *Activity) Comparison {
	return compareProperties(activitySkip,
		stringProp("id", a.ID, fromSig.ID),
		customProp("definition", a.Definition != nil, fromSig.Definition != nil, nil),
	)
}

func (a *Activity) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.AsVersion(LatestVersion))
}

// ActivityDefinition describes an activity. Interaction fields are only
// meaningful for the matching InteractionType.
type ActivityDefinition struct {
	Type                    string                  `json:"type,omitempty"`
	Name                    LanguageMap             `json:"name"`
	Description             LanguageMap             `json:"description"`
	MoreInfo                string                  `json:"moreInfo,omitempty"`
	Extensions              Extensions              `json:"extensions"`
	InteractionType         string                  `json:"interactionType,omitempty"`
	CorrectResponsesPattern []string                `json:"correctResponsesPattern,omitempty"`
	Choices                 []*InteractionComponent `json:"choices,omitempty"`
	Scale                   []*InteractionComponent `json:"scale,omitempty"`
	Source                  []*InteractionComponent `json:"source,omitempty"`
	Target                  []*InteractionComponent `json:"target,omitempty"`
	Steps                   []*InteractionComponent `json:"steps,omitempty"`
}

func (d *ActivityDefinition) AsVersion(v Version) map[string]any {
	if d == nil {
		return nil
	}
	f := fields{}
	f.str("type", d.Type)
	f.sub("name", d.Name.AsVersion(v))
	f.sub("description", d.Description.AsVersion(v))
	f.str("moreInfo", d.MoreInfo)
	f.sub("extensions", d.Extensions.AsVersion(v))
	f.str("interactionType", d.InteractionType)
	f.strs("correctResponsesPattern", d.CorrectResponsesPattern)
	putList(f, "choices", d.Choices, v)
	putList(f, "scale", d.Scale, v)
	putList(f, "source", d.Source, v)
	putList(f, "target", d.Target, v)
	putList(f, "steps", d.Steps, v)
	return f
}

func (d *ActivityDefinition) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.AsVersion(LatestVersion))
}

func (d *ActivityDefinition) UnmarshalJSON(b []byte) error {
	type definition ActivityDefinition
	var raw definition
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	for name, list := range map[string][]*InteractionComponent{
		"choices": raw.Choices,
		"scale":   raw.Scale,
		"source":  raw.Source,
		"target":  raw.Target,
		"steps":   raw.Steps,
	} {
		if err := noNulls(name, list); err != nil {
			return fmt.Errorf("activity definition: %w", err)
		}
	}
	*d = ActivityDefinition(raw)
	return nil
}

// InteractionComponent is one choice, scale point, source, target or step
// of an interaction activity.
type InteractionComponent struct {
	ID          string      `json:"id"`
	Description LanguageMap `json:"description"`
}

func (c *InteractionComponent) AsVersion(v Version) map[string]any {
	if c == nil {
		return nil
	}
	f := fields{}
	f.str("id", c.ID)
	f.sub("description", c.Description.AsVersion(v))
	return f
}

// Verb is the action of a statement.
type Verb struct {
	ID      string      `json:"id"`
	Display LanguageMap `json:"display"`
}

const VoidedVerbID = "http://adlnet.gov/expapi/verbs/voided"

// VoidedVerb returns the verb used by statements that void another.
func VoidedVerb() *Verb {
	return &Verb{
		ID:      VoidedVerbID,
		Display: NewLanguageMap(map[string]string{"en-US": "voided"}),
	}
}

func (b *Verb) AsVersion(v Version) map[string]any {
	if b == nil {
		return nil
	}
	f := fields{}
	f.str("id", b.ID)
	f.sub("display", b.Display.AsVersion(v))
	return f
}

var verbSkip = []string{"display"}

func (b *Verb) CompareWithSignature(fromSig *Verb) Comparison {
	return compareProperties(verbSkip,
		stringProp("id", b.ID, fromSig.ID),
		customProp("display", !b.Display.IsEmpty(), !fromSig.Display.IsEmpty(), nil),
	)
}

func (b *Verb) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.AsVersion(LatestVersion))
}
