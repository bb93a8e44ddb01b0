package xapi

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ContextActivities relates a statement to other activities.
type ContextActivities struct {
	Category []*Activity `json:"category,omitempty"`
	Parent   []*Activity `json:"parent,omitempty"`
	Grouping []*Activity `json:"grouping,omitempty"`
	Other    []*Activity `json:"other,omitempty"`
}

func (c *ContextActivities) IsEmpty() bool {
	return c == nil || len(c.Category)+len(c.Parent)+len(c.Grouping)+len(c.Other) == 0
}

func (c *ContextActivities) AsVersion(v Version) map[string]any {
	if c == nil {
		return nil
	}
	f := fields{}
	putList(f, "category", c.Category, v)
	putList(f, "parent", c.Parent, v)
	putList(f, "grouping", c.Grouping, v)
	putList(f, "other", c.Other, v)
	return f
}

func (c *ContextActivities) CompareWithSignature(fromSig *ContextActivities) Comparison {
	if c == nil {
		c = &ContextActivities{}
	}
	if fromSig == nil {
		fromSig = &ContextActivities{}
	}
	return compareProperties(nil,
		listProp("category", c.Category, fromSig.Category),
		listProp("parent", c.Parent, fromSig.Parent),
		listProp("grouping", c.Grouping, fromSig.Grouping),
		listProp("other", c.Other, fromSig.Other),
	)
}

func (c *ContextActivities) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.AsVersion(LatestVersion))
}

// UnmarshalJSON accepts a single activity where a list is expected, as
// written by 0.95 era clients.
func (c *ContextActivities) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	lists := map[string]*[]*Activity{
		"category": &c.Category,
		"parent":   &c.Parent,
		"grouping": &c.Grouping,
		"other":    &c.Other,
	}
	for key, dst := range lists {
		r, ok := raw[key]
		if !ok {
			continue
		}
		r = bytes.TrimSpace(r)
		if len(r) > 0 && r[0] == '{' {
			var a Activity
			if err := json.Unmarshal(r, &a); err != nil {
				return fmt.Errorf("context activities %s: %w", key, err)
			}
			*dst = []*Activity{&a}
			continue
		}
		if err := json.Unmarshal(r, dst); err != nil {
			return fmt.Errorf("context activities %s: %w", key, err)
		}
		if err := noNulls(key, *dst); err != nil {
			return fmt.Errorf("context activities: %w", err)
		}
	}
	return nil
}

// Context gives the circumstances a statement was made in.
type Context struct {
	Registration      string             `json:"registration,omitempty"`
	Instructor        Actor              `json:"instructor,omitempty"`
	Team              *Group             `json:"team,omitempty"`
	ContextActivities *ContextActivities `json:"contextActivities,omitempty"`
	Revision          string             `json:"revision,omitempty"`
	Platform          string             `json:"platform,omitempty"`
	Language          string             `json:"language,omitempty"`
	Statement         *StatementRef      `json:"statement,omitempty"`
	Extensions        Extensions         `json:"extensions"`
}

func (c *Context) AsVersion(v Version) map[string]any {
	if c == nil {
		return nil
	}
	f := fields{}
	f.str("registration", c.Registration)
	if c.Instructor != nil {
		f.sub("instructor", serializeObject(c.Instructor, v))
	}
	f.sub("team", c.Team.AsVersion(v))
	f.sub("contextActivities", c.ContextActivities.AsVersion(v))
	f.str("revision", c.Revision)
	f.str("platform", c.Platform)
	f.str("language", c.Language)
	f.sub("statement", c.Statement.AsVersion(v))
	f.sub("extensions", c.Extensions.AsVersion(v))
	return f
}

func (c *Context) CompareWithSignature(fromSig *Context) Comparison {
	return compareProperties(nil,
		stringProp("registration", c.Registration, fromSig.Registration),
		actorProp("instructor", c.Instructor, fromSig.Instructor),
		objectProp("team", c.Team, fromSig.Team),
		customProp("contextActivities", true, true, func() Comparison {
			return c.ContextActivities.CompareWithSignature(fromSig.ContextActivities)
		}),
		stringProp("revision", c.Revision, fromSig.Revision),
		stringProp("platform", c.Platform, fromSig.Platform),
		stringProp("language", c.Language, fromSig.Language),
		objectProp("statement", c.Statement, fromSig.Statement),
		extensionsProp(c.Extensions, fromSig.Extensions),
	)
}

func (c *Context) Validate() error {
	if c.Registration != "" {
		if err := validateUUID(c.Registration); err != nil {
			return fmt.Errorf("context registration: %w", err)
		}
	}
	if c.Statement != nil {
		if err := c.Statement.Validate(); err != nil {
			return fmt.Errorf("context: %w", err)
		}
	}
	return nil
}

func (c *Context) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.AsVersion(LatestVersion))
}

func (c *Context) UnmarshalJSON(b []byte) error {
	type context Context
	aux := struct {
		*context
		Instructor json.RawMessage `json:"instructor"`
	}{
		context: (*context)(c),
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	if len(aux.Instructor) > 0 && !bytes.Equal(aux.Instructor, []byte("null")) {
		a, err := decodeActor(aux.Instructor)
		if err != nil {
			return fmt.Errorf("context instructor: %w", err)
		}
		c.Instructor = a
	}
	return nil
}
