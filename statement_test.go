package xapi

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/bruth/xapi/clock"
	"github.com/bruth/xapi/testutil"
)

func TestAgentIdentifierPrecedence(t *testing.T) {
	tests := []struct {
		Name  string
		Agent *Agent
		Want  map[string]any
	}{
		{
			"account",
			&Agent{
				Name:        "A",
				Mbox:        "mailto:a@example.com",
				MboxSHA1Sum: "deadbeef",
				OpenID:      "http://openid.example.com/a",
				Account:     &AgentAccount{HomePage: "http://example.com", Name: "a"},
			},
			map[string]any{
				"objectType": "Agent",
				"name":       "A",
				"account":    map[string]any{"homePage": "http://example.com", "name": "a"},
			},
		},
		{
			"empty-account",
			&Agent{
				Mbox:    "a@example.com",
				Account: &AgentAccount{},
			},
			map[string]any{
				"objectType": "Agent",
				"mbox":       "mailto:a@example.com",
			},
		},
		{
			"digest",
			&Agent{
				Mbox:        "mailto:a@example.com",
				MboxSHA1Sum: "deadbeef",
			},
			map[string]any{
				"objectType":   "Agent",
				"mbox_sha1sum": "deadbeef",
			},
		},
		{
			"openid",
			&Agent{OpenID: "http://openid.example.com/a"},
			map[string]any{
				"objectType": "Agent",
				"openid":     "http://openid.example.com/a",
			},
		},
		{
			"anonymous",
			&Agent{},
			map[string]any{
				"objectType": "Agent",
			},
		},
	}

	for _, test := range tests {
		t.Run(test.Name, func(t *testing.T) {
			is := testutil.NewIs(t)
			is.Equal(test.Agent.AsVersion(LatestVersion), test.Want)
		})
	}
}

func TestStatementAsVersion(t *testing.T) {
	is := testutil.NewIs(t)

	s := &Statement{
		StatementBase: StatementBase{
			Actor: &Group{
				Member: []*Agent{{Mbox: "mailto:a@example.com"}},
			},
			Verb:   &Verb{ID: "http://adlnet.gov/expapi/verbs/attempted"},
			Object: &StatementRef{ID: "fd41c918-b88b-4b20-a0a5-a4c32391aaa0"},
			Result: &Result{
				Duration:   "",
				Completion: boolean(true),
			},
			Context: &Context{
				ContextActivities: &ContextActivities{},
			},
		},
	}

	is.Equal(s.AsVersion(Version100), map[string]any{
		"actor": map[string]any{
			"objectType": "Group",
			"member": []any{
				map[string]any{"objectType": "Agent", "mbox": "mailto:a@example.com"},
			},
		},
		"verb": map[string]any{"id": "http://adlnet.gov/expapi/verbs/attempted"},
		"object": map[string]any{
			"objectType": "StatementRef",
			"id":         "fd41c918-b88b-4b20-a0a5-a4c32391aaa0",
		},
		"result": map[string]any{"completion": true},
	})

	var nilStatement *Statement
	is.True(nilStatement.AsVersion(LatestVersion) == nil)
}

func TestAttachmentAsVersion(t *testing.T) {
	is := testutil.NewIs(t)

	a := &Attachment{
		UsageType:   "http://example.com/usage",
		Display:     NewLanguageMap(map[string]string{"en-US": "Text"}),
		ContentType: "text/plain",
	}
	a.SetContent([]byte("hello"))

	is.Equal(a.AsVersion(LatestVersion), map[string]any{
		"usageType":   "http://example.com/usage",
		"display":     map[string]any{"en-US": "Text"},
		"contentType": "text/plain",
		"length":      int64(5),
		"sha2":        "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824",
	})

	b, err := json.Marshal(a)
	is.NoErr(err)

	var c Attachment
	is.NoErr(json.Unmarshal(b, &c))
	is.True(!c.HasContent())
	is.Equal(c.SHA2, a.SHA2)
	is.Equal(c.Length, int64(5))
}

func TestPersonAsVersion(t *testing.T) {
	is := testutil.NewIs(t)

	p := &Person{
		Name: []string{"A"},
		Mbox: []string{"mailto:a@example.com", "mailto:a@example.org"},
	}
	is.Equal(p.AsVersion(LatestVersion), map[string]any{
		"objectType": "Person",
		"name":       []any{"A"},
		"mbox":       []any{"mailto:a@example.com", "mailto:a@example.org"},
	})

	agents := p.Agents()
	is.Equal(len(agents), 2)
	is.Equal(agents[1].Name, "A")
	is.Equal(agents[1].Mbox, "mailto:a@example.org")
}

type unknownObject struct{}

func (unknownObject) ObjectType() ObjectType           { return "Unknown" }
func (unknownObject) AsVersion(Version) map[string]any { return nil }
func (unknownObject) isObject()                        {}

func TestSerializeUnknownObjectPanics(t *testing.T) {
	is := testutil.NewIs(t)

	defer func() {
		r := recover()
		err, ok := r.(error)
		is.True(ok)
		is.Err(err, ErrUnknownObjectType)
	}()

	serializeObject(unknownObject{}, LatestVersion)
}

func TestStatementUnmarshal(t *testing.T) {
	is := testutil.NewIs(t)

	raw := `{
		"id": "fd41c918-b88b-4b20-a0a5-a4c32391aaa0",
		"actor": {"objectType": "Group", "name": "Team", "member": [{"mbox": "mailto:a@example.com"}]},
		"verb": {"id": "http://adlnet.gov/expapi/verbs/attempted", "display": {"en-US": "attempted"}},
		"object": {
			"objectType": "SubStatement",
			"actor": {"openid": "http://openid.example.com/a"},
			"verb": {"id": "http://adlnet.gov/expapi/verbs/completed"},
			"object": {"id": "http://example.com/activities/a"}
		},
		"context": {
			"instructor": {"objectType": "Agent", "mbox": "mailto:t@example.com"},
			"contextActivities": {"parent": {"id": "http://example.com/activities/p"}}
		},
		"authority": {"account": {"homePage": "http://lrs.example.com", "name": "key"}},
		"stored": "2019-09-20T14:00:00Z",
		"version": "1.0.0"
	}`

	var s Statement
	is.NoErr(json.Unmarshal([]byte(raw), &s))
	is.NoErr(s.Validate())

	g, ok := s.Actor.(*Group)
	is.True(ok)
	is.Equal(g.Name, "Team")
	is.Equal(len(g.Member), 1)
	is.Equal(g.Member[0].Mbox, "mailto:a@example.com")

	is.Equal(s.Verb.Display.Negotiate("en"), "attempted")

	sub, ok := s.Object.(*SubStatement)
	is.True(ok)
	is.Equal(sub.Actor.(*Agent).OpenID, "http://openid.example.com/a")
	is.Equal(sub.Object.(*Activity).ID, "http://example.com/activities/a")

	is.Equal(s.Context.Instructor.(*Agent).Mbox, "mailto:t@example.com")
	is.Equal(s.Context.ContextActivities.Parent[0].ID, "http://example.com/activities/p")
	is.Equal(s.Authority.(*Agent).Account.Name, "key")
	is.Equal(s.Version, Version100)
}

func TestStatementUnmarshalUnknownObject(t *testing.T) {
	is := testutil.NewIs(t)

	var s Statement
	err := json.Unmarshal([]byte(`{"object": {"objectType": "Widget"}}`), &s)
	is.Err(err, ErrUnknownObjectType)
}

func TestStatementUnmarshalNullElements(t *testing.T) {
	const (
		actor  = `"actor": {"mbox": "mailto:a@example.com"}`
		verb   = `"verb": {"id": "http://example.com/verbs/did"}`
		object = `"object": {"id": "http://example.com/activities/a"}`
	)

	tests := []struct {
		Name string
		JSON string
	}{
		{"member", `{"actor": {"objectType": "Group", "member": [null]}, ` + verb + `, ` + object + `}`},
		{"team-member", `{` + actor + `, ` + verb + `, ` + object + `, "context": {"team": {"objectType": "Group", "member": [{"mbox": "mailto:b@example.com"}, null]}}}`},
		{"object-member", `{` + actor + `, ` + verb + `, "object": {"objectType": "Group", "member": [null]}}`},
		{"parent", `{` + actor + `, ` + verb + `, ` + object + `, "context": {"contextActivities": {"parent": [null]}}}`},
		{"attachments", `{` + actor + `, ` + verb + `, ` + object + `, "attachments": [null]}`},
		{"choices", `{` + actor + `, ` + verb + `, "object": {"id": "http://example.com/activities/a", "definition": {"choices": [null]}}}`},
	}

	for _, test := range tests {
		t.Run(test.Name, func(t *testing.T) {
			is := testutil.NewIs(t)

			var s Statement
			err := json.Unmarshal([]byte(test.JSON), &s)
			is.Err(err, ErrNullElement)
		})
	}
}

func TestStatementValidate(t *testing.T) {
	tests := []struct {
		Name   string
		Mutate func(s *Statement)
		Err    error
	}{
		{"ok", func(s *Statement) {}, nil},
		{"id", func(s *Statement) { s.ID = "not-a-uuid" }, ErrInvalidUUID},
		{"urn-id", func(s *Statement) { s.ID = "urn:uuid:fd41c918-b88b-4b20-a0a5-a4c32391aaa0" }, ErrInvalidUUID},
		{"registration", func(s *Statement) { s.Context.Registration = "x" }, ErrInvalidUUID},
		{"version", func(s *Statement) { s.Version = "0.95" }, ErrUnsupportedVersion},
		{"timestamp", func(s *Statement) { s.Timestamp = "yesterday" }, ErrInvalidTimestamp},
		{"stored", func(s *Statement) { s.Stored = "2019-09-20" }, ErrInvalidTimestamp},
		{"incomplete", func(s *Statement) { s.Verb = nil }, ErrIncompleteStatement},
		{"nil-attachment", func(s *Statement) { s.Attachments = []*Attachment{nil} }, ErrNullElement},
		{
			"nested-substatement",
			func(s *Statement) {
				inner := &SubStatement{StatementBase: fullStatement().StatementBase}
				outer := &SubStatement{StatementBase: fullStatement().StatementBase}
				outer.Object = inner
				s.Object = outer
			},
			ErrNestedSubStatement,
		},
	}

	for _, test := range tests {
		t.Run(test.Name, func(t *testing.T) {
			is := testutil.NewIs(t)
			s := fullStatement()
			test.Mutate(s)
			err := s.Validate()
			if test.Err == nil {
				is.NoErr(err)
			} else {
				is.Err(err, test.Err)
			}
		})
	}
}

func TestStatementStampAndVoid(t *testing.T) {
	is := testutil.NewIs(t)

	var ids testutil.Seq
	clk := testutil.NewClock(time.Second)

	s := fullStatement()
	s.ID = ""
	s.Timestamp = ""
	s.Stamp(&ids, clk)
	is.Equal(s.ID, "00000000-0000-4000-8000-000000000001")
	is.Equal(s.Timestamp, "2019-09-20T14:00:00.123456Z")
	is.Equal(s.Timestamp, clk.Timestamp())

	// Already stamped.
	s.Stamp(&ids, clock.UTC)
	is.Equal(s.ID, "00000000-0000-4000-8000-000000000001")

	v := s.Void(&Agent{Mbox: "mailto:admin@example.com"})
	is.Equal(v.Verb.ID, VoidedVerbID)
	is.Equal(v.Object.(*StatementRef).ID, s.ID)
	is.NoErr(v.Validate())
}
