package xapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bruth/xapi/multipart"
	"github.com/bruth/xapi/testutil"
)

// newTestLRS starts a server running h under /xapi/ and returns a client
// for it.
func newTestLRS(t *testing.T, h http.HandlerFunc, opts ...Option) *RemoteLRS {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	opts = append([]Option{WithBasicAuth("key", "secret")}, opts...)
	l, err := NewRemoteLRS(srv.URL+"/xapi", opts...)
	if err != nil {
		t.Fatal(err)
	}
	return l
}

func TestNewRemoteLRS(t *testing.T) {
	is := testutil.NewIs(t)

	_, err := NewRemoteLRS("ftp://lrs.example.com/xapi/")
	is.Err(err, ErrInvalidEndpoint)

	_, err = NewRemoteLRS("lrs.example.com")
	is.Err(err, ErrInvalidEndpoint)

	_, err = NewRemoteLRS("https://lrs.example.com/xapi", WithVersion("0.9"))
	is.Err(err, ErrUnsupportedVersion)

	l, err := NewRemoteLRS("https://lrs.example.com/xapi", WithVersion(Version101))
	is.NoErr(err)
	is.Equal(l.Endpoint(), "https://lrs.example.com/xapi/")
	is.Equal(l.Version(), Version101)
}

func TestRemoteAbout(t *testing.T) {
	is := testutil.NewIs(t)

	l := newTestLRS(t, func(w http.ResponseWriter, r *http.Request) {
		is.Equal(r.URL.Path, "/xapi/about")
		is.Equal(r.Header.Get(VersionHeader), "1.0.3")
		w.Write([]byte(`{"version": ["1.0.0", "1.0.2", "0.95"]}`))
	})

	a, err := l.About(context.Background())
	is.NoErr(err)
	v, err := a.Negotiate()
	is.NoErr(err)
	is.Equal(v, Version102)
}

func TestRemoteSaveStatement(t *testing.T) {
	is := testutil.NewIs(t)

	l := newTestLRS(t, func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		is.True(ok)
		is.Equal(user, "key")
		is.Equal(pass, "secret")
		is.Equal(r.URL.Path, "/xapi/statements")

		switch r.Method {
		case http.MethodPost:
			is.Equal(r.Header.Get("Content-Type"), "application/json")
			var m map[string]any
			is.NoErr(json.NewDecoder(r.Body).Decode(&m))
			_, hasID := m["id"]
			is.True(!hasID)
			w.Write([]byte(`["fd41c918-b88b-4b20-a0a5-a4c32391aaa0"]`))
		case http.MethodPut:
			is.Equal(r.URL.Query().Get("statementId"), "4ed0f4ee-e9a4-4c9d-a7a4-0bd3e5bfbf8f")
			w.WriteHeader(http.StatusNoContent)
		default:
			t.Errorf("unexpected method %s", r.Method)
		}
	})

	ctx := context.Background()

	s := fullStatement()
	s.ID = ""
	_, err := l.SaveStatement(ctx, s)
	is.NoErr(err)
	is.Equal(s.ID, "fd41c918-b88b-4b20-a0a5-a4c32391aaa0")

	s = fullStatement()
	s.ID = "4ed0f4ee-e9a4-4c9d-a7a4-0bd3e5bfbf8f"
	_, err = l.SaveStatement(ctx, s)
	is.NoErr(err)
}

func TestRemoteSaveStatementsMultipart(t *testing.T) {
	is := testutil.NewIs(t)

	hello := textAttachment("hello")
	world := textAttachment("world")

	l := newTestLRS(t, func(w http.ResponseWriter, r *http.Request) {
		mt, boundary, err := multipart.ParseContentType(r.Header.Get("Content-Type"))
		is.NoErr(err)
		is.Equal(mt, multipart.MediaType)
		is.Equal(boundary, "boundary0")

		body, err := io.ReadAll(r.Body)
		is.NoErr(err)
		parts, err := DecodeMultipart(boundary, body)
		is.NoErr(err)

		// hello is shared by both statements and sent once.
		is.Equal(len(parts), 3)

		var stmts []*Statement
		is.NoErr(json.Unmarshal(parts[0].Body, &stmts))
		is.Equal(len(stmts), 2)
		is.NoErr(AttachContent(parts, statementAttachments(stmts...)))
		is.Equal(string(stmts[1].Attachments[1].Content()), "world")

		w.Write([]byte(`["00000000-0000-4000-8000-000000000001", "00000000-0000-4000-8000-000000000002"]`))
	}, WithBoundaryGenerator(testutil.Fixed("boundary0")))

	s1, s2 := unsignedStatement(), unsignedStatement()
	s1.Attachments = []*Attachment{hello}
	s2.Attachments = []*Attachment{textAttachment("hello"), world}

	stmts, err := l.SaveStatements(context.Background(), []*Statement{s1, s2})
	is.NoErr(err)
	is.Equal(stmts[0].ID, "00000000-0000-4000-8000-000000000001")
	is.Equal(stmts[1].ID, "00000000-0000-4000-8000-000000000002")
}

func TestRemoteRetrieveStatement(t *testing.T) {
	is := testutil.NewIs(t)

	stored := fullStatement()
	stored.Attachments = []*Attachment{textAttachment("hello")}

	l := newTestLRS(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("voidedStatementId") != "" {
			http.Error(w, `{"error": "not found"}`, http.StatusNotFound)
			return
		}
		is.Equal(q.Get("statementId"), stored.ID)
		is.Equal(q.Get("attachments"), "true")

		primary, err := json.Marshal(stored)
		is.NoErr(err)
		w.Header().Set("Content-Type", multipart.ContentType("srv"))
		w.Write(EncodeMultipart("srv", primary, stored.Attachments))
	})

	ctx := context.Background()

	s, err := l.RetrieveStatement(ctx, stored.ID, WithAttachments())
	is.NoErr(err)
	is.Equal(s.ID, stored.ID)
	is.Equal(len(s.Attachments), 1)
	is.Equal(string(s.Attachments[0].Content()), "hello")
	is.True(s.CompareWithSignature(stored).Success)

	_, err = l.RetrieveVoidedStatement(ctx, stored.ID)
	var se *StatusError
	is.True(errors.As(err, &se))
	is.Equal(se.StatusCode, http.StatusNotFound)
}

func TestRemoteQueryStatements(t *testing.T) {
	is := testutil.NewIs(t)

	l := newTestLRS(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/xapi/statements":
			q := r.URL.Query()
			is.Equal(q.Get("verb"), "http://adlnet.gov/expapi/verbs/attempted")
			is.Equal(q.Get("agent"), `{"mbox":"mailto:a@example.com","objectType":"Agent"}`)
			is.Equal(q.Get("limit"), "1")
			is.Equal(q.Get("ascending"), "true")
			is.Equal(q.Get("related_agents"), "")
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{
				"statements": [{"id": "fd41c918-b88b-4b20-a0a5-a4c32391aaa0", "verb": {"id": "http://adlnet.gov/expapi/verbs/attempted"}}],
				"more": "/more/abc"
			}`))
		case "/more/abc":
			w.Write([]byte(`{"statements": []}`))
		case "/more/null":
			w.Write([]byte(`{"statements": [null]}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	ctx := context.Background()

	res, err := l.QueryStatements(ctx, &StatementsQuery{
		Agent:     &Agent{Mbox: "mailto:a@example.com"},
		Verb:      &Verb{ID: "http://adlnet.gov/expapi/verbs/attempted"},
		Limit:     1,
		Ascending: boolean(true),
	})
	is.NoErr(err)
	is.Equal(len(res.Statements), 1)
	is.Equal(res.More, "/more/abc")

	res, err = l.MoreStatements(ctx, res.More)
	is.NoErr(err)
	is.Equal(len(res.Statements), 0)
	is.Equal(res.More, "")

	_, err = l.MoreStatements(ctx, "/more/null")
	is.Err(err, ErrNullElement)

	_, err = l.QueryStatements(ctx, &StatementsQuery{Registration: "x"})
	is.Err(err, ErrInvalidUUID)
}

func TestRemoteState(t *testing.T) {
	is := testutil.NewIs(t)

	docs := make(map[string][]byte)

	l := newTestLRS(t, func(w http.ResponseWriter, r *http.Request) {
		is.Equal(r.URL.Path, "/xapi/activities/state")
		q := r.URL.Query()
		is.Equal(q.Get("activityId"), "http://example.com/activities/a")
		is.Equal(q.Get("registration"), "016699c6-d600-48a7-96ab-86187498f16f")

		id := q.Get("stateId")
		switch r.Method {
		case http.MethodPut:
			is.Equal(r.Header.Get("Content-Type"), "application/json")
			b, _ := io.ReadAll(r.Body)
			docs[id] = b
			w.WriteHeader(http.StatusNoContent)
		case http.MethodGet:
			if id == "" {
				ids := []string{}
				for k := range docs {
					ids = append(ids, k)
				}
				json.NewEncoder(w).Encode(ids)
				return
			}
			b, ok := docs[id]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("ETag", `"`+ContentEtag(b)+`"`)
			w.Header().Set("Last-Modified", "Fri, 20 Sep 2019 14:00:00 GMT")
			w.Write(b)
		case http.MethodDelete:
			if id == "" {
				clear(docs)
			} else {
				delete(docs, id)
			}
			w.WriteHeader(http.StatusNoContent)
		}
	})

	ctx := context.Background()
	activity := &Activity{ID: "http://example.com/activities/a"}
	agent := &Agent{Mbox: "mailto:a@example.com"}
	reg := Registration("016699c6-d600-48a7-96ab-86187498f16f")

	content := []byte(`{"bookmark": 3}`)
	st, err := l.SaveState(ctx, activity, agent, "bookmark", content, reg, ContentType("application/json"))
	is.NoErr(err)
	is.Equal(st.Etag, ContentEtag(content))

	ids, err := l.RetrieveStateIDs(ctx, activity, agent, reg)
	is.NoErr(err)
	is.Equal(ids, []string{"bookmark"})

	st, err = l.RetrieveState(ctx, activity, agent, "bookmark", reg)
	is.NoErr(err)
	is.Equal(st.Content, content)
	is.Equal(st.Etag, `"`+ContentEtag(content)+`"`)
	is.Equal(st.ContentType, "application/json")

	is.NoErr(l.DeleteState(ctx, activity, agent, "bookmark", reg))

	st, err = l.RetrieveState(ctx, activity, agent, "bookmark", reg)
	is.NoErr(err)
	is.Equal(st.ID, "bookmark")
	is.True(st.Content == nil)

	is.NoErr(l.ClearState(ctx, activity, agent, reg))

	_, err = l.RetrieveState(ctx, activity, agent, "bookmark", Registration("nope"))
	is.Err(err, ErrInvalidUUID)
}

func TestRemoteProfilesAndPerson(t *testing.T) {
	is := testutil.NewIs(t)

	l := newTestLRS(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch r.URL.Path {
		case "/xapi/activities/profile":
			is.Equal(q.Get("profileId"), "p1")
			w.Write([]byte("profile"))
		case "/xapi/agents/profile":
			is.Equal(q.Get("agent"), `{"mbox":"mailto:a@example.com","objectType":"Agent"}`)
			is.Equal(r.Method, http.MethodPut)
			is.Equal(r.Header.Get("If-Match"), `"abc"`)
			w.Header().Set("Date", "Fri, 20 Sep 2019 14:00:00 GMT")
			w.WriteHeader(http.StatusNoContent)
		case "/xapi/activities":
			is.Equal(r.Header.Get("Accept-Language"), "*")
			w.Write([]byte(`{"id": "http://example.com/activities/a", "definition": {"name": {"en-US": "A"}}}`))
		case "/xapi/agents":
			w.Write([]byte(`{"objectType": "Person", "name": ["A"], "mbox": ["mailto:a@example.com"]}`))
		}
	})

	ctx := context.Background()
	activity := &Activity{ID: "http://example.com/activities/a"}
	agent := &Agent{Mbox: "mailto:a@example.com"}

	ap, err := l.RetrieveActivityProfile(ctx, activity, "p1")
	is.NoErr(err)
	is.Equal(string(ap.Content), "profile")

	gp, err := l.SaveAgentProfile(ctx, agent, "p2", []byte("x"), IfMatch(`"abc"`))
	is.NoErr(err)
	is.Equal(gp.ContentType, "application/octet-stream")
	is.Equal(gp.Timestamp, "Fri, 20 Sep 2019 14:00:00 GMT")

	a, err := l.RetrieveActivity(ctx, activity.ID)
	is.NoErr(err)
	is.Equal(a.Definition.Name.Negotiate("en-GB"), "A")

	p, err := l.RetrievePerson(ctx, agent)
	is.NoErr(err)
	is.Equal(p.Name, []string{"A"})
	is.Equal(p.Agents()[0].Mbox, "mailto:a@example.com")
}

func TestRemoteStatusErrors(t *testing.T) {
	is := testutil.NewIs(t)

	l := newTestLRS(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("statementId") != "" {
			http.Redirect(w, r, "/elsewhere", http.StatusFound)
			return
		}
		http.Error(w, "bad request", http.StatusBadRequest)
	})

	ctx := context.Background()

	_, err := l.About(ctx)
	var se *StatusError
	is.True(errors.As(err, &se))
	is.Equal(se.StatusCode, http.StatusBadRequest)

	_, err = l.RetrieveStatement(ctx, "fd41c918-b88b-4b20-a0a5-a4c32391aaa0")
	is.True(errors.As(err, &se))
	is.Equal(se.StatusCode, http.StatusFound)
}
