package xapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/bruth/xapi/multipart"
)

// About fetches the store's about resource.
func (l *RemoteLRS) About(ctx context.Context) (*About, error) {
	resp, err := l.send(ctx, &request{
		method:   http.MethodGet,
		resource: "about",
	})
	if err != nil {
		return nil, err
	}
	var a About
	if err := json.Unmarshal(resp.Body, &a); err != nil {
		return nil, fmt.Errorf("about: %w", err)
	}
	return &a, nil
}

// statementsRequest builds the body of a statements write. Attachments
// with local content turn the body into multipart/mixed.
func (l *RemoteLRS) statementsRequest(payload any, stmts ...*Statement) (*request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	r := &request{
		method:   http.MethodPost,
		resource: "statements",
		header:   http.Header{"Content-Type": {jsonContentType}},
		body:     body,
	}

	atts := statementAttachments(stmts...)
	for _, a := range atts {
		if a.HasContent() {
			boundary := l.boundary.New()
			r.body = EncodeMultipart(boundary, body, atts)
			r.header.Set("Content-Type", multipart.ContentType(boundary))
			break
		}
	}
	return r, nil
}

// SaveStatement stores s. A statement with an id is PUT under that id,
// otherwise it is POSTed and the id assigned by the store is set on s.
func (l *RemoteLRS) SaveStatement(ctx context.Context, s *Statement) (*Statement, error) {
	r, err := l.statementsRequest(s.AsVersion(l.version), s)
	if err != nil {
		return nil, err
	}
	if s.ID != "" {
		r.method = http.MethodPut
		r.params = url.Values{"statementId": {s.ID}}
	}

	resp, err := l.send(ctx, r)
	if err != nil {
		return nil, err
	}

	if s.ID == "" {
		var ids []string
		if err := json.Unmarshal(resp.Body, &ids); err != nil {
			return nil, fmt.Errorf("save statement: %w", err)
		}
		if len(ids) == 0 {
			return nil, fmt.Errorf("save statement: no id returned")
		}
		s.ID = ids[0]
	}
	return s, nil
}

// SaveStatements stores a batch in one request. Attachment content
// shared between statements is sent once. Ids returned by the store are
// assigned in order.
func (l *RemoteLRS) SaveStatements(ctx context.Context, stmts []*Statement) ([]*Statement, error) {
	payload := make([]any, len(stmts))
	for i, s := range stmts {
		payload[i] = s.AsVersion(l.version)
	}
	r, err := l.statementsRequest(payload, stmts...)
	if err != nil {
		return nil, err
	}

	resp, err := l.send(ctx, r)
	if err != nil {
		return nil, err
	}

	var ids []string
	if err := json.Unmarshal(resp.Body, &ids); err != nil {
		return nil, fmt.Errorf("save statements: %w", err)
	}
	for i, id := range ids {
		if i < len(stmts) {
			stmts[i].ID = id
		}
	}
	return stmts, nil
}

type retrieveOpts struct {
	attachments bool
}

type retrieveOption func(o *retrieveOpts) error

func (f retrieveOption) retrieveOpt(o *retrieveOpts) error {
	return f(o)
}

// RetrieveOption is an option for the statement retrieval operations.
type RetrieveOption interface {
	retrieveOpt(o *retrieveOpts) error
}

// WithAttachments asks the store to include attachment content.
func WithAttachments() RetrieveOption {
	return retrieveOption(func(o *retrieveOpts) error {
		o.attachments = true
		return nil
	})
}

// RetrieveStatement fetches a statement by id.
func (l *RemoteLRS) RetrieveStatement(ctx context.Context, id string, opts ...RetrieveOption) (*Statement, error) {
	return l.retrieveStatement(ctx, "statementId", id, opts)
}

// RetrieveVoidedStatement fetches a statement that has been voided.
func (l *RemoteLRS) RetrieveVoidedStatement(ctx context.Context, id string, opts ...RetrieveOption) (*Statement, error) {
	return l.retrieveStatement(ctx, "voidedStatementId", id, opts)
}

func (l *RemoteLRS) retrieveStatement(ctx context.Context, param, id string, opts []RetrieveOption) (*Statement, error) {
	var o retrieveOpts
	for _, opt := range opts {
		if err := opt.retrieveOpt(&o); err != nil {
			return nil, err
		}
	}

	params := url.Values{param: {id}}
	if o.attachments {
		params.Set("attachments", "true")
	}
	resp, err := l.send(ctx, &request{
		method:   http.MethodGet,
		resource: "statements",
		params:   params,
	})
	if err != nil {
		return nil, err
	}

	primary, parts, err := splitBody(resp)
	if err != nil {
		return nil, err
	}
	var s Statement
	if err := json.Unmarshal(primary, &s); err != nil {
		return nil, fmt.Errorf("retrieve statement: %w", err)
	}
	if parts != nil {
		if err := AttachContent(parts, s.Attachments); err != nil {
			return nil, err
		}
	}
	return &s, nil
}

// StatementsQuery filters a statements query. Zero values are not sent.
type StatementsQuery struct {
	Agent             Actor
	Verb              *Verb
	Activity          *Activity
	Registration      string
	RelatedActivities *bool
	RelatedAgents     *bool
	Since             string
	Until             string
	Limit             int
	Format            string
	Attachments       *bool
	Ascending         *bool
}

func (q *StatementsQuery) params(v Version) (url.Values, error) {
	p := make(url.Values)
	if q == nil {
		return p, nil
	}
	if q.Agent != nil {
		b, err := json.Marshal(serializeObject(q.Agent, v))
		if err != nil {
			return nil, err
		}
		p.Set("agent", string(b))
	}
	if q.Verb != nil {
		p.Set("verb", q.Verb.ID)
	}
	if q.Activity != nil {
		p.Set("activity", q.Activity.ID)
	}
	if q.Registration != "" {
		if err := validateUUID(q.Registration); err != nil {
			return nil, fmt.Errorf("query registration: %w", err)
		}
		p.Set("registration", q.Registration)
	}
	for key, b := range map[string]*bool{
		"related_activities": q.RelatedActivities,
		"related_agents":     q.RelatedAgents,
		"attachments":        q.Attachments,
		"ascending":          q.Ascending,
	} {
		if b != nil {
			p.Set(key, strconv.FormatBool(*b))
		}
	}
	if q.Since != "" {
		p.Set("since", q.Since)
	}
	if q.Until != "" {
		p.Set("until", q.Until)
	}
	if q.Limit > 0 {
		p.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Format != "" {
		p.Set("format", q.Format)
	}
	return p, nil
}

// StatementsResult is one page of a statements query. More is the
// server-relative URL of the next page, empty on the last.
type StatementsResult struct {
	Statements []*Statement `json:"statements"`
	More       string       `json:"more,omitempty"`
}

// QueryStatements runs a statements query and returns the first page.
func (l *RemoteLRS) QueryStatements(ctx context.Context, q *StatementsQuery) (*StatementsResult, error) {
	params, err := q.params(l.version)
	if err != nil {
		return nil, err
	}
	resp, err := l.send(ctx, &request{
		method:   http.MethodGet,
		resource: "statements",
		params:   params,
	})
	if err != nil {
		return nil, err
	}
	return decodeStatementsResult(resp)
}

// MoreStatements fetches the page at more, resolved against the
// endpoint's server root.
func (l *RemoteLRS) MoreStatements(ctx context.Context, more string) (*StatementsResult, error) {
	ref, err := url.Parse(more)
	if err != nil {
		return nil, fmt.Errorf("more statements: %w", err)
	}
	resp, err := l.send(ctx, &request{
		method: http.MethodGet,
		target: l.serverRoot().ResolveReference(ref),
	})
	if err != nil {
		return nil, err
	}
	return decodeStatementsResult(resp)
}

func decodeStatementsResult(resp *Response) (*StatementsResult, error) {
	primary, parts, err := splitBody(resp)
	if err != nil {
		return nil, err
	}
	var res StatementsResult
	if err := json.Unmarshal(primary, &res); err != nil {
		return nil, fmt.Errorf("statements result: %w", err)
	}
	if err := noNulls("statements", res.Statements); err != nil {
		return nil, fmt.Errorf("statements result: %w", err)
	}
	if parts != nil {
		if err := AttachContent(parts, statementAttachments(res.Statements...)); err != nil {
			return nil, err
		}
	}
	return &res, nil
}
