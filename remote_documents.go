package xapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

const defaultDocumentContentType = "application/octet-stream"

type documentOpts struct {
	registration string
	since        string
	contentType  string
	etag         string
}

type documentOption func(o *documentOpts) error

func (f documentOption) documentOpt(o *documentOpts) error {
	return f(o)
}

// DocumentOption is an option for the document operations.
type DocumentOption interface {
	documentOpt(o *documentOpts) error
}

// Registration scopes a state document to a registration.
func Registration(r string) DocumentOption {
	return documentOption(func(o *documentOpts) error {
		if err := validateUUID(r); err != nil {
			return fmt.Errorf("registration: %w", err)
		}
		o.registration = r
		return nil
	})
}

// Since restricts id listings to documents stored after the timestamp.
func Since(ts string) DocumentOption {
	return documentOption(func(o *documentOpts) error {
		o.since = ts
		return nil
	})
}

// ContentType sets the content type of a saved document. Default is
// application/octet-stream.
func ContentType(ct string) DocumentOption {
	return documentOption(func(o *documentOpts) error {
		o.contentType = ct
		return nil
	})
}

// IfMatch makes a save conditional on the stored document's etag.
func IfMatch(etag string) DocumentOption {
	return documentOption(func(o *documentOpts) error {
		o.etag = etag
		return nil
	})
}

func documentOptions(opts []DocumentOption) (*documentOpts, error) {
	o := &documentOpts{
		contentType: defaultDocumentContentType,
	}
	for _, opt := range opts {
		if err := opt.documentOpt(o); err != nil {
			return nil, err
		}
	}
	return o, nil
}

func (l *RemoteLRS) agentParam(a Actor) (string, error) {
	b, err := json.Marshal(serializeObject(a, l.version))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (l *RemoteLRS) retrieveIDs(ctx context.Context, resource string, params url.Values, o *documentOpts) ([]string, error) {
	if o.since != "" {
		params.Set("since", o.since)
	}
	resp, err := l.send(ctx, &request{
		method:   http.MethodGet,
		resource: resource,
		params:   params,
	})
	if err != nil {
		return nil, err
	}
	var ids []string
	if err := json.Unmarshal(resp.Body, &ids); err != nil {
		return nil, fmt.Errorf("%s ids: %w", resource, err)
	}
	return ids, nil
}

// retrieveDocument fills doc from the response. A missing document
// leaves doc with only its id.
func (l *RemoteLRS) retrieveDocument(ctx context.Context, resource string, params url.Values, doc *Document) error {
	resp, err := l.send(ctx, &request{
		method:    http.MethodGet,
		resource:  resource,
		params:    params,
		ignore404: true,
	})
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	doc.Content = resp.Body
	doc.Timestamp = resp.Header.Get("Last-Modified")
	doc.ContentType = resp.Header.Get("Content-Type")
	doc.Etag = resp.Header.Get("ETag")
	return nil
}

func (l *RemoteLRS) saveDocument(ctx context.Context, resource string, params url.Values, content []byte, o *documentOpts, doc *Document) error {
	h := http.Header{}
	h.Set("Content-Type", o.contentType)
	if o.etag != "" {
		h.Set("If-Match", o.etag)
	}
	resp, err := l.send(ctx, &request{
		method:   http.MethodPut,
		resource: resource,
		params:   params,
		header:   h,
		body:     content,
	})
	if err != nil {
		return err
	}
	doc.Content = content
	doc.ContentType = o.contentType
	doc.Etag = ContentEtag(content)
	doc.Timestamp = resp.Header.Get("Date")
	return nil
}

func (l *RemoteLRS) deleteDocument(ctx context.Context, resource string, params url.Values) error {
	_, err := l.send(ctx, &request{
		method:   http.MethodDelete,
		resource: resource,
		params:   params,
	})
	return err
}

func (l *RemoteLRS) stateParams(activity *Activity, agent Actor, id string, o *documentOpts) (url.Values, error) {
	a, err := l.agentParam(agent)
	if err != nil {
		return nil, err
	}
	p := url.Values{
		"activityId": {activity.ID},
		"agent":      {a},
	}
	if id != "" {
		p.Set("stateId", id)
	}
	if o.registration != "" {
		p.Set("registration", o.registration)
	}
	return p, nil
}

// RetrieveStateIDs lists the state ids for an activity and agent.
func (l *RemoteLRS) RetrieveStateIDs(ctx context.Context, activity *Activity, agent Actor, opts ...DocumentOption) ([]string, error) {
	o, err := documentOptions(opts)
	if err != nil {
		return nil, err
	}
	p, err := l.stateParams(activity, agent, "", o)
	if err != nil {
		return nil, err
	}
	return l.retrieveIDs(ctx, "activities/state", p, o)
}

// RetrieveState fetches a state document. A missing document is
// returned with no content.
func (l *RemoteLRS) RetrieveState(ctx context.Context, activity *Activity, agent Actor, id string, opts ...DocumentOption) (*State, error) {
	o, err := documentOptions(opts)
	if err != nil {
		return nil, err
	}
	p, err := l.stateParams(activity, agent, id, o)
	if err != nil {
		return nil, err
	}
	st := &State{
		Document:     Document{ID: id},
		Activity:     activity,
		Agent:        agent,
		Registration: o.registration,
	}
	if err := l.retrieveDocument(ctx, "activities/state", p, &st.Document); err != nil {
		return nil, err
	}
	return st, nil
}

// SaveState stores a state document.
func (l *RemoteLRS) SaveState(ctx context.Context, activity *Activity, agent Actor, id string, content []byte, opts ...DocumentOption) (*State, error) {
	o, err := documentOptions(opts)
	if err != nil {
		return nil, err
	}
	p, err := l.stateParams(activity, agent, id, o)
	if err != nil {
		return nil, err
	}
	st := &State{
		Document:     Document{ID: id},
		Activity:     activity,
		Agent:        agent,
		Registration: o.registration,
	}
	if err := l.saveDocument(ctx, "activities/state", p, content, o, &st.Document); err != nil {
		return nil, err
	}
	return st, nil
}

// DeleteState removes one state document.
func (l *RemoteLRS) DeleteState(ctx context.Context, activity *Activity, agent Actor, id string, opts ...DocumentOption) error {
	o, err := documentOptions(opts)
	if err != nil {
		return err
	}
	p, err := l.stateParams(activity, agent, id, o)
	if err != nil {
		return err
	}
	return l.deleteDocument(ctx, "activities/state", p)
}

// ClearState removes every state document for an activity and agent.
func (l *RemoteLRS) ClearState(ctx context.Context, activity *Activity, agent Actor, opts ...DocumentOption) error {
	return l.DeleteState(ctx, activity, agent, "", opts...)
}

func activityProfileParams(activity *Activity, id string) url.Values {
	p := url.Values{"activityId": {activity.ID}}
	if id != "" {
		p.Set("profileId", id)
	}
	return p
}

// RetrieveActivityProfileIDs lists the profile ids of an activity.
func (l *RemoteLRS) RetrieveActivityProfileIDs(ctx context.Context, activity *Activity, opts ...DocumentOption) ([]string, error) {
	o, err := documentOptions(opts)
	if err != nil {
		return nil, err
	}
	return l.retrieveIDs(ctx, "activities/profile", activityProfileParams(activity, ""), o)
}

// RetrieveActivityProfile fetches an activity profile document. A
// missing document is returned with no content.
func (l *RemoteLRS) RetrieveActivityProfile(ctx context.Context, activity *Activity, id string) (*ActivityProfile, error) {
	ap := &ActivityProfile{
		Document: Document{ID: id},
		Activity: activity,
	}
	if err := l.retrieveDocument(ctx, "activities/profile", activityProfileParams(activity, id), &ap.Document); err != nil {
		return nil, err
	}
	return ap, nil
}

// SaveActivityProfile stores an activity profile document.
func (l *RemoteLRS) SaveActivityProfile(ctx context.Context, activity *Activity, id string, content []byte, opts ...DocumentOption) (*ActivityProfile, error) {
	o, err := documentOptions(opts)
	if err != nil {
		return nil, err
	}
	ap := &ActivityProfile{
		Document: Document{ID: id},
		Activity: activity,
	}
	if err := l.saveDocument(ctx, "activities/profile", activityProfileParams(activity, id), content, o, &ap.Document); err != nil {
		return nil, err
	}
	return ap, nil
}

// DeleteActivityProfile removes an activity profile document.
func (l *RemoteLRS) DeleteActivityProfile(ctx context.Context, activity *Activity, id string) error {
	return l.deleteDocument(ctx, "activities/profile", activityProfileParams(activity, id))
}

// RetrieveActivity fetches the store's full definition of an activity.
func (l *RemoteLRS) RetrieveActivity(ctx context.Context, activityID string) (*Activity, error) {
	resp, err := l.send(ctx, &request{
		method:   http.MethodGet,
		resource: "activities",
		params:   url.Values{"activityId": {activityID}},
		header:   http.Header{"Accept-Language": {"*"}},
	})
	if err != nil {
		return nil, err
	}
	var a Activity
	if err := json.Unmarshal(resp.Body, &a); err != nil {
		return nil, fmt.Errorf("activity: %w", err)
	}
	return &a, nil
}

func (l *RemoteLRS) agentProfileParams(agent Actor, id string) (url.Values, error) {
	a, err := l.agentParam(agent)
	if err != nil {
		return nil, err
	}
	p := url.Values{"agent": {a}}
	if id != "" {
		p.Set("profileId", id)
	}
	return p, nil
}

// RetrieveAgentProfileIDs lists the profile ids of an agent.
func (l *RemoteLRS) RetrieveAgentProfileIDs(ctx context.Context, agent Actor, opts ...DocumentOption) ([]string, error) {
	o, err := documentOptions(opts)
	if err != nil {
		return nil, err
	}
	p, err := l.agentProfileParams(agent, "")
	if err != nil {
		return nil, err
	}
	return l.retrieveIDs(ctx, "agents/profile", p, o)
}

// RetrieveAgentProfile fetches an agent profile document. A missing
// document is returned with no content.
func (l *RemoteLRS) RetrieveAgentProfile(ctx context.Context, agent Actor, id string) (*AgentProfile, error) {
	p, err := l.agentProfileParams(agent, id)
	if err != nil {
		return nil, err
	}
	ap := &AgentProfile{
		Document: Document{ID: id},
		Agent:    agent,
	}
	if err := l.retrieveDocument(ctx, "agents/profile", p, &ap.Document); err != nil {
		return nil, err
	}
	return ap, nil
}

// SaveAgentProfile stores an agent profile document.
func (l *RemoteLRS) SaveAgentProfile(ctx context.Context, agent Actor, id string, content []byte, opts ...DocumentOption) (*AgentProfile, error) {
	o, err := documentOptions(opts)
	if err != nil {
		return nil, err
	}
	p, err := l.agentProfileParams(agent, id)
	if err != nil {
		return nil, err
	}
	ap := &AgentProfile{
		Document: Document{ID: id},
		Agent:    agent,
	}
	if err := l.saveDocument(ctx, "agents/profile", p, content, o, &ap.Document); err != nil {
		return nil, err
	}
	return ap, nil
}

// DeleteAgentProfile removes an agent profile document.
func (l *RemoteLRS) DeleteAgentProfile(ctx context.Context, agent Actor, id string) error {
	p, err := l.agentProfileParams(agent, id)
	if err != nil {
		return err
	}
	return l.deleteDocument(ctx, "agents/profile", p)
}

// RetrievePerson fetches everything the store knows about an agent.
func (l *RemoteLRS) RetrievePerson(ctx context.Context, agent Actor) (*Person, error) {
	a, err := l.agentParam(agent)
	if err != nil {
		return nil, err
	}
	resp, err := l.send(ctx, &request{
		method:   http.MethodGet,
		resource: "agents",
		params:   url.Values{"agent": {a}},
	})
	if err != nil {
		return nil, err
	}
	var p Person
	if err := json.Unmarshal(resp.Body, &p); err != nil {
		return nil, fmt.Errorf("person: %w", err)
	}
	return &p, nil
}
