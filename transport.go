package xapi

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Response is the raw outcome of a request: status, headers and body.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Transport sends one request and returns the raw response. It only
// returns an error when no response was received; HTTP error statuses
// are returned as a Response.
type Transport interface {
	Send(ctx context.Context, method, url string, header http.Header, body []byte) (*Response, error)
}

// HTTPTransport is a Transport over net/http. Redirects are not
// followed since a record store is not expected to issue them.
type HTTPTransport struct {
	client *http.Client
}

// NewHTTPTransport wraps a copy of c, or a client with a 30 second
// timeout when c is nil.
func NewHTTPTransport(c *http.Client) *HTTPTransport {
	var hc http.Client
	if c != nil {
		hc = *c
	} else {
		hc.Timeout = 30 * time.Second
	}
	hc.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return &HTTPTransport{client: &hc}
}

func (t *HTTPTransport) Send(ctx context.Context, method, url string, header http.Header, body []byte) (*Response, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, r)
	if err != nil {
		return nil, err
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	rep, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer rep.Body.Close()

	b, err := io.ReadAll(rep.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	return &Response{
		StatusCode: rep.StatusCode,
		Header:     rep.Header,
		Body:       b,
	}, nil
}

// StatusError is returned when a store answers with a status of 300 or
// above.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	if e.StatusCode >= 300 && e.StatusCode < 400 {
		return fmt.Sprintf("xapi: %s %s: unsupported status code %d (store should not redirect)", e.Method, e.URL, e.StatusCode)
	}
	msg := string(e.Body)
	if len(msg) > 200 {
		msg = msg[:200] + "..."
	}
	return fmt.Sprintf("xapi: %s %s: status %d: %s", e.Method, e.URL, e.StatusCode, msg)
}
