package xapi

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/bruth/xapi/id"
	"github.com/bruth/xapi/multipart"
)

const (
	VersionHeader = "X-Experience-API-Version"

	tracerName = "github.com/bruth/xapi"
)

var (
	ErrInvalidEndpoint = errors.New("xapi: invalid endpoint")
)

type lrsOption func(o *RemoteLRS) error

func (f lrsOption) addOption(o *RemoteLRS) error {
	return f(o)
}

// Option models an option when creating a RemoteLRS.
type Option interface {
	addOption(o *RemoteLRS) error
}

// WithVersion sets the protocol version. Default is LatestVersion.
func WithVersion(v Version) Option {
	return lrsOption(func(o *RemoteLRS) error {
		pv, err := ParseVersion(string(v))
		if err != nil {
			return err
		}
		o.version = pv
		return nil
	})
}

// WithBasicAuth sets HTTP basic credentials.
func WithBasicAuth(username, password string) Option {
	return lrsOption(func(o *RemoteLRS) error {
		o.auth = "Basic " + base64.StdEncoding.EncodeToString([]byte(username+":"+password))
		return nil
	})
}

// WithAuth sets the Authorization header value verbatim.
func WithAuth(auth string) Option {
	return lrsOption(func(o *RemoteLRS) error {
		o.auth = auth
		return nil
	})
}

// WithHeaders adds headers to every request.
func WithHeaders(h http.Header) Option {
	return lrsOption(func(o *RemoteLRS) error {
		for k, vs := range h {
			for _, v := range vs {
				o.headers.Add(k, v)
			}
		}
		return nil
	})
}

// WithTransport sets the transport. Default is an HTTPTransport.
func WithTransport(t Transport) Option {
	return lrsOption(func(o *RemoteLRS) error {
		o.transport = t
		return nil
	})
}

// WithHTTPClient uses an HTTPTransport over a copy of c.
func WithHTTPClient(c *http.Client) Option {
	return lrsOption(func(o *RemoteLRS) error {
		o.transport = NewHTTPTransport(c)
		return nil
	})
}

// WithLogger sets a logger for requests. Nothing is logged by default.
func WithLogger(l *slog.Logger) Option {
	return lrsOption(func(o *RemoteLRS) error {
		o.logger = l
		return nil
	})
}

// WithRateLimit limits the request rate. Requests wait for a token or
// for their context to be done.
func WithRateLimit(r rate.Limit, burst int) Option {
	return lrsOption(func(o *RemoteLRS) error {
		o.limiter = rate.NewLimiter(r, burst)
		return nil
	})
}

// WithTracer sets the tracer used for request spans. Default is the
// tracer of the global provider.
func WithTracer(t trace.Tracer) Option {
	return lrsOption(func(o *RemoteLRS) error {
		o.tracer = t
		return nil
	})
}

// WithBoundaryGenerator sets the generator for multipart boundaries.
// Default is id.NUID.
func WithBoundaryGenerator(g id.ID) Option {
	return lrsOption(func(o *RemoteLRS) error {
		o.boundary = g
		return nil
	})
}

// RemoteLRS is a client of a record store's HTTP interface.
type RemoteLRS struct {
	endpoint *url.URL
	version  Version
	auth     string
	headers  http.Header

	transport Transport
	logger    *slog.Logger
	limiter   *rate.Limiter
	tracer    trace.Tracer
	boundary  id.ID
}

// NewRemoteLRS creates a client for the store at endpoint, the base
// URL under which the statements, activities and agents resources live.
func NewRemoteLRS(endpoint string, opts ...Option) (*RemoteLRS, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidEndpoint, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidEndpoint, endpoint)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}

	l := &RemoteLRS{
		endpoint: u,
		version:  LatestVersion,
		headers:  make(http.Header),
		boundary: id.NUID,
	}

	for _, o := range opts {
		if err := o.addOption(l); err != nil {
			return nil, err
		}
	}

	if l.transport == nil {
		l.transport = NewHTTPTransport(nil)
	}
	if l.tracer == nil {
		l.tracer = otel.Tracer(tracerName)
	}

	return l, nil
}

// Endpoint returns the base URL.
func (l *RemoteLRS) Endpoint() string {
	return l.endpoint.String()
}

// Version returns the protocol version requests are made with.
func (l *RemoteLRS) Version() Version {
	return l.version
}

// serverRoot is the endpoint with the path removed.
func (l *RemoteLRS) serverRoot() *url.URL {
	return &url.URL{
		Scheme: l.endpoint.Scheme,
		User:   l.endpoint.User,
		Host:   l.endpoint.Host,
		Path:   "/",
	}
}

type request struct {
	method string
	// resource is relative to the endpoint unless target is set.
	resource string
	target   *url.URL
	params   url.Values
	header   http.Header
	body     []byte
	// A 404 yields the response rather than an error.
	ignore404 bool
}

func (l *RemoteLRS) resolve(r *request) string {
	var u *url.URL
	if r.target != nil {
		u = r.target
	} else {
		u = l.endpoint.ResolveReference(&url.URL{Path: r.resource})
	}
	if len(r.params) > 0 {
		c := *u
		q := c.Query()
		for k, vs := range r.params {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		c.RawQuery = q.Encode()
		u = &c
	}
	return u.String()
}

func (l *RemoteLRS) send(ctx context.Context, r *request) (*Response, error) {
	target := l.resolve(r)

	h := make(http.Header)
	h.Set(VersionHeader, string(l.version))
	if l.auth != "" {
		h.Set("Authorization", l.auth)
	}
	for k, vs := range l.headers {
		h[k] = append([]string(nil), vs...)
	}
	for k, vs := range r.header {
		h[k] = append([]string(nil), vs...)
	}

	if l.limiter != nil {
		if err := l.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	ctx, span := l.tracer.Start(ctx, "xapi.send",
		trace.WithAttributes(
			attribute.String("http.method", r.method),
			attribute.String("http.url", target),
			attribute.String("xapi.version", string(l.version)),
		),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	defer span.End()

	start := time.Now()
	resp, err := l.transport.Send(ctx, r.method, target, h, r.body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logRequestError(l.logger, r.method, target, err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	logRequest(l.logger, r.method, target, resp.StatusCode, time.Since(start))

	if resp.StatusCode == http.StatusNotFound && r.ignore404 {
		return resp, nil
	}
	if resp.StatusCode >= 300 {
		err := &StatusError{
			Method:     r.method,
			URL:        target,
			StatusCode: resp.StatusCode,
			Body:       resp.Body,
		}
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return resp, nil
}

// splitBody returns the primary payload of resp and, for multipart
// responses, all of its parts.
func splitBody(resp *Response) ([]byte, []multipart.Part, error) {
	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		return resp.Body, nil, nil
	}
	mt, boundary, err := multipart.ParseContentType(ct)
	if err != nil {
		return nil, nil, err
	}
	if mt != multipart.MediaType {
		return resp.Body, nil, nil
	}
	parts, err := DecodeMultipart(boundary, resp.Body)
	if err != nil {
		return nil, nil, err
	}
	return parts[0].Body, parts, nil
}

func logRequest(logger *slog.Logger, method, target string, status int, d time.Duration) {
	if logger == nil {
		return
	}
	logger.Debug("xapi request",
		slog.String("method", method),
		slog.String("url", target),
		slog.Int("status", status),
		slog.Duration("duration", d),
	)
}

func logRequestError(logger *slog.Logger, method, target string, err error) {
	if logger == nil {
		return
	}
	logger.Error("xapi request failed",
		slog.String("method", method),
		slog.String("url", target),
		slog.String("error", err.Error()),
	)
}
