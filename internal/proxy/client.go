// Package proxy calls the downstream services through their circuit
// breakers and maps the answers onto the gateway's response envelope.
package proxy

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/edgegw/internal/auth"
	"github.com/vyrodovalexey/edgegw/internal/circuitbreaker"
	"github.com/vyrodovalexey/edgegw/internal/observability"
	"github.com/vyrodovalexey/edgegw/internal/util"
)

// DefaultMaxResponseBytes caps how much of a downstream body is read.
const DefaultMaxResponseBytes int64 = 10 << 20

const tracerName = "github.com/vyrodovalexey/edgegw/internal/proxy"

// Request is one call to a downstream service. Path is an escaped path
// relative to the service base URL.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   []byte
	Header http.Header
}

// Response is a fully read downstream answer.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Succeeded reports whether the status is a business answer. 404 counts:
// a missing record is not an infrastructure failure.
func (r *Response) Succeeded() bool {
	return isSuccess(r.Status) || r.Status == http.StatusNotFound
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

// Client talks to one downstream service.
type Client struct {
	service string
	base    *url.URL
	http    *http.Client
	breaker *circuitbreaker.Breaker
	tracer  trace.Tracer
	logger  observability.Logger
	metrics *Metrics
	maxBody int64
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics sets the collector for downstream latency and errors.
func WithMetrics(m *Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithTracer sets the tracer used for client spans.
func WithTracer(t trace.Tracer) Option {
	return func(c *Client) {
		if t != nil {
			c.tracer = t
		}
	}
}

// WithMaxResponseBytes caps the downstream body size.
func WithMaxResponseBytes(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxBody = n
		}
	}
}

// NewTransport returns the transport used for downstream calls.
func NewTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
}

// NewClient creates a client for service rooted at baseURL. Calls go
// through breaker.
func NewClient(service, baseURL string, breaker *circuitbreaker.Breaker, opts ...Option) (*Client, error) {
	if breaker == nil {
		return nil, fmt.Errorf("proxy: %s: breaker is required", service)
	}
	base, err := url.Parse(baseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("proxy: %s: invalid base url %q", service, baseURL)
	}

	c := &Client{
		service: service,
		base:    base,
		http:    &http.Client{Transport: NewTransport()},
		breaker: breaker,
		tracer:  otel.Tracer(tracerName),
		logger:  observability.NopLogger(),
		maxBody: DefaultMaxResponseBytes,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(observability.String("service", service))
	return c, nil
}

// Service returns the downstream service identifier.
func (c *Client) Service() string {
	return c.service
}

// Breaker returns the breaker guarding the service.
func (c *Client) Breaker() *circuitbreaker.Breaker {
	return c.breaker
}

// Do sends req through the breaker. A downstream status other than 2xx or
// 404 is returned as a *StatusError carrying the response.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	return circuitbreaker.Do(ctx, c.breaker, func(ctx context.Context) (*Response, error) {
		return c.roundTrip(ctx, req)
	})
}

func (c *Client) roundTrip(ctx context.Context, req *Request) (*Response, error) {
	start := time.Now()
	target := c.base.JoinPath(req.Path)
	target.RawQuery = req.Query.Encode()

	ctx, span := c.tracer.Start(ctx, "downstream "+c.service,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("peer.service", c.service),
			attribute.String("http.request.method", req.Method),
			attribute.String("url.full", target.String()),
		),
	)
	defer span.End()

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	hreq, err := http.NewRequestWithContext(ctx, req.Method, target.String(), body)
	if err != nil {
		return nil, util.NewServiceError(c.service, "build request", err)
	}
	c.setHeaders(ctx, hreq, req)

	hresp, err := c.http.Do(hreq)
	if err != nil {
		c.metrics.recordError(c.service, "transport")
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport error")
		return nil, util.NewServiceError(c.service, "request failed", err)
	}
	defer func() { _ = hresp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(hresp.Body, c.maxBody+1))
	if err != nil {
		c.metrics.recordError(c.service, "read_body")
		span.RecordError(err)
		span.SetStatus(codes.Error, "read error")
		return nil, util.NewServiceError(c.service, "read response", err)
	}
	if int64(len(data)) > c.maxBody {
		c.metrics.recordError(c.service, "body_too_large")
		span.SetStatus(codes.Error, "response too large")
		return nil, util.NewServiceError(c.service, "read response", ErrResponseTooLarge)
	}

	c.metrics.observe(c.service, hresp.StatusCode, time.Since(start))
	span.SetAttributes(attribute.Int("http.response.status_code", hresp.StatusCode))

	resp := &Response{Status: hresp.StatusCode, Header: hresp.Header, Body: data}
	if !resp.Succeeded() {
		span.SetStatus(codes.Error, http.StatusText(hresp.StatusCode))
		return resp, &StatusError{Service: c.service, Response: resp}
	}
	return resp, nil
}

// setHeaders builds the outbound header set. Identity headers come only
// from the verified principal; any inbound copies are dropped.
func (c *Client) setHeaders(ctx context.Context, hreq *http.Request, req *Request) {
	for k, vs := range req.Header {
		for _, v := range vs {
			hreq.Header.Add(k, v)
		}
	}
	hreq.Header.Del(util.HeaderUserID)
	hreq.Header.Del(util.HeaderUserRole)

	if id := observability.RequestIDFromContext(ctx); id != "" {
		hreq.Header.Set(util.HeaderRequestID, id)
	}
	if p, ok := auth.PrincipalFromContext(ctx); ok {
		hreq.Header.Set(util.HeaderUserID, p.SubjectID)
		hreq.Header.Set(util.HeaderUserRole, p.Role.String())
	}
	if len(req.Body) > 0 && hreq.Header.Get("Content-Type") == "" {
		hreq.Header.Set("Content-Type", jsonContentType)
	}
	hreq.Header.Set("Accept", "application/json")
	observability.InjectTraceContext(ctx, hreq)
}
