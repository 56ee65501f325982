// Package exchange is the client of a regional health-document exchange:
// document discovery and retrieval against the regional FHIR base, VHL
// issuance and resolution, and ICVP certificate generation.
//
// A Client is safe for concurrent use. It never retries a request.
package exchange

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Media types used on the wire.
const (
	MediaFHIRJSON = "application/fhir+json"
	MediaJSON     = "application/json"
	MediaAny      = "*/*"
)

// TracerName is the instrumentation name of the default tracer.
const TracerName = "github.com/lacpass/healthlink/pkg/exchange"

// HTTPDoer is the minimal interface needed from an HTTP client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Observer receives one observation per outbound request.
type Observer interface {
	ObserveRequest(op, outcome string, elapsed time.Duration)
}

// Request outcomes reported to the Observer.
const (
	OutcomeOK          = "ok"
	OutcomeHTTPError   = "http_error"
	OutcomeTimeout     = "timeout"
	OutcomeUnreachable = "unreachable"
	OutcomeCanceled    = "canceled"
)

// Client talks to the regional exchange and its gateways.
type Client struct {
	cfg     *Config
	http    HTTPDoer
	logger  *slog.Logger
	metrics Observer
	tracer  trace.Tracer
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(d HTTPDoer) Option {
	return func(c *Client) {
		c.http = d
	}
}

// WithLogger sets the logger. The default discards.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// WithMetrics sets the request observer.
func WithMetrics(o Observer) Option {
	return func(c *Client) {
		c.metrics = o
	}
}

// WithTracer sets the tracer. The default comes from the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(c *Client) {
		c.tracer = t
	}
}

// New validates cfg and returns a Client.
func New(cfg *Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Client{cfg: cfg}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.logger == nil {
		c.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if c.tracer == nil {
		c.tracer = otel.Tracer(TracerName)
	}
	return c, nil
}

// Config returns the client configuration.
func (c *Client) Config() *Config {
	return c.cfg
}

// request describes one outbound call.
type request struct {
	op     string
	method string
	url    string
	accept string
	body   []byte
	// auth sends the configured basic credentials.
	auth bool
}

// response is a fully read 2xx response.
type response struct {
	status      int
	contentType string
	body        []byte
}

// do executes req under the request timeout and reads the whole body.
// Non-2xx statuses and transport failures come back as *Error.
func (c *Client) do(ctx context.Context, req request) (*response, error) {
	if c.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.RequestTimeout)
		defer cancel()
	}

	var body io.Reader
	if req.body != nil {
		body = bytes.NewReader(req.body)
	}
	hreq, err := http.NewRequestWithContext(ctx, req.method, req.url, body)
	if err != nil {
		return nil, &Error{Op: req.op, URL: req.url, Err: fmt.Errorf("%w: %v", ErrValidation, err)}
	}
	hreq.Header.Set("Accept", req.accept)
	if req.body != nil {
		hreq.Header.Set("Content-Type", MediaJSON)
	}
	hreq.Header.Set("X-Request-ID", uuid.NewString())
	if req.auth && c.cfg.hasBasicAuth() {
		hreq.SetBasicAuth(c.cfg.BasicUser, c.cfg.BasicPass)
	}

	start := time.Now()
	resp, err := c.http.Do(hreq)
	if err != nil {
		outcome, cause := classifyTransport(err)
		c.observe(req.op, outcome, start)
		return nil, &Error{Op: req.op, URL: req.url, Err: cause}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.observe(req.op, OutcomeHTTPError, start)
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, StatusError(req.op, req.url, resp)
	}

	data, err := c.readBody(resp.Body)
	if err != nil {
		outcome, cause := classifyTransport(err)
		if errors.Is(err, errBodyTooLarge) {
			outcome, cause = OutcomeHTTPError, err
		}
		c.observe(req.op, outcome, start)
		return nil, &Error{Op: req.op, URL: req.url, Err: cause}
	}
	c.observe(req.op, OutcomeOK, start)

	return &response{
		status:      resp.StatusCode,
		contentType: resp.Header.Get("Content-Type"),
		body:        data,
	}, nil
}

var errBodyTooLarge = errors.New("response body exceeds size limit")

func (c *Client) readBody(r io.Reader) ([]byte, error) {
	if c.cfg.MaxBodyBytes <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, c.cfg.MaxBodyBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > c.cfg.MaxBodyBytes {
		return nil, fmt.Errorf("%w (%d bytes)", errBodyTooLarge, c.cfg.MaxBodyBytes)
	}
	return data, nil
}

// classifyTransport maps a transport error to an outcome and the error
// placed in Error.Err.
func classifyTransport(err error) (string, error) {
	var netErr net.Error
	switch {
	case errors.Is(err, context.Canceled):
		return OutcomeCanceled, err
	case errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr) && netErr.Timeout():
		return OutcomeTimeout, fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return OutcomeUnreachable, fmt.Errorf("%w: %v", ErrUnreachable, err)
}

func (c *Client) observe(op, outcome string, start time.Time) {
	if c.metrics != nil {
		c.metrics.ObserveRequest(op, outcome, time.Since(start))
	}
}

// startSpan opens the span of one exchange operation.
func (c *Client) startSpan(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return c.tracer.Start(ctx, "exchange."+op, trace.WithAttributes(attrs...))
}

// endSpan records err on span and ends it.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// hashIdentifier shortens a patient identifier for traces and logs.
func hashIdentifier(id string) string {
	sum := sha256.Sum256([]byte(id))
	return hex.EncodeToString(sum[:8])
}
