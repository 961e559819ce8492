// Package httpclient provides an instrumented HTTP client with OTEL tracing and metrics,
// used to fetch remote pool snapshots.
package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptrace"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/httptrace/otelhttptrace"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/cfmm-arb/internal/apperror"
)

const (
	defaultDialKeepAlive   = 10 * time.Second
	defaultRequestTimeout  = 10 * time.Second
	defaultMaxConnsPerHost = 5
	defaultIdleConnTimeout = 2 * time.Minute
	defaultMaxBodyBytes    = 64 << 20

	metricRequestCounter = "http_client_requests_total"
	instrumentationName  = "github.com/fd1az/cfmm-arb/internal/httpclient"
)

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// IsSuccess reports a 2xx/3xx status.
func (r *Response) IsSuccess() bool {
	return r.StatusCode < 400
}

// Client wraps http.Client with OTEL instrumentation.
type Client struct {
	client         *http.Client
	requestCounter metric.Int64Counter
	tracer         trace.Tracer
	providerName   string
	headers        map[string]string
	maxBodyBytes   int64
}

// New creates an instrumented client.
func New(opts ...Option) (*Client, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	base := o.roundTripper
	if base == nil {
		base = &http.Transport{
			DialContext:     (&net.Dialer{KeepAlive: defaultDialKeepAlive}).DialContext,
			MaxConnsPerHost: defaultMaxConnsPerHost,
			IdleConnTimeout: defaultIdleConnTimeout,
		}
	}
	timeout := o.requestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	httpClient := &http.Client{
		Timeout: timeout,
		Transport: otelhttp.NewTransport(base,
			otelhttp.WithClientTrace(func(ctx context.Context) *httptrace.ClientTrace {
				return otelhttptrace.NewClientTrace(ctx)
			}),
		),
	}

	if o.providerName == "" {
		o.providerName = "default"
	}
	mp := o.meterProvider
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(instrumentationName,
		metric.WithInstrumentationAttributes(attribute.String("provider", o.providerName)))
	counter, err := meter.Int64Counter(metricRequestCounter,
		metric.WithDescription("Total number of HTTP requests"))
	if err != nil {
		return nil, err
	}

	tracer := o.tracer
	if tracer == nil {
		tracer = otel.GetTracerProvider().Tracer(instrumentationName)
	}
	maxBody := o.maxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}

	return &Client{
		client:         httpClient,
		requestCounter: counter,
		tracer:         tracer,
		providerName:   o.providerName,
		headers:        o.headers,
		maxBodyBytes:   maxBody,
	}, nil
}

// Get fetches url and reads the body. Statuses >= 400 are returned as EXTERNAL_SERVICE_ERROR
// together with the response.
func (c *Client) Get(ctx context.Context, url string) (*Response, error) {
	ctx, span := c.tracer.Start(ctx, "http.get",
		trace.WithAttributes(
			attribute.String("http.url", url),
			attribute.String("provider", c.providerName),
		),
	)
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		span.SetStatus(codes.Error, "failed to create request")
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.recordError(ctx, span, err)
		return nil, apperror.External(apperror.CodeExternalServiceError, url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodyBytes))
	if err != nil {
		c.recordError(ctx, span, err)
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	out := &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	c.recordMetrics(ctx, out.IsSuccess())

	if !out.IsSuccess() {
		span.SetStatus(codes.Error, resp.Status)
		return out, apperror.New(apperror.CodeExternalServiceError,
			apperror.WithContext(fmt.Sprintf("GET %s: %s", url, resp.Status)))
	}
	return out, nil
}

func (c *Client) recordError(ctx context.Context, span trace.Span, err error) {
	span.RecordError(err)

	var netErr net.Error
	if errors.Is(err, context.Canceled) {
		span.SetAttributes(attribute.Bool("context.cancelled", true))
	}
	if errors.As(err, &netErr) && netErr.Timeout() {
		span.SetAttributes(attribute.Bool("request.timeout", true))
	}

	span.SetStatus(codes.Error, err.Error())
	c.recordMetrics(ctx, false)
}

func (c *Client) recordMetrics(ctx context.Context, success bool) {
	c.requestCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", c.providerName),
		attribute.Bool("success", success),
	))
}
