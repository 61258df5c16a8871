// Package httpclient builds HTTP clients instrumented with OTEL tracing and
// a request counter.
package httpclient

import (
	"context"
	"net"
	"net/http"
	"net/http/httptrace"
	"strconv"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/httptrace/otelhttptrace"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	defaultDialKeepAlive         = 10 * time.Second
	defaultRequestTimeout        = 10 * time.Second
	defaultMaxIdleConns          = 0
	defaultMaxConnsPerHost       = 5
	defaultIdleConnTimeout       = 2 * time.Minute
	defaultExpectContinueTimeout = 100 * time.Millisecond

	metricRequestCounter = "http_client_requests_total"
)

// New returns an *http.Client whose transport fills default headers,
// counts requests per host and status, and records client spans.
func New(opts ...Option) (*http.Client, error) {
	cfg := newSettings(opts)

	base := cfg.base
	if base == nil {
		base = pooledTransport()
	}

	meters := cfg.meters
	if meters == nil {
		meters = otel.GetMeterProvider()
	}
	requests, err := meters.Meter(
		"instrumented_http_client",
		metric.WithInstrumentationAttributes(attribute.String("client", cfg.name)),
	).Int64Counter(
		metricRequestCounter,
		metric.WithDescription("HTTP requests by client, host and status"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	counted := &countingTransport{
		next:     base,
		requests: requests,
		name:     cfg.name,
		defaults: cfg.defaults,
	}

	return &http.Client{
		Timeout: cfg.timeout,
		Transport: otelhttp.NewTransport(counted,
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return cfg.name + " " + r.Method
			}),
			otelhttp.WithClientTrace(func(ctx context.Context) *httptrace.ClientTrace {
				return otelhttptrace.NewClientTrace(ctx)
			}),
		),
	}, nil
}

func pooledTransport() *http.Transport {
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{KeepAlive: defaultDialKeepAlive}).DialContext,
		MaxIdleConns:          defaultMaxIdleConns,
		MaxConnsPerHost:       defaultMaxConnsPerHost,
		IdleConnTimeout:       defaultIdleConnTimeout,
		ExpectContinueTimeout: defaultExpectContinueTimeout,
	}
}

type countingTransport struct {
	next     http.RoundTripper
	requests metric.Int64Counter
	name     string
	defaults http.Header
}

func (t *countingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	var cloned bool
	for key, values := range t.defaults {
		if req.Header.Get(key) != "" {
			continue
		}
		if !cloned {
			req = req.Clone(req.Context())
			cloned = true
		}
		req.Header[key] = values
	}

	resp, err := t.next.RoundTrip(req)

	status := "error"
	if err == nil {
		status = strconv.Itoa(resp.StatusCode)
	}
	t.requests.Add(req.Context(), 1, metric.WithAttributes(
		attribute.String("client", t.name),
		attribute.String("host", req.URL.Host),
		attribute.String("status", status),
	))
	return resp, err
}
