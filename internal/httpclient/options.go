package httpclient

import (
	"net/http"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// DefaultUserAgent is sent when neither the caller nor an option sets one.
const DefaultUserAgent = "genip"

type settings struct {
	name     string
	timeout  time.Duration
	base     http.RoundTripper
	meters   metric.MeterProvider
	defaults http.Header
}

func newSettings(opts []Option) settings {
	s := settings{
		name:     "default",
		timeout:  defaultRequestTimeout,
		defaults: http.Header{"User-Agent": {DefaultUserAgent}},
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// Option configures a client built by New.
type Option func(*settings)

// WithName labels the client's spans and request counter.
func WithName(name string) Option {
	return func(s *settings) {
		if name != "" {
			s.name = name
		}
	}
}

// WithTimeout bounds a whole request. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) { s.timeout = d }
}

// WithTransport replaces the pooled transport under the instrumentation.
func WithTransport(rt http.RoundTripper) Option {
	return func(s *settings) { s.base = rt }
}

// WithMeterProvider overrides the global meter provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *settings) { s.meters = mp }
}

// WithHeader adds a header to requests that do not already carry it.
func WithHeader(key, value string) Option {
	return func(s *settings) { s.defaults.Set(key, value) }
}
