// Package eip1193 reaches an EIP-1193 wallet provider over a JSON-RPC
// WebSocket, the transport desktop wallets expose locally.
package eip1193

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/event"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/genip/business/wallet/app"
	"github.com/fd1az/genip/business/wallet/domain"
	"github.com/fd1az/genip/internal/apperror"
	"github.com/fd1az/genip/internal/logger"
	"github.com/fd1az/genip/internal/wsconn"
)

const (
	tracerName = "github.com/fd1az/genip/business/wallet/infra/eip1193"
	meterName  = "github.com/fd1az/genip/business/wallet/infra/eip1193"
)

// Subscription topics understood by wallets that push EIP-1193 events over
// eth_subscribe.
const (
	topicAccountsChanged = "accountsChanged"
	topicChainChanged    = "chainChanged"
)

// Config holds configuration for the wallet provider.
type Config struct {
	// URL of the wallet's JSON-RPC WebSocket. Empty means no wallet.
	URL string

	// RequestTimeout bounds each request. 0 waits as long as the caller's
	// context allows, which suits prompts that wait on the user.
	RequestTimeout time.Duration

	// DialTimeout bounds a single dial attempt.
	DialTimeout time.Duration

	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	MaxReconnects  int

	// EventBuffer is the depth of the queue between the socket reader and
	// event subscribers.
	EventBuffer int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig(url string) Config {
	return Config{
		URL:            url,
		DialTimeout:    3 * time.Second,
		InitialBackoff: time.Second,
		MaxBackoff:     30 * time.Second,
		EventBuffer:    64,
	}
}

type providerMetrics struct {
	requests       metric.Int64Counter
	requestLatency metric.Float64Histogram
	events         metric.Int64Counter
	drops          metric.Int64Counter
}

type response struct {
	result json.RawMessage
	err    error
}

// Provider implements app.Provider.
type Provider struct {
	config Config
	logger logger.LoggerInterface
	client *wsconn.Client // nil when no URL is configured

	nextID    atomic.Uint64
	pendingMu sync.Mutex
	pending   map[uint64]chan response

	// subscription id -> topic
	subsMu sync.Mutex
	subs   map[string]domain.EventKind

	wasConnected atomic.Bool
	dialMu       sync.Mutex

	feed     event.Feed
	dispatch chan domain.ProviderEvent

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	tracer  trace.Tracer
	metrics *providerMetrics
}

var _ app.Provider = (*Provider)(nil)

// New creates a Provider. It does not dial; see Open.
func New(cfg Config, log logger.LoggerInterface) (*Provider, error) {
	def := DefaultConfig(cfg.URL)
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = def.DialTimeout
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = def.EventBuffer
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Provider{
		config:   cfg,
		logger:   log,
		pending:  make(map[uint64]chan response),
		subs:     make(map[string]domain.EventKind),
		dispatch: make(chan domain.ProviderEvent, cfg.EventBuffer),
		ctx:      ctx,
		cancel:   cancel,
		tracer:   otel.Tracer(tracerName),
	}

	if err := p.initMetrics(); err != nil {
		cancel()
		return nil, err
	}

	if cfg.URL != "" {
		wsCfg := wsconn.DefaultConfig(cfg.URL, "wallet")
		wsCfg.InitialBackoff = cfg.InitialBackoff
		wsCfg.MaxBackoff = cfg.MaxBackoff
		wsCfg.MaxReconnects = cfg.MaxReconnects

		client, err := wsconn.New(wsCfg)
		if err != nil {
			cancel()
			return nil, err
		}
		client.OnMessage(p.handleMessage)
		client.OnStateChange(p.handleState)
		p.client = client
	}

	p.wg.Add(1)
	go p.dispatchLoop()

	return p, nil
}

func (p *Provider) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	p.metrics = &providerMetrics{}

	p.metrics.requests, err = meter.Int64Counter(
		"wallet_provider_requests_total",
		metric.WithDescription("JSON-RPC requests sent to the wallet provider"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return err
	}

	p.metrics.requestLatency, err = meter.Float64Histogram(
		"wallet_provider_request_duration_seconds",
		metric.WithDescription("Round trip of wallet provider requests"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	p.metrics.events, err = meter.Int64Counter(
		"wallet_provider_notifications_total",
		metric.WithDescription("Notifications decoded from the wallet provider"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return err
	}

	p.metrics.drops, err = meter.Int64Counter(
		"wallet_provider_disconnects_total",
		metric.WithDescription("Times the wallet socket dropped"),
		metric.WithUnit("{disconnect}"),
	)
	return err
}

// Open dials the wallet. A missing or unreachable wallet is not an error:
// the provider simply reports itself unavailable.
func (p *Provider) Open(ctx context.Context) {
	if p.client == nil {
		p.logger.Info(ctx, "no wallet provider configured")
		return
	}
	if err := p.dial(ctx); err != nil {
		p.logger.Warn(ctx, "wallet provider unreachable", "url", p.config.URL, "error", err.Error())
	}
}

func (p *Provider) dial(ctx context.Context) error {
	p.dialMu.Lock()
	defer p.dialMu.Unlock()

	if p.client.IsConnected() {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, p.config.DialTimeout)
	defer cancel()
	return p.client.Connect(ctx)
}

// Available reports whether the wallet socket is up. A wallet that was not
// running earlier is dialed again, so starting it later is picked up.
func (p *Provider) Available() bool {
	if p.client == nil {
		return false
	}
	switch p.client.State() {
	case wsconn.StateConnected:
		return true
	case wsconn.StateDisconnected:
		return p.dial(p.ctx) == nil
	default:
		return false
	}
}

// SubscribeEvents delivers accountsChanged, chainChanged and disconnect
// notifications.
func (p *Provider) SubscribeEvents(ch chan<- domain.ProviderEvent) event.Subscription {
	return p.feed.Subscribe(ch)
}

// Request sends a JSON-RPC request and waits for its response. Errors
// reported by the wallet are returned as *domain.ProviderError.
func (p *Provider) Request(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	ctx, span := p.tracer.Start(ctx, "eip1193.request",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("rpc.method", method)))
	defer span.End()
	start := time.Now()

	result, err := p.request(ctx, method, params)

	outcome := "ok"
	if err != nil {
		outcome = "error"
		if code := domain.ProviderErrorCode(err); code != 0 {
			span.SetAttributes(attribute.Int("rpc.error_code", code))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	attrs := metric.WithAttributes(attribute.String("method", method), attribute.String("outcome", outcome))
	p.metrics.requests.Add(ctx, 1, attrs)
	p.metrics.requestLatency.Record(ctx, time.Since(start).Seconds(), attrs)

	return result, err
}

func (p *Provider) request(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	if p.client == nil || !p.client.IsConnected() {
		return nil, &domain.ProviderError{Code: domain.ProviderCodeDisconnected, Message: "wallet provider is not connected"}
	}
	if p.config.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.RequestTimeout)
		defer cancel()
	}

	id := p.nextID.Add(1)
	ch := make(chan response, 1)

	p.pendingMu.Lock()
	p.pending[id] = ch
	p.pendingMu.Unlock()
	defer func() {
		p.pendingMu.Lock()
		delete(p.pending, id)
		p.pendingMu.Unlock()
	}()

	if params == nil {
		params = []any{}
	}
	if err := p.client.SendJSON(ctx, newRequest(id, method, params)); err != nil {
		return nil, apperror.Wrap(err, apperror.CodeProviderRequestFailed, method)
	}

	select {
	case resp := <-ch:
		return resp.result, resp.err
	case <-ctx.Done():
		code := apperror.CodeProviderRequestFailed
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			code = apperror.CodeServiceTimeout
		}
		return nil, apperror.New(code, apperror.WithContext(method), apperror.WithCause(ctx.Err()))
	case <-p.ctx.Done():
		return nil, &domain.ProviderError{Code: domain.ProviderCodeDisconnected, Message: "wallet provider closed"}
	}
}

// Close drops the socket and fails outstanding requests.
func (p *Provider) Close() error {
	p.cancel()
	var err error
	if p.client != nil {
		err = p.client.Close()
	}
	p.failPending(&domain.ProviderError{Code: domain.ProviderCodeDisconnected, Message: "wallet provider closed"})
	p.wg.Wait()
	return err
}

// ---------------------------------------------------------------------------
// Inbound
// ---------------------------------------------------------------------------

func (p *Provider) handleMessage(ctx context.Context, data []byte) {
	var msg message
	if err := json.Unmarshal(data, &msg); err != nil {
		p.logger.Debug(ctx, "ignoring malformed provider message", "error", err.Error())
		return
	}

	switch {
	case msg.ID != nil && msg.Method == "":
		p.resolve(*msg.ID, msg)
	case msg.Method == "eth_subscription":
		p.handleSubscription(ctx, msg.Params)
	case msg.Method == topicAccountsChanged || msg.Method == topicChainChanged:
		p.handleDirect(ctx, msg.Method, msg.Params)
	default:
		p.logger.Debug(ctx, "ignoring provider message", "method", msg.Method)
	}
}

// resolve hands a response to its waiting request. Only the first response
// for an id is delivered; the read loop never blocks on a caller.
func (p *Provider) resolve(id uint64, msg message) {
	p.pendingMu.Lock()
	ch, ok := p.pending[id]
	delete(p.pending, id)
	p.pendingMu.Unlock()
	if !ok {
		return
	}

	resp := response{result: msg.Result}
	if msg.Error != nil {
		resp = response{err: msg.Error}
	}
	select {
	case ch <- resp:
	default:
	}
}

func (p *Provider) handleSubscription(ctx context.Context, raw json.RawMessage) {
	var n notification
	if err := json.Unmarshal(raw, &n); err != nil {
		p.logger.Debug(ctx, "ignoring malformed subscription payload", "error", err.Error())
		return
	}

	p.subsMu.Lock()
	kind, ok := p.subs[n.Subscription]
	p.subsMu.Unlock()
	if !ok {
		return
	}

	ev, err := decodeEvent(kind, n.Result)
	if err != nil {
		p.logger.Warn(ctx, "undecodable provider event", "kind", kind.String(), "error", err.Error())
		return
	}
	p.emit(ev)
}

// handleDirect accepts notifications named after the event itself, whose
// params are either the payload or a one-element array holding it.
func (p *Provider) handleDirect(ctx context.Context, method string, raw json.RawMessage) {
	kind := domain.EventAccountsChanged
	if method == topicChainChanged {
		kind = domain.EventChainChanged
	}

	payload := raw
	if kind == domain.EventChainChanged {
		var wrapped []json.RawMessage
		if json.Unmarshal(raw, &wrapped) == nil && len(wrapped) == 1 {
			payload = wrapped[0]
		}
	}

	ev, err := decodeEvent(kind, payload)
	if err != nil {
		p.logger.Warn(ctx, "undecodable provider event", "kind", kind.String(), "error", err.Error())
		return
	}
	p.emit(ev)
}

func decodeEvent(kind domain.EventKind, raw json.RawMessage) (domain.ProviderEvent, error) {
	switch kind {
	case domain.EventAccountsChanged:
		var accounts []string
		if err := json.Unmarshal(raw, &accounts); err != nil {
			return domain.ProviderEvent{}, err
		}
		return domain.ProviderEvent{Kind: kind, Accounts: domain.ParseAccounts(accounts)}, nil

	case domain.EventChainChanged:
		var hexID string
		if err := json.Unmarshal(raw, &hexID); err != nil {
			return domain.ProviderEvent{}, err
		}
		id, err := domain.ParseChainID(hexID)
		if err != nil {
			return domain.ProviderEvent{}, err
		}
		return domain.ProviderEvent{Kind: kind, ChainID: id}, nil
	}
	return domain.ProviderEvent{}, errors.New("unsupported event kind")
}

func (p *Provider) emit(ev domain.ProviderEvent) {
	p.metrics.events.Add(p.ctx, 1, metric.WithAttributes(attribute.String("kind", ev.Kind.String())))
	select {
	case p.dispatch <- ev:
	case <-p.ctx.Done():
	}
}

// dispatchLoop hands events to subscribers off the socket reader, so a slow
// subscriber cannot stall responses.
func (p *Provider) dispatchLoop() {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case ev := <-p.dispatch:
			p.feed.Send(ev)
		}
	}
}

// ---------------------------------------------------------------------------
// Connection lifecycle
// ---------------------------------------------------------------------------

func (p *Provider) handleState(state wsconn.State, err error) {
	switch state {
	case wsconn.StateConnected:
		if p.ctx.Err() != nil {
			return
		}
		p.wasConnected.Store(true)
		p.logger.Info(p.ctx, "wallet provider connected", "url", p.config.URL)
		// The socket reader is what delivers the subscribe responses, so
		// subscribing must not happen on this goroutine.
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.subscribe(p.ctx)
		}()

	case wsconn.StateReconnecting, wsconn.StateDisconnected, wsconn.StateClosed:
		if !p.wasConnected.Swap(false) {
			return
		}
		p.subsMu.Lock()
		clear(p.subs)
		p.subsMu.Unlock()

		p.failPending(&domain.ProviderError{Code: domain.ProviderCodeDisconnected, Message: "wallet provider disconnected"})
		if state == wsconn.StateClosed {
			return
		}

		p.metrics.drops.Add(p.ctx, 1)
		fields := []any{"state", string(state)}
		if err != nil {
			fields = append(fields, "error", err.Error())
		}
		p.logger.Warn(p.ctx, "wallet provider disconnected", fields...)
		p.emit(domain.ProviderEvent{Kind: domain.EventDisconnected, Err: err})
	}
}

func (p *Provider) subscribe(ctx context.Context) {
	for _, topic := range []struct {
		name string
		kind domain.EventKind
	}{
		{topicAccountsChanged, domain.EventAccountsChanged},
		{topicChainChanged, domain.EventChainChanged},
	} {
		raw, err := p.Request(ctx, "eth_subscribe", topic.name)
		if err != nil {
			// Wallets without subscriptions still answer requests; state is
			// then refreshed only by explicit operations.
			p.logger.Warn(ctx, "wallet event subscription failed", "topic", topic.name, "error", err.Error())
			continue
		}
		var id string
		if err := json.Unmarshal(raw, &id); err != nil || id == "" {
			p.logger.Warn(ctx, "wallet returned an invalid subscription id", "topic", topic.name)
			continue
		}

		p.subsMu.Lock()
		p.subs[id] = topic.kind
		p.subsMu.Unlock()
		p.logger.Debug(ctx, "subscribed to wallet events", "topic", topic.name, "id", id)
	}
}

func (p *Provider) failPending(err error) {
	p.pendingMu.Lock()
	defer p.pendingMu.Unlock()
	for id, ch := range p.pending {
		select {
		case ch <- response{err: err}:
		default:
		}
		delete(p.pending, id)
	}
}
