// Package chain provides the read-only chain client used for balances,
// contract queries and receipts.
package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/genip/business/wallet/app"
	"github.com/fd1az/genip/internal/apperror"
	"github.com/fd1az/genip/internal/circuitbreaker"
	"github.com/fd1az/genip/internal/httpclient"
	"github.com/fd1az/genip/internal/logger"
)

const (
	tracerName = "github.com/fd1az/genip/business/wallet/infra/chain"
	meterName  = "github.com/fd1az/genip/business/wallet/infra/chain"
)

// Config holds configuration for the chain reader.
type Config struct {
	// RPCURLs are tried in order; later entries serve as fallbacks.
	RPCURLs []string
	ChainID uint64

	RequestTimeout  time.Duration
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig(chainID uint64, urls ...string) Config {
	return Config{
		RPCURLs:         urls,
		ChainID:         chainID,
		RequestTimeout:  10 * time.Second,
		BreakerFailures: 5,
		BreakerTimeout:  30 * time.Second,
	}
}

type readerMetrics struct {
	calls     metric.Int64Counter
	fallbacks metric.Int64Counter
	latency   metric.Float64Histogram
}

type endpoint struct {
	url     string
	rpc     *rpc.Client
	client  *ethclient.Client
	breaker *circuitbreaker.CircuitBreaker[any]
}

// Reader implements app.ChainReader over one or more JSON-RPC endpoints.
type Reader struct {
	config    Config
	logger    logger.LoggerInterface
	endpoints []*endpoint

	tracer  trace.Tracer
	metrics *readerMetrics
}

var _ app.ChainReader = (*Reader)(nil)

// NewReader dials every configured endpoint. HTTP endpoints share an
// instrumented client; dialing does not contact the node.
func NewReader(ctx context.Context, cfg Config, log logger.LoggerInterface) (*Reader, error) {
	if len(cfg.RPCURLs) == 0 {
		return nil, apperror.New(apperror.CodeConfigurationError, apperror.WithContext("no chain rpc url"))
	}
	def := DefaultConfig(cfg.ChainID)
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = def.RequestTimeout
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = def.BreakerFailures
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = def.BreakerTimeout
	}

	hc, err := httpclient.New(
		httpclient.WithName("chain-rpc"),
		httpclient.WithTimeout(cfg.RequestTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("http client: %w", err)
	}

	r := &Reader{
		config: cfg,
		logger: log,
		tracer: otel.Tracer(tracerName),
	}
	if err := r.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	for i, url := range cfg.RPCURLs {
		ep, err := r.dial(ctx, i, url, hc)
		if err != nil {
			r.Close()
			return nil, err
		}
		r.endpoints = append(r.endpoints, ep)
	}

	return r, nil
}

func (r *Reader) dial(ctx context.Context, i int, url string, hc *http.Client) (*endpoint, error) {
	rc, err := rpc.DialOptions(ctx, url, rpc.WithHTTPClient(hc))
	if err != nil {
		return nil, apperror.External(apperror.CodeChainRPCError, "dial "+url, err)
	}

	cbCfg := circuitbreaker.DefaultConfig(fmt.Sprintf("chain-rpc-%d", i))
	cbCfg.ConsecutiveFailures = r.config.BreakerFailures
	cbCfg.Timeout = r.config.BreakerTimeout
	cbCfg.IsSuccessful = func(err error) bool { return !isTransportError(err) }
	cbCfg.OnStateChange = func(name string, from, to gobreaker.State) {
		r.logger.Info(context.Background(), "circuit breaker state change",
			"breaker", name, "url", url, "from", from.String(), "to", to.String())
	}

	return &endpoint{
		url:     url,
		rpc:     rc,
		client:  ethclient.NewClient(rc),
		breaker: circuitbreaker.New[any](cbCfg),
	}, nil
}

func (r *Reader) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	r.metrics = &readerMetrics{}

	r.metrics.calls, err = meter.Int64Counter(
		"chain_rpc_calls_total",
		metric.WithDescription("Chain RPC calls by operation and outcome"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return err
	}

	r.metrics.fallbacks, err = meter.Int64Counter(
		"chain_rpc_fallbacks_total",
		metric.WithDescription("Calls retried on a fallback endpoint"),
		metric.WithUnit("{fallback}"),
	)
	if err != nil {
		return err
	}

	r.metrics.latency, err = meter.Float64Histogram(
		"chain_rpc_duration_seconds",
		metric.WithDescription("Chain RPC call latency"),
		metric.WithUnit("s"),
	)
	return err
}

// BalanceAt returns the wei balance of account at block (nil = latest).
func (r *Reader) BalanceAt(ctx context.Context, account common.Address, block *big.Int) (*big.Int, error) {
	return call(ctx, r, "eth_getBalance", func(ctx context.Context, c *ethclient.Client) (*big.Int, error) {
		return c.BalanceAt(ctx, account, block)
	})
}

// CallContract executes a read-only call.
func (r *Reader) CallContract(ctx context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error) {
	return call(ctx, r, "eth_call", func(ctx context.Context, c *ethclient.Client) ([]byte, error) {
		return c.CallContract(ctx, msg, block)
	})
}

// TransactionReceipt returns ethereum.NotFound while the transaction is
// pending.
func (r *Reader) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	return call(ctx, r, "eth_getTransactionReceipt", func(ctx context.Context, c *ethclient.Client) (*types.Receipt, error) {
		return c.TransactionReceipt(ctx, hash)
	})
}

// ChainID asks the node for its chain id.
func (r *Reader) ChainID(ctx context.Context) (uint64, error) {
	id, err := call(ctx, r, "eth_chainId", func(ctx context.Context, c *ethclient.Client) (*big.Int, error) {
		return c.ChainID(ctx)
	})
	if err != nil {
		return 0, err
	}
	return id.Uint64(), nil
}

// Ping verifies the node answers and serves the configured chain.
func (r *Reader) Ping(ctx context.Context) error {
	id, err := r.ChainID(ctx)
	if err != nil {
		return err
	}
	if id != r.config.ChainID {
		return apperror.New(apperror.CodeChainRPCError,
			apperror.WithContext(fmt.Sprintf("node serves chain %d, want %d", id, r.config.ChainID)))
	}
	return nil
}

// Close releases all endpoint connections.
func (r *Reader) Close() {
	for _, ep := range r.endpoints {
		ep.rpc.Close()
	}
}

// call runs fn against each endpoint in order until one answers. Answers
// that come from the node, including JSON-RPC errors and NotFound, are
// final; only transport failures move on to the next endpoint.
func call[T any](ctx context.Context, r *Reader, op string, fn func(ctx context.Context, c *ethclient.Client) (T, error)) (T, error) {
	ctx, span := r.tracer.Start(ctx, "chain."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("rpc.method", op)))
	defer span.End()
	start := time.Now()

	var zero T
	var lastErr error

	for i, ep := range r.endpoints {
		if i > 0 {
			r.metrics.fallbacks.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
			r.logger.Debug(ctx, "trying fallback rpc endpoint", "op", op, "url", ep.url)
		}

		res, err := ep.breaker.Execute(func() (any, error) {
			return fn(ctx, ep.client)
		})
		if err == nil {
			r.record(ctx, op, "ok", start)
			span.SetAttributes(attribute.String("rpc.endpoint", ep.url))
			span.SetStatus(codes.Ok, "")
			v, _ := res.(T)
			return v, nil
		}

		if errors.Is(err, ethereum.NotFound) {
			r.record(ctx, op, "not_found", start)
			return zero, ethereum.NotFound
		}
		if ctx.Err() != nil {
			r.record(ctx, op, "canceled", start)
			span.RecordError(err)
			return zero, ctx.Err()
		}

		lastErr = err
		if !isTransportError(err) && !apperror.IsAppError(err) {
			break
		}
	}

	r.record(ctx, op, "error", start)
	span.RecordError(lastErr)
	span.SetStatus(codes.Error, lastErr.Error())

	if apperror.IsAppError(lastErr) {
		return zero, lastErr
	}
	return zero, apperror.External(apperror.CodeChainRPCError, op, lastErr)
}

func (r *Reader) record(ctx context.Context, op, outcome string, start time.Time) {
	attrs := metric.WithAttributes(attribute.String("op", op), attribute.String("outcome", outcome))
	r.metrics.calls.Add(ctx, 1, attrs)
	r.metrics.latency.Record(ctx, time.Since(start).Seconds(), attrs)
}

// isTransportError reports failures of the endpoint itself, as opposed to
// answers the node gave.
func isTransportError(err error) bool {
	if err == nil || errors.Is(err, ethereum.NotFound) {
		return false
	}
	var rpcErr rpc.Error
	return !errors.As(err, &rpcErr)
}
