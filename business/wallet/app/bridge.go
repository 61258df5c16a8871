package app

import (
	"context"
	"encoding/json"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/genip/business/wallet/domain"
	"github.com/fd1az/genip/internal/apperror"
	"github.com/fd1az/genip/internal/asset"
	"github.com/fd1az/genip/internal/cache"
	"github.com/fd1az/genip/internal/logger"
)

const (
	tracerName = "github.com/fd1az/genip/business/wallet/app"
	meterName  = "github.com/fd1az/genip/business/wallet/app"
)

// BridgeConfig configures the Bridge.
type BridgeConfig struct {
	Chain domain.ChainDescriptor

	// WalletType is stored with the rehydration marker.
	WalletType string

	// SettleDelay is how long to wait after a network switch before
	// re-reading chain and accounts from the wallet.
	SettleDelay time.Duration

	ConfirmationTimeout time.Duration
	ReceiptPollInterval time.Duration
	BalanceCacheTTL     time.Duration
}

// DefaultBridgeConfig returns sensible defaults for chain.
func DefaultBridgeConfig(chain domain.ChainDescriptor) BridgeConfig {
	return BridgeConfig{
		Chain:               chain,
		WalletType:          "injected",
		SettleDelay:         500 * time.Millisecond,
		ConfirmationTimeout: 60 * time.Second,
		ReceiptPollInterval: 2 * time.Second,
		BalanceCacheTTL:     15 * time.Second,
	}
}

type bridgeMetrics struct {
	connectAttempts metric.Int64Counter
	connectFailures metric.Int64Counter
	networkSwitches metric.Int64Counter
	providerEvents  metric.Int64Counter
	staleResults    metric.Int64Counter
	opDuration      metric.Float64Histogram
}

// Bridge is the only component that talks to the wallet provider and the
// chain reader. It translates their results and notifications into Tracker
// state.
type Bridge struct {
	config   BridgeConfig
	provider Provider
	reader   ChainReader
	markers  MarkerStore
	tracker  *Tracker
	logger   logger.LoggerInterface
	native   *asset.Asset

	connecting atomic.Bool

	writerMu sync.Mutex
	writer   *walletWriter

	balances *cache.Cache[common.Address, *big.Int]

	// Lifetime of background work.
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	asyncMu sync.Mutex
	closed  bool

	startOnce sync.Once
	closeOnce sync.Once
	subMu     sync.Mutex
	sub       event.Subscription

	tracer  trace.Tracer
	metrics *bridgeMetrics
}

// NewBridge wires a Bridge. Call Start to begin processing provider events.
func NewBridge(cfg BridgeConfig, provider Provider, reader ChainReader, markers MarkerStore, log logger.LoggerInterface) (*Bridge, error) {
	if err := cfg.Chain.Validate(); err != nil {
		return nil, apperror.New(apperror.CodeConfigurationError, apperror.WithCause(err))
	}

	def := DefaultBridgeConfig(cfg.Chain)
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = def.SettleDelay
	}
	if cfg.ConfirmationTimeout <= 0 {
		cfg.ConfirmationTimeout = def.ConfirmationTimeout
	}
	if cfg.ReceiptPollInterval <= 0 {
		cfg.ReceiptPollInterval = def.ReceiptPollInterval
	}
	if cfg.BalanceCacheTTL <= 0 {
		cfg.BalanceCacheTTL = def.BalanceCacheTTL
	}
	if cfg.WalletType == "" {
		cfg.WalletType = def.WalletType
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &Bridge{
		config:   cfg,
		provider: provider,
		reader:   reader,
		markers:  markers,
		tracker:  NewTracker(cfg.Chain.ID),
		logger:   log,
		native: asset.NewNative(cfg.Chain.ID, cfg.Chain.NativeCurrency.Symbol,
			cfg.Chain.NativeCurrency.Name, cfg.Chain.NativeCurrency.Decimals),
		balances: cache.New[common.Address, *big.Int](time.Minute),
		ctx:      ctx,
		cancel:   cancel,
		tracer:   otel.Tracer(tracerName),
	}

	if err := b.initMetrics(); err != nil {
		cancel()
		b.balances.Close()
		return nil, err
	}

	return b, nil
}

func (b *Bridge) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	b.metrics = &bridgeMetrics{}

	b.metrics.connectAttempts, err = meter.Int64Counter(
		"wallet_connect_attempts_total",
		metric.WithDescription("Wallet connect handshakes started"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return err
	}

	b.metrics.connectFailures, err = meter.Int64Counter(
		"wallet_connect_failures_total",
		metric.WithDescription("Wallet connect handshakes that failed"),
		metric.WithUnit("{failure}"),
	)
	if err != nil {
		return err
	}

	b.metrics.networkSwitches, err = meter.Int64Counter(
		"wallet_network_switches_total",
		metric.WithDescription("Network switch negotiations"),
		metric.WithUnit("{switch}"),
	)
	if err != nil {
		return err
	}

	b.metrics.providerEvents, err = meter.Int64Counter(
		"wallet_provider_events_total",
		metric.WithDescription("Notifications received from the wallet provider"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return err
	}

	b.metrics.staleResults, err = meter.Int64Counter(
		"wallet_stale_results_total",
		metric.WithDescription("Background results dropped because newer state existed"),
		metric.WithUnit("{result}"),
	)
	if err != nil {
		return err
	}

	b.metrics.opDuration, err = meter.Float64Histogram(
		"wallet_operation_duration_seconds",
		metric.WithDescription("Latency of wallet operations"),
		metric.WithUnit("s"),
	)
	return err
}

// Tracker exposes the read side of the connection state.
func (b *Bridge) Tracker() *Tracker { return b.tracker }

// State is a shortcut for Tracker().Get().
func (b *Bridge) State() domain.ConnectionState { return b.tracker.Get() }

// Chain is the required chain.
func (b *Bridge) Chain() domain.ChainDescriptor { return b.config.Chain }

// Available reports whether a wallet provider is present.
func (b *Bridge) Available() bool { return b.provider.Available() }

// Start subscribes to provider events and processes them until Close.
func (b *Bridge) Start(ctx context.Context) {
	b.startOnce.Do(func() {
		events := make(chan domain.ProviderEvent, 16)

		b.subMu.Lock()
		b.sub = b.provider.SubscribeEvents(events)
		sub := b.sub
		b.subMu.Unlock()

		b.goAsync(func(context.Context) { b.eventLoop(events, sub) })

		b.logger.Info(ctx, "wallet bridge started", "chain_id", b.config.Chain.ID)
	})
}

// Close unsubscribes from the provider and waits for background work.
func (b *Bridge) Close() {
	b.closeOnce.Do(func() {
		b.subMu.Lock()
		if b.sub != nil {
			b.sub.Unsubscribe()
		}
		b.subMu.Unlock()

		b.asyncMu.Lock()
		b.closed = true
		b.asyncMu.Unlock()

		b.cancel()
		b.wg.Wait()
		b.balances.Close()
	})
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

// Connect asks the wallet for account access. It never returns an error:
// failures are recorded in the connection state. Calls made while connected
// or while another Connect is in flight are ignored.
func (b *Bridge) Connect(ctx context.Context) {
	if b.tracker.Get().IsConnected {
		return
	}
	if !b.connecting.CompareAndSwap(false, true) {
		b.logger.Debug(ctx, "connect already in flight")
		return
	}
	defer b.connecting.Store(false)

	ctx, span := b.tracer.Start(ctx, "wallet.connect")
	defer span.End()
	start := time.Now()
	defer b.observe(ctx, "connect", start)

	b.metrics.connectAttempts.Add(ctx, 1)

	if !b.provider.Available() {
		b.failConnect(ctx, span, b.tracker.generation(), apperror.New(apperror.CodeNoProvider))
		return
	}

	gen := b.tracker.generation()
	b.tracker.update(func(s *domain.ConnectionState) {
		s.IsConnecting = true
		s.Error = ""
		s.ErrorCode = ""
	})

	addr, chainID, err := b.handshake(ctx, "eth_requestAccounts")
	if err != nil {
		b.failConnect(ctx, span, gen, err)
		return
	}

	next, ok := b.tracker.advanceIf(gen, func(s *domain.ConnectionState) {
		s.IsConnected = true
		s.IsConnecting = false
		s.Address = &addr
		s.ChainID = &chainID
		s.Error = ""
		s.ErrorCode = ""
		s.Balance = domain.DefaultBalance
	})
	if !ok {
		// A disconnect or provider event won while the wallet prompt was open.
		b.metrics.staleResults.Add(ctx, 1, metric.WithAttributes(attribute.String("op", "connect")))
		span.AddEvent("superseded")
		b.logger.Info(ctx, "connect superseded", "address", addr.Hex())
		return
	}

	b.invalidateWriter()
	b.saveMarker(ctx)
	b.refreshBalance(next, addr)

	span.SetAttributes(
		attribute.String("address", addr.Hex()),
		attribute.Int64("chain_id", int64(chainID)),
	)
	span.SetStatus(codes.Ok, "connected")
	b.logger.Info(ctx, "wallet connected",
		"address", addr.Hex(),
		"chain_id", chainID,
		"correct_network", chainID == b.config.Chain.ID)
}

// handshake reads the first account with accountsMethod and the current chain.
func (b *Bridge) handshake(ctx context.Context, accountsMethod string) (common.Address, uint64, error) {
	var raw []string
	if err := b.call(ctx, accountsMethod, &raw); err != nil {
		if domain.ProviderErrorCode(err) == domain.ProviderCodeUserRejected {
			return common.Address{}, 0, apperror.New(apperror.CodeUserRejected,
				apperror.WithContext(accountsMethod), apperror.WithCause(err))
		}
		return common.Address{}, 0, apperror.External(apperror.CodeConnectionFailed, accountsMethod, err)
	}

	accounts := domain.ParseAccounts(raw)
	if len(accounts) == 0 {
		return common.Address{}, 0, apperror.New(apperror.CodeNoAccounts, apperror.WithContext(accountsMethod))
	}

	chainID, err := b.chainID(ctx)
	if err != nil {
		return common.Address{}, 0, apperror.External(apperror.CodeConnectionFailed, "eth_chainId", err)
	}

	return accounts[0], chainID, nil
}

func (b *Bridge) failConnect(ctx context.Context, span trace.Span, gen uint64, err error) {
	code := apperror.GetCode(err)
	msg := apperror.Message(code)

	span.RecordError(err)
	span.SetStatus(codes.Error, string(code))
	b.metrics.connectFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("code", string(code))))

	applied := b.tracker.updateIf(gen, func(s *domain.ConnectionState) {
		s.IsConnecting = false
		s.Error = msg
		s.ErrorCode = code
	})
	if !applied {
		b.metrics.staleResults.Add(ctx, 1, metric.WithAttributes(attribute.String("op", "connect")))
	}

	b.logger.Warn(ctx, "wallet connect failed", append([]any{"applied", applied}, logFields(err)...)...)
}

// Disconnect tears the local session down. The wallet is not contacted.
func (b *Bridge) Disconnect(ctx context.Context) {
	ctx, span := b.tracer.Start(ctx, "wallet.disconnect")
	defer span.End()

	b.tracker.advance(func(s *domain.ConnectionState) {
		*s = domain.EmptyState()
	})
	if err := b.clearSession(ctx); err != nil {
		span.RecordError(err)
	}

	b.logger.Info(ctx, "wallet disconnected")
}

// clearSession drops everything tied to the previous connection.
func (b *Bridge) clearSession(ctx context.Context) error {
	b.balances.Clear()
	b.invalidateWriter()

	if err := b.markers.Delete(ctx, domain.MarkerConnected, domain.MarkerWalletType); err != nil {
		b.logger.Warn(ctx, "failed to clear session marker", logFields(err)...)
		return err
	}
	return nil
}

// Rehydrate restores a previous session without prompting the user. It is
// best effort: when the wallet no longer reports an account the marker is
// discarded and the state stays disconnected.
func (b *Bridge) Rehydrate(ctx context.Context) {
	if !b.provider.Available() {
		return
	}

	ctx, span := b.tracer.Start(ctx, "wallet.rehydrate")
	defer span.End()

	val, ok, err := b.markers.Get(ctx, domain.MarkerConnected)
	if err != nil {
		span.RecordError(err)
		b.logger.Warn(ctx, "failed to read session marker", logFields(err)...)
		return
	}
	if !ok || val != domain.MarkerTrue {
		return
	}

	if b.tracker.Get().IsConnected || !b.connecting.CompareAndSwap(false, true) {
		return
	}
	defer b.connecting.Store(false)

	gen := b.tracker.generation()
	addr, chainID, err := b.handshake(ctx, "eth_accounts")
	if err != nil {
		span.RecordError(err)
		b.logger.Info(ctx, "previous wallet session not restored", logFields(err)...)
		if err := b.markers.Delete(ctx, domain.MarkerConnected); err != nil {
			b.logger.Warn(ctx, "failed to clear session marker", logFields(err)...)
		}
		return
	}

	next, ok := b.tracker.advanceIf(gen, func(s *domain.ConnectionState) {
		s.IsConnected = true
		s.IsConnecting = false
		s.Address = &addr
		s.ChainID = &chainID
		s.Error = ""
		s.ErrorCode = ""
		s.Balance = domain.DefaultBalance
	})
	if !ok {
		b.metrics.staleResults.Add(ctx, 1, metric.WithAttributes(attribute.String("op", "rehydrate")))
		return
	}

	b.invalidateWriter()
	b.refreshBalance(next, addr)
	b.logger.Info(ctx, "wallet session restored", "address", addr.Hex(), "chain_id", chainID)
}

func (b *Bridge) saveMarker(ctx context.Context) {
	if err := b.markers.Set(ctx, domain.MarkerConnected, domain.MarkerTrue); err != nil {
		b.logger.Warn(ctx, "failed to save session marker", logFields(err)...)
		return
	}
	if err := b.markers.Set(ctx, domain.MarkerWalletType, b.config.WalletType); err != nil {
		b.logger.Warn(ctx, "failed to save wallet type", logFields(err)...)
	}
}

// ---------------------------------------------------------------------------
// Network negotiation
// ---------------------------------------------------------------------------

// SwitchNetwork asks the wallet to move to the required chain, offering the
// chain definition once if the wallet does not know it. Failures are recorded
// in the state and leave ChainID untouched.
func (b *Bridge) SwitchNetwork(ctx context.Context) {
	ctx, span := b.tracer.Start(ctx, "wallet.switch_network",
		trace.WithAttributes(attribute.Int64("chain_id", int64(b.config.Chain.ID))))
	defer span.End()
	start := time.Now()
	defer b.observe(ctx, "switch_network", start)

	if !b.provider.Available() {
		b.failSwitch(ctx, span, apperror.New(apperror.CodeNetworkSwitchFailed,
			apperror.WithCause(apperror.New(apperror.CodeNoProvider))))
		return
	}

	b.tracker.update(func(s *domain.ConnectionState) {
		s.Error = ""
		s.ErrorCode = ""
	})
	defer b.scheduleResync()

	err := b.call(ctx, "wallet_switchEthereumChain", nil, b.config.Chain.SwitchParams())
	if err != nil && domain.ProviderErrorCode(err) == domain.ProviderCodeUnrecognizedChain {
		span.AddEvent("add_chain")
		b.logger.Info(ctx, "wallet does not know the chain, adding it", "chain_id", b.config.Chain.ID)

		if addErr := b.call(ctx, "wallet_addEthereumChain", nil, b.config.Chain.AddChainParams()); addErr != nil {
			b.failSwitch(ctx, span, b.negotiationError(apperror.CodeNetworkAddFailed, "wallet_addEthereumChain", addErr))
			return
		}
		err = b.call(ctx, "wallet_switchEthereumChain", nil, b.config.Chain.SwitchParams())
	}
	if err != nil {
		b.failSwitch(ctx, span, b.negotiationError(apperror.CodeNetworkSwitchFailed, "wallet_switchEthereumChain", err))
		return
	}

	b.metrics.networkSwitches.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "ok")))
	span.SetStatus(codes.Ok, "switched")
	b.applyChain(ctx, b.config.Chain.ID)
	b.logger.Info(ctx, "network switched", "chain_id", b.config.Chain.ID)
}

// negotiationError keeps the switch or add wording, naming the configured
// chain, even when the user rejected the prompt.
func (b *Bridge) negotiationError(code apperror.Code, method string, err error) *apperror.AppError {
	msg := apperror.Message(code)
	switch code {
	case apperror.CodeNetworkSwitchFailed:
		msg = "Failed to switch to " + b.config.Chain.Name
	case apperror.CodeNetworkAddFailed:
		msg = "Failed to add " + b.config.Chain.Name
	}

	if domain.ProviderErrorCode(err) == domain.ProviderCodeUserRejected {
		code = apperror.CodeUserRejected
	}
	return apperror.New(code,
		apperror.WithMessage(msg),
		apperror.WithContext(method),
		apperror.WithCause(err))
}

func (b *Bridge) failSwitch(ctx context.Context, span trace.Span, err *apperror.AppError) {
	span.RecordError(err)
	span.SetStatus(codes.Error, string(err.Code))
	b.metrics.networkSwitches.Add(ctx, 1, metric.WithAttributes(attribute.String("result", string(err.Code))))

	b.tracker.update(func(s *domain.ConnectionState) {
		s.Error = err.Message
		s.ErrorCode = err.Code
	})
	b.logger.Warn(ctx, "network switch failed", logFields(err)...)
}

// scheduleResync re-reads chain and accounts once the wallet has had time to
// emit its own change events.
func (b *Bridge) scheduleResync() {
	b.goAsync(func(ctx context.Context) {
		timer := time.NewTimer(b.config.SettleDelay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		b.resync(ctx)
	})
}

func (b *Bridge) resync(ctx context.Context) {
	ctx, span := b.tracer.Start(ctx, "wallet.resync")
	defer span.End()

	gen := b.tracker.generation()
	if !b.tracker.Get().IsConnected {
		return
	}

	chainID, err := b.chainID(ctx)
	if err != nil {
		span.RecordError(err)
		b.logger.Debug(ctx, "resync chain query failed", logFields(err)...)
		return
	}
	var raw []string
	if err := b.call(ctx, "eth_accounts", &raw); err != nil {
		span.RecordError(err)
		b.logger.Debug(ctx, "resync accounts query failed", logFields(err)...)
		return
	}
	accounts := domain.ParseAccounts(raw)

	if len(accounts) == 0 {
		// Same as accountsChanged([]): the wallet locked or revoked access.
		if _, ok := b.tracker.advanceIf(gen, func(s *domain.ConnectionState) {
			*s = domain.EmptyState()
		}); !ok {
			b.metrics.staleResults.Add(ctx, 1, metric.WithAttributes(attribute.String("op", "resync")))
			return
		}
		span.AddEvent("no_accounts")
		b.clearSession(ctx)
		b.logger.Info(ctx, "wallet reported no accounts after network switch")
		return
	}

	next, ok := b.tracker.advanceIf(gen, func(s *domain.ConnectionState) {
		if !s.IsConnected {
			return
		}
		s.ChainID = &chainID
		if s.Address == nil || *s.Address != accounts[0] {
			a := accounts[0]
			s.Address = &a
			s.Balance = domain.DefaultBalance
		}
	})
	if !ok {
		b.metrics.staleResults.Add(ctx, 1, metric.WithAttributes(attribute.String("op", "resync")))
		return
	}

	st := b.tracker.Get()
	if st.IsConnected && st.Address != nil {
		b.invalidateWriter()
		b.refreshBalance(next, *st.Address)
	}
}

// applyChain records a chain change for a connected session.
func (b *Bridge) applyChain(ctx context.Context, chainID uint64) {
	st := b.tracker.Get()
	if !st.IsConnected || (st.ChainID != nil && *st.ChainID == chainID) {
		return
	}

	var addr common.Address
	gen := b.tracker.advance(func(s *domain.ConnectionState) {
		s.ChainID = &chainID
		if s.Address != nil {
			addr = *s.Address
		}
	})
	b.invalidateWriter()
	b.refreshBalance(gen, addr)

	b.logger.Debug(ctx, "chain changed", "chain_id", chainID, "correct_network", chainID == b.config.Chain.ID)
}

// ---------------------------------------------------------------------------
// Provider events
// ---------------------------------------------------------------------------

func (b *Bridge) eventLoop(events <-chan domain.ProviderEvent, sub event.Subscription) {
	for {
		select {
		case <-b.ctx.Done():
			return
		case err, ok := <-sub.Err():
			if ok && err != nil {
				b.logger.Error(b.ctx, "provider event subscription failed", apperror.Wrap(err, apperror.CodeProviderRequestFailed, "events").ToLog()...)
			}
			return
		case ev := <-events:
			b.handleEvent(b.ctx, ev)
		}
	}
}

func (b *Bridge) handleEvent(ctx context.Context, ev domain.ProviderEvent) {
	ctx, span := b.tracer.Start(ctx, "wallet.provider_event",
		trace.WithAttributes(attribute.String("kind", ev.Kind.String())))
	defer span.End()

	b.metrics.providerEvents.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", ev.Kind.String())))

	switch ev.Kind {
	case domain.EventAccountsChanged:
		if len(ev.Accounts) == 0 {
			b.logger.Info(ctx, "wallet reported no accounts")
			b.Disconnect(ctx)
			return
		}
		b.applyAccount(ctx, ev.Accounts[0])

	case domain.EventChainChanged:
		b.applyChain(ctx, ev.ChainID)

	case domain.EventDisconnected:
		if ev.Err != nil {
			b.logger.Info(ctx, "wallet provider disconnected", logFields(ev.Err)...)
		}
		b.Disconnect(ctx)
	}
}

func (b *Bridge) applyAccount(ctx context.Context, addr common.Address) {
	st := b.tracker.Get()
	if !st.IsConnected || (st.Address != nil && *st.Address == addr) {
		return
	}

	gen := b.tracker.advance(func(s *domain.ConnectionState) {
		s.Address = &addr
		s.Balance = domain.DefaultBalance
	})
	if st.Address != nil {
		b.balances.Delete(ctx, *st.Address)
	}
	b.invalidateWriter()
	b.refreshBalance(gen, addr)

	// The wallet may have moved chains together with the account.
	b.goAsync(func(ctx context.Context) {
		chainID, err := b.chainID(ctx)
		if err != nil {
			b.logger.Debug(ctx, "chain query after account change failed", logFields(err)...)
			return
		}
		if st := b.tracker.Get(); st.ChainID != nil && *st.ChainID == chainID {
			return
		}
		next, ok := b.tracker.advanceIf(gen, func(s *domain.ConnectionState) {
			s.ChainID = &chainID
		})
		if !ok {
			b.metrics.staleResults.Add(ctx, 1, metric.WithAttributes(attribute.String("op", "account_chain")))
			return
		}
		b.invalidateWriter()
		b.refreshBalance(next, addr)
	})

	b.logger.Info(ctx, "wallet account changed", "address", addr.Hex())
}

// ---------------------------------------------------------------------------
// Balance
// ---------------------------------------------------------------------------

// refreshBalance fetches addr's balance in the background and stores it only
// if no newer generation exists by then.
func (b *Bridge) refreshBalance(gen uint64, addr common.Address) {
	b.goAsync(func(ctx context.Context) {
		ctx, span := b.tracer.Start(ctx, "wallet.refresh_balance",
			trace.WithAttributes(attribute.String("address", addr.Hex())))
		defer span.End()

		wei, err := b.fetchBalance(ctx, addr)
		formatted := domain.DefaultBalance
		if err != nil {
			span.RecordError(err)
			b.logger.Warn(ctx, "failed to fetch balance", logFields(err)...)
		} else {
			formatted = b.FormatBalance(wei)
		}

		if !b.tracker.updateIf(gen, func(s *domain.ConnectionState) {
			s.Balance = formatted
		}) {
			b.metrics.staleResults.Add(ctx, 1, metric.WithAttributes(attribute.String("op", "balance")))
			span.AddEvent("stale")
		}
	})
}

func (b *Bridge) fetchBalance(ctx context.Context, addr common.Address) (*big.Int, error) {
	wei, err := b.reader.BalanceAt(ctx, addr, nil)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeChainRPCError, "balance")
	}
	b.balances.Set(ctx, addr, wei, b.config.BalanceCacheTTL)
	return wei, nil
}

// Balance returns the native balance of the connected account in wei.
func (b *Bridge) Balance(ctx context.Context) (*big.Int, error) {
	st := b.tracker.Get()
	if !st.IsConnected || st.Address == nil {
		return nil, apperror.New(apperror.CodeNotConnected)
	}
	if wei, ok := b.balances.Get(ctx, *st.Address); ok {
		return new(big.Int).Set(wei), nil
	}
	wei, err := b.fetchBalance(ctx, *st.Address)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(wei), nil
}

// FormatBalance renders wei in whole native units, e.g. "1.5".
func (b *Bridge) FormatBalance(wei *big.Int) string {
	if wei == nil || wei.Sign() <= 0 {
		return domain.DefaultBalance
	}
	return asset.NewAmount(b.native, wei).ToDecimal().String()
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func (b *Bridge) call(ctx context.Context, method string, out any, params ...any) error {
	raw, err := b.provider.Request(ctx, method, params...)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return apperror.New(apperror.CodeProviderRequestFailed,
			apperror.WithContext(method+": unexpected result"),
			apperror.WithCause(err))
	}
	return nil
}

func (b *Bridge) chainID(ctx context.Context) (uint64, error) {
	var hexID string
	if err := b.call(ctx, "eth_chainId", &hexID); err != nil {
		return 0, err
	}
	id, err := domain.ParseChainID(hexID)
	if err != nil {
		return 0, apperror.New(apperror.CodeProviderRequestFailed, apperror.WithContext("eth_chainId"), apperror.WithCause(err))
	}
	return id, nil
}

// goAsync runs fn on a goroutine bound to the Bridge lifetime. It reports
// false once the Bridge is closed.
func (b *Bridge) goAsync(fn func(ctx context.Context)) bool {
	b.asyncMu.Lock()
	defer b.asyncMu.Unlock()
	if b.closed {
		return false
	}
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		fn(b.ctx)
	}()
	return true
}

func (b *Bridge) observe(ctx context.Context, op string, start time.Time) {
	b.metrics.opDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("op", op)))
}

func logFields(err error) []any {
	return []any{"code", apperror.GetCode(err), "error", err.Error()}
}
