package app

import (
	"context"
	"encoding/json"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"

	"github.com/fd1az/genip/business/wallet/domain"
	"github.com/fd1az/genip/internal/logger"
)

// mockLogger implements logger.LoggerInterface for testing.
type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, args ...any)              {}
func (m *mockLogger) Info(ctx context.Context, msg string, args ...any)               {}
func (m *mockLogger) Warn(ctx context.Context, msg string, args ...any)               {}
func (m *mockLogger) Error(ctx context.Context, msg string, args ...any)              {}
func (m *mockLogger) Debugc(ctx context.Context, caller int, msg string, args ...any) {}
func (m *mockLogger) Infoc(ctx context.Context, caller int, msg string, args ...any)  {}
func (m *mockLogger) Warnc(ctx context.Context, caller int, msg string, args ...any)  {}
func (m *mockLogger) Errorc(ctx context.Context, caller int, msg string, args ...any) {}

var _ logger.LoggerInterface = (*mockLogger)(nil)

var (
	testAccount  = common.HexToAddress("0x1234567890abcdef1234567890abcdef12345678")
	otherAccount = common.HexToAddress("0xabcdefabcdefabcdefabcdefabcdefabcdefabcd")
)

type providerCall struct {
	method string
	params []any
}

type requestHandler func(params []any) (any, error)

// fakeProvider is a scriptable EIP-1193 provider.
type fakeProvider struct {
	mu        sync.Mutex
	available bool
	handlers  map[string]requestHandler
	calls     []providerCall

	feed event.Feed
}

func newFakeProvider() *fakeProvider {
	p := &fakeProvider{available: true, handlers: make(map[string]requestHandler)}
	p.handle("eth_requestAccounts", func([]any) (any, error) { return []string{testAccount.Hex()}, nil })
	p.handle("eth_accounts", func([]any) (any, error) { return []string{testAccount.Hex()}, nil })
	p.handle("eth_chainId", func([]any) (any, error) { return "0x523", nil })
	return p
}

func (p *fakeProvider) handle(method string, h requestHandler) {
	p.mu.Lock()
	p.handlers[method] = h
	p.mu.Unlock()
}

func (p *fakeProvider) setChain(hexID string) {
	p.handle("eth_chainId", func([]any) (any, error) { return hexID, nil })
}

func (p *fakeProvider) Available() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.available
}

func (p *fakeProvider) Request(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	p.mu.Lock()
	p.calls = append(p.calls, providerCall{method: method, params: params})
	h := p.handlers[method]
	p.mu.Unlock()

	if h == nil {
		return nil, &domain.ProviderError{Code: domain.ProviderCodeUnsupportedMethod, Message: "unsupported " + method}
	}
	v, err := h(params)
	if err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

func (p *fakeProvider) SubscribeEvents(ch chan<- domain.ProviderEvent) event.Subscription {
	return p.feed.Subscribe(ch)
}

func (p *fakeProvider) emit(ev domain.ProviderEvent) {
	p.feed.Send(ev)
}

func (p *fakeProvider) callsTo(method string) []providerCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []providerCall
	for _, c := range p.calls {
		if c.method == method {
			out = append(out, c)
		}
	}
	return out
}

func (p *fakeProvider) methods() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.calls))
	for i, c := range p.calls {
		out[i] = c.method
	}
	return out
}

// fakeReader is a scriptable ChainReader.
type fakeReader struct {
	mu       sync.Mutex
	balances map[common.Address]*big.Int
	gates    map[common.Address]chan struct{}
	receipt  *types.Receipt
	callOut  []byte
	callErr  error
	lastCall ethereum.CallMsg
	polls    int
}

func newFakeReader() *fakeReader {
	return &fakeReader{
		balances: make(map[common.Address]*big.Int),
		gates:    make(map[common.Address]chan struct{}),
	}
}

func (r *fakeReader) BalanceAt(ctx context.Context, account common.Address, _ *big.Int) (*big.Int, error) {
	r.mu.Lock()
	gate := r.gates[account]
	r.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.balances[account]; ok {
		return new(big.Int).Set(b), nil
	}
	return big.NewInt(0), nil
}

func (r *fakeReader) CallContract(ctx context.Context, call ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastCall = call
	return r.callOut, r.callErr
}

func (r *fakeReader) TransactionReceipt(ctx context.Context, _ common.Hash) (*types.Receipt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.polls++
	if r.receipt == nil {
		return nil, ethereum.NotFound
	}
	return r.receipt, nil
}

// memMarkers is an in-memory MarkerStore.
type memMarkers struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemMarkers() *memMarkers {
	return &memMarkers{data: make(map[string]string)}
}

func (m *memMarkers) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memMarkers) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memMarkers) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *memMarkers) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}

type harness struct {
	bridge   *Bridge
	provider *fakeProvider
	reader   *fakeReader
	markers  *memMarkers
}

func newHarness(t *testing.T, mutate func(cfg *BridgeConfig)) *harness {
	t.Helper()

	cfg := DefaultBridgeConfig(domain.StoryAeneid)
	cfg.SettleDelay = 10 * time.Millisecond
	cfg.ReceiptPollInterval = 10 * time.Millisecond
	if mutate != nil {
		mutate(&cfg)
	}

	h := &harness{
		provider: newFakeProvider(),
		reader:   newFakeReader(),
		markers:  newMemMarkers(),
	}

	b, err := NewBridge(cfg, h.provider, h.reader, h.markers, &mockLogger{})
	if err != nil {
		t.Fatalf("NewBridge: %v", err)
	}
	b.Start(context.Background())
	t.Cleanup(b.Close)

	h.bridge = b
	return h
}

// eventually polls cond until it holds or the deadline passes.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000_000_000_000))
}
