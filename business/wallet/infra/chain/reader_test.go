package chain

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/fd1az/genip/internal/apperror"
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

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcHandler func(params []json.RawMessage) (any, *rpcError)

// rpcServer is a minimal JSON-RPC node.
func rpcServer(t *testing.T, handlers map[string]rpcHandler) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		var req struct {
			ID     json.RawMessage   `json:"id"`
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
		if h, ok := handlers[req.Method]; ok {
			result, rerr := h(req.Params)
			if rerr != nil {
				resp["error"] = rerr
			} else {
				resp["result"] = result
			}
		} else {
			resp["error"] = rpcError{Code: -32601, Message: "method not found"}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func brokenServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func newTestReader(t *testing.T, mutate func(*Config), urls ...string) *Reader {
	t.Helper()
	cfg := DefaultConfig(1315, urls...)
	cfg.RequestTimeout = 2 * time.Second
	if mutate != nil {
		mutate(&cfg)
	}
	r, err := NewReader(context.Background(), cfg, &mockLogger{})
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	t.Cleanup(r.Close)
	return r
}

var testAccount = common.HexToAddress("0x1234567890abcdef1234567890abcdef12345678")

func receiptJSON(status string) map[string]any {
	return map[string]any{
		"type":              "0x2",
		"status":            status,
		"cumulativeGasUsed": "0x5208",
		"logsBloom":         "0x" + strings.Repeat("0", 512),
		"logs":              []any{},
		"transactionHash":   common.Hash{1}.Hex(),
		"gasUsed":           "0x5208",
		"effectiveGasPrice": "0x1",
		"blockHash":         common.Hash{2}.Hex(),
		"blockNumber":       "0x10",
		"transactionIndex":  "0x0",
		"contractAddress":   nil,
	}
}

func TestNewReader_RequiresURL(t *testing.T) {
	_, err := NewReader(context.Background(), DefaultConfig(1315), &mockLogger{})
	if apperror.GetCode(err) != apperror.CodeConfigurationError {
		t.Errorf("expected %s, got %v", apperror.CodeConfigurationError, err)
	}
}

func TestReader_BalanceAt(t *testing.T) {
	srv, _ := rpcServer(t, map[string]rpcHandler{
		"eth_getBalance": func(params []json.RawMessage) (any, *rpcError) {
			var addr string
			_ = json.Unmarshal(params[0], &addr)
			if !strings.EqualFold(addr, testAccount.Hex()) {
				return nil, &rpcError{Code: -32602, Message: "unexpected address " + addr}
			}
			return "0xde0b6b3a7640000", nil
		},
	})
	r := newTestReader(t, nil, srv.URL)

	wei, err := r.BalanceAt(context.Background(), testAccount, nil)
	if err != nil {
		t.Fatalf("BalanceAt: %v", err)
	}
	if wei.Cmp(big.NewInt(1_000_000_000_000_000_000)) != 0 {
		t.Errorf("expected 1e18, got %s", wei)
	}
}

func TestReader_TransactionReceipt(t *testing.T) {
	var mined atomic.Bool
	srv, _ := rpcServer(t, map[string]rpcHandler{
		"eth_getTransactionReceipt": func([]json.RawMessage) (any, *rpcError) {
			if !mined.Load() {
				return nil, nil
			}
			return receiptJSON("0x1"), nil
		},
	})
	r := newTestReader(t, nil, srv.URL)

	_, err := r.TransactionReceipt(context.Background(), common.Hash{1})
	if !errors.Is(err, ethereum.NotFound) {
		t.Fatalf("expected ethereum.NotFound while pending, got %v", err)
	}

	mined.Store(true)
	receipt, err := r.TransactionReceipt(context.Background(), common.Hash{1})
	if err != nil {
		t.Fatalf("TransactionReceipt: %v", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		t.Errorf("expected success status, got %d", receipt.Status)
	}
	if receipt.BlockNumber.Int64() != 16 {
		t.Errorf("expected block 16, got %s", receipt.BlockNumber)
	}
}

func TestReader_NotFoundDoesNotTripBreaker(t *testing.T) {
	srv, hits := rpcServer(t, map[string]rpcHandler{
		"eth_getTransactionReceipt": func([]json.RawMessage) (any, *rpcError) { return nil, nil },
	})
	r := newTestReader(t, func(c *Config) { c.BreakerFailures = 2 }, srv.URL)

	for i := 0; i < 5; i++ {
		if _, err := r.TransactionReceipt(context.Background(), common.Hash{1}); !errors.Is(err, ethereum.NotFound) {
			t.Fatalf("poll %d: expected NotFound, got %v", i, err)
		}
	}
	if hits.Load() != 5 {
		t.Errorf("expected every poll to reach the node, got %d", hits.Load())
	}
}

func TestReader_CallContract(t *testing.T) {
	srv, _ := rpcServer(t, map[string]rpcHandler{
		"eth_call": func(params []json.RawMessage) (any, *rpcError) {
			var msg map[string]any
			_ = json.Unmarshal(params[0], &msg)
			if msg["input"] == nil && msg["data"] == nil {
				return nil, &rpcError{Code: -32602, Message: "missing call data"}
			}
			return "0x000000000000000000000000000000000000000000000000000000000000002a", nil
		},
	})
	r := newTestReader(t, nil, srv.URL)

	to := common.HexToAddress("0xaa")
	out, err := r.CallContract(context.Background(), ethereum.CallMsg{From: testAccount, To: &to, Data: []byte{0x70, 0xa0, 0x82, 0x31}}, nil)
	if err != nil {
		t.Fatalf("CallContract: %v", err)
	}
	if new(big.Int).SetBytes(out).Int64() != 42 {
		t.Errorf("expected 42, got %x", out)
	}
}

func TestReader_NodeErrorsAreFinal(t *testing.T) {
	primary, primaryHits := rpcServer(t, map[string]rpcHandler{
		"eth_call": func([]json.RawMessage) (any, *rpcError) {
			return nil, &rpcError{Code: 3, Message: "execution reverted"}
		},
	})
	fallback, fallbackHits := rpcServer(t, nil)
	r := newTestReader(t, nil, primary.URL, fallback.URL)

	_, err := r.CallContract(context.Background(), ethereum.CallMsg{}, nil)
	if apperror.GetCode(err) != apperror.CodeChainRPCError {
		t.Errorf("expected %s, got %v", apperror.CodeChainRPCError, err)
	}
	if !strings.Contains(err.Error(), "execution reverted") {
		t.Errorf("expected node message in error, got %v", err)
	}
	if primaryHits.Load() != 1 || fallbackHits.Load() != 0 {
		t.Errorf("expected no fallback for node errors, hits %d/%d", primaryHits.Load(), fallbackHits.Load())
	}
}

func TestReader_FallsBackOnTransportFailure(t *testing.T) {
	broken, brokenHits := brokenServer(t)
	healthy, _ := rpcServer(t, map[string]rpcHandler{
		"eth_chainId": func([]json.RawMessage) (any, *rpcError) { return "0x523", nil },
	})
	r := newTestReader(t, nil, broken.URL, healthy.URL)

	id, err := r.ChainID(context.Background())
	if err != nil {
		t.Fatalf("ChainID: %v", err)
	}
	if id != 1315 {
		t.Errorf("expected 1315, got %d", id)
	}
	if brokenHits.Load() != 1 {
		t.Errorf("expected primary tried once, got %d", brokenHits.Load())
	}
}

func TestReader_CircuitOpens(t *testing.T) {
	broken, hits := brokenServer(t)
	r := newTestReader(t, func(c *Config) {
		c.BreakerFailures = 2
		c.BreakerTimeout = time.Minute
	}, broken.URL)

	for i := 0; i < 2; i++ {
		_, err := r.BalanceAt(context.Background(), testAccount, nil)
		if apperror.GetCode(err) != apperror.CodeChainRPCError {
			t.Fatalf("call %d: expected %s, got %v", i, apperror.CodeChainRPCError, err)
		}
	}

	_, err := r.BalanceAt(context.Background(), testAccount, nil)
	if apperror.GetCode(err) != apperror.CodeCircuitOpen {
		t.Errorf("expected %s, got %v", apperror.CodeCircuitOpen, err)
	}
	if hits.Load() != 2 {
		t.Errorf("expected open breaker to stop calls, got %d hits", hits.Load())
	}
}

func TestReader_Ping(t *testing.T) {
	tests := []struct {
		name    string
		chainID string
		wantErr bool
	}{
		{"required chain", "0x523", false},
		{"other chain", "0x1", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := rpcServer(t, map[string]rpcHandler{
				"eth_chainId": func([]json.RawMessage) (any, *rpcError) { return tt.chainID, nil },
			})
			r := newTestReader(t, nil, srv.URL)

			err := r.Ping(context.Background())
			if (err != nil) != tt.wantErr {
				t.Errorf("Ping() err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
