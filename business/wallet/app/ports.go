// Package app contains application services and port definitions for the wallet context.
package app

import (
	"context"
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"

	"github.com/fd1az/genip/business/wallet/domain"
)

// Provider is an EIP-1193 wallet provider.
type Provider interface {
	// Available reports whether a wallet is reachable at all.
	Available() bool

	// Request performs one JSON-RPC call against the wallet. Errors from the
	// wallet carry their EIP-1193 code (see domain.ProviderErrorCode).
	Request(ctx context.Context, method string, params ...any) (json.RawMessage, error)

	// SubscribeEvents delivers accountsChanged, chainChanged and disconnect
	// notifications until the subscription is cancelled.
	SubscribeEvents(ch chan<- domain.ProviderEvent) event.Subscription
}

// ChainReader is read-only access to the required chain.
type ChainReader interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)

	// TransactionReceipt returns ethereum.NotFound while the tx is pending.
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// MarkerStore persists the rehydration marker.
type MarkerStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
}
