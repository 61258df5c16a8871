// Package asset models on-chain assets and exact amounts of them.
// Amounts are big.Int in the smallest unit; decimal.Decimal is used only at
// display and parsing boundaries.
package asset

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// AssetID identifies an asset by chain and contract address. Native coins
// have the zero address.
type AssetID struct {
	chainID uint64
	address common.Address
}

// ChainID returns the chain the asset lives on.
func (id AssetID) ChainID() uint64 { return id.chainID }

// Address returns the token contract (zero for native coins).
func (id AssetID) Address() common.Address { return id.address }

// IsNative reports whether id is a chain's native coin.
func (id AssetID) IsNative() bool { return id.address == (common.Address{}) }

func (id AssetID) String() string {
	if id.IsNative() {
		return fmt.Sprintf("chain:%d/native", id.chainID)
	}
	return fmt.Sprintf("chain:%d/%s", id.chainID, id.address.Hex())
}

// Asset is display metadata attached to an AssetID. The symbol is not
// identity.
type Asset struct {
	id       AssetID
	symbol   string
	name     string
	decimals uint8
}

func newAsset(id AssetID, symbol, name string, decimals uint8) *Asset {
	if symbol == "" {
		panic("asset: empty symbol")
	}
	if decimals > 30 {
		panic("asset: suspicious decimals (>30)")
	}
	return &Asset{id: id, symbol: symbol, name: name, decimals: decimals}
}

// NewNative describes the native coin of chainID.
func NewNative(chainID uint64, symbol, name string, decimals uint8) *Asset {
	return newAsset(AssetID{chainID: chainID}, symbol, name, decimals)
}

func (a *Asset) ID() AssetID     { return a.id }
func (a *Asset) Symbol() string  { return a.symbol }
func (a *Asset) Decimals() uint8 { return a.decimals }

// Name falls back to the symbol.
func (a *Asset) Name() string {
	if a.name == "" {
		return a.symbol
	}
	return a.name
}

func (a *Asset) String() string { return a.symbol }
