// Package domain contains the core domain types for the wallet context.
package domain

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/fd1az/genip/internal/apperror"
)

// ConnectionState is a snapshot of the wallet connection.
type ConnectionState struct {
	IsConnected  bool
	IsConnecting bool

	// Address is nil while disconnected.
	Address *common.Address
	// ChainID is the chain last reported by the provider, nil if unknown.
	ChainID *uint64

	// Error is the human-readable text of the most recent failure, "" if none.
	Error     string
	ErrorCode apperror.Code

	// Balance is the native balance in whole units, "0" when unknown.
	Balance string

	// IsCorrectNetwork is derived when the snapshot is taken.
	IsCorrectNetwork bool
}

// DefaultBalance is reported whenever the balance is unknown.
const DefaultBalance = "0"

// EmptyState is the state at startup and after every disconnect.
func EmptyState() ConnectionState {
	return ConnectionState{Balance: DefaultBalance}
}

// AddressHex returns the checksummed address or "".
func (s ConnectionState) AddressHex() string {
	if s.Address == nil {
		return ""
	}
	return s.Address.Hex()
}

// FormatAddress shortens the active address; see FormatAddress.
func (s ConnectionState) FormatAddress(chars int) string {
	return FormatAddress(s.AddressHex(), chars)
}

// Clone returns a copy that shares no pointers with s.
func (s ConnectionState) Clone() ConnectionState {
	out := s
	if s.Address != nil {
		a := *s.Address
		out.Address = &a
	}
	if s.ChainID != nil {
		id := *s.ChainID
		out.ChainID = &id
	}
	return out
}

// Equal reports whether two snapshots carry the same values.
func (s ConnectionState) Equal(o ConnectionState) bool {
	if s.IsConnected != o.IsConnected || s.IsConnecting != o.IsConnecting ||
		s.Error != o.Error || s.ErrorCode != o.ErrorCode ||
		s.Balance != o.Balance || s.IsCorrectNetwork != o.IsCorrectNetwork {
		return false
	}
	if (s.Address == nil) != (o.Address == nil) || (s.Address != nil && *s.Address != *o.Address) {
		return false
	}
	if (s.ChainID == nil) != (o.ChainID == nil) || (s.ChainID != nil && *s.ChainID != *o.ChainID) {
		return false
	}
	return true
}
