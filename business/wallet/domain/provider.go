package domain

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// EIP-1193 provider error codes.
const (
	ProviderCodeUserRejected      = 4001
	ProviderCodeUnauthorized      = 4100
	ProviderCodeUnsupportedMethod = 4200
	ProviderCodeDisconnected      = 4900
	ProviderCodeChainDisconnected = 4901
	ProviderCodeUnrecognizedChain = 4902
)

// ProviderError is an error reported by the wallet provider.
type ProviderError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error %d: %s", e.Code, e.Message)
}

// ErrorCode lets go-ethereum style rpc.Error consumers read the code.
func (e *ProviderError) ErrorCode() int { return e.Code }

// ProviderErrorCode extracts the provider code from err, 0 if there is none.
func ProviderErrorCode(err error) int {
	var coded interface{ ErrorCode() int }
	if errors.As(err, &coded) {
		return coded.ErrorCode()
	}
	return 0
}

// EventKind identifies a provider notification.
type EventKind int

const (
	EventAccountsChanged EventKind = iota + 1
	EventChainChanged
	EventDisconnected
)

func (k EventKind) String() string {
	switch k {
	case EventAccountsChanged:
		return "accountsChanged"
	case EventChainChanged:
		return "chainChanged"
	case EventDisconnected:
		return "disconnect"
	default:
		return "unknown"
	}
}

// ProviderEvent is a notification pushed by the wallet provider.
type ProviderEvent struct {
	Kind     EventKind
	Accounts []common.Address // EventAccountsChanged
	ChainID  uint64           // EventChainChanged
	Err      error            // EventDisconnected
}

// ParseAccounts converts the provider's account strings, skipping anything
// that is not a hex address.
func ParseAccounts(raw []string) []common.Address {
	out := make([]common.Address, 0, len(raw))
	for _, a := range raw {
		if common.IsHexAddress(a) {
			out = append(out, common.HexToAddress(a))
		}
	}
	return out
}
