package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestProviderErrorCode(t *testing.T) {
	pe := &ProviderError{Code: ProviderCodeUnrecognizedChain, Message: "Unrecognized chain ID"}

	if got := ProviderErrorCode(pe); got != 4902 {
		t.Errorf("code = %d", got)
	}
	if got := ProviderErrorCode(fmt.Errorf("switch: %w", pe)); got != 4902 {
		t.Errorf("wrapped code = %d", got)
	}
	if got := ProviderErrorCode(errors.New("plain")); got != 0 {
		t.Errorf("plain code = %d", got)
	}
}

func TestParseAccounts(t *testing.T) {
	got := ParseAccounts([]string{
		"0x1234567890abcdef1234567890abcdef12345678",
		"not-an-address",
		"0xABCDEFABCDEFABCDEFABCDEFABCDEFABCDEFABCD",
	})
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0] != common.HexToAddress("0x1234567890abcdef1234567890abcdef12345678") {
		t.Errorf("got[0] = %s", got[0].Hex())
	}
}

func TestEventKind_String(t *testing.T) {
	if EventAccountsChanged.String() != "accountsChanged" || EventDisconnected.String() != "disconnect" {
		t.Error("unexpected event names")
	}
}
