package domain

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// NativeCurrency describes a chain's native token.
type NativeCurrency struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
}

// ChainDescriptor is the immutable description of the required chain.
type ChainDescriptor struct {
	ID                uint64
	Name              string
	NativeCurrency    NativeCurrency
	RPCURLs           []string
	BlockExplorerURLs []string
}

// AddChainParams is the wallet_addEthereumChain parameter object. Field
// order is part of the wire contract.
type AddChainParams struct {
	ChainID           string         `json:"chainId"`
	ChainName         string         `json:"chainName"`
	RPCURLs           []string       `json:"rpcUrls"`
	NativeCurrency    NativeCurrency `json:"nativeCurrency"`
	BlockExplorerURLs []string       `json:"blockExplorerUrls"`
}

// SwitchChainParams is the wallet_switchEthereumChain parameter object.
type SwitchChainParams struct {
	ChainID string `json:"chainId"`
}

// StoryAeneid is the Story Protocol testnet.
var StoryAeneid = ChainDescriptor{
	ID:   1315,
	Name: "Story Protocol Testnet",
	NativeCurrency: NativeCurrency{
		Name:     "IP",
		Symbol:   "IP",
		Decimals: 18,
	},
	RPCURLs:           []string{"https://aeneid.storyrpc.io/"},
	BlockExplorerURLs: []string{"https://aeneid.story.foundation/"},
}

// HexID returns the chain id as a 0x-prefixed quantity, e.g. "0x523".
func (c ChainDescriptor) HexID() string {
	return hexutil.EncodeUint64(c.ID)
}

func (c ChainDescriptor) SwitchParams() SwitchChainParams {
	return SwitchChainParams{ChainID: c.HexID()}
}

func (c ChainDescriptor) AddChainParams() AddChainParams {
	return AddChainParams{
		ChainID:           c.HexID(),
		ChainName:         c.Name,
		RPCURLs:           append([]string(nil), c.RPCURLs...),
		NativeCurrency:    c.NativeCurrency,
		BlockExplorerURLs: append([]string(nil), c.BlockExplorerURLs...),
	}
}

// ExplorerTxURL links to a transaction on the first explorer, or "".
func (c ChainDescriptor) ExplorerTxURL(hash string) string {
	if len(c.BlockExplorerURLs) == 0 {
		return ""
	}
	return strings.TrimSuffix(c.BlockExplorerURLs[0], "/") + "/tx/" + hash
}

// Validate checks the descriptor can be offered to a wallet.
func (c ChainDescriptor) Validate() error {
	switch {
	case c.ID == 0:
		return fmt.Errorf("chain id is required")
	case c.Name == "":
		return fmt.Errorf("chain name is required")
	case len(c.RPCURLs) == 0:
		return fmt.Errorf("at least one rpc url is required")
	case c.NativeCurrency.Symbol == "":
		return fmt.Errorf("native currency symbol is required")
	}
	return nil
}

// ParseChainID accepts the hex quantities wallets report ("0x523") as well
// as plain decimal strings some providers emit.
func ParseChainID(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		id, err := strconv.ParseUint(s[2:], 16, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid chain id %q: %w", s, err)
		}
		return id, nil
	}
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid chain id %q: %w", s, err)
	}
	return id, nil
}
