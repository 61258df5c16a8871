package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// TxRequest is a transaction for the wallet to sign and broadcast.
type TxRequest struct {
	To    *common.Address // nil deploys a contract
	Value *big.Int
	Data  []byte
	Gas   uint64 // 0 lets the wallet estimate
}

// TxArgs is the eth_sendTransaction parameter object.
type TxArgs struct {
	From  common.Address  `json:"from"`
	To    *common.Address `json:"to,omitempty"`
	Value *hexutil.Big    `json:"value,omitempty"`
	Data  hexutil.Bytes   `json:"data,omitempty"`
	Gas   *hexutil.Uint64 `json:"gas,omitempty"`
}

// Args builds the wire form of r sent from the given account.
func (r TxRequest) Args(from common.Address) TxArgs {
	args := TxArgs{From: from, To: r.To}
	if r.Value != nil && r.Value.Sign() > 0 {
		args.Value = (*hexutil.Big)(r.Value)
	}
	if len(r.Data) > 0 {
		args.Data = r.Data
	}
	if r.Gas > 0 {
		g := hexutil.Uint64(r.Gas)
		args.Gas = &g
	}
	return args
}

// ContractCall names a contract method and its arguments.
type ContractCall struct {
	Address common.Address
	ABI     abi.ABI
	Method  string
	Args    []any
}

// Pack ABI-encodes the call data.
func (c ContractCall) Pack() ([]byte, error) {
	return c.ABI.Pack(c.Method, c.Args...)
}

// Unpack decodes the method's return data.
func (c ContractCall) Unpack(data []byte) ([]any, error) {
	return c.ABI.Unpack(c.Method, data)
}
