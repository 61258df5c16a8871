package eip1193

import (
	"encoding/json"

	"github.com/fd1az/genip/business/wallet/domain"
)

const jsonrpcVersion = "2.0"

type request struct {
	Version string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

func newRequest(id uint64, method string, params []any) request {
	return request{Version: jsonrpcVersion, ID: id, Method: method, Params: params}
}

// message is any inbound frame: a response when ID is set, otherwise a
// notification.
type message struct {
	Version string                `json:"jsonrpc"`
	ID      *uint64               `json:"id,omitempty"`
	Method  string                `json:"method,omitempty"`
	Params  json.RawMessage       `json:"params,omitempty"`
	Result  json.RawMessage       `json:"result,omitempty"`
	Error   *domain.ProviderError `json:"error,omitempty"`
}

type notification struct {
	Subscription string          `json:"subscription"`
	Result       json.RawMessage `json:"result"`
}
