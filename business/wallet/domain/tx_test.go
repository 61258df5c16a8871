package domain

import (
	"encoding/json"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

func TestTxRequest_Args(t *testing.T) {
	from := common.HexToAddress("0x1111111111111111111111111111111111111111")
	to := common.HexToAddress("0x2222222222222222222222222222222222222222")

	args := TxRequest{To: &to, Value: big.NewInt(1_000_000_000_000_000_000), Data: []byte{0xde, 0xad}}.Args(from)
	data, err := json.Marshal(args)
	if err != nil {
		t.Fatal(err)
	}

	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatal(err)
	}
	if m["value"] != "0xde0b6b3a7640000" {
		t.Errorf("value = %v", m["value"])
	}
	if m["data"] != "0xdead" {
		t.Errorf("data = %v", m["data"])
	}
	if _, ok := m["gas"]; ok {
		t.Error("gas should be omitted when zero")
	}
}

func TestTxRequest_ArgsOmitsEmpty(t *testing.T) {
	data, _ := json.Marshal(TxRequest{}.Args(common.Address{}))
	s := string(data)
	for _, k := range []string{"to", "value", "data", "gas"} {
		if strings.Contains(s, `"`+k+`"`) {
			t.Errorf("%s should be omitted: %s", k, s)
		}
	}
}

const registryABI = `[
	{"type":"function","name":"ownerOf","stateMutability":"view",
	 "inputs":[{"name":"id","type":"uint256"}],
	 "outputs":[{"name":"","type":"address"}]}
]`

func TestContractCall_PackUnpack(t *testing.T) {
	parsed, err := abi.JSON(strings.NewReader(registryABI))
	if err != nil {
		t.Fatal(err)
	}
	call := ContractCall{ABI: parsed, Method: "ownerOf", Args: []any{big.NewInt(7)}}

	input, err := call.Pack()
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	if len(input) != 4+32 {
		t.Errorf("input len = %d", len(input))
	}

	owner := common.HexToAddress("0x3333333333333333333333333333333333333333")
	out, err := call.Unpack(common.LeftPadBytes(owner.Bytes(), 32))
	if err != nil {
		t.Fatalf("Unpack: %v", err)
	}
	if len(out) != 1 || out[0].(common.Address) != owner {
		t.Errorf("out = %v", out)
	}
}
