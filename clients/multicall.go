package clients

import (
	"context"
	"fmt"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Multicall3Address is the canonical Multicall3 deployment, identical on
// every major EVM chain.
const Multicall3Address = "0xcA11bde05977b3631167028862bE2a173976CA11"

const multicall3ABIJSON = `[
  {"name":"aggregate3","type":"function","stateMutability":"payable",
   "inputs":[{"name":"calls","type":"tuple[]","components":[
     {"name":"target","type":"address"},
     {"name":"allowFailure","type":"bool"},
     {"name":"callData","type":"bytes"}]}],
   "outputs":[{"name":"returnData","type":"tuple[]","components":[
     {"name":"success","type":"bool"},
     {"name":"returnData","type":"bytes"}]}]}
]`

var multicall3ABI = mustParseABI(multicall3ABIJSON)

// Multicall3Call is one aggregate3 sub-call.
type Multicall3Call struct {
	Target       common.Address
	AllowFailure bool
	CallData     []byte
}

// Multicall3Result is one aggregate3 sub-result.
type Multicall3Result struct {
	Success    bool
	ReturnData []byte
}

// aggregate3 runs calls in a single eth_call. Individual sub-calls may fail
// when AllowFailure is set; only a failure of the whole call is returned.
func aggregate3(ctx context.Context, caller ethereum.ContractCaller, multicall common.Address, calls []Multicall3Call) ([]Multicall3Result, error) {
	data, err := multicall3ABI.Pack("aggregate3", calls)
	if err != nil {
		return nil, fmt.Errorf("pack aggregate3: %w", err)
	}

	raw, err := caller.CallContract(ctx, ethereum.CallMsg{To: &multicall, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("aggregate3 call: %w", err)
	}

	out, err := multicall3ABI.Unpack("aggregate3", raw)
	if err != nil {
		return nil, fmt.Errorf("unpack aggregate3: %w", err)
	}
	results := *abi.ConvertType(out[0], new([]Multicall3Result)).(*[]Multicall3Result)
	if len(results) != len(calls) {
		return nil, fmt.Errorf("aggregate3 returned %d results for %d calls", len(results), len(calls))
	}
	return results, nil
}
