package clients

import (
	"bytes"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const erc20ABIJSON = `[
  {"name":"balanceOf","type":"function","stateMutability":"view",
   "inputs":[{"name":"owner","type":"address"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"name":"symbol","type":"function","stateMutability":"view",
   "inputs":[],"outputs":[{"name":"","type":"string"}]},
  {"name":"decimals","type":"function","stateMutability":"view",
   "inputs":[],"outputs":[{"name":"","type":"uint8"}]}
]`

// erc20ABI holds the read-only ERC-20 surface used for balance discovery.
var erc20ABI = mustParseABI(erc20ABIJSON)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("invalid ABI: %v", err))
	}
	return parsed
}

func packBalanceOf(owner common.Address) []byte {
	data, err := erc20ABI.Pack("balanceOf", owner)
	if err != nil {
		panic(err)
	}
	return data
}

func packNoArgs(method string) []byte {
	return erc20ABI.Methods[method].ID
}

func unpackBalance(ret []byte) (*big.Int, error) {
	out, err := erc20ABI.Unpack("balanceOf", ret)
	if err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

// unpackSymbol decodes symbol(). Some older tokens return bytes32 instead of
// string.
func unpackSymbol(ret []byte) (string, error) {
	if out, err := erc20ABI.Unpack("symbol", ret); err == nil {
		return *abi.ConvertType(out[0], new(string)).(*string), nil
	}
	if len(ret) == 32 {
		s := string(bytes.TrimRight(ret, "\x00"))
		if s != "" {
			return s, nil
		}
	}
	return "", fmt.Errorf("undecodable symbol")
}

func unpackDecimals(ret []byte) (uint8, error) {
	out, err := erc20ABI.Unpack("decimals", ret)
	if err != nil {
		return 0, err
	}
	return *abi.ConvertType(out[0], new(uint8)).(*uint8), nil
}
