package clients

import (
	"context"
	"fmt"
	"sort"
	"strings"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/vitwit/bando/types"
	"github.com/vitwit/bando/utils"
)

const (
	unknownSymbol   = "???"
	defaultDecimals = 18
)

// BalanceDiscovery finds which candidate ERC-20 tokens a wallet holds using
// two Multicall3 batches: one for balances, one for metadata of the tokens
// with a non-zero balance.
type BalanceDiscovery struct {
	caller    ethereum.ContractCaller
	multicall common.Address
	sentinels []string
}

func NewBalanceDiscovery(caller ethereum.ContractCaller, multicallAddress string) *BalanceDiscovery {
	if multicallAddress == "" {
		multicallAddress = Multicall3Address
	}
	return &BalanceDiscovery{
		caller:    caller,
		multicall: common.HexToAddress(multicallAddress),
		sentinels: types.EVMNativeSentinels,
	}
}

// WithNativeSentinels replaces the addresses treated as the native coin.
func (b *BalanceDiscovery) WithNativeSentinels(sentinels []string) *BalanceDiscovery {
	if len(sentinels) > 0 {
		b.sentinels = sentinels
	}
	return b
}

// ListHoldings returns the candidates the wallet holds a positive balance
// of, sorted by formatted balance, largest first. Native coin sentinels and
// malformed addresses are skipped, duplicates are queried once.
func (b *BalanceDiscovery) ListHoldings(ctx context.Context, wallet string, candidates []string) ([]types.Holding, error) {
	if !common.IsHexAddress(wallet) {
		return nil, types.NewError(types.ErrBalances, types.StageBalances,
			fmt.Sprintf("invalid wallet address %q", wallet), nil)
	}
	owner := common.HexToAddress(wallet)

	tokens := b.normalize(candidates)
	if len(tokens) == 0 {
		return []types.Holding{}, nil
	}

	calls := make([]Multicall3Call, len(tokens))
	for i, token := range tokens {
		calls[i] = Multicall3Call{Target: token, AllowFailure: true, CallData: packBalanceOf(owner)}
	}
	results, err := aggregate3(ctx, b.caller, b.multicall, calls)
	if err != nil {
		return nil, types.NewError(types.ErrBalances, types.StageBalances, "balance batch failed", err)
	}

	holdings := make([]types.Holding, 0, len(tokens))
	for i, res := range results {
		if !res.Success {
			continue
		}
		raw, err := unpackBalance(res.ReturnData)
		if err != nil || raw == nil || raw.Sign() <= 0 {
			continue
		}
		holdings = append(holdings, types.Holding{Address: tokens[i].Hex(), RawBalance: raw})
	}
	if len(holdings) == 0 {
		return holdings, nil
	}

	symbolID, decimalsID := packNoArgs("symbol"), packNoArgs("decimals")
	meta := make([]Multicall3Call, 0, 2*len(holdings))
	for _, h := range holdings {
		target := common.HexToAddress(h.Address)
		meta = append(meta,
			Multicall3Call{Target: target, AllowFailure: true, CallData: symbolID},
			Multicall3Call{Target: target, AllowFailure: true, CallData: decimalsID},
		)
	}
	metaResults, err := aggregate3(ctx, b.caller, b.multicall, meta)
	if err != nil {
		return nil, types.NewError(types.ErrBalances, types.StageBalances, "metadata batch failed", err)
	}

	for i := range holdings {
		holdings[i].Symbol = unknownSymbol
		holdings[i].Decimals = defaultDecimals

		if res := metaResults[2*i]; res.Success {
			if s, err := unpackSymbol(res.ReturnData); err == nil {
				holdings[i].Symbol = s
			}
		}
		if res := metaResults[2*i+1]; res.Success {
			if d, err := unpackDecimals(res.ReturnData); err == nil {
				holdings[i].Decimals = int(d)
			}
		}
		holdings[i].FormattedBalance = utils.FormatAmountFromBigInt(holdings[i].RawBalance, holdings[i].Decimals)
	}

	sort.SliceStable(holdings, func(i, j int) bool {
		return holdings[i].FormattedBalance.GreaterThan(holdings[j].FormattedBalance)
	})
	return holdings, nil
}

func (b *BalanceDiscovery) normalize(candidates []string) []common.Address {
	seen := make(map[string]struct{}, len(candidates))
	out := make([]common.Address, 0, len(candidates))

	for _, c := range candidates {
		addr := strings.ToLower(strings.TrimSpace(c))
		if addr == "" || b.isSentinel(addr) || !common.IsHexAddress(addr) {
			continue
		}
		if _, ok := seen[addr]; ok {
			continue
		}
		seen[addr] = struct{}{}
		out = append(out, common.HexToAddress(addr))
	}
	return out
}

func (b *BalanceDiscovery) isSentinel(addr string) bool {
	for _, s := range b.sentinels {
		if strings.EqualFold(s, addr) {
			return true
		}
	}
	return false
}
