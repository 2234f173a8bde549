package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/spf13/cobra"

	"github.com/vitwit/bando/clients"
	"github.com/vitwit/bando/types"
	"github.com/vitwit/bando/utils"
)

func newHoldingsCommand(a *app) *cobra.Command {
	var (
		wallet    string
		tokens    []string
		rpcURL    string
		multicall string
	)
	cmd := &cobra.Command{
		Use:   "holdings",
		Short: "List the wallet's non-zero ERC-20 balances among candidate tokens",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if wallet == "" {
				key, err := a.cfg.PrivateKeyFor(types.VMTypeEVM)
				if err != nil {
					return fmt.Errorf("pass --wallet or configure an EVM key: %w", err)
				}
				pk, err := utils.PrivateKeyFromHex(key)
				if err != nil {
					return err
				}
				wallet = utils.AddressFromPrivateKey(pk).Hex()
			}

			url := a.cfg.EVM.RPCURL
			if rpcURL != "" {
				url = rpcURL
			}
			if url == "" {
				return types.NewError(types.ErrConfigError, types.StageConfig, "no EVM rpc url configured", nil)
			}
			client, err := ethclient.DialContext(cmd.Context(), url)
			if err != nil {
				return types.NewError(types.ErrBalances, types.StageBalances, "cannot connect to rpc", err)
			}
			defer client.Close()

			holdings, err := clients.NewBalanceDiscovery(client, multicall).ListHoldings(cmd.Context(), wallet, tokens)
			if err != nil {
				return err
			}
			if len(holdings) == 0 {
				a.printf("%s holds none of the %d tokens\n", wallet, len(tokens))
				return nil
			}

			w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SYMBOL\tBALANCE\tDECIMALS\tADDRESS")
			for _, h := range holdings {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", h.Symbol, h.FormattedBalance, h.Decimals, h.Address)
			}
			return w.Flush()
		},
	}

	f := cmd.Flags()
	f.StringVar(&wallet, "wallet", "", "wallet address (defaults to the configured EVM key's address)")
	f.StringSliceVar(&tokens, "tokens", nil, "comma separated token addresses")
	f.StringVar(&rpcURL, "rpc", "", "rpc url (overrides EVM_RPC_URL)")
	f.StringVar(&multicall, "multicall", "", "Multicall3 address when the chain does not use "+clients.Multicall3Address)
	_ = cmd.MarkFlagRequired("tokens")
	return cmd
}
