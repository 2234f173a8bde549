package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vitwit/bando"
	"github.com/vitwit/bando/clients"
	"github.com/vitwit/bando/types"
)

type purchaseFlags struct {
	sku       string
	fiat      string
	asset     string
	reference string
	rpcURL    string
	chainID   int64
}

func (f *purchaseFlags) register(cmd *cobra.Command, defaultAsset string) {
	fl := cmd.Flags()
	fl.StringVar(&f.sku, "sku", "", "product variant to buy")
	fl.StringVar(&f.fiat, "fiat", "MXN", "fiat currency of the quote")
	fl.StringVar(&f.asset, "asset", defaultAsset, "token address or mint to pay with")
	fl.StringVar(&f.reference, "reference", "", "delivery reference, email or phone (overrides REFERENCE)")
	fl.StringVar(&f.rpcURL, "rpc", "", "rpc url when none is configured")
	_ = cmd.MarkFlagRequired("sku")
}

func newEVMCommand(a *app) *cobra.Command {
	var f purchaseFlags
	cmd := &cobra.Command{
		Use:   "evm",
		Short: "Buy a product paying on an EVM network",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if f.chainID != 0 {
				a.cfg.EVM.ChainID = types.ChainID(f.chainID)
			}
			network := a.cfg.EVMNetwork()
			key, err := a.cfg.PrivateKeyFor(types.VMTypeEVM)
			if err != nil {
				return err
			}
			return a.runPurchase(cmd.Context(), network, key, f)
		},
	}
	f.register(cmd, types.EVMNativeSentinels[0])
	cmd.Flags().Int64Var(&f.chainID, "chain-id", 0, "EVM chain id (overrides EVM_CHAIN_ID)")
	return cmd
}

func newSolanaCommand(a *app) *cobra.Command {
	var f purchaseFlags
	cmd := &cobra.Command{
		Use:   "solana",
		Short: "Buy a product paying on Solana",
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := a.cfg.PrivateKeyFor(types.VMTypeSVM)
			if err != nil {
				return err
			}
			return a.runPurchase(cmd.Context(), types.NetworkSolana, key, f)
		},
	}
	f.register(cmd, types.SolanaNativeSentinel)
	return cmd
}

func (a *app) runPurchase(ctx context.Context, network types.Network, key string, f purchaseFlags) error {
	b := a.newBando(a.commerceClient())
	defer b.Close()

	if err := b.AddNetwork(network, a.cfg.ClientConfig(network, key, f.rpcURL)); err != nil {
		return err
	}

	reference := f.reference
	if reference == "" {
		reference = a.cfg.Reference
	}

	res, err := b.Purchase(ctx, bando.PurchaseRequest{
		Network:      network,
		SKU:          f.sku,
		FiatCurrency: f.fiat,
		DigitalAsset: f.asset,
		Reference:    reference,
	})
	if err != nil {
		a.savePending(err)
		return err
	}
	a.printResult(res)
	return nil
}

func (a *app) printResult(res *bando.PurchaseResult) {
	a.printf("Quote %s: %s %s for %s %s\n", res.Quote.ID,
		res.Quote.FiatAmount, res.Quote.FiatCurrency, res.Quote.TotalAmount, res.Quote.DigitalAsset)
	a.printf("Transaction confirmed: %s\n", res.Outcome.Hash)
	a.printf("Transaction successfully registered. Fulfillment is in progress.\n")
	if res.Receipt.GivenReference != "" {
		a.printf("Please check the reference you provided: %s\n", res.Receipt.GivenReference)
	}
	if id := res.Receipt.Identifier(); id != "" {
		a.printf("Bando's transaction id: %s\n", id)
	}
}

// savePending writes the pending receipt of a paid but unregistered purchase
// so that `bando resend` can retry it.
func (a *app) savePending(err error) {
	be, ok := types.AsBandoError(err)
	if !ok || be.Code != types.ErrReceipt {
		return
	}
	pending, ok := be.Data.(*types.PendingReceipt)
	if !ok {
		return
	}

	raw, mErr := json.MarshalIndent(pending, "", "  ")
	if mErr != nil {
		a.log.Error("cannot encode pending receipt", map[string]any{"error": mErr})
		return
	}
	path := filepath.Join(".", pendingFileName(pending.IdempotencyKey))
	if wErr := os.WriteFile(path, raw, 0o600); wErr != nil {
		a.log.Error("cannot save pending receipt", map[string]any{"error": wErr})
		return
	}
	a.printf("Payment confirmed but not registered. Retry with: bando resend %s\n", path)
}

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// pendingFileName derives a file name from a server supplied idempotency key;
// the result never leaves the working directory.
func pendingFileName(key string) string {
	key = unsafeFileChars.ReplaceAllString(filepath.Base(key), "_")
	if strings.Trim(key, "_") == "" {
		key = "unknown"
	}
	return "pending-receipt-" + key + ".json"
}

// report prints a failure naming its stage and identifiers.
func report(w io.Writer, err error) {
	be, ok := types.AsBandoError(err)
	if !ok {
		fmt.Fprintf(w, "error: %v\n", err)
		return
	}
	fmt.Fprintf(w, "%s failed [%s]: %s\n", be.Stage, be.Code, be.Message)
	if be.QuoteID != "" {
		fmt.Fprintf(w, "  quote:       %s\n", be.QuoteID)
	}
	if be.TxHash != "" {
		fmt.Fprintf(w, "  transaction: %s\n", be.TxHash)
	}
	if be.Err != nil {
		fmt.Fprintf(w, "  cause:       %v\n", be.Err)
	}
	if d, ok := be.Data.(*clients.SubmissionDetails); ok {
		for _, line := range d.Logs {
			fmt.Fprintf(w, "  log:         %s\n", line)
		}
		for _, h := range d.Hints {
			fmt.Fprintf(w, "  hint:        %s\n", h)
		}
	}
	if be.FundsMoved() {
		fmt.Fprintln(w, "  funds may have moved: do not resubmit this quote")
	}
}
