package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/vitwit/bando/types"
)

func newResendCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "resend <pending-receipt.json>",
		Short: "Retry registering a paid purchase with its original idempotency key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var pending types.PendingReceipt
			if err := json.Unmarshal(raw, &pending); err != nil {
				return types.NewError(types.ErrReceipt, types.StageReceipt, "undecodable pending receipt", err)
			}

			b := a.newBando(a.commerceClient())
			receipt, err := b.ResendReceipt(cmd.Context(), &pending)
			if err != nil {
				return err
			}

			a.printf("Transaction registered for quote %s\n", pending.QuoteID)
			if id := receipt.Identifier(); id != "" {
				a.printf("Bando's transaction id: %s\n", id)
			}
			if err := os.Remove(args[0]); err != nil {
				a.log.Warn("cannot remove pending receipt", map[string]any{"path": args[0], "error": err})
			}
			return nil
		},
	}
}
