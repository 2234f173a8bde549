package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/vitwit/bando/commerce"
	"github.com/vitwit/bando/selector"
)

func newInteractiveCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "interactive",
		Short: "Pick a product, network and token from the catalog, then buy it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			prompt := selector.NewSurveyPrompter()

			if a.env == "" && os.Getenv("BANDO_API_URL") == "" {
				env, err := selector.SelectEnvironment(prompt)
				if err != nil {
					return err
				}
				a.cfg.Env = env
				a.cfg.APIURL = commerce.BaseURL(env)
			}

			api := a.commerceClient()
			b := a.newBando(api)
			defer b.Close()

			s := selector.New(api, b, prompt,
				selector.WithKeys(a.cfg.PrivateKeyFor),
				selector.WithClientConfig(a.cfg.ClientConfig),
				selector.WithReference(a.cfg.Reference),
				selector.WithOutput(a.out),
				selector.WithLogger(a.log),
			)

			sel, err := s.Run(ctx)
			if err != nil {
				return err
			}

			req := sel.PurchaseRequest()
			req.Approve = s.Approve(sel)
			res, err := b.Purchase(ctx, req)
			if err != nil {
				a.savePending(err)
				return err
			}
			a.printResult(res)
			a.printf("Thanks for using Bando!\n")
			return nil
		},
	}
}
