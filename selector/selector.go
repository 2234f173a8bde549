// Package selector walks a buyer through the commerce catalog: country,
// product, variant, network, wallet and payment token, then asks for the
// delivery details and the go-ahead for a quote.
package selector

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/shopspring/decimal"

	"github.com/vitwit/bando"
	"github.com/vitwit/bando/commerce"
	"github.com/vitwit/bando/logger"
	"github.com/vitwit/bando/types"
)

// MaxVariants caps the number of variants offered for one brand.
const MaxVariants = 15

const maxReferenceAttempts = 3

// Catalog is the read side of the commerce API. *commerce.Client satisfies it.
type Catalog interface {
	Countries(ctx context.Context) ([]types.Country, error)
	Products(ctx context.Context, q commerce.ProductQuery) ([]types.ProductGroup, error)
	Networks(ctx context.Context) ([]types.CatalogNetwork, error)
	Tokens(ctx context.Context, networkKey string) ([]types.Token, error)
}

// Wallets opens the buyer's wallet on a network. *bando.Bando satisfies it.
type Wallets interface {
	AddNetwork(network types.Network, cfg types.ClientConfig) error
	WalletAddress(network types.Network) (string, error)
	Holdings(ctx context.Context, network types.Network, tokens []string) ([]types.Holding, error)
}

// ClientConfigFunc builds the chain client settings for the selected network
// from the catalog's rpc url and the buyer's key.
type ClientConfigFunc func(network types.Network, privateKey, catalogRPC string) types.ClientConfig

type productType struct {
	name  string
	value string
}

var productTypes = []productType{
	{"All (*)", ""},
	{"TopUp", "topup"},
	{"Gift Card", "gift_card"},
	{"eSIM", "esim"},
}

// Selection is what the buyer picked.
type Selection struct {
	Country     string
	ProductType string
	Brand       types.Brand
	Variant     types.Variant
	Network     types.Network
	Catalog     types.CatalogNetwork
	Wallet      string
	Token       types.Token

	// Holding is set for EVM networks, where only held tokens are offered.
	Holding *types.Holding
}

// PurchaseRequest turns the selection into a purchase. The catalog key is
// reported as the intent's chain.
func (s *Selection) PurchaseRequest() bando.PurchaseRequest {
	return bando.PurchaseRequest{
		Network:      s.Network,
		SKU:          s.Variant.ID,
		FiatCurrency: s.Variant.Price.FiatCurrency,
		DigitalAsset: s.Token.Address,
		Chain:        s.Network.Key,
	}
}

type Option func(*Selector)

// WithKeys sets where private keys are looked up before prompting for one.
func WithKeys(keys func(types.VMType) (string, error)) Option {
	return func(s *Selector) { s.keys = keys }
}

func WithClientConfig(f ClientConfigFunc) Option {
	return func(s *Selector) { s.clientConfig = f }
}

// WithReference sets a default buyer reference.
func WithReference(ref string) Option {
	return func(s *Selector) { s.reference = ref }
}

func WithOutput(w io.Writer) Option {
	return func(s *Selector) { s.out = w }
}

func WithLogger(l logger.Logger) Option {
	return func(s *Selector) { s.logger = l }
}

// Selector runs the interactive selection.
type Selector struct {
	catalog Catalog
	wallets Wallets
	prompt  Prompter

	keys         func(types.VMType) (string, error)
	clientConfig ClientConfigFunc
	reference    string
	out          io.Writer
	logger       logger.Logger
}

func New(catalog Catalog, wallets Wallets, p Prompter, opts ...Option) *Selector {
	s := &Selector{
		catalog: catalog,
		wallets: wallets,
		prompt:  p,
		clientConfig: func(_ types.Network, key, rpc string) types.ClientConfig {
			return types.ClientConfig{RPCUrl: rpc, PrivateKey: key}
		},
		out:    io.Discard,
		logger: logger.NoopLogger{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SelectEnvironment asks which API environment to use and returns its name.
func SelectEnvironment(p Prompter) (string, error) {
	idx, err := p.Select("Select Bando's environment", []string{"Development - Sandbox", "Production - Live"})
	if err != nil {
		return "", err
	}
	if idx == 1 {
		return "production", nil
	}
	return "sandbox", nil
}

// Run walks the catalog and returns the buyer's choices. Nothing is paid.
func (s *Selector) Run(ctx context.Context) (*Selection, error) {
	sel := &Selection{}

	s.logger.Info("getting countries", nil)
	countries, err := s.catalog.Countries(ctx)
	if err != nil {
		return nil, err
	}
	idx, err := s.choose("Select country", "countries", len(countries), func(i int) string { return countries[i].Name })
	if err != nil {
		return nil, err
	}
	sel.Country = countries[idx].ISOAlpha2

	idx, err = s.choose("Select Product type", "product types", len(productTypes), func(i int) string { return productTypes[i].name })
	if err != nil {
		return nil, err
	}
	sel.ProductType = productTypes[idx].value

	s.logger.Info("getting products", map[string]any{"country": sel.Country, "type": sel.ProductType})
	groups, err := s.catalog.Products(ctx, commerce.ProductQuery{Country: sel.Country, Type: sel.ProductType})
	if err != nil {
		return nil, err
	}
	idx, err = s.choose(fmt.Sprintf("Found %d products types, please select one:", len(groups)), "products",
		len(groups), func(i int) string { return groups[i].ProductType })
	if err != nil {
		return nil, err
	}
	sel.ProductType = groups[idx].ProductType

	brands := sortedBrands(groups[idx].Brands)
	idx, err = s.choose(fmt.Sprintf("Found %d brands, please select one:", len(brands)), "brands",
		len(brands), func(i int) string { return brands[i].BrandName })
	if err != nil {
		return nil, err
	}
	sel.Brand = brands[idx]

	variants := representatives(sel.Brand.Variants, MaxVariants)
	idx, err = s.choose(fmt.Sprintf("Found %d variants, please select one:", len(variants)), "variants",
		len(variants), func(i int) string { return fmt.Sprintf("%s %s", variants[i].SendPrice, variants[i].SendCurrency) })
	if err != nil {
		return nil, err
	}
	sel.Variant = variants[idx]

	s.logger.Info("getting supported networks", nil)
	networks, err := s.catalog.Networks(ctx)
	if err != nil {
		return nil, err
	}
	idx, err = s.choose(fmt.Sprintf("Found %d available networks, please select one:", len(networks)), "networks",
		len(networks), func(i int) string { return networks[i].Name })
	if err != nil {
		return nil, err
	}
	sel.Catalog = networks[idx]
	sel.Network = types.NetworkFromCatalog(sel.Catalog)

	if err := s.openWallet(sel); err != nil {
		return nil, err
	}

	if err := s.chooseToken(ctx, sel); err != nil {
		return nil, err
	}

	s.logger.Info("selection complete", map[string]any{
		"sku":     sel.Variant.ID,
		"network": sel.Network.Key,
		"wallet":  sel.Wallet,
		"token":   sel.Token.Address,
	})
	return sel, nil
}

// openWallet resolves the private key for the network type and registers
// the network's chain client.
func (s *Selector) openWallet(sel *Selection) error {
	vm := sel.Network.VMType()
	envKey := "PK_" + string(vm)

	var key string
	if s.keys != nil {
		if k, err := s.keys(vm); err == nil {
			key = k
		}
	}
	if key != "" {
		s.logger.Info("private key found in environment", map[string]any{"env_key": envKey})
	} else {
		s.logger.Info("no private key in environment", map[string]any{"env_key": envKey})
		k, err := s.prompt.Password(fmt.Sprintf(
			"Enter your Wallet Private Key for network type '%s'. We will not send or store it.", vm))
		if err != nil {
			return err
		}
		key = strings.TrimSpace(k)
	}

	if err := s.wallets.AddNetwork(sel.Network, s.clientConfig(sel.Network, key, sel.Catalog.RPCURL)); err != nil {
		return err
	}
	wallet, err := s.wallets.WalletAddress(sel.Network)
	if err != nil {
		return err
	}
	sel.Wallet = wallet
	return nil
}

// chooseToken offers the tokens the network accepts. On EVM networks only
// tokens the wallet holds are offered.
func (s *Selector) chooseToken(ctx context.Context, sel *Selection) error {
	s.logger.Info("getting supported tokens", map[string]any{"network": sel.Network.Key})
	tokens, err := s.catalog.Tokens(ctx, sel.Network.Key)
	if err != nil {
		return err
	}

	if !sel.Network.IsEVM() {
		idx, err := s.choose(fmt.Sprintf("Found %d available tokens, please select one:", len(tokens)), "tokens",
			len(tokens), func(i int) string { return tokenLabel(tokens[i]) })
		if err != nil {
			return err
		}
		sel.Token = tokens[idx]
		return nil
	}

	addresses := make([]string, 0, len(tokens))
	for _, t := range tokens {
		addresses = append(addresses, t.Address)
	}

	s.logger.Info("getting tokens with balance", map[string]any{"wallet": sel.Wallet, "candidates": len(addresses)})
	holdings, err := s.wallets.Holdings(ctx, sel.Network, addresses)
	if err != nil {
		return err
	}
	if len(holdings) == 0 {
		return types.NewError(types.ErrBalances, types.StageBalances,
			fmt.Sprintf("wallet %s holds none of the %d tokens accepted on %s", sel.Wallet, len(tokens), sel.Network), nil)
	}

	idx, err := s.choose(fmt.Sprintf("Found %d available tokens with balance, please select one:", len(holdings)), "tokens",
		len(holdings), func(i int) string { return fmt.Sprintf("%s - %s", holdings[i].Symbol, holdings[i].FormattedBalance) })
	if err != nil {
		return err
	}
	h := holdings[idx]
	sel.Holding = &h
	sel.Token = types.Token{Key: h.Symbol, Symbol: h.Symbol, Address: h.Address, Decimals: h.Decimals}
	return nil
}

// Approve returns the purchase approval for sel: it shows the quote, asks for
// the delivery reference and required fields, then for confirmation.
func (s *Selector) Approve(sel *Selection) bando.ApproveFunc {
	return func(_ context.Context, quote *types.Quote) (*types.Approval, error) {
		s.printQuote(quote)

		reference, err := s.askReference(sel.Variant.ReferenceType)
		if err != nil {
			return nil, err
		}

		var fields types.RequiredFields
		for _, f := range sel.Variant.RequiredFields {
			answer, err := s.prompt.Input(fmt.Sprintf("Enter value for: %s:", f.Name), "")
			if err != nil {
				return nil, err
			}
			fields = append(fields, types.RequiredField{Key: f.Name, Value: answer})
		}

		symbol := sel.Token.Symbol
		if symbol == "" {
			symbol = quote.DigitalAsset
		}
		ok, err := s.prompt.Confirm(fmt.Sprintf(
			"Do you want to confirm the on-chain transaction? You will send %s %s", quote.DigitalAssetAmount, symbol))
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
		return &types.Approval{Reference: reference, RequiredFields: fields}, nil
	}
}

func (s *Selector) askReference(rt *types.ReferenceType) (string, error) {
	if rt == nil {
		return s.reference, nil
	}

	var pattern *regexp.Regexp
	if rt.Regex != "" {
		if re, err := regexp.Compile(rt.Regex); err == nil {
			pattern = re
		} else {
			s.logger.Warn("ignoring invalid reference pattern", map[string]any{"pattern": rt.Regex, "error": err})
		}
	}

	for attempt := 0; attempt < maxReferenceAttempts; attempt++ {
		ref, err := s.prompt.Input(fmt.Sprintf(
			"Enter value for reference of type: %s. We use this to deliver your product:", rt.Name), s.reference)
		if err != nil {
			return "", err
		}
		ref = strings.TrimSpace(ref)
		if ref != "" && (pattern == nil || pattern.MatchString(ref)) {
			return ref, nil
		}
		fmt.Fprintf(s.out, "%q is not a valid %s\n", ref, rt.Name)
	}
	return "", types.NewError(types.ErrCancelled, types.StageApproval,
		fmt.Sprintf("no valid %s reference given", rt.Name), nil)
}

func (s *Selector) printQuote(q *types.Quote) {
	fmt.Fprintln(s.out, "Quote details")
	w := tabwriter.NewWriter(s.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "fiatCurrency\tfiatAmount\tdigitalAsset\ttotalAmount")
	fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", q.FiatCurrency, q.FiatAmount, q.DigitalAsset, q.TotalAmount)
	_ = w.Flush()
}

func (s *Selector) choose(message, what string, n int, label func(int) string) (int, error) {
	if n == 0 {
		return 0, types.NewError(types.ErrCatalog, types.StageCatalog, "no "+what+" available", nil)
	}
	options := make([]string, n)
	for i := range options {
		options[i] = label(i)
	}
	idx, err := s.prompt.Select(message, options)
	if err != nil {
		return 0, err
	}
	if idx < 0 || idx >= n {
		return 0, fmt.Errorf("selection %d out of range for %s", idx, what)
	}
	return idx, nil
}

func sortedBrands(brands []types.Brand) []types.Brand {
	out := append([]types.Brand(nil), brands...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// representatives sorts variants by send price and, when there are more
// than count, keeps count of them evenly spread over the price range.
func representatives(variants []types.Variant, count int) []types.Variant {
	sorted := append([]types.Variant(nil), variants...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return price(sorted[i]).LessThan(price(sorted[j]))
	})
	if count <= 0 || len(sorted) <= count {
		return sorted
	}

	step := len(sorted) / count
	out := make([]types.Variant, count)
	for i := range out {
		out[i] = sorted[i*step]
	}
	return out
}

func price(v types.Variant) decimal.Decimal {
	d, err := v.SendPrice.Decimal()
	if err != nil {
		return decimal.Zero
	}
	return d
}

func tokenLabel(t types.Token) string {
	switch {
	case t.Symbol != "":
		return fmt.Sprintf("%s (%s)", t.Symbol, t.Address)
	case t.Key != "":
		return fmt.Sprintf("%s (%s)", t.Key, t.Address)
	}
	return t.Address
}
