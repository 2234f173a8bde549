package types

import "strings"

// ChainFamily classifies a network into a blockchain family.
type ChainFamily string

const (
	ChainEVM    ChainFamily = "evm"
	ChainSolana ChainFamily = "solana"
)

// VMType returns the virtual machine type reported for the family.
func (f ChainFamily) VMType() VMType {
	if f == ChainSolana {
		return VMTypeSVM
	}
	return VMTypeEVM
}

// SolanaChainID is the chain id the commerce API uses for Solana mainnet.
const SolanaChainID ChainID = 1151111081099710

// Network identifies a chain the flow can settle on.
type Network struct {
	Key     string      `json:"key"`
	Name    string      `json:"name,omitempty"`
	ChainID ChainID     `json:"chainId"`
	Family  ChainFamily `json:"family"`
}

var (
	NetworkEthereum = Network{Key: "ethereum", Name: "Ethereum", ChainID: 1, Family: ChainEVM}
	NetworkArbitrum = Network{Key: "arbitrum", Name: "Arbitrum One", ChainID: 42161, Family: ChainEVM}
	NetworkPolygon  = Network{Key: "polygon", Name: "Polygon", ChainID: 137, Family: ChainEVM}
	NetworkBase     = Network{Key: "base", Name: "Base", ChainID: 8453, Family: ChainEVM}
	NetworkSolana   = Network{Key: "solana", Name: "Solana", ChainID: SolanaChainID, Family: ChainSolana}
)

// KnownNetworks lists the presets by key.
var KnownNetworks = map[string]Network{
	NetworkEthereum.Key: NetworkEthereum,
	NetworkArbitrum.Key: NetworkArbitrum,
	NetworkPolygon.Key:  NetworkPolygon,
	NetworkBase.Key:     NetworkBase,
	NetworkSolana.Key:   NetworkSolana,
}

// NetworkByChainID finds a preset by chain id.
func NetworkByChainID(id ChainID) (Network, bool) {
	for _, n := range KnownNetworks {
		if n.ChainID == id {
			return n, true
		}
	}
	return Network{}, false
}

// NetworkFromCatalog maps a catalog network entry onto a Network.
func NetworkFromCatalog(c CatalogNetwork) Network {
	family := ChainEVM
	if strings.EqualFold(c.NetworkType, string(VMTypeSVM)) {
		family = ChainSolana
	}
	return Network{Key: c.Key, Name: c.Name, ChainID: c.ChainID, Family: family}
}

// Helper functions for network classification
func (n Network) IsEVM() bool {
	return n.Family == ChainEVM
}

func (n Network) IsSolana() bool {
	return n.Family == ChainSolana
}

func (n Network) VMType() VMType {
	return n.Family.VMType()
}

func (n Network) String() string {
	if n.Key != "" {
		return n.Key
	}
	return n.ChainID.String()
}
