// Package config provides centralized configuration for the relayer.
// All network parameters (chain ids, contract addresses, token catalogs)
// are defined here; no contract address should be hardcoded elsewhere.
package config

import "github.com/ethereum/go-ethereum/common"

// Network holds the parameters of one supported EVM network.
type Network struct {
	// Name is the chain identifier used on the wire ("sepolia", "monad").
	Name string `yaml:"name"`

	// ChainID is the EVM chain id.
	ChainID uint64 `yaml:"chain_id"`

	// RPCURL is the JSON-RPC endpoint.
	RPCURL string `yaml:"rpc_url"`

	// SettlementEngine is the escrow settlement contract.
	SettlementEngine string `yaml:"settlement_engine"`

	// Permit2 is the signature-transfer contract for gasless approvals.
	Permit2 string `yaml:"permit2"`

	// Tokens maps token symbols to their addresses on this network.
	Tokens map[string]string `yaml:"tokens"`
}

// SettlementEngineAddress returns the settlement engine as an address.
func (n *Network) SettlementEngineAddress() common.Address {
	return common.HexToAddress(n.SettlementEngine)
}

// Permit2Address returns the permit contract as an address.
func (n *Network) Permit2Address() common.Address {
	return common.HexToAddress(n.Permit2)
}

// TokenAddress resolves a token symbol on this network.
func (n *Network) TokenAddress(symbol string) (common.Address, bool) {
	addr, ok := n.Tokens[symbol]
	if !ok {
		return common.Address{}, false
	}
	return common.HexToAddress(addr), true
}

// canonicalPermit2 is the same address on every chain Permit2 is deployed to.
const canonicalPermit2 = "0x000000000022D473030F116dDEE9F6B43aC78BA3"

// DefaultNetworks returns the built-in network registry.
// Entries can be overridden or extended through the config file.
func DefaultNetworks() map[string]*Network {
	return map[string]*Network{
		"sepolia": {
			Name:             "sepolia",
			ChainID:          11155111,
			RPCURL:           "https://eth-sepolia.public.blastapi.io",
			SettlementEngine: "0x85DCa9A8E3CaD2601a64B6C43ED945E9bc0a31c5",
			Permit2:          canonicalPermit2,
			Tokens: map[string]string{
				"USDC": "0x4e3E4E8FC04ba2B6A0cCaDA9fA478E42a7482945",
			},
		},
		"monad": {
			Name:             "monad",
			ChainID:          10143,
			RPCURL:           "https://monad-testnet.drpc.org",
			SettlementEngine: "0x68fA6aD3B9b3cd85063663d78ae58ee3c3128C90",
			Permit2:          canonicalPermit2,
			Tokens: map[string]string{
				"USDC": "0x85f754abfD3b82158E2925f877f0b201187d3a3c",
			},
		},
	}
}
