package domain

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"
)

// ErrUnsupportedChain is returned by TokenKey.Validate for a chain with no
// provider configuration.
var ErrUnsupportedChain = errors.New("unsupported chain")

// Chain identifies the blockchain a token lives on.
type Chain string

const (
	ChainSolana   Chain = "solana"
	ChainEthereum Chain = "ethereum"
	ChainBSC      Chain = "bsc"
	ChainBase     Chain = "base"
	ChainArbitrum Chain = "arbitrum"
)

// String returns the string representation of Chain.
func (c Chain) String() string {
	return string(c)
}

// IsEVM reports whether addresses on the chain are 20-byte hex addresses.
func (c Chain) IsEVM() bool {
	return c != ChainSolana
}

// ChainConfig maps a chain to the identifiers each provider expects.
type ChainConfig struct {
	BirdeyeChain     string // x-chain header value
	GoPlusChainID    string // "solana" selects the dedicated Solana endpoint
	DexScreenerChain string // chainId field on DexScreener pairs
	Native           string // wrapped native token, used by health probes
}

var chainConfigs = map[Chain]ChainConfig{
	ChainSolana: {
		BirdeyeChain:     "solana",
		GoPlusChainID:    "solana",
		DexScreenerChain: "solana",
		Native:           "So11111111111111111111111111111111111111112",
	},
	ChainEthereum: {
		BirdeyeChain:     "ethereum",
		GoPlusChainID:    "1",
		DexScreenerChain: "ethereum",
		Native:           "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2",
	},
	ChainBSC: {
		BirdeyeChain:     "bsc",
		GoPlusChainID:    "56",
		DexScreenerChain: "bsc",
		Native:           "0xbb4CdB9CBd36B01bD1cBaEBF2De08d9173bc095c",
	},
	ChainBase: {
		BirdeyeChain:     "base",
		GoPlusChainID:    "8453",
		DexScreenerChain: "base",
		Native:           "0x4200000000000000000000000000000000000006",
	},
	ChainArbitrum: {
		BirdeyeChain:     "arbitrum",
		GoPlusChainID:    "42161",
		DexScreenerChain: "arbitrum",
		Native:           "0x82aF49447D8a07e3bd95BD0d56f35241523fBab1",
	},
}

// LookupChain returns the provider configuration for a chain.
func LookupChain(c Chain) (ChainConfig, bool) {
	cfg, ok := chainConfigs[c]
	return cfg, ok
}

// Chains returns all supported chains in a stable order.
func Chains() []Chain {
	return []Chain{ChainSolana, ChainEthereum, ChainBSC, ChainBase, ChainArbitrum}
}

// ParseChain normalizes a stored chain name ("Solana", "BSC") to a Chain.
func ParseChain(s string) Chain {
	return Chain(strings.ToLower(strings.TrimSpace(s)))
}

// TokenKey identifies a token across providers.
type TokenKey struct {
	Chain   Chain
	Address string
}

func (k TokenKey) String() string {
	return fmt.Sprintf("%s:%s", k.Chain, k.Address)
}

// Normalized returns the address in the form used for cache keys and
// provider lookups. EVM addresses are case-insensitive; Solana ones are not.
func (k TokenKey) Normalized() string {
	if k.Chain.IsEVM() {
		return strings.ToLower(k.Address)
	}
	return k.Address
}

// Validate checks that the chain is supported and the address is well-formed.
func (k TokenKey) Validate() error {
	if _, ok := chainConfigs[k.Chain]; !ok {
		return fmt.Errorf("%w %q", ErrUnsupportedChain, k.Chain)
	}
	if k.Address == "" {
		return fmt.Errorf("empty address")
	}

	if k.Chain == ChainSolana {
		decoded, err := base58.Decode(k.Address)
		if err != nil {
			return fmt.Errorf("decode solana address: %w", err)
		}
		if len(decoded) != 32 {
			return fmt.Errorf("solana address must be 32 bytes, got %d", len(decoded))
		}
		return nil
	}

	if !strings.HasPrefix(k.Address, "0x") && !strings.HasPrefix(k.Address, "0X") {
		return fmt.Errorf("evm address must start with 0x")
	}
	raw := k.Address[2:]
	if len(raw) != 40 {
		return fmt.Errorf("evm address must be 20 bytes, got %d hex chars", len(raw))
	}
	if _, err := hex.DecodeString(raw); err != nil {
		return fmt.Errorf("decode evm address: %w", err)
	}
	return nil
}
