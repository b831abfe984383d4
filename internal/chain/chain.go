package chain

import (
	"fmt"
	"strings"
)

// Context carries the canonical chain identity used when composing item and
// event identifiers. The marketplace APIs address collections by slug, but
// item ids are chain scoped, so every backend needs one of these.
type Context struct {
	// Network is the selector as configured, e.g. "mainnet" or "sepolia".
	Network string
	// Name is the canonical chain name used in item id composition,
	// e.g. "ethereum".
	Name string
}

var networkNames = map[string]string{
	"mainnet":  "ethereum",
	"ethereum": "ethereum",
	"sepolia":  "sepolia",
	"polygon":  "matic",
	"matic":    "matic",
	"base":     "base",
	"arbitrum": "arbitrum",
	"optimism": "optimism",
}

// Resolve maps a network selector onto the canonical chain context.
func Resolve(network string) (*Context, error) {
	key := strings.ToLower(strings.TrimSpace(network))
	if key == "" {
		return nil, fmt.Errorf("network selector is empty")
	}
	name, ok := networkNames[key]
	if !ok {
		return nil, fmt.Errorf("unknown network '%s'", network)
	}
	return &Context{Network: key, Name: name}, nil
}

// IsTestnet reports whether the context points at a test network.
func (c *Context) IsTestnet() bool {
	return c.Network == "sepolia"
}
