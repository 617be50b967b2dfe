// Package registry is the single source of truth for protocol identities and
// on-chain module addresses. Every routing path resolves addresses through
// this table so the same (protocol, asset) pair can never map to two
// different addresses.
package registry

import (
	"fmt"

	"github.com/Satianurag/movement-defi-project-sub000/internal/model"
	"github.com/Satianurag/movement-defi-project-sub000/internal/types"
	"github.com/sirupsen/logrus"
)

// Canonical module addresses on Movement mainnet
const (
	EchelonAddress  = "0x568fd9e54ab87b13d29a9e88e0dcb4a89bfa09e71d033ef68dd37e29cbcac9e1"
	MeridianAddress = "0x9dd974aea0f927ead664b9e1c295e4215bd441a9e2eb3d98ca9e0f2ed9b5e304"
	CanopyAddress   = "0xa0c6c1b4d9ffbf77f9972479f4a8262b29e42b1a41f15b7190ce8c20a094d6b0"
	MirageAddress   = "0x6e4e84a8a29a6a8ef1694b4f65fe8dbd18b6c34d5f4b09b9c2bb3b42b3d7f061"
	TruFinAddress   = "0xc27b8e3ea3a4b8047cf2ef75a8a5a2a2f9e6d3e11a60c4a17f5a54d0b3d6b845"
)

// NativeCoinType is the framework coin type used for the chain's native asset
const NativeCoinType = "0x1::aptos_coin::AptosCoin"

// Unknown is returned by Classify for asset types matching no registered pattern
const Unknown = "unknown"

// DefaultSlug is the documented normalization target for unrecognized
// protocol slugs on the routing path.
const DefaultSlug = "echelon"

// ErrVaultNotFound signals that an exact vault lookup had no entry.
// Vault routing requires exact matches; there is no default fallback.
var ErrVaultNotFound = fmt.Errorf("vault address not found")

// Registry holds the static protocol and address tables, loaded once and
// read-only afterwards.
type Registry struct {
	protocols map[string]model.Protocol

	// asset-specific addresses, keyed protocol slug -> asset symbol
	assetAddresses map[string]map[string]string

	// documented default asset per protocol for non-exact lookups
	defaultAsset map[string]string
}

// New constructs the registry with the built-in Movement mainnet tables.
func New() *Registry {
	r := &Registry{
		protocols: map[string]model.Protocol{
			"echelon": {
				Slug:          "echelon",
				DisplayName:   "Echelon Market",
				Category:      types.CategoryLending,
				ModuleAddress: EchelonAddress,
			},
			"meridian": {
				Slug:          "meridian",
				DisplayName:   "Meridian AMM",
				Category:      types.CategoryDEX,
				ModuleAddress: MeridianAddress,
			},
			"canopy": {
				Slug:          "canopy",
				DisplayName:   "Canopy Vaults",
				Category:      types.CategoryYieldAggregator,
				ModuleAddress: CanopyAddress,
			},
			"mirage": {
				Slug:          "mirage",
				DisplayName:   "Mirage CDP",
				Category:      types.CategoryStablecoin,
				ModuleAddress: MirageAddress,
			},
			"trufin": {
				Slug:          "trufin",
				DisplayName:   "TruFin Staking",
				Category:      types.CategoryLiquidStaking,
				ModuleAddress: TruFinAddress,
			},
		},
		assetAddresses: map[string]map[string]string{
			"echelon": {
				"MOVE": EchelonAddress + "::market::move_market",
				"USDC": EchelonAddress + "::market::usdc_market",
				"USDT": EchelonAddress + "::market::usdt_market",
				"WETH": EchelonAddress + "::market::weth_market",
			},
			"canopy": {
				"MOVE": CanopyAddress + "::vault::move_vault",
				"USDC": CanopyAddress + "::vault::usdc_vault",
			},
		},
		defaultAsset: map[string]string{
			"echelon":  "MOVE",
			"meridian": "MOVE",
			"mirage":   "MOVE",
			"trufin":   "MOVE",
		},
	}
	return r
}

// Protocol returns the protocol record for a slug.
func (r *Registry) Protocol(slug string) (model.Protocol, bool) {
	p, ok := r.protocols[slug]
	return p, ok
}

// Protocols returns all registered protocols.
func (r *Registry) Protocols() []model.Protocol {
	out := make([]model.Protocol, 0, len(r.protocols))
	for _, p := range r.protocols {
		out = append(out, p)
	}
	return out
}

// Resolve returns the on-chain address for a (protocol, asset) pair.
//
// For protocols with per-asset entries an unknown asset falls back to the
// protocol's documented default asset rather than failing; the fallback is
// logged so misrouted assets are visible. Protocols without per-asset
// entries resolve to their module address.
func (r *Registry) Resolve(slug, asset string) (string, error) {
	p, ok := r.protocols[slug]
	if !ok {
		return "", fmt.Errorf("unknown protocol %q", slug)
	}

	assets, ok := r.assetAddresses[slug]
	if !ok {
		return p.ModuleAddress, nil
	}

	if addr, ok := assets[asset]; ok {
		return addr, nil
	}

	def := r.defaultAsset[slug]
	if addr, ok := assets[def]; ok {
		logrus.WithFields(logrus.Fields{
			"protocol":      slug,
			"asset":         asset,
			"default_asset": def,
		}).Warn("Asset not registered, resolving to protocol default")
		return addr, nil
	}

	return "", fmt.Errorf("no address for protocol %q asset %q", slug, asset)
}

// ResolveVault returns the exact vault address for an asset. Vault deposits
// require the vault address as a leading call argument, so a miss here is a
// hard error with full context, never a silent default.
func (r *Registry) ResolveVault(asset string) (string, error) {
	vaults := r.assetAddresses["canopy"]
	if addr, ok := vaults[asset]; ok {
		return addr, nil
	}
	return "", fmt.Errorf("%w: protocol=canopy asset=%s", ErrVaultNotFound, asset)
}
