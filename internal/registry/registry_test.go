package registry

import (
	"testing"

	"github.com/Satianurag/movement-defi-project-sub000/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProtocolLookup(t *testing.T) {
	reg := New()

	p, ok := reg.Protocol("echelon")
	require.True(t, ok)
	assert.Equal(t, "echelon", p.Slug)
	assert.Equal(t, types.CategoryLending, p.Category)
	assert.Equal(t, EchelonAddress, p.ModuleAddress)

	_, ok = reg.Protocol("nonexistent")
	assert.False(t, ok)
}

func TestProtocolsListsAll(t *testing.T) {
	reg := New()

	protocols := reg.Protocols()
	assert.Len(t, protocols, 5)

	slugs := make(map[string]bool)
	for _, p := range protocols {
		slugs[p.Slug] = true
	}
	for _, want := range []string{"echelon", "meridian", "canopy", "mirage", "trufin"} {
		assert.True(t, slugs[want], "missing protocol %s", want)
	}
}

func TestNoDuplicateModuleAddresses(t *testing.T) {
	reg := New()

	seen := make(map[string]string)
	for _, p := range reg.Protocols() {
		if prev, ok := seen[p.ModuleAddress]; ok {
			t.Fatalf("address %s registered for both %s and %s", p.ModuleAddress, prev, p.Slug)
		}
		seen[p.ModuleAddress] = p.Slug
	}
}

func TestResolve(t *testing.T) {
	reg := New()

	tests := []struct {
		name     string
		slug     string
		asset    string
		expected string
	}{
		{"echelon exact asset", "echelon", "USDC", EchelonAddress + "::market::usdc_market"},
		{"echelon default fallback", "echelon", "OBSCURE", EchelonAddress + "::market::move_market"},
		{"meridian has no per-asset table", "meridian", "USDC", MeridianAddress},
		{"trufin module address", "trufin", "MOVE", TruFinAddress},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addr, err := reg.Resolve(tt.slug, tt.asset)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, addr)
		})
	}
}

func TestResolveUnknownProtocol(t *testing.T) {
	reg := New()

	_, err := reg.Resolve("ghost", "MOVE")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "ghost")
}

func TestResolveVault(t *testing.T) {
	reg := New()

	addr, err := reg.ResolveVault("USDC")
	require.NoError(t, err)
	assert.Equal(t, CanopyAddress+"::vault::usdc_vault", addr)
}

func TestResolveVaultMissIsHardError(t *testing.T) {
	reg := New()

	_, err := reg.ResolveVault("WBTC")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrVaultNotFound)
	assert.Contains(t, err.Error(), "WBTC", "vault errors must carry the asset for debugging")
}

func TestClassify(t *testing.T) {
	reg := New()

	tests := []struct {
		name      string
		assetType string
		expected  string
	}{
		{"native coin", NativeCoinType, "native"},
		{"echelon market coin", EchelonAddress + "::market::usdc_market", "echelon"},
		{"meridian by address", MeridianAddress + "::pool::LP<A, B>", "meridian"},
		{"meridian by lp suffix", "0xabc::lp_coin::LP<X, Y>", "meridian"},
		{"canopy share suffix", "0xdef::vault_share::Share", "canopy"},
		{"mirage stable suffix", "0x123::musd::MUSD", "mirage"},
		{"trufin staked suffix", "0x456::stmove::StMOVE", "trufin"},
		{"unregistered asset", "0x999::random::Token", Unknown},
		{"empty string", "", Unknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, reg.Classify(tt.assetType))
		})
	}
}

// The rule sequence is load-bearing: an address match must beat a ticker
// suffix appearing in the same string.
func TestClassifyRuleOrder(t *testing.T) {
	reg := New()

	// A canopy-address type that also contains the meridian lp suffix
	// classifies by address, not suffix.
	mixed := CanopyAddress + "::lp_coin::Wrapped"
	assert.Equal(t, "canopy", reg.Classify(mixed))

	// Native coin wins over everything.
	assert.Equal(t, "native", reg.Classify(NativeCoinType+"::lp_coin::X"))
}
