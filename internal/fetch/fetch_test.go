package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Satianurag/movement-defi-project-sub000/internal/model"
	"github.com/Satianurag/movement-defi-project-sub000/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func modelPayload() model.EntryFunctionPayload {
	return model.EntryFunctionPayload{
		Function:      registry.EchelonAddress + "::lending::supply",
		TypeArguments: []string{registry.NativeCoinType},
		Arguments:     []string{"1000"},
	}
}

func TestTTLCache(t *testing.T) {
	current := time.Unix(1_000_000, 0)
	cache := NewTTLCache(time.Minute, func() time.Time { return current })

	_, ok := cache.Get("key")
	assert.False(t, ok)

	cache.Set("key", "value")

	got, ok := cache.Get("key")
	require.True(t, ok)
	assert.Equal(t, "value", got)

	// Just inside the TTL
	current = current.Add(59 * time.Second)
	_, ok = cache.Get("key")
	assert.True(t, ok)

	// At the TTL boundary the entry is stale
	current = current.Add(time.Second)
	_, ok = cache.Get("key")
	assert.False(t, ok)
}

func TestTTLCacheSetResetsExpiry(t *testing.T) {
	current := time.Unix(1_000_000, 0)
	cache := NewTTLCache(time.Minute, func() time.Time { return current })

	cache.Set("key", 1)
	current = current.Add(45 * time.Second)
	cache.Set("key", 2)
	current = current.Add(45 * time.Second)

	got, ok := cache.Get("key")
	require.True(t, ok)
	assert.Equal(t, 2, got)
}

func TestLedgerInfo(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"chain_id":     126,
			"block_height": "98765432",
		})
	}))
	defer server.Close()

	client := NewFullnodeClient(server.URL, registry.New())
	info, err := client.LedgerInfo(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 126, info.ChainID)
	assert.Equal(t, uint64(98_765_432), info.BlockHeight)
}

func TestLedgerInfoMalformedHeight(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"chain_id":     126,
			"block_height": "not-a-number",
		})
	}))
	defer server.Close()

	client := NewFullnodeClient(server.URL, registry.New())
	_, err := client.LedgerInfo(context.Background())
	assert.Error(t, err)
}

func TestAccountBalances(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/accounts/0xwallet/resources", r.URL.Path)
		fmt.Fprint(w, `[
			{"type": "0x1::coin::CoinStore<0x1::aptos_coin::AptosCoin>", "data": {"coin": {"value": "250000000"}}},
			{"type": "0x1::coin::CoinStore<`+registry.MeridianAddress+`::lp_coin::LP>", "data": {"coin": {"value": "100000000"}}},
			{"type": "0x1::account::Account", "data": {}},
			{"type": "0x1::coin::CoinStore<0xbad::c::C>", "data": {"coin": {"value": "garbage"}}}
		]`)
	}))
	defer server.Close()

	client := NewFullnodeClient(server.URL, registry.New())
	balances, err := client.AccountBalances(context.Background(), "0xwallet")
	require.NoError(t, err)

	// Non-coin resources and malformed values are skipped, not fatal
	require.Len(t, balances, 2)

	assert.Equal(t, registry.NativeCoinType, balances[0].Asset)
	assert.Equal(t, "native", balances[0].Protocol)
	assert.InDelta(t, 2.5, balances[0].Amount, 1e-9)

	assert.Equal(t, "meridian", balances[1].Protocol)
	assert.InDelta(t, 1.0, balances[1].Amount, 1e-9)
}

func TestEchelonMarkets(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/view", r.URL.Path)

		var req struct {
			Function string `json:"function"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, registry.EchelonAddress+"::lending::all_markets", req.Function)

		fmt.Fprint(w, `[[
			{"asset": "MOVE", "address": "0xm1", "total_supply": "400000000000000", "total_borrow": "150000000000000", "decimals": 8},
			{"asset": "USDC", "address": "0xm2", "total_supply": "2000000000000", "total_borrow": "900000000000", "decimals": 6}
		]]`)
	}))
	defer server.Close()

	client := NewFullnodeClient(server.URL, registry.New())
	markets, err := client.EchelonMarkets(context.Background())
	require.NoError(t, err)

	require.Len(t, markets, 2)
	assert.InDelta(t, 4_000_000, markets[0].TotalSupply, 1e-6)
	assert.InDelta(t, 1_500_000, markets[0].TotalBorrow, 1e-6)
	assert.InDelta(t, 2_000_000, markets[1].TotalSupply, 1e-6)
}

func TestMeridianPoolReserves(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			TypeArguments []string `json:"type_arguments"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"0xa::a::A", "0xb::b::B"}, req.TypeArguments)

		fmt.Fprint(w, `["50000000", "120000000"]`)
	}))
	defer server.Close()

	client := NewFullnodeClient(server.URL, registry.New())
	reserveIn, reserveOut, err := client.MeridianPoolReserves(context.Background(), "0xa::a::A", "0xb::b::B")
	require.NoError(t, err)

	assert.Equal(t, uint64(50_000_000), reserveIn)
	assert.Equal(t, uint64(120_000_000), reserveOut)
}

func TestParseVaultsDeduplication(t *testing.T) {
	rows := []rawVault{
		{Asset: "USDC", Address: "0xold", TVL: "1000000000", Decimals: 8},
		{Asset: "MOVE", Address: "0xmove", TVL: "2000000000", Decimals: 8},
		{Asset: "USDC", Address: "0xnew", TVL: "5000000000", Decimals: 8},
	}

	vaults := ParseVaults(rows)

	// One record per asset, first-seen order preserved
	require.Len(t, vaults, 2)
	assert.Equal(t, "USDC", vaults[0].Asset)
	assert.Equal(t, "MOVE", vaults[1].Asset)

	// The larger-TVL duplicate wins
	assert.Equal(t, "0xnew", vaults[0].Address)
	assert.InDelta(t, 50.0, vaults[0].TVL, 1e-9)
}

func TestParseVaultsSmallerDuplicateIgnored(t *testing.T) {
	rows := []rawVault{
		{Asset: "USDC", Address: "0xbig", TVL: "5000000000", Decimals: 8},
		{Asset: "USDC", Address: "0xsmall", TVL: "1000000000", Decimals: 8},
	}

	vaults := ParseVaults(rows)
	require.Len(t, vaults, 1)
	assert.Equal(t, "0xbig", vaults[0].Address)
}

func TestParseVaultsStrategies(t *testing.T) {
	rows := []rawVault{
		{
			Asset: "MOVE", Address: "0xv", TVL: "100000000000", Decimals: 8,
			Strategies: []struct {
				Address     string `json:"address"`
				TotalAsset  string `json:"total_asset"`
				TotalProfit string `json:"total_profit"`
				TotalLoss   string `json:"total_loss"`
				LastReport  int64  `json:"last_report_timestamp"`
			}{
				{Address: "0xs", TotalAsset: "100000000000", TotalProfit: "2000000000", TotalLoss: "500000000", LastReport: 1_700_000_000},
			},
		},
	}

	vaults := ParseVaults(rows)
	require.Len(t, vaults, 1)
	require.Len(t, vaults[0].Strategies, 1)

	s := vaults[0].Strategies[0]
	assert.InDelta(t, 1000.0, s.TotalAsset, 1e-9)
	assert.InDelta(t, 20.0, s.TotalProfit, 1e-9)
	assert.InDelta(t, 5.0, s.TotalLoss, 1e-9)
}

func TestGetPrices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("ids[]")

		// The USDC feed is down; everything else quotes normally
		if id == feedIDs["USDC"] {
			http.Error(w, "feed unavailable", http.StatusNotFound)
			return
		}

		fmt.Fprintf(w, `[{"id": %q, "price": {"price": "45000000", "conf": "120000", "expo": -8, "publish_time": 1700000000}}]`, id)
	}))
	defer server.Close()

	client := NewPriceClient(server.URL)
	quotes := client.GetPrices(context.Background(), []string{"MOVE", "USDC", "WETH"})

	// Failed feeds drop silently; the successful subset is returned
	require.Len(t, quotes, 2)
	assert.NotContains(t, quotes, "USDC")

	move := quotes["MOVE"]
	assert.InDelta(t, 0.45, move.USD, 1e-9)
	assert.InDelta(t, 0.0012, move.Confidence, 1e-9)
	assert.Equal(t, int64(1_700_000_000), move.ObservedAt.Unix())
}

func TestGetPriceUnknownSymbol(t *testing.T) {
	client := NewPriceClient("http://unused.invalid")
	_, err := client.GetPrice(context.Background(), "DOGE")
	assert.Error(t, err)
}

func TestYieldsPoolsFiltersAndCaches(t *testing.T) {
	hits := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		fmt.Fprint(w, `{"status": "success", "data": [
			{"pool": "ech-move", "project": "echelon", "chain": "Move", "apy": 9.1, "tvlUsd": 4000000},
			{"pool": "other-chain", "project": "echelon", "chain": "Aptos", "apy": 12, "tvlUsd": 9000000},
			{"pool": "mer-lp", "project": "meridian", "chain": "Move", "apy": 21, "tvlUsd": 5000000}
		]}`)
	}))
	defer server.Close()

	current := time.Unix(1_000_000, 0)
	client := NewYieldsClient(server.URL, "Move", 5*time.Minute, func() time.Time { return current })

	pools, err := client.Pools(context.Background(), "echelon")
	require.NoError(t, err)
	require.Len(t, pools, 1)
	assert.Equal(t, "ech-move", pools[0].Pool)

	// Second call within the TTL is served from cache
	_, err = client.Pools(context.Background(), "echelon")
	require.NoError(t, err)
	assert.Equal(t, 1, hits)

	// A different project key misses the cache
	pools, err = client.Pools(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, pools, 2)
	assert.Equal(t, 2, hits)

	// Expiry forces a refetch
	current = current.Add(6 * time.Minute)
	_, err = client.Pools(context.Background(), "echelon")
	require.NoError(t, err)
	assert.Equal(t, 3, hits)
}

func TestDirectoryListProtocols(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/protocols", r.URL.Path)
		fmt.Fprint(w, `[
			{"name": "Echelon Market", "slug": "echelon", "tvl": 6500000, "chains": ["Move"], "change_7d": -2.5},
			{"name": "Elsewhere", "slug": "elsewhere", "tvl": 1000000, "chains": ["Ethereum"]}
		]`)
	}))
	defer server.Close()

	client := NewDirectoryClient(server.URL, "Move")
	entries, err := client.ListProtocols(context.Background())
	require.NoError(t, err)

	require.Len(t, entries, 1)
	assert.Equal(t, "echelon", entries[0].Slug)
	assert.Equal(t, 6_500_000.0, entries[0].TVL)
	require.NotNil(t, entries[0].Change7d)
	assert.Equal(t, -2.5, *entries[0].Change7d)
}

func TestDirectoryGetProtocol(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/protocol/echelon", r.URL.Path)
		fmt.Fprint(w, `{"name": "Echelon Market", "tvl": 9000000, "chainTvls": {"Move": 6500000, "Aptos": 2500000}}`)
	}))
	defer server.Close()

	client := NewDirectoryClient(server.URL, "Move")
	entry, err := client.GetProtocol(context.Background(), "echelon")
	require.NoError(t, err)

	// The chain-scoped TVL overrides the cross-chain total
	assert.Equal(t, 6_500_000.0, entry.TVL)
	assert.Equal(t, "Move", entry.Chain)
}

func TestDirectoryGetChainTVL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/chains", r.URL.Path)
		fmt.Fprint(w, `[
			{"name": "Ethereum", "tvl": 50000000000},
			{"name": "Move", "tvl": 120000000, "tokenSymbol": "MOVE"}
		]`)
	}))
	defer server.Close()

	client := NewDirectoryClient(server.URL, "Move")
	tvl, err := client.GetChainTVL(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 120_000_000.0, tvl)

	missing := NewDirectoryClient(server.URL, "Solana")
	_, err = missing.GetChainTVL(context.Background())
	assert.Error(t, err)
}

func TestSignerSubmit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transactions", r.URL.Path)

		var body struct {
			Sender  string `json:"sender"`
			Payload struct {
				Function string `json:"function"`
			} `json:"payload"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "0xuser", body.Sender)

		fmt.Fprint(w, `{"hash": "0xabc", "success": true}`)
	}))
	defer server.Close()

	client := NewSignerClient(server.URL)
	result, err := client.Submit(context.Background(), "0xuser", modelPayload())
	require.NoError(t, err)
	assert.Equal(t, "0xabc", result.Hash)
	assert.True(t, result.Success)
}

func TestSignerSubmitVMFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"hash": "0xdef", "success": false, "vm_status": "ABORTED: insufficient balance"}`)
	}))
	defer server.Close()

	client := NewSignerClient(server.URL)
	_, err := client.Submit(context.Background(), "0xuser", modelPayload())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insufficient balance")
}
