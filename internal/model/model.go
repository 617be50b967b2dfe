// Package model defines the core data structures for the aggregation and routing engine.
package model

import (
	"math/big"
	"time"

	"github.com/Satianurag/movement-defi-project-sub000/internal/types"
)

// Protocol identifies a single DeFi protocol known to the registry.
// Instances are immutable after registry load.
type Protocol struct {
	// Slug is the unique identifier used throughout the engine
	Slug string `json:"slug"`

	// DisplayName is the human-readable protocol name
	DisplayName string `json:"display_name"`

	// Category drives router dispatch and APY baselines
	Category types.Category `json:"category"`

	// ModuleAddress is the canonical on-chain module address
	ModuleAddress string `json:"module_address"`
}

// Market represents a single lending market or AMM pool within a protocol.
type Market struct {
	Asset       string  `json:"asset"`
	Address     string  `json:"address"`
	TotalSupply float64 `json:"total_supply"`
	TotalBorrow float64 `json:"total_borrow"`
	Decimals    int     `json:"decimals"`
}

// Vault is a yield-aggregator vault. A vault owns its strategies;
// strategies never outlive the vault record they were parsed with.
type Vault struct {
	Asset      string     `json:"asset"`
	Address    string     `json:"address"`
	TVL        float64    `json:"tvl"`
	TotalDebt  float64    `json:"total_debt"`
	Decimals   int        `json:"decimals"`
	Strategies []Strategy `json:"strategies,omitempty"`
}

// Strategy holds the profit accounting for one vault strategy.
type Strategy struct {
	Address             string  `json:"address"`
	TotalAsset          float64 `json:"total_asset"`
	TotalProfit         float64 `json:"total_profit"`
	TotalLoss           float64 `json:"total_loss"`
	LastReportTimestamp int64   `json:"last_report_timestamp"`
}

// PriceQuote is a point-in-time USD price observation.
// Quotes are never cached beyond the request that fetched them.
type PriceQuote struct {
	Symbol     string    `json:"symbol"`
	USD        float64   `json:"usd"`
	Confidence float64   `json:"confidence"`
	ObservedAt time.Time `json:"observed_at"`
}

// APYMethod tags an estimate with the strategy that produced it
type APYMethod string

// Estimation methods, in fallback preference order
const (
	MethodOnChainProfit    APYMethod = "on_chain_profit"
	MethodTVLWeighted      APYMethod = "tvl_weighted_pool_average"
	MethodSimpleAverage    APYMethod = "simple_pool_average"
	MethodExtrapolated7d   APYMethod = "extrapolated_7d_change"
	MethodCategoryBaseline APYMethod = "category_baseline"
	MethodUnavailable      APYMethod = "unavailable"
)

// APYEstimate is the output of the estimation engine. Value is nil when the
// engine could only produce a baseline range or nothing at all; Method always
// records which single strategy produced the estimate.
type APYEstimate struct {
	Value      *float64  `json:"value"`
	Method     APYMethod `json:"method"`
	Confidence float64   `json:"confidence"`
	Note       string    `json:"note,omitempty"`
}

// PoolStat is one row of the bulk yield-pool listing.
type PoolStat struct {
	Pool      string  `json:"pool"`
	APY       float64 `json:"apy"`
	APYBase   float64 `json:"apyBase"`
	APYReward float64 `json:"apyReward"`
	TVLUsd    float64 `json:"tvlUsd"`
	Symbol    string  `json:"symbol"`
	Project   string  `json:"project"`
	Chain     string  `json:"chain"`
	Change7d  float64 `json:"apyPct7D"`
}

// NetworkInfo labels a snapshot with the chain identity it was taken against.
type NetworkInfo struct {
	ChainID     int    `json:"chain_id"`
	BlockHeight uint64 `json:"block_height"`
	Name        string `json:"name"`
}

// ProtocolSnapshot is the per-protocol slice of an aggregated snapshot.
// A nil ProtocolSnapshot in AggregatedSnapshot.Protocols means that
// protocol's detail fetch failed and was degraded, not that the protocol
// is unknown.
type ProtocolSnapshot struct {
	Protocol Protocol    `json:"protocol"`
	TVL      float64     `json:"tvl"`
	Markets  []Market    `json:"markets,omitempty"`
	Vaults   []Vault     `json:"vaults,omitempty"`
	APY      APYEstimate `json:"apy"`
}

// DirectoryEntry is a protocol row from the aggregate-TVL directory API.
// Change7d is nil when the directory did not report one.
type DirectoryEntry struct {
	Name     string   `json:"name"`
	Slug     string   `json:"slug"`
	TVL      float64  `json:"tvl"`
	Chain    string   `json:"chain"`
	Change7d *float64 `json:"change_7d,omitempty"`
}

// AggregatedSnapshot is the merged view handed to callers. It is rebuilt on
// every request and carries no cross-request identity.
type AggregatedSnapshot struct {
	Network      NetworkInfo                  `json:"network"`
	Protocols    map[string]*ProtocolSnapshot `json:"protocols"`
	AllProtocols []DirectoryEntry             `json:"all_protocols"`
	Prices       map[string]PriceQuote        `json:"prices"`
	Position     *UserPosition                `json:"position,omitempty"`
	Timestamp    time.Time                    `json:"timestamp"`
}

// Balance is a single coin balance attributed to a protocol.
type Balance struct {
	Asset    string  `json:"asset"`
	Amount   float64 `json:"amount"`
	Decimals int     `json:"decimals"`
	Protocol string  `json:"protocol"`
}

// UserPosition aggregates a wallet's balances with USD valuation.
type UserPosition struct {
	Wallet        string    `json:"wallet"`
	Balances      []Balance `json:"balances"`
	TotalValueUSD float64   `json:"total_value_usd"`
}

// ZapPlan is the computed split of a single-sided deposit. It is consumed
// immediately by the two dependent transaction calls and never persisted.
type ZapPlan struct {
	TokenIn         string   `json:"token_in"`
	TokenOut        string   `json:"token_out"`
	TotalAmountIn   *big.Int `json:"total_amount_in"`
	SwapAmount      *big.Int `json:"swap_amount"`
	RemainingAmount *big.Int `json:"remaining_amount"`
}

// ZapResult reports the outcome of the two-step zap sequence. Partial is set
// when the swap landed but add-liquidity did not, leaving the user holding a
// swapped balance that needs manual recovery.
type ZapResult struct {
	SwapHash      string `json:"swap_hash,omitempty"`
	LiquidityHash string `json:"liquidity_hash,omitempty"`
	Partial       bool   `json:"partial"`
}

// EntryFunctionPayload is the uniform call descriptor handed to the
// transaction-submission collaborator. Function is the fully qualified
// "<address>::<module>::<fn>" identifier.
type EntryFunctionPayload struct {
	Function      string   `json:"function"`
	TypeArguments []string `json:"type_arguments"`
	Arguments     []string `json:"arguments"`
}

// ViewRequest mirrors the fullnode view-function call shape.
type ViewRequest struct {
	Function      string   `json:"function"`
	TypeArguments []string `json:"type_arguments"`
	Arguments     []string `json:"arguments"`
}

// TxResult is the opaque confirmation returned by the submission collaborator.
type TxResult struct {
	Hash     string `json:"hash"`
	Success  bool   `json:"success"`
	VMStatus string `json:"vm_status,omitempty"`
}
