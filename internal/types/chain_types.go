// Package types contains shared type definitions used across multiple packages
package types

// Network identifies the Move network the engine is pointed at
type Network string

// Supported networks
const (
	NetworkMainnet Network = "movement-mainnet"
	NetworkTestnet Network = "movement-testnet"
)

// Category classifies a protocol by its on-chain behavior.
// The router branches on this, never on individual slugs.
type Category string

// Protocol categories
const (
	CategoryLending         Category = "lending"
	CategoryDEX             Category = "dex"
	CategoryYieldAggregator Category = "yield_aggregator"
	CategoryLiquidStaking   Category = "liquid_staking"
	CategoryStablecoin      Category = "stablecoin"
)

// Step identifies one leg of a multi-transaction sequence for error reporting
type Step string

// Transaction step identifiers
const (
	StepSwap         Step = "swap"
	StepAddLiquidity Step = "add_liquidity"
	StepDeposit      Step = "deposit"
	StepWithdraw     Step = "withdraw"
)
