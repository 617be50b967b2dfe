// Package apy estimates protocol yields from whichever data is available,
// walking a strict fallback order: on-chain strategy profit, TVL-weighted
// pool averages, extrapolated 7-day TVL change, then category baselines.
package apy

import (
	"math"

	"github.com/Satianurag/movement-defi-project-sub000/internal/model"
	"github.com/Satianurag/movement-defi-project-sub000/internal/types"
	"github.com/Satianurag/movement-defi-project-sub000/internal/validation"
	"github.com/sirupsen/logrus"
)

// DefaultStrategyAgeDays is the assumed strategy age when the real
// deployment age is unknown. A known approximation, kept explicit and
// overridable rather than buried as a literal.
const DefaultStrategyAgeDays = 75.0

// DefaultClampMax is the upper bound in percent for annualized profit-based
// APY, guarding against absurd numbers from short-lived strategies.
const DefaultClampMax = 150.0

// categoryBaselines is the static lookup of typical APY ranges per protocol
// category, used only when no numeric signal exists at all. Ranges are
// returned as notes, never committed numbers.
var categoryBaselines = map[types.Category]string{
	types.CategoryLending:         "3-12% typical for lending markets",
	types.CategoryDEX:             "5-40% typical for AMM liquidity",
	types.CategoryYieldAggregator: "4-20% typical for yield vaults",
	types.CategoryLiquidStaking:   "3-8% typical for liquid staking",
	types.CategoryStablecoin:      "0-5% typical for CDP stablecoins",
}

// Context carries whatever estimation inputs the caller managed to gather.
// Missing fields simply push the engine down the fallback order.
type Context struct {
	// Protocol category, required for the baseline tier
	Category types.Category

	// Vault strategies for the on-chain profit tier
	Strategies []model.Strategy

	// Protocol-tagged yield pools for the averaging tiers
	Pools []model.PoolStat

	// 7-day TVL change in percent; nil when unknown
	Change7d *float64
}

// Engine selects and applies one estimation strategy per call.
type Engine struct {
	ageDays  float64
	clampMax float64
	valOpts  validation.Options
}

// New creates an engine with the default age assumption and clamp.
func New() *Engine {
	// Pools with unreported TVL still carry APY signal; they fall through
	// to the equal-weight average instead of being filtered out.
	opts := validation.DefaultOptions()
	opts.MinTVL = 0
	return &Engine{
		ageDays:  DefaultStrategyAgeDays,
		clampMax: DefaultClampMax,
		valOpts:  opts,
	}
}

// WithStrategyAge overrides the assumed strategy age in days.
func (e *Engine) WithStrategyAge(days float64) *Engine {
	if days > 0 {
		e.ageDays = days
	}
	return e
}

// WithClampMax overrides the annualization clamp in percent.
func (e *Engine) WithClampMax(max float64) *Engine {
	if max > 0 {
		e.clampMax = max
	}
	return e
}

// Estimate produces an APY estimate using the first strategy with sufficient
// data. The result always carries its method tag; methods are never mixed
// within one estimate.
func (e *Engine) Estimate(ec Context) model.APYEstimate {
	if est, ok := e.fromStrategies(ec.Strategies); ok {
		return est
	}
	if est, ok := e.fromPools(ec.Pools); ok {
		return est
	}
	if ec.Change7d != nil {
		return extrapolate7d(*ec.Change7d)
	}
	return e.baseline(ec.Category)
}

// fromStrategies computes the on-chain profit-based estimate for vault
// strategies. Negative or zero net profit is reported as a plain simple
// return since such periods aren't meaningfully annualized.
func (e *Engine) fromStrategies(strategies []model.Strategy) (model.APYEstimate, bool) {
	var totalAsset, totalProfit, totalLoss float64
	for _, s := range strategies {
		totalAsset += s.TotalAsset
		totalProfit += s.TotalProfit
		totalLoss += s.TotalLoss
	}
	if totalAsset <= 0 {
		return model.APYEstimate{}, false
	}

	netProfit := totalProfit - totalLoss
	simpleReturn := netProfit / totalAsset

	if netProfit <= 0 {
		value := simpleReturn * 100
		return model.APYEstimate{
			Value:      &value,
			Method:     model.MethodOnChainProfit,
			Confidence: 0.9,
			Note:       "non-positive net profit, simple return not annualized",
		}, true
	}

	annualized := simpleReturn * (365.0 / e.ageDays) * 100
	clamped := math.Max(0, math.Min(annualized, e.clampMax))
	if clamped != annualized {
		logrus.Debugf("Profit-based APY %.2f%% clamped to %.2f%%", annualized, clamped)
	}

	return model.APYEstimate{
		Value:      &clamped,
		Method:     model.MethodOnChainProfit,
		Confidence: 0.9,
	}, true
}

// fromPools computes the TVL-weighted average APY over protocol-tagged
// pools, falling back to a simple unweighted average only when aggregate
// TVL is zero or unknown.
func (e *Engine) fromPools(pools []model.PoolStat) (model.APYEstimate, bool) {
	valid := validation.FilterInvalidWithOptions(pools, e.valOpts)
	if len(valid) == 0 {
		return model.APYEstimate{}, false
	}

	var totalTVL, weightedAPY float64
	for _, pool := range valid {
		totalTVL += pool.TVLUsd
		weightedAPY += pool.APY * pool.TVLUsd
	}

	if totalTVL > 0 && !math.IsNaN(weightedAPY) {
		value := weightedAPY / totalTVL
		return model.APYEstimate{
			Value:      &value,
			Method:     model.MethodTVLWeighted,
			Confidence: 0.7,
		}, true
	}

	var sum float64
	for _, pool := range valid {
		sum += pool.APY
	}
	value := sum / float64(len(valid))
	return model.APYEstimate{
		Value:      &value,
		Method:     model.MethodSimpleAverage,
		Confidence: 0.5,
		Note:       "aggregate TVL unknown, pools weighted equally",
	}, true
}

// extrapolate7d compounds a 7-day TVL change over a year:
// apy = ((1 + change/100)^(365/7) - 1) * 100.
// This is a genuine compounding extrapolation, not a linear x52 scaling;
// a -100% week compounds to exactly -100%, never beyond total loss.
func extrapolate7d(change7d float64) model.APYEstimate {
	weeklyReturn := change7d / 100
	value := (math.Pow(1+weeklyReturn, 365.0/7.0) - 1) * 100
	return model.APYEstimate{
		Value:      &value,
		Method:     model.MethodExtrapolated7d,
		Confidence: 0.3,
		Note:       "extrapolated from 7d TVL change",
	}
}

// baseline returns the category range note. This is the only tier that may
// itself come back unavailable.
func (e *Engine) baseline(category types.Category) model.APYEstimate {
	note, ok := categoryBaselines[category]
	if !ok {
		return model.APYEstimate{
			Method: model.MethodUnavailable,
			Note:   "no data and no baseline for category",
		}
	}
	return model.APYEstimate{
		Method:     model.MethodCategoryBaseline,
		Confidence: 0.1,
		Note:       note,
	}
}
