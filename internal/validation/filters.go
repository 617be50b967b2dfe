// Package validation provides filtering for yield-pool records before they
// feed APY averaging.
package validation

import (
	"sort"

	"github.com/Satianurag/movement-defi-project-sub000/internal/model"
	"github.com/sirupsen/logrus"
)

// Options holds configuration for the validation process
type Options struct {
	// MinTVL defines the minimum pool TVL in USD required for a record to count
	MinTVL float64

	// MaxAPY defines the maximum plausible APY in percent
	MaxAPY float64

	// EnableOutlierDetection enables statistical outlier detection
	EnableOutlierDetection bool

	// OutlierIQRMultiplier defines sensitivity for outlier detection (1.5 is standard)
	OutlierIQRMultiplier float64
}

// DefaultOptions returns sensible defaults for validation
func DefaultOptions() Options {
	return Options{
		MinTVL:                 1.0,
		MaxAPY:                 1000.0,
		EnableOutlierDetection: true,
		OutlierIQRMultiplier:   1.5,
	}
}

// FilterInvalid removes pool records that fail basic validation criteria.
// This is the main entrypoint for the validation package.
func FilterInvalid(pools []model.PoolStat) []model.PoolStat {
	return FilterInvalidWithOptions(pools, DefaultOptions())
}

// FilterInvalidWithOptions removes pool records with custom validation options.
func FilterInvalidWithOptions(pools []model.PoolStat, opts Options) []model.PoolStat {
	valid := filterBasicCriteria(pools, opts)

	if opts.EnableOutlierDetection && len(valid) > 3 {
		return filterOutliers(valid, opts.OutlierIQRMultiplier)
	}
	return valid
}

// filterBasicCriteria applies the plausibility checks each record must pass
func filterBasicCriteria(pools []model.PoolStat, opts Options) []model.PoolStat {
	valid := make([]model.PoolStat, 0, len(pools))
	for _, pool := range pools {
		switch {
		case pool.Project == "":
			logrus.Debugf("Dropping pool %s: missing project", pool.Pool)
		case pool.TVLUsd < opts.MinTVL:
			logrus.Debugf("Dropping pool %s: TVL %.2f below minimum", pool.Pool, pool.TVLUsd)
		case pool.APY < 0:
			logrus.Debugf("Dropping pool %s: negative APY %.2f", pool.Pool, pool.APY)
		case pool.APY > opts.MaxAPY:
			logrus.Debugf("Dropping pool %s: implausible APY %.2f", pool.Pool, pool.APY)
		default:
			valid = append(valid, pool)
		}
	}
	return valid
}

// filterOutliers removes records whose APY falls outside the IQR bounds
func filterOutliers(pools []model.PoolStat, iqrMultiplier float64) []model.PoolStat {
	apyValues := make([]float64, 0, len(pools))
	for _, pool := range pools {
		apyValues = append(apyValues, pool.APY)
	}
	sort.Float64s(apyValues)

	n := len(apyValues)
	q1 := apyValues[n/4]
	q3 := apyValues[n*3/4]
	iqr := q3 - q1
	lowerBound := q1 - iqrMultiplier*iqr
	upperBound := q3 + iqrMultiplier*iqr

	filtered := make([]model.PoolStat, 0, len(pools))
	for _, pool := range pools {
		if pool.APY >= lowerBound && pool.APY <= upperBound {
			filtered = append(filtered, pool)
		}
	}

	if dropped := len(pools) - len(filtered); dropped > 0 {
		logrus.Debugf("Outlier filter dropped %d of %d pools", dropped, len(pools))
	}
	return filtered
}
