// Package circuitbreaker protects snapshot consumers from implausible or
// collapsing yield-pool data. When the listing looks wrong the breaker
// opens and callers fall back to the last known good pool set.
package circuitbreaker

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/Satianurag/movement-defi-project-sub000/internal/model"
	"github.com/sirupsen/logrus"
)

// State represents the current state of the circuit breaker
type State int

// Circuit breaker states
const (
	StateClosed   State = iota // Normal operation
	StateOpen                  // Tripped, data rejected
	StateHalfOpen              // Testing if sources have recovered
)

// Thresholds defines the limits that will trigger the circuit breaker
type Thresholds struct {
	// MaxAPY is the highest plausible pool APY in percent
	MaxAPY float64 `json:"max_apy"`

	// MaxTVLChange is the allowed aggregate-TVL swing between checks (0.5 = 50%)
	MaxTVLChange float64 `json:"max_tvl_change"`

	// MinPools is the minimum pool count for a usable listing
	MinPools int `json:"min_pools"`
}

// CircuitBreaker evaluates each fetched pool listing against thresholds and
// keeps the last accepted listing for fallback.
type CircuitBreaker struct {
	thresholds Thresholds

	state    State
	lastTrip time.Time

	resetDelay       time.Duration
	successCount     int
	successThreshold int

	lastGood    []model.PoolStat
	lastGoodTVL float64

	onTripCallback func(reason string)

	mu sync.RWMutex
}

// New creates a new CircuitBreaker with the provided thresholds
func New(t Thresholds) *CircuitBreaker {
	return &CircuitBreaker{
		thresholds:       t,
		state:            StateClosed,
		resetDelay:       5 * time.Minute,
		successThreshold: 3,
	}
}

// WithResetDelay sets a custom reset delay and returns the circuit breaker
func (cb *CircuitBreaker) WithResetDelay(delay time.Duration) *CircuitBreaker {
	cb.resetDelay = delay
	return cb
}

// WithTripCallback sets a callback function that is called when the circuit trips
func (cb *CircuitBreaker) WithTripCallback(callback func(reason string)) *CircuitBreaker {
	cb.onTripCallback = callback
	return cb
}

// Check evaluates a pool listing. If the circuit is open it rejects the
// listing outright; if the listing violates thresholds it trips the circuit.
func (cb *CircuitBreaker) Check(pools []model.PoolStat) error {
	cb.mu.RLock()
	state := cb.state
	lastTripTime := cb.lastTrip
	cb.mu.RUnlock()

	if state == StateOpen {
		if time.Since(lastTripTime) > cb.resetDelay {
			cb.transitionToHalfOpen()
		} else {
			return errors.New("circuit breaker open: pool data rejected")
		}
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if len(pools) < cb.thresholds.MinPools {
		reason := fmt.Sprintf("insufficient pool count: got %d, need %d",
			len(pools), cb.thresholds.MinPools)
		cb.trip(reason)
		return errors.New(reason)
	}

	var totalTVL float64
	for _, pool := range pools {
		if pool.APY > cb.thresholds.MaxAPY {
			reason := fmt.Sprintf("pool %s APY exceeds threshold: %.2f > %.2f",
				pool.Pool, pool.APY, cb.thresholds.MaxAPY)
			cb.trip(reason)
			return errors.New(reason)
		}
		totalTVL += pool.TVLUsd
	}

	// Only compare swings against substantial prior TVL
	if cb.lastGoodTVL > 1.0 {
		changeRatio := math.Abs(totalTVL-cb.lastGoodTVL) / cb.lastGoodTVL
		if changeRatio > cb.thresholds.MaxTVLChange {
			reason := fmt.Sprintf("aggregate TVL swing too drastic: %.2f%% (threshold: %.2f%%)",
				changeRatio*100, cb.thresholds.MaxTVLChange*100)
			cb.trip(reason)
			return errors.New(reason)
		}
	}

	logrus.Debug("Circuit breaker checks passed")

	cb.lastGood = append([]model.PoolStat(nil), pools...)
	cb.lastGoodTVL = totalTVL

	if cb.state == StateHalfOpen {
		cb.successCount++
		if cb.successCount >= cb.successThreshold {
			cb.state = StateClosed
			cb.successCount = 0
			logrus.Info("Circuit breaker closed: pool sources recovered")
		}
	}

	return nil
}

// GetState returns the current state of the circuit breaker
func (cb *CircuitBreaker) GetState() State {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// Reset forcibly resets the circuit breaker to closed state
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = StateClosed
	cb.successCount = 0
	logrus.Info("Circuit breaker manually reset to closed state")
}

// LastGoodPools returns a copy of the most recent accepted pool listing
func (cb *CircuitBreaker) LastGoodPools() []model.PoolStat {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	if len(cb.lastGood) == 0 {
		return nil
	}
	return append([]model.PoolStat(nil), cb.lastGood...)
}

// transitionToHalfOpen changes the circuit state to half-open for testing recovery
func (cb *CircuitBreaker) transitionToHalfOpen() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen {
		cb.state = StateHalfOpen
		cb.successCount = 0
		logrus.Info("Circuit breaker half-open: testing source recovery")
	}
}

// trip sets the circuit breaker to open state with the current time
func (cb *CircuitBreaker) trip(reason string) {
	cb.state = StateOpen
	cb.lastTrip = time.Now()
	logrus.Warnf("Circuit breaker tripped: %s", reason)

	if cb.onTripCallback != nil {
		go cb.onTripCallback(reason)
	}
}
