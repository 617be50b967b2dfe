package zap

import (
	"context"
	"errors"
	"math/big"
	"math/rand"
	"testing"

	"github.com/Satianurag/movement-defi-project-sub000/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsqrt(t *testing.T) {
	tests := []struct {
		name     string
		input    int64
		expected int64
	}{
		{"zero", 0, 0},
		{"one", 1, 1},
		{"perfect square", 144, 12},
		{"just below square", 143, 11},
		{"just above square", 145, 12},
		{"large", 1_000_000_000_000, 1_000_000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Isqrt(big.NewInt(tt.input))
			assert.Equal(t, tt.expected, got.Int64())
		})
	}
}

func TestIsqrtFloorProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	one := big.NewInt(1)

	for i := 0; i < 1000; i++ {
		x := new(big.Int).Rand(rng, new(big.Int).Lsh(one, 128))
		s := Isqrt(x)

		// s^2 <= x < (s+1)^2
		lower := new(big.Int).Mul(s, s)
		upper := new(big.Int).Add(s, one)
		upper.Mul(upper, upper)

		require.True(t, lower.Cmp(x) <= 0, "isqrt(%s)=%s overshoots", x, s)
		require.True(t, upper.Cmp(x) > 0, "isqrt(%s)=%s undershoots", x, s)
	}
}

func TestIsqrtPanicsOnNegative(t *testing.T) {
	assert.Panics(t, func() {
		Isqrt(big.NewInt(-1))
	})
}

func TestOptimalSwapAmount(t *testing.T) {
	tests := []struct {
		name      string
		amountIn  int64
		reserveIn int64
		expected  int64
	}{
		{"deposit much smaller than reserve", 1_000_000, 50_000_000, 999_990},
		{"small pool", 500, 1000, 499},
		{"mid-size", 123_456_789, 987_654_321, 123_449_073},
		{"dust against deep pool", 2, 1_000_000_000_000, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := OptimalSwapAmount(big.NewInt(tt.amountIn), big.NewInt(tt.reserveIn))
			assert.Equal(t, tt.expected, got.Int64())
		})
	}
}

// The swap amount must be the largest integer whose residual against the
// defining quadratic is non-positive: f(s) <= 0 < f(s+1).
func TestOptimalSwapAmountRootProperty(t *testing.T) {
	vectors := []struct {
		amountIn  int64
		reserveIn int64
	}{
		{1_000_000, 50_000_000},
		{1_000_000_000, 1_000_000_000},
		{500, 1000},
		{123_456_789, 987_654_321},
	}

	one := big.NewInt(1)
	for _, v := range vectors {
		a := big.NewInt(v.amountIn)
		r := big.NewInt(v.reserveIn)
		s := OptimalSwapAmount(a, r)

		require.True(t, s.Sign() > 0, "swap amount not positive for a=%d r=%d", v.amountIn, v.reserveIn)
		require.True(t, s.Cmp(a) < 0, "swap amount not below deposit for a=%d r=%d", v.amountIn, v.reserveIn)

		atRoot := QuadraticResidual(s, a, r)
		pastRoot := QuadraticResidual(new(big.Int).Add(s, one), a, r)
		require.True(t, atRoot.Sign() <= 0, "residual positive at root for a=%d r=%d", v.amountIn, v.reserveIn)
		require.True(t, pastRoot.Sign() > 0, "residual not positive past root for a=%d r=%d", v.amountIn, v.reserveIn)
	}
}

func TestOptimalSwapAmountRootPropertyRandom(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	one := big.NewInt(1)

	for i := 0; i < 500; i++ {
		a := big.NewInt(rng.Int63n(1_000_000_000_000) + 1000)
		r := big.NewInt(rng.Int63n(1_000_000_000_000) + 1000)
		s := OptimalSwapAmount(a, r)

		require.True(t, s.Sign() > 0)
		require.True(t, s.Cmp(a) < 0)
		require.True(t, QuadraticResidual(s, a, r).Sign() <= 0)
		require.True(t, QuadraticResidual(new(big.Int).Add(s, one), a, r).Sign() > 0)
	}
}

func TestPlanZap(t *testing.T) {
	plan, err := PlanZap("0xA::coin::MOVE", "0xB::coin::USDC", big.NewInt(1_000_000), big.NewInt(50_000_000))
	require.NoError(t, err)

	assert.Equal(t, "0xA::coin::MOVE", plan.TokenIn)
	assert.Equal(t, "0xB::coin::USDC", plan.TokenOut)
	assert.Equal(t, int64(999_990), plan.SwapAmount.Int64())
	assert.Equal(t, int64(10), plan.RemainingAmount.Int64())

	// Split must cover the full deposit exactly
	sum := new(big.Int).Add(plan.SwapAmount, plan.RemainingAmount)
	assert.Equal(t, 0, sum.Cmp(plan.TotalAmountIn))
}

func TestPlanZapRejectsDust(t *testing.T) {
	_, err := PlanZap("a", "b", big.NewInt(1), big.NewInt(1_000_000_000_000))
	assert.ErrorIs(t, err, ErrAmountTooSmall)
}

func TestPlanZapRejectsInvalidInputs(t *testing.T) {
	tests := []struct {
		name      string
		amountIn  *big.Int
		reserveIn *big.Int
	}{
		{"nil amount", nil, big.NewInt(100)},
		{"zero amount", big.NewInt(0), big.NewInt(100)},
		{"negative amount", big.NewInt(-5), big.NewInt(100)},
		{"nil reserve", big.NewInt(100), nil},
		{"zero reserve", big.NewInt(100), big.NewInt(0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := PlanZap("a", "b", tt.amountIn, tt.reserveIn)
			assert.Error(t, err)
		})
	}
}

// mockSwapper scripts the two routing steps for executor tests.
type mockSwapper struct {
	swapErr      error
	liquidityErr error
	swapCalls    int
	liqCalls     int
	swapAmount   *big.Int
	liqAmount    *big.Int
}

func (m *mockSwapper) Swap(_ context.Context, tokenIn, tokenOut string, amount *big.Int, user string) (model.TxResult, error) {
	m.swapCalls++
	m.swapAmount = amount
	if m.swapErr != nil {
		return model.TxResult{}, m.swapErr
	}
	return model.TxResult{Hash: "0xswap", Success: true}, nil
}

func (m *mockSwapper) AddLiquidity(_ context.Context, tokenIn, tokenOut string, amountIn *big.Int, user string) (model.TxResult, error) {
	m.liqCalls++
	m.liqAmount = amountIn
	if m.liquidityErr != nil {
		return model.TxResult{}, m.liquidityErr
	}
	return model.TxResult{Hash: "0xliquidity", Success: true}, nil
}

func TestExecuteZap(t *testing.T) {
	plan, err := PlanZap("a", "b", big.NewInt(1_000_000), big.NewInt(50_000_000))
	require.NoError(t, err)

	swapper := &mockSwapper{}
	result, err := ExecuteZap(context.Background(), plan, swapper, "0xuser")
	require.NoError(t, err)

	assert.Equal(t, "0xswap", result.SwapHash)
	assert.Equal(t, "0xliquidity", result.LiquidityHash)
	assert.False(t, result.Partial)
	assert.Equal(t, 0, swapper.swapAmount.Cmp(plan.SwapAmount))
	assert.Equal(t, 0, swapper.liqAmount.Cmp(plan.RemainingAmount))
}

func TestExecuteZapSwapFailureStopsSequence(t *testing.T) {
	plan, err := PlanZap("a", "b", big.NewInt(1_000_000), big.NewInt(50_000_000))
	require.NoError(t, err)

	swapper := &mockSwapper{swapErr: errors.New("insufficient balance")}
	result, err := ExecuteZap(context.Background(), plan, swapper, "0xuser")

	assert.Error(t, err)
	assert.Nil(t, result)
	assert.Equal(t, 0, swapper.liqCalls, "add_liquidity must not run after a failed swap")
}

func TestExecuteZapPartialResult(t *testing.T) {
	plan, err := PlanZap("a", "b", big.NewInt(1_000_000), big.NewInt(50_000_000))
	require.NoError(t, err)

	swapper := &mockSwapper{liquidityErr: errors.New("pool paused")}
	result, err := ExecuteZap(context.Background(), plan, swapper, "0xuser")

	assert.Error(t, err)
	require.NotNil(t, result, "partial result must carry the swap hash for recovery")
	assert.True(t, result.Partial)
	assert.Equal(t, "0xswap", result.SwapHash)
	assert.Empty(t, result.LiquidityHash)
}

func TestExecuteZapRejectsEmptyPlan(t *testing.T) {
	_, err := ExecuteZap(context.Background(), nil, &mockSwapper{}, "0xuser")
	assert.ErrorIs(t, err, ErrAmountTooSmall)
}
