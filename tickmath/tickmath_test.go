package tickmath

import (
	"crypto/rand"
	"math/big"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// encodePriceSqrt is a Go equivalent of the ethers.js helper for testing.
func encodePriceSqrt(reserve1, reserve0 int64) *uint256.Int {
	num := new(big.Int).Mul(big.NewInt(reserve1), new(big.Int).Lsh(big.NewInt(1), 192))
	ratio := new(big.Int).Div(num, big.NewInt(reserve0))
	return uint256.MustFromBig(new(big.Int).Sqrt(ratio))
}

func TestGetSqrtRatioAtTick(t *testing.T) {
	t.Run("throws for too low", func(t *testing.T) {
		temp := new(uint256.Int)
		err := GetSqrtRatioAtTick(temp, MIN_TICK-1)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrTickOutOfBounds)
	})

	t.Run("throws for too high", func(t *testing.T) {
		temp := new(uint256.Int)
		err := GetSqrtRatioAtTick(temp, MAX_TICK+1)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrTickOutOfBounds)
	})

	t.Run("min tick", func(t *testing.T) {
		sqrtP := new(uint256.Int)
		require.NoError(t, GetSqrtRatioAtTick(sqrtP, MIN_TICK))
		assert.True(t, sqrtP.Eq(MIN_SQRT_RATIO))
	})

	t.Run("max tick", func(t *testing.T) {
		sqrtP := new(uint256.Int)
		require.NoError(t, GetSqrtRatioAtTick(sqrtP, MAX_TICK))
		assert.True(t, sqrtP.Eq(MAX_SQRT_RATIO))
	})

	// Reference outputs from the canonical fixed-point implementation.
	vectors := []struct {
		tick int
		want string
	}{
		{-887272, "4295128739"},
		{-24081, "23768044760938258284793355980"},
		{-6932, "56022262241300288188759753413"},
		{-4452, "63417696821701407668090640902"},
		{-1558, "73290846043983537504606646234"},
		{-60, "78990846045029531151608375686"},
		{-1, "79224201403219477170569942574"},
		{0, "79228162514264337593543950336"},
		{1, "79232123823359799118286999568"},
		{60, "79466191966197645195421774833"},
		{120, "79704936542881920863903188246"},
		{887272, "1461446703485210103287273052203988822378723970342"},
	}
	for _, tc := range vectors {
		got := new(uint256.Int)
		require.NoError(t, GetSqrtRatioAtTick(got, tc.tick))
		assert.Equal(t, tc.want, got.Dec(), "tick %d", tc.tick)
	}

	t.Run("strictly increasing", func(t *testing.T) {
		prev := new(uint256.Int)
		cur := new(uint256.Int)
		require.NoError(t, GetSqrtRatioAtTick(prev, -1000))
		for tick := -999; tick <= 1000; tick++ {
			require.NoError(t, GetSqrtRatioAtTick(cur, tick))
			assert.True(t, prev.Lt(cur), "ratio must grow at tick %d", tick)
			prev.Set(cur)
		}
	})
}

func TestGetTickAtSqrtRatio(t *testing.T) {
	t.Run("throws for too low", func(t *testing.T) {
		below := new(uint256.Int).Sub(MIN_SQRT_RATIO, uint256.NewInt(1))
		_, err := GetTickAtSqrtRatio(below)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrSqrtPriceOutOfBounds)
	})

	t.Run("throws for too high", func(t *testing.T) {
		_, err := GetTickAtSqrtRatio(MAX_SQRT_RATIO)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrSqrtPriceOutOfBounds)
	})

	t.Run("ratio of min tick", func(t *testing.T) {
		tick, err := GetTickAtSqrtRatio(MIN_SQRT_RATIO)
		require.NoError(t, err)
		assert.Equal(t, MIN_TICK, tick)
	})

	t.Run("ratio closest to max tick", func(t *testing.T) {
		closest := new(uint256.Int).Sub(MAX_SQRT_RATIO, uint256.NewInt(1))
		tick, err := GetTickAtSqrtRatio(closest)
		require.NoError(t, err)
		assert.Equal(t, MAX_TICK-1, tick)
	})

	t.Run("price 1:2 lands on -6932", func(t *testing.T) {
		tick, err := GetTickAtSqrtRatio(encodePriceSqrt(1, 2))
		require.NoError(t, err)
		assert.Equal(t, -6932, tick)
	})

	ratios := []struct {
		name  string
		ratio *uint256.Int
	}{
		{"MIN_SQRT_RATIO", MIN_SQRT_RATIO},
		{"1e12:1", encodePriceSqrt(1_000_000_000_000, 1)},
		{"1e6:1", encodePriceSqrt(1_000_000, 1)},
		{"1:64", encodePriceSqrt(1, 64)},
		{"1:8", encodePriceSqrt(1, 8)},
		{"1:2", encodePriceSqrt(1, 2)},
		{"1:1", encodePriceSqrt(1, 1)},
		{"2:1", encodePriceSqrt(2, 1)},
		{"8:1", encodePriceSqrt(8, 1)},
		{"64:1", encodePriceSqrt(64, 1)},
		{"1:1e6", encodePriceSqrt(1, 1_000_000)},
		{"1:1e12", encodePriceSqrt(1, 1_000_000_000_000)},
		{"MAX_SQRT_RATIO-1", new(uint256.Int).Sub(MAX_SQRT_RATIO, uint256.NewInt(1))},
	}

	for _, tc := range ratios {
		t.Run(tc.name, func(t *testing.T) {
			tick, err := GetTickAtSqrtRatio(tc.ratio)
			require.NoError(t, err)

			ratioOfTick := new(uint256.Int)
			require.NoError(t, GetSqrtRatioAtTick(ratioOfTick, tick))
			ratioOfTickPlusOne := new(uint256.Int)
			require.NoError(t, GetSqrtRatioAtTick(ratioOfTickPlusOne, tick+1))

			// Invariant: ratioOfTick <= ratio < ratioOfTickPlusOne.
			assert.True(t, !tc.ratio.Lt(ratioOfTick))
			assert.True(t, tc.ratio.Lt(ratioOfTickPlusOne))
		})
	}
}

// TestInvariants_InverseFunctions checks GetTickAtSqrtRatio against random
// prices drawn from the whole valid sqrt-price domain.
func TestInvariants_InverseFunctions(t *testing.T) {
	span := new(big.Int).Sub(MAX_SQRT_RATIO.ToBig(), MIN_SQRT_RATIO.ToBig())
	for i := 0; i < 500; i++ {
		offset, err := rand.Int(rand.Reader, span)
		require.NoError(t, err)
		price := uint256.MustFromBig(new(big.Int).Add(MIN_SQRT_RATIO.ToBig(), offset))

		tick, err := GetTickAtSqrtRatio(price)
		require.NoError(t, err)

		lower := new(uint256.Int)
		require.NoError(t, GetSqrtRatioAtTick(lower, tick))
		upper := new(uint256.Int)
		require.NoError(t, GetSqrtRatioAtTick(upper, tick+1))

		assert.True(t, !price.Lt(lower))
		assert.True(t, price.Lt(upper))
	}
}

func TestUsableTickHelpers(t *testing.T) {
	t.Run("spacing 60", func(t *testing.T) {
		assert.Equal(t, -887220, MinUsableTick(60))
		assert.Equal(t, 887220, MaxUsableTick(60))
	})

	t.Run("spacing 1", func(t *testing.T) {
		assert.Equal(t, MIN_TICK, MinUsableTick(1))
		assert.Equal(t, MAX_TICK, MaxUsableTick(1))
	})

	t.Run("max liquidity per tick", func(t *testing.T) {
		// floor((2^128 - 1) / 29575)
		assert.Equal(t,
			"11505743598341114571880798222544994",
			MaxLiquidityPerTick(60).Dec())
		// floor((2^128 - 1) / (2*887272 + 1))
		assert.Equal(t,
			"191757530477355301479181766273477",
			MaxLiquidityPerTick(1).Dec())
	})
}
