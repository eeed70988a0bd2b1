package tickmath

import (
	"errors"
	"sync"

	"github.com/holiman/uint256"
)

const (
	// MIN_TICK is the lowest tick accepted by GetSqrtRatioAtTick.
	MIN_TICK = -887272
	// MAX_TICK is the highest tick accepted by GetSqrtRatioAtTick.
	MAX_TICK = 887272
)

var (
	// MIN_SQRT_RATIO is GetSqrtRatioAtTick(MIN_TICK).
	MIN_SQRT_RATIO = uint256.MustFromDecimal("4295128739")
	// MAX_SQRT_RATIO is GetSqrtRatioAtTick(MAX_TICK).
	MAX_SQRT_RATIO = uint256.MustFromDecimal("1461446703485210103287273052203988822378723970342")

	ErrTickOutOfBounds      = errors.New("R: tick outside the supported range")
	ErrSqrtPriceOutOfBounds = errors.New("R: sqrt price outside the supported range")

	one        = uint256.NewInt(1)
	maxUint256 = uint256.MustFromHex("0xffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff")
	maxUint128 = uint256.MustFromHex("0xffffffffffffffffffffffffffffffff")

	// ratioConstants[i] is sqrt(1.0001^(2^(i-1))) in UQ128.128 for i >= 2;
	// index 0 covers the lowest bit, index 1 is the UQ128.128 one, and the
	// last entry is the 32-bit rounding mask.
	ratioConstants = [22]*uint256.Int{
		uint256.MustFromHex("0xfffcb933bd6fad37aa2d162d1a594001"),
		uint256.MustFromHex("0x100000000000000000000000000000000"),
		uint256.MustFromHex("0xfff97272373d413259a46990580e213a"),
		uint256.MustFromHex("0xfff2e50f5f656932ef12357cf3c7fdcc"),
		uint256.MustFromHex("0xffe5caca7e10e4e61c3624eaa0941cd0"),
		uint256.MustFromHex("0xffcb9843d60f6159c9db58835c926644"),
		uint256.MustFromHex("0xff973b41fa98c081472e6896dfb254c0"),
		uint256.MustFromHex("0xff2ea16466c96a3843ec78b326b52861"),
		uint256.MustFromHex("0xfe5dee046a99a2a811c461f1969c3053"),
		uint256.MustFromHex("0xfcbe86c7900a88aedcffc83b479aa3a4"),
		uint256.MustFromHex("0xf987a7253ac413176f2b074cf7815e54"),
		uint256.MustFromHex("0xf3392b0822b70005940c7a398e4b70f3"),
		uint256.MustFromHex("0xe7159475a2c29b7443b29c7fa6e889d9"),
		uint256.MustFromHex("0xd097f3bdfd2022b8845ad8f792aa5825"),
		uint256.MustFromHex("0xa9f746462d870fdf8a65dc1f90e061e5"),
		uint256.MustFromHex("0x70d869a156d2a1b890bb3df62baf32f7"),
		uint256.MustFromHex("0x31be135f97d08fd981231505542fcfa6"),
		uint256.MustFromHex("0x9aa508b5b7a84e1c677de54f3e99bc9"),
		uint256.MustFromHex("0x5d6af8dedb81196699c329225ee604"),
		uint256.MustFromHex("0x2216e584f5fa1ea926041bedfe98"),
		uint256.MustFromHex("0x48a170391f7dc42444e8fa2"),
		uint256.MustFromHex("0xffffffff"),
	}
)

// scratch holds reusable integers so the hot functions stay allocation-free.
type scratch struct {
	ratio *uint256.Int
	rem   *uint256.Int
	probe *uint256.Int
}

var pool = sync.Pool{
	New: func() any {
		return &scratch{
			ratio: new(uint256.Int),
			rem:   new(uint256.Int),
			probe: new(uint256.Int),
		}
	},
}

// GetSqrtRatioAtTick writes sqrt(1.0001^tick) * 2^96 into dest as a Q64.96.
// The result is strictly increasing in tick.
func GetSqrtRatioAtTick(dest *uint256.Int, tick int) error {
	if tick < MIN_TICK || tick > MAX_TICK {
		return ErrTickOutOfBounds
	}

	s := pool.Get().(*scratch)
	defer pool.Put(s)

	absTick := tick
	if tick < 0 {
		absTick = -tick
	}

	if (absTick & 0x1) != 0 {
		s.ratio.Set(ratioConstants[0])
	} else {
		s.ratio.Set(ratioConstants[1])
	}

	// Multiply in the precomputed factor for every set bit of |tick|.
	for i := 2; i < 21; i++ {
		if (absTick & (1 << (i - 1))) != 0 {
			s.ratio.Mul(s.ratio, ratioConstants[i]).Rsh(s.ratio, 128)
		}
	}

	if tick > 0 {
		s.ratio.Div(maxUint256, s.ratio)
	}

	// Down-convert from UQ128.128 to UQ64.96, rounding up.
	s.rem.And(s.ratio, ratioConstants[21])
	s.ratio.Rsh(s.ratio, 32)
	if !s.rem.IsZero() {
		s.ratio.Add(s.ratio, one)
	}

	dest.Set(s.ratio)
	return nil
}

// GetTickAtSqrtRatio returns the largest tick whose ratio is at most
// sqrtPriceX96. It binary-searches the tick domain, so it is bit-exact with
// GetSqrtRatioAtTick by construction.
func GetTickAtSqrtRatio(sqrtPriceX96 *uint256.Int) (int, error) {
	if sqrtPriceX96.Lt(MIN_SQRT_RATIO) || !sqrtPriceX96.Lt(MAX_SQRT_RATIO) {
		return 0, ErrSqrtPriceOutOfBounds
	}

	s := pool.Get().(*scratch)
	defer pool.Put(s)

	low := MIN_TICK
	high := MAX_TICK
	var tick int
	ratio := s.probe

	for low <= high {
		mid := (low + high) / 2
		if err := GetSqrtRatioAtTick(ratio, mid); err != nil {
			return 0, err
		}

		if !sqrtPriceX96.Lt(ratio) {
			tick = mid
			low = mid + 1
		} else {
			high = mid - 1
		}
	}

	return tick, nil
}

// MinUsableTick returns the lowest tick that is a multiple of tickSpacing.
// The division truncates toward zero so the result never leaves the
// supported tick range.
func MinUsableTick(tickSpacing int) int {
	return (MIN_TICK / tickSpacing) * tickSpacing
}

// MaxUsableTick returns the highest tick that is a multiple of tickSpacing.
func MaxUsableTick(tickSpacing int) int {
	return (MAX_TICK / tickSpacing) * tickSpacing
}

// MaxLiquidityPerTick returns the cap on a single tick's liquidityGross,
// chosen so that the total across every usable tick stays within a uint128.
func MaxLiquidityPerTick(tickSpacing int) *uint256.Int {
	numTicks := (MaxUsableTick(tickSpacing)-MinUsableTick(tickSpacing))/tickSpacing + 1
	return new(uint256.Int).Div(maxUint128, uint256.NewInt(uint64(numTicks)))
}
